package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotional(t *testing.T) {
	t.Parallel()
	assert.True(t, MustParse("1234.50").Equal(Notional(MustParse("12.345"), 100)))
	assert.True(t, Notional(MustParse("99.99"), 0).IsZero())
}

func TestWeightedAverage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		oldAvg string
		oldQty int64
		price  string
		qty    int64
		want   string
	}{
		{"equal lots", "100", 10, "120", 10, "110"},
		{"fresh position", "0", 0, "42.5", 7, "42.5"},
		{"repeating fraction rounds", "10", 1, "11", 2, "10.666667"},
		{"half rounds away from zero", "0.0000005", 1, "0.0000005", 1, "0.000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAverage(MustParse(tt.oldAvg), tt.oldQty, MustParse(tt.price), tt.qty)
			assert.Equal(t, MustParse(tt.want).String(), got.String())
		})
	}
}

func TestPercent(t *testing.T) {
	t.Parallel()

	p, ok := Percent(MustParse("5000"), MustParse("100000"))
	require.True(t, ok)
	assert.True(t, MustParse("5").Equal(p))

	p, ok = Percent(MustParse("-1"), MustParse("3"))
	require.True(t, ok)
	assert.Equal(t, "-33.333333", p.String())

	_, ok = Percent(MustParse("1"), decimal.Zero)
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	t.Parallel()

	d, err := Parse(" 10.25 ")
	require.NoError(t, err)
	assert.Equal(t, "10.25", d.String())

	_, err = Parse("")
	assert.Error(t, err)
	_, err = Parse("ten")
	assert.Error(t, err)

	assert.Panics(t, func() { MustParse("x") })
}
