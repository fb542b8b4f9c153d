package execution

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Action{
		"buy":   ActionBuy,
		" SELL": ActionSell,
		"Hold":  ActionHold,
		"wait":  ActionWait,
	} {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseAction("short")
	assert.ErrorContains(t, err, "unknown action")
}

func TestLoadScript(t *testing.T) {
	t.Parallel()

	in := `date,symbol,action,quantity,confidence,rationale
# comment rows are ignored
2024-01-02,aapl,buy,100,0.8,breakout
2024-01-02,MSFT,sell,5
2024-01-03,AAPL,hold,
`
	s, err := LoadScript(strings.NewReader(in))
	require.NoError(t, err)

	days := s.Days()
	require.Len(t, days, 2)
	assert.Equal(t, "2024-01-02", days[0].Format("2006-01-02"))

	sigs, err := s.Signals(context.Background(), DecisionContext{AsOf: days[0].Add(23 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, Signal{Symbol: "AAPL", Action: ActionBuy, Quantity: 100, Confidence: 0.8, Rationale: "breakout"}, sigs[0])
	assert.Equal(t, Signal{Symbol: "MSFT", Action: ActionSell, Quantity: 5}, sigs[1])

	sigs, err = s.Signals(context.Background(), DecisionContext{AsOf: days[1]})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, ActionHold, sigs[0].Action)
	assert.Zero(t, sigs[0].Quantity)

	none, err := s.Signals(context.Background(), DecisionContext{AsOf: days[1].AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLoadScriptErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short row", "2024-01-02,AAPL,buy\n", "want date,symbol,action,quantity"},
		{"bad date", "01/02/2024,AAPL,buy,1\n", "bad date"},
		{"bad action", "2024-01-02,AAPL,short,1\n", "unknown action"},
		{"bad quantity", "2024-01-02,AAPL,buy,ten\n", "bad quantity"},
		{"bad confidence", "2024-01-02,AAPL,buy,1,high\n", "bad confidence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScript(strings.NewReader(tt.in))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestScriptSignalsAreCopies(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s := NewScript()
	s.Add(day, Signal{Symbol: "AAPL", Action: ActionBuy, Quantity: 1})

	sigs, err := s.Signals(context.Background(), DecisionContext{AsOf: day})
	require.NoError(t, err)
	sigs[0].Quantity = 99

	again, err := s.Signals(context.Background(), DecisionContext{AsOf: day})
	require.NoError(t, err)
	assert.EqualValues(t, 1, again[0].Quantity)
}
