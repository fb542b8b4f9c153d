package id

import (
	"regexp"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsMonotonic(t *testing.T) {
	t.Parallel()

	ids := make([]string, 500)
	for i := range ids {
		ids[i] = New()
	}
	assert.True(t, sort.StringsAreSorted(ids))

	seen := map[string]bool{}
	for _, s := range ids {
		assert.Len(t, s, 26)
		assert.False(t, seen[s], "duplicate id %s", s)
		seen[s] = true
	}
}

func TestAccountNumber(t *testing.T) {
	t.Parallel()

	n, err := AccountNumber("BT")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^BT-[0-9A-F]{12}$`), n)

	m, err := AccountNumber("BT")
	require.NoError(t, err)
	assert.NotEqual(t, n, m)
}
