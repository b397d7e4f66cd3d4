package utils_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mppl.dev/mpplc/pkg/utils"
)

func stringTable() *utils.Table[string, int] {
	return utils.NewTable[string, int](utils.HashString, func(a, b string) bool { return a == b })
}

func TestInsertFind(t *testing.T) {
	table := stringTable()

	t.Run("Valid data", func(t *testing.T) {
		assert.Equal(t, 1, table.Insert("one", 1))
		assert.Equal(t, 2, table.Insert("two", 2))

		v, ok := table.Find("one")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
		assert.Equal(t, 2, table.Len())
	})

	t.Run("Interning semantics", func(t *testing.T) {
		// A second insert under the same key keeps the first value; the
		// table is an interner, not a plain map.
		assert.Equal(t, 1, table.Insert("one", 99))
		assert.Equal(t, 2, table.Len())
	})

	t.Run("Missing key", func(t *testing.T) {
		_, ok := table.Find("three")
		assert.False(t, ok)
	})
}

func TestRemove(t *testing.T) {
	table := stringTable()
	table.Insert("gone", 7)

	assert.True(t, table.Remove("gone"))
	assert.False(t, table.Remove("gone")) // Second removal finds nothing
	_, ok := table.Find("gone")
	assert.False(t, ok)
	assert.Equal(t, 0, table.Len())
}

func TestGrowth(t *testing.T) {
	table := stringTable()

	// Far beyond the initial capacity so the table doubles several times.
	const n = 10000
	for i := 0; i < n; i++ {
		table.Insert(fmt.Sprintf("key-%d", i), i)
	}
	require.Equal(t, n, table.Len())

	for i := 0; i < n; i++ {
		v, ok := table.Find(fmt.Sprintf("key-%d", i))
		require.True(t, ok, "key-%d must survive growth", i)
		require.Equal(t, i, v)
	}
}

func TestCollisionHeavy(t *testing.T) {
	// A degenerate hash crowds every key into one neighborhood.
	// The neighborhood bound caps how many identically-hashed keys can ever
	// coexist, so the count stays below it.
	table := utils.NewTable[int, int](
		func(int) uint64 { return 42 },
		func(a, b int) bool { return a == b },
	)

	for i := 0; i < utils.Neighborhood-4; i++ {
		table.Insert(i, i*i)
	}
	require.Equal(t, utils.Neighborhood-4, table.Len())
	for i := 0; i < utils.Neighborhood-4; i++ {
		v, ok := table.Find(i)
		require.True(t, ok)
		require.Equal(t, i*i, v)
	}
}

func TestEach(t *testing.T) {
	table := stringTable()
	table.Insert("a", 1)
	table.Insert("b", 2)

	seen := map[string]int{}
	table.Each(func(k string, v int) bool {
		seen[k] = v
		return true
	})
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, seen)
}
