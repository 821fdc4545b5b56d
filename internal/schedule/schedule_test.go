package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-harvester/internal/harvest"
)

func windows(n int) []harvest.Window {
	out := make([]harvest.Window, n)
	for i := range out {
		out[i] = harvest.Window{Index: i}
	}
	return out
}

func TestAssignRoundRobin(t *testing.T) {
	t.Parallel()

	proxies := []harvest.Proxy{"http://a:1", "http://b:1", "http://c:1"}
	shards, parallelism, err := Assign(windows(7), proxies)
	require.NoError(t, err)
	assert.Equal(t, 3, parallelism)
	require.Len(t, shards, 7)
	for i, s := range shards {
		assert.Equal(t, i, s.Window.Index)
		assert.Equal(t, proxies[i%3], s.Proxy)
		assert.Equal(t, i%3, s.Slot)
	}
}

func TestAssignSingleProxy(t *testing.T) {
	t.Parallel()

	shards, parallelism, err := Assign(windows(4), []harvest.Proxy{"http://only:1"})
	require.NoError(t, err)
	assert.Equal(t, 1, parallelism)
	for _, s := range shards {
		assert.Equal(t, harvest.Proxy("http://only:1"), s.Proxy)
		assert.Zero(t, s.Slot)
	}
}

func TestAssignEmptyPool(t *testing.T) {
	t.Parallel()

	_, _, err := Assign(windows(2), nil)
	require.ErrorIs(t, err, ErrNoProxies)
}

func TestMod(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, Mod(0, 3))
	assert.Equal(t, 2, Mod(5, 3))
	assert.Equal(t, 2, Mod(-1, 3))
	assert.Equal(t, 0, Mod(-3, 3))
}
