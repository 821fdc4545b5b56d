package proxy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-harvester/internal/harvest"
)

func TestBlacklistAddIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "env", "invalid_proxy.txt")
	bl, err := NewBlacklist(path, time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := bl.Contains("http://a:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bl.Add(ctx, "http://a:1"))
	require.NoError(t, bl.Add(ctx, " http://a:1 "))
	require.NoError(t, bl.Add(ctx, "http://b:1"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://a:1\nhttp://b:1\n", string(raw))

	ok, err = bl.Contains("http://a:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoFileExists(t, path+".lock")
}

func TestBlacklistToleratesDuplicatesOnRead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bl.txt")
	require.NoError(t, os.WriteFile(path, []byte("http://a:1\n\nhttp://a:1\nhttp://b:1\n"), 0o600))
	bl, err := NewBlacklist(path, 0)
	require.NoError(t, err)

	entries, err := bl.Entries()
	require.NoError(t, err)
	assert.Equal(t, []harvest.Proxy{"http://a:1", "http://b:1"}, entries)
}

func TestBlacklistConcurrentWritersAcrossInstances(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bl.txt")
	a, err := NewBlacklist(path, time.Minute)
	require.NoError(t, err)
	b, err := NewBlacklist(path, time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); assert.NoError(t, a.Add(context.Background(), "http://same:1")) }()
		go func() { defer wg.Done(); assert.NoError(t, b.Add(context.Background(), "http://same:1")) }()
	}
	wg.Wait()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "http://same:1"))
}

func TestBlacklistReclaimsStaleLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bl.txt")
	lock := path + ".lock"
	require.NoError(t, os.WriteFile(lock, []byte("{}"), 0o600))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lock, old, old))

	bl, err := NewBlacklist(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, bl.Add(context.Background(), "http://a:1"))
}

func TestBlacklistWaitsForHeldLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bl.txt")
	require.NoError(t, os.WriteFile(path+".lock", []byte("{}"), 0o600))

	bl, err := NewBlacklist(path, time.Hour)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, bl.Add(ctx, "http://a:1"), context.DeadlineExceeded)
}
