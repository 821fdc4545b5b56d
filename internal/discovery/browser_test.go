package discovery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-harvester/internal/checkpoint"
	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/storage/local"
)

type fakeBrowser struct {
	ids     []harvest.NewsID
	err     error
	browses int
	counts  int
}

func (b *fakeBrowser) DiscoverIdentifiers(context.Context, harvest.Selection, harvest.DateRange) ([]harvest.NewsID, error) {
	b.browses++
	return b.ids, b.err
}

func (b *fakeBrowser) FetchPageCount(context.Context, harvest.Selection, harvest.DateRange) (int, bool, error) {
	b.counts++
	return 1, true, nil
}

func browserStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	state, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	out, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	s, err := checkpoint.New(state, out)
	require.NoError(t, err)
	return s
}

var browserWindow = harvest.Window{
	Begin: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
}

func TestBrowserFetcherCheckpoints(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{ids: []harvest.NewsID{"a", "", "b"}}
	f, err := NewBrowser(harvest.Batch("kbs", "mbc"), b, browserStore(t), nil)
	require.NoError(t, err)

	ids, err := f.Discover(context.Background(), browserWindow)
	require.NoError(t, err)
	assert.Equal(t, []harvest.NewsID{"a", "b"}, ids)

	again, err := f.Discover(context.Background(), browserWindow)
	require.NoError(t, err)
	assert.Equal(t, ids, again)
	assert.Equal(t, 1, b.browses)
	assert.Zero(t, b.counts, "discovery uses one browser session per window")
}

func TestBrowserFetcherMissingPageCountIsFatal(t *testing.T) {
	t.Parallel()

	store := browserStore(t)
	b := &fakeBrowser{err: fmt.Errorf("%w for kbs on 2024-05-03", harvest.ErrPageCount)}
	f, err := NewBrowser(harvest.Single("kbs"), b, store, nil)
	require.NoError(t, err)

	_, err = f.Discover(context.Background(), browserWindow)
	require.ErrorIs(t, err, harvest.ErrPageCount)
	assert.True(t, harvest.IsFatal(err))
	assert.Equal(t, 1, b.browses)
	assert.Zero(t, b.counts)

	done, err := store.Exists(checkpoint.Key{Label: "kbs", Window: browserWindow}, harvest.PhaseIdentifiers)
	require.NoError(t, err)
	assert.False(t, done, "a failed window leaves no checkpoint")
}
