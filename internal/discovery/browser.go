package discovery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/checkpoint"
	"github.com/JakeFAU/news-harvester/internal/harvest"
)

// BrowserFetcher discovers identifiers through a harvest.BrowserDiscoverer
// and checkpoints them exactly like Fetcher.
type BrowserFetcher struct {
	sel     harvest.Selection
	browser harvest.BrowserDiscoverer
	store   *checkpoint.Store
	logger  *zap.Logger
}

// NewBrowser builds a BrowserFetcher.
func NewBrowser(
	sel harvest.Selection,
	browser harvest.BrowserDiscoverer,
	store *checkpoint.Store,
	logger *zap.Logger,
) (*BrowserFetcher, error) {
	if browser == nil || store == nil {
		return nil, errors.New("discovery: browser and store are required")
	}
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserFetcher{sel: sel, browser: browser, store: store, logger: logger.Named("discovery.browser")}, nil
}

// Discover returns the checkpoint when present, otherwise drives the browser
// in a single session. A day without a readable page count surfaces as
// harvest.ErrPageCount.
func (f *BrowserFetcher) Discover(ctx context.Context, w harvest.Window) ([]harvest.NewsID, error) {
	key := checkpoint.Key{Label: f.sel.Label(), Window: w}
	done, err := f.store.Exists(key, harvest.PhaseIdentifiers)
	if err != nil {
		return nil, err
	}
	if done {
		return f.store.ReadIdentifiers(ctx, key)
	}

	found, err := f.browser.DiscoverIdentifiers(ctx, f.sel, w.Range())
	if err != nil {
		return nil, fmt.Errorf("browse %s: %w", w.Key(), err)
	}
	ids := make([]harvest.NewsID, 0, len(found))
	for _, id := range found {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if err := f.store.WriteIdentifiers(ctx, key, ids); err != nil {
		return nil, err
	}
	f.logger.Info("identifiers checkpointed", zap.String("window", w.Key()), zap.Int("ids", len(ids)))
	return ids, nil
}
