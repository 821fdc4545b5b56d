// Package discovery collects the article identifiers of one window by paging
// through portal search results.
package discovery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/news-harvester/internal/checkpoint"
	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/metrics"
	"github.com/JakeFAU/news-harvester/internal/portal"
	"github.com/JakeFAU/news-harvester/internal/retry"
)

// Searcher issues one search request.
type Searcher interface {
	Search(ctx context.Context, q portal.SearchQuery) (portal.SearchResult, error)
}

// Waiter paces requests.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Config controls paging.
type Config struct {
	Label            string
	Codes            []string
	PageSize         int
	FallbackPageSize int
	MaxInFlight      int
}

// Fetcher discovers identifiers for windows of one selection through one client.
type Fetcher struct {
	cfg     Config
	client  Searcher
	limiter Waiter
	policy  retry.Policy
	store   *checkpoint.Store
	logger  *zap.Logger
}

// New builds a Fetcher.
func New(
	cfg Config,
	client Searcher,
	limiter Waiter,
	policy retry.Policy,
	store *checkpoint.Store,
	logger *zap.Logger,
) (*Fetcher, error) {
	if client == nil || limiter == nil || store == nil {
		return nil, errors.New("discovery: client, limiter and store are required")
	}
	if cfg.Label == "" || len(cfg.Codes) == 0 {
		return nil, errors.New("discovery: label and provider codes are required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.FallbackPageSize <= 0 || cfg.FallbackPageSize > cfg.PageSize || cfg.PageSize%cfg.FallbackPageSize != 0 {
		cfg.FallbackPageSize = cfg.PageSize
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	if policy == nil {
		policy = retry.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		policy:  policy,
		store:   store,
		logger:  logger.Named("discovery"),
	}, nil
}

// Discover returns the window's identifiers in page order. A stored
// checkpoint is returned without any request. A non-2xx answer to the first
// page aborts the run; later pages that fail are skipped.
func (f *Fetcher) Discover(ctx context.Context, w harvest.Window) ([]harvest.NewsID, error) {
	key := checkpoint.Key{Label: f.cfg.Label, Window: w}
	done, err := f.store.Exists(key, harvest.PhaseIdentifiers)
	if err != nil {
		return nil, err
	}
	log := f.logger.With(zap.String("window", w.Key()), zap.String("label", f.cfg.Label))
	if done {
		ids, err := f.store.ReadIdentifiers(ctx, key)
		if err != nil {
			return nil, err
		}
		log.Debug("identifier checkpoint found", zap.Int("ids", len(ids)))
		return ids, nil
	}

	var first portal.SearchResult
	err = retry.Do(ctx, f.policy, "search", func(ctx context.Context) error {
		res, err := f.search(ctx, w.Range(), 1, f.cfg.PageSize)
		first = res
		return err
	})
	if err != nil {
		if _, ok := harvest.AsStatus(err); ok {
			return nil, harvest.Fatal(fmt.Errorf("first page of %s: %w", w.Key(), err))
		}
		return nil, fmt.Errorf("first page of %s: %w", w.Key(), err)
	}

	pages := PageCount(first.Total, f.cfg.PageSize)
	log.Info("discovering identifiers", zap.Int("total", first.Total), zap.Int("pages", pages))

	results := make([][]harvest.NewsID, max(pages, 1))
	results[0] = first.IDs

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxInFlight)
	for page := 2; page <= pages; page++ {
		g.Go(func() error {
			ids, err := f.fetchPage(gctx, w, page, log)
			if err != nil {
				return err
			}
			results[page-1] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var ids []harvest.NewsID
	for _, page := range results {
		for _, id := range page {
			if id != "" {
				ids = append(ids, id)
			}
		}
	}
	if err := f.store.WriteIdentifiers(ctx, key, ids); err != nil {
		return nil, err
	}
	log.Info("identifiers checkpointed", zap.Int("ids", len(ids)))
	return ids, nil
}

// fetchPage returns nil ids for pages that are skipped. It only errors when
// the run must stop.
func (f *Fetcher) fetchPage(ctx context.Context, w harvest.Window, page int, log *zap.Logger) ([]harvest.NewsID, error) {
	res, err := f.search(ctx, w.Range(), page, f.cfg.PageSize)
	if err == nil {
		return res.IDs, nil
	}
	if se, ok := harvest.AsStatus(err); ok {
		log.Info("skipping page", zap.Int("page", page), zap.Int("status", se.Code))
		metrics.ObserveSkip(string(harvest.PhaseIdentifiers), "status")
		return nil, nil
	}
	if !errors.Is(err, harvest.ErrTransient) {
		return nil, err
	}

	// Re-request the same result range in smaller pages.
	log.Info("page failed; re-requesting at fallback size",
		zap.Int("page", page), zap.Int("fallback_size", f.cfg.FallbackPageSize), zap.Error(err))
	per := f.cfg.PageSize / f.cfg.FallbackPageSize
	var ids []harvest.NewsID
	for j := 1; j <= per; j++ {
		sub := (page-1)*per + j
		var part portal.SearchResult
		err := retry.Do(ctx, f.policy, "search", func(ctx context.Context) error {
			r, err := f.search(ctx, w.Range(), sub, f.cfg.FallbackPageSize)
			part = r
			return err
		})
		switch {
		case err == nil:
			ids = append(ids, part.IDs...)
		case errors.Is(err, harvest.ErrRetryExhausted):
			log.Warn("giving up on page", zap.Int("page", page), zap.Int("sub_page", sub), zap.Error(err))
			metrics.ObserveSkip(string(harvest.PhaseIdentifiers), "retry_exhausted")
		default:
			if se, ok := harvest.AsStatus(err); ok {
				log.Info("skipping page", zap.Int("page", page), zap.Int("sub_page", sub), zap.Int("status", se.Code))
				metrics.ObserveSkip(string(harvest.PhaseIdentifiers), "status")
				continue
			}
			return nil, err
		}
	}
	return ids, nil
}

func (f *Fetcher) search(ctx context.Context, r harvest.DateRange, page, size int) (portal.SearchResult, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return portal.SearchResult{}, err
	}
	return f.client.Search(ctx, portal.SearchQuery{
		Range:         r,
		ProviderCodes: f.cfg.Codes,
		Page:          page,
		PageSize:      size,
	})
}

// PageCount returns how many pages of size hold total results.
func PageCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}
