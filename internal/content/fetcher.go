// Package content retrieves full article records for discovered identifiers.
package content

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/news-harvester/internal/checkpoint"
	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/metrics"
	"github.com/JakeFAU/news-harvester/internal/retry"
)

// Detailer fetches one article.
type Detailer interface {
	Detail(ctx context.Context, id harvest.NewsID) (harvest.ArticleRecord, error)
}

// Waiter paces requests.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Config controls fan-out.
type Config struct {
	Label       string
	MaxInFlight int
}

// Fetcher retrieves article bodies through one client.
type Fetcher struct {
	cfg     Config
	client  Detailer
	limiter Waiter
	policy  retry.Policy
	store   *checkpoint.Store
	logger  *zap.Logger
}

// New builds a Fetcher.
func New(
	cfg Config,
	client Detailer,
	limiter Waiter,
	policy retry.Policy,
	store *checkpoint.Store,
	logger *zap.Logger,
) (*Fetcher, error) {
	if client == nil || limiter == nil || store == nil {
		return nil, errors.New("content: client, limiter and store are required")
	}
	if cfg.Label == "" {
		return nil, errors.New("content: label is required")
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
		logger:  logger.Named("content"),
	}, nil
}

// Done reports whether the window's content checkpoint already exists.
func (f *Fetcher) Done(w harvest.Window) (bool, error) {
	return f.store.Exists(checkpoint.Key{Label: f.cfg.Label, Window: w}, harvest.PhaseContent)
}

// Fetch retrieves one record per id. Items answered with a non-2xx status or
// that exhaust the retry budget are dropped. The surviving records are
// stored newest-last reversed from dispatch order.
func (f *Fetcher) Fetch(ctx context.Context, w harvest.Window, ids []harvest.NewsID) ([]harvest.ArticleRecord, error) {
	key := checkpoint.Key{Label: f.cfg.Label, Window: w}
	done, err := f.store.Exists(key, harvest.PhaseContent)
	if err != nil {
		return nil, err
	}
	log := f.logger.With(zap.String("window", w.Key()), zap.String("label", f.cfg.Label))
	if done {
		log.Debug("content checkpoint found")
		return f.store.ReadRecords(ctx, key)
	}

	slots := make([]*harvest.ArticleRecord, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxInFlight)
	for i, id := range ids {
		if id == "" {
			continue
		}
		g.Go(func() error {
			rec, err := f.fetchOne(gctx, id, log)
			if err != nil {
				return err
			}
			slots[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]harvest.ArticleRecord, 0, len(slots))
	for _, rec := range slots {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	slices.Reverse(records)

	if err := f.store.WriteRecords(ctx, key, records); err != nil {
		return nil, err
	}
	metrics.ObserveRecords(f.cfg.Label, len(records))
	log.Info("content checkpointed", zap.Int("records", len(records)), zap.Int("ids", len(ids)))
	return records, nil
}

// fetchOne returns a nil record for skipped items.
func (f *Fetcher) fetchOne(ctx context.Context, id harvest.NewsID, log *zap.Logger) (*harvest.ArticleRecord, error) {
	var rec harvest.ArticleRecord
	err := retry.Do(ctx, f.policy, "detail", func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		r, err := f.client.Detail(ctx, id)
		rec = r
		return err
	})
	if err == nil {
		return &rec, nil
	}
	if se, ok := harvest.AsStatus(err); ok {
		log.Info("skipping article", zap.String("news_id", string(id)), zap.Int("status", se.Code))
		metrics.ObserveSkip(string(harvest.PhaseContent), "status")
		return nil, nil
	}
	if errors.Is(err, harvest.ErrRetryExhausted) {
		log.Warn("giving up on article", zap.String("news_id", string(id)), zap.Error(err))
		metrics.ObserveSkip(string(harvest.PhaseContent), "retry_exhausted")
		return nil, nil
	}
	return nil, err
}
