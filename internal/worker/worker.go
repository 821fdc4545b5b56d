// Package worker runs the two harvest phases for the windows assigned to one
// proxy.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/checkpoint"
	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/metrics"
	"github.com/JakeFAU/news-harvester/internal/progress"
)

// Discoverer collects the identifiers of one window.
type Discoverer interface {
	Discover(ctx context.Context, w harvest.Window) ([]harvest.NewsID, error)
}

// ContentFetcher retrieves the records of one window.
type ContentFetcher interface {
	Fetch(ctx context.Context, w harvest.Window, ids []harvest.NewsID) ([]harvest.ArticleRecord, error)
}

// Clock stamps events.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// Config identifies the worker.
type Config struct {
	Label string
	Slot  int
	Proxy harvest.Proxy
	RunID [16]byte
}

// Result summarizes one processed window.
type Result struct {
	Window  harvest.Window
	IDs     int
	Records int
	// Skipped is true when no network work was needed.
	Skipped bool
}

// Worker processes windows sequentially through its own fetchers.
type Worker struct {
	cfg      Config
	discover Discoverer
	content  ContentFetcher
	store    *checkpoint.Store
	events   progress.Emitter
	clock    Clock
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	cfg Config,
	discover Discoverer,
	content ContentFetcher,
	store *checkpoint.Store,
	events progress.Emitter,
	clk Clock,
	logger *zap.Logger,
) (*Worker, error) {
	if discover == nil || content == nil || store == nil || clk == nil {
		return nil, errors.New("worker: discoverer, content fetcher, store and clock are required")
	}
	if cfg.Label == "" {
		return nil, errors.New("worker: label is required")
	}
	if events == nil {
		events = progress.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		cfg:      cfg,
		discover: discover,
		content:  content,
		store:    store,
		events:   events,
		clock:    clk,
		logger: logger.Named("worker").With(
			zap.Int("worker", cfg.Slot),
			zap.String("proxy", cfg.Proxy.Redacted()),
		),
	}, nil
}

// Slot returns the worker's slot.
func (w *Worker) Slot() int {
	return w.cfg.Slot
}

// Process runs discovery then content retrieval for win. Windows whose content
// checkpoint exists are skipped without network traffic. Inverted windows are
// recorded as empty.
func (w *Worker) Process(ctx context.Context, win harvest.Window) (Result, error) {
	key := checkpoint.Key{Label: w.cfg.Label, Window: win}
	log := w.logger.With(zap.String("window", win.Key()))
	start := w.clock.Now()

	if win.Inverted() {
		log.Warn("inverted window, recording empty checkpoints")
		if err := w.recordEmpty(ctx, key); err != nil {
			return w.fail(win, start, err)
		}
		w.emit(progress.StageWindowSkip, win, 0, 0, start, "inverted window")
		metrics.ObserveWindow("skipped")
		return Result{Window: win, Skipped: true}, nil
	}

	done, err := w.store.Exists(key, harvest.PhaseContent)
	if err != nil {
		return w.fail(win, start, err)
	}
	if done {
		log.Info("window already harvested")
		w.emit(progress.StageWindowSkip, win, 0, 0, start, "checkpoint present")
		metrics.ObserveWindow("skipped")
		return Result{Window: win, Skipped: true}, nil
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	w.emit(progress.StageWindowStart, win, 0, 0, start, "")

	ids, err := w.discover.Discover(ctx, win)
	if err != nil {
		return w.fail(win, start, fmt.Errorf("discover %s: %w", win.Key(), err))
	}
	log.Info("identifiers discovered", zap.Int("ids", len(ids)))

	records, err := w.content.Fetch(ctx, win, ids)
	if err != nil {
		return w.fail(win, start, fmt.Errorf("content %s: %w", win.Key(), err))
	}

	w.emit(progress.StageWindowDone, win, len(ids), len(records), start, "")
	metrics.ObserveWindow("done")
	log.Info("window harvested",
		zap.Int("ids", len(ids)),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", w.clock.Since(start)),
	)
	return Result{Window: win, IDs: len(ids), Records: len(records)}, nil
}

func (w *Worker) recordEmpty(ctx context.Context, key checkpoint.Key) error {
	ok, err := w.store.Exists(key, harvest.PhaseIdentifiers)
	if err != nil {
		return err
	}
	if !ok {
		if err := w.store.WriteIdentifiers(ctx, key, nil); err != nil {
			return err
		}
	}
	ok, err = w.store.Exists(key, harvest.PhaseContent)
	if err != nil {
		return err
	}
	if !ok {
		return w.store.WriteRecords(ctx, key, nil)
	}
	return nil
}

func (w *Worker) fail(win harvest.Window, start time.Time, err error) (Result, error) {
	w.logger.Error("window failed", zap.String("window", win.Key()), zap.Error(err))
	w.emit(progress.StageWindowError, win, 0, 0, start, err.Error())
	metrics.ObserveWindow("failed")
	return Result{Window: win}, err
}

func (w *Worker) emit(stage progress.Stage, win harvest.Window, ids, records int, start time.Time, note string) {
	w.events.Emit(progress.Event{
		RunID:   w.cfg.RunID,
		TS:      w.clock.Now(),
		Stage:   stage,
		Label:   w.cfg.Label,
		Window:  win.Key(),
		Slot:    w.cfg.Slot,
		IDs:     int64(ids),
		Records: int64(records),
		Dur:     w.clock.Since(start),
		Note:    note,
	})
}
