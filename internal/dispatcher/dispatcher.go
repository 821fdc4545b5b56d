// Package dispatcher runs a harvest: it partitions the range into reporting
// periods and windows, fans windows out to proxy-bound workers and merges
// each period once all of its windows succeed.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/news-harvester/internal/assemble"
	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/period"
	"github.com/JakeFAU/news-harvester/internal/progress"
	"github.com/JakeFAU/news-harvester/internal/schedule"
	"github.com/JakeFAU/news-harvester/internal/worker"
)

// Processor harvests one window.
type Processor interface {
	Process(ctx context.Context, w harvest.Window) (worker.Result, error)
}

// Builder creates the processor for a slot bound to proxy.
type Builder func(slot int, proxy harvest.Proxy) (Processor, error)

// Merger assembles a finished reporting period.
type Merger interface {
	Merged(label string, month time.Time) (bool, error)
	Merge(ctx context.Context, label string, month time.Time) (assemble.Result, error)
}

// Sink receives merged artifacts.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, res assemble.Result) error
}

// Config controls a run.
type Config struct {
	Label      string
	WindowDays int
	RunID      [16]byte
}

// Period is one reporting period and its windows.
type Period struct {
	Range   harvest.DateRange
	Windows []harvest.Window
}

// Plan splits r into calendar months and partitions each into windows.
func Plan(r harvest.DateRange, windowDays int) ([]Period, error) {
	months := period.Months(r)
	plan := make([]Period, 0, len(months))
	for _, m := range months {
		windows, err := period.Partition(m, windowDays)
		if err != nil {
			return nil, fmt.Errorf("partition %s: %w", m, err)
		}
		plan = append(plan, Period{Range: m, Windows: windows})
	}
	return plan, nil
}

// Report summarizes a run.
type Report struct {
	Windows int
	Done    int
	Skipped int
	Failed  int
	Records int
	Merged  []assemble.Result
}

// Dispatcher orchestrates workers over the usable proxies.
type Dispatcher struct {
	cfg     Config
	proxies []harvest.Proxy
	build   Builder
	merger  Merger
	sinks   []Sink
	events  progress.Emitter
	clock   worker.Clock
	logger  *zap.Logger
}

// New constructs a Dispatcher.
func New(
	cfg Config,
	proxies []harvest.Proxy,
	build Builder,
	merger Merger,
	events progress.Emitter,
	clk worker.Clock,
	logger *zap.Logger,
	sinks ...Sink,
) (*Dispatcher, error) {
	if len(proxies) == 0 {
		return nil, schedule.ErrNoProxies
	}
	if build == nil || merger == nil || clk == nil {
		return nil, errors.New("dispatcher: builder, merger and clock are required")
	}
	if cfg.Label == "" || cfg.WindowDays <= 0 {
		return nil, errors.New("dispatcher: label and a positive window size are required")
	}
	if events == nil {
		events = progress.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:     cfg,
		proxies: proxies,
		build:   build,
		merger:  merger,
		sinks:   sinks,
		events:  events,
		clock:   clk,
		logger:  logger.Named("dispatcher").With(zap.String("label", cfg.Label)),
	}, nil
}

// Run harvests r. Worker failures are collected and returned joined; a fatal
// error cancels the remaining work. Periods are merged only when every window
// succeeded.
func (d *Dispatcher) Run(ctx context.Context, r harvest.DateRange) (Report, error) {
	start := d.clock.Now()
	d.emit(progress.StageRunStart, "", start, r.String())

	report, err := d.run(ctx, r)
	if err != nil {
		d.emit(progress.StageRunError, "", start, err.Error())
		return report, err
	}
	d.emit(progress.StageRunDone, "", start, "")
	return report, nil
}

func (d *Dispatcher) run(ctx context.Context, r harvest.DateRange) (Report, error) {
	plan, err := Plan(r, d.cfg.WindowDays)
	if err != nil {
		return Report{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := make(map[int]Processor)
	var (
		report Report
		errs   []error
	)
	for _, p := range plan {
		merged, err := d.merger.Merged(d.cfg.Label, p.Range.Begin)
		if err != nil {
			return report, err
		}
		if merged {
			d.logger.Info("period already merged", zap.String("period", p.Range.String()))
			report.Windows += len(p.Windows)
			report.Skipped += len(p.Windows)
			continue
		}

		failed, err := d.runPeriod(ctx, cancel, p, workers, &report)
		errs = append(errs, err)
		if ctx.Err() != nil || harvest.IsFatal(err) {
			break
		}
		if failed > 0 {
			d.logger.Warn("period incomplete, not merging",
				zap.String("period", p.Range.String()), zap.Int("failed", failed))
			continue
		}
		if err := d.finish(ctx, p, &report); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

// runPeriod processes one period's windows in one lane per slot. A lane runs
// its windows in order so each proxy serves one window at a time.
func (d *Dispatcher) runPeriod(
	ctx context.Context,
	cancel context.CancelFunc,
	p Period,
	workers map[int]Processor,
	report *Report,
) (int, error) {
	shards, parallelism, err := schedule.Assign(p.Windows, d.proxies)
	if err != nil {
		return 0, err
	}
	lanes := make([][]harvest.Shard, parallelism)
	for _, s := range shards {
		lanes[s.Slot] = append(lanes[s.Slot], s)
	}
	for slot := range lanes {
		if _, ok := workers[slot]; ok || len(lanes[slot]) == 0 {
			continue
		}
		proc, err := d.build(slot, d.proxies[slot])
		if err != nil {
			return len(p.Windows), harvest.Fatal(fmt.Errorf("build worker %d: %w", slot, err))
		}
		workers[slot] = proc
	}

	d.logger.Info("harvesting period",
		zap.String("period", p.Range.String()),
		zap.Int("windows", len(p.Windows)),
		zap.Int("parallelism", parallelism),
	)

	var (
		mu     sync.Mutex
		errs   []error
		failed int
	)
	var g errgroup.Group
	g.SetLimit(parallelism)
	for slot, lane := range lanes {
		if len(lane) == 0 {
			continue
		}
		proc := workers[slot]
		g.Go(func() error {
			for _, shard := range lane {
				if ctx.Err() != nil {
					mu.Lock()
					failed++
					report.Windows++
					report.Failed++
					mu.Unlock()
					continue
				}
				res, err := proc.Process(ctx, shard.Window)
				mu.Lock()
				report.Windows++
				switch {
				case err != nil:
					failed++
					report.Failed++
					errs = append(errs, fmt.Errorf("window %s: %w", shard.Window.Key(), err))
					if harvest.IsFatal(err) {
						cancel()
					}
				case res.Skipped:
					report.Skipped++
				default:
					report.Done++
					report.Records += res.Records
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed, errors.Join(errs...)
}

func (d *Dispatcher) finish(ctx context.Context, p Period, report *Report) error {
	start := d.clock.Now()
	res, err := d.merger.Merge(ctx, d.cfg.Label, p.Range.Begin)
	if err != nil {
		return fmt.Errorf("merge %s: %w", p.Range, err)
	}
	report.Merged = append(report.Merged, res)
	d.emit(progress.StagePeriodMerged, res.Month.Format("2006-01"), start, res.Path)

	var errs []error
	for _, s := range d.sinks {
		if err := s.Deliver(ctx, res); err != nil {
			d.logger.Error("sink delivery failed", zap.String("sink", s.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) emit(stage progress.Stage, window string, start time.Time, note string) {
	d.events.Emit(progress.Event{
		RunID:  d.cfg.RunID,
		TS:     d.clock.Now(),
		Stage:  stage,
		Label:  d.cfg.Label,
		Window: window,
		Dur:    d.clock.Since(start),
		Note:   note,
	})
}
