package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/api"
	"github.com/JakeFAU/news-harvester/internal/clock/system"
	"github.com/JakeFAU/news-harvester/internal/dispatcher"
	"github.com/JakeFAU/news-harvester/internal/id/uuid"
	"github.com/JakeFAU/news-harvester/internal/progress"
	"github.com/JakeFAU/news-harvester/internal/progress/sinks"
	"github.com/JakeFAU/news-harvester/internal/ratelimit"
	"github.com/JakeFAU/news-harvester/internal/worker"
)

// newCollectCmd creates the 'collect' subcommand, which runs a full harvest.
func newCollectCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Harvests articles for the configured publishers and dates",
		Long: `Validates the configured proxies, then discovers and downloads every
article of the selected publishers in the date range. Finished months are
merged into <output_dir>/<label>/<year>/<label>_<year>_<month>.jsonl and
handed to any configured sinks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd, flags)
		},
	}
	flags.bind(cmd)
	return cmd
}

func runCollect(cmd *cobra.Command, flags *runFlags) error {
	app, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := app.Config
	logger := app.Logger

	req, err := resolveRequest(cfg, flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID, err := uuid.New().NewRunID()
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("run_id", uuid.Format(runID)), zap.String("label", req.Selection.Label()))
	clk := system.New()

	status := sinks.NewStatusSink()
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), status)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	var server *api.Server
	if cfg.Server.Port > 0 {
		server = api.NewServer(status, logger)
		serveCtx, stopServer := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := server.ListenAndServe(serveCtx, ":"+strconv.Itoa(cfg.Server.Port)); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			stopServer()
			<-done
		}()
	}

	validator, err := newValidator(cfg, logger)
	if err != nil {
		return err
	}
	proxies, err := validator.Validate(ctx, candidates(cfg.Proxy))
	if err != nil {
		return fmt.Errorf("validate proxies: %w", err)
	}
	if server != nil {
		server.SetReady(true)
	}

	st, err := openStores(cfg.Paths, logger)
	if err != nil {
		return err
	}

	factory := worker.Factory{
		Selection:        req.Selection,
		Codes:            req.Codes,
		Portal:           portalConfig(cfg),
		PageSize:         cfg.Portal.PageSize,
		FallbackPageSize: cfg.Portal.FallbackPageSize,
		MaxInFlight:      cfg.Crawl.MaxInFlight,
		Rate:             ratelimit.Config{MaxRequests: cfg.Crawl.MaxRequests, Per: cfg.Crawl.Per()},
		Policy:           retryPolicy(cfg.Retry),
		Store:            st.Checkpoints,
		Events:           hub,
		Clock:            clk,
		RunID:            runID,
		Logger:           logger,
	}
	build, closeBrowsers := newBuilder(factory, browserConfig(cfg), logger)
	defer closeBrowsers()

	outputs, closeSinks, err := buildSinks(ctx, cfg.Sinks, uuid.Format(runID), st, logger)
	defer closeSinks()
	if err != nil {
		return err
	}

	d, err := dispatcher.New(dispatcher.Config{
		Label:      req.Selection.Label(),
		WindowDays: cfg.Crawl.WindowDays,
		RunID:      runID,
	}, proxies, build, st.Assembler, hub, clk, logger, outputs...)
	if err != nil {
		return err
	}

	logger.Info("harvest starting",
		zap.String("range", req.Range.String()),
		zap.Strings("codes", req.Codes),
		zap.Int("proxies", len(proxies)),
	)
	report, runErr := d.Run(ctx, req.Range)
	printReport(cmd.OutOrStdout(), report)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("harvest interrupted; rerun to resume from checkpoints")
		}
		return fmt.Errorf("harvest %s: %w", req.Range, runErr)
	}
	logger.Info("harvest finished", zap.Int("records", report.Records), zap.Int("merged", len(report.Merged)))
	return nil
}

func printReport(w io.Writer, r dispatcher.Report) {
	fmt.Fprintf(w, "windows: %d done: %d skipped: %d failed: %d records: %d\n",
		r.Windows, r.Done, r.Skipped, r.Failed, r.Records)
	for _, m := range r.Merged {
		fmt.Fprintf(w, "merged %s %s: %d records -> %s\n",
			m.Label, m.Month.Format("2006-01"), m.Count, m.Path)
	}
}
