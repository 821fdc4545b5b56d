package cmd

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/assemble"
	"github.com/JakeFAU/news-harvester/internal/browser"
	"github.com/JakeFAU/news-harvester/internal/checkpoint"
	"github.com/JakeFAU/news-harvester/internal/config"
	"github.com/JakeFAU/news-harvester/internal/dispatcher"
	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/portal"
	"github.com/JakeFAU/news-harvester/internal/proxy"
	pubsubpublisher "github.com/JakeFAU/news-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/news-harvester/internal/retry"
	"github.com/JakeFAU/news-harvester/internal/storage/gcs"
	"github.com/JakeFAU/news-harvester/internal/storage/local"
	"github.com/JakeFAU/news-harvester/internal/storage/postgres"
	"github.com/JakeFAU/news-harvester/internal/worker"
)

// runFlags override the run section of the config file.
type runFlags struct {
	begin string
	end   string
	press []string
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.begin, "begin", "", "first day to harvest (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "last day to harvest, inclusive (YYYY-MM-DD); defaults to --begin")
	cmd.Flags().StringSliceVar(&f.press, "press", nil, "publisher name; repeat for a batch")
}

func (f *runFlags) apply(run config.RunConfig) config.RunConfig {
	switch {
	case f.begin != "":
		// A new begin without an end means a single day.
		run.Begin, run.End = f.begin, f.end
	case f.end != "":
		run.End = f.end
	}
	if len(f.press) > 0 {
		run.Press = f.press
	}
	return run
}

// request is a resolved harvest request.
type request struct {
	Range     harvest.DateRange
	Selection harvest.Selection
	Codes     []string
}

func resolveRequest(cfg config.Config, flags *runFlags) (request, error) {
	run := flags.apply(cfg.Run)
	r, err := run.Range()
	if err != nil {
		return request{}, err
	}
	sel, err := run.Selection()
	if err != nil {
		return request{}, err
	}
	table, err := portal.LoadSourceCodes(cfg.Paths.PressCodes)
	if err != nil {
		return request{}, err
	}
	codes, err := table.Resolve(sel)
	if err != nil {
		return request{}, err
	}
	return request{Range: r, Selection: sel, Codes: codes}, nil
}

func portalConfig(cfg config.Config) portal.Config {
	return portal.Config{
		BaseURL:   cfg.Portal.BaseURL,
		UserAgent: cfg.Portal.UserAgent,
		Timeout:   cfg.Portal.Timeout,
	}
}

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.NewExponential(cfg.MaxAttempts, cfg.BackoffInitial, cfg.BackoffMax)
}

func candidates(cfg config.ProxyConfig) []harvest.Proxy {
	out := make([]harvest.Proxy, 0, len(cfg.Candidates))
	for _, c := range cfg.Candidates {
		out = append(out, harvest.Proxy(c))
	}
	return out
}

func newValidator(cfg config.Config, logger *zap.Logger) (*proxy.Validator, error) {
	blacklist, err := proxy.NewBlacklist(cfg.Proxy.BlacklistFile, cfg.Proxy.LockTTL)
	if err != nil {
		return nil, err
	}
	day, err := cfg.Proxy.ProbeDay()
	if err != nil {
		return nil, err
	}
	prober := proxy.PortalProber{
		Config: portalConfig(cfg),
		Day:    day,
		Code:   cfg.Proxy.ProbeCode,
		Logger: logger,
	}
	return proxy.NewValidator(blacklist, prober, logger), nil
}

// stores bundles the on-disk layout of a harvest.
type stores struct {
	Checkpoints *checkpoint.Store
	Output      *local.BlobStore
	Assembler   *assemble.Assembler
}

func openStores(paths config.PathsConfig, logger *zap.Logger) (stores, error) {
	state, err := local.New(local.Config{BaseDir: paths.StateDir})
	if err != nil {
		return stores{}, fmt.Errorf("state dir: %w", err)
	}
	output, err := local.New(local.Config{BaseDir: paths.OutputDir})
	if err != nil {
		return stores{}, fmt.Errorf("output dir: %w", err)
	}
	cp, err := checkpoint.New(state, output)
	if err != nil {
		return stores{}, err
	}
	asm, err := assemble.New(output, logger)
	if err != nil {
		return stores{}, err
	}
	return stores{Checkpoints: cp, Output: output, Assembler: asm}, nil
}

// newBuilder adapts the worker factory to the dispatcher. In browser mode
// every slot gets its own browser routed through the slot's proxy. The
// returned func closes those browsers.
func newBuilder(f worker.Factory, browserCfg *browser.Config, logger *zap.Logger) (dispatcher.Builder, func()) {
	var browsers []*browser.Browser
	build := func(slot int, p harvest.Proxy) (dispatcher.Processor, error) {
		fb := f
		if browserCfg != nil {
			bc := *browserCfg
			bc.Proxy = p
			b, err := browser.New(bc, logger.With(zap.Int("worker", slot)))
			if err != nil {
				return nil, err
			}
			browsers = append(browsers, b)
			fb.Browser = b
		}
		w, err := fb.Build(slot, p)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	closeAll := func() {
		for _, b := range browsers {
			b.Close()
		}
	}
	return build, closeAll
}

func browserConfig(cfg config.Config) *browser.Config {
	if cfg.Crawl.Discovery != "browser" {
		return nil
	}
	return &browser.Config{
		BaseURL:     cfg.Portal.BaseURL,
		UserAgent:   cfg.Portal.UserAgent,
		Headless:    cfg.Browser.Headless,
		NavTimeout:  cfg.Browser.NavTimeout,
		MaxParallel: cfg.Crawl.MaxInFlight,
		ExecPath:    cfg.Browser.ExecPath,
	}
}

// buildSinks opens every configured destination for merged periods. The
// returned func releases their clients.
func buildSinks(
	ctx context.Context,
	cfg config.SinksConfig,
	runID string,
	st stores,
	logger *zap.Logger,
) ([]dispatcher.Sink, func(), error) {
	var (
		sinks   []dispatcher.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, closeAll, fmt.Errorf("gcs client: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.GCSPrefix})
		if err != nil {
			return nil, closeAll, err
		}
		archive, err := gcs.NewArchive(store, st.Output, logger)
		if err != nil {
			return nil, closeAll, err
		}
		sinks = append(sinks, archive)
	}

	if cfg.PubSubTopic != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSubProject)
		if err != nil {
			return nil, closeAll, fmt.Errorf("pubsub client: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		pub, err := pubsubpublisher.New(client.Topic(cfg.PubSubTopic), runID, logger)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, pub.Close)
		sinks = append(sinks, pub)
	}

	if cfg.PostgresDSN != "" {
		articles, err := postgres.NewArticleStore(ctx, postgres.Config{
			DSN:   cfg.PostgresDSN,
			Table: cfg.PostgresTable,
		}, st.Assembler, logger)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, articles.Close)
		sinks = append(sinks, articles)
	}

	return sinks, closeAll, nil
}
