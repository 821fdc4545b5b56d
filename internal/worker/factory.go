package worker

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/checkpoint"
	"github.com/JakeFAU/news-harvester/internal/content"
	"github.com/JakeFAU/news-harvester/internal/discovery"
	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/portal"
	"github.com/JakeFAU/news-harvester/internal/progress"
	"github.com/JakeFAU/news-harvester/internal/ratelimit"
	"github.com/JakeFAU/news-harvester/internal/retry"
)

// Factory holds what every worker of a run shares. Each Build call gets a
// fresh portal client and limiter bound to its proxy.
type Factory struct {
	Selection        harvest.Selection
	Codes            []string
	Portal           portal.Config
	PageSize         int
	FallbackPageSize int
	MaxInFlight      int
	Rate             ratelimit.Config
	Policy           retry.Policy
	// Browser switches discovery to the browser path when set.
	Browser harvest.BrowserDiscoverer
	Store   *checkpoint.Store
	Events  progress.Emitter
	Clock   Clock
	RunID   [16]byte
	Logger  *zap.Logger
}

// Build returns the worker for slot bound to proxy.
func (f Factory) Build(slot int, proxy harvest.Proxy) (*Worker, error) {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.Int("worker", slot))
	label := f.Selection.Label()

	client, err := portal.New(f.Portal, proxy, logger)
	if err != nil {
		return nil, fmt.Errorf("worker %d client: %w", slot, err)
	}
	limiter := ratelimit.New(f.Rate)

	var disc Discoverer
	if f.Browser != nil {
		disc, err = discovery.NewBrowser(f.Selection, f.Browser, f.Store, logger)
	} else {
		disc, err = discovery.New(discovery.Config{
			Label:            label,
			Codes:            f.Codes,
			PageSize:         f.PageSize,
			FallbackPageSize: f.FallbackPageSize,
			MaxInFlight:      f.MaxInFlight,
		}, client, limiter, f.Policy, f.Store, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("worker %d discovery: %w", slot, err)
	}

	fetcher, err := content.New(content.Config{Label: label, MaxInFlight: f.MaxInFlight},
		client, limiter, f.Policy, f.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("worker %d content: %w", slot, err)
	}

	return New(Config{Label: label, Slot: slot, Proxy: proxy, RunID: f.RunID},
		disc, fetcher, f.Store, f.Events, f.Clock, logger)
}
