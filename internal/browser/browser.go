// Package browser discovers article identifiers by driving the portal's
// search page in headless Chrome.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/harvest"
)

// IndexPath is the portal page hosting the search form.
const IndexPath = "/v2/news/index.do"

const (
	beginInput    = "input#search-begin-date"
	endInput      = "input#search-end-date"
	searchButton  = "button.news-report-search-btn"
	pagingInput   = "input#paging_news_result"
	reopenButton  = "button#collapse-step-1"
	periodTabPath = `//a[contains(normalize-space(.), "기간")]`
	// pageCountTries mirrors how often the count element is polled before
	// giving up.
	pageCountTries = 5
)

// Config controls the browser.
type Config struct {
	BaseURL    string
	UserAgent  string
	Headless   bool
	NavTimeout time.Duration
	// PageDelay is how long to let the result list settle after paging.
	PageDelay time.Duration
	// MaxParallel bounds concurrent browser sessions; 0 means unbounded.
	MaxParallel int
	ExecPath    string
	// Proxy routes browser traffic when set.
	Proxy harvest.Proxy
}

// Browser implements harvest.BrowserDiscoverer with chromedp.
type Browser struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New creates a Browser. Chrome is launched lazily per session.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("browser: base url is required")
	}
	if cfg.MaxParallel < 0 {
		return nil, errors.New("browser: max parallel must be >= 0")
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.Proxy != "" {
		u, err := cfg.Proxy.URL()
		if err != nil {
			return nil, fmt.Errorf("browser proxy: %w", err)
		}
		opts = append(opts, chromedp.ProxyServer(u.Scheme+"://"+u.Host))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger.Named("browser"),
	}, nil
}

// Close cancels the allocator context.
func (b *Browser) Close() {
	b.allocCancel()
}

// FetchPageCount searches the whole range once and reads the page count.
func (b *Browser) FetchPageCount(ctx context.Context, sel harvest.Selection, r harvest.DateRange) (int, bool, error) {
	var (
		pages int
		ok    bool
	)
	err := b.session(ctx, sel, func(tab context.Context) error {
		var err error
		pages, ok, err = b.search(tab, r.Begin, r.End)
		return err
	})
	return pages, ok, err
}

// DiscoverIdentifiers searches day by day and pages through every result
// page. A day without a readable page count is harvest.ErrPageCount.
func (b *Browser) DiscoverIdentifiers(ctx context.Context, sel harvest.Selection, r harvest.DateRange) ([]harvest.NewsID, error) {
	var ids []harvest.NewsID
	err := b.session(ctx, sel, func(tab context.Context) error {
		for day := r.Begin; !day.After(r.End); day = day.AddDate(0, 0, 1) {
			pages, ok, err := b.search(tab, day, day)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w for %s on %s", harvest.ErrPageCount, sel.Label(), harvest.FormatDate(day))
			}
			found, err := b.collect(tab, pages)
			if err != nil {
				return fmt.Errorf("collect %s: %w", harvest.FormatDate(day), err)
			}
			b.logger.Debug("day collected",
				zap.String("day", harvest.FormatDate(day)),
				zap.Int("pages", pages),
				zap.Int("ids", len(found)),
			)
			ids = append(ids, found...)
			if err := b.run(tab, chromedp.Click(reopenButton, chromedp.ByQuery)); err != nil {
				return fmt.Errorf("reopen search form: %w", err)
			}
		}
		return nil
	})
	return ids, err
}

// session opens a tab on the search form with the selection's publishers
// checked and runs fn against it.
func (b *Browser) session(ctx context.Context, sel harvest.Selection, fn func(tab context.Context) error) error {
	if err := sel.Validate(); err != nil {
		return err
	}
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()

	tab, cancel := chromedp.NewContext(b.allocator)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	// The first Run launches the browser and must not carry a deadline.
	if err := chromedp.Run(tab); err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	steps := []chromedp.Action{
		b.networkSetupAction(),
		chromedp.Navigate(strings.TrimRight(b.cfg.BaseURL, "/") + IndexPath),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	for _, name := range sel.Names() {
		steps = append(steps, chromedp.Click(labelPath(name), chromedp.BySearch))
	}
	steps = append(steps, chromedp.Click(periodTabPath, chromedp.BySearch))
	if err := b.run(tab, steps...); err != nil {
		return fmt.Errorf("open search form: %w", err)
	}
	if err := fn(tab); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// search submits one date range and polls for the page count.
func (b *Browser) search(tab context.Context, begin, end time.Time) (int, bool, error) {
	err := b.run(tab,
		chromedp.SetValue(beginInput, harvest.FormatDate(begin), chromedp.ByQuery),
		chromedp.SetValue(endInput, harvest.FormatDate(end), chromedp.ByQuery),
		chromedp.Click(searchButton, chromedp.ByQuery),
	)
	if err != nil {
		return 0, false, fmt.Errorf("submit search: %w", err)
	}
	for try := 0; try < pageCountTries; try++ {
		html, err := b.snapshot(tab)
		if err != nil {
			return 0, false, err
		}
		pages, ok, err := ParsePageCount(html)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return pages, true, nil
		}
		if err := b.run(tab, chromedp.Sleep(b.cfg.PageDelay)); err != nil {
			return 0, false, err
		}
	}
	return 0, false, nil
}

// collect reads every result page of the current search.
func (b *Browser) collect(tab context.Context, pages int) ([]harvest.NewsID, error) {
	var ids []harvest.NewsID
	for i := 0; i < pages; i++ {
		if err := b.run(tab, chromedp.WaitVisible(NewsItemSelector, chromedp.ByQuery)); err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		html, err := b.snapshot(tab)
		if err != nil {
			return nil, err
		}
		found, err := ParseIdentifiers(html)
		if err != nil {
			return nil, err
		}
		ids = append(ids, found...)
		if i+1 == pages {
			break
		}
		err = b.run(tab,
			chromedp.SetValue(pagingInput, strconv.Itoa(i+2), chromedp.ByQuery),
			chromedp.SendKeys(pagingInput, kb.Enter, chromedp.ByQuery),
			chromedp.Sleep(b.cfg.PageDelay),
		)
		if err != nil {
			return nil, fmt.Errorf("go to page %d: %w", i+2, err)
		}
	}
	return ids, nil
}

func (b *Browser) snapshot(tab context.Context) (string, error) {
	var html string
	if err := b.run(tab, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	return html, nil
}

// run executes actions under the navigation timeout.
func (b *Browser) run(tab context.Context, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(tab, b.cfg.NavTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (b *Browser) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

// labelPath selects the publisher checkbox label by its visible text.
func labelPath(name string) string {
	return fmt.Sprintf(`//label[contains(normalize-space(.), "%s")]`, strings.ReplaceAll(name, `"`, ""))
}
