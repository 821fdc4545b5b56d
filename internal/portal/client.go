// Package portal talks to the news portal's search and detail endpoints
// through a single egress proxy.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/metrics"
)

// Portal endpoints, relative to Config.BaseURL.
const (
	SearchPath  = "/api/news/search.do"
	DetailPath  = "/news/detailView.do"
	RefererPath = "/v2/news/index.do"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultBaseURL   = "https://www.bigkinds.or.kr"
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36"
	DefaultTimeout = 30 * time.Second
)

// Config controls how requests are issued.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Client issues portal requests through one proxy. It is safe for
// concurrent use.
type Client struct {
	cfg           Config
	proxy         harvest.Proxy
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Client bound to proxy. An empty proxy connects directly.
func New(cfg Config, proxy harvest.Proxy, logger *zap.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := newHTTPTransport()
	if proxy != "" {
		u, err := proxy.URL()
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(u)
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.MaxBodySize = 0
	c.UserAgent = cfg.UserAgent
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Client{
		cfg:           cfg,
		proxy:         proxy,
		baseCollector: c,
		logger:        logger.Named("portal").With(zap.String("proxy", proxy.Redacted())),
	}, nil
}

// Proxy returns the proxy this client routes through.
func (c *Client) Proxy() harvest.Proxy {
	return c.proxy
}

// SearchQuery selects one page of search results.
type SearchQuery struct {
	Range         harvest.DateRange
	ProviderCodes []string
	Page          int
	PageSize      int
}

// SearchResult is one page of identifiers plus the total hit count.
type SearchResult struct {
	Total int
	IDs   []harvest.NewsID
}

type searchRequest struct {
	SearchSortType string   `json:"searchSortType"`
	SortMethod     string   `json:"sortMethod"`
	StartDate      string   `json:"startDate"`
	EndDate        string   `json:"endDate"`
	ProviderCodes  []string `json:"providerCodes"`
	StartNo        string   `json:"startNo"`
	ResultNumber   string   `json:"resultNumber"`
	IsTmUsable     bool     `json:"isTmUsable"`
	IsNotTmUsable  bool     `json:"isNotTmUsable"`
}

type searchResponse struct {
	TotalCount *json.Number `json:"totalCount"`
	ResultList []struct {
		NewsID string `json:"NEWS_ID"`
	} `json:"resultList"`
}

type detailResponse struct {
	Detail *struct {
		Date    string `json:"DATE"`
		Title   string `json:"TITLE"`
		Content string `json:"CONTENT"`
	} `json:"detail"`
}

// Search fetches one page of results. Non-2xx responses return a
// *harvest.StatusError, connection failures wrap harvest.ErrTransient, and an
// unreadable body wraps harvest.ErrFatal.
func (c *Client) Search(ctx context.Context, q SearchQuery) (SearchResult, error) {
	if q.Page < 1 || q.PageSize < 1 {
		return SearchResult{}, fmt.Errorf("invalid search page %d size %d", q.Page, q.PageSize)
	}
	body, err := json.Marshal(searchRequest{
		SearchSortType: "date",
		SortMethod:     "date",
		StartDate:      harvest.FormatDate(q.Range.Begin),
		EndDate:        harvest.FormatDate(q.Range.End),
		ProviderCodes:  q.ProviderCodes,
		StartNo:        strconv.Itoa(q.Page),
		ResultNumber:   strconv.Itoa(q.PageSize),
	})
	if err != nil {
		return SearchResult{}, fmt.Errorf("encode search request: %w", err)
	}

	hdr := c.headers()
	hdr.Set("Content-Type", "application/json;charset=UTF-8")
	payload, err := c.do(ctx, "search", http.MethodPost, c.cfg.BaseURL+SearchPath, body, hdr)
	if err != nil {
		return SearchResult{}, err
	}

	var resp searchResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return SearchResult{}, harvest.Fatal(fmt.Errorf("decode search response: %w", err))
	}
	if resp.TotalCount == nil {
		return SearchResult{}, harvest.Fatal(errors.New("search response has no totalCount"))
	}
	total, err := resp.TotalCount.Int64()
	if err != nil {
		return SearchResult{}, harvest.Fatal(fmt.Errorf("parse totalCount: %w", err))
	}
	out := SearchResult{Total: int(total), IDs: make([]harvest.NewsID, 0, len(resp.ResultList))}
	for _, item := range resp.ResultList {
		out.IDs = append(out.IDs, harvest.NewsID(item.NewsID))
	}
	return out, nil
}

// Detail fetches one article.
func (c *Client) Detail(ctx context.Context, id harvest.NewsID) (harvest.ArticleRecord, error) {
	q := url.Values{}
	q.Set("docId", string(id))
	q.Set("returnCnt", "1")
	q.Set("sectionDiv", "1000")

	payload, err := c.do(ctx, "detail", http.MethodGet, c.cfg.BaseURL+DetailPath+"?"+q.Encode(), nil, c.headers())
	if err != nil {
		return harvest.ArticleRecord{}, err
	}
	var resp detailResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return harvest.ArticleRecord{}, harvest.Fatal(fmt.Errorf("decode detail %s: %w", id, err))
	}
	if resp.Detail == nil {
		return harvest.ArticleRecord{}, harvest.Fatal(fmt.Errorf("detail %s: response has no detail object", id))
	}
	return harvest.ArticleRecord{
		Date:    resp.Detail.Date,
		Title:   resp.Detail.Title,
		Content: resp.Detail.Content,
		NewsID:  string(id),
		Status:  http.StatusOK,
	}, nil
}

// Probe issues a minimal search used to decide whether the proxy is usable.
func (c *Client) Probe(ctx context.Context, day time.Time, code string) error {
	_, err := c.Search(ctx, SearchQuery{
		Range:         harvest.DateRange{Begin: day, End: day},
		ProviderCodes: []string{code},
		Page:          1,
		PageSize:      10,
	})
	return err
}

func (c *Client) headers() http.Header {
	hdr := http.Header{}
	hdr.Set("User-Agent", c.cfg.UserAgent)
	hdr.Set("Referer", c.cfg.BaseURL+RefererPath)
	hdr.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	hdr.Set("X-Requested-With", "XMLHttpRequest")
	return hdr
}

func (c *Client) do(
	ctx context.Context,
	endpoint, method, rawURL string,
	body []byte,
	hdr http.Header,
) ([]byte, error) {
	collector := c.baseCollector.Clone()
	collector.Context = ctx

	var (
		status  int
		payload []byte
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		payload = append([]byte(nil), r.Body...)
	})

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- collector.Request(method, rawURL, reader, nil, hdr)
	}()

	var err error
	select {
	case <-ctx.Done():
		metrics.ObservePortalRequest(endpoint, "canceled", time.Since(start))
		return nil, fmt.Errorf("%s canceled: %w", endpoint, ctx.Err())
	case err = <-done:
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.ObservePortalRequest(endpoint, "canceled", time.Since(start))
			return nil, fmt.Errorf("%s canceled: %w", endpoint, ctxErr)
		}
		if IsTransient(err) {
			metrics.ObservePortalRequest(endpoint, "transient", time.Since(start))
			return nil, fmt.Errorf("%s: %w: %w", endpoint, harvest.ErrTransient, err)
		}
		metrics.ObservePortalRequest(endpoint, "error", time.Since(start))
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	if status < 200 || status > 299 {
		metrics.ObservePortalRequest(endpoint, strconv.Itoa(status), time.Since(start))
		return nil, &harvest.StatusError{Code: status, URL: rawURL}
	}
	metrics.ObservePortalRequest(endpoint, "ok", time.Since(start))
	return payload, nil
}

// IsTransient reports whether err is a connection-level failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, harvest.ErrTransient) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED, syscall.EPIPE} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
	}
}
