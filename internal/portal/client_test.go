package portal

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/portal/portaltest"
)

func newClient(t *testing.T, proxy harvest.Proxy) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: portaltest.BaseURL, Timeout: 2 * time.Second}, proxy, nil)
	require.NoError(t, err)
	return c
}

func dateRange(t *testing.T) harvest.DateRange {
	t.Helper()
	r, err := harvest.ParseDateRange("2024-01-01", "2024-01-10")
	require.NoError(t, err)
	return r
}

func TestSearchThroughProxy(t *testing.T) {
	t.Parallel()

	srv := portaltest.New(t, 250)
	c := newClient(t, srv.Proxy())

	res, err := c.Search(context.Background(), SearchQuery{
		Range:         dateRange(t),
		ProviderCodes: []string{"01100101"},
		Page:          3,
		PageSize:      100,
	})
	require.NoError(t, err)
	assert.Equal(t, 250, res.Total)
	assert.Equal(t, portaltest.Page(250, 3, 100), res.IDs)

	calls := srv.Searches()
	require.Len(t, calls, 1)
	assert.Equal(t, portaltest.SearchCall{
		StartDate:     "2024-01-01",
		EndDate:       "2024-01-10",
		ProviderCodes: []string{"01100101"},
		Page:          3,
		PageSize:      100,
	}, calls[0])
}

func TestSearchStatusError(t *testing.T) {
	t.Parallel()

	srv := portaltest.New(t, 0)
	srv.SetSearch(func(portaltest.SearchCall) (int, any) { return http.StatusInternalServerError, nil })
	c := newClient(t, srv.Proxy())

	_, err := c.Search(context.Background(), SearchQuery{Range: dateRange(t), Page: 1, PageSize: 10})
	se, ok := harvest.AsStatus(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.NotErrorIs(t, err, harvest.ErrTransient)
}

func TestSearchMalformedBodyIsFatal(t *testing.T) {
	t.Parallel()

	srv := portaltest.New(t, 0)
	srv.SetSearch(func(portaltest.SearchCall) (int, any) { return http.StatusOK, map[string]any{"hits": 1} })
	c := newClient(t, srv.Proxy())

	_, err := c.Search(context.Background(), SearchQuery{Range: dateRange(t), Page: 1, PageSize: 10})
	require.ErrorIs(t, err, harvest.ErrFatal)
}

func TestDroppedConnectionIsTransient(t *testing.T) {
	t.Parallel()

	srv := portaltest.New(t, 10)
	srv.SetSearch(func(portaltest.SearchCall) (int, any) { return portaltest.Drop, nil })
	c := newClient(t, srv.Proxy())

	_, err := c.Search(context.Background(), SearchQuery{Range: dateRange(t), Page: 1, PageSize: 10})
	require.ErrorIs(t, err, harvest.ErrTransient)
}

func TestDeadProxyIsTransient(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := newClient(t, harvest.Proxy("http://"+addr))
	err = c.Probe(context.Background(), time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC), "02100601")
	require.ErrorIs(t, err, harvest.ErrTransient)
}

func TestDetail(t *testing.T) {
	t.Parallel()

	srv := portaltest.New(t, 0)
	c := newClient(t, srv.Proxy())

	rec, err := c.Detail(context.Background(), "01100101.1")
	require.NoError(t, err)
	assert.Equal(t, harvest.ArticleRecord{
		Date:    "2024-01-01",
		Title:   "title 01100101.1",
		Content: "content 01100101.1",
		NewsID:  "01100101.1",
		Status:  http.StatusOK,
	}, rec)
	assert.Equal(t, []string{"01100101.1"}, srv.Details())
}

func TestDetailNotFound(t *testing.T) {
	t.Parallel()

	srv := portaltest.New(t, 0)
	srv.SetDetail(func(string) (int, any) { return http.StatusNotFound, nil })
	c := newClient(t, srv.Proxy())

	_, err := c.Detail(context.Background(), "x")
	se, ok := harvest.AsStatus(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	srv := portaltest.New(t, 0)
	c := newClient(t, srv.Proxy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Detail(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, harvest.ErrTransient)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(&harvest.StatusError{Code: 404}))
	assert.True(t, IsTransient(&net.OpError{Op: "dial", Err: &net.DNSError{}}))
}
