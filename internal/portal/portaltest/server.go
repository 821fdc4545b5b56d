// Package portaltest provides an in-process fake of the news portal that also
// acts as the forward proxy clients are bound to.
package portaltest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/JakeFAU/news-harvester/internal/harvest"
)

// BaseURL is the portal origin clients should be configured with. It does
// not resolve; requests only arrive through the proxy.
const BaseURL = "http://portal.test"

// Drop makes a handler close the connection without answering.
const Drop = -1

// SearchCall is one observed search request.
type SearchCall struct {
	StartDate     string
	EndDate       string
	ProviderCodes []string
	Page          int
	PageSize      int
}

// SearchFunc answers a search call with a status and a JSON-encodable body.
type SearchFunc func(SearchCall) (int, any)

// DetailFunc answers a detail call.
type DetailFunc func(docID string) (int, any)

// Server is a fake portal. Handlers may be swapped between requests.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	search   SearchFunc
	detail   DetailFunc
	searches []SearchCall
	details  []string
}

// New starts a fake portal serving total articles and closes it on cleanup.
func New(t testing.TB, total int) *Server {
	t.Helper()
	s := &Server{search: Articles(total), detail: Details()}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Proxy returns the descriptor routing through this server.
func (s *Server) Proxy() harvest.Proxy {
	return harvest.Proxy(s.URL)
}

// SetSearch replaces the search handler.
func (s *Server) SetSearch(fn SearchFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = fn
}

// SetDetail replaces the detail handler.
func (s *Server) SetDetail(fn DetailFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detail = fn
}

// Searches returns the observed search calls in arrival order.
func (s *Server) Searches() []SearchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SearchCall(nil), s.searches...)
}

// Details returns the observed detail document ids in arrival order.
func (s *Server) Details() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.details...)
}

// Requests returns the total number of portal requests observed.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.searches) + len(s.details)
}

type searchBody struct {
	StartDate     string   `json:"startDate"`
	EndDate       string   `json:"endDate"`
	ProviderCodes []string `json:"providerCodes"`
	StartNo       string   `json:"startNo"`
	ResultNumber  string   `json:"resultNumber"`
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/news/search.do":
		var body searchBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		page, _ := strconv.Atoi(body.StartNo)
		size, _ := strconv.Atoi(body.ResultNumber)
		call := SearchCall{
			StartDate:     body.StartDate,
			EndDate:       body.EndDate,
			ProviderCodes: body.ProviderCodes,
			Page:          page,
			PageSize:      size,
		}
		s.mu.Lock()
		s.searches = append(s.searches, call)
		fn := s.search
		s.mu.Unlock()
		status, payload := fn(call)
		write(w, status, payload)
	case "/news/detailView.do":
		id := r.URL.Query().Get("docId")
		s.mu.Lock()
		s.details = append(s.details, id)
		fn := s.detail
		s.mu.Unlock()
		status, payload := fn(id)
		write(w, status, payload)
	default:
		http.NotFound(w, r)
	}
}

func write(w http.ResponseWriter, status int, payload any) {
	if status == Drop {
		hj, ok := w.(http.Hijacker)
		if !ok {
			http.Error(w, "hijack unsupported", http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			_ = conn.Close()
		}
		return
	}
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// ID is the identifier the fake assigns to the n-th (0-based) article.
func ID(n int) harvest.NewsID {
	return harvest.NewsID(fmt.Sprintf("01100101.%08d", n))
}

// Page returns the ids a search for page/size over total articles yields.
func Page(total, page, size int) []harvest.NewsID {
	var ids []harvest.NewsID
	for n := (page - 1) * size; n < page*size && n < total; n++ {
		ids = append(ids, ID(n))
	}
	return ids
}

// Articles answers searches from a corpus of total articles.
func Articles(total int) SearchFunc {
	return func(c SearchCall) (int, any) {
		return http.StatusOK, SearchPayload(total, Page(total, c.Page, c.PageSize))
	}
}

// SearchPayload renders a search response body.
func SearchPayload(total int, ids []harvest.NewsID) map[string]any {
	list := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		list = append(list, map[string]string{"NEWS_ID": string(id)})
	}
	return map[string]any{"totalCount": total, "resultList": list}
}

// Details answers every detail request with a synthetic article.
func Details() DetailFunc {
	return func(id string) (int, any) {
		return http.StatusOK, DetailPayload(id)
	}
}

// DetailPayload renders a detail response body for id.
func DetailPayload(id string) map[string]any {
	return map[string]any{"detail": map[string]string{
		"DATE":    "2024-01-01",
		"TITLE":   "title " + id,
		"CONTENT": "content " + id,
	}}
}
