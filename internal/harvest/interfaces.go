package harvest

import "context"

// BrowserDiscoverer finds identifiers by driving the portal's search page in
// a real browser, for when the JSON search endpoint is unusable.
type BrowserDiscoverer interface {
	// DiscoverIdentifiers returns every identifier listed for sel within r.
	DiscoverIdentifiers(ctx context.Context, sel Selection, r DateRange) ([]NewsID, error)
	// FetchPageCount returns the number of result pages. ok is false when the
	// page count element is missing.
	FetchPageCount(ctx context.Context, sel Selection, r DateRange) (pages int, ok bool, err error)
}
