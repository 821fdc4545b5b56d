// Package harvest defines the core types shared across the harvesting subsystems.
package harvest

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DateLayout is the wire and file-name format for calendar dates.
const DateLayout = "2006-01-02"

// Phase identifies one of the two per-window fetch phases.
type Phase string

// Supported phases.
const (
	PhaseIdentifiers Phase = "identifiers"
	PhaseContent     Phase = "content"
)

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Begin time.Time
	End   time.Time
}

// NewDateRange builds a DateRange and enforces Begin <= End.
func NewDateRange(begin, end time.Time) (DateRange, error) {
	begin, end = Day(begin), Day(end)
	if end.Before(begin) {
		return DateRange{}, fmt.Errorf("date range end %s is before begin %s", FormatDate(end), FormatDate(begin))
	}
	return DateRange{Begin: begin, End: end}, nil
}

// ParseDateRange parses two YYYY-MM-DD strings. An empty end means a single day.
func ParseDateRange(begin, end string) (DateRange, error) {
	b, err := time.Parse(DateLayout, strings.TrimSpace(begin))
	if err != nil {
		return DateRange{}, fmt.Errorf("parse begin date %q: %w", begin, err)
	}
	if strings.TrimSpace(end) == "" {
		return NewDateRange(b, b)
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return DateRange{}, fmt.Errorf("parse end date %q: %w", end, err)
	}
	return NewDateRange(b, e)
}

// Days returns the inclusive number of days in the range.
func (r DateRange) Days() int {
	return DaysBetween(r.Begin, r.End) + 1
}

func (r DateRange) String() string {
	return FormatDate(r.Begin) + "/" + FormatDate(r.End)
}

// Window is one shard of a partition plan. Windows are produced by the
// period partitioner and never mutated afterwards.
type Window struct {
	Begin time.Time
	End   time.Time
	Index int
}

// Key returns the "{begin}_{end}" identifier used by checkpoint artifacts.
func (w Window) Key() string {
	return FormatDate(w.Begin) + "_" + FormatDate(w.End)
}

// Inverted reports whether the window ends before it begins. The partition
// formula can produce such a trailing window; see period.Partition.
func (w Window) Inverted() bool {
	return w.End.Before(w.Begin)
}

// Range returns the window bounds as a DateRange without validation.
func (w Window) Range() DateRange {
	return DateRange{Begin: w.Begin, End: w.End}
}

func (w Window) String() string {
	return fmt.Sprintf("#%d %s/%s", w.Index, FormatDate(w.Begin), FormatDate(w.End))
}

// Proxy is an opaque egress descriptor, usually an http(s) proxy URL that
// may embed credentials.
type Proxy string

// ProxyState tracks a candidate through validation.
type ProxyState string

// Proxy states.
const (
	ProxyUntested    ProxyState = "untested"
	ProxyValid       ProxyState = "valid"
	ProxyBlacklisted ProxyState = "blacklisted"
)

// URL parses the descriptor.
func (p Proxy) URL() (*url.URL, error) {
	raw := strings.TrimSpace(string(p))
	if raw == "" {
		return nil, errors.New("empty proxy descriptor")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proxy %q: %w", p.Redacted(), err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy %q has no host", p.Redacted())
	}
	return u, nil
}

// Redacted returns the descriptor with any password removed so it is safe for
// logs and metric labels.
func (p Proxy) Redacted() string {
	raw := strings.TrimSpace(string(p))
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

// NewsID is an opaque article identifier returned by discovery.
type NewsID string

// ArticleRecord is the normalized unit of output.
type ArticleRecord struct {
	Date    string `json:"date"`
	Title   string `json:"title"`
	Content string `json:"content"`
	NewsID  string `json:"news_id"`
	Status  int    `json:"status"`
}

// Shard binds a window to the proxy and worker slot that will process it.
type Shard struct {
	Window Window
	Proxy  Proxy
	Slot   int
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
