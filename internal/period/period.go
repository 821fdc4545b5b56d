// Package period splits a date range into fixed-size crawl windows and
// calendar-month reporting periods.
package period

import (
	"fmt"
	"time"

	"github.com/JakeFAU/news-harvester/internal/harvest"
)

// Partition splits r into windows of windowSize days.
//
// It emits t full windows followed by one trailing window running from the
// cursor to r.End, where t = days/windowSize - 1, or days/windowSize when the
// range begins in February. The trailing window may end before it begins
// when the full windows already cover the range; it is kept as-is so that
// shard numbering stays stable for existing checkpoints.
func Partition(r harvest.DateRange, windowSize int) ([]harvest.Window, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be > 0, got %d", windowSize)
	}
	begin, end := harvest.Day(r.Begin), harvest.Day(r.End)
	if end.Before(begin) {
		return nil, fmt.Errorf("invalid range %s", r)
	}

	totalDays := harvest.DaysBetween(begin, end) + 1
	full := totalDays/windowSize - 1
	if begin.Month() == time.February {
		full = totalDays / windowSize
	}
	if full < 0 {
		full = 0
	}

	windows := make([]harvest.Window, 0, full+1)
	cursor := begin
	for i := 0; i < full; i++ {
		windows = append(windows, harvest.Window{
			Begin: cursor,
			End:   cursor.AddDate(0, 0, windowSize-1),
			Index: i,
		})
		cursor = cursor.AddDate(0, 0, windowSize)
	}
	windows = append(windows, harvest.Window{Begin: cursor, End: end, Index: full})
	return windows, nil
}

// Months splits r into calendar months clipped to the range.
func Months(r harvest.DateRange) []harvest.DateRange {
	begin, end := harvest.Day(r.Begin), harvest.Day(r.End)
	var out []harvest.DateRange
	for cursor := begin; !cursor.After(end); {
		first := time.Date(cursor.Year(), cursor.Month(), 1, 0, 0, 0, 0, time.UTC)
		last := first.AddDate(0, 1, -1)
		if last.After(end) {
			last = end
		}
		out = append(out, harvest.DateRange{Begin: cursor, End: last})
		cursor = last.AddDate(0, 0, 1)
	}
	return out
}

// Month returns the calendar month containing t.
func Month(t time.Time) harvest.DateRange {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return harvest.DateRange{Begin: first, End: first.AddDate(0, 1, -1)}
}
