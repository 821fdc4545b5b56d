package browser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/news-harvester/internal/harvest"
)

// Selectors of the portal's rendered search page.
const (
	PageCountSelector = "div.lastNum"
	NewsItemSelector  = "div.news-item"
)

// ParsePageCount reads the data-page attribute of the first page count
// element. ok is false when the element or attribute is absent.
func ParsePageCount(html string) (pages int, ok bool, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, false, fmt.Errorf("parse result page: %w", err)
	}
	raw, exists := doc.Find(PageCountSelector).First().Attr("data-page")
	if !exists {
		return 0, false, nil
	}
	pages, err = strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || pages < 0 {
		return 0, false, fmt.Errorf("%w: data-page %q", harvest.ErrPageCount, raw)
	}
	return pages, true, nil
}

// ParseIdentifiers returns the data-id of every result item in document
// order. Items without an id are dropped.
func ParseIdentifiers(html string) ([]harvest.NewsID, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}
	var ids []harvest.NewsID
	doc.Find(NewsItemSelector).Each(func(_ int, s *goquery.Selection) {
		if id := strings.TrimSpace(s.AttrOr("data-id", "")); id != "" {
			ids = append(ids, harvest.NewsID(id))
		}
	})
	return ids, nil
}
