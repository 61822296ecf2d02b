// Package extract turns rendered application pages into metadata and comment records.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/storefront-review-crawler/internal/crawler"
	"github.com/JakeFAU/storefront-review-crawler/internal/textnorm"
)

const maxRating = 5

var widthPercent = regexp.MustCompile(`width\s*:\s*(\d+)`)

// Extractor parses rendered HTML with goquery. It holds no per-page state and
// is safe for concurrent use if its IDGenerator is.
type Extractor struct {
	sel Selectors
	ids crawler.IDGenerator
}

// New builds an Extractor. Zero-valued selector fields use DefaultSelectors.
func New(sel Selectors, ids crawler.IDGenerator) *Extractor {
	return &Extractor{sel: sel.withDefaults(), ids: ids}
}

// Metadata extracts the application record and assigns it a fresh app ID.
// A missing header region or title is an ExtractionError; every other field
// degrades to its zero value.
func (e *Extractor) Metadata(html string) (crawler.ApplicationMetadata, error) {
	doc, err := parse(html)
	if err != nil {
		return crawler.ApplicationMetadata{}, err
	}

	header := doc.Find(e.sel.Header).First()
	if header.Length() == 0 {
		return crawler.ApplicationMetadata{}, crawler.Errorf(crawler.KindExtraction, "", "header region %q not found", e.sel.Header)
	}
	title := header.Find(e.sel.Title).First()
	if title.Length() == 0 {
		return crawler.ApplicationMetadata{}, crawler.Errorf(crawler.KindExtraction, "", "title %q not found", e.sel.Title)
	}

	var cubes []string
	header.Find(e.sel.InfoCube).Each(func(_ int, s *goquery.Selection) {
		cubes = append(cubes, textnorm.Normalize(s.Text()))
	})

	images := []string{}
	doc.Find(e.sel.CarouselImage).Each(func(_ int, s *goquery.Selection) {
		if src := strings.TrimSpace(s.AttrOr(e.sel.ImageAttr, "")); src != "" {
			images = append(images, src)
		}
	})

	description := textnorm.Normalize(doc.Find(e.sel.Description).First().Text())

	appID, err := e.ids.NewID()
	if err != nil {
		return crawler.ApplicationMetadata{}, fmt.Errorf("assign app id: %w", err)
	}
	return crawler.NewApplicationMetadata(appID, textnorm.Normalize(title.Text()), description, cubes, images), nil
}

// Comments extracts every comment container in document order. Missing
// sub-elements default per field; a malformed container never drops its siblings.
func (e *Extractor) Comments(html string, appID string) ([]crawler.Comment, error) {
	if appID == "" {
		return nil, crawler.Errorf(crawler.KindExtraction, "", "comments require an app id")
	}
	doc, err := parse(html)
	if err != nil {
		return nil, err
	}

	containers := doc.Find(e.sel.Comment)
	comments := make([]crawler.Comment, 0, containers.Length())
	for i := range containers.Nodes {
		s := containers.Eq(i)
		id, err := e.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("assign comment id: %w", err)
		}
		comments = append(comments, crawler.Comment{
			CommentID:   id,
			AppID:       appID,
			Username:    textnorm.Normalize(s.Find(e.sel.Username).First().Text()),
			AccountID:   s.AttrOr(e.sel.AccountAttr, ""),
			Rating:      ParseRating(s.Find(e.sel.RatingFill).First().AttrOr("style", "")),
			Comment:     textnorm.Normalize(s.Find(e.sel.Body).First().Text()),
			CommentDate: textnorm.Normalize(s.Find(e.sel.RatingContainer).First().Next().Text()),
		})
	}
	return comments, nil
}

// Links returns the application hrefs on a listing page in document order.
// Relative paths are returned as-is.
func (e *Extractor) Links(html string) ([]string, error) {
	doc, err := parse(html)
	if err != nil {
		return nil, err
	}
	var links []string
	doc.Find(e.sel.AppLink).Each(func(_ int, s *goquery.Selection) {
		if href := strings.TrimSpace(s.AttrOr("href", "")); href != "" {
			links = append(links, href)
		}
	})
	return links, nil
}

// ParseRating converts a fill style such as "width: 80%;" into a 0-5 star
// rating by floor division of the percentage by 20. Unparseable input is 0.
func ParseRating(style string) int {
	m := widthPercent.FindStringSubmatch(style)
	if m == nil {
		return 0
	}
	pct, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return min(pct/20, maxRating)
}

func parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, crawler.NewError(crawler.KindExtraction, "", fmt.Errorf("parse html: %w", err))
	}
	return doc, nil
}
