// Package webpage reads video metadata from the HTML of the watch page:
// Open Graph tags first, then schema.org markup, then <title>.
package webpage

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ytdownloader/internal/core/domain"
	"ytdownloader/internal/core/ports"
)

// titleSuffixes are stripped from <title> fallbacks.
var titleSuffixes = []string{" - YouTube", " | TikTok", " on Vimeo"}

// Fetcher implements ports.MetadataFetcher by scraping the page.
type Fetcher struct {
	dl ports.Downloader
}

// NewFetcher creates a Fetcher that loads pages through dl.
func NewFetcher(dl ports.Downloader) *Fetcher {
	return &Fetcher{dl: dl}
}

// FetchInfo downloads and parses videoURL.
func (f *Fetcher) FetchInfo(ctx context.Context, videoURL string) (*domain.VideoInfo, error) {
	body, err := f.dl.Download(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	vi := Parse(doc)
	if vi.Title == "" {
		return nil, fmt.Errorf("no title found on %s", videoURL)
	}
	return vi, nil
}

// Parse extracts metadata from a parsed page.
func Parse(doc *goquery.Document) *domain.VideoInfo {
	vi := &domain.VideoInfo{
		Title: firstNonEmpty(
			metaContent(doc, `meta[property="og:title"]`),
			metaContent(doc, `meta[name="title"]`),
			trimTitle(doc.Find("title").First().Text()),
		),
		Author: firstNonEmpty(
			attr(doc, `span[itemprop="author"] link[itemprop="name"]`, "content"),
			metaContent(doc, `meta[name="author"]`),
			attr(doc, `link[itemprop="name"]`, "content"),
			metaContent(doc, `meta[property="og:site_name"]`),
		),
		ID: firstNonEmpty(
			metaContent(doc, `meta[itemprop="identifier"]`),
			metaContent(doc, `meta[itemprop="videoId"]`),
		),
	}
	if h := metaContent(doc, `meta[property="og:video:height"]`); h != "" {
		vi.Resolution = h + "p"
	}
	return vi
}

func metaContent(doc *goquery.Document, sel string) string {
	return attr(doc, sel, "content")
}

func attr(doc *goquery.Document, sel, name string) string {
	v, _ := doc.Find(sel).First().Attr(name)
	return strings.TrimSpace(v)
}

func trimTitle(s string) string {
	s = strings.TrimSpace(s)
	for _, suf := range titleSuffixes {
		s = strings.TrimSuffix(s, suf)
	}
	return strings.TrimSpace(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
