// Package extract implements the stateless field parsers that turn a fetched
// profile page into a Record. Everything here is pure: no network I/O, no
// clocks, no shared state.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"curatorscan/internal/crawl"
)

// maxRecentItems caps the recent-content listing per profile.
const maxRecentItems = 10

// Candidate selectors, in priority order. Steam curator and YouTube channel
// markup are both covered; the first selector that matches wins per field.
var (
	nameSelectors = []string{
		`meta[property="og:title"]`,
		`div.name span`,
		`title`,
	}
	bioSelectors = []string{
		`div.about_container div.desc p.tagline`,
		`div.about_container div.desc`,
		`div.profile_about`,
		`div.curator_about`,
		`meta[property="og:description"]`,
		`meta[name="description"]`,
	}
	recentItemSelector = strings.Join([]string{
		`a#video-title`,
		`ytd-grid-video-renderer a#thumbnail`,
		`a[href*="/watch"]`,
		`a[href*="/app/"]`,
	}, ", ")
	publishedSelector = `#metadata-line span, .published, span.video-time, div.date`
)

// Extractor parses fetched pages into Records.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract builds a Record from the page. Missing optional sections (bio,
// links, emails, recent items) yield empty values; the only hard error is a
// page from which no dedup key can be derived, which wraps
// crawl.ErrKeyUnderivable.
func (e *Extractor) Extract(page crawl.Page) (crawl.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return crawl.Record{}, fmt.Errorf("parse page %s: %w", page.URL, err)
	}

	name := extractName(doc)
	profileURL := extractProfileURL(doc, page)
	key := crawl.DedupKey(profileURL, name)
	if key == "" {
		return crawl.Record{}, fmt.Errorf("page %s: %w", page.URL, crawl.ErrKeyUnderivable)
	}

	links, emails := extractContacts(doc, page)
	return crawl.Record{
		Key:         key,
		Name:        name,
		Bio:         extractBio(doc),
		Links:       links,
		Emails:      emails,
		RecentItems: extractRecentItems(doc, page),
	}, nil
}

func extractName(doc *goquery.Document) string {
	for _, sel := range nameSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		val := s.AttrOr("content", "")
		if val == "" {
			val = s.Text()
		}
		if val = strings.TrimSpace(val); val != "" {
			return val
		}
	}
	return ""
}

// extractProfileURL derives the stable profile URL: canonical link, then
// og:url, then the page's own (post-redirect) URL.
func extractProfileURL(doc *goquery.Document, page crawl.Page) string {
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		return strings.TrimSpace(href)
	}
	if content, ok := doc.Find(`meta[property="og:url"]`).First().Attr("content"); ok && strings.TrimSpace(content) != "" {
		return strings.TrimSpace(content)
	}
	if page.FinalURL != "" {
		return page.FinalURL
	}
	return page.URL
}

func extractBio(doc *goquery.Document) string {
	for _, sel := range bioSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		val := s.AttrOr("content", "")
		if val == "" {
			val = s.Text()
		}
		if val = cleanBio(val); val != "" {
			return val
		}
	}
	return ""
}

// extractContacts walks anchors and free text for outbound links and email
// addresses. Links back to the page's own host are navigation, not contacts.
func extractContacts(doc *goquery.Document, page crawl.Page) ([]crawl.Link, []string) {
	ownHost := domainOf(pageURL(page))

	var links []crawl.Link
	var emails []string
	seenLinks := make(map[string]struct{})
	seenEmails := make(map[string]struct{})

	addLink := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		host := domainOf(raw)
		if host == "" || host == ownHost {
			return
		}
		if _, dup := seenLinks[raw]; dup {
			return
		}
		seenLinks[raw] = struct{}{}
		links = append(links, crawl.Link{Kind: classifyLink(raw), URL: raw})
	}
	addEmail := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		low := strings.ToLower(addr)
		if _, dup := seenEmails[low]; dup {
			return
		}
		seenEmails[low] = struct{}{}
		emails = append(emails, addr)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if addr := emailFromHref(href); addr != "" {
			addEmail(addr)
			return
		}
		if strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		addLink(resolveHref(pageURL(page), href))
	})

	textURLs, textEmails := scanText(doc.Text())
	for _, u := range textURLs {
		addLink(u)
	}
	for _, addr := range textEmails {
		addEmail(addr)
	}
	return links, emails
}

// extractRecentItems collects the profile's most recent content entries in
// page order, capped at maxRecentItems.
func extractRecentItems(doc *goquery.Document, page crawl.Page) []crawl.RecentItem {
	var items []crawl.RecentItem
	seen := make(map[string]struct{})

	doc.Find(recentItemSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href := s.AttrOr("href", "")
		if href == "" {
			return true
		}
		itemURL := canonicalVideoURL(resolveHref(pageURL(page), href))
		if _, dup := seen[itemURL]; dup {
			return true
		}
		title := strings.TrimSpace(s.Text())
		if title == "" {
			title = strings.TrimSpace(s.AttrOr("title", s.AttrOr("aria-label", "")))
		}
		seen[itemURL] = struct{}{}
		items = append(items, crawl.RecentItem{
			Title:     title,
			URL:       itemURL,
			Published: publishedNear(s),
		})
		return len(items) < maxRecentItems
	})
	return items
}

// publishedNear looks for a publish indicator ("3 days ago", a date badge)
// in the anchor's enclosing item container.
func publishedNear(s *goquery.Selection) string {
	container := s.Closest("ytd-grid-video-renderer, ytd-rich-item-renderer, li, article, div")
	for i := 0; i < 3 && container.Length() > 0; i++ {
		found := ""
		container.Find(publishedSelector).EachWithBreak(func(_ int, meta *goquery.Selection) bool {
			text := strings.TrimSpace(meta.Text())
			if text != "" {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
		container = container.Parent()
	}
	return ""
}

func pageURL(page crawl.Page) string {
	if page.FinalURL != "" {
		return page.FinalURL
	}
	return page.URL
}
