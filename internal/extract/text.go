package extract

import (
	"net/url"
	"regexp"
	"strings"

	"curatorscan/internal/crawl"
)

var (
	urlRe   = regexp.MustCompile(`https?://[A-Za-z0-9._~:/?#@!$&'()*+,;=%-]+`)
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	followerBadgeRe = regexp.MustCompile(`(?i)\n?\s*[\d,]+\s*(?:CURATOR|CREATOR)?\s*FOLLOWERS\b.*`)
	reviewBadgeRe   = regexp.MustCompile(`(?i)\n?\s*[\d,]+\s*(?:REVIEWS|REVIEWS POSTED|POSTED)\b.*`)
)

// socialDomains maps known social/contact services to link kinds. Matching is
// by domain suffix; everything unmatched classifies as a plain website.
var socialDomains = []struct {
	domain string
	kind   crawl.LinkKind
}{
	{"twitter.com", crawl.LinkTwitter},
	{"x.com", crawl.LinkTwitter},
	{"instagram.com", crawl.LinkInstagram},
	{"twitch.tv", crawl.LinkTwitch},
	{"discord.gg", crawl.LinkDiscord},
	{"discord.com", crawl.LinkDiscord},
	{"patreon.com", crawl.LinkPatreon},
	{"linkedin.com", crawl.LinkLinkedIn},
	{"facebook.com", crawl.LinkFacebook},
	{"t.me", crawl.LinkTelegram},
}

// classifyLink buckets a URL by its domain.
func classifyLink(raw string) crawl.LinkKind {
	host := domainOf(raw)
	for _, sd := range socialDomains {
		if host == sd.domain || strings.HasSuffix(host, "."+sd.domain) {
			return sd.kind
		}
	}
	return crawl.LinkWebsite
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
}

// scanText pulls URL and email candidates out of free text. "%40" is a
// common obfuscation for "@" in page sources and is decoded first.
func scanText(text string) (urls, emails []string) {
	if text == "" {
		return nil, nil
	}
	text = strings.ReplaceAll(text, "%40", "@")
	urls = urlRe.FindAllString(text, -1)
	for _, e := range emailRe.FindAllString(text, -1) {
		if isEmailFalsePositive(e) {
			continue
		}
		emails = append(emails, e)
	}
	return urls, emails
}

// isEmailFalsePositive drops handle-style matches from video platform URLs
// ("youtube.com/@creator" scans as an address).
func isEmailFalsePositive(email string) bool {
	low := strings.ToLower(email)
	return strings.Contains(low, "youtube") || strings.Contains(low, "youtu.be")
}

// emailFromHref extracts an address from a link target. Explicit mailto:
// always wins; otherwise only a proper email pattern in the decoded href
// counts, so platform handles are never mistaken for addresses.
func emailFromHref(href string) string {
	decoded, err := url.QueryUnescape(href)
	if err != nil {
		decoded = href
	}
	if low := strings.ToLower(decoded); strings.HasPrefix(low, "mailto:") {
		return strings.TrimSpace(decoded[len("mailto:"):])
	}
	if m := emailRe.FindString(decoded); m != "" && !isEmailFalsePositive(m) {
		return m
	}
	return ""
}

// canonicalVideoURL rewrites youtu.be and watch-parameter forms to the
// canonical https://www.youtube.com/watch?v=ID shape when a video id is
// recognizable. Other URLs pass through with fragments dropped.
func canonicalVideoURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, "youtu.be") {
		if vid := strings.Trim(u.Path, "/"); vid != "" {
			return "https://www.youtube.com/watch?v=" + vid
		}
	}
	if v := u.Query().Get("v"); v != "" {
		return "https://www.youtube.com/watch?v=" + v
	}
	u.Fragment = ""
	return u.String()
}

// resolveHref turns a possibly relative href into an absolute URL against
// the page it appeared on.
func resolveHref(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

// cleanBio strips follower/review badge noise that leaks into about-page
// text and collapses whitespace.
func cleanBio(text string) string {
	text = followerBadgeRe.ReplaceAllString(text, "")
	text = reviewBadgeRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}
