// Package crawl defines core types shared across subsystems.
package crawl

import (
	"sort"
	"time"
)

// Target is a single seed identifier plus its derived navigation URL.
// Identity is the identifier value; targets are immutable once enqueued.
type Target struct {
	ID  string
	URL string
}

// Page is the raw result of navigating to a target.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
}

// ContentLength reports the body size in bytes.
func (p Page) ContentLength() int {
	return len(p.Body)
}

// LinkKind labels a social or contact link by the service it points at.
type LinkKind string

// Link kinds recognized by the extraction pipeline. Anything that does not
// match a known social domain is classified as a plain website.
const (
	LinkTwitter   LinkKind = "twitter"
	LinkInstagram LinkKind = "instagram"
	LinkTwitch    LinkKind = "twitch"
	LinkDiscord   LinkKind = "discord"
	LinkPatreon   LinkKind = "patreon"
	LinkLinkedIn  LinkKind = "linkedin"
	LinkFacebook  LinkKind = "facebook"
	LinkTelegram  LinkKind = "telegram"
	LinkWebsite   LinkKind = "website"
)

// Link is one outbound social/contact link found on a profile page.
type Link struct {
	Kind LinkKind
	URL  string
}

// RecentItem is one entry from the profile's most-recent content listing.
type RecentItem struct {
	Title     string
	URL       string
	Published string
}

// Record is the extracted profile. Every field except Key is optional;
// absence yields the zero value, never an error.
type Record struct {
	// Key is the dedup key: the stable profile URL when one could be
	// derived, otherwise the normalized display name.
	Key          string
	Name         string
	Bio          string
	Links        []Link
	Emails       []string
	RecentItems  []RecentItem
	DiscoveredAt time.Time
}

// ResultSet maps dedup keys to Records. Keys are unique; merge semantics are
// defined by the merge package.
type ResultSet map[string]Record

// Clone returns a shallow copy of the set.
func (rs ResultSet) Clone() ResultSet {
	out := make(ResultSet, len(rs))
	for k, v := range rs {
		out[k] = v
	}
	return out
}

// SortedKeys returns the dedup keys in lexicographic order. Serialization
// uses this order so output is independent of crawl completion order.
func (rs ResultSet) SortedKeys() []string {
	keys := make([]string, 0, len(rs))
	for k := range rs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Failure records a target that did not produce a Record.
type Failure struct {
	TargetID string
	Attempts int
	Kind     FailureKind
	Reason   string
}

// RunSummary is produced once per run and consumed by the observer.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	Elapsed   time.Duration
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
	Failures  []Failure
}
