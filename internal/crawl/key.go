package crawl

import (
	"strings"
)

// NormalizeName produces the fallback dedup key from a display name:
// case-folded with runs of whitespace collapsed to single spaces. Two
// distinct entities with identical normalized names and no stable profile
// URL collapse into one Record.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// DedupKey selects the record key: the stable profile URL when present,
// otherwise the normalized display name. Empty when neither is derivable.
func DedupKey(profileURL, name string) string {
	if u := strings.TrimSpace(profileURL); u != "" {
		return strings.TrimRight(u, "/")
	}
	return NormalizeName(name)
}
