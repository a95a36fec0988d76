// Package queue loads and deduplicates the seed targets for a run.
package queue

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"unicode"

	"curatorscan/internal/crawl"
)

// Options controls how seeds are turned into a target queue.
type Options struct {
	// URLTemplate derives a navigation URL from a bare identifier; it must
	// contain exactly one %s verb. Seeds that already are absolute http(s)
	// URLs bypass the template.
	URLTemplate string
	// Resume, when set, skips every identifier before its first occurrence
	// in first-seen order. Skipped identifiers count toward the run
	// summary, not toward failures.
	Resume string
}

// Result is the outcome of loading seeds: the deduplicated queue plus the
// malformed seeds (surfaced as invalid_target failures) and the number of
// identifiers skipped by the resume filter.
type Result struct {
	Targets []crawl.Target
	Invalid []crawl.Failure
	Skipped int
}

// LoadFile reads one identifier per line. Blank lines and lines starting
// with '#' are ignored.
func LoadFile(path string, opts Options) (Result, error) {
	seeds, err := ReadLines(path)
	if err != nil {
		return Result{}, err
	}
	return Load(seeds, opts)
}

// ReadLines returns the non-blank, non-comment lines of a seeds file, for
// callers that combine file seeds with seeds from elsewhere before loading.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seeds file %s: %w", path, err)
	}
	defer f.Close()

	var seeds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read seeds file %s: %w", path, err)
	}
	return seeds, nil
}

// Load builds the target queue from literal seed identifiers, deduplicating
// by identifier while preserving first-seen order. An empty seed list is a
// valid zero-work queue.
func Load(seeds []string, opts Options) (Result, error) {
	var res Result
	seen := make(map[string]struct{})
	for _, raw := range seeds {
		// Users sometimes paste a comma-separated list as one seed.
		for _, id := range splitSeed(raw) {
			if reason := validate(id); reason != "" {
				res.Invalid = append(res.Invalid, crawl.Failure{
					TargetID: id,
					Kind:     crawl.FailureInvalidTarget,
					Reason:   reason,
				})
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			navURL, err := targetURL(id, opts.URLTemplate)
			if err != nil {
				res.Invalid = append(res.Invalid, crawl.Failure{
					TargetID: id,
					Kind:     crawl.FailureInvalidTarget,
					Reason:   err.Error(),
				})
				continue
			}
			res.Targets = append(res.Targets, crawl.Target{ID: id, URL: navURL})
		}
	}

	if opts.Resume != "" {
		res.Targets, res.Skipped = applyResume(res.Targets, opts.Resume)
	}
	return res, nil
}

func splitSeed(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if !strings.Contains(raw, ",") {
		return []string{raw}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validate(id string) string {
	if id == "" {
		return "empty identifier"
	}
	for _, r := range id {
		if unicode.IsSpace(r) {
			return "identifier contains whitespace"
		}
		if unicode.IsControl(r) {
			return "identifier contains control characters"
		}
	}
	return ""
}

func targetURL(id, template string) (string, error) {
	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		if _, err := url.Parse(id); err != nil {
			return "", fmt.Errorf("parse seed url: %w", err)
		}
		return id, nil
	}
	if template == "" {
		return "", fmt.Errorf("no url template for bare identifier %q", id)
	}
	return fmt.Sprintf(template, id), nil
}

func applyResume(targets []crawl.Target, resume string) ([]crawl.Target, int) {
	for i, t := range targets {
		if t.ID == resume {
			return targets[i:], i
		}
	}
	return targets, 0
}
