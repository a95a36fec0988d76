// Package csvstore round-trips result sets through the tabular output format.
//
// The on-disk schema is one row per record, sorted by dedup key so repeated
// runs with the same inputs produce byte-identical files. Multi-valued cells
// pack their entries with ';' (and '|' inside recent items), the original
// pipeline's conventions.
package csvstore

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"curatorscan/internal/crawl"
)

// Header is the fixed column set. Readers resolve columns by name so files
// with reordered columns still load.
var Header = []string{
	"profile_key",
	"name",
	"bio",
	"links",
	"emails",
	"recent_items",
	"discovered_at",
}

const (
	listSep = ";"
	itemSep = "|"
)

// Read loads a prior result set. A missing file is a valid first run and
// yields an empty set. Leading '#' comment lines are skipped.
func Read(path string) (crawl.ResultSet, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return crawl.ResultSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open result file %s: %w", path, err)
	}
	defer f.Close()
	return decode(f, path)
}

func decode(f *os.File, path string) (crawl.ResultSet, error) {
	br := bufio.NewReader(f)
	for {
		peek, err := br.Peek(1)
		if err != nil || peek[0] != '#' {
			break
		}
		if _, err := br.ReadString('\n'); err != nil {
			break
		}
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return crawl.ResultSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	if _, ok := col["profile_key"]; !ok {
		return nil, fmt.Errorf("result file %s: missing profile_key column", path)
	}

	set := make(crawl.ResultSet)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row of %s: %w", path, err)
		}
		rec := decodeRow(row, col)
		if rec.Key == "" {
			continue
		}
		set[rec.Key] = rec
	}
	return set, nil
}

func decodeRow(row []string, col map[string]int) crawl.Record {
	cell := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	rec := crawl.Record{
		Key:    strings.TrimSpace(cell("profile_key")),
		Name:   cell("name"),
		Bio:    cell("bio"),
		Emails: splitList(cell("emails")),
	}
	for _, pair := range splitList(cell("links")) {
		kind, u, found := strings.Cut(pair, "=")
		if !found {
			rec.Links = append(rec.Links, crawl.Link{Kind: crawl.LinkWebsite, URL: pair})
			continue
		}
		rec.Links = append(rec.Links, crawl.Link{Kind: crawl.LinkKind(kind), URL: u})
	}
	for _, packed := range splitList(cell("recent_items")) {
		parts := strings.SplitN(packed, itemSep, 3)
		item := crawl.RecentItem{Title: parts[0]}
		if len(parts) > 1 {
			item.URL = parts[1]
		}
		if len(parts) > 2 {
			item.Published = parts[2]
		}
		rec.RecentItems = append(rec.RecentItems, item)
	}
	if ts := strings.TrimSpace(cell("discovered_at")); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.DiscoveredAt = parsed
		}
	}
	return rec
}

// Write persists the set atomically: rows land in a temp file in the target
// directory which is renamed over the destination, so a crash never leaves a
// partially written result visible.
func Write(path string, set crawl.ResultSet) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".curatorscan-*.csv")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := encode(tmp, set); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp output: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename output into place: %w", err)
	}
	return nil
}

func encode(w io.Writer, set crawl.ResultSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, key := range set.SortedKeys() {
		if err := cw.Write(encodeRow(set[key])); err != nil {
			return fmt.Errorf("write row %s: %w", key, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func encodeRow(rec crawl.Record) []string {
	links := make([]string, 0, len(rec.Links))
	for _, l := range rec.Links {
		links = append(links, string(l.Kind)+"="+sanitizeCell(l.URL))
	}
	items := make([]string, 0, len(rec.RecentItems))
	for _, it := range rec.RecentItems {
		items = append(items, strings.Join([]string{
			sanitizeCell(it.Title),
			sanitizeCell(it.URL),
			sanitizeCell(it.Published),
		}, itemSep))
	}
	discovered := ""
	if !rec.DiscoveredAt.IsZero() {
		discovered = rec.DiscoveredAt.UTC().Format(time.RFC3339)
	}
	return []string{
		rec.Key,
		rec.Name,
		rec.Bio,
		strings.Join(links, listSep),
		strings.Join(rec.Emails, listSep),
		strings.Join(items, listSep),
		discovered,
	}
}

// sanitizeCell strips the intra-cell delimiters from packed values.
func sanitizeCell(s string) string {
	s = strings.ReplaceAll(s, itemSep, " ")
	s = strings.ReplaceAll(s, listSep, " ")
	return strings.TrimSpace(s)
}

func splitList(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	parts := strings.Split(cell, listSep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
