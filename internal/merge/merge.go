// Package merge reconciles a new crawl batch with a previously persisted
// result set.
package merge

import (
	"curatorscan/internal/crawl"
)

// Merge combines the previous result set with the records produced by the
// current run. For a key present in both, the new record replaces the
// previous one entirely; there is no field-level reconciliation. The second
// return value is the new-only subset: keys present in the batch but absent
// from the previous set.
//
// Merge never mutates its inputs and is idempotent: merging the same batch
// into an already-merged set changes nothing. Callers pass the batch in seed
// order, not completion order, so an in-batch key collision resolves
// deterministically (the later seed wins).
func Merge(previous crawl.ResultSet, batch []crawl.Record) (crawl.ResultSet, crawl.ResultSet) {
	merged := previous.Clone()
	if merged == nil {
		merged = make(crawl.ResultSet)
	}
	newOnly := make(crawl.ResultSet)
	for _, rec := range batch {
		if rec.Key == "" {
			continue
		}
		if _, existed := previous[rec.Key]; !existed {
			newOnly[rec.Key] = rec
		}
		merged[rec.Key] = rec
	}
	return merged, newOnly
}
