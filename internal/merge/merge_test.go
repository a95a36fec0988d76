package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"curatorscan/internal/crawl"
)

func rec(key, name string) crawl.Record {
	return crawl.Record{Key: key, Name: name}
}

func TestMergeNewRecordReplacesPrevious(t *testing.T) {
	t.Parallel()

	prev := crawl.ResultSet{
		"a": {Key: "a", Name: "Old A", Bio: "previously known bio"},
	}
	merged, newOnly := Merge(prev, []crawl.Record{rec("a", "New A"), rec("c", "C1")})

	require.Len(t, merged, 2)
	require.Equal(t, "New A", merged["a"].Name)
	// Replacement is whole-record: the old bio is gone.
	require.Empty(t, merged["a"].Bio)
	require.Equal(t, "C1", merged["c"].Name)

	require.Len(t, newOnly, 1)
	require.Equal(t, "C1", newOnly["c"].Name)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	prev := crawl.ResultSet{"a": rec("a", "Old A")}
	Merge(prev, []crawl.Record{rec("a", "New A")})
	require.Equal(t, "Old A", prev["a"].Name)
}

func TestMergeIdempotence(t *testing.T) {
	t.Parallel()

	prev := crawl.ResultSet{"a": rec("a", "Old A"), "b": rec("b", "B")}
	batch := []crawl.Record{rec("a", "New A"), rec("c", "C1")}

	once, _ := Merge(prev, batch)
	twice, newOnly := Merge(once, batch)
	require.Equal(t, once, twice)
	// Re-merging an already-merged batch reports nothing as new.
	require.Empty(t, newOnly)
}

func TestMergeNewOnlySubset(t *testing.T) {
	t.Parallel()

	prev := crawl.ResultSet{"a": rec("a", "A")}
	_, newOnly := Merge(prev, []crawl.Record{rec("a", "A2"), rec("b", "B"), rec("c", "C")})

	require.Len(t, newOnly, 2)
	require.Contains(t, newOnly, "b")
	require.Contains(t, newOnly, "c")
	require.NotContains(t, newOnly, "a")
}

func TestMergeNilPrevious(t *testing.T) {
	t.Parallel()

	merged, newOnly := Merge(nil, []crawl.Record{rec("a", "A")})
	require.Len(t, merged, 1)
	require.Len(t, newOnly, 1)
}

func TestMergeSkipsEmptyKeys(t *testing.T) {
	t.Parallel()

	merged, newOnly := Merge(nil, []crawl.Record{{Name: "keyless"}})
	require.Empty(t, merged)
	require.Empty(t, newOnly)
}

func TestMergeInBatchCollisionLaterSeedWins(t *testing.T) {
	t.Parallel()

	merged, _ := Merge(nil, []crawl.Record{rec("a", "first"), rec("a", "second")})
	require.Equal(t, "second", merged["a"].Name)
}
