package queue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"curatorscan/internal/crawl"
)

const tmpl = "https://store.steampowered.com/curators/curatorsreviewing/?appid=%s"

func TestLoadDeduplicatesFirstSeen(t *testing.T) {
	t.Parallel()

	res, err := Load([]string{"111", "222", "111", "333", "222"}, Options{URLTemplate: tmpl})
	require.NoError(t, err)

	ids := make([]string, 0, len(res.Targets))
	for _, tgt := range res.Targets {
		ids = append(ids, tgt.ID)
	}
	require.Equal(t, []string{"111", "222", "333"}, ids)
	require.Empty(t, res.Invalid)
}

func TestLoadEmptyInputIsZeroWork(t *testing.T) {
	t.Parallel()

	res, err := Load(nil, Options{URLTemplate: tmpl})
	require.NoError(t, err)
	require.Empty(t, res.Targets)
	require.Empty(t, res.Invalid)
}

func TestLoadSplitsCommaSeparatedSeed(t *testing.T) {
	t.Parallel()

	res, err := Load([]string{"111, 222,333"}, Options{URLTemplate: tmpl})
	require.NoError(t, err)
	require.Len(t, res.Targets, 3)
}

func TestLoadRejectsMalformedIdentifiers(t *testing.T) {
	t.Parallel()

	res, err := Load([]string{"ok-id", "bad id", "bad\tid"}, Options{URLTemplate: tmpl})
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	require.Len(t, res.Invalid, 2)
	for _, f := range res.Invalid {
		require.Equal(t, crawl.FailureInvalidTarget, f.Kind)
	}
}

func TestLoadAbsoluteURLBypassesTemplate(t *testing.T) {
	t.Parallel()

	res, err := Load([]string{"https://www.youtube.com/@somecreator"}, Options{})
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	require.Equal(t, "https://www.youtube.com/@somecreator", res.Targets[0].URL)
}

func TestLoadBareIdentifierNeedsTemplate(t *testing.T) {
	t.Parallel()

	res, err := Load([]string{"12345"}, Options{})
	require.NoError(t, err)
	require.Empty(t, res.Targets)
	require.Len(t, res.Invalid, 1)
}

func TestResumeSkipsEarlierTargets(t *testing.T) {
	t.Parallel()

	res, err := Load([]string{"a1", "b2", "c3", "d4"}, Options{URLTemplate: tmpl, Resume: "c3"})
	require.NoError(t, err)
	require.Equal(t, 2, res.Skipped)
	require.Len(t, res.Targets, 2)
	require.Equal(t, "c3", res.Targets[0].ID)

	// Unknown resume identifier skips nothing.
	res, err = Load([]string{"a1", "b2"}, Options{URLTemplate: tmpl, Resume: "zz"})
	require.NoError(t, err)
	require.Zero(t, res.Skipped)
	require.Len(t, res.Targets, 2)
}

func TestLoadFileSkipsCommentsAndBlanks(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seeds.txt")
	content := "# seed list\n111\n\n  222  \n# trailing comment\n111\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	res, err := LoadFile(path, Options{URLTemplate: tmpl})
	require.NoError(t, err)
	require.Len(t, res.Targets, 2)
	require.Equal(t, "111", res.Targets[0].ID)
	require.Equal(t, "222", res.Targets[1].ID)
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.txt"), Options{URLTemplate: tmpl})
	require.Error(t, err)
}
