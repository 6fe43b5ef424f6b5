package fs

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactsync/internal/contacts"
	"contactsync/internal/parser"
	"contactsync/internal/testutil"
)

func newTestScanner(logger contacts.Logger, opts Options) *Scanner {
	return NewScanner(parser.NewParser(logger), opts, logger)
}

func names(records []contacts.RawRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r[contacts.FieldName])
	}
	sort.Strings(out)
	return out
}

func TestScanner_Patterns(t *testing.T) {
	s := newTestScanner(contacts.NewNopLogger(), Options{})

	assert.Equal(t, []string{
		"Noun_Idea.csv", "Noun_Idea.txt",
		"Noun_People.csv", "Noun_People.txt",
		"Noun_Places.csv", "Noun_Places.txt",
		"Noun_Thing.csv", "Noun_Thing.txt",
	}, s.Patterns())
}

func TestScanner_Scan(t *testing.T) {
	t.Run("parses the documented scenario", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTree(t, root, map[string]string{
			"Noun_People.csv": "name,contact_method,first_met\nJohn Doe,Email,Conference\n",
		})
		s := newTestScanner(contacts.NewNopLogger(), Options{})

		got := slices.Collect(s.Scan(root))

		require.Len(t, got, 1)
		assert.Equal(t, contacts.RawRecord{
			"name":           "John Doe",
			"contact_method": "Email",
			"first_met":      "Conference",
			"source_file":    filepath.Join(root, "Noun_People.csv"),
		}, got[0])
	})

	t.Run("walks subdirectories and flattens all formats", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTree(t, root, map[string]string{
			"Noun_People.csv":          "name\nAlice\n",
			"offices/Noun_Places.txt":  "San Francisco Office\nNew York Office\n",
			"a/b/c/Noun_Thing.txt":     "Widget\n",
			"ideas/2024/Noun_Idea.csv": "name,campaign_notes\nRocket,Q1\n",
		})
		s := newTestScanner(contacts.NewNopLogger(), Options{})

		got := slices.Collect(s.Scan(root))

		assert.Equal(t, []string{"Alice", "New York Office", "Rocket", "San Francisco Office", "Widget"}, names(got))
		for _, r := range got {
			assert.True(t, strings.HasPrefix(r.SourceFile(), root), r.SourceFile())
		}
	})

	t.Run("ignores files that do not match exactly", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTree(t, root, map[string]string{
			"Noun_People.csv":         "name\nKept\n",
			"noun_people.csv":         "name\nWrongCase\n",
			"Noun_People.csv.bak":     "name\nBackup\n",
			"My_Noun_People.csv":      "name\nPrefixed\n",
			"Noun_Animals.txt":        "Cat\n",
			"Noun_People.md":          "Markdown\n",
			"contacts.csv":            "name\nOther\n",
			"Noun_People.csv.d/x.txt": "Nested\n",
		})
		s := newTestScanner(contacts.NewNopLogger(), Options{})

		got := slices.Collect(s.Scan(root))

		assert.Equal(t, []string{"Kept"}, names(got))
	})

	t.Run("custom prefix and categories", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTree(t, root, map[string]string{
			"Leads_Partners.txt": "Acme\n",
			"Noun_People.txt":    "Default\n",
		})
		s := newTestScanner(contacts.NewNopLogger(), Options{Prefix: "Leads_", Categories: []string{"Partners"}})

		got := slices.Collect(s.Scan(root))

		assert.Equal(t, []string{"Acme"}, names(got))
	})

	t.Run("respects ignore file and configured patterns", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTree(t, root, map[string]string{
			IgnoreFileName:            "archive\n",
			"Noun_People.txt":         "Current\n",
			"archive/Noun_People.txt": "Archived\n",
			"drafts/Noun_People.txt":  "Draft\n",
			".git/Noun_People.txt":    "Git\n",
		})
		s := newTestScanner(contacts.NewNopLogger(), Options{Ignore: []string{"drafts"}})

		got := slices.Collect(s.Scan(root))

		assert.Equal(t, []string{"Current"}, names(got))
	})

	t.Run("empty root yields nothing", func(t *testing.T) {
		s := newTestScanner(contacts.NewNopLogger(), Options{})

		assert.Empty(t, slices.Collect(s.Scan(t.TempDir())))
	})

	t.Run("missing root warns and yields nothing", func(t *testing.T) {
		logger := testutil.NewRecordingLogger()
		s := newTestScanner(logger, Options{})

		got := slices.Collect(s.Scan(filepath.Join(t.TempDir(), "missing")))

		assert.Empty(t, got)
		assert.NotEmpty(t, logger.Entries("WARN"))
	})

	t.Run("one broken file does not stop the scan", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTree(t, root, map[string]string{
			"good/Noun_People.txt": "Alice\n",
			"bad/Noun_People.txt":  "Bob\n\xff\n",
		})
		logger := testutil.NewRecordingLogger()
		s := newTestScanner(logger, Options{})

		got := slices.Collect(s.Scan(root))

		assert.Equal(t, []string{"Alice"}, names(got), "a broken file contributes no records")
		assert.Len(t, logger.Entries("WARN"), 1)
	})

	t.Run("stops walking when the consumer stops", func(t *testing.T) {
		root := t.TempDir()
		testutil.WriteTree(t, root, map[string]string{
			"a/Noun_People.txt": "A1\nA2\n",
			"b/Noun_People.txt": "B1\nB2\n",
		})
		s := newTestScanner(contacts.NewNopLogger(), Options{})

		var seen int
		for range s.Scan(root) {
			seen++
			break
		}
		assert.Equal(t, 1, seen)
	})
}

func TestScanner_Scan_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"real/Noun_People.txt":   "Alice\n",
		"shared/contacts.txt":    "Bob\n",
		"shared/Noun_Places.txt": "Carol\n",
	})
	// Directory links are not descended, so neither the loop nor the
	// second route into shared/ is walked.
	require.NoError(t, os.Symlink(root, filepath.Join(root, "real", "loop")))
	require.NoError(t, os.Symlink(filepath.Join(root, "shared"), filepath.Join(root, "Noun_Idea.csv")))
	// A recognised name linking to a regular file is parsed under its own name.
	require.NoError(t, os.Symlink(filepath.Join(root, "shared", "contacts.txt"), filepath.Join(root, "Noun_Thing.txt")))
	// A dangling link is reported and skipped.
	require.NoError(t, os.Symlink(filepath.Join(root, "missing.txt"), filepath.Join(root, "Noun_People.txt")))
	logger := testutil.NewRecordingLogger()
	s := newTestScanner(logger, Options{})

	got := slices.Collect(s.Scan(root))

	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, names(got))
	var sources []string
	for _, r := range got {
		if r[contacts.FieldName] == "Bob" {
			sources = append(sources, r.SourceFile())
		}
	}
	assert.Equal(t, []string{filepath.Join(root, "Noun_Thing.txt")}, sources)

	warnings := logger.Entries("WARN")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].String(), filepath.Join(root, "Noun_People.txt"))
}

func TestScanner_Scan_SkipsUnreadableDirectories(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"open/Noun_People.txt":   "Alice\n",
		"locked/Noun_People.txt": "Bob\n",
	})
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { os.Chmod(locked, 0755) })
	logger := testutil.NewRecordingLogger()
	s := newTestScanner(logger, Options{})

	got := slices.Collect(s.Scan(root))

	assert.Equal(t, []string{"Alice"}, names(got))
	assert.NotEmpty(t, logger.Entries("WARN"))
}

func TestScanner_MatchedFiles(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"Noun_People.csv":     "name\nAlice\n",
		"sub/Noun_Places.txt": "Office\n",
		"README.txt":          "ignored\n",
	})
	s := newTestScanner(contacts.NewNopLogger(), Options{})

	got := s.MatchedFiles(root)
	sort.Strings(got)

	assert.Equal(t, []string{
		filepath.Join(root, "Noun_People.csv"),
		filepath.Join(root, "sub", "Noun_Places.txt"),
	}, got)
}
