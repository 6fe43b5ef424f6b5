package parser

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactsync/internal/contacts"
	"contactsync/internal/testutil"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"/data/Noun_People.csv", FormatTabular},
		{"/data/Noun_People.CSV", FormatTabular},
		{"/data/Noun_Idea.txt", FormatLines},
		{"/data/Noun_Idea.md", FormatUnknown},
		{"/data/Noun_Idea", FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.path))
		})
	}
}

func TestParser_Tabular(t *testing.T) {
	t.Run("maps header to values with provenance", func(t *testing.T) {
		path := writeFile(t, "Noun_People.csv", "name,contact_method,first_met\nJohn Doe,Email,Conference\n")
		p := NewParser(contacts.NewNopLogger())

		got := slices.Collect(p.Parse(path, FormatTabular))

		require.Len(t, got, 1)
		assert.Equal(t, contacts.RawRecord{
			"name":           "John Doe",
			"contact_method": "Email",
			"first_met":      "Conference",
			"source_file":    path,
		}, got[0])
	})

	t.Run("skips rows with the wrong column count", func(t *testing.T) {
		content := "name,contact_method\nAlice,Email\nBroken\nBob,Phone,extra\nCarol,Fax\n"
		path := writeFile(t, "Noun_People.csv", content)
		logger := testutil.NewRecordingLogger()
		p := NewParser(logger)

		got := slices.Collect(p.Parse(path, FormatTabular))

		require.Len(t, got, 2)
		assert.Equal(t, "Alice", got[0]["name"])
		assert.Equal(t, "Carol", got[1]["name"])
		assert.Len(t, logger.Entries("WARN"), 2)
	})

	t.Run("quoted fields keep commas and newlines", func(t *testing.T) {
		content := "name,opportunity_notes\n\"Doe, John\",\"line one\nline two\"\n"
		path := writeFile(t, "Noun_People.csv", content)
		p := NewParser(contacts.NewNopLogger())

		got := slices.Collect(p.Parse(path, FormatTabular))

		require.Len(t, got, 1)
		assert.Equal(t, "Doe, John", got[0]["name"])
		assert.Equal(t, "line one\nline two", got[0]["opportunity_notes"])
	})

	t.Run("strips byte order mark and trims header names", func(t *testing.T) {
		path := writeFile(t, "Noun_People.csv", "\ufeffname , contact_method\nAlice,Email\n")
		p := NewParser(contacts.NewNopLogger())

		got := slices.Collect(p.Parse(path, FormatTabular))

		require.Len(t, got, 1)
		assert.Equal(t, "Alice", got[0]["name"])
		assert.Equal(t, "Email", got[0]["contact_method"])
	})

	t.Run("header only yields nothing", func(t *testing.T) {
		path := writeFile(t, "Noun_People.csv", "name,contact_method\n")
		p := NewParser(contacts.NewNopLogger())

		assert.Empty(t, slices.Collect(p.Parse(path, FormatTabular)))
	})

	t.Run("empty file yields nothing", func(t *testing.T) {
		path := writeFile(t, "Noun_People.csv", "")
		p := NewParser(contacts.NewNopLogger())

		assert.Empty(t, slices.Collect(p.Parse(path, FormatTabular)))
	})

	t.Run("source_file column is overridden by provenance", func(t *testing.T) {
		path := writeFile(t, "Noun_People.csv", "name,source_file\nAlice,elsewhere.csv\n")
		p := NewParser(contacts.NewNopLogger())

		got := slices.Collect(p.Parse(path, FormatTabular))

		require.Len(t, got, 1)
		assert.Equal(t, path, got[0].SourceFile())
	})

	t.Run("invalid UTF-8 drops the whole file with a warning", func(t *testing.T) {
		path := writeFile(t, "Noun_People.csv", "name\nAlice\n\xff\xfe\nBob\n")
		logger := testutil.NewRecordingLogger()
		p := NewParser(logger)

		got := slices.Collect(p.Parse(path, FormatTabular))

		assert.Empty(t, got)
		warnings := logger.Entries("WARN")
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].String(), "path="+path)
	})
}

func TestParser_Lines(t *testing.T) {
	t.Run("one record per non-blank line", func(t *testing.T) {
		path := writeFile(t, "Noun_Places.txt", "San Francisco Office\n\n   \n  New York Office  \n")
		p := NewParser(contacts.NewNopLogger())

		got := slices.Collect(p.Parse(path, FormatLines))

		assert.Equal(t, []contacts.RawRecord{
			{"name": "San Francisco Office", "source_file": path},
			{"name": "New York Office", "source_file": path},
		}, got)
	})

	t.Run("handles CRLF and missing trailing newline", func(t *testing.T) {
		path := writeFile(t, "Noun_Thing.txt", "Widget\r\nGadget")
		p := NewParser(contacts.NewNopLogger())

		got := slices.Collect(p.Parse(path, FormatLines))

		require.Len(t, got, 2)
		assert.Equal(t, "Widget", got[0]["name"])
		assert.Equal(t, "Gadget", got[1]["name"])
	})

	t.Run("line longer than the buffer drops the whole file with a warning", func(t *testing.T) {
		path := writeFile(t, "Noun_Idea.txt", "Short\n"+strings.Repeat("x", maxLineBytes+1)+"\n")
		logger := testutil.NewRecordingLogger()
		p := NewParser(logger)

		got := slices.Collect(p.Parse(path, FormatLines))

		assert.Empty(t, got)
		assert.Len(t, logger.Entries("WARN"), 1)
	})

	t.Run("invalid UTF-8 drops the whole file with a warning", func(t *testing.T) {
		path := writeFile(t, "Noun_Idea.txt", "Alice\n\xff\xfe\nBob\n")
		logger := testutil.NewRecordingLogger()
		p := NewParser(logger)

		got := slices.Collect(p.Parse(path, FormatLines))

		assert.Empty(t, got)
		assert.Len(t, logger.Entries("WARN"), 1)
	})
}

func TestParser_Failures(t *testing.T) {
	t.Run("unknown format yields nothing", func(t *testing.T) {
		path := writeFile(t, "Noun_People.md", "# John Doe\n")
		p := NewParser(contacts.NewNopLogger())

		assert.Empty(t, slices.Collect(p.Parse(path, FormatUnknown)))
	})

	t.Run("missing file yields nothing and warns with the path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "Noun_People.csv")
		logger := testutil.NewRecordingLogger()
		p := NewParser(logger)

		assert.Empty(t, slices.Collect(p.Parse(path, FormatTabular)))

		warnings := logger.Entries("WARN")
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].String(), "path="+path)
	})
}

func TestParser_SinglePass(t *testing.T) {
	path := writeFile(t, "Noun_Places.txt", "A\nB\nC\n")
	p := NewParser(contacts.NewNopLogger())
	seq := p.Parse(path, FormatLines)

	var first []string
	for rec := range seq {
		first = append(first, rec["name"])
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"A", "B"}, first)
	assert.Empty(t, slices.Collect(seq), "sequence must not restart")
}

func TestParser_ParseFS(t *testing.T) {
	fsys := fstest.MapFS{
		"sub/Noun_Idea.txt": {Data: []byte("Rocket\n")},
	}
	p := NewParser(contacts.NewNopLogger())

	got := slices.Collect(p.ParseFS(fsys, "sub/Noun_Idea.txt", "/root/sub/Noun_Idea.txt", FormatLines))

	assert.Equal(t, []contacts.RawRecord{
		{"name": "Rocket", "source_file": "/root/sub/Noun_Idea.txt"},
	}, got)
}
