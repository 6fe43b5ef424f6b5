// Package fs discovers contact files on disk and feeds them to the parser.
package fs

import (
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"

	"contactsync/internal/contacts"
	"contactsync/internal/parser"
)

// DefaultPrefix and DefaultCategories name the recognised input files:
// <prefix><category>.csv and <prefix><category>.txt.
const DefaultPrefix = "Noun_"

var DefaultCategories = []string{"People", "Places", "Thing", "Idea"}

var recognisedExtensions = []string{".csv", ".txt"}

// Options configures a Scanner. Zero values fall back to the defaults.
type Options struct {
	Prefix     string
	Categories []string
	Ignore     []string // extra ignore patterns, same syntax as the ignore file
}

// Scanner walks a directory tree and parses every recognised contact file.
// Matching is done on the exact, case-sensitive base name. Symlinks to
// regular files are followed; symlinked directories are not descended.
// Unreadable entries are logged and skipped.
type Scanner struct {
	parser *parser.Parser
	names  map[string]parser.Format
	ignore []string
	logger contacts.Logger
}

// NewScanner creates a Scanner that delegates file parsing to p.
func NewScanner(p *parser.Parser, opts Options, logger contacts.Logger) *Scanner {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	categories := opts.Categories
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	return &Scanner{
		parser: p,
		names:  recognisedNames(prefix, categories),
		ignore: opts.Ignore,
		logger: logger,
	}
}

// Patterns returns the recognised file names in sorted order.
func (s *Scanner) Patterns() []string {
	out := make([]string, 0, len(s.names))
	for name := range s.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Scan returns the records of every recognised file under root.
// Traversal order follows the filesystem and is not stable across runs.
func (s *Scanner) Scan(root string) iter.Seq[contacts.RawRecord] {
	return func(yield func(contacts.RawRecord) bool) {
		fsys := os.DirFS(root)
		files, records := 0, 0
		stopped := false

		s.walk(root, func(name, source string, format parser.Format) bool {
			files++
			s.logger.Debug("parsing file", "path", source, "format", format.String())
			for rec := range s.parser.ParseFS(fsys, name, source, format) {
				records++
				if !yield(rec) {
					stopped = true
					return false
				}
			}
			return true
		})

		if !stopped {
			s.logger.Info("scan complete", "root", root, "files", files, "records", records)
		}
	}
}

// MatchedFiles returns the paths of every recognised file under root.
func (s *Scanner) MatchedFiles(root string) []string {
	var paths []string
	s.walk(root, func(_, source string, _ parser.Format) bool {
		paths = append(paths, source)
		return true
	})
	return paths
}

// walk calls visit for each recognised file until visit returns false.
// name is the slash-separated path relative to root; source is the OS path.
func (s *Scanner) walk(root string, visit func(name, source string, format parser.Format) bool) {
	fsys := os.DirFS(root)

	extra, err := readIgnoreFile(fsys)
	if err != nil {
		s.warn(&contacts.ScanIOError{Path: filepath.Join(root, IgnoreFileName), Err: err})
	}
	sel, err := newSelector(s.names, alwaysIgnored, s.ignore, extra)
	if err != nil {
		s.logger.Warn("skipping malformed ignore patterns", "root", root, "error", err)
	}

	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		source := filepath.Join(root, filepath.FromSlash(p))

		if err != nil {
			s.warn(&contacts.ScanIOError{Path: source, Err: err})
			if d != nil && d.IsDir() && p != "." {
				return fs.SkipDir
			}
			return nil
		}

		if p != "." && sel.ignored(p) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		format, ok := sel.contactFile(d.Name())
		if !ok {
			return nil
		}
		if !s.isRegularFile(d, source) {
			return nil
		}
		if !visit(p, source, format) {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		s.warn(&contacts.ScanIOError{Path: root, Err: err})
	}
}

// isRegularFile reports whether d is a regular file or a symlink resolving
// to one. Directory symlinks are never followed, so the walk cannot loop.
func (s *Scanner) isRegularFile(d fs.DirEntry, source string) bool {
	if d.Type()&fs.ModeSymlink == 0 {
		return d.Type().IsRegular()
	}
	info, err := os.Stat(source)
	if err != nil {
		s.warn(&contacts.ScanIOError{Path: source, Err: err})
		return false
	}
	if !info.Mode().IsRegular() {
		s.logger.Debug("not following symlink", "path", source, "mode", info.Mode().Type().String())
		return false
	}
	return true
}

func (s *Scanner) warn(err *contacts.ScanIOError) {
	s.logger.Warn("skipping unreadable entry", "path", err.Path, "error", err.Err)
}
