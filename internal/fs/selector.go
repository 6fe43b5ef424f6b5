package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"contactsync/internal/parser"
)

// IgnoreFileName is read from the scan root for additional ignore patterns.
const IgnoreFileName = ".contactsyncignore"

// alwaysIgnored are skipped under every root.
var alwaysIgnored = []string{".git", IgnoreFileName}

// ignoreRule is one ignore pattern. Rules containing '/' are anchored to the
// scan root and matched against the whole relative path; the rest match the
// entry's base name at any depth.
type ignoreRule struct {
	pattern  string
	anchored bool
}

// selector decides which walked entries become contact files.
// It pairs the recognised file names with the ignore rules of one root.
type selector struct {
	names map[string]parser.Format
	rules []ignoreRule
}

// recognisedNames expands prefix and categories into every accepted file name.
func recognisedNames(prefix string, categories []string) map[string]parser.Format {
	names := make(map[string]parser.Format, len(categories)*len(recognisedExtensions))
	for _, c := range categories {
		for _, ext := range recognisedExtensions {
			name := prefix + c + ext
			names[name] = parser.DetectFormat(name)
		}
	}
	return names
}

// newSelector builds a selector from raw ignore patterns.
// Blank lines and '#' comments are dropped. Malformed globs are returned as
// an error alongside a selector built from the valid rules.
func newSelector(names map[string]parser.Format, patterns ...[]string) (*selector, error) {
	sel := &selector{names: names}
	var errs []error
	for _, group := range patterns {
		for _, raw := range group {
			raw = strings.TrimSpace(raw)
			if raw == "" || strings.HasPrefix(raw, "#") {
				continue
			}
			if _, err := path.Match(raw, ""); err != nil {
				errs = append(errs, fmt.Errorf("ignore pattern %q: %w", raw, err))
				continue
			}
			sel.rules = append(sel.rules, ignoreRule{
				pattern:  raw,
				anchored: strings.Contains(raw, "/"),
			})
		}
	}
	return sel, errors.Join(errs...)
}

// ignored reports whether rel, a slash-separated path relative to the scan
// root, is excluded.
func (s *selector) ignored(rel string) bool {
	base := path.Base(rel)
	for _, r := range s.rules {
		target := base
		if r.anchored {
			target = rel
		}
		if ok, _ := path.Match(r.pattern, target); ok {
			return true
		}
	}
	return false
}

// contactFile returns the parse format for a recognised file name.
// Matching is exact and case-sensitive.
func (s *selector) contactFile(name string) (parser.Format, bool) {
	format, ok := s.names[name]
	return format, ok
}

// readIgnoreFile returns the raw lines of the ignore file at the top of fsys,
// or nil when there is none.
func readIgnoreFile(fsys fs.FS) ([]string, error) {
	f, err := fsys.Open(IgnoreFileName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
