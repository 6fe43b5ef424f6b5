// Package parser converts contact files into raw records.
package parser

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"contactsync/internal/contacts"
)

// Format identifies how a file's content is laid out.
type Format int

const (
	FormatUnknown Format = iota
	FormatTabular        // comma-separated with a header line
	FormatLines          // one name per line
)

func (f Format) String() string {
	switch f {
	case FormatTabular:
		return "tabular"
	case FormatLines:
		return "lines"
	default:
		return "unknown"
	}
}

// DetectFormat picks a Format from the file extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatTabular
	case ".txt":
		return FormatLines
	default:
		return FormatUnknown
	}
}

const (
	utf8BOM      = "\ufeff"
	maxLineBytes = 1 << 20
)

var errInvalidUTF8 = errors.New("invalid UTF-8")

// Parser turns a single file into a sequence of raw records.
// A file is all or nothing: a read or decode failure is logged as a warning
// and the file yields no records. Failures are never returned to the caller.
type Parser struct {
	logger contacts.Logger
}

// NewParser creates a Parser that reports skipped input to logger.
func NewParser(logger contacts.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse returns the records in the file at path.
// The file is opened when iteration starts and decoded completely in a single
// pass before the first record is yielded; the returned sequence can be
// ranged over once.
func (p *Parser) Parse(path string, format Format) iter.Seq[contacts.RawRecord] {
	return p.parse(func() (io.ReadCloser, error) { return os.Open(path) }, path, format)
}

// ParseFS is Parse for the file name inside fsys. Records carry source as
// their provenance.
func (p *Parser) ParseFS(fsys fs.FS, name, source string, format Format) iter.Seq[contacts.RawRecord] {
	return p.parse(func() (io.ReadCloser, error) { return fsys.Open(name) }, source, format)
}

func (p *Parser) parse(open func() (io.ReadCloser, error), source string, format Format) iter.Seq[contacts.RawRecord] {
	consumed := false
	return func(yield func(contacts.RawRecord) bool) {
		if consumed {
			return
		}
		consumed = true

		var read func(io.Reader, string) ([]contacts.RawRecord, error)
		switch format {
		case FormatTabular:
			read = p.readTabular
		case FormatLines:
			read = p.readLines
		default:
			p.logger.Debug("unrecognised format, skipping", "path", source)
			return
		}

		f, err := open()
		if err != nil {
			p.warn(&contacts.ParseError{Path: source, Err: err})
			return
		}
		records, err := read(f, source)
		f.Close()
		if err != nil {
			p.warn(err)
			return
		}

		for _, rec := range records {
			if !yield(rec) {
				return
			}
		}
	}
}

// readTabular returns one record per data row, keyed by the header line.
// Rows whose column count differs from the header are skipped with a warning;
// any other decode error fails the whole file.
func (p *Parser) readTabular(r io.Reader, source string) ([]contacts.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, &contacts.ParseError{Path: source, Line: 1, Err: err}
	}
	header[0] = strings.TrimPrefix(header[0], utf8BOM)
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if err := validUTF8(header); err != nil {
		return nil, &contacts.ParseError{Path: source, Line: 1, Err: err}
	}

	var records []contacts.RawRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				return nil, &contacts.ParseError{Path: source, Line: csvErr.Line, Err: csvErr.Err}
			}
			return nil, &contacts.ParseError{Path: source, Err: err}
		}

		line, _ := cr.FieldPos(0)
		if len(row) != len(header) {
			p.warn(&contacts.ParseError{
				Path: source,
				Line: line,
				Err:  fmt.Errorf("expected %d columns, got %d", len(header), len(row)),
			})
			continue
		}
		if err := validUTF8(row); err != nil {
			return nil, &contacts.ParseError{Path: source, Line: line, Err: err}
		}

		rec := make(contacts.RawRecord, len(header)+1)
		for i, key := range header {
			rec[key] = row[i]
		}
		rec[contacts.FieldSourceFile] = source
		records = append(records, rec)
	}
}

// readLines returns one record per non-blank line with the trimmed line as name.
func (p *Parser) readLines(r io.Reader, source string) ([]contacts.RawRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []contacts.RawRecord
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if line == 1 {
			text = strings.TrimPrefix(text, utf8BOM)
		}
		if !utf8.ValidString(text) {
			return nil, &contacts.ParseError{Path: source, Line: line, Err: errInvalidUTF8}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		records = append(records, contacts.RawRecord{
			contacts.FieldName:       text,
			contacts.FieldSourceFile: source,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, &contacts.ParseError{Path: source, Line: line + 1, Err: err}
	}
	return records, nil
}

func (p *Parser) warn(err error) {
	var perr *contacts.ParseError
	if errors.As(err, &perr) {
		p.logger.Warn("skipping unparseable input", "path", perr.Path, "line", perr.Line, "error", perr.Err)
		return
	}
	p.logger.Warn("skipping unparseable input", "error", err)
}

func validUTF8(fields []string) error {
	for _, f := range fields {
		if !utf8.ValidString(f) {
			return errInvalidUTF8
		}
	}
	return nil
}
