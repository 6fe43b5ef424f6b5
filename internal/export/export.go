// Package export writes the CRM import file for contacts that have not been
// linked to an external record yet.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"contactsync/internal/contacts"
)

const (
	filePrefix      = "TODO_contacts_add_to_salesforce_"
	timestampLayout = "20060102_150405"

	// maxCollisions bounds the _N suffix search for a free file name.
	maxCollisions = 1000
)

// Header is the first row of every export file.
var Header = []string{"Name", "Contact Method", "First Met", "Met Location", "Opportunity Notes", "Campaign Notes"}

// Source provides the contacts to export.
type Source interface {
	ListUnexported() ([]*contacts.Contact, error)
}

// Result describes one written export file.
type Result struct {
	Path  string
	Count int
}

// Exporter writes unexported contacts to timestamped CSV files.
type Exporter struct {
	source Source
	dir    string
	clock  contacts.Clock
	logger contacts.Logger
}

// NewExporter creates an Exporter writing into dir.
func NewExporter(source Source, dir string, clock contacts.Clock, logger contacts.Logger) *Exporter {
	return &Exporter{
		source: source,
		dir:    dir,
		clock:  clock,
		logger: logger,
	}
}

// Export writes every contact without an external identifier to a new file.
// Existing export files are never overwritten, and exported contacts are not
// marked: a later export includes them again until they are linked.
func (e *Exporter) Export() (Result, error) {
	rows, err := e.source.ListUnexported()
	if err != nil {
		return Result{}, fmt.Errorf("selecting contacts for export: %w", err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating export directory: %w", err)
	}

	f, err := e.createFile()
	if err != nil {
		return Result{}, err
	}
	path := f.Name()

	if err := writeRows(f, rows); err != nil {
		f.Close()
		return Result{}, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("closing %s: %w", path, err)
	}

	e.logger.Info("exported contacts", "count", len(rows), "path", path)
	return Result{Path: path, Count: len(rows)}, nil
}

// createFile exclusively creates the export file for the current time,
// appending _1, _2, ... when an export from the same second already exists.
func (e *Exporter) createFile() (*os.File, error) {
	base := filePrefix + e.clock.Now().Format(timestampLayout)

	for n := 0; n < maxCollisions; n++ {
		name := base + ".csv"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.csv", base, n)
		}
		path := filepath.Join(e.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("creating export file: %w", err)
		}
	}
	return nil, fmt.Errorf("creating export file: no free name for %s after %d attempts", base, maxCollisions)
}

func writeRows(f *os.File, rows []*contacts.Contact) error {
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return err
	}
	for _, c := range rows {
		record := []string{
			c.Name,
			c.ContactMethod.String,
			c.FirstMet.String,
			c.MetLocation.String,
			c.OpportunityNotes.String,
			c.CampaignNotes.String,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
