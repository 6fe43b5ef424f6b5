// Package contacts holds the domain types, collaborator interfaces and error
// taxonomy shared by the ingestion pipeline.
package contacts

import (
	"database/sql"
	"strings"
	"time"
)

// Field names recognised in parsed records. Tabular headers are matched
// against these exactly.
const (
	FieldName             = "name"
	FieldContactMethod    = "contact_method"
	FieldFirstMet         = "first_met"
	FieldMetLocation      = "met_location"
	FieldOpportunityNotes = "opportunity_notes"
	FieldCampaignNotes    = "campaign_notes"
	FieldSourceFile       = "source_file"
)

// UnknownName is stored when a record carries no usable name.
const UnknownName = "Unknown"

// Contact is a person or entity known to the store.
type Contact struct {
	ID               int64          `db:"id"`
	Name             string         `db:"name"`
	ExternalID       sql.NullString `db:"external_id"` // CRM identifier, NULL until imported
	ContactMethod    sql.NullString `db:"contact_method"`
	FirstMet         sql.NullString `db:"first_met"`
	MetLocation      sql.NullString `db:"met_location"`
	OpportunityNotes sql.NullString `db:"opportunity_notes"`
	CampaignNotes    sql.NullString `db:"campaign_notes"`
	LastUpdated      time.Time      `db:"last_updated"`
}

// Interaction is a timestamped event logged against a contact.
type Interaction struct {
	ID        int64     `db:"id"`
	ContactID int64     `db:"contact_id"`
	Date      time.Time `db:"interaction_date"`
	Kind      string    `db:"interaction_type"`
	Notes     string    `db:"notes"`
}

// RawRecord is a parsed, not yet persisted mapping of field name to value.
// It always carries the source_file provenance field.
type RawRecord map[string]string

// SourceFile returns the path of the file the record was parsed from.
func (r RawRecord) SourceFile() string {
	return r[FieldSourceFile]
}

// ContactFields is the typed field set written by Store.Upsert.
// Optional fields are NULL when the source record did not carry them.
type ContactFields struct {
	Name             string
	ExternalID       sql.NullString
	ContactMethod    sql.NullString
	FirstMet         sql.NullString
	MetLocation      sql.NullString
	OpportunityNotes sql.NullString
	CampaignNotes    sql.NullString
}

// FieldsFromRecord maps a raw record onto ContactFields.
// The name is kept verbatim; a missing or whitespace-only name becomes
// UnknownName. Optional fields present in the record are kept verbatim,
// including empty strings; absent ones stay NULL. An external_id column in a
// source file is ignored: the CRM link is only set through Store.SetExternalID,
// so re-ingesting the same file never collides with an earlier row.
func FieldsFromRecord(r RawRecord) ContactFields {
	name := r[FieldName]
	if strings.TrimSpace(name) == "" {
		name = UnknownName
	}

	return ContactFields{
		Name:             name,
		ContactMethod:    lookup(r, FieldContactMethod),
		FirstMet:         lookup(r, FieldFirstMet),
		MetLocation:      lookup(r, FieldMetLocation),
		OpportunityNotes: lookup(r, FieldOpportunityNotes),
		CampaignNotes:    lookup(r, FieldCampaignNotes),
	}
}

func lookup(r RawRecord, key string) sql.NullString {
	v, ok := r[key]
	if !ok {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// ContactQuery selects contacts by exactly one key.
type ContactQuery struct {
	Name       string
	ExternalID string
}

// Sync run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// SyncRun records one pipeline cycle.
type SyncRun struct {
	ID               int64          `db:"id"`
	RunID            string         `db:"run_id"`
	StartedAt        time.Time      `db:"started_at"`
	FinishedAt       sql.NullTime   `db:"finished_at"`
	Status           string         `db:"status"`
	ContactsFound    int64          `db:"contacts_found"`
	ContactsExported int64          `db:"contacts_exported"`
	ExportPath       sql.NullString `db:"export_path"`
	Error            sql.NullString `db:"error"`
}

// SyncRunResult carries the outcome written by Store.FinishSyncRun.
type SyncRunResult struct {
	Status           string
	ContactsFound    int
	ContactsExported int
	ExportPath       string
	Err              error
}
