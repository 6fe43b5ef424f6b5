package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"contactsync/internal/contacts"
	"contactsync/internal/database/migrations"
)

const (
	contactsTable     = "contacts"
	interactionsTable = "interaction_log"
	syncRunsTable     = "sync_runs"
)

// SQLiteStore implements contacts.Store using SQLite.
type SQLiteStore struct {
	db     *sqlx.DB
	path   string
	clock  contacts.Clock
	logger contacts.Logger

	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore opens the database at path and applies pending migrations.
// path can be a file path or ":memory:" for an in-memory database.
// A nil clock or logger falls back to the real clock and a no-op logger.
func NewSQLiteStore(path string, clock contacts.Clock, logger contacts.Logger) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	if clock == nil {
		clock = contacts.RealClock{}
	}
	if logger == nil {
		logger = contacts.NewNopLogger()
	}

	return &SQLiteStore{
		db:     db,
		path:   path,
		clock:  clock,
		logger: logger,
	}, nil
}

// OpenConnection opens and configures a SQLite connection.
// The pool is limited to one connection: the store is the only writer, and an
// in-memory database only exists on the connection that created it.
func OpenConnection(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// SQLite leaves foreign keys off unless asked.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Contact operations

func (s *SQLiteStore) Upsert(fields contacts.ContactFields) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	name := strings.TrimSpace(fields.Name)
	if name == "" {
		fields.Name = contacts.UnknownName
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto(contactsTable).
		Cols("name", "external_id", "contact_method", "first_met", "met_location",
			"opportunity_notes", "campaign_notes", "last_updated").
		Values(fields.Name, fields.ExternalID, fields.ContactMethod, fields.FirstMet, fields.MetLocation,
			fields.OpportunityNotes, fields.CampaignNotes, s.now())
	query, args := ib.Build()

	var id int64
	err := s.withTx("inserting contact", func(tx *sqlx.Tx) error {
		res, err := tx.Exec(query, args...)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("contact stored", "id", id, "name", fields.Name)
	return id, nil
}

func (s *SQLiteStore) Find(q contacts.ContactQuery) ([]*contacts.Contact, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("*").From(contactsTable)
	switch {
	case q.Name != "" && q.ExternalID == "":
		sb.Where(sb.Equal("name", q.Name))
	case q.ExternalID != "" && q.Name == "":
		sb.Where(sb.Equal("external_id", q.ExternalID))
	default:
		return nil, contacts.ErrInvalidQuery
	}
	sb.OrderBy("id").Asc()

	return s.selectContacts(sb, "finding contacts")
}

func (s *SQLiteStore) FindByID(id int64) (*contacts.Contact, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.getContact(s.db, id)
}

func (s *SQLiteStore) SetExternalID(contactID int64, externalID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return fmt.Errorf("external id must not be empty")
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update(contactsTable).
		Set(ub.Assign("external_id", externalID), ub.Assign("last_updated", s.now())).
		Where(ub.Equal("id", contactID))
	query, args := ub.Build()

	var missing bool
	err := s.withTx("linking external id", func(tx *sqlx.Tx) error {
		res, err := tx.Exec(query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		missing = n == 0
		return nil
	})
	if err != nil {
		return err
	}
	if missing {
		return &contacts.ReferentialError{ContactID: contactID}
	}
	return nil
}

func (s *SQLiteStore) ListUnexported() ([]*contacts.Contact, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("*").From(contactsTable).
		Where(sb.IsNull("external_id")).
		OrderBy("id").Asc()

	return s.selectContacts(sb, "listing unexported contacts")
}

func (s *SQLiteStore) selectContacts(sb *sqlbuilder.SelectBuilder, op string) ([]*contacts.Contact, error) {
	query, args := sb.Build()

	var result []*contacts.Contact
	if err := s.db.Select(&result, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func (s *SQLiteStore) getContact(q sqlx.Queryer, id int64) (*contacts.Contact, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("*").From(contactsTable).Where(sb.Equal("id", id))
	query, args := sb.Build()

	var c contacts.Contact
	if err := sqlx.Get(q, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding contact %d: %w", id, err)
	}
	return &c, nil
}

// Interaction operations

func (s *SQLiteStore) LogInteraction(contactID int64, kind, notes string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto(interactionsTable).
		Cols("contact_id", "interaction_date", "interaction_type", "notes").
		Values(contactID, s.now(), kind, notes)
	query, args := ib.Build()

	var missing bool
	err := s.withTx("logging interaction", func(tx *sqlx.Tx) error {
		c, err := s.getContact(tx, contactID)
		if err != nil {
			return err
		}
		if c == nil {
			missing = true
			return nil
		}
		_, err = tx.Exec(query, args...)
		if isForeignKeyViolation(err) {
			missing = true
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	if missing {
		return &contacts.ReferentialError{ContactID: contactID}
	}
	return nil
}

func (s *SQLiteStore) ListInteractions(contactID int64) ([]*contacts.Interaction, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("*").From(interactionsTable).
		Where(sb.Equal("contact_id", contactID)).
		OrderBy("interaction_date", "id").Asc()
	query, args := sb.Build()

	var result []*contacts.Interaction
	if err := s.db.Select(&result, query, args...); err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	return result, nil
}

// Sync run tracking

func (s *SQLiteStore) StartSyncRun(runID string) (*contacts.SyncRun, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	startedAt := s.now()
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto(syncRunsTable).
		Cols("run_id", "started_at", "status").
		Values(runID, startedAt, contacts.RunStatusRunning)
	query, args := ib.Build()

	var id int64
	err := s.withTx("starting sync run", func(tx *sqlx.Tx) error {
		res, err := tx.Exec(query, args...)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}

	return &contacts.SyncRun{
		ID:        id,
		RunID:     runID,
		StartedAt: startedAt,
		Status:    contacts.RunStatusRunning,
	}, nil
}

func (s *SQLiteStore) FinishSyncRun(id int64, result contacts.SyncRunResult) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	var errMsg sql.NullString
	if result.Err != nil {
		errMsg = sql.NullString{String: result.Err.Error(), Valid: true}
	}
	var exportPath sql.NullString
	if result.ExportPath != "" {
		exportPath = sql.NullString{String: result.ExportPath, Valid: true}
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update(syncRunsTable).
		Set(
			ub.Assign("finished_at", s.now()),
			ub.Assign("status", result.Status),
			ub.Assign("contacts_found", result.ContactsFound),
			ub.Assign("contacts_exported", result.ContactsExported),
			ub.Assign("export_path", exportPath),
			ub.Assign("error", errMsg),
		).
		Where(ub.Equal("id", id))
	query, args := ub.Build()

	return s.withTx("finishing sync run", func(tx *sqlx.Tx) error {
		_, err := tx.Exec(query, args...)
		return err
	})
}

// ListSyncRuns returns the most recent runs first.
func (s *SQLiteStore) ListSyncRuns(limit int) ([]*contacts.SyncRun, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("*").From(syncRunsTable).OrderBy("id").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}
	query, args := sb.Build()

	var result []*contacts.SyncRun
	if err := s.db.Select(&result, query, args...); err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return result, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return migrations.CheckDBMigrationStatus(s.db.DB)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteStore) BackupTo(destPath string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection. Closing twice is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return contacts.ErrStoreClosed
	}
	return nil
}

// withTx runs fn in a transaction and commits it. Failures are reported as
// *contacts.PersistenceError.
func (s *SQLiteStore) withTx(op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return &contacts.PersistenceError{Op: op, Err: err}
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return &contacts.PersistenceError{Op: op, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &contacts.PersistenceError{Op: op, Err: err}
	}
	return nil
}

func (s *SQLiteStore) now() time.Time {
	return s.clock.Now().UTC()
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// Compile-time check that SQLiteStore implements contacts.Store
var _ contacts.Store = (*SQLiteStore)(nil)
