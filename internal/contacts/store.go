package contacts

// Store is the durable contact store.
// Every mutating method commits before it returns. After Close, every
// method returns ErrStoreClosed.
type Store interface {
	// Upsert inserts a new contact and returns its identity.
	// Records are never merged: the same person ingested twice yields two rows.
	Upsert(fields ContactFields) (int64, error)

	// Find returns contacts matching exactly one key of q, ordered by identity.
	Find(q ContactQuery) ([]*Contact, error)

	// FindByID returns the contact with the given identity, or nil.
	FindByID(id int64) (*Contact, error)

	// SetExternalID links a contact to its CRM record.
	SetExternalID(contactID int64, externalID string) error

	// ListUnexported returns contacts that have no external identifier.
	ListUnexported() ([]*Contact, error)

	// LogInteraction appends an interaction stamped with the current time.
	// Returns a *ReferentialError if the contact does not exist.
	LogInteraction(contactID int64, kind, notes string) error

	// ListInteractions returns the interactions of a contact, oldest first.
	ListInteractions(contactID int64) ([]*Interaction, error)

	// Sync run tracking

	StartSyncRun(runID string) (*SyncRun, error)
	FinishSyncRun(id int64, result SyncRunResult) error
	ListSyncRuns(limit int) ([]*SyncRun, error)

	// BackupTo writes a consistent copy of the store to destPath.
	BackupTo(destPath string) error

	// Close releases the underlying connection.
	Close() error
}
