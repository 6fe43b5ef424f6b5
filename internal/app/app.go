package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"contactsync/internal/config"
	"contactsync/internal/contacts"
	"contactsync/internal/database"
	"contactsync/internal/encryption"
	"contactsync/internal/export"
	"contactsync/internal/fs"
	"contactsync/internal/parser"
	"contactsync/internal/pipeline"
	"contactsync/internal/schedule"
	"contactsync/internal/vault"
)

// ErrArchiveDisabled is returned by archive commands when archive.type is none.
var ErrArchiveDisabled = errors.New("archive is not configured")

// ScanSummary counts the records parsed from one matched file.
type ScanSummary struct {
	Path    string
	Records int
}

// App is the application layer between the CLI and the pipeline.
// It constructs all dependencies from config, exposes high-level operations
// and manages the store lifecycle on Close.
type App struct {
	cfg          *config.Config
	op           *Operation
	store        *database.SQLiteStore
	scanner      *fs.Scanner
	orchestrator *pipeline.Orchestrator
	vault        contacts.Vault
	archiver     *vault.Archiver
	encryptor    contacts.Encryptor
	logger       contacts.Logger
	logFile      io.Closer
}

// New creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "RunCycle", "Serve").
// The caller must call Close when done.
func New(cfg *config.Config, operation string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := contacts.RealClock{}
	op := NewOperation(operation, clock)

	slogger, logFile, err := newLogger(cfg.Log, op.Label())
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	v, err := vault.NewVaultFromConfig(context.Background(), cfg.Archive)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating archive vault: %w", err)
	}

	store, err := database.NewStoreFromConfig(cfg.Database, clock, logger)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening contact store: %w", err)
	}

	scanner := fs.NewScanner(parser.NewParser(logger), fs.Options{
		Prefix:     cfg.Scan.Prefix,
		Categories: cfg.Scan.Categories,
		Ignore:     cfg.Scan.Ignore,
	}, logger)
	exporter := export.NewExporter(store, cfg.Export.Dir, clock, logger)
	orch := pipeline.NewOrchestrator(scanner, cfg.Scan.Roots, store, exporter, clock, contacts.UUIDGenerator{}, logger)

	a := &App{
		cfg:          cfg,
		op:           op,
		store:        store,
		scanner:      scanner,
		orchestrator: orch,
		vault:        v,
		encryptor:    enc,
		logger:       logger,
		logFile:      logFile,
	}
	if v != nil {
		a.archiver = vault.NewArchiver(v, enc, logger)
		if !enc.IsConfigured() {
			logger.Warn("archive enabled but encryption keys are missing; run `contactsync keys init`")
		}
	}
	return a, nil
}

// InitKeys generates the archive key pair described by cfg.
func InitKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	return enc.Setup(passphrase)
}

// RunCycle runs one scan, persist and export cycle. When an archive is
// configured, the export file and a store snapshot are uploaded afterwards.
func (a *App) RunCycle() (pipeline.CycleReport, error) {
	report, err := a.orchestrator.RunCycle()
	if err != nil {
		return report, err
	}
	if a.archiver == nil {
		return report, nil
	}
	if err := a.archiveCycle(report); err != nil {
		return report, fmt.Errorf("archiving cycle %s: %w", report.RunID, err)
	}
	return report, nil
}

func (a *App) archiveCycle(report pipeline.CycleReport) error {
	if report.ExportPath != "" {
		if err := a.archiver.ArchiveFile(vault.ExportKey(report.ExportPath), report.ExportPath); err != nil {
			return err
		}
	}

	tmpDir, err := os.MkdirTemp("", "contactsync-snapshot-*")
	if err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "contacts.db")
	if err := a.store.BackupTo(snapshot); err != nil {
		return err
	}
	return a.archiver.ArchiveFile(vault.SnapshotKey(report.RunID), snapshot)
}

// Serve runs a cycle every day at the configured time until ctx is cancelled.
// Cycle failures are logged and do not stop the scheduler.
func (a *App) Serve(ctx context.Context) error {
	if a.vault != nil {
		if err := a.vault.ValidateSetup(); err != nil {
			return fmt.Errorf("validating archive: %w", err)
		}
	}

	sched, err := schedule.New(a.scheduledCycle, schedule.Options{
		At:         a.cfg.Schedule.At,
		RunOnStart: a.cfg.Schedule.RunOnStart,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	return sched.Run(ctx)
}

func (a *App) scheduledCycle() {
	if _, err := a.RunCycle(); err != nil {
		a.logger.Error("scheduled cycle failed", "error", err)
	}
}

// Scan parses every configured root without touching the store.
func (a *App) Scan() []ScanSummary {
	var out []ScanSummary
	index := make(map[string]int)
	for _, root := range a.cfg.Scan.Roots {
		for rec := range a.scanner.Scan(root) {
			src := rec.SourceFile()
			i, ok := index[src]
			if !ok {
				i = len(out)
				index[src] = i
				out = append(out, ScanSummary{Path: src})
			}
			out[i].Records++
		}
	}
	return out
}

// Find returns the contacts matching q.
func (a *App) Find(q contacts.ContactQuery) ([]*contacts.Contact, error) {
	return a.store.Find(q)
}

// Link records the CRM identifier for a contact, which removes it from
// future exports.
func (a *App) Link(contactID int64, externalID string) error {
	if err := a.store.SetExternalID(contactID, externalID); err != nil {
		return err
	}
	a.logger.Info("linked contact", "id", contactID, "external_id", externalID)
	return nil
}

// AddInteraction appends an interaction to a contact's log.
func (a *App) AddInteraction(contactID int64, kind, notes string) error {
	return a.store.LogInteraction(contactID, kind, notes)
}

// Interactions returns a contact's interactions, oldest first.
func (a *App) Interactions(contactID int64) ([]*contacts.Interaction, error) {
	return a.store.ListInteractions(contactID)
}

// History returns the most recent sync runs, newest first.
func (a *App) History(limit int) ([]*contacts.SyncRun, error) {
	return a.store.ListSyncRuns(limit)
}

// ArchiveList returns the archived keys starting with prefix.
func (a *App) ArchiveList(prefix string) ([]string, error) {
	if a.archiver == nil {
		return nil, ErrArchiveDisabled
	}
	return a.archiver.List(prefix)
}

// ArchiveGet downloads key, decrypts it and writes the result to destPath.
func (a *App) ArchiveGet(key, destPath, passphrase string) error {
	if a.archiver == nil {
		return ErrArchiveDisabled
	}
	dctx, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}
	absPath, err := filepath.Abs(destPath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	return a.archiver.Restore(key, absPath, dctx)
}

// RequiresPassphrase reports whether archive restores need a passphrase.
func (a *App) RequiresPassphrase() bool {
	return encryption.RequiresPassphrase(a.cfg.Encryption)
}

// Close closes the contact store and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing contact store: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}
