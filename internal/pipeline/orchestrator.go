// Package pipeline runs sync cycles: scan the configured roots, persist every
// record found, then export the contacts still missing from the CRM.
package pipeline

import (
	"fmt"
	"iter"
	"sync"
	"time"

	"contactsync/internal/contacts"
	"contactsync/internal/export"
)

// State is the stage an Orchestrator is in.
type State int

const (
	StateIdle State = iota
	StateScanning
	StatePersisting
	StateExporting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StatePersisting:
		return "persisting"
	case StateExporting:
		return "exporting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Scanner produces the records found under a root directory.
type Scanner interface {
	Scan(root string) iter.Seq[contacts.RawRecord]
}

// Exporter writes the CRM import file.
type Exporter interface {
	Export() (export.Result, error)
}

// CycleReport summarises one completed cycle.
type CycleReport struct {
	RunID             string
	ContactsFound     int
	ContactsPersisted int
	ExportPath        string
	ContactsExported  int
	Elapsed           time.Duration
}

// Orchestrator runs one cycle at a time.
type Orchestrator struct {
	scanner  Scanner
	roots    []string
	store    contacts.Store
	exporter Exporter
	clock    contacts.Clock
	ids      contacts.IDGenerator
	logger   contacts.Logger

	mu    sync.Mutex
	state State
}

// NewOrchestrator creates an Orchestrator that scans roots in order.
func NewOrchestrator(
	scanner Scanner,
	roots []string,
	store contacts.Store,
	exporter Exporter,
	clock contacts.Clock,
	ids contacts.IDGenerator,
	logger contacts.Logger,
) *Orchestrator {
	return &Orchestrator{
		scanner:  scanner,
		roots:    roots,
		store:    store,
		exporter: exporter,
		clock:    clock,
		ids:      ids,
		logger:   logger,
	}
}

// State returns the current stage.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
}

// begin moves the orchestrator out of Idle, or reports a cycle already running.
func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return contacts.ErrCycleInProgress
	}
	o.state = StateScanning
	return nil
}

// RunCycle scans, persists and exports once.
// A failing stage aborts the cycle; contacts persisted before the failure stay
// committed. Returns contacts.ErrCycleInProgress if another cycle is running.
func (o *Orchestrator) RunCycle() (CycleReport, error) {
	if err := o.begin(); err != nil {
		return CycleReport{}, err
	}
	defer o.setState(StateIdle)

	start := o.clock.Now()
	report := CycleReport{RunID: o.ids.New()}

	run, err := o.store.StartSyncRun(report.RunID)
	if err != nil {
		return report, fmt.Errorf("recording sync run: %w", err)
	}
	o.logger.Info("sync cycle started", "run", report.RunID, "roots", len(o.roots))

	cycleErr := o.runStages(&report)
	report.Elapsed = o.clock.Now().Sub(start)

	result := contacts.SyncRunResult{
		Status:           contacts.RunStatusSuccess,
		ContactsFound:    report.ContactsFound,
		ContactsExported: report.ContactsExported,
		ExportPath:       report.ExportPath,
	}
	if cycleErr != nil {
		result.Status = contacts.RunStatusError
		result.Err = cycleErr
	}
	if err := o.store.FinishSyncRun(run.ID, result); err != nil {
		o.logger.Warn("failed to record sync run outcome", "run", report.RunID, "error", err)
	}

	if cycleErr != nil {
		o.logger.Error("sync cycle failed", "run", report.RunID, "elapsed", report.Elapsed, "error", cycleErr)
		return report, cycleErr
	}

	o.logger.Info(fmt.Sprintf("sync cycle completed in %s", report.Elapsed),
		"run", report.RunID,
		"found", report.ContactsFound,
		"exported", report.ContactsExported,
		"path", report.ExportPath)
	return report, nil
}

func (o *Orchestrator) runStages(report *CycleReport) error {
	var records []contacts.RawRecord
	for _, root := range o.roots {
		for rec := range o.scanner.Scan(root) {
			records = append(records, rec)
		}
	}
	report.ContactsFound = len(records)

	o.setState(StatePersisting)
	for _, rec := range records {
		if _, err := o.store.Upsert(contacts.FieldsFromRecord(rec)); err != nil {
			return fmt.Errorf("persisting record from %s: %w", rec.SourceFile(), err)
		}
		report.ContactsPersisted++
	}

	o.setState(StateExporting)
	result, err := o.exporter.Export()
	if err != nil {
		return fmt.Errorf("exporting contacts: %w", err)
	}
	report.ExportPath = result.Path
	report.ContactsExported = result.Count
	return nil
}
