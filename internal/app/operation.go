package app

import (
	"time"

	"contactsync/internal/contacts"
)

// Operation identifies the CLI command being run. Its ID tags every log line
// written while the command runs.
type Operation struct {
	Name      string
	ID        string
	StartedAt time.Time
}

// NewOperation creates an Operation stamped with the clock's current time.
func NewOperation(name string, clock contacts.Clock) *Operation {
	now := clock.Now().UTC()
	return &Operation{
		Name:      name,
		ID:        now.Format("20060102T150405Z"),
		StartedAt: now,
	}
}

// Label is the value written in the operation column of the log.
func (op *Operation) Label() string {
	if op.Name == "" {
		return op.ID
	}
	return op.Name + "/" + op.ID
}
