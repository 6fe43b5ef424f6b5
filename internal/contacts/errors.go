package contacts

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreClosed is returned by any Store call made after Close.
	ErrStoreClosed = errors.New("contact store is closed")

	// ErrReferential matches every *ReferentialError.
	ErrReferential = errors.New("referenced contact does not exist")

	// ErrInvalidQuery is returned when a ContactQuery sets zero or two keys.
	ErrInvalidQuery = errors.New("query must set exactly one of name or external id")

	// ErrCycleInProgress is returned when a sync cycle is started while another runs.
	ErrCycleInProgress = errors.New("sync cycle already in progress")
)

// ReferentialError reports a write against a contact that does not exist.
type ReferentialError struct {
	ContactID int64
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("contact %d does not exist", e.ContactID)
}

func (e *ReferentialError) Is(target error) bool {
	return target == ErrReferential
}

// PersistenceError wraps a failed write or commit.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ParseError reports a file or row that could not be decoded.
// Parse errors are logged and skipped, never returned from a scan.
type ParseError struct {
	Path string
	Line int // 0 when the whole file failed
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parsing %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ScanIOError reports a directory entry the scanner could not read.
// Like ParseError it is logged and skipped.
type ScanIOError struct {
	Path string
	Err  error
}

func (e *ScanIOError) Error() string {
	return fmt.Sprintf("scanning %s: %v", e.Path, e.Err)
}

func (e *ScanIOError) Unwrap() error { return e.Err }
