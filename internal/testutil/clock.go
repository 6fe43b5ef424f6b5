package testutil

import (
	"fmt"
	"sync"
	"time"
)

// FixedTime is the instant FixedClock starts at.
var FixedTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// FixedStamp is FixedTime in the export file name layout.
const FixedStamp = "20240115_103000"

// StubClock is a contacts.Clock under test control. Safe for concurrent use.
// With a tick set, every Now call moves the clock forward so that stage
// timings and run durations come out non-zero.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	tick time.Duration
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to FixedTime.
func FixedClock() *StubClock {
	return NewStubClock(FixedTime)
}

// Tick makes each subsequent Now call advance the clock by d after reading it.
func (c *StubClock) Tick(d time.Duration) *StubClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = d
	return c
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.tick)
	return now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubRunIDs hands out sync run IDs "run-1", "run-2", ... and remembers them.
type StubRunIDs struct {
	mu     sync.Mutex
	issued []string
}

func NewStubRunIDs() *StubRunIDs {
	return &StubRunIDs{}
}

func (g *StubRunIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("run-%d", len(g.issued)+1)
	g.issued = append(g.issued, id)
	return id
}

// Issued returns every ID handed out so far, oldest first.
func (g *StubRunIDs) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}
