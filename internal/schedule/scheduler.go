// Package schedule triggers a job once a day at a configured time of day.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"contactsync/internal/contacts"
)

// DefaultTimeOfDay is the daily trigger time used when none is configured.
const DefaultTimeOfDay = "06:00"

// Options configures a Scheduler.
type Options struct {
	// At is the daily trigger time as HH:MM (24h).
	At string
	// Location defaults to time.Local.
	Location *time.Location
	// RunOnStart fires the job once as soon as Run is called.
	RunOnStart bool
}

// Scheduler fires a job daily. A firing that arrives while the previous
// invocation is still running is skipped.
type Scheduler struct {
	cron       *cron.Cron
	job        cron.Job
	entry      cron.EntryID
	runOnStart bool
	logger     contacts.Logger
}

// New creates a Scheduler for job. The scheduler is idle until Run is called.
func New(job func(), opts Options, logger contacts.Logger) (*Scheduler, error) {
	at := opts.At
	if at == "" {
		at = DefaultTimeOfDay
	}
	hour, minute, err := ParseTimeOfDay(at)
	if err != nil {
		return nil, err
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	schedule, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", minute, hour))
	if err != nil {
		return nil, fmt.Errorf("building schedule for %s: %w", at, err)
	}

	cl := cronLogger{l: logger}
	wrapped := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(job))

	c := cron.New(cron.WithLocation(loc), cron.WithLogger(cl))
	entry := c.Schedule(schedule, wrapped)

	return &Scheduler{
		cron:       c,
		job:        wrapped,
		entry:      entry,
		runOnStart: opts.RunOnStart,
		logger:     logger,
	}, nil
}

// ParseTimeOfDay parses an HH:MM 24-hour time.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 || len(m) != 2 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// Run starts the scheduler and blocks until ctx is cancelled. On return no
// job is running.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	if s.runOnStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.job.Run()
		}()
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "next", s.Next().Format(time.RFC3339))

	<-ctx.Done()

	s.logger.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	wg.Wait()
	return nil
}

// Next returns the next scheduled firing. It is the zero time before Run.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// NextAfter returns the first firing strictly after t.
func (s *Scheduler) NextAfter(t time.Time) time.Time {
	return s.cron.Entry(s.entry).Schedule.Next(t)
}

// cronLogger routes cron's logging through contacts.Logger.
type cronLogger struct {
	l contacts.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
