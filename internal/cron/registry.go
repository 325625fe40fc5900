package cron

import (
	"context"
	"fmt"

	robfig "github.com/robfig/cron/v3"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry binds a job to its six-field (seconds first) cron schedule.
type Entry struct {
	Job      Job
	Schedule string
}

// Registry tracks registered cron jobs.
type Registry struct {
	entries []Entry
}

var scheduleParser = robfig.NewParser(
	robfig.Second | robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow | robfig.Descriptor,
)

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job with its schedule. Invalid schedules are rejected here
// so a typo in configuration fails at startup.
func (r *Registry) Register(job Job, schedule string) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	if _, err := scheduleParser.Parse(schedule); err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", job.Name(), schedule, err)
	}
	r.entries = append(r.entries, Entry{Job: job, Schedule: schedule})
	return nil
}

// Entries returns the registered jobs in the order they were added.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}
