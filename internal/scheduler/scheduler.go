// Package scheduler provides cron-based scheduling of outbound intake calls.
//
// Clinics use it to run recurring call campaigns, such as dialing a follow-up
// questionnaire to a patient every morning until it completes. Jobs live only
// in memory; restarts drop schedules, matching the stance on in-flight call
// state.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// JobInfo describes one scheduled call campaign.
type JobInfo struct {
	ID       int    `json:"id"`
	Cron     string `json:"cron"`
	ToNumber string `json:"to_number"`
}

// Scheduler runs registered call jobs on standard 5-field cron expressions.
type Scheduler struct {
	cron *cron.Cron
	mu   sync.Mutex
	jobs map[int]JobInfo
}

// NewScheduler creates and starts a scheduler. Panics in a job are recovered
// and logged rather than taking the service down.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c, jobs: make(map[int]JobInfo)}
}

// AddJob schedules task on the given cron expression. The toNumber is kept
// for listing only; dialing is entirely the task's concern.
func (s *Scheduler) AddJob(expr, toNumber string, task func()) (int, error) {
	entryID, err := s.cron.AddFunc(expr, task)
	if err != nil {
		return 0, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	id := int(entryID)
	s.mu.Lock()
	s.jobs[id] = JobInfo{ID: id, Cron: expr, ToNumber: toNumber}
	s.mu.Unlock()
	slog.Info("scheduler: job added", "id", id, "cron", expr)
	return id, nil
}

// Remove cancels a scheduled job. Unknown ids are a no-op.
func (s *Scheduler) Remove(id int) {
	s.cron.Remove(cron.EntryID(id))
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	slog.Info("scheduler: job removed", "id", id)
}

// Jobs returns the registered jobs.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
