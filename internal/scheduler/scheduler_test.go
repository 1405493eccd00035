package scheduler

import "testing"

func TestAddJobValidatesExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if _, err := s.AddJob("not a cron", "+15551234567", func() {}); err == nil {
		t.Errorf("expected error for invalid cron expression")
	}
	id, err := s.AddJob("0 9 * * *", "+15551234567", func() {})
	if err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}
	if id == 0 {
		t.Errorf("expected non-zero job id")
	}
}

func TestJobsAndRemove(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	id, err := s.AddJob("*/5 * * * *", "+15550001111", func() {})
	if err != nil {
		t.Fatalf("AddJob failed: %v", err)
	}
	jobs := s.Jobs()
	if len(jobs) != 1 || jobs[0].Cron != "*/5 * * * *" || jobs[0].ToNumber != "+15550001111" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}

	s.Remove(id)
	if len(s.Jobs()) != 0 {
		t.Errorf("job not removed")
	}
	s.Remove(id) // second remove is safe
}
