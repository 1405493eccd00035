package session

import (
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/IntakeLine/internal/models"
)

func TestGetOrCreate(t *testing.T) {
	s := NewStore()
	now := time.Now()

	created, err := s.GetOrCreate("CA1", "uuid-1", now)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created {
		t.Errorf("expected created=true for new session")
	}
	created, err = s.GetOrCreate("CA1", "uuid-2", now)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if created {
		t.Errorf("expected created=false for existing session")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 session, got %d", s.Len())
	}

	// The first call id wins.
	err = s.Do("CA1", func(sess *models.CallSession) error {
		if sess.CallID != "uuid-1" {
			t.Errorf("expected original call id kept, got %s", sess.CallID)
		}
		if sess.State != models.StateRinging {
			t.Errorf("new session must start RINGING, got %s", sess.State)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
}

func TestGetOrCreateRejectsEmptyID(t *testing.T) {
	s := NewStore()
	if _, err := s.GetOrCreate("", "uuid-1", time.Now()); err != models.ErrEmptyCallID {
		t.Errorf("expected ErrEmptyCallID, got %v", err)
	}
}

func TestDoUnknownSession(t *testing.T) {
	s := NewStore()
	err := s.Do("CA404", func(sess *models.CallSession) error { return nil })
	if err != models.ErrUnknownSession {
		t.Errorf("expected ErrUnknownSession, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("CA1", "uuid-1", time.Now())
	s.Delete("CA1")
	s.Delete("CA1") // second delete is safe
	if s.Len() != 0 {
		t.Errorf("expected empty store after delete, got %d", s.Len())
	}
}

func TestDoSerializesPerCall(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("CA1", "uuid-1", time.Now())

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			s.Do("CA1", func(sess *models.CallSession) error {
				// Unsynchronized counter; races here are caught by -race and
				// by a wrong final count.
				sess.Retries++
				return nil
			})
		}()
	}
	wg.Wait()

	s.Do("CA1", func(sess *models.CallSession) error {
		if sess.Retries != workers {
			t.Errorf("expected %d serialized increments, got %d", workers, sess.Retries)
		}
		return nil
	})
}

func TestActiveIDs(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.GetOrCreate("CA1", "u1", now)
	s.GetOrCreate("CA2", "u2", now)
	ids := s.ActiveIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 active ids, got %v", ids)
	}
}
