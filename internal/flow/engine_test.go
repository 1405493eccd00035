package flow

import (
	"testing"
	"time"

	"github.com/BTreeMap/IntakeLine/internal/models"
	"github.com/BTreeMap/IntakeLine/internal/questions"
)

func newTestEngine(t *testing.T) (*Engine, *models.CallSession) {
	t.Helper()
	catalog := questions.NewCatalog()
	if err := catalog.Validate(); err != nil {
		t.Fatalf("catalog validation failed: %v", err)
	}
	sess := models.NewCallSession("CA1", "uuid-1", time.Now())
	sess.State = models.StateInIntake
	return NewEngine(catalog), sess
}

func TestNextStartsAtChiefComplaint(t *testing.T) {
	e, sess := newTestEngine(t)
	q, ok := e.Next(sess)
	if !ok {
		t.Fatal("expected a first question")
	}
	if q.Key != "chief_complaint" {
		t.Errorf("expected chief_complaint first, got %s", q.Key)
	}
	if sess.Section != models.SectionHPI {
		t.Errorf("cursor not moved into HPI section: %v", sess.Section)
	}
}

func TestNextCrossesSectionBoundaries(t *testing.T) {
	e, sess := newTestEngine(t)
	now := time.Now()

	var asked []string
	for {
		q, ok := e.Next(sess)
		if !ok {
			break
		}
		asked = append(asked, q.Key)
		if err := e.Fold(sess, q, "2", now); err != nil {
			t.Fatalf("Fold(%s) failed: %v", q.Key, err)
		}
	}

	want := []string{
		"chief_complaint", "symptom_duration", "pain_level",
		"allergies", "medications", "past_medical_history", "last_meal",
		"heart_disease", "diabetes", "cancer",
	}
	if len(asked) != len(want) {
		t.Fatalf("expected %d questions, got %d: %v", len(want), len(asked), asked)
	}
	for i, key := range want {
		if asked[i] != key {
			t.Errorf("question %d: expected %s, got %s", i, key, asked[i])
		}
	}
}

func TestFoldQueuesFollowUp(t *testing.T) {
	e, sess := newTestEngine(t)
	now := time.Now()

	// Advance to allergies.
	for {
		q, ok := e.Next(sess)
		if !ok {
			t.Fatal("ran out of questions before allergies")
		}
		if q.Key == "allergies" {
			if err := e.Fold(sess, q, "1", now); err != nil {
				t.Fatalf("Fold(allergies) failed: %v", err)
			}
			break
		}
		if err := e.Fold(sess, q, "2", now); err != nil {
			t.Fatalf("Fold(%s) failed: %v", q.Key, err)
		}
	}

	q, ok := e.Next(sess)
	if !ok || q.Key != "allergies_detail" {
		t.Fatalf("expected allergies_detail follow-up, got %v", q)
	}
	if err := e.Fold(sess, q, "penicillin", now); err != nil {
		t.Fatalf("Fold(allergies_detail) failed: %v", err)
	}

	q, ok = e.Next(sess)
	if !ok || q.Key != "medications" {
		t.Fatalf("expected medications after follow-up, got %v", q)
	}
	if got := sess.Responses["allergies_detail"].Value; got != "penicillin" {
		t.Errorf("follow-up answer not recorded: %q", got)
	}
}

func TestFoldRejectsDuplicateAnswer(t *testing.T) {
	e, sess := newTestEngine(t)
	now := time.Now()
	q, _ := e.Next(sess)
	if err := e.Fold(sess, q, "first", now); err != nil {
		t.Fatalf("first Fold failed: %v", err)
	}
	if err := e.Fold(sess, q, "second", now); err != models.ErrDuplicateAnswer {
		t.Errorf("expected ErrDuplicateAnswer, got %v", err)
	}
	if got := sess.Responses[q.Key].Value; got != "first" {
		t.Errorf("first capture lost: %q", got)
	}
}

func TestNextExhaustsAfterLastSection(t *testing.T) {
	e, sess := newTestEngine(t)
	now := time.Now()
	for i := 0; i < 20; i++ {
		q, ok := e.Next(sess)
		if !ok {
			if i != 10 {
				t.Errorf("expected 10 questions before exhaustion, got %d", i)
			}
			return
		}
		if err := e.Fold(sess, q, "2", now); err != nil {
			t.Fatalf("Fold failed: %v", err)
		}
	}
	t.Fatal("engine never exhausted")
}
