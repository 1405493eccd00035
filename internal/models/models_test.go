package models

import (
	"testing"
	"time"
)

func TestAcceptsDigits(t *testing.T) {
	q := &Question{Key: "q", Kind: QuestionDTMF, ValidDigits: "12", MaxDigits: 1}
	cases := []struct {
		digits string
		want   bool
	}{
		{"1", true},
		{"2", true},
		{"3", false},
		{"", false},
		{"12", false},
		{"a", false},
	}
	for _, c := range cases {
		if got := q.AcceptsDigits(c.digits); got != c.want {
			t.Errorf("AcceptsDigits(%q) = %v, want %v", c.digits, got, c.want)
		}
	}
}

func TestAcceptsDigitsNonDTMF(t *testing.T) {
	q := &Question{Key: "q", Kind: QuestionVoice}
	if q.AcceptsDigits("1") {
		t.Errorf("voice question must not accept digits")
	}
}

func TestSessionStateTerminal(t *testing.T) {
	terminal := []SessionState{StateConsentDeclined, StateCompleted, StateFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	live := []SessionState{StateRinging, StateAnswered, StateAwaitingConsent, StateInIntake, StateCompleting}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestRecordAnswerWriteOnce(t *testing.T) {
	now := time.Now()
	sess := NewCallSession("CA1", "uuid-1", now)
	if err := sess.RecordAnswer("allergies", "1", now); err != nil {
		t.Fatalf("first RecordAnswer failed: %v", err)
	}
	if err := sess.RecordAnswer("allergies", "2", now); err != ErrDuplicateAnswer {
		t.Errorf("expected ErrDuplicateAnswer, got %v", err)
	}
	if got := sess.Responses["allergies"].Value; got != "1" {
		t.Errorf("first capture overwritten: %q", got)
	}
	if len(sess.AnswerOrder) != 1 {
		t.Errorf("answer order polluted by rejected write: %v", sess.AnswerOrder)
	}
}

func TestGiveConsentIdempotent(t *testing.T) {
	first := time.Now()
	sess := NewCallSession("CA1", "uuid-1", first)
	sess.GiveConsent(first)
	later := first.Add(time.Minute)
	sess.GiveConsent(later)
	if !sess.ConsentGiven {
		t.Fatal("consent not recorded")
	}
	if !sess.ConsentAt.Equal(first) {
		t.Errorf("consent timestamp moved: %v", sess.ConsentAt)
	}
}

func TestSectionString(t *testing.T) {
	cases := map[Section]string{
		SectionConsent:       "consent",
		SectionHPI:           "hpi",
		SectionAmple:         "ample",
		SectionFamilyHistory: "family_history",
		SectionClosing:       "closing",
		Section(99):          "unknown",
	}
	for sec, want := range cases {
		if got := sec.String(); got != want {
			t.Errorf("Section(%d).String() = %q, want %q", sec, got, want)
		}
	}
}

func TestPlaceCallRequestValidate(t *testing.T) {
	req := PlaceCallRequest{}
	if err := req.Validate(); err != ErrEmptyToNumber {
		t.Errorf("expected ErrEmptyToNumber, got %v", err)
	}
	req.ToNumber = "   "
	if err := req.Validate(); err != ErrEmptyToNumber {
		t.Errorf("whitespace number should be rejected, got %v", err)
	}
	req.ToNumber = "+15551234567"
	if err := req.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
}

func TestIntakeRecordAnswerCount(t *testing.T) {
	r := IntakeRecord{
		HPI:           map[string]Answer{"a": {}, "b": {}},
		FamilyHistory: map[string]Answer{"c": {}},
	}
	if r.AnswerCount() != 3 {
		t.Errorf("expected 3 answers, got %d", r.AnswerCount())
	}
}
