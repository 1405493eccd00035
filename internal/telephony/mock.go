package telephony

import (
	"context"
	"fmt"
	"sync"
)

// IssuedAction records one command issued through the MockActions transport.
type IssuedAction struct {
	Kind        string // "speak", "collect_input", "collect_speech", "hang_up"
	CallID      string
	Text        string
	ValidDigits string
	MaxDigits   int
}

// MockActions records issued actions for tests. It can be told to fail a
// specific action kind to exercise transport failure paths.
type MockActions struct {
	mu      sync.Mutex
	Actions []IssuedAction
	// FailKind makes every action of that kind return an error.
	FailKind string
}

// NewMockActions creates an empty action recorder.
func NewMockActions() *MockActions {
	return &MockActions{}
}

func (m *MockActions) record(a IssuedAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailKind == a.Kind {
		return fmt.Errorf("mock transport: %s unavailable", a.Kind)
	}
	m.Actions = append(m.Actions, a)
	return nil
}

func (m *MockActions) Speak(ctx context.Context, callID, text string) error {
	return m.record(IssuedAction{Kind: "speak", CallID: callID, Text: text})
}

func (m *MockActions) CollectInput(ctx context.Context, callID, text, validDigits string, maxDigits int) error {
	return m.record(IssuedAction{Kind: "collect_input", CallID: callID, Text: text, ValidDigits: validDigits, MaxDigits: maxDigits})
}

func (m *MockActions) CollectSpeech(ctx context.Context, callID, text string) error {
	return m.record(IssuedAction{Kind: "collect_speech", CallID: callID, Text: text})
}

func (m *MockActions) HangUp(ctx context.Context, callID string) error {
	return m.record(IssuedAction{Kind: "hang_up", CallID: callID})
}

// Issued returns a snapshot of the recorded actions.
func (m *MockActions) Issued() []IssuedAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]IssuedAction, len(m.Actions))
	copy(out, m.Actions)
	return out
}

// CountKind returns how many actions of the given kind were issued.
func (m *MockActions) CountKind(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.Actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// MockDialer returns a fixed external call id.
type MockDialer struct {
	NextID string
	Placed []string
}

func (d *MockDialer) PlaceCall(ctx context.Context, toNumber string) (string, error) {
	d.Placed = append(d.Placed, toNumber)
	if d.NextID == "" {
		return "mock-call-1", nil
	}
	return d.NextID, nil
}
