package notify

import (
	"context"
	"fmt"
	"sync"
)

// MockNotifier records sent messages for tests.
type MockNotifier struct {
	mu     sync.Mutex
	name   string
	sent   []Message
	err    error
	closed bool
}

// NewMockNotifier creates a mock with the given platform name.
func NewMockNotifier(name string) *MockNotifier {
	return &MockNotifier{name: name}
}

// Name returns the platform name.
func (m *MockNotifier) Name() string { return m.name }

// Send records msg, or returns the error set with FailWith.
func (m *MockNotifier) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock notifier: closed")
	}
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Close marks the mock closed.
func (m *MockNotifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// --- Test helpers ---

// FailWith makes every later Send return err.
func (m *MockNotifier) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// AllSent returns a copy of all sent messages.
func (m *MockNotifier) AllSent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// Closed reports whether Close was called.
func (m *MockNotifier) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
