// Package notify posts test outcomes and run digests to chat platforms.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zulandar/padtest/internal/engine"
)

// Notifier delivers messages to one chat platform.
type Notifier interface {
	// Name identifies the platform in logs.
	Name() string
	// Send delivers a message to the configured channel.
	Send(ctx context.Context, msg Message) error
	// Close releases the platform connection.
	Close() error
}

// Message is one chat post.
type Message struct {
	Text   string  // plain fallback text
	Events []Event // structured attachments
}

// Event is a formatted attachment.
type Event struct {
	Title    string
	Body     string
	Severity string // "info", "warning", "error", "success"
	Color    string // sidebar color hint (e.g. "#36a64f")
	Fields   []Field
}

// Field is a key-value pair displayed in an attachment.
type Field struct {
	Name  string
	Value string
	Short bool // render side-by-side with another field
}

// Hub fans messages out to every notifier.
type Hub struct {
	mu        sync.Mutex
	notifiers []Notifier
	title     string
	log       *zap.Logger
}

// NewHub creates a hub for the named project.
func NewHub(title string, log *zap.Logger, notifiers ...Notifier) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{notifiers: notifiers, title: title, log: log}
}

// Len returns the number of notifiers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.notifiers)
}

// Send delivers msg to every notifier and joins their errors.
func (h *Hub) Send(ctx context.Context, msg Message) error {
	h.mu.Lock()
	notifiers := append([]Notifier(nil), h.notifiers...)
	h.mu.Unlock()

	var errs []error
	for _, n := range notifiers {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// OnTest returns an engine hook posting each finished test. Delivery
// failures are logged, never returned to the engine.
func (h *Hub) OnTest(ctx context.Context) func(engine.Outcome) {
	return func(o engine.Outcome) {
		if h.Len() == 0 {
			return
		}
		evt := FormatOutcome(h.title, o)
		if err := h.Send(ctx, Message{Text: evt.Title, Events: []Event{evt}}); err != nil {
			h.log.Warn("notify test outcome", zap.String("test", o.Test), zap.Error(err))
		}
	}
}

// Close closes every notifier.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var errs []error
	for _, n := range h.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
