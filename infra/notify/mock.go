package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/trainops/instructor-dispatch/core/logger"
	"github.com/trainops/instructor-dispatch/core/model"
	"github.com/trainops/instructor-dispatch/core/outbox"
)

// Sent is one message recorded by the MockSender.
type Sent struct {
	RecipientID string
	Type        model.Classification
	Payload     []byte
}

// MockSender records sends in memory. Used in tests.
type MockSender struct {
	mu sync.Mutex
	// FailRecipients makes Send fail for the listed recipient IDs.
	FailRecipients map[string]bool
	Messages       []Sent
}

// NewMockSender creates an empty MockSender.
func NewMockSender() *MockSender {
	return &MockSender{FailRecipients: make(map[string]bool)}
}

var _ outbox.MessageSender = (*MockSender)(nil)

// Send records the message or fails if the recipient is marked.
func (m *MockSender) Send(_ context.Context, recipientID string, msgType model.Classification, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRecipients[recipientID] {
		return fmt.Errorf("send to %s failed", recipientID)
	}
	m.Messages = append(m.Messages, Sent{RecipientID: recipientID, Type: msgType, Payload: payload})
	return nil
}

// Sent returns a snapshot of recorded messages.
func (m *MockSender) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.Messages...)
}

// LogSender logs notifications instead of delivering them. Used when the
// MQTT sender is disabled in configuration.
type LogSender struct {
	Log logger.Logger
}

var _ outbox.MessageSender = (*LogSender)(nil)

// Send logs the notification.
func (s *LogSender) Send(_ context.Context, recipientID string, msgType model.Classification, payload []byte) error {
	if s.Log != nil {
		s.Log.Infof("notification (%s) for %s: %s", msgType, recipientID, string(payload))
	}
	return nil
}
