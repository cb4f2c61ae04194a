// Package notify defines the user-notification contract for post-publication
// fan-out, plus an in-memory transport.
package notify

import (
	"context"
	"sync"
	"time"
)

// Type classifies a notification.
type Type string

const (
	// TypePublishedDataset informs a user that a dataset they can see or
	// download was archived.
	TypePublishedDataset Type = "PUBLISHEDDS"
	// TypeFileDownloadAccess informs a user that a file they may download
	// became available.
	TypeFileDownloadAccess Type = "GRANTFILEACCESS"
)

// Notification is a single message to a user.
type Notification struct {
	UserID    string
	Type      Type
	DatasetID string
	VersionID string
	FileID    string
	SentAt    time.Time
}

// Service delivers notifications. Delivery failures are reported to the
// caller, which logs and moves on; notifications are best-effort.
type Service interface {
	Send(ctx context.Context, n Notification) error
}

// Memory records notifications for tests and embedded deployments.
type Memory struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

// NewMemory constructs an empty recording transport.
func NewMemory() *Memory {
	return &Memory{}
}

// Fail makes every subsequent Send return err.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Send implements Service.
func (m *Memory) Send(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns all delivered notifications.
func (m *Memory) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.sent))
	copy(out, m.sent)
	return out
}

var _ Service = (*Memory)(nil)
