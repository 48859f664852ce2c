// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Clock is a controllable time source for deterministic lifecycle tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current frozen time. Pass c.Now as the service clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps the clock to a specific instant.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// SentMail records one captured email.
type SentMail struct {
	To       string
	Template string
	Data     map[string]string
}

// MockSender captures emails instead of delivering them.
type MockSender struct {
	mu   sync.Mutex
	sent []SentMail
	fail bool
}

// NewMockSender creates an empty mock sender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// FailNext makes subsequent sends fail until disabled.
func (m *MockSender) FailNext(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

// Send implements mailer.Sender.
func (m *MockSender) Send(_ context.Context, to, template string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("mock send failure")
	}
	m.sent = append(m.sent, SentMail{To: to, Template: template, Data: data})
	return nil
}

// Sent returns a copy of the captured mail.
func (m *MockSender) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

// MockOwnerDirectory resolves owner emails from a fixed map.
type MockOwnerDirectory struct {
	mu     sync.RWMutex
	emails map[string]string
}

// NewMockOwnerDirectory creates an empty directory.
func NewMockOwnerDirectory() *MockOwnerDirectory {
	return &MockOwnerDirectory{emails: make(map[string]string)}
}

// AddOwner registers an owner's email.
func (m *MockOwnerDirectory) AddOwner(userID, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails[userID] = email
}

// EmailFor implements sweeper.OwnerDirectory.
func (m *MockOwnerDirectory) EmailFor(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email, ok := m.emails[userID]
	if !ok {
		return "", fmt.Errorf("no email for user %s", userID)
	}
	return email, nil
}
