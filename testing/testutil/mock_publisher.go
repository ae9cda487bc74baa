package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/AshkanYarmoradi/go-behave"
)

// MockPublisher is a mock implementation of behave.Publisher for testing.
// It records every notification it receives.
type MockPublisher struct {
	DestinationName string
	PublishErr      error
	CloseErr        error

	mu        sync.Mutex
	published []*behave.Notification
	closed    bool
}

// Publish implements behave.Publisher.
func (p *MockPublisher) Publish(ctx context.Context, notes []*behave.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, notes...)
	return p.PublishErr
}

// Destination implements behave.Publisher.
func (p *MockPublisher) Destination() string {
	if p.DestinationName == "" {
		return "mock"
	}
	return p.DestinationName
}

// Close records the close and returns CloseErr.
func (p *MockPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.CloseErr
}

// Published returns a copy of all notifications received so far.
func (p *MockPublisher) Published() []*behave.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*behave.Notification, len(p.published))
	copy(out, p.published)
	return out
}

// PublishedCount returns the number of notifications received so far.
func (p *MockPublisher) PublishedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

// Closed reports whether Close has been called.
func (p *MockPublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Ensure MockPublisher implements behave.Publisher.
var _ behave.Publisher = (*MockPublisher)(nil)

// TestCommand is a mock command for testing middleware.
type TestCommand struct {
	ID         string
	ShouldFail bool
}

// CommandType implements behave.Command.
func (c *TestCommand) CommandType() string { return "TestCommand" }

// Validate implements behave.ValidatableCommand.
func (c *TestCommand) Validate() error {
	if c.ShouldFail {
		return errors.New("validation failed")
	}
	return nil
}
