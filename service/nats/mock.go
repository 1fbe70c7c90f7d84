package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu           sync.RWMutex
	swapEvents   []*SwapEvent
	payoutEvents []*PayoutEvent
	publishError error
	closed       bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishSwap records the event and returns any configured error.
func (m *MockPublisher) PublishSwap(ctx context.Context, event *SwapEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.swapEvents = append(m.swapEvents, event)
	return nil
}

// PublishPayout records the event and returns any configured error.
func (m *MockPublisher) PublishPayout(ctx context.Context, event *PayoutEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.payoutEvents = append(m.payoutEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SwapEvents returns a copy of all published swap events.
func (m *MockPublisher) SwapEvents() []*SwapEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*SwapEvent, len(m.swapEvents))
	copy(out, m.swapEvents)
	return out
}

// PayoutEvents returns a copy of all published payout events.
func (m *MockPublisher) PayoutEvents() []*PayoutEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*PayoutEvent, len(m.payoutEvents))
	copy(out, m.payoutEvents)
	return out
}

// SetPublishError configures the mock to fail subsequent publishes.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
