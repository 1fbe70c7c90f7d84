package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	schedules map[string]time.Duration // map[scheduleID]interval, 0 for cron schedules
	createErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		schedules: make(map[string]time.Duration),
	}
}

// CreateClaimSchedule records that the claim schedule was created.
func (m *MockScheduler) CreateClaimSchedule(ctx context.Context, interval time.Duration) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[ClaimScheduleID] = interval
	return nil
}

// CreatePayoutSchedule records that the payout schedule was created.
func (m *MockScheduler) CreatePayoutSchedule(ctx context.Context, hourUTC int) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[PayoutScheduleID] = 0
	return nil
}

// CreateBalanceCheckSchedule records that the balance check schedule was
// created.
func (m *MockScheduler) CreateBalanceCheckSchedule(ctx context.Context, payerAddress string, minLamports uint64, interval time.Duration) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[BalanceCheckScheduleID] = interval
	return nil
}

// DeleteSchedule records that a schedule was deleted.
func (m *MockScheduler) DeleteSchedule(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.schedules[id]; !exists {
		return fmt.Errorf("schedule %q not found", id)
	}
	delete(m.schedules, id)
	return nil
}

// SetCreateError makes the Create methods return an error.
func (m *MockScheduler) SetCreateError(err error) {
	m.createErr = err
}

// SetDeleteError makes DeleteSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.deleteErr = err
}

// ScheduleExists checks if a schedule exists.
func (m *MockScheduler) ScheduleExists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.schedules[id]
	return exists
}

// ScheduleCount returns the number of schedules.
func (m *MockScheduler) ScheduleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.schedules)
}

// Reset clears all schedules and errors.
func (m *MockScheduler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules = make(map[string]time.Duration)
	m.createErr = nil
	m.deleteErr = nil
}
