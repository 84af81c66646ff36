// Package breaker implements a per-vendor, per-operation circuit breaker
// guarding all outbound agent calls. Statistics are kept over a rolling
// window; the breaker trips when the window holds enough calls and too many
// of them failed.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle state of one breaker
type State string

const (
	// StateClosed lets calls through and records outcomes
	StateClosed State = "CLOSED"
	// StateOpen rejects calls without invoking the target
	StateOpen State = "OPEN"
	// StateHalfOpen lets a single probe call through
	StateHalfOpen State = "HALF_OPEN"
)

// String returns the string representation of State
func (s State) String() string {
	return string(s)
}

// OpenError is returned when a call is rejected because the breaker is open.
// Callers treat it as a retryable dispatch failure.
type OpenError struct {
	// VendorID identifies the guarded agent
	VendorID string
	// Operation is the guarded operation family
	Operation string
	// RetryAt is when the breaker will next admit a probe
	RetryAt time.Time
}

// Error implements the error interface
func (e *OpenError) Error() string {
	return fmt.Sprintf("breaker: circuit open for %s/%s until %s",
		e.VendorID, e.Operation, e.RetryAt.Format(time.RFC3339))
}

// Settings holds the thresholds shared by every breaker in a Manager
type Settings struct {
	// VolumeThreshold is the minimum calls in the window before tripping
	VolumeThreshold int
	// FailureThreshold is the failure percentage (0-100) that trips the breaker
	FailureThreshold float64
	// ResetTimeout is how long an open breaker waits before probing
	ResetTimeout time.Duration
	// CallTimeout is the per-call hard timeout counted as a failure
	CallTimeout time.Duration
	// RollingWindow is the statistics window duration
	RollingWindow time.Duration
}

// StateChange describes one breaker state transition
type StateChange struct {
	VendorID  string
	Operation string
	From      State
	To        State
}

// outcome is one recorded call result inside the rolling window
type outcome struct {
	at      time.Time
	success bool
}

// circuit is the state of one (vendor, operation) pair
type circuit struct {
	state    State
	outcomes []outcome
	openedAt time.Time
	probing  bool
}

// Manager owns the breakers of all (vendor, operation) pairs. Breakers are
// created lazily on first use.
type Manager struct {
	settings Settings
	logger   *zap.Logger

	mu       sync.Mutex
	circuits map[string]*circuit

	// now is replaceable in tests
	now func() time.Time

	// onStateChange, when set, is invoked outside the manager lock after
	// every transition
	onStateChange func(StateChange)
}

// NewManager creates a breaker manager with the given settings
func NewManager(settings Settings, logger *zap.Logger) *Manager {
	return &Manager{
		settings: settings,
		logger:   logger,
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

// OnStateChange registers a transition callback. Must be called before the
// manager is shared across goroutines.
func (m *Manager) OnStateChange(fn func(StateChange)) {
	m.onStateChange = fn
}

func key(vendorID, operation string) string {
	return vendorID + "|" + operation
}

// Execute runs fn under the breaker for (vendorID, operation). When the
// breaker is open it returns *OpenError without invoking fn. The call is
// bounded by the configured call timeout; a timeout counts as a failure.
// On timeout Execute returns context.DeadlineExceeded while fn keeps running
// in its abandoned goroutine until its own context expires.
func (m *Manager) Execute(ctx context.Context, vendorID, operation string, fn func(ctx context.Context) error) error {
	if err := m.beforeCall(vendorID, operation); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, m.settings.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		m.afterCall(vendorID, operation, err == nil)
		return err
	case <-callCtx.Done():
		m.afterCall(vendorID, operation, false)
		return callCtx.Err()
	}
}

// State returns the current state of one breaker. Unused pairs report closed.
func (m *Manager) State(vendorID, operation string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.circuits[key(vendorID, operation)]
	if !ok {
		return StateClosed
	}
	m.refresh(c)
	return c.state
}

// AllStates returns the state of every breaker seen so far, keyed by
// "vendor|operation"
func (m *Manager) AllStates() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	states := make(map[string]State, len(m.circuits))
	for k, c := range m.circuits {
		m.refresh(c)
		states[k] = c.state
	}
	return states
}

// Reset forces one breaker back to closed and clears its window
func (m *Manager) Reset(vendorID, operation string) {
	m.mu.Lock()
	c, ok := m.circuits[key(vendorID, operation)]
	var change *StateChange
	if ok && c.state != StateClosed {
		change = &StateChange{
			VendorID:  vendorID,
			Operation: operation,
			From:      c.state,
			To:        StateClosed,
		}
	}
	if ok {
		c.state = StateClosed
		c.outcomes = nil
		c.probing = false
	}
	m.mu.Unlock()
	m.notify(change)
}

// beforeCall admits or rejects the call and claims the half-open probe slot
func (m *Manager) beforeCall(vendorID, operation string) error {
	m.mu.Lock()
	k := key(vendorID, operation)
	c, ok := m.circuits[k]
	if !ok {
		c = &circuit{state: StateClosed}
		m.circuits[k] = c
	}
	m.refresh(c)

	var rejection error
	switch c.state {
	case StateOpen:
		rejection = &OpenError{
			VendorID:  vendorID,
			Operation: operation,
			RetryAt:   c.openedAt.Add(m.settings.ResetTimeout),
		}
	case StateHalfOpen:
		if c.probing {
			rejection = &OpenError{
				VendorID:  vendorID,
				Operation: operation,
				RetryAt:   c.openedAt.Add(m.settings.ResetTimeout),
			}
		} else {
			c.probing = true
		}
	}
	m.mu.Unlock()
	return rejection
}

// afterCall records the outcome and applies transitions
func (m *Manager) afterCall(vendorID, operation string, success bool) {
	now := m.now()
	m.mu.Lock()
	c, ok := m.circuits[key(vendorID, operation)]
	if !ok {
		m.mu.Unlock()
		return
	}

	var change *StateChange
	switch c.state {
	case StateHalfOpen:
		c.probing = false
		if success {
			change = m.transition(c, vendorID, operation, StateClosed)
			c.outcomes = nil
		} else {
			change = m.transition(c, vendorID, operation, StateOpen)
			c.openedAt = now
		}
	default:
		c.outcomes = append(c.outcomes, outcome{at: now, success: success})
		m.prune(c, now)
		if c.state == StateClosed && m.shouldTrip(c) {
			change = m.transition(c, vendorID, operation, StateOpen)
			c.openedAt = now
		}
	}
	m.mu.Unlock()
	m.notify(change)
}

// refresh moves an expired open breaker to half-open. Caller holds the lock.
func (m *Manager) refresh(c *circuit) {
	if c.state == StateOpen && m.now().Sub(c.openedAt) >= m.settings.ResetTimeout {
		c.state = StateHalfOpen
		c.probing = false
	}
}

// prune drops outcomes older than the rolling window. Caller holds the lock.
func (m *Manager) prune(c *circuit, now time.Time) {
	cutoff := now.Add(-m.settings.RollingWindow)
	idx := 0
	for idx < len(c.outcomes) && c.outcomes[idx].at.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		c.outcomes = append([]outcome(nil), c.outcomes[idx:]...)
	}
}

// shouldTrip checks the volume and failure-rate thresholds. Caller holds the
// lock.
func (m *Manager) shouldTrip(c *circuit) bool {
	total := len(c.outcomes)
	if total < m.settings.VolumeThreshold {
		return false
	}
	failures := 0
	for _, o := range c.outcomes {
		if !o.success {
			failures++
		}
	}
	rate := float64(failures) / float64(total) * 100
	return rate >= m.settings.FailureThreshold
}

// transition changes state and returns the change record. Caller holds the
// lock.
func (m *Manager) transition(c *circuit, vendorID, operation string, to State) *StateChange {
	if c.state == to {
		return nil
	}
	change := &StateChange{
		VendorID:  vendorID,
		Operation: operation,
		From:      c.state,
		To:        to,
	}
	c.state = to
	return change
}

// notify logs and dispatches a transition outside the lock
func (m *Manager) notify(change *StateChange) {
	if change == nil {
		return
	}
	m.logger.Info("circuit breaker state change",
		zap.String("vendor_id", change.VendorID),
		zap.String("operation", change.Operation),
		zap.String("from", change.From.String()),
		zap.String("to", change.To.String()))
	if m.onStateChange != nil {
		m.onStateChange(*change)
	}
}
