package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock drives the manager's notion of time in tests
type fakeClock struct {
	mu sync.Mutex
	at time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

func testSettings() Settings {
	return Settings{
		VolumeThreshold:  5,
		FailureThreshold: 50,
		ResetTimeout:     30 * time.Second,
		CallTimeout:      2 * time.Second,
		RollingWindow:    time.Minute,
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	m := NewManager(testSettings(), zap.NewNop())
	m.now = clock.Now
	return m, clock
}

var errAgentDown = errors.New("agent unreachable")

func succeed(ctx context.Context) error { return nil }
func fail(ctx context.Context) error    { return errAgentDown }

func execute(t *testing.T, m *Manager, fn func(ctx context.Context) error) error {
	t.Helper()
	return m.Execute(context.Background(), "vendor-a", "order", fn)
}

func TestManager_StaysClosedBelowVolumeThreshold(t *testing.T) {
	m, _ := newTestManager(t)

	// four straight failures: 100% failure rate but below the volume floor
	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, execute(t, m, fail), errAgentDown)
	}
	assert.Equal(t, StateClosed, m.State("vendor-a", "order"))
}

func TestManager_StaysClosedBelowFailureRate(t *testing.T) {
	m, _ := newTestManager(t)

	// 4 failures out of 10 = 40%, under the 50% threshold
	for i := 0; i < 4; i++ {
		execute(t, m, fail)
	}
	for i := 0; i < 6; i++ {
		require.NoError(t, execute(t, m, succeed))
	}
	assert.Equal(t, StateClosed, m.State("vendor-a", "order"))
}

func TestManager_TripsOpenAtThreshold(t *testing.T) {
	m, _ := newTestManager(t)

	// 3 failures out of 5 = 60% with volume met
	for i := 0; i < 2; i++ {
		require.NoError(t, execute(t, m, succeed))
	}
	for i := 0; i < 3; i++ {
		execute(t, m, fail)
	}
	assert.Equal(t, StateOpen, m.State("vendor-a", "order"))

	// open breaker rejects without invoking the target
	invoked := false
	err := execute(t, m, func(ctx context.Context) error {
		invoked = true
		return nil
	})
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.False(t, invoked)
	assert.Equal(t, "vendor-a", openErr.VendorID)
	assert.Equal(t, "order", openErr.Operation)
}

func TestManager_HalfOpenAfterResetTimeout(t *testing.T) {
	m, clock := newTestManager(t)

	for i := 0; i < 5; i++ {
		execute(t, m, fail)
	}
	require.Equal(t, StateOpen, m.State("vendor-a", "order"))

	clock.Advance(29 * time.Second)
	assert.Equal(t, StateOpen, m.State("vendor-a", "order"))

	clock.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, m.State("vendor-a", "order"))
}

func TestManager_HalfOpenProbeSuccessCloses(t *testing.T) {
	m, clock := newTestManager(t)

	for i := 0; i < 5; i++ {
		execute(t, m, fail)
	}
	clock.Advance(30 * time.Second)

	require.NoError(t, execute(t, m, succeed))
	assert.Equal(t, StateClosed, m.State("vendor-a", "order"))

	// the window was cleared: old failures must not re-trip the breaker
	require.NoError(t, execute(t, m, succeed))
	assert.Equal(t, StateClosed, m.State("vendor-a", "order"))
}

func TestManager_HalfOpenProbeFailureReopens(t *testing.T) {
	m, clock := newTestManager(t)

	for i := 0; i < 5; i++ {
		execute(t, m, fail)
	}
	clock.Advance(30 * time.Second)

	assert.ErrorIs(t, execute(t, m, fail), errAgentDown)
	assert.Equal(t, StateOpen, m.State("vendor-a", "order"))

	// a full reset timeout is required again before the next probe
	clock.Advance(29 * time.Second)
	assert.Equal(t, StateOpen, m.State("vendor-a", "order"))
	clock.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, m.State("vendor-a", "order"))
}

func TestManager_HalfOpenAdmitsSingleProbe(t *testing.T) {
	m, clock := newTestManager(t)

	for i := 0; i < 5; i++ {
		execute(t, m, fail)
	}
	clock.Advance(30 * time.Second)

	probeStarted := make(chan struct{})
	probeRelease := make(chan struct{})
	probeDone := make(chan error, 1)
	go func() {
		probeDone <- execute(t, m, func(ctx context.Context) error {
			close(probeStarted)
			<-probeRelease
			return nil
		})
	}()
	<-probeStarted

	// second call while the probe is in flight is rejected
	err := execute(t, m, succeed)
	var openErr *OpenError
	assert.ErrorAs(t, err, &openErr)

	close(probeRelease)
	require.NoError(t, <-probeDone)
	assert.Equal(t, StateClosed, m.State("vendor-a", "order"))
}

func TestManager_CallTimeoutCountsAsFailure(t *testing.T) {
	clock := newFakeClock()
	settings := testSettings()
	settings.CallTimeout = 20 * time.Millisecond
	settings.VolumeThreshold = 1
	settings.FailureThreshold = 100
	m := NewManager(settings, zap.NewNop())
	m.now = clock.Now

	err := execute(t, m, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, m.State("vendor-a", "order"))
}

func TestManager_CircuitsAreIndependent(t *testing.T) {
	m, _ := newTestManager(t)

	for i := 0; i < 5; i++ {
		m.Execute(context.Background(), "vendor-a", "order", fail)
	}
	require.Equal(t, StateOpen, m.State("vendor-a", "order"))

	// same vendor, different operation family
	assert.Equal(t, StateClosed, m.State("vendor-a", "catalog"))
	require.NoError(t, m.Execute(context.Background(), "vendor-a", "catalog", succeed))

	// different vendor, same operation family
	assert.Equal(t, StateClosed, m.State("vendor-b", "order"))
	require.NoError(t, m.Execute(context.Background(), "vendor-b", "order", succeed))
}

func TestManager_RollingWindowExpiresOutcomes(t *testing.T) {
	m, clock := newTestManager(t)

	// four failures, then let them age out of the window
	for i := 0; i < 4; i++ {
		execute(t, m, fail)
	}
	clock.Advance(2 * time.Minute)

	// one more failure is the only outcome left: volume floor keeps it closed
	execute(t, m, fail)
	assert.Equal(t, StateClosed, m.State("vendor-a", "order"))
}

func TestManager_Reset(t *testing.T) {
	m, _ := newTestManager(t)

	for i := 0; i < 5; i++ {
		execute(t, m, fail)
	}
	require.Equal(t, StateOpen, m.State("vendor-a", "order"))

	m.Reset("vendor-a", "order")
	assert.Equal(t, StateClosed, m.State("vendor-a", "order"))
	require.NoError(t, execute(t, m, succeed))
}

func TestManager_OnStateChange(t *testing.T) {
	m, clock := newTestManager(t)

	var mu sync.Mutex
	var changes []StateChange
	m.OnStateChange(func(c StateChange) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		execute(t, m, fail)
	}
	clock.Advance(30 * time.Second)
	require.NoError(t, execute(t, m, succeed))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changes, 2)
	assert.Equal(t, StateClosed, changes[0].From)
	assert.Equal(t, StateOpen, changes[0].To)
	assert.Equal(t, StateHalfOpen, changes[1].From)
	assert.Equal(t, StateClosed, changes[1].To)
}

func TestManager_AllStates(t *testing.T) {
	m, _ := newTestManager(t)

	execute(t, m, succeed)
	m.Execute(context.Background(), "vendor-b", "catalog", succeed)

	states := m.AllStates()
	assert.Equal(t, StateClosed, states["vendor-a|order"])
	assert.Equal(t, StateClosed, states["vendor-b|catalog"])
}
