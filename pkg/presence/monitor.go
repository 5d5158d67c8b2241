// Package presence tracks whether a subject is currently being reported by
// the sensor and announces when one has gone missing for too long.
package presence

import (
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-follower/internal/clock"
	"github.com/teslashibe/go-follower/pkg/dispatch"
	"github.com/teslashibe/go-follower/pkg/protocol"
)

// DefaultTimeout is how long the sensor may stay silent before the
// subject is considered gone.
const DefaultTimeout = 3 * time.Second

// ConfigError reports an unusable timeout.
type ConfigError struct {
	Timeout time.Duration
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("presence: timeout must be positive, got %v", e.Timeout)
}

// Monitor is a two-state machine, SILENT and PRESENT. Non-empty batches
// move it to PRESENT; Tick moves it back to SILENT once nothing has been
// seen for longer than the timeout. Empty batches are ignored, so an idle
// sensor never clears a subject early.
type Monitor struct {
	timeout time.Duration
	clock   clock.Clock

	mu      sync.RWMutex
	present bool
	last    time.Time

	cleared dispatch.Registry[struct{}]
	gained  dispatch.Registry[struct{}]
}

// New creates a monitor. A nil clock means wall time.
func New(timeout time.Duration, clk clock.Clock) (*Monitor, error) {
	if clk == nil {
		clk = clock.Real()
	}
	m := &Monitor{timeout: timeout, clock: clk}
	if timeout <= 0 {
		return m, &ConfigError{Timeout: timeout}
	}
	return m, nil
}

// Timeout returns the configured silence limit.
func (m *Monitor) Timeout() time.Duration {
	return m.timeout
}

// OnCleared registers fn to run once per PRESENT→SILENT transition.
func (m *Monitor) OnCleared(fn func()) dispatch.Handle {
	if fn == nil {
		return 0
	}
	return m.cleared.Add(func(struct{}) { fn() })
}

// OnPresent registers fn to run once per SILENT→PRESENT transition.
func (m *Monitor) OnPresent(fn func()) dispatch.Handle {
	if fn == nil {
		return 0
	}
	return m.gained.Add(func(struct{}) { fn() })
}

// Remove drops a callback registered with OnCleared or OnPresent.
func (m *Monitor) Remove(h dispatch.Handle) bool {
	return m.cleared.Remove(h) || m.gained.Remove(h)
}

// Observe records a delivered batch.
func (m *Monitor) Observe(b protocol.Batch) {
	if b.Empty() || m.timeout <= 0 {
		return
	}

	m.mu.Lock()
	wasPresent := m.present
	m.present = true
	m.last = m.clock.Now()
	m.mu.Unlock()

	if !wasPresent {
		m.gained.Notify(struct{}{})
	}
}

// Tick checks the timeout. It reports whether the subject was cleared on
// this call.
func (m *Monitor) Tick() bool {
	if m.timeout <= 0 {
		return false
	}

	m.mu.Lock()
	if !m.present || m.clock.Now().Sub(m.last) <= m.timeout {
		m.mu.Unlock()
		return false
	}
	m.present = false
	m.last = time.Time{}
	m.mu.Unlock()

	m.cleared.Notify(struct{}{})
	return true
}

// Present reports whether the monitor is in the PRESENT state.
func (m *Monitor) Present() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.present
}

// LastSeen returns when the last non-empty batch was observed. The second
// result is false while SILENT.
func (m *Monitor) LastSeen() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.present
}
