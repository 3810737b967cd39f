// Package timeutil provides time-related utilities and abstractions.
// It facilitates easier testing of time-dependent code such as the
// provisioning-break window.
package timeutil

import (
	"sync"
	"time"
)

// Provider defines an interface for time operations,
// allowing for easier testing by providing a way to mock time.
type Provider interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses the current goroutine for the given duration.
	Sleep(d time.Duration)
}

// RealProvider is the default implementation of Provider that
// provides access to the actual system time.
type RealProvider struct{}

// Now returns the current time in UTC.
func (RealProvider) Now() time.Time { return time.Now().UTC() }

// Sleep pauses the current goroutine for the given duration.
func (RealProvider) Sleep(d time.Duration) { time.Sleep(d) }

// Mock is an implementation of Provider used for testing,
// allowing tests to control what time is returned. It is safe for
// concurrent use.
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the preset time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// SetNow directly sets the current time to the provided time.
func (m *Mock) SetNow(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the mock time forward by the specified duration.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Sleep advances the mock time instead of blocking.
func (m *Mock) Sleep(d time.Duration) { m.Advance(d) }

// Default returns a Provider implementation that uses the real system time.
func Default() Provider { return RealProvider{} }

// NewMock creates a new mock time provider with the specified time.
func NewMock(t time.Time) *Mock { return &Mock{now: t} }

// Millis returns t as Unix milliseconds, the resolution used by the
// provisioning-break window.
func Millis(t time.Time) int64 { return t.UnixMilli() }
