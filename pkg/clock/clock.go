// Package clock abstracts the wall clock so that response timestamps
// can be pinned in tests.
package clock

import "time"

// Face is the interface for a clock that can be used to get the current time.
//
// This is useful for testing.
type Face interface {
	// Now returns the current time.
	Now() time.Time
}

// System is the system clock.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time {
	return time.Now()
}

// Mock is a manually driven clock.
type Mock struct {
	now time.Time
}

// NewMock returns a mock clock stopped at the given time.
func NewMock(now time.Time) *Mock {
	return &Mock{now: now}
}

// Now returns the current time of the mock.
func (m *Mock) Now() time.Time {
	return m.now
}

// Set moves the mock to the given time.
func (m *Mock) Set(now time.Time) {
	m.now = now
}

// Advance moves the mock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}
