// Package clock abstracts wall-clock reads and timers so that the refresh
// schedule can be driven deterministically in tests.
package clock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Clock provides the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	NowUnixMilli() int64
	// After delivers the clock's time once d has elapsed. d <= 0 fires
	// immediately.
	After(d time.Duration) <-chan time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NowUnixMilli() int64 { return time.Now().UnixMilli() }

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type mockWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// MockClock is a manually driven Clock. Timers created with After fire only
// when Set or Advance move the clock to or past their deadline.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []mockWaiter
	// notify receives a value each time a timer is registered.
	notify chan struct{}
}

// NewMockClock creates a MockClock reading t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t, notify: make(chan struct{}, 64)}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockClock) NowUnixMilli() int64 {
	return m.Now().UnixMilli()
}

func (m *MockClock) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- m.now
		return ch
	}
	m.waiters = append(m.waiters, mockWaiter{deadline: m.now.Add(d), ch: ch})
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return ch
}

// Set moves the clock to t and fires every timer that is now due.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
	m.fireLocked()
}

// Advance moves the clock by d. Negative values move it backwards.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	m.fireLocked()
}

// Waiters reports how many timers are pending.
func (m *MockClock) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

// NextDeadline returns the earliest pending timer deadline.
func (m *MockClock) NextDeadline() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.waiters) == 0 {
		return time.Time{}, false
	}
	earliest := m.waiters[0].deadline
	for _, w := range m.waiters[1:] {
		if w.deadline.Before(earliest) {
			earliest = w.deadline
		}
	}
	return earliest, true
}

// BlockUntilWaiters waits until at least n timers are pending or timeout
// elapses, and reports whether the count was reached.
func (m *MockClock) BlockUntilWaiters(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if m.Waiters() >= n {
			return true
		}
		select {
		case <-m.notify:
		case <-deadline:
			return m.Waiters() >= n
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (m *MockClock) fireLocked() {
	if len(m.waiters) == 0 {
		return
	}
	sort.SliceStable(m.waiters, func(i, j int) bool {
		return m.waiters[i].deadline.Before(m.waiters[j].deadline)
	})
	kept := m.waiters[:0]
	for _, w := range m.waiters {
		if !w.deadline.After(m.now) {
			w.ch <- m.now
			continue
		}
		kept = append(kept, w)
	}
	m.waiters = kept
}

// EnvironmentClock reads the time from an environment variable, then a file,
// then the system clock. It lets a deployment replay a fixed moment, e.g. to
// reproduce the departures shown at a given time.
type EnvironmentClock struct {
	envVar   string
	filePath string
	location *time.Location
	logger   *slog.Logger
}

// NewEnvironmentClock builds an EnvironmentClock. Times without an explicit
// offset are interpreted in location.
func NewEnvironmentClock(envVar, filePath string, location *time.Location, logger *slog.Logger) *EnvironmentClock {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnvironmentClock{
		envVar:   envVar,
		filePath: filePath,
		location: location,
		logger:   logger,
	}
}

func (e *EnvironmentClock) Now() time.Time {
	if t, err := e.fromEnvVar(); err == nil {
		return t
	}
	if t, err := e.fromFile(); err == nil {
		return t
	}
	e.logger.Debug("environment clock unset, using system time",
		slog.String("env_var", e.envVar), slog.String("file", e.filePath))
	return time.Now()
}

func (e *EnvironmentClock) NowUnixMilli() int64 { return e.Now().UnixMilli() }

// After uses real timers; a pinned clock does not stop time from passing.
func (e *EnvironmentClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (e *EnvironmentClock) fromEnvVar() (time.Time, error) {
	if e.envVar == "" {
		return time.Time{}, errors.New("no environment variable configured")
	}
	raw := os.Getenv(e.envVar)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is empty", e.envVar)
	}
	return e.parse(raw)
}

func (e *EnvironmentClock) fromFile() (time.Time, error) {
	if e.filePath == "" {
		return time.Time{}, errors.New("no clock file configured")
	}
	data, err := os.ReadFile(e.filePath)
	if err != nil {
		return time.Time{}, err
	}
	return e.parse(string(data))
}

var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"20060102 15:04",
	"2006-01-02",
}

func (e *EnvironmentClock) parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if e.location == nil {
		return time.Time{}, errors.New("no location configured for local time")
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, e.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse clock value %q", s)
}
