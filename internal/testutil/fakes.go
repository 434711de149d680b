package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/sophialabs/plugmock/internal/domain/platform"
	"github.com/sophialabs/plugmock/internal/infrastructure/ports"
)

var _ ports.Logger = (*NoopLogger)(nil)

// NoopLogger discards all log output.
type NoopLogger struct{}

func (l *NoopLogger) Info(string, ...any)      {}
func (l *NoopLogger) Warn(string, ...any)      {}
func (l *NoopLogger) Error(string, ...any)     {}
func (l *NoopLogger) Debug(string, ...any)     {}
func (l *NoopLogger) With(...any) ports.Logger { return l }

var _ ports.Clock = (*FixedClock)(nil)

// FixedClock returns a fixed time, never sleeps and never jitters. Requested
// sleeps are recorded.
type FixedClock struct {
	T time.Time

	mu     sync.Mutex
	Sleeps []time.Duration
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) SleepContext(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sleeps = append(c.Sleeps, d)
	return nil
}

func (c *FixedClock) Jitter(time.Duration) time.Duration { return 0 }

var _ ports.RateLimiter = (*StubRateLimiter)(nil)

// StubRateLimiter returns a configurable Allow result.
type StubRateLimiter struct {
	AllowAll bool
	Keys     []string
	Resets   int
}

func (r *StubRateLimiter) Allow(_ context.Context, key string, _ float64, _ int) bool {
	r.Keys = append(r.Keys, key)
	return r.AllowAll
}

func (r *StubRateLimiter) Reset() { r.Resets++ }

var _ platform.Provider = (*RecordingProvider)(nil)

// RecordingProvider is an in-memory provider that counts writes.
type RecordingProvider struct {
	*platform.MemoryProvider
	Writes int
}

// NewRecordingProvider returns an empty RecordingProvider.
func NewRecordingProvider() *RecordingProvider {
	return &RecordingProvider{MemoryProvider: platform.NewMemoryProvider()}
}

func (p *RecordingProvider) SetFlag(name string, value bool) error {
	p.Writes++
	return p.MemoryProvider.SetFlag(name, value)
}

func (p *RecordingProvider) SetStatus(endpointID string, status int) error {
	p.Writes++
	return p.MemoryProvider.SetStatus(endpointID, status)
}

func (p *RecordingProvider) SetActiveScenario(id string) error {
	p.Writes++
	return p.MemoryProvider.SetActiveScenario(id)
}

func (p *RecordingProvider) SetEndpointScenario(endpointID, scenarioID string) error {
	p.Writes++
	return p.MemoryProvider.SetEndpointScenario(endpointID, scenarioID)
}
