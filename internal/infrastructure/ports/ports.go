package ports

import (
	"context"
	"time"
)

// Logger provides structured logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
	// With returns a logger that adds args to every record.
	With(args ...any) Logger
}

// Clock provides time and simulated latency.
type Clock interface {
	Now() time.Time
	// SleepContext blocks for d or until ctx is cancelled. Returns ctx.Err() if cancelled.
	SleepContext(ctx context.Context, d time.Duration) error
	// Jitter returns a random duration in [0, max).
	Jitter(max time.Duration) time.Duration
}

// RateLimiter checks whether a request is allowed under rate limits.
type RateLimiter interface {
	// Allow reports whether a request identified by key fits the bucket.
	// rate is tokens per second, burst is the max burst size.
	Allow(ctx context.Context, key string, rate float64, burst int) bool
	// Reset forgets every bucket.
	Reset()
}

// Bucket describes the state of one rate-limit key.
type Bucket struct {
	Key    string  `json:"key"`
	Rate   float64 `json:"rate"`
	Burst  int     `json:"burst"`
	Tokens float64 `json:"tokens"`
}

// RateLimitInspector lists live rate-limit buckets.
type RateLimitInspector interface {
	Buckets() []Bucket
}
