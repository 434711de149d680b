package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sophialabs/plugmock/internal/infrastructure/ports"
)

var (
	_ ports.RateLimiter        = (*TokenBucketStore)(nil)
	_ ports.RateLimitInspector = (*TokenBucketStore)(nil)
)

type bucket struct {
	limiter  *rate.Limiter
	rate     float64
	burst    int
	lastUsed time.Time
}

// Bucket describes the state of one endpoint's limiter.
type Bucket = ports.Bucket

// TokenBucketStore keeps one token bucket per rate-limit key. Buckets unused
// for longer than the TTL are evicted in the background until Stop is called.
type TokenBucketStore struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewTokenBucketStore creates a store and starts its eviction loop.
func NewTokenBucketStore(ttl time.Duration) *TokenBucketStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	s := &TokenBucketStore{
		buckets: make(map[string]*bucket),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go s.evictLoop()
	return s
}

// Stop terminates the eviction loop. It is idempotent.
func (s *TokenBucketStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *TokenBucketStore) evictLoop() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Evict()
		case <-s.stop:
			return
		}
	}
}

// Allow takes a token from the bucket for key. A changed rate or burst, as
// after a definition reload, is applied to the existing bucket.
func (s *TokenBucketStore) Allow(_ context.Context, key string, r float64, burst int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	switch {
	case !ok:
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(r), burst), rate: r, burst: burst}
		s.buckets[key] = b
	case b.rate != r || b.burst != burst:
		b.limiter.SetLimit(rate.Limit(r))
		b.limiter.SetBurst(burst)
		b.rate, b.burst = r, burst
	}

	b.lastUsed = time.Now()
	return b.limiter.Allow()
}

// Reset drops every bucket so limits start full again.
func (s *TokenBucketStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]*bucket)
}

// Evict removes buckets idle for longer than the TTL.
func (s *TokenBucketStore) Evict() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	for key, b := range s.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
}

// Buckets returns the live buckets sorted by key.
func (s *TokenBucketStore) Buckets() []Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Bucket, 0, len(s.buckets))
	for key, b := range s.buckets {
		out = append(out, Bucket{Key: key, Rate: b.rate, Burst: b.burst, Tokens: b.limiter.Tokens()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of live buckets.
func (s *TokenBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
