package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sophialabs/plugmock/internal/infrastructure/outbound/ratelimit"
)

func TestTokenBucketStore_AllowWithinBurst(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	defer store.Stop()
	ctx := context.Background()

	for i := range 3 {
		if !store.Allow(ctx, "users", 1, 3) {
			t.Errorf("request %d should be allowed within burst", i+1)
		}
	}
	if store.Allow(ctx, "users", 1, 3) {
		t.Error("request over burst should be denied")
	}
}

func TestTokenBucketStore_PerKeyIsolation(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	defer store.Stop()
	ctx := context.Background()

	for range 2 {
		store.Allow(ctx, "users", 1, 2)
	}

	if !store.Allow(ctx, "orders", 1, 2) {
		t.Error("orders should be allowed (separate from users)")
	}
}

func TestTokenBucketStore_Reset(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	defer store.Stop()
	ctx := context.Background()

	store.Allow(ctx, "users", 1, 1)
	if store.Allow(ctx, "users", 1, 1) {
		t.Fatal("expected bucket to be empty")
	}

	store.Reset()

	if store.Len() != 0 {
		t.Errorf("expected 0 buckets after reset, got %d", store.Len())
	}
	if !store.Allow(ctx, "users", 1, 1) {
		t.Error("expected a full bucket after reset")
	}
}

func TestTokenBucketStore_Evict(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Millisecond)
	defer store.Stop()

	store.Allow(context.Background(), "old", 1, 1)
	time.Sleep(10 * time.Millisecond)
	store.Evict()

	if store.Len() != 0 {
		t.Errorf("expected 0 after eviction, got %d", store.Len())
	}
}

func TestTokenBucketStore_UpdatedParamsReuseBucket(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	defer store.Stop()
	ctx := context.Background()

	store.Allow(ctx, "users", 1, 2)
	store.Allow(ctx, "users", 10, 20)

	buckets := store.Buckets()
	if len(buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(buckets))
	}
	if buckets[0].Rate != 10 || buckets[0].Burst != 20 {
		t.Errorf("expected updated params, got %+v", buckets[0])
	}
}

func TestTokenBucketStore_Buckets(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	defer store.Stop()
	ctx := context.Background()

	store.Allow(ctx, "b", 1, 5)
	store.Allow(ctx, "a", 1, 5)

	buckets := store.Buckets()
	if len(buckets) != 2 || buckets[0].Key != "a" || buckets[1].Key != "b" {
		t.Fatalf("unexpected buckets: %+v", buckets)
	}
	if buckets[0].Tokens > 4.5 {
		t.Errorf("expected a token to be taken, got %v", buckets[0].Tokens)
	}
}

func TestTokenBucketStore_StopIdempotent(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	store.Stop()
	store.Stop()
}

func TestTokenBucketStore_Concurrent(t *testing.T) {
	store := ratelimit.NewTokenBucketStore(time.Minute)
	defer store.Stop()
	ctx := context.Background()
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Allow(ctx, "concurrent", 100, 100)
		}()
	}

	wg.Wait()

	if store.Len() != 1 {
		t.Errorf("expected 1 bucket, got %d", store.Len())
	}
}
