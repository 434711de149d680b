package trace_test

import (
	"sync"
	"testing"
	"time"

	"github.com/sophialabs/plugmock/internal/domain/trace"
)

func TestRingBuffer_AddAndLast(t *testing.T) {
	rb := trace.NewRingBuffer(3)

	if rb.Count() != 0 {
		t.Fatalf("expected count 0, got %d", rb.Count())
	}

	rb.Add(trace.Entry{EndpointID: "a", Outcome: trace.OutcomeMocked})
	rb.Add(trace.Entry{EndpointID: "b", Outcome: trace.OutcomePassthrough})

	entries := rb.Last(5)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].EndpointID != "a" {
		t.Errorf("expected a, got %s", entries[0].EndpointID)
	}
	if entries[1].Outcome != trace.OutcomePassthrough {
		t.Errorf("expected passthrough, got %s", entries[1].Outcome)
	}
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := trace.NewRingBuffer(3)

	for _, id := range []string{"a", "b", "c", "d"} {
		rb.Add(trace.Entry{EndpointID: id})
	}

	if rb.Count() != 3 {
		t.Fatalf("expected count 3, got %d", rb.Count())
	}

	entries := rb.Last(3)
	want := []string{"b", "c", "d"}
	for i, e := range entries {
		if e.EndpointID != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], e.EndpointID)
		}
	}
}

func TestRingBuffer_ForEndpoint(t *testing.T) {
	rb := trace.NewRingBuffer(4)

	rb.Add(trace.Entry{EndpointID: "users", Status: 200})
	rb.Add(trace.Entry{EndpointID: "orders", Status: 200})
	rb.Add(trace.Entry{EndpointID: "users", Status: 500})
	rb.Add(trace.Entry{EndpointID: "users", Status: 404})
	rb.Add(trace.Entry{EndpointID: "orders", Status: 201})

	entries := rb.ForEndpoint("users", 2)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != 500 || entries[1].Status != 404 {
		t.Errorf("unexpected order: %+v", entries)
	}

	// The first users entry was overwritten.
	if got := len(rb.ForEndpoint("users", 10)); got != 2 {
		t.Errorf("expected 2 surviving users entries, got %d", got)
	}
	if got := rb.ForEndpoint("missing", 10); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestRingBuffer_LastZero(t *testing.T) {
	rb := trace.NewRingBuffer(5)
	rb.Add(trace.Entry{EndpointID: "a"})

	if entries := rb.Last(0); entries != nil {
		t.Errorf("expected nil, got %v", entries)
	}
}

func TestRingBuffer_Reset(t *testing.T) {
	rb := trace.NewRingBuffer(2)
	rb.Add(trace.Entry{EndpointID: "a"})
	rb.Reset()

	if rb.Count() != 0 || rb.Last(10) != nil {
		t.Error("expected empty buffer after reset")
	}
	rb.Add(trace.Entry{EndpointID: "b"})
	if entries := rb.Last(1); len(entries) != 1 || entries[0].EndpointID != "b" {
		t.Errorf("unexpected entries after reset: %v", entries)
	}
}

func TestRingBuffer_Concurrency(t *testing.T) {
	rb := trace.NewRingBuffer(100)
	var wg sync.WaitGroup
	n := 50

	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rb.Add(trace.Entry{Timestamp: time.Now(), EndpointID: "concurrent"})
		}()
	}

	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rb.Last(10)
			_ = rb.ForEndpoint("concurrent", 5)
		}()
	}

	wg.Wait()

	if rb.Count() != n {
		t.Errorf("expected count %d, got %d", n, rb.Count())
	}
}
