package trace

import "sync"

// RingBuffer is a concurrent-safe fixed-size ring buffer for trace entries.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
	head    int
	count   int
}

// NewRingBuffer creates a ring buffer that holds up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 200
	}
	return &RingBuffer{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Add appends an entry, overwriting the oldest if full.
func (rb *RingBuffer) Add(e Entry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = e
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
}

// Last returns the last n entries in chronological order.
func (rb *RingBuffer) Last(n int) []Entry {
	return rb.filter(n, func(Entry) bool { return true })
}

// ForEndpoint returns the last n entries recorded for an endpoint, oldest first.
func (rb *RingBuffer) ForEndpoint(endpointID string, n int) []Entry {
	return rb.filter(n, func(e Entry) bool { return e.EndpointID == endpointID })
}

func (rb *RingBuffer) filter(n int, keep func(Entry) bool) []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || rb.count == 0 {
		return nil
	}

	// Walk newest to oldest, then reverse.
	var result []Entry
	for i := 0; i < rb.count && len(result) < n; i++ {
		e := rb.entries[(rb.head-1-i+2*rb.size)%rb.size]
		if keep(e) {
			result = append(result, e)
		}
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// Reset drops every entry.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries = make([]Entry, rb.size)
	rb.head = 0
	rb.count = 0
}

// Count returns the number of entries currently stored.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
