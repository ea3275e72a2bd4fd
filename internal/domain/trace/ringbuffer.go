package trace

import "sync"

// RingBuffer is a concurrent-safe fixed-size ring buffer. The dispatcher
// keeps trace entries in one and the in-memory log sink keeps log entries in
// another.
type RingBuffer[T any] struct {
	mu      sync.RWMutex
	entries []T
	size    int
	head    int
	count   int
}

// NewRingBuffer creates a ring buffer that holds up to size entries.
func NewRingBuffer[T any](size int) *RingBuffer[T] {
	if size <= 0 {
		size = 100
	}
	return &RingBuffer[T]{
		entries: make([]T, size),
		size:    size,
	}
}

// Add appends an entry, overwriting the oldest if full.
func (rb *RingBuffer[T]) Add(e T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = e
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
}

// Last returns the last n entries in chronological order.
func (rb *RingBuffer[T]) Last(n int) []T {
	return rb.LastWhere(n, nil)
}

// LastWhere returns up to n of the most recent entries accepted by keep, in
// chronological order. A nil keep accepts everything.
func (rb *RingBuffer[T]) LastWhere(n int, keep func(T) bool) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.count {
		n = rb.count
	}
	if n <= 0 {
		return nil
	}

	// Walk newest to oldest, then reverse.
	result := make([]T, 0, n)
	for i := 0; i < rb.count && len(result) < n; i++ {
		e := rb.entries[(rb.head-1-i+2*rb.size)%rb.size]
		if keep == nil || keep(e) {
			result = append(result, e)
		}
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// Count returns the number of entries currently stored.
func (rb *RingBuffer[T]) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
