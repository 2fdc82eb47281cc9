package tracker

import "sync"

// RotationQueue visits a fixed set of ticker symbols in round-robin order.
// One symbol is popped per scheduler tick and pushed back once the tick
// finishes, which bounds the aggregate quote API call rate to one call per
// tick interval. The queue is safe for concurrent use by overlapping ticks.
type RotationQueue struct {
	mu      sync.Mutex
	symbols []string
}

// NewRotationQueue creates a queue seeded with the watched symbols
func NewRotationQueue(symbols []string) *RotationQueue {
	q := &RotationQueue{
		symbols: make([]string, len(symbols)),
	}
	copy(q.symbols, symbols)
	return q
}

// Pop removes and returns the symbol at the front of the queue.
// The second return value is false when the queue is empty.
func (q *RotationQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.symbols) == 0 {
		return "", false
	}
	symbol := q.symbols[0]
	q.symbols = q.symbols[1:]
	return symbol, true
}

// Push appends a symbol to the back of the queue
func (q *RotationQueue) Push(symbol string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.symbols = append(q.symbols, symbol)
}

// Len returns the number of symbols currently queued
func (q *RotationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.symbols)
}

// Snapshot returns a copy of the queued symbols in rotation order
func (q *RotationQueue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.symbols))
	copy(out, q.symbols)
	return out
}
