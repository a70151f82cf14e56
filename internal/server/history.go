// Package server maintains the bounded buffer of recent chat messages that is
// replayed to joining clients.
package server

import "sync"

// HistoryBuffer is a fixed-capacity FIFO ring of chat messages. Once full,
// each append evicts the oldest entry. Insertion order is the order the hub
// processed the messages.
type HistoryBuffer struct {
	mu       sync.Mutex
	buf      []ChatMessage
	head     int // oldest entry
	count    int
	capacity int
}

// NewHistoryBuffer creates an empty buffer holding at most capacity messages.
func NewHistoryBuffer(capacity int) *HistoryBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &HistoryBuffer{
		buf:      make([]ChatMessage, capacity),
		capacity: capacity,
	}
}

// Append adds a message, evicting the oldest entry when the buffer is full.
func (b *HistoryBuffer) Append(msg ChatMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := (b.head + b.count) % b.capacity
	b.buf[tail] = msg
	if b.count == b.capacity {
		b.head = (b.head + 1) % b.capacity
	} else {
		b.count++
	}
}

// Snapshot returns a copy of the buffered messages, oldest first.
func (b *HistoryBuffer) Snapshot() []ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	out := make([]ChatMessage, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.buf[(b.head+i)%b.capacity]
	}
	return out
}

// Len returns the current number of buffered messages.
func (b *HistoryBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *HistoryBuffer) Cap() int {
	return b.capacity
}
