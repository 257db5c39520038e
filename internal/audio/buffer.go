package audio

import (
	"fmt"
	"sync"
)

// RingBuffer is a circular buffer for audio data
// It provides thread-safe read/write operations for streaming audio
type RingBuffer struct {
	mu       sync.RWMutex
	buffer   []byte
	size     int
	writePos int
	readPos  int
	full     bool
}

// NewRingBuffer creates a new ring buffer with the specified size in bytes
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write writes as much of data as fits.
// Returns the number of bytes written and an error if the buffer is full
func (rb *RingBuffer) Write(data []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.full {
		return 0, fmt.Errorf("buffer is full")
	}

	n := rb.size - rb.available()
	if n > len(data) {
		n = len(data)
	}

	first := copy(rb.buffer[rb.writePos:], data[:n])
	copy(rb.buffer, data[first:n])
	rb.writePos = (rb.writePos + n) % rb.size
	if n > 0 && rb.writePos == rb.readPos {
		rb.full = true
	}

	return n, nil
}

// Read reads up to len(data) bytes from the buffer
// Returns the number of bytes read
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := rb.available()
	if n > len(data) {
		n = len(data)
	}
	if n == 0 {
		return 0
	}

	first := copy(data[:n], rb.buffer[rb.readPos:])
	copy(data[first:n], rb.buffer)
	rb.readPos = (rb.readPos + n) % rb.size
	rb.full = false

	return n
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.available()
}

func (rb *RingBuffer) available() int {
	if rb.full {
		return rb.size
	}

	if rb.writePos >= rb.readPos {
		return rb.writePos - rb.readPos
	}

	return rb.size - rb.readPos + rb.writePos
}

// Free returns the number of bytes available to write
func (rb *RingBuffer) Free() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size - rb.available()
}

// Reset clears the buffer
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.readPos = 0
	rb.writePos = 0
	rb.full = false
}

// Blocker cuts an arbitrary stream of device periods into fixed-size blocks.
// The device may hand over fewer or more samples than one block per
// callback; the recognizer always sees whole blocks.
type Blocker struct {
	ring       *RingBuffer
	blockBytes int
}

// NewBlocker creates a blocker emitting blocks of blockBytes bytes
func NewBlocker(blockBytes int) *Blocker {
	return &Blocker{
		ring:       NewRingBuffer(blockBytes * 2),
		blockBytes: blockBytes,
	}
}

// Write appends data and calls emit once per completed block.
// Every emitted slice is freshly allocated and owned by the receiver.
func (b *Blocker) Write(data []byte, emit func([]byte)) {
	for len(data) > 0 {
		// never full here: whole blocks are drained below
		n, _ := b.ring.Write(data)
		data = data[n:]

		for b.ring.Available() >= b.blockBytes {
			block := make([]byte, b.blockBytes)
			b.ring.Read(block)
			emit(block)
		}
	}
}

// Pending returns the number of buffered bytes short of a full block
func (b *Blocker) Pending() int {
	return b.ring.Available()
}

// Reset drops any partial block
func (b *Blocker) Reset() {
	b.ring.Reset()
}
