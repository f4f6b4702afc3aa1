// Package ringchan provides a bounded channel that never blocks its producer.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// Channel is a buffered channel with overwrite-oldest semantics. Producers call
// Send, which always returns immediately; consumers range over C(). When the
// consumer falls behind, it sees the newest capacity values and the rest are counted
// as overwritten.
//
//	rc := ringchan.New[extractor.Snapshot](1)
//	rc.Send(snap) // never blocks
//	for s := range rc.C() { ... }
type Channel[T any] struct {
	ch chan T

	sendMu sync.Mutex // serializes producers so drop-then-send cannot interleave
	closed bool

	written     atomic.Int64
	overwritten atomic.Int64
}

// New creates a Channel with the given capacity.
func New[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Channel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. It is closed by Close.
func (rc *Channel[T]) C() <-chan T {
	return rc.ch
}

// Send enqueues v, discarding the oldest buffered value if the buffer is full.
// It reports whether something was discarded. Send after Close is a no-op.
func (rc *Channel[T]) Send(v T) (dropped bool) {
	rc.sendMu.Lock()
	defer rc.sendMu.Unlock()

	if rc.closed {
		return false
	}
	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return dropped
		default:
		}
		select {
		case <-rc.ch:
			rc.overwritten.Add(1)
			dropped = true
		default:
			// a consumer drained it in between; retry the send
		}
	}
}

// Len returns the number of buffered values.
func (rc *Channel[T]) Len() int {
	return len(rc.ch)
}

// Close closes the receive side. It is safe to call more than once.
func (rc *Channel[T]) Close() {
	rc.sendMu.Lock()
	defer rc.sendMu.Unlock()
	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}

// Stats counts values accepted by Send and values discarded to make room.
type Stats struct {
	Written     int64
	Overwritten int64
}

func (rc *Channel[T]) Stats() Stats {
	return Stats{
		Written:     rc.written.Load(),
		Overwritten: rc.overwritten.Load(),
	}
}
