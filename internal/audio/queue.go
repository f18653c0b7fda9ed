package audio

import (
	"context"
	"sync/atomic"
)

// Chunk is a fixed-size block of mono 16-bit little-endian PCM.
type Chunk struct {
	Seq int64
	PCM []byte
}

// Queue is the bounded FIFO between the capture callback and the
// recognition loop. Push never blocks: when the queue is full the chunk is
// dropped and counted, because stalling the capture path loses more audio
// than dropping one block does.
type Queue struct {
	ch      chan Chunk
	dropped atomic.Int64
}

func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = 1
	}
	return &Queue{ch: make(chan Chunk, depth)}
}

// Push enqueues a chunk without blocking. It reports whether the chunk was
// accepted.
func (q *Queue) Push(c Chunk) bool {
	select {
	case q.ch <- c:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop blocks until a chunk is available or ctx is cancelled.
func (q *Queue) Pop(ctx context.Context) (Chunk, error) {
	select {
	case c := <-q.ch:
		return c, nil
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	}
}

// Drain discards everything currently queued and returns the count. Used
// after bootstrap processing, when the queued window overlaps audio already
// fed through the recognizer.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Len reports the number of chunks currently queued.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped reports how many chunks have been rejected since startup.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
