package audio

import (
	"context"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(4)
	for i := int64(0); i < 3; i++ {
		if !q.Push(Chunk{Seq: i, PCM: []byte{byte(i)}}) {
			t.Fatalf("push %d rejected", i)
		}
	}
	for i := int64(0); i < 3; i++ {
		c, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if c.Seq != i {
			t.Fatalf("expected seq %d, got %d", i, c.Seq)
		}
	}
}

func TestQueuePushNeverBlocks(t *testing.T) {
	q := NewQueue(2)
	q.Push(Chunk{Seq: 0})
	q.Push(Chunk{Seq: 1})

	done := make(chan bool, 1)
	go func() {
		done <- q.Push(Chunk{Seq: 2})
	}()
	select {
	case accepted := <-done:
		if accepted {
			t.Fatal("expected push into full queue to be rejected")
		}
	case <-time.After(time.Second):
		t.Fatal("push blocked on full queue")
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 dropped chunk, got %d", q.Dropped())
	}
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue(8)
	for i := int64(0); i < 5; i++ {
		q.Push(Chunk{Seq: i})
	}
	if n := q.Drain(); n != 5 {
		t.Fatalf("expected 5 drained, got %d", n)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after drain, got %d", q.Len())
	}
}

func TestQueuePopCancelled(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Pop(ctx); err == nil {
		t.Fatal("expected error from cancelled pop")
	}
}
