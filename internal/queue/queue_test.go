package queue

import (
	"testing"
	"time"

	"github.com/zero2005x/RokidStream-sub001/media"
)

func frameN(n byte) media.Frame {
	return media.Frame{Payload: []byte{n}}
}

func TestPushPopOrder(t *testing.T) {
	t.Parallel()
	q := New(5)
	for i := byte(0); i < 3; i++ {
		q.Push(frameN(i))
	}
	for i := byte(0); i < 3; i++ {
		f, ok := q.Pop(time.Second)
		if !ok {
			t.Fatalf("pop %d timed out", i)
		}
		if f.Payload[0] != i {
			t.Errorf("pop %d: got payload %d", i, f.Payload[0])
		}
	}
}

func TestDropOldest(t *testing.T) {
	t.Parallel()
	const capacity = 4
	q := New(capacity)
	// Push capacity+1 frames: exactly the most recent capacity remain,
	// in order.
	for i := byte(0); i <= capacity; i++ {
		q.Push(frameN(i))
	}
	if q.Len() != capacity {
		t.Fatalf("expected %d queued, got %d", capacity, q.Len())
	}
	if q.Dropped() != 1 {
		t.Errorf("expected 1 dropped, got %d", q.Dropped())
	}
	for i := byte(1); i <= capacity; i++ {
		f, ok := q.Pop(time.Second)
		if !ok {
			t.Fatal("pop timed out")
		}
		if f.Payload[0] != i {
			t.Errorf("expected payload %d, got %d", i, f.Payload[0])
		}
	}
}

func TestPopTimeout(t *testing.T) {
	t.Parallel()
	q := New(1)
	start := time.Now()
	_, ok := q.Pop(20 * time.Millisecond)
	if ok {
		t.Fatal("pop on empty queue should time out")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("pop returned before the timeout elapsed")
	}
}

func TestPopWakesOnPush(t *testing.T) {
	t.Parallel()
	q := New(1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(frameN(7))
	}()
	f, ok := q.Pop(time.Second)
	if !ok {
		t.Fatal("pop should observe the concurrent push")
	}
	if f.Payload[0] != 7 {
		t.Errorf("got payload %d, want 7", f.Payload[0])
	}
}

func TestDrain(t *testing.T) {
	t.Parallel()
	q := New(8)
	for i := byte(0); i < 5; i++ {
		q.Push(frameN(i))
	}
	if n := q.Drain(); n != 5 {
		t.Errorf("drain returned %d, want 5", n)
	}
	if q.Len() != 0 {
		t.Error("queue not empty after drain")
	}
}
