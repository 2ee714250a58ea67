package containers

import (
	"errors"
	"testing"
)

func TestRingQueueWrapsAround(t *testing.T) {
	rq := NewRingQueue[int](3)
	for i := 1; i <= 3; i++ {
		if err := rq.Enqueue(i); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := rq.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("enqueue on full queue: got %v, want %v", err, ErrQueueFull)
	}

	if v, _ := rq.Dequeue(); v != 1 {
		t.Fatalf("dequeue = %d, want 1", v)
	}
	if err := rq.Enqueue(4); err != nil {
		t.Fatalf("enqueue after dequeue: %v", err)
	}

	want := []int{2, 3, 4}
	for _, w := range want {
		if p, _ := rq.Peek(); p != w {
			t.Fatalf("peek = %d, want %d", p, w)
		}
		v, err := rq.Dequeue()
		if err != nil || v != w {
			t.Fatalf("dequeue = %d, %v, want %d", v, err, w)
		}
	}
	if !rq.IsEmpty() || rq.Len() != 0 {
		t.Fatal("queue not empty")
	}
	if _, err := rq.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("dequeue on empty queue: got %v", err)
	}
}
