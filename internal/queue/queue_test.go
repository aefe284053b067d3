package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 10; i++ {
		if !q.Push(i) {
			t.Fatalf("push %d rejected", i)
		}
	}
	if q.Len() != 10 {
		t.Fatalf("expected len 10, got %d", q.Len())
	}
	for i := 0; i < 10; i++ {
		v, ok := q.Pop()
		if !ok || v != i {
			t.Fatalf("expected %d, got %d (ok=%v)", i, v, ok)
		}
		q.Done()
	}
	if q.Pending() != 0 {
		t.Errorf("expected no pending items, got %d", q.Pending())
	}
}

func TestQueueCloseDrainsThenStops(t *testing.T) {
	q := New[string]()
	q.Push("a")
	q.Push("b")
	q.Close()

	if q.Push("c") {
		t.Error("push after close should be rejected")
	}

	var got []string
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, v)
		q.Done()
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected items %v", got)
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := New[int]()
	result := make(chan int, 1)
	go func() {
		v, _ := q.Pop()
		result <- v
	}()

	select {
	case <-result:
		t.Fatal("Pop returned before any push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(42)
	select {
	case v := <-result:
		if v != 42 {
			t.Errorf("expected 42, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := New[int]()
	const producers = 20
	const perProducer = 500

	var consumed []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			v, ok := q.Pop()
			if !ok {
				return
			}
			consumed = append(consumed, v)
			q.Done()
		}
	}()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(p*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
	q.Close()
	<-done

	if len(consumed) != producers*perProducer {
		t.Fatalf("expected %d items, got %d", producers*perProducer, len(consumed))
	}

	// Per-producer order must be preserved and nothing duplicated
	seen := make(map[int]bool, len(consumed))
	last := make(map[int]int)
	for _, v := range consumed {
		if seen[v] {
			t.Fatalf("duplicate item %d", v)
		}
		seen[v] = true
		p := v / perProducer
		if prev, ok := last[p]; ok && v < prev {
			t.Fatalf("producer %d out of order: %d after %d", p, v, prev)
		}
		last[p] = v
	}
}

func TestQueueWaitIdleTimeout(t *testing.T) {
	q := New[int]()
	q.Push(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.WaitIdle(ctx); err == nil {
		t.Error("expected timeout while an item is pending")
	}

	q.Pop()
	q.Done()
	if err := q.WaitIdle(context.Background()); err != nil {
		t.Errorf("expected idle queue, got %v", err)
	}
}

func TestQueueDiscard(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	v, _ := q.Pop()
	if v != 0 {
		t.Fatalf("expected 0, got %d", v)
	}

	if n := q.Discard(); n != 4 {
		t.Errorf("expected 4 discarded, got %d", n)
	}
	if q.Pending() != 1 {
		t.Errorf("expected the popped item to remain pending, got %d", q.Pending())
	}
	q.Done()

	if err := q.WaitIdle(context.Background()); err != nil {
		t.Errorf("expected idle after discard, got %v", err)
	}
}
