package loop

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestQueue_RunPendingPreservesOrder(t *testing.T) {
	q := New()
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		q.Post(func() { got = append(got, i) })
	}
	if n := q.RunPending(); n != 5 {
		t.Fatalf("RunPending = %d, want 5", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestQueue_RunPendingIncludesNestedPosts(t *testing.T) {
	q := New()
	var order []string
	q.Post(func() {
		order = append(order, "outer")
		q.Post(func() { order = append(order, "inner") })
	})
	q.RunPending()
	if len(order) != 2 || order[1] != "inner" {
		t.Fatalf("order = %v, want [outer inner]", order)
	}
}

func TestQueue_RunUntilWaitsForCrossGoroutinePosts(t *testing.T) {
	q := New()
	count := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Post(func() { count++ })
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.RunUntil(ctx, func() bool { return count == 10 }); err != nil {
		t.Fatalf("RunUntil returned error: %v", err)
	}
	wg.Wait()
}

func TestQueue_RunUntilHonoursContext(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.RunUntil(ctx, func() bool { return false }); err == nil {
		t.Fatal("RunUntil returned nil, want deadline error")
	}
}

func TestQueue_CloseDropsPosts(t *testing.T) {
	q := New()
	q.Post(func() { t.Fatal("closure ran after Close") })
	q.Close()
	q.Post(func() { t.Fatal("closure ran after Close") })
	if n := q.RunPending(); n != 0 {
		t.Fatalf("RunPending = %d, want 0", n)
	}
	if _, ok := q.Next(context.Background()); ok {
		t.Fatal("Next on closed queue returned ok")
	}
}
