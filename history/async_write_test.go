package history

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAsyncWriterProcessesInOrder(t *testing.T) {
	w := newAsyncWriter(16, nil)
	w.start()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		w.enqueue(func() error {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
			return nil
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not process queued operations")
	}

	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v, want sequential", order)
		}
	}
	w.stop(time.Second)
}

func TestAsyncWriterSynchronousFallbackWhenFull(t *testing.T) {
	// Capacity 1, never started: the queue fills immediately and every
	// further enqueue must execute synchronously.
	w := newAsyncWriter(1, nil)

	var ran atomic.Int32
	w.enqueue(func() error { ran.Add(1); return nil }) // queued, not run
	w.enqueue(func() error { ran.Add(1); return nil }) // full -> runs inline

	if got := ran.Load(); got != 1 {
		t.Errorf("ran = %d, want 1 (second op inline, first still queued)", got)
	}
	if w.pending() != 1 {
		t.Errorf("pending = %d, want 1", w.pending())
	}
}

func TestAsyncWriterStopDrains(t *testing.T) {
	w := newAsyncWriter(16, nil)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		w.enqueue(func() error { ran.Add(1); return nil })
	}

	w.start()
	if !w.stop(2 * time.Second) {
		t.Fatal("stop timed out")
	}
	if got := ran.Load(); got != 10 {
		t.Errorf("ran = %d, want all 10 drained on stop", got)
	}
}

func TestAsyncWriterEnqueueAfterStopRunsInline(t *testing.T) {
	w := newAsyncWriter(16, nil)
	w.start()
	w.stop(time.Second)

	var ran atomic.Int32
	w.enqueue(func() error { ran.Add(1); return nil })
	if got := ran.Load(); got != 1 {
		t.Errorf("ran = %d, want inline execution after stop", got)
	}
}

func TestAsyncWriterReportsErrors(t *testing.T) {
	var seen atomic.Int32
	w := newAsyncWriter(16, func(err error) { seen.Add(1) })
	w.start()

	boom := errors.New("disk full")
	w.enqueue(func() error { return boom })
	w.enqueue(func() error { return nil })
	w.stop(2 * time.Second)

	if got := seen.Load(); got != 1 {
		t.Errorf("error callback ran %d times, want 1", got)
	}
}

func TestAsyncWriterDoubleStop(t *testing.T) {
	w := newAsyncWriter(4, nil)
	w.start()
	if !w.stop(time.Second) {
		t.Fatal("first stop timed out")
	}
	if !w.stop(time.Second) {
		t.Error("second stop should return true immediately")
	}
}
