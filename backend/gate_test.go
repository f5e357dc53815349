package backend

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// blockingEngine is a test engine whose Respond blocks until released.
type blockingEngine struct {
	release  chan struct{}
	inflight atomic.Int32
	peak     atomic.Int32
}

func newBlockingEngine() *blockingEngine {
	return &blockingEngine{release: make(chan struct{})}
}

func (b *blockingEngine) Kind() string { return "blocking" }

func (b *blockingEngine) Probe(ctx context.Context) (Availability, string) {
	return Available, ""
}

func (b *blockingEngine) Respond(ctx context.Context, transcript []Turn, opts ResolvedOptions) (string, error) {
	current := b.inflight.Add(1)
	defer b.inflight.Add(-1)

	// Track the maximum observed concurrency.
	for {
		peak := b.peak.Load()
		if current <= peak || b.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	select {
	case <-b.release:
		return "ok", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *blockingEngine) Close() error { return nil }

func TestGateBoundsConcurrency(t *testing.T) {
	inner := newBlockingEngine()
	gated := NewGate(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gated.Respond(context.Background(), []Turn{{Role: RoleUser, Text: "x"}}, ResolvedOptions{})
		}()
	}

	// Let the goroutines queue up, then release them all.
	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	if peak := inner.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestGateUnboundedPassthrough(t *testing.T) {
	inner := NewEcho()
	if gated := NewGate(inner, 0); gated != Engine(inner) {
		t.Error("limit 0 should return the engine unwrapped")
	}
	if gated := NewGate(inner, -1); gated != Engine(inner) {
		t.Error("negative limit should return the engine unwrapped")
	}
}

func TestGateRespectsContextWhileWaiting(t *testing.T) {
	inner := newBlockingEngine()
	gated := NewGate(inner, 1)

	// Occupy the only slot.
	go gated.Respond(context.Background(), []Turn{{Role: RoleUser, Text: "x"}}, ResolvedOptions{})
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := gated.Respond(ctx, []Turn{{Role: RoleUser, Text: "y"}}, ResolvedOptions{})
	if err == nil {
		t.Fatal("Respond() should fail when no slot frees up before the deadline")
	}

	close(inner.release)
}

func TestGateFailsFastAfterClose(t *testing.T) {
	gated := NewGate(NewEcho(), 2)
	if err := gated.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := gated.Respond(context.Background(), []Turn{{Role: RoleUser, Text: "x"}}, ResolvedOptions{}); err == nil {
		t.Error("Respond() after Close should fail")
	}
	if state, _ := gated.Probe(context.Background()); state != Unavailable {
		t.Errorf("Probe() after Close = %v, want Unavailable", state)
	}

	// Second Close is a no-op.
	if err := gated.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
