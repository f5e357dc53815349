package history

import (
	"context"
	"sync"
	"time"
)

// DefaultChannelCapacity is the default buffer size for the write queue.
const DefaultChannelCapacity = 256

// DefaultDrainTimeout is the maximum time to wait for pending writes
// during shutdown.
const DefaultDrainTimeout = 10 * time.Second

// writeOp is one queued database write. Errors are the handler's problem;
// the generate path never sees them.
type writeOp func() error

// asyncWriter provides non-blocking persistence using a buffered channel
// and a single background goroutine, so SQLite sees one writer.
//
// When the queue is full the enqueue falls back to executing the write
// synchronously rather than dropping it: losing transcript rows would make
// the store lie about history.
type asyncWriter struct {
	ops    chan writeOp
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool

	// onError is called for every failed write (never nil).
	onError func(error)
}

// newAsyncWriter creates a writer with the given queue capacity.
// onError may be nil.
func newAsyncWriter(capacity int, onError func(error)) *asyncWriter {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	if onError == nil {
		onError = func(error) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &asyncWriter{
		ops:     make(chan writeOp, capacity),
		ctx:     ctx,
		cancel:  cancel,
		onError: onError,
	}
}

// start begins the background processing goroutine.
func (w *asyncWriter) start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.process()
}

func (w *asyncWriter) process() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case op := <-w.ops:
			if err := op(); err != nil {
				w.onError(err)
			}
		}
	}
}

// drain executes any operations still in the buffer.
func (w *asyncWriter) drain() {
	for {
		select {
		case op := <-w.ops:
			if err := op(); err != nil {
				w.onError(err)
			}
		default:
			return
		}
	}
}

// enqueue queues a write, or executes it synchronously when the queue is
// full or the writer has stopped.
func (w *asyncWriter) enqueue(op writeOp) {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()

	if stopped {
		if err := op(); err != nil {
			w.onError(err)
		}
		return
	}

	select {
	case w.ops <- op:
	default:
		if err := op(); err != nil {
			w.onError(err)
		}
	}
}

// pending returns the number of operations waiting in the buffer.
func (w *asyncWriter) pending() int {
	return len(w.ops)
}

// stop signals the goroutine to finish, waits for the drain, and returns
// true if it completed within the timeout.
func (w *asyncWriter) stop(timeout time.Duration) bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return true
	}
	w.stopped = true
	started := w.started
	w.mu.Unlock()

	w.cancel()
	if !started {
		return true
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
