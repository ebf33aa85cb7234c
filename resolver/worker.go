package resolver

import (
	"context"
	"sync"
)

// task runs queued work. A non-nil abandon error means the worker shut down
// before the task could start.
type task func(abandon error)

// Worker executes submitted tasks one at a time, in submission order, on a
// single goroutine.
type Worker struct {
	mu     sync.RWMutex
	closed bool

	tasks     chan task
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewWorker starts a worker with a queue of the given capacity.
func NewWorker(queueSize int) *Worker {
	if queueSize < 0 {
		queueSize = 0
	}
	w := &Worker{
		tasks: make(chan task, queueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		// quit wins over queued work once it is closed
		select {
		case <-w.quit:
			return
		default:
		}
		select {
		case <-w.quit:
			return
		case t := <-w.tasks:
			t(nil)
		}
	}
}

// Submit queues fn. It blocks while the queue is full and returns ctx.Err()
// if ctx ends first, or ErrClosed once the worker is shutting down.
func (w *Worker) Submit(ctx context.Context, fn func(abandon error)) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.quit:
		return ErrClosed
	}
}

// Close stops the worker. It waits for the running task, then abandons
// everything still queued with ErrClosed. Close must not be called from a task.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		close(w.quit)
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		<-w.done
		for {
			select {
			case t := <-w.tasks:
				t(ErrClosed)
			default:
				return
			}
		}
	})
}

// Future is the eventual result of work run on a Worker.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(val T, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx ends. Abandoning the
// wait does not cancel the underlying work.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Spawn queues fn on w and returns its future. fn receives ctx unchanged and
// is responsible for honoring its cancellation. If fn is abandoned by Close
// the future completes with ErrClosed.
func Spawn[T any](ctx context.Context, w *Worker, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	f := newFuture[T]()
	err := w.Submit(ctx, func(abandon error) {
		if abandon != nil {
			var zero T
			f.complete(zero, abandon)
			return
		}
		val, err := fn(ctx)
		f.complete(val, err)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Completed returns a future that already holds val and err.
func Completed[T any](val T, err error) *Future[T] {
	f := newFuture[T]()
	f.complete(val, err)
	return f
}
