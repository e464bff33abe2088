package harness

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-harness/errors"
)

// ErrNotReady is returned by Submit before the harness finished initializing.
var ErrNotReady = errors.NotInitialized(errors.PhaseRun, "harness")

// Request is one submission to a Worker.
type Request struct {
	Source  string
	Options RunOptions
}

// Event is a notification from a Worker. The concrete types are
// AssetLoaded, Ready, InitFailed, RunStarted and RunCompleted.
type Event interface {
	isEvent()
}

// AssetLoaded reports one artifact placed into the sandbox during init.
type AssetLoaded struct {
	Name string
}

// Ready reports that the worker accepts submissions.
type Ready struct{}

// InitFailed reports that the harness could not be built. No further events
// follow.
type InitFailed struct {
	Err error
}

// RunStarted precedes exactly one RunCompleted with the same ID.
type RunStarted struct {
	ID uuid.UUID
}

// RunCompleted carries the result text and the full result. Result is nil
// when the harness was closed underneath the run.
type RunCompleted struct {
	ID     uuid.UUID
	Text   string
	Result *Result
}

func (AssetLoaded) isEvent()  {}
func (Ready) isEvent()        {}
func (InitFailed) isEvent()   {}
func (RunStarted) isEvent()   {}
func (RunCompleted) isEvent() {}

// InitFunc builds the harness on the worker goroutine. loaded is called once
// per artifact as it lands in the sandbox.
type InitFunc func(ctx context.Context, loaded func(name string)) (*Harness, error)

// Worker owns a Harness on a dedicated goroutine and exchanges only
// requests and events with the caller.
type Worker struct {
	requests chan Request
	events   chan Event
	ready    atomic.Bool
	busy     atomic.Bool
	closed   atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
	logger   *zap.Logger
}

// StartWorker launches the worker goroutine and begins initialization.
// The event channel is closed when the worker stops.
func StartWorker(ctx context.Context, init InitFunc) *Worker {
	ctx, cancel := context.WithCancel(ctx)
	w := &Worker{
		requests: make(chan Request, 1),
		events:   make(chan Event, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   Logger().Named("worker"),
	}
	go w.loop(ctx, init)
	return w
}

// Events returns the notification channel.
func (w *Worker) Events() <-chan Event {
	return w.events
}

// Busy reports whether a run is in flight.
func (w *Worker) Busy() bool {
	return w.busy.Load()
}

// Submit hands req to the worker. It never queues: a submission while a run
// is in flight fails with ErrBusy.
func (w *Worker) Submit(req Request) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if !w.ready.Load() {
		return ErrNotReady
	}
	if !w.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	select {
	case w.requests <- req:
		return nil
	default:
		w.busy.Store(false)
		return ErrBusy
	}
}

// Close stops the worker, aborting a run in flight, and waits for it to exit.
func (w *Worker) Close() {
	w.once.Do(func() {
		w.closed.Store(true)
		w.cancel()
	})
	<-w.done
}

func (w *Worker) loop(ctx context.Context, init InitFunc) {
	defer close(w.done)
	defer close(w.events)

	h, err := init(ctx, func(name string) {
		w.emit(ctx, AssetLoaded{Name: name})
	})
	if err != nil {
		w.logger.Error("harness init failed", zap.Error(err))
		w.emit(ctx, InitFailed{Err: err})
		return
	}
	defer h.Close(context.Background())

	w.ready.Store(true)
	w.emit(ctx, Ready{})

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.requests:
			id := uuid.New()
			w.emit(ctx, RunStarted{ID: id})
			res, err := h.run(ctx, id, req.Source, req.Options)
			w.busy.Store(false)

			done := RunCompleted{ID: id, Result: res}
			if err != nil {
				done.Text = err.Error()
			} else {
				done.Text = res.Text
			}
			w.emit(ctx, done)
		}
	}
}

func (w *Worker) emit(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
