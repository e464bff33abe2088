package harness

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/wippyai/wasi-harness/engine"
)

func guestInit(t *testing.T, wasm []byte, assets ...string) InitFunc {
	t.Helper()
	e, err := engine.New(engine.Config{CloseOnContextDone: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close(context.Background()) })

	return func(ctx context.Context, loaded func(string)) (*Harness, error) {
		for _, name := range assets {
			loaded(name)
		}
		g, err := e.LoadGuest(ctx, wasm, HostSurface())
		if err != nil {
			return nil, err
		}
		cfg := DefaultConfig()
		cfg.Engine = e
		cfg.Guest = g
		cfg.Wrapper = RawWrapper
		cfg.Preopens = testPreopens()
		return New(ctx, cfg)
	}
}

func nextEvent(t *testing.T, w *Worker) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestWorker_EventOrder(t *testing.T) {
	w := StartWorker(context.Background(), guestInit(t, printGuest(1, "hello\n"), "miri.wasm", "libstd.rlib"))
	defer w.Close()

	for _, want := range []string{"miri.wasm", "libstd.rlib"} {
		ev, ok := nextEvent(t, w).(AssetLoaded)
		if !ok || ev.Name != want {
			t.Fatalf("got %#v, want AssetLoaded(%s)", ev, want)
		}
	}
	if _, ok := nextEvent(t, w).(Ready); !ok {
		t.Fatal("expected Ready after assets")
	}

	for i := 0; i < 2; i++ {
		if err := w.Submit(Request{Source: "fn main() {}"}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		started, ok := nextEvent(t, w).(RunStarted)
		if !ok {
			t.Fatal("expected RunStarted")
		}
		completed, ok := nextEvent(t, w).(RunCompleted)
		if !ok {
			t.Fatal("expected RunCompleted")
		}
		if completed.ID != started.ID {
			t.Errorf("completion id %s does not match start id %s", completed.ID, started.ID)
		}
		if completed.Text != "hello\n" || completed.Result == nil {
			t.Errorf("completed = %+v", completed)
		}
		if w.Busy() {
			t.Error("worker still busy after RunCompleted")
		}
	}
}

func TestWorker_SubmitBeforeReady(t *testing.T) {
	block := make(chan struct{})
	w := StartWorker(context.Background(), func(ctx context.Context, _ func(string)) (*Harness, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	})

	if err := w.Submit(Request{}); !stderrors.Is(err, ErrNotReady) {
		t.Errorf("Submit = %v, want ErrNotReady", err)
	}
	w.Close()
	close(block)
	if err := w.Submit(Request{}); !stderrors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
}

func TestWorker_RejectsWhileBusy(t *testing.T) {
	w := StartWorker(context.Background(), guestInit(t, spinGuest()))

	if _, ok := nextEvent(t, w).(Ready); !ok {
		t.Fatal("expected Ready")
	}
	if err := w.Submit(Request{Source: "loop {}"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, ok := nextEvent(t, w).(RunStarted); !ok {
		t.Fatal("expected RunStarted")
	}
	if err := w.Submit(Request{Source: "again"}); !stderrors.Is(err, ErrBusy) {
		t.Errorf("Submit while running = %v, want ErrBusy", err)
	}

	closed := make(chan struct{})
	go func() {
		w.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not abort the running guest")
	}
}

func TestWorker_InitFailed(t *testing.T) {
	w := StartWorker(context.Background(), guestInit(t, []byte("not wasm")))
	defer w.Close()

	ev, ok := nextEvent(t, w).(InitFailed)
	if !ok || ev.Err == nil {
		t.Fatalf("got %#v, want InitFailed", ev)
	}
	if _, open := <-w.Events(); open {
		t.Error("no events should follow InitFailed")
	}
}
