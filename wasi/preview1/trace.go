package preview1

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// DefaultTraceExclusions are syscalls too chatty to be worth tracing.
var DefaultTraceExclusions = []string{"fd_prestat_get"}

// Call is one traced syscall.
type Call struct {
	Name     string
	Params   []uint64
	Errno    Errno
	Trapped  bool
	Duration time.Duration
}

// Recorder keeps the most recent calls up to a limit.
type Recorder struct {
	mu      sync.Mutex
	calls   []Call
	limit   int
	dropped int
}

// NewRecorder creates a recorder holding at most limit calls. A limit of
// zero or less keeps nothing.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit <= 0 {
		r.dropped++
		return
	}
	if len(r.calls) == r.limit {
		r.calls = append(r.calls[:0], r.calls[1:]...)
		r.dropped++
	}
	r.calls = append(r.calls, c)
}

// Calls returns a copy of the recorded calls, oldest first.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Dropped returns how many calls were evicted or never stored.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = r.calls[:0]
	r.dropped = 0
}

// TracerConfig configures a Tracer.
type TracerConfig struct {
	Logger   *zap.Logger
	Recorder *Recorder
	// Exclude names syscalls that are neither logged nor recorded.
	Exclude []string
	// OnCall is invoked for every traced call, excluded or not.
	OnCall func(Call)
}

// Tracer observes syscalls without altering their arguments or results.
type Tracer struct {
	logger   *zap.Logger
	recorder *Recorder
	exclude  map[string]struct{}
	onCall   func(Call)
}

// NewTracer creates a tracer. A nil recorder gets a default of 4096 calls.
func NewTracer(cfg TracerConfig) *Tracer {
	t := &Tracer{
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
		exclude:  make(map[string]struct{}, len(cfg.Exclude)),
		onCall:   cfg.OnCall,
	}
	if t.logger == nil {
		t.logger = Logger()
	}
	if t.recorder == nil {
		t.recorder = NewRecorder(4096)
	}
	for _, name := range cfg.Exclude {
		t.exclude[name] = struct{}{}
	}
	return t
}

func (t *Tracer) Recorder() *Recorder {
	return t.recorder
}

func (t *Tracer) wrap(name string, h handler) handler {
	_, excluded := t.exclude[name]
	return func(d *Dispatcher, ctx context.Context, mod api.Module, p []uint64) (errno Errno) {
		call := Call{Name: name, Params: slices.Clone(p), Trapped: true}
		start := time.Now()
		defer func() {
			call.Duration = time.Since(start)
			call.Errno = errno
			t.observe(call, excluded)
		}()
		errno = h(d, ctx, mod, p)
		call.Trapped = false
		return errno
	}
}

func (t *Tracer) observe(c Call, excluded bool) {
	if t.onCall != nil {
		t.onCall(c)
	}
	if excluded {
		return
	}
	t.recorder.Record(c)
	if ce := t.logger.Check(zap.DebugLevel, "syscall"); ce != nil {
		ce.Write(
			zap.String("name", c.Name),
			zap.Uint64s("params", c.Params),
			zap.Stringer("errno", c.Errno),
			zap.Bool("trapped", c.Trapped),
			zap.Duration("duration", c.Duration),
		)
	}
}
