package harness

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-harness/engine"
	"github.com/wippyai/wasi-harness/errors"
	"github.com/wippyai/wasi-harness/vfs"
	"github.com/wippyai/wasi-harness/wasi/preview1"
)

var (
	// ErrBusy is returned when a run is submitted while another is in flight.
	ErrBusy = errors.New(errors.PhaseRun, errors.KindBusy).Detail("a run is already in progress").Build()
	// ErrClosed is returned after Close.
	ErrClosed = errors.New(errors.PhaseRun, errors.KindClosed).Detail("harness closed").Build()
)

// DefaultArgs is the miri invocation: every check that slows interpretation
// is disabled and diagnostics are colored.
var DefaultArgs = []string{
	"miri",
	"--sysroot", "/sysroot",
	"main.rs",
	"--target", "x86_64-unknown-linux-gnu",
	"-Zmir-opt-level=3",
	"-Zmiri-ignore-leaks",
	"-Zmiri-permissive-provenance",
	"-Zmiri-preemption-rate=0",
	"-Zmiri-disable-alignment-check",
	"-Zmiri-disable-data-race-detector",
	"-Zmiri-disable-stacked-borrows",
	"-Zmiri-disable-validation",
	"-Zmir-emit-retag=false",
	"-Zmiri-disable-isolation",
	"-Zmiri-panic-on-unsupported",
	"--color=always",
}

// DefaultClockEpoch is the wall-clock time every run starts at.
var DefaultClockEpoch = time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)

// Config configures a Harness.
type Config struct {
	Engine *engine.Engine
	Guest  *engine.Guest

	Args []string
	Env  []string

	// Preopens are bound to descriptors 3.. in order.
	Preopens []preview1.Preopen
	// SourcePreopen is the preopen path holding SourceFile.
	SourcePreopen string
	SourceFile    string
	Wrapper       Wrapper

	// MaxFileSize caps any file a guest writes. MaxRunGrowth caps the bytes
	// all files together may grow by in one run. Zero takes the vfs
	// defaults.
	MaxFileSize  int64
	MaxRunGrowth int64

	// ClockEpoch and ClockStep drive the per-run virtual clock.
	ClockEpoch time.Time
	ClockStep  time.Duration
	// EntropySeed seeds random_get afresh every run. RandomEntropy uses
	// crypto/rand instead and gives up run-to-run determinism.
	EntropySeed   uint64
	RandomEntropy bool

	Trace           bool
	TraceExclusions []string
	TraceLimit      int

	Metrics *Metrics
	Logger  *zap.Logger
}

// DefaultConfig returns the miri configuration without engine, guest or
// preopens.
func DefaultConfig() Config {
	return Config{
		Args:            DefaultArgs,
		SourcePreopen:   "/",
		SourceFile:      "main.rs",
		Wrapper:         RustMainWrapper,
		ClockEpoch:      DefaultClockEpoch,
		ClockStep:       time.Microsecond,
		TraceExclusions: preview1.DefaultTraceExclusions,
		TraceLimit:      4096,
	}
}

// State is the lifecycle position of a Harness.
type State int32

const (
	StateIdle State = iota
	StatePreparing
	StateExecuting
	StateCompleted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Result is the outcome of one run.
type Result struct {
	ID uuid.UUID
	// Text is stdout, else stderr, else the failure message.
	Text     string
	Stdout   string
	Stderr   string
	ExitCode uint32
	// Trap holds the trap message; empty when the guest returned or exited.
	Trap     string
	Duration time.Duration
	// Syscalls holds the trace when tracing is enabled.
	Syscalls []preview1.Call
}

// Trapped reports whether the guest was aborted.
func (r *Result) Trapped() bool { return r.Trap != "" }

// Harness executes one guest program repeatedly against a fresh instance and
// a reset sandbox. Runs never overlap.
type Harness struct {
	cfg     Config
	runtime wazero.Runtime
	guest   wazero.CompiledModule
	memory  *engine.MemoryProvider

	dispatcher *preview1.Dispatcher
	tracer     *preview1.Tracer
	stdin      *preview1.StreamSink
	stdout     *preview1.StreamSink
	stderr     *preview1.StreamSink
	quota      *vfs.Quota
	snapshots  []snapshot
	sourceDir  *vfs.Directory
	source     *vfs.File
	threads    *threadSpawner

	state   atomic.Int32
	codeMu  sync.RWMutex
	code    string
	closeMu sync.Mutex
	logger  *zap.Logger
}

// New builds the sandbox and links the guest into a dedicated runtime.
func New(ctx context.Context, cfg Config) (*Harness, error) {
	if cfg.Engine == nil {
		return nil, errors.NotInitialized(errors.PhaseLoad, "engine")
	}
	if cfg.Guest == nil {
		return nil, errors.NotInitialized(errors.PhaseLoad, "guest")
	}
	if cfg.Wrapper == nil {
		cfg.Wrapper = RawWrapper
	}
	logger := cfg.Logger
	if logger == nil {
		logger = Logger()
	}

	h := &Harness{
		cfg:     cfg,
		stdin:   preview1.NewStreamSink(preview1.RoleStdin),
		stdout:  preview1.NewStreamSink(preview1.RoleStdout),
		stderr:  preview1.NewStreamSink(preview1.RoleStderr),
		threads: &threadSpawner{next: 1, logger: logger},
		logger:  logger,
	}

	dir, src, err := sourceFile(cfg.Preopens, cfg.SourcePreopen, cfg.SourceFile)
	if err != nil {
		return nil, err
	}
	h.sourceDir, h.source = dir, src

	h.quota = vfs.NewQuota(cfg.MaxFileSize, cfg.MaxRunGrowth)
	dirs := make([]*preview1.OpenDirectory, len(cfg.Preopens))
	for i, p := range cfg.Preopens {
		p.Quota = h.quota
		dirs[i] = preview1.NewPreopenDirectory(p)
		if !p.ReadOnly {
			h.snapshots = append(h.snapshots, snapshot{dir: p.Dir, saved: p.Dir.Clone()})
		}
	}
	table := preview1.NewTable(h.stdin, h.stdout, h.stderr, dirs...)

	if cfg.Trace || cfg.Metrics != nil {
		h.tracer = h.newTracer()
	}
	h.dispatcher = preview1.NewDispatcher(table, preview1.Config{
		Args:      cfg.Args,
		Env:       cfg.Env,
		ClockStep: cfg.ClockStep,
		Tracer:    h.tracer,
		Logger:    logger,
	})

	if err := h.link(ctx); err != nil {
		h.closeRuntime(ctx)
		return nil, err
	}
	return h, nil
}

func (h *Harness) newTracer() *preview1.Tracer {
	tc := preview1.TracerConfig{
		Logger:   zap.NewNop(),
		Recorder: preview1.NewRecorder(0),
		Exclude:  h.cfg.TraceExclusions,
	}
	if h.cfg.Trace {
		tc.Logger = h.logger.Named("strace")
		tc.Recorder = preview1.NewRecorder(h.cfg.TraceLimit)
	}
	if m := h.cfg.Metrics; m != nil {
		tc.OnCall = func(c preview1.Call) {
			m.Syscalls.WithLabelValues(c.Name, c.Errno.String()).Inc()
		}
	}
	return preview1.NewTracer(tc)
}

func (h *Harness) link(ctx context.Context) error {
	r, err := h.cfg.Engine.NewRuntime(ctx)
	if err != nil {
		return err
	}
	h.runtime = r

	if _, err := h.dispatcher.Instantiate(ctx, r); err != nil {
		return errors.Wrap(errors.PhaseLink, errors.KindInstantiation, err, "instantiate "+preview1.ModuleName)
	}
	if err := h.threads.instantiate(ctx, r); err != nil {
		return errors.Wrap(errors.PhaseLink, errors.KindInstantiation, err, "instantiate "+ThreadsModule)
	}
	if limits, ok := h.cfg.Guest.MemoryImport(); ok {
		p, err := engine.NewMemoryProvider(ctx, r, limits)
		if err != nil {
			return err
		}
		h.memory = p
	}
	compiled, err := h.cfg.Guest.Compile(ctx, r)
	if err != nil {
		return err
	}
	h.guest = compiled
	return nil
}

func sourceFile(preopens []preview1.Preopen, dir, name string) (*vfs.Directory, *vfs.File, error) {
	for _, p := range preopens {
		if p.Path != dir {
			continue
		}
		if f, ok := p.Dir.File(name); ok {
			return p.Dir, f, nil
		}
		if _, exists := p.Dir.Get(name); exists {
			return nil, nil, errors.New(errors.PhaseFS, errors.KindIsDirectory).Path(dir, name).Detail("source path is a directory").Build()
		}
		f := vfs.NewFile(nil)
		p.Dir.Insert(name, f)
		return p.Dir, f, nil
	}
	return nil, nil, errors.NotFound(errors.PhaseFS, "source preopen", dir)
}

// snapshot is the construction-time contents of a writable preopen.
type snapshot struct {
	dir   *vfs.Directory
	saved *vfs.Directory
}

// installSource returns the file the guest will read as source. Whatever a
// previous run left under the name is replaced.
func (h *Harness) installSource() *vfs.File {
	if f, ok := h.sourceDir.File(h.cfg.SourceFile); ok {
		return f
	}
	f := vfs.NewFile(nil)
	h.sourceDir.Insert(h.cfg.SourceFile, f)
	return f
}

// State returns the current lifecycle state.
func (h *Harness) State() State {
	return State(h.state.Load())
}

// Code returns the raw source of the most recent submission.
func (h *Harness) Code() string {
	h.codeMu.RLock()
	defer h.codeMu.RUnlock()
	return h.code
}

// Tracer returns the syscall tracer, or nil when neither tracing nor metrics
// are enabled.
func (h *Harness) Tracer() *preview1.Tracer {
	return h.tracer
}

func (h *Harness) acquire() error {
	for {
		s := State(h.state.Load())
		switch s {
		case StateClosed:
			return ErrClosed
		case StatePreparing, StateExecuting:
			return ErrBusy
		}
		if h.state.CompareAndSwap(int32(s), int32(StatePreparing)) {
			return nil
		}
	}
}

// Run executes code once. Guest failures are reported in the Result; the
// error is only ErrBusy or ErrClosed.
func (h *Harness) Run(ctx context.Context, code string, opts RunOptions) (*Result, error) {
	return h.run(ctx, uuid.New(), code, opts)
}

func (h *Harness) run(ctx context.Context, id uuid.UUID, code string, opts RunOptions) (*Result, error) {
	if err := h.acquire(); err != nil {
		if m := h.cfg.Metrics; m != nil && stderrors.Is(err, ErrBusy) {
			m.RunsTotal.WithLabelValues(OutcomeRejected).Inc()
		}
		return nil, err
	}
	if m := h.cfg.Metrics; m != nil {
		m.RunsInFlight.Inc()
		defer m.RunsInFlight.Dec()
	}

	res := &Result{ID: id}
	start := time.Now()
	log := h.logger.With(zap.Stringer("run", res.ID))

	h.prepare(code, opts)
	log.Debug("run prepared", zap.Int("source_bytes", int(h.source.Size())))

	h.state.Store(int32(StateExecuting))
	err := h.execute(ctx)
	h.finish(res, err)
	res.Duration = time.Since(start)

	h.state.CompareAndSwap(int32(StateExecuting), int32(StateCompleted))
	h.observe(res)
	log.Info("run completed",
		zap.Uint32("exit_code", res.ExitCode),
		zap.Bool("trapped", res.Trapped()),
		zap.Int("stdout_bytes", len(res.Stdout)),
		zap.Int("stderr_bytes", len(res.Stderr)),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func (h *Harness) prepare(code string, opts RunOptions) {
	h.stdin.Clear()
	h.stdout.Clear()
	h.stderr.Clear()
	h.dispatcher.Reset(fakeclock.NewFakeClock(h.cfg.ClockEpoch), h.entropy())
	h.threads.reset()

	// Writable trees go back to how they were built; the guest may have
	// removed or replaced the source file.
	for _, s := range h.snapshots {
		s.dir.Restore(s.saved)
	}
	h.quota.Reset()
	h.source = h.installSource()

	h.codeMu.Lock()
	h.code = code
	h.codeMu.Unlock()
	h.source.Replace([]byte(h.cfg.Wrapper.Wrap(code, opts)))
}

func (h *Harness) entropy() io.Reader {
	if h.cfg.RandomEntropy {
		return nil
	}
	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:8], h.cfg.EntropySeed)
	return rand.NewChaCha8(seed)
}

// execute instantiates a fresh memory and guest, then calls _start.
func (h *Harness) execute(ctx context.Context) error {
	var mem api.Module
	if h.memory != nil {
		m, err := h.memory.Instantiate(ctx)
		if err != nil {
			return err
		}
		mem = m
		defer mem.Close(ctx)
	}

	mod, err := h.runtime.InstantiateModule(ctx, h.guest, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		return errors.Instantiation(err)
	}
	defer mod.Close(ctx)

	_, err = mod.ExportedFunction(engine.StartFunction).Call(ctx)
	return err
}

func (h *Harness) finish(res *Result, err error) {
	res.Stdout = h.stdout.Text()
	res.Stderr = h.stderr.Text()
	if t := h.tracer; t != nil && h.cfg.Trace {
		res.Syscalls = t.Recorder().Calls()
	}

	var failure string
	var exitErr *sys.ExitError
	switch {
	case err == nil:
	case stderrors.As(err, &exitErr) && !aborted(exitErr.ExitCode()):
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode != 0 {
			failure = fmt.Sprintf("process exited with code %d", res.ExitCode)
		}
	default:
		res.Trap = err.Error()
		failure = res.Trap
	}
	res.Text = resultText(res.Stdout, res.Stderr, failure)
}

func aborted(code uint32) bool {
	return code == sys.ExitCodeContextCanceled || code == sys.ExitCodeDeadlineExceeded
}

func resultText(stdout, stderr, failure string) string {
	switch {
	case stdout != "":
		return stdout
	case stderr != "":
		return stderr
	}
	return failure
}

func (h *Harness) observe(res *Result) {
	m := h.cfg.Metrics
	if m == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case res.Trapped():
		outcome = OutcomeTrap
	case res.ExitCode != 0:
		outcome = OutcomeExit
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(res.Duration.Seconds())
	m.OutputBytes.WithLabelValues("stdout").Add(float64(len(res.Stdout)))
	m.OutputBytes.WithLabelValues("stderr").Add(float64(len(res.Stderr)))
}

// Close releases the runtime. A run in flight is aborted when the engine
// was configured with CloseOnContextDone.
func (h *Harness) Close(ctx context.Context) error {
	h.closeMu.Lock()
	defer h.closeMu.Unlock()
	if State(h.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}
	return h.closeRuntime(ctx)
}

func (h *Harness) closeRuntime(ctx context.Context) error {
	if h.runtime == nil {
		return nil
	}
	return h.runtime.Close(ctx)
}
