package preview1

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// Config holds the process-global inputs a guest observes.
type Config struct {
	// Args is the argument vector, program name first.
	Args []string
	// Env holds KEY=VALUE pairs.
	Env []string
	// Clock backs clock_time_get and poll_oneoff. Defaults to the wall clock.
	Clock clock.Clock
	// ClockStep advances clocks that support it after every time query so
	// guests polling for elapsed time make progress.
	ClockStep time.Duration
	// Entropy backs random_get. Defaults to crypto/rand.
	Entropy io.Reader
	// Tracer, when set, observes every syscall.
	Tracer *Tracer
	Logger *zap.Logger
}

// Dispatcher implements the wasi_snapshot_preview1 import surface over a
// descriptor table. It is not safe for concurrent use; one guest call
// stack drives it at a time.
type Dispatcher struct {
	table   *Table
	args    []string
	env     []string
	clock   clock.Clock
	epoch   time.Time
	step    time.Duration
	entropy io.Reader
	tracer  *Tracer
	logger  *zap.Logger
}

// stepper is implemented by virtual clocks such as fakeclock.FakeClock.
type stepper interface {
	Increment(time.Duration)
}

// NewDispatcher creates a dispatcher serving table.
func NewDispatcher(table *Table, cfg Config) *Dispatcher {
	d := &Dispatcher{
		table:   table,
		args:    cfg.Args,
		env:     cfg.Env,
		step:    cfg.ClockStep,
		entropy: cfg.Entropy,
		tracer:  cfg.Tracer,
		logger:  cfg.Logger,
	}
	if d.logger == nil {
		d.logger = Logger()
	}
	if d.entropy == nil {
		d.entropy = rand.Reader
	}
	d.setClock(cfg.Clock)
	return d
}

func (d *Dispatcher) setClock(c clock.Clock) {
	if c == nil {
		c = clock.NewClock()
	}
	d.clock = c
	d.epoch = c.Now()
}

// Table returns the descriptor table.
func (d *Dispatcher) Table() *Table {
	return d.table
}

// Tracer returns the configured tracer, or nil.
func (d *Dispatcher) Tracer() *Tracer {
	return d.tracer
}

// Reset prepares for a new run: the table returns to its base shape and the
// clock and entropy source are replaced when non-nil.
func (d *Dispatcher) Reset(c clock.Clock, entropy io.Reader) {
	d.table.Reset()
	if c != nil {
		d.setClock(c)
	}
	if entropy != nil {
		d.entropy = entropy
	}
	if d.tracer != nil {
		d.tracer.recorder.Reset()
	}
}

// Instantiate registers the host module in r.
func (d *Dispatcher) Instantiate(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(ModuleName)
	for _, sc := range syscalls {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(d.goFunc(sc), sc.paramTypes(), sc.resultTypes()).
			WithParameterNames(sc.paramNames()...).
			Export(sc.name)
	}
	return builder.Instantiate(ctx)
}

func (d *Dispatcher) goFunc(sc syscall) api.GoModuleFunc {
	h := sc.fn
	if d.tracer != nil {
		h = d.tracer.wrap(sc.name, h)
	}
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		errno := h(d, ctx, mod, stack)
		if !sc.noResult {
			stack[0] = uint64(errno)
		}
	}
}

func (d *Dispatcher) lookup(fd uint64) (Fd, Errno) {
	f, ok := d.table.Get(uint32(fd))
	if !ok {
		return nil, ErrnoBadf
	}
	return f, ErrnoSuccess
}

func (d *Dispatcher) lookupDir(fd uint64) (*OpenDirectory, Errno) {
	f, errno := d.lookup(fd)
	if errno != ErrnoSuccess {
		return nil, errno
	}
	dir, ok := f.(*OpenDirectory)
	if !ok {
		return nil, ErrnoNotdir
	}
	return dir, ErrnoSuccess
}

// readClock returns the value of clock id without advancing it.
func (d *Dispatcher) readClock(id uint32) (uint64, Errno) {
	now := d.clock.Now()
	switch id {
	case clockRealtime:
		return uint64(now.UnixNano()), ErrnoSuccess
	case clockMonotonic, clockProcessCputimeID, clockThreadCputimeID:
		return uint64(now.Sub(d.epoch)), ErrnoSuccess
	}
	return 0, ErrnoInval
}

func (d *Dispatcher) advance(by time.Duration) {
	if s, ok := d.clock.(stepper); ok && by > 0 {
		s.Increment(by)
	}
}
