package harness

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-harness/engine"
	"github.com/wippyai/wasi-harness/wasi/preview1"
)

// Host module and function guests import to start a thread.
const (
	ThreadsModule       = "wasi"
	ThreadSpawnFunction = "thread-spawn"
)

// threadSpawner runs every spawned thread to completion on the calling
// goroutine before thread-spawn returns. Threads that wait on each other
// therefore deadlock; everything else observes a valid interleaving.
type threadSpawner struct {
	next   int32
	logger *zap.Logger
}

func (s *threadSpawner) reset() {
	s.next = 1
}

func (s *threadSpawner) instantiate(ctx context.Context, r wazero.Runtime) error {
	_, err := r.NewHostModuleBuilder(ThreadsModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(s.spawn),
			[]api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		WithParameterNames("start_arg").
		Export(ThreadSpawnFunction).
		Instantiate(ctx)
	return err
}

func (s *threadSpawner) spawn(ctx context.Context, mod api.Module, stack []uint64) {
	start := mod.ExportedFunction(engine.ThreadStartFunction)
	if start == nil {
		// wasi-threads reports spawn failure as a negative id.
		stack[0] = uint64(uint32(0xFFFFFFFF))
		return
	}
	tid := s.next
	s.next++
	arg := stack[0]

	s.logger.Debug("thread spawned", zap.Int32("tid", tid), zap.Uint64("start_arg", arg))
	if _, err := start.Call(ctx, uint64(tid), arg); err != nil {
		panic(err)
	}
	stack[0] = uint64(uint32(tid))
}

// HostSurface lists every function a harness provides to its guest.
func HostSurface() *engine.Surface {
	return engine.NewSurface().
		Provide(preview1.ModuleName, preview1.Syscalls()...).
		Provide(ThreadsModule, ThreadSpawnFunction)
}
