package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-harness/errors"
	"github.com/wippyai/wasi-harness/internal/wasmgen"
)

// Names a guest may rely on besides the host surface.
const (
	StartFunction       = "_start"
	ThreadStartFunction = "wasi_thread_start"
	MemoryModule        = "env"
	MemoryName          = "memory"
)

// Surface lists the host functions available to guests, by module.
type Surface struct {
	funcs map[string]map[string]struct{}
}

// NewSurface creates an empty surface.
func NewSurface() *Surface {
	return &Surface{funcs: make(map[string]map[string]struct{})}
}

// Provide adds functions of module to the surface.
func (s *Surface) Provide(module string, names ...string) *Surface {
	set, ok := s.funcs[module]
	if !ok {
		set = make(map[string]struct{}, len(names))
		s.funcs[module] = set
	}
	for _, n := range names {
		set[n] = struct{}{}
	}
	return s
}

// Has reports whether module exports name.
func (s *Surface) Has(module, name string) bool {
	_, ok := s.funcs[module][name]
	return ok
}

// Guest is a validated guest program. It is immutable and may be shared by
// any number of harnesses; each compiles it into its own runtime, which the
// engine's cache makes cheap after the first time.
type Guest struct {
	wasm        []byte
	imports     []wasmgen.Import
	memory      *wasmgen.Limits
	threadStart bool
}

// LoadGuest validates wasm against surface and warms the compilation cache.
// A guest must export _start, and every import must be a surface function or
// the env.memory memory.
func (e *Engine) LoadGuest(ctx context.Context, wasm []byte, surface *Surface) (*Guest, error) {
	imports, err := wasmgen.ReadImports(wasm)
	if err != nil {
		return nil, errors.Load("decode guest imports", err)
	}

	start := time.Now()
	r, err := e.NewRuntime(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile guest", err)
	}
	exports := compiled.ExportedFunctions()
	if _, ok := exports[StartFunction]; !ok {
		return nil, errors.MissingExport(StartFunction)
	}

	g := &Guest{wasm: wasm, imports: imports}
	_, g.threadStart = exports[ThreadStartFunction]

	var missing []string
	for _, imp := range imports {
		switch {
		case imp.IsFunc() && surface.Has(imp.Module, imp.Name):
		case imp.Memory != nil && imp.Module == MemoryModule && imp.Name == MemoryName:
			g.memory = imp.Memory
		default:
			missing = append(missing, imp.Module+"#"+imp.Name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.NewMissingImportsError(missing)
	}

	e.logger.Info("guest loaded",
		zap.Int("bytes", len(wasm)),
		zap.Int("imports", len(imports)),
		zap.Bool("imports_memory", g.memory != nil),
		zap.Bool("threads", g.threadStart),
		zap.Duration("compile", time.Since(start)))
	return g, nil
}

// Compile compiles the guest into r.
func (g *Guest) Compile(ctx context.Context, r wazero.Runtime) (wazero.CompiledModule, error) {
	compiled, err := r.CompileModule(ctx, g.wasm)
	if err != nil {
		return nil, errors.Load("compile guest", err)
	}
	return compiled, nil
}

// MemoryImport returns the limits of the guest's env.memory import.
func (g *Guest) MemoryImport() (wasmgen.Limits, bool) {
	if g.memory == nil {
		return wasmgen.Limits{}, false
	}
	return *g.memory, true
}

// ExportsThreadStart reports whether the guest can be the target of
// thread-spawn.
func (g *Guest) ExportsThreadStart() bool {
	return g.threadStart
}

// Imports returns the guest's imports in declaration order.
func (g *Guest) Imports() []wasmgen.Import {
	return g.imports
}

// Size returns the binary size in bytes.
func (g *Guest) Size() int {
	return len(g.wasm)
}

func (g *Guest) String() string {
	return fmt.Sprintf("guest(%d bytes, %d imports)", len(g.wasm), len(g.imports))
}
