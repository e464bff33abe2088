package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasi-harness/errors"
	"github.com/wippyai/wasi-harness/internal/wasmgen"
)

// MemoryProvider instantiates fresh env.memory modules for one runtime.
type MemoryProvider struct {
	compiled wazero.CompiledModule
	runtime  wazero.Runtime
	limits   wasmgen.Limits
}

// NewMemoryProvider compiles a module exporting a memory with limits.
func NewMemoryProvider(ctx context.Context, r wazero.Runtime, limits wasmgen.Limits) (*MemoryProvider, error) {
	compiled, err := r.CompileModule(ctx, wasmgen.MemoryProvider(MemoryName, limits))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLink, errors.KindInstantiation, err, "compile memory provider")
	}
	return &MemoryProvider{compiled: compiled, runtime: r, limits: limits}, nil
}

// Limits returns the limits every instance is created with.
func (p *MemoryProvider) Limits() wasmgen.Limits {
	return p.limits
}

// Instantiate creates a zeroed memory registered as env. The previous
// instance must be closed first.
func (p *MemoryProvider) Instantiate(ctx context.Context) (api.Module, error) {
	mod, err := p.runtime.InstantiateModule(ctx, p.compiled, wazero.NewModuleConfig().WithName(MemoryModule))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRun, errors.KindInstantiation, err, "instantiate env.memory")
	}
	return mod, nil
}

// Close releases the compiled module.
func (p *MemoryProvider) Close(ctx context.Context) error {
	return p.compiled.Close(ctx)
}
