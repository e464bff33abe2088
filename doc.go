// Package wasiharness runs a WebAssembly guest program compiled for WASI
// preview1 inside a sandbox that exists only in memory.
//
// The guest is typically miri compiled to wasm: each run writes a Rust
// snippet into a virtual source file, instantiates a fresh guest and
// captures what it prints. Nothing the guest does reaches the host file
// system, network or clock.
//
// # Layout
//
//	wasiharness/
//	├── harness/        Per-run protocol, Worker with typed events, metrics
//	├── engine/         wazero runtimes, guest validation, env.memory provider
//	├── wasi/preview1/  wasi_snapshot_preview1 host module over a descriptor table
//	├── vfs/            In-memory file tree and path resolution
//	├── assets/         YAML manifest, artifact sources, sandbox assembly
//	├── config/         HARNESS_* environment configuration
//	├── errors/         Structured error types
//	├── internal/wasmgen  Core module encoder and import reader
//	└── cmd/run/        Batch runner and interactive editor
//
// # Quick Start
//
//	eng, _ := engine.New(engine.Config{CloseOnContextDone: true})
//	defer eng.Close(ctx)
//
//	bundle, _ := (&assets.Loader{Source: assets.DirSource{Root: "wasm-rustc"}}).Load(ctx, assets.Default())
//	guest, _ := eng.LoadGuest(ctx, bundle.Guest, harness.HostSurface())
//
//	cfg := harness.DefaultConfig()
//	cfg.Engine, cfg.Guest, cfg.Preopens = eng, guest, bundle.Preopens
//	h, _ := harness.New(ctx, cfg)
//	defer h.Close(ctx)
//
//	res, _ := h.Run(ctx, `println!("hi");`, harness.RunOptions{})
//	fmt.Print(res.Text)
package wasiharness
