// Package engine compiles and validates guest modules on top of wazero.
//
// An Engine owns a compilation cache shared by every runtime it creates.
// LoadGuest checks a guest binary against the host surface once and returns
// an immutable Guest; harnesses compile it into their own runtime, which the
// cache makes cheap.
//
// # Guest contract
//
//   - export _start
//   - import only host surface functions and, optionally, env.memory
//   - optionally export wasi_thread_start to be the target of thread-spawn
//
// When the guest imports env.memory, a MemoryProvider synthesizes a fresh
// memory with the guest's declared limits for every run.
package engine
