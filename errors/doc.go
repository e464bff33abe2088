// Package errors provides structured error types for the guest harness.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the syscall name, a virtual path and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseFS, errors.KindEscape).
//		Path("sysroot", "..", "etc").
//		Syscall("path_open").
//		Detail("path leaves the preopen").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseAssets, "asset", "libcore.rlib")
//	err := errors.UnsupportedSyscall("proc_raise", "signals are not supported")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
