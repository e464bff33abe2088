// Package preview1 serves the wasi_snapshot_preview1 import module from an
// in-memory sandbox.
//
// A Dispatcher owns a descriptor Table whose slots hold capability objects:
// StreamSink for the three standard streams, OpenDirectory for preopens and
// directories opened beneath them, and OpenFile for opened files. All paths
// resolve through the vfs package, so nothing a guest does reaches the host
// file system, clock or network.
//
// Syscalls the sandbox cannot honor either return an errno (PolicyTolerate)
// or abort the run (PolicyTrap). A Tracer can observe every call.
package preview1
