package harness

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasi-harness/internal/wasmgen"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// Guest memory layout shared by the test programs.
const (
	iovAddr     = 0
	nwrittenPtr = 8
	textAddr    = 16
	pathAddr    = 100
	fdPtr       = 200
	nreadPtr    = 208
	readIovAddr = 300
	echoIovAddr = 310
	bufAddr     = 1024
	bufLen      = 4096
	markerAddr  = 1000

	tmpPathAddr   = 120
	staleIovAddr  = 320
	statusIovAddr = 330
	staleAddr     = 400
)

type guestBuilder struct {
	m       *wasmgen.Module
	imports map[string]uint32
}

var wasiSignatures = map[string][2][]api.ValueType{
	"fd_write":       {{i32, i32, i32, i32}, {i32}},
	"fd_read":        {{i32, i32, i32, i32}, {i32}},
	"path_open":      {{i32, i32, i32, i32, i32, i64, i64, i32, i32}, {i32}},
	"proc_exit":      {{i32}, nil},
	"clock_time_get": {{i32, i64, i32}, {i32}},
	"random_get":     {{i32, i32}, {i32}},

	"path_unlink_file":     {{i32, i32, i32}, {i32}},
	"fd_filestat_set_size": {{i32, i64}, {i32}},
}

func newGuest(wasi ...string) *guestBuilder {
	g := &guestBuilder{m: wasmgen.New(), imports: make(map[string]uint32)}
	for _, name := range wasi {
		sig := wasiSignatures[name]
		g.imports[name] = g.m.ImportFunc("wasi_snapshot_preview1", name, sig[0], sig[1])
	}
	return g
}

func (g *guestBuilder) threads() *guestBuilder {
	g.imports["thread-spawn"] = g.m.ImportFunc(ThreadsModule, ThreadSpawnFunction, []api.ValueType{i32}, []api.ValueType{i32})
	return g
}

// ownMemory defines an exported one-page memory; importMemory takes env.memory.
func (g *guestBuilder) ownMemory() *guestBuilder {
	g.m.Memory(wasmgen.Limits{Min: 1}, "memory")
	return g
}

func (g *guestBuilder) importMemory(l wasmgen.Limits) *guestBuilder {
	g.m.ImportMemory("env", "memory", l)
	return g
}

// write emits fd_write(fd, iov@iovAddr, 1, nwritten) and drops the errno.
func (g *guestBuilder) write(c *wasmgen.Code, fd int32) *wasmgen.Code {
	return c.I32Const(fd).I32Const(iovAddr).I32Const(1).I32Const(nwrittenPtr).
		Call(g.imports["fd_write"]).Drop()
}

func iovec(ptr, n uint32) []byte {
	return []byte{
		byte(ptr), byte(ptr >> 8), byte(ptr >> 16), byte(ptr >> 24),
		byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24),
	}
}

// printGuest writes text to fd.
func printGuest(fd int32, text string) []byte {
	g := newGuest("fd_write").ownMemory()
	g.m.Data(iovAddr, iovec(textAddr, uint32(len(text))))
	g.m.Data(textAddr, []byte(text))
	g.m.Func("_start", nil, nil, g.write(wasmgen.NewCode(), fd))
	return g.m.Bytes()
}

func trapGuest() []byte {
	g := newGuest().ownMemory()
	g.m.Func("_start", nil, nil, wasmgen.NewCode().Unreachable())
	return g.m.Bytes()
}

func spinGuest() []byte {
	g := newGuest().ownMemory()
	g.m.Func("_start", nil, nil, wasmgen.NewCode().Loop().Br(0).End())
	return g.m.Bytes()
}

// exitGuest writes nothing and exits with code.
func exitGuest(code int32) []byte {
	g := newGuest("proc_exit").ownMemory()
	g.m.Func("_start", nil, nil, wasmgen.NewCode().I32Const(code).Call(g.imports["proc_exit"]))
	return g.m.Bytes()
}

// echoGuest opens main.rs in the preopen at fd 5, reads it and writes it to
// stdout.
func echoGuest() []byte {
	g := newGuest("fd_write", "fd_read", "path_open").ownMemory()
	g.m.Data(pathAddr, []byte("main.rs"))
	g.m.Data(readIovAddr, iovec(bufAddr, bufLen))
	g.m.Data(iovAddr, iovec(bufAddr, 0))

	c := wasmgen.NewCode().
		I32Const(5).I32Const(0).I32Const(pathAddr).I32Const(7).I32Const(0).
		I64Const(2).I64Const(0).I32Const(0).I32Const(fdPtr).
		Call(g.imports["path_open"]).Drop().
		I32Const(fdPtr).I32Load(0).I32Const(readIovAddr).I32Const(1).I32Const(nreadPtr).
		Call(g.imports["fd_read"]).Drop().
		I32Const(iovAddr+4).I32Const(nreadPtr).I32Load(0).I32Store(0)
	g.m.Func("_start", nil, nil, g.write(c, 1))
	return g.m.Bytes()
}

// tamperGuest echoes main.rs to stdout like echoGuest, then leaves the
// sandbox dirty: it creates /tmp/leftover exclusively, reporting that errno
// as one character on stderr ('0' on success), and swaps main.rs for a new
// file holding "stale".
func tamperGuest() []byte {
	g := newGuest("fd_write", "fd_read", "path_open", "path_unlink_file").ownMemory()
	g.m.Data(pathAddr, []byte("main.rs"))
	g.m.Data(tmpPathAddr, []byte("leftover"))
	g.m.Data(readIovAddr, iovec(bufAddr, bufLen))
	g.m.Data(iovAddr, iovec(bufAddr, 0))
	g.m.Data(staleIovAddr, iovec(staleAddr, 5))
	g.m.Data(staleAddr, []byte("stale"))
	g.m.Data(statusIovAddr, iovec(textAddr, 1))

	c := wasmgen.NewCode().
		I32Const(5).I32Const(0).I32Const(pathAddr).I32Const(7).I32Const(0).
		I64Const(2).I64Const(0).I32Const(0).I32Const(fdPtr).
		Call(g.imports["path_open"]).Drop().
		I32Const(fdPtr).I32Load(0).I32Const(readIovAddr).I32Const(1).I32Const(nreadPtr).
		Call(g.imports["fd_read"]).Drop().
		I32Const(iovAddr+4).I32Const(nreadPtr).I32Load(0).I32Store(0)
	c = g.write(c, 1)

	// O_CREAT|O_EXCL in /tmp with fd_write rights.
	c.I32Const(textAddr).
		I32Const(3).I32Const(0).I32Const(tmpPathAddr).I32Const(8).I32Const(5).
		I64Const(64).I64Const(0).I32Const(0).I32Const(fdPtr).
		Call(g.imports["path_open"]).
		I32Const('0').I32Add().I32Store8(0).
		I32Const(2).I32Const(statusIovAddr).I32Const(1).I32Const(nwrittenPtr).
		Call(g.imports["fd_write"]).Drop()

	c.I32Const(5).I32Const(pathAddr).I32Const(7).
		Call(g.imports["path_unlink_file"]).Drop().
		I32Const(5).I32Const(0).I32Const(pathAddr).I32Const(7).I32Const(1).
		I64Const(64).I64Const(0).I32Const(0).I32Const(fdPtr).
		Call(g.imports["path_open"]).Drop().
		I32Const(fdPtr).I32Load(0).I32Const(staleIovAddr).I32Const(1).I32Const(nwrittenPtr).
		Call(g.imports["fd_write"]).Drop()

	g.m.Func("_start", nil, nil, c)
	return g.m.Bytes()
}

// growGuest creates /tmp/grow, resizes it to size and prints the errno as
// one character ('0' on success).
func growGuest(size int64) []byte {
	g := newGuest("fd_write", "path_open", "fd_filestat_set_size").ownMemory()
	g.m.Data(tmpPathAddr, []byte("grow"))
	g.m.Data(iovAddr, iovec(textAddr, 1))

	c := wasmgen.NewCode().
		I32Const(3).I32Const(0).I32Const(tmpPathAddr).I32Const(4).I32Const(1).
		I64Const(64).I64Const(0).I32Const(0).I32Const(fdPtr).
		Call(g.imports["path_open"]).Drop().
		I32Const(textAddr).
		I32Const(fdPtr).I32Load(0).I64Const(size).
		Call(g.imports["fd_filestat_set_size"]).
		I32Const('0').I32Add().I32Store8(0)
	g.m.Func("_start", nil, nil, g.write(c, 1))
	return g.m.Bytes()
}

// entropyGuest prints the realtime clock followed by eight random bytes.
func entropyGuest() []byte {
	g := newGuest("fd_write", "clock_time_get", "random_get").ownMemory()
	g.m.Data(iovAddr, iovec(textAddr, 16))
	c := wasmgen.NewCode().
		I32Const(0).I64Const(0).I32Const(textAddr).
		Call(g.imports["clock_time_get"]).Drop().
		I32Const(textAddr+8).I32Const(8).
		Call(g.imports["random_get"]).Drop()
	g.m.Func("_start", nil, nil, g.write(c, 1))
	return g.m.Bytes()
}

// threadGuest spawns two threads; each prints its id as a digit.
func threadGuest() []byte {
	g := newGuest("fd_write").threads().ownMemory()
	g.m.Data(iovAddr, iovec(textAddr, 1))
	g.m.Func("_start", nil, nil, wasmgen.NewCode().
		I32Const(0).Call(g.imports["thread-spawn"]).Drop().
		I32Const(0).Call(g.imports["thread-spawn"]).Drop())
	body := wasmgen.NewCode().
		I32Const(textAddr).LocalGet(0).I32Const('0').I32Add().I32Store8(0)
	g.m.Func("wasi_thread_start", []api.ValueType{i32, i32}, nil, g.write(body, 1))
	return g.m.Bytes()
}

// spawnWithoutStartGuest prints the raw thread-spawn result byte.
func spawnWithoutStartGuest() []byte {
	g := newGuest("fd_write").threads().ownMemory()
	g.m.Data(iovAddr, iovec(textAddr, 4))
	c := wasmgen.NewCode().
		I32Const(textAddr).I32Const(0).Call(g.imports["thread-spawn"]).I32Store(0)
	g.m.Func("_start", nil, nil, g.write(c, 1))
	return g.m.Bytes()
}

// freshMemoryGuest prints '0' plus the marker byte, then sets the marker.
// A run that prints "0" saw zeroed memory.
func freshMemoryGuest() []byte {
	g := newGuest("fd_write").importMemory(wasmgen.Limits{Min: 2, Max: 8, HasMax: true})
	g.m.Data(iovAddr, iovec(textAddr, 1))
	c := wasmgen.NewCode().
		I32Const(textAddr).I32Const(markerAddr).I32Load8U(0).I32Const('0').I32Add().I32Store8(0).
		I32Const(markerAddr).I32Const(1).I32Store8(0)
	g.m.Func("_start", nil, nil, g.write(c, 1))
	return g.m.Bytes()
}

// oobGuest loads far past the end of its one-page memory.
func oobGuest() []byte {
	g := newGuest().ownMemory()
	g.m.Func("_start", nil, nil, wasmgen.NewCode().I32Const(0x7FFF0000).I32Load(0).Drop())
	return g.m.Bytes()
}
