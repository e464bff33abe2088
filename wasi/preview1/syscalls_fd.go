package preview1

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasi-harness/vfs"
)

func fdAdvise(d *Dispatcher, _ context.Context, _ api.Module, p []uint64) Errno {
	f, errno := d.lookup(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	if uint32(p[3]) > 5 {
		return ErrnoInval
	}
	switch f.(type) {
	case *OpenFile:
		return ErrnoSuccess
	case *OpenDirectory:
		return ErrnoIsdir
	case *StreamSink:
		return ErrnoSpipe
	}
	return ErrnoBadf
}

func fdAllocate(d *Dispatcher, _ context.Context, _ api.Module, p []uint64) Errno {
	f, errno := d.lookup(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	switch f := f.(type) {
	case *OpenFile:
		end := int64(p[1]) + int64(p[2])
		if int64(p[1]) < 0 || end < 0 {
			return ErrnoInval
		}
		if end <= f.file.Size() {
			return ErrnoSuccess
		}
		return f.SetSize(end)
	case *OpenDirectory:
		return ErrnoIsdir
	case *StreamSink:
		return ErrnoSpipe
	}
	return ErrnoBadf
}

func fdClose(d *Dispatcher, _ context.Context, _ api.Module, p []uint64) Errno {
	return d.table.Close(uint32(p[0]))
}

func fdSync(d *Dispatcher, _ context.Context, _ api.Module, p []uint64) Errno {
	_, errno := d.lookup(p[0])
	return errno
}

func fdFdstatGet(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	f, errno := d.lookup(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	var stat [sizeFdstat]byte
	switch f := f.(type) {
	case *StreamSink:
		stat[0] = byte(filetypeCharacterDevice)
		le.PutUint64(stat[8:], rightsSink)
	case *OpenDirectory:
		stat[0] = byte(filetypeDirectory)
		le.PutUint64(stat[8:], rightsAll)
		le.PutUint64(stat[16:], rightsAll)
	case *OpenFile:
		stat[0] = byte(filetypeRegularFile)
		if f.append {
			le.PutUint16(stat[2:], fdflagAppend)
		}
		rights := rightsFile
		if !f.writable {
			rights &^= rightFdWrite
		}
		le.PutUint64(stat[8:], rights)
	}
	return writeBytes(mod.Memory(), uint32(p[1]), stat[:])
}

func fdFdstatSetFlags(d *Dispatcher, _ context.Context, _ api.Module, p []uint64) Errno {
	f, errno := d.lookup(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	if file, ok := f.(*OpenFile); ok {
		file.append = uint16(p[1])&fdflagAppend != 0
	}
	return ErrnoSuccess
}

func fdFdstatSetRights(d *Dispatcher, _ context.Context, _ api.Module, p []uint64) Errno {
	f, errno := d.lookup(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	// Rights may only shrink; dropping write access is the one that matters.
	if file, ok := f.(*OpenFile); ok && p[1]&rightFdWrite == 0 {
		file.writable = false
	}
	return ErrnoSuccess
}

func (d *Dispatcher) filestat(n vfs.Node, typ filetype) [sizeFilestat]byte {
	var st [sizeFilestat]byte
	st[16] = byte(typ)
	le.PutUint64(st[24:], 1)
	if f, ok := n.(*vfs.File); ok {
		le.PutUint64(st[32:], uint64(f.Size()))
	}
	ts := uint64(d.epoch.UnixNano())
	le.PutUint64(st[40:], ts)
	le.PutUint64(st[48:], ts)
	le.PutUint64(st[56:], ts)
	return st
}

func fdFilestatGet(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	f, errno := d.lookup(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	var st [sizeFilestat]byte
	switch f := f.(type) {
	case *StreamSink:
		st = d.filestat(nil, filetypeCharacterDevice)
	case *OpenDirectory:
		st = d.filestat(f.dir, filetypeDirectory)
	case *OpenFile:
		st = d.filestat(f.file, filetypeRegularFile)
	}
	return writeBytes(mod.Memory(), uint32(p[1]), st[:])
}

func fdFilestatSetSize(d *Dispatcher, _ context.Context, _ api.Module, p []uint64) Errno {
	f, errno := d.lookup(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	switch f := f.(type) {
	case *OpenFile:
		return f.SetSize(int64(p[1]))
	case *OpenDirectory:
		return ErrnoIsdir
	case *StreamSink:
		return ErrnoInval
	}
	return ErrnoBadf
}

func fdPrestatGet(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	dir, errno := d.lookupDir(p[0])
	if errno != ErrnoSuccess {
		return ErrnoBadf
	}
	path, ok := dir.Prestat()
	if !ok {
		return ErrnoBadf
	}
	var pre [sizePrestat]byte
	le.PutUint32(pre[4:], uint32(len(path)))
	return writeBytes(mod.Memory(), uint32(p[1]), pre[:])
}

func fdPrestatDirName(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	dir, errno := d.lookupDir(p[0])
	if errno != ErrnoSuccess {
		return ErrnoBadf
	}
	path, ok := dir.Prestat()
	if !ok {
		return ErrnoBadf
	}
	if uint32(p[2]) < uint32(len(path)) {
		return ErrnoNametoolong
	}
	return writeBytes(mod.Memory(), uint32(p[1]), []byte(path))
}

func fdRead(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	f, errno := d.lookup(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	mem := mod.Memory()
	bufs, errno := iovecs(mem, uint32(p[1]), uint32(p[2]))
	if errno != ErrnoSuccess {
		return errno
	}

	var n int
	switch f := f.(type) {
	case *StreamSink:
		if f.role != RoleStdin {
			return ErrnoBadf
		}
	case *OpenDirectory:
		return ErrnoIsdir
	case *OpenFile:
		for _, b := range bufs {
			got := f.Read(b)
			n += got
			if got < len(b) {
				break
			}
		}
	}
	return writeU32(mem, uint32(p[3]), uint32(n))
}

func fdPread(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	f, errno := d.lookup(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	file, errno := seekable(f)
	if errno != ErrnoSuccess {
		return errno
	}
	mem := mod.Memory()
	bufs, errno := iovecs(mem, uint32(p[1]), uint32(p[2]))
	if errno != ErrnoSuccess {
		return errno
	}
	off := int64(p[3])
	if off < 0 {
		return ErrnoInval
	}
	var n int
	for _, b := range bufs {
		got := file.Pread(b, off+int64(n))
		n += got
		if got < len(b) {
			break
		}
	}
	return writeU32(mem, uint32(p[4]), uint32(n))
}

func fdWrite(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	f, errno := d.lookup(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	mem := mod.Memory()
	bufs, errno := iovecs(mem, uint32(p[1]), uint32(p[2]))
	if errno != ErrnoSuccess {
		return errno
	}

	var n int
	switch f := f.(type) {
	case *StreamSink:
		if f.role == RoleStdin {
			return ErrnoBadf
		}
		for _, b := range bufs {
			w, _ := f.Write(b)
			n += w
		}
	case *OpenDirectory:
		return ErrnoIsdir
	case *OpenFile:
		for _, b := range bufs {
			w, errno := f.Write(b)
			if errno != ErrnoSuccess {
				return errno
			}
			n += w
		}
	}
	return writeU32(mem, uint32(p[3]), uint32(n))
}

func fdPwrite(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	f, errno := d.lookup(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	file, errno := seekable(f)
	if errno != ErrnoSuccess {
		return errno
	}
	mem := mod.Memory()
	bufs, errno := iovecs(mem, uint32(p[1]), uint32(p[2]))
	if errno != ErrnoSuccess {
		return errno
	}
	off := int64(p[3])
	if off < 0 {
		return ErrnoInval
	}
	var n int
	for _, b := range bufs {
		w, errno := file.Pwrite(b, off+int64(n))
		if errno != ErrnoSuccess {
			return errno
		}
		n += w
	}
	return writeU32(mem, uint32(p[4]), uint32(n))
}

func fdReaddir(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	dir, errno := d.lookupDir(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	buf, bufLen := uint32(p[1]), uint32(p[2])
	data := dir.Readdir(p[3], int(bufLen))
	if uint32(len(data)) > bufLen {
		data = data[:bufLen]
	}
	mem := mod.Memory()
	if errno := writeBytes(mem, buf, data); errno != ErrnoSuccess {
		return errno
	}
	return writeU32(mem, uint32(p[4]), uint32(len(data)))
}

func fdRenumber(d *Dispatcher, _ context.Context, _ api.Module, p []uint64) Errno {
	return d.table.Renumber(uint32(p[0]), uint32(p[1]))
}

func fdSeek(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	f, errno := d.lookup(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	file, errno := seekable(f)
	if errno != ErrnoSuccess {
		return errno
	}
	pos, errno := file.Seek(int64(p[1]), uint8(p[2]))
	if errno != ErrnoSuccess {
		return errno
	}
	return writeU64(mod.Memory(), uint32(p[3]), uint64(pos))
}

func fdTell(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	f, errno := d.lookup(p[0])
	if errno != ErrnoSuccess {
		return errno
	}
	file, errno := seekable(f)
	if errno != ErrnoSuccess {
		return errno
	}
	return writeU64(mod.Memory(), uint32(p[1]), uint64(file.Tell()))
}

// seekable narrows f to a file, reporting the errno for other kinds.
func seekable(f Fd) (*OpenFile, Errno) {
	switch f := f.(type) {
	case *OpenFile:
		return f, ErrnoSuccess
	case *OpenDirectory:
		return nil, ErrnoIsdir
	case *StreamSink:
		return nil, ErrnoSpipe
	}
	return nil, ErrnoBadf
}
