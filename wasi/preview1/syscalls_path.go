package preview1

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasi-harness/vfs"
)

func (d *Dispatcher) pathArgs(mod api.Module, fd, ptr, n uint64) (*OpenDirectory, string, Errno) {
	dir, errno := d.lookupDir(fd)
	if errno != ErrnoSuccess {
		return nil, "", errno
	}
	path, errno := readString(mod.Memory(), uint32(ptr), uint32(n))
	if errno != ErrnoSuccess {
		return nil, "", errno
	}
	return dir, path, ErrnoSuccess
}

func pathOpen(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	dir, path, errno := d.pathArgs(mod, p[0], p[2], p[3])
	if errno != ErrnoSuccess {
		return errno
	}
	f, errno := dir.Open(OpenRequest{
		Path:       path,
		Oflags:     uint16(p[4]),
		Fdflags:    uint16(p[7]),
		RightsBase: p[5],
	})
	if errno != ErrnoSuccess {
		return errno
	}
	fd := d.table.Insert(f)
	if errno := writeU32(mod.Memory(), uint32(p[8]), fd); errno != ErrnoSuccess {
		d.table.Close(fd)
		return errno
	}
	return ErrnoSuccess
}

func pathFilestatGet(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	dir, path, errno := d.pathArgs(mod, p[0], p[2], p[3])
	if errno != ErrnoSuccess {
		return errno
	}
	n, err := vfs.Walk(dir.dir, path)
	if err != nil {
		return errnoFromFS(err)
	}
	st := d.filestat(n, nodeFiletype(n))
	return writeBytes(mod.Memory(), uint32(p[4]), st[:])
}

func pathCreateDirectory(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	dir, path, errno := d.pathArgs(mod, p[0], p[1], p[2])
	if errno != ErrnoSuccess {
		return errno
	}
	if dir.readOnly {
		return ErrnoRofs
	}
	parent, name, err := vfs.WalkParent(dir.dir, path)
	if err != nil {
		return errnoFromFS(err)
	}
	if _, ok := parent.Get(name); ok {
		return ErrnoExist
	}
	parent.Insert(name, vfs.NewDirectory())
	return ErrnoSuccess
}

func pathRemoveDirectory(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	dir, path, errno := d.pathArgs(mod, p[0], p[1], p[2])
	if errno != ErrnoSuccess {
		return errno
	}
	if dir.readOnly {
		return ErrnoRofs
	}
	parent, name, err := vfs.WalkParent(dir.dir, path)
	if err != nil {
		return errnoFromFS(err)
	}
	n, ok := parent.Get(name)
	if !ok {
		return ErrnoNoent
	}
	sub, ok := n.(*vfs.Directory)
	if !ok {
		return ErrnoNotdir
	}
	if sub.Len() > 0 {
		return ErrnoNotempty
	}
	parent.Remove(name)
	return ErrnoSuccess
}

func pathUnlinkFile(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	dir, path, errno := d.pathArgs(mod, p[0], p[1], p[2])
	if errno != ErrnoSuccess {
		return errno
	}
	if dir.readOnly {
		return ErrnoRofs
	}
	parent, name, err := vfs.WalkParent(dir.dir, path)
	if err != nil {
		return errnoFromFS(err)
	}
	n, ok := parent.Get(name)
	if !ok {
		return ErrnoNoent
	}
	if _, ok := n.(*vfs.Directory); ok {
		return ErrnoIsdir
	}
	parent.Remove(name)
	return ErrnoSuccess
}

func pathRename(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	from, oldPath, errno := d.pathArgs(mod, p[0], p[1], p[2])
	if errno != ErrnoSuccess {
		return errno
	}
	to, newPath, errno := d.pathArgs(mod, p[3], p[4], p[5])
	if errno != ErrnoSuccess {
		return errno
	}
	if from.readOnly || to.readOnly {
		return ErrnoRofs
	}

	oldParent, oldName, err := vfs.WalkParent(from.dir, oldPath)
	if err != nil {
		return errnoFromFS(err)
	}
	newParent, newName, err := vfs.WalkParent(to.dir, newPath)
	if err != nil {
		return errnoFromFS(err)
	}
	src, ok := oldParent.Get(oldName)
	if !ok {
		return ErrnoNoent
	}
	if oldParent == newParent && oldName == newName {
		return ErrnoSuccess
	}

	srcDir, srcIsDir := src.(*vfs.Directory)
	if dst, ok := newParent.Get(newName); ok {
		dstDir, dstIsDir := dst.(*vfs.Directory)
		switch {
		case srcIsDir && !dstIsDir:
			return ErrnoNotdir
		case !srcIsDir && dstIsDir:
			return ErrnoIsdir
		case dstIsDir && dstDir.Len() > 0:
			return ErrnoNotempty
		}
	}
	// A directory cannot move beneath itself.
	if srcIsDir && contains(srcDir, newParent) {
		return ErrnoInval
	}

	oldParent.Remove(oldName)
	newParent.Insert(newName, src)
	return ErrnoSuccess
}

func contains(root, target *vfs.Directory) bool {
	if root == target {
		return true
	}
	for _, e := range root.Entries() {
		if sub, ok := e.Node.(*vfs.Directory); ok && contains(sub, target) {
			return true
		}
	}
	return false
}

// pathReadlink reports EINVAL for every existing node; the tree has no
// symbolic links.
func pathReadlink(d *Dispatcher, _ context.Context, mod api.Module, p []uint64) Errno {
	dir, path, errno := d.pathArgs(mod, p[0], p[1], p[2])
	if errno != ErrnoSuccess {
		return errno
	}
	if _, err := vfs.Walk(dir.dir, path); err != nil {
		return errnoFromFS(err)
	}
	return ErrnoInval
}
