// Package vfs is the in-memory file tree a guest sees through its preopens.
//
// Nodes are owned by exactly one parent directory and carry no back-pointers.
// Path resolution always walks down from a root (see Walk), so a tree can be
// shared between descriptors without reference cycles.
package vfs

import "slices"

// Node is a File or a Directory.
type Node interface {
	node()
}

// File is a byte buffer addressed by offset.
type File struct {
	data []byte
}

func (*File) node() {}

// NewFile creates a file holding a copy of data.
func NewFile(data []byte) *File {
	return &File{data: slices.Clone(data)}
}

// Size returns the current length in bytes.
func (f *File) Size() int64 {
	return int64(len(f.data))
}

// Bytes returns the file contents. The slice aliases the buffer until the
// next mutation.
func (f *File) Bytes() []byte {
	return f.data
}

// ReadAt copies bytes starting at off into p. Reading at or past the end
// returns 0.
func (f *File) ReadAt(p []byte, off int64) int {
	if off < 0 || off >= int64(len(f.data)) {
		return 0
	}
	return copy(p, f.data[off:])
}

// WriteAt writes p at off, growing the file and zero-filling any gap. An
// empty write never grows the file.
func (f *File) WriteAt(p []byte, off int64) int {
	if len(p) == 0 {
		return 0
	}
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		f.grow(end)
	}
	return copy(f.data[off:], p)
}

// Truncate sets the size, zero-filling when it grows.
func (f *File) Truncate(size int64) {
	if size <= int64(len(f.data)) {
		clear(f.data[size:])
		f.data = f.data[:size]
		return
	}
	f.grow(size)
}

// Replace swaps the whole contents for a copy of data.
func (f *File) Replace(data []byte) {
	f.data = slices.Clone(data)
}

func (f *File) grow(size int64) {
	if size <= int64(cap(f.data)) {
		f.data = f.data[:size]
		return
	}
	buf := make([]byte, size, max(size, 2*int64(cap(f.data))))
	copy(buf, f.data)
	f.data = buf
}

type entry struct {
	name string
	node Node
}

// Directory maps names to child nodes, preserving insertion order.
type Directory struct {
	entries []entry
}

func (*Directory) node() {}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{}
}

func (d *Directory) index(name string) int {
	for i, e := range d.entries {
		if e.name == name {
			return i
		}
	}
	return -1
}

// Get returns the child called name.
func (d *Directory) Get(name string) (Node, bool) {
	if i := d.index(name); i >= 0 {
		return d.entries[i].node, true
	}
	return nil, false
}

// Insert adds or replaces the child called name. A replaced entry keeps its
// position.
func (d *Directory) Insert(name string, n Node) {
	if i := d.index(name); i >= 0 {
		d.entries[i].node = n
		return
	}
	d.entries = append(d.entries, entry{name: name, node: n})
}

// Remove deletes the child called name and reports whether it existed.
func (d *Directory) Remove(name string) bool {
	i := d.index(name)
	if i < 0 {
		return false
	}
	d.entries = slices.Delete(d.entries, i, i+1)
	return true
}

// Len returns the number of children.
func (d *Directory) Len() int {
	return len(d.entries)
}

// Entry is a name and node pair returned by Entries.
type Entry struct {
	Name string
	Node Node
}

// Entries lists the children in insertion order.
func (d *Directory) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	for i, e := range d.entries {
		out[i] = Entry{Name: e.name, Node: e.node}
	}
	return out
}

// File returns the child file called name.
func (d *Directory) File(name string) (*File, bool) {
	n, ok := d.Get(name)
	if !ok {
		return nil, false
	}
	f, ok := n.(*File)
	return f, ok
}

// Dir returns the child directory called name.
func (d *Directory) Dir(name string) (*Directory, bool) {
	n, ok := d.Get(name)
	if !ok {
		return nil, false
	}
	sub, ok := n.(*Directory)
	return sub, ok
}

// MustFile returns the child file called name and panics when it is missing
// or is a directory. Use it only for layouts the host itself built.
func (d *Directory) MustFile(name string) *File {
	f, ok := d.File(name)
	if !ok {
		panic("vfs: no file " + name)
	}
	return f
}

// Clone returns a deep copy of d. File contents are copied, so later writes
// to either tree are not visible in the other.
func (d *Directory) Clone() *Directory {
	out := &Directory{entries: make([]entry, len(d.entries))}
	for i, e := range d.entries {
		out.entries[i] = entry{name: e.name, node: cloneNode(e.node)}
	}
	return out
}

// Restore makes d a deep copy of snapshot in place. Pointers to d stay
// valid; pointers to its former children are detached.
func (d *Directory) Restore(snapshot *Directory) {
	d.entries = snapshot.Clone().entries
}

func cloneNode(n Node) Node {
	switch n := n.(type) {
	case *File:
		return NewFile(n.data)
	case *Directory:
		return n.Clone()
	}
	return n
}
