package preview1

import (
	"bytes"
	"slices"

	"golang.org/x/text/encoding/unicode"

	"github.com/wippyai/wasi-harness/vfs"
)

// Fd is a capability held in a descriptor slot: a *StreamSink, an
// *OpenDirectory or an *OpenFile.
type Fd interface {
	fd()
}

func (*StreamSink) fd()    {}
func (*OpenDirectory) fd() {}
func (*OpenFile) fd()      {}

// Role names the standard stream a sink stands in for.
type Role uint8

const (
	RoleStdin Role = iota
	RoleStdout
	RoleStderr
)

func (r Role) String() string {
	switch r {
	case RoleStdin:
		return "stdin"
	case RoleStdout:
		return "stdout"
	case RoleStderr:
		return "stderr"
	}
	return "unknown"
}

// StreamSink collects bytes written to a standard stream. Reads always
// report end of input.
type StreamSink struct {
	role   Role
	chunks [][]byte
}

// NewStreamSink creates an empty sink for role.
func NewStreamSink(role Role) *StreamSink {
	return &StreamSink{role: role}
}

func (s *StreamSink) Role() Role { return s.role }

// Write appends a copy of p as one chunk.
func (s *StreamSink) Write(p []byte) (int, Errno) {
	if len(p) > 0 {
		s.chunks = append(s.chunks, slices.Clone(p))
	}
	return len(p), ErrnoSuccess
}

// Clear drops every chunk.
func (s *StreamSink) Clear() {
	s.chunks = nil
}

// Bytes concatenates the chunks in write order.
func (s *StreamSink) Bytes() []byte {
	return bytes.Join(s.chunks, nil)
}

// Text decodes the concatenated chunks as UTF-8. Invalid sequences become
// U+FFFD. Chunks are joined first so a character split across writes
// decodes intact.
func (s *StreamSink) Text() string {
	raw := s.Bytes()
	if len(raw) == 0 {
		return ""
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return string(bytes.ToValidUTF8(raw, []byte("\uFFFD")))
	}
	return string(out)
}

// Preopen binds a guest-visible directory path to a tree.
type Preopen struct {
	Path     string
	Dir      *vfs.Directory
	ReadOnly bool
	// Quota bounds file growth beneath the preopen. Nil gets a quota of
	// its own with the vfs defaults.
	Quota *vfs.Quota
}

// OpenDirectory is a directory capability. Preopened ones carry the path
// reported by fd_prestat_dir_name; ones opened through path_open do not.
type OpenDirectory struct {
	dir      *vfs.Directory
	path     string
	preopen  bool
	readOnly bool
	quota    *vfs.Quota
}

// NewPreopenDirectory creates the capability for a preopen slot.
func NewPreopenDirectory(p Preopen) *OpenDirectory {
	q := p.Quota
	if q == nil {
		q = vfs.NewQuota(0, 0)
	}
	return &OpenDirectory{dir: p.Dir, path: p.Path, preopen: true, readOnly: p.ReadOnly, quota: q}
}

func (d *OpenDirectory) Dir() *vfs.Directory { return d.dir }
func (d *OpenDirectory) ReadOnly() bool      { return d.readOnly }

// Prestat returns the preopen path and whether this is a preopen at all.
func (d *OpenDirectory) Prestat() (string, bool) {
	return d.path, d.preopen
}

// OpenRequest carries the path_open arguments after decoding.
type OpenRequest struct {
	Path       string
	Oflags     uint16
	Fdflags    uint16
	RightsBase uint64
}

// Open resolves req.Path beneath d and returns the opened capability.
func (d *OpenDirectory) Open(req OpenRequest) (Fd, Errno) {
	wantWrite := req.RightsBase&rightFdWrite != 0 || req.Oflags&(oflagCreat|oflagTrunc) != 0
	if d.readOnly && req.Oflags&(oflagCreat|oflagTrunc) != 0 {
		return nil, ErrnoRofs
	}

	var node vfs.Node
	if req.Oflags&oflagCreat != 0 {
		parent, name, err := vfs.WalkParent(d.dir, req.Path)
		if err != nil {
			return nil, errnoFromFS(err)
		}
		existing, ok := parent.Get(name)
		switch {
		case ok && req.Oflags&oflagExcl != 0:
			return nil, ErrnoExist
		case ok:
			node = existing
		default:
			f := vfs.NewFile(nil)
			parent.Insert(name, f)
			node = f
		}
	} else {
		n, err := vfs.Walk(d.dir, req.Path)
		if err != nil {
			return nil, errnoFromFS(err)
		}
		node = n
	}

	switch n := node.(type) {
	case *vfs.Directory:
		if req.Oflags&oflagTrunc != 0 || req.RightsBase&rightFdWrite != 0 && req.Oflags&oflagDirectory == 0 {
			return nil, ErrnoIsdir
		}
		return &OpenDirectory{dir: n, readOnly: d.readOnly, quota: d.quota}, ErrnoSuccess
	case *vfs.File:
		if req.Oflags&oflagDirectory != 0 {
			return nil, ErrnoNotdir
		}
		if req.Oflags&oflagTrunc != 0 {
			n.Truncate(0)
		}
		return &OpenFile{
			file:     n,
			quota:    d.quota,
			append:   req.Fdflags&fdflagAppend != 0,
			writable: wantWrite && !d.readOnly,
		}, ErrnoSuccess
	}
	return nil, ErrnoIO
}

type dirent struct {
	name string
	typ  filetype
}

// listing returns ".", ".." and the children, in cookie order.
func (d *OpenDirectory) listing() []dirent {
	entries := d.dir.Entries()
	out := make([]dirent, 0, len(entries)+2)
	out = append(out, dirent{".", filetypeDirectory}, dirent{"..", filetypeDirectory})
	for _, e := range entries {
		out = append(out, dirent{e.Name, nodeFiletype(e.Node)})
	}
	return out
}

// Readdir encodes directory entries starting at cookie into the guest's
// dirent stream format. The result may be longer than the guest buffer; the
// caller truncates.
func (d *OpenDirectory) Readdir(cookie uint64, limit int) []byte {
	entries := d.listing()
	var buf []byte
	for i := cookie; i < uint64(len(entries)) && len(buf) < limit; i++ {
		e := entries[i]
		var hdr [sizeDirentHeader]byte
		le.PutUint64(hdr[0:], i+1)
		le.PutUint64(hdr[8:], i+1)
		le.PutUint32(hdr[16:], uint32(len(e.name)))
		hdr[20] = byte(e.typ)
		buf = append(buf, hdr[:]...)
		buf = append(buf, e.name...)
	}
	return buf
}

// OpenFile is a file capability with its own cursor over a shared
// vfs.File. Growth is charged to the quota of the directory it was opened
// from.
type OpenFile struct {
	file     *vfs.File
	quota    *vfs.Quota
	pos      int64
	append   bool
	writable bool
}

// NewOpenFile opens f for reading and, when writable, writing, under a
// default quota.
func NewOpenFile(f *vfs.File, writable bool) *OpenFile {
	return &OpenFile{file: f, quota: vfs.NewQuota(0, 0), writable: writable}
}

func (f *OpenFile) File() *vfs.File { return f.file }
func (f *OpenFile) Writable() bool  { return f.writable }

func (f *OpenFile) Read(p []byte) int {
	n := f.file.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n
}

func (f *OpenFile) Pread(p []byte, off int64) int {
	return f.file.ReadAt(p, off)
}

func (f *OpenFile) Write(p []byte) (int, Errno) {
	if !f.writable {
		return 0, ErrnoBadf
	}
	if f.append {
		f.pos = f.file.Size()
	}
	if err := f.quota.Reserve(f.file, f.pos+int64(len(p))); err != nil {
		return 0, errnoFromFS(err)
	}
	n := f.file.WriteAt(p, f.pos)
	f.pos += int64(n)
	return n, ErrnoSuccess
}

func (f *OpenFile) Pwrite(p []byte, off int64) (int, Errno) {
	if !f.writable {
		return 0, ErrnoBadf
	}
	if err := f.quota.Reserve(f.file, off+int64(len(p))); err != nil {
		return 0, errnoFromFS(err)
	}
	return f.file.WriteAt(p, off), ErrnoSuccess
}

// Seek moves the cursor and returns the new position.
func (f *OpenFile) Seek(offset int64, whence uint8) (int64, Errno) {
	var base int64
	switch whence {
	case whenceSet:
	case whenceCur:
		base = f.pos
	case whenceEnd:
		base = f.file.Size()
	default:
		return 0, ErrnoInval
	}
	next := base + offset
	if next < 0 || next > f.quota.MaxFileSize() {
		return 0, ErrnoInval
	}
	f.pos = next
	return next, ErrnoSuccess
}

func (f *OpenFile) Tell() int64 { return f.pos }

func (f *OpenFile) SetSize(size int64) Errno {
	if !f.writable {
		return ErrnoBadf
	}
	if size < 0 {
		return ErrnoInval
	}
	if err := f.quota.Reserve(f.file, size); err != nil {
		return errnoFromFS(err)
	}
	f.file.Truncate(size)
	return ErrnoSuccess
}

func nodeFiletype(n vfs.Node) filetype {
	switch n.(type) {
	case *vfs.Directory:
		return filetypeDirectory
	case *vfs.File:
		return filetypeRegularFile
	}
	return filetypeUnknown
}
