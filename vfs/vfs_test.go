package vfs

import (
	"bytes"
	"errors"
	"testing"
)

func TestFile_ReadWrite(t *testing.T) {
	f := NewFile([]byte("hello"))

	buf := make([]byte, 3)
	if n := f.ReadAt(buf, 1); n != 3 || string(buf) != "ell" {
		t.Errorf("ReadAt = %d %q, want 3 \"ell\"", n, buf)
	}
	if n := f.ReadAt(buf, 5); n != 0 {
		t.Errorf("ReadAt at end = %d, want 0", n)
	}
	if n := f.ReadAt(buf, 100); n != 0 {
		t.Errorf("ReadAt past end = %d, want 0", n)
	}

	if n := f.WriteAt([]byte("!"), 7); n != 1 {
		t.Errorf("WriteAt = %d, want 1", n)
	}
	if want := []byte("hello\x00\x00!"); !bytes.Equal(f.Bytes(), want) {
		t.Errorf("contents = %q, want %q", f.Bytes(), want)
	}

	f.Truncate(2)
	if string(f.Bytes()) != "he" {
		t.Errorf("after truncate = %q", f.Bytes())
	}
	f.Truncate(4)
	if want := []byte("he\x00\x00"); !bytes.Equal(f.Bytes(), want) {
		t.Errorf("after grow = %q, want %q", f.Bytes(), want)
	}
}

func TestFile_ReplaceCopies(t *testing.T) {
	src := []byte("fn main() {}")
	f := NewFile(nil)
	f.Replace(src)
	src[0] = 'X'
	if f.Bytes()[0] != 'f' {
		t.Error("Replace must copy its input")
	}
	if f.Size() != int64(len(src)) {
		t.Errorf("Size = %d, want %d", f.Size(), len(src))
	}
}

func TestDirectory_Order(t *testing.T) {
	d := NewDirectory()
	d.Insert("b", NewFile(nil))
	d.Insert("a", NewDirectory())
	d.Insert("c", NewFile(nil))
	d.Insert("b", NewDirectory())

	var names []string
	for _, e := range d.Entries() {
		names = append(names, e.Name)
	}
	if got := names; len(got) != 3 || got[0] != "b" || got[1] != "a" || got[2] != "c" {
		t.Errorf("entries = %v, want [b a c]", got)
	}
	if _, ok := d.Dir("b"); !ok {
		t.Error("replaced entry should be a directory")
	}

	if !d.Remove("a") || d.Remove("a") {
		t.Error("Remove should succeed once")
	}
	if d.Len() != 2 {
		t.Errorf("Len = %d, want 2", d.Len())
	}
}

func TestDirectory_MustFilePanics(t *testing.T) {
	d := NewDirectory()
	d.Insert("sub", NewDirectory())

	for _, name := range []string{"missing", "sub"} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			d.MustFile(name)
		})
	}
}

func tree(t *testing.T) *Directory {
	t.Helper()
	root := NewDirectory()
	lib, err := MkdirAll(root, "lib/rustlib")
	if err != nil {
		t.Fatal(err)
	}
	lib.Insert("libcore.rlib", NewFile([]byte("core")))
	root.Insert("main.rs", NewFile([]byte("fn main() {}")))
	return root
}

func TestWalk(t *testing.T) {
	root := tree(t)

	tests := []struct {
		path    string
		wantErr error
		isDir   bool
	}{
		{path: "", isDir: true},
		{path: ".", isDir: true},
		{path: "main.rs"},
		{path: "./lib/rustlib/libcore.rlib"},
		{path: "lib/../main.rs"},
		{path: "lib/rustlib/", isDir: true},
		{path: "lib/rustlib/../../lib", isDir: true},
		{path: "..", wantErr: ErrEscape},
		{path: "lib/../../main.rs", wantErr: ErrEscape},
		{path: "/etc/passwd", wantErr: ErrEscape},
		{path: "nope", wantErr: ErrNotFound},
		{path: "main.rs/x", wantErr: ErrNotDirectory},
		{path: "main.rs/", wantErr: ErrNotDirectory},
		{path: "main.rs/..", wantErr: ErrNotDirectory},
		{path: "lib/rustlib/libcore.rlib/..", wantErr: ErrNotDirectory},
		{path: "main.rs/.", wantErr: ErrNotDirectory},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			n, err := Walk(root, tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_, isDir := n.(*Directory)
			if isDir != tt.isDir {
				t.Errorf("isDir = %v, want %v", isDir, tt.isDir)
			}
		})
	}
}

func TestWalk_NeverLeavesRoot(t *testing.T) {
	outer := NewDirectory()
	inner, _ := MkdirAll(outer, "preopen")
	outer.Insert("secret", NewFile([]byte("x")))

	for _, p := range []string{"../secret", "..//secret", "./../secret", "/secret"} {
		if _, err := Walk(inner, p); !errors.Is(err, ErrEscape) {
			t.Errorf("Walk(%q) err = %v, want escape", p, err)
		}
	}
}

func TestWalkParent(t *testing.T) {
	root := tree(t)

	dir, name, err := WalkParent(root, "lib/rustlib/new.rlib")
	if err != nil {
		t.Fatal(err)
	}
	if name != "new.rlib" {
		t.Errorf("name = %q", name)
	}
	if _, ok := dir.File("libcore.rlib"); !ok {
		t.Error("wrong parent directory")
	}

	dir, name, err = WalkParent(root, "out.txt")
	if err != nil || dir != root || name != "out.txt" {
		t.Errorf("top-level parent = %v %q %v", dir, name, err)
	}

	if _, _, err := WalkParent(root, "missing/x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
	if _, _, err := WalkParent(root, "../x"); !errors.Is(err, ErrEscape) {
		t.Errorf("err = %v, want escape", err)
	}
	if _, _, err := WalkParent(root, "lib/.."); err == nil {
		t.Error("expected error for trailing ..")
	}
}

func TestMkdirAll(t *testing.T) {
	root := NewDirectory()
	a, err := MkdirAll(root, "/sysroot/lib/")
	if err != nil {
		t.Fatal(err)
	}
	b, err := MkdirAll(root, "sysroot/lib")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("MkdirAll should reuse existing directories")
	}

	b.Insert("f", NewFile(nil))
	if _, err := MkdirAll(root, "sysroot/lib/f/x"); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("err = %v, want not directory", err)
	}
}

func TestFile_EmptyWriteDoesNotGrow(t *testing.T) {
	f := NewFile([]byte("ab"))
	if n := f.WriteAt(nil, 1<<40); n != 0 {
		t.Errorf("WriteAt = %d, want 0", n)
	}
	if f.Size() != 2 {
		t.Errorf("size = %d, want 2", f.Size())
	}
}

func TestQuota(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		ends    []int64
		wantErr bool
		grown   int64
	}{
		{name: "within limits", ends: []int64{10, 20}, grown: 20},
		{name: "shrinking is free", size: 30, ends: []int64{5}, grown: 0},
		{name: "file limit", ends: []int64{101}, wantErr: true},
		{name: "negative end", ends: []int64{-1}, wantErr: true},
		{name: "growth allowance", ends: []int64{100, 100}, grown: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQuota(100, 150)
			f := NewFile(make([]byte, tt.size))
			var err error
			for _, end := range tt.ends {
				if err = q.Reserve(f, end); err != nil {
					break
				}
				f.Truncate(end)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrTooLarge) {
				t.Errorf("err = %v, want ErrTooLarge", err)
			}
			if q.Grown() != tt.grown {
				t.Errorf("grown = %d, want %d", q.Grown(), tt.grown)
			}
		})
	}
}

func TestQuota_SpansFiles(t *testing.T) {
	q := NewQuota(100, 150)
	a, b := NewFile(nil), NewFile(nil)
	if err := q.Reserve(a, 100); err != nil {
		t.Fatalf("first file: %v", err)
	}
	if err := q.Reserve(b, 60); !errors.Is(err, ErrTooLarge) {
		t.Errorf("second file err = %v, want ErrTooLarge", err)
	}
	if q.Grown() != 100 {
		t.Errorf("failed reserve charged: grown = %d", q.Grown())
	}

	q.Reset()
	if err := q.Reserve(b, 60); err != nil {
		t.Errorf("after reset: %v", err)
	}
}

func TestNewQuota_Defaults(t *testing.T) {
	q := NewQuota(0, -1)
	if q.MaxFileSize() != DefaultMaxFileSize {
		t.Errorf("MaxFileSize = %d, want %d", q.MaxFileSize(), DefaultMaxFileSize)
	}
	if err := q.Reserve(NewFile(nil), DefaultMaxFileSize+1); !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}

func TestDirectory_CloneAndRestore(t *testing.T) {
	root := tree(t)
	snap := root.Clone()

	src := root.MustFile("main.rs")
	src.Replace([]byte("changed"))
	root.Remove("lib")
	root.Insert("junk", NewFile([]byte("x")))

	if got := string(snap.MustFile("main.rs").Bytes()); got != "fn main() {}" {
		t.Errorf("snapshot saw a write: %q", got)
	}

	root.Restore(snap)
	if _, ok := root.Get("junk"); ok {
		t.Error("restore kept a file created after the snapshot")
	}
	if got := string(root.MustFile("main.rs").Bytes()); got != "fn main() {}" {
		t.Errorf("main.rs = %q after restore", got)
	}
	if root.MustFile("main.rs") == src {
		t.Error("restore reused a detached file")
	}
	if _, err := Walk(root, "lib/rustlib/libcore.rlib"); err != nil {
		t.Errorf("removed subtree not restored: %v", err)
	}

	// The snapshot survives any number of restores.
	root.MustFile("main.rs").Replace(nil)
	root.Restore(snap)
	if got := string(root.MustFile("main.rs").Bytes()); got != "fn main() {}" {
		t.Errorf("second restore: main.rs = %q", got)
	}
}
