package vfs

import (
	"strings"

	"github.com/wippyai/wasi-harness/errors"
)

var (
	ErrNotFound     = errors.New(errors.PhaseFS, errors.KindNotFound).Detail("no such file or directory").Build()
	ErrNotDirectory = errors.New(errors.PhaseFS, errors.KindNotDirectory).Detail("not a directory").Build()
	ErrIsDirectory  = errors.New(errors.PhaseFS, errors.KindIsDirectory).Detail("is a directory").Build()
	ErrExist        = errors.New(errors.PhaseFS, errors.KindExists).Detail("file exists").Build()
	ErrEscape       = errors.New(errors.PhaseFS, errors.KindEscape).Detail("path leaves its root").Build()
)

func pathError(base *errors.Error, path string) error {
	return &errors.Error{
		Phase:  base.Phase,
		Kind:   base.Kind,
		Detail: base.Detail,
		Path:   []string{path},
	}
}

// Walk resolves path relative to root. "." components are skipped and ".."
// steps back up the walk; stepping above root is an escape. Absolute paths
// are always escapes. An empty path resolves to root.
func Walk(root *Directory, path string) (Node, error) {
	if strings.HasPrefix(path, "/") {
		return nil, pathError(ErrEscape, path)
	}

	stack := []*Directory{root}
	var cur Node = root
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		// A file cannot be traversed, not even by "." or "..".
		dir, ok := cur.(*Directory)
		if !ok {
			return nil, pathError(ErrNotDirectory, path)
		}
		switch part {
		case ".":
			continue
		case "..":
			if len(stack) == 1 {
				return nil, pathError(ErrEscape, path)
			}
			stack = stack[:len(stack)-1]
			cur = stack[len(stack)-1]
			continue
		}

		child, ok := dir.Get(part)
		if !ok {
			return nil, pathError(ErrNotFound, path)
		}
		if sub, ok := child.(*Directory); ok {
			stack = append(stack, sub)
		}
		cur = child
	}

	// Trailing slash on a file: "a.txt/"
	if strings.HasSuffix(path, "/") {
		if _, ok := cur.(*Directory); !ok {
			return nil, pathError(ErrNotDirectory, path)
		}
	}
	return cur, nil
}

// WalkParent resolves every component of path except the last and returns
// the containing directory with the final name. The final name is never "."
// or "..".
func WalkParent(root *Directory, path string) (*Directory, string, error) {
	trimmed := strings.TrimRight(path, "/")
	if strings.HasPrefix(path, "/") {
		return nil, "", pathError(ErrEscape, path)
	}
	if trimmed == "" {
		return nil, "", pathError(ErrExist, path)
	}

	parentPath, name := "", trimmed
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		parentPath, name = trimmed[:i], trimmed[i+1:]
	}
	if name == "." || name == ".." {
		return nil, "", errors.New(errors.PhaseFS, errors.KindInvalidInput).
			Path(path).
			Detail("final component must be a name").
			Build()
	}

	n, err := Walk(root, parentPath)
	if err != nil {
		return nil, "", err
	}
	dir, ok := n.(*Directory)
	if !ok {
		return nil, "", pathError(ErrNotDirectory, path)
	}
	return dir, name, nil
}

// MkdirAll creates every missing directory along path and returns the last
// one. An existing file on the way is an error.
func MkdirAll(root *Directory, path string) (*Directory, error) {
	if strings.HasPrefix(path, "/") {
		path = strings.TrimLeft(path, "/")
	}
	cur := root
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			return nil, pathError(ErrEscape, path)
		}
		child, ok := cur.Get(part)
		if !ok {
			sub := NewDirectory()
			cur.Insert(part, sub)
			cur = sub
			continue
		}
		sub, ok := child.(*Directory)
		if !ok {
			return nil, pathError(ErrNotDirectory, path)
		}
		cur = sub
	}
	return cur, nil
}
