package preview1

import (
	stderrors "errors"
	"strconv"

	"github.com/wippyai/wasi-harness/errors"
	"github.com/wippyai/wasi-harness/vfs"
)

// Errno is a wasi_snapshot_preview1 error number.
type Errno uint16

const (
	ErrnoSuccess     Errno = 0
	Errno2big        Errno = 1
	ErrnoAcces       Errno = 2
	ErrnoAgain       Errno = 6
	ErrnoBadf        Errno = 8
	ErrnoExist       Errno = 20
	ErrnoFault       Errno = 21
	ErrnoFbig        Errno = 22
	ErrnoInval       Errno = 28
	ErrnoIO          Errno = 29
	ErrnoIsdir       Errno = 31
	ErrnoLoop        Errno = 32
	ErrnoNametoolong Errno = 37
	ErrnoNoent       Errno = 44
	ErrnoNosys       Errno = 52
	ErrnoNotdir      Errno = 54
	ErrnoNotempty    Errno = 55
	ErrnoNotsock     Errno = 57
	ErrnoNotsup      Errno = 58
	ErrnoOverflow    Errno = 61
	ErrnoPerm        Errno = 63
	ErrnoRofs        Errno = 69
	ErrnoSpipe       Errno = 70
	ErrnoNotcapable  Errno = 76
)

var errnoNames = map[Errno]string{
	ErrnoSuccess:     "ESUCCESS",
	Errno2big:        "E2BIG",
	ErrnoAcces:       "EACCES",
	ErrnoAgain:       "EAGAIN",
	ErrnoBadf:        "EBADF",
	ErrnoExist:       "EEXIST",
	ErrnoFault:       "EFAULT",
	ErrnoFbig:        "EFBIG",
	ErrnoInval:       "EINVAL",
	ErrnoIO:          "EIO",
	ErrnoIsdir:       "EISDIR",
	ErrnoLoop:        "ELOOP",
	ErrnoNametoolong: "ENAMETOOLONG",
	ErrnoNoent:       "ENOENT",
	ErrnoNosys:       "ENOSYS",
	ErrnoNotdir:      "ENOTDIR",
	ErrnoNotempty:    "ENOTEMPTY",
	ErrnoNotsock:     "ENOTSOCK",
	ErrnoNotsup:      "ENOTSUP",
	ErrnoOverflow:    "EOVERFLOW",
	ErrnoPerm:        "EPERM",
	ErrnoRofs:        "EROFS",
	ErrnoSpipe:       "ESPIPE",
	ErrnoNotcapable:  "ENOTCAPABLE",
}

func (e Errno) String() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return "errno(" + strconv.Itoa(int(e)) + ")"
}

// errnoFromFS maps a vfs resolution error to the errno a guest sees.
// Escapes are capability failures, not missing files.
func errnoFromFS(err error) Errno {
	switch {
	case err == nil:
		return ErrnoSuccess
	case stderrors.Is(err, vfs.ErrEscape):
		return ErrnoNotcapable
	case stderrors.Is(err, vfs.ErrNotFound):
		return ErrnoNoent
	case stderrors.Is(err, vfs.ErrNotDirectory):
		return ErrnoNotdir
	case stderrors.Is(err, vfs.ErrIsDirectory):
		return ErrnoIsdir
	case stderrors.Is(err, vfs.ErrExist):
		return ErrnoExist
	case stderrors.Is(err, vfs.ErrTooLarge):
		return ErrnoFbig
	}
	var e *errors.Error
	if stderrors.As(err, &e) && e.Kind == errors.KindInvalidInput {
		return ErrnoInval
	}
	return ErrnoIO
}
