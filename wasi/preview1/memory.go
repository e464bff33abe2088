package preview1

import (
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"
)

var le = binary.LittleEndian

// readBytes returns a view of guest memory; the view aliases the guest
// buffer.
func readBytes(mem api.Memory, ptr, n uint32) ([]byte, Errno) {
	b, ok := mem.Read(ptr, n)
	if !ok {
		return nil, ErrnoFault
	}
	return b, ErrnoSuccess
}

func readString(mem api.Memory, ptr, n uint32) (string, Errno) {
	b, errno := readBytes(mem, ptr, n)
	if errno != ErrnoSuccess {
		return "", errno
	}
	return string(b), ErrnoSuccess
}

// iovecs resolves an iovec array into views of guest memory.
func iovecs(mem api.Memory, ptr, count uint32) ([][]byte, Errno) {
	if uint64(count)*sizeIovec > uint64(mem.Size()) {
		return nil, ErrnoFault
	}
	raw, errno := readBytes(mem, ptr, count*sizeIovec)
	if errno != ErrnoSuccess {
		return nil, errno
	}
	out := make([][]byte, count)
	for i := range out {
		off := i * sizeIovec
		buf, errno := readBytes(mem, le.Uint32(raw[off:]), le.Uint32(raw[off+4:]))
		if errno != ErrnoSuccess {
			return nil, errno
		}
		out[i] = buf
	}
	return out, ErrnoSuccess
}

func writeU32(mem api.Memory, ptr, v uint32) Errno {
	if !mem.WriteUint32Le(ptr, v) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

func writeU64(mem api.Memory, ptr uint32, v uint64) Errno {
	if !mem.WriteUint64Le(ptr, v) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

func writeBytes(mem api.Memory, ptr uint32, b []byte) Errno {
	if !mem.Write(ptr, b) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// writeStrings lays out NUL-terminated strings at buf and their addresses
// at ptrs, as args_get and environ_get expect.
func writeStrings(mem api.Memory, ptrs, buf uint32, values []string) Errno {
	for i, v := range values {
		if errno := writeU32(mem, ptrs+uint32(i)*4, buf); errno != ErrnoSuccess {
			return errno
		}
		if errno := writeBytes(mem, buf, append([]byte(v), 0)); errno != ErrnoSuccess {
			return errno
		}
		buf += uint32(len(v)) + 1
	}
	return ErrnoSuccess
}

func stringsSize(values []string) (count, size uint32) {
	for _, v := range values {
		size += uint32(len(v)) + 1
	}
	return uint32(len(values)), size
}
