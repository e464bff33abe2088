package wasmgen

// AppendU32 appends v as unsigned LEB128.
func AppendU32(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

// AppendS32 appends v as signed LEB128.
func AppendS32(buf []byte, v int32) []byte {
	return AppendS64(buf, int64(v))
}

// AppendS64 appends v as signed LEB128.
func AppendS64(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

func appendName(buf []byte, s string) []byte {
	buf = AppendU32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendLimits(buf []byte, l Limits) []byte {
	flags := byte(0x00)
	if l.HasMax {
		flags |= 0x01
	}
	if l.Shared {
		flags |= 0x02
	}
	buf = append(buf, flags)
	buf = AppendU32(buf, l.Min)
	if l.HasMax {
		buf = AppendU32(buf, l.Max)
	}
	return buf
}
