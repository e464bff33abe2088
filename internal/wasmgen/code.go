package wasmgen

const (
	opUnreachable = 0x00
	opBlock       = 0x02
	opLoop        = 0x03
	opIf          = 0x04
	opEnd         = 0x0B
	opBr          = 0x0C
	opBrIf        = 0x0D
	opReturn      = 0x0F
	opCall        = 0x10
	opDrop        = 0x1A
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opI32Load     = 0x28
	opI32Load8U   = 0x2D
	opI32Store    = 0x36
	opI32Store8   = 0x3A
	opI32Const    = 0x41
	opI64Const    = 0x42
	opI32Eqz      = 0x45
	opI32Add      = 0x6A

	blockEmpty = 0x40
)

// Code is an instruction sequence for a function body. Methods append one
// instruction each and return the receiver for chaining.
type Code struct {
	buf []byte
}

// NewCode starts an empty instruction sequence.
func NewCode() *Code {
	return &Code{}
}

func (c *Code) op(b ...byte) *Code {
	c.buf = append(c.buf, b...)
	return c
}

func (c *Code) Unreachable() *Code { return c.op(opUnreachable) }
func (c *Code) Drop() *Code        { return c.op(opDrop) }
func (c *Code) Return() *Code      { return c.op(opReturn) }
func (c *Code) End() *Code         { return c.op(opEnd) }
func (c *Code) I32Add() *Code      { return c.op(opI32Add) }
func (c *Code) I32Eqz() *Code      { return c.op(opI32Eqz) }

// Block opens a block with no result.
func (c *Code) Block() *Code { return c.op(opBlock, blockEmpty) }

// Loop opens a loop with no result.
func (c *Code) Loop() *Code { return c.op(opLoop, blockEmpty) }

// If opens an if with no result, consuming an i32 condition.
func (c *Code) If() *Code { return c.op(opIf, blockEmpty) }

// Br branches to the enclosing label at depth.
func (c *Code) Br(depth uint32) *Code {
	c.buf = AppendU32(append(c.buf, opBr), depth)
	return c
}

// BrIf branches to the label at depth when the popped i32 is non-zero.
func (c *Code) BrIf(depth uint32) *Code {
	c.buf = AppendU32(append(c.buf, opBrIf), depth)
	return c
}

// Call invokes the function at index.
func (c *Code) Call(index uint32) *Code {
	c.buf = AppendU32(append(c.buf, opCall), index)
	return c
}

// LocalGet pushes a parameter or local.
func (c *Code) LocalGet(index uint32) *Code {
	c.buf = AppendU32(append(c.buf, opLocalGet), index)
	return c
}

// LocalSet pops into a parameter or local.
func (c *Code) LocalSet(index uint32) *Code {
	c.buf = AppendU32(append(c.buf, opLocalSet), index)
	return c
}

// I32Const pushes an i32 constant.
func (c *Code) I32Const(v int32) *Code {
	c.buf = AppendS32(append(c.buf, opI32Const), v)
	return c
}

// I64Const pushes an i64 constant.
func (c *Code) I64Const(v int64) *Code {
	c.buf = AppendS64(append(c.buf, opI64Const), v)
	return c
}

// I32Load loads a 4-byte word at the popped address plus offset.
func (c *Code) I32Load(offset uint32) *Code {
	c.buf = AppendU32(append(c.buf, opI32Load, 2), offset)
	return c
}

// I32Load8U loads one byte zero-extended.
func (c *Code) I32Load8U(offset uint32) *Code {
	c.buf = AppendU32(append(c.buf, opI32Load8U, 0), offset)
	return c
}

// I32Store stores a 4-byte word: [addr, value].
func (c *Code) I32Store(offset uint32) *Code {
	c.buf = AppendU32(append(c.buf, opI32Store, 2), offset)
	return c
}

// I32Store8 stores the low byte: [addr, value].
func (c *Code) I32Store8(offset uint32) *Code {
	c.buf = AppendU32(append(c.buf, opI32Store8, 0), offset)
	return c
}
