package preview1

// Table maps descriptor numbers to capabilities. Slots 0-2 hold the
// standard stream sinks and slots 3.. the preopens, in construction order.
// That base shape is restored by Reset; descriptors opened by the guest are
// allocated after it.
type Table struct {
	base  []Fd
	slots []Fd
}

// NewTable creates a table with the given sinks and preopens.
func NewTable(stdin, stdout, stderr *StreamSink, preopens ...*OpenDirectory) *Table {
	base := make([]Fd, 0, 3+len(preopens))
	base = append(base, stdin, stdout, stderr)
	for _, p := range preopens {
		base = append(base, p)
	}
	t := &Table{base: base}
	t.Reset()
	return t
}

// Reset closes every guest-opened descriptor and restores the base shape.
func (t *Table) Reset() {
	t.slots = append(t.slots[:0], t.base...)
}

// Get returns the capability at fd.
func (t *Table) Get(fd uint32) (Fd, bool) {
	if uint64(fd) >= uint64(len(t.slots)) || t.slots[fd] == nil {
		return nil, false
	}
	return t.slots[fd], true
}

// Insert stores f in the lowest free slot past the base shape.
func (t *Table) Insert(f Fd) uint32 {
	for i := len(t.base); i < len(t.slots); i++ {
		if t.slots[i] == nil {
			t.slots[i] = f
			return uint32(i)
		}
	}
	t.slots = append(t.slots, f)
	return uint32(len(t.slots) - 1)
}

// Close releases fd.
func (t *Table) Close(fd uint32) Errno {
	if _, ok := t.Get(fd); !ok {
		return ErrnoBadf
	}
	t.slots[fd] = nil
	t.trim()
	return ErrnoSuccess
}

// Renumber moves the capability at from into to, replacing whatever to
// held.
func (t *Table) Renumber(from, to uint32) Errno {
	f, ok := t.Get(from)
	if !ok {
		return ErrnoBadf
	}
	if _, ok := t.Get(to); !ok {
		return ErrnoBadf
	}
	t.slots[to] = f
	if from != to {
		t.slots[from] = nil
	}
	t.trim()
	return ErrnoSuccess
}

// Len returns one past the highest slot in use.
func (t *Table) Len() int {
	return len(t.slots)
}

// BaseLen returns the size of the base shape.
func (t *Table) BaseLen() int {
	return len(t.base)
}

func (t *Table) trim() {
	for len(t.slots) > len(t.base) && t.slots[len(t.slots)-1] == nil {
		t.slots = t.slots[:len(t.slots)-1]
	}
}
