package notecard

// Buffer is a fixed-capacity byte arena with a length cursor. Its backing
// array is allocated once; writes that do not fit fail whole with
// ErrBufOverflow and leave the contents unchanged.
type Buffer struct {
	data []byte
	n    int
}

// NewBuffer allocates a Buffer holding at most capacity bytes.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(p) > b.Available() {
		return 0, &Error{Kind: KindBufOverflow, Msg: "need more capacity than available"}
	}
	b.n += copy(b.data[b.n:], p)
	return len(p), nil
}

// WriteByte implements io.ByteWriter.
func (b *Buffer) WriteByte(c byte) error {
	if b.Available() == 0 {
		return &Error{Kind: KindBufOverflow, Msg: "buffer full"}
	}
	b.data[b.n] = c
	b.n++
	return nil
}

// Reset empties the buffer without releasing capacity.
func (b *Buffer) Reset() { b.n = 0 }

// Bytes aliases the written bytes; valid until the next mutation.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

func (b *Buffer) Len() int       { return b.n }
func (b *Buffer) Cap() int       { return len(b.data) }
func (b *Buffer) Available() int { return len(b.data) - b.n }
