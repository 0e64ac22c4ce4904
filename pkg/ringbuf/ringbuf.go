// Package ringbuf provides the bounded byte FIFO the device serial
// engine accumulates USB reads into between poll events.
package ringbuf

// Buffer is a fixed-capacity byte FIFO. When full, Push drops the oldest
// byte; a command that loses a byte this way fails the next framing scan
// and is reported as Unknown, which is the protocol's recovery unit.
// Buffer is not safe for concurrent use; only the serial engine owns it.
type Buffer struct {
	data  []byte
	start int
	count int
}

// New returns a buffer holding at most capacity bytes.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("ringbuf: capacity must be positive")
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int { return b.count }

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Push appends one byte, dropping the oldest buffered byte if the buffer
// is full.
func (b *Buffer) Push(v byte) {
	if b.count == len(b.data) {
		b.start = (b.start + 1) % len(b.data)
		b.count--
	}
	b.data[(b.start+b.count)%len(b.data)] = v
	b.count++
}

// Dequeue removes and returns the oldest byte.
func (b *Buffer) Dequeue() (byte, bool) {
	if b.count == 0 {
		return 0, false
	}
	v := b.data[b.start]
	b.start = (b.start + 1) % len(b.data)
	b.count--
	return v, true
}

// Get returns the byte at index i without removing it, i=0 being the
// oldest.
func (b *Buffer) Get(i int) (byte, bool) {
	if i < 0 || i >= b.count {
		return 0, false
	}
	return b.data[(b.start+i)%len(b.data)], true
}

// Pairs calls fn for each pair of consecutive buffered bytes, oldest
// first, with i the index of the second byte. Iteration stops early when
// fn returns false. This is the allocation-free scan the engine uses to
// find the command terminator.
func (b *Buffer) Pairs(fn func(i int, a, v byte) bool) {
	for i := 1; i < b.count; i++ {
		a, _ := b.Get(i - 1)
		v, _ := b.Get(i)
		if !fn(i, a, v) {
			return
		}
	}
}
