package state

import "unicode/utf8"

// defaultProgressSize bounds the partial-progress text kept for one exchange.
const defaultProgressSize = 64 * 1024

// ProgressBuffer is a fixed-size ring holding the most recent chunk text of
// the pending exchange. When full, the oldest bytes are overwritten.
// It is not safe for concurrent use; the Store serializes access.
type ProgressBuffer struct {
	buf  []byte
	size int
	head int // write position
	tail int // read position
	full bool
}

// NewProgressBuffer creates a buffer with the given capacity in bytes.
func NewProgressBuffer(size int) *ProgressBuffer {
	if size <= 0 {
		size = defaultProgressSize
	}
	return &ProgressBuffer{
		buf:  make([]byte, size),
		size: size,
	}
}

// WriteString appends s, dropping the oldest bytes on overflow.
func (pb *ProgressBuffer) WriteString(s string) {
	if len(s) >= pb.size {
		// Only the tail of s can survive.
		copy(pb.buf, s[len(s)-pb.size:])
		pb.head, pb.tail, pb.full = 0, 0, true
		return
	}
	for i := 0; i < len(s); i++ {
		if pb.full {
			pb.tail = (pb.tail + 1) % pb.size
		}
		pb.buf[pb.head] = s[i]
		pb.head = (pb.head + 1) % pb.size
		if pb.head == pb.tail {
			pb.full = true
		}
	}
}

// String returns the buffered text in write order. After an overflow the
// leading bytes of a truncated character are skipped.
func (pb *ProgressBuffer) String() string {
	var s string
	switch {
	case !pb.full && pb.head == pb.tail:
		return ""
	case pb.head > pb.tail:
		s = string(pb.buf[pb.tail:pb.head])
	default:
		s = string(pb.buf[pb.tail:]) + string(pb.buf[:pb.head])
	}
	if pb.full {
		for i := 0; i < len(s) && i < utf8.UTFMax; i++ {
			if utf8.RuneStart(s[i]) {
				return s[i:]
			}
		}
	}
	return s
}

// buffered returns the number of buffered bytes.
func (pb *ProgressBuffer) buffered() int {
	switch {
	case !pb.full && pb.head == pb.tail:
		return 0
	case pb.full:
		return pb.size
	case pb.head > pb.tail:
		return pb.head - pb.tail
	default:
		return (pb.size - pb.tail) + pb.head
	}
}

// Reset clears the buffer.
func (pb *ProgressBuffer) Reset() {
	pb.head = 0
	pb.tail = 0
	pb.full = false
}
