// Package testutil holds helpers shared by the slot fuzz tests.
package testutil

// ByteStream turns fuzz input into a deterministic sequence of choices.
//
// Once the input is exhausted every choice is 0, so the same bytes always
// drive the same operations.
type ByteStream struct {
	bytes []byte
	pos   int
}

// NewByteStream creates a stream over b.
func NewByteStream(b []byte) *ByteStream {
	return &ByteStream{bytes: b}
}

// HasMore reports whether unread bytes remain.
func (s *ByteStream) HasMore() bool {
	return s.pos < len(s.bytes)
}

// Remaining returns the number of unread bytes.
func (s *ByteStream) Remaining() int {
	return len(s.bytes) - s.pos
}

// NextByte returns the next byte, or 0 if exhausted.
func (s *ByteStream) NextByte() byte {
	if s.pos >= len(s.bytes) {
		return 0
	}

	v := s.bytes[s.pos]
	s.pos++

	return v
}

// IntN returns a value in [0, n) derived from the next byte. It has the
// same shape as [math/rand/v2.Rand.IntN] so either can drive a test.
func (s *ByteStream) IntN(n int) int {
	if n <= 0 {
		return 0
	}

	return int(s.NextByte()) % n
}
