package gen

import "math/rand"

// RandomSource abstracts the source of randomness.
type RandomSource interface {
	Intn(n int) int
}

// RandSource wraps math/rand.
type RandSource struct {
	*rand.Rand
}

// NewRandSource returns a seeded source owned by the caller.
func NewRandSource(seed int64) *RandSource {
	return &RandSource{rand.New(rand.NewSource(seed))}
}

// ByteSource uses a byte slice as a source of randomness. Once the data
// runs out every draw returns zero, which the generator treats as the
// first candidate.
type ByteSource struct {
	data []byte
	pos  int
}

func NewByteSource(data []byte) *ByteSource {
	return &ByteSource{data: data}
}

func (s *ByteSource) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	if s.pos >= len(s.data) {
		return 0
	}
	v := int(s.data[s.pos])
	s.pos++
	if n > 256 && s.pos < len(s.data) {
		v = v<<8 | int(s.data[s.pos])
		s.pos++
	}
	return v % n
}
