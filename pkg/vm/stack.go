package vm

import (
	"errors"
	"strconv"
	"strings"
)

// StackSize is the fixed capacity of the operand stack.
const StackSize = 512

var (
	ErrStackUnderflow = errors.New("stack underflow")
	ErrStackOverflow  = errors.New("stack overflow")
)

// Stack is a fixed-capacity LIFO of bytes with an explicit length.
type Stack struct {
	data [StackSize]byte
	n    int
}

// Push appends v, failing when the stack is full.
func (s *Stack) Push(v byte) error {
	if s.n == StackSize {
		return ErrStackOverflow
	}
	s.data[s.n] = v
	s.n++
	return nil
}

// Pop removes and returns the top value, failing when the stack is empty.
func (s *Stack) Pop() (byte, error) {
	if s.n == 0 {
		return 0, ErrStackUnderflow
	}
	s.n--
	return s.data[s.n], nil
}

// Peek returns the top value without removing it.
func (s *Stack) Peek() (byte, bool) {
	if s.n == 0 {
		return 0, false
	}
	return s.data[s.n-1], true
}

func (s *Stack) IsEmpty() bool { return s.n == 0 }

func (s *Stack) Len() int { return s.n }

// Clear empties the stack. Slot contents are left as they are.
func (s *Stack) Clear() { s.n = 0 }

// Values returns a copy of the live slots, bottom first.
func (s *Stack) Values() []byte {
	out := make([]byte, s.n)
	copy(out, s.data[:s.n])
	return out
}

// String renders the stack bottom first, "[ ]" when empty.
func (s *Stack) String() string {
	if s.n == 0 {
		return "[ ]"
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range s.data[:s.n] {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(int(v)))
	}
	sb.WriteByte(']')
	return sb.String()
}
