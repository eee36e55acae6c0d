package gen

import (
	"errors"
	"fmt"

	"github.com/psilLang/cardvm/pkg/vm"
)

// ErrMalformed is returned for a required sequence that is not a whole
// number of well-formed instructions.
var ErrMalformed = errors.New("malformed instruction sequence")

// Targeted returns a program of exactly n bytes that contains required
// once, placed atomically where the stack bounds allow it. Inserted is -1
// when no position could take the sequence.
//
// Each eligible position is tried with probability 1/(room left), so the
// last position that still fits is always tried. Until then no branch may
// target the interior of that last span, so the attempt there succeeds
// whenever the sequence is stack-safe from an empty stack.
func (g *Generator) Targeted(n int, required []byte) (*Program, error) {
	if err := CheckSequence(required); err != nil {
		return nil, err
	}

	b := newBuilder(n)
	last := n - len(required)
	inserted := len(required) == 0
	if !inserted && last >= 0 {
		b.reserveLo, b.reserveHi = last+1, n
	}

	for pos := 0; pos < n; pos = len(b.prog.Code) {
		b.enter(pos)
		if !inserted && pos <= last && g.src.Intn(last-pos+1) == 0 {
			if b.insert(required) {
				b.prog.Inserted = pos
				inserted = true
				b.reserveLo, b.reserveHi = 0, 0
				continue
			}
		}
		if pos >= last {
			b.reserveLo, b.reserveHi = 0, 0
		}
		// Keep the last start position reachable.
		g.step(b, pos, !inserted && pos == last-1)
	}
	return b.finish(), nil
}

// insert emits seq at the current position if every instruction fits the
// bounds, including bounds the sequence's own branches create. On failure
// nothing is changed.
func (b *builder) insert(seq []byte) bool {
	snap := b.snapshot()
	base := len(b.prog.Code)

	for _, i := range vm.Instructions(seq) {
		pos := base + i
		if i > 0 {
			b.enter(pos)
		}
		op := seq[i]
		if !b.allowed(op, pos) {
			b.restore(snap)
			return false
		}
		var arg byte
		if vm.HasOperand(op) {
			arg = seq[i+1]
		}
		b.emit(op, arg)
	}
	return true
}

// CheckSequence reports whether code decodes into complete instructions
// whose branches land on instruction boundaries when they stay inside it.
func CheckSequence(code []byte) error {
	starts := vm.Instructions(code)
	isStart := make(map[int]bool, len(starts))
	for _, pc := range starts {
		isStart[pc] = true
	}

	for _, pc := range starts {
		op := code[pc]
		info, ok := vm.Lookup(op)
		if !ok {
			return fmt.Errorf("%w: unassigned byte 0x%02X at %d", ErrMalformed, op, pc)
		}
		if info.Operand && pc+1 >= len(code) {
			return fmt.Errorf("%w: %s at %d has no operand", ErrMalformed, info.Name, pc)
		}
		if info.Branch {
			t := pc + 2 + int(code[pc+1])
			if t < len(code) && !isStart[t] {
				return fmt.Errorf("%w: %s at %d lands inside an instruction", ErrMalformed, info.Name, pc)
			}
		}
	}
	return nil
}
