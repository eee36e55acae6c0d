package gen

import (
	"errors"
	"fmt"

	"github.com/psilLang/cardvm/pkg/vm"
)

// ErrUnsafe is returned by Verify for programs that can fail at run time.
var ErrUnsafe = errors.New("unsafe program")

// bounds is the stack depth range on entry to a position.
type bounds struct {
	lo, hi int
	seen   bool
}

func (b *bounds) merge(lo, hi int) {
	if !b.seen {
		*b = bounds{lo, hi, true}
		return
	}
	b.lo = min(b.lo, lo)
	b.hi = max(b.hi, hi)
}

// Verify checks code by abstract interpretation, independently of how it
// was produced. It rejects unassigned bytes, branches into operand bytes,
// and any reachable instruction that could underflow or overflow the
// stack or assert on a stack that may be non-empty.
func Verify(code []byte) error {
	n := len(code)
	at := make([]bounds, n)
	if n > 0 {
		at[0].merge(0, 0)
	}

	fail := func(pc int, format string, args ...any) error {
		return fmt.Errorf("%w: %s at %d", ErrUnsafe, fmt.Sprintf(format, args...), pc)
	}

	for pc := 0; pc < n; {
		op := code[pc]
		info, ok := vm.Lookup(op)
		if !ok {
			return fail(pc, "unassigned byte 0x%02X", op)
		}
		size := info.Size()
		hasArg := info.Operand && pc+1 < n
		if !hasArg {
			size = 1
		}
		if hasArg && at[pc+1].seen {
			return fail(pc+1, "branch into operand of %s", info.Name)
		}

		cur := at[pc]
		if !cur.seen {
			pc += size
			continue
		}

		pops, pushes := info.Pops, info.Pushes
		if op == vm.OpLiteral && !hasArg {
			pushes = 0
		}
		if cur.lo < pops {
			return fail(pc, "%s may underflow (depth %d, pops %d)", info.Name, cur.lo, pops)
		}
		if cur.hi-pops+pushes > vm.StackSize {
			return fail(pc, "%s may overflow (depth %d)", info.Name, cur.hi)
		}
		if op == vm.OpAssertEmptyStack && cur.hi != 0 {
			return fail(pc, "%s with up to %d values", info.Name, cur.hi)
		}

		lo, hi := cur.lo-pops, cur.hi-pops
		if info.Branch && hasArg {
			if t := pc + 2 + int(code[pc+1]); t < n {
				at[t].merge(lo, hi)
			}
		}

		next := pc + size
		fallsThrough := op != vm.OpHalt && !(op == vm.OpJump && hasArg)
		if fallsThrough && next < n {
			at[next].merge(lo+pushes, hi+pushes)
		}
		pc = next
	}
	return nil
}
