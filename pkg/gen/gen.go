// Package gen synthesises random card VM programs that can never underflow
// or overflow the stack.
//
// Generation is a single forward pass. Every jump is forward, so the stack
// bounds a branch carries to its target are known before generation
// reaches the target, and no fixed point is needed.
package gen

import (
	"github.com/psilLang/cardvm/pkg/vm"
)

// Unrestricted marks a position no branch has constrained.
const Unrestricted = vm.StackSize

// Branch records a branch placed during generation.
type Branch struct {
	At     int // opcode position
	Target int // may be past the end of the program
	Depth  int // lower bound on the stack after the branch pops
	Upper  int // upper bound on the stack after the branch pops
}

// Program is generated bytecode together with the bounds it was built
// under.
type Program struct {
	Code []byte

	// Depth and Upper are the stack bounds in force before the opcode at
	// each position. Operand bytes hold -1.
	Depth []int
	Upper []int

	// Restrictions is the lowest depth any branch carried to a position,
	// or Unrestricted.
	Restrictions []int
	Branches     []Branch

	// Inserted is where the required sequence was placed, or -1.
	Inserted int
}

// Option configures a Generator.
type Option func(*Generator)

// WithOpcodes limits generation to ops. NO_OP is still emitted when no
// listed opcode fits.
func WithOpcodes(ops []byte) Option {
	return func(g *Generator) {
		var keep [256]bool
		for _, op := range ops {
			keep[op] = true
		}
		for op := range g.weights {
			if !keep[op] {
				g.weights[op] = 0
			}
		}
	}
}

// WithWeights sets relative draw weights. Opcodes not in w keep their
// current weight; a weight of zero disables the opcode.
func WithWeights(w map[byte]int) Option {
	return func(g *Generator) {
		for op, n := range w {
			if vm.IsValid(op) && n >= 0 {
				g.weights[op] = n
			}
		}
	}
}

// Generator produces constrained random programs. It is not safe for
// concurrent use; give each goroutine its own.
type Generator struct {
	src     RandomSource
	weights [256]int

	// pools[t] holds the enabled opcodes popping at most t values.
	pools [4][]byte
}

// New creates a generator drawing from src. Every opcode starts with
// weight 1.
func New(src RandomSource, opts ...Option) *Generator {
	g := &Generator{src: src}
	for _, op := range vm.Opcodes() {
		g.weights[op] = 1
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, op := range vm.Opcodes() {
		if g.weights[op] == 0 {
			continue
		}
		info, _ := vm.Lookup(op)
		for tier := info.Pops; tier < len(g.pools); tier++ {
			g.pools[tier] = append(g.pools[tier], op)
		}
	}
	return g
}

// Weight returns the draw weight of op.
func (g *Generator) Weight(op byte) int {
	return g.weights[op]
}

// Generate returns a program of exactly n bytes.
func (g *Generator) Generate(n int) []byte {
	return g.Program(n).Code
}

// Program returns a program of exactly n bytes with its bounds.
func (g *Generator) Program(n int) *Program {
	b := newBuilder(n)
	for pos := 0; pos < n; pos = len(b.prog.Code) {
		b.enter(pos)
		g.step(b, pos, false)
	}
	return b.finish()
}

// step draws one instruction at pos. With noOperand set, opcodes taking
// an operand are skipped.
func (g *Generator) step(b *builder, pos int, noOperand bool) {
	pool := g.pools[min(b.depth, len(g.pools)-1)]

	eligible := func(op byte) bool {
		if noOperand && vm.HasOperand(op) {
			return false
		}
		return b.allowed(op, pos)
	}

	total := 0
	for _, op := range pool {
		if eligible(op) {
			total += g.weights[op]
		}
	}

	op := byte(vm.OpNoOp)
	if total > 0 {
		r := g.src.Intn(total)
		for _, cand := range pool {
			if !eligible(cand) {
				continue
			}
			r -= g.weights[cand]
			if r < 0 {
				op = cand
				break
			}
		}
	}

	// No room for the operand byte.
	if vm.HasOperand(op) && pos+1 >= b.n {
		op = vm.OpNoOp
	}

	var arg byte
	switch {
	case vm.IsBranch(op):
		arg = g.offset(b, pos)
	case op == vm.OpLiteral:
		arg = byte(g.src.Intn(256))
	}
	b.emit(op, arg)
}

// offset picks a branch offset for a branch at pos so the target lies in
// [pos+2, n-1] and outside the reserved span. A branch whose operand is
// the last byte can only run off the end, and gets 0.
func (g *Generator) offset(b *builder, pos int) byte {
	hi := min(b.n-3-pos, 255)
	if hi < 0 {
		return 0
	}
	// Offsets whose target falls in [lo, end) are skipped.
	lo := max(b.reserveLo-pos-2, 0)
	end := min(b.reserveHi-pos-2, hi+1)
	skip := max(end-lo, 0)
	o := g.src.Intn(hi + 1 - skip)
	if skip > 0 && o >= lo {
		o += skip
	}
	return byte(o)
}

// builder carries the abstract stack state through one generation call.
type builder struct {
	n    int
	prog *Program

	// Bounds along the fall-through path.
	depth int
	upper int

	restrict []int
	ceil     []int
	target   []bool

	// No branch may target [reserveLo, reserveHi).
	reserveLo int
	reserveHi int

	journal []edit
}

// edit holds the previous bounds of a branch target so a failed insertion
// can be rolled back.
type edit struct {
	pos      int
	restrict int
	ceil     int
	target   bool
}

type snapshot struct {
	codeLen  int
	branches int
	journal  int
	depth    int
	upper    int
}

func newBuilder(n int) *builder {
	n = max(n, 0)
	b := &builder{
		n:        n,
		restrict: make([]int, n),
		ceil:     make([]int, n),
		target:   make([]bool, n),
		prog: &Program{
			Code:     make([]byte, 0, n),
			Depth:    make([]int, n),
			Upper:    make([]int, n),
			Inserted: -1,
		},
	}
	for i := range b.restrict {
		b.restrict[i] = Unrestricted
	}
	return b
}

// enter merges the bounds carried by branches into pos with the
// fall-through bounds.
func (b *builder) enter(pos int) {
	b.depth = min(b.depth, b.restrict[pos])
	b.upper = max(b.upper, b.ceil[pos])
	b.prog.Depth[pos] = b.depth
	b.prog.Upper[pos] = b.upper
}

// allowed reports whether op can be placed at pos under the current
// bounds. Running out of room for an operand is handled by the caller.
func (b *builder) allowed(op byte, pos int) bool {
	info, ok := vm.Lookup(op)
	if !ok || info.Pops > b.depth {
		return false
	}
	if b.upper-info.Pops+info.Pushes > vm.StackSize {
		return false
	}
	if op == vm.OpAssertEmptyStack && b.upper != 0 {
		return false
	}
	if info.Operand && pos+1 < b.n && b.target[pos+1] {
		return false
	}
	return true
}

// emit appends op and its operand and applies the stack effect.
func (b *builder) emit(op, arg byte) {
	pos := len(b.prog.Code)
	info, _ := vm.Lookup(op)

	b.prog.Code = append(b.prog.Code, op)
	b.depth -= info.Pops
	b.upper -= info.Pops

	if info.Operand {
		b.prog.Code = append(b.prog.Code, arg)
		b.prog.Depth[pos+1] = -1
		b.prog.Upper[pos+1] = -1
	}
	if info.Branch {
		t := pos + 2 + int(arg)
		b.prog.Branches = append(b.prog.Branches, Branch{
			At:     pos,
			Target: t,
			Depth:  b.depth,
			Upper:  b.upper,
		})
		if t < b.n {
			b.mark(t)
		}
	}

	b.depth += info.Pushes
	b.upper += info.Pushes
}

// mark carries the current bounds to a branch target.
func (b *builder) mark(t int) {
	b.journal = append(b.journal, edit{t, b.restrict[t], b.ceil[t], b.target[t]})
	b.restrict[t] = min(b.restrict[t], b.depth)
	b.ceil[t] = max(b.ceil[t], b.upper)
	b.target[t] = true
}

func (b *builder) snapshot() snapshot {
	return snapshot{
		codeLen:  len(b.prog.Code),
		branches: len(b.prog.Branches),
		journal:  len(b.journal),
		depth:    b.depth,
		upper:    b.upper,
	}
}

func (b *builder) restore(s snapshot) {
	for i := len(b.journal) - 1; i >= s.journal; i-- {
		e := b.journal[i]
		b.restrict[e.pos] = e.restrict
		b.ceil[e.pos] = e.ceil
		b.target[e.pos] = e.target
	}
	b.journal = b.journal[:s.journal]
	b.prog.Code = b.prog.Code[:s.codeLen]
	b.prog.Branches = b.prog.Branches[:s.branches]
	b.depth = s.depth
	b.upper = s.upper
	// Depth/Upper entries past codeLen are rewritten as generation
	// continues.
}

func (b *builder) finish() *Program {
	b.prog.Restrictions = b.restrict
	return b.prog
}
