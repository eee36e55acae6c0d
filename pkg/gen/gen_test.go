package gen

import (
	"errors"
	"testing"

	"github.com/psilLang/cardvm/pkg/game"
	"github.com/psilLang/cardvm/pkg/vm"
)

var testLengths = []int{0, 1, 2, 3, 4, 7, 16, 64, 255, 600}

// run executes code against a freshly dealt board.
func run(t *testing.T, code []byte, seed int64) *vm.VM {
	t.Helper()
	m := vm.New(game.Deal(seed))
	m.RecordVisits = true
	if err := m.Interpret(code); err != nil {
		t.Fatalf("seed %d: %v\n%s", seed, err, vm.Disassemble(code))
	}
	if m.Steps > len(code) {
		t.Fatalf("seed %d: %d steps for %d bytes", seed, m.Steps, len(code))
	}
	return m
}

func TestSafety(t *testing.T) {
	for seed := int64(0); seed < 100; seed++ {
		g := New(NewRandSource(seed))
		for _, n := range testLengths {
			p := g.Program(n)
			if len(p.Code) != n {
				t.Fatalf("seed %d: got %d bytes, want %d", seed, len(p.Code), n)
			}
			if err := Verify(p.Code); err != nil {
				t.Fatalf("seed %d n %d: %v\n%s", seed, n, err, vm.Disassemble(p.Code))
			}
			run(t, p.Code, seed)
		}
	}
}

func TestDeterministic(t *testing.T) {
	a := New(NewRandSource(5)).Generate(200)
	b := New(NewRandSource(5)).Generate(200)
	if string(a) != string(b) {
		t.Error("same seed produced different programs")
	}
}

func TestRestrictionSoundness(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		p := New(NewRandSource(seed)).Program(300)
		for _, br := range p.Branches {
			if br.Target >= len(p.Code) {
				continue
			}
			tgt := br.Target
			if p.Restrictions[tgt] > br.Depth {
				t.Fatalf("seed %d: restriction %d at %d above branch depth %d", seed, p.Restrictions[tgt], tgt, br.Depth)
			}
			if p.Depth[tgt] < 0 {
				t.Fatalf("seed %d: branch at %d targets operand byte %d", seed, br.At, tgt)
			}
			if p.Depth[tgt] > p.Restrictions[tgt] {
				t.Fatalf("seed %d: depth %d at %d ignores restriction %d", seed, p.Depth[tgt], tgt, p.Restrictions[tgt])
			}
			if p.Upper[tgt] < br.Upper {
				t.Fatalf("seed %d: upper %d at %d below incoming %d", seed, p.Upper[tgt], tgt, br.Upper)
			}
		}
		for _, pc := range vm.Instructions(p.Code) {
			info, _ := vm.Lookup(p.Code[pc])
			if p.Depth[pc] < info.Pops {
				t.Fatalf("seed %d: %s at %d with depth %d", seed, info.Name, pc, p.Depth[pc])
			}
			if p.Depth[pc] > p.Restrictions[pc] || p.Depth[pc] > p.Upper[pc] {
				t.Fatalf("seed %d: bounds at %d: depth %d restriction %d upper %d",
					seed, pc, p.Depth[pc], p.Restrictions[pc], p.Upper[pc])
			}
		}
	}
}

func TestOperandPairing(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		p := New(NewRandSource(seed)).Program(128)
		starts := make(map[int]bool)
		for _, pc := range vm.Instructions(p.Code) {
			starts[pc] = true
			if vm.HasOperand(p.Code[pc]) {
				if pc+1 >= len(p.Code) {
					t.Fatalf("seed %d: %s at %d has no operand", seed, vm.OpName(p.Code[pc]), pc)
				}
				if p.Depth[pc+1] != -1 {
					t.Fatalf("seed %d: operand byte %d recorded as an instruction", seed, pc+1)
				}
			}
		}
		m := run(t, p.Code, seed)
		for _, pc := range m.Visited {
			if !starts[pc] {
				t.Fatalf("seed %d: executed operand byte at %d", seed, pc)
			}
		}
	}
}

func TestLastByteNeverTakesOperand(t *testing.T) {
	for seed := int64(0); seed < 200; seed++ {
		for _, n := range []int{1, 2, 3} {
			code := New(NewRandSource(seed)).Generate(n)
			starts := vm.Instructions(code)
			lastOp := code[starts[len(starts)-1]]
			if starts[len(starts)-1] == n-1 && vm.HasOperand(lastOp) {
				t.Fatalf("seed %d: %s as the last byte", seed, vm.OpName(lastOp))
			}
		}
	}
}

func TestWithOpcodes(t *testing.T) {
	allowed := map[byte]bool{vm.OpLiteral: true, vm.OpAdd: true, vm.OpForget: true, vm.OpNoOp: true}
	g := New(NewRandSource(1), WithOpcodes([]byte{vm.OpLiteral, vm.OpAdd, vm.OpForget}))
	code := g.Generate(500)
	for _, pc := range vm.Instructions(code) {
		if !allowed[code[pc]] {
			t.Fatalf("unexpected %s at %d", vm.OpName(code[pc]), pc)
		}
	}
	if err := Verify(code); err != nil {
		t.Fatal(err)
	}
}

func TestWithWeights(t *testing.T) {
	g := New(NewRandSource(2), WithWeights(map[byte]int{vm.OpHalt: 0, vm.OpHaltUnless: 0, vm.OpAdd: 50}))
	if g.Weight(vm.OpHalt) != 0 || g.Weight(vm.OpAdd) != 50 || g.Weight(vm.OpSub) != 1 {
		t.Fatal("weights not applied")
	}
	code := g.Generate(1000)
	adds := 0
	for _, pc := range vm.Instructions(code) {
		switch code[pc] {
		case vm.OpHalt, vm.OpHaltUnless:
			t.Fatalf("disabled %s generated at %d", vm.OpName(code[pc]), pc)
		case vm.OpAdd:
			adds++
		}
	}
	if adds < 50 {
		t.Errorf("heavily weighted ADD drawn only %d times", adds)
	}
}

func TestStackPressure(t *testing.T) {
	tests := []struct {
		name string
		ops  []byte
	}{
		{"pushes only", []byte{vm.OpLiteral, vm.OpGetCellLen}},
		{"pushes and jumps", []byte{vm.OpLiteral, vm.OpGetSelectPos, vm.OpJump, vm.OpIf, vm.OpForget}},
		{"asserts", []byte{vm.OpAssertEmptyStack, vm.OpLiteral, vm.OpForget, vm.OpIf, vm.OpEqBranch}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for seed := int64(0); seed < 10; seed++ {
				code := New(NewRandSource(seed), WithOpcodes(tt.ops)).Generate(2000)
				if err := Verify(code); err != nil {
					t.Fatalf("seed %d: %v", seed, err)
				}
				m := run(t, code, seed)
				if m.Stack.Len() > vm.StackSize {
					t.Fatalf("stack grew to %d", m.Stack.Len())
				}
			}
		})
	}
}

func TestStackFills(t *testing.T) {
	code := New(NewRandSource(3), WithOpcodes([]byte{vm.OpGetCellLen})).Generate(vm.StackSize + 20)
	m := run(t, code, 3)
	if m.Stack.Len() != vm.StackSize {
		t.Errorf("stack: got %d values, want %d", m.Stack.Len(), vm.StackSize)
	}
}

func TestVerify(t *testing.T) {
	overflow := make([]byte, vm.StackSize+1)
	for i := range overflow {
		overflow[i] = vm.OpGetCellLen
	}

	tests := []struct {
		name string
		code []byte
		ok   bool
	}{
		{"empty", nil, true},
		{"literal", []byte{vm.OpLiteral, 5}, true},
		{"truncated literal", []byte{vm.OpLiteral}, true},
		{"truncated jump", []byte{vm.OpJump}, true},
		{"truncated if pops", []byte{vm.OpIf}, false},
		{"underflow", []byte{vm.OpAdd}, false},
		{"unassigned", []byte{0x13}, false},
		{"assert non-empty", []byte{vm.OpLiteral, 1, vm.OpAssertEmptyStack}, false},
		{"assert empty", []byte{vm.OpLiteral, 1, vm.OpForget, vm.OpAssertEmptyStack}, true},
		{"into operand", []byte{vm.OpJump, 1, vm.OpLiteral, 5}, false},
		{"skipped underflow", []byte{vm.OpJump, 1, vm.OpAdd, vm.OpNoOp}, true},
		{"after halt", []byte{vm.OpHalt, vm.OpAdd}, true},
		{"branch merge", []byte{vm.OpLiteral, 5, vm.OpIf, 1, vm.OpForget, vm.OpNoOp}, false},
		{"both paths", []byte{vm.OpLiteral, 5, vm.OpLiteral, 6, vm.OpIf, 0, vm.OpForget}, true},
		{"overflow", overflow, false},
		{"full", overflow[:vm.StackSize], true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.code)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrUnsafe) {
				t.Errorf("expected ErrUnsafe, got %v", err)
			}
		})
	}
}

func TestByteSource(t *testing.T) {
	s := NewByteSource([]byte{7, 200, 1, 2})
	if got := s.Intn(5); got != 2 {
		t.Errorf("Intn(5): got %d", got)
	}
	if got := s.Intn(256); got != 200 {
		t.Errorf("Intn(256): got %d", got)
	}
	if got := s.Intn(1000); got != (1<<8|2)%1000 {
		t.Errorf("wide Intn: got %d", got)
	}
	if s.Intn(10) != 0 || s.Intn(300) != 0 {
		t.Error("exhausted source should return zero")
	}
}

func FuzzGenerate(f *testing.F) {
	f.Add([]byte{0})
	f.Add([]byte("card game"))
	f.Add([]byte{0xFF, 0x90, 0x97, 0x2A, 0x00, 0x10, 0x80})

	f.Fuzz(func(t *testing.T, data []byte) {
		n := 0
		if len(data) > 0 {
			n = int(data[0]) * 3
		}
		p := New(NewByteSource(data)).Program(n)
		if err := Verify(p.Code); err != nil {
			t.Fatalf("%v\n%s", err, vm.Disassemble(p.Code))
		}
		m := vm.New(game.Deal(int64(len(data))))
		if err := m.Interpret(p.Code); err != nil {
			t.Fatalf("%v\n%s", err, vm.Disassemble(p.Code))
		}
	})
}
