package game

import (
	"bytes"
	"testing"

	"github.com/psilLang/cardvm/pkg/vm"
)

// board returns an empty board with the cursor at pos/depth.
func board(pos, depth byte) *Game {
	s := NewState()
	s.SetRegister(vm.SelectPos, pos)
	s.SetRegister(vm.SelectDepth, depth)
	return &Game{State: s, VM: vm.New(s)}
}

func press(t *testing.T, g *Game, b Button) {
	t.Helper()
	if err := g.Press(b); err != nil {
		t.Fatalf("press %v: %v", b, err)
	}
	if !g.VM.Stack.IsEmpty() {
		t.Fatalf("press %v left %s on the stack", b, g.VM.Stack.String())
	}
}

func TestHorizontalMoves(t *testing.T) {
	tests := []struct {
		button Button
		from   byte
		want   byte
	}{
		{ButtonLeft, 0, 7},
		{ButtonLeft, 5, 4},
		{ButtonLeft, 8, 15},
		{ButtonLeft, 12, 11},
		{ButtonRight, 7, 0},
		{ButtonRight, 3, 4},
		{ButtonRight, 15, 8},
		{ButtonRight, 9, 10},
	}
	for _, tt := range tests {
		t.Run(tt.button.String(), func(t *testing.T) {
			g := board(tt.from, 0)
			press(t, g, tt.button)
			if got := g.Register(vm.SelectPos); got != tt.want {
				t.Errorf("from %d: got %d, want %d", tt.from, got, tt.want)
			}
		})
	}
}

func TestHorizontalMoveClampsDepth(t *testing.T) {
	g := board(9, 10)
	g.Cells[8] = []byte{1, 2, 3, 4, 5}
	press(t, g, ButtonLeft)
	if got := g.Register(vm.SelectDepth); got != 4 {
		t.Errorf("depth: got %d, want 4", got)
	}

	g = board(9, 3)
	g.Cells[8] = []byte{1, 2, 3, 4, 5}
	press(t, g, ButtonLeft)
	if got := g.Register(vm.SelectDepth); got != 3 {
		t.Errorf("depth: got %d, want 3", got)
	}

	g = board(9, 3)
	g.Cells[8] = []byte{1, 2, 3, 4, 5}
	g.SetGrabMode(true)
	press(t, g, ButtonLeft)
	if got := g.Register(vm.SelectDepth); got != 0 {
		t.Errorf("depth while dropping: got %d, want 0", got)
	}
}

func TestUp(t *testing.T) {
	t.Run("deepens selection", func(t *testing.T) {
		g := board(8, 0)
		g.Cells[8] = []byte{1, 2, 3}
		press(t, g, ButtonUp)
		if g.Register(vm.SelectPos) != 8 || g.Register(vm.SelectDepth) != 1 {
			t.Errorf("got pos %d depth %d", g.Register(vm.SelectPos), g.Register(vm.SelectDepth))
		}
	})
	t.Run("changes row at the bottom card", func(t *testing.T) {
		g := board(9, 2)
		g.Cells[9] = []byte{1, 2, 3}
		press(t, g, ButtonUp)
		if g.Register(vm.SelectPos) != 1 || g.Register(vm.SelectDepth) != 0 {
			t.Errorf("got pos %d depth %d", g.Register(vm.SelectPos), g.Register(vm.SelectDepth))
		}
	})
	t.Run("top row goes down", func(t *testing.T) {
		g := board(2, 0)
		press(t, g, ButtonUp)
		if g.Register(vm.SelectPos) != 10 {
			t.Errorf("got pos %d", g.Register(vm.SelectPos))
		}
	})
	t.Run("button column picks suit", func(t *testing.T) {
		g := board(ButtonColumn, 0)
		press(t, g, ButtonUp)
		press(t, g, ButtonUp)
		if g.Register(vm.SelectPos) != ButtonColumn || g.Register(vm.SelectDepth) != 2 {
			t.Errorf("got pos %d depth %d", g.Register(vm.SelectPos), g.Register(vm.SelectDepth))
		}
		press(t, g, ButtonUp)
		if g.Register(vm.SelectPos) != ButtonColumn+StartOfTableau {
			t.Errorf("third press should leave the column, got pos %d", g.Register(vm.SelectPos))
		}
	})
}

func TestDown(t *testing.T) {
	t.Run("shrinks selection", func(t *testing.T) {
		g := board(8, 2)
		press(t, g, ButtonDown)
		if g.Register(vm.SelectDepth) != 1 {
			t.Errorf("got depth %d", g.Register(vm.SelectDepth))
		}
	})
	t.Run("selects whole pile below", func(t *testing.T) {
		g := board(0, 0)
		g.Cells[8] = []byte{1, 2, 3, 4}
		press(t, g, ButtonDown)
		if g.Register(vm.SelectPos) != 8 || g.Register(vm.SelectDepth) != 3 {
			t.Errorf("got pos %d depth %d", g.Register(vm.SelectPos), g.Register(vm.SelectDepth))
		}
	})
	t.Run("button column", func(t *testing.T) {
		g := board(11, 0)
		press(t, g, ButtonDown)
		if g.Register(vm.SelectPos) != ButtonColumn || g.Register(vm.SelectDepth) != 2 {
			t.Errorf("got pos %d depth %d", g.Register(vm.SelectPos), g.Register(vm.SelectDepth))
		}
	})
	t.Run("empty pile", func(t *testing.T) {
		g := board(9, 0)
		press(t, g, ButtonDown)
		if g.Register(vm.SelectPos) != 1 || g.Register(vm.SelectDepth) != 0 {
			t.Errorf("got pos %d depth %d", g.Register(vm.SelectPos), g.Register(vm.SelectDepth))
		}
	})
}

func TestGrabAndDrop(t *testing.T) {
	g := board(8, 0)
	g.Cells[8] = []byte{3, 17}
	press(t, g, ButtonA)
	if !g.GrabMode() || g.Register(vm.GrabPos) != 8 || g.Register(vm.GrabDepth) != 0 {
		t.Fatalf("grab failed: mode %v pos %d depth %d", g.GrabMode(), g.Register(vm.GrabPos), g.Register(vm.GrabDepth))
	}

	g.SetRegister(vm.SelectPos, 0)
	press(t, g, ButtonA)
	if g.GrabMode() {
		t.Error("drop should leave grab mode")
	}
	if !bytes.Equal(g.Cells[0], []byte{17}) || !bytes.Equal(g.Cells[8], []byte{3}) {
		t.Errorf("got cell %v pile %v", g.Cells[0], g.Cells[8])
	}
	if g.MoveTimer != MoveTimerMax {
		t.Errorf("move timer: got %d", g.MoveTimer)
	}
}

func TestGrabRefused(t *testing.T) {
	g := board(8, 1)
	g.Cells[8] = []byte{3, 4}
	press(t, g, ButtonA)
	if g.GrabMode() {
		t.Error("same-suit run should not be grabbed")
	}
}

func TestDropRules(t *testing.T) {
	tests := []struct {
		name      string
		grab      []byte
		grabDepth byte
		dropPos   byte
		drop      []byte
		moved     bool
	}{
		{"tableau alternating", []byte{14}, 0, 9, []byte{5}, true},
		{"tableau same suit", []byte{4}, 0, 9, []byte{5}, false},
		{"tableau wrong rank", []byte{13}, 0, 9, []byte{5}, false},
		{"tableau dragon", []byte{10}, 0, 9, []byte{1}, false},
		{"tableau empty", []byte{10}, 0, 9, nil, true},
		{"run onto tableau", []byte{8, 17}, 1, 9, []byte{29}, true},
		{"foundation ace", []byte{21}, 0, 6, nil, true},
		{"foundation two", []byte{22}, 0, 6, []byte{21}, true},
		{"foundation wrong suit", []byte{12}, 0, 6, []byte{21}, false},
		{"foundation run", []byte{8, 17}, 1, 6, nil, false},
		{"flower foundation", []byte{1}, 0, FlowerFoundation, nil, false},
		{"button column", []byte{1}, 0, ButtonColumn, nil, false},
		{"free cell", []byte{7}, 0, 2, nil, true},
		{"occupied free cell", []byte{7}, 0, 2, []byte{6}, false},
		{"free cell run", []byte{8, 17}, 1, 2, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := board(tt.dropPos, 0)
			g.Cells[12] = append([]byte(nil), tt.grab...)
			g.Cells[tt.dropPos] = append([]byte(nil), tt.drop...)
			g.SetRegister(vm.GrabPos, 12)
			g.SetRegister(vm.GrabDepth, tt.grabDepth)
			g.SetGrabMode(true)

			press(t, g, ButtonA)
			moved := len(g.Cells[12]) < len(tt.grab)
			if moved != tt.moved {
				t.Fatalf("moved = %v, want %v (pile %v, target %v)", moved, tt.moved, g.Cells[12], g.Cells[tt.dropPos])
			}
			if moved == g.GrabMode() {
				t.Errorf("grab mode %v after move=%v", g.GrabMode(), moved)
			}
		})
	}
}

func TestDragonButton(t *testing.T) {
	s := dragonBoard()
	s.SetRegister(vm.SelectPos, ButtonColumn)
	s.SetRegister(vm.SelectDepth, 1)
	s.SetGrabMode(true)
	g := &Game{State: s, VM: vm.New(s)}

	press(t, g, ButtonA)
	if !bytes.Equal(g.Cells[0], []byte{CardBack}) {
		t.Errorf("cell 0: got %v", g.Cells[0])
	}
	if g.GrabMode() || g.MoveTimer != MoveTimerMax {
		t.Errorf("follow-up not run: mode %v timer %d", g.GrabMode(), g.MoveTimer)
	}
}

func TestButtonB(t *testing.T) {
	g := board(8, 0)
	g.SetGrabMode(true)
	press(t, g, ButtonB)
	if g.GrabMode() {
		t.Error("B should cancel the grab")
	}
}

func TestRandomPressesNeverFail(t *testing.T) {
	rng := testRng()
	buttons := Buttons()
	for seed := int64(0); seed < 20; seed++ {
		g := NewGame(seed)
		for i := 0; i < 300; i++ {
			b := buttons[rng.Intn(len(buttons))]
			if err := g.Press(b); err != nil {
				t.Fatalf("seed %d press %d (%v): %v", seed, i, b, err)
			}
			if g.VM.Steps > len(Program(b)) {
				t.Fatalf("%v ran %d steps", b, g.VM.Steps)
			}
		}
	}
}

func TestProgramA(t *testing.T) {
	if len(ProgramA) == 0 {
		t.Fatal("ProgramA is empty")
	}
	back, err := NewAssembler().Assemble(vm.Disassemble(ProgramA))
	if err != nil {
		t.Fatalf("reassemble: %v", err)
	}
	if !bytes.Equal(back, ProgramA) {
		t.Error("disassembly does not round-trip")
	}

	src, err := NewAssembler().Assemble(SourceA())
	if err != nil {
		t.Fatalf("assemble source: %v", err)
	}
	if !bytes.Equal(src, ProgramA) {
		t.Error("SourceA does not assemble to ProgramA")
	}
}

func TestParseButton(t *testing.T) {
	for _, b := range Buttons() {
		got, err := ParseButton(b.String())
		if err != nil || got != b {
			t.Errorf("%v: got %v %v", b, got, err)
		}
	}
	if _, err := ParseButton("start"); err == nil {
		t.Error("expected error for unknown button")
	}
	if Program(Button(42)) != nil {
		t.Error("unknown button has no program")
	}
}
