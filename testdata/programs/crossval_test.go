package programs_test

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/psilLang/cardvm/pkg/game"
	"github.com/psilLang/cardvm/pkg/gen"
	"github.com/psilLang/cardvm/pkg/vm"
)

func TestListingsMatchBuiltins(t *testing.T) {
	for _, b := range game.Buttons() {
		t.Run(b.String(), func(t *testing.T) {
			data, err := os.ReadFile(b.String() + ".casm")
			if err != nil {
				t.Fatal(err)
			}
			code, err := game.NewAssembler().Assemble(string(data))
			if err != nil {
				t.Fatalf("assemble: %v", err)
			}
			if want := game.Program(b); !bytes.Equal(code, want) {
				t.Errorf("listing assembles to\n%s\nwant\n%s", vm.Disassemble(code), vm.Disassemble(want))
			}
			if err := gen.CheckSequence(code); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestDisassemblyRoundTrip(t *testing.T) {
	for _, b := range game.Buttons() {
		code := game.Program(b)
		again, err := game.NewAssembler().Assemble(vm.Disassemble(code))
		if err != nil {
			t.Fatalf("%s: %v", b, err)
		}
		if !bytes.Equal(again, code) {
			t.Errorf("%s: round trip changed the program", b)
		}
	}
}

// Walking left eight times from any pile visits every pile of its row
// and comes back.
func TestLeftCycle(t *testing.T) {
	for start := byte(0); start < game.NumPiles; start++ {
		g := game.NewGame(3)
		g.VM.Output = io.Discard
		g.SetRegister(vm.SelectPos, start)

		seen := make(map[byte]bool)
		for i := 0; i < 8; i++ {
			if err := g.Press(game.ButtonLeft); err != nil {
				t.Fatalf("start %d: %v", start, err)
			}
			seen[g.Register(vm.SelectPos)] = true
		}
		if g.Register(vm.SelectPos) != start || len(seen) != 8 {
			t.Errorf("start %d: ended at %d after visiting %d piles", start, g.Register(vm.SelectPos), len(seen))
		}
	}
}

func TestGeneratedRoundTrip(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		code := gen.New(gen.NewRandSource(seed)).Generate(96)
		again, err := game.NewAssembler().Assemble(vm.Disassemble(code))
		if err != nil {
			t.Fatalf("seed %d: %v\n%s", seed, err, vm.Disassemble(code))
		}
		if !bytes.Equal(again, code) {
			t.Fatalf("seed %d: round trip changed the program", seed)
		}
	}
}
