// cardgen prints random card VM programs that can never underflow or
// overflow the stack.
//
// Usage: cardgen [-seed N] [-n LEN] [-count K] [-require file.casm] [-format asm|bytes|hex]
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/psilLang/cardvm/pkg/game"
	"github.com/psilLang/cardvm/pkg/gen"
	"github.com/psilLang/cardvm/pkg/vm"
)

const (
	colorBranch = "\x1b[36m"
	colorReset  = "\x1b[0m"
)

func main() {
	seed := flag.Int64("seed", 1, "Random seed")
	n := flag.Int("n", 32, "Program length in bytes")
	count := flag.Int("count", 1, "Number of programs to print")
	require := flag.String("require", "", "Assembly file (or inline listing) to splice into every program")
	format := flag.String("format", "asm", "Output format: asm, bytes or hex")
	run := flag.Bool("run", false, "Run each program against a board dealt from its seed")
	flag.Parse()

	required, err := loadRequired(*require)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	color := useColor()
	for i := 0; i < *count; i++ {
		s := *seed + int64(i)
		g := gen.New(gen.NewRandSource(s))

		var p *gen.Program
		if required != nil {
			p, err = g.Targeted(*n, required)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		} else {
			p = g.Program(*n)
		}

		header := fmt.Sprintf("; seed %d, %d bytes, %d branches", s, len(p.Code), len(p.Branches))
		if required != nil {
			header += fmt.Sprintf(", sequence at %d", p.Inserted)
		}
		fmt.Println(header)

		switch *format {
		case "asm":
			printListing(p.Code, color)
		case "bytes":
			fmt.Println(vm.FormatBytes(p.Code))
		case "hex":
			fmt.Println(hexBytes(p.Code))
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", *format)
			os.Exit(1)
		}

		if *run {
			m := vm.New(game.Deal(s))
			if err := m.Interpret(p.Code); err != nil {
				fmt.Printf("; error: %v\n", err)
			} else {
				fmt.Printf("; ran %d steps, stack %s\n", m.Steps, m.StackDump())
			}
		}
		if i < *count-1 {
			fmt.Println()
		}
	}
}

// loadRequired reads arg as a file if one exists, otherwise as a listing
// with ',' separating instructions.
func loadRequired(arg string) ([]byte, error) {
	if arg == "" {
		return nil, nil
	}
	source := strings.ReplaceAll(arg, ",", "\n")
	if data, err := os.ReadFile(arg); err == nil {
		source = string(data)
	}
	code, err := game.NewAssembler().Assemble(source)
	if err != nil {
		return nil, fmt.Errorf("required sequence: %w", err)
	}
	return code, nil
}

func useColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func printListing(code []byte, color bool) {
	lines := strings.Split(strings.TrimSuffix(vm.Disassemble(code), "\n"), "\n")
	pcs := vm.Instructions(code)
	for i, line := range lines {
		if color && i < len(pcs) && vm.IsBranch(code[pcs[i]]) {
			line = colorBranch + line + colorReset
		}
		fmt.Println(line)
	}
}

func hexBytes(code []byte) string {
	var sb strings.Builder
	for i, b := range code {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
