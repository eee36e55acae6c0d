// cardvm runs card VM programs against a dealt board. A .cbor argument is a
// corpus fixture exported by cardfuzz and runs against its own deal.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/psilLang/cardvm/pkg/corpus"
	"github.com/psilLang/cardvm/pkg/game"
	"github.com/psilLang/cardvm/pkg/vm"
)

func main() {
	debug := flag.Bool("debug", false, "Enable debug output")
	disasm := flag.Bool("disasm", false, "Disassemble instead of run")
	seed := flag.Int64("seed", 1, "Seed for dealing the board")
	press := flag.String("press", "", "Comma-separated buttons to press before running (e.g. down,a)")
	flag.Parse()

	g := game.NewGame(*seed)
	g.VM.Debug = *debug
	if *press != "" {
		for _, name := range strings.Split(*press, ",") {
			if err := pressButton(g, strings.TrimSpace(name)); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
	}

	args := flag.Args()
	if len(args) == 0 {
		repl(g)
		return
	}

	var code []byte
	if filepath.Ext(args[0]) == ".cbor" {
		// A corpus fixture replays against the board it was generated for.
		e, err := corpus.ReadFixture(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		code = e.Code
		g = game.NewGame(e.Seed)
		g.VM.Debug = *debug
		fmt.Printf("Entry %s: seed %d, recorded %s after %d steps\n", e.ID, e.Seed, e.Outcome, e.Steps)
	} else {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		code = data
		if !isBytecode(data) {
			code, err = game.NewAssembler().Assemble(string(data))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Assembly error: %v\n", err)
				os.Exit(1)
			}
		}
	}

	if *disasm {
		fmt.Print(vm.Disassemble(code))
		return
	}

	if err := g.VM.Interpret(code); err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Stack:", g.VM.StackDump())
	fmt.Printf("Steps: %d\n", g.VM.Steps)
	fmt.Print(g.State.String())
}

func isBytecode(data []byte) bool {
	// Heuristic: if starts with printable text, it's assembly
	if len(data) == 0 {
		return false
	}
	for i := 0; i < len(data) && i < 10; i++ {
		c := data[i]
		if c == '\n' || c == '\r' || c == '\t' || c == ' ' {
			continue
		}
		if c >= 0x20 && c <= 0x7E {
			continue
		}
		return true
	}
	return false
}

func pressButton(g *game.Game, name string) error {
	b, err := game.ParseButton(name)
	if err != nil {
		return err
	}
	if err := g.Press(b); err != nil {
		return err
	}
	g.State.Tick()
	return nil
}

func repl(g *game.Game) {
	fmt.Println("card VM")
	fmt.Println("Type 'help' for commands, 'quit' to exit")
	fmt.Println()
	fmt.Print(g.State.String())

	asm := game.NewAssembler()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("card> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "quit", "exit":
			return
		case "help":
			printHelp()
		case "stack":
			fmt.Println(g.VM.StackDump())
		case "board":
			fmt.Print(g.State.String())
		case "clear":
			g.VM.Reset()
			fmt.Println("Cleared")
		case "debug":
			g.VM.Debug = !g.VM.Debug
			fmt.Printf("Debug: %v\n", g.VM.Debug)
		case "deal":
			seed := int64(1)
			if len(fields) > 1 {
				n, err := strconv.ParseInt(fields[1], 10, 64)
				if err != nil {
					fmt.Printf("Error: %v\n", err)
					continue
				}
				seed = n
			}
			debug := g.VM.Debug
			g = game.NewGame(seed)
			g.VM.Debug = debug
			fmt.Print(g.State.String())
		case "press":
			if len(fields) < 2 {
				fmt.Println("Usage: press <left|right|up|down|a|b>")
				continue
			}
			if err := pressButton(g, fields[1]); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			fmt.Print(g.State.String())
		case "show":
			if len(fields) < 2 {
				fmt.Println("Usage: show <button>")
				continue
			}
			b, err := game.ParseButton(fields[1])
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			if b == game.ButtonA {
				fmt.Print(game.SourceA())
				continue
			}
			fmt.Print(vm.Disassemble(game.Program(b)))
		default:
			// Commas separate instructions on one line.
			code, err := asm.Assemble(strings.ReplaceAll(line, ",", "\n"))
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}

			if g.VM.Debug {
				fmt.Print(vm.Disassemble(code))
			}

			if err := g.VM.Interpret(code); err != nil {
				fmt.Printf("Error: %v\n", err)
			}

			fmt.Println("->", g.VM.StackDump())
		}
	}
}

func printHelp() {
	fmt.Print(`Commands:
  quit          - Exit REPL
  stack         - Show stack
  board         - Show the board
  clear         - Clear stack and reset
  debug         - Toggle debug mode
  deal N        - Deal a new board from seed N
  press BUTTON  - Run a button program (left right up down a b)
  show BUTTON   - Disassemble a button program (a prints its source)
  help          - Show this help

Anything else is assembled and run on the current stack. Separate
instructions with commas:
  LITERAL 3, LITERAL 4, ADD
  GET_SELECT_POS, GET_CELL_LEN
  LITERAL START_OF_TABLEAU, SET_SELECT_POS

Board constants (NUM_PILES, START_OF_TABLEAU, FLOWER_CARD, TRUE, ...) may
be used as operands.
`)
}
