// compile_casm assembles .casm listings to raw bytecode files.
//
// Usage: go run tools/compile_casm/main.go [-o outdir] [-disasm] [-verify] testdata/programs/a.casm
//
// Each input file.casm is written to outdir/file.bin. Board constants
// (START_OF_TABLEAU, FLOWER_CARD, ...) are predefined.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/psilLang/cardvm/pkg/game"
	"github.com/psilLang/cardvm/pkg/gen"
	"github.com/psilLang/cardvm/pkg/vm"
)

func main() {
	outDir := flag.String("o", "build", "Output directory")
	disasm := flag.Bool("disasm", false, "Print disassembly")
	verify := flag.Bool("verify", false, "Fail unless the program is provably stack-safe from an empty stack")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: compile_casm [-o outdir] [-disasm] [-verify] <file.casm>...")
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, path := range flag.Args() {
		if err := compileFile(path, *outDir, *disasm, *verify); err != nil {
			fmt.Fprintf(os.Stderr, "Error compiling %s: %v\n", path, err)
			os.Exit(1)
		}
	}
}

func compileFile(path, outDir string, showDisasm, verify bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	baseName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	code, err := game.NewAssembler().Assemble(string(data))
	if err != nil {
		return fmt.Errorf("assembly: %w", err)
	}
	if err := gen.CheckSequence(code); err != nil {
		return err
	}
	if verify {
		if err := gen.Verify(code); err != nil {
			return err
		}
	}

	if showDisasm {
		fmt.Printf("=== %s (%d bytes) ===\n", baseName, len(code))
		fmt.Print(vm.Disassemble(code))
		fmt.Printf("Hex: ")
		for _, b := range code {
			fmt.Printf("%02X ", b)
		}
		fmt.Println()
	}

	outPath := filepath.Join(outDir, baseName+".bin")
	if err := os.WriteFile(outPath, code, 0644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	fmt.Printf("%s: %d bytes -> %s\n", baseName, len(code), outPath)
	return nil
}
