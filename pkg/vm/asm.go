package vm

import (
	"fmt"
	"strings"

	"github.com/psilLang/cardvm/pkg/parser"
)

// Assembler converts listing text to bytecode
type Assembler struct {
	code    []byte
	defined map[string]int // survives across Assemble calls
	consts  map[string]int
	labels  map[string]int
	fixups  []fixup
}

type fixup struct {
	pos   int // operand byte
	label string
	line  int
}

// NewAssembler creates a new assembler
func NewAssembler() *Assembler {
	return &Assembler{
		code:    make([]byte, 0, 256),
		defined: make(map[string]int),
	}
}

// Define registers a named constant usable by every later listing.
func (a *Assembler) Define(name string, v int) {
	a.defined[name] = v
}

// Assemble converts a listing to bytecode. Branch operands may name a
// label further down; the stored offset makes the branch land on it.
func (a *Assembler) Assemble(source string) ([]byte, error) {
	listing, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}

	a.code = a.code[:0]
	a.consts = make(map[string]int)
	a.labels = make(map[string]int)
	a.fixups = nil

	for _, line := range listing.Lines {
		switch {
		case line.Const != nil:
			c := line.Const
			v, err := a.resolve(c.Value)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", c.Pos.Line, err)
			}
			a.consts[c.Name] = v

		case line.Label != nil:
			name, ok := line.LabelName()
			if !ok {
				continue
			}
			if _, dup := a.labels[name]; dup {
				return nil, fmt.Errorf("duplicate label: %s", name)
			}
			a.labels[name] = len(a.code)

		case line.Instr != nil:
			if err := a.assembleInstr(line.Instr); err != nil {
				return nil, fmt.Errorf("line %d: %w", line.Instr.Pos.Line, err)
			}
		}
	}

	// Apply fixups
	for _, f := range a.fixups {
		addr, ok := a.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("line %d: undefined label: %s", f.line, f.label)
		}
		offset := addr - f.pos - 1
		switch {
		case offset < 0:
			return nil, fmt.Errorf("line %d: backward branch to %s", f.line, f.label)
		case offset > 255:
			return nil, fmt.Errorf("line %d: branch to %s is %d bytes away", f.line, f.label, offset)
		}
		a.code[f.pos] = byte(offset)
	}

	out := make([]byte, len(a.code))
	copy(out, a.code)
	return out, nil
}

func (a *Assembler) assembleInstr(in *parser.Instruction) error {
	op, ok := OpcodeByName(in.Mnemonic)
	if !ok {
		return fmt.Errorf("unknown mnemonic: %s", in.Mnemonic)
	}
	info := infos[op]

	if !info.Operand {
		if in.Operand != nil {
			return fmt.Errorf("%s takes no operand", info.Name)
		}
		a.code = append(a.code, op)
		return nil
	}
	if in.Operand == nil {
		return fmt.Errorf("%s requires an operand", info.Name)
	}

	// Branch to label
	if info.Branch && in.Operand.Name != nil {
		if _, isConst := a.lookupConst(*in.Operand.Name); !isConst {
			a.code = append(a.code, op, 0)
			a.fixups = append(a.fixups, fixup{len(a.code) - 1, *in.Operand.Name, in.Pos.Line})
			return nil
		}
	}

	v, err := a.resolve(in.Operand)
	if err != nil {
		return err
	}
	if info.Branch && (v < 0 || v > 255) {
		return fmt.Errorf("branch offset out of range: %d", v)
	}
	if v < -128 || v > 255 {
		return fmt.Errorf("literal out of range: %d", v)
	}
	a.code = append(a.code, op, byte(v))
	return nil
}

func (a *Assembler) resolve(o *parser.Operand) (int, error) {
	if o.Number != nil {
		v, err := o.Value()
		if err != nil {
			return 0, fmt.Errorf("invalid number: %s", *o.Number)
		}
		return v, nil
	}
	if v, ok := a.lookupConst(*o.Name); ok {
		return v, nil
	}
	return 0, fmt.Errorf("undefined constant: %s", *o.Name)
}

func (a *Assembler) lookupConst(name string) (int, bool) {
	if v, ok := a.consts[name]; ok {
		return v, true
	}
	v, ok := a.defined[name]
	return v, ok
}

// Assemble converts a listing with no predefined constants.
func Assemble(source string) ([]byte, error) {
	return NewAssembler().Assemble(source)
}

// MustAssemble is like Assemble but panics on error. For fixed programs.
func MustAssemble(source string) []byte {
	code, err := Assemble(source)
	if err != nil {
		panic(err)
	}
	return code
}

// Disassemble converts bytecode back to text, one instruction per line.
// The output assembles back to the same bytes for well-formed programs.
func Disassemble(code []byte) string {
	var sb strings.Builder
	pc := 0

	for pc < len(code) {
		op := code[pc]
		sb.WriteString(fmt.Sprintf("%04X: ", pc))

		info, ok := Lookup(op)
		switch {
		case !ok:
			sb.WriteString(fmt.Sprintf("?%02X", op))
			pc++

		case !info.Operand:
			sb.WriteString(info.Name)
			pc++

		case pc+1 >= len(code):
			sb.WriteString(info.Name + " ; truncated")
			pc++

		case info.Branch:
			arg := code[pc+1]
			sb.WriteString(fmt.Sprintf("%s %d ; -> %04X", info.Name, arg, pc+2+int(arg)))
			pc += 2

		default:
			sb.WriteString(fmt.Sprintf("%s %d", info.Name, code[pc+1]))
			pc += 2
		}

		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatBytes renders code as a bracketed list of mnemonics and operand
// values, the form used when pasting generated programs into tests.
func FormatBytes(code []byte) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, pc := range Instructions(code) {
		if i > 0 {
			sb.WriteString(", ")
		}
		op := code[pc]
		if !IsValid(op) {
			sb.WriteString(fmt.Sprintf("0x%02X", op))
			continue
		}
		sb.WriteString(OpName(op))
		if HasOperand(op) && pc+1 < len(code) {
			sb.WriteString(fmt.Sprintf(", %d", code[pc+1]))
		}
	}
	sb.WriteString("]")
	return sb.String()
}
