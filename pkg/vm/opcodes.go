// Package vm implements the card-game bytecode machine.
// One byte per opcode, one byte per stack slot, forward-only branches.
package vm

import "strings"

// Bytecode encoding:
//
// 0x00-0x0F: control and arithmetic
// 0x2A-0x2B: literal push / discard
// 0x40-0x4E: register get/set, bit-packed
//   bit 1: set (else get)
//   bit 2: grab (else select)
//   bit 3: depth (else position)
// 0x90-0x97: branches, 0x90 | flags, one operand byte
// 0xA1-0xA6: comparisons, 0xA0 | flags
// 0xE0-0xFF: card-game accessors and mutators

// === Control and arithmetic (0x00-0x0F) ===
const (
	OpNoOp          = 0x00 // --
	OpFillMoveTimer = 0x01 // -- (start move animation timer)
	OpGrab          = 0x02 // -- (enter drop mode)
	OpDrop          = 0x03 // -- (leave drop mode)
	OpAdd           = 0x04 // a b -- (a+b)
	OpSub           = 0x05 // a b -- (a-b)
	OpMul           = 0x06 // a b -- (a*b)
	OpDiv           = 0x07 // a b -- (a/b), 255 when b is 0
	OpAnd           = 0x08 // a b -- (a&b)
	OpMax           = 0x09 // a b -- max
	OpMin           = 0x0B // a b -- min
	OpOr            = 0x0E // a b -- (a|b)
	OpNot           = 0x0F // a -- (255 if a==0 else 0)
)

// === Literals (0x2A-0x2B) ===
const (
	OpLiteral = 0x2A // [n] -- n
	OpForget  = 0x2B // a --
)

// === Registers (0x40-0x4E) ===
const (
	OpGetSelectPos   = 0x40
	OpSetSelectPos   = 0x42
	OpGetGrabPos     = 0x44
	OpSetGrabPos     = 0x46
	OpGetSelectDepth = 0x48
	OpSetSelectDepth = 0x4A
	OpGetGrabDepth   = 0x4C
	OpSetGrabDepth   = 0x4E

	registerBase = 0x40
	setBit       = 0b0010
	grabBit      = 0b0100
	depthBit     = 0b1000
)

// Comparison flags shared by the branch and boolean families.
const (
	FlagEQ = 0b001
	FlagGT = 0b010
	FlagLT = 0b100
)

// === Branches (0x90-0x97) [offset] ===
const (
	branchBase = 0x90

	OpIf       = branchBase                            // a -- (branch if a != 0)
	OpEqBranch = branchBase | FlagEQ                   // a b --
	OpGtBranch = branchBase | FlagGT                   // a b --
	OpGeBranch = branchBase | FlagGT | FlagEQ          // a b --
	OpLtBranch = branchBase | FlagLT                   // a b --
	OpLeBranch = branchBase | FlagLT | FlagEQ          // a b --
	OpNeBranch = branchBase | FlagLT | FlagGT          // a b --
	OpJump     = branchBase | FlagLT | FlagGT | FlagEQ // --
)

// === Comparisons (0xA1-0xA6) ===
const (
	booleanBase = 0xA0

	OpEq = booleanBase | FlagEQ
	OpGt = booleanBase | FlagGT
	OpGe = booleanBase | FlagGT | FlagEQ
	OpLt = booleanBase | FlagLT
	OpLe = booleanBase | FlagLT | FlagEQ
	OpNe = booleanBase | FlagLT | FlagGT
)

// === Card game (0xE0-0xFF) ===
const (
	OpCanGrab              = 0xE0 // -- bool
	OpHandleButtonPress    = 0xE1 // -- (dragon auto-move)
	OpAssertEmptyStack     = 0xE8 // --
	OpHaltUnless           = 0xE9 // a -- (halt if a == 0)
	OpGetGrabCardOrHalt    = 0xF0 // -- card
	OpGetDropCardOrHalt    = 0xF1 // -- card
	OpGetGrabCardNumOr255  = 0xF2 // -- num
	OpGetDropCardNumOr255  = 0xF3 // -- num
	OpGetGrabCardSuitOr255 = 0xF6 // -- suit
	OpGetDropCardSuitOr255 = 0xF7 // -- suit
	OpGetCardNum           = 0xF8 // card -- num
	OpGetCardSuit          = 0xF9 // card -- suit
	OpGetGrabCardOr255     = 0xFA // -- card
	OpGetDropCardOr255     = 0xFB // -- card
	OpMoveCards            = 0xFC // grabpos grabdepth droppos --
	OpGetSelectDrop        = 0xFD // -- bool
	OpGetCellLen           = 0xFE // -- len
	OpHalt                 = 0xFF
)

// Info describes the static behaviour of an opcode.
type Info struct {
	Name    string
	Pops    int
	Pushes  int
	Operand bool // followed by one data byte
	Branch  bool
}

// Size returns the encoded length of the instruction.
func (i Info) Size() int {
	if i.Operand {
		return 2
	}
	return 1
}

var table = []struct {
	op   byte
	info Info
}{
	{OpNoOp, Info{Name: "NO_OP"}},
	{OpFillMoveTimer, Info{Name: "FILL_MOVE_TIMER"}},
	{OpGrab, Info{Name: "GRAB"}},
	{OpDrop, Info{Name: "DROP"}},
	{OpAdd, Info{Name: "ADD", Pops: 2, Pushes: 1}},
	{OpSub, Info{Name: "SUB", Pops: 2, Pushes: 1}},
	{OpMul, Info{Name: "MUL", Pops: 2, Pushes: 1}},
	{OpDiv, Info{Name: "DIV", Pops: 2, Pushes: 1}},
	{OpAnd, Info{Name: "AND", Pops: 2, Pushes: 1}},
	{OpMax, Info{Name: "MAX", Pops: 2, Pushes: 1}},
	{OpMin, Info{Name: "MIN", Pops: 2, Pushes: 1}},
	{OpOr, Info{Name: "OR", Pops: 2, Pushes: 1}},
	{OpNot, Info{Name: "NOT", Pops: 1, Pushes: 1}},

	{OpLiteral, Info{Name: "LITERAL", Pushes: 1, Operand: true}},
	{OpForget, Info{Name: "FORGET", Pops: 1}},

	{OpGetSelectPos, Info{Name: "GET_SELECT_POS", Pushes: 1}},
	{OpSetSelectPos, Info{Name: "SET_SELECT_POS", Pops: 1}},
	{OpGetGrabPos, Info{Name: "GET_GRAB_POS", Pushes: 1}},
	{OpSetGrabPos, Info{Name: "SET_GRAB_POS", Pops: 1}},
	{OpGetSelectDepth, Info{Name: "GET_SELECT_DEPTH", Pushes: 1}},
	{OpSetSelectDepth, Info{Name: "SET_SELECT_DEPTH", Pops: 1}},
	{OpGetGrabDepth, Info{Name: "GET_GRAB_DEPTH", Pushes: 1}},
	{OpSetGrabDepth, Info{Name: "SET_GRAB_DEPTH", Pops: 1}},

	{OpIf, Info{Name: "IF", Pops: 1, Operand: true, Branch: true}},
	{OpEqBranch, Info{Name: "EQ_BRANCH", Pops: 2, Operand: true, Branch: true}},
	{OpGtBranch, Info{Name: "GT_BRANCH", Pops: 2, Operand: true, Branch: true}},
	{OpGeBranch, Info{Name: "GE_BRANCH", Pops: 2, Operand: true, Branch: true}},
	{OpLtBranch, Info{Name: "LT_BRANCH", Pops: 2, Operand: true, Branch: true}},
	{OpLeBranch, Info{Name: "LE_BRANCH", Pops: 2, Operand: true, Branch: true}},
	{OpNeBranch, Info{Name: "NE_BRANCH", Pops: 2, Operand: true, Branch: true}},
	{OpJump, Info{Name: "JUMP", Operand: true, Branch: true}},

	{OpEq, Info{Name: "EQ", Pops: 2, Pushes: 1}},
	{OpGt, Info{Name: "GT", Pops: 2, Pushes: 1}},
	{OpGe, Info{Name: "GE", Pops: 2, Pushes: 1}},
	{OpLt, Info{Name: "LT", Pops: 2, Pushes: 1}},
	{OpLe, Info{Name: "LE", Pops: 2, Pushes: 1}},
	{OpNe, Info{Name: "NE", Pops: 2, Pushes: 1}},

	{OpCanGrab, Info{Name: "CAN_GRAB", Pushes: 1}},
	{OpHandleButtonPress, Info{Name: "HANDLE_BUTTON_PRESS"}},
	{OpAssertEmptyStack, Info{Name: "ASSERT_EMPTY_STACK"}},
	{OpHaltUnless, Info{Name: "HALT_UNLESS", Pops: 1}},
	{OpGetGrabCardOrHalt, Info{Name: "GET_GRAB_CARD_OR_HALT", Pushes: 1}},
	{OpGetDropCardOrHalt, Info{Name: "GET_DROP_CARD_OR_HALT", Pushes: 1}},
	{OpGetGrabCardNumOr255, Info{Name: "GET_GRAB_CARD_NUM_OR_255", Pushes: 1}},
	{OpGetDropCardNumOr255, Info{Name: "GET_DROP_CARD_NUM_OR_255", Pushes: 1}},
	{OpGetGrabCardSuitOr255, Info{Name: "GET_GRAB_CARD_SUIT_OR_255", Pushes: 1}},
	{OpGetDropCardSuitOr255, Info{Name: "GET_DROP_CARD_SUIT_OR_255", Pushes: 1}},
	{OpGetCardNum, Info{Name: "GET_CARD_NUM", Pops: 1, Pushes: 1}},
	{OpGetCardSuit, Info{Name: "GET_CARD_SUIT", Pops: 1, Pushes: 1}},
	{OpGetGrabCardOr255, Info{Name: "GET_GRAB_CARD_OR_255", Pushes: 1}},
	{OpGetDropCardOr255, Info{Name: "GET_DROP_CARD_OR_255", Pushes: 1}},
	{OpMoveCards, Info{Name: "MOVE_CARDS", Pops: 3}},
	{OpGetSelectDrop, Info{Name: "GET_SELECT_DROP", Pushes: 1}},
	{OpGetCellLen, Info{Name: "GET_CELL_LEN", Pushes: 1}},
	{OpHalt, Info{Name: "HALT"}},
}

var (
	infos    [256]Info
	assigned [256]bool
	byName   = make(map[string]byte, len(table))
)

func init() {
	for _, e := range table {
		infos[e.op] = e.info
		assigned[e.op] = true
		byName[e.info.Name] = e.op
	}
}

// Lookup returns the static description of op. The second result is false
// for unassigned bytes.
func Lookup(op byte) (Info, bool) {
	return infos[op], assigned[op]
}

// IsValid reports whether op is an assigned opcode.
func IsValid(op byte) bool {
	return assigned[op]
}

// OpName returns the mnemonic of an opcode for listings and traces.
func OpName(op byte) string {
	if !assigned[op] {
		return "unknown"
	}
	return infos[op].Name
}

// OpcodeByName resolves a mnemonic, ignoring case.
func OpcodeByName(name string) (byte, bool) {
	op, ok := byName[strings.ToUpper(name)]
	return op, ok
}

// Opcodes returns every assigned opcode in ascending order.
func Opcodes() []byte {
	ops := make([]byte, 0, len(table))
	for i := 0; i < 256; i++ {
		if assigned[i] {
			ops = append(ops, byte(i))
		}
	}
	return ops
}

// HasOperand returns true if op is followed by a data byte.
func HasOperand(op byte) bool {
	return assigned[op] && infos[op].Operand
}

// IsBranch returns true for IF, JUMP and the conditional branches.
func IsBranch(op byte) bool {
	return op&0xF8 == branchBase
}

// BranchFlags returns the comparison flags of a branch or comparison opcode.
func BranchFlags(op byte) byte {
	return op & (FlagEQ | FlagGT | FlagLT)
}

// IsRegisterOp returns true for the eight register get/set opcodes.
func IsRegisterOp(op byte) bool {
	return op&0xF1 == registerBase
}

// IsSetRegister returns true if a register opcode stores rather than loads.
func IsSetRegister(op byte) bool {
	return op&setBit != 0
}

// RegisterOf decodes the register addressed by a register opcode.
func RegisterOf(op byte) Register {
	r := SelectPos
	if op&depthBit != 0 {
		r = SelectDepth
	}
	if op&grabBit != 0 {
		r += GrabPos
	}
	return r
}

// Instructions splits code into instruction start offsets. A trailing
// operand-taking opcode with no data byte still counts as one instruction.
func Instructions(code []byte) []int {
	var starts []int
	for pc := 0; pc < len(code); {
		starts = append(starts, pc)
		pc += infos[code[pc]].Size()
	}
	return starts
}
