package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Register names one of the four cursor registers owned by the game state.
type Register uint8

const (
	SelectPos Register = iota
	GrabPos
	SelectDepth
	GrabDepth
)

func (r Register) String() string {
	switch r {
	case SelectPos:
		return "select_pos"
	case GrabPos:
		return "grab_pos"
	case SelectDepth:
		return "select_depth"
	case GrabDepth:
		return "grab_depth"
	}
	return fmt.Sprintf("register(%d)", uint8(r))
}

// PositionMask keeps pile positions inside the 16-pile board.
const PositionMask = 15

// True and False are the byte encodings of boolean results.
const (
	True  = 255
	False = 0
)

var (
	ErrUnimplemented    = errors.New("unimplemented opcode")
	ErrAssertEmptyStack = errors.New("stack not empty")
	ErrNoState          = errors.New("no game state attached")
	ErrReentrant        = errors.New("helper program is not reentrant")
)

// GameState is the board the VM reads and mutates. Implementations own
// all rule logic and must accept any byte for depths; positions arrive
// already masked with PositionMask.
type GameState interface {
	Register(r Register) byte
	SetRegister(r Register, v byte)

	// GrabMode reports whether cards are currently held (drop mode).
	GrabMode() bool
	SetGrabMode(on bool)
	FillMoveTimer()

	PileLen(pos byte) byte
	// CardAt returns the card depth places below the top of pile pos.
	CardAt(pos, depth byte) (card byte, ok bool)
	CardSuit(card byte) byte
	CardNum(card byte) byte

	CanGrab(pos, depth byte) bool
	MoveCards(grabPos, grabDepth, dropPos byte)

	// HandleButtonPress performs the dragon move for the selected suit and
	// reports whether anything moved.
	HandleButtonPress() bool
}

// dragonFollowUp runs after a successful button press.
var dragonFollowUp = []byte{OpDrop, OpFillMoveTimer}

// VM is the card-game virtual machine.
type VM struct {
	Stack Stack

	// Program
	Code []byte
	PC   int

	State GameState

	// Steps counts executed instructions since Load.
	Steps  int
	Halted bool

	// RecordVisits collects the position of every fetched opcode.
	RecordVisits bool
	Visited      []int

	Output io.Writer
	Debug  bool

	inHelper bool
}

// New creates a VM bound to a game state.
func New(state GameState) *VM {
	return &VM{
		State:  state,
		Output: os.Stdout,
	}
}

// Reset clears the stack and execution state. The game state is untouched.
func (vm *VM) Reset() {
	vm.Stack.Clear()
	vm.PC = 0
	vm.Steps = 0
	vm.Halted = false
	vm.Visited = vm.Visited[:0]
	vm.inHelper = false
}

// Load installs a program. The stack is kept.
func (vm *VM) Load(code []byte) {
	vm.Code = code
	vm.PC = 0
	vm.Steps = 0
	vm.Halted = false
	vm.Visited = vm.Visited[:0]
}

// Interpret loads code and runs it to completion.
func (vm *VM) Interpret(code []byte) error {
	vm.Load(code)
	return vm.Run()
}

// Run executes until halted or error.
func (vm *VM) Run() error {
	for !vm.Halted {
		if err := vm.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes one instruction.
func (vm *VM) Step() error {
	if vm.Halted {
		return nil
	}
	if vm.PC >= len(vm.Code) {
		vm.Halted = true
		return nil
	}

	pc := vm.PC
	op := vm.Code[pc]
	if vm.RecordVisits {
		vm.Visited = append(vm.Visited, pc)
	}
	if vm.Debug {
		fmt.Fprintf(vm.Output, "%20d %s : %s\n", pc, vm.Stack.String(), OpName(op))
	}

	if err := vm.exec(op); err != nil {
		vm.Halted = true
		return fmt.Errorf("%s at %d: %w", OpName(op), pc, err)
	}

	vm.PC++
	vm.Steps++
	if vm.PC >= len(vm.Code) {
		vm.Halted = true
	}
	return nil
}

// halt parks PC on the last byte so the fetch loop ends after this step.
func (vm *VM) halt() {
	vm.PC = len(vm.Code) - 1
}

func (vm *VM) exec(op byte) error {
	if vm.State == nil && assigned[op] && needsState(op) {
		return ErrNoState
	}

	switch {
	case IsRegisterOp(op):
		return vm.execRegister(op)
	case IsBranch(op):
		return vm.execBranch(op)
	case op&0xF8 == booleanBase && assigned[op]:
		a, b, err := vm.pop2()
		if err != nil {
			return err
		}
		return vm.push(boolByte(compare(BranchFlags(op), a, b)))
	}

	switch op {
	case OpNoOp:
		// nothing

	case OpFillMoveTimer:
		vm.State.FillMoveTimer()

	case OpGrab:
		vm.State.SetGrabMode(true)

	case OpDrop:
		vm.State.SetGrabMode(false)

	case OpAdd, OpSub, OpMul, OpDiv, OpAnd, OpMax, OpMin, OpOr:
		a, b, err := vm.pop2()
		if err != nil {
			return err
		}
		return vm.push(arith(op, a, b))

	case OpNot:
		a, err := vm.Stack.Pop()
		if err != nil {
			return err
		}
		return vm.push(boolByte(a == 0))

	case OpLiteral:
		vm.PC++
		if vm.PC < len(vm.Code) {
			return vm.push(vm.Code[vm.PC])
		}

	case OpForget:
		_, err := vm.Stack.Pop()
		return err

	case OpCanGrab:
		pos := vm.State.Register(SelectPos) & PositionMask
		return vm.push(boolByte(vm.State.CanGrab(pos, vm.State.Register(SelectDepth))))

	case OpHandleButtonPress:
		if vm.State.HandleButtonPress() {
			return vm.runHelper(dragonFollowUp)
		}

	case OpAssertEmptyStack:
		if !vm.Stack.IsEmpty() {
			return fmt.Errorf("%w: %s", ErrAssertEmptyStack, vm.Stack.String())
		}

	case OpHaltUnless:
		a, err := vm.Stack.Pop()
		if err != nil {
			return err
		}
		if a == 0 {
			vm.halt()
		}

	case OpGetGrabCardOrHalt, OpGetDropCardOrHalt:
		card, ok := vm.cursorCard(op == OpGetGrabCardOrHalt)
		if !ok {
			vm.halt()
			return nil
		}
		return vm.push(card)

	case OpGetGrabCardOr255, OpGetDropCardOr255:
		card, ok := vm.cursorCard(op == OpGetGrabCardOr255)
		if !ok {
			card = 255
		}
		return vm.push(card)

	case OpGetGrabCardNumOr255, OpGetDropCardNumOr255:
		card, ok := vm.cursorCard(op == OpGetGrabCardNumOr255)
		if !ok {
			return vm.push(255)
		}
		return vm.push(vm.State.CardNum(card))

	case OpGetGrabCardSuitOr255, OpGetDropCardSuitOr255:
		card, ok := vm.cursorCard(op == OpGetGrabCardSuitOr255)
		if !ok {
			return vm.push(255)
		}
		return vm.push(vm.State.CardSuit(card))

	case OpGetCardNum:
		card, err := vm.Stack.Pop()
		if err != nil {
			return err
		}
		return vm.push(vm.State.CardNum(card))

	case OpGetCardSuit:
		card, err := vm.Stack.Pop()
		if err != nil {
			return err
		}
		return vm.push(vm.State.CardSuit(card))

	case OpMoveCards:
		dropPos, err := vm.Stack.Pop()
		if err != nil {
			return err
		}
		grabPos, grabDepth, err := vm.pop2()
		if err != nil {
			return err
		}
		vm.State.MoveCards(grabPos&PositionMask, grabDepth, dropPos&PositionMask)

	case OpGetSelectDrop:
		return vm.push(boolByte(vm.State.GrabMode()))

	case OpGetCellLen:
		return vm.push(vm.State.PileLen(vm.State.Register(SelectPos) & PositionMask))

	case OpHalt:
		vm.halt()

	default:
		return fmt.Errorf("%w 0x%02X", ErrUnimplemented, op)
	}

	return nil
}

func (vm *VM) execRegister(op byte) error {
	r := RegisterOf(op)
	if !IsSetRegister(op) {
		return vm.push(vm.State.Register(r))
	}
	v, err := vm.Stack.Pop()
	if err != nil {
		return err
	}
	// Depths are stored as given; only positions index the board.
	if r == SelectPos || r == GrabPos {
		v &= PositionMask
	}
	vm.State.SetRegister(r, v)
	return nil
}

// execBranch pops the condition, then steps onto the operand byte and
// skips forward by its value when the branch is taken.
func (vm *VM) execBranch(op byte) error {
	var taken bool
	switch flags := BranchFlags(op); flags {
	case 0:
		a, err := vm.Stack.Pop()
		if err != nil {
			return err
		}
		taken = a != 0
	case FlagEQ | FlagGT | FlagLT:
		taken = true
	default:
		a, b, err := vm.pop2()
		if err != nil {
			return err
		}
		taken = compare(flags, a, b)
	}

	vm.PC++
	if vm.PC < len(vm.Code) && taken {
		vm.PC += int(vm.Code[vm.PC])
	}
	return nil
}

// runHelper executes a fixed straight-line program of stack-neutral
// opcodes in place, without touching PC.
func (vm *VM) runHelper(code []byte) error {
	if vm.inHelper {
		return ErrReentrant
	}
	vm.inHelper = true
	defer func() { vm.inHelper = false }()

	for _, op := range code {
		info, ok := Lookup(op)
		if !ok || info.Operand || info.Pops > 0 || info.Pushes > 0 || op == OpHalt {
			return fmt.Errorf("%s not allowed in helper program", OpName(op))
		}
		if err := vm.exec(op); err != nil {
			return err
		}
	}
	return nil
}

// cursorCard reads the card under the grab cursor, or the top card of the
// selected pile.
func (vm *VM) cursorCard(grab bool) (byte, bool) {
	if grab {
		pos := vm.State.Register(GrabPos) & PositionMask
		return vm.State.CardAt(pos, vm.State.Register(GrabDepth))
	}
	pos := vm.State.Register(SelectPos) & PositionMask
	return vm.State.CardAt(pos, 0)
}

func (vm *VM) push(v byte) error {
	return vm.Stack.Push(v)
}

// pop2 pops b then a, returning them in push order.
func (vm *VM) pop2() (a, b byte, err error) {
	if b, err = vm.Stack.Pop(); err != nil {
		return 0, 0, err
	}
	if a, err = vm.Stack.Pop(); err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// StackDump returns a string representation of the stack
func (vm *VM) StackDump() string {
	return vm.Stack.String()
}

func arith(op, a, b byte) byte {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		if b == 0 {
			return 255
		}
		return a / b
	case OpAnd:
		return a & b
	case OpOr:
		return a | b
	case OpMax:
		return max(a, b)
	case OpMin:
		return min(a, b)
	}
	return 0
}

func compare(flags, a, b byte) bool {
	return flags&FlagEQ != 0 && a == b ||
		flags&FlagGT != 0 && a > b ||
		flags&FlagLT != 0 && a < b
}

func boolByte(v bool) byte {
	if v {
		return True
	}
	return False
}

func needsState(op byte) bool {
	switch {
	case IsRegisterOp(op):
		return true
	case op == OpFillMoveTimer || op == OpGrab || op == OpDrop:
		return true
	case op >= OpCanGrab:
		return op != OpHalt && op != OpAssertEmptyStack && op != OpHaltUnless
	}
	return false
}
