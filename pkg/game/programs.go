package game

import (
	"fmt"
	"strings"

	"github.com/psilLang/cardvm/pkg/vm"
)

// Button is a controller input that runs a board program.
type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonUp
	ButtonDown
	ButtonA
	ButtonB
)

var buttonNames = [...]string{"left", "right", "up", "down", "a", "b"}

func (b Button) String() string {
	if b < 0 || int(b) >= len(buttonNames) {
		return fmt.Sprintf("button(%d)", int(b))
	}
	return buttonNames[b]
}

// Buttons lists every button in declaration order.
func Buttons() []Button {
	return []Button{ButtonLeft, ButtonRight, ButtonUp, ButtonDown, ButtonA, ButtonB}
}

// ParseButton accepts a button name in any case.
func ParseButton(s string) (Button, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range buttonNames {
		if s == name {
			return Button(i), nil
		}
	}
	return 0, fmt.Errorf("unknown button: %q", s)
}

// clampDepth is shared by the horizontal moves: after the cursor lands,
// the select depth is clamped to the pile, or zeroed while dropping.
var clampDepth = []byte{
	vm.OpAssertEmptyStack,
	vm.OpGetSelectDrop,
	vm.OpIf, 11,
	vm.OpGetCellLen,
	vm.OpLiteral, 1,
	vm.OpSub,
	vm.OpGetSelectDepth,
	vm.OpLiteral, 0,
	vm.OpMax,
	vm.OpMin,
	vm.OpJump, 2,
	vm.OpLiteral, 0,
	vm.OpSetSelectDepth,
}

// ProgramLeft moves the cursor one pile left, wrapping within each row.
var ProgramLeft = append([]byte{
	vm.OpGetSelectPos,
	vm.OpLiteral, 0,
	vm.OpEqBranch, 15,
	vm.OpGetSelectPos,
	vm.OpLiteral, StartOfTableau,
	vm.OpEqBranch, 6,
	vm.OpGetSelectPos,
	vm.OpLiteral, 1,
	vm.OpSub,
	vm.OpJump, 6,
	vm.OpLiteral, CellsMaxIndex,
	vm.OpJump, 2,
	vm.OpLiteral, StartOfTableau - 1,
	vm.OpSetSelectPos,
}, clampDepth...)

// ProgramRight moves the cursor one pile right, wrapping within each row.
var ProgramRight = append([]byte{
	vm.OpGetSelectPos,
	vm.OpLiteral, StartOfTableau,
	vm.OpLiteral, 1,
	vm.OpSub,
	vm.OpEqBranch, 15,
	vm.OpGetSelectPos,
	vm.OpLiteral, CellsMaxIndex,
	vm.OpGeBranch, 6,
	vm.OpGetSelectPos,
	vm.OpLiteral, 1,
	vm.OpAdd,
	vm.OpJump, 6,
	vm.OpLiteral, StartOfTableau,
	vm.OpJump, 2,
	vm.OpLiteral, 0,
	vm.OpSetSelectPos,
}, clampDepth...)

// ProgramUp deepens the selection, or moves to the other row when the
// selection cannot grow. On the button column the depth picks the suit.
var ProgramUp = []byte{
	vm.OpGetSelectPos,
	vm.OpLiteral, ButtonColumn,
	vm.OpEqBranch, 15,
	vm.OpGetCellLen,
	vm.OpLiteral, 0,
	vm.OpEq,
	vm.OpGetSelectDepth,
	vm.OpGetCellLen,
	vm.OpLiteral, 1,
	vm.OpSub,
	vm.OpGe,
	vm.OpGetSelectDrop,
	vm.OpOr,
	vm.OpOr,
	vm.OpJump, 4,
	vm.OpGetSelectDepth,
	vm.OpLiteral, 2,
	vm.OpGe,
	vm.OpIf, 6,
	vm.OpGetSelectDepth,
	vm.OpLiteral, 1,
	vm.OpAdd,
	vm.OpSetSelectDepth,
	vm.OpHalt,
	vm.OpGetSelectPos,
	vm.OpLiteral, StartOfTableau,
	vm.OpGetSelectPos,
	vm.OpLiteral, EndOfFoundations,
	vm.OpGtBranch, 3,
	vm.OpAdd,
	vm.OpJump, 1,
	vm.OpSub,
	vm.OpSetSelectPos,
	vm.OpAssertEmptyStack,
	vm.OpLiteral, 0,
	vm.OpSetSelectDepth,
}

// ProgramDown shrinks the selection, or moves to the other row and selects
// the whole run there.
var ProgramDown = []byte{
	vm.OpGetSelectDepth,
	vm.OpLiteral, 0,
	vm.OpEqBranch, 6,
	vm.OpGetSelectDepth,
	vm.OpLiteral, 1,
	vm.OpSub,
	vm.OpSetSelectDepth,
	vm.OpHalt,
	vm.OpGetSelectPos,
	vm.OpLiteral, StartOfTableau,
	vm.OpGetSelectPos,
	vm.OpLiteral, EndOfFoundations,
	vm.OpGtBranch, 3,
	vm.OpAdd,
	vm.OpJump, 1,
	vm.OpSub,
	vm.OpSetSelectPos,
	vm.OpAssertEmptyStack,
	vm.OpGetCellLen,
	vm.OpGetSelectDrop,
	vm.OpNot,
	vm.OpAnd,
	vm.OpIf, 13,
	vm.OpGetSelectPos,
	vm.OpLiteral, ButtonColumn,
	vm.OpEqBranch, 4,
	vm.OpLiteral, 0,
	vm.OpJump, 8,
	vm.OpLiteral, 2,
	vm.OpJump, 4,
	vm.OpGetCellLen,
	vm.OpLiteral, 1,
	vm.OpSub,
	vm.OpSetSelectDepth,
}

// ProgramB releases held cards.
var ProgramB = []byte{vm.OpDrop}

// sourceA covers the dragon button, picking up a run and every drop rule.
const sourceA = `
	GET_SELECT_POS
	LITERAL BUTTON_COLUMN
	NE_BRANCH not_button
	HANDLE_BUTTON_PRESS
	HALT
not_button:
	GET_SELECT_DROP
	IF drop
	CAN_GRAB
	HALT_UNLESS
	GET_SELECT_POS
	SET_GRAB_POS
	GET_SELECT_DEPTH
	SET_GRAB_DEPTH
	GRAB
	HALT

drop:
	GET_GRAB_CARD_OR_255
	LITERAL 255
	NE_BRANCH holding
	HALT
holding:
	GET_SELECT_POS
	LITERAL BUTTON_COLUMN
	LT_BRANCH free_cell
	GET_SELECT_POS
	LITERAL FLOWER_FOUNDATION
	GT_BRANCH not_flower
	HALT
not_flower:
	GET_SELECT_POS
	LITERAL START_OF_FOUNDATIONS
	LT
	GET_SELECT_POS
	LITERAL START_OF_TABLEAU
	GE
	OR
	IF tableau

	; foundation: a single card, rank 1 on an empty pile or the next rank
	GET_GRAB_DEPTH
	NOT
	IF single
	HALT
single:
	GET_CELL_LEN
	IF on_foundation
	GET_GRAB_CARD_OR_255
	GET_CARD_NUM
	LITERAL 1
	EQ
	JUMP end
on_foundation:
	GET_DROP_CARD_OR_255
	LITERAL 255
	NE_BRANCH foundation_top
	HALT
foundation_top:
	GET_GRAB_CARD_OR_255
	GET_CARD_SUIT
	GET_DROP_CARD_OR_255
	GET_CARD_SUIT
	EQ
	GET_GRAB_CARD_OR_255
	GET_CARD_NUM
	GET_GRAB_CARD_OR_255
	GET_CARD_NUM
	GET_DROP_CARD_OR_255
	GET_CARD_NUM
	LITERAL 1
	ADD
	EQ
	AND
	AND
	JUMP end

tableau:
	GET_CELL_LEN
	NOT
	IF empty_pile
	GET_GRAB_CARD_OR_255
	GET_CARD_SUIT
	GET_DROP_CARD_OR_255
	GET_CARD_SUIT
	NE
	GET_GRAB_CARD_OR_255
	GET_CARD_NUM
	GET_GRAB_CARD_OR_255
	GET_CARD_NUM
	LITERAL 1
	ADD
	GET_DROP_CARD_OR_255
	GET_CARD_NUM
	EQ
	AND
	AND
	JUMP end
empty_pile:
	LITERAL 255
	JUMP end

free_cell:
	GET_CELL_LEN
	LITERAL 0
	EQ
	GET_GRAB_DEPTH
	LITERAL 0
	EQ
	AND

end:
	IF move
	HALT
move:
	GET_GRAB_POS
	GET_GRAB_DEPTH
	GET_SELECT_POS
	MOVE_CARDS
	DROP
	FILL_MOVE_TIMER
`

// ProgramA is the action button.
var ProgramA = mustAssemble(sourceA)

// SourceA returns the listing ProgramA is assembled from.
func SourceA() string { return sourceA }

// Program returns the bytecode run for a button press.
func Program(b Button) []byte {
	switch b {
	case ButtonLeft:
		return ProgramLeft
	case ButtonRight:
		return ProgramRight
	case ButtonUp:
		return ProgramUp
	case ButtonDown:
		return ProgramDown
	case ButtonA:
		return ProgramA
	case ButtonB:
		return ProgramB
	}
	return nil
}

// Constants are the board constants every game listing may name.
var Constants = map[string]int{
	"NUM_PILES":            NumPiles,
	"BUTTON_COLUMN":        ButtonColumn,
	"FLOWER_FOUNDATION":    FlowerFoundation,
	"START_OF_FOUNDATIONS": StartOfFoundations,
	"END_OF_FOUNDATIONS":   EndOfFoundations,
	"START_OF_TABLEAU":     StartOfTableau,
	"CELLS_MAX_INDEX":      CellsMaxIndex,
	"MAX_SUIT_NUM":         MaxSuitNum,
	"FIRST_GREEN_CARD":     FirstGreenCard,
	"FIRST_BLACK_CARD":     FirstBlackCard,
	"FLOWER_CARD":          FlowerCard,
	"CARD_BACK":            CardBack,
	"MOVE_TIMER_MAX":       MoveTimerMax,
	"TRUE":                 vm.True,
	"FALSE":                vm.False,
}

// NewAssembler returns an assembler with the board constants defined.
func NewAssembler() *vm.Assembler {
	a := vm.NewAssembler()
	for name, v := range Constants {
		a.Define(name, v)
	}
	return a
}

func mustAssemble(src string) []byte {
	code, err := NewAssembler().Assemble(src)
	if err != nil {
		panic(fmt.Sprintf("game: %v", err))
	}
	return code
}

// Game pairs a board with the machine that runs its button programs.
type Game struct {
	*State
	VM *vm.VM
}

// NewGame deals a board from seed.
func NewGame(seed int64) *Game {
	s := Deal(seed)
	return &Game{State: s, VM: vm.New(s)}
}

// Press runs the program for b on a clean stack.
func (g *Game) Press(b Button) error {
	code := Program(b)
	if code == nil {
		return fmt.Errorf("no program for %v", b)
	}
	g.VM.Reset()
	if err := g.VM.Interpret(code); err != nil {
		return fmt.Errorf("%v: %w", b, err)
	}
	return nil
}
