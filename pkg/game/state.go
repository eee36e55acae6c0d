package game

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/psilLang/cardvm/pkg/vm"
)

// Board layout. Piles 0-2 are free cells, 3 is the dragon button column,
// 4 the flower foundation, 5-7 the suit foundations and 8-15 the tableau.
const (
	NumPiles           = 16
	ButtonColumn       = 3
	FlowerFoundation   = 4
	StartOfFoundations = 5
	EndOfFoundations   = 7
	StartOfTableau     = 8
	CellsMaxIndex      = 15
)

// Cards. A card is suit*10 + rank; rank 0 is the suit's dragon.
const (
	MaxSuitNum     = 9
	FirstGreenCard = 10
	FirstBlackCard = 20
	FlowerCard     = 30
	CardBack       = 40
	DeckSize       = 3*MaxSuitNum + 3*4 + 1
)

// MoveTimerMax is the number of frames input is ignored after a move.
const MoveTimerMax = 4

// State is the solitaire board. It implements vm.GameState.
type State struct {
	Cells [NumPiles][]byte

	Regs      [4]byte // indexed by vm.Register
	Drop      bool    // cards are held
	MoveTimer byte
}

var _ vm.GameState = (*State)(nil)

// NewState returns an empty board with the cursor on the first tableau pile.
func NewState() *State {
	s := &State{}
	s.Regs[vm.SelectPos] = StartOfTableau
	s.Regs[vm.GrabPos] = 1
	return s
}

// Deal shuffles a full deck with a local generator and deals it round-robin
// over the tableau.
func Deal(seed int64) *State {
	rng := rand.New(rand.NewSource(seed))

	deck := make([]byte, 0, DeckSize)
	for i := byte(1); i <= MaxSuitNum; i++ {
		deck = append(deck, i, i+FirstGreenCard, i+FirstBlackCard)
	}
	for i := 0; i < 4; i++ {
		deck = append(deck, 0, FirstGreenCard, FirstBlackCard)
	}
	deck = append(deck, FlowerCard)

	s := NewState()
	pos := StartOfTableau
	for len(deck) > 0 {
		i := rng.Intn(len(deck))
		s.Cells[pos] = append(s.Cells[pos], deck[i])
		deck[i] = deck[len(deck)-1]
		deck = deck[:len(deck)-1]

		if pos >= CellsMaxIndex {
			pos = StartOfTableau
		} else {
			pos++
		}
	}
	return s
}

// Clone returns a deep copy of the board.
func (s *State) Clone() *State {
	c := *s
	for i := range s.Cells {
		c.Cells[i] = append([]byte(nil), s.Cells[i]...)
	}
	return &c
}

// Register returns a cursor register.
func (s *State) Register(r vm.Register) byte {
	return s.Regs[r&3]
}

// SetRegister stores a cursor register.
func (s *State) SetRegister(r vm.Register, v byte) {
	s.Regs[r&3] = v
}

func (s *State) GrabMode() bool      { return s.Drop }
func (s *State) SetGrabMode(on bool) { s.Drop = on }
func (s *State) FillMoveTimer()      { s.MoveTimer = MoveTimerMax }

// Tick counts the move timer down and reports whether input is accepted.
func (s *State) Tick() bool {
	if s.MoveTimer > 0 {
		s.MoveTimer--
	}
	return s.MoveTimer == 0
}

func (s *State) PileLen(pos byte) byte {
	return byte(len(s.Cells[pos&vm.PositionMask]))
}

// CardAt returns the card depth places below the top of pile pos.
func (s *State) CardAt(pos, depth byte) (byte, bool) {
	pile := s.Cells[pos&vm.PositionMask]
	if int(depth) >= len(pile) {
		return 0, false
	}
	return pile[len(pile)-1-int(depth)], true
}

// CardSuit returns 0-2 for the three suits and 3 for the flower and
// anything above it.
func (s *State) CardSuit(card byte) byte { return Suit(card) }

// CardNum returns the rank within the suit.
func (s *State) CardNum(card byte) byte { return Num(card) }

func Suit(card byte) byte {
	switch {
	case card >= FlowerCard:
		return 3
	case card >= FirstBlackCard:
		return 2
	case card >= FirstGreenCard:
		return 1
	}
	return 0
}

func Num(card byte) byte {
	return card - Suit(card)*10
}

// Selection returns the top depth+1 cards of pile pos, bottom first, or
// nil when the pile is not that deep.
func (s *State) Selection(pos, depth byte) []byte {
	pile := s.Cells[pos&vm.PositionMask]
	n := int(depth) + 1
	if n > len(pile) {
		return nil
	}
	return pile[len(pile)-n:]
}

// CanGrab reports whether the selection is a run of alternating suits in
// descending rank that may be picked up.
func (s *State) CanGrab(pos, depth byte) bool {
	pos &= vm.PositionMask
	if pos >= FlowerFoundation && pos < StartOfTableau {
		return false
	}
	sel := s.Selection(pos, depth)
	if len(sel) == 0 {
		return false
	}

	var lastSuit, lastNum byte
	for i, card := range sel {
		if card == CardBack {
			return false
		}
		suit, num := Suit(card), Num(card)
		if i > 0 && (suit == lastSuit || num == 0 || num != lastNum-1) {
			return false
		}
		lastSuit, lastNum = suit, num
	}
	return true
}

// MoveCards moves the top grabDepth+1 cards from grabPos onto dropPos.
// Cells and foundations take a single card, which replaces whatever
// they hold.
func (s *State) MoveCards(grabPos, grabDepth, dropPos byte) {
	grabPos &= vm.PositionMask
	dropPos &= vm.PositionMask
	from := s.Cells[grabPos]
	if len(from) == 0 {
		return
	}

	if dropPos <= EndOfFoundations {
		last := from[len(from)-1]
		s.Cells[grabPos] = from[:len(from)-1]
		if len(s.Cells[dropPos]) > 0 {
			s.Cells[dropPos][0] = last
		} else {
			s.Cells[dropPos] = append(s.Cells[dropPos], last)
		}
		return
	}

	start := len(from) - 1 - int(grabDepth)
	if start < 0 {
		start = 0
	}
	moved := append([]byte(nil), from[start:]...)
	s.Cells[grabPos] = from[:start]
	s.Cells[dropPos] = append(s.Cells[dropPos], moved...)
}

// CanMoveDragons reports whether all four dragons of suit are exposed and
// a free cell can take them.
func (s *State) CanMoveDragons(suit byte) bool {
	dragon := suit * 10
	count := 0
	for _, pile := range s.Cells {
		if len(pile) > 0 && pile[len(pile)-1] == dragon {
			count++
		}
	}
	if count < 4 {
		return false
	}
	for _, pile := range s.Cells[:ButtonColumn] {
		if len(pile) == 0 || pile[len(pile)-1] == dragon {
			return true
		}
	}
	return false
}

// MoveDragons collects the exposed dragons of the selected suit into a
// free cell and turns it face down.
func (s *State) MoveDragons() {
	dragon := s.Regs[vm.SelectDepth] * 10

	moveTo := -1
	for i, pile := range s.Cells[:ButtonColumn] {
		if len(pile) > 0 && pile[len(pile)-1] == dragon {
			moveTo = i
			break
		}
	}
	if moveTo < 0 {
		for i, pile := range s.Cells[:ButtonColumn] {
			if len(pile) == 0 {
				moveTo = i
				break
			}
		}
	}

	for i, pile := range s.Cells {
		if len(pile) > 0 && pile[len(pile)-1] == dragon {
			s.Cells[i] = pile[:len(pile)-1]
		}
	}

	if moveTo >= 0 {
		s.Cells[moveTo] = append(s.Cells[moveTo], CardBack)
	}
}

// HandleButtonPress performs the dragon move for the suit under the
// cursor when it is legal.
func (s *State) HandleButtonPress() bool {
	if !s.CanMoveDragons(s.Regs[vm.SelectDepth]) {
		return false
	}
	s.MoveDragons()
	return true
}

// HasWon reports whether the tableau has been cleared.
func (s *State) HasWon() bool {
	for _, pile := range s.Cells[StartOfTableau:] {
		if len(pile) > 0 {
			return false
		}
	}
	return true
}

// CardCount returns the number of cards on the board. Card backs count
// once each.
func (s *State) CardCount() int {
	n := 0
	for _, pile := range s.Cells {
		n += len(pile)
	}
	return n
}

func (s *State) String() string {
	var sb strings.Builder
	for i, pile := range s.Cells {
		mark := ' '
		switch {
		case i == int(s.Regs[vm.SelectPos]&vm.PositionMask):
			mark = '>'
		case s.Drop && i == int(s.Regs[vm.GrabPos]&vm.PositionMask):
			mark = '*'
		}
		fmt.Fprintf(&sb, "%c%2d:", mark, i)
		for _, card := range pile {
			fmt.Fprintf(&sb, " %s", CardName(card))
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "select %d/%d grab %d/%d drop %v\n",
		s.Regs[vm.SelectPos], s.Regs[vm.SelectDepth],
		s.Regs[vm.GrabPos], s.Regs[vm.GrabDepth], s.Drop)
	return sb.String()
}

// CardName renders a card as suit letter and rank: r3, g0, b9, fl, ##.
func CardName(card byte) string {
	switch {
	case card == CardBack:
		return "##"
	case card == FlowerCard:
		return "fl"
	case card > CardBack:
		return fmt.Sprintf("?%d", card)
	}
	return fmt.Sprintf("%c%d", "rgb?"[Suit(card)], Num(card))
}
