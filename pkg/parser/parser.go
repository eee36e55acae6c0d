// Package parser provides card VM listing parsing using Participle v2.
// Grammar is defined as Go structs with tags.
package parser

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Listing is the top-level AST node
type Listing struct {
	Lines []*Line `parser:"@@*"`
}

// Line is one statement, or a bare line break.
type Line struct {
	Const *Const       `parser:"  @@"`
	Label *string      `parser:"| ( @Ident \":\" | @Addr )"`
	Instr *Instruction `parser:"| @@"`
	Break bool         `parser:"| @EOL"`
}

// Const: const NAME = value
type Const struct {
	Pos   lexer.Position
	Name  string   `parser:"\"const\" @Ident \"=\""`
	Value *Operand `parser:"@@"`
}

// Instruction: MNEMONIC [operand]
type Instruction struct {
	Pos      lexer.Position
	Mnemonic string   `parser:"@Ident"`
	Operand  *Operand `parser:"@@?"`
}

// Operand is a number or a name (constant or label).
type Operand struct {
	Number *string `parser:"  @Number"`
	Name   *string `parser:"| @Ident"`
}

// LabelName returns the label a line defines. Address prefixes written by
// the disassembler define none.
func (l *Line) LabelName() (string, bool) {
	if l.Label == nil {
		return "", false
	}
	name := strings.TrimSuffix(*l.Label, ":")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		return "", false
	}
	return name, true
}

// Value parses a numeric operand. Decimal, 0x and 0b forms are accepted,
// with an optional sign. Leading zeros are decimal.
func (o *Operand) Value() (int, error) {
	s := *o.Number
	base := 10
	body := strings.TrimLeft(s, "+-")
	if len(body) > 1 && body[0] == '0' && strings.ContainsRune("xXbB", rune(body[1])) {
		base = 0
	}
	n, err := strconv.ParseInt(s, base, 32)
	return int(n), err
}

var listingLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Address prefixes written by the disassembler. A label such as BEEF:
	// lexes the same way; LabelName keeps it and drops numeric addresses.
	{Name: "Addr", Pattern: `[0-9A-F]{4}:`},

	{Name: "Comment", Pattern: `;[^\n]*`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
	{Name: "EOL", Pattern: `\n`},

	{Name: "Number", Pattern: `[-+]?(0[xX][0-9a-fA-F]+|0[bB][01]+|[0-9]+)`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[:=]`},
})

// Parser is the listing parser
var Parser = participle.MustBuild[Listing](
	participle.Lexer(listingLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// Parse parses listing source into a Listing AST
func Parse(source string) (*Listing, error) {
	return Parser.ParseString("", source)
}

// ParseNamed parses listing source, reporting positions against filename.
func ParseNamed(filename, source string) (*Listing, error) {
	return Parser.ParseString(filename, source)
}
