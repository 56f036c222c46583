package lexer

import (
	"fmt"
	"strings"

	"pascal/interpreter-go/pkg/source"
)

// Kind represents the kind of token.
type Kind int

const (
	// Special
	EOF Kind = iota

	// Literals & identifiers
	Identifier
	IntegerLiteral
	RealLiteral
	StringLiteral

	// Keywords
	Program
	Unit
	Uses
	Interface
	Implementation
	Initialization
	Const
	Type
	Var
	Procedure
	Function
	Forward
	Begin
	End
	If
	Then
	Else
	While
	Do
	Repeat
	Until
	For
	To
	Downto
	Case
	Of
	Break
	Continue
	Exit
	Array
	Record
	Div
	Mod
	And
	Or
	Xor
	Not
	Shl
	Shr
	True
	False
	Nil

	// Operators
	Plus        // "+"
	Minus       // "-"
	Star        // "*"
	Slash       // "/"
	Equal       // "="
	NotEqual    // "<>"
	Less        // "<"
	LessEq      // "<="
	Greater     // ">"
	GreaterEq   // ">="
	Assign      // ":="
	PlusAssign  // "+="
	MinusAssign // "-="
	StarAssign  // "*="
	SlashAssign // "/="
	Period      // "."
	DotDot      // ".."
	Comma       // ","
	Semicolon   // ";"
	Colon       // ":"
	Caret       // "^"
	At          // "@"

	// Grouping
	LParen   // "("
	RParen   // ")"
	LBracket // "["
	RBracket // "]"
)

var kindNames = map[Kind]string{
	EOF:            "end of file",
	Identifier:     "identifier",
	IntegerLiteral: "integer literal",
	RealLiteral:    "real literal",
	StringLiteral:  "string literal",
	Plus:           "+",
	Minus:          "-",
	Star:           "*",
	Slash:          "/",
	Equal:          "=",
	NotEqual:       "<>",
	Less:           "<",
	LessEq:         "<=",
	Greater:        ">",
	GreaterEq:      ">=",
	Assign:         ":=",
	PlusAssign:     "+=",
	MinusAssign:    "-=",
	StarAssign:     "*=",
	SlashAssign:    "/=",
	Period:         ".",
	DotDot:         "..",
	Comma:          ",",
	Semicolon:      ";",
	Colon:          ":",
	Caret:          "^",
	At:             "@",
	LParen:         "(",
	RParen:         ")",
	LBracket:       "[",
	RBracket:       "]",
}

// keywords maps the folded spelling of every reserved word to its kind.
var keywords = map[string]Kind{
	"program":        Program,
	"unit":           Unit,
	"uses":           Uses,
	"interface":      Interface,
	"implementation": Implementation,
	"initialization": Initialization,
	"const":          Const,
	"type":           Type,
	"var":            Var,
	"procedure":      Procedure,
	"function":       Function,
	"forward":        Forward,
	"begin":          Begin,
	"end":            End,
	"if":             If,
	"then":           Then,
	"else":           Else,
	"while":          While,
	"do":             Do,
	"repeat":         Repeat,
	"until":          Until,
	"for":            For,
	"to":             To,
	"downto":         Downto,
	"case":           Case,
	"of":             Of,
	"break":          Break,
	"continue":       Continue,
	"exit":           Exit,
	"array":          Array,
	"record":         Record,
	"div":            Div,
	"mod":            Mod,
	"and":            And,
	"or":             Or,
	"xor":            Xor,
	"not":            Not,
	"shl":            Shl,
	"shr":            Shr,
	"true":           True,
	"false":          False,
	"nil":            Nil,
}

func init() {
	for word, kind := range keywords {
		kindNames[kind] = word
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// IsKeyword reports whether the kind is a reserved word.
func (k Kind) IsKeyword() bool {
	return k >= Program && k <= Nil
}

// LookupKeyword returns the keyword kind for an identifier spelling.
func LookupKeyword(ident string) (Kind, bool) {
	kind, ok := keywords[strings.ToLower(ident)]
	return kind, ok
}

// Token is an immutable lexical token.
type Token struct {
	Kind   Kind
	Lexeme string // raw text slice
	Text   string // decoded value of string literals
	Int    int64
	Real   float64
	Pos    source.LineInfo
}

func (t Token) String() string {
	switch t.Kind {
	case EOF:
		return "end of file"
	case StringLiteral:
		return fmt.Sprintf("'%s'", t.Text)
	default:
		return t.Lexeme
	}
}
