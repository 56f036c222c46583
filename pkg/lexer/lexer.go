package lexer

import (
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/source"
)

// Lexer scans Pascal source text into tokens on demand.
type Lexer struct {
	unit string
	src  []rune
	cur  int // current index
	line int // 1-based
	col  int // 1-based
}

// New creates a lexer over an in-memory source.
func New(src source.Source) *Lexer {
	return &Lexer{unit: src.Name, src: []rune(src.Text), line: 1, col: 1}
}

// NewReader creates a lexer over a streamed reader. The reader is drained
// once so the token stream stays restartable.
func NewReader(name string, r io.Reader) (*Lexer, error) {
	src, err := source.FromReader(name, r)
	if err != nil {
		return nil, err
	}
	return New(src), nil
}

// Reset rewinds the lexer to the start of the source.
func (l *Lexer) Reset() {
	l.cur = 0
	l.line = 1
	l.col = 1
}

// Tokens scans the remaining input, including the trailing EOF token.
func (l *Lexer) Tokens() ([]Token, error) {
	var out []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Kind == EOF {
			return out, nil
		}
	}
}

// Next returns the next token. After EOF it keeps returning EOF.
func (l *Lexer) Next() (Token, error) {
	if err := l.skipTrivia(); err != nil {
		return Token{}, err
	}
	pos := l.pos()
	if l.atEnd() {
		return Token{Kind: EOF, Pos: pos}, nil
	}
	start := l.cur
	ch := l.advance()

	switch {
	case isIdentStart(ch):
		for !l.atEnd() && isIdentPart(l.peek()) {
			l.advance()
		}
		lexeme := string(l.src[start:l.cur])
		if kind, ok := LookupKeyword(lexeme); ok {
			return Token{Kind: kind, Lexeme: lexeme, Pos: pos}, nil
		}
		return Token{Kind: Identifier, Lexeme: lexeme, Pos: pos}, nil
	case isDigit(ch):
		return l.number(start, pos)
	case ch == '$' || ch == '%' || ch == '&':
		return l.radixNumber(ch, start, pos)
	case ch == '\'' || ch == '#':
		l.cur, l.col = start, pos.Column
		return l.stringLiteral(pos)
	}

	simple := func(kind Kind) (Token, error) {
		return Token{Kind: kind, Lexeme: string(l.src[start:l.cur]), Pos: pos}, nil
	}
	switch ch {
	case '+':
		if l.match('=') {
			return simple(PlusAssign)
		}
		return simple(Plus)
	case '-':
		if l.match('=') {
			return simple(MinusAssign)
		}
		return simple(Minus)
	case '*':
		if l.match('=') {
			return simple(StarAssign)
		}
		return simple(Star)
	case '/':
		if l.match('=') {
			return simple(SlashAssign)
		}
		return simple(Slash)
	case '=':
		return simple(Equal)
	case '<':
		if l.match('>') {
			return simple(NotEqual)
		}
		if l.match('=') {
			return simple(LessEq)
		}
		return simple(Less)
	case '>':
		if l.match('=') {
			return simple(GreaterEq)
		}
		return simple(Greater)
	case ':':
		if l.match('=') {
			return simple(Assign)
		}
		return simple(Colon)
	case '.':
		if l.match('.') {
			return simple(DotDot)
		}
		return simple(Period)
	case ',':
		return simple(Comma)
	case ';':
		return simple(Semicolon)
	case '^':
		return simple(Caret)
	case '@':
		return simple(At)
	case '(':
		return simple(LParen)
	case ')':
		return simple(RParen)
	case '[':
		return simple(LBracket)
	case ']':
		return simple(RBracket)
	}
	return Token{}, &diag.LexicalError{Pos: pos, Msg: "unexpected character " + strconv.QuoteRune(ch)}
}

func (l *Lexer) skipTrivia() error {
	for !l.atEnd() {
		ch := l.peek()
		switch {
		case unicode.IsSpace(ch):
			l.advance()
		case ch == '{':
			pos := l.pos()
			l.advance()
			if !l.skipUntil("}") {
				return &diag.LexicalError{Pos: pos, Msg: "unterminated comment"}
			}
		case ch == '(' && l.peekAt(1) == '*':
			pos := l.pos()
			l.advance()
			l.advance()
			if !l.skipUntil("*)") {
				return &diag.LexicalError{Pos: pos, Msg: "unterminated comment"}
			}
		case ch == '/' && l.peekAt(1) == '/':
			for !l.atEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return nil
		}
	}
	return nil
}

// skipUntil consumes input through the closing delimiter.
func (l *Lexer) skipUntil(closing string) bool {
	want := []rune(closing)
	for !l.atEnd() {
		if l.peek() == want[0] && (len(want) == 1 || l.peekAt(1) == want[1]) {
			for range want {
				l.advance()
			}
			return true
		}
		l.advance()
	}
	return false
}

func (l *Lexer) number(start int, pos source.LineInfo) (Token, error) {
	for !l.atEnd() && isDigit(l.peek()) {
		l.advance()
	}
	isReal := false
	// "1..5" is a range, not a real literal.
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		isReal = true
		l.advance()
		for !l.atEnd() && isDigit(l.peek()) {
			l.advance()
		}
	}
	if p := l.peek(); p == 'e' || p == 'E' {
		next := l.peekAt(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.peekAt(2))) {
			isReal = true
			l.advance()
			if next == '+' || next == '-' {
				l.advance()
			}
			for !l.atEnd() && isDigit(l.peek()) {
				l.advance()
			}
		}
	}
	lexeme := string(l.src[start:l.cur])
	if isReal {
		v, err := strconv.ParseFloat(lexeme, 64)
		if err != nil {
			return Token{}, &diag.LexicalError{Pos: pos, Msg: "malformed real literal " + lexeme}
		}
		return Token{Kind: RealLiteral, Lexeme: lexeme, Real: v, Pos: pos}, nil
	}
	v, err := strconv.ParseInt(lexeme, 10, 64)
	if err != nil {
		// Integers past the int64 range degrade to reals, as in FreePascal.
		f, ferr := strconv.ParseFloat(lexeme, 64)
		if ferr != nil || math.IsInf(f, 0) {
			return Token{}, &diag.LexicalError{Pos: pos, Msg: "integer literal out of range " + lexeme}
		}
		return Token{Kind: RealLiteral, Lexeme: lexeme, Real: f, Pos: pos}, nil
	}
	return Token{Kind: IntegerLiteral, Lexeme: lexeme, Int: v, Pos: pos}, nil
}

func (l *Lexer) radixNumber(prefix rune, start int, pos source.LineInfo) (Token, error) {
	base := 16
	switch prefix {
	case '%':
		base = 2
	case '&':
		base = 8
	}
	digitsStart := l.cur
	for !l.atEnd() && isRadixDigit(l.peek(), base) {
		l.advance()
	}
	lexeme := string(l.src[start:l.cur])
	if l.cur == digitsStart {
		return Token{}, &diag.LexicalError{Pos: pos, Msg: "malformed numeric literal " + lexeme}
	}
	v, err := strconv.ParseInt(string(l.src[digitsStart:l.cur]), base, 64)
	if err != nil {
		return Token{}, &diag.LexicalError{Pos: pos, Msg: "integer literal out of range " + lexeme}
	}
	return Token{Kind: IntegerLiteral, Lexeme: lexeme, Int: v, Pos: pos}, nil
}

// stringLiteral scans quoted pieces joined with #char codes, as in
// 'it''s'#13#10'done'
func (l *Lexer) stringLiteral(pos source.LineInfo) (Token, error) {
	start := l.cur
	var b strings.Builder
	for !l.atEnd() {
		switch l.peek() {
		case '\'':
			l.advance()
			for {
				if l.atEnd() || l.peek() == '\n' {
					return Token{}, &diag.LexicalError{Pos: pos, Msg: "unterminated string literal"}
				}
				ch := l.advance()
				if ch == '\'' {
					if l.peek() == '\'' {
						l.advance()
						b.WriteRune('\'')
						continue
					}
					break
				}
				b.WriteRune(ch)
			}
		case '#':
			codePos := l.pos()
			l.advance()
			base := 10
			if l.peek() == '$' {
				base = 16
				l.advance()
			}
			digitsStart := l.cur
			for !l.atEnd() && isRadixDigit(l.peek(), base) {
				l.advance()
			}
			code, err := strconv.ParseInt(string(l.src[digitsStart:l.cur]), base, 32)
			if err != nil || code < 0 || code > unicode.MaxRune {
				return Token{}, &diag.LexicalError{Pos: codePos, Msg: "malformed character code"}
			}
			b.WriteRune(rune(code))
		default:
			return Token{Kind: StringLiteral, Lexeme: string(l.src[start:l.cur]), Text: b.String(), Pos: pos}, nil
		}
	}
	return Token{Kind: StringLiteral, Lexeme: string(l.src[start:l.cur]), Text: b.String(), Pos: pos}, nil
}

func (l *Lexer) pos() source.LineInfo {
	return source.LineInfo{Unit: l.unit, Line: l.line, Column: l.col}
}

func (l *Lexer) atEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() rune { return l.peekAt(0) }

func (l *Lexer) peekAt(n int) rune {
	if l.cur+n >= len(l.src) {
		return 0
	}
	return l.src[l.cur+n]
}

func (l *Lexer) advance() rune {
	ch := l.src[l.cur]
	l.cur++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

func (l *Lexer) match(want rune) bool {
	if l.atEnd() || l.peek() != want {
		return false
	}
	l.advance()
	return true
}

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || unicode.IsDigit(ch)
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isRadixDigit(ch rune, base int) bool {
	switch base {
	case 2:
		return ch == '0' || ch == '1'
	case 8:
		return ch >= '0' && ch <= '7'
	case 16:
		return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
	default:
		return isDigit(ch)
	}
}
