package parser

import (
	"fmt"
	"strings"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/lexer"
	"pascal/interpreter-go/pkg/operators"
	"pascal/interpreter-go/pkg/runtime"
)

func (p *fileParser) advance() error {
	if len(p.ahead) > 0 {
		p.tok = p.ahead[0]
		p.ahead = p.ahead[1:]
		return nil
	}
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// peek returns the token after the current one without consuming it.
func (p *fileParser) peek() (lexer.Token, error) {
	if len(p.ahead) == 0 {
		tok, err := p.lex.Next()
		if err != nil {
			return lexer.Token{}, err
		}
		p.ahead = append(p.ahead, tok)
	}
	return p.ahead[0], nil
}

func (p *fileParser) accept(kind lexer.Kind) bool {
	if p.tok.Kind != kind {
		return false
	}
	// a lexical error here resurfaces on the next expect or advance
	if err := p.advance(); err != nil {
		p.tok = lexer.Token{Kind: lexer.EOF, Pos: p.tok.Pos}
		p.lexErr = err
	}
	return true
}

func (p *fileParser) expect(kind lexer.Kind) (lexer.Token, error) {
	if p.lexErr != nil {
		return lexer.Token{}, p.lexErr
	}
	tok := p.tok
	if tok.Kind != kind {
		return tok, diag.NewParsing(tok.Pos, "expected %s, found %s", describeKind(kind), describe(tok))
	}
	if err := p.advance(); err != nil {
		return tok, err
	}
	return tok, nil
}

func (p *fileParser) unexpected(what string) error {
	if p.lexErr != nil {
		return p.lexErr
	}
	return diag.NewParsing(p.tok.Pos, "expected %s, found %s", what, describe(p.tok))
}

func describeKind(kind lexer.Kind) string {
	if kind.IsKeyword() {
		return fmt.Sprintf("%q", kind.String())
	}
	switch kind {
	case lexer.Identifier, lexer.IntegerLiteral, lexer.RealLiteral, lexer.StringLiteral, lexer.EOF:
		return kind.String()
	}
	return fmt.Sprintf("%q", kind.String())
}

func describe(tok lexer.Token) string {
	switch tok.Kind {
	case lexer.EOF:
		return "end of file"
	case lexer.Identifier:
		return fmt.Sprintf("identifier %q", tok.Lexeme)
	case lexer.IntegerLiteral, lexer.RealLiteral:
		return fmt.Sprintf("number %s", tok.Lexeme)
	case lexer.StringLiteral:
		return fmt.Sprintf("string %s", tok.Lexeme)
	}
	return fmt.Sprintf("%q", tok.Lexeme)
}

// exprText renders an expression back to source-like text for diagnostics.
func exprText(e ast.Expression) string {
	switch n := e.(type) {
	case *ast.Constant:
		switch v := n.Value.(type) {
		case runtime.StringValue:
			return "'" + strings.ReplaceAll(v.Val, "'", "''") + "'"
		case runtime.CharValue:
			return "'" + string(v.Val) + "'"
		}
		return runtime.Format(n.Value)
	case *ast.VariableAccess:
		return n.Decl.Name.Spelling
	case *ast.IndexAccess:
		return exprText(n.Target) + "[" + exprText(n.Index) + "]"
	case *ast.FieldAccess:
		return exprText(n.Target) + "." + n.Field.Spelling
	case *ast.Binary:
		return exprText(n.Left) + " " + n.Op.String() + " " + exprText(n.Right)
	case *ast.Unary:
		if n.Op == operators.OpNot {
			return "not " + exprText(n.Operand)
		}
		return n.Op.String() + exprText(n.Operand)
	case *ast.Conversion:
		if n.Explicit {
			return n.StaticType().Name() + "(" + exprText(n.Operand) + ")"
		}
		return exprText(n.Operand)
	case *ast.Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = exprText(a)
		}
		return n.Callee.CallableName() + "(" + strings.Join(args, ", ") + ")"
	case *ast.Formatted:
		return exprText(n.Value)
	}
	return "?"
}
