package parser

import (
	"strings"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/lexer"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/scope"
	"pascal/interpreter-go/pkg/types"
)

// parseType parses a type denoter. name is the declared type name when the
// denoter is the right-hand side of a type declaration; it names records
// and enumerations.
func (p *fileParser) parseType(name string) (types.DeclaredType, error) {
	if p.tok.Kind == lexer.Identifier && strings.EqualFold(p.tok.Lexeme, "packed") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.Kind != lexer.Array && p.tok.Kind != lexer.Record {
			return nil, p.unexpected("array or record after packed")
		}
	}
	switch p.tok.Kind {
	case lexer.Array:
		return p.parseArrayType()
	case lexer.Record:
		return p.parseRecordType(name)
	case lexer.LParen:
		return p.parseEnumType(name)
	case lexer.Caret:
		return nil, diag.NewParsing(p.tok.Pos, "pointer types are not supported")
	case lexer.Identifier:
		if t, ok, err := p.namedType(); ok || err != nil {
			return t, err
		}
	}
	return p.parseSubrange()
}

// namedType resolves a type identifier, including string[N]. It reports
// false without consuming anything when the identifier does not name a type.
func (p *fileParser) namedType() (types.DeclaredType, bool, error) {
	decl, ok := p.arena.Resolve(p.scope, ast.NewName(p.tok.Lexeme))
	if !ok || decl.Kind != scope.DeclType {
		return nil, false, nil
	}
	next, err := p.peek()
	if err != nil {
		return nil, false, err
	}
	if next.Kind == lexer.DotDot {
		return nil, false, nil
	}
	if err := p.advance(); err != nil {
		return nil, true, err
	}
	t := decl.Type
	if t.StorageClass() == types.ClassString && p.tok.Kind == lexer.LBracket {
		// shortstring length limits are not enforced
		if err := p.advance(); err != nil {
			return nil, true, err
		}
		if _, err := p.parseConstant(); err != nil {
			return nil, true, err
		}
		if _, err := p.expect(lexer.RBracket); err != nil {
			return nil, true, err
		}
	}
	return t, true, nil
}

func (p *fileParser) parseSubrange() (types.DeclaredType, error) {
	pos := p.tok.Pos
	low, err := p.parseConstant()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.DotDot); err != nil {
		return nil, err
	}
	high, err := p.parseConstant()
	if err != nil {
		return nil, err
	}
	lt, ht := types.Underlying(low.StaticType()), types.Underlying(high.StaticType())
	if !types.IsOrdinal(lt) || !types.IsOrdinal(ht) {
		return nil, diag.NewParsing(pos, "subrange bounds must be ordinal constants")
	}
	base, ok := types.Common(lt, ht)
	if !ok || !types.IsOrdinal(base) {
		return nil, diag.NewParsing(pos, "subrange bounds %s and %s have incompatible types", lt.Name(), ht.Name())
	}
	lo, _ := runtime.Ordinal(low.Value)
	hi, _ := runtime.Ordinal(high.Value)
	if lo > hi {
		return nil, diag.NewParsing(pos, "subrange lower bound %d exceeds upper bound %d", lo, hi)
	}
	if base.StorageClass() == types.ClassInteger {
		base = types.Integer
		if !types.ConstantFits(lo, types.Integer) || !types.ConstantFits(hi, types.Integer) {
			base = types.Int64
		}
	}
	return &types.Subrange{Base: base, Low: lo, High: hi}, nil
}

func (p *fileParser) parseArrayType() (types.DeclaredType, error) {
	if _, err := p.expect(lexer.Array); err != nil {
		return nil, err
	}
	if p.accept(lexer.Of) {
		elem, err := p.parseType("")
		if err != nil {
			return nil, err
		}
		return &types.Array{Element: elem, Dynamic: true}, nil
	}
	if _, err := p.expect(lexer.LBracket); err != nil {
		return nil, err
	}
	var indexes []types.DeclaredType
	for {
		pos := p.tok.Pos
		idx, err := p.parseType("")
		if err != nil {
			return nil, err
		}
		if !types.IsOrdinal(idx) {
			return nil, diag.NewParsing(pos, "array index type %s is not ordinal", idx.Name())
		}
		indexes = append(indexes, idx)
		if !p.accept(lexer.Comma) {
			break
		}
	}
	if _, err := p.expect(lexer.RBracket); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Of); err != nil {
		return nil, err
	}
	elem, err := p.parseType("")
	if err != nil {
		return nil, err
	}
	// array[a, b] of T is array[a] of array[b] of T
	for i := len(indexes) - 1; i >= 0; i-- {
		low, high, _ := types.OrdinalBounds(indexes[i])
		if high-low >= 1<<24 {
			return nil, diag.NewParsing(p.tok.Pos, "array index type %s is too large", indexes[i].Name())
		}
		elem = &types.Array{Element: elem, Index: indexes[i], Low: low, High: high}
	}
	return elem, nil
}

func (p *fileParser) parseRecordType(name string) (types.DeclaredType, error) {
	if _, err := p.expect(lexer.Record); err != nil {
		return nil, err
	}
	rec := &types.Record{TypeName: name}
	seen := make(map[string]bool)
	for p.tok.Kind == lexer.Identifier {
		var names []lexer.Token
		for {
			tok, err := p.expect(lexer.Identifier)
			if err != nil {
				return nil, err
			}
			key := ast.Fold(tok.Lexeme)
			if seen[key] {
				return nil, diag.NewParsingKind(diag.KindDuplicateDeclaration, tok.Pos, "duplicate field %q", tok.Lexeme)
			}
			seen[key] = true
			names = append(names, tok)
			if !p.accept(lexer.Comma) {
				break
			}
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		ft, err := p.parseType("")
		if err != nil {
			return nil, err
		}
		for _, tok := range names {
			rec.Fields = append(rec.Fields, types.Field{Name: tok.Lexeme, Type: ft})
		}
		if !p.accept(lexer.Semicolon) {
			break
		}
	}
	if _, err := p.expect(lexer.End); err != nil {
		return nil, err
	}
	return rec, nil
}

// parseEnumType declares every member as a constant of the new type in
// the current context.
func (p *fileParser) parseEnumType(name string) (types.DeclaredType, error) {
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	enum := &types.Enum{TypeName: name}
	var toks []lexer.Token
	for {
		tok, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		enum.Members = append(enum.Members, tok.Lexeme)
		if !p.accept(lexer.Comma) {
			break
		}
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	for i, tok := range toks {
		member := ast.NewName(tok.Lexeme)
		value := runtime.EnumValue{Ordinal: int64(i), Members: enum.Members}
		decl := ast.NewConstDecl(tok.Pos, member, enum, value)
		if err := p.arena.Declare(p.scope, &scope.Declaration{Kind: scope.DeclConst, Name: member, Type: enum, Pos: tok.Pos, Const: decl}); err != nil {
			return nil, err
		}
	}
	return enum, nil
}

// parseConstant parses an expression in a compile-time context and
// requires it to fold to a constant.
func (p *fileParser) parseConstant() (*ast.Constant, error) {
	pos := p.tok.Pos
	saved := p.scope
	p.scope = p.arena.PushCompileTime(saved, pos)
	e, err := p.parseExpression()
	p.arena.Close(p.scope, p.tok.Pos)
	p.scope = saved
	if err != nil {
		return nil, err
	}
	c, ok := e.(*ast.Constant)
	if !ok {
		return nil, diag.NewParsing(pos, "constant expression expected, %q cannot be evaluated at compile time", exprText(e))
	}
	return c, nil
}
