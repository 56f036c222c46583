package parser

import (
	"strings"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/lexer"
	"pascal/interpreter-go/pkg/scope"
	"pascal/interpreter-go/pkg/source"
	"pascal/interpreter-go/pkg/types"
)

// parseDeclarations consumes const, type, var and routine sections until
// the first token that starts none of them. In a unit interface only
// routine headings are allowed.
func (p *fileParser) parseDeclarations(headingsOnly bool) error {
	for {
		var err error
		switch p.tok.Kind {
		case lexer.Const:
			err = p.parseConstSection()
		case lexer.Type:
			err = p.parseTypeSection()
		case lexer.Var:
			err = p.parseVarSection()
		case lexer.Procedure, lexer.Function:
			err = p.parseRoutine(headingsOnly)
		default:
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (p *fileParser) atUnitLevel() bool {
	return p.fn == nil && p.scope == scope.ID(p.unit.Scope)
}

// varKey returns the storage key of a variable declared in the current
// context. Unit-level variables of units are qualified by the unit name.
func (p *fileParser) varKey(name ast.Name) string {
	if p.atUnitLevel() && p.prefix != "" {
		return p.prefix + name.Key()
	}
	return name.Key()
}

func (p *fileParser) parseConstSection() error {
	if _, err := p.expect(lexer.Const); err != nil {
		return err
	}
	for p.tok.Kind == lexer.Identifier {
		tok := p.tok
		if err := p.advance(); err != nil {
			return err
		}
		name := ast.NewName(tok.Lexeme)

		// typed constants are initialized variables
		if p.accept(lexer.Colon) {
			t, err := p.parseType("")
			if err != nil {
				return err
			}
			if _, err := p.expect(lexer.Equal); err != nil {
				return err
			}
			if err := p.declareVar(tok, t, true); err != nil {
				return err
			}
			if _, err := p.expect(lexer.Semicolon); err != nil {
				return err
			}
			continue
		}

		if _, err := p.expect(lexer.Equal); err != nil {
			return err
		}
		c, err := p.parseConstant()
		if err != nil {
			return err
		}
		decl := ast.NewConstDecl(tok.Pos, name, c.StaticType(), c.Value)
		if err := p.arena.Declare(p.scope, &scope.Declaration{Kind: scope.DeclConst, Name: name, Type: decl.T, Pos: tok.Pos, Const: decl}); err != nil {
			return err
		}
		if p.atUnitLevel() {
			p.unit.Consts = append(p.unit.Consts, decl)
		}
		if _, err := p.expect(lexer.Semicolon); err != nil {
			return err
		}
	}
	return nil
}

func (p *fileParser) parseTypeSection() error {
	if _, err := p.expect(lexer.Type); err != nil {
		return err
	}
	for p.tok.Kind == lexer.Identifier {
		tok := p.tok
		if err := p.advance(); err != nil {
			return err
		}
		if _, err := p.expect(lexer.Equal); err != nil {
			return err
		}
		t, err := p.parseType(tok.Lexeme)
		if err != nil {
			return err
		}
		name := ast.NewName(tok.Lexeme)
		if err := p.arena.Declare(p.scope, &scope.Declaration{Kind: scope.DeclType, Name: name, Type: t, Pos: tok.Pos}); err != nil {
			return err
		}
		if p.atUnitLevel() {
			p.unit.Types = append(p.unit.Types, ast.NewTypeDecl(tok.Pos, name, t))
		}
		if _, err := p.expect(lexer.Semicolon); err != nil {
			return err
		}
	}
	return nil
}

func (p *fileParser) parseVarSection() error {
	if _, err := p.expect(lexer.Var); err != nil {
		return err
	}
	for p.tok.Kind == lexer.Identifier {
		if err := p.parseVarGroup(); err != nil {
			return err
		}
	}
	return nil
}

// parseVarGroup parses "a, b: T [= init];".
func (p *fileParser) parseVarGroup() error {
	var names []lexer.Token
	for {
		tok, err := p.expect(lexer.Identifier)
		if err != nil {
			return err
		}
		names = append(names, tok)
		if !p.accept(lexer.Comma) {
			break
		}
	}
	if _, err := p.expect(lexer.Colon); err != nil {
		return err
	}
	t, err := p.parseType("")
	if err != nil {
		return err
	}
	hasInit := p.accept(lexer.Equal) || p.accept(lexer.Assign)
	if hasInit && len(names) > 1 {
		return diag.NewParsing(names[0].Pos, "only one variable can be initialized at a time")
	}
	for _, tok := range names {
		if err := p.declareVar(tok, t, hasInit); err != nil {
			return err
		}
	}
	_, err = p.expect(lexer.Semicolon)
	return err
}

// declareVar enters one variable into the current context and the
// current declaration list. With init set, the initializer is parsed from
// the current token.
func (p *fileParser) declareVar(tok lexer.Token, t types.DeclaredType, init bool) error {
	name := ast.NewName(tok.Lexeme)
	decl := ast.NewVarDecl(tok.Pos, name, t, p.varKey(name))
	if init {
		c, err := p.parseConstant()
		if err != nil {
			return err
		}
		value, err := p.coerce(c, t)
		if err != nil {
			return err
		}
		decl.Init = value
	}
	if err := p.arena.Declare(p.scope, &scope.Declaration{Kind: scope.DeclVar, Name: name, Type: t, Pos: tok.Pos, Var: decl}); err != nil {
		return err
	}
	if p.vars == nil {
		return diag.NewParsing(tok.Pos, "variables cannot be declared here")
	}
	*p.vars = append(*p.vars, decl)
	return nil
}

var ignoredDirectives = map[string]bool{
	"overload": true,
	"inline":   true,
	"register": true,
	"cdecl":    true,
	"stdcall":  true,
}

// parseRoutine parses a procedure or function declaration. A heading that
// matches an earlier forward declaration completes it.
func (p *fileParser) parseRoutine(headingOnly bool) error {
	pos := p.tok.Pos
	isFunction := p.tok.Kind == lexer.Function
	if err := p.advance(); err != nil {
		return err
	}
	tok, err := p.expect(lexer.Identifier)
	if err != nil {
		return err
	}
	name := ast.NewName(tok.Lexeme)
	ctx := p.arena.Push(p.scope, scope.KindRoutine, name.Spelling, pos)

	params, err := p.parseParams(ctx)
	if err != nil {
		return err
	}
	var result types.DeclaredType
	if isFunction {
		if _, err := p.expect(lexer.Colon); err != nil {
			return err
		}
		if result, err = p.parseType(""); err != nil {
			return err
		}
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return err
	}
	forward := headingOnly
	for {
		if p.accept(lexer.Forward) {
			forward = true
		} else if p.tok.Kind == lexer.Identifier && ignoredDirectives[strings.ToLower(p.tok.Lexeme)] {
			if err := p.advance(); err != nil {
				return err
			}
		} else {
			break
		}
		if _, err := p.expect(lexer.Semicolon); err != nil {
			return err
		}
	}

	fn, err := p.bindRoutine(pos, name, params, result)
	if err != nil {
		return err
	}
	fn.Scope = int(ctx)
	fn.Enclosing = p.arena.FrameOf(p.scope)
	fn.Params = params
	if forward {
		fn.Forward = true
		p.pending = append(p.pending, fn)
		p.arena.Close(ctx, p.tok.Pos)
		return nil
	}
	if err := p.parseRoutineBody(fn, ctx); err != nil {
		return err
	}
	if p.atUnitLevel() {
		p.unit.Routines = append(p.unit.Routines, fn)
	}
	_, err = p.expect(lexer.Semicolon)
	return err
}

// bindRoutine finds the pending forward declaration matching a heading or
// registers a new overload.
func (p *fileParser) bindRoutine(pos source.LineInfo, name ast.Name, params []*ast.VarDecl, result types.DeclaredType) (*ast.FunctionDecl, error) {
	for _, c := range p.arena.LocalFunctions(p.scope, name) {
		existing, ok := c.(*ast.FunctionDecl)
		if !ok || !sameSignature(existing, params, result) {
			continue
		}
		if existing.Defined() || !existing.Forward {
			return nil, diag.NewParsingKind(diag.KindDuplicateDeclaration, pos, "duplicate routine %q (first declared at %s)", name.Spelling, existing.Pos)
		}
		for i, param := range params {
			if !param.Name.Equal(existing.Params[i].Name) {
				return nil, diag.NewParsing(param.Pos, "parameter %q does not match the forward declaration (%q)", param.Name.Spelling, existing.Params[i].Name.Spelling)
			}
		}
		return existing, nil
	}
	fn := ast.NewFunctionDecl(pos, name, params, result)
	if err := p.arena.AddFunction(p.scope, name, fn, pos); err != nil {
		return nil, err
	}
	return fn, nil
}

func sameSignature(fn *ast.FunctionDecl, params []*ast.VarDecl, result types.DeclaredType) bool {
	if len(fn.Params) != len(params) {
		return false
	}
	for i, param := range params {
		if param.ByRef != fn.Params[i].ByRef || !param.T.Equals(fn.Params[i].T) {
			return false
		}
	}
	if fn.Result == nil || result == nil {
		return fn.Result == nil && result == nil
	}
	return fn.Result.Equals(result)
}

// parseParams parses an optional parameter list and declares the
// parameters in the routine context.
func (p *fileParser) parseParams(ctx scope.ID) ([]*ast.VarDecl, error) {
	var params []*ast.VarDecl
	if !p.accept(lexer.LParen) {
		return nil, nil
	}
	if p.accept(lexer.RParen) {
		return nil, nil
	}
	for {
		byRef := false
		switch {
		case p.tok.Kind == lexer.Var:
			byRef = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		case p.tok.Kind == lexer.Const:
			if err := p.advance(); err != nil {
				return nil, err
			}
		case p.tok.Kind == lexer.Identifier && strings.EqualFold(p.tok.Lexeme, "out"):
			next, err := p.peek()
			if err != nil {
				return nil, err
			}
			if next.Kind == lexer.Identifier {
				byRef = true
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
		}
		var names []lexer.Token
		for {
			tok, err := p.expect(lexer.Identifier)
			if err != nil {
				return nil, err
			}
			names = append(names, tok)
			if !p.accept(lexer.Comma) {
				break
			}
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		t, err := p.parseType("")
		if err != nil {
			return nil, err
		}
		for _, tok := range names {
			name := ast.NewName(tok.Lexeme)
			decl := ast.NewVarDecl(tok.Pos, name, t, "")
			decl.ByRef = byRef
			if err := p.arena.Declare(ctx, &scope.Declaration{Kind: scope.DeclVar, Name: name, Type: t, Pos: tok.Pos, Var: decl}); err != nil {
				return nil, err
			}
			params = append(params, decl)
		}
		if !p.accept(lexer.Semicolon) {
			break
		}
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	return params, nil
}

// parseRoutineBody parses local declarations and the body of fn inside
// its own context.
func (p *fileParser) parseRoutineBody(fn *ast.FunctionDecl, ctx scope.ID) error {
	savedScope, savedFn, savedLoops, savedPending, savedVars := p.scope, p.fn, p.loops, p.pending, p.vars
	defer func() {
		p.scope, p.fn, p.loops, p.pending, p.vars = savedScope, savedFn, savedLoops, savedPending, savedVars
	}()
	p.scope, p.fn, p.loops, p.pending, p.vars = ctx, fn, 0, nil, &fn.Locals

	if fn.Result != nil {
		result := ast.NewName("Result")
		fn.ResultVar = ast.NewVarDecl(fn.Pos, result, fn.Result, "")
		if err := p.arena.Declare(ctx, &scope.Declaration{Kind: scope.DeclVar, Name: result, Type: fn.Result, Pos: fn.Pos, Var: fn.ResultVar}); err != nil {
			return err
		}
	}
	if err := p.parseDeclarations(false); err != nil {
		return err
	}
	if err := p.checkPending(); err != nil {
		return err
	}
	body, err := p.parseCompound(false)
	if err != nil {
		return err
	}
	fn.Body = body
	fn.Forward = false
	p.arena.Close(ctx, p.tok.Pos)
	return nil
}
