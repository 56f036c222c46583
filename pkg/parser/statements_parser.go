package parser

import (
	"strings"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/lexer"
	"pascal/interpreter-go/pkg/operators"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/scope"
	"pascal/interpreter-go/pkg/source"
	"pascal/interpreter-go/pkg/types"
)

// parseCompound parses begin..end. With push set the block gets its own
// child context, so declarations inside it shadow outer ones only until
// its end.
func (p *fileParser) parseCompound(push bool) (*ast.Block, error) {
	start, err := p.expect(lexer.Begin)
	if err != nil {
		return nil, err
	}
	savedScope, savedInline := p.scope, p.inline
	if push {
		p.scope = p.arena.Push(p.scope, scope.KindBlock, "", start.Pos)
	}
	var vars []*ast.VarDecl
	p.inline = &vars
	defer func() { p.scope, p.inline = savedScope, savedInline }()

	body, err := p.parseStatementList(lexer.End)
	if err != nil {
		return nil, err
	}
	if push {
		p.arena.Close(p.scope, p.tok.Pos)
	}
	block := ast.NewBlock(start.Pos, vars, body, int(p.scope))
	if _, err := p.expect(lexer.End); err != nil {
		return nil, err
	}
	return block, nil
}

// parseStatementList parses statements separated by semicolons up to, but
// not including, the terminator.
func (p *fileParser) parseStatementList(terminator lexer.Kind) ([]ast.Statement, error) {
	var out []ast.Statement
	for {
		if p.lexErr != nil {
			return nil, p.lexErr
		}
		if p.tok.Kind == terminator {
			return out, nil
		}
		if p.tok.Kind == lexer.Var {
			if err := p.parseInlineVars(); err != nil {
				return nil, err
			}
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			out = append(out, stmt)
		}
		if !p.accept(lexer.Semicolon) {
			if p.tok.Kind != terminator {
				return nil, p.unexpected("\";\" or " + describeKind(terminator))
			}
			return out, nil
		}
	}
}

func (p *fileParser) parseInlineVars() error {
	if p.inline == nil {
		return diag.NewParsing(p.tok.Pos, "inline variables are only allowed directly inside begin..end")
	}
	if err := p.advance(); err != nil {
		return err
	}
	saved := p.vars
	p.vars = p.inline
	defer func() { p.vars = saved }()
	if p.tok.Kind != lexer.Identifier {
		return p.unexpected("identifier")
	}
	return p.parseVarGroup()
}

func (p *fileParser) parseStatement() (ast.Statement, error) {
	switch p.tok.Kind {
	case lexer.Begin:
		return p.parseCompound(true)
	case lexer.If:
		return p.parseIf()
	case lexer.While:
		return p.parseWhile()
	case lexer.Repeat:
		return p.parseRepeat()
	case lexer.For:
		return p.parseFor()
	case lexer.Case:
		return p.parseCase()
	case lexer.Break, lexer.Continue:
		return p.parseLoopControl()
	case lexer.Exit:
		return p.parseExit()
	case lexer.Identifier:
		return p.parseSimpleStatement()
	case lexer.Semicolon, lexer.End, lexer.Until, lexer.Else:
		return nil, nil
	}
	return nil, p.unexpected("statement")
}

// nested parses the statement controlled by if, while, for or case; it
// may be empty.
func (p *fileParser) nested() (ast.Statement, error) {
	saved := p.inline
	p.inline = nil
	defer func() { p.inline = saved }()
	return p.parseStatement()
}

var compoundOps = map[lexer.Kind]operators.Op{
	lexer.PlusAssign:  operators.OpPlus,
	lexer.MinusAssign: operators.OpMinus,
	lexer.StarAssign:  operators.OpMul,
	lexer.SlashAssign: operators.OpDivide,
}

// parseSimpleStatement parses an assignment or a procedure call.
func (p *fileParser) parseSimpleStatement() (ast.Statement, error) {
	start := p.tok.Pos
	target, err := p.parseDesignator()
	if err != nil {
		return nil, err
	}
	opTok := p.tok
	if opTok.Kind == lexer.Assign {
		lhs, err := p.assignable(target)
		if err != nil {
			return nil, err
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		value, err = p.coerce(value, lhs.StaticType())
		if err != nil {
			return nil, err
		}
		return ast.NewAssign(start, lhs, value), nil
	}
	if op, ok := compoundOps[opTok.Kind]; ok {
		lhs, err := p.assignable(target)
		if err != nil {
			return nil, err
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return p.compoundAssign(start, opTok, lhs, op, rhs)
	}
	call, ok := target.(*ast.Call)
	if !ok {
		return nil, diag.NewParsing(start, "%q is not a statement", exprText(target))
	}
	return ast.NewCallStatement(call), nil
}

// compoundAssign builds x op= y as x := x op y. Divide-assign requires a
// real target even where the general conversion rules would accept the
// quotient.
func (p *fileParser) compoundAssign(pos source.LineInfo, opTok lexer.Token, lhs ast.Assignable, op operators.Op, rhs ast.Expression) (ast.Statement, error) {
	target := lhs.StaticType()
	if op == operators.OpDivide && types.Underlying(target).StorageClass() != types.ClassReal {
		return nil, &diag.UnconvertibleTypeError{
			Pos:      opTok.Pos,
			Expr:     exprText(lhs) + " / " + exprText(rhs),
			From:     types.Real.Name(),
			To:       target.Name(),
			Implicit: true,
		}
	}
	value, err := p.binary(opTok.Pos, op, lhs, rhs)
	if err != nil {
		return nil, err
	}
	value, err = p.coerce(value, target)
	if err != nil {
		return nil, err
	}
	return ast.NewCompoundAssign(pos, lhs, op, value), nil
}

func (p *fileParser) assignable(e ast.Expression) (ast.Assignable, error) {
	a, ok := e.(ast.Assignable)
	if !ok {
		return nil, diag.NewParsing(e.Position(), "%q cannot be assigned to", exprText(e))
	}
	return a, nil
}

func (p *fileParser) condition() (ast.Expression, error) {
	e, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return p.coerce(e, types.Boolean)
}

func (p *fileParser) parseIf() (ast.Statement, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.condition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Then); err != nil {
		return nil, err
	}
	then, err := p.nested()
	if err != nil {
		return nil, err
	}
	var els ast.Statement
	if p.accept(lexer.Else) {
		if els, err = p.nested(); err != nil {
			return nil, err
		}
	}
	return ast.NewIf(pos, cond, then, els), nil
}

func (p *fileParser) loopBody() (ast.Statement, error) {
	p.loops++
	defer func() { p.loops-- }()
	return p.nested()
}

func (p *fileParser) parseWhile() (ast.Statement, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.condition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Do); err != nil {
		return nil, err
	}
	body, err := p.loopBody()
	if err != nil {
		return nil, err
	}
	return ast.NewWhile(pos, cond, body), nil
}

func (p *fileParser) parseRepeat() (ast.Statement, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	saved := p.inline
	p.inline = nil
	p.loops++
	body, err := p.parseStatementList(lexer.Until)
	p.loops--
	p.inline = saved
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Until); err != nil {
		return nil, err
	}
	cond, err := p.condition()
	if err != nil {
		return nil, err
	}
	return ast.NewRepeat(pos, body, cond), nil
}

func (p *fileParser) parseFor() (ast.Statement, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	tok, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	decl, err := p.arena.Lookup(p.scope, ast.NewName(tok.Lexeme), tok.Pos)
	if err != nil {
		return nil, err
	}
	if decl.Kind != scope.DeclVar {
		return nil, diag.NewParsing(tok.Pos, "%q is not a variable", tok.Lexeme)
	}
	if !types.IsOrdinal(decl.Type) {
		return nil, diag.NewParsing(tok.Pos, "for loop variable %q must be ordinal, not %s", tok.Lexeme, decl.Type.Name())
	}
	control := ast.NewVariableAccess(tok.Pos, decl.Var)
	if _, err := p.expect(lexer.Assign); err != nil {
		return nil, err
	}
	start, err := p.forBound(decl.Type)
	if err != nil {
		return nil, err
	}
	down := false
	switch p.tok.Kind {
	case lexer.To:
	case lexer.Downto:
		down = true
	default:
		return nil, p.unexpected("\"to\" or \"downto\"")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	stop, err := p.forBound(decl.Type)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Do); err != nil {
		return nil, err
	}
	body, err := p.loopBody()
	if err != nil {
		return nil, err
	}
	return ast.NewFor(pos, control, start, stop, down, body), nil
}

// forBound parses a loop bound. Bounds only need the ordinal class of the
// control variable; each value is range checked as it is assigned.
func (p *fileParser) forBound(control types.DeclaredType) (ast.Expression, error) {
	e, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	want, _ := operators.ClassOf(control)
	got, ok := operators.ClassOf(e.StaticType())
	if ok && got == want && (want != operators.ClassEnum || types.Underlying(e.StaticType()).Equals(types.Underlying(control))) {
		return e, nil
	}
	return nil, &diag.UnconvertibleTypeError{Pos: e.Position(), Expr: exprText(e), From: e.StaticType().Name(), To: control.Name(), Implicit: true}
}

func (p *fileParser) parseCase() (ast.Statement, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	selector, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if !types.IsOrdinal(selector.StaticType()) {
		return nil, diag.NewParsing(selector.Position(), "case selector must be ordinal, not %s", selector.StaticType().Name())
	}
	if _, err := p.expect(lexer.Of); err != nil {
		return nil, err
	}
	var branches []ast.CaseBranch
	var covered []ast.CaseLabel
	for p.tok.Kind != lexer.Else && p.tok.Kind != lexer.End && !p.isOtherwise() {
		var labels []ast.CaseLabel
		for {
			label, err := p.caseLabel(selector.StaticType())
			if err != nil {
				return nil, err
			}
			for _, prev := range covered {
				if label.Low <= prev.High && prev.Low <= label.High {
					return nil, diag.NewParsing(p.tok.Pos, "duplicate case label")
				}
			}
			covered = append(covered, label)
			labels = append(labels, label)
			if !p.accept(lexer.Comma) {
				break
			}
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		body, err := p.nested()
		if err != nil {
			return nil, err
		}
		branches = append(branches, ast.CaseBranch{Labels: labels, Body: body})
		if !p.accept(lexer.Semicolon) {
			break
		}
	}
	var els []ast.Statement
	if p.tok.Kind == lexer.Else || p.isOtherwise() {
		if err := p.advance(); err != nil {
			return nil, err
		}
		saved := p.inline
		p.inline = nil
		els, err = p.parseStatementList(lexer.End)
		p.inline = saved
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.End); err != nil {
		return nil, err
	}
	return ast.NewCase(pos, selector, branches, els), nil
}

func (p *fileParser) isOtherwise() bool {
	return p.tok.Kind == lexer.Identifier && strings.EqualFold(p.tok.Lexeme, "otherwise")
}

func (p *fileParser) caseLabel(selector types.DeclaredType) (ast.CaseLabel, error) {
	low, err := p.labelValue(selector)
	if err != nil {
		return ast.CaseLabel{}, err
	}
	high := low
	if p.accept(lexer.DotDot) {
		if high, err = p.labelValue(selector); err != nil {
			return ast.CaseLabel{}, err
		}
	}
	return ast.CaseLabel{Low: low, High: high}, nil
}

func (p *fileParser) labelValue(selector types.DeclaredType) (int64, error) {
	c, err := p.parseConstant()
	if err != nil {
		return 0, err
	}
	want, _ := operators.ClassOf(selector)
	got, _ := operators.ClassOf(c.StaticType())
	if got != want {
		return 0, &diag.UnconvertibleTypeError{Pos: c.Position(), Expr: exprText(c), From: c.StaticType().Name(), To: selector.Name(), Implicit: true}
	}
	n, _ := runtime.Ordinal(c.Value)
	return n, nil
}

func (p *fileParser) parseLoopControl() (ast.Statement, error) {
	tok := p.tok
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.loops == 0 {
		return nil, diag.NewParsing(tok.Pos, "%s outside of a loop", strings.ToLower(tok.Lexeme))
	}
	if tok.Kind == lexer.Break {
		return ast.NewBreak(tok.Pos), nil
	}
	return ast.NewContinue(tok.Pos), nil
}

func (p *fileParser) parseExit() (ast.Statement, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	var result *ast.VarDecl
	if p.fn != nil {
		result = p.fn.ResultVar
	}
	if !p.accept(lexer.LParen) {
		return ast.NewExit(pos, nil, result), nil
	}
	if result == nil {
		return nil, diag.NewParsing(pos, "exit with a value is only allowed in functions")
	}
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if value, err = p.coerce(value, result.T); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	return ast.NewExit(pos, value, result), nil
}
