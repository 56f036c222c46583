package parser

import (
	"strings"
	"unicode/utf8"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/builtins"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/lexer"
	"pascal/interpreter-go/pkg/operators"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/scope"
	"pascal/interpreter-go/pkg/source"
	"pascal/interpreter-go/pkg/types"
)

var relationalOps = map[lexer.Kind]operators.Op{
	lexer.Equal:     operators.OpEqual,
	lexer.NotEqual:  operators.OpNotEqual,
	lexer.Less:      operators.OpLess,
	lexer.LessEq:    operators.OpLessEq,
	lexer.Greater:   operators.OpGreater,
	lexer.GreaterEq: operators.OpGreaterEq,
}

var additiveOps = map[lexer.Kind]operators.Op{
	lexer.Plus:  operators.OpPlus,
	lexer.Minus: operators.OpMinus,
	lexer.Or:    operators.OpOr,
	lexer.Xor:   operators.OpXor,
}

var multiplicativeOps = map[lexer.Kind]operators.Op{
	lexer.Star:  operators.OpMul,
	lexer.Slash: operators.OpDivide,
	lexer.Div:   operators.OpDiv,
	lexer.Mod:   operators.OpMod,
	lexer.And:   operators.OpAnd,
	lexer.Shl:   operators.OpShl,
	lexer.Shr:   operators.OpShr,
}

// parseValue parses an expression that must produce a value.
func (p *fileParser) parseValue() (ast.Expression, error) {
	return p.parseExpression()
}

func (p *fileParser) parseExpression() (ast.Expression, error) {
	left, err := p.parseSimpleExpression()
	if err != nil {
		return nil, err
	}
	if op, ok := relationalOps[p.tok.Kind]; ok {
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseSimpleExpression()
		if err != nil {
			return nil, err
		}
		return p.binary(pos, op, left, right)
	}
	return left, nil
}

func (p *fileParser) parseSimpleExpression() (ast.Expression, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := additiveOps[p.tok.Kind]
		if !ok {
			return left, nil
		}
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		if left, err = p.binary(pos, op, left, right); err != nil {
			return nil, err
		}
	}
}

func (p *fileParser) parseTerm() (ast.Expression, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := multiplicativeOps[p.tok.Kind]
		if !ok {
			return left, nil
		}
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		if left, err = p.binary(pos, op, left, right); err != nil {
			return nil, err
		}
	}
}

func (p *fileParser) parseFactor() (ast.Expression, error) {
	tok := p.tok
	switch tok.Kind {
	case lexer.IntegerLiteral:
		if err := p.advance(); err != nil {
			return nil, err
		}
		t := types.Integer
		if !types.ConstantFits(tok.Int, types.Integer) {
			t = types.Int64
		}
		return ast.NewConstant(tok.Pos, t, runtime.IntegerValue{Val: tok.Int}), nil
	case lexer.RealLiteral:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewConstant(tok.Pos, types.Real, runtime.RealValue{Val: tok.Real}), nil
	case lexer.StringLiteral:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if utf8.RuneCountInString(tok.Text) == 1 {
			r, _ := utf8.DecodeRuneInString(tok.Text)
			return ast.NewConstant(tok.Pos, types.Char, runtime.CharValue{Val: r}), nil
		}
		return ast.NewConstant(tok.Pos, types.String, runtime.StringValue{Val: tok.Text}), nil
	case lexer.True, lexer.False:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewConstant(tok.Pos, types.Boolean, runtime.BoolValue{Val: tok.Kind == lexer.True}), nil
	case lexer.LParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return e, nil
	case lexer.Not, lexer.Minus, lexer.Plus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		op := operators.OpNot
		switch tok.Kind {
		case lexer.Minus:
			op = operators.OpNegate
		case lexer.Plus:
			op = operators.OpIdentity
		}
		return p.unary(tok.Pos, op, operand)
	case lexer.Identifier:
		e, err := p.parseDesignator()
		if err != nil {
			return nil, err
		}
		if e.StaticType() == nil {
			return nil, diag.NewParsingKind(diag.KindBadFunctionCall, tok.Pos, "procedure %q does not return a value", tok.Lexeme)
		}
		return e, nil
	case lexer.Nil, lexer.At, lexer.Caret:
		return nil, diag.NewParsing(tok.Pos, "pointers are not supported")
	case lexer.LBracket:
		return nil, diag.NewParsing(tok.Pos, "set constructors are not supported")
	}
	return nil, p.unexpected("expression")
}

// binary types op over left and right, materializes the conversions to
// their common type and folds the result when both sides are constant.
func (p *fileParser) binary(pos source.LineInfo, op operators.Op, left, right ast.Expression) (ast.Expression, error) {
	lt, rt := left.StaticType(), right.StaticType()
	common, ok := types.Common(lt, rt)
	if !ok {
		return nil, diag.NewParsingKind(diag.KindBadOperation, pos, "operator %s cannot be applied to %s and %s", op, lt.Name(), rt.Name())
	}
	result, class, ok := operators.ResultType(op, common)
	if !ok {
		return nil, diag.NewParsingKind(diag.KindBadOperation, pos, "operator %s is not defined for %s", op, common.Name())
	}
	l, err := p.widen(left, common)
	if err != nil {
		return nil, err
	}
	r, err := p.widen(right, common)
	if err != nil {
		return nil, err
	}
	node := ast.NewBinary(pos, result, op, class, l, r)
	lc, lok := l.(*ast.Constant)
	rc, rok := r.(*ast.Constant)
	if !lok || !rok {
		return node, nil
	}
	v, err := operators.Evaluate(op, class, result, lc.Value, rc.Value, pos)
	if err != nil {
		p.logger.Debug("constant folding skipped", "pos", pos.String(), "expr", exprText(node), "err", err)
		return node, nil
	}
	return ast.NewConstant(left.Position(), result, v), nil
}

func (p *fileParser) unary(pos source.LineInfo, op operators.Op, operand ast.Expression) (ast.Expression, error) {
	result, class, ok := operators.UnaryResultType(op, operand.StaticType())
	if !ok {
		return nil, diag.NewParsingKind(diag.KindBadOperation, pos, "operator %s is not defined for %s", op, operand.StaticType().Name())
	}
	if !types.Underlying(operand.StaticType()).Equals(result) {
		var err error
		if operand, err = p.widen(operand, result); err != nil {
			return nil, err
		}
	}
	node := ast.NewUnary(pos, result, op, class, operand)
	c, ok := operand.(*ast.Constant)
	if !ok {
		return node, nil
	}
	v, err := operators.EvaluateUnary(op, class, result, c.Value, pos)
	if err != nil {
		p.logger.Debug("constant folding skipped", "pos", pos.String(), "expr", exprText(node), "err", err)
		return node, nil
	}
	return ast.NewConstant(pos, result, v), nil
}

// widen converts an operand to the common type of an operation.
func (p *fileParser) widen(e ast.Expression, to types.DeclaredType) (ast.Expression, error) {
	if types.Underlying(e.StaticType()).Equals(to) {
		return e, nil
	}
	return p.convert(e, to)
}

// coerce applies the implicit conversion from e's type to `to`. Integer
// constants may narrow when their value fits the target.
func (p *fileParser) coerce(e ast.Expression, to types.DeclaredType) (ast.Expression, error) {
	from := e.StaticType()
	if to == types.Any || from.Equals(to) {
		return e, nil
	}
	if c, ok := e.(*ast.Constant); ok {
		if iv, ok := c.Value.(runtime.IntegerValue); ok && types.ConstantFits(iv.Val, to) {
			return ast.NewConstant(c.Pos, to, iv), nil
		}
	}
	return p.convert(e, to)
}

func (p *fileParser) convert(e ast.Expression, to types.DeclaredType) (ast.Expression, error) {
	from := e.StaticType()
	conv, ok := types.ImplicitConversion(from, to)
	if !ok {
		return nil, &diag.UnconvertibleTypeError{Pos: e.Position(), Expr: exprText(e), From: from.Name(), To: to.Name(), Implicit: true}
	}
	return p.fold(ast.NewConversion(e.Position(), to, e, conv, false)), nil
}

// fold evaluates a conversion of a constant once. A failing conversion is
// left in place and fails again at runtime.
func (p *fileParser) fold(node *ast.Conversion) ast.Expression {
	c, ok := node.Operand.(*ast.Constant)
	if !ok {
		return node
	}
	v, err := node.Convert(c.Value)
	if err != nil {
		p.logger.Debug("constant folding skipped", "pos", node.Pos.String(), "expr", exprText(node), "err", err)
		return node
	}
	return ast.NewConstant(node.Pos, node.StaticType(), v)
}

// parseDesignator parses an identifier followed by any number of index,
// field and call selectors.
func (p *fileParser) parseDesignator() (ast.Expression, error) {
	tok, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	name := ast.NewName(tok.Lexeme)
	e, err := p.resolveIdentifier(tok, name)
	if err != nil {
		return nil, err
	}
	for {
		switch p.tok.Kind {
		case lexer.LBracket:
			if e, err = p.parseIndex(e); err != nil {
				return nil, err
			}
		case lexer.Period:
			if e, err = p.parseSelector(e); err != nil {
				return nil, err
			}
		default:
			return e, nil
		}
	}
}

func (p *fileParser) resolveIdentifier(tok lexer.Token, name ast.Name) (ast.Expression, error) {
	// inside a function its own name, not followed by "(", is the result
	if p.fn != nil && p.fn.ResultVar != nil && name.Equal(p.fn.Name) && p.tok.Kind != lexer.LParen {
		return ast.NewVariableAccess(tok.Pos, p.fn.ResultVar), nil
	}
	decl, err := p.arena.Lookup(p.scope, name, tok.Pos)
	if err != nil {
		if builtins.Lookup(p.active, name.Spelling) == nil {
			return nil, err
		}
		decl = &scope.Declaration{Kind: scope.DeclFunction, Name: name}
	}
	switch decl.Kind {
	case scope.DeclVar:
		return ast.NewVariableAccess(tok.Pos, decl.Var), nil
	case scope.DeclConst:
		return ast.NewConstant(tok.Pos, decl.Type, runtime.Copy(decl.Const.Value)), nil
	case scope.DeclType:
		return p.parseTypeReference(tok, decl.Type)
	}
	return p.parseCall(tok.Pos, name, p.candidates(name), nil)
}

// candidates gathers the overload sets visible for name: user routines
// innermost first, then the active builtin libraries as one last set.
func (p *fileParser) candidates(name ast.Name) [][]ast.Callable {
	sets := p.arena.Functions(p.scope, name)
	if fns := builtins.Lookup(p.active, name.Spelling); len(fns) > 0 {
		set := make([]ast.Callable, len(fns))
		for i, fn := range fns {
			set[i] = fn
		}
		sets = append(sets, set)
	}
	return sets
}

// parseTypeReference handles a type name in expression position: a
// typecast T(x) or a host constructor such as TStringList.Create.
func (p *fileParser) parseTypeReference(tok lexer.Token, t types.DeclaredType) (ast.Expression, error) {
	if host, ok := t.(*types.Host); ok && p.tok.Kind == lexer.Period {
		if err := p.advance(); err != nil {
			return nil, err
		}
		method, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		set := p.methodSet(host, method.Lexeme)
		if len(set) == 0 {
			return nil, diag.NewParsingKind(diag.KindUnknownField, method.Pos, "%s has no method %q", host.TypeName, method.Lexeme)
		}
		return p.parseCall(method.Pos, ast.NewName(host.TypeName+"."+method.Lexeme), [][]ast.Callable{set}, nil)
	}
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, diag.NewParsing(tok.Pos, "type %q cannot be used as a value", tok.Lexeme)
	}
	operand, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	if operand.StaticType().Equals(t) {
		return operand, nil
	}
	conv, ok := types.ExplicitConversion(operand.StaticType(), t)
	if !ok {
		return nil, &diag.UnconvertibleTypeError{Pos: tok.Pos, Expr: exprText(operand), From: operand.StaticType().Name(), To: t.Name()}
	}
	return p.fold(ast.NewConversion(tok.Pos, t, operand, conv, true)), nil
}

func (p *fileParser) methodSet(host *types.Host, method string) []ast.Callable {
	fns := builtins.LookupMethod(p.active, host.TypeName, method)
	set := make([]ast.Callable, len(fns))
	for i, fn := range fns {
		set[i] = fn
	}
	return set
}

func (p *fileParser) parseIndex(target ast.Expression) (ast.Expression, error) {
	if _, err := p.expect(lexer.LBracket); err != nil {
		return nil, err
	}
	for {
		pos := p.tok.Pos
		index, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if target, err = p.index(pos, target, index); err != nil {
			return nil, err
		}
		if !p.accept(lexer.Comma) {
			break
		}
	}
	_, err := p.expect(lexer.RBracket)
	return target, err
}

func (p *fileParser) index(pos source.LineInfo, target, index ast.Expression) (ast.Expression, error) {
	t := target.StaticType()
	if host, ok := types.Underlying(t).(*types.Host); ok {
		set := p.methodSet(host, "Get")
		if len(set) > 0 {
			return p.bindCall(pos, ast.NewName(host.TypeName+".Get"), [][]ast.Callable{set}, []ast.Expression{target, index})
		}
	}
	elem, ok := types.ElementType(t)
	if !ok {
		return nil, &diag.NonArrayIndexedError{Pos: pos, Type: t.Name()}
	}
	var want types.DeclaredType = types.Int64
	if arr, ok := types.Underlying(t).(*types.Array); ok && !arr.Dynamic && types.Underlying(arr.Index).StorageClass() != types.ClassInteger {
		want = types.Underlying(arr.Index)
	}
	idx, err := p.coerce(index, want)
	if err != nil {
		return nil, err
	}
	return ast.NewIndexAccess(pos, elem, target, idx), nil
}

// parseSelector parses ".name": a record field or a host method.
func (p *fileParser) parseSelector(target ast.Expression) (ast.Expression, error) {
	if _, err := p.expect(lexer.Period); err != nil {
		return nil, err
	}
	tok, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	t := target.StaticType()
	if host, ok := types.Underlying(t).(*types.Host); ok {
		set := p.methodSet(host, tok.Lexeme)
		if len(set) == 0 {
			return nil, diag.NewParsingKind(diag.KindUnknownField, tok.Pos, "%s has no method %q", host.TypeName, tok.Lexeme)
		}
		return p.parseCall(tok.Pos, ast.NewName(host.TypeName+"."+tok.Lexeme), [][]ast.Callable{set}, []ast.Expression{target})
	}
	if _, ok := t.(*types.Record); !ok {
		return nil, diag.NewParsingKind(diag.KindUnknownField, tok.Pos, "%q of type %s is not a record", exprText(target), t.Name())
	}
	ft, idx, ok := types.FieldType(t, tok.Lexeme)
	if !ok {
		return nil, diag.NewParsingKind(diag.KindUnknownField, tok.Pos, "record %s has no field %q", t.Name(), tok.Lexeme)
	}
	return ast.NewFieldAccess(tok.Pos, ft, target, ast.NewName(tok.Lexeme), idx), nil
}

// parseCall parses an optional argument list and binds it to the best
// overload. prefix holds leading arguments already parsed, such as the
// receiver of a host method.
func (p *fileParser) parseCall(pos source.LineInfo, name ast.Name, sets [][]ast.Callable, prefix []ast.Expression) (ast.Expression, error) {
	args := append([]ast.Expression(nil), prefix...)
	if p.accept(lexer.LParen) {
		formatted := isWrite(name)
		for p.tok.Kind != lexer.RParen {
			arg, err := p.parseArgument(formatted)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.accept(lexer.Comma) {
				break
			}
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
	}
	return p.bindCall(pos, name, sets, args)
}

func isWrite(name ast.Name) bool {
	return name.Key() == "write" || name.Key() == "writeln"
}

// parseArgument parses one call argument; write arguments may carry a
// field width and a precision, as in x:8:2.
func (p *fileParser) parseArgument(formatted bool) (ast.Expression, error) {
	pos := p.tok.Pos
	arg, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if !formatted || !p.accept(lexer.Colon) {
		return arg, nil
	}
	width, err := p.formatSpec()
	if err != nil {
		return nil, err
	}
	var precision ast.Expression
	if p.accept(lexer.Colon) {
		if precision, err = p.formatSpec(); err != nil {
			return nil, err
		}
	}
	return ast.NewFormatted(pos, arg, width, precision), nil
}

func (p *fileParser) formatSpec() (ast.Expression, error) {
	e, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return p.coerce(e, types.Int64)
}

// bindCall picks the overload with the cheapest argument conversions from
// the innermost set that has any match.
func (p *fileParser) bindCall(pos source.LineInfo, name ast.Name, sets [][]ast.Callable, args []ast.Expression) (ast.Expression, error) {
	for _, set := range sets {
		var best ast.Callable
		bestCost := -1
		for _, c := range set {
			cost, ok := p.matchCost(c, args)
			if ok && (bestCost < 0 || cost < bestCost) {
				best, bestCost = c, cost
			}
		}
		if best != nil {
			return p.buildCall(pos, best, args)
		}
	}
	argTypes := make([]string, len(args))
	for i, a := range args {
		argTypes[i] = a.StaticType().Name()
	}
	return nil, diag.NewParsingKind(diag.KindBadFunctionCall, pos, "no overload of %s matches arguments (%s)", name.Spelling, strings.Join(argTypes, ", "))
}

func variadic(c ast.Callable) bool {
	fn, ok := c.(*builtins.Function)
	return ok && fn.Variadic
}

func paramFor(params []ast.Parameter, i int, variadic bool) ast.Parameter {
	if variadic && i >= len(params) {
		return params[len(params)-1]
	}
	return params[i]
}

func (p *fileParser) matchCost(c ast.Callable, args []ast.Expression) (int, bool) {
	params := c.Parameters()
	isVariadic := variadic(c)
	if isVariadic {
		if len(args) < len(params)-1 {
			return 0, false
		}
	} else if len(args) != len(params) {
		return 0, false
	}
	total := 0
	for i, arg := range args {
		param := paramFor(params, i, isVariadic)
		if param.ByRef {
			if _, ok := arg.(ast.Assignable); !ok {
				return 0, false
			}
			if param.Type != types.Any && !arg.StaticType().Equals(param.Type) {
				return 0, false
			}
			continue
		}
		cost, ok := conversionCost(arg, param.Type)
		if !ok {
			return 0, false
		}
		total += cost
	}
	return total, true
}

// conversionCost ranks an implicit argument conversion: exact matches
// cost nothing, integer widening costs the rank distance, int to real and
// char to string cost more.
func conversionCost(arg ast.Expression, to types.DeclaredType) (int, bool) {
	from := arg.StaticType()
	if to == types.Any || from.Equals(to) {
		return 0, true
	}
	if _, ok := arg.(*ast.Formatted); ok {
		return 0, false
	}
	if c, ok := arg.(*ast.Constant); ok {
		if iv, ok := c.Value.(runtime.IntegerValue); ok && types.ConstantFits(iv.Val, to) {
			return 1, true
		}
	}
	if _, ok := types.ImplicitConversion(from, to); !ok {
		return 0, false
	}
	fp, tp := types.Precedence(from), types.Precedence(to)
	switch {
	case fp >= 0 && tp >= 0 && types.Underlying(to).StorageClass() == types.ClassReal && types.Underlying(from).StorageClass() != types.ClassReal:
		return 10, true
	case fp >= 0 && tp >= 0:
		return tp - fp, true
	case types.Underlying(to).StorageClass() == types.ClassString:
		return 5, true
	}
	return 1, true
}

func (p *fileParser) buildCall(pos source.LineInfo, callee ast.Callable, args []ast.Expression) (ast.Expression, error) {
	params := callee.Parameters()
	isVariadic := variadic(callee)
	bound := make([]ast.Expression, len(args))
	argTypes := make([]types.DeclaredType, len(args))
	for i, arg := range args {
		argTypes[i] = arg.StaticType()
		param := paramFor(params, i, isVariadic)
		if param.ByRef || param.Type == types.Any {
			bound[i] = arg
			continue
		}
		converted, err := p.coerce(arg, param.Type)
		if err != nil {
			return nil, err
		}
		bound[i] = converted
	}
	result := callee.ResultType()
	if r, ok := callee.(ast.ResultResolver); ok {
		result = r.ResolveResult(argTypes)
	}
	return ast.NewCall(pos, callee, bound, result), nil
}
