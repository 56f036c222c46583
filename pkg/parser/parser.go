package parser

import (
	"fmt"
	"log/slog"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/builtins"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/lexer"
	"pascal/interpreter-go/pkg/scope"
	"pascal/interpreter-go/pkg/source"
	"pascal/interpreter-go/pkg/types"
)

// UnitResolver loads the source of a unit named in a uses clause that is
// not a builtin library.
type UnitResolver interface {
	ResolveUnit(name string) (source.Source, error)
}

// Options configure one parse.
type Options struct {
	Registry *builtins.Registry
	Units    UnitResolver
	Logger   *slog.Logger
}

// Parser holds the state shared by a program and the units it loads: one
// scope arena and the units parsed so far.
type Parser struct {
	registry *builtins.Registry
	units    UnitResolver
	logger   *slog.Logger
	arena    *scope.Arena

	loaded  map[string]*loadedUnit
	loading map[string]bool
	order   []*ast.CodeUnit
}

type loadedUnit struct {
	unit  *ast.CodeUnit
	scope scope.ID
	libs  []*builtins.Library
}

// Parse compiles src into a code unit.
func Parse(src source.Source, opts Options) (*ast.CodeUnit, error) {
	unit, _, err := ParseWithScopes(src, opts)
	return unit, err
}

// ParseWithScopes compiles src and also returns the scope arena built while
// parsing. The arena is returned even when parsing fails, so tooling can
// complete identifiers in incomplete sources.
func ParseWithScopes(src source.Source, opts Options) (*ast.CodeUnit, *scope.Arena, error) {
	p := New(opts)
	unit, err := p.parseSource(src)
	if err != nil {
		return nil, p.arena, err
	}
	return unit, p.arena, nil
}

// New creates a parser session.
func New(opts Options) *Parser {
	if opts.Registry == nil {
		opts.Registry = builtins.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	p := &Parser{
		registry: opts.Registry,
		units:    opts.Units,
		logger:   opts.Logger,
		arena:    scope.NewArena(),
		loaded:   make(map[string]*loadedUnit),
		loading:  make(map[string]bool),
	}
	root := p.arena.Root()
	for _, name := range types.BuiltinNames() {
		t, _ := types.ByName(name)
		_ = p.arena.Declare(root, &scope.Declaration{Kind: scope.DeclType, Name: ast.NewName(name), Type: t})
	}
	p.declareLibrary(root, p.registry.System())
	return p
}

// Arena exposes the scopes built so far.
func (p *Parser) Arena() *scope.Arena { return p.arena }

// fileParser parses one source file within a session.
type fileParser struct {
	*Parser

	lex    *lexer.Lexer
	tok    lexer.Token
	ahead  []lexer.Token
	lexErr error

	scope   scope.ID
	active  []*builtins.Library
	unit    *ast.CodeUnit
	prefix  string
	fn      *ast.FunctionDecl
	loops   int
	pending []*ast.FunctionDecl

	// vars receives variables of the declaration section being parsed;
	// inline receives the inline variables of the innermost begin..end.
	vars   *[]*ast.VarDecl
	inline *[]*ast.VarDecl
}

func (p *Parser) parseSource(src source.Source) (*ast.CodeUnit, error) {
	fp := &fileParser{
		Parser: p,
		lex:    lexer.New(src),
		active: []*builtins.Library{p.registry.System()},
	}
	if err := fp.advance(); err != nil {
		return nil, err
	}
	if fp.tok.Kind == lexer.Unit {
		return fp.parseUnit()
	}
	return fp.parseProgram()
}

func (p *fileParser) parseProgram() (*ast.CodeUnit, error) {
	pos := p.tok.Pos
	name := ast.NewName("program")
	if p.accept(lexer.Program) {
		tok, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		name = ast.NewName(tok.Lexeme)
		if p.accept(lexer.LParen) {
			// program header parameters such as (input, output) are ignored
			for p.tok.Kind != lexer.RParen && p.tok.Kind != lexer.EOF {
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			if _, err := p.expect(lexer.RParen); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(lexer.Semicolon); err != nil {
			return nil, err
		}
	}

	p.unit = ast.NewCodeUnit(pos, name, false)
	p.scope = p.arena.Push(p.arena.Root(), scope.KindUnit, name.Spelling, pos)
	p.unit.Scope = int(p.scope)
	p.vars = &p.unit.Vars

	if p.tok.Kind == lexer.Uses {
		if err := p.parseUses(); err != nil {
			return nil, err
		}
	}
	if err := p.parseDeclarations(false); err != nil {
		return nil, err
	}
	if err := p.checkPending(); err != nil {
		return nil, err
	}
	body, err := p.parseCompound(false)
	if err != nil {
		return nil, err
	}
	p.unit.Body = body
	p.arena.Close(p.scope, p.tok.Pos)
	if _, err := p.expect(lexer.Period); err != nil {
		return nil, err
	}
	p.unit.Units = append([]*ast.CodeUnit(nil), p.order...)
	p.unit.Libraries = libraryNames(p.active)
	return p.unit, nil
}

func (p *fileParser) parseUnit() (*ast.CodeUnit, error) {
	pos := p.tok.Pos
	if _, err := p.expect(lexer.Unit); err != nil {
		return nil, err
	}
	tok, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	name := ast.NewName(tok.Lexeme)
	p.unit = ast.NewCodeUnit(pos, name, true)
	p.scope = p.arena.Push(p.arena.Root(), scope.KindUnit, name.Spelling, pos)
	p.unit.Scope = int(p.scope)
	p.prefix = name.Key() + "."
	p.vars = &p.unit.Vars

	if _, err := p.expect(lexer.Interface); err != nil {
		return nil, err
	}
	if p.tok.Kind == lexer.Uses {
		if err := p.parseUses(); err != nil {
			return nil, err
		}
	}
	if err := p.parseDeclarations(true); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Implementation); err != nil {
		return nil, err
	}
	if p.tok.Kind == lexer.Uses {
		if err := p.parseUses(); err != nil {
			return nil, err
		}
	}
	if err := p.parseDeclarations(false); err != nil {
		return nil, err
	}
	if err := p.checkPending(); err != nil {
		return nil, err
	}

	switch p.tok.Kind {
	case lexer.Initialization, lexer.Begin:
		start := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		body, err := p.parseStatementList(lexer.End)
		if err != nil {
			return nil, err
		}
		p.unit.Body = ast.NewBlock(start, nil, body, int(p.scope))
	default:
		p.unit.Body = ast.NewBlock(p.tok.Pos, nil, nil, int(p.scope))
	}
	p.arena.Close(p.scope, p.tok.Pos)
	if _, err := p.expect(lexer.End); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Period); err != nil {
		return nil, err
	}
	p.unit.Libraries = libraryNames(p.active)
	return p.unit, nil
}

// parseUses activates builtin libraries and loads source units.
func (p *fileParser) parseUses() error {
	if _, err := p.expect(lexer.Uses); err != nil {
		return err
	}
	for {
		tok, err := p.expect(lexer.Identifier)
		if err != nil {
			return err
		}
		if err := p.use(tok); err != nil {
			return err
		}
		if !p.accept(lexer.Comma) {
			break
		}
	}
	_, err := p.expect(lexer.Semicolon)
	return err
}

func (p *fileParser) use(tok lexer.Token) error {
	name := ast.NewName(tok.Lexeme)
	if lib, ok := p.registry.Library(tok.Lexeme); ok {
		for _, active := range p.active {
			if active == lib {
				return nil
			}
		}
		p.active = append(p.active, lib)
		p.declareLibrary(p.scope, lib)
		return nil
	}
	loaded, err := p.loadUnit(name, tok.Pos)
	if err != nil {
		return err
	}
	p.arena.Import(p.scope, loaded.scope)
	for _, lib := range loaded.libs {
		if lib == p.registry.System() {
			continue
		}
		found := false
		for _, active := range p.active {
			if active == lib {
				found = true
				break
			}
		}
		if !found {
			p.active = append(p.active, lib)
		}
	}
	return nil
}

func (p *Parser) loadUnit(name ast.Name, pos source.LineInfo) (*loadedUnit, error) {
	if lu, ok := p.loaded[name.Key()]; ok {
		return lu, nil
	}
	if p.loading[name.Key()] {
		return nil, diag.NewParsingKind(diag.KindUnknownUnit, pos, "circular reference to unit %q", name.Spelling)
	}
	if p.units == nil {
		return nil, diag.NewParsingKind(diag.KindUnknownUnit, pos, "unknown unit %q", name.Spelling)
	}
	src, err := p.units.ResolveUnit(name.Spelling)
	if err != nil {
		return nil, &diag.ParsingError{ErrKind: diag.KindUnknownUnit, Pos: pos, Msg: fmt.Sprintf("cannot load unit %q: %v", name.Spelling, err)}
	}
	p.loading[name.Key()] = true
	defer delete(p.loading, name.Key())

	p.logger.Debug("loading unit", "unit", name.Spelling, "source", src.Name)
	fp := &fileParser{
		Parser: p,
		lex:    lexer.New(src),
		active: []*builtins.Library{p.registry.System()},
	}
	if err := fp.advance(); err != nil {
		return nil, err
	}
	if fp.tok.Kind != lexer.Unit {
		return nil, diag.NewParsingKind(diag.KindUnknownUnit, pos, "%s is not a unit", src.Name)
	}
	unit, err := fp.parseUnit()
	if err != nil {
		return nil, err
	}
	if !unit.Name.Equal(name) {
		return nil, diag.NewParsingKind(diag.KindUnknownUnit, pos, "unit %q declares itself as %q", name.Spelling, unit.Name.Spelling)
	}
	lu := &loadedUnit{unit: unit, scope: scope.ID(unit.Scope), libs: fp.active}
	p.loaded[name.Key()] = lu
	p.order = append(p.order, unit)
	return lu, nil
}

// declareLibrary enters a library's constants and types into context id.
func (p *Parser) declareLibrary(id scope.ID, lib *builtins.Library) {
	for _, c := range lib.Consts {
		name := ast.NewName(c.Name)
		decl := ast.NewConstDecl(source.LineInfo{}, name, c.Type, c.Value)
		_ = p.arena.Declare(id, &scope.Declaration{Kind: scope.DeclConst, Name: name, Type: c.Type, Const: decl})
	}
	for _, t := range lib.Types {
		name := ast.NewName(t.Name)
		_ = p.arena.Declare(id, &scope.Declaration{Kind: scope.DeclType, Name: name, Type: t.Type})
	}
}

func (p *fileParser) checkPending() error {
	for _, fn := range p.pending {
		if !fn.Defined() {
			return diag.NewParsing(fn.Pos, "forward declaration of %q has no implementation", fn.Name.Spelling)
		}
	}
	p.pending = nil
	return nil
}

func libraryNames(libs []*builtins.Library) []string {
	out := make([]string, 0, len(libs))
	for _, lib := range libs {
		out = append(out, lib.Name)
	}
	return out
}
