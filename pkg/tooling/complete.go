package tooling

import (
	"sort"
	"strings"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/builtins"
	"pascal/interpreter-go/pkg/parser"
	"pascal/interpreter-go/pkg/scope"
	"pascal/interpreter-go/pkg/source"
)

// Complete lists the identifiers visible at pos whose names start with
// prefix, compared case-insensitively. Sources that fail to parse still
// complete against the declarations read before the failure. Builtin
// constants and routines of the system library, and of any library the
// program uses, follow the declared symbols.
func (s *Service) Complete(src source.Source, pos source.LineInfo, prefix string) ([]scope.Symbol, error) {
	if err := s.admit(src); err != nil {
		return nil, err
	}
	unit, arena, err := parser.ParseWithScopes(src, s.parserOptions())
	if err != nil {
		s.logger.Debug("completing incomplete source", "source", src.Name, "error", err)
	}
	if pos.Unit == "" {
		pos.Unit = src.Name
	}
	want := ast.Fold(prefix)
	match := func(name string) bool { return strings.HasPrefix(ast.Fold(name), want) }

	seen := make(map[string]bool)
	var out []scope.Symbol
	for _, sym := range arena.Visible(arena.Innermost(pos)) {
		seen[ast.Fold(sym.Name)] = true
		if match(sym.Name) {
			out = append(out, sym)
		}
	}

	libs := []*builtins.Library{s.registry.System()}
	if unit != nil {
		for _, name := range unit.Libraries {
			if lib, ok := s.registry.Library(name); ok {
				libs = append(libs, lib)
			}
		}
	}
	var extra []scope.Symbol
	for _, lib := range libs {
		for _, c := range lib.Consts {
			key := ast.Fold(c.Name)
			if seen[key] || !match(c.Name) {
				continue
			}
			seen[key] = true
			extra = append(extra, scope.Symbol{Name: c.Name, Kind: scope.DeclConst, Type: c.Type.Name()})
		}
		for _, name := range lib.FunctionNames() {
			key := ast.Fold(name)
			if seen[key] || !match(name) {
				continue
			}
			seen[key] = true
			sym := scope.Symbol{Name: name, Kind: scope.DeclFunction}
			if fn := lib.Functions(name)[0]; fn.Result != nil {
				sym.Type = fn.Result.Name()
			}
			extra = append(extra, sym)
		}
	}
	sort.SliceStable(extra, func(i, j int) bool { return ast.Fold(extra[i].Name) < ast.Fold(extra[j].Name) })
	return append(out, extra...), nil
}
