package tooling

import (
	"pascal/interpreter-go/pkg/parser"
	"pascal/interpreter-go/pkg/source"
)

// Check parses src and the units it uses and returns the first lexical or
// parse diagnostic, or nil for a well-formed program. Results for
// identical sources are served from the cache.
func (s *Service) Check(src source.Source) error {
	if err := s.admit(src); err != nil {
		return err
	}
	key := KeyOf(src)
	if res, ok := s.cache.Get(key); ok {
		s.logger.Debug("check cache hit", "source", src.Name)
		return res.Err
	}
	unit, err := parser.Parse(src, s.parserOptions())
	res := Result{Err: err}
	if unit != nil {
		res.Program = unit.Name.Spelling
		res.Units = len(unit.Units)
	}
	s.cache.Put(key, res)
	s.logger.Debug("checked source", "source", src.Name, "ok", err == nil)
	return err
}

// CheckAll checks every source and returns the diagnostics keyed by
// source name. Well-formed sources are absent from the result.
func (s *Service) CheckAll(srcs []source.Source) map[string]error {
	out := make(map[string]error)
	for _, src := range srcs {
		if err := s.Check(src); err != nil {
			out[src.Name] = err
		}
	}
	return out
}
