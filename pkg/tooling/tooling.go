// Package tooling serves compile-only requests: syntax checks and
// identifier completion. Requests never execute program code and refuse
// sources above a size ceiling.
package tooling

import (
	"errors"
	"fmt"
	"log/slog"

	"pascal/interpreter-go/pkg/builtins"
	"pascal/interpreter-go/pkg/parser"
	"pascal/interpreter-go/pkg/source"
)

// DefaultSourceLimit is the largest source, in bytes, a request accepts
// when Options leaves the limit unset.
const DefaultSourceLimit = 1 << 20

// ErrSourceTooLarge is returned for sources above the configured limit.
var ErrSourceTooLarge = errors.New("source exceeds check limit")

// Options configure a Service.
type Options struct {
	Registry *builtins.Registry
	Units    parser.UnitResolver
	Logger   *slog.Logger
	// SourceLimit bounds request size in bytes. Zero selects
	// DefaultSourceLimit; a negative value disables the bound.
	SourceLimit int
	// CacheSize bounds the number of remembered check results. Zero
	// disables caching.
	CacheSize int
}

// Service answers tooling requests against one builtin registry.
type Service struct {
	registry *builtins.Registry
	units    parser.UnitResolver
	logger   *slog.Logger
	limit    int
	cache    *Cache
}

// New returns a Service configured by opts.
func New(opts Options) *Service {
	if opts.Registry == nil {
		opts.Registry = builtins.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.SourceLimit == 0 {
		opts.SourceLimit = DefaultSourceLimit
	}
	return &Service{
		registry: opts.Registry,
		units:    opts.Units,
		logger:   opts.Logger,
		limit:    opts.SourceLimit,
		cache:    NewCache(opts.CacheSize),
	}
}

// Cache exposes the check result cache.
func (s *Service) Cache() *Cache { return s.cache }

func (s *Service) parserOptions() parser.Options {
	return parser.Options{Registry: s.registry, Units: s.units, Logger: s.logger}
}

func (s *Service) admit(src source.Source) error {
	if s.limit >= 0 && len(src.Text) > s.limit {
		s.logger.Warn("tooling request refused", "source", src.Name, "bytes", len(src.Text), "limit", s.limit)
		return fmt.Errorf("tooling: %s: %w (%d > %d bytes)", src.Name, ErrSourceTooLarge, len(src.Text), s.limit)
	}
	return nil
}
