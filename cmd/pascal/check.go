package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pascal/interpreter-go/pkg/parser"
	"pascal/interpreter-go/pkg/source"
	"pascal/interpreter-go/pkg/tooling"
)

func (a *app) toolingService(loader parser.UnitResolver) *tooling.Service {
	return tooling.New(tooling.Options{
		Units:       loader,
		Logger:      a.logger,
		SourceLimit: a.cfg.CheckSourceLimit,
		CacheSize:   a.cfg.CacheSize,
	})
}

func (a *app) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check [file.pas...]",
		Short: "Report syntax and type errors without running",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, loader, err := a.sources(args)
			if err != nil {
				return err
			}
			svc := a.toolingService(loader)
			failed := 0
			for _, src := range srcs {
				err := svc.Check(src)
				switch {
				case err == nil:
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok  %s\n", src.Name)
				case errors.Is(err, tooling.ErrSourceTooLarge):
					failed++
					_, _ = fmt.Fprintf(a.stderr, "skipped %s: %v\n", src.Name, err)
				default:
					failed++
					_ = a.report(err, src)
				}
			}
			hits, misses := svc.Cache().Stats()
			a.logger.Debug("check finished", "sources", len(srcs), "failed", failed, "cache_hits", hits, "cache_misses", misses)
			if failed > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

func (a *app) completeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "complete file.pas LINE:COL [prefix]",
		Short: "List identifiers visible at a position",
		Long: `List the identifiers visible at LINE:COL of a program, one per line as
name, kind and type separated by tabs. The source need not compile.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parsePosition(args[1])
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 3 {
				prefix = args[2]
			}
			srcs, loader, err := a.sources(args[:1])
			if err != nil {
				return err
			}
			syms, err := a.toolingService(loader).Complete(srcs[0], pos, prefix)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, sym := range syms {
				_, _ = fmt.Fprintf(out, "%s\t%s\t%s\n", sym.Name, sym.Kind, sym.Type)
			}
			return nil
		},
	}
}

func parsePosition(s string) (source.LineInfo, error) {
	lineText, colText, found := strings.Cut(s, ":")
	line, err := strconv.Atoi(lineText)
	if err != nil || line < 1 {
		return source.LineInfo{}, fmt.Errorf("invalid position %q: want LINE:COL", s)
	}
	col := 1
	if found {
		col, err = strconv.Atoi(colText)
		if err != nil || col < 1 {
			return source.LineInfo{}, fmt.Errorf("invalid position %q: want LINE:COL", s)
		}
	}
	return source.Pos(line, col), nil
}
