package source

import (
	"fmt"
	"io"
	"os"
)

// LineInfo pinpoints a location in a source unit. Line and Column are 1-based.
type LineInfo struct {
	Unit   string
	Line   int
	Column int
}

// Pos builds a LineInfo without a unit name.
func Pos(line, column int) LineInfo {
	return LineInfo{Line: line, Column: column}
}

// IsZero reports whether the position was never set.
func (l LineInfo) IsZero() bool {
	return l.Line == 0 && l.Column == 0
}

func (l LineInfo) String() string {
	if l.Unit != "" {
		return fmt.Sprintf("%s:%d:%d", l.Unit, l.Line, l.Column)
	}
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// Source is a named piece of program text.
type Source struct {
	Name string
	Text string
}

// FromString wraps in-memory text.
func FromString(name, text string) Source {
	return Source{Name: name, Text: text}
}

// FromReader drains r into a Source.
func FromReader(name string, r io.Reader) (Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Source{}, fmt.Errorf("source: read %s: %w", name, err)
	}
	return Source{Name: name, Text: string(data)}, nil
}

// FromFile reads a file from disk.
func FromFile(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("source: open %s: %w", path, err)
	}
	return Source{Name: path, Text: string(data)}, nil
}
