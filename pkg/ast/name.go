package ast

import "golang.org/x/text/cases"

// Name is a case-insensitive identifier. Equality uses the folded key; the
// declared spelling is kept for diagnostics.
type Name struct {
	Spelling string
	key      string
}

func NewName(spelling string) Name {
	return Name{Spelling: spelling, key: Fold(spelling)}
}

// Fold returns the comparison key of an identifier.
func Fold(s string) string {
	return cases.Fold().String(s)
}

func (n Name) Key() string { return n.key }

func (n Name) String() string { return n.Spelling }

func (n Name) Equal(other Name) bool { return n.key == other.key }

func (n Name) IsZero() bool { return n.key == "" }
