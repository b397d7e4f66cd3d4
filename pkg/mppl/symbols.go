package mppl

import (
	"mppl.dev/mpplc/pkg/utils"
)

// ----------------------------------------------------------------------------
// Symbols

// The symbol interner: one canonical copy per distinct identifier spelling,
// hashed with FNV-1a over the bytes. Every binding name in a compilation
// goes through here, so equal names share storage and the many per-binding
// comparisons the resolver does stay cheap.
type Symbols struct {
	table *utils.Table[string, string]
}

func NewSymbols() *Symbols {
	return &Symbols{
		table: utils.NewTable[string, string](utils.HashString,
			func(a, b string) bool { return a == b }),
	}
}

// Intern returns the canonical copy of 'name'.
func (s *Symbols) Intern(name string) string {
	return s.table.Insert(name, name)
}

// Len reports how many distinct symbols have been interned.
func (s *Symbols) Len() int { return s.table.Len() }
