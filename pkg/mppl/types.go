package mppl

import (
	"strconv"
	"strings"

	"mppl.dev/mpplc/pkg/utils"
)

// ----------------------------------------------------------------------------
// Types

// The type model is a tagged value interned by structure: two types equal by
// structure share one pointer, so equality downstream of the interner is a
// pointer comparison. String exists only for string literal expressions and
// is never storable; the standard types are Integer, Boolean and Char.

type TypeKind int

const (
	TypeInteger TypeKind = iota
	TypeBoolean
	TypeChar
	TypeString
	TypeArray
	TypeProc
)

type Type struct {
	Kind   TypeKind
	Base   *Type   // Array element type
	Length int     // Array length
	Params []*Type // Proc parameter types, in order
}

// IsStandard reports whether the type is one of Integer, Boolean, Char.
func (t *Type) IsStandard() bool {
	return t != nil && (t.Kind == TypeInteger || t.Kind == TypeBoolean || t.Kind == TypeChar)
}

func (t *Type) String() string {
	if t == nil {
		return "<error>"
	}
	switch t.Kind {
	case TypeInteger:
		return "integer"
	case TypeBoolean:
		return "boolean"
	case TypeChar:
		return "char"
	case TypeString:
		return "string"
	case TypeArray:
		var b strings.Builder
		b.WriteString("array[")
		b.WriteString(strconv.Itoa(t.Length))
		b.WriteString("] of ")
		b.WriteString(t.Base.String())
		return b.String()
	case TypeProc:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		return "procedure(" + strings.Join(parts, ", ") + ")"
	}
	return "<error>"
}

// ----------------------------------------------------------------------------
// Interner

// Types hands out one canonical pointer per distinct structure. It shares
// the hopscotch table with the symbol and constant interners but plugs in a
// structural hash that recurses into Array bases and Proc parameter lists;
// interned children make the recursion one pointer hash deep in practice.
type Types struct {
	table *utils.Table[*Type, *Type]

	integer *Type
	boolean *Type
	char    *Type
	str     *Type
}

func NewTypes() *Types {
	ts := &Types{table: utils.NewTable[*Type, *Type](hashType, equalType)}
	ts.integer = ts.intern(&Type{Kind: TypeInteger})
	ts.boolean = ts.intern(&Type{Kind: TypeBoolean})
	ts.char = ts.intern(&Type{Kind: TypeChar})
	ts.str = ts.intern(&Type{Kind: TypeString})
	return ts
}

func (ts *Types) intern(t *Type) *Type { return ts.table.Insert(t, t) }

func (ts *Types) Integer() *Type { return ts.integer }
func (ts *Types) Boolean() *Type { return ts.boolean }
func (ts *Types) Char() *Type    { return ts.char }
func (ts *Types) String() *Type  { return ts.str }

// Array interns array-of-base with the given element count.
func (ts *Types) Array(base *Type, length int) *Type {
	return ts.intern(&Type{Kind: TypeArray, Base: base, Length: length})
}

// Proc interns a procedure type over an ordered parameter list.
func (ts *Types) Proc(params []*Type) *Type {
	return ts.intern(&Type{Kind: TypeProc, Params: params})
}

func hashType(t *Type) uint64 {
	if t == nil {
		// A parameter of a rejected type is recorded as nil.
		return utils.HashString("type")
	}
	h := utils.HashUint64(utils.HashString("type"), uint64(t.Kind))
	switch t.Kind {
	case TypeArray:
		h = utils.HashUint64(h, uint64(t.Length))
		h = utils.HashUint64(h, hashType(t.Base))
	case TypeProc:
		for _, p := range t.Params {
			h = utils.HashUint64(h, hashType(p))
		}
	}
	return h
}

func equalType(a, b *Type) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case TypeArray:
		// Children are interned before the parent, pointer equality suffices.
		return a.Length == b.Length && a.Base == b.Base
	case TypeProc:
		if len(a.Params) != len(b.Params) {
			return false
		}
		for i := range a.Params {
			if a.Params[i] != b.Params[i] {
				return false
			}
		}
	}
	return true
}
