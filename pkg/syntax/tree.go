package syntax

import (
	"fmt"
	"io"
	"strings"
)

// ----------------------------------------------------------------------------
// Syntax tree view

// A SyntaxTree layers {parent, absolute offset} over a shared raw node. Views
// are created on demand while walking and share the underlying raw tree, so
// the resolver, the checker and the printers can all hold them at once. The
// parent link is a plain back-reference: raw nodes never point downward into
// views, so no cycle outlives a walk.
type SyntaxTree struct {
	raw    RawNode
	parent *SyntaxTree
	offset int // Absolute byte offset of the node start, trivia included
}

// NewSyntaxTree roots a view over a finished raw tree.
func NewSyntaxTree(root *RawTree) *SyntaxTree {
	return &SyntaxTree{raw: root}
}

func (st *SyntaxTree) Raw() RawNode        { return st.raw }
func (st *SyntaxTree) Parent() *SyntaxTree { return st.parent }

// Offset is the absolute start of the node, including leading trivia.
func (st *SyntaxTree) Offset() int { return st.offset }

func (st *SyntaxTree) Length() int { return st.raw.TextLength() }

func (st *SyntaxTree) Kind() Kind {
	switch n := st.raw.(type) {
	case *RawToken:
		return n.Kind
	case *RawTree:
		return n.Kind
	}
	return KindError
}

func (st *SyntaxTree) IsToken() bool {
	_, ok := st.raw.(*RawToken)
	return ok
}

// Text returns a token's lexeme without its leading trivia. Inner nodes
// report the empty string; use RawText for full reconstruction.
func (st *SyntaxTree) Text() string {
	if tok, ok := st.raw.(*RawToken); ok {
		return tok.Text
	}
	return ""
}

// TextOffset is the absolute start of a token's lexeme, after leading trivia.
// This is the position diagnostics point at.
func (st *SyntaxTree) TextOffset() int {
	if tok, ok := st.raw.(*RawToken); ok {
		return st.offset + tok.TextOffsetWithin()
	}
	return st.offset
}

// TextEnd is the absolute end of a token's lexeme.
func (st *SyntaxTree) TextEnd() int {
	if tok, ok := st.raw.(*RawToken); ok {
		return st.offset + tok.TextLength()
	}
	return st.offset + st.Length()
}

// ChildCount reports the number of child slots, empty ones included.
func (st *SyntaxTree) ChildCount() int {
	if tree, ok := st.raw.(*RawTree); ok {
		return len(tree.Children)
	}
	return 0
}

// Child returns a view over the i-th child slot, nil when the slot is empty,
// out of range, or the node is a token. Tolerating bogus shapes here is what
// makes the typed accessors total on malformed input.
func (st *SyntaxTree) Child(i int) *SyntaxTree {
	tree, ok := st.raw.(*RawTree)
	if !ok || i < 0 || i >= len(tree.Children) {
		return nil
	}
	if tree.Children[i] == nil {
		return nil
	}

	offset := st.offset
	for _, sibling := range tree.Children[:i] {
		if sibling != nil {
			offset += sibling.TextLength()
		}
	}
	return &SyntaxTree{raw: tree.Children[i], parent: st, offset: offset}
}

// Children returns views over the non-empty child slots in order.
func (st *SyntaxTree) Children() []*SyntaxTree {
	tree, ok := st.raw.(*RawTree)
	if !ok {
		return nil
	}

	views := make([]*SyntaxTree, 0, len(tree.Children))
	offset := st.offset
	for _, child := range tree.Children {
		if child == nil {
			continue
		}
		views = append(views, &SyntaxTree{raw: child, parent: st, offset: offset})
		offset += child.TextLength()
	}
	return views
}

// FirstToken returns the leftmost token view beneath the node (itself for
// tokens), nil for a tree of empty slots.
func (st *SyntaxTree) FirstToken() *SyntaxTree {
	if st.IsToken() {
		return st
	}
	for _, child := range st.Children() {
		if tok := child.FirstToken(); tok != nil {
			return tok
		}
	}
	return nil
}

// LastToken mirrors FirstToken on the right edge.
func (st *SyntaxTree) LastToken() *SyntaxTree {
	if st.IsToken() {
		return st
	}
	children := st.Children()
	for i := len(children) - 1; i >= 0; i-- {
		if tok := children[i].LastToken(); tok != nil {
			return tok
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// Dump

// Dump prints the tree as an indented kind listing, tokens with their quoted
// lexeme. The shape backs --dump-syntax.
func (st *SyntaxTree) Dump(w io.Writer) {
	st.dump(w, 0)
}

func (st *SyntaxTree) dump(w io.Writer, depth int) {
	indent := strings.Repeat("  ", depth)

	if tok, ok := st.raw.(*RawToken); ok {
		for _, piece := range tok.Trivia.Pieces {
			fmt.Fprintf(w, "%s%s(%d)\n", indent, piece.Kind, piece.Length)
		}
		fmt.Fprintf(w, "%s%s %q @ %d..%d\n", indent, tok.Kind, tok.Text,
			st.TextOffset(), st.TextEnd())
		return
	}

	fmt.Fprintf(w, "%s%s @ %d..%d\n", indent, st.Kind(), st.offset, st.offset+st.Length())
	for _, child := range st.Children() {
		child.dump(w, depth+1)
	}
}
