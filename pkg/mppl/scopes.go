package mppl

import (
	"mppl.dev/mpplc/pkg/utils"
)

// The scope stack used during name resolution. Each frame owns a table from
// name to the binding declared at that depth; lookup walks frames top-down,
// so an inner binding shadows an outer one without bookkeeping and popping a
// frame reinstates whatever the outer frames hold.
type scopeFrame struct {
	bindings map[string]*Binding
	order    []*Binding // Declaration order, kept for deterministic events
}

type scopeStack struct {
	frames utils.Stack[*scopeFrame]
}

func (s *scopeStack) push() {
	s.frames.Push(&scopeFrame{bindings: map[string]*Binding{}})
}

func (s *scopeStack) pop() *scopeFrame {
	frame, err := s.frames.Pop()
	if err != nil {
		return nil
	}
	return frame
}

// define registers the binding in the top frame. A same-depth clash returns
// the earlier binding; a different-depth clash is plain shadowing.
func (s *scopeStack) define(b *Binding) (previous *Binding) {
	top, err := s.frames.Top()
	if err != nil {
		return nil
	}
	if existing, ok := top.bindings[b.Name]; ok {
		return existing
	}
	top.bindings[b.Name] = b
	top.order = append(top.order, b)
	return nil
}

// lookup walks the stack top-down and returns the innermost binding.
func (s *scopeStack) lookup(name string) *Binding {
	for depth := 0; depth < s.frames.Count(); depth++ {
		frame, _ := s.frames.FromTop(depth)
		if b, ok := frame.bindings[name]; ok {
			return b
		}
	}
	return nil
}
