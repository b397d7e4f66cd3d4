package mppl

import (
	"fmt"
	"sort"

	"mppl.dev/mpplc/pkg/diag"
	"mppl.dev/mpplc/pkg/syntax"
)

// ----------------------------------------------------------------------------
// Resolver

// The resolver walks the typed view depth-first and binds every identifier.
// Its only output is an ordered event stream: Define at each definition site,
// Use joining a use site to its definition, NotFound for a dangling name.
// The stream fully determines the symbol table, so resolution stays a pure
// function of the syntax tree and two runs over the same tree produce the
// same events in the same order.
//
// A separate builder (BuildSemantics below) joins the events back onto the
// tree to produce the record the later stages consume.

type EventKind int

const (
	EventDefine EventKind = iota
	EventUse
	EventNotFound
)

// An Event points at definition and use sites by the byte offset of the
// identifier token, the stable currency of the whole pipeline.
type Event struct {
	Kind       EventKind
	DeclaredAt int // Define, Use
	UsedAt     int // Use, NotFound
}

// BindingKind classifies what a definition site introduces.
type BindingKind int

const (
	BindingProgram BindingKind = iota
	BindingProc
	BindingVar
	BindingParam
	BindingLocalVar
)

func (k BindingKind) String() string {
	switch k {
	case BindingProgram:
		return "program"
	case BindingProc:
		return "procedure"
	case BindingVar:
		return "var"
	case BindingParam:
		return "param"
	default:
		return "local var"
	}
}

// A Binding is one resolved definition with every site that refers to it.
type Binding struct {
	Kind       BindingKind
	Name       string
	DeclaredAt int                // Offset of the defining identifier's lexeme
	Node       *syntax.SyntaxTree // The defining identifier token
	Refs       []int              // Use site offsets in source order
}

type resolver struct {
	scopes  scopeStack
	symbols *Symbols
	events  []Event
	bag     *diag.Bag
}

// Resolve binds every name in the tree and returns the event stream.
func Resolve(tree *syntax.SyntaxTree, bag *diag.Bag) []Event {
	r := &resolver{symbols: NewSymbols(), bag: bag}
	r.program(syntax.Program{Node: tree})
	return r.events
}

func (r *resolver) define(kind BindingKind, ident *syntax.SyntaxTree) {
	if ident == nil {
		return
	}
	b := &Binding{
		Kind:       kind,
		Name:       r.symbols.Intern(ident.Text()),
		DeclaredAt: ident.TextOffset(),
		Node:       ident,
	}

	if previous := r.scopes.define(b); previous != nil {
		r.bag.Add(diag.Error(diag.MultipleDefinition,
			ident.TextOffset(), ident.TextEnd(),
			fmt.Sprintf("`%s` is defined more than once", b.Name)).
			WithAnnotation(previous.DeclaredAt, previous.DeclaredAt+len(previous.Name),
				"first defined here"))
		return
	}
	r.events = append(r.events, Event{Kind: EventDefine, DeclaredAt: b.DeclaredAt})
}

func (r *resolver) use(ident *syntax.SyntaxTree) {
	if ident == nil {
		return
	}

	if b := r.scopes.lookup(ident.Text()); b != nil {
		r.events = append(r.events, Event{
			Kind:       EventUse,
			DeclaredAt: b.DeclaredAt,
			UsedAt:     ident.TextOffset(),
		})
		return
	}

	r.bag.Add(diag.Error(diag.NotDefined, ident.TextOffset(), ident.TextEnd(),
		fmt.Sprintf("`%s` is not defined", ident.Text())))
	r.events = append(r.events, Event{Kind: EventNotFound, UsedAt: ident.TextOffset()})
}

func (r *resolver) program(program syntax.Program) {
	r.scopes.push()
	defer r.scopes.pop()

	r.define(BindingProgram, program.Name())

	for _, part := range program.DeclParts() {
		switch part.Kind() {
		case syntax.KindVarDeclPart:
			r.varDeclPart(syntax.VarDeclPart{Node: part}, BindingVar)
		case syntax.KindProcDecl:
			r.procDecl(syntax.ProcDecl{Node: part})
		}
	}

	if body := program.Body(); body != nil {
		r.compStmt(syntax.CompStmt{Node: body})
	}
}

func (r *resolver) varDeclPart(part syntax.VarDeclPart, kind BindingKind) {
	for _, decl := range part.Decls() {
		for _, name := range (syntax.VarDecl{Node: decl}).Names() {
			r.define(kind, name)
		}
	}
}

func (r *resolver) procDecl(decl syntax.ProcDecl) {
	// The procedure's own name lives in the enclosing scope; everything else
	// goes into a fresh frame popped on the way out.
	r.define(BindingProc, decl.Name())

	r.scopes.push()
	defer r.scopes.pop()

	if params := decl.Params(); params != nil {
		for _, sec := range (syntax.FmlParamList{Node: params}).Sections() {
			for _, name := range (syntax.FmlParamSec{Node: sec}).Names() {
				r.define(BindingParam, name)
			}
		}
	}
	if vars := decl.Vars(); vars != nil {
		r.varDeclPart(syntax.VarDeclPart{Node: vars}, BindingLocalVar)
	}
	if body := decl.Body(); body != nil {
		r.compStmt(syntax.CompStmt{Node: body})
	}
}

func (r *resolver) compStmt(comp syntax.CompStmt) {
	for _, stmt := range comp.Stmts() {
		r.stmt(stmt)
	}
}

func (r *resolver) stmt(stmt *syntax.SyntaxTree) {
	if stmt == nil {
		return
	}

	switch stmt.Kind() {
	case syntax.KindAssignStmt:
		s := syntax.AssignStmt{Node: stmt}
		r.expr(s.Lhs())
		r.expr(s.Rhs())

	case syntax.KindIfStmt:
		s := syntax.IfStmt{Node: stmt}
		r.expr(s.Cond())
		r.stmt(s.Then())
		r.stmt(s.Else())

	case syntax.KindWhileStmt:
		s := syntax.WhileStmt{Node: stmt}
		r.expr(s.Cond())
		r.stmt(s.Body())

	case syntax.KindCallStmt:
		s := syntax.CallStmt{Node: stmt}
		r.use(s.Callee())
		for _, arg := range s.Args() {
			r.expr(arg)
		}

	case syntax.KindInputStmt:
		for _, v := range (syntax.InputStmt{Node: stmt}).Vars() {
			r.expr(v)
		}

	case syntax.KindOutputStmt:
		for _, value := range (syntax.OutputStmt{Node: stmt}).Values() {
			r.expr(syntax.OutputValue{Node: value}.Expr())
		}

	case syntax.KindCompStmt:
		r.compStmt(syntax.CompStmt{Node: stmt})
	}
}

func (r *resolver) expr(expr *syntax.SyntaxTree) {
	if expr == nil {
		return
	}

	switch expr.Kind() {
	case syntax.KindEntireVar:
		r.use(syntax.EntireVar{Node: expr}.Name())

	case syntax.KindIndexedVar:
		v := syntax.IndexedVar{Node: expr}
		r.use(v.Name())
		r.expr(v.Index())

	case syntax.KindBinaryExpr:
		b := syntax.BinaryExpr{Node: expr}
		r.expr(b.Lhs())
		r.expr(b.Rhs())

	case syntax.KindParenExpr:
		r.expr(syntax.ParenExpr{Node: expr}.Inner())

	case syntax.KindNotExpr:
		r.expr(syntax.NotExpr{Node: expr}.Operand())

	case syntax.KindCastExpr:
		r.expr(syntax.CastExpr{Node: expr}.Operand())
	}
}

// ----------------------------------------------------------------------------
// Semantics

// Semantics is the symbol table the checker, lowerer and cross-reference all
// read: every binding with its collected use sites, addressable by either
// end. The builder walks the tree once more to classify each definition
// site, then joins the event stream onto the collected bindings. Keeping the
// join out of the resolver means the resolver itself never owns a table.
type Semantics struct {
	Bindings []*Binding
	symbols  *Symbols
	defs     map[int]*Binding
	uses     map[int]*Binding
}

// BuildSemantics joins the resolver's event stream with the binding tokens
// collected from the tree.
func BuildSemantics(tree *syntax.SyntaxTree, events []Event) *Semantics {
	s := &Semantics{
		symbols: NewSymbols(),
		defs:    map[int]*Binding{},
		uses:    map[int]*Binding{},
	}
	s.collect(tree)

	for _, event := range events {
		switch event.Kind {
		case EventUse:
			if b, ok := s.defs[event.DeclaredAt]; ok {
				b.Refs = append(b.Refs, event.UsedAt)
				s.uses[event.UsedAt] = b
			}
		case EventDefine, EventNotFound:
			// Defines were collected from the tree; not-found sites stay
			// unmapped so later stages skip them.
		}
	}

	sort.SliceStable(s.Bindings, func(i, j int) bool {
		return s.Bindings[i].DeclaredAt < s.Bindings[j].DeclaredAt
	})
	return s
}

// DefAt returns the binding whose defining identifier starts at 'offset'.
func (s *Semantics) DefAt(offset int) *Binding { return s.defs[offset] }

// UseAt returns the binding referred to by the identifier at 'offset', nil
// for not-found sites.
func (s *Semantics) UseAt(offset int) *Binding { return s.uses[offset] }

func (s *Semantics) add(kind BindingKind, ident *syntax.SyntaxTree) {
	if ident == nil {
		return
	}
	if _, exists := s.defs[ident.TextOffset()]; exists {
		return
	}
	b := &Binding{
		Kind:       kind,
		Name:       s.symbols.Intern(ident.Text()),
		DeclaredAt: ident.TextOffset(),
		Node:       ident,
	}
	s.Bindings = append(s.Bindings, b)
	s.defs[b.DeclaredAt] = b
}

func (s *Semantics) collect(tree *syntax.SyntaxTree) {
	program := syntax.Program{Node: tree}
	s.add(BindingProgram, program.Name())

	for _, part := range program.DeclParts() {
		switch part.Kind() {
		case syntax.KindVarDeclPart:
			s.collectVars(syntax.VarDeclPart{Node: part}, BindingVar)

		case syntax.KindProcDecl:
			decl := syntax.ProcDecl{Node: part}
			s.add(BindingProc, decl.Name())
			if params := decl.Params(); params != nil {
				for _, sec := range (syntax.FmlParamList{Node: params}).Sections() {
					for _, name := range (syntax.FmlParamSec{Node: sec}).Names() {
						s.add(BindingParam, name)
					}
				}
			}
			if vars := decl.Vars(); vars != nil {
				s.collectVars(syntax.VarDeclPart{Node: vars}, BindingLocalVar)
			}
		}
	}
}

func (s *Semantics) collectVars(part syntax.VarDeclPart, kind BindingKind) {
	for _, decl := range part.Decls() {
		for _, name := range (syntax.VarDecl{Node: decl}).Names() {
			s.add(kind, name)
		}
	}
}
