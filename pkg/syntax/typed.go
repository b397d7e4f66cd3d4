package syntax

// ----------------------------------------------------------------------------
// Typed view

// A thin read-only projection over raw trees: one wrapper per production with
// named child accessors. Accessors are total on the grammar and tolerant of
// bogus subtrees; a missing or malformed child simply comes back nil and the
// caller skips it, which is how every later stage survives recovery nodes.
//
// Slot layouts are a contract with the parser:
//
//	PROGRAM        program kw, ident, semi, decl parts..., COMP_STMT, dot, EOF
//	VAR_DECL_PART  var kw, (VAR_DECL, semi)...
//	VAR_DECL       ident (comma ident)..., colon, type
//	ARRAY_TYPE     array, [, number, ], of, base type
//	PROC_DECL      procedure, ident, params?, semi, vars?, COMP_STMT, semi
//	FML_PARAM_LIST (, FML_PARAM_SEC (semi FML_PARAM_SEC)..., )
//	FML_PARAM_SEC  ident (comma ident)..., colon, type
//	COMP_STMT      begin, stmt? (semi stmt?)..., end
//	IF_STMT        if, expr, then, stmt, else?, stmt?
//	WHILE_STMT     while, expr, do, stmt
//	CALL_STMT      call, ident, ACT_PARAM_LIST?
//	INPUT_STMT     read/readln, INPUT_LIST?
//	OUTPUT_STMT    write/writeln, OUTPUT_LIST?
//	OUTPUT_VALUE   expr, colon?, number?
//	BINARY_EXPR    lhs?, op, rhs (lhs empty for unary +/-)
//	INDEXED_VAR    ident, [, expr, ]
//	CAST_EXPR      type kw, (, expr, )

type Program struct{ Node *SyntaxTree }
type VarDeclPart struct{ Node *SyntaxTree }
type VarDecl struct{ Node *SyntaxTree }
type ArrayType struct{ Node *SyntaxTree }
type ProcDecl struct{ Node *SyntaxTree }
type FmlParamList struct{ Node *SyntaxTree }
type FmlParamSec struct{ Node *SyntaxTree }
type CompStmt struct{ Node *SyntaxTree }
type AssignStmt struct{ Node *SyntaxTree }
type IfStmt struct{ Node *SyntaxTree }
type WhileStmt struct{ Node *SyntaxTree }
type CallStmt struct{ Node *SyntaxTree }
type ActParamList struct{ Node *SyntaxTree }
type InputStmt struct{ Node *SyntaxTree }
type InputList struct{ Node *SyntaxTree }
type OutputStmt struct{ Node *SyntaxTree }
type OutputList struct{ Node *SyntaxTree }
type OutputValue struct{ Node *SyntaxTree }
type EntireVar struct{ Node *SyntaxTree }
type IndexedVar struct{ Node *SyntaxTree }
type BinaryExpr struct{ Node *SyntaxTree }
type ParenExpr struct{ Node *SyntaxTree }
type NotExpr struct{ Node *SyntaxTree }
type CastExpr struct{ Node *SyntaxTree }

// childToken returns the i-th child only when it is a token of 'kind'.
func childToken(n *SyntaxTree, i int, kind Kind) *SyntaxTree {
	child := n.Child(i)
	if child == nil || child.Kind() != kind {
		return nil
	}
	return child
}

// childrenOf collects the children satisfying 'pred', in order.
func childrenOf(n *SyntaxTree, pred func(Kind) bool) []*SyntaxTree {
	if n == nil {
		return nil
	}
	var out []*SyntaxTree
	for _, child := range n.Children() {
		if pred(child.Kind()) {
			out = append(out, child)
		}
	}
	return out
}

func (p Program) Name() *SyntaxTree { return childToken(p.Node, 1, KindIdentToken) }

func (p Program) DeclParts() []*SyntaxTree {
	return childrenOf(p.Node, func(k Kind) bool {
		return k == KindVarDeclPart || k == KindProcDecl
	})
}

func (p Program) Body() *SyntaxTree {
	for _, child := range p.Node.Children() {
		if child.Kind() == KindCompStmt {
			return child
		}
	}
	return nil
}

func (v VarDeclPart) Decls() []*SyntaxTree {
	return childrenOf(v.Node, func(k Kind) bool { return k == KindVarDecl })
}

func (v VarDecl) Names() []*SyntaxTree {
	return childrenOf(v.Node, func(k Kind) bool { return k == KindIdentToken })
}

// Type returns the declared type node: a type keyword token or an ARRAY_TYPE.
func (v VarDecl) Type() *SyntaxTree { return typeChild(v.Node) }

func typeChild(n *SyntaxTree) *SyntaxTree {
	if n == nil {
		return nil
	}
	for _, child := range n.Children() {
		switch child.Kind() {
		case KindIntegerKw, KindBooleanKw, KindCharKw, KindArrayType:
			return child
		}
	}
	return nil
}

func (a ArrayType) Length() *SyntaxTree { return childToken(a.Node, 2, KindNumberLit) }
func (a ArrayType) Base() *SyntaxTree {
	child := a.Node.Child(5)
	if child == nil {
		return nil
	}
	switch child.Kind() {
	case KindIntegerKw, KindBooleanKw, KindCharKw:
		return child
	}
	return nil
}

func (p ProcDecl) Name() *SyntaxTree { return childToken(p.Node, 1, KindIdentToken) }

func (p ProcDecl) Params() *SyntaxTree {
	child := p.Node.Child(2)
	if child == nil || child.Kind() != KindFmlParamList {
		return nil
	}
	return child
}

func (p ProcDecl) Vars() *SyntaxTree {
	child := p.Node.Child(4)
	if child == nil || child.Kind() != KindVarDeclPart {
		return nil
	}
	return child
}

func (p ProcDecl) Body() *SyntaxTree {
	child := p.Node.Child(5)
	if child == nil || child.Kind() != KindCompStmt {
		return nil
	}
	return child
}

func (f FmlParamList) Sections() []*SyntaxTree {
	return childrenOf(f.Node, func(k Kind) bool { return k == KindFmlParamSec })
}

func (f FmlParamSec) Names() []*SyntaxTree {
	return childrenOf(f.Node, func(k Kind) bool { return k == KindIdentToken })
}

func (f FmlParamSec) Type() *SyntaxTree { return typeChild(f.Node) }

// Stmts returns the statement children of a compound, recovery nodes
// included; empty statements left only a slot behind and do not appear.
func (c CompStmt) Stmts() []*SyntaxTree {
	return childrenOf(c.Node, func(k Kind) bool { return k.IsStmt() || k == KindError })
}

func (a AssignStmt) Lhs() *SyntaxTree { return a.Node.Child(0) }
func (a AssignStmt) Rhs() *SyntaxTree { return a.Node.Child(2) }

func (i IfStmt) Cond() *SyntaxTree { return i.Node.Child(1) }
func (i IfStmt) Then() *SyntaxTree { return i.Node.Child(3) }
func (i IfStmt) Else() *SyntaxTree { return i.Node.Child(5) }

func (w WhileStmt) Cond() *SyntaxTree { return w.Node.Child(1) }
func (w WhileStmt) Body() *SyntaxTree { return w.Node.Child(3) }

func (c CallStmt) Callee() *SyntaxTree { return childToken(c.Node, 1, KindIdentToken) }

func (c CallStmt) Args() []*SyntaxTree {
	child := c.Node.Child(2)
	if child == nil || child.Kind() != KindActParamList {
		return nil
	}
	return childrenOf(child, func(k Kind) bool { return k.IsExpr() || k == KindError })
}

// IsLn distinguishes readln/writeln from read/write on the I/O statements.
func (i InputStmt) IsLn() bool {
	kw := i.Node.Child(0)
	return kw != nil && kw.Kind() == KindReadLnKw
}

func (i InputStmt) Vars() []*SyntaxTree {
	child := i.Node.Child(1)
	if child == nil || child.Kind() != KindInputList {
		return nil
	}
	return childrenOf(child, func(k Kind) bool {
		return k == KindEntireVar || k == KindIndexedVar || k == KindError
	})
}

func (o OutputStmt) IsLn() bool {
	kw := o.Node.Child(0)
	return kw != nil && kw.Kind() == KindWriteLnKw
}

func (o OutputStmt) Values() []*SyntaxTree {
	child := o.Node.Child(1)
	if child == nil || child.Kind() != KindOutputList {
		return nil
	}
	return childrenOf(child, func(k Kind) bool { return k == KindOutputValue })
}

func (o OutputValue) Expr() *SyntaxTree { return o.Node.Child(0) }

// Width returns the number literal after the colon, nil when unformatted.
func (o OutputValue) Width() *SyntaxTree { return childToken(o.Node, 2, KindNumberLit) }

func (v EntireVar) Name() *SyntaxTree { return childToken(v.Node, 0, KindIdentToken) }

func (v IndexedVar) Name() *SyntaxTree  { return childToken(v.Node, 0, KindIdentToken) }
func (v IndexedVar) Index() *SyntaxTree { return v.Node.Child(2) }

func (b BinaryExpr) Lhs() *SyntaxTree { return b.Node.Child(0) }
func (b BinaryExpr) Op() *SyntaxTree  { return b.Node.Child(1) }
func (b BinaryExpr) Rhs() *SyntaxTree { return b.Node.Child(2) }

func (p ParenExpr) Inner() *SyntaxTree { return p.Node.Child(1) }

func (n NotExpr) Operand() *SyntaxTree { return n.Node.Child(1) }

func (c CastExpr) TypeKw() *SyntaxTree { return c.Node.Child(0) }
func (c CastExpr) Operand() *SyntaxTree { return c.Node.Child(2) }
