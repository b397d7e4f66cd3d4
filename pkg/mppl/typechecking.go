package mppl

import (
	"fmt"
	"strconv"

	"mppl.dev/mpplc/pkg/diag"
	"mppl.dev/mpplc/pkg/syntax"
	"mppl.dev/mpplc/pkg/utils"
)

// ----------------------------------------------------------------------------
// Type checker

// A single traversal that computes and records the type of every expression
// and binding. Each expression yields a Value triple {kind, type}: only an
// Lvalue is assignable, indexable or readable-into. Errors never stop the
// walk; a failed subexpression yields the Error value, which propagates
// outward without producing a second message for the same mistake.

type ValueKind int

const (
	ValueError ValueKind = iota
	ValueLvalue
	ValueRvalue
)

type Value struct {
	Kind ValueKind
	Type *Type
}

var errorValue = Value{Kind: ValueError}

func rvalue(t *Type) Value { return Value{Kind: ValueRvalue, Type: t} }
func lvalue(t *Type) Value { return Value{Kind: ValueLvalue, Type: t} }

// TypeInfo is the write-once record of the checking stage, keyed by raw node
// identity so any later view over the same tree reads the same answers.
type TypeInfo struct {
	exprs map[syntax.RawNode]Value
	defs  map[int]*Type // Defining identifier offset to declared type
}

// ValueOf returns the computed value of an expression node.
func (ti *TypeInfo) ValueOf(node *syntax.SyntaxTree) Value {
	if node == nil {
		return errorValue
	}
	if v, ok := ti.exprs[node.Raw()]; ok {
		return v
	}
	return errorValue
}

// TypeOf returns just the type half of ValueOf, nil on error.
func (ti *TypeInfo) TypeOf(node *syntax.SyntaxTree) *Type {
	return ti.ValueOf(node).Type
}

// DefType returns the declared type of the binding defined at 'offset'.
func (ti *TypeInfo) DefType(offset int) *Type { return ti.defs[offset] }

// spanOf is the diagnostic span of a node: lexeme start of its first token
// to lexeme end of its last, leading trivia excluded.
func spanOf(node *syntax.SyntaxTree) (int, int) {
	if node == nil {
		return 0, 0
	}
	start, end := node.Offset(), node.Offset()+node.Length()
	if tok := node.FirstToken(); tok != nil {
		start = tok.TextOffset()
	}
	if tok := node.LastToken(); tok != nil {
		end = tok.TextEnd()
	}
	return start, end
}

// errorAt builds an error diagnostic whose primary annotation is the node's
// lexeme span.
func errorAt(kind diag.Kind, node *syntax.SyntaxTree, message string) diag.Diagnostic {
	start, end := spanOf(node)
	return diag.Error(kind, start, end, message)
}

type Checker struct {
	types *Types
	sems  *Semantics
	bag   *diag.Bag
	info  *TypeInfo
	procs utils.Stack[*Binding] // Procedures whose declaration encloses us
}

// Check runs the checker over a resolved tree and returns the recorded type
// information together with the interner the types live in.
func Check(tree *syntax.SyntaxTree, sems *Semantics, bag *diag.Bag) (*TypeInfo, *Types) {
	c := &Checker{
		types: NewTypes(),
		sems:  sems,
		bag:   bag,
		info:  &TypeInfo{exprs: map[syntax.RawNode]Value{}, defs: map[int]*Type{}},
	}
	c.checkProgram(syntax.Program{Node: tree})
	return c.info, c.types
}

// ----------------------------------------------------------------------------
// Declarations

func (c *Checker) checkProgram(program syntax.Program) {
	for _, part := range program.DeclParts() {
		switch part.Kind() {
		case syntax.KindVarDeclPart:
			c.checkVarDeclPart(syntax.VarDeclPart{Node: part})
		case syntax.KindProcDecl:
			c.checkProcDecl(syntax.ProcDecl{Node: part})
		}
	}
	if body := program.Body(); body != nil {
		c.checkStmt(body)
	}
}

func (c *Checker) checkVarDeclPart(part syntax.VarDeclPart) {
	for _, decl := range part.Decls() {
		d := syntax.VarDecl{Node: decl}
		declared := c.declaredType(d.Type())
		for _, name := range d.Names() {
			c.info.defs[name.TextOffset()] = declared
		}
	}
}

func (c *Checker) checkProcDecl(decl syntax.ProcDecl) {
	var params []*Type

	if list := decl.Params(); list != nil {
		for _, sec := range (syntax.FmlParamList{Node: list}).Sections() {
			s := syntax.FmlParamSec{Node: sec}
			declared := c.declaredType(s.Type())

			if declared != nil && !declared.IsStandard() {
				node := s.Type()
				c.bag.Add(errorAt(diag.NonStandardType, node,
					fmt.Sprintf("parameter of non-standard type `%s`", declared)))
				declared = nil
			}
			for _, name := range s.Names() {
				c.info.defs[name.TextOffset()] = declared
				params = append(params, declared)
			}
		}
	}

	// The procedure's type is visible inside its own body so calls through
	// the name type-check; recursion is rejected separately.
	var binding *Binding
	if name := decl.Name(); name != nil {
		binding = c.sems.DefAt(name.TextOffset())
		c.info.defs[name.TextOffset()] = c.types.Proc(params)
	}

	if vars := decl.Vars(); vars != nil {
		c.checkVarDeclPart(syntax.VarDeclPart{Node: vars})
	}

	if binding != nil {
		c.procs.Push(binding)
		defer c.procs.Pop()
	}
	if body := decl.Body(); body != nil {
		c.checkStmt(body)
	}
}

// declaredType interprets a type node: a standard type keyword or an array
// form. A nil result means the node was bogus or the declaration is invalid;
// the names it covers check as errors without further messages.
func (c *Checker) declaredType(node *syntax.SyntaxTree) *Type {
	if node == nil {
		return nil
	}

	switch node.Kind() {
	case syntax.KindIntegerKw:
		return c.types.Integer()
	case syntax.KindBooleanKw:
		return c.types.Boolean()
	case syntax.KindCharKw:
		return c.types.Char()

	case syntax.KindArrayType:
		arr := syntax.ArrayType{Node: node}
		base := c.declaredType(arr.Base())
		if base == nil {
			return nil
		}

		lengthTok := arr.Length()
		if lengthTok == nil {
			return nil
		}
		length, err := strconv.Atoi(lengthTok.Text())
		if err != nil || length > MaxNumber {
			return nil // Already diagnosed by the lexer
		}
		if length < 1 {
			c.bag.Add(diag.Error(diag.ZeroSizedArray, lengthTok.TextOffset(),
				lengthTok.TextEnd(), "array length must be at least 1"))
			return nil
		}
		return c.types.Array(base, length)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Statements

func (c *Checker) checkStmt(stmt *syntax.SyntaxTree) {
	if stmt == nil {
		return
	}

	switch stmt.Kind() {
	case syntax.KindCompStmt:
		for _, inner := range (syntax.CompStmt{Node: stmt}).Stmts() {
			c.checkStmt(inner)
		}

	case syntax.KindAssignStmt:
		c.checkAssign(syntax.AssignStmt{Node: stmt})

	case syntax.KindIfStmt:
		s := syntax.IfStmt{Node: stmt}
		c.checkCondition(s.Cond())
		c.checkStmt(s.Then())
		c.checkStmt(s.Else())

	case syntax.KindWhileStmt:
		s := syntax.WhileStmt{Node: stmt}
		c.checkCondition(s.Cond())
		c.checkStmt(s.Body())

	case syntax.KindCallStmt:
		c.checkCall(syntax.CallStmt{Node: stmt})

	case syntax.KindInputStmt:
		c.checkInput(syntax.InputStmt{Node: stmt})

	case syntax.KindOutputStmt:
		c.checkOutput(syntax.OutputStmt{Node: stmt})

	case syntax.KindBreakStmt, syntax.KindReturnStmt:
		// Validated by the parser and always well typed.
	}
}

func (c *Checker) checkAssign(s syntax.AssignStmt) {
	lhs := c.checkExpr(s.Lhs())
	rhs := c.checkExpr(s.Rhs())
	if lhs.Kind == ValueError || rhs.Kind == ValueError {
		return
	}

	if lhs.Kind != ValueLvalue {
		node := s.Lhs()
		c.bag.Add(errorAt(diag.NonLvalueAssignment, node, "left side of `:=` is not assignable"))
		return
	}
	if !lhs.Type.IsStandard() {
		node := s.Lhs()
		c.bag.Add(errorAt(diag.MismatchedType, node,
			fmt.Sprintf("cannot assign to a value of type `%s`", lhs.Type)))
		return
	}
	if rhs.Type != lhs.Type {
		node := s.Rhs()
		c.bag.Add(errorAt(diag.MismatchedType, node,
			fmt.Sprintf("expected `%s`, found `%s`", lhs.Type, rhs.Type)))
	}
}

func (c *Checker) checkCondition(expr *syntax.SyntaxTree) {
	v := c.checkExpr(expr)
	if v.Kind == ValueError {
		return
	}
	if v.Type != c.types.Boolean() {
		c.bag.Add(errorAt(diag.MismatchedType, expr,
			fmt.Sprintf("expected `boolean`, found `%s`", v.Type)))
	}
}

func (c *Checker) checkCall(s syntax.CallStmt) {
	callee := s.Callee()
	if callee == nil {
		return
	}
	binding := c.sems.UseAt(callee.TextOffset())
	if binding == nil {
		return // Unresolved, already reported
	}

	calleeType := c.info.DefType(binding.DeclaredAt)
	if binding.Kind != BindingProc || calleeType == nil || calleeType.Kind != TypeProc {
		c.bag.Add(diag.Error(diag.NonProcedureInvocation, callee.TextOffset(),
			callee.TextEnd(), fmt.Sprintf("`%s` is not a procedure", binding.Name)))
		return
	}

	// Any procedure still being declared is off limits as a callee; this is
	// what rejects recursion at arbitrary nesting depth.
	for depth := 0; depth < c.procs.Count(); depth++ {
		enclosing, _ := c.procs.FromTop(depth)
		if enclosing == binding {
			c.bag.Add(diag.Error(diag.RecursiveCall, callee.TextOffset(),
				callee.TextEnd(),
				fmt.Sprintf("procedure `%s` calls itself", binding.Name)))
			return
		}
	}

	args := s.Args()
	if len(args) != len(calleeType.Params) {
		c.bag.Add(diag.Error(diag.MismatchedArgumentCount, callee.TextOffset(),
			callee.TextEnd(),
			fmt.Sprintf("`%s` takes %d arguments, %d were supplied",
				binding.Name, len(calleeType.Params), len(args))))
		// Arguments still get checked for their own problems.
	}

	for i, arg := range args {
		v := c.checkExpr(arg)
		if i >= len(calleeType.Params) || v.Kind == ValueError || calleeType.Params[i] == nil {
			continue
		}
		if v.Type != calleeType.Params[i] {
			c.bag.Add(errorAt(diag.MismatchedType, arg,
				fmt.Sprintf("expected `%s`, found `%s`", calleeType.Params[i], v.Type)))
		}
	}
}

func (c *Checker) checkInput(s syntax.InputStmt) {
	for _, target := range s.Vars() {
		v := c.checkExpr(target)
		if v.Kind == ValueError {
			continue
		}
		if v.Kind != ValueLvalue || (v.Type != c.types.Integer() && v.Type != c.types.Char()) {
			c.bag.Add(errorAt(diag.InvalidInput, target,
				"read targets must be integer or char variables"))
		}
	}
}

func (c *Checker) checkOutput(s syntax.OutputStmt) {
	for _, item := range s.Values() {
		value := syntax.OutputValue{Node: item}
		v := c.checkExpr(value.Expr())
		if v.Kind == ValueError {
			continue
		}

		switch {
		case v.Type.IsStandard():
			// Fine, with or without a width.

		case v.Type == c.types.String():
			if value.Width() != nil {
				c.bag.Add(errorAt(diag.InvalidOutput, item,
					"string output cannot take a field width"))
			}

		default:
			node := value.Expr()
			c.bag.Add(errorAt(diag.InvalidOutputValue, node,
				fmt.Sprintf("cannot write a value of type `%s`", v.Type)))
		}
	}
}

// ----------------------------------------------------------------------------
// Expressions

// checkExpr computes, records and returns the value of an expression node.
func (c *Checker) checkExpr(expr *syntax.SyntaxTree) Value {
	if expr == nil {
		return errorValue
	}
	v := c.exprValue(expr)
	c.info.exprs[expr.Raw()] = v
	return v
}

func (c *Checker) exprValue(expr *syntax.SyntaxTree) Value {
	switch expr.Kind() {
	case syntax.KindNumberLit:
		return rvalue(c.types.Integer())

	case syntax.KindTrueKw, syntax.KindFalseKw:
		return rvalue(c.types.Boolean())

	case syntax.KindStringLit:
		if StringContentLength(expr.Text()) == 1 {
			return rvalue(c.types.Char())
		}
		return rvalue(c.types.String())

	case syntax.KindEntireVar:
		return c.entireVarValue(syntax.EntireVar{Node: expr})

	case syntax.KindIndexedVar:
		return c.indexedVarValue(syntax.IndexedVar{Node: expr})

	case syntax.KindBinaryExpr:
		return c.binaryValue(syntax.BinaryExpr{Node: expr})

	case syntax.KindParenExpr:
		return c.checkExpr(syntax.ParenExpr{Node: expr}.Inner())

	case syntax.KindNotExpr:
		operand := syntax.NotExpr{Node: expr}.Operand()
		v := c.checkExpr(operand)
		if v.Kind == ValueError {
			return errorValue
		}
		if v.Type != c.types.Boolean() {
			c.bag.Add(errorAt(diag.MismatchedType, operand,
				fmt.Sprintf("expected `boolean`, found `%s`", v.Type)))
			return errorValue
		}
		return rvalue(c.types.Boolean())

	case syntax.KindCastExpr:
		return c.castValue(syntax.CastExpr{Node: expr})
	}
	return errorValue
}

func (c *Checker) entireVarValue(v syntax.EntireVar) Value {
	name := v.Name()
	if name == nil {
		return errorValue
	}
	binding := c.sems.UseAt(name.TextOffset())
	if binding == nil {
		return errorValue
	}
	declared := c.info.DefType(binding.DeclaredAt)
	if declared == nil {
		return errorValue
	}
	if binding.Kind == BindingProgram || binding.Kind == BindingProc {
		return rvalue(declared)
	}
	return lvalue(declared)
}

func (c *Checker) indexedVarValue(v syntax.IndexedVar) Value {
	name := v.Name()
	if name == nil {
		return errorValue
	}

	index := c.checkExpr(v.Index())
	if index.Kind != ValueError && index.Type != c.types.Integer() {
		node := v.Index()
		c.bag.Add(errorAt(diag.MismatchedType, node,
			fmt.Sprintf("expected `integer`, found `%s`", index.Type)))
	}

	binding := c.sems.UseAt(name.TextOffset())
	if binding == nil {
		return errorValue
	}
	declared := c.info.DefType(binding.DeclaredAt)
	if declared == nil {
		return errorValue
	}
	if declared.Kind != TypeArray {
		c.bag.Add(diag.Error(diag.NonArraySubscript, name.TextOffset(),
			name.TextEnd(),
			fmt.Sprintf("`%s` of type `%s` cannot be subscripted", binding.Name, declared)))
		return errorValue
	}
	return lvalue(declared.Base)
}

func (c *Checker) binaryValue(b syntax.BinaryExpr) Value {
	op := b.Op()
	if op == nil {
		return errorValue
	}

	lhsNode, rhsNode := b.Lhs(), b.Rhs()
	rhs := c.checkExpr(rhsNode)

	// Unary sign has an empty LHS slot.
	if lhsNode == nil {
		if rhs.Kind == ValueError {
			return errorValue
		}
		if rhs.Type != c.types.Integer() {
			c.bag.Add(errorAt(diag.MismatchedType, rhsNode,
				fmt.Sprintf("expected `integer`, found `%s`", rhs.Type)))
			return errorValue
		}
		return rvalue(c.types.Integer())
	}

	lhs := c.checkExpr(lhsNode)

	switch op.Kind() {
	case syntax.KindPlusToken, syntax.KindMinusToken, syntax.KindStarToken, syntax.KindDivKw:
		if !c.requireType(lhs, lhsNode, c.types.Integer()) ||
			!c.requireType(rhs, rhsNode, c.types.Integer()) {
			return errorValue
		}
		return rvalue(c.types.Integer())

	case syntax.KindAndKw, syntax.KindOrKw:
		if !c.requireType(lhs, lhsNode, c.types.Boolean()) ||
			!c.requireType(rhs, rhsNode, c.types.Boolean()) {
			return errorValue
		}
		return rvalue(c.types.Boolean())

	case syntax.KindEqualToken, syntax.KindNotEqToken, syntax.KindLessToken,
		syntax.KindLessEqToken, syntax.KindGreaterToken, syntax.KindGreaterEqToken:
		if lhs.Kind == ValueError || rhs.Kind == ValueError {
			return errorValue
		}
		if !lhs.Type.IsStandard() || lhs.Type != rhs.Type {
			c.bag.Add(errorAt(diag.MismatchedType, rhsNode,
				fmt.Sprintf("cannot compare `%s` with `%s`", lhs.Type, rhs.Type)))
			return errorValue
		}
		return rvalue(c.types.Boolean())
	}
	return errorValue
}

func (c *Checker) castValue(e syntax.CastExpr) Value {
	target := c.declaredType(e.TypeKw())
	operand := e.Operand()
	v := c.checkExpr(operand)
	if v.Kind == ValueError || target == nil {
		return errorValue
	}

	if !v.Type.IsStandard() {
		c.bag.Add(errorAt(diag.MismatchedType, operand,
			fmt.Sprintf("cannot cast a value of type `%s`", v.Type)))
		return errorValue
	}
	return rvalue(target)
}

func (c *Checker) requireType(v Value, node *syntax.SyntaxTree, want *Type) bool {
	if v.Kind == ValueError {
		return false
	}
	if v.Type != want {
		c.bag.Add(errorAt(diag.MismatchedType, node,
			fmt.Sprintf("expected `%s`, found `%s`", want, v.Type)))
		return false
	}
	return true
}

// ----------------------------------------------------------------------------
// String literals

// StringContentLength counts the denoted characters of a string lexeme,
// folding the doubled-quote escape. The surrounding quotes may be missing on
// recovered tokens.
func StringContentLength(lexeme string) int {
	return len(StringContent(lexeme))
}

// StringContent strips the quotes and resolves `''` to a single quote.
func StringContent(lexeme string) string {
	if len(lexeme) > 0 && lexeme[0] == '\'' {
		lexeme = lexeme[1:]
	}
	if len(lexeme) > 0 && lexeme[len(lexeme)-1] == '\'' {
		lexeme = lexeme[:len(lexeme)-1]
	}

	out := make([]byte, 0, len(lexeme))
	for i := 0; i < len(lexeme); i++ {
		if lexeme[i] == '\'' && i+1 < len(lexeme) && lexeme[i+1] == '\'' {
			i++
		}
		out = append(out, lexeme[i])
	}
	return string(out)
}
