package ir

import (
	"strconv"

	"fortio.org/safecast"

	"mppl.dev/mpplc/pkg/mppl"
	"mppl.dev/mpplc/pkg/syntax"
	"mppl.dev/mpplc/pkg/utils"
)

// ----------------------------------------------------------------------------
// Lowerer

// The Lowerer takes a checked syntax tree and produces one control-flow graph
// per Program/Proc body. It runs strictly after the checker; a shape it
// cannot lower is a compiler bug and panics rather than diagnosing.
//
// Expressions evaluate into fresh temps: an lvalue materializes a Place, an
// rvalue a Place over a temp after an Assign. The boolean connectives
// short-circuit through the CFG instead of evaluating both sides, and break
// statements target the innermost while's join block, tracked on a stack
// saved and restored around nested loops.
type Lowerer struct {
	sems  *mppl.Semantics
	info  *mppl.TypeInfo
	types *mppl.Types

	program *Program
	items   map[*mppl.Binding]*Item

	body   *Body
	block  *Block
	locals map[*Item]*Local
	breaks utils.Stack[*Block]

	nextBlock int
}

// Initializes and returns to the caller a brand new 'Lowerer' struct over the
// outputs of the resolver and checker.
func NewLowerer(sems *mppl.Semantics, info *mppl.TypeInfo, types *mppl.Types) *Lowerer {
	return &Lowerer{
		sems:  sems,
		info:  info,
		types: types,
		items: map[*mppl.Binding]*Item{},
	}
}

// Lower builds the whole IR program from the tree root.
func (lo *Lowerer) Lower(tree *syntax.SyntaxTree) *Program {
	lo.program = &Program{Constants: NewPool()}

	root := syntax.Program{Node: tree}

	// Items first, bodies second, so calls can reference any procedure item
	// while its body is still pending.
	programItem := lo.declareItem(root.Name(), ItemProgram, nil)
	for _, part := range root.DeclParts() {
		switch part.Kind() {
		case syntax.KindVarDeclPart:
			lo.declareVars(syntax.VarDeclPart{Node: part}, ItemVar)
		case syntax.KindProcDecl:
			lo.declareProc(syntax.ProcDecl{Node: part})
		}
	}

	for _, part := range root.DeclParts() {
		if part.Kind() != syntax.KindProcDecl {
			continue
		}
		decl := syntax.ProcDecl{Node: part}
		if name := decl.Name(); name != nil {
			if item := lo.itemAt(name.TextOffset()); item != nil {
				lo.lowerBody(item, decl.Body(), decl.Params())
			}
		}
	}
	if programItem != nil {
		lo.lowerBody(programItem, root.Body(), nil)
	}

	return lo.program
}

// ----------------------------------------------------------------------------
// Item construction

func (lo *Lowerer) declareItem(ident *syntax.SyntaxTree, kind ItemKind, t *mppl.Type) *Item {
	if ident == nil {
		return nil
	}
	binding := lo.sems.DefAt(ident.TextOffset())
	if binding == nil {
		return nil
	}

	item := &Item{
		Kind:       kind,
		Name:       binding.Name,
		DeclaredAt: binding.DeclaredAt,
		UsedAt:     binding.Refs,
		Type:       t,
	}
	lo.items[binding] = item
	lo.program.Items = append(lo.program.Items, item)
	return item
}

func (lo *Lowerer) declareVars(part syntax.VarDeclPart, kind ItemKind) {
	for _, decl := range part.Decls() {
		d := syntax.VarDecl{Node: decl}
		for _, name := range d.Names() {
			lo.declareItem(name, kind, lo.info.DefType(name.TextOffset()))
		}
	}
}

func (lo *Lowerer) declareProc(decl syntax.ProcDecl) {
	name := decl.Name()
	if name == nil {
		return
	}
	lo.declareItem(name, ItemProc, lo.info.DefType(name.TextOffset()))

	if params := decl.Params(); params != nil {
		for _, sec := range (syntax.FmlParamList{Node: params}).Sections() {
			for _, pname := range (syntax.FmlParamSec{Node: sec}).Names() {
				lo.declareItem(pname, ItemParam, lo.info.DefType(pname.TextOffset()))
			}
		}
	}
	if vars := decl.Vars(); vars != nil {
		lo.declareVars(syntax.VarDeclPart{Node: vars}, ItemLocalVar)
	}
}

func (lo *Lowerer) itemAt(declOffset int) *Item {
	binding := lo.sems.DefAt(declOffset)
	if binding == nil {
		return nil
	}
	return lo.items[binding]
}

// ----------------------------------------------------------------------------
// Body plumbing

func (lo *Lowerer) lowerBody(item *Item, body *syntax.SyntaxTree, params *syntax.SyntaxTree) {
	lo.body = &Body{Item: item}
	lo.locals = map[*Item]*Local{}
	lo.nextBlock = 0
	item.Body = lo.body

	entry := lo.newBlock()
	lo.body.Entry = entry
	lo.block = entry

	// Argument locals exist up front, in declaration order, because the
	// calling convention pops into them before the entry block runs.
	if params != nil {
		for _, sec := range (syntax.FmlParamList{Node: params}).Sections() {
			for _, pname := range (syntax.FmlParamSec{Node: sec}).Names() {
				if argItem := lo.itemAt(pname.TextOffset()); argItem != nil {
					lo.localFor(argItem)
				}
			}
		}
	}

	if body != nil {
		lo.lowerStmt(body)
	}
	// Every body ends with an implicit return on its final block.
	lo.terminate(Return{})
}

func (lo *Lowerer) newBlock() *Block {
	b := &Block{ID: lo.nextBlock}
	lo.nextBlock++
	lo.body.Blocks = append(lo.body.Blocks, b)
	return b
}

func (lo *Lowerer) emit(s Stmt) { lo.block.Stmts = append(lo.block.Stmts, s) }

// terminate closes the current block and leaves it current; the caller
// switches to a successor right after. Terminating an already closed block
// is a lowering bug.
func (lo *Lowerer) terminate(t Terminator) {
	if lo.block.Term != nil {
		panic("ir: block terminated twice")
	}
	lo.block.Term = t
}

func (lo *Lowerer) switchTo(b *Block) { lo.block = b }

func (lo *Lowerer) localFor(item *Item) *Local {
	if l, ok := lo.locals[item]; ok {
		return l
	}

	kind := LocalVar
	if item.Kind == ItemParam {
		kind = LocalArg
	}
	l := &Local{Kind: kind, Item: item, Type: item.Type, ID: len(lo.body.Locals)}
	lo.locals[item] = l
	lo.body.Locals = append(lo.body.Locals, l)
	return l
}

func (lo *Lowerer) newTemp(t *mppl.Type) *Local {
	if t == nil || t.Kind == mppl.TypeString {
		// String values never reach storage; the checker guarantees it.
		panic("ir: temp of non-storable type")
	}
	l := &Local{Kind: LocalTemp, Type: t, ID: len(lo.body.Locals)}
	lo.body.Locals = append(lo.body.Locals, l)
	return l
}

// ----------------------------------------------------------------------------
// Statements

func (lo *Lowerer) lowerStmt(stmt *syntax.SyntaxTree) {
	if stmt == nil {
		return
	}

	switch stmt.Kind() {
	case syntax.KindCompStmt:
		for _, inner := range (syntax.CompStmt{Node: stmt}).Stmts() {
			lo.lowerStmt(inner)
		}

	case syntax.KindAssignStmt:
		s := syntax.AssignStmt{Node: stmt}
		place := lo.lowerPlace(s.Lhs())
		value := lo.lowerRValue(s.Rhs())
		if place == nil || value == nil {
			return
		}
		lo.emit(Assign{Place: place, Value: value})

	case syntax.KindIfStmt:
		lo.lowerIf(syntax.IfStmt{Node: stmt})

	case syntax.KindWhileStmt:
		lo.lowerWhile(syntax.WhileStmt{Node: stmt})

	case syntax.KindBreakStmt:
		join, err := lo.breaks.Top()
		if err != nil {
			return // break outside a loop was already diagnosed; drop it
		}
		lo.terminate(Goto{Next: join})
		lo.switchTo(lo.newBlock()) // Unreachable continuation stays well formed

	case syntax.KindCallStmt:
		lo.lowerCall(syntax.CallStmt{Node: stmt})

	case syntax.KindReturnStmt:
		lo.terminate(Return{})
		lo.switchTo(lo.newBlock())

	case syntax.KindInputStmt:
		s := syntax.InputStmt{Node: stmt}
		for _, target := range s.Vars() {
			if place := lo.lowerPlace(target); place != nil {
				lo.emit(Read{Place: place})
			}
		}
		if s.IsLn() {
			lo.emit(ReadLn{})
		}

	case syntax.KindOutputStmt:
		s := syntax.OutputStmt{Node: stmt}
		for _, item := range s.Values() {
			lo.lowerOutputValue(syntax.OutputValue{Node: item})
		}
		if s.IsLn() {
			lo.emit(WriteLn{})
		}
	}
}

func (lo *Lowerer) lowerIf(s syntax.IfStmt) {
	cond := lo.lowerOperand(s.Cond())
	if cond == nil {
		cond = ConstOperand{Constant: lo.program.Constants.Boolean(false)}
	}

	thenBlock := lo.newBlock()
	join := lo.newBlock()

	if s.Else() != nil {
		elseBlock := lo.newBlock()
		lo.terminate(If{Cond: cond, Then: thenBlock, Else: elseBlock})

		lo.switchTo(thenBlock)
		lo.lowerStmt(s.Then())
		lo.terminate(Goto{Next: join})

		lo.switchTo(elseBlock)
		lo.lowerStmt(s.Else())
		lo.terminate(Goto{Next: join})
	} else {
		// Without an else the join doubles as the false edge.
		lo.terminate(If{Cond: cond, Then: thenBlock, Else: join})

		lo.switchTo(thenBlock)
		lo.lowerStmt(s.Then())
		lo.terminate(Goto{Next: join})
	}

	lo.switchTo(join)
}

func (lo *Lowerer) lowerWhile(s syntax.WhileStmt) {
	condBlock := lo.newBlock()
	lo.terminate(Goto{Next: condBlock})
	lo.switchTo(condBlock)

	cond := lo.lowerOperand(s.Cond())
	if cond == nil {
		cond = ConstOperand{Constant: lo.program.Constants.Boolean(false)}
	}

	bodyBlock := lo.newBlock()
	join := lo.newBlock()
	lo.terminate(If{Cond: cond, Then: bodyBlock, Else: join})

	lo.breaks.Push(join)
	lo.switchTo(bodyBlock)
	lo.lowerStmt(s.Body())
	lo.terminate(Goto{Next: condBlock})
	lo.breaks.Pop()

	lo.switchTo(join)
}

func (lo *Lowerer) lowerCall(s syntax.CallStmt) {
	callee := s.Callee()
	if callee == nil {
		return
	}
	binding := lo.sems.UseAt(callee.TextOffset())
	if binding == nil {
		return
	}
	proc := lo.items[binding]
	if proc == nil {
		return
	}

	// Argument addresses materialize right to left, matching the push order
	// of the generated code; the slice itself stays in source order.
	argNodes := s.Args()
	places := make([]*Place, len(argNodes))
	for i := len(argNodes) - 1; i >= 0; i-- {
		places[i] = lo.lowerArgPlace(argNodes[i])
	}
	for _, p := range places {
		if p == nil {
			return
		}
	}
	lo.emit(Call{Proc: proc, Args: places})
}

// lowerArgPlace produces the address of one call argument: a variable is
// passed as is, anything else evaluates into a temp whose address is passed.
func (lo *Lowerer) lowerArgPlace(expr *syntax.SyntaxTree) *Place {
	switch expr.Kind() {
	case syntax.KindEntireVar, syntax.KindIndexedVar:
		return lo.lowerPlace(expr)
	}

	value := lo.lowerRValue(expr)
	t := lo.info.TypeOf(expr)
	if value == nil || t == nil || t.Kind == mppl.TypeString {
		return nil
	}
	temp := lo.newTemp(t)
	place := &Place{Local: temp}
	lo.emit(Assign{Place: place, Value: value})
	return place
}

func (lo *Lowerer) lowerOutputValue(value syntax.OutputValue) {
	expr := value.Expr()
	op := lo.lowerOperand(expr)
	if op == nil {
		return
	}

	width := 0
	if w := value.Width(); w != nil {
		parsed, err := strconv.Atoi(w.Text())
		if err == nil {
			// The lexer bounds the literal; the conversion cannot fail.
			width = int(safecast.MustConvert[int16](parsed))
		}
	}
	lo.emit(Write{Value: op, Width: width})
}

// ----------------------------------------------------------------------------
// Expressions

// lowerPlace materializes an lvalue expression as an addressable place, nil
// when recovery left no usable shape behind.
func (lo *Lowerer) lowerPlace(expr *syntax.SyntaxTree) *Place {
	if expr == nil {
		return nil
	}

	switch expr.Kind() {
	case syntax.KindEntireVar:
		name := (syntax.EntireVar{Node: expr}).Name()
		if item := lo.useItem(name); item != nil {
			return &Place{Local: lo.localFor(item)}
		}

	case syntax.KindIndexedVar:
		v := syntax.IndexedVar{Node: expr}
		index := lo.lowerOperand(v.Index())
		if item := lo.useItem(v.Name()); item != nil && index != nil {
			return &Place{Local: lo.localFor(item), Index: index}
		}
	}
	return nil
}

func (lo *Lowerer) useItem(ident *syntax.SyntaxTree) *Item {
	if ident == nil {
		return nil
	}
	binding := lo.sems.UseAt(ident.TextOffset())
	if binding == nil {
		return nil
	}
	return lo.items[binding]
}

// lowerOperand evaluates an expression to something a statement can consume:
// constants stay constants, lvalues become places, everything else lands in
// a fresh temp.
func (lo *Lowerer) lowerOperand(expr *syntax.SyntaxTree) Operand {
	if expr == nil {
		return nil
	}

	switch expr.Kind() {
	case syntax.KindNumberLit:
		value, err := strconv.ParseInt(expr.Text(), 10, 64)
		if err != nil || value > mppl.MaxNumber {
			return nil // Diagnosed by the lexer, unusable here
		}
		return ConstOperand{Constant: lo.program.Constants.Number(int16(value))}

	case syntax.KindTrueKw:
		return ConstOperand{Constant: lo.program.Constants.Boolean(true)}
	case syntax.KindFalseKw:
		return ConstOperand{Constant: lo.program.Constants.Boolean(false)}

	case syntax.KindStringLit:
		content := mppl.StringContent(expr.Text())
		if len(content) == 1 {
			return ConstOperand{Constant: lo.program.Constants.Char(content[0])}
		}
		return ConstOperand{Constant: lo.program.Constants.String(content)}

	case syntax.KindEntireVar, syntax.KindIndexedVar:
		if place := lo.lowerPlace(expr); place != nil {
			return PlaceOperand{Place: place}
		}
		return nil

	case syntax.KindParenExpr:
		return lo.lowerOperand(syntax.ParenExpr{Node: expr}.Inner())
	}

	value := lo.lowerRValue(expr)
	t := lo.info.TypeOf(expr)
	if value == nil || t == nil || t.Kind == mppl.TypeString {
		return nil
	}
	temp := lo.newTemp(t)
	place := &Place{Local: temp}
	lo.emit(Assign{Place: place, Value: value})
	return PlaceOperand{Place: place}
}

// lowerRValue evaluates an expression as the right side of an assignment.
func (lo *Lowerer) lowerRValue(expr *syntax.SyntaxTree) RValue {
	if expr == nil {
		return nil
	}

	switch expr.Kind() {
	case syntax.KindBinaryExpr:
		return lo.lowerBinary(syntax.BinaryExpr{Node: expr})

	case syntax.KindNotExpr:
		op := lo.lowerOperand(syntax.NotExpr{Node: expr}.Operand())
		if op == nil {
			return nil
		}
		return Not{Operand: op}

	case syntax.KindCastExpr:
		e := syntax.CastExpr{Node: expr}
		op := lo.lowerOperand(e.Operand())
		to := lo.info.TypeOf(expr)
		if to == nil {
			to = lo.castTarget(e.TypeKw())
		}
		if op == nil || to == nil {
			return nil
		}
		return Cast{To: to, Operand: op}

	case syntax.KindParenExpr:
		return lo.lowerRValue(syntax.ParenExpr{Node: expr}.Inner())
	}

	if op := lo.lowerOperand(expr); op != nil {
		return Use{Operand: op}
	}
	return nil
}

func (lo *Lowerer) castTarget(kw *syntax.SyntaxTree) *mppl.Type {
	if kw == nil {
		return nil
	}
	switch kw.Kind() {
	case syntax.KindIntegerKw:
		return lo.types.Integer()
	case syntax.KindBooleanKw:
		return lo.types.Boolean()
	case syntax.KindCharKw:
		return lo.types.Char()
	}
	return nil
}

func (lo *Lowerer) lowerBinary(b syntax.BinaryExpr) RValue {
	op := b.Op()
	if op == nil {
		return nil
	}

	// The boolean connectives never evaluate both sides in sequence; they
	// lower through the CFG and hand back the temp holding the outcome.
	if op.Kind() == syntax.KindAndKw || op.Kind() == syntax.KindOrKw {
		place := lo.lowerShortCircuit(b, op.Kind() == syntax.KindAndKw)
		if place == nil {
			return nil
		}
		return Use{Operand: PlaceOperand{Place: place}}
	}

	var kind BinaryOp
	switch op.Kind() {
	case syntax.KindPlusToken:
		kind = OpAdd
	case syntax.KindMinusToken:
		kind = OpSub
	case syntax.KindStarToken:
		kind = OpMul
	case syntax.KindDivKw:
		kind = OpDiv
	case syntax.KindEqualToken:
		kind = OpEq
	case syntax.KindNotEqToken:
		kind = OpNe
	case syntax.KindLessToken:
		kind = OpLt
	case syntax.KindLessEqToken:
		kind = OpLe
	case syntax.KindGreaterToken:
		kind = OpGt
	case syntax.KindGreaterEqToken:
		kind = OpGe
	default:
		return nil
	}

	// Unary sign: the empty LHS slot becomes 0 - rhs for minus, a plain use
	// for plus.
	if b.Lhs() == nil {
		rhs := lo.lowerOperand(b.Rhs())
		if rhs == nil {
			return nil
		}
		if kind == OpSub {
			zero := ConstOperand{Constant: lo.program.Constants.Number(0)}
			return Binary{Op: OpSub, Lhs: zero, Rhs: rhs}
		}
		return Use{Operand: rhs}
	}

	lhs := lo.lowerOperand(b.Lhs())
	rhs := lo.lowerOperand(b.Rhs())
	if lhs == nil || rhs == nil {
		return nil
	}
	return Binary{Op: kind, Lhs: lhs, Rhs: rhs}
}

// lowerShortCircuit builds the and/or diamond: evaluate the LHS, branch to
// either evaluate the RHS or jump to the shortcut block that stores the
// predetermined outcome, and join on a single successor.
func (lo *Lowerer) lowerShortCircuit(b syntax.BinaryExpr, isAnd bool) *Place {
	lhs := lo.lowerOperand(b.Lhs())
	if lhs == nil {
		return nil
	}

	result := &Place{Local: lo.newTemp(lo.types.Boolean())}
	rhsBlock := lo.newBlock()
	shortBlock := lo.newBlock()
	join := lo.newBlock()

	if isAnd {
		lo.terminate(If{Cond: lhs, Then: rhsBlock, Else: shortBlock})
	} else {
		lo.terminate(If{Cond: lhs, Then: shortBlock, Else: rhsBlock})
	}

	lo.switchTo(rhsBlock)
	rhs := lo.lowerOperand(b.Rhs())
	if rhs == nil {
		rhs = ConstOperand{Constant: lo.program.Constants.Boolean(false)}
	}
	lo.emit(Assign{Place: result, Value: Use{Operand: rhs}})
	lo.terminate(Goto{Next: join})

	lo.switchTo(shortBlock)
	shortcut := lo.program.Constants.Boolean(!isAnd)
	lo.emit(Assign{Place: result, Value: Use{Operand: ConstOperand{Constant: shortcut}}})
	lo.terminate(Goto{Next: join})

	lo.switchTo(join)
	return result
}
