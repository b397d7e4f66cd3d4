package casl2

import (
	"fmt"
	"reflect"

	"mppl.dev/mpplc/pkg/ir"
	"mppl.dev/mpplc/pkg/mppl"
	"mppl.dev/mpplc/pkg/utils"
)

// ----------------------------------------------------------------------------
// Code generator

// Takes an 'ir.Program' and spits out its CASL2 counterpart.
//
// The generator walks the IR items, allocating a stable Lxxxx label for each
// item, block and string constant on first reference through a small address
// interner. Emission order is: the START header that calls the main body and
// halts, every body, the runtime helpers that were actually used, the data
// cells, END.
//
// Register conventions inside generated code: GR1 holds the primary value,
// GR2 the second operand of a binary, GR3 indexes and scratch, GR4 parks an
// assignment value across index evaluation. The runtime helpers take their
// arguments in GR1 and GR2 and also use GR0 and GR3 to GR7 as scratch.
// Expression temps live on the machine stack except when a
// temp's address escapes into a call, which forces it into a data cell.
type Generator struct {
	program *ir.Program
	types   *mppl.Types

	labels    *utils.Table[any, string] // Pointer-identity address interner
	nextLabel int

	body      *ir.Body
	emitted   map[*ir.Block]bool
	cellTemps map[*ir.Local]bool
	pending   []string // Labels waiting for the next row
	rows      *Program // Body rows, spliced after the header

	used helperSet
}

// helperSet records which runtime specializations the program needs; the
// epilogue emits only those.
type helperSet struct {
	writeInt  bool
	writeBool bool
	writeChar bool
	writeStr  bool
	writeLn   bool
	readInt   bool
	readChar  bool
	readLn    bool

	errOverflow bool
	errDivZero  bool
	errRange    bool
}

func (h *helperSet) anyWrite() bool {
	return h.writeInt || h.writeBool || h.writeChar || h.writeStr || h.writeLn ||
		h.errOverflow || h.errDivZero || h.errRange
}

func (h *helperSet) anyRead() bool {
	return h.readInt || h.readChar || h.readLn
}

// Initializes and returns to the caller a brand new 'Generator' struct.
// Requires the argument program to be a complete lowering result.
func NewGenerator(program *ir.Program, types *mppl.Types) *Generator {
	return &Generator{
		program: program,
		types:   types,
		labels:  utils.NewTable[any, string](identityHash, identityEqual),
	}
}

// Generate produces the finished assembly program.
func (g *Generator) Generate() *Program {
	g.rows = &Program{}

	var mainEntry *ir.Block
	for _, item := range g.program.Items {
		if item.Body == nil {
			continue
		}
		if item.Kind == ir.ItemProgram {
			mainEntry = item.Body.Entry
		}
		g.genBody(item)
	}

	out := &Program{}
	out.Add("PROGRAM", OpStart)
	if mainEntry != nil {
		out.Add("", OpCALL, g.labelFor(mainEntry))
	}
	if g.used.anyWrite() {
		out.Add("", OpCALL, "BFLUSH")
	}
	out.Add("", OpSVC, "0")

	out.Rows = append(out.Rows, g.rows.Rows...)
	g.emitRuntime(out)
	g.emitData(out)
	out.Add("", OpEnd)
	return out
}

// ----------------------------------------------------------------------------
// Labels

// labelFor hands out the stable label of an item, block or constant on first
// reference. Keys are compared by pointer identity; the value interned first
// stays canonical.
func (g *Generator) labelFor(key any) string {
	if label, ok := g.labels.Find(key); ok {
		return label
	}
	g.nextLabel++
	return g.labels.Insert(key, fmt.Sprintf("L%04d", g.nextLabel))
}

func identityHash(key any) uint64 {
	return utils.HashUint64(utils.HashString("addr"), uint64(reflect.ValueOf(key).Pointer()))
}

func identityEqual(a, b any) bool { return a == b }

// add emits one row into the body section, attaching at most one pending
// block label; extra pending labels become NOP rows so every label lands on
// an address.
func (g *Generator) add(op string, operands ...string) {
	label := ""
	for len(g.pending) > 1 {
		g.rows.Add(g.pending[0], OpNOP)
		g.pending = g.pending[1:]
	}
	if len(g.pending) == 1 {
		label = g.pending[0]
		g.pending = nil
	}
	g.rows.Add(label, op, operands...)
}

// ----------------------------------------------------------------------------
// Bodies

func (g *Generator) genBody(item *ir.Item) {
	g.body = item.Body
	g.emitted = map[*ir.Block]bool{}
	g.cellTemps = map[*ir.Local]bool{}

	// A temp whose address is passed to a call cannot live on the stack;
	// CASL2 has no stack-relative addressing.
	for _, block := range g.body.Blocks {
		for _, stmt := range block.Stmts {
			call, ok := stmt.(ir.Call)
			if !ok {
				continue
			}
			for _, arg := range call.Args {
				if arg.Local.Kind == ir.LocalTemp {
					g.cellTemps[arg.Local] = true
				}
			}
		}
	}

	if item.Kind == ir.ItemProc {
		g.pending = append(g.pending, g.labelFor(item))
		// The callee pops its return address, then one argument address per
		// parameter (leftmost on top), then restores the return address.
		args := g.body.Args()
		if len(args) > 0 {
			g.add(OpPOP, "GR2")
			for _, arg := range args {
				g.add(OpPOP, "GR1")
				g.add(OpST, "GR1", g.labelFor(arg))
			}
			g.add(OpPUSH, "0", "GR2")
		}
	}

	g.emitBlock(g.body.Entry)
	g.body = nil
}

// emitBlock lays the block down at the current position. A Goto to a block
// not yet emitted is inlined; this keeps straight-line source straight in
// the assembly.
func (g *Generator) emitBlock(b *ir.Block) {
	if g.emitted[b] {
		return
	}
	g.emitted[b] = true
	g.pending = append(g.pending, g.labelFor(b))

	for _, stmt := range b.Stmts {
		g.genStmt(stmt)
	}

	switch term := b.Term.(type) {
	case ir.Return:
		g.add(OpRET)

	case ir.Goto:
		if g.emitted[term.Next] {
			g.add(OpJUMP, g.labelFor(term.Next))
			return
		}
		g.emitBlock(term.Next)

	case ir.If:
		g.genOperand(term.Cond, "GR1")
		g.add(OpLD, "GR1", "GR1")
		g.add(OpJZE, g.labelFor(term.Else))
		if g.emitted[term.Then] {
			g.add(OpJUMP, g.labelFor(term.Then))
		} else {
			g.emitBlock(term.Then)
		}
		g.emitBlock(term.Else)

	default:
		panic("casl2: block without terminator")
	}
}

// ----------------------------------------------------------------------------
// Statements

func (g *Generator) genStmt(stmt ir.Stmt) {
	switch s := stmt.(type) {
	case ir.Assign:
		g.genAssign(s)

	case ir.Call:
		// Argument addresses push right to left so the callee pops them in
		// declaration order.
		for i := len(s.Args) - 1; i >= 0; i-- {
			g.genPlaceAddress(s.Args[i], "GR1")
			g.add(OpPUSH, "0", "GR1")
		}
		g.add(OpCALL, g.labelFor(s.Proc))

	case ir.Read:
		g.genPlaceAddress(s.Place, "GR1")
		if s.Place.Type() == g.types.Char() {
			g.used.readChar = true
			g.add(OpCALL, "BRCHAR")
		} else {
			g.used.readInt = true
			g.used.errOverflow = true // BRINT checks digit accumulation
			g.add(OpCALL, "BRINT")
		}

	case ir.ReadLn:
		g.used.readLn = true
		g.add(OpCALL, "BRLN")

	case ir.Write:
		g.genWrite(s)

	case ir.WriteLn:
		g.used.writeLn = true
		g.add(OpCALL, "BWLN")
	}
}

func (g *Generator) genAssign(s ir.Assign) {
	g.genRValue(s.Value)

	local := s.Place.Local
	switch {
	case s.Place.Index != nil:
		// Park the value; index evaluation needs GR1 and the stack.
		g.add(OpLD, "GR4", "GR1")
		g.genOperand(s.Place.Index, "GR1")
		g.genRangeCheck(local)
		g.add(OpLD, "GR3", "GR1")
		g.add(OpST, "GR4", g.labelFor(local.Item), "GR3")

	case local.Kind == ir.LocalTemp && !g.cellTemps[local]:
		g.add(OpPUSH, "0", "GR1")

	case local.Kind == ir.LocalTemp:
		g.add(OpST, "GR1", g.labelFor(local))

	case local.Kind == ir.LocalArg:
		// The cell holds the argument's address.
		g.add(OpLD, "GR2", g.labelFor(local))
		g.add(OpST, "GR1", "0", "GR2")

	default:
		g.add(OpST, "GR1", g.labelFor(local.Item))
	}
}

func (g *Generator) genWrite(s ir.Write) {
	if c, ok := s.Value.(ir.ConstOperand); ok && c.Constant.Kind == ir.ConstString {
		g.used.writeStr = true
		g.add(OpLAD, "GR1", g.labelFor(c.Constant))
		g.add(OpLAD, "GR2", fmt.Sprint(len(c.Constant.String)))
		g.add(OpCALL, "BWSTR")
		return
	}

	g.genOperand(s.Value, "GR1")
	g.add(OpLAD, "GR2", fmt.Sprint(s.Width))

	switch ir.OperandType(s.Value, g.types) {
	case g.types.Boolean():
		g.used.writeBool = true
		g.used.writeStr = true
		g.add(OpCALL, "BSBOOL")
	case g.types.Char():
		g.used.writeChar = true
		g.used.writeStr = true
		g.add(OpCALL, "BSCHAR")
	default:
		g.used.writeInt = true
		g.used.writeStr = true
		g.add(OpCALL, "BSINT")
	}
}

// ----------------------------------------------------------------------------
// Expressions

// genOperand evaluates an operand into the named register.
func (g *Generator) genOperand(op ir.Operand, reg string) {
	switch o := op.(type) {
	case ir.ConstOperand:
		g.add(OpLAD, reg, fmt.Sprint(o.Constant.Word()))

	case ir.PlaceOperand:
		g.genPlaceValue(o.Place, reg)

	default:
		panic("casl2: unknown operand")
	}
}

func (g *Generator) genPlaceValue(p *ir.Place, reg string) {
	local := p.Local
	switch {
	case p.Index != nil:
		g.genOperand(p.Index, reg)
		g.genRangeCheckReg(local, reg)
		g.add(OpLD, "GR3", reg)
		g.add(OpLD, reg, g.labelFor(local.Item), "GR3")

	case local.Kind == ir.LocalTemp && !g.cellTemps[local]:
		g.add(OpPOP, reg)

	case local.Kind == ir.LocalTemp:
		g.add(OpLD, reg, g.labelFor(local))

	case local.Kind == ir.LocalArg:
		g.add(OpLD, reg, g.labelFor(local))
		g.add(OpLD, reg, "0", reg)

	default:
		g.add(OpLD, reg, g.labelFor(local.Item))
	}
}

// genPlaceAddress evaluates a place to the address it names.
func (g *Generator) genPlaceAddress(p *ir.Place, reg string) {
	local := p.Local
	switch {
	case p.Index != nil:
		g.genOperand(p.Index, reg)
		g.genRangeCheckReg(local, reg)
		g.add(OpLD, "GR3", reg)
		g.add(OpLAD, reg, g.labelFor(local.Item), "GR3")

	case local.Kind == ir.LocalTemp:
		// Only cell temps ever have their address taken.
		g.add(OpLAD, reg, g.labelFor(local))

	case local.Kind == ir.LocalArg:
		g.add(OpLD, reg, g.labelFor(local))

	default:
		g.add(OpLAD, reg, g.labelFor(local.Item))
	}
}

// genRangeCheck verifies the subscript in GR1 against the array bounds.
func (g *Generator) genRangeCheck(local *ir.Local) { g.genRangeCheckReg(local, "GR1") }

func (g *Generator) genRangeCheckReg(local *ir.Local, reg string) {
	length := 0
	if local.Type != nil && local.Type.Kind == mppl.TypeArray {
		length = local.Type.Length
	}
	g.used.errRange = true

	g.add(OpLD, reg, reg)
	g.add(OpJMI, "ERNG")
	g.add(OpLAD, "GR3", fmt.Sprint(length-1))
	g.add(OpCPA, reg, "GR3")
	g.add(OpJPL, "ERNG")
}

func (g *Generator) genRValue(rv ir.RValue) {
	switch v := rv.(type) {
	case ir.Use:
		g.genOperand(v.Operand, "GR1")

	case ir.Not:
		g.genOperand(v.Operand, "GR1")
		g.add(OpLAD, "GR2", "1")
		g.add(OpXOR, "GR1", "GR2")

	case ir.Cast:
		g.genCast(v)

	case ir.Binary:
		g.genBinary(v)

	default:
		panic("casl2: unknown rvalue")
	}
}

func (g *Generator) genCast(v ir.Cast) {
	g.genOperand(v.Operand, "GR1")

	switch v.To {
	case g.types.Boolean():
		// Nonzero collapses to 1.
		done := g.freshLabel()
		g.add(OpLD, "GR1", "GR1")
		g.add(OpJZE, done)
		g.add(OpLAD, "GR1", "1")
		g.pending = append(g.pending, done)

	case g.types.Char():
		g.add(OpLAD, "GR2", "255")
		g.add(OpAND, "GR1", "GR2")

	default:
		// To integer the word is already the value.
	}
}

func (g *Generator) genBinary(v ir.Binary) {
	// The right operand first: expression temps sit on the stack in push
	// order, and consuming right to left is what pops them correctly.
	g.genOperand(v.Rhs, "GR1")
	g.add(OpLD, "GR2", "GR1")
	g.genOperand(v.Lhs, "GR1")

	if v.Op.IsComparison() {
		g.genComparison(v.Op)
		return
	}

	switch v.Op {
	case ir.OpAdd:
		g.used.errOverflow = true
		g.add(OpADDA, "GR1", "GR2")
		g.add(OpJOV, "EOV")
	case ir.OpSub:
		g.used.errOverflow = true
		g.add(OpSUBA, "GR1", "GR2")
		g.add(OpJOV, "EOV")
	case ir.OpMul:
		g.used.errOverflow = true
		g.add(OpMULA, "GR1", "GR2")
		g.add(OpJOV, "EOV")
	case ir.OpDiv:
		g.used.errDivZero = true
		g.used.errOverflow = true
		g.add(OpLD, "GR2", "GR2")
		g.add(OpJZE, "EDIV0")
		g.add(OpDIVA, "GR1", "GR2")
		g.add(OpJOV, "EOV")
	case ir.OpAnd:
		g.add(OpAND, "GR1", "GR2")
	case ir.OpOr:
		g.add(OpOR, "GR1", "GR2")
	}
}

// genComparison materializes a relational result as 0 or 1 in GR1.
func (g *Generator) genComparison(op ir.BinaryOp) {
	yes := g.freshLabel()
	done := g.freshLabel()

	g.add(OpCPA, "GR1", "GR2")
	switch op {
	case ir.OpEq:
		g.add(OpJZE, yes)
	case ir.OpNe:
		g.add(OpJNZ, yes)
	case ir.OpLt:
		g.add(OpJMI, yes)
	case ir.OpLe:
		g.add(OpJMI, yes)
		g.add(OpJZE, yes)
	case ir.OpGt:
		g.add(OpJPL, yes)
	case ir.OpGe:
		g.add(OpJPL, yes)
		g.add(OpJZE, yes)
	}
	g.add(OpLAD, "GR1", "0")
	g.add(OpJUMP, done)
	g.pending = append(g.pending, yes)
	g.add(OpLAD, "GR1", "1")
	g.pending = append(g.pending, done)
}

func (g *Generator) freshLabel() string {
	g.nextLabel++
	return fmt.Sprintf("L%04d", g.nextLabel)
}

// ----------------------------------------------------------------------------
// Data section

func (g *Generator) emitData(out *Program) {
	// Variable cells: a word per standard type, one cell per array element.
	// Argument cells live on the locals below, holding addresses.
	for _, item := range g.program.Items {
		switch item.Kind {
		case ir.ItemVar, ir.ItemLocalVar:
			size := 1
			if item.Type != nil && item.Type.Kind == mppl.TypeArray {
				size = item.Type.Length
			}
			out.Add(g.labelFor(item), OpDS, fmt.Sprint(size))
		}
	}

	// Cells for argument locals and for temps whose address escaped into a
	// call, in body order so the output is deterministic.
	for _, item := range g.program.Items {
		if item.Body == nil {
			continue
		}
		for _, local := range item.Body.Locals {
			if label, ok := g.labels.Find(local); ok {
				out.Add(label, OpDS, "1")
			}
		}
	}

	// The interned string pool.
	for _, c := range g.program.Constants.Strings() {
		if label, ok := g.labels.Find(c); ok {
			out.Add(label, OpDC, quoteString(c.String))
		}
	}
}

// quoteString renders a DC character constant, doubling embedded quotes.
func quoteString(s string) string {
	quoted := "'"
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			quoted += "''"
			continue
		}
		quoted += string(s[i])
	}
	return quoted + "'"
}
