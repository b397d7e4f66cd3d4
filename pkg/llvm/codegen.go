package llvm

import (
	"fmt"
	"io"
	"strings"

	"mppl.dev/mpplc/pkg/ir"
	"mppl.dev/mpplc/pkg/mppl"
)

// ----------------------------------------------------------------------------
// Code generator

// Takes an 'ir.Program' and spits out a textual LLVM IR module.
//
// The module uses i1/i8/i16 value types with every storage cell an i16, so
// the two backends agree on memory layout. Basic blocks take their lN names
// from the IR block ids and SSA temporaries count up as %.tN per function.
// Arithmetic goes through the overflow-checked intrinsics and branches to a
// trap block that reports through printf and exits with the same codes the
// CASL2 runtime uses (1 overflow, 2 zero division, 3 range).
//
// Procedure arguments arrive as i16 pointers, matching the address-passing
// convention of the CASL2 side.
type Generator struct {
	program *ir.Program
	types   *mppl.Types

	out  *strings.Builder
	temp int

	needTrap map[int]bool // exit code -> referenced
	traps    map[int]string

	locals map[*ir.Local]string // Place pointers within the current function
}

// Initializes and returns to the caller a brand new 'Generator' struct.
func NewGenerator(program *ir.Program, types *mppl.Types) *Generator {
	return &Generator{program: program, types: types}
}

// Generate renders the whole module and writes it to 'w'.
func (g *Generator) Generate(w io.Writer) error {
	g.out = &strings.Builder{}

	g.emitPrelude()
	g.emitGlobals()
	for _, item := range g.program.Items {
		if item.Body != nil {
			g.emitFunction(item)
		}
	}

	_, err := io.WriteString(w, g.out.String())
	return err
}

func (g *Generator) printf(format string, args ...any) {
	fmt.Fprintf(g.out, format, args...)
}

// ----------------------------------------------------------------------------
// Module prelude

func (g *Generator) emitPrelude() {
	g.printf("declare i32 @printf(ptr, ...)\n")
	g.printf("declare i32 @scanf(ptr, ...)\n")
	g.printf("declare i32 @getchar()\n")
	g.printf("declare void @exit(i32)\n")
	g.printf("declare { i16, i1 } @llvm.sadd.with.overflow.i16(i16, i16)\n")
	g.printf("declare { i16, i1 } @llvm.ssub.with.overflow.i16(i16, i16)\n")
	g.printf("declare { i16, i1 } @llvm.smul.with.overflow.i16(i16, i16)\n")
	g.printf("\n")
	g.printf("@.fmt.int = private constant [3 x i8] c\"%%d\\00\"\n")
	g.printf("@.fmt.intw = private constant [4 x i8] c\"%%*d\\00\"\n")
	g.printf("@.fmt.char = private constant [3 x i8] c\"%%c\\00\"\n")
	g.printf("@.fmt.str = private constant [3 x i8] c\"%%s\\00\"\n")
	g.printf("@.fmt.ln = private constant [2 x i8] c\"\\0A\\00\"\n")
	g.printf("@.fmt.scan = private constant [4 x i8] c\"%%hd\\00\"\n")
	g.printf("@.str.true = private constant [5 x i8] c\"TRUE\\00\"\n")
	g.printf("@.str.false = private constant [6 x i8] c\"FALSE\\00\"\n")
	g.printf("@.str.eov = private constant [10 x i8] c\"overflow\\0A\\00\"\n")
	g.printf("@.str.ediv = private constant [15 x i8] c\"zero division\\0A\\00\"\n")
	g.printf("@.str.erng = private constant [13 x i8] c\"range error\\0A\\00\"\n")
	g.printf("\n")
}

func (g *Generator) emitGlobals() {
	for _, item := range g.program.Items {
		if item.Kind != ir.ItemVar {
			continue
		}
		if item.Type != nil && item.Type.Kind == mppl.TypeArray {
			g.printf("@%s = internal global [%d x i16] zeroinitializer\n",
				item.Name, item.Type.Length)
			continue
		}
		g.printf("@%s = internal global i16 0\n", item.Name)
	}

	for _, c := range g.program.Constants.Strings() {
		g.printf("@.str%d = private constant [%d x i8] c\"%s\\00\"\n",
			c.Index, len(c.String)+1, escapeString(c.String))
	}
	g.printf("\n")
}

func escapeString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < 0x20 || ch >= 0x7f || ch == '"' || ch == '\\' {
			fmt.Fprintf(&b, "\\%02X", ch)
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// ----------------------------------------------------------------------------
// Functions

func (g *Generator) emitFunction(item *ir.Item) {
	g.temp = 0
	g.needTrap = map[int]bool{}
	g.traps = map[int]string{1: "trap.ov", 2: "trap.div", 3: "trap.rng"}
	g.locals = map[*ir.Local]string{}

	body := item.Body
	args := body.Args()

	if item.Kind == ir.ItemProgram {
		g.printf("define i16 @main() {\n")
	} else {
		params := make([]string, len(args))
		for i := range args {
			params[i] = fmt.Sprintf("ptr %%a%d", i)
		}
		g.printf("define internal void @%s(%s) {\n", item.Name, strings.Join(params, ", "))
	}

	// Entry allocas: one i16 cell per temp and per local variable; argument
	// pointers pass through as is.
	g.printf("entry:\n")
	for i, arg := range args {
		g.locals[arg] = fmt.Sprintf("%%a%d", i)
	}
	for _, local := range body.Locals {
		if local.Kind == ir.LocalArg {
			continue
		}
		name := fmt.Sprintf("%%v%d", local.ID)
		if local.Item != nil && local.Item.Kind == ir.ItemVar {
			g.locals[local] = "@" + local.Item.Name
			continue
		}
		if local.Item != nil && local.Item.Kind == ir.ItemLocalVar {
			if local.Type != nil && local.Type.Kind == mppl.TypeArray {
				g.printf("  %s = alloca [%d x i16]\n", name, local.Type.Length)
			} else {
				g.printf("  %s = alloca i16\n", name)
			}
			g.locals[local] = name
			continue
		}
		g.printf("  %s = alloca i16\n", name)
		g.locals[local] = name
	}
	g.printf("  br label %%l%d\n", body.Entry.ID)

	for _, block := range body.Blocks {
		g.emitBlock(item, block)
	}

	g.emitTraps()
	g.printf("}\n\n")
}

func (g *Generator) emitBlock(item *ir.Item, block *ir.Block) {
	g.printf("l%d:\n", block.ID)
	for _, stmt := range block.Stmts {
		g.emitStmt(stmt)
	}

	switch term := block.Term.(type) {
	case ir.Goto:
		g.printf("  br label %%l%d\n", term.Next.ID)

	case ir.If:
		cond := g.operandValue(term.Cond)
		flag := g.fresh()
		g.printf("  %s = icmp ne i16 %s, 0\n", flag, cond)
		g.printf("  br i1 %s, label %%l%d, label %%l%d\n", flag, term.Then.ID, term.Else.ID)

	case ir.Return:
		if item.Kind == ir.ItemProgram {
			g.printf("  ret i16 0\n")
		} else {
			g.printf("  ret void\n")
		}

	default:
		panic("llvm: block without terminator")
	}
}

// ----------------------------------------------------------------------------
// Statements

func (g *Generator) emitStmt(stmt ir.Stmt) {
	switch s := stmt.(type) {
	case ir.Assign:
		value := g.rvalue(s.Value)
		ptr := g.placePtr(s.Place)
		g.printf("  store i16 %s, ptr %s\n", value, ptr)

	case ir.Call:
		args := make([]string, len(s.Args))
		for i := len(s.Args) - 1; i >= 0; i-- {
			args[i] = "ptr " + g.placePtr(s.Args[i])
		}
		g.printf("  call void @%s(%s)\n", s.Proc.Name, strings.Join(args, ", "))

	case ir.Read:
		ptr := g.placePtr(s.Place)
		if s.Place.Type() == g.types.Char() {
			ch := g.fresh()
			trunc := g.fresh()
			g.printf("  %s = call i32 @getchar()\n", ch)
			g.printf("  %s = trunc i32 %s to i16\n", trunc, ch)
			g.printf("  store i16 %s, ptr %s\n", trunc, ptr)
		} else {
			r := g.fresh()
			g.printf("  %s = call i32 (ptr, ...) @scanf(ptr @.fmt.scan, ptr %s)\n", r, ptr)
		}

	case ir.ReadLn:
		// Consume the rest of the line, newline included.
		head := g.fresh()
		g.printf("  br label %%%s.loop\n", trim(head))
		g.printf("%s.loop:\n", trim(head))
		ch := g.fresh()
		isNl := g.fresh()
		isEof := g.fresh()
		stop := g.fresh()
		g.printf("  %s = call i32 @getchar()\n", ch)
		g.printf("  %s = icmp eq i32 %s, 10\n", isNl, ch)
		g.printf("  %s = icmp slt i32 %s, 0\n", isEof, ch)
		g.printf("  %s = or i1 %s, %s\n", stop, isNl, isEof)
		g.printf("  br i1 %s, label %%%s.done, label %%%s.loop\n", stop, trim(head), trim(head))
		g.printf("%s.done:\n", trim(head))

	case ir.Write:
		g.emitWrite(s)

	case ir.WriteLn:
		r := g.fresh()
		g.printf("  %s = call i32 (ptr, ...) @printf(ptr @.fmt.ln)\n", r)
	}
}

func (g *Generator) emitWrite(s ir.Write) {
	if c, ok := s.Value.(ir.ConstOperand); ok && c.Constant.Kind == ir.ConstString {
		r := g.fresh()
		g.printf("  %s = call i32 (ptr, ...) @printf(ptr @.fmt.str, ptr @.str%d)\n",
			r, c.Constant.Index)
		return
	}

	value := g.operandValue(s.Value)
	switch ir.OperandType(s.Value, g.types) {
	case g.types.Boolean():
		flag := g.fresh()
		text := g.fresh()
		r := g.fresh()
		g.printf("  %s = icmp ne i16 %s, 0\n", flag, value)
		g.printf("  %s = select i1 %s, ptr @.str.true, ptr @.str.false\n", text, flag)
		g.printf("  %s = call i32 (ptr, ...) @printf(ptr @.fmt.str, ptr %s)\n", r, text)

	case g.types.Char():
		wide := g.fresh()
		r := g.fresh()
		g.printf("  %s = sext i16 %s to i32\n", wide, value)
		g.printf("  %s = call i32 (ptr, ...) @printf(ptr @.fmt.char, i32 %s)\n", r, wide)

	default:
		wide := g.fresh()
		r := g.fresh()
		g.printf("  %s = sext i16 %s to i32\n", wide, value)
		if s.Width != 0 {
			g.printf("  %s = call i32 (ptr, ...) @printf(ptr @.fmt.intw, i32 %d, i32 %s)\n",
				r, s.Width, wide)
		} else {
			g.printf("  %s = call i32 (ptr, ...) @printf(ptr @.fmt.int, i32 %s)\n", r, wide)
		}
	}
}

// ----------------------------------------------------------------------------
// Values

func (g *Generator) fresh() string {
	name := fmt.Sprintf("%%.t%d", g.temp)
	g.temp++
	return name
}

// trim drops the leading % so a temp name can double as a label stem.
func trim(name string) string { return strings.TrimPrefix(name, "%") }

func (g *Generator) operandValue(op ir.Operand) string {
	switch o := op.(type) {
	case ir.ConstOperand:
		return fmt.Sprint(o.Constant.Word())

	case ir.PlaceOperand:
		ptr := g.placePtr(o.Place)
		value := g.fresh()
		g.printf("  %s = load i16, ptr %s\n", value, ptr)
		return value
	}
	panic("llvm: unknown operand")
}

// placePtr produces the pointer a place names, with the bounds check for
// subscripted forms.
func (g *Generator) placePtr(p *ir.Place) string {
	base := g.locals[p.Local]
	if base == "" && p.Local.Item != nil {
		base = "@" + p.Local.Item.Name
	}

	if p.Index == nil {
		return base
	}

	length := 0
	if p.Local.Type != nil && p.Local.Type.Kind == mppl.TypeArray {
		length = p.Local.Type.Length
	}

	index := g.operandValue(p.Index)
	inBounds := g.fresh()
	g.needTrap[3] = true
	g.printf("  %s = icmp ult i16 %s, %d\n", inBounds, index, length)
	cont := g.fresh()
	g.printf("  br i1 %s, label %%%s.ok, label %%trap.rng\n", inBounds, trim(cont))
	g.printf("%s.ok:\n", trim(cont))

	ptr := g.fresh()
	g.printf("  %s = getelementptr inbounds [%d x i16], ptr %s, i16 0, i16 %s\n",
		ptr, length, base, index)
	return ptr
}

func (g *Generator) rvalue(rv ir.RValue) string {
	switch v := rv.(type) {
	case ir.Use:
		return g.operandValue(v.Operand)

	case ir.Not:
		operand := g.operandValue(v.Operand)
		result := g.fresh()
		g.printf("  %s = xor i16 %s, 1\n", result, operand)
		return result

	case ir.Cast:
		return g.castValue(v)

	case ir.Binary:
		return g.binaryValue(v)
	}
	panic("llvm: unknown rvalue")
}

func (g *Generator) castValue(v ir.Cast) string {
	operand := g.operandValue(v.Operand)

	switch v.To {
	case g.types.Boolean():
		flag := g.fresh()
		wide := g.fresh()
		g.printf("  %s = icmp ne i16 %s, 0\n", flag, operand)
		g.printf("  %s = zext i1 %s to i16\n", wide, flag)
		return wide

	case g.types.Char():
		narrow := g.fresh()
		wide := g.fresh()
		g.printf("  %s = trunc i16 %s to i8\n", narrow, operand)
		g.printf("  %s = zext i8 %s to i16\n", wide, narrow)
		return wide
	}
	return operand
}

var overflowIntrinsics = map[ir.BinaryOp]string{
	ir.OpAdd: "llvm.sadd.with.overflow.i16",
	ir.OpSub: "llvm.ssub.with.overflow.i16",
	ir.OpMul: "llvm.smul.with.overflow.i16",
}

var comparisonPredicates = map[ir.BinaryOp]string{
	ir.OpEq: "eq", ir.OpNe: "ne", ir.OpLt: "slt",
	ir.OpLe: "sle", ir.OpGt: "sgt", ir.OpGe: "sge",
}

func (g *Generator) binaryValue(v ir.Binary) string {
	lhs := g.operandValue(v.Lhs)
	rhs := g.operandValue(v.Rhs)

	if intrinsic, ok := overflowIntrinsics[v.Op]; ok {
		pair := g.fresh()
		result := g.fresh()
		overflowed := g.fresh()
		cont := g.fresh()
		g.needTrap[1] = true
		g.printf("  %s = call { i16, i1 } @%s(i16 %s, i16 %s)\n", pair, intrinsic, lhs, rhs)
		g.printf("  %s = extractvalue { i16, i1 } %s, 0\n", result, pair)
		g.printf("  %s = extractvalue { i16, i1 } %s, 1\n", overflowed, pair)
		g.printf("  br i1 %s, label %%trap.ov, label %%%s.ok\n", overflowed, trim(cont))
		g.printf("%s.ok:\n", trim(cont))
		return result
	}

	if predicate, ok := comparisonPredicates[v.Op]; ok {
		flag := g.fresh()
		wide := g.fresh()
		g.printf("  %s = icmp %s i16 %s, %s\n", flag, predicate, lhs, rhs)
		g.printf("  %s = zext i1 %s to i16\n", wide, flag)
		return wide
	}

	switch v.Op {
	case ir.OpDiv:
		isZero := g.fresh()
		cont := g.fresh()
		g.needTrap[2] = true
		g.printf("  %s = icmp eq i16 %s, 0\n", isZero, rhs)
		g.printf("  br i1 %s, label %%trap.div, label %%%s.ok\n", isZero, trim(cont))
		g.printf("%s.ok:\n", trim(cont))
		result := g.fresh()
		g.printf("  %s = sdiv i16 %s, %s\n", result, lhs, rhs)
		return result

	case ir.OpAnd:
		result := g.fresh()
		g.printf("  %s = and i16 %s, %s\n", result, lhs, rhs)
		return result

	case ir.OpOr:
		result := g.fresh()
		g.printf("  %s = or i16 %s, %s\n", result, lhs, rhs)
		return result
	}
	panic("llvm: unknown binary op")
}

// ----------------------------------------------------------------------------
// Traps

func (g *Generator) emitTraps() {
	messages := map[int]string{1: "@.str.eov", 2: "@.str.ediv", 3: "@.str.erng"}
	for code := 1; code <= 3; code++ {
		if !g.needTrap[code] {
			continue
		}
		r := g.fresh()
		g.printf("%s:\n", g.traps[code])
		g.printf("  %s = call i32 (ptr, ...) @printf(ptr @.fmt.str, ptr %s)\n", r, messages[code])
		g.printf("  call void @exit(i32 %d)\n", code)
		g.printf("  unreachable\n")
	}
}
