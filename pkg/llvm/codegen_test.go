package llvm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mppl.dev/mpplc/pkg/diag"
	"mppl.dev/mpplc/pkg/ir"
	"mppl.dev/mpplc/pkg/llvm"
	"mppl.dev/mpplc/pkg/mppl"
	"mppl.dev/mpplc/pkg/source"
)

func emit(t *testing.T, text string) string {
	t.Helper()
	bag := diag.NewBag()
	tree := mppl.Parse(source.New("test.mpl", text), bag)
	events := mppl.Resolve(tree, bag)
	sems := mppl.BuildSemantics(tree, events)
	info, types := mppl.Check(tree, sems, bag)
	require.False(t, bag.HasErrors())

	program := ir.NewLowerer(sems, info, types).Lower(tree)
	var b strings.Builder
	require.NoError(t, llvm.NewGenerator(program, types).Generate(&b))
	return b.String()
}

func TestModuleShape(t *testing.T) {
	out := emit(t, "program p; var x: integer; begin x := 1 + 2; writeln(x) end.")

	// The main function over lN blocks with %.tN temporaries.
	assert.Contains(t, out, "define i16 @main()")
	assert.Contains(t, out, "l0:")
	assert.Contains(t, out, "%.t0")
	assert.Contains(t, out, "ret i16 0")

	// Overflow-checked addition and the externals it leans on.
	assert.Contains(t, out, "@llvm.sadd.with.overflow.i16")
	assert.Contains(t, out, "declare i32 @printf(ptr, ...)")
	assert.Contains(t, out, "@x = internal global i16 0")
}

func TestProcedureSignature(t *testing.T) {
	out := emit(t, "program p; var x: integer; "+
		"procedure q(n: integer); begin x := n end; begin call q(1) end.")

	// Arguments arrive as pointers, matching the address-passing call
	// convention of the CASL2 side.
	assert.Contains(t, out, "define internal void @q(ptr %a0)")
	assert.Contains(t, out, "call void @q(ptr %")
	assert.Contains(t, out, "ret void")
}

func TestDivisionTrap(t *testing.T) {
	out := emit(t, "program p; var x: integer; begin x := 10 div x end.")

	assert.Contains(t, out, "sdiv i16")
	assert.Contains(t, out, "trap.div")
	assert.Contains(t, out, "call void @exit(i32 2)")
}

func TestArrayAccess(t *testing.T) {
	out := emit(t, "program p; var a: array[8] of integer; var i: integer; "+
		"begin a[i] := 1 end.")

	assert.Contains(t, out, "@a = internal global [8 x i16] zeroinitializer")
	assert.Contains(t, out, "getelementptr inbounds [8 x i16]")
	assert.Contains(t, out, "trap.rng")
	assert.Contains(t, out, "call void @exit(i32 3)")
}

func TestStringAndBooleanOutput(t *testing.T) {
	out := emit(t, "program p; var b: boolean; begin b := true; write(b, 'hi!') end.")

	assert.Contains(t, out, "@.str.true")
	assert.Contains(t, out, "@.str.false")
	assert.Contains(t, out, "select i1")
	assert.Contains(t, out, "c\"hi!\\00\"")
}
