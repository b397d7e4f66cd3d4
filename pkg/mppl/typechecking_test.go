package mppl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mppl.dev/mpplc/pkg/diag"
	"mppl.dev/mpplc/pkg/mppl"
	"mppl.dev/mpplc/pkg/source"
	"mppl.dev/mpplc/pkg/syntax"
)

// check runs the front half of the pipeline and the checker over 'text'.
func check(t *testing.T, text string) (*mppl.TypeInfo, *mppl.Types, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag()
	tree := mppl.Parse(source.New("test.mpl", text), bag)
	events := mppl.Resolve(tree, bag)
	sems := mppl.BuildSemantics(tree, events)
	info, types := mppl.Check(tree, sems, bag)
	return info, types, bag
}

func TestCheckerDiagnostics(t *testing.T) {
	test := func(text string, kind diag.Kind) {
		_, _, bag := check(t, text)
		assert.Contains(t, diagKinds(bag), kind, "diagnostics of %q", text)
	}

	t.Run("Invalid data", func(t *testing.T) {
		// The literal scenarios of the design document.
		test("program p; var a: array[0] of integer; begin end.", diag.ZeroSizedArray)
		test("program p; var x:integer; begin x := true end.", diag.MismatchedType)
		test("program p; procedure q; begin call q end; begin call q end.", diag.RecursiveCall)

		test("program p; var x: integer; begin x[1] := 0 end.", diag.NonArraySubscript)
		test("program p; procedure q; begin end; begin q := 1 end.", diag.NonLvalueAssignment)
		test("program p; var x: integer; begin call x end.", diag.NonProcedureInvocation)
		test("program p; procedure q(n: integer); begin end; begin call q end.",
			diag.MismatchedArgumentCount)
		test("program p; procedure q(a: array[3] of integer); begin end; begin end.",
			diag.NonStandardType)
		test("program p; var b: boolean; begin read(b) end.", diag.InvalidInput)
		test("program p; var a: array[2] of integer; begin write(a) end.",
			diag.InvalidOutputValue)
		test("program p; begin write('long string' : 4) end.", diag.InvalidOutput)
		test("program p; var x: integer; begin if x then writeln end.", diag.MismatchedType)
		test("program p; var b: boolean; begin b := 1 + true end.", diag.MismatchedType)
		test("program p; var b: boolean; begin b := not 1 end.", diag.MismatchedType)
		test("program p; var c: char; begin c := char('ab') end.", diag.MismatchedType)
	})

	t.Run("Valid data", func(t *testing.T) {
		clean := func(text string) {
			_, _, bag := check(t, text)
			assert.False(t, bag.HasErrors(), "no errors for %q", text)
		}

		clean("program p; var a: array[1] of integer; begin a[0] := 32767 end.")
		clean("program p; var b: boolean; begin b := 1 < 2 end.")
		clean("program p; var b: boolean; begin b := true and (1 = 2) end.")
		clean("program p; var x: integer; begin x := integer('a') end.")
		clean("program p; var c: char; begin c := char(65) end.")
		clean("program p; var x: integer; begin read(x); write(x : 6) end.")
		clean("program p; begin writeln('hello', 'x') end.")
		clean("program p; procedure q(n: integer; c: char); begin end; begin call q(1, 'a') end.")
	})
}

func TestMismatchedTypeMessage(t *testing.T) {
	// The scenario fixes the wording: expected integer, found boolean, at
	// the offending expression.
	_, _, bag := check(t, "program p; var x:integer; begin x := true end.")

	require.True(t, bag.HasErrors())
	found := bag.All()[0]
	assert.Equal(t, diag.MismatchedType, found.Kind)
	assert.Contains(t, found.Message, "`integer`")
	assert.Contains(t, found.Message, "`boolean`")

	// The annotation covers the literal true.
	require.NotEmpty(t, found.Annotations)
	assert.Equal(t, 37, found.Annotations[0].Start)
}

func TestRecursionThroughNesting(t *testing.T) {
	// q calling itself through any depth of the declaration stack is out.
	_, _, bag := check(t,
		"program p; procedure q; begin begin call q end end; begin end.")
	assert.Contains(t, diagKinds(bag), diag.RecursiveCall)
}

func TestStringLiteralTyping(t *testing.T) {
	// A one-character literal is a char, longer ones are strings and only
	// writable.
	_, _, bag := check(t, "program p; var c: char; begin c := 'a' end.")
	assert.False(t, bag.HasErrors())

	_, _, bag = check(t, "program p; var c: char; begin c := 'ab' end.")
	assert.True(t, bag.HasErrors())

	// The doubled-quote escape counts as one character.
	_, _, bag = check(t, "program p; var c: char; begin c := '''' end.")
	assert.False(t, bag.HasErrors())
}

func TestTypeInterning(t *testing.T) {
	// Structural equality is pointer equality after interning.
	types := mppl.NewTypes()

	a1 := types.Array(types.Integer(), 10)
	a2 := types.Array(types.Integer(), 10)
	assert.Same(t, a1, a2)

	b := types.Array(types.Integer(), 11)
	assert.NotSame(t, a1, b)

	p1 := types.Proc([]*mppl.Type{types.Integer(), types.Char()})
	p2 := types.Proc([]*mppl.Type{types.Integer(), types.Char()})
	assert.Same(t, p1, p2)

	q := types.Proc([]*mppl.Type{types.Char(), types.Integer()})
	assert.NotSame(t, p1, q)
}

func TestExpressionTypesRecorded(t *testing.T) {
	bag := diag.NewBag()
	text := "program p; var x: integer; begin x := 1 + 2 end."
	tree := mppl.Parse(source.New("test.mpl", text), bag)
	events := mppl.Resolve(tree, bag)
	sems := mppl.BuildSemantics(tree, events)
	info, types := mppl.Check(tree, sems, bag)
	require.False(t, bag.HasErrors())

	// Walk down to the RHS of the assignment and ask for its recorded type:
	// interning makes the comparison a pointer identity.
	program := syntax.Program{Node: tree}
	stmts := (syntax.CompStmt{Node: program.Body()}).Stmts()
	require.Len(t, stmts, 1)
	assign := syntax.AssignStmt{Node: stmts[0]}

	assert.Same(t, types.Integer(), info.TypeOf(assign.Rhs()))
	assert.Same(t, types.Integer(), info.TypeOf(assign.Lhs()))
	assert.Equal(t, mppl.ValueLvalue, info.ValueOf(assign.Lhs()).Kind)
	assert.Equal(t, mppl.ValueRvalue, info.ValueOf(assign.Rhs()).Kind)
}
