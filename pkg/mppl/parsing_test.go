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

func parse(t *testing.T, text string) (*syntax.SyntaxTree, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag()
	tree := mppl.Parse(source.New("test.mpl", text), bag)
	require.NotNil(t, tree)
	return tree, bag
}

func diagKinds(bag *diag.Bag) []diag.Kind {
	kinds := make([]diag.Kind, 0, bag.Len())
	for _, d := range bag.All() {
		kinds = append(kinds, d.Kind)
	}
	return kinds
}

// TestLosslessParse is the universal invariant: concatenating every token and
// trivia in tree order reproduces the source byte for byte, malformed input
// included.
func TestLosslessParse(t *testing.T) {
	sources := []string{
		"program p; begin end.",
		"program p;\nvar x: integer;\nbegin\n    x := 1 + 2 * 3\nend.\n",
		"program p; var a: array[10] of char; begin a[0] := 'x' end.",
		"program p; procedure q(n: integer); begin end; begin call q(1) end.",
		"program p; begin if 1 < 2 then writeln else writeln end.",
		"program p; begin while true do break end.",
		"program p; { comment } begin /* another */ writeln('hi', 42 : 6) end.",
		"program p; begin read(x); readln; write('s') end.",

		// Malformed inputs: the tree still covers every byte.
		"",
		"program",
		"program p begin end",
		"program p; var x integer; begin x := end.",
		"program p; begin x := * 2 end.",
		"program p; begin if then else end.",
		"program p; var ; begin @ ## end junk junk",
		"program p; begin end. trailing garbage",
	}

	for _, text := range sources {
		tree, _ := parse(t, text)
		assert.Equal(t, text, syntax.RawText(tree.Raw()), "round trip of %q", text)
	}
}

func TestWellFormedProgram(t *testing.T) {
	tree, bag := parse(t, "program p; var x: integer; begin x := 1 end.")
	assert.Equal(t, 0, bag.Len())

	program := syntax.Program{Node: tree}
	require.NotNil(t, program.Name())
	assert.Equal(t, "p", program.Name().Text())
	require.NotNil(t, program.Body())
	require.Len(t, program.DeclParts(), 1)

	decls := syntax.VarDeclPart{Node: program.DeclParts()[0]}.Decls()
	require.Len(t, decls, 1)
	names := (syntax.VarDecl{Node: decls[0]}).Names()
	require.Len(t, names, 1)
	assert.Equal(t, "x", names[0].Text())
}

func TestExpressionShape(t *testing.T) {
	// Multiplication binds tighter than addition: 1 + (2 * 3).
	tree, bag := parse(t, "program p; var x: integer; begin x := 1 + 2 * 3 end.")
	require.Equal(t, 0, bag.Len())

	program := syntax.Program{Node: tree}
	stmts := (syntax.CompStmt{Node: program.Body()}).Stmts()
	require.Len(t, stmts, 1)
	require.Equal(t, syntax.KindAssignStmt, stmts[0].Kind())

	rhs := (syntax.AssignStmt{Node: stmts[0]}).Rhs()
	require.Equal(t, syntax.KindBinaryExpr, rhs.Kind())
	outer := syntax.BinaryExpr{Node: rhs}
	assert.Equal(t, syntax.KindPlusToken, outer.Op().Kind())
	assert.Equal(t, syntax.KindNumberLit, outer.Lhs().Kind())
	require.Equal(t, syntax.KindBinaryExpr, outer.Rhs().Kind())
	inner := syntax.BinaryExpr{Node: outer.Rhs()}
	assert.Equal(t, syntax.KindStarToken, inner.Op().Kind())
}

func TestUnarySign(t *testing.T) {
	// The sign becomes a binary node with an empty LHS slot.
	tree, bag := parse(t, "program p; var x: integer; begin x := -5 end.")
	require.Equal(t, 0, bag.Len())

	program := syntax.Program{Node: tree}
	stmts := (syntax.CompStmt{Node: program.Body()}).Stmts()
	rhs := (syntax.AssignStmt{Node: stmts[0]}).Rhs()
	require.Equal(t, syntax.KindBinaryExpr, rhs.Kind())
	b := syntax.BinaryExpr{Node: rhs}
	assert.Nil(t, b.Lhs())
	assert.Equal(t, syntax.KindMinusToken, b.Op().Kind())
}

func TestIndexedVariable(t *testing.T) {
	tree, bag := parse(t, "program p; var a: array[4] of integer; begin a[2] := 0 end.")
	require.Equal(t, 0, bag.Len())

	program := syntax.Program{Node: tree}
	stmts := (syntax.CompStmt{Node: program.Body()}).Stmts()
	lhs := (syntax.AssignStmt{Node: stmts[0]}).Lhs()
	require.Equal(t, syntax.KindIndexedVar, lhs.Kind())
	v := syntax.IndexedVar{Node: lhs}
	assert.Equal(t, "a", v.Name().Text())
	require.NotNil(t, v.Index())
}

func TestIfWithoutElse(t *testing.T) {
	tree, bag := parse(t, "program p; begin if true then writeln end.")
	require.Equal(t, 0, bag.Len())

	program := syntax.Program{Node: tree}
	stmts := (syntax.CompStmt{Node: program.Body()}).Stmts()
	require.Equal(t, syntax.KindIfStmt, stmts[0].Kind())
	s := syntax.IfStmt{Node: stmts[0]}
	assert.NotNil(t, s.Cond())
	assert.NotNil(t, s.Then())
	assert.Nil(t, s.Else()) // The empty slot keeps the position stable
}

func TestDiagnostics(t *testing.T) {
	test := func(text string, kind diag.Kind) {
		_, bag := parse(t, text)
		assert.Contains(t, diagKinds(bag), kind, "diagnostics of %q", text)
	}

	t.Run("Invalid data", func(t *testing.T) {
		test("program p begin end.", diag.MissingSemicolon)
		test("program p; begin x := end.", diag.ExpectedExpression)
		test("program p; begin break end.", diag.BreakOutsideLoop)
		test("program p; var x array; begin end.", diag.UnexpectedToken)
	})

	t.Run("Valid data", func(t *testing.T) {
		_, bag := parse(t, "program p; begin while true do break end.")
		assert.Equal(t, 0, bag.Len())
	})
}

func TestUnexpectedTokenListsExpectedSet(t *testing.T) {
	_, bag := parse(t, "program p; var x integer; begin end.")

	require.NotEqual(t, 0, bag.Len())
	first := bag.All()[0]
	assert.Equal(t, diag.UnexpectedToken, first.Kind)
	// The message lists the sorted accumulated expected set.
	assert.Contains(t, first.Message, "`,`")
	assert.Contains(t, first.Message, "`:`")
	assert.Contains(t, first.Message, "`integer`")
}

func TestRecoveryKeepsFollowingStatements(t *testing.T) {
	// The bogus assignment is spliced into an error node; the write after
	// the semicolon still parses as a statement.
	tree, bag := parse(t, "program p; var x: integer; begin x := * 2; writeln end.")
	assert.NotEqual(t, 0, bag.Len())

	program := syntax.Program{Node: tree}
	stmts := (syntax.CompStmt{Node: program.Body()}).Stmts()
	found := false
	for _, stmt := range stmts {
		if stmt.Kind() == syntax.KindOutputStmt {
			found = true
		}
	}
	assert.True(t, found, "the writeln after recovery must survive")
}
