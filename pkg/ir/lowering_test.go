package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mppl.dev/mpplc/pkg/diag"
	"mppl.dev/mpplc/pkg/ir"
	"mppl.dev/mpplc/pkg/mppl"
	"mppl.dev/mpplc/pkg/source"
)

// lower runs the whole front end over 'text' and returns the IR program.
func lower(t *testing.T, text string) (*ir.Program, *mppl.Types) {
	t.Helper()
	bag := diag.NewBag()
	tree := mppl.Parse(source.New("test.mpl", text), bag)
	events := mppl.Resolve(tree, bag)
	sems := mppl.BuildSemantics(tree, events)
	info, types := mppl.Check(tree, sems, bag)
	require.False(t, bag.HasErrors(), "front end must be clean for %q", text)

	return ir.NewLowerer(sems, info, types).Lower(tree), types
}

func mainBody(t *testing.T, program *ir.Program) *ir.Body {
	t.Helper()
	for _, item := range program.Items {
		if item.Kind == ir.ItemProgram {
			require.NotNil(t, item.Body)
			return item.Body
		}
	}
	t.Fatal("no program item")
	return nil
}

// TestTotality is the universal invariant: every block carries exactly one
// terminator and every local referenced by a place is declared in the
// enclosing body.
func TestTotality(t *testing.T) {
	program, _ := lower(t, "program p; var x: integer; var a: array[3] of boolean; "+
		"procedure q(n: integer); var m: integer; begin m := n; while m < 9 do "+
		"begin if m = 5 then break else m := m + 1 end end; "+
		"begin x := 1; call q(x); a[x] := true and (x < 2) end.")

	for _, item := range program.Items {
		if item.Body == nil {
			continue
		}
		declared := map[*ir.Local]bool{}
		for _, local := range item.Body.Locals {
			declared[local] = true
		}

		for _, block := range item.Body.Blocks {
			require.NotNil(t, block.Term, "block b%d of %s", block.ID, item.Name)
			for _, stmt := range block.Stmts {
				for _, place := range placesOf(stmt) {
					assert.True(t, declared[place.Local],
						"place in b%d of %s references a foreign local", block.ID, item.Name)
				}
			}
		}
	}
}

func placesOf(stmt ir.Stmt) []*ir.Place {
	var places []*ir.Place
	add := func(op ir.Operand) {
		if p, ok := op.(ir.PlaceOperand); ok {
			places = append(places, p.Place)
		}
	}

	switch s := stmt.(type) {
	case ir.Assign:
		places = append(places, s.Place)
		switch v := s.Value.(type) {
		case ir.Use:
			add(v.Operand)
		case ir.Binary:
			add(v.Lhs)
			add(v.Rhs)
		case ir.Not:
			add(v.Operand)
		case ir.Cast:
			add(v.Operand)
		}
	case ir.Call:
		places = append(places, s.Args...)
	case ir.Read:
		places = append(places, s.Place)
	case ir.Write:
		add(s.Value)
	}
	return places
}

// TestArithmeticShape pins down the S6 scenario: one temp for the product,
// then the assignment to x of the sum over it.
func TestArithmeticShape(t *testing.T) {
	program, _ := lower(t, "program p; var x:integer; begin x := 1 + 2 * 3 end.")
	body := mainBody(t, program)

	require.Len(t, body.Blocks, 1)
	block := body.Blocks[0]
	require.Len(t, block.Stmts, 2)
	require.IsType(t, ir.Return{}, block.Term)

	// First the product lands in a temp.
	first := block.Stmts[0].(ir.Assign)
	assert.Equal(t, ir.LocalTemp, first.Place.Local.Kind)
	product := first.Value.(ir.Binary)
	assert.Equal(t, ir.OpMul, product.Op)
	assert.Equal(t, int16(2), product.Lhs.(ir.ConstOperand).Constant.Number)
	assert.Equal(t, int16(3), product.Rhs.(ir.ConstOperand).Constant.Number)

	// Then the sum of the literal and the temp goes to x.
	second := block.Stmts[1].(ir.Assign)
	require.NotNil(t, second.Place.Local.Item)
	assert.Equal(t, "x", second.Place.Local.Item.Name)
	sum := second.Value.(ir.Binary)
	assert.Equal(t, ir.OpAdd, sum.Op)
	assert.Equal(t, int16(1), sum.Lhs.(ir.ConstOperand).Constant.Number)
	assert.Same(t, first.Place.Local, sum.Rhs.(ir.PlaceOperand).Place.Local)
}

// TestEmptyProcedureBody: a body with nothing in it is a single block holding
// only the implicit return.
func TestEmptyProcedureBody(t *testing.T) {
	program, _ := lower(t, "program p; procedure q; begin end; begin end.")

	for _, item := range program.Items {
		if item.Kind != ir.ItemProc {
			continue
		}
		require.Len(t, item.Body.Blocks, 1)
		assert.Empty(t, item.Body.Blocks[0].Stmts)
		assert.IsType(t, ir.Return{}, item.Body.Blocks[0].Term)
	}
}

// TestIfWithoutElse: the join block is the false edge.
func TestIfWithoutElse(t *testing.T) {
	program, _ := lower(t, "program p; var x: integer; begin if true then x := 1 end.")
	body := mainBody(t, program)

	cond, ok := body.Entry.Term.(ir.If)
	require.True(t, ok)

	// The then block flows into the same block the false edge targets.
	thenGoto, ok := cond.Then.Term.(ir.Goto)
	require.True(t, ok)
	assert.Same(t, cond.Else, thenGoto.Next)
}

func TestIfElseJoins(t *testing.T) {
	program, _ := lower(t, "program p; var x: integer; "+
		"begin if true then x := 1 else x := 2 end.")
	body := mainBody(t, program)

	cond := body.Entry.Term.(ir.If)
	thenGoto := cond.Then.Term.(ir.Goto)
	elseGoto := cond.Else.Term.(ir.Goto)
	assert.Same(t, thenGoto.Next, elseGoto.Next)
	assert.NotSame(t, cond.Then, cond.Else)
}

// TestWhileAndBreak: break targets the loop's join; the body's back edge
// returns to the condition block.
func TestWhileAndBreak(t *testing.T) {
	program, _ := lower(t, "program p; begin while true do break end.")
	body := mainBody(t, program)

	// Entry jumps into the condition block.
	entryGoto := body.Entry.Term.(ir.Goto)
	condBlock := entryGoto.Next
	cond := condBlock.Term.(ir.If)

	// The body holds only the break, a goto straight to the join.
	breakGoto, ok := cond.Then.Term.(ir.Goto)
	require.True(t, ok)
	assert.Same(t, cond.Else, breakGoto.Next)
}

// TestShortCircuit: and/or lower through the CFG with a shortcut block, not
// through a strict binary evaluation.
func TestShortCircuit(t *testing.T) {
	program, _ := lower(t, "program p; var b: boolean; begin b := (1 < 2) and (3 < 4) end.")
	body := mainBody(t, program)

	// The comparison runs, then an If branches to either the RHS block or
	// the shortcut block; both assign the result temp and meet at a join.
	var branch *ir.If
	for _, block := range body.Blocks {
		if cond, ok := block.Term.(ir.If); ok {
			branch = &cond
			break
		}
	}
	require.NotNil(t, branch, "short-circuit lowering must branch")
	assert.NotSame(t, branch.Then, branch.Else)

	thenGoto := branch.Then.Term.(ir.Goto)
	elseGoto := branch.Else.Term.(ir.Goto)
	assert.Same(t, thenGoto.Next, elseGoto.Next, "both arms join")
}

// TestReturnStartsFreshBlock: statements after return stay in well-formed,
// unreachable blocks.
func TestReturnStartsFreshBlock(t *testing.T) {
	program, _ := lower(t, "program p; var x: integer; begin return; x := 1 end.")
	body := mainBody(t, program)

	require.GreaterOrEqual(t, len(body.Blocks), 2)
	assert.IsType(t, ir.Return{}, body.Entry.Term)
	for _, block := range body.Blocks {
		assert.NotNil(t, block.Term)
	}
}

// TestCallArguments: expression arguments land in temps whose addresses are
// passed; variable arguments pass their own address.
func TestCallArguments(t *testing.T) {
	program, _ := lower(t, "program p; var x: integer; "+
		"procedure q(a: integer; b: integer); begin end; "+
		"begin call q(x, x + 1) end.")
	body := mainBody(t, program)

	var call *ir.Call
	for _, stmt := range body.Blocks[0].Stmts {
		if c, ok := stmt.(ir.Call); ok {
			call = &c
			break
		}
	}
	require.NotNil(t, call)
	require.Len(t, call.Args, 2)

	assert.Equal(t, "x", call.Args[0].Local.Item.Name)
	assert.Equal(t, ir.LocalTemp, call.Args[1].Local.Kind)
	assert.Equal(t, "q", call.Proc.Name)
}

// TestConstantInterning: equal constants share one pooled value.
func TestConstantInterning(t *testing.T) {
	program, _ := lower(t, "program p; var x, y: integer; begin x := 7; y := 7 end.")
	body := mainBody(t, program)

	first := body.Blocks[0].Stmts[0].(ir.Assign).Value.(ir.Use).Operand.(ir.ConstOperand)
	second := body.Blocks[0].Stmts[1].(ir.Assign).Value.(ir.Use).Operand.(ir.ConstOperand)
	assert.Same(t, first.Constant, second.Constant)
}
