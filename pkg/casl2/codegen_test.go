package casl2_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mppl.dev/mpplc/pkg/casl2"
	"mppl.dev/mpplc/pkg/diag"
	"mppl.dev/mpplc/pkg/ir"
	"mppl.dev/mpplc/pkg/mppl"
	"mppl.dev/mpplc/pkg/source"
)

// generate compiles 'text' end to end into CASL2.
func generate(t *testing.T, text string) *casl2.Program {
	t.Helper()
	bag := diag.NewBag()
	tree := mppl.Parse(source.New("test.mpl", text), bag)
	events := mppl.Resolve(tree, bag)
	sems := mppl.BuildSemantics(tree, events)
	info, types := mppl.Check(tree, sems, bag)
	require.False(t, bag.HasErrors(), "front end must be clean for %q", text)

	program := ir.NewLowerer(sems, info, types).Lower(tree)
	return casl2.NewGenerator(program, types).Generate()
}

func opcodes(p *casl2.Program) []string {
	ops := make([]string, len(p.Rows))
	for i, row := range p.Rows {
		ops[i] = row.Op
	}
	return ops
}

// hasRow reports whether some row matches opcode and first operand.
func hasRow(p *casl2.Program, op string, operand string) bool {
	for _, row := range p.Rows {
		if row.Op == op && len(row.Operands) > 0 && row.Operands[0] == operand {
			return true
		}
	}
	return false
}

// TestWritelnProgram pins the first end-to-end scenario: the entry label, a
// call into the entry block, the halt, the writeln helper call and the BWLN
// helper itself.
func TestWritelnProgram(t *testing.T) {
	program := generate(t, "program p; begin writeln end.")

	// The program entry label is PROGRAM, on the START row.
	require.NotEmpty(t, program.Rows)
	assert.Equal(t, "PROGRAM", program.Rows[0].Label)
	assert.Equal(t, casl2.OpStart, program.Rows[0].Op)

	// A CALL into the main entry block, then the halt.
	assert.Equal(t, casl2.OpCALL, program.Rows[1].Op)
	assert.True(t, strings.HasPrefix(program.Rows[1].Operands[0], "L"))
	assert.True(t, hasRow(program, casl2.OpSVC, "0"))

	// The body calls BWLN and returns; the helper is present.
	assert.True(t, hasRow(program, casl2.OpCALL, "BWLN"))
	assert.Contains(t, opcodes(program), casl2.OpRET)
	found := false
	for _, row := range program.Rows {
		if row.Label == "BWLN" {
			found = true
		}
	}
	assert.True(t, found, "the BWLN helper must be emitted")

	// The END row closes the file.
	assert.Equal(t, casl2.OpEnd, program.Rows[len(program.Rows)-1].Op)
}

// TestArithmeticSequence pins the S6 shape: the product before the sum, both
// overflow checked, the result stored to the variable's cell.
func TestArithmeticSequence(t *testing.T) {
	program := generate(t, "program p; var x:integer; begin x := 1 + 2 * 3 end.")
	ops := opcodes(program)

	mul := indexOf(ops, casl2.OpMULA)
	add := indexOf(ops, casl2.OpADDA)
	st := indexOf(ops, casl2.OpST)
	require.GreaterOrEqual(t, mul, 0)
	require.GreaterOrEqual(t, add, 0)
	require.GreaterOrEqual(t, st, 0)
	assert.Less(t, mul, add, "the product evaluates before the sum")
	assert.Less(t, add, st, "the store is last")

	// Both operations carry the overflow check.
	assert.Equal(t, casl2.OpJOV, ops[mul+1])
	assert.Equal(t, casl2.OpJOV, ops[add+1])
	assert.True(t, hasRow(program, casl2.OpJOV, "EOV"))
}

func indexOf(ops []string, op string) int {
	for i, o := range ops {
		if o == op {
			return i
		}
	}
	return -1
}

// TestLabelProperty is the universal invariant: every JUMP/CALL family
// target appears as a label in the same file.
func TestLabelProperty(t *testing.T) {
	sources := []string{
		"program p; begin writeln end.",
		"program p; var x: integer; begin x := 1 + 2 * 3; write(x) end.",
		"program p; var x: integer; begin read(x); if x < 0 then x := 0 - x; writeln(x) end.",
		"program p; var a: array[5] of integer; var i: integer; " +
			"begin i := 0; while i < 5 do begin a[i] := i * i; i := i + 1 end end.",
		"program p; var b: boolean; var c: char; " +
			"begin b := (1 < 2) or (3 = 4); c := char(65); write(b, c) end.",
		"program p; var x: integer; procedure q(n: integer); begin x := n div 2 end; " +
			"begin call q(10); writeln(x : 4, 'done') end.",
		"program p; var c: char; begin read(c); readln; write(c) end.",
	}

	for _, text := range sources {
		program := generate(t, text)
		assert.NoError(t, casl2.Validate(program), "labels of %q", text)
	}
}

// TestProcedureConvention: the callee pops the return address, pops one
// address per argument, restores the return address.
func TestProcedureConvention(t *testing.T) {
	program := generate(t, "program p; var x: integer; "+
		"procedure q(n: integer); begin x := n end; begin call q(3) end.")

	ops := opcodes(program)
	pop := indexOf(ops, casl2.OpPOP)
	require.GreaterOrEqual(t, pop, 0)
	assert.Equal(t, casl2.OpPOP, ops[pop+1], "return address then argument")
	assert.Equal(t, casl2.OpST, ops[pop+2])
	assert.Equal(t, casl2.OpPUSH, ops[pop+3])

	// The caller pushes the argument address before the call.
	assert.True(t, hasRow(program, casl2.OpPUSH, "0"))
}

// TestDivisionChecksZero: the divisor is tested before DIVA runs.
func TestDivisionChecksZero(t *testing.T) {
	program := generate(t, "program p; var x: integer; begin x := 10 div x end.")
	ops := opcodes(program)

	div := indexOf(ops, casl2.OpDIVA)
	require.GreaterOrEqual(t, div, 0)
	assert.Equal(t, casl2.OpJZE, ops[div-1], "JZE EDIV0 guards the division")
	assert.True(t, hasRow(program, casl2.OpJZE, "EDIV0"))
	assert.NoError(t, casl2.Validate(program))
}

// TestSubscriptRangeCheck: indexed access branches to ERNG on both bounds.
func TestSubscriptRangeCheck(t *testing.T) {
	program := generate(t, "program p; var a: array[4] of integer; var i: integer; "+
		"begin a[i] := 1 end.")

	assert.True(t, hasRow(program, casl2.OpJMI, "ERNG"))
	assert.True(t, hasRow(program, casl2.OpJPL, "ERNG"))
	assert.NoError(t, casl2.Validate(program))
}

// TestHelpersOnDemand: a program with no I/O gets no I/O helpers.
func TestHelpersOnDemand(t *testing.T) {
	program := generate(t, "program p; var x: integer; begin x := 1 end.")
	text := program.Text()

	assert.NotContains(t, text, "BSINT")
	assert.NotContains(t, text, "BRINT")
	assert.NotContains(t, text, "BWLN")

	withIO := generate(t, "program p; var x: integer; begin write(x) end.")
	assert.Contains(t, withIO.Text(), "BSINT")
	assert.NotContains(t, withIO.Text(), "BRINT")
}

// TestStringConstants: interned strings emit one DC cell each.
func TestStringConstants(t *testing.T) {
	program := generate(t, "program p; begin write('hi'); write('hi'); write('it''s') end.")
	text := program.Text()

	assert.Equal(t, 1, strings.Count(text, "'hi'"), "equal strings share one cell")
	assert.Contains(t, text, "'it''s'", "embedded quotes double in DC")
}

// TestGlobalStorage: scalars get one word, arrays their element count.
func TestGlobalStorage(t *testing.T) {
	program := generate(t, "program p; var x: integer; var a: array[12] of char; begin x := 0 end.")

	dsSizes := []string{}
	for _, row := range program.Rows {
		if row.Op == casl2.OpDS {
			dsSizes = append(dsSizes, row.Operands[0])
		}
	}
	assert.Contains(t, dsSizes, "1")
	assert.Contains(t, dsSizes, "12")
}
