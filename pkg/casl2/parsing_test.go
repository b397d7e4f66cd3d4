package casl2_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mppl.dev/mpplc/pkg/casl2"
)

func TestParseText(t *testing.T) {
	text := "PROGRAM   START\n" +
		"          CALL    L0001\n" +
		"          SVC     0\n" +
		"L0001     LAD     GR1,2\n" +
		"          LAD     GR2,-1,GR2\n" +
		"BWSTR1    OUT     BOBUF,BOCUR\n" +
		"          RET\n" +
		"STR       DC      'it''s'\n" +
		"          END"

	instructions, err := casl2.ParseText(text)
	require.NoError(t, err)
	require.Len(t, instructions, 9)

	test := func(i int, label, op string, operands ...string) {
		assert.Equal(t, label, instructions[i].Label, "label of row %d", i)
		assert.Equal(t, op, instructions[i].Op, "opcode of row %d", i)
		if len(operands) == 0 {
			assert.Empty(t, instructions[i].Operands, "operands of row %d", i)
		} else {
			assert.Equal(t, operands, instructions[i].Operands, "operands of row %d", i)
		}
	}

	t.Run("Valid data", func(t *testing.T) {
		test(0, "PROGRAM", "START")
		test(1, "", "CALL", "L0001")
		test(2, "", "SVC", "0")
		test(3, "L0001", "LAD", "GR1", "2")
		test(4, "", "LAD", "GR2", "-1", "GR2")
		test(5, "BWSTR1", "OUT", "BOBUF", "BOCUR")
		test(6, "", "RET")
		test(7, "STR", "DC", "'it''s'")
		test(8, "", "END")
	})
}

func TestParseTextSkipsBlankLines(t *testing.T) {
	instructions, err := casl2.ParseText("          RET\n\n\n          END\n")
	require.NoError(t, err)
	assert.Len(t, instructions, 2)
}

func TestValidate(t *testing.T) {
	good := &casl2.Program{}
	good.Add("PROGRAM", casl2.OpStart)
	good.Add("", casl2.OpCALL, "L0001")
	good.Add("", casl2.OpSVC, "0")
	good.Add("L0001", casl2.OpRET)
	good.Add("", casl2.OpEnd)
	assert.NoError(t, casl2.Validate(good))

	bad := &casl2.Program{}
	bad.Add("PROGRAM", casl2.OpStart)
	bad.Add("", casl2.OpJUMP, "NOWHERE")
	bad.Add("", casl2.OpEnd)
	err := casl2.Validate(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOWHERE")
}
