package casl2

import (
	"fmt"
	"strings"

	pc "github.com/prataprc/goparsec"
)

// ----------------------------------------------------------------------------
// Parser Combinator(s)

// This section defines the Parser Combinator for reading CASL2 text back into
// instruction records. The generator writes rows; this reads them, which is
// what lets the validator and the tests reason about emitted assembly
// structurally instead of by string matching.
//
// CASL2 is line oriented and the label column is positional (a label starts
// at column one), so the reader splits lines and peels the label in plain Go,
// then hands the opcode and operand fields of each line to the PCs below.

// Top level object, will generate the traversable AST for one line's fields.
var asmAST = pc.NewAST("casl2_line", 0)

var (
	// One assembly line after the label column: an opcode mnemonic followed
	// by zero or more comma separated operands.
	pLine = asmAST.And("line", nil, pOpcode, asmAST.Kleene("operands", nil, pOperand, pComma))

	// Opcode mnemonics are uppercase words (START, LAD, JUMP, ...).
	pOpcode = pc.Token(`[A-Z]+`, "OPCODE")

	// An operand is either a quoted character constant (doubled quote as the
	// escape) or a bare field: register, label, decimal or #hex constant.
	pOperand = asmAST.OrdChoice("operand", nil,
		pc.Token(`'(?:[^']|'')*'`, "STRING"),
		pc.Token(`[A-Za-z0-9#=+\-]+`, "FIELD"),
	)

	pComma = pc.Atom(",", "COMMA")
)

// An Instruction is one parsed row of assembly text.
type Instruction struct {
	Label    string
	Op       string
	Operands []string
}

// ----------------------------------------------------------------------------
// Reader

// ParseText reads CASL2 assembly text into instruction records, one per
// non-empty line.
func ParseText(text string) ([]Instruction, error) {
	var instructions []Instruction

	for number, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		inst := Instruction{}
		if line[0] != ' ' && line[0] != '\t' {
			cut := strings.IndexAny(line, " \t")
			if cut < 0 {
				cut = len(line)
			}
			inst.Label = line[:cut]
			line = line[cut:]
		}

		if strings.TrimSpace(line) == "" {
			return nil, fmt.Errorf("line %d: label without instruction", number+1)
		}

		root, _ := asmAST.Parsewith(pLine, pc.NewScanner([]byte(line)))
		if root == nil {
			return nil, fmt.Errorf("line %d: unparsable instruction %q", number+1, line)
		}
		op, operands, err := handleLine(root)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", number+1, err)
		}
		inst.Op, inst.Operands = op, operands

		instructions = append(instructions, inst)
		asmAST.Reset()
	}

	return instructions, nil
}

// Specialized function to convert a "line" node to opcode and operand list.
func handleLine(node pc.Queryable) (string, []string, error) {
	if node.GetName() != "line" {
		return "", nil, fmt.Errorf("expected node 'line', got %s", node.GetName())
	}
	children := node.GetChildren()
	if len(children) < 1 {
		return "", nil, fmt.Errorf("expected node 'line' with at least 1 leaf")
	}

	op := children[0].GetValue()
	var operands []string
	if len(children) > 1 {
		for _, child := range children[1].GetChildren() {
			if child.GetName() == "COMMA" {
				continue
			}
			operands = append(operands, child.GetValue())
		}
	}
	return op, operands, nil
}

// ----------------------------------------------------------------------------
// Validation

// Every jump family opcode whose first operand must be a label defined in
// the same file.
var jumpOps = map[string]bool{
	OpJUMP: true, OpJZE: true, OpJNZ: true, OpJPL: true, OpJMI: true,
	OpJOV: true, OpCALL: true,
}

// Validate re-parses the generated program and checks that every JUMP/CALL
// family target is defined as a label somewhere in the same file.
func Validate(p *Program) error {
	instructions, err := ParseText(p.Text())
	if err != nil {
		return err
	}

	labels := map[string]bool{}
	for _, inst := range instructions {
		if inst.Label != "" {
			labels[inst.Label] = true
		}
	}

	for _, inst := range instructions {
		if !jumpOps[inst.Op] || len(inst.Operands) == 0 {
			continue
		}
		target := inst.Operands[0]
		if !labels[target] {
			return fmt.Errorf("%s targets undefined label %s", inst.Op, target)
		}
	}
	return nil
}
