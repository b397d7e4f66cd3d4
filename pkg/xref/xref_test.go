package xref_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mppl.dev/mpplc/pkg/diag"
	"mppl.dev/mpplc/pkg/mppl"
	"mppl.dev/mpplc/pkg/source"
	"mppl.dev/mpplc/pkg/xref"
)

func TestListing(t *testing.T) {
	text := "program p;\nvar count: integer;\nbegin\n    count := 1;\n    count := count + 1\nend.\n"
	src := source.New("test.mpl", text)
	bag := diag.NewBag()
	tree := mppl.Parse(src, bag)
	events := mppl.Resolve(tree, bag)
	sems := mppl.BuildSemantics(tree, events)
	info, _ := mppl.Check(tree, sems, bag)
	require.False(t, bag.HasErrors())

	var b strings.Builder
	xref.Print(&b, src, sems, info)
	out := b.String()

	assert.Contains(t, out, "cross reference of test.mpl")
	assert.Contains(t, out, "program p")
	assert.Contains(t, out, "var count: integer")
	// Defined on line 2, used on lines 4 and 5 (three sites total).
	assert.Contains(t, out, "defined 2:5")
	assert.Contains(t, out, "used 4:5, 5:5, 5:14")
}
