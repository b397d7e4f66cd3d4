package mppl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mppl.dev/mpplc/pkg/mppl"
)

func TestSymbolInterning(t *testing.T) {
	symbols := mppl.NewSymbols()

	a := symbols.Intern("counter")
	b := symbols.Intern("counter")
	c := symbols.Intern("count")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 2, symbols.Len(), "one entry per distinct spelling")
}
