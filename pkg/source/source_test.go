package source_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mppl.dev/mpplc/pkg/source"
)

func TestLocation(t *testing.T) {
	src := source.New("test.mpl", "program p;\nvar x: integer;\nbegin end.\n")

	test := func(offset, line, column int) {
		loc := src.Location(offset)
		assert.Equal(t, line, loc.Line, "line for offset %d", offset)
		assert.Equal(t, column, loc.Column, "column for offset %d", offset)
	}

	t.Run("Valid data", func(t *testing.T) {
		test(0, 1, 1)   // 'p' of program
		test(8, 1, 9)   // 'p' the name
		test(10, 1, 11) // the newline itself
		test(11, 2, 1)  // 'v' of var
		test(15, 2, 5)  // 'x'
		test(27, 3, 1)  // 'b' of begin
	})

	t.Run("Boundary data", func(t *testing.T) {
		test(src.Len(), 4, 1)     // EOF lands on the empty last line
		test(src.Len()+10, 4, 1)  // Past EOF clamps
	})
}

func TestLines(t *testing.T) {
	src := source.New("test.mpl", "one\ntwo\nthree")

	assert.Equal(t, 3, src.LineCount())
	assert.Equal(t, "one", src.LineText(1))
	assert.Equal(t, "two", src.LineText(2))
	assert.Equal(t, "three", src.LineText(3))

	offset, length := src.Line(2)
	assert.Equal(t, 4, offset)
	assert.Equal(t, 4, length) // Includes the newline
}

func TestNoTrailingNewline(t *testing.T) {
	src := source.New("test.mpl", "abc")
	assert.Equal(t, 1, src.LineCount())
	assert.Equal(t, source.Location{Line: 1, Column: 2}, src.Location(1))
}

func TestSlice(t *testing.T) {
	src := source.New("test.mpl", "hello world")
	assert.Equal(t, "hello", src.Slice(0, 5))
	assert.Equal(t, "world", src.Slice(6, 99))
	assert.Equal(t, "", src.Slice(5, 5))
}
