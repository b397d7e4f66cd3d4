package source

import (
	"fmt"
	"sort"
	"strings"
)

// ----------------------------------------------------------------------------
// Source

// A Source is a named blob of text plus a precomputed index of line spans.
//
// Byte offsets are the authoritative way to point into a Source; (line, column)
// pairs are derived on demand for display. The index is built once at load
// time so that Location() is a binary search instead of a rescan.
type Source struct {
	Name string // Display name, usually the path the driver opened
	Text string // The full content, never mutated after New

	lines []lineSpan // Ordered, covers every byte of Text exactly once
}

type lineSpan struct {
	offset int // Byte offset of the first character of the line
	length int // Length in bytes, including the trailing newline if any
}

// A Location is a 1-based (line, column) pair derived from a byte offset.
type Location struct {
	Line   int
	Column int
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// Initializes and returns to the caller a brand new 'Source' struct,
// precomputing the line index for the given text.
func New(name, text string) *Source {
	src := &Source{Name: name, Text: text}

	start := 0
	for {
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			break
		}
		src.lines = append(src.lines, lineSpan{offset: start, length: nl + 1})
		start += nl + 1
	}
	// The last line has no trailing newline (it may also be empty, which keeps
	// offsets at EOF addressable).
	src.lines = append(src.lines, lineSpan{offset: start, length: len(text) - start})

	return src
}

// Returns the total length of the source text in bytes.
func (s *Source) Len() int { return len(s.Text) }

// Returns the number of lines in the source, at least 1.
func (s *Source) LineCount() int { return len(s.lines) }

// Returns the byte offset and length of the 1-based line 'n'.
func (s *Source) Line(n int) (offset, length int) {
	span := s.lines[n-1]
	return span.offset, span.length
}

// Returns the text of the 1-based line 'n' without its trailing newline.
func (s *Source) LineText(n int) string {
	span := s.lines[n-1]
	text := s.Text[span.offset : span.offset+span.length]
	return strings.TrimRight(text, "\n")
}

// Maps a byte offset to its 1-based (line, column) pair by binary search over
// the line starts. Offsets at or past EOF map to the end of the last line.
func (s *Source) Location(offset int) Location {
	if offset > len(s.Text) {
		offset = len(s.Text)
	}

	line := sort.Search(len(s.lines), func(i int) bool {
		return s.lines[i].offset > offset
	})
	span := s.lines[line-1]

	return Location{Line: line, Column: offset - span.offset + 1}
}

// Returns the text between the two byte offsets, clamped to the source.
func (s *Source) Slice(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(s.Text) {
		end = len(s.Text)
	}
	if start >= end {
		return ""
	}
	return s.Text[start:end]
}
