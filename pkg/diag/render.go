package diag

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"mppl.dev/mpplc/pkg/source"
)

// ----------------------------------------------------------------------------
// Renderer

// The Renderer draws a diagnostic as an annotated source excerpt: a header
// line with severity and kind, the file position, then each involved line
// with carets under the annotated spans and any trailing notes.
//
// Styling is plain ANSI, switched by the single Color knob so the driver can
// wire it to both the --color option and the MPPLC_FORCE_COLOR env flag.
type Renderer struct {
	Color bool
}

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiRed    = "\x1b[91m"
	ansiYellow = "\x1b[93m"
	ansiCyan   = "\x1b[96m"
	ansiBlue   = "\x1b[94m"
)

func (r Renderer) paint(color, text string) string {
	if !r.Color {
		return text
	}
	return color + text + ansiReset
}

// Render writes the excerpt for one diagnostic to 'w'.
func (r Renderer) Render(w io.Writer, src *source.Source, d Diagnostic) {
	severityColor := ansiRed
	if d.Severity == SeverityWarning {
		severityColor = ansiYellow
	} else if d.Severity == SeverityNote {
		severityColor = ansiCyan
	}

	header := fmt.Sprintf("%s[%s]", d.Severity, d.Kind)
	fmt.Fprintf(w, "%s%s %s\n", r.paint(severityColor+ansiBold, header),
		r.paint(ansiBold, ":"), r.paint(ansiBold, d.Message))

	loc := src.Location(d.Offset)
	fmt.Fprintf(w, "  %s %s:%s\n", r.paint(ansiBlue, "-->"), src.Name, loc)

	// Annotations are drawn line by line, in source order.
	annotations := append([]Annotation(nil), d.Annotations...)
	sort.SliceStable(annotations, func(i, j int) bool {
		return annotations[i].Start < annotations[j].Start
	})

	gutter := len(fmt.Sprint(src.Location(lastEnd(annotations, d.Offset)).Line))
	pad := strings.Repeat(" ", gutter)
	fmt.Fprintf(w, "%s %s\n", pad, r.paint(ansiBlue, "|"))

	for _, a := range annotations {
		r.renderAnnotation(w, src, a, gutter, severityColor)
	}

	for _, note := range d.Notes {
		fmt.Fprintf(w, "%s %s %s %s\n", pad, r.paint(ansiBlue, "="),
			r.paint(ansiBold, "note:"), note)
	}
	fmt.Fprintln(w)
}

func (r Renderer) renderAnnotation(w io.Writer, src *source.Source, a Annotation, gutter int, color string) {
	start := src.Location(a.Start)
	end := src.Location(a.End)

	lineText := src.LineText(start.Line)
	fmt.Fprintf(w, "%*d %s %s\n", gutter, start.Line, r.paint(ansiBlue, "|"), lineText)

	// Carets cover the annotated span, clipped to its first line; multi-line
	// spans keep only the opening line which is where the problem starts.
	width := end.Column - start.Column
	if end.Line != start.Line || width < 1 {
		width = 1
	}
	if start.Column-1+width > len(lineText) {
		width = len(lineText) - start.Column + 1
		if width < 1 {
			width = 1
		}
	}

	carets := strings.Repeat(" ", start.Column-1) + strings.Repeat("^", width)
	if a.Message != "" {
		carets += " " + a.Message
	}
	fmt.Fprintf(w, "%s %s %s\n", strings.Repeat(" ", gutter),
		r.paint(ansiBlue, "|"), r.paint(color, carets))
}

// RenderAll draws every diagnostic in the bag and reports how many had error
// severity, which is what the driver folds into its exit code.
func (r Renderer) RenderAll(w io.Writer, src *source.Source, bag *Bag) int {
	errors := 0
	for _, d := range bag.All() {
		r.Render(w, src, d)
		if d.Severity == SeverityError {
			errors++
		}
	}
	return errors
}

func lastEnd(annotations []Annotation, fallback int) int {
	end := fallback
	for _, a := range annotations {
		if a.End > end {
			end = a.End
		}
	}
	return end
}
