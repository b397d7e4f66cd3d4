package xref

import (
	"fmt"
	"io"
	"sort"

	"mppl.dev/mpplc/pkg/mppl"
	"mppl.dev/mpplc/pkg/source"
)

// ----------------------------------------------------------------------------
// Cross-reference

// Prints every resolved binding with its definition site and the sorted list
// of use sites. The listing reads straight off the Semantics record, so it
// reflects exactly what the resolver concluded, unresolved names excluded.

// Print writes the cross-reference listing for one compilation.
func Print(w io.Writer, src *source.Source, sems *mppl.Semantics, info *mppl.TypeInfo) {
	fmt.Fprintf(w, "cross reference of %s\n", src.Name)

	bindings := append([]*mppl.Binding(nil), sems.Bindings...)
	sort.SliceStable(bindings, func(i, j int) bool {
		return bindings[i].DeclaredAt < bindings[j].DeclaredAt
	})

	for _, b := range bindings {
		loc := src.Location(b.DeclaredAt)
		line := fmt.Sprintf("  %s %s", b.Kind, b.Name)
		if t := info.DefType(b.DeclaredAt); t != nil {
			line += fmt.Sprintf(": %s", t)
		}
		fmt.Fprintf(w, "%s | defined %s", line, loc)

		refs := append([]int(nil), b.Refs...)
		sort.Ints(refs)
		for i, ref := range refs {
			if i == 0 {
				fmt.Fprint(w, " | used ")
			} else {
				fmt.Fprint(w, ", ")
			}
			fmt.Fprint(w, src.Location(ref))
		}
		fmt.Fprintln(w)
	}
}
