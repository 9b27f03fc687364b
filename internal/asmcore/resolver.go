package asmcore

import (
	"fmt"
	"sort"

	"github.com/albatros064/asnp/internal/diag"
)

// UnresolvedReference names one reference this unit could not resolve
// against its own label table. The caller turns these into undefined
// ELF symbols, unless raw output was requested.
type UnresolvedReference struct {
	Segment string
	Label   string
}

// Resolve patches every (segment, reference) pair whose label is
// defined within this unit in place; everything else is returned as
// an UnresolvedReference for the caller to decide how to handle.
//
// allowUnresolved controls only whether the function returns
// leftover references or raises a ReferenceError: the patching of
// resolvable references is unconditional either way.
func (a *Assembler) Resolve(allowUnresolved bool) ([]UnresolvedReference, error) {
	a.Symbols = make(map[string]uint32)
	for label, segName := range a.labelOwner {
		s := a.segments[segName]
		a.Symbols[label] = s.Start + s.Labels[label]
	}

	var unresolved []UnresolvedReference

	for _, s := range a.Segments() {
		for _, ref := range s.References {
			segName, ok := a.labelOwner[ref.Label]
			if !ok {
				unresolved = append(unresolved, UnresolvedReference{Segment: s.Name, Label: ref.Label})
				continue
			}
			owner := a.segments[segName]

			// PC-relative displacements are computed in bytes within the
			// owning segment; absolute references get the segment base
			// added.
			var value uint32
			if ref.RelativeSet {
				value = owner.Labels[ref.Label] - ref.Relative
			} else {
				value = owner.Start + owner.Labels[ref.Label]
			}
			value >>= uint(ref.Shift)

			if err := s.Pack(value, ref.Width, int(ref.Offset), ref.Bit); err != nil {
				return nil, &diag.Error{Kind: diag.KindSegment, Column: -1, Message: fmt.Sprintf("resolving %q: %v", ref.Label, err)}
			}
		}
	}

	sort.Slice(unresolved, func(i, j int) bool {
		if unresolved[i].Segment != unresolved[j].Segment {
			return unresolved[i].Segment < unresolved[j].Segment
		}
		return unresolved[i].Label < unresolved[j].Label
	})

	if len(unresolved) > 0 && !allowUnresolved {
		first := unresolved[0]
		return unresolved, &diag.Error{
			Kind:    diag.KindReference,
			Column:  -1,
			Message: fmt.Sprintf("undefined label %q referenced in segment %q", first.Label, first.Segment),
		}
	}

	return unresolved, nil
}
