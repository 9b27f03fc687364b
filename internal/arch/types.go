// Package arch holds the immutable architecture description that
// parameterizes one assembly or link unit: fragments, formats,
// instructions, segment descriptions, and relocation types.
// Tables are constructed once per invocation (by Load, or by hand for
// tests) and are never mutated afterward.
package arch

// FragmentType is the operand kind a Fragment encodes.
type FragmentType string

const (
	FragAddress  FragmentType = "address"
	FragRAddress FragmentType = "raddress"
	FragReg      FragmentType = "reg"
	FragSigned   FragmentType = "signed"
	FragUnsigned FragmentType = "unsigned"
)

// Fragment is a named bit-field template.
type Fragment struct {
	Name        string
	Type        FragmentType
	Width       int
	OWidth      int // output width; defaults to Width when zero
	Alignment   int // n such that the value must be divisible by 2^(n-1); default 1
	Offset      int // subtracted before range-check
	RightAlign  bool
	Group       string
	Relocation  string
}

// EffectiveOWidth returns OWidth defaulted to Width.
func (f Fragment) EffectiveOWidth() int {
	if f.OWidth == 0 {
		return f.Width
	}
	return f.OWidth
}

// EffectiveAlignment returns Alignment defaulted to 1 (no constraint).
func (f Fragment) EffectiveAlignment() int {
	if f.Alignment == 0 {
		return 1
	}
	return f.Alignment
}

// CompositeFormat is the sentinel format name used by composite
// (macro) instructions: no Format row exists for it, only Components.
const CompositeFormat = "composite"

// Format is a named template: total instruction bit width (a multiple
// of 8) and the ordered fragment names that make it up.
type Format struct {
	Name     string
	Width    int
	Fragments []string
}

// Replacement moves a value (or a pending reference) from one
// component instruction's fragment to another's.
type Replacement struct {
	Source     string
	Dest       string
	Shift      int
	Relocation string
}

// Component is one element expanded from a composite instruction:
// the indexed instruction to emit, with replacements applied.
type Component struct {
	ID           int
	Replacements []Replacement
}

// Instruction is one variant registered under a mnemonic. Multiple
// instructions may share a Mnemonic; they are disambiguated by token
// match.
type Instruction struct {
	Mnemonic string
	Format   string // format name, or CompositeFormat
	Pattern  []string // token pattern: fragment names, or ":literal" punctuators
	Defaults map[string]string
	ID       int // meaningful only when HasID; composites reference instructions by ID
	HasID    bool // set when the description gave an id (0 included); only these are indexed
	Components []Component
}

// SegmentDescription is an architecture-declared output segment.
type SegmentDescription struct {
	Name        string
	Start       uint32
	Size        uint32 // 0 = unbounded
	Align       uint32
	Fill        byte
	Ephemeral   bool
	ReadOnly    bool
	Executable  bool
	Relocatable bool
}

// RelocationType is an architecture-declared relocation kind, named in
// fragments/references and written into ELF relocation records.
type RelocationType struct {
	Name string
	Type uint8
}

// Arch is the complete, immutable table set for one assembly or link
// unit.
type Arch struct {
	Name            string
	DataWidth       int
	AddressWidth    int
	AddressableWidth int
	PageSize        uint32

	Segments     []SegmentDescription
	Fragments    map[string]Fragment
	Formats      map[string]Format
	Relocations  map[string]RelocationType

	// Instructions indexes every variant by mnemonic (in declaration
	// order, since column-wise elimination must prefer earlier
	// candidates when priority is otherwise equal) and additionally by
	// ID for composite expansion lookups.
	Instructions   map[string][]Instruction
	InstructionsByID map[int]Instruction
}

// Fragment looks up a fragment by name, returning ok=false if undeclared.
func (a *Arch) Fragment(name string) (Fragment, bool) {
	f, ok := a.Fragments[name]
	return f, ok
}

// Format looks up a format by name, returning ok=false if undeclared.
func (a *Arch) Format(name string) (Format, bool) {
	f, ok := a.Formats[name]
	return f, ok
}

// Segment looks up a segment description by name.
func (a *Arch) Segment(name string) (SegmentDescription, bool) {
	for _, s := range a.Segments {
		if s.Name == name {
			return s, true
		}
	}
	return SegmentDescription{}, false
}
