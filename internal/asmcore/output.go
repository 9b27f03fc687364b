package asmcore

import (
	"fmt"
	"sort"
	"strings"
)

// RawOutput concatenates every non-ephemeral segment's bytes, in
// architecture declaration order. Callers must have already demanded
// allowUnresolved=false from Resolve, since raw output cannot carry
// relocation records.
func (a *Assembler) RawOutput() []byte {
	var out []byte
	for _, s := range a.Segments() {
		if s.Ephemeral {
			continue
		}
		out = append(out, s.Data...)
	}
	return out
}

// SymbolDump renders the .sym file format: one `0xAAAAAAAA name`
// line per resolved symbol, sorted by name for reproducible output.
func (a *Assembler) SymbolDump() string {
	names := make([]string, 0, len(a.Symbols))
	for name := range a.Symbols {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "0x%08X %s\n", a.Symbols[name], name)
	}
	return b.String()
}
