package asmcore

import (
	"sort"

	"github.com/albatros064/asnp/internal/elf"
)

// BuildObject serializes this unit's segments, symbols, and unresolved
// references into an in-memory ELF32 relocatable object: one section
// per used segment, one SYMTAB+STRTAB pair (every symbol exported
// GLOBAL/NOTYPE), one REL section per source section that has
// relocatable references, and an optional .pagesize SHT_LOPROC section.
func (a *Assembler) BuildObject(unresolved []UnresolvedReference) (*elf.File, error) {
	f := &elf.File{Type: elf.ET_REL, Machine: elf.EM_NONE}

	unresolvedByLabel := make(map[string]bool)
	for _, u := range unresolved {
		unresolvedByLabel[u.Label] = true
	}

	sectionIndexByName := make(map[string]int)
	for _, s := range a.Segments() {
		if !a.usedSegments[s.Name] {
			continue
		}
		sec := &elf.Section{
			Name:          s.Name,
			Addr:          s.Start,
			Size:          uint32(len(s.Data)),
			Addralign:     maxU32(s.Align, 1),
			FileAlignment: a.Architecture.PageSize,
		}
		if s.Ephemeral {
			sec.Type = elf.SHT_NOBITS
		} else {
			sec.Type = elf.SHT_PROGBITS
			sec.Data = s.Data
		}
		sec.Flags = elf.SHF_ALLOC
		if !s.ReadOnly {
			sec.Flags |= elf.SHF_WRITE
		}
		if s.Executable {
			sec.Flags |= elf.SHF_EXECINSTR
		}
		sectionIndexByName[s.Name] = len(f.Sections)
		f.Sections = append(f.Sections, sec)
	}

	// Global symbol table: every label this unit knows about, plus an
	// undefined entry for every label it referenced but never defined.
	var names []string
	for name := range a.labelOwner {
		names = append(names, name)
	}
	for name := range unresolvedByLabel {
		if _, defined := a.labelOwner[name]; !defined {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	symIndex := make(map[string]int) // label -> index into symtab's Symbols (1-based; 0 is null)
	symtab := &elf.Section{Name: ".symtab", Type: elf.SHT_SYMTAB}
	for i, name := range names {
		symIndex[name] = i + 1
		if segName, ok := a.labelOwner[name]; ok {
			symtab.Symbols = append(symtab.Symbols, elf.Symbol{
				Name:    name,
				Value:   a.segments[segName].Labels[name],
				Section: sectionIndexByName[segName],
				Bind:    elf.STB_GLOBAL,
			})
		} else {
			symtab.Symbols = append(symtab.Symbols, elf.Symbol{
				Name:    name,
				Section: -1,
				Bind:    elf.STB_GLOBAL,
			})
		}
	}
	symtabIndex := len(f.Sections)
	f.Sections = append(f.Sections, symtab)

	for _, s := range a.Segments() {
		if !a.usedSegments[s.Name] {
			continue
		}
		var relocs []elf.Relocation
		for _, ref := range s.References {
			if ref.RelocationType == 0 {
				// A reference without a relocation kind has no link-time
				// fixup. Resolved in-unit it is already final; left
				// unresolved its undefined symbol still surfaces through
				// the symbol table above.
				if _, defined := a.labelOwner[ref.Label]; defined {
					continue
				}
			}
			relocs = append(relocs, elf.Relocation{
				SymbolIndex: symIndex[ref.Label],
				Offset:      ref.Offset,
				Type:        ref.RelocationType,
			})
		}
		if len(relocs) == 0 {
			continue
		}
		f.Sections = append(f.Sections, &elf.Section{
			Name:        ".rel" + s.Name,
			Type:        elf.SHT_REL,
			Link:        uint32(symtabIndex),
			Info:        uint32(sectionIndexByName[s.Name]),
			Relocations: relocs,
		})
	}

	if a.Architecture.PageSize != 0 {
		f.Sections = append(f.Sections, &elf.Section{
			Name: ".pagesize",
			Type: elf.SHT_LOPROC,
			Addr: a.Architecture.PageSize,
		})
	}

	return f, nil
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
