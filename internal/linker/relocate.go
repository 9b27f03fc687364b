package linker

import (
	"fmt"

	"github.com/albatros064/asnp/internal/elf"
)

// Built-in relocation types. An architecture description may name
// additional types; those fall through to the default case below and
// are reported rather than silently ignored.
const (
	RelJmp = 1
	RelB0  = 4
	RelB1  = 5
	RelB2  = 6
	RelB3  = 7
)

func (l *Linker) symtabOf(obj *object) *elf.Section {
	for _, sec := range obj.file.Sections {
		if sec.Type == elf.SHT_SYMTAB {
			return sec
		}
	}
	return nil
}

// relocate patches every input section's bytes in place using the
// global symbol table built by ResolveSymbols and the addresses
// assigned by layout. Must run after both.
func (l *Linker) relocate() error {
	for _, obj := range l.objects {
		symtab := l.symtabOf(obj)

		for _, sec := range obj.file.Sections {
			if sec.Type != elf.SHT_REL {
				continue
			}
			target := obj.file.Sections[findSectionIndex(obj.file, sec.Info)]

			for _, r := range sec.Relocations {
				if symtab == nil || r.SymbolIndex < 1 || r.SymbolIndex > len(symtab.Symbols) {
					return fmt.Errorf("%s: relocation symbol index %d out of range", obj.path, r.SymbolIndex)
				}
				localSym := symtab.Symbols[r.SymbolIndex-1]
				g, ok := l.globals[localSym.Name]
				if !ok {
					return fmt.Errorf("%s: relocation references unresolved symbol %q", obj.path, localSym.Name)
				}
				addr := l.finalAddr(g)

				if err := patch(target.Data, int(r.Offset), addr, r.Type); err != nil {
					return fmt.Errorf("%s: %s+0x%x: %w", obj.path, target.Name, r.Offset, err)
				}
			}
		}
	}
	return nil
}

// findSectionIndex resolves a 1-based shdr index (as stored in
// Section.Info for REL sections) into f.Sections. Index 0 is the
// implicit NULL section and never appears here for a valid object.
func findSectionIndex(f *elf.File, shdrIndex uint32) int {
	return int(shdrIndex) - 1
}

func patch(data []byte, offset int, addr uint32, relType uint8) error {
	switch relType {
	case RelJmp:
		if offset+4 > len(data) {
			return fmt.Errorf("REL_JMP patch out of bounds")
		}
		v := (addr >> 1) & 0x0FFFFFFF
		data[offset] = (data[offset] & 0xF0) | byte((v>>24)&0xF)
		rem := v & 0xFFFFFF
		data[offset+1] = byte((rem >> 16) & 0xFF)
		data[offset+2] = byte((rem >> 8) & 0xFF)
		data[offset+3] = byte(rem & 0xFF)
		return nil

	case RelB0, RelB1, RelB2, RelB3:
		if offset >= len(data) {
			return fmt.Errorf("REL_B%d patch out of bounds", relType-RelB0)
		}
		n := uint(relType - RelB0)
		data[offset] = byte((addr >> (8 * n)) & 0xff)
		return nil

	default:
		return fmt.Errorf("unknown relocation type 0x%02x", relType)
	}
}
