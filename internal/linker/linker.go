// Package linker loads a set of relocatable ELF objects, resolves a
// global symbol table, lays out merged segments under alignment and
// page-size constraints, applies relocations, and emits an executable
// image. Input sections are classified four ways: executable,
// read-only, read-write, and zero-fill.
package linker

import (
	"fmt"
	"sort"

	"github.com/albatros064/asnp/internal/elf"
)

// DuplicateSymbolError collects every multiply-defined name found
// during symbol resolution, so the caller can report the whole list
// before failing rather than stopping at the first duplicate.
type DuplicateSymbolError struct {
	Names []string
}

func (e *DuplicateSymbolError) Error() string {
	return fmt.Sprintf("multiple definition of %d symbol(s)", len(e.Names))
}

// UndefinedSymbolError collects every symbol referenced but never
// defined across the link set.
type UndefinedSymbolError struct {
	Names []string
}

func (e *UndefinedSymbolError) Error() string {
	return fmt.Sprintf("undefined reference to %d symbol(s)", len(e.Names))
}

// globalSym is one entry of the link-wide symbol table.
type globalSym struct {
	name      string
	objIndex  int
	secIndex  int // index into that object's Sections
	value     uint32
	finalAddr uint32 // not set by any phase; Linker.finalAddr computes the address from sectionBase
}

// object is one loaded input file, annotated with the bookkeeping the
// later phases need.
type object struct {
	path string
	file *elf.File

	// sectionBase maps this object's local section index to the
	// address layout assigned that input section.
	sectionBase map[int]uint32
}

// Linker runs the four link phases (resolve, layout, relocate, emit)
// over a fixed set of input objects.
type Linker struct {
	objects []*object
	globals map[string]*globalSym

	mainObj int
	mainSec int

	pageSize uint32
}

func New() *Linker {
	return &Linker{globals: make(map[string]*globalSym), mainObj: -1, mainSec: -1}
}

// Load reads every path in order.
func (l *Linker) Load(paths []string) error {
	for _, p := range paths {
		f, err := elf.Read(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		l.objects = append(l.objects, &object{path: p, file: f, sectionBase: make(map[int]uint32)})
		for _, sec := range f.Sections {
			if sec.Name == ".pagesize" {
				l.pageSize = sec.Addr
			}
		}
	}
	return nil
}

// ResolveSymbols builds the global symbol table: every SYMTAB entry
// with a defined section is a candidate global; a name seen twice is
// a MultipleDefinition, reported alongside every other duplicate found
// in the same pass. __main must be defined exactly once and becomes
// the entry point.
func (l *Linker) ResolveSymbols() error {
	var duplicates []string
	seenDup := make(map[string]bool)

	for objIdx, obj := range l.objects {
		for _, sec := range obj.file.Sections {
			if sec.Type != elf.SHT_SYMTAB {
				continue
			}
			for _, sym := range sec.Symbols {
				if sym.Section < 0 {
					continue // undefined reference; checked in the second pass below
				}
				if _, exists := l.globals[sym.Name]; exists {
					if !seenDup[sym.Name] {
						duplicates = append(duplicates, sym.Name)
						seenDup[sym.Name] = true
					}
					continue
				}
				l.globals[sym.Name] = &globalSym{
					name:     sym.Name,
					objIndex: objIdx,
					secIndex: sym.Section,
					value:    sym.Value,
				}
				if sym.Name == "__main" {
					l.mainObj = objIdx
					l.mainSec = sym.Section
				}
			}
		}
	}

	if len(duplicates) > 0 {
		sort.Strings(duplicates)
		return &DuplicateSymbolError{Names: duplicates}
	}

	var undefined []string
	seenUndef := make(map[string]bool)
	for _, obj := range l.objects {
		for _, sec := range obj.file.Sections {
			if sec.Type != elf.SHT_SYMTAB {
				continue
			}
			for _, sym := range sec.Symbols {
				if sym.Section >= 0 {
					continue
				}
				if _, ok := l.globals[sym.Name]; !ok && !seenUndef[sym.Name] {
					undefined = append(undefined, sym.Name)
					seenUndef[sym.Name] = true
				}
			}
		}
	}
	if _, ok := l.globals["__main"]; !ok && !seenUndef["__main"] {
		undefined = append(undefined, "__main")
	}
	if len(undefined) > 0 {
		sort.Strings(undefined)
		return &UndefinedSymbolError{Names: undefined}
	}

	return nil
}

// Symbols returns every global symbol's final linked address. Valid
// only after Link has run.
func (l *Linker) Symbols() map[string]uint32 {
	out := make(map[string]uint32, len(l.globals))
	for name, g := range l.globals {
		out[name] = l.finalAddr(g)
	}
	return out
}
