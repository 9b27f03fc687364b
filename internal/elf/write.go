package elf

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
)

// stringTable accumulates null-terminated strings and returns stable
// offsets.
type stringTable struct {
	buf    []byte
	offset map[string]uint32
}

func newStringTable() *stringTable {
	return &stringTable{buf: []byte{0}, offset: make(map[string]uint32)}
}

func (t *stringTable) intern(s string) uint32 {
	if s == "" {
		return 0
	}
	if off, ok := t.offset[s]; ok {
		return off
	}
	off := uint32(len(t.buf))
	t.buf = append(t.buf, []byte(s)...)
	t.buf = append(t.buf, 0)
	t.offset[s] = off
	return off
}

// finalize materializes the raw Data/Size of every SYMTAB and REL
// section from their decoded Symbols/Relocations slices, inserting a
// companion STRTAB immediately after each SYMTAB and fixing up sh_link
// to point at it. Returns the finalized section list; f.Sections keeps
// its original membership but SYMTAB/REL entries gain their serialized
// Data and on-disk Link/Info indices.
func (f *File) finalize() []*Section {
	// section index (into f.Sections) -> final index in the returned
	// slice, needed because inserting companion STRTABs shifts
	// everything after a SYMTAB.
	finalIndex := make([]int, len(f.Sections))
	var out []*Section
	symtabFinalIndex := make(map[int]int) // original symtab index -> final index

	for i, s := range f.Sections {
		finalIndex[i] = len(out)
		out = append(out, s)
		if s.Type == SHT_SYMTAB {
			symtabFinalIndex[i] = finalIndex[i]
			data, strtab := EncodeSymtab(s.Symbols, func(section int) uint16 {
				return uint16(finalIndex[section] + 1) // +1: NULL section occupies shdr 0
			})
			s.Data = data
			s.Size = uint32(len(data))
			strtabSec := &Section{
				Name:      "." + s.Name[1:] + "str", // ".symtab" -> ".symtabstr"
				Type:      SHT_STRTAB,
				Addralign: 1,
				Data:      strtab,
				Size:      uint32(len(strtab)),
			}
			out = append(out, strtabSec)
			// sh_link of a SYMTAB shdr names its string table; the
			// companion strtab always lands immediately after it.
			s.Link = uint32(finalIndex[i] + 1 + 1)
		}
	}

	for _, s := range f.Sections {
		if s.Type != SHT_REL {
			continue
		}
		// s.Link names the original symtab section's index; remap to
		// its final (shifted) shdr index.
		if linked, ok := symtabFinalIndex[int(s.Link)]; ok {
			s.Link = uint32(linked + 1)
		}
		data := EncodeRelocations(s.Relocations)
		s.Data = data
		s.Size = uint32(len(data))
		// s.Info names the target section's original index; remap.
		s.Info = uint32(finalIndex[int(s.Info)] + 1)
	}

	return out
}

// Write serializes f to path: Ehdr, Phdrs, section data (page-aligned
// per section FileAlignment), section headers, then the Ehdr/Phdrs are
// rewritten with their final offsets.
func (f *File) Write(path string) error {
	sections := f.finalize()

	var buf bytes.Buffer

	shstrtab := newStringTable()

	nameOffsets := make([]uint32, len(sections))
	for i, s := range sections {
		nameOffsets[i] = shstrtab.intern(s.Name)
	}
	shstrtabIndex := len(sections)
	shstrtabNameOff := shstrtab.intern(".shstrtab")

	ehdr := Ehdr{
		Ident:     Ident(),
		Type:      f.Type,
		Machine:   f.Machine,
		Version:   EV_CURRENT,
		Entry:     f.Entry,
		Ehsize:    EhdrSize,
		Phentsize: PhdrSize,
		Phnum:     uint16(len(f.Phdrs)),
		Shentsize: ShdrSize,
		Shnum:     uint16(len(sections) + 2), // + NULL section + shstrtab
		Shstrndx:  uint16(shstrtabIndex + 1),
	}

	// Reserve space for Ehdr + Phdrs; section data follows immediately.
	headerSize := EhdrSize + len(f.Phdrs)*PhdrSize
	buf.Write(make([]byte, headerSize))

	fileOffsets := make([]uint32, len(sections))
	for i, s := range sections {
		if s.Type == SHT_NOBITS {
			fileOffsets[i] = uint32(buf.Len())
			continue
		}
		align := s.FileAlignment
		if align == 0 {
			align = 1
		}
		for uint32(buf.Len())%align != 0 {
			buf.WriteByte(0)
		}
		fileOffsets[i] = uint32(buf.Len())
		buf.Write(s.Data)
	}

	for uint32(buf.Len())%4 != 0 {
		buf.WriteByte(0)
	}
	shstrtabDataOffset := uint32(buf.Len())
	buf.Write(shstrtab.buf)

	shoff := uint32(buf.Len())

	// NULL section header.
	writeShdr(&buf, Shdr{})

	for i, s := range sections {
		writeShdr(&buf, Shdr{
			NameOff:   nameOffsets[i],
			Type:      s.Type,
			Flags:     s.Flags,
			Addr:      s.Addr,
			Offset:    fileOffsets[i],
			Size:      s.Size,
			Link:      s.Link,
			Info:      s.Info,
			Addralign: s.Addralign,
			Entsize:   s.Entsize,
		})
	}

	writeShdr(&buf, Shdr{
		NameOff:   shstrtabNameOff,
		Type:      SHT_STRTAB,
		Offset:    shstrtabDataOffset,
		Size:      uint32(len(shstrtab.buf)),
		Addralign: 1,
	})

	ehdr.Shoff = shoff
	if len(f.Phdrs) > 0 {
		ehdr.Phoff = EhdrSize
	}

	// Rewrite each program header's file offset now that section data
	// placement is known: a PT_LOAD's p_offset is where the section
	// holding its p_vaddr actually landed.
	phdrs := make([]Phdr, len(f.Phdrs))
	copy(phdrs, f.Phdrs)
	for pi := range phdrs {
		for i, s := range sections {
			if s.Type == SHT_NOBITS || !s.IsAlloc() {
				continue
			}
			if s.Addr == phdrs[pi].Vaddr {
				phdrs[pi].Offset = fileOffsets[i]
				break
			}
		}
	}

	out := buf.Bytes()
	var head bytes.Buffer
	writeEhdr(&head, ehdr)
	for _, p := range phdrs {
		writePhdr(&head, p)
	}
	copy(out[:headerSize], head.Bytes())

	return os.WriteFile(path, out, 0644)
}

func writeEhdr(w io.Writer, e Ehdr) {
	w.Write(e.Ident[:])
	binary.Write(w, binary.LittleEndian, e.Type)
	binary.Write(w, binary.LittleEndian, e.Machine)
	binary.Write(w, binary.LittleEndian, e.Version)
	binary.Write(w, binary.LittleEndian, e.Entry)
	binary.Write(w, binary.LittleEndian, e.Phoff)
	binary.Write(w, binary.LittleEndian, e.Shoff)
	binary.Write(w, binary.LittleEndian, e.Flags)
	binary.Write(w, binary.LittleEndian, e.Ehsize)
	binary.Write(w, binary.LittleEndian, e.Phentsize)
	binary.Write(w, binary.LittleEndian, e.Phnum)
	binary.Write(w, binary.LittleEndian, e.Shentsize)
	binary.Write(w, binary.LittleEndian, e.Shnum)
	binary.Write(w, binary.LittleEndian, e.Shstrndx)
}

func writePhdr(w io.Writer, p Phdr) {
	binary.Write(w, binary.LittleEndian, p.Type)
	binary.Write(w, binary.LittleEndian, p.Offset)
	binary.Write(w, binary.LittleEndian, p.Vaddr)
	binary.Write(w, binary.LittleEndian, p.Paddr)
	binary.Write(w, binary.LittleEndian, p.Filesz)
	binary.Write(w, binary.LittleEndian, p.Memsz)
	binary.Write(w, binary.LittleEndian, p.Flags)
	binary.Write(w, binary.LittleEndian, p.Align)
}

func writeShdr(w io.Writer, s Shdr) {
	binary.Write(w, binary.LittleEndian, s.NameOff)
	binary.Write(w, binary.LittleEndian, s.Type)
	binary.Write(w, binary.LittleEndian, s.Flags)
	binary.Write(w, binary.LittleEndian, s.Addr)
	binary.Write(w, binary.LittleEndian, s.Offset)
	binary.Write(w, binary.LittleEndian, s.Size)
	binary.Write(w, binary.LittleEndian, s.Link)
	binary.Write(w, binary.LittleEndian, s.Info)
	binary.Write(w, binary.LittleEndian, s.Addralign)
	binary.Write(w, binary.LittleEndian, s.Entsize)
}

// EncodeSymtab serializes syms plus a companion string table, used by
// callers that build SYMTAB/STRTAB section pairs (the assembler's
// object writer, the linker's executable writer).
func EncodeSymtab(syms []Symbol, sectionIndexOf func(section int) uint16) ([]byte, []byte) {
	strtab := newStringTable()
	var data bytes.Buffer

	writeSym(&data, Sym{}) // index 0 is always the null symbol
	for _, sym := range syms {
		nameOff := strtab.intern(sym.Name)
		shndx := uint16(0)
		if sym.Section >= 0 {
			shndx = sectionIndexOf(sym.Section)
		}
		writeSym(&data, Sym{
			NameOff: nameOff,
			Value:   sym.Value,
			Info:    SymInfo(sym.Bind, STT_NOTYPE),
			Shndx:   shndx,
		})
	}
	return data.Bytes(), strtab.buf
}

func writeSym(w io.Writer, s Sym) {
	binary.Write(w, binary.LittleEndian, s.NameOff)
	binary.Write(w, binary.LittleEndian, s.Value)
	binary.Write(w, binary.LittleEndian, s.Size)
	w.Write([]byte{s.Info, s.Other})
	binary.Write(w, binary.LittleEndian, s.Shndx)
}

// EncodeRelocations serializes a REL section's contents.
func EncodeRelocations(relocs []Relocation) []byte {
	var data bytes.Buffer
	for _, r := range relocs {
		binary.Write(&data, binary.LittleEndian, r.Offset)
		binary.Write(&data, binary.LittleEndian, RelInfo(uint32(r.SymbolIndex), r.Type))
	}
	return data.Bytes()
}
