package elf

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Read parses path: headers first, then strings, then symbols, then
// relocations, then progbits. Relocation symbols are not resolved
// here: each Relocation keeps the raw symbol index from the file, and
// the REL section's Link keeps its SYMTAB's on-disk section-header
// index.
func Read(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*File, error) {
	if len(raw) < EhdrSize {
		return nil, fmt.Errorf("file too short for ELF header")
	}

	ehdr, err := readEhdr(raw)
	if err != nil {
		return nil, err
	}
	if err := validateIdent(ehdr.Ident); err != nil {
		return nil, err
	}

	f := &File{Type: ehdr.Type, Machine: ehdr.Machine, Entry: ehdr.Entry}

	for i := 0; i < int(ehdr.Phnum); i++ {
		off := int(ehdr.Phoff) + i*PhdrSize
		if off+PhdrSize > len(raw) {
			return nil, fmt.Errorf("program header %d out of bounds", i)
		}
		f.Phdrs = append(f.Phdrs, readPhdr(raw[off:]))
	}

	if ehdr.Shnum == 0 {
		return f, nil
	}

	shdrs := make([]Shdr, ehdr.Shnum)
	for i := 0; i < int(ehdr.Shnum); i++ {
		off := int(ehdr.Shoff) + i*ShdrSize
		if off+ShdrSize > len(raw) {
			return nil, fmt.Errorf("section header %d out of bounds", i)
		}
		shdrs[i] = readShdr(raw[off:])
	}

	// Section 0 is always SHT_NULL; shstrndx names the section-name
	// string table.
	var shstrtab []byte
	if int(ehdr.Shstrndx) < len(shdrs) {
		h := shdrs[ehdr.Shstrndx]
		shstrtab = sliceAt(raw, h.Offset, h.Size)
	}

	f.Sections = make([]*Section, 0, len(shdrs)-1)
	indexMap := make(map[int]int) // file shdr index -> f.Sections index
	for i := 1; i < len(shdrs); i++ {
		h := shdrs[i]
		if h.Type == SHT_STRTAB && i == int(ehdr.Shstrndx) {
			continue // the section-name string table is not a user section
		}
		s := &Section{
			Name:          cstr(shstrtab, h.NameOff),
			Type:          h.Type,
			Flags:         h.Flags,
			Addr:          h.Addr,
			Size:          h.Size,
			Link:          h.Link,
			Info:          h.Info,
			Addralign:     h.Addralign,
			Entsize:       h.Entsize,
			FileAlignment: h.Addralign,
		}
		indexMap[i] = len(f.Sections)
		f.Sections = append(f.Sections, s)
	}

	// Strings (companion STRTABs for SYMTAB sections).
	strtabs := make(map[int][]byte) // file shdr index of STRTAB -> bytes
	for i, h := range shdrs {
		if h.Type == SHT_STRTAB && i != int(ehdr.Shstrndx) {
			strtabs[i] = sliceAt(raw, h.Offset, h.Size)
		}
	}

	// Symbols.
	for i := 1; i < len(shdrs); i++ {
		h := shdrs[i]
		if h.Type != SHT_SYMTAB {
			continue
		}
		sec := f.Sections[indexMap[i]]
		strtab := strtabs[int(h.Link)]
		data := sliceAt(raw, h.Offset, h.Size)
		count := len(data) / SymSize
		for k := 1; k < count; k++ { // skip the null symbol at index 0
			sym := readSym(data[k*SymSize:])
			secIdx := -1
			if sym.Shndx != 0 {
				if mapped, ok := indexMap[int(sym.Shndx)]; ok {
					secIdx = mapped
				}
			}
			sec.Symbols = append(sec.Symbols, Symbol{
				Name:    cstr(strtab, sym.NameOff),
				Value:   sym.Value,
				Section: secIdx,
				Bind:    sym.Bind(),
			})
		}
	}

	// Relocations: raw symbol indices, left unresolved.
	for i := 1; i < len(shdrs); i++ {
		h := shdrs[i]
		if h.Type != SHT_REL {
			continue
		}
		sec := f.Sections[indexMap[i]]
		data := sliceAt(raw, h.Offset, h.Size)
		count := len(data) / RelSize
		for k := 0; k < count; k++ {
			r := readRel(data[k*RelSize:])
			sec.Relocations = append(sec.Relocations, Relocation{
				SymbolIndex: int(r.Symbol()),
				Offset:      r.Offset,
				Type:        r.Type(),
			})
		}
	}

	// Progbits (and NOBITS placeholders).
	for i := 1; i < len(shdrs); i++ {
		h := shdrs[i]
		if h.Type != SHT_PROGBITS && h.Type < SHT_LOPROC {
			continue
		}
		sec := f.Sections[indexMap[i]]
		if h.Type == SHT_NOBITS {
			continue
		}
		sec.Data = sliceAt(raw, h.Offset, h.Size)
	}

	return f, nil
}

func sliceAt(raw []byte, off, size uint32) []byte {
	end := off + size
	if int(end) > len(raw) {
		end = uint32(len(raw))
	}
	if int(off) > len(raw) {
		return nil
	}
	out := make([]byte, end-off)
	copy(out, raw[off:end])
	return out
}

func cstr(table []byte, off uint32) string {
	if table == nil || int(off) >= len(table) {
		return ""
	}
	end := off
	for int(end) < len(table) && table[end] != 0 {
		end++
	}
	return string(table[off:end])
}

func readEhdr(raw []byte) (Ehdr, error) {
	var e Ehdr
	copy(e.Ident[:], raw[0:16])
	e.Type = binary.LittleEndian.Uint16(raw[16:18])
	e.Machine = binary.LittleEndian.Uint16(raw[18:20])
	e.Version = binary.LittleEndian.Uint32(raw[20:24])
	e.Entry = binary.LittleEndian.Uint32(raw[24:28])
	e.Phoff = binary.LittleEndian.Uint32(raw[28:32])
	e.Shoff = binary.LittleEndian.Uint32(raw[32:36])
	e.Flags = binary.LittleEndian.Uint32(raw[36:40])
	e.Ehsize = binary.LittleEndian.Uint16(raw[40:42])
	e.Phentsize = binary.LittleEndian.Uint16(raw[42:44])
	e.Phnum = binary.LittleEndian.Uint16(raw[44:46])
	e.Shentsize = binary.LittleEndian.Uint16(raw[46:48])
	e.Shnum = binary.LittleEndian.Uint16(raw[48:50])
	e.Shstrndx = binary.LittleEndian.Uint16(raw[50:52])
	return e, nil
}

func readPhdr(raw []byte) Phdr {
	return Phdr{
		Type:   binary.LittleEndian.Uint32(raw[0:4]),
		Offset: binary.LittleEndian.Uint32(raw[4:8]),
		Vaddr:  binary.LittleEndian.Uint32(raw[8:12]),
		Paddr:  binary.LittleEndian.Uint32(raw[12:16]),
		Filesz: binary.LittleEndian.Uint32(raw[16:20]),
		Memsz:  binary.LittleEndian.Uint32(raw[20:24]),
		Flags:  binary.LittleEndian.Uint32(raw[24:28]),
		Align:  binary.LittleEndian.Uint32(raw[28:32]),
	}
}

func readShdr(raw []byte) Shdr {
	return Shdr{
		NameOff:   binary.LittleEndian.Uint32(raw[0:4]),
		Type:      binary.LittleEndian.Uint32(raw[4:8]),
		Flags:     binary.LittleEndian.Uint32(raw[8:12]),
		Addr:      binary.LittleEndian.Uint32(raw[12:16]),
		Offset:    binary.LittleEndian.Uint32(raw[16:20]),
		Size:      binary.LittleEndian.Uint32(raw[20:24]),
		Link:      binary.LittleEndian.Uint32(raw[24:28]),
		Info:      binary.LittleEndian.Uint32(raw[28:32]),
		Addralign: binary.LittleEndian.Uint32(raw[32:36]),
		Entsize:   binary.LittleEndian.Uint32(raw[36:40]),
	}
}

func readSym(raw []byte) Sym {
	return Sym{
		NameOff: binary.LittleEndian.Uint32(raw[0:4]),
		Value:   binary.LittleEndian.Uint32(raw[4:8]),
		Size:    binary.LittleEndian.Uint32(raw[8:12]),
		Info:    raw[12],
		Other:   raw[13],
		Shndx:   binary.LittleEndian.Uint16(raw[14:16]),
	}
}

func readRel(raw []byte) Rel {
	return Rel{
		Offset: binary.LittleEndian.Uint32(raw[0:4]),
		Info:   binary.LittleEndian.Uint32(raw[4:8]),
	}
}
