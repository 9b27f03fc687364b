package linker

import "github.com/albatros064/asnp/internal/elf"

var outputName = [kindCount]string{".text", ".rodata", ".data", ".bss"}

// Link runs ResolveSymbols, layout, and relocate in order, then
// assembles the merged executable image. It does not write the file;
// call (*elf.File).Write on the result.
func (l *Linker) Link() (*elf.File, error) {
	if err := l.ResolveSymbols(); err != nil {
		return nil, err
	}

	groups, err := l.layout()
	if err != nil {
		return nil, err
	}

	if err := l.relocate(); err != nil {
		return nil, err
	}

	f := &elf.File{Type: elf.ET_EXEC, Machine: elf.EM_NONE}

	mainGlobal := l.globals["__main"]
	f.Entry = l.finalAddr(mainGlobal)

	var outSections [kindCount]*elf.Section
	for kind := 0; kind < kindCount; kind++ {
		group := groups[kind]
		if len(group) == 0 {
			continue
		}
		sec := &elf.Section{
			Name:          outputName[kind],
			Addr:          l.objects[group[0].objIndex].sectionBase[group[0].secIndex],
			FileAlignment: l.pageSizeOrOne(),
		}
		sec.Flags = elf.SHF_ALLOC
		switch kind {
		case kindExec:
			sec.Type = elf.SHT_PROGBITS
			sec.Flags |= elf.SHF_EXECINSTR
		case kindRodata:
			sec.Type = elf.SHT_PROGBITS
		case kindData:
			sec.Type = elf.SHT_PROGBITS
			sec.Flags |= elf.SHF_WRITE
		case kindBss:
			sec.Type = elf.SHT_NOBITS
			sec.Flags |= elf.SHF_WRITE
		}

		// Input sections keep the addresses layout assigned them, so the
		// merged image must reproduce any alignment gaps between them.
		base := sec.Addr
		var span uint32
		for _, is := range group {
			addr := l.objects[is.objIndex].sectionBase[is.secIndex]
			sec.ComponentNames = append(sec.ComponentNames, is.sec.Name)
			if sec.Type != elf.SHT_NOBITS {
				for uint32(len(sec.Data)) < addr-base {
					sec.Data = append(sec.Data, 0)
				}
				sec.Data = append(sec.Data, is.sec.Data...)
			}
			span = addr + is.sec.Size - base
		}
		sec.Size = span
		sec.Addralign = 1

		outSections[kind] = sec
		f.Sections = append(f.Sections, sec)
	}

	f.Phdrs = l.programHeaders(outSections)

	return f, nil
}

func (l *Linker) pageSizeOrOne() uint32 {
	if l.pageSize == 0 {
		return 1
	}
	return l.pageSize
}

// programHeaders builds the PT_LOAD segments: exec (X|R), rodata (R),
// data+bss (R|W). p_filesz excludes NOBITS content; p_memsz includes
// it.
func (l *Linker) programHeaders(sections [kindCount]*elf.Section) []elf.Phdr {
	var phdrs []elf.Phdr

	if sections[kindExec] != nil {
		s := sections[kindExec]
		phdrs = append(phdrs, elf.Phdr{
			Type: elf.PT_LOAD, Offset: s.Addr, Vaddr: s.Addr, Paddr: s.Addr,
			Filesz: s.Size, Memsz: s.Size, Flags: elf.PF_X | elf.PF_R, Align: l.pageSizeOrOne(),
		})
	}
	if sections[kindRodata] != nil {
		s := sections[kindRodata]
		phdrs = append(phdrs, elf.Phdr{
			Type: elf.PT_LOAD, Offset: s.Addr, Vaddr: s.Addr, Paddr: s.Addr,
			Filesz: s.Size, Memsz: s.Size, Flags: elf.PF_R, Align: l.pageSizeOrOne(),
		})
	}

	data, bss := sections[kindData], sections[kindBss]
	if data != nil || bss != nil {
		var vaddr, filesz, memsz uint32
		switch {
		case data != nil && bss != nil:
			vaddr = data.Addr
			filesz = data.Size
			memsz = (bss.Addr + bss.Size) - data.Addr
		case data != nil:
			vaddr = data.Addr
			filesz = data.Size
			memsz = data.Size
		case bss != nil:
			vaddr = bss.Addr
			filesz = 0
			memsz = bss.Size
		}
		phdrs = append(phdrs, elf.Phdr{
			Type: elf.PT_LOAD, Offset: vaddr, Vaddr: vaddr, Paddr: vaddr,
			Filesz: filesz, Memsz: memsz, Flags: elf.PF_R | elf.PF_W, Align: l.pageSizeOrOne(),
		})
	}

	return phdrs
}
