package linker

import "github.com/albatros064/asnp/internal/elf"

// inputSection names one section contributed by one loaded object.
type inputSection struct {
	objIndex int
	secIndex int
	sec      *elf.Section
}

const (
	kindExec = iota
	kindRodata
	kindData
	kindBss
	kindCount
)

// segmentCount is the number of PT_LOAD program headers the emitted
// executable carries: exec, rodata, and data+bss combined.
const segmentCount = 3

// classify sorts every input PROGBITS/NOBITS section into one of the
// four output kinds. The section owning __main is moved to the front
// of kindExec.
func (l *Linker) classify() [kindCount][]inputSection {
	var groups [kindCount][]inputSection

	for objIdx, obj := range l.objects {
		for secIdx, sec := range obj.file.Sections {
			switch sec.Type {
			case elf.SHT_PROGBITS:
				is := inputSection{objIdx, secIdx, sec}
				switch {
				case sec.IsExecutable():
					groups[kindExec] = append(groups[kindExec], is)
				case sec.IsReadOnly():
					groups[kindRodata] = append(groups[kindRodata], is)
				default:
					groups[kindData] = append(groups[kindData], is)
				}
			case elf.SHT_NOBITS:
				groups[kindBss] = append(groups[kindBss], inputSection{objIdx, secIdx, sec})
			}
		}
	}

	exec := groups[kindExec]
	for i, is := range exec {
		if is.objIndex == l.mainObj && is.secIndex == l.mainSec {
			exec[0], exec[i] = exec[i], exec[0]
			break
		}
	}
	groups[kindExec] = exec

	return groups
}

func roundUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	if r := v % align; r != 0 {
		v += align - r
	}
	return v
}

// layout assigns every input section a final address, rounding up to
// each section's alignment and to the page size between kinds, and
// returns the classified groups with sectionBase populated on each
// object.
func (l *Linker) layout() ([kindCount][]inputSection, error) {
	groups := l.classify()

	if len(groups[kindExec]) == 0 {
		return groups, &UndefinedSymbolError{Names: []string{"__main"}}
	}

	base := groups[kindExec][0].sec.Addr
	memoryOffset := base + elf.EhdrSize + segmentCount*elf.PhdrSize

	pageSize := l.pageSize
	if pageSize == 0 {
		pageSize = 1
	}

	for kind := 0; kind < kindCount; kind++ {
		if kind > 0 && len(groups[kind]) > 0 {
			memoryOffset = roundUp(memoryOffset, pageSize)
		}
		for _, is := range groups[kind] {
			align := is.sec.Addralign
			if align == 0 {
				align = 1
			}
			memoryOffset = roundUp(memoryOffset, align)
			l.objects[is.objIndex].sectionBase[is.secIndex] = memoryOffset
			memoryOffset += is.sec.Size
		}
	}

	return groups, nil
}

// finalAddr resolves a global symbol's final linked address, valid
// only after layout has run.
func (l *Linker) finalAddr(g *globalSym) uint32 {
	return l.objects[g.objIndex].sectionBase[g.secIndex] + g.value
}
