package linker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albatros064/asnp/internal/elf"
)

// newLoadedObject builds an *object in the shape Load would produce
// from a single-section program: the REL section's Info already holds
// the 1-based shdr index convention elf.Read leaves in Section.Info,
// not a writer-side pre-finalize 0-based index.
func newLoadedObject(path string, f *elf.File) *object {
	return &object{path: path, file: f, sectionBase: make(map[int]uint32)}
}

func singleSectionObject(mainValue uint32, defineMain bool) *elf.File {
	f := &elf.File{Type: elf.ET_REL, Machine: elf.EM_NONE}

	text := &elf.Section{
		Name:      ".text",
		Type:      elf.SHT_PROGBITS,
		Flags:     elf.SHF_ALLOC | elf.SHF_EXECINSTR,
		Addralign: 1,
		Size:      4,
		Data:      []byte{0x00, 0x11, 0x22, 0x33},
	}
	f.Sections = append(f.Sections, text)

	symtab := &elf.Section{Name: ".symtab", Type: elf.SHT_SYMTAB}
	if defineMain {
		symtab.Symbols = append(symtab.Symbols, elf.Symbol{Name: "__main", Value: mainValue, Section: 0, Bind: elf.STB_GLOBAL})
	}
	f.Sections = append(f.Sections, symtab)

	rel := &elf.Section{
		Name: ".rel.text",
		Type: elf.SHT_REL,
		Info: 1, // shdr index 1 == .text, per elf.Read's convention
		Relocations: []elf.Relocation{
			{SymbolIndex: 1, Offset: 0, Type: RelB0},
		},
	}
	f.Sections = append(f.Sections, rel)

	return f
}

func TestLinkSingleObjectWithMain(t *testing.T) {
	l := New()
	l.objects = append(l.objects, newLoadedObject("a.o", singleSectionObject(0, true)))

	out, err := l.Link()
	require.NoError(t, err)

	// memoryOffset = base(0) + EhdrSize(52) + 3*PhdrSize(96) = 148.
	require.Equal(t, uint32(148), out.Entry)

	text := out.FindSection(".text")
	require.NotNil(t, text)
	// byte 0 patched to the low byte of the resolved address (148 = 0x94).
	require.Equal(t, byte(0x94), text.Data[0])
	require.Equal(t, []byte{0x94, 0x11, 0x22, 0x33}, text.Data)

	require.Len(t, out.Phdrs, 1)
	require.Equal(t, uint32(148), out.Phdrs[0].Vaddr)
	require.Equal(t, uint32(4), out.Phdrs[0].Filesz)
	require.Equal(t, uint32(elf.PF_X|elf.PF_R), out.Phdrs[0].Flags)
}

func TestResolveSymbolsDetectsMultipleDefinition(t *testing.T) {
	l := New()
	f1 := singleSectionObject(0, true)
	f1.Sections[1].Symbols = append(f1.Sections[1].Symbols, elf.Symbol{Name: "dup", Value: 0, Section: 0, Bind: elf.STB_GLOBAL})
	f2 := singleSectionObject(0, false)
	f2.Sections[1].Symbols = append(f2.Sections[1].Symbols, elf.Symbol{Name: "dup", Value: 4, Section: 0, Bind: elf.STB_GLOBAL})

	l.objects = append(l.objects, newLoadedObject("a.o", f1), newLoadedObject("b.o", f2))

	err := l.ResolveSymbols()
	require.Error(t, err)
	dupErr, ok := err.(*DuplicateSymbolError)
	require.True(t, ok)
	require.Equal(t, []string{"dup"}, dupErr.Names)
}

func TestResolveSymbolsRequiresMain(t *testing.T) {
	l := New()
	l.objects = append(l.objects, newLoadedObject("a.o", singleSectionObject(0, false)))

	err := l.ResolveSymbols()
	require.Error(t, err)
	undefErr, ok := err.(*UndefinedSymbolError)
	require.True(t, ok)
	require.Contains(t, undefErr.Names, "__main")
}

func TestLinkWithoutAnyExecSectionFails(t *testing.T) {
	// __main resolves fine, but the section it lives in is never marked
	// executable, so layout's own "no exec group" guard must fire
	// rather than relying on ResolveSymbols to catch this case.
	l := New()
	f := &elf.File{Type: elf.ET_REL}
	data := &elf.Section{Name: ".data", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addralign: 1, Data: []byte{0}}
	f.Sections = append(f.Sections, data)
	symtab := &elf.Section{Name: ".symtab", Type: elf.SHT_SYMTAB, Symbols: []elf.Symbol{
		{Name: "__main", Value: 0, Section: 0, Bind: elf.STB_GLOBAL},
	}}
	f.Sections = append(f.Sections, symtab)
	l.objects = append(l.objects, newLoadedObject("a.o", f))

	_, err := l.Link()
	require.Error(t, err)
	undefErr, ok := err.(*UndefinedSymbolError)
	require.True(t, ok)
	require.Equal(t, []string{"__main"}, undefErr.Names)
}

func TestSymbolsReportsFinalAddresses(t *testing.T) {
	l := New()
	l.objects = append(l.objects, newLoadedObject("a.o", singleSectionObject(2, true)))

	_, err := l.Link()
	require.NoError(t, err)

	syms := l.Symbols()
	require.Equal(t, uint32(150), syms["__main"]) // base 148 + symbol value 2
}
