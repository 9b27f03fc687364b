package elf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildFixture returns a small relocatable object in the shape
// BuildObject produces: one PROGBITS section, a SYMTAB naming one
// defined and one undefined symbol, and a REL section holding one
// type-4 relocation at offset 0 of .text against the defined symbol.
func buildFixture() *File {
	f := &File{Type: ET_REL, Machine: EM_NONE}

	text := &Section{
		Name:          ".text",
		Type:          SHT_PROGBITS,
		Flags:         SHF_ALLOC | SHF_EXECINSTR,
		Addralign:     1,
		FileAlignment: 1,
		Size:          6,
		Data:          []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
	}
	f.Sections = append(f.Sections, text)

	symtab := &Section{
		Name: ".symtab",
		Type: SHT_SYMTAB,
		Symbols: []Symbol{
			{Name: "start", Value: 2, Section: 0, Bind: STB_GLOBAL},
			{Name: "missing", Section: -1, Bind: STB_GLOBAL},
		},
	}
	symtabIndex := len(f.Sections)
	f.Sections = append(f.Sections, symtab)

	rel := &Section{
		Name: ".rel.text",
		Type: SHT_REL,
		Link: uint32(symtabIndex),
		Info: 0, // .text's original index
		Relocations: []Relocation{
			{SymbolIndex: 1, Offset: 0, Type: 4},
		},
	}
	f.Sections = append(f.Sections, rel)

	return f
}

func TestWriteReadRoundTrip(t *testing.T) {
	f := buildFixture()
	path := filepath.Join(t.TempDir(), "fixture.o")
	require.NoError(t, f.Write(path))

	got, err := Read(path)
	require.NoError(t, err)

	require.Equal(t, ET_REL, int(got.Type))

	text := got.FindSection(".text")
	require.NotNil(t, text)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, text.Data)

	symtab := got.FindSection(".symtab")
	require.NotNil(t, symtab)
	require.Len(t, symtab.Symbols, 2)

	byName := make(map[string]Symbol, len(symtab.Symbols))
	for _, s := range symtab.Symbols {
		byName[s.Name] = s
	}

	start, ok := byName["start"]
	require.True(t, ok)
	require.Equal(t, uint32(2), start.Value)
	require.GreaterOrEqual(t, start.Section, 0)
	require.Equal(t, got.FindSection(".text"), got.Sections[start.Section])

	missing, ok := byName["missing"]
	require.True(t, ok)
	require.Equal(t, -1, missing.Section)

	rel := got.FindSection(".rel.text")
	require.NotNil(t, rel)
	require.Len(t, rel.Relocations, 1)
	require.Equal(t, uint32(0), rel.Relocations[0].Offset)
	require.Equal(t, uint8(4), rel.Relocations[0].Type)
	require.Equal(t, 1, rel.Relocations[0].SymbolIndex)
}

func TestSymbolNamesSurviveTheCompanionStringTable(t *testing.T) {
	// Regression test: a SYMTAB section's own sh_link must name its
	// companion STRTAB, or every symbol name reads back empty.
	f := buildFixture()
	path := filepath.Join(t.TempDir(), "names.o")
	require.NoError(t, f.Write(path))

	got, err := Read(path)
	require.NoError(t, err)

	symtab := got.FindSection(".symtab")
	require.NotNil(t, symtab)
	for _, s := range symtab.Symbols {
		require.NotEmpty(t, s.Name)
	}
}

func TestInvalidIdentIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.o")
	require.NoError(t, os.WriteFile(path, []byte("not an elf file at all, but long enough to pass the length check............"), 0644))
	_, err := Read(path)
	require.Error(t, err)
}
