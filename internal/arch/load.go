package arch

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/albatros064/asnp/internal/diag"
)

// rawDoc mirrors the on-disk architecture description document: a
// YAML document whose top-level keys are dataWidth, addressWidth,
// addressableWidth, pageSize, and the arrays segments, fragments,
// formats, instructions, relocations.
type rawDoc struct {
	DataWidth        int    `yaml:"dataWidth"`
	AddressWidth     int    `yaml:"addressWidth"`
	AddressableWidth int    `yaml:"addressableWidth"`
	PageSize         uint32 `yaml:"pageSize"`

	Segments []struct {
		Name        string `yaml:"name"`
		Start       uint32 `yaml:"start"`
		Size        uint32 `yaml:"size"`
		Align       uint32 `yaml:"align"`
		Fill        int    `yaml:"fill"`
		Ephemeral   bool   `yaml:"ephemeral"`
		ReadOnly    bool   `yaml:"readOnly"`
		Executable  bool   `yaml:"executable"`
		Relocatable bool   `yaml:"relocatable"`
	} `yaml:"segments"`

	Fragments []struct {
		Name       string `yaml:"name"`
		Type       string `yaml:"type"`
		Width      int    `yaml:"width"`
		OWidth     int    `yaml:"owidth"`
		Alignment  int    `yaml:"alignment"`
		Offset     int    `yaml:"offset"`
		RightAlign bool   `yaml:"rightAlign"`
		Group      string `yaml:"group"`
		Relocation string `yaml:"relocation"`
	} `yaml:"fragments"`

	Formats []struct {
		Name      string   `yaml:"name"`
		Width     int      `yaml:"width"`
		Fragments []string `yaml:"fragments"`
	} `yaml:"formats"`

	Instructions []struct {
		Mnemonic string            `yaml:"mnemonic"`
		Format   string            `yaml:"format"`
		Pattern  []string          `yaml:"pattern"`
		Defaults map[string]string `yaml:"defaults"`
		ID       *int              `yaml:"id"`
		Components []struct {
			ID           int `yaml:"id"`
			Replacements []struct {
				Source     string `yaml:"source"`
				Dest       string `yaml:"dest"`
				Shift      int    `yaml:"shift"`
				Relocation string `yaml:"relocation"`
			} `yaml:"replacements"`
		} `yaml:"components"`
	} `yaml:"instructions"`

	Relocations []struct {
		Name string `yaml:"name"`
		Type uint8  `yaml:"type"`
	} `yaml:"relocations"`
}

// Load reads NAME.arch.yaml from dir and materializes the immutable
// Arch table set. This is a pure data-binding step; the assembler and
// linker cores only ever consume the resulting *Arch.
func Load(dir, name string) (*Arch, error) {
	path := filepath.Join(dir, name+".arch.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &diag.Error{Kind: diag.KindConfig, Column: -1, Message: fmt.Sprintf("reading architecture %q: %v", path, err)}
	}

	var doc rawDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &diag.Error{Kind: diag.KindConfig, Column: -1, Message: fmt.Sprintf("parsing architecture %q: %v", path, err)}
	}

	a := &Arch{
		Name:             name,
		DataWidth:        doc.DataWidth,
		AddressWidth:     doc.AddressWidth,
		AddressableWidth: doc.AddressableWidth,
		PageSize:         doc.PageSize,
		Fragments:        make(map[string]Fragment),
		Formats:          make(map[string]Format),
		Relocations:      make(map[string]RelocationType),
		Instructions:     make(map[string][]Instruction),
		InstructionsByID: make(map[int]Instruction),
	}

	for _, s := range doc.Segments {
		a.Segments = append(a.Segments, SegmentDescription{
			Name:        s.Name,
			Start:       s.Start,
			Size:        s.Size,
			Align:       s.Align,
			Fill:        byte(s.Fill),
			Ephemeral:   s.Ephemeral,
			ReadOnly:    s.ReadOnly,
			Executable:  s.Executable,
			Relocatable: s.Relocatable,
		})
	}

	for _, r := range doc.Relocations {
		a.Relocations[r.Name] = RelocationType{Name: r.Name, Type: r.Type}
	}

	for _, f := range doc.Fragments {
		a.Fragments[f.Name] = Fragment{
			Name:       f.Name,
			Type:       FragmentType(f.Type),
			Width:      f.Width,
			OWidth:     f.OWidth,
			Alignment:  f.Alignment,
			Offset:     f.Offset,
			RightAlign: f.RightAlign,
			Group:      f.Group,
			Relocation: f.Relocation,
		}
	}

	for _, f := range doc.Formats {
		a.Formats[f.Name] = Format{Name: f.Name, Width: f.Width, Fragments: f.Fragments}
	}

	for _, inst := range doc.Instructions {
		instruction := Instruction{
			Mnemonic: inst.Mnemonic,
			Format:   inst.Format,
			Pattern:  inst.Pattern,
			Defaults: inst.Defaults,
		}
		if inst.ID != nil {
			instruction.ID = *inst.ID
			instruction.HasID = true
		}
		for _, c := range inst.Components {
			comp := Component{ID: c.ID}
			for _, r := range c.Replacements {
				comp.Replacements = append(comp.Replacements, Replacement{
					Source:     r.Source,
					Dest:       r.Dest,
					Shift:      r.Shift,
					Relocation: r.Relocation,
				})
			}
			instruction.Components = append(instruction.Components, comp)
		}

		a.Instructions[instruction.Mnemonic] = append(a.Instructions[instruction.Mnemonic], instruction)
		if instruction.HasID {
			a.InstructionsByID[instruction.ID] = instruction
		}
	}

	return a, nil
}
