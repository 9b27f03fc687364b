package asmcore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/albatros064/asnp/internal/arch"
	"github.com/albatros064/asnp/internal/diag"
	"github.com/albatros064/asnp/internal/numeric"
	"github.com/albatros064/asnp/internal/segment"
	"github.com/albatros064/asnp/internal/token"
)

// ArchLoader loads an architecture description by name. In production
// this is arch.Load; tests substitute an in-memory table.
type ArchLoader func(dir, name string) (*arch.Arch, error)

// Assembler is the line-by-line state machine at the center of the
// assembler. It owns the segment table and orchestrates the
// instruction encoder and the reference resolver.
type Assembler struct {
	Loader  ArchLoader
	ArchDir string

	Architecture *arch.Arch

	segments     map[string]*segment.Segment
	segmentOrder []string // declaration order, for raw-output concatenation
	active       *segment.Segment
	usedSegments map[string]bool

	// labelOwner maps a label name to the name of the segment that
	// owns it, instead of a direct pointer, so labels never form a
	// cycle back to segments.
	labelOwner map[string]string

	currentFile string
	currentLine int
	state       lineState

	Symbols map[string]uint32 // populated by Resolve
}

func New(loader ArchLoader, archDir string) *Assembler {
	return &Assembler{
		Loader:       loader,
		ArchDir:      archDir,
		segments:     make(map[string]*segment.Segment),
		usedSegments: make(map[string]bool),
		labelOwner:   make(map[string]string),
		state:        labelState,
	}
}

func (a *Assembler) err(kind diag.Kind, col int, format string, args ...any) error {
	return diag.New(kind, a.currentFile, a.currentLine, col, format, args...)
}

// Segments exposes the runtime segment table, in declaration order.
func (a *Assembler) Segments() []*segment.Segment {
	out := make([]*segment.Segment, 0, len(a.segmentOrder))
	for _, name := range a.segmentOrder {
		out = append(out, a.segments[name])
	}
	return out
}

// UsedSegments reports which segments actually received a `.segment`
// (or shorthand) directive during assembly.
func (a *Assembler) UsedSegments() map[string]bool { return a.usedSegments }

// AssembleFile is the entry point: it reads path and assembles it as
// the top-level source file.
func (a *Assembler) AssembleFile(path string) error {
	return a.assembleFile(path)
}

func (a *Assembler) assembleFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &diag.Error{Kind: diag.KindConfig, Message: "opening " + path + ": " + err.Error(), Column: -1}
	}
	defer f.Close()

	savedFile, savedLine, savedState := a.currentFile, a.currentLine, a.state
	a.currentFile = path
	a.state = labelState

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		a.currentLine = lineNo
		line := scanner.Text()
		if err := a.processLine(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return &diag.Error{Kind: diag.KindConfig, File: path, Line: lineNo, Column: -1, Message: err.Error()}
	}

	a.currentFile, a.currentLine, a.state = savedFile, savedLine, savedState
	return nil
}

func (a *Assembler) processLine(line string) error {
	tokens := token.Lex(line)
	if len(tokens) == 0 {
		return nil
	}

	queue := tokens
	a.state = labelState

	for len(queue) > 0 {
		t := queue[0]

		switch a.state {
		case doneState:
			return a.err(diag.KindSyntax, t.Column, "unexpected token %q after end of statement", t.Content)

		case labelState:
			switch t.Type {
			case token.Directive:
				rest := queue[1:]
				if err := a.processDirective(t, rest); err != nil {
					return err
				}
				return nil
			case token.Label:
				if err := a.processLabel(t); err != nil {
					return err
				}
				queue = queue[1:]
				a.state = actionState
			case token.Identifier:
				if a.active == nil {
					return a.err(diag.KindSyntax, t.Column, "instruction outside any segment")
				}
				if err := a.processInstruction(t, queue[1:]); err != nil {
					return err
				}
				return nil
			default:
				return a.err(diag.KindSyntax, t.Column, "unexpected token %q", t.Content)
			}

		case actionState:
			switch t.Type {
			case token.Directive:
				rest := queue[1:]
				if err := a.processDirective(t, rest); err != nil {
					return err
				}
				return nil
			case token.Identifier:
				if a.active == nil {
					return a.err(diag.KindSyntax, t.Column, "instruction outside any segment")
				}
				if err := a.processInstruction(t, queue[1:]); err != nil {
					return err
				}
				return nil
			default:
				return a.err(diag.KindSyntax, t.Column, "unexpected token %q", t.Content)
			}
		}
	}

	return nil
}

func (a *Assembler) processLabel(t token.Token) error {
	name := strings.TrimSuffix(t.Content, ":")
	if a.active == nil {
		return a.err(diag.KindSyntax, t.Column, "label %q outside any segment", name)
	}
	if _, exists := a.labelOwner[name]; exists {
		return a.err(diag.KindSyntax, t.Column, "label %q already defined", name)
	}
	a.active.AddLabel(name)
	a.labelOwner[name] = a.active.Name
	return nil
}

func (a *Assembler) getSegment(name string) (*segment.Segment, bool) {
	s, ok := a.segments[name]
	return s, ok
}

func (a *Assembler) setActive(name string) error {
	s, ok := a.getSegment(name)
	if !ok {
		return a.err(diag.KindSyntax, -1, "unknown segment %q", name)
	}
	a.active = s
	a.usedSegments[name] = true
	return nil
}

func (a *Assembler) processDirective(t token.Token, rest []token.Token) error {
	name := t.Content

	if name != ".arch" && a.Architecture == nil {
		return a.err(diag.KindSyntax, t.Column, "directive %s before .arch", name)
	}

	switch name {
	case ".arch":
		if a.Architecture != nil {
			return a.err(diag.KindSyntax, t.Column, ".arch already set")
		}
		if len(rest) != 1 {
			return a.err(diag.KindSyntax, t.Column, ".arch requires exactly one argument")
		}
		archName := rest[0].Content
		ar, err := a.Loader(a.ArchDir, archName)
		if err != nil {
			return err
		}
		a.Architecture = ar
		for _, desc := range ar.Segments {
			s := segment.New(desc)
			a.segments[desc.Name] = s
			a.segmentOrder = append(a.segmentOrder, desc.Name)
		}
		return nil

	case ".org", ".origin":
		if len(rest) != 1 {
			return a.err(diag.KindSyntax, t.Column, "%s requires exactly one argument", name)
		}
		if a.active == nil {
			return a.err(diag.KindSyntax, t.Column, "%s outside any segment", name)
		}
		v, err := numeric.Parse(rest[0].Content, numeric.Options{MaxBits: 32, Sign: numeric.ForceUnsigned})
		if err != nil {
			return a.err(diag.KindSyntax, rest[0].Column, "%v", err)
		}
		if err := a.active.SetOffset(v); err != nil {
			return a.err(diag.KindSegment, rest[0].Column, "%v", err)
		}
		return nil

	case ".segment":
		if len(rest) != 1 {
			return a.err(diag.KindSyntax, t.Column, ".segment requires exactly one argument")
		}
		return a.setActive(rest[0].Content)

	case ".text", ".data", ".rodata", ".bss":
		return a.setActive(strings.TrimPrefix(name, "."))

	case ".byte", ".word", ".dword":
		return a.emitLiteral(name, rest)

	case ".string", ".stringz":
		return a.emitString(name, rest)

	case ".include":
		return a.processInclude(rest)

	default:
		return a.err(diag.KindSyntax, t.Column, "unrecognized directive %s", name)
	}
}

func widthFor(directive string) int {
	switch directive {
	case ".byte":
		return 8
	case ".word":
		return 16
	default:
		return 32
	}
}

func (a *Assembler) emitLiteral(directive string, rest []token.Token) error {
	if a.active == nil {
		return a.err(diag.KindSyntax, -1, "%s outside any segment", directive)
	}
	width := widthFor(directive)
	nbytes := width / 8

	var v uint32
	if len(rest) > 1 {
		return a.err(diag.KindSyntax, rest[1].Column, "%s takes at most one argument", directive)
	}
	if len(rest) == 1 {
		parsed, err := numeric.Parse(rest[0].Content, numeric.Options{MaxBits: width, Sign: numeric.AllowSigned})
		if err != nil {
			return a.err(diag.KindSyntax, rest[0].Column, "%v", err)
		}
		v = parsed
	}

	for i := 0; i < nbytes; i++ {
		b := byte((v >> uint(8*i)) & 0xff) // little-endian
		if err := a.active.PushByte(b); err != nil {
			return a.err(diag.KindSegment, -1, "%v", err)
		}
	}
	return nil
}

func unescapeString(body string) (string, error) {
	var b strings.Builder
	i := 0
	n := len(body)
	for i < n {
		c := body[i]
		if c != '\\' {
			b.WriteByte(c)
			i++
			continue
		}
		if i+1 >= n {
			return "", &diag.Error{Kind: diag.KindSyntax, Column: -1, Message: "trailing backslash in string"}
		}
		e := body[i+1]
		switch e {
		case 'a':
			b.WriteByte(0x07)
		case 'b':
			b.WriteByte(0x08)
		case 'f':
			b.WriteByte(0x0c)
		case 'n':
			b.WriteByte(0x0a)
		case 'r':
			b.WriteByte(0x0d)
		case 't':
			b.WriteByte(0x09)
		case 'v':
			b.WriteByte(0x0b)
		case '\\':
			b.WriteByte('\\')
		case '\'':
			b.WriteByte('\'')
		case '"':
			b.WriteByte('"')
		default:
			if e >= '0' && e <= '9' {
				b.WriteByte(e - '0')
			} else {
				b.WriteByte(e)
			}
		}
		i += 2
	}
	return b.String(), nil
}

func (a *Assembler) emitString(directive string, rest []token.Token) error {
	if a.active == nil {
		return a.err(diag.KindSyntax, -1, "%s outside any segment", directive)
	}
	if len(rest) != 1 || rest[0].Type != token.String {
		return a.err(diag.KindSyntax, -1, "%s requires one string argument", directive)
	}
	t := rest[0]
	if t.ErrorFlag {
		return a.err(diag.KindSyntax, t.Column, "unterminated string literal")
	}
	raw := t.Content
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return a.err(diag.KindSyntax, t.Column, "malformed string literal")
	}
	body := raw[1 : len(raw)-1]
	decoded, err := unescapeString(body)
	if err != nil {
		return a.err(diag.KindSyntax, t.Column, "%v", err)
	}
	for i := 0; i < len(decoded); i++ {
		if err := a.active.PushByte(decoded[i]); err != nil {
			return a.err(diag.KindSegment, t.Column, "%v", err)
		}
	}
	if directive == ".stringz" {
		if err := a.active.PushByte(0); err != nil {
			return a.err(diag.KindSegment, t.Column, "%v", err)
		}
	}
	return nil
}

func (a *Assembler) processInclude(rest []token.Token) error {
	if len(rest) != 1 || rest[0].Type != token.String {
		return a.err(diag.KindSyntax, -1, ".include requires one string argument")
	}
	t := rest[0]
	raw := t.Content
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return a.err(diag.KindSyntax, t.Column, "malformed string literal")
	}
	included := raw[1 : len(raw)-1]

	var path string
	if strings.HasPrefix(included, "/") {
		path = included
	} else {
		path = filepath.Join(filepath.Dir(a.currentFile), included)
	}

	includingFile, includingLine := a.currentFile, a.currentLine
	if err := a.assembleFile(path); err != nil {
		return diag.Nest(includingFile, includingLine, err)
	}
	return nil
}
