// Package asmcore implements the assembler driver, instruction
// encoder, and reference resolver: the line state machine,
// variant-resolution algorithm, composite expansion, and
// label/relocation bookkeeping that sit between the lexer and the
// segment buffers.
package asmcore

import (
	"github.com/albatros064/asnp/internal/arch"
)

// lineState is the per-line parser state: a label may open the line,
// one directive or instruction follows, and nothing may trail it.
type lineState int

const (
	labelState lineState = iota
	actionState
	doneState
)

// pendingReference records that an operand named an as-yet-undefined
// label; it becomes a segment.Reference once the winning instruction
// variant is emitted.
type pendingReference struct {
	Label      string
	Shift      int
	Relocation string
}

// candidate is one instruction variant under consideration for the
// current mnemonic.
type candidate struct {
	instruction arch.Instruction

	values            map[string]uint32
	pendingReferences map[string]pendingReference

	matchedTokens int // -1 while still live
	lastError     error
}

func newCandidate(inst arch.Instruction) *candidate {
	return &candidate{
		instruction:       inst,
		values:            make(map[string]uint32),
		pendingReferences: make(map[string]pendingReference),
		matchedTokens:     -1,
	}
}

func (c *candidate) live() bool { return c.matchedTokens == -1 }
