package asmcore

import (
	"strconv"
	"strings"

	"github.com/albatros064/asnp/internal/arch"
	"github.com/albatros064/asnp/internal/diag"
	"github.com/albatros064/asnp/internal/numeric"
	"github.com/albatros064/asnp/internal/segment"
	"github.com/albatros064/asnp/internal/token"
)

// processInstruction encodes one statement: variant selection,
// operand typing, composite expansion, and packing into the active
// segment.
func (a *Assembler) processInstruction(mnemonicTok token.Token, operands []token.Token) error {
	variants := a.Architecture.Instructions[mnemonicTok.Content]
	if len(variants) == 0 {
		return a.err(diag.KindSyntax, mnemonicTok.Column, "unknown mnemonic %q", mnemonicTok.Content)
	}

	var candidates []*candidate
	for _, v := range variants {
		if len(v.Pattern) == len(operands) {
			candidates = append(candidates, newCandidate(v))
		}
	}
	if len(candidates) == 0 {
		return a.err(diag.KindSyntax, mnemonicTok.Column, "no variant of %q takes %d operand(s)", mnemonicTok.Content, len(operands))
	}

	for t, opTok := range operands {
		for _, c := range candidates {
			if !c.live() {
				continue
			}
			fragName := c.instruction.Pattern[t]
			if err := a.matchFragment(c, fragName, opTok); err != nil {
				c.matchedTokens = t
				c.lastError = err
			}
		}
	}

	winner := bestCandidate(candidates)
	if winner == nil {
		return pickError(candidates, mnemonicTok)
	}
	if !winner.live() {
		// bestCandidate only returns a live one; defensive.
		return winner.lastError
	}

	expanded, err := a.expandComposite(winner)
	if err != nil {
		return err
	}

	for _, exp := range expanded {
		if err := a.emit(exp); err != nil {
			return err
		}
	}
	return nil
}

func bestCandidate(candidates []*candidate) *candidate {
	for _, c := range candidates {
		if c.live() {
			return c
		}
	}
	return nil
}

func pickError(candidates []*candidate, mnemonicTok token.Token) error {
	var best *candidate
	for _, c := range candidates {
		if best == nil || c.matchedTokens > best.matchedTokens {
			best = c
		}
	}
	if best != nil && best.lastError != nil {
		return best.lastError
	}
	return diag.New(diag.KindSyntax, "", -1, mnemonicTok.Column, "no variant of %q matched its operands", mnemonicTok.Content)
}

// matchFragment validates one operand token against one position of a
// candidate's token pattern, storing the parsed value (or a pending
// reference) in the candidate on success.
func (a *Assembler) matchFragment(c *candidate, fragName string, opTok token.Token) error {
	if strings.HasPrefix(fragName, ":") {
		literal := fragName[1:]
		if opTok.Type != token.Punctuator || opTok.Content != literal {
			return a.err(diag.KindSyntax, opTok.Column, "expected %q, got %q", literal, opTok.Content)
		}
		return nil
	}

	frag, ok := a.Architecture.Fragment(fragName)
	if !ok {
		return a.err(diag.KindSyntax, opTok.Column, "undeclared fragment %q", fragName)
	}

	var value uint32
	var pending *pendingReference

	switch frag.Type {
	case arch.FragAddress:
		switch opTok.Type {
		case token.Number:
			v, err := numeric.Parse(opTok.Content, numeric.Options{MaxBits: frag.Width, Sign: numeric.ForceUnsigned})
			if err != nil {
				return a.err(diag.KindSyntax, opTok.Column, "%v", err)
			}
			value = v
		case token.Identifier:
			pending = &pendingReference{
				Label:      opTok.Content,
				Shift:      frag.EffectiveAlignment() - 1,
				Relocation: frag.Relocation,
			}
		default:
			return a.err(diag.KindSyntax, opTok.Column, "expected address operand, got %q", opTok.Content)
		}

	case arch.FragRAddress:
		switch opTok.Type {
		case token.Number:
			v, err := numeric.Parse(opTok.Content, numeric.Options{MaxBits: frag.Width, Sign: numeric.AllowSigned})
			if err != nil {
				return a.err(diag.KindSyntax, opTok.Column, "%v", err)
			}
			value = v
		case token.Identifier:
			pending = &pendingReference{
				Label:      opTok.Content,
				Shift:      frag.EffectiveAlignment() - 1,
				Relocation: frag.Relocation,
			}
		default:
			return a.err(diag.KindSyntax, opTok.Column, "expected raddress operand, got %q", opTok.Content)
		}

	case arch.FragReg:
		if opTok.Type != token.Identifier || !strings.HasPrefix(opTok.Content, "$") {
			return a.err(diag.KindSyntax, opTok.Column, "expected register operand, got %q", opTok.Content)
		}
		v, err := numeric.Parse(opTok.Content, numeric.Options{
			Skip:     1,
			MaxBits:  frag.Width,
			Subtract: int64(frag.Offset),
			Sign:     numeric.ForceUnsigned,
		})
		if err != nil {
			return a.err(diag.KindSyntax, opTok.Column, "%v", err)
		}
		value = v

	case arch.FragSigned:
		if opTok.Type != token.Number {
			return a.err(diag.KindSyntax, opTok.Column, "expected signed numeric operand, got %q", opTok.Content)
		}
		v, err := numeric.Parse(opTok.Content, numeric.Options{MaxBits: frag.Width, Sign: numeric.ForceSigned})
		if err != nil {
			return a.err(diag.KindSyntax, opTok.Column, "%v", err)
		}
		value = v

	case arch.FragUnsigned:
		if opTok.Type != token.Number {
			return a.err(diag.KindSyntax, opTok.Column, "expected unsigned numeric operand, got %q", opTok.Content)
		}
		v, err := numeric.Parse(opTok.Content, numeric.Options{MaxBits: frag.Width, Sign: numeric.ForceUnsigned})
		if err != nil {
			return a.err(diag.KindSyntax, opTok.Column, "%v", err)
		}
		value = v

	default:
		return a.err(diag.KindSyntax, opTok.Column, "fragment %q has unknown type %q", fragName, frag.Type)
	}

	if pending == nil {
		align := frag.EffectiveAlignment()
		if align > 1 && value&(uint32(1)<<uint(align-1)-1) != 0 {
			return a.err(diag.KindSyntax, opTok.Column, "value %#x not divisible by %d", value, 1<<uint(align-1))
		}

		width := frag.Width
		owidth := frag.EffectiveOWidth()
		if owidth < width {
			value >>= uint(width - owidth)
		} else if owidth > width && !frag.RightAlign {
			value <<= uint(owidth - width)
		}
	}

	key := fragName
	if frag.Group != "" {
		key = frag.Group
	}

	if pending != nil {
		c.pendingReferences[key] = *pending
	} else {
		c.values[key] = value
	}
	return nil
}

// expandComposite turns the winning candidate into its list of
// component instructions. Non-composite winners expand to a
// singleton.
type expandedInstruction struct {
	instruction       arch.Instruction
	values            map[string]uint32
	pendingReferences map[string]pendingReference
}

func (a *Assembler) expandComposite(c *candidate) ([]expandedInstruction, error) {
	if c.instruction.Format != arch.CompositeFormat {
		return []expandedInstruction{{
			instruction:       c.instruction,
			values:            c.values,
			pendingReferences: c.pendingReferences,
		}}, nil
	}

	var out []expandedInstruction
	for _, comp := range c.instruction.Components {
		base, ok := a.Architecture.InstructionsByID[comp.ID]
		if !ok {
			return nil, a.err(diag.KindSyntax, -1, "composite references unknown instruction id %d", comp.ID)
		}

		values := make(map[string]uint32, len(c.values))
		for k, v := range c.values {
			values[k] = v
		}
		pending := make(map[string]pendingReference, len(c.pendingReferences))
		for k, v := range c.pendingReferences {
			pending[k] = v
		}

		for _, r := range comp.Replacements {
			if pr, ok := pending[r.Source]; ok {
				np := pr
				np.Shift = r.Shift
				if r.Relocation != "" {
					np.Relocation = r.Relocation
				}
				pending[r.Dest] = np
				continue
			}
			src, ok := values[r.Source]
			if !ok {
				return nil, a.err(diag.KindSyntax, -1, "composite replacement references unset fragment %q", r.Source)
			}
			values[r.Dest] = src >> uint(r.Shift)
		}

		out = append(out, expandedInstruction{
			instruction:       base,
			values:            values,
			pendingReferences: pending,
		})
	}
	return out, nil
}

// emit walks one expanded instruction's format and packs it into the
// active segment, recording a Reference for every fragment whose
// operand named a label.
func (a *Assembler) emit(exp expandedInstruction) error {
	format, ok := a.Architecture.Format(exp.instruction.Format)
	if !ok {
		return a.err(diag.KindSyntax, -1, "undeclared format %q", exp.instruction.Format)
	}

	widthBytes := format.Width / 8
	if !a.active.CanPlace(widthBytes) {
		return a.err(diag.KindSyntax, -1, "segment size exceeded emitting %q", exp.instruction.Mnemonic)
	}

	startingOffset := a.active.Offset
	bit := 0

	for _, fragName := range format.Fragments {
		frag, ok := a.Architecture.Fragment(fragName)
		if !ok {
			return a.err(diag.KindSyntax, -1, "undeclared fragment %q", fragName)
		}

		key := fragName
		if frag.Group != "" {
			key = frag.Group
		}

		value, hasValue := exp.values[key]
		if !hasValue {
			if d, ok := exp.instruction.Defaults[fragName]; ok {
				if d == "%next%" {
					value = a.active.GetNext(widthBytes)
				} else {
					n, err := strconv.ParseInt(d, 10, 64)
					if err != nil {
						return a.err(diag.KindSyntax, -1, "bad default %q for fragment %q", d, fragName)
					}
					value = uint32(n)
				}
				hasValue = true
			}
		}

		pending, hasPending := exp.pendingReferences[key]

		// A fragment with neither a matched value, a default, nor a
		// pending reference is reserved padding: its owidth still
		// occupies format position (the buffer is zeroed already, so
		// packing 0 there is a no-op per the bit-packer's invariant),
		// but nothing is emitted for it.
		owidth := frag.EffectiveOWidth()

		if hasPending {
			// a.active.Offset, read before this fragment's Pack call,
			// already names the field's first byte whether or not it
			// starts mid-byte: a prior fragment that completed a byte
			// exactly has advanced Offset to the fresh next byte, and
			// one that didn't has left Offset on the byte both
			// fragments share.
			refOffset := a.active.Offset
			rtype := uint8(0)
			if pending.Relocation != "" {
				if rt, ok := a.Architecture.Relocations[pending.Relocation]; ok {
					rtype = rt.Type
				}
			}
			ref := segment.Reference{
				Label:          pending.Label,
				Offset:         refOffset,
				Bit:            bit,
				Width:          owidth,
				Shift:          pending.Shift,
				RelocationType: rtype,
			}
			if frag.Type == arch.FragRAddress {
				ref.Relative = startingOffset
				ref.RelativeSet = true
			}
			a.active.AddReference(ref)
		}

		if err := a.active.Pack(value, owidth, segment.Undefined, bit); err != nil {
			return a.err(diag.KindSegment, -1, "%v", err)
		}
		bit = (bit + owidth) % 8
	}

	return nil
}
