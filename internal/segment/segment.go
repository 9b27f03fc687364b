// Package segment implements the assembler's append-only segment
// buffer: byte storage with label offsets, pending references, and
// the bit-granular packer instructions are encoded through.
package segment

import (
	"fmt"

	"github.com/albatros064/asnp/internal/arch"
)

// Undefined marks "write at the cursor" for Pack's byte argument,
// instead of a fixed byte index to OR into.
const Undefined = -1

// Reference is an unresolved operand recorded against a segment.
type Reference struct {
	Label        string
	Offset       uint32 // byte index within the owning segment
	Bit          int    // 0..7, from the MSB of the target byte
	Width        int    // bits
	Shift        int    // right-shift applied to the resolved value
	Relative     uint32 // PC-relative anchor offset; used only when RelativeSet
	RelativeSet  bool
	RelocationType uint8
}

// Error reports misuse of a segment: offset below start, or a write
// past the declared size.
type Error struct {
	Segment string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("segment %s: %s", e.Segment, e.Message) }

// Segment is the runtime counterpart of an arch.SegmentDescription: a
// growable byte buffer plus a monotonically advancing cursor, a label
// map, and pending references.
type Segment struct {
	arch.SegmentDescription

	Data       []byte
	Offset     uint32 // bytes relative to Start
	Labels     map[string]uint32
	References []Reference
	Used       bool
}

// New creates a runtime Segment from its architecture description.
func New(desc arch.SegmentDescription) *Segment {
	return &Segment{
		SegmentDescription: desc,
		Labels:             make(map[string]uint32),
	}
}

// SetOffset validates and sets the cursor to an absolute virtual
// address v, as the .org/.origin directives require.
func (s *Segment) SetOffset(v uint32) error {
	if v < s.Start {
		return &Error{Segment: s.Name, Message: fmt.Sprintf("offset 0x%x below segment start 0x%x", v, s.Start)}
	}
	if s.Size != 0 && v > s.Start+s.Size {
		return &Error{Segment: s.Name, Message: fmt.Sprintf("offset 0x%x past segment end 0x%x", v, s.Start+s.Size)}
	}
	s.Offset = v - s.Start
	return nil
}

// CanPlace reports whether widthBytes more bytes can be written at the
// cursor without exceeding the segment's declared size (0 = unbounded).
func (s *Segment) CanPlace(widthBytes int) bool {
	if s.Size == 0 {
		return true
	}
	return s.Offset+uint32(widthBytes) <= s.Size
}

// GetNext returns the absolute address just past a widthBytes-wide
// object placed at the cursor, without advancing the cursor.
func (s *Segment) GetNext(widthBytes int) uint32 {
	return s.Start + s.Offset + uint32(widthBytes)
}

// PushByte appends one byte at the cursor, growing Data and advancing
// Offset. It fails if the segment's declared size would be exceeded.
func (s *Segment) PushByte(b byte) error {
	if !s.CanPlace(1) {
		return &Error{Segment: s.Name, Message: "segment size exceeded"}
	}
	s.ensureByte(s.Offset)
	s.Data[s.Offset] = b
	s.Offset++
	return nil
}

// AddLabel records name as defined at the current cursor position.
func (s *Segment) AddLabel(name string) {
	s.Labels[name] = s.Offset
}

// AddReference appends a pending reference for later resolution.
func (s *Segment) AddReference(r Reference) {
	s.References = append(s.References, r)
}

// ensureByte grows Data so that index byte is addressable.
func (s *Segment) ensureByte(byteIndex uint32) {
	for uint32(len(s.Data)) <= byteIndex {
		s.Data = append(s.Data, 0)
	}
}

// Pack writes width bits of value into the segment, big-endian within
// each byte: the MSB of value lands in the most-significant unset bit
// of the destination byte.
//
// byteIndex == Undefined means "write at the cursor, appending new
// bytes as needed, and advance the cursor past every byte the call
// completes" (a byte left partially written stays under the cursor).
// Any other byteIndex means "OR into Data[byteIndex] at bit bit,"
// advancing (byteIndex, bit) in place without touching the cursor —
// used by the reference resolver to patch a previously emitted field.
func (s *Segment) Pack(value uint32, width int, byteIndex int, bit int) error {
	atCursor := byteIndex == Undefined
	var idx uint32
	if atCursor {
		idx = s.Offset
	} else {
		if byteIndex < 0 {
			return &Error{Segment: s.Name, Message: "invalid byte index"}
		}
		idx = uint32(byteIndex)
	}

	for width > 0 {
		if atCursor && s.Size != 0 && idx >= s.Size {
			return &Error{Segment: s.Name, Message: "segment size exceeded"}
		}

		k := width
		if 8-bit < k {
			k = 8 - bit
		}
		s.ensureByte(idx)

		// Top k bits of value, right-justified, then shifted to land
		// at bit positions (8-bit-k)..(8-bit) from the MSB.
		shift := uint(width - k)
		chunk := byte((value >> shift) & ((1 << uint(k)) - 1))
		destShift := uint(8 - bit - k)
		s.Data[idx] |= chunk << destShift

		width -= k
		bit += k
		if bit == 8 {
			bit = 0
			idx++
		}
	}

	// idx/bit now hold the cursor's new position: if the final fragment
	// call in an instruction leaves bit == 0, idx has already advanced
	// past the byte that call completed; otherwise idx still names the
	// byte that call left partially written, and the next call (same
	// instruction, still at the cursor) continues there.
	if atCursor {
		s.Offset = idx
	}
	return nil
}
