package segment

import (
	"bytes"
	"testing"

	"github.com/albatros064/asnp/internal/arch"
)

func newTestSegment() *Segment {
	return New(arch.SegmentDescription{Name: "text", Start: 0, Executable: true})
}

func TestPackWithinOneByte(t *testing.T) {
	s := newTestSegment()
	if err := s.Pack(0x5, 4, Undefined, 0); err != nil {
		t.Fatalf("Pack high nibble: %v", err)
	}
	if err := s.Pack(0xA, 4, Undefined, 4); err != nil {
		t.Fatalf("Pack low nibble: %v", err)
	}
	if !bytes.Equal(s.Data, []byte{0x5A}) {
		t.Errorf("Data = % x, want 5a", s.Data)
	}
	if s.Offset != 1 {
		t.Errorf("Offset = %d, want 1", s.Offset)
	}
}

func TestPackCrossesByteBoundaryAtBit5Width10(t *testing.T) {
	s := newTestSegment()
	// 5 bits of padding, then a 10-bit field spanning two bytes.
	if err := s.Pack(0, 5, Undefined, 0); err != nil {
		t.Fatalf("Pack padding: %v", err)
	}
	if err := s.Pack(0x3FF, 10, Undefined, 5); err != nil {
		t.Fatalf("Pack field: %v", err)
	}
	// byte0: bits 5..7 = top 3 bits of 0x3FF (all 1s) -> 0b00000111 = 0x07
	// byte1: bits 0..6 = remaining 7 bits of 0x3FF (all 1s) -> 0b11111110 = 0xFE
	want := []byte{0x07, 0xFE}
	if !bytes.Equal(s.Data, want) {
		t.Errorf("Data = % x, want % x", s.Data, want)
	}
	if s.Offset != 1 {
		t.Errorf("Offset = %d, want 1", s.Offset) // byte1 still mid-write: bit = (5+10)%8 = 7
	}
}

func TestPackZeroIsNoOp(t *testing.T) {
	s := newTestSegment()
	if err := s.Pack(0xAB, 8, Undefined, 0); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	before := append([]byte(nil), s.Data...)
	if err := s.Pack(0, 8, 0, 0); err != nil {
		t.Fatalf("Pack zero value: %v", err)
	}
	if !bytes.Equal(s.Data, before) {
		t.Errorf("Data changed after packing zero: % x -> % x", before, s.Data)
	}
}

func TestPackAtFixedByteIndexDoesNotMoveCursor(t *testing.T) {
	s := newTestSegment()
	if err := s.PushByte(0); err != nil {
		t.Fatalf("PushByte: %v", err)
	}
	if err := s.PushByte(0); err != nil {
		t.Fatalf("PushByte: %v", err)
	}
	if s.Offset != 2 {
		t.Fatalf("Offset = %d, want 2", s.Offset)
	}
	if err := s.Pack(0xFF, 8, 0, 0); err != nil {
		t.Fatalf("Pack at fixed index: %v", err)
	}
	if s.Offset != 2 {
		t.Errorf("Offset = %d, want 2 (unaffected: this call targeted a fixed index)", s.Offset)
	}
	if s.Data[0] != 0xFF {
		t.Errorf("Data[0] = %#x, want 0xff", s.Data[0])
	}
}

func TestSetOffsetRejectsBelowStart(t *testing.T) {
	s := New(arch.SegmentDescription{Name: "text", Start: 0x100})
	if err := s.SetOffset(0x50); err == nil {
		t.Error("SetOffset below Start: expected error, got none")
	}
	if err := s.SetOffset(0x110); err != nil {
		t.Fatalf("SetOffset: %v", err)
	}
	if s.Offset != 0x10 {
		t.Errorf("Offset = %#x, want 0x10", s.Offset)
	}
}

func TestCanPlaceRespectsDeclaredSize(t *testing.T) {
	s := New(arch.SegmentDescription{Name: "text", Size: 4})
	if !s.CanPlace(4) {
		t.Error("CanPlace(4): want true")
	}
	if s.CanPlace(5) {
		t.Error("CanPlace(5): want false")
	}
	for _, b := range []byte{1, 2, 3, 4} {
		if err := s.PushByte(b); err != nil {
			t.Fatalf("PushByte(%d): %v", b, err)
		}
	}
	if err := s.PushByte(5); err == nil {
		t.Error("PushByte past declared size: expected error, got none")
	}
}

func TestLabelsAndReferences(t *testing.T) {
	s := newTestSegment()
	if err := s.PushByte(0); err != nil {
		t.Fatalf("PushByte: %v", err)
	}
	s.AddLabel("here")
	if got := s.Labels["here"]; got != 1 {
		t.Errorf("Labels[here] = %d, want 1", got)
	}

	s.AddReference(Reference{Label: "there", Offset: 1, Width: 8})
	if len(s.References) != 1 {
		t.Fatalf("len(References) = %d, want 1", len(s.References))
	}
	if s.References[0].Label != "there" {
		t.Errorf("References[0].Label = %q, want \"there\"", s.References[0].Label)
	}
}
