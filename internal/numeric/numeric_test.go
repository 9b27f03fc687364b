package numeric

import "testing"

func TestParseBasePrefixes(t *testing.T) {
	tests := []struct {
		text string
		want uint32
	}{
		{"0", 0},
		{"10", 10},
		{"010", 8},
		{"0x1A", 0x1A},
		{"0X1a", 0x1A},
		{"0b101", 5},
		{"1_000", 1000},
		{"0x_FF", 0xFF},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := Parse(tt.text, Options{MaxBits: 32, Sign: ForceUnsigned})
			if err != nil {
				t.Fatalf("Parse(%q): unexpected error: %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseSignedBoundaries(t *testing.T) {
	// m = 8: signed range is [-128, 127].
	tests := []struct {
		text    string
		want    uint32
		wantErr bool
	}{
		{"-128", 0x80, false},
		{"127", 0x7F, false},
		{"128", 0, true},
		{"-129", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := Parse(tt.text, Options{MaxBits: 8, Sign: ForceSigned})
			if tt.wantErr {
				if err == nil {
					t.Errorf("Parse(%q): expected error, got none", tt.text)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): unexpected error: %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = 0x%x, want 0x%x", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseUnsignedBoundaries(t *testing.T) {
	tests := []struct {
		text    string
		want    uint32
		wantErr bool
	}{
		{"255", 255, false},
		{"256", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := Parse(tt.text, Options{MaxBits: 8, Sign: ForceUnsigned})
			if tt.wantErr {
				if err == nil {
					t.Errorf("Parse(%q): expected error, got none", tt.text)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): unexpected error: %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseZeroAndNegativeZero(t *testing.T) {
	for _, text := range []string{"0", "-0"} {
		got, err := Parse(text, Options{MaxBits: 8, Sign: ForceSigned})
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error: %v", text, err)
		}
		if got != 0 {
			t.Errorf("Parse(%q) = %d, want 0", text, got)
		}
	}
}

func TestParseRegisterOffsetEncoding(t *testing.T) {
	// $1..$8 encoding to 0..7, the register fragment's Skip/Subtract idiom.
	tests := []struct {
		text string
		want uint32
	}{
		{"$1", 0},
		{"$8", 7},
	}
	for _, tt := range tests {
		got, err := Parse(tt.text, Options{Skip: 1, MaxBits: 3, Subtract: 1, Sign: ForceUnsigned})
		if err != nil {
			t.Fatalf("Parse(%q): unexpected error: %v", tt.text, err)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	for _, text := range []string{"", "0x", "0xZZ", "0b2", "__"} {
		if _, err := Parse(text, Options{MaxBits: 32, Sign: ForceUnsigned}); err == nil {
			t.Errorf("Parse(%q): expected error, got none", text)
		}
	}
}
