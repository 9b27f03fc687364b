// Package numeric implements the assembler's number parser: it
// converts a numeric token's text into a 32-bit value, honoring base
// detection, underscore digit separators, and sign/width range checks.
// Alignment is not checked here.
package numeric

import (
	"fmt"
)

// Sign selects how negative literals and the accepted value range are
// handled.
type Sign int

const (
	ForceUnsigned Sign = iota
	AllowSigned
	ForceSigned
)

// RangeError reports a value outside the accepted range for its width
// and sign mode.
type RangeError struct {
	Value   int64
	MaxBits int
	Sign    Sign
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("value %d out of range for %d-bit %s field", e.Value, e.MaxBits, signName(e.Sign))
}

// MalformedNumberError reports a syntactically invalid numeric literal.
type MalformedNumberError struct {
	Text   string
	Reason string
}

func (e *MalformedNumberError) Error() string {
	return fmt.Sprintf("malformed number %q: %s", e.Text, e.Reason)
}

func signName(s Sign) string {
	switch s {
	case ForceUnsigned:
		return "unsigned"
	case ForceSigned:
		return "signed"
	default:
		return "signed-or-unsigned"
	}
}

// Options parameterizes Parse.
type Options struct {
	// Skip is the number of leading characters to ignore (used for
	// $-prefixed register operands).
	Skip int
	// MaxBits bounds the field the parsed value must fit, post range
	// checking.
	MaxBits int
	// Subtract is removed from the raw magnitude before the range
	// check (register-offset encodings).
	Subtract int64
	Sign     Sign
}

// Parse converts token text to its 32-bit encoding under opts,
// applying base detection, underscore skipping, and the sign mode's
// range rule. Negative values are returned as their two's-complement
// low MaxBits bits.
func Parse(text string, opts Options) (uint32, error) {
	s := text
	if opts.Skip > 0 {
		if opts.Skip > len(s) {
			return 0, &MalformedNumberError{Text: text, Reason: "token shorter than skip prefix"}
		}
		s = s[opts.Skip:]
	}

	if s == "" {
		return 0, &MalformedNumberError{Text: text, Reason: "empty numeric literal"}
	}

	negative := false
	if s[0] == '-' {
		negative = true
		s = s[1:]
		if s == "" {
			return 0, &MalformedNumberError{Text: text, Reason: "empty numeric literal"}
		}
	}

	if negative && opts.Sign == ForceUnsigned {
		return 0, &MalformedNumberError{Text: text, Reason: "negative literal not allowed here"}
	}

	base, digits, err := splitBase(s)
	if err != nil {
		return 0, &MalformedNumberError{Text: text, Reason: err.Error()}
	}

	magnitude, err := parseDigits(digits, base)
	if err != nil {
		return 0, &MalformedNumberError{Text: text, Reason: err.Error()}
	}

	v := int64(magnitude)
	if negative {
		v = -v
	}

	m := opts.MaxBits
	var lo, hi int64
	switch opts.Sign {
	case ForceUnsigned:
		v -= opts.Subtract
		lo, hi = 0, int64(1)<<uint(m)
	case ForceSigned:
		lo, hi = -(int64(1) << uint(m-1)), int64(1)<<uint(m-1)
	case AllowSigned:
		lo, hi = -(int64(1) << uint(m-1)), int64(1)<<uint(m)
	}

	if v < lo || v >= hi {
		return 0, &RangeError{Value: v, MaxBits: m, Sign: opts.Sign}
	}

	mask := uint64(1)<<uint(m) - 1
	if m >= 64 {
		mask = ^uint64(0)
	}
	return uint32(uint64(v) & mask), nil
}

// splitBase detects the base from the unsigned prefix of s (after any
// leading '-' has already been stripped by the caller) and returns the
// base along with the remaining digit string (with '_' separators still
// present; parseDigits strips them).
func splitBase(s string) (int, string, error) {
	switch {
	case len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X"):
		return 16, s[2:], nil
	case len(s) >= 2 && (s[0:2] == "0b" || s[0:2] == "0B"):
		return 2, s[2:], nil
	case len(s) >= 1 && s[0] == '0' && len(s) > 1:
		return 8, s[1:], nil
	default:
		return 10, s, nil
	}
}

func digitValue(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}

func parseDigits(digits string, base int) (uint64, error) {
	var magnitude uint64
	seen := false
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c == '_' {
			continue
		}
		d, ok := digitValue(c)
		if !ok || d >= base {
			return 0, fmt.Errorf("invalid digit %q for base %d", string(c), base)
		}
		magnitude = magnitude*uint64(base) + uint64(d)
		seen = true
	}
	if !seen {
		return 0, fmt.Errorf("no digits in numeric literal")
	}
	return magnitude, nil
}
