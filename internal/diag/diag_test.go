package diag

import (
	"strings"
	"testing"
)

func TestErrorStringIncludesLocationWhenSet(t *testing.T) {
	err := New(KindSyntax, "main.s", 4, 7, "unexpected token %q", ",")
	want := `[main.s:4] SyntaxError: unexpected token ","`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorStringOmitsLocationWhenFileEmpty(t *testing.T) {
	err := &Error{Kind: KindConfig, Column: -1, Message: "bad config"}
	want := "ConfigError: bad config"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNestChainsInnerError(t *testing.T) {
	inner := New(KindSyntax, "lib.s", 2, 0, "unknown mnemonic %q", "frob")
	nested := Nest("main.s", 9, inner)

	if nested.Kind != KindNested {
		t.Errorf("Kind = %v, want KindNested", nested.Kind)
	}
	if nested.Unwrap() != inner {
		t.Error("Unwrap() did not return the wrapped inner error")
	}
	if !strings.Contains(nested.Error(), "included from here") {
		t.Errorf("Error() = %q, want it to mention \"included from here\"", nested.Error())
	}
	if !strings.Contains(nested.Error(), "lib.s") {
		t.Errorf("Error() = %q, want it to mention \"lib.s\"", nested.Error())
	}
}

func TestRenderAddsCaretUnderColumn(t *testing.T) {
	err := New(KindSyntax, "main.s", 1, 4, "unexpected token")
	out := Render(err, "  nop $1")
	if !strings.Contains(out, "nop $1") {
		t.Errorf("Render output = %q, want it to include the source line", out)
	}
	if !strings.Contains(out, "\n        ^\n") {
		t.Errorf("Render output = %q, want a caret line with the caret under column 4", out)
	}
}

func TestRenderSkipsCaretWithoutSourceLine(t *testing.T) {
	err := New(KindSyntax, "main.s", 1, 4, "unexpected token")
	out := Render(err, "")
	if strings.Contains(out, "^") {
		t.Errorf("Render output = %q, want no caret when there is no source line", out)
	}
}
