package token

import "testing"

func TestLexClassifiesEachTokenType(t *testing.T) {
	toks := Lex(`.word foo, $1, "bar", 42, -3`)

	wantTypes := []Type{
		Directive, Identifier, Punctuator, Identifier, Punctuator,
		String, Punctuator, Number, Punctuator, Number,
	}
	if len(toks) != len(wantTypes) {
		t.Fatalf("len(toks) = %d, want %d", len(toks), len(wantTypes))
	}
	for i, want := range wantTypes {
		if toks[i].Type != want {
			t.Errorf("toks[%d].Type = %v, want %v", i, toks[i].Type, want)
		}
	}

	if toks[0].Content != ".word" {
		t.Errorf("toks[0].Content = %q, want \".word\"", toks[0].Content)
	}
	if toks[5].Content != `"bar"` {
		t.Errorf("toks[5].Content = %q, want \"bar\"", toks[5].Content)
	}
	if toks[9].Content != "-3" {
		t.Errorf("toks[9].Content = %q, want \"-3\"", toks[9].Content)
	}
}

func TestLexLabelPromotion(t *testing.T) {
	toks := Lex("loop: nop")
	if len(toks) != 2 {
		t.Fatalf("len(toks) = %d, want 2", len(toks))
	}
	if toks[0].Type != Label {
		t.Errorf("toks[0].Type = %v, want Label", toks[0].Type)
	}
	if toks[0].Content != "loop:" {
		t.Errorf("toks[0].Content = %q, want \"loop:\"", toks[0].Content)
	}
	if toks[1].Type != Identifier {
		t.Errorf("toks[1].Type = %v, want Identifier", toks[1].Type)
	}
}

func TestLexCommentStripsRestOfLine(t *testing.T) {
	toks := Lex("nop ; this is ignored, so is $this")
	if len(toks) != 1 {
		t.Fatalf("len(toks) = %d, want 1", len(toks))
	}
	if toks[0].Content != "nop" {
		t.Errorf("toks[0].Content = %q, want \"nop\"", toks[0].Content)
	}
}

func TestLexUnterminatedStringSetsErrorFlag(t *testing.T) {
	toks := Lex(`"unterminated`)
	if len(toks) != 1 {
		t.Fatalf("len(toks) = %d, want 1", len(toks))
	}
	if toks[0].Type != String {
		t.Errorf("toks[0].Type = %v, want String", toks[0].Type)
	}
	if !toks[0].ErrorFlag {
		t.Error("ErrorFlag = false, want true for an unterminated string")
	}
}

func TestLexStringEscapes(t *testing.T) {
	toks := Lex(`"a\"b"`)
	if len(toks) != 1 {
		t.Fatalf("len(toks) = %d, want 1", len(toks))
	}
	if toks[0].ErrorFlag {
		t.Error("ErrorFlag = true, want false for a properly escaped string")
	}
	if toks[0].Content != `"a\"b"` {
		t.Errorf("toks[0].Content = %q, want `\"a\\\"b\"`", toks[0].Content)
	}
}

func TestLexEmptyAndWhitespaceOnlyLines(t *testing.T) {
	for _, line := range []string{"", "   \t  ", "  ; just a comment"} {
		if toks := Lex(line); len(toks) != 0 {
			t.Errorf("Lex(%q) = %v, want empty", line, toks)
		}
	}
}

func TestLexColumnTracksSourceOffset(t *testing.T) {
	toks := Lex("  nop")
	if len(toks) != 1 {
		t.Fatalf("len(toks) = %d, want 1", len(toks))
	}
	if toks[0].Column != 2 {
		t.Errorf("Column = %d, want 2", toks[0].Column)
	}
}

func TestLexUnknownLeadingCharacter(t *testing.T) {
	toks := Lex("@weird")
	if toks[0].Type != Unknown {
		t.Errorf("toks[0].Type = %v, want Unknown", toks[0].Type)
	}
}
