// Package diag implements the error taxonomy of the assembler and
// linker and renders diagnostics: a one-line summary, plus a caret
// under the offending column when the error is anchored to a token.
package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Kind names one of the error categories a diagnostic belongs to.
type Kind string

const (
	KindConfig             Kind = "ConfigError"
	KindParse              Kind = "ParseError"
	KindSyntax             Kind = "SyntaxError"
	KindReference          Kind = "ReferenceError"
	KindSegment            Kind = "SegmentError"
	KindNested             Kind = "NestedError"
	KindMultipleDefinition Kind = "MultipleDefinition"
	KindUndefined          Kind = "Undefined"
)

// Error is a single diagnostic, optionally anchored to a source
// location. Column is -1 when the error is not token-anchored.
type Error struct {
	Kind    Kind
	File    string
	Line    int
	Column  int
	Message string

	// Inner chains the error that produced a NestedError, so an
	// .include failure three files deep still prints a short chain
	// instead of only the innermost frame.
	Inner error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.File != "" {
		fmt.Fprintf(&b, "[%s:%d] %s: %s", e.File, e.Line, e.Kind, e.Message)
	} else {
		fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)
	}
	if e.Inner != nil {
		fmt.Fprintf(&b, "\n  included from here: %v", e.Inner)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Inner }

func New(kind Kind, file string, line, column int, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		File:    file,
		Line:    line,
		Column:  column,
		Message: fmt.Sprintf(format, args...),
	}
}

// Nest wraps inner (an error surfaced from an included file) in a
// NestedError anchored at the including file/line.
func Nest(file string, line int, inner error) *Error {
	return &Error{
		Kind:    KindNested,
		File:    file,
		Line:    line,
		Column:  -1,
		Message: "error in included file",
		Inner:   inner,
	}
}

// Render returns a human-readable rendering of err as a string,
// including a caret line under Column when the error carries a
// source line to annotate against.
func Render(err *Error, sourceLine string) string {
	var b strings.Builder
	kindColor := color.New(color.FgRed, color.Bold)
	locColor := color.New(color.Bold)

	if err.File != "" {
		fmt.Fprintf(&b, "%s %s: %s\n", locColor.Sprintf("[%s:%d]", err.File, err.Line), kindColor.Sprint(err.Kind), err.Message)
	} else {
		fmt.Fprintf(&b, "%s: %s\n", kindColor.Sprint(err.Kind), err.Message)
	}
	if err.Column >= 0 && sourceLine != "" {
		fmt.Fprintf(&b, "    %s\n", sourceLine)
		fmt.Fprintf(&b, "    %s^\n", strings.Repeat(" ", err.Column))
	}
	if err.Inner != nil {
		if ie, ok := err.Inner.(*Error); ok {
			fmt.Fprint(&b, Render(ie, ""))
		} else {
			fmt.Fprintf(&b, "  included from here: %v\n", err.Inner)
		}
	}
	return b.String()
}
