// Package lerrors is a unified error package for mica's lexer, parser, and
// runtime so that diagnostics can be formatted and handled uniformly
// regardless of which phase raised them.
package lerrors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type (
	// Kind distinguishes the compilation/execution phase an Error originated from.
	Kind int

	// Error captures a single diagnostic from any phase of the pipeline. Lex
	// and Parse errors carry a source position; Runtime errors additionally
	// carry a call-stack trace captured while unwinding; HostPolicy errors
	// describe a resource limit that was silently enforced.
	Error struct {
		Line      int
		Column    int
		Kind      Kind
		Err       error
		Filename  string
		Traceback []string
	}
)

const (
	// Runtime is a fatal error raised by the dispatch loop (type mismatch,
	// out-of-bounds index, stack overflow, undefined global, unknown opcode).
	Runtime Kind = iota
	// Parse is a syntax error raised by the parser.
	Parse
	// Lex is a malformed-token error raised by the lexer.
	Lex
	// HostPolicy is a resource-limit diagnostic (too many natives, locals,
	// upvalues, or constants). The offending declaration is dropped and
	// compilation continues.
	HostPolicy
)

func (err *Error) Error() string {
	switch err.Kind {
	case Runtime:
		msg := fmt.Sprintf("runtime error: %v:%v:%v: %v", err.Filename, err.Line, err.Column, err.Err)
		if len(err.Traceback) > 0 {
			msg += "\nstack traceback:\n" + strings.Join(err.Traceback, "\n")
		}
		return msg
	case Parse:
		return fmt.Sprintf("parse error: %s:%v:%v: %v", err.Filename, err.Line, err.Column, err.Err)
	case Lex:
		return fmt.Sprintf("lex error: %s:%v:%v: %v", err.Filename, err.Line, err.Column, err.Err)
	case HostPolicy:
		return fmt.Sprintf("host policy: %s:%v:%v: %v", err.Filename, err.Line, err.Column, err.Err)
	default:
		return err.Err.Error()
	}
}

// Unwrap allows errors.Is/As to see through to the underlying cause.
func (err *Error) Unwrap() error { return err.Err }

// NewLex builds a lexer diagnostic.
func NewLex(filename string, line, col int, tmpl string, args ...any) *Error {
	return &Error{Kind: Lex, Filename: filename, Line: line, Column: col, Err: fmt.Errorf(tmpl, args...)}
}

// NewParse builds a parser diagnostic.
func NewParse(filename string, line, col int, tmpl string, args ...any) *Error {
	return &Error{Kind: Parse, Filename: filename, Line: line, Column: col, Err: fmt.Errorf(tmpl, args...)}
}

// NewHostPolicy builds a host-policy diagnostic; the caller drops the
// offending declaration and keeps compiling.
func NewHostPolicy(filename string, line, col int, tmpl string, args ...any) *Error {
	return &Error{Kind: HostPolicy, Filename: filename, Line: line, Column: col, Err: fmt.Errorf(tmpl, args...)}
}

// NewRuntime builds a runtime diagnostic, capturing a stack trace on the
// underlying error via github.com/pkg/errors so embedders can print an
// origin trace with a "%+v" format verb while debugging.
func NewRuntime(filename string, line, col int, traceback []string, tmpl string, args ...any) *Error {
	return &Error{
		Kind:      Runtime,
		Filename:  filename,
		Line:      line,
		Column:    col,
		Traceback: traceback,
		Err:       errors.Wrap(fmt.Errorf(tmpl, args...), "mica runtime"),
	}
}
