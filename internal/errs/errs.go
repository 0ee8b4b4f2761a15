// Package errs defines the failure taxonomy shared by the index, the resolver
// and the refactoring engines.
//
// Every user-facing failure is an *Error carrying its Kind, the operation that
// failed, the offending path and/or symbol, and the rule that was violated.
// Callers classify failures with errors.Is against the Err* sentinels:
//
//	if errors.Is(err, errs.ErrNotFound) {
//	    // symbol or file absent, report and continue
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindAmbiguous  Kind = "ambiguous"
	KindValidation Kind = "validation_failed"
	KindIO         Kind = "io_failure"
	KindDisposed   Kind = "disposed"
)

var (
	// ErrNotFound indicates a symbol or file is absent. Recoverable.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous indicates several candidates matched and no hint broke the tie.
	ErrAmbiguous = errors.New("ambiguous")

	// ErrValidation indicates an operation was blocked before any write.
	ErrValidation = errors.New("validation failed")

	// ErrIO indicates a read, write or move failed for a specific file.
	ErrIO = errors.New("io failure")

	// ErrDisposed indicates the index or engine was already torn down.
	ErrDisposed = errors.New("already disposed")
)

var sentinels = map[Kind]error{
	KindNotFound:   ErrNotFound,
	KindAmbiguous:  ErrAmbiguous,
	KindValidation: ErrValidation,
	KindIO:         ErrIO,
	KindDisposed:   ErrDisposed,
}

// Error is a classified failure.
type Error struct {
	Kind   Kind
	Op     string // operation, e.g. "rename", "index"
	Path   string // offending file, if any
	Symbol string // offending symbol, if any
	Rule   string // violated rule, e.g. "identifier-syntax"
	Err    error  // underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if s, ok := sentinels[e.Kind]; ok {
		b.WriteString(s.Error())
	} else {
		b.WriteString(string(e.Kind))
	}

	var subject []string
	if e.Symbol != "" {
		subject = append(subject, fmt.Sprintf("symbol %q", e.Symbol))
	}
	if e.Path != "" {
		subject = append(subject, e.Path)
	}
	if len(subject) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(subject, " in "))
		b.WriteString(")")
	}
	if e.Rule != "" {
		b.WriteString(" [")
		b.WriteString(e.Rule)
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// NotFound builds a NotFound error.
func NotFound(op, path, symbol string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Path: path, Symbol: symbol}
}

// Ambiguous builds an Ambiguous error listing the candidates in the cause.
func Ambiguous(op, symbol string, candidates []string) *Error {
	return &Error{
		Kind:   KindAmbiguous,
		Op:     op,
		Symbol: symbol,
		Rule:   "scope-hint-required",
		Err:    fmt.Errorf("%d candidates: %s", len(candidates), strings.Join(candidates, ", ")),
	}
}

// Validation builds a ValidationFailed error for the given rule.
func Validation(op, path, symbol, rule, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Path: path, Symbol: symbol, Rule: rule, Err: errors.New(msg)}
}

// IO builds an IOFailure error for a specific file.
func IO(op, path string, err error) *Error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

// Disposed builds a Disposed error.
func Disposed(op string) *Error {
	return &Error{Kind: KindDisposed, Op: op}
}

// KindOf returns the kind of a classified error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
