// Package errs defines the error kinds used across the analyzer pipeline.
package errs

import "fmt"

// Kind classifies an error into one of the categories the analyzer's
// callers need to distinguish between fatal and recoverable failures.
type Kind string

const (
	// InputNotFound is returned when the source file does not exist.
	InputNotFound Kind = "input_not_found"
	// CompileFailure is returned when the AST compiler errors or yields
	// zero contracts.
	CompileFailure Kind = "compile_failure"
	// MalformedAst is returned when a required child is missing from an
	// AST node.
	MalformedAst Kind = "malformed_ast"
	// UnregisteredVariable is returned when expression evaluation
	// references a name absent from the variable registry.
	UnregisteredVariable Kind = "unregistered_variable"
	// DomainLimitation is returned when the selected abstract domain
	// cannot represent a needed constraint.
	DomainLimitation Kind = "domain_limitation"
	// FixedPointCap is returned when the iteration cap is reached
	// without convergence.
	FixedPointCap Kind = "fixed_point_cap"
	// UnknownIdiom is returned when the rewriter encounters source text
	// it does not recognize.
	UnknownIdiom Kind = "unknown_idiom"
)

// fatalKinds are the kinds that must abort the run with a non-zero exit
// code, per SPEC_FULL.md §7.
var fatalKinds = map[Kind]bool{
	InputNotFound:  true,
	CompileFailure: true,
}

// Error wraps a Kind with context and an optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is comparisons against a bare Kind sentinel created
// via New(kind, "").
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Fatal reports whether an error of this kind must abort the run.
func (k Kind) Fatal() bool {
	return fatalKinds[k]
}

// Sentinel returns a bare *Error usable as an errors.Is target for kind.
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}
