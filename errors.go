package formula

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Kind classifies why a Formula operation failed, so a caller can tell a
// rejected input apart from a backend that could not materialize an
// otherwise-valid AST, or from a condition this package guarantees can
// never happen.
type Kind int

const (
	// KindParse marks a rejected input formula: bad syntax, an unknown
	// token, or trailing input after a syntactically complete expression.
	KindParse Kind = iota
	// KindEmission marks a failure while turning a parsed AST into
	// machine code or executable memory that was not classified closer to
	// where it happened, such as a failed mmap/mprotect while mapping the
	// result. An unresolved or out-of-bounds relocation is KindInvariant.
	KindEmission
	// KindInvariant marks a condition this package's own closed AST
	// variant or register bookkeeping is supposed to rule out by
	// construction. Seeing one means a bug in this package, not in the
	// caller's input.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindEmission:
		return "emission"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error is the diagnostic value Parse, Assemble, Compile, Recompile,
// EvaluateAssembled and EvaluateCompiled return on failure; Parser's
// ParseFormula and Formula's Close return unclassified errors. Kind lets a caller dispatch on the failure category
// without parsing Error(); Unwrap exposes the underlying cause for
// errors.Is/errors.As.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("formula: %s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError attaches kind/op to cause, wrapping it with pkg/errors first so
// the underlying error carries a stack trace the way every other internal
// boundary in this package does.
func newError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(cause)}
}

// asFailure returns err unchanged if it is already an *Error (it was
// classified closer to where it happened), or wraps it as KindEmission
// otherwise. Every path that reaches this package's façade methods after a
// successful parse is, by construction, an emission failure of one kind or
// another: a backend, a relocation pass, or the JIT arena.
func asFailure(op string, err error) error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return newError(KindEmission, op, err)
}

// logDiagnostic writes a single line to stderr describing a failure at a
// public entry point. This package never logs anything beyond a plain
// one-line diagnostic on failure; callers get the same information back
// as an error and are free to suppress or redirect this line, but the
// line itself is not optional.
func logDiagnostic(prefix string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", prefix, err)
}
