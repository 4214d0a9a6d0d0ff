// Package formula parses textual arithmetic expressions over real-valued
// variables into an AST and evaluates them three ways: tree-walking
// interpretation, and two independent x86-64 JIT backends — a
// physical-register assembler and a virtual-register allocating compiler.
// All three are required to agree on every input; the JIT backends exist
// for speed, not for a different answer.
//
// A Formula owns a mutable symbol table seeded with the two predefined
// constants e and pi. Evaluate always calls the most recently built native
// function body, if one exists, and falls back to a tree walk only when
// neither Assemble nor Compile has succeeded since the Formula was parsed
// or last closed. Rebinding a variable
// with SetValue never implicitly recompiles a previously built function
// body, so once a native function exists, Evaluate can go stale relative
// to the live symbol table until Recompile is called.
package formula

import (
	"github.com/pkg/errors"

	"github.com/xyproto/formula/jit"
)

// Formula is a parsed expression together with the mutable bindings it is
// evaluated against, and, once requested, the JIT-compiled function
// bodies for its two machine-code backends.
type Formula struct {
	source  string
	root    Node
	symbols *SymbolTable

	asmArena  *jit.Arena
	compArena *jit.Arena
	active    *jit.Arena // most recently built body; nil until one exists
}

// Parse parses text as a complete arithmetic expression and returns a
// Formula ready to Evaluate. On a syntax error it returns a nil *Formula
// and a non-nil error, having already logged one diagnostic line to
// stderr; it never panics on malformed input.
func Parse(text string) (*Formula, error) {
	root, err := NewParser(text).ParseFormula()
	if err != nil {
		wrapped := newError(KindParse, "parse formula", err)
		logDiagnostic("Parse error", wrapped)
		return nil, wrapped
	}
	return &Formula{
		source:  text,
		root:    root,
		symbols: NewSymbolTable(),
	}, nil
}

// String returns the parsed expression's canonical fully-parenthesized
// form, useful for confirming how the parser resolved precedence.
func (f *Formula) String() string {
	return f.root.String()
}

// SetValue rebinds name to v for every future tree-walking Evaluate call
// (once no native function has been built yet) and for the next
// Assemble/Compile call, but does not touch a function body already
// produced by a previous Assemble or Compile — those keep returning the
// value that was live when they were built until Recompile is called.
func (f *Formula) SetValue(name string, v float64) {
	f.symbols.Set(name, v)
}

// Value returns the current binding for name.
func (f *Formula) Value(name string) float64 {
	return f.symbols.Get(name)
}

// Evaluate calls the function body from the most recent successful
// Assemble or Compile call, if either has run since the Formula was parsed
// or last closed; otherwise it walks
// the AST directly against the live symbol table. This mirrors a single
// finalized function slot that Assemble/Compile replace and SetValue
// never touches: once a native function exists, Evaluate reflects it, not
// necessarily the live symbol table, until Recompile brings it current.
func (f *Formula) Evaluate() float64 {
	if f.active != nil {
		return f.active.Call()
	}
	return Eval(f.root, f.symbols)
}

// Assemble builds this formula's function body with the physical-register
// backend and maps it into executable memory, replacing any function body
// from a previous Assemble call and becoming the body Evaluate calls. It
// snapshots the symbol table as it stands right now; later SetValue calls
// do not affect the mapped function until Recompile runs again.
func (f *Formula) Assemble() error {
	arena, err := buildArena(assembleFunction, f.root, f.symbols)
	if err != nil {
		wrapped := asFailure("assemble formula", err)
		logDiagnostic("Failed to assemble formula", wrapped)
		return wrapped
	}
	if f.asmArena != nil {
		_ = f.asmArena.Close()
	}
	f.asmArena = arena
	f.active = arena
	return nil
}

// Compile is Assemble's counterpart for the virtual-register backend.
func (f *Formula) Compile() error {
	arena, err := buildArena(compileFunction, f.root, f.symbols)
	if err != nil {
		wrapped := asFailure("compile formula", err)
		logDiagnostic("Failed to compile formula", wrapped)
		return wrapped
	}
	if f.compArena != nil {
		_ = f.compArena.Close()
	}
	f.compArena = arena
	f.active = arena
	return nil
}

// EvaluateAssembled calls the function body produced by the most recent
// Assemble call directly, regardless of which backend Evaluate would
// currently dispatch to. It returns an error if Assemble was never
// called.
func (f *Formula) EvaluateAssembled() (float64, error) {
	if f.asmArena == nil {
		return 0, newError(KindInvariant, "evaluate assembled", errors.New("Assemble was never called"))
	}
	return f.asmArena.Call(), nil
}

// EvaluateCompiled is EvaluateAssembled's counterpart for Compile.
func (f *Formula) EvaluateCompiled() (float64, error) {
	if f.compArena == nil {
		return 0, newError(KindInvariant, "evaluate compiled", errors.New("Compile was never called"))
	}
	return f.compArena.Call(), nil
}

// Recompile rebuilds whichever of Assemble and Compile have already been
// called at least once, against the current symbol table, so that
// bindings changed by SetValue since the last build take effect in the
// mapped function bodies too. It is a no-op for a backend that was never
// built in the first place. Rebuilding both, in Assemble-then-Compile
// order, leaves the compiled backend as the one Evaluate dispatches to,
// matching whichever call runs last.
func (f *Formula) Recompile() error {
	if f.asmArena != nil {
		if err := f.Assemble(); err != nil {
			return err
		}
	}
	if f.compArena != nil {
		if err := f.Compile(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases any executable memory this formula has mapped. It is
// safe to call more than once and safe to call when neither Assemble nor
// Compile was ever used. After Close, Evaluate falls back to tree-walking
// again.
func (f *Formula) Close() error {
	var firstErr error
	if f.asmArena != nil {
		if err := f.asmArena.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		f.asmArena = nil
	}
	if f.compArena != nil {
		if err := f.compArena.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		f.compArena = nil
	}
	f.active = nil
	return firstErr
}

// buildArena runs one of the two backends' function builders and, on
// success, maps the resulting image into executable memory. Wrapping
// both fallible steps here keeps Assemble and Compile identical apart
// from which builder they name.
func buildArena(build func(Node, *SymbolTable) ([]byte, error), root Node, symbols *SymbolTable) (*jit.Arena, error) {
	image, err := build(root, symbols)
	if err != nil {
		return nil, asFailure("build function body", err)
	}
	arena, err := jit.NewArena(image)
	if err != nil {
		return nil, asFailure("map function body", err)
	}
	return arena, nil
}
