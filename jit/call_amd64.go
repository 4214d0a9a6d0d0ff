package jit

// callFloat64 calls the function at fn as if it were a Go func() float64,
// following the System V AMD64 calling convention that every backend in
// this module targets: no arguments, result returned in xmm0. It is
// implemented in assembly (call_amd64.s) because there is no source-level
// way in Go to call through a bare code address.
//
// The mapped function body is assumed to be leaf code: it makes no calls
// of its own and allocates no stack frame beyond what the assembler and
// compiler backends emit, so the trampoline does not attempt to set up a
// system-stack switch the way cgo would for an arbitrary callee.
func callFloat64(fn uintptr) float64
