// Package jit turns a finished machine-code image into a callable Go
// function. It is the in-process analogue of asmjit's CodeHolder plus
// JitRuntime: instead of writing a standalone executable and re-executing
// it, it maps the image into anonymous memory, flips that memory from
// writable to executable, and hands back an Arena whose Call method calls
// straight into it and returns the result as a float64.
package jit

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Logger receives a line per arena lifecycle event (map, protect, unmap).
// It is nil by default; set it on an Arena to mirror asmjit's optional
// FileLogger without forcing every caller to pay for it.
type Logger interface {
	Printf(format string, args ...any)
}

// Arena owns one mapping of executable memory holding exactly one
// finalized function body. It is not safe to reuse after Close.
type Arena struct {
	mem    []byte
	logger Logger
}

// NewArena maps code into memory writable-then-executable and returns an
// Arena ready to Call. code must already be a complete function body
// ending in a return instruction; NewArena does not validate its
// contents, only its non-emptiness.
func NewArena(code []byte) (*Arena, error) {
	return NewArenaWithLogger(code, nil)
}

// NewArenaWithLogger is NewArena with an optional Logger attached before
// any mapping happens, so every lifecycle event is observed.
func NewArenaWithLogger(code []byte, logger Logger) (*Arena, error) {
	if len(code) == 0 {
		return nil, errors.New("jit: empty code image")
	}

	size := pageAlign(len(code))
	logf(logger, "jit: mapping %d bytes (%d page-aligned)", len(code), size)

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(err, "jit: mmap")
	}

	copy(mem, code)

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, errors.Wrap(err, "jit: mprotect")
	}
	logf(logger, "jit: mapped at %#x, executable", uintptr(unsafe.Pointer(&mem[0])))

	return &Arena{mem: mem, logger: logger}, nil
}

// Call invokes the mapped function body and returns its result. Calling
// Call after Close is a programming error and will crash the process, the
// same way calling through a freed asmjit function pointer would.
func (a *Arena) Call() float64 {
	return callFloat64(uintptr(unsafe.Pointer(&a.mem[0])))
}

// Close unmaps the arena's memory. It is idempotent.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	logf(a.logger, "jit: unmapping %d bytes", len(a.mem))
	err := unix.Munmap(a.mem)
	a.mem = nil
	if err != nil {
		return errors.Wrap(err, "jit: munmap")
	}
	return nil
}

func pageAlign(n int) int {
	pageSize := unix.Getpagesize()
	return (n + pageSize - 1) &^ (pageSize - 1)
}

func logf(l Logger, format string, args ...any) {
	if l != nil {
		l.Printf(format, args...)
	}
}
