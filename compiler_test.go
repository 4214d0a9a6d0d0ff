package formula

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/xyproto/formula/jit"
)

func runCompiled(t *testing.T, input string, symbols *SymbolTable) float64 {
	t.Helper()
	root := mustParse(t, input)
	image, err := compileFunction(root, symbols)
	if err != nil {
		t.Fatalf("compileFunction(%q): %v", input, err)
	}
	arena, err := jit.NewArena(image)
	if err != nil {
		t.Fatalf("jit.NewArena(%q): %v", input, err)
	}
	defer arena.Close()
	return arena.Call()
}

func TestCompilerAgreesWithInterpreter(t *testing.T) {
	symbols := NewSymbolTable()
	symbols.Set("x", 3)
	symbols.Set("y", -2.5)

	cases := []string{
		"1", "-1", "--1", "+1",
		"1+3*2", "(1+3)*2", "1-2-3",
		"x*x+1", "x/y", "y*y*y",
		"e*pi", "-(x+y)*2",
		"1/0", "-1/0", "0/0",
	}

	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			want := Eval(mustParse(t, input), symbols)
			got := runCompiled(t, input, symbols)
			if math.IsNaN(want) {
				if !math.IsNaN(got) {
					t.Fatalf("compile(%q) = %v, want NaN", input, got)
				}
				return
			}
			if got != want {
				t.Fatalf("compile(%q) = %v, want %v", input, got, want)
			}
		})
	}
}

// deepRightNest builds "a1 op (a2 op (a3 op (... op an)))", a shape chosen
// because it is the one the allocator cannot satisfy from its six
// allocatable XMM registers alone once n grows past them, forcing the
// spill path in compile's BinaryNode case.
func deepRightNest(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString("+(")
		}
		fmt.Fprintf(&b, "%d", i)
	}
	for i := 1; i < n; i++ {
		b.WriteString(")")
	}
	return b.String()
}

func TestCompilerSpillsUnderDeepRightNesting(t *testing.T) {
	symbols := NewSymbolTable()
	input := deepRightNest(12) // well past the 6 allocatable XMM registers

	want := Eval(mustParse(t, input), symbols)
	got := runCompiled(t, input, symbols)
	if got != want {
		t.Fatalf("compile(%q) = %v, want %v", input, got, want)
	}
}

func TestCompilerLeftFoldNeverSpills(t *testing.T) {
	alloc := newRegAllocator()
	d := newDataSection()
	root := mustParse(t, "1+2+3+4+5+6+7+8+9+10")

	result, err := compile(d, alloc, root)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if result == xmm0 {
		t.Fatalf("compile should never hand out xmm0, got it as the result register")
	}
	if result == spillScratch {
		t.Fatalf("compile should never hand out spillScratch as an ordinary result, got it")
	}
	// A left-folded chain never needs more than two registers live at
	// once, so the allocator should still hold five of its six
	// allocatable XMM registers free: one is pinned down by the
	// still-unreleased result register.
	var wantFree uint8 = allRegsMask
	wantFree &^= 1 << uint(result)
	if alloc.free != wantFree {
		t.Fatalf("left-folded chain spilled: free mask = %#b, want %#b", alloc.free, wantFree)
	}
}

func TestCompilerDeepRightNestingNeverExhaustsAcrossManyDepths(t *testing.T) {
	symbols := NewSymbolTable()
	for _, n := range []int{7, 8, 9, 15, 30} {
		input := deepRightNest(n)
		want := Eval(mustParse(t, input), symbols)
		got := runCompiled(t, input, symbols)
		if got != want {
			t.Fatalf("compile(depth %d) = %v, want %v", n, got, want)
		}
	}
}
