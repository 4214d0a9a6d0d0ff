package formula

import "github.com/pkg/errors"

// compile is the virtual-register backend: it walks the same AST as
// assemble but hands out registers through a regAllocator instead of
// hard-wiring xmm0/xmm1, so it keeps more values live at once and only
// falls back to the assembler's push/pop rax stack discipline when the
// allocator runs out of its six allocatable XMM registers. For the
// left-folded chains the parser produces (a+b+c+d...) this never spills:
// register pressure peaks at two. Deep right-nesting (a+(b+(c+(d+...))))
// is what drives the allocator to its limit and exercises the spill path,
// and can nest arbitrarily deep regardless of pool size: a spilled
// operand is always restored through spillScratch (xmm7), a register the
// pool never hands out, rather than by asking the pool itself for a
// landing spot right after the very subtree that just drained it.
//
// It returns the register holding the computed value; the caller
// (compileFunction) is responsible for moving that into xmm0 before ret,
// since the allocator never hands out xmm0 itself. A non-nil error means
// the AST could not be materialized by this backend; it is never a raw
// panic, per the same "emission failure surfaces as an error" contract
// assembleFunction follows.
func compile(d *dataSection, alloc *regAllocator, n Node) (xmmReg, error) {
	switch node := n.(type) {
	case *NumberNode:
		r, ok := alloc.alloc()
		if !ok {
			return 0, newError(KindInvariant, "allocate register", errors.New("register allocator exhausted at a leaf"))
		}
		emitLoadConst(d, r, node.Value)
		return r, nil

	case *IdentNode:
		r, ok := alloc.alloc()
		if !ok {
			return 0, newError(KindInvariant, "allocate register", errors.New("register allocator exhausted at a leaf"))
		}
		emitLoadSymbol(d, r, node.Name)
		return r, nil

	case *UnaryNode:
		r, err := compile(d, alloc, node.Child)
		if err != nil {
			return 0, err
		}
		if node.Op == UnaryMinus {
			// spillScratch is safe here for the same reason it's safe as
			// a spill landing pad: its value never survives past the
			// statement that writes it, so nothing above or beside this
			// node can observe it being borrowed for the duration of one
			// negate sequence.
			emitNegate(d, r, spillScratch)
		}
		return r, nil

	case *BinaryNode:
		left, err := compile(d, alloc, node.Left)
		if err != nil {
			return 0, err
		}

		spilled := alloc.free == 0
		if spilled {
			emitMovqXmmToRax(d, left)
			emitPushRax(d)
			alloc.release(left)
		}

		right, err := compile(d, alloc, node.Right)
		if err != nil {
			return 0, err
		}

		if !spilled {
			dst := left
			emitBinaryOp(d, node.Op, dst, right)
			alloc.release(right)
			return dst, nil
		}

		// left is on the stack and its former register now belongs to
		// whatever right's subtree needed it for, so the popped value
		// lands in spillScratch instead of a pool register: nothing in
		// right's subtree, or in any ancestor still waiting on its own
		// spill, ever touches xmm7.
		emitPopRax(d)
		emitMovqRaxToXmm(d, spillScratch)
		emitBinaryOp(d, node.Op, spillScratch, right)
		alloc.release(right)

		dst, ok := alloc.alloc()
		if !ok {
			return 0, newError(KindInvariant, "allocate register", errors.New("register allocator exhausted restoring a spill"))
		}
		emitMovsd(d, dst, spillScratch)
		return dst, nil

	default:
		panic("formula: unknown AST node type in compile")
	}
}

// emitBinaryOp emits the single *sd instruction for op, computing
// dst = dst op src.
func emitBinaryOp(d *dataSection, op BinaryOp, dst, src xmmReg) {
	switch op {
	case BinaryAdd:
		emitAddsd(d, dst, src)
	case BinarySub:
		emitSubsd(d, dst, src)
	case BinaryMul:
		emitMulsd(d, dst, src)
	case BinaryDiv:
		emitDivsd(d, dst, src)
	}
}

// compileFunction emits a complete callable body for n using the
// virtual-register backend: the compiled instruction sequence, a final
// move of whatever register holds the result into xmm0, ret, and a
// drained data section ready to be copied into executable memory.
func compileFunction(n Node, symbols *SymbolTable) ([]byte, error) {
	d := newDataSection()
	alloc := newRegAllocator()

	result, err := compile(d, alloc, n)
	if err != nil {
		return nil, err
	}
	emitMovsd(d, xmm0, result)
	emitRet(d)

	return d.drain(symbols)
}
