package formula

// assemble is the physical-register backend (see the package doc comment
// for how it compares to compile). It walks the AST once, keeping the
// live value in xmm0 at every point where an outer node is about to
// consume it, using xmm1 purely as transient scratch and a push/pop rax
// software stack to hold a left operand across the evaluation of a right
// subtree. No virtual registers, no allocator: register pressure is
// handled entirely by spilling to the machine stack, the same way a
// programmer would compile arithmetic by hand with only two SSE registers
// to work with.
func assemble(d *dataSection, n Node) {
	switch node := n.(type) {
	case *NumberNode:
		emitLoadConst(d, xmm0, node.Value)

	case *IdentNode:
		emitLoadSymbol(d, xmm0, node.Name)

	case *UnaryNode:
		assemble(d, node.Child)
		if node.Op == UnaryMinus {
			// xmm1 is never live across a UnaryNode: assemble only ever
			// assigns it right after the right subtree of a BinaryNode
			// returns, which hasn't happened yet at this point in the
			// walk, so it's free to use as negate's scratch register.
			emitNegate(d, xmm0, xmm1)
		}
		// UnaryPlus: the child's value is already sitting in xmm0.

	case *BinaryNode:
		assemble(d, node.Left)
		emitMovqXmmToRax(d, xmm0)
		emitPushRax(d)

		assemble(d, node.Right)
		emitMovsd(d, xmm1, xmm0) // right operand out of xmm0's way

		emitPopRax(d)
		emitMovqRaxToXmm(d, xmm0) // left operand restored

		switch node.Op {
		case BinaryAdd:
			emitAddsd(d, xmm0, xmm1)
		case BinarySub:
			emitSubsd(d, xmm0, xmm1)
		case BinaryMul:
			emitMulsd(d, xmm0, xmm1)
		case BinaryDiv:
			emitDivsd(d, xmm0, xmm1)
		}

	default:
		panic("formula: unknown AST node type in assemble")
	}
}

// assembleFunction emits a complete callable body for n: the assembled
// instruction sequence followed by ret, with the data section drained
// against symbols so every RIP-relative reference it left behind resolves
// to a concrete offset. The returned image is ready to be copied into
// executable memory as-is.
func assembleFunction(n Node, symbols *SymbolTable) ([]byte, error) {
	d := newDataSection()
	assemble(d, n)
	emitRet(d)
	return d.drain(symbols)
}
