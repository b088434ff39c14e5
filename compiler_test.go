package main

import "testing"

// TestEndToEndScenarios exercises a source→top-of-stack table covering each
// opcode/native family directly.
func TestEndToEndScenarios(t *testing.T) {
	vmTestCases{
		vmTest("arithmetic with a comment").
			do("# comment\n 1 2 3 + + ").
			expectStack(Number(6)),

		vmTest("word definition").
			do(": sq dup * ; 9 sq ").
			expectStack(Number(81)),

		vmTest("if/else/then").
			do(`1 2 < if "small" else "big" then `).
			expectStack(String("small")),

		vmTest("if/else/then, false branch").
			do(`2 1 < if "small" else "big" then `).
			expectStack(String("big")),

		vmTest("array literal with each").
			do("[1 2 3] [2 *] each").
			expectStack(ArrayValue(NewArrayOf(Number(2), Number(4), Number(6)))),

		vmTest("ref-cell set, update, get").
			do("@x 40 ! @x [2 +] !! @x ?").
			expectStack(Number(42)),

		vmTest("string concatenation").
			do(`"foo" "bar" cat `).
			expectStack(String("foobar")),

		vmTest("array filter").
			do("[1 2 3 6 8 41] [2 % 0 =] filter").
			expectStack(ArrayValue(NewArrayOf(Number(2), Number(6), Number(8)))),

		vmTest("move underflow is a non-fatal stack error").
			do("1 move ").
			expectStackError("Stack underflow!"),
	}.run(t)
}

func TestIntLiteralWidths(t *testing.T) {
	vmTestCases{
		vmTest("fits int8").
			do("100").
			expectStack(Number(100)),
		vmTest("fits int8 negative").
			do("-128").
			expectStack(Number(-128)),
		vmTest("needs int16").
			do("1000").
			expectStack(Number(1000)),
		vmTest("needs int16 negative").
			do("-30000").
			expectStack(Number(-30000)),
		vmTest("needs full float64").
			do("100000").
			expectStack(Number(100000)),
		vmTest("fractional number").
			do("3.5").
			expectStack(Number(3.5)),
	}.run(t)
}

func TestWordDefinitionEquivalence(t *testing.T) {
	// After `: w body ;`, evaluating `w` is equivalent to evaluating `body`
	// in the same context.
	vmTestCases{
		vmTest("defined word matches inline body").
			do(": inc 1 + ; 41 inc").
			expectStack(Number(42)),
	}.run(t)
}

func TestArrayLiteralVsBlockClassification(t *testing.T) {
	vmTestCases{
		vmTest("all-literal brackets build a data array").
			do("[1 2 3]").
			expectStack(ArrayValue(NewArrayOf(Number(1), Number(2), Number(3)))),

		vmTest("comma-separated literal brackets also build an array").
			do("[1, 2, 3]").
			expectStack(ArrayValue(NewArrayOf(Number(1), Number(2), Number(3)))),

		vmTest("nested literal arrays").
			do("[[1 2] [3 4]]").
			expectStack(ArrayValue(NewArrayOf(
				ArrayValue(NewArrayOf(Number(1), Number(2))),
				ArrayValue(NewArrayOf(Number(3), Number(4))),
			))),

		vmTest("empty array literal").
			do("[]").
			expectStack(ArrayValue(NewArray())),

		vmTest("a bracket with an operator compiles as a block, not data").
			do("[2 *]").
			expectStack(CodeAddr(4)), // the block's entry follows the 4-byte jump over its body
	}.run(t)
}

func TestHashmapLiteral(t *testing.T) {
	vmTestCases{
		vmTest("hashmap literal with one pair, read back by key").
			do(`{ "k" 1 } "k" hmget`).
			expectStack(Number(1)),

		vmTest("hashmap literal with multiple pairs, no commas").
			do(`{ "a" 1 "b" 2 } "b" hmget`).
			expectStack(Number(2)),

		vmTest("hmput adds a new key at runtime").
			do(`{ "a" 1 } "b" 2 hmput "b" hmget`).
			expectStack(Number(2)),

		vmTest("hmdel removes a key").
			do(`{ "a" 1 "b" 2 } "a" hmdel "a" hmget`).
			expectStackError("no such key"),

		vmTest("hmget on a missing key is a non-fatal stack error").
			do(`{ "a" 1 } "missing" hmget`).
			expectStackError("no such key"),

		vmTest("hmget on a non-hashmap is a non-fatal stack error").
			do(`5 "a" hmget`).
			expectStackError("expected hashmap"),
	}.run(t)
}

func TestPickMovePeephole(t *testing.T) {
	vmTestCases{
		vmTest("2 pick copies the third-from-top element").
			withStack(Number(1), Number(2), Number(3)).
			do("2 pick").
			expectStack(Number(1), Number(2), Number(3), Number(1)),

		vmTest("1 move relocates the top-of-stack-minus-one element").
			withStack(Number(1), Number(2), Number(3)).
			do("1 move").
			expectStack(Number(1), Number(3), Number(2)),

		vmTest("a non-pick/move word following a number leaves the number pushed").
			do("5 dup").
			expectStack(Number(5), Number(5)),
	}.run(t)
}

func TestUnknownName(t *testing.T) {
	vmTestCases{
		vmTest("unknown name is a compile error").
			do("bogusword").
			expectError("unknown name"),
	}.run(t)
}
