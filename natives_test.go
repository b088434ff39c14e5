package main

import "testing"

func TestControlNatives(t *testing.T) {
	vmTestCases{
		vmTest("cond runs the block only when the test is truthy").
			do(`true [5] cond`).
			expectStack(Number(5)),

		vmTest("cond skips the block when the test is falsy").
			withStack(Number(42)).
			do(`false [5] cond`).
			expectStack(Number(42)),

		vmTest("while loops until the test goes falsy").
			withStack(Number(0)).
			do(`@i 0 ! [@i ? 3 <] [@i ? 1 + @i swap !] while @i ?`).
			expectStack(Number(0), Number(3)),

		vmTest("times runs the block a fixed number of times").
			withStack(Number(0)).
			do(`@i 0 ! 4 [@i ? 1 + @i swap !] times @i ?`).
			expectStack(Number(0), Number(4)),

		vmTest("fold reduces with a seed and accumulator").
			do(`[1 2 3 4] 0 [+] fold`).
			expectStack(Number(10)),

		vmTest("foldi exposes the element index").
			do(`[10 20 30] 0 [drop +] foldi`).
			expectStack(Number(3)),

		vmTest("filter keeps only truthy results").
			do(`[1 2 3 4 5 6] [2 % 0 =] filter`).
			expectStack(ArrayValue(NewArrayOf(Number(2), Number(4), Number(6)))),

		vmTest("cond on a non-block is a non-fatal stack error").
			do(`true 5 cond`).
			expectStackError("expected a block"),
	}.run(t)
}

func TestStringArrayNatives(t *testing.T) {
	vmTestCases{
		vmTest("cat joins two arrays").
			do(`[1 2] [3 4] cat`).
			expectStack(ArrayValue(NewArrayOf(Number(1), Number(2), Number(3), Number(4)))),

		vmTest("cat rejects mismatched types").
			do(`[1 2] "x" cat`).
			expectStackError("expected two strings or two arrays"),

		vmTest("sort orders numbers ascending").
			do(`[3 1 2] sort`).
			expectStack(ArrayValue(NewArrayOf(Number(1), Number(2), Number(3)))),

		vmTest("sort orders strings lexicographically").
			do(`["banana" "apple" "cherry"] sort`).
			expectStack(ArrayValue(NewArrayOf(String("apple"), String("banana"), String("cherry")))),

		vmTest("compare reports a total order for numbers").
			do(`1 2 compare`).
			expectStack(Number(-1)),

		vmTest("compare never panics across mixed tags").
			do(`1 "x" compare`).
			expectStack(Number(-1)),

		vmTest("len on a string").
			do(`"hello" len`).
			expectStack(Number(5)),

		vmTest("len on a hashmap").
			do(`{ "a" 1 "b" 2 } len`).
			expectStack(Number(2)),

		vmTest("slice takes a half-open range").
			do(`[1 2 3 4 5] 1 3 slice`).
			expectStack(ArrayValue(NewArrayOf(Number(2), Number(3)))),

		vmTest("slice out of bounds is a non-fatal stack error").
			do(`[1 2 3] 1 10 slice`).
			expectStackError("out of bounds"),

		vmTest("adel removes by index and shifts").
			do(`[1 2 3] 0 adel`).
			expectStack(ArrayValue(NewArrayOf(Number(2), Number(3)))),

		vmTest("adel out of bounds is a non-fatal stack error").
			do(`[1 2 3] 9 adel`).
			expectStackError("out of bounds"),

		vmTest("reverse reverses in place").
			do(`[1 2 3] reverse`).
			expectStack(ArrayValue(NewArrayOf(Number(3), Number(2), Number(1)))),

		vmTest("aget/aset round-trip").
			do(`[1 2 3] 1 9 aset 1 aget`).
			expectStack(Number(9)),
	}.run(t)
}

func TestRefCellNatives(t *testing.T) {
	vmTestCases{
		vmTest("get on an unset cell is a non-fatal stack error").
			do(`@never ?`).
			expectStackError("is unset"),

		vmTest("exchange returns the old value and stores the new one").
			do(`@x 1 ! @x 2 !? @x ?`).
			expectStack(Number(1), Number(2)),
	}.run(t)
}
