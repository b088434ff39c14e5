package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vmTestCase is a small fluent test-case builder
// (withStack/do/expectStack/expectError/...) for what Kokoki's Value-stack
// VM needs: seed the operand stack, Eval one source string, assert on the
// resulting stack/output/error.
type vmTestCase struct {
	name string

	stack []Value
	src   string

	wantErr      string
	wantStackErr string

	checkStack bool
	wantStack  []Value

	checkOutput bool
	wantOutput  string
}

type vmTestCases []vmTestCase

func (vmts vmTestCases) run(t *testing.T) {
	for _, vmt := range vmts {
		t.Run(vmt.name, vmt.run)
	}
}

func vmTest(name string) (vmt vmTestCase) {
	vmt.name = name
	return vmt
}

func (vmt vmTestCase) withStack(values ...Value) vmTestCase {
	vmt.stack = append(vmt.stack, values...)
	return vmt
}

func (vmt vmTestCase) do(src string) vmTestCase {
	vmt.src = src
	return vmt
}

func (vmt vmTestCase) expectStack(values ...Value) vmTestCase {
	vmt.checkStack = true
	vmt.wantStack = values
	return vmt
}

// expectError asserts Eval itself returns an error (a parse/compile failure
// or a fatal halt) containing substr.
func (vmt vmTestCase) expectError(substr string) vmTestCase {
	vmt.wantErr = substr
	return vmt
}

// expectStackError asserts Eval succeeds but leaves a TagError value
// containing substr on top of the stack: ordinary runtime errors (stack
// underflow, type mismatch, ...) are non-fatal and pushed as data rather
// than returned.
func (vmt vmTestCase) expectStackError(substr string) vmTestCase {
	vmt.wantStackErr = substr
	return vmt
}

func (vmt vmTestCase) expectOutput(s string) vmTestCase {
	vmt.checkOutput = true
	vmt.wantOutput = s
	return vmt
}

func (vmt vmTestCase) run(t *testing.T) {
	var out bytes.Buffer
	ctx := New(WithOutput(&out))
	for _, v := range vmt.stack {
		ctx.stack.Push(v)
	}

	err := ctx.Eval([]byte(vmt.src))

	if vmt.wantErr != "" {
		require.Error(t, err)
		assert.Contains(t, err.Error(), vmt.wantErr)
		return
	}
	require.NoError(t, err)

	if vmt.wantStackErr != "" {
		require.Greater(t, ctx.stack.Len(), 0)
		top, _ := ctx.stack.Peek(0)
		require.Equal(t, TagError, top.Tag())
		assert.Contains(t, top.Str(), vmt.wantStackErr)
		return
	}

	if vmt.checkStack {
		assert.Equal(t, vmt.wantStack, ctx.stack.Slice())
	}
	if vmt.checkOutput {
		assert.Equal(t, vmt.wantOutput, out.String())
	}
}
