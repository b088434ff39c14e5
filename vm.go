package main

import (
	"encoding/binary"
	"math"
)

// run drives the fetch-decode-execute loop starting at ctx.pc until an END
// opcode returns control to the host.
func (ctx *Context) run() error {
	for {
		pc := ctx.pc
		op := Opcode(ctx.fetchByte())
		if op == opEnd {
			return nil
		}
		ctx.logf("@%d %s (stack depth %d)", pc, op, ctx.stack.Len())
		if err := ctx.step(op); err != nil {
			return err
		}
	}
}

func (ctx *Context) fetchByte() byte {
	b, err := ctx.code.Load(ctx.pc)
	if err != nil {
		ctx.halt(err)
	}
	ctx.pc++
	return b
}

func (ctx *Context) fetchN(n int) []byte {
	buf := make([]byte, n)
	if err := ctx.code.LoadInto(ctx.pc, buf); err != nil {
		ctx.halt(err)
	}
	ctx.pc += uint32(n)
	return buf
}

func (ctx *Context) fetchAddr() uint32 {
	b := ctx.fetchN(3)
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func (ctx *Context) fetchInvokeIdx() uint16 {
	b := ctx.fetchN(2)
	return uint16(b[0])<<8 | uint16(b[1])
}

func (ctx *Context) fetchI8() int8   { return int8(ctx.fetchByte()) }
func (ctx *Context) fetchI16() int16 { b := ctx.fetchN(2); return int16(uint16(b[0]) | uint16(b[1])<<8) }

func (ctx *Context) fetchF64() float64 {
	b := ctx.fetchN(8)
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

func (ctx *Context) fetchStr() string {
	n := int(ctx.fetchByte())
	return string(ctx.fetchN(n))
}

func (ctx *Context) fetchStrLong() string {
	b := ctx.fetchN(4)
	n := int(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
	return string(ctx.fetchN(n))
}

// halt aborts the current Eval entirely, for conditions that amount to host
// allocation failure rather than an ordinary runtime error.
func (ctx *Context) halt(err error) { panic(haltError{err}) }

// underflow pushes a non-fatal error value describing the deficit. name is
// an opcode mnemonic or native name, whichever triggered the check.
func (ctx *Context) underflow(name string, need int) {
	ctx.stack.Push(ErrorValuef("Stack underflow! %s needs %d, has %d", name, need, ctx.stack.Len()))
}

// need reports whether the stack holds at least n values, pushing a
// non-fatal underflow error value and returning false otherwise.
func (ctx *Context) need(name string, n int) bool {
	if ctx.stack.Len() < n {
		ctx.underflow(name, n)
		return false
	}
	return true
}

func (ctx *Context) step(op Opcode) error {
	switch op {
	case opJmp:
		addr := ctx.fetchAddr()
		ctx.pc = addr

	case opJmpTrue, opJmpFalse:
		addr := ctx.fetchAddr()
		if !ctx.need(op.String(), 1) {
			return nil
		}
		v, _ := ctx.stack.Pop()
		truthy := !v.IsFalsy()
		if (op == opJmpTrue) == truthy {
			ctx.pc = addr
		}

	case opCall:
		addr := ctx.fetchAddr()
		ctx.ret.Push(ctx.pc)
		ctx.pc = addr

	case opReturn:
		addr, ok := ctx.ret.Pop()
		if !ok {
			ctx.halt(errRetUnderflow)
		}
		ctx.pc = addr

	case opInvoke:
		idx := ctx.fetchInvokeIdx()
		if int(idx) >= len(ctx.natives.entries) {
			ctx.stack.Push(ErrorValuef("invalid native index %d", idx))
			return nil
		}
		ctx.natives.entries[idx].fn(ctx)

	case opPushNil:
		ctx.stack.Push(Nil())
	case opPushTrue:
		ctx.stack.Push(True())
	case opPushFalse:
		ctx.stack.Push(False())
	case opPushInt8:
		ctx.stack.Push(Number(float64(ctx.fetchI8())))
	case opPushInt16:
		ctx.stack.Push(Number(float64(ctx.fetchI16())))
	case opPushNumber:
		ctx.stack.Push(Number(ctx.fetchF64()))
	case opPushString:
		ctx.stack.Push(String(ctx.fetchStr()))
	case opPushStringLen:
		ctx.stack.Push(String(ctx.fetchStrLong()))
	case opPushName:
		ctx.stack.Push(RefName(ctx.fetchStr()))
	case opPushArray:
		ctx.stack.Push(ArrayValue(NewArray()))
	case opPushHashMap:
		ctx.stack.Push(HashMapValue(NewHashMap()))
	case opPushCodeAddr:
		ctx.stack.Push(CodeAddr(ctx.fetchAddr()))

	case opPlus, opMinus, opMul, opDiv:
		ctx.binaryNumeric(op)
	case opMod, opShl, opShr:
		ctx.binaryIntegral(op)
	case opLt, opGt, opLte, opGte:
		ctx.binaryCompare(op)
	case opEq:
		if ctx.need(op.String(), 2) {
			b, _ := ctx.stack.Pop()
			a, _ := ctx.stack.Pop()
			ctx.stack.Push(Bool(a.Equal(b)))
		}
	case opAnd, opOr:
		ctx.binaryLogic(op)

	case opDup:
		if ctx.need(op.String(), 1) {
			v, _ := ctx.stack.Peek(0)
			ctx.stack.Push(v)
		}
	case opDrop:
		if ctx.need(op.String(), 1) {
			ctx.stack.Pop()
		}
	case opSwap:
		if ctx.need(op.String(), 2) {
			b, _ := ctx.stack.Pop()
			a, _ := ctx.stack.Pop()
			ctx.stack.Push(b)
			ctx.stack.Push(a)
		}
	case opRot:
		if ctx.need(op.String(), 3) {
			c, _ := ctx.stack.Pop()
			b, _ := ctx.stack.Pop()
			a, _ := ctx.stack.Pop()
			ctx.stack.Push(b)
			ctx.stack.Push(c)
			ctx.stack.Push(a)
		}
	case opOver:
		if ctx.need(op.String(), 2) {
			v, _ := ctx.stack.Peek(1)
			ctx.stack.Push(v)
		}
	case opNip:
		if ctx.need(op.String(), 2) {
			b, _ := ctx.stack.Pop()
			_, _ = ctx.stack.Pop()
			ctx.stack.Push(b)
		}
	case opTuck:
		if ctx.need(op.String(), 2) {
			b, _ := ctx.stack.Pop()
			a, _ := ctx.stack.Pop()
			ctx.stack.Push(b)
			ctx.stack.Push(a)
			ctx.stack.Push(b)
		}

	case opPick1, opPick2, opPick3, opPick4, opPick5:
		k := int(op-opPick1) + 1
		if ctx.need(op.String(), k+1) {
			v, _ := ctx.stack.Peek(k)
			ctx.stack.Push(v)
		}
	case opPickN:
		ctx.pickN()

	case opMove1, opMove2, opMove3, opMove4, opMove5:
		k := int(op-opMove1) + 1
		if ctx.need(op.String(), k+1) {
			v, _ := ctx.stack.RemoveFromTop(k)
			ctx.stack.Push(v)
		}
	case opMoveN:
		ctx.moveN()

	case opAPush:
		ctx.apush()
	case opHMPut:
		ctx.hmput()

	case opPrint:
		if ctx.need(op.String(), 1) {
			v, _ := ctx.stack.Pop()
			if v.Tag() == TagString {
				ctx.writeString(v.Str())
			} else {
				ctx.writeString(v.String())
			}
		}

	default:
		return &CompileError{Msg: "invalid opcode"}
	}
	return nil
}

// sentinelRet is an address no compiled program ever reaches (well past any
// Context's 16 MiB code-space ceiling), used by invokeBlock to detect that a
// block it drove has returned to its caller rather than to more bytecode.
const sentinelRet = ^uint32(0)

// invokeBlock runs the block at addr to completion, synchronously, as a
// nested fetch-decode-execute loop sharing the same operand stack — the
// mechanism every higher-order native (each/fold/filter/!!/cond/while/times)
// uses to call a compiled `[...]` body without the VM's main loop ever
// needing to know about the call. It assumes addr is a definition/block
// entry point that ends in RETURN (true of every code-address the compiler
// ever produces).
func (ctx *Context) invokeBlock(addr uint32) {
	ctx.ret.Push(sentinelRet)
	savedPC := ctx.pc
	ctx.pc = addr
	for ctx.pc != sentinelRet {
		op := Opcode(ctx.fetchByte())
		if op == opEnd {
			break
		}
		if err := ctx.step(op); err != nil {
			ctx.halt(err)
		}
	}
	ctx.pc = savedPC
}

func (ctx *Context) pickN() {
	if !ctx.need(opPickN.String(), 1) {
		return
	}
	nv, _ := ctx.stack.Pop()
	n := int(nv.Num())
	if n < 0 || !ctx.need(opPickN.String(), n+1) {
		return
	}
	v, _ := ctx.stack.Peek(n)
	ctx.stack.Push(v)
}

func (ctx *Context) moveN() {
	if !ctx.need(opMoveN.String(), 1) {
		return
	}
	nv, _ := ctx.stack.Pop()
	n := int(nv.Num())
	if n < 0 || !ctx.need(opMoveN.String(), n+1) {
		return
	}
	v, _ := ctx.stack.RemoveFromTop(n)
	ctx.stack.Push(v)
}

func (ctx *Context) apush() {
	if !ctx.need(opAPush.String(), 2) {
		return
	}
	v, _ := ctx.stack.Pop()
	av, _ := ctx.stack.Pop()
	a := av.Array()
	if a == nil {
		ctx.stack.Push(ErrorValuef("apush: expected array, got %v", av.Tag()))
		return
	}
	a.Append(v)
	ctx.stack.Push(av)
}

func (ctx *Context) hmput() {
	if !ctx.need(opHMPut.String(), 3) {
		return
	}
	v, _ := ctx.stack.Pop()
	k, _ := ctx.stack.Pop()
	hv, _ := ctx.stack.Pop()
	h := hv.HashMap()
	if h == nil {
		ctx.stack.Push(ErrorValuef("hmput: expected hashmap, got %v", hv.Tag()))
		return
	}
	if err := h.Put(k, v); err != nil {
		ctx.stack.Push(ErrorValue(err.Error()))
		return
	}
	ctx.stack.Push(hv)
}

func (ctx *Context) binaryNumeric(op Opcode) {
	if !ctx.need(op.String(), 2) {
		return
	}
	b, _ := ctx.stack.Pop()
	a, _ := ctx.stack.Pop()
	if a.Tag() != TagNumber || b.Tag() != TagNumber {
		ctx.stack.Push(ErrorValuef("%s: expected numbers, got %v and %v", op, a.Tag(), b.Tag()))
		return
	}
	var r float64
	switch op {
	case opPlus:
		r = a.Num() + b.Num()
	case opMinus:
		r = a.Num() - b.Num()
	case opMul:
		r = a.Num() * b.Num()
	case opDiv:
		r = a.Num() / b.Num()
	}
	ctx.stack.Push(Number(r))
}

func (ctx *Context) binaryIntegral(op Opcode) {
	if !ctx.need(op.String(), 2) {
		return
	}
	b, _ := ctx.stack.Pop()
	a, _ := ctx.stack.Pop()
	if a.Tag() != TagNumber || b.Tag() != TagNumber {
		ctx.stack.Push(ErrorValuef("%s: expected numbers, got %v and %v", op, a.Tag(), b.Tag()))
		return
	}
	ai, bi := int64(a.Num()), int64(b.Num())
	var r int64
	switch op {
	case opMod:
		if bi == 0 {
			ctx.stack.Push(ErrorValue("modulo by zero"))
			return
		}
		r = ai % bi
	case opShl:
		r = ai << uint(bi)
	case opShr:
		r = ai >> uint(bi)
	}
	ctx.stack.Push(Number(float64(r)))
}

func (ctx *Context) binaryCompare(op Opcode) {
	if !ctx.need(op.String(), 2) {
		return
	}
	b, _ := ctx.stack.Pop()
	a, _ := ctx.stack.Pop()
	if a.Tag() != TagNumber || b.Tag() != TagNumber {
		ctx.stack.Push(ErrorValuef("%s: expected numbers, got %v and %v", op, a.Tag(), b.Tag()))
		return
	}
	var r bool
	switch op {
	case opLt:
		r = a.Num() < b.Num()
	case opGt:
		r = a.Num() > b.Num()
	case opLte:
		r = a.Num() <= b.Num()
	case opGte:
		r = a.Num() >= b.Num()
	}
	ctx.stack.Push(Bool(r))
}

func (ctx *Context) binaryLogic(op Opcode) {
	if !ctx.need(op.String(), 2) {
		return
	}
	b, _ := ctx.stack.Pop()
	a, _ := ctx.stack.Pop()
	switch op {
	case opAnd:
		ctx.stack.Push(Bool(!a.IsFalsy() && !b.IsFalsy()))
	case opOr:
		ctx.stack.Push(Bool(!a.IsFalsy() || !b.IsFalsy()))
	}
}
