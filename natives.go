package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// NativeFunc is a host-provided primitive: it pops its own arguments from
// the operand stack and pushes its own results or an error value, reporting
// nothing back to the VM's dispatch loop directly.
type NativeFunc func(ctx *Context)

// nativeEntry is one row of the static, ordered native table: either a
// direct-opcode alias the compiler inlines instead of emitting INVOKE, or a
// Go function the VM calls through INVOKE.
type nativeEntry struct {
	name      string
	hasOpcode bool
	opcode    Opcode
	fn        NativeFunc
}

// nativeTable is the ordered array of built-in natives, plus a name index
// for the compiler's lookups.
type nativeTable struct {
	entries []nativeEntry
	byName  map[string]int
}

func (nt *nativeTable) register(e nativeEntry) error {
	if _, dup := nt.byName[e.name]; dup {
		return fmt.Errorf("kokoki: native %q already registered", e.name)
	}
	if nt.byName == nil {
		nt.byName = make(map[string]int)
	}
	nt.byName[e.name] = len(nt.entries)
	nt.entries = append(nt.entries, e)
	return nil
}

// lookup finds name's native-table entry, returning the index the compiler
// would emit as the INVOKE operand.
func (nt *nativeTable) lookup(name string) (uint16, nativeEntry, bool) {
	i, ok := nt.byName[name]
	if !ok {
		return 0, nativeEntry{}, false
	}
	return uint16(i), nt.entries[i], true
}

// newNativeTable builds the default native set: the direct-opcode aliases
// (the compiler's small-depth pick/move fast path covers the rest) plus the
// I/O, string/array, ref-cell, control and copy groups described in
// SPEC_FULL.md.
func newNativeTable() *nativeTable {
	nt := &nativeTable{}

	opcodeAliases := []struct {
		name string
		op   Opcode
	}{
		{"+", opPlus}, {"-", opMinus}, {"*", opMul}, {"/", opDiv}, {"%", opMod},
		{"<", opLt}, {">", opGt}, {"<=", opLte}, {">=", opGte},
		{"shl", opShl}, {"shr", opShr}, {"=", opEq}, {"and", opAnd}, {"or", opOr},
		{"dup", opDup}, {"drop", opDrop}, {"swap", opSwap}, {"rot", opRot},
		{"over", opOver}, {"nip", opNip}, {"tuck", opTuck},
		{"pick", opPickN}, {"move", opMoveN},
		{"apush", opAPush}, {"hmput", opHMPut}, {"print", opPrint},
	}
	for _, a := range opcodeAliases {
		_ = nt.register(nativeEntry{name: a.name, hasOpcode: true, opcode: a.op})
	}

	fns := []struct {
		name string
		fn   NativeFunc
	}{
		{"slurp", nativeSlurp},
		{"nl", nativeNl},
		{"read", nativeRead},
		{"dump", nativeDump},
		{"eval", nativeEval},
		{"use", nativeUse},

		{"cat", nativeCat},
		{"sort", nativeSort},
		{"compare", nativeCompare},
		{"len", nativeLen},
		{"aget", nativeAget},
		{"aset", nativeAset},
		{"adel", nativeAdel},
		{"slice", nativeSlice},
		{"reverse", nativeReverse},
		{"hmget", nativeHMGet},
		{"hmdel", nativeHMDel},

		{"?", nativeGet},
		{"!", nativeSet},
		{"!!", nativeUpdate},
		{"!?", nativeExchange},

		{"cond", nativeCond},
		{"while", nativeWhile},
		{"times", nativeTimes},
		{"each", nativeEach},
		{"fold", nativeFold},
		{"foldi", nativeFoldi},
		{"filter", nativeFilter},

		{"copy", nativeCopy},
	}
	for _, f := range fns {
		_ = nt.register(nativeEntry{name: f.name, fn: f.fn})
	}
	return nt
}

// --- I/O ---

func nativeSlurp(ctx *Context) {
	if !ctx.need("slurp", 1) {
		return
	}
	path, _ := ctx.stack.Pop()
	if path.Tag() != TagString {
		ctx.stack.Push(ErrorValuef("slurp: expected string path, got %v", path.Tag()))
		return
	}
	data, err := os.ReadFile(path.Str())
	if err != nil {
		ctx.stack.Push(ErrorValuef("slurp: %v", err))
		return
	}
	ctx.stack.Push(String(string(data)))
}

func nativeNl(ctx *Context) { ctx.writeString("\n") }

func nativeRead(ctx *Context) {
	line, err := ctx.in.ReadLine()
	if err != nil {
		ctx.stack.Push(EOFValue())
		return
	}
	ctx.stack.Push(String(line))
}

func nativeDump(ctx *Context) {
	var sb strings.Builder
	items := ctx.stack.Slice()
	fmt.Fprintf(&sb, "stack(%d):", len(items))
	for i := len(items) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, " %v", items[i])
	}
	sb.WriteByte('\n')
	ctx.writeString(sb.String())
}

func nativeEval(ctx *Context) {
	if !ctx.need("eval", 1) {
		return
	}
	src, _ := ctx.stack.Pop()
	if src.Tag() != TagString {
		ctx.stack.Push(ErrorValuef("eval: expected string source, got %v", src.Tag()))
		return
	}
	entry, err := ctx.compileEvalBody([]byte(src.Str()))
	if err != nil {
		ctx.stack.Push(ErrorValue(err.Error()))
		return
	}
	ctx.invokeBlock(entry)
}

func nativeUse(ctx *Context) {
	if !ctx.need("use", 1) {
		return
	}
	path, _ := ctx.stack.Pop()
	if path.Tag() != TagString {
		ctx.stack.Push(ErrorValuef("use: expected string path, got %v", path.Tag()))
		return
	}
	f, err := os.Open(path.Str())
	if err != nil {
		ctx.stack.Push(ErrorValuef("use: %v", err))
		return
	}
	ctx.in.PushFront(f, path.Str())
}

// compileEvalBody compiles src as a standalone block ending in RETURN
// (rather than compileTopLevel's END), for the `eval` native to hand to
// invokeBlock — the same machinery an anonymous `[...]` literal uses, minus
// the surrounding jmp-over/PUSH_CODE_ADDR wrapping, since eval runs the body
// immediately rather than deferring it.
func (ctx *Context) compileEvalBody(src []byte) (uint32, error) {
	c := newCompiler(ctx, src)
	snk := codeSink{ctx.code}
	entry := snk.pos()
	if _, _, err := c.compileBody(snk, func(t tokenTag) bool { return t == tokEOF }); err != nil {
		return 0, err
	}
	if err := snk.emit(byte(opReturn)); err != nil {
		return 0, err
	}
	return entry, nil
}

// --- string/array ---

func nativeCat(ctx *Context) {
	if !ctx.need("cat", 2) {
		return
	}
	b, _ := ctx.stack.Pop()
	a, _ := ctx.stack.Pop()
	switch {
	case a.Tag() == TagString && b.Tag() == TagString:
		ctx.stack.Push(String(a.Str() + b.Str()))
	case a.Tag() == TagArray && b.Tag() == TagArray:
		out := NewArray()
		for _, v := range a.Array().Items() {
			out.Append(v)
		}
		for _, v := range b.Array().Items() {
			out.Append(v)
		}
		ctx.stack.Push(ArrayValue(out))
	default:
		ctx.stack.Push(ErrorValuef("cat: expected two strings or two arrays, got %v and %v", a.Tag(), b.Tag()))
	}
}

// compareValues orders two values: numbers by magnitude, strings
// lexicographically, everything else (including cross-tag comparisons) by
// tag then by Hash, so `sort` always produces a total order without
// panicking on a mixed-type array.
func compareValues(a, b Value) int {
	if a.Tag() == TagNumber && b.Tag() == TagNumber {
		switch {
		case a.Num() < b.Num():
			return -1
		case a.Num() > b.Num():
			return 1
		default:
			return 0
		}
	}
	if a.Tag() == TagString && b.Tag() == TagString {
		return strings.Compare(a.Str(), b.Str())
	}
	if a.Tag() != b.Tag() {
		if a.Tag() < b.Tag() {
			return -1
		}
		return 1
	}
	ah, bh := a.Hash(), b.Hash()
	switch {
	case ah < bh:
		return -1
	case ah > bh:
		return 1
	default:
		return 0
	}
}

func nativeSort(ctx *Context) {
	if !ctx.need("sort", 1) {
		return
	}
	av, _ := ctx.stack.Pop()
	a := av.Array()
	if a == nil {
		ctx.stack.Push(ErrorValuef("sort: expected array, got %v", av.Tag()))
		return
	}
	items := a.Items()
	sort.SliceStable(items, func(i, j int) bool { return compareValues(items[i], items[j]) < 0 })
	ctx.stack.Push(av)
}

func nativeCompare(ctx *Context) {
	if !ctx.need("compare", 2) {
		return
	}
	b, _ := ctx.stack.Pop()
	a, _ := ctx.stack.Pop()
	ctx.stack.Push(Number(float64(compareValues(a, b))))
}

func nativeLen(ctx *Context) {
	if !ctx.need("len", 1) {
		return
	}
	v, _ := ctx.stack.Pop()
	switch v.Tag() {
	case TagArray:
		ctx.stack.Push(Number(float64(v.Array().Len())))
	case TagHashMap:
		ctx.stack.Push(Number(float64(v.HashMap().Len())))
	case TagString:
		ctx.stack.Push(Number(float64(len(v.Str()))))
	default:
		ctx.stack.Push(ErrorValuef("len: expected array, hashmap or string, got %v", v.Tag()))
	}
}

func nativeAget(ctx *Context) {
	if !ctx.need("aget", 2) {
		return
	}
	iv, _ := ctx.stack.Pop()
	av, _ := ctx.stack.Pop()
	a := av.Array()
	if a == nil {
		ctx.stack.Push(ErrorValuef("aget: expected array, got %v", av.Tag()))
		return
	}
	v, ok := a.Get(int(iv.Num()))
	if !ok {
		ctx.stack.Push(ErrorValuef("aget: index %v out of bounds (len %d)", iv.Num(), a.Len()))
		return
	}
	ctx.stack.Push(v)
}

func nativeAset(ctx *Context) {
	if !ctx.need("aset", 3) {
		return
	}
	v, _ := ctx.stack.Pop()
	iv, _ := ctx.stack.Pop()
	av, _ := ctx.stack.Pop()
	a := av.Array()
	if a == nil {
		ctx.stack.Push(ErrorValuef("aset: expected array, got %v", av.Tag()))
		return
	}
	if !a.Set(int(iv.Num()), v) {
		ctx.stack.Push(ErrorValuef("aset: index %v out of bounds (len %d)", iv.Num(), a.Len()))
		return
	}
	ctx.stack.Push(av)
}

func nativeAdel(ctx *Context) {
	if !ctx.need("adel", 2) {
		return
	}
	iv, _ := ctx.stack.Pop()
	av, _ := ctx.stack.Pop()
	a := av.Array()
	if a == nil {
		ctx.stack.Push(ErrorValuef("adel: expected array, got %v", av.Tag()))
		return
	}
	if _, ok := a.Delete(int(iv.Num())); !ok {
		ctx.stack.Push(ErrorValuef("adel: index %v out of bounds (len %d)", iv.Num(), a.Len()))
		return
	}
	ctx.stack.Push(av)
}

func nativeHMGet(ctx *Context) {
	if !ctx.need("hmget", 2) {
		return
	}
	kv, _ := ctx.stack.Pop()
	hv, _ := ctx.stack.Pop()
	h := hv.HashMap()
	if h == nil {
		ctx.stack.Push(ErrorValuef("hmget: expected hashmap, got %v", hv.Tag()))
		return
	}
	v, ok := h.Get(kv)
	if !ok {
		ctx.stack.Push(ErrorValuef("hmget: no such key %v", kv))
		return
	}
	ctx.stack.Push(v)
}

func nativeHMDel(ctx *Context) {
	if !ctx.need("hmdel", 2) {
		return
	}
	kv, _ := ctx.stack.Pop()
	hv, _ := ctx.stack.Pop()
	h := hv.HashMap()
	if h == nil {
		ctx.stack.Push(ErrorValuef("hmdel: expected hashmap, got %v", hv.Tag()))
		return
	}
	if !h.Delete(kv) {
		ctx.stack.Push(ErrorValuef("hmdel: no such key %v", kv))
		return
	}
	ctx.stack.Push(hv)
}

func nativeSlice(ctx *Context) {
	if !ctx.need("slice", 3) {
		return
	}
	jv, _ := ctx.stack.Pop()
	iv, _ := ctx.stack.Pop()
	av, _ := ctx.stack.Pop()
	a := av.Array()
	if a == nil {
		ctx.stack.Push(ErrorValuef("slice: expected array, got %v", av.Tag()))
		return
	}
	out, ok := a.Slice(int(iv.Num()), int(jv.Num()))
	if !ok {
		ctx.stack.Push(ErrorValuef("slice: [%v:%v] out of bounds (len %d)", iv.Num(), jv.Num(), a.Len()))
		return
	}
	ctx.stack.Push(ArrayValue(out))
}

func nativeReverse(ctx *Context) {
	if !ctx.need("reverse", 1) {
		return
	}
	av, _ := ctx.stack.Pop()
	a := av.Array()
	if a == nil {
		ctx.stack.Push(ErrorValuef("reverse: expected array, got %v", av.Tag()))
		return
	}
	a.Reverse()
	ctx.stack.Push(av)
}

// --- ref-cell ---
//
// `@x` pushes a ref-name value; `!`/`?`/`!!`/`!?` key a process of
// lazily-created cells off that name, in a namespace separate from the word
// dictionary (ctx.cells, not ctx.names) so a ref-cell named the same as a
// defined word never collides with it.

func (ctx *Context) cellFor(name Value, create bool) *Cell {
	key := Name(name.Str())
	if v, ok := ctx.cells.Get(key); ok {
		return v.Cell()
	}
	if !create {
		return nil
	}
	c := NewCell()
	_ = ctx.cells.Put(key, RefValueOf(c))
	return c
}

func nativeGet(ctx *Context) {
	if !ctx.need("?", 1) {
		return
	}
	ref, _ := ctx.stack.Pop()
	if ref.Tag() != TagRefName {
		ctx.stack.Push(ErrorValuef("?: expected ref-name, got %v", ref.Tag()))
		return
	}
	c := ctx.cellFor(ref, false)
	if c == nil {
		ctx.stack.Push(ErrorValuef("?: %s is unset", ref))
		return
	}
	ctx.stack.Push(c.Value)
}

func nativeSet(ctx *Context) {
	if !ctx.need("!", 2) {
		return
	}
	v, _ := ctx.stack.Pop()
	ref, _ := ctx.stack.Pop()
	if ref.Tag() != TagRefName {
		ctx.stack.Push(ErrorValuef("!: expected ref-name, got %v", ref.Tag()))
		return
	}
	ctx.cellFor(ref, true).Value = v
}

func nativeUpdate(ctx *Context) {
	if !ctx.need("!!", 2) {
		return
	}
	block, _ := ctx.stack.Pop()
	ref, _ := ctx.stack.Pop()
	if ref.Tag() != TagRefName {
		ctx.stack.Push(ErrorValuef("!!: expected ref-name, got %v", ref.Tag()))
		return
	}
	if block.Tag() != TagCodeAddr {
		ctx.stack.Push(ErrorValuef("!!: expected a block, got %v", block.Tag()))
		return
	}
	c := ctx.cellFor(ref, true)
	ctx.stack.Push(c.Value)
	ctx.invokeBlock(block.Addr())
	result, _ := ctx.stack.Pop()
	c.Value = result
}

// nativeExchange ("!?") sets a cell to a new value and pushes what it held
// before, a combination `!`/`?` don't offer on their own; see DESIGN.md.
func nativeExchange(ctx *Context) {
	if !ctx.need("!?", 2) {
		return
	}
	v, _ := ctx.stack.Pop()
	ref, _ := ctx.stack.Pop()
	if ref.Tag() != TagRefName {
		ctx.stack.Push(ErrorValuef("!?: expected ref-name, got %v", ref.Tag()))
		return
	}
	c := ctx.cellFor(ref, true)
	old := c.Value
	c.Value = v
	ctx.stack.Push(old)
}

// --- control (native, not compiler) ---

func nativeCond(ctx *Context) {
	if !ctx.need("cond", 2) {
		return
	}
	block, _ := ctx.stack.Pop()
	test, _ := ctx.stack.Pop()
	if block.Tag() != TagCodeAddr {
		ctx.stack.Push(ErrorValuef("cond: expected a block, got %v", block.Tag()))
		return
	}
	if !test.IsFalsy() {
		ctx.invokeBlock(block.Addr())
	}
}

func nativeWhile(ctx *Context) {
	if !ctx.need("while", 2) {
		return
	}
	body, _ := ctx.stack.Pop()
	test, _ := ctx.stack.Pop()
	if test.Tag() != TagCodeAddr || body.Tag() != TagCodeAddr {
		ctx.stack.Push(ErrorValuef("while: expected two blocks, got %v and %v", test.Tag(), body.Tag()))
		return
	}
	for {
		ctx.invokeBlock(test.Addr())
		cond, ok := ctx.stack.Pop()
		if !ok || cond.IsFalsy() {
			return
		}
		ctx.invokeBlock(body.Addr())
	}
}

func nativeTimes(ctx *Context) {
	if !ctx.need("times", 2) {
		return
	}
	body, _ := ctx.stack.Pop()
	nv, _ := ctx.stack.Pop()
	if body.Tag() != TagCodeAddr || nv.Tag() != TagNumber {
		ctx.stack.Push(ErrorValuef("times: expected a count and a block, got %v and %v", nv.Tag(), body.Tag()))
		return
	}
	for i := 0; i < int(nv.Num()); i++ {
		ctx.invokeBlock(body.Addr())
	}
}

func nativeEach(ctx *Context) {
	if !ctx.need("each", 2) {
		return
	}
	body, _ := ctx.stack.Pop()
	av, _ := ctx.stack.Pop()
	a := av.Array()
	if a == nil || body.Tag() != TagCodeAddr {
		ctx.stack.Push(ErrorValuef("each: expected an array and a block, got %v and %v", av.Tag(), body.Tag()))
		return
	}
	out := NewArray()
	for _, v := range a.Items() {
		ctx.stack.Push(v)
		ctx.invokeBlock(body.Addr())
		result, _ := ctx.stack.Pop()
		out.Append(result)
	}
	ctx.stack.Push(ArrayValue(out))
}

func nativeFold(ctx *Context) {
	if !ctx.need("fold", 3) {
		return
	}
	body, _ := ctx.stack.Pop()
	acc, _ := ctx.stack.Pop()
	av, _ := ctx.stack.Pop()
	a := av.Array()
	if a == nil || body.Tag() != TagCodeAddr {
		ctx.stack.Push(ErrorValuef("fold: expected an array and a block, got %v and %v", av.Tag(), body.Tag()))
		return
	}
	for _, v := range a.Items() {
		ctx.stack.Push(acc)
		ctx.stack.Push(v)
		ctx.invokeBlock(body.Addr())
		acc, _ = ctx.stack.Pop()
	}
	ctx.stack.Push(acc)
}

// nativeFoldi is fold with the element index pushed ahead of the
// accumulator and element, for blocks that need to know their position.
func nativeFoldi(ctx *Context) {
	if !ctx.need("foldi", 3) {
		return
	}
	body, _ := ctx.stack.Pop()
	acc, _ := ctx.stack.Pop()
	av, _ := ctx.stack.Pop()
	a := av.Array()
	if a == nil || body.Tag() != TagCodeAddr {
		ctx.stack.Push(ErrorValuef("foldi: expected an array and a block, got %v and %v", av.Tag(), body.Tag()))
		return
	}
	for i, v := range a.Items() {
		ctx.stack.Push(Number(float64(i)))
		ctx.stack.Push(acc)
		ctx.stack.Push(v)
		ctx.invokeBlock(body.Addr())
		acc, _ = ctx.stack.Pop()
	}
	ctx.stack.Push(acc)
}

func nativeFilter(ctx *Context) {
	if !ctx.need("filter", 2) {
		return
	}
	body, _ := ctx.stack.Pop()
	av, _ := ctx.stack.Pop()
	a := av.Array()
	if a == nil || body.Tag() != TagCodeAddr {
		ctx.stack.Push(ErrorValuef("filter: expected an array and a block, got %v and %v", av.Tag(), body.Tag()))
		return
	}
	out := NewArray()
	for _, v := range a.Items() {
		ctx.stack.Push(v)
		ctx.invokeBlock(body.Addr())
		keep, _ := ctx.stack.Pop()
		if !keep.IsFalsy() {
			out.Append(v)
		}
	}
	ctx.stack.Push(ArrayValue(out))
}

// --- copying ---

func nativeCopy(ctx *Context) {
	if !ctx.need("copy", 1) {
		return
	}
	v, _ := ctx.stack.Pop()
	ctx.stack.Push(v.Copy())
}
