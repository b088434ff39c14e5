package main

import (
	"encoding/binary"
	"math"

	"github.com/kokoki-lang/kokoki/internal/codemem"
)

// emitSink is the destination for compiled bytes. Its one implementation,
// codeSink, writes straight into the context's shared bytecode buffer; the
// array/hashmap literal versus block choice is made by reader lookahead
// (isLiteralAggregate) before anything is written.
type emitSink interface {
	emit(bs ...byte) error
	pos() uint32
}

// codeSink appends directly to the context's bytecode buffer.
type codeSink struct{ code *codemem.Buffer }

func (s codeSink) emit(bs ...byte) error { _, err := s.code.Append(bs...); return err }
func (s codeSink) pos() uint32           { return s.code.Size() }

// compiler drives the reader one token at a time and emits bytecode onto a
// Context in a single pass, re-entrant across calls so the host can feed it
// source incrementally.
type compiler struct {
	ctx     *Context
	rd      *reader
	pending *token
}

func newCompiler(ctx *Context, src []byte) *compiler {
	return &compiler{ctx: ctx, rd: newReader(src)}
}

func (c *compiler) nextTok() token {
	if c.pending != nil {
		t := *c.pending
		c.pending = nil
		return t
	}
	return c.rd.next()
}

func (c *compiler) pushBack(t token) { c.pending = &t }

// compileTopLevel compiles src onto the context's bytecode buffer, rewinding
// over a prior trailing END if one exists so the VM can resume seamlessly
// on a shared, ever-growing bytecode buffer across calls.
func (c *compiler) compileTopLevel() error {
	code := c.ctx.code
	if size := code.Size(); size > 0 {
		code.Truncate(size - 1) // rewind over the previous END
	}
	snk := codeSink{code}
	_, _, err := c.compileBody(snk, func(t tokenTag) bool { return t == tokEOF })
	if err != nil {
		return err
	}
	return snk.emit(byte(opEnd))
}

// compileBody compiles tokens into snk until stop reports true for the
// lookahead token's tag, returning that tag and whether any token was
// compiled before it.
func (c *compiler) compileBody(snk emitSink, stop func(tokenTag) bool) (tokenTag, bool, error) {
	wrote := false
	for {
		tok := c.nextTok()
		if stop(tok.tag) {
			return tok.tag, wrote, nil
		}
		if err := c.compileToken(snk, tok); err != nil {
			return tok.tag, wrote, err
		}
		wrote = true
	}
}

func (c *compiler) compileToken(snk emitSink, tok token) error {
	switch tok.tag {
	case tokNumber:
		return c.compileNumberOrPeephole(snk, tok)
	case tokString:
		return emitLenPrefixed(snk, opPushString, opPushStringLen, tok.text)
	case tokRefName:
		return emitRefName(snk, tok)
	case tokName:
		return c.compileName(snk, tok)
	case tokArrStart:
		return c.compileBracket(snk, tokArrStart)
	case tokHashStart:
		return c.compileBracket(snk, tokHashStart)
	case tokDefStart:
		return c.compileDefinition(snk)
	case tokError:
		return &ParseError{Line: tok.line, Col: tok.col, Msg: tok.text}
	default:
		return &CompileError{Line: tok.line, Col: tok.col, Msg: "unexpected token " + tok.tag.String()}
	}
}

// compileNumberOrPeephole implements the "N pick"/"N move" fast path that
// folds a literal depth directly into a single opcode.
func (c *compiler) compileNumberOrPeephole(snk emitSink, tok token) error {
	if n := int(tok.num); float64(n) == tok.num {
		next := c.nextTok()
		if next.tag == tokName && (next.text == "pick" || next.text == "move") {
			if op, ok := pickMoveOpcode(next.text == "pick", n); ok {
				return snk.emit(byte(op))
			}
		}
		c.pushBack(next)
	}
	return emitNumber(snk, tok.num)
}

func (c *compiler) compileName(snk emitSink, tok token) error {
	switch tok.text {
	case "nil":
		return snk.emit(byte(opPushNil))
	case "true":
		return snk.emit(byte(opPushTrue))
	case "false":
		return snk.emit(byte(opPushFalse))
	case "if":
		return c.compileIf(snk)
	}

	if target, ok := c.ctx.names.Get(Name(tok.text)); ok {
		addr := uint32(target.Addr())
		return emitAddr(snk, opCall, addr)
	}
	if idx, entry, ok := c.ctx.natives.lookup(tok.text); ok {
		if entry.hasOpcode {
			return snk.emit(byte(entry.opcode))
		}
		return emitInvoke(snk, idx)
	}
	return &CompileError{Line: tok.line, Col: tok.col, Msg: "unknown name " + tok.text}
}

// compileIf implements both `if ... then` and `if ... else ... then`.
func (c *compiler) compileIf(snk emitSink) error {
	falseJumpAt := reserveJump(snk)
	stopText, _, err := c.compileNamedBody(snk, "else", "then")
	if err != nil {
		return err
	}
	if stopText == "then" {
		return patchJump(c.ctx.code, falseJumpAt, opJmpFalse, snk.pos())
	}

	// else branch
	trueJumpAt := reserveJump(snk)
	if err := patchJump(c.ctx.code, falseJumpAt, opJmpFalse, snk.pos()); err != nil {
		return err
	}
	if _, _, err := c.compileNamedBody(snk, "then"); err != nil {
		return err
	}
	return patchJump(c.ctx.code, trueJumpAt, opJmp, snk.pos())
}

// compileNamedBody compiles tokens until a bare name token matching one of
// stopNames is seen, returning which one stopped it.
func (c *compiler) compileNamedBody(snk emitSink, stopNames ...string) (string, bool, error) {
	wrote := false
	for {
		tok := c.nextTok()
		if tok.tag == tokName {
			for _, s := range stopNames {
				if tok.text == s {
					return s, wrote, nil
				}
			}
		}
		if tok.tag == tokEOF {
			return "", wrote, &CompileError{Line: tok.line, Col: tok.col, Msg: "unexpected end of input inside if"}
		}
		if err := c.compileToken(snk, tok); err != nil {
			return "", wrote, err
		}
		wrote = true
	}
}

// compileDefinition implements `: name body ;`.
func (c *compiler) compileDefinition(snk emitSink) error {
	skipAt := reserveJump(snk)
	entry := snk.pos()

	nameTok := c.nextTok()
	if nameTok.tag != tokName {
		return &CompileError{Line: nameTok.line, Col: nameTok.col, Msg: "expected a name after ':'"}
	}

	stop, _, err := c.compileBody(snk, func(t tokenTag) bool { return t == tokDefEnd || t == tokEOF })
	if err != nil {
		return err
	}
	if stop == tokEOF {
		return &CompileError{Line: nameTok.line, Col: nameTok.col, Msg: "unterminated definition of " + nameTok.text}
	}
	if err := snk.emit(byte(opReturn)); err != nil {
		return err
	}
	if err := patchJump(c.ctx.code, skipAt, opJmp, snk.pos()); err != nil {
		return err
	}
	return c.ctx.names.Put(Name(nameTok.text), CodeAddr(entry))
}

// compileBracket compiles an array or hashmap literal. It decides, via a
// one-time lookahead (isLiteralAggregate), whether every top-level token
// inside the brackets is itself a value-producing literal (number, string,
// ref-name, a nested bracket, or one of true/false/nil): if so the brackets
// are a literal data aggregate (PUSH_ARRAY/PUSH_HASHMAP plus one item push
// followed by APUSH/HMPUT per item); the moment a bare
// operator or word token appears at the top level, the whole bracketed body
// instead compiles as a single anonymous block (an unnamed definition) whose
// code-address is pushed, so that `[2 *]`-style operands to
// `each`/`filter`/`fold`/`cond`/`while`/`times`/`!!` defer their expression
// until the native supplies the implicit argument(s). `[1 2 3]` (three
// literal items, no operators) is therefore an array; `[2 *]` (a literal
// followed by an operator) is a block — see DESIGN.md for why the comma
// alone can't carry this distinction (`[1 2 3]`, with no commas at all,
// still has to build an array for `each` to iterate).
func (c *compiler) compileBracket(snk emitSink, open tokenTag) error {
	isHash := open == tokHashStart
	closeTag := tokArrEnd
	if isHash {
		closeTag = tokHashEnd
	}

	if c.isLiteralAggregate(closeTag) {
		return c.compileAggregateLiteral(snk, closeTag, isHash)
	}
	return c.compileAnonymousBlock(snk, closeTag)
}

// compileAggregateLiteral compiles one item per top-level token (two tokens
// per key/value pair for a hashmap), commas accepted anywhere as an optional
// separator, each followed immediately by APUSH/HMPUT.
func (c *compiler) compileAggregateLiteral(snk emitSink, closeTag tokenTag, isHash bool) error {
	pushOp, joinOp := opPushArray, opAPush
	if isHash {
		pushOp, joinOp = opPushHashMap, opHMPut
	}
	if err := snk.emit(byte(pushOp)); err != nil {
		return err
	}
	for {
		tok := c.nextSignificant(closeTag)
		if tok.tag == closeTag {
			return nil
		}
		if tok.tag == tokEOF {
			return &CompileError{Line: tok.line, Col: tok.col, Msg: "unterminated array/hashmap literal"}
		}
		if err := c.compileToken(snk, tok); err != nil {
			return err
		}
		if isHash {
			vtok := c.nextSignificant(closeTag)
			if vtok.tag == tokEOF || vtok.tag == closeTag {
				return &CompileError{Line: vtok.line, Col: vtok.col, Msg: "hashmap literal missing value for key"}
			}
			if err := c.compileToken(snk, vtok); err != nil {
				return err
			}
		}
		if err := snk.emit(byte(joinOp)); err != nil {
			return err
		}
	}
}

// nextSignificant returns the next non-comma token, since commas are an
// optional structural separator inside an aggregate literal rather than a
// required item terminator.
func (c *compiler) nextSignificant(closeTag tokenTag) token {
	for {
		tok := c.nextTok()
		if tok.tag != tokComma {
			return tok
		}
	}
}

func (c *compiler) compileAnonymousBlock(snk emitSink, closeTag tokenTag) error {
	skipAt := reserveJump(snk)
	entry := snk.pos()
	if _, _, err := c.compileBody(snk, func(t tokenTag) bool { return t == closeTag }); err != nil {
		return err
	}
	if err := snk.emit(byte(opReturn)); err != nil {
		return err
	}
	if err := patchJump(c.ctx.code, skipAt, opJmp, snk.pos()); err != nil {
		return err
	}
	return emitAddr(snk, opPushCodeAddr, entry)
}

// isLiteralAggregate peeks ahead (restoring the reader afterward) to decide
// whether every top-level token inside the brackets is itself a
// value-producing literal (number, string, ref-name, a nested [.../{...}, or
// one of true/false/nil) rather than an operator or word call. An empty
// bracket (nothing before the matching close) counts as a literal — an empty
// array or hashmap.
func (c *compiler) isLiteralAggregate(closeTag tokenTag) bool {
	saved := *c.rd
	savedPending := c.pending
	defer func() { *c.rd = saved; c.pending = savedPending }()

	depth := 0
	for {
		tok := c.nextTok()
		switch tok.tag {
		case tokArrStart, tokHashStart:
			depth++
		case tokArrEnd, tokHashEnd:
			if depth == 0 {
				return true
			}
			depth--
		case tokComma:
			// structural separator; doesn't affect classification
		case tokEOF:
			return true // malformed input; the real compile pass reports the error
		case tokName:
			if depth == 0 {
				switch tok.text {
				case "true", "false", "nil":
				default:
					return false
				}
			}
		}
	}
}

// --- byte-level emission helpers ---

func reserveJump(snk emitSink) uint32 {
	at := snk.pos()
	_ = snk.emit(0, 0, 0, 0) // zero-filled placeholder; failure surfaces on the next real emit via the same underlying buffer limit
	return at
}

func patchJump(code *codemem.Buffer, at uint32, op Opcode, target uint32) error {
	return code.Store(at, byte(op), byte(target>>16), byte(target>>8), byte(target))
}

func emitAddr(snk emitSink, op Opcode, addr uint32) error {
	return snk.emit(byte(op), byte(addr>>16), byte(addr>>8), byte(addr))
}

func emitInvoke(snk emitSink, idx uint16) error {
	return snk.emit(byte(opInvoke), byte(idx>>8), byte(idx))
}

func emitNumber(snk emitSink, n float64) error {
	if i := int64(n); float64(i) == n {
		if i >= -128 && i <= 127 {
			return snk.emit(byte(opPushInt8), byte(int8(i)))
		}
		if i >= -32768 && i <= 32767 {
			v := int16(i)
			return snk.emit(byte(opPushInt16), byte(v), byte(v>>8))
		}
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(n))
	return snk.emit(append([]byte{byte(opPushNumber)}, buf[:]...)...)
}

func emitRefName(snk emitSink, tok token) error {
	if len(tok.text) > 255 {
		return &CompileError{Line: tok.line, Col: tok.col, Msg: "ref-name longer than 255 bytes: " + tok.text}
	}
	return snk.emit(append([]byte{byte(opPushName), byte(len(tok.text))}, tok.text...)...)
}

func emitLenPrefixed(snk emitSink, shortOp, longOp Opcode, s string) error {
	if len(s) <= 255 {
		return snk.emit(append([]byte{byte(shortOp), byte(len(s))}, s...)...)
	}
	n := uint32(len(s))
	return snk.emit(append([]byte{byte(longOp), byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}, s...)...)
}
