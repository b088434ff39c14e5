package main

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/kokoki-lang/kokoki/internal/codemem"
	"github.com/kokoki-lang/kokoki/internal/flushio"
	"github.com/kokoki-lang/kokoki/internal/panicerr"
	"github.com/kokoki-lang/kokoki/internal/srcio"
)

/// Context is the embeddable Kokoki engine: a compiler and VM sharing one
// growable bytecode buffer, one name dictionary and one pair of stacks
// across any number of Eval calls, so that state persists from one call to
// the next the way a long-lived interpreter session would.
type Context struct {
	code    *codemem.Buffer
	names   *Table
	natives *nativeTable
	cells   *Table // ref-name -> RefValue(*Cell), the `@x ! ? !! !?` namespace

	stack Seq[Value]
	ret   Seq[uint32]
	pc    uint32

	in      srcio.Queue // backs the `read`/`use` natives
	out     flushio.WriteFlusher
	closers []io.Closer
	logfn   func(mess string, args ...interface{})
}

// New creates a ready-to-use Context, applying opts in order.
func New(opts ...Option) *Context {
	ctx := &Context{
		code:    &codemem.Buffer{},
		names:   NewTable(),
		cells:   NewTable(),
		natives: newNativeTable(),
	}
	defaultOptions.apply(ctx)
	Options(opts...).apply(ctx)
	return ctx
}

// Close flushes buffered output, then releases any resources opened by
// options such as WithOutput, in reverse registration order.
func (ctx *Context) Close() (err error) {
	if ctx.out != nil {
		err = ctx.out.Flush()
	}
	for i := len(ctx.closers) - 1; i >= 0; i-- {
		if cerr := ctx.closers[i].Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Eval compiles src onto the context's shared bytecode buffer and runs it to
// completion; names and compiled definitions from a prior Eval remain
// visible and callable. A parse or compile error is returned and none of src
// runs. Ordinary runtime errors (a stack underflow, a wrong operand type) do
// not end the Eval: they are pushed onto the stack as error values. Only a
// halt (a failed bytecode load, an output write or flush failure, a return
// stack underflow) unwinds as a panicerr-recovered haltError, and Eval
// returns the error it wraps.
func (ctx *Context) Eval(src []byte) error {
	err := panicerr.Recover("kokoki", func() error {
		return ctx.eval(src)
	})
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var he haltError
	if errors.As(err, &he) {
		if he.error == nil {
			return nil
		}
		return he.error
	}
	return err
}

func (ctx *Context) eval(src []byte) error {
	start := ctx.code.Size()
	c := newCompiler(ctx, src)
	if err := c.compileTopLevel(); err != nil {
		ctx.code.Truncate(start)
		if start > 0 {
			_ = ctx.code.Store(start-1, byte(opEnd)) // put back the END compileTopLevel wrote over
		}
		return err
	}
	if start > 0 {
		start-- // the new code begins at the old END, which compileTopLevel overwrote
	}
	ctx.pc = start
	defer func() {
		if ferr := ctx.out.Flush(); ferr != nil {
			ctx.halt(ferr)
		}
	}()
	return ctx.run()
}

// RegisterNative adds a host-provided native. A direct opcode takes
// priority over fn at compile time (the compiler emits the bare opcode
// instead of an INVOKE), so opcode is variadic only to let callers omit it
// entirely.
func (ctx *Context) RegisterNative(name string, fn NativeFunc, opcode ...Opcode) error {
	entry := nativeEntry{name: name, fn: fn}
	if len(opcode) > 0 {
		entry.hasOpcode = true
		entry.opcode = opcode[0]
	}
	return ctx.natives.register(entry)
}

func (ctx *Context) writeString(s string) {
	if _, err := io.WriteString(ctx.out, s); err != nil {
		ctx.halt(err)
	}
}

func (ctx *Context) logf(mess string, args ...interface{}) {
	if ctx.logfn == nil {
		return
	}
	if len(args) > 0 {
		mess = fmt.Sprintf(mess, args...)
	}
	ctx.logfn(mess)
}

// --- functional options for constructing a Context ---

// Option configures a Context at construction time.
type Option interface{ apply(ctx *Context) }

var defaultOptions = Options(
	withOutput(ioutil.Discard),
)

// Options collapses any number of Option values into one.
func Options(opts ...Option) Option {
	var res options
	for _, opt := range opts {
		switch impl := opt.(type) {
		case nil, noption:
		case options:
			res = append(res, impl...)
		default:
			res = append(res, opt)
		}
	}
	switch len(res) {
	case 0:
		return noption{}
	case 1:
		return res[0]
	default:
		return res
	}
}

type noption struct{}

func (noption) apply(*Context) {}

type options []Option

func (opts options) apply(ctx *Context) {
	for _, opt := range opts {
		if opt != nil {
			opt.apply(ctx)
		}
	}
}

// WithOutput directs PRINT and the `nl`/`dump` natives at w.
func WithOutput(w io.Writer) Option { return withOutput(w) }

// WithInput queues r, named, as a source for the `read` native, behind
// anything already queued.
func WithInput(r io.Reader, name string) Option { return inputOption{r, name} }

type inputOption struct {
	io.Reader
	name string
}

func (o inputOption) apply(ctx *Context) {
	ctx.in.Push(o.Reader, o.name)
	if cl, ok := o.Reader.(io.Closer); ok {
		ctx.closers = append(ctx.closers, cl)
	}
}

// WithMemLimit caps the bytecode buffer at limit bytes.
func WithMemLimit(limit uint32) Option { return memLimitOption(limit) }

// WithLogf installs a trace/log callback, used by the CLI's -trace flag.
func WithLogf(logfn func(mess string, args ...interface{})) Option { return withLogfn(logfn) }

type outputOption struct{ io.Writer }

func withOutput(w io.Writer) outputOption { return outputOption{w} }

func (o outputOption) apply(ctx *Context) {
	if ctx.out != nil {
		ctx.out.Flush()
	}
	ctx.out = flushio.NewWriteFlusher(o.Writer)
	if cl, ok := o.Writer.(io.Closer); ok {
		ctx.closers = append(ctx.closers, cl)
	}
}

type memLimitOption uint32

func (lim memLimitOption) apply(ctx *Context) { ctx.code.Limit = uint32(lim) }

type withLogfn func(mess string, args ...interface{})

func (logfn withLogfn) apply(ctx *Context) { ctx.logfn = logfn }
