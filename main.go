/* Command kokoki runs the Kokoki concatenative language: a small
Forth-like stack language with a single-pass compiler and a bytecode
VM, sharing one growable code buffer and word dictionary across any
number of top-level evaluations.

With no file argument it reads a REPL from stdin, prompting with the
current stack depth after each line; with one file argument it
evaluates the file's contents once and exits.
*/
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kokoki-lang/kokoki/internal/logio"
)

func main() {
	var (
		memLimit uint
		timeout  time.Duration
		trace    bool
		dump     bool
	)
	flag.UintVar(&memLimit, "mem-limit", 0, "cap the bytecode buffer at this many bytes (0: unlimited)")
	flag.DurationVar(&timeout, "timeout", 0, "abandon evaluation after this long (0: no limit)")
	flag.BoolVar(&trace, "trace", false, "log each native/opcode dispatch to stderr")
	flag.BoolVar(&dump, "dump", false, "print a stack/dictionary dump to stderr on exit")
	flag.Parse()

	log := logio.Logger{}
	log.SetOutput(os.Stderr)
	defer func() { os.Exit(log.ExitCode()) }()

	var opts []Option
	if trace {
		opts = append(opts, WithLogf(log.Leveledf("TRACE")))
	}
	if memLimit != 0 {
		opts = append(opts, WithMemLimit(uint32(memLimit)))
	}
	opts = append(opts, WithOutput(os.Stdout))

	ctx := New(opts...)
	defer ctx.Close()

	if dump {
		defer ctxDumper{ctx: ctx, out: os.Stderr}.dump()
	}

	if args := flag.Args(); len(args) > 0 {
		runFile(&log, ctx, args[0], timeout)
		return
	}
	runREPL(&log, ctx, timeout)
}

// runFile evaluates one file's contents as a single Eval call, enforcing a
// timeout (if non-zero) at the CLI boundary: Kokoki's Eval has no in-engine
// cancellation primitive, so a timeout here can only abandon waiting on the
// result, not interrupt a runaway VM loop mid-flight.
func runFile(log *logio.Logger, ctx *Context, path string, timeout time.Duration) {
	src, err := os.ReadFile(path)
	if err != nil {
		log.Errorf("%v", err)
		return
	}
	if err := evalWithTimeout(ctx, src, timeout); err != nil {
		log.Errorf("%v", err)
	}
}

// runREPL reads newline-delimited input from stdin, evaluating one line at
// a time and printing the operand stack depth as a prompt.
func runREPL(log *logio.Logger, ctx *Context, timeout time.Duration) {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprintf(os.Stderr, "(%d) ", ctx.stack.Len())
		if !sc.Scan() {
			break
		}
		line := sc.Text()
		if err := evalWithTimeout(ctx, []byte(line+"\n"), timeout); err != nil {
			log.Errorf("%v", err)
		}
	}
	if err := sc.Err(); err != nil {
		log.Errorf("%v", err)
	}
}

// evalWithTimeout runs ctx.Eval(src) on its own goroutine via an errgroup,
// so a non-zero timeout can return control to the caller even though the
// underlying VM loop keeps running to completion in the background (see
// runFile's comment on why this can abandon, not interrupt).
func evalWithTimeout(ctx *Context, src []byte, timeout time.Duration) error {
	if timeout <= 0 {
		return ctx.Eval(src)
	}

	var g errgroup.Group
	done := make(chan error, 1)
	g.Go(func() error {
		done <- ctx.Eval(src)
		return nil
	})

	select {
	case err := <-done:
		_ = g.Wait()
		return err
	case <-time.After(timeout):
		return fmt.Errorf("kokoki: evaluation exceeded timeout of %s", timeout)
	}
}
