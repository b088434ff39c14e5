package main

import (
	"fmt"
	"io"
	"sort"
)

// ctxDumper prints a multi-section snapshot of a Context: stack contents,
// the word dictionary, and bytecode size, for the CLI's -dump flag. It has
// no flat cell-addressed memory to walk — Kokoki's dictionary, stacks and
// code live in their own typed structures rather than one shared int array
// — so each section is produced straight from those structures instead of a
// byte-by-byte memory scan.
type ctxDumper struct {
	ctx *Context
	out io.Writer
}

func (d ctxDumper) dump() {
	fmt.Fprintf(d.out, "# Context Dump\n")
	fmt.Fprintf(d.out, "  code size: %d bytes\n", d.ctx.code.Size())
	fmt.Fprintf(d.out, "  pc: %d\n", d.ctx.pc)
	d.dumpStack()
	d.dumpReturnStack()
	d.dumpNames()
	d.dumpCells()
}

func (d ctxDumper) dumpStack() {
	fmt.Fprintf(d.out, "  stack(%d):", d.ctx.stack.Len())
	for i := d.ctx.stack.Len() - 1; i >= 0; i-- {
		v, _ := d.ctx.stack.Peek(i)
		fmt.Fprintf(d.out, " %v", v)
	}
	fmt.Fprintln(d.out)
}

func (d ctxDumper) dumpReturnStack() {
	fmt.Fprintf(d.out, "  ret(%d):", d.ctx.ret.Len())
	for i := d.ctx.ret.Len() - 1; i >= 0; i-- {
		a, _ := d.ctx.ret.Peek(i)
		fmt.Fprintf(d.out, " @%d", a)
	}
	fmt.Fprintln(d.out)
}

func (d ctxDumper) dumpNames() {
	names := collectTableEntries(d.ctx.names)
	sort.Slice(names, func(i, j int) bool { return names[i].key < names[j].key })
	fmt.Fprintf(d.out, "  dict(%d):\n", len(names))
	for _, e := range names {
		fmt.Fprintf(d.out, "    %s -> @%d\n", e.key, uint32(e.value.Addr()))
	}
}

func (d ctxDumper) dumpCells() {
	cells := collectTableEntries(d.ctx.cells)
	sort.Slice(cells, func(i, j int) bool { return cells[i].key < cells[j].key })
	fmt.Fprintf(d.out, "  cells(%d):\n", len(cells))
	for _, e := range cells {
		fmt.Fprintf(d.out, "    @%s -> %v\n", e.key, e.value.Cell().Value)
	}
}

type tableEntry struct {
	key   string
	value Value
}

func collectTableEntries(t *Table) []tableEntry {
	var out []tableEntry
	for _, s := range t.slots {
		if s.used {
			out = append(out, tableEntry{key: s.key.String(), value: s.value})
		}
	}
	return out
}
