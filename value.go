package main

import (
	"fmt"
	"math"
)

// Tag names the active variant of a Value. A Value's Tag determines which
// payload field is valid; transitioning tags requires re-initializing the
// payload rather than reinterpreting it in place.
type Tag uint8

const (
	TagNil Tag = iota
	TagTrue
	TagFalse
	TagNumber
	TagString
	TagName
	TagRefName
	TagArray
	TagHashMap
	TagNative
	TagRefValue
	TagCodeAddr
	TagError
	TagEOF
)

func (t Tag) String() string {
	switch t {
	case TagNil:
		return "nil"
	case TagTrue:
		return "true"
	case TagFalse:
		return "false"
	case TagNumber:
		return "number"
	case TagString:
		return "string"
	case TagName:
		return "name"
	case TagRefName:
		return "ref-name"
	case TagArray:
		return "array"
	case TagHashMap:
		return "hashmap"
	case TagNative:
		return "native"
	case TagRefValue:
		return "ref-value"
	case TagCodeAddr:
		return "code-address"
	case TagError:
		return "error"
	case TagEOF:
		return "eof"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Value is a tagged sum of every runtime datum Kokoki code can hold or pass
// through the operand stack. Exactly one payload is meaningful at a time,
// selected by Tag. Array, HashMap and RefValue payloads are owning handles
// shared by reference: copying a Value copies the handle, not the pointee,
// so mutation through one alias is visible through all of them.
type Value struct {
	tag    Tag
	num    float64
	str    string
	addr   uint32
	native int
	box    interface{} // *Array, *HashMap, *Cell
}

// Nil, True and False are the three tag-only singletons.
func Nil() Value   { return Value{tag: TagNil} }
func True() Value  { return Value{tag: TagTrue} }
func False() Value { return Value{tag: TagFalse} }

// EOFValue is the end-of-input sentinel pushed by the `read` native once its
// input is exhausted.
func EOFValue() Value { return Value{tag: TagEOF} }

// Bool lifts a host bool into the True/False singletons.
func Bool(b bool) Value {
	if b {
		return True()
	}
	return False()
}

// Number wraps a 64-bit float.
func Number(n float64) Value { return Value{tag: TagNumber, num: n} }

// String wraps an immutable byte sequence used as string data.
func String(s string) Value { return Value{tag: TagString, str: s} }

// Name wraps an identifier used for dictionary/native lookup.
func Name(s string) Value { return Value{tag: TagName, str: s} }

// RefName wraps a `@foo` cell reference token.
func RefName(s string) Value { return Value{tag: TagRefName, str: s} }

// CodeAddr wraps a bytecode offset, as produced by a definition.
func CodeAddr(addr uint32) Value { return Value{tag: TagCodeAddr, addr: addr} }

// Native wraps an index into the native operation table.
func Native(idx int) Value { return Value{tag: TagNative, native: idx} }

// ErrorValue wraps a runtime or parse failure message.
func ErrorValue(msg string) Value { return Value{tag: TagError, str: msg} }

// ErrorValuef is ErrorValue with fmt.Sprintf formatting.
func ErrorValuef(format string, args ...interface{}) Value {
	return ErrorValue(fmt.Sprintf(format, args...))
}

// ArrayValue wraps a handle to a growable sequence of values.
func ArrayValue(a *Array) Value { return Value{tag: TagArray, box: a} }

// HashMapValue wraps a handle to a name table used as a runtime dictionary.
func HashMapValue(h *HashMap) Value { return Value{tag: TagHashMap, box: h} }

// RefValueOf wraps a handle to a single mutable cell.
func RefValueOf(c *Cell) Value { return Value{tag: TagRefValue, box: c} }

// Tag returns the value's active variant.
func (v Value) Tag() Tag { return v.tag }

// IsFalsy reports whether v is one of the two falsy tags: nil or false. All
// other values, including the number zero, are truthy.
func (v Value) IsFalsy() bool { return v.tag == TagNil || v.tag == TagFalse }

// Num returns the numeric payload; only meaningful when Tag() == TagNumber.
func (v Value) Num() float64 { return v.num }

// Str returns the string payload; only meaningful for TagString, TagName,
// TagRefName and TagError.
func (v Value) Str() string { return v.str }

// Addr returns the code-address payload; only meaningful for TagCodeAddr.
func (v Value) Addr() uint32 { return v.addr }

// NativeIndex returns the native-table index payload; only meaningful for
// TagNative.
func (v Value) NativeIndex() int { return v.native }

// Array returns the array handle, or nil if v is not a TagArray.
func (v Value) Array() *Array {
	a, _ := v.box.(*Array)
	return a
}

// HashMap returns the hashmap handle, or nil if v is not a TagHashMap.
func (v Value) HashMap() *HashMap {
	h, _ := v.box.(*HashMap)
	return h
}

// Cell returns the ref-cell handle, or nil if v is not a TagRefValue.
func (v Value) Cell() *Cell {
	c, _ := v.box.(*Cell)
	return c
}

// Equal implements the EQ opcode's structural equality: same tag, and either
// identical primitive payloads, byte-identical strings, or element-wise
// recursive equality for arrays. Hashmaps and ref-cells compare by object
// identity, since they're mutable shared containers rather than values.
func (a Value) Equal(b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagNil, TagTrue, TagFalse, TagEOF:
		return true
	case TagNumber:
		return a.num == b.num
	case TagString, TagName, TagRefName, TagError:
		return a.str == b.str
	case TagCodeAddr:
		return a.addr == b.addr
	case TagNative:
		return a.native == b.native
	case TagArray:
		aa, ab := a.Array(), b.Array()
		if aa == ab {
			return true
		}
		if aa == nil || ab == nil || aa.Len() != ab.Len() {
			return false
		}
		for i := 0; i < aa.Len(); i++ {
			ai, _ := aa.Get(i)
			bi, _ := ab.Get(i)
			if !ai.Equal(bi) {
				return false
			}
		}
		return true
	case TagHashMap:
		return a.HashMap() == b.HashMap()
	case TagRefValue:
		return a.Cell() == b.Cell()
	default:
		return false
	}
}

// hashable reports whether v's tag has a meaningful hash. error and eof are
// excluded: they're syntactic sentinels, never legitimately used as a
// dictionary or hashmap key, so giving them a hash at all would only invite
// accidental collisions between unrelated error messages.
func (v Value) hashable() bool {
	switch v.tag {
	case TagError, TagEOF:
		return false
	default:
		return true
	}
}

// Hash mixes the value's tag and primitive bytes FNV-1a-style (xor, then
// multiply by the 64-bit FNV prime); it is not a MurmurOAAT mix. Containers
// other than arrays hash by object identity (their pointer value): hashing a
// hashmap's full contents on every lookup would be unreasonably expensive,
// so Kokoki disallows using a non-hashable tag (error/eof) as a key and
// hashes the rest, including hashmaps, by identity so at least array- and
// scalar-keyed dictionaries behave sanely.
func (v Value) Hash() uint64 {
	h := uint64(14695981039346656037) // offset basis, reused as a mix seed
	mix := func(x uint64) {
		h ^= x
		h *= 1099511628211
	}
	mix(uint64(v.tag))
	switch v.tag {
	case TagNumber:
		mix(math.Float64bits(v.num))
	case TagString, TagName, TagRefName, TagError:
		for i := 0; i < len(v.str); i++ {
			mix(uint64(v.str[i]))
		}
	case TagCodeAddr:
		mix(uint64(v.addr))
	case TagNative:
		mix(uint64(v.native))
	case TagArray:
		if a := v.Array(); a != nil {
			for i := 0; i < a.Len(); i++ {
				e, _ := a.Get(i)
				mix(e.Hash())
			}
		}
	case TagHashMap, TagRefValue:
		mix(identityHash(v.box))
	}
	return h
}

// Copy deep-copies v: arrays are cloned element-wise (each element Copy'd in
// turn) so that eq(v, copy(v)) holds without aliasing the original array's
// backing storage. Ref-cells and hashmaps are shared-by-reference types in
// the language itself, so Copy intentionally returns the same handle for
// them rather than cloning their contents.
func (v Value) Copy() Value {
	if v.tag == TagArray {
		if a := v.Array(); a != nil {
			return ArrayValue(a.Clone())
		}
	}
	return v
}

func (v Value) String() string {
	switch v.tag {
	case TagNil:
		return "nil"
	case TagTrue:
		return "true"
	case TagFalse:
		return "false"
	case TagNumber:
		return formatNumber(v.num)
	case TagString:
		return fmt.Sprintf("%q", v.str)
	case TagName:
		return v.str
	case TagRefName:
		return "@" + v.str
	case TagArray:
		return v.Array().String()
	case TagHashMap:
		return fmt.Sprintf("<hashmap %p>", v.HashMap())
	case TagNative:
		return fmt.Sprintf("<native %d>", v.native)
	case TagRefValue:
		return fmt.Sprintf("<ref %p>", v.Cell())
	case TagCodeAddr:
		return fmt.Sprintf("<code @%d>", v.addr)
	case TagError:
		return fmt.Sprintf("<error %s>", v.str)
	case TagEOF:
		return "<eof>"
	default:
		return fmt.Sprintf("<invalid %v>", v.tag)
	}
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && !math.IsInf(n, 0) && math.Abs(n) < 1e15 {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

// Cell is a single mutable memory box addressed via a ref-name.
type Cell struct {
	Value Value
}

// NewCell creates a cell, initially holding nil.
func NewCell() *Cell { return &Cell{Value: Nil()} }
