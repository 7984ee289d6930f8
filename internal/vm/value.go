// Package vm implements the value model, heap objects, and the
// register-based dispatch loop that executes compiled bytecode.
package vm

import (
	"fmt"
	"math"
)

// Kind is the tag half of a Value's discriminated union.
type Kind byte

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindArray
	KindString
	KindClosure
	KindNative
	// KindIterator is not one of the language's first-class value tags —
	// no literal or binding can produce one — but ITER_NEW/ITER_NEXT still
	// need somewhere to put it, and a VM register only ever holds a Value.
	KindIterator
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBool:
		return "boolean"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindClosure:
		return "closure"
	case KindNative:
		return "native"
	case KindIterator:
		return "iterator"
	default:
		return "unknown"
	}
}

// heapObject is implemented by every reference-counted heap kind: Array,
// String, and Closure. Native values are host-owned and are never retained
// or released.
type heapObject interface {
	retain()
	release()
}

// Value is mica's tagged union. Heap kinds (array, string, closure) carry
// a pointer in obj; primitive kinds are stored inline so that copying a
// Value never touches the heap.
type Value struct {
	Kind Kind
	i    int64
	f    float64
	b    bool
	obj  any
}

var None = Value{Kind: KindNone}
var True = Value{Kind: KindBool, b: true}
var False = Value{Kind: KindBool, b: false}

func Bool(v bool) Value {
	if v {
		return True
	}
	return False
}

func Int(v int64) Value { return Value{Kind: KindInt, i: v} }

func Float(v float64) Value { return Value{Kind: KindFloat, f: v} }

func ArrayVal(a *Array) Value { return Value{Kind: KindArray, obj: a} }

func StringVal(s *String) Value { return Value{Kind: KindString, obj: s} }

func ClosureVal(c *Closure) Value { return Value{Kind: KindClosure, obj: c} }

func NativeVal(n *Native) Value { return Value{Kind: KindNative, obj: n} }

func IteratorVal(it *Iterator) Value { return Value{Kind: KindIterator, obj: it} }

func (v Value) AsInt() int64 { return v.i }

func (v Value) AsFloat() float64 { return v.f }

func (v Value) AsBool() bool { return v.b }

func (v Value) AsArray() *Array { a, _ := v.obj.(*Array); return a }

func (v Value) AsString() *String { s, _ := v.obj.(*String); return s }

func (v Value) AsClosure() *Closure { c, _ := v.obj.(*Closure); return c }

func (v Value) AsNative() *Native { n, _ := v.obj.(*Native); return n }

func (v Value) AsIterator() *Iterator { it, _ := v.obj.(*Iterator); return it }

func isNumber(k Kind) bool { return k == KindInt || k == KindFloat }

// Truthy implements the language's truthiness rule: false, none, and
// zero-valued numbers are falsy; everything else (including empty arrays
// and empty strings) is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNone:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	default:
		return true
	}
}

// Retain increments the refcount of a heap-kind value. Primitives and
// natives are no-ops.
func (v Value) Retain() {
	if ho, ok := v.obj.(heapObject); ok {
		ho.retain()
	}
}

// Release decrements the refcount of a heap-kind value, freeing it (and
// transitively releasing what it owns) at zero.
func (v Value) Release() {
	if ho, ok := v.obj.(heapObject); ok {
		ho.release()
	}
}

// Equal implements value equality: different kinds are never equal, heap
// kinds compare by identity (strings included, since all strings are
// interned).
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNone:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindArray, KindString, KindClosure, KindNative:
		return v.obj == o.obj
	default:
		return false
	}
}

// String renders a value the way `print` and `str()` do.
func (v Value) String() string {
	switch v.Kind {
	case KindNone:
		return "none"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return formatFloat(v.f)
	case KindArray:
		return v.AsArray().String()
	case KindString:
		return v.AsString().Bytes
	case KindClosure:
		return v.AsClosure().String()
	case KindNative:
		return v.AsNative().String()
	default:
		return "<unknown>"
	}
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	return fmt.Sprintf("%v", f)
}
