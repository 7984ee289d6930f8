package vm

import (
	"fmt"

	"github.com/mica-lang/mica/internal/bytecode"
)

// Closure binds a compiled FunctionProto to a concrete vector of Upvalue
// cells, some of which may be shared with sibling closures created from the
// same enclosing scope.
type Closure struct {
	Proto    *bytecode.FunctionProto
	Upvalues []*Upvalue
	refcount int
}

func NewClosure(proto *bytecode.FunctionProto, ups []*Upvalue) *Closure {
	for _, u := range ups {
		u.retain()
	}
	return &Closure{Proto: proto, Upvalues: ups, refcount: 1}
}

func (c *Closure) retain() { c.refcount++ }

func (c *Closure) release() {
	c.refcount--
	if c.refcount > 0 {
		return
	}
	for _, u := range c.Upvalues {
		u.release()
	}
	c.Upvalues = nil
}

func (c *Closure) String() string {
	if c.Proto.Name != "" {
		return fmt.Sprintf("<fn %s>", c.Proto.Name)
	}
	return fmt.Sprintf("<fn %p>", c)
}

// Native wraps a host-supplied function. Natives are host-owned: the VM
// never retains or releases them, it only copies the pointer around.
type Native struct {
	Name string
	Fn   NativeFn
}

// NativeFn is the signature every registered native function implements.
// It receives exactly the arguments the call site passed (no padding to any
// arity) and returns a single Value plus an error for a fatal runtime
// failure.
type NativeFn func(vm *VM, args []Value) (Value, error)

func (n *Native) String() string { return fmt.Sprintf("<native %s>", n.Name) }
