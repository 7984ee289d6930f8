// Package mica is the embedding surface: a small facade over the
// compiler and the VM that gives a host exactly the operations the
// language's design calls for, and nothing else — construct an instance,
// register natives, compile source into a stacked top-level frame, run it,
// and shuttle values in and out through the global table.
package mica

import (
	"github.com/mica-lang/mica/internal/compiler"
	"github.com/mica-lang/mica/internal/lerrors"
	"github.com/mica-lang/mica/internal/vm"
	"github.com/mica-lang/mica/natives"
)

// Value is the host-visible value type: primitives, arrays, strings, and
// closures all pass through this type at the embedding boundary.
type Value = vm.Value

// NativeFn is the signature a host function registered via RegisterNative
// must implement.
type NativeFn = vm.NativeFn

var (
	None  = vm.None
	True  = vm.True
	False = vm.False
)

func Int(v int64) Value     { return vm.Int(v) }
func Float(v float64) Value { return vm.Float(v) }
func Bool(v bool) Value     { return vm.Bool(v) }

// Instance is one interpreter: independent globals, native registry, and
// register file. Instances never share state — there is no cross-instance
// concurrency surface by design.
type Instance struct {
	vm *vm.VM
}

// New creates an instance with an empty global table and no natives
// registered. Callers that want the standard library call
// RegisterStandardNatives afterward.
func New() *Instance {
	return &Instance{vm: vm.New()}
}

// Free releases every heap value the instance still owns (globals, the
// intern table). The instance must not be used again afterward.
func (in *Instance) Free() {
	in.vm.Free()
}

// RegisterNative binds name to fn in this instance's native registry,
// returning false if the registry is already at capacity and name is not
// already registered.
func (in *Instance) RegisterNative(name string, fn NativeFn) bool {
	return in.vm.RegisterNative(name, fn)
}

// RegisterStandardNatives registers the built-in set (print, len, assert,
// type_of, str, abs, sqrt, floor, clock), returning the names that were
// dropped for capacity reasons.
func (in *Instance) RegisterStandardNatives() []string {
	return natives.Register(in.vm)
}

// Compile parses and lowers source, pushing it as a new top-level frame on
// success. Repeated calls stack additional top-level frames, each run
// independently by a subsequent call to Run. It returns false without
// pushing anything if a lex or parse error was found; diagnostics
// (including host-policy warnings on a successful compile) are always
// returned alongside.
func (in *Instance) Compile(filename string, source []byte) (bool, []*lerrors.Error) {
	proto, diags, ok := compiler.Compile(filename, source)
	if !ok {
		return false, diags
	}
	in.vm.PushTopLevel(proto)
	return true, diags
}

// Run drives the most recently pushed top-level frame to completion,
// including every frame it transitively pushes via calls, returning
// whether it completed normally. Calling Run with nothing pending
// succeeds trivially.
func (in *Instance) Run() (bool, *lerrors.Error) {
	return in.vm.Run()
}

// SetGlobal binds name in this instance's global table, retaining the new
// value and releasing whatever it replaces.
func (in *Instance) SetGlobal(name string, v Value) {
	in.vm.SetGlobal(name, v)
}

// GetGlobal returns the value bound to name, or None if the name has never
// been set.
func (in *Instance) GetGlobal(name string) Value {
	return in.vm.GetGlobal(name)
}
