package vm

import (
	"time"

	"github.com/mica-lang/mica/internal/bytecode"
	"github.com/mica-lang/mica/internal/conf"
	"github.com/mica-lang/mica/internal/lerrors"
)

// VM is one interpreter instance: a flat, growable register file shared by
// every call frame's window, a call-frame stack, the head of the
// VM-global open-upvalue list, the global environment, the string intern
// table, and the bounded native-function registry.
type VM struct {
	Registers []Value
	frames    []frame

	openUpvalues *Upvalue

	Globals   *globalEnv
	Interner  *Interner
	natives   *nativeRegistry
	createdAt time.Time

	pending []*bytecode.FunctionProto

	Diagnostics []*lerrors.Error
}

// New creates a fresh interpreter instance with empty globals and an empty
// native registry. createdAt anchors the clock() native's elapsed-time
// reading.
func New() *VM {
	return &VM{
		Registers: make([]Value, conf.MaxRegisters),
		Globals:   newGlobalEnv(),
		Interner:  NewInterner(),
		natives:   newNativeRegistry(),
		createdAt: time.Now(),
	}
}

// CreatedAt returns the instant this instance was constructed, so a native
// can report elapsed time without the vm package exposing raw wall-clock
// state.
func (vm *VM) CreatedAt() time.Time { return vm.createdAt }

// Free tears down the heap: releases every global, drains the intern
// table, and clears the register file. Calling any other method on vm
// after Free is undefined, matching the embedding contract.
func (vm *VM) Free() {
	vm.Globals.release()
	vm.Interner.Release()
	vm.Registers = nil
	vm.frames = nil
	vm.openUpvalues = nil
	vm.pending = nil
}

// RegisterNative adds a host function under name. It reports false if the
// registry is already at conf.MaxNatives capacity and name is new; the
// registration is dropped and the caller is expected to surface this as a
// host-policy diagnostic.
func (vm *VM) RegisterNative(name string, fn NativeFn) bool {
	return vm.natives.register(name, fn)
}

// SetGlobal retains value and releases whatever name previously held,
// mirroring STORE_GLOBAL's policy exactly (see the aligned-insert decision
// in the design notes).
func (vm *VM) SetGlobal(name string, value Value) {
	vm.Globals.set(name, value)
}

// GetGlobal returns the value bound to name, or None if absent. Unlike
// LOAD_GLOBAL it does not fall back to the native registry.
func (vm *VM) GetGlobal(name string) Value {
	v, ok := vm.Globals.get(name)
	if !ok {
		return None
	}
	return v
}

// PushTopLevel stacks a freshly compiled top-level FunctionProto, ready to
// be driven by Run. Repeated calls stack additional top-level frames, per
// the embedding contract for compile().
func (vm *VM) PushTopLevel(proto *bytecode.FunctionProto) {
	vm.pending = append(vm.pending, proto)
}

// Run drives the most recently pushed top-level frame to completion,
// including every frame it transitively pushes via CALL, and returns
// whether it completed normally.
func (vm *VM) Run() (bool, *lerrors.Error) {
	if len(vm.pending) == 0 {
		return true, nil
	}
	proto := vm.pending[len(vm.pending)-1]
	vm.pending = vm.pending[:len(vm.pending)-1]

	closure := NewClosure(proto, nil)
	base := 0
	vm.ensureRegisters(base + proto.NumRegisters)
	for i := base; i < base+proto.NumRegisters; i++ {
		vm.Registers[i] = None
	}
	vm.frames = append(vm.frames, frame{closure: closure, ip: 0, base: base, retReg: -1})
	return vm.exec()
}

func (vm *VM) ensureRegisters(n int) {
	if n <= len(vm.Registers) {
		return
	}
	grown := make([]Value, n)
	copy(grown, vm.Registers)
	vm.Registers = grown
}

func (vm *VM) getReg(i int) Value {
	if i < 0 || i >= len(vm.Registers) {
		return None
	}
	return vm.Registers[i]
}

func (vm *VM) setReg(i int, v Value) {
	vm.ensureRegisters(i + 1)
	v.Retain()
	vm.Registers[i].Release()
	vm.Registers[i] = v
}

func (vm *VM) materializeConst(proto *bytecode.FunctionProto, k int) (Value, *lerrors.Error) {
	if k < 0 || k >= len(proto.Constants) {
		return None, vm.runtimeErr("constant index %d out of range", k)
	}
	switch c := proto.Constants[k].(type) {
	case int64:
		return Int(c), nil
	case float64:
		return Float(c), nil
	case bool:
		return Bool(c), nil
	case string:
		return StringVal(vm.Interner.Intern(c)), nil
	case nil:
		return None, nil
	default:
		return None, vm.runtimeErr("unsupported constant kind %T", c)
	}
}

// exec runs frames until the frame this call started with (and everything
// it transitively pushed) has returned.
func (vm *VM) exec() (bool, *lerrors.Error) {
	baseDepth := len(vm.frames) - 1
	for len(vm.frames) > baseDepth {
		fr := &vm.frames[len(vm.frames)-1]
		code := fr.proto().Code
		if fr.ip >= len(code) {
			// Every body the compiler emits, even an empty one, ends in an
			// explicit RET; falling off the end only happens for
			// hand-assembled code that lacks one.
			vm.popFrame(fr, None)
			if len(vm.frames) <= baseDepth {
				return true, nil
			}
			continue
		}
		op := bytecode.ReadOp(code, fr.ip)
		pc := fr.ip + 1

		switch op {
		case bytecode.NOP:

		case bytecode.LOAD_CONST:
			k := bytecode.ReadU16(code, pc)
			d := bytecode.ReadU8(code, pc+2)
			pc += 3
			v, err := vm.materializeConst(fr.proto(), int(k))
			if err != nil {
				return false, err
			}
			vm.setReg(fr.base+int(d), v)

		case bytecode.LOAD_LOCAL:
			s := bytecode.ReadU8(code, pc)
			d := bytecode.ReadU8(code, pc+1)
			pc += 2
			vm.setReg(fr.base+int(d), vm.getReg(fr.base+int(s)))

		case bytecode.STORE_LOCAL:
			d := bytecode.ReadU8(code, pc)
			s := bytecode.ReadU8(code, pc+1)
			pc += 2
			vm.setReg(fr.base+int(d), vm.getReg(fr.base+int(s)))

		case bytecode.MOVE:
			s := bytecode.ReadU8(code, pc)
			d := bytecode.ReadU8(code, pc+1)
			pc += 2
			vm.setReg(fr.base+int(d), vm.getReg(fr.base+int(s)))

		case bytecode.LOAD_UPVAL:
			u := bytecode.ReadU8(code, pc)
			d := bytecode.ReadU8(code, pc+1)
			pc += 2
			if int(u) >= len(fr.closure.Upvalues) {
				return false, vm.runtimeErr("upvalue index %d out of range", u)
			}
			vm.setReg(fr.base+int(d), fr.closure.Upvalues[u].Get(vm.Registers))

		case bytecode.STORE_UPVAL:
			u := bytecode.ReadU8(code, pc)
			s := bytecode.ReadU8(code, pc+1)
			pc += 2
			if int(u) >= len(fr.closure.Upvalues) {
				return false, vm.runtimeErr("upvalue index %d out of range", u)
			}
			fr.closure.Upvalues[u].Set(vm.Registers, vm.getReg(fr.base+int(s)))

		case bytecode.LOAD_GLOBAL:
			k := bytecode.ReadU16(code, pc)
			d := bytecode.ReadU8(code, pc+2)
			pc += 3
			name, ok := fr.proto().Constants[int(k)].(string)
			if !ok {
				return false, vm.runtimeErr("global name constant %d is not a string", k)
			}
			if v, ok := vm.Globals.get(name); ok {
				vm.setReg(fr.base+int(d), v)
			} else if nfn, ok := vm.natives.lookup(name); ok {
				vm.setReg(fr.base+int(d), NativeVal(nfn))
			} else {
				vm.setReg(fr.base+int(d), None)
				return false, vm.runtimeErr("undefined variable %q", name)
			}

		case bytecode.STORE_GLOBAL:
			k := bytecode.ReadU16(code, pc)
			s := bytecode.ReadU8(code, pc+2)
			pc += 3
			name, ok := fr.proto().Constants[int(k)].(string)
			if !ok {
				return false, vm.runtimeErr("global name constant %d is not a string", k)
			}
			vm.Globals.set(name, vm.getReg(fr.base+int(s)))

		case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.MOD:
			a := bytecode.ReadU8(code, pc)
			b := bytecode.ReadU8(code, pc+1)
			d := bytecode.ReadU8(code, pc+2)
			pc += 3
			result, err := vm.arith(op, vm.getReg(fr.base+int(a)), vm.getReg(fr.base+int(b)))
			if err != nil {
				return false, err
			}
			vm.setReg(fr.base+int(d), result)

		case bytecode.NEG:
			s := bytecode.ReadU8(code, pc)
			d := bytecode.ReadU8(code, pc+1)
			pc += 2
			operand := vm.getReg(fr.base + int(s))
			result, err := vm.negate(operand)
			if err != nil {
				return false, err
			}
			vm.setReg(fr.base+int(d), result)

		case bytecode.EQ, bytecode.NE, bytecode.LT, bytecode.LE, bytecode.GT, bytecode.GE:
			a := bytecode.ReadU8(code, pc)
			b := bytecode.ReadU8(code, pc+1)
			d := bytecode.ReadU8(code, pc+2)
			pc += 3
			result, err := vm.compare(op, vm.getReg(fr.base+int(a)), vm.getReg(fr.base+int(b)))
			if err != nil {
				return false, err
			}
			vm.setReg(fr.base+int(d), Bool(result))

		case bytecode.JMP:
			off := bytecode.ReadI16(code, pc)
			pc += 2
			pc += int(off)

		case bytecode.JMP_IF:
			r := bytecode.ReadU8(code, pc)
			off := bytecode.ReadI16(code, pc+1)
			pc += 3
			if vm.getReg(fr.base + int(r)).Truthy() {
				pc += int(off)
			}

		case bytecode.JMP_IF_NOT:
			r := bytecode.ReadU8(code, pc)
			off := bytecode.ReadI16(code, pc+1)
			pc += 3
			if !vm.getReg(fr.base + int(r)).Truthy() {
				pc += int(off)
			}

		case bytecode.CALL:
			f := bytecode.ReadU8(code, pc)
			n := bytecode.ReadU8(code, pc+1)
			d := bytecode.ReadU8(code, pc+2)
			pc += 3
			callee := vm.getReg(fr.base + int(f))
			switch callee.Kind {
			case KindNative:
				args := make([]Value, n)
				for i := 0; i < int(n); i++ {
					args[i] = vm.getReg(fr.base + int(f) + 1 + i)
				}
				result, callErr := callee.AsNative().Fn(vm, args)
				if callErr != nil {
					return false, vm.runtimeErr("%v", callErr)
				}
				vm.setReg(fr.base+int(d), result)
			case KindClosure:
				if len(vm.frames) >= conf.MaxCallDepth {
					return false, vm.runtimeErr("stack overflow")
				}
				calleeClosure := callee.AsClosure()
				newBase := fr.base + int(f) + 1
				vm.ensureRegisters(newBase + calleeClosure.Proto.NumRegisters)
				for i := int(n); i < calleeClosure.Proto.NumRegisters; i++ {
					vm.Registers[newBase+i] = None
				}
				fr.ip = pc
				calleeClosure.retain()
				vm.frames = append(vm.frames, frame{
					closure: calleeClosure,
					ip:      0,
					base:    newBase,
					retReg:  fr.base + int(d),
				})
				continue
			default:
				return false, vm.runtimeErr("expected callable but found %s", callee.Kind)
			}

		case bytecode.RET:
			n := bytecode.ReadU8(code, pc)
			pc++
			var retVal Value
			if n == 1 {
				r := bytecode.ReadU8(code, pc)
				pc++
				retVal = vm.getReg(fr.base + int(r))
			}
			vm.popFrame(fr, retVal)
			if len(vm.frames) <= baseDepth {
				return true, nil
			}
			continue

		case bytecode.CLOSURE:
			k := bytecode.ReadU16(code, pc)
			d := bytecode.ReadU8(code, pc+2)
			u := bytecode.ReadU8(code, pc+3)
			pc += 4
			proto, ok := fr.proto().Constants[int(k)].(*bytecode.FunctionProto)
			if !ok {
				return false, vm.runtimeErr("constant %d is not a function prototype", k)
			}
			ups := make([]*Upvalue, u)
			for i := 0; i < int(u); i++ {
				isLocal := bytecode.ReadU8(code, pc) == 1
				idx := bytecode.ReadU8(code, pc+1)
				pc += 2
				if isLocal {
					ups[i] = vm.captureUpvalue(fr.base + int(idx))
				} else {
					if int(idx) >= len(fr.closure.Upvalues) {
						return false, vm.runtimeErr("upvalue index %d out of range", idx)
					}
					ups[i] = fr.closure.Upvalues[idx]
				}
			}
			closure := NewClosure(proto, ups)
			vm.setReg(fr.base+int(d), ClosureVal(closure))
			closure.release()

		case bytecode.CLOSE_UPVAL:
			i := bytecode.ReadU8(code, pc)
			pc++
			vm.closeUpvaluesFrom(fr.base+int(i), vm.Registers)

		case bytecode.ARRAY_NEW:
			capacity := bytecode.ReadU16(code, pc)
			d := bytecode.ReadU8(code, pc+2)
			pc += 3
			arr := NewArray(int(capacity))
			vm.setReg(fr.base+int(d), ArrayVal(arr))
			arr.release()

		case bytecode.ARRAY_GET:
			a := bytecode.ReadU8(code, pc)
			i := bytecode.ReadU8(code, pc+1)
			r := bytecode.ReadU8(code, pc+2)
			pc += 3
			arrVal := vm.getReg(fr.base + int(a))
			if arrVal.Kind != KindArray {
				return false, vm.runtimeErr("attempt to index a %s value", arrVal.Kind)
			}
			idxVal := vm.getReg(fr.base + int(i))
			if idxVal.Kind != KindInt {
				return false, vm.runtimeErr("array index must be an integer, got %s", idxVal.Kind)
			}
			elem, ok := arrVal.AsArray().Get(int(idxVal.AsInt()))
			if !ok {
				return false, vm.runtimeErr("array index %d out of range", idxVal.AsInt())
			}
			vm.setReg(fr.base+int(r), elem)

		case bytecode.ARRAY_SET:
			a := bytecode.ReadU8(code, pc)
			i := bytecode.ReadU8(code, pc+1)
			r := bytecode.ReadU8(code, pc+2)
			pc += 3
			arrVal := vm.getReg(fr.base + int(a))
			if arrVal.Kind != KindArray {
				return false, vm.runtimeErr("attempt to index a %s value", arrVal.Kind)
			}
			idxVal := vm.getReg(fr.base + int(i))
			if idxVal.Kind != KindInt {
				return false, vm.runtimeErr("array index must be an integer, got %s", idxVal.Kind)
			}
			if !arrVal.AsArray().Set(int(idxVal.AsInt()), vm.getReg(fr.base+int(r))) {
				return false, vm.runtimeErr("array index %d out of range", idxVal.AsInt())
			}

		case bytecode.ARRAY_LEN:
			a := bytecode.ReadU8(code, pc)
			d := bytecode.ReadU8(code, pc+1)
			pc += 2
			arrVal := vm.getReg(fr.base + int(a))
			if arrVal.Kind != KindArray {
				return false, vm.runtimeErr("attempt to get length of a %s value", arrVal.Kind)
			}
			vm.setReg(fr.base+int(d), Int(int64(arrVal.AsArray().Len())))

		case bytecode.ARRAY_PUSH:
			a := bytecode.ReadU8(code, pc)
			v := bytecode.ReadU8(code, pc+1)
			pc += 2
			arrVal := vm.getReg(fr.base + int(a))
			if arrVal.Kind != KindArray {
				return false, vm.runtimeErr("attempt to push onto a %s value", arrVal.Kind)
			}
			arrVal.AsArray().Push(vm.getReg(fr.base + int(v)))

		case bytecode.ITER_NEW:
			s := bytecode.ReadU8(code, pc)
			d := bytecode.ReadU8(code, pc+1)
			pc += 2
			vm.setReg(fr.base+int(d), IteratorVal(NewIterator(vm.getReg(fr.base+int(s)))))

		case bytecode.ITER_NEXT:
			it := bytecode.ReadU8(code, pc)
			d := bytecode.ReadU8(code, pc+1)
			pc += 2
			itVal := vm.getReg(fr.base + int(it))
			if itVal.Kind != KindIterator {
				return false, vm.runtimeErr("ITER_NEXT on a non-iterator value")
			}
			vm.setReg(fr.base+int(d), itVal.AsIterator().Next())

		case bytecode.ITER_HAS_NEXT:
			it := bytecode.ReadU8(code, pc)
			d := bytecode.ReadU8(code, pc+1)
			pc += 2
			itVal := vm.getReg(fr.base + int(it))
			if itVal.Kind != KindIterator {
				return false, vm.runtimeErr("ITER_HAS_NEXT on a non-iterator value")
			}
			vm.setReg(fr.base+int(d), Bool(itVal.AsIterator().HasNext()))

		default:
			return false, vm.runtimeErr("unknown opcode byte %d", byte(op))
		}

		fr.ip = pc
	}
	return true, nil
}

// popFrame closes the frame's open upvalues, releases every register in
// its window (transferring, not double-releasing, the return value), and
// delivers the result to the caller's destination register (unless this
// was the outermost frame, whose result nothing observes).
func (vm *VM) popFrame(fr *frame, retVal Value) {
	retVal.Retain() // survive the window teardown below
	base := fr.base
	top := base + fr.proto().NumRegisters
	vm.closeUpvaluesFrom(base, vm.Registers)
	for i := base; i < top && i < len(vm.Registers); i++ {
		vm.Registers[i].Release()
		vm.Registers[i] = None
	}
	retReg := fr.retReg
	fr.closure.release()
	vm.frames = vm.frames[:len(vm.frames)-1]
	if retReg < 0 {
		retVal.Release()
		return
	}
	vm.setReg(retReg, retVal)
	retVal.Release()
}
