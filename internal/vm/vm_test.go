package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mica-lang/mica/internal/bytecode"
)

func protoFrom(constants []any, numRegisters int, build func() []byte) *bytecode.FunctionProto {
	return &bytecode.FunctionProto{
		Filename:     "test.mica",
		Constants:    constants,
		NumRegisters: numRegisters,
		Code:         build(),
	}
}

func TestVMLoadConstAndReturn(t *testing.T) {
	proto := protoFrom([]any{int64(23)}, 2, func() []byte {
		code, _ := bytecode.EmitK(nil, bytecode.LOAD_CONST, 0, 0)
		code, _ = bytecode.EmitRet1(code, 0)
		return code
	})
	m := New()
	m.PushTopLevel(proto)
	ok, err := m.Run()
	require.True(t, ok)
	require.Nil(t, err)
}

func TestVMIntegerArithmeticStaysInteger(t *testing.T) {
	proto := protoFrom([]any{int64(5), int64(7)}, 4, func() []byte {
		code, _ := bytecode.EmitK(nil, bytecode.LOAD_CONST, 0, 0)
		code, _ = bytecode.EmitK(code, bytecode.LOAD_CONST, 1, 1)
		code, _ = bytecode.Emit3r(code, bytecode.ADD, 0, 1, 2)
		code, _ = bytecode.EmitKR(code, bytecode.STORE_GLOBAL, 2, 2)
		code, _ = bytecode.EmitRet0(code)
		return code
	})
	proto.Constants = append(proto.Constants, "result")

	m := New()
	m.PushTopLevel(proto)
	ok, err := m.Run()
	require.True(t, ok)
	require.Nil(t, err)
	got := m.GetGlobal("result")
	assert.Equal(t, KindInt, got.Kind)
	assert.EqualValues(t, 12, got.AsInt())
}

func TestVMMixedArithmeticPromotesToFloat(t *testing.T) {
	proto := protoFrom([]any{int64(5), float64(2.5), "result"}, 4, func() []byte {
		code, _ := bytecode.EmitK(nil, bytecode.LOAD_CONST, 0, 0)
		code, _ = bytecode.EmitK(code, bytecode.LOAD_CONST, 1, 1)
		code, _ = bytecode.Emit3r(code, bytecode.ADD, 0, 1, 2)
		code, _ = bytecode.EmitKR(code, bytecode.STORE_GLOBAL, 2, 2)
		code, _ = bytecode.EmitRet0(code)
		return code
	})

	m := New()
	m.PushTopLevel(proto)
	ok, _ := m.Run()
	require.True(t, ok)
	got := m.GetGlobal("result")
	assert.Equal(t, KindFloat, got.Kind)
	assert.InDelta(t, 7.5, got.AsFloat(), 0.0001)
}

func TestVMDivisionByZeroIsRuntimeError(t *testing.T) {
	proto := protoFrom([]any{int64(1), int64(0)}, 3, func() []byte {
		code, _ := bytecode.EmitK(nil, bytecode.LOAD_CONST, 0, 0)
		code, _ = bytecode.EmitK(code, bytecode.LOAD_CONST, 1, 1)
		code, _ = bytecode.Emit3r(code, bytecode.DIV, 0, 1, 2)
		code, _ = bytecode.EmitRet0(code)
		return code
	})
	m := New()
	m.PushTopLevel(proto)
	ok, err := m.Run()
	assert.False(t, ok)
	require.NotNil(t, err)
}

func TestVMArrayPushAndLen(t *testing.T) {
	proto := &bytecode.FunctionProto{Filename: "test.mica", NumRegisters: 4}
	proto.Constants = []any{int64(41), int64(99), "length"}
	code, _ := bytecode.EmitK(nil, bytecode.ARRAY_NEW, 4, 0) // r0 = new array cap 4
	code, _ = bytecode.EmitK(code, bytecode.LOAD_CONST, 0, 1) // r1 = 41
	code, _ = bytecode.Emit2r(code, bytecode.ARRAY_PUSH, 0, 1)
	code, _ = bytecode.EmitK(code, bytecode.LOAD_CONST, 1, 2) // r2 = 99
	code, _ = bytecode.Emit2r(code, bytecode.ARRAY_PUSH, 0, 2)
	code, _ = bytecode.Emit2r(code, bytecode.ARRAY_LEN, 0, 3) // r3 = len(r0)
	code, _ = bytecode.EmitKR(code, bytecode.STORE_GLOBAL, 2, 3)
	code, _ = bytecode.EmitRet0(code)
	proto.Code = code

	m := New()
	m.PushTopLevel(proto)
	ok, err := m.Run()
	require.True(t, ok)
	require.Nil(t, err)
	got := m.GetGlobal("length")
	assert.EqualValues(t, 2, got.AsInt())
}

func TestVMCallClosureWithArguments(t *testing.T) {
	// add(a, b) { return a + b }
	addProto := &bytecode.FunctionProto{
		Name:         "add",
		Filename:     "test.mica",
		Arity:        2,
		NumLocals:    2,
		NumRegisters: 3,
	}
	code, _ := bytecode.Emit3r(nil, bytecode.ADD, 0, 1, 2)
	code, _ = bytecode.EmitRet1(code, 2)
	addProto.Code = code

	main := &bytecode.FunctionProto{Filename: "test.mica", NumRegisters: 5}
	main.Constants = []any{addProto, int64(5), int64(10), "result"}
	mcode, _ := bytecode.EmitClosure(nil, 0, 0, nil)          // r0 = closure(add)
	mcode, _ = bytecode.EmitK(mcode, bytecode.LOAD_CONST, 1, 1) // r1 = 5
	mcode, _ = bytecode.EmitK(mcode, bytecode.LOAD_CONST, 2, 2) // r2 = 10
	mcode, _ = bytecode.EmitCall(mcode, 0, 2, 3)                // r3 = add(r1, r2)
	mcode, _ = bytecode.EmitKR(mcode, bytecode.STORE_GLOBAL, 3, 3)
	mcode, _ = bytecode.EmitRet0(mcode)
	main.Code = mcode

	m := New()
	m.PushTopLevel(main)
	ok, err := m.Run()
	require.True(t, ok)
	require.Nil(t, err)
	got := m.GetGlobal("result")
	assert.EqualValues(t, 15, got.AsInt())
}

func TestVMSharedUpvalueAcrossClosures(t *testing.T) {
	// inc() { c = c + 1 }   -- upvalue 0 (from local slot 0 of enclosing)
	inc := &bytecode.FunctionProto{Name: "inc", Filename: "test.mica", NumRegisters: 2}
	inc.Constants = []any{int64(1)}
	inc.Upvalues = []bytecode.UpvalDesc{{FromLocal: true, Index: 0, Name: "c"}}
	icode, _ := bytecode.Emit2r(nil, bytecode.LOAD_UPVAL, 0, 0)
	icode, _ = bytecode.EmitK(icode, bytecode.LOAD_CONST, 0, 1)
	icode, _ = bytecode.Emit3r(icode, bytecode.ADD, 0, 1, 0)
	icode, _ = bytecode.Emit2r(icode, bytecode.STORE_UPVAL, 0, 0)
	icode, _ = bytecode.EmitRet0(icode)
	inc.Code = icode

	// get() { return c }
	get := &bytecode.FunctionProto{Name: "get", Filename: "test.mica", NumRegisters: 1}
	get.Upvalues = []bytecode.UpvalDesc{{FromLocal: true, Index: 0, Name: "c"}}
	gcode, _ := bytecode.Emit2r(nil, bytecode.LOAD_UPVAL, 0, 0)
	gcode, _ = bytecode.EmitRet1(gcode, 0)
	get.Code = gcode

	// main() { let mut c = 0; inc_closure = CLOSURE(inc, local 0); get_closure = CLOSURE(get, local 0); inc(); inc(); result = get() }
	main := &bytecode.FunctionProto{Filename: "test.mica", NumRegisters: 5}
	main.Constants = []any{int64(0), inc, get, "result"}
	mcode, _ := bytecode.EmitK(nil, bytecode.LOAD_CONST, 0, 0) // r0 = c = 0
	mcode, _ = bytecode.EmitClosure(mcode, 1, 1, []bytecode.UpvalDesc{{FromLocal: true, Index: 0}})
	mcode, _ = bytecode.EmitClosure(mcode, 2, 2, []bytecode.UpvalDesc{{FromLocal: true, Index: 0}})
	// Each callee is copied into r3 above every live value, since the
	// callee's register window starts right after the callee slot.
	mcode, _ = bytecode.Emit2r(mcode, bytecode.MOVE, 1, 3)
	mcode, _ = bytecode.EmitCall(mcode, 3, 0, 3) // call inc()
	mcode, _ = bytecode.Emit2r(mcode, bytecode.MOVE, 1, 3)
	mcode, _ = bytecode.EmitCall(mcode, 3, 0, 3) // call inc() again
	mcode, _ = bytecode.Emit2r(mcode, bytecode.MOVE, 2, 3)
	mcode, _ = bytecode.EmitCall(mcode, 3, 0, 3) // r3 = get()
	mcode, _ = bytecode.EmitKR(mcode, bytecode.STORE_GLOBAL, 3, 3)
	mcode, _ = bytecode.EmitRet0(mcode)
	main.Code = mcode

	m := New()
	m.PushTopLevel(main)
	ok, err := m.Run()
	require.True(t, ok)
	require.Nil(t, err)
	got := m.GetGlobal("result")
	assert.EqualValues(t, 2, got.AsInt())
}

func TestVMNativeCallReceivesArguments(t *testing.T) {
	main := &bytecode.FunctionProto{Filename: "test.mica", NumRegisters: 4}
	main.Constants = []any{"double", int64(21), "result"}
	code, _ := bytecode.EmitK(nil, bytecode.LOAD_GLOBAL, 0, 0)
	code, _ = bytecode.EmitK(code, bytecode.LOAD_CONST, 1, 1)
	code, _ = bytecode.EmitCall(code, 0, 1, 2)
	code, _ = bytecode.EmitKR(code, bytecode.STORE_GLOBAL, 2, 2)
	code, _ = bytecode.EmitRet0(code)
	main.Code = code

	m := New()
	ok := m.RegisterNative("double", func(vm *VM, args []Value) (Value, error) {
		return Int(args[0].AsInt() * 2), nil
	})
	require.True(t, ok)
	m.PushTopLevel(main)
	ranOK, err := m.Run()
	require.True(t, ranOK)
	require.Nil(t, err)
	got := m.GetGlobal("result")
	assert.EqualValues(t, 42, got.AsInt())
}

func TestVMUndefinedGlobalIsRuntimeError(t *testing.T) {
	main := &bytecode.FunctionProto{Filename: "test.mica", NumRegisters: 1}
	main.Constants = []any{"nope"}
	code, _ := bytecode.EmitK(nil, bytecode.LOAD_GLOBAL, 0, 0)
	main.Code = code

	m := New()
	m.PushTopLevel(main)
	ok, err := m.Run()
	assert.False(t, ok)
	require.NotNil(t, err)
}

func TestVMArrayOutOfBoundsIsRuntimeError(t *testing.T) {
	main := &bytecode.FunctionProto{Filename: "test.mica", NumRegisters: 3}
	main.Constants = []any{int64(5)}
	code, _ := bytecode.EmitK(nil, bytecode.ARRAY_NEW, 2, 0)
	code, _ = bytecode.EmitK(code, bytecode.LOAD_CONST, 0, 1)
	code, _ = bytecode.Emit3r(code, bytecode.ARRAY_GET, 0, 1, 2)
	main.Code = code

	m := New()
	m.PushTopLevel(main)
	ok, err := m.Run()
	assert.False(t, ok)
	require.NotNil(t, err)
}
