package mica_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mica-lang/mica"
	"github.com/mica-lang/mica/internal/vm"
)

func TestCompileAndRunSimpleProgram(t *testing.T) {
	in := mica.New()
	defer in.Free()

	ok, diags := in.Compile("test.mica", []byte(`
		let x = 10
		let mut y = 20
		y = y + 1
	`))
	require.True(t, ok, "%v", diags)

	ranOK, err := in.Run()
	require.True(t, ranOK)
	require.Nil(t, err)

	assert.EqualValues(t, 10, in.GetGlobal("x").AsInt())
	assert.EqualValues(t, 21, in.GetGlobal("y").AsInt())
}

func TestCompileFailureDoesNotPushAFrame(t *testing.T) {
	in := mica.New()
	defer in.Free()

	ok, diags := in.Compile("test.mica", []byte(`let x = `))
	assert.False(t, ok)
	assert.NotEmpty(t, diags)

	ranOK, err := in.Run()
	assert.True(t, ranOK, "running with nothing pending succeeds trivially")
	assert.Nil(t, err)
}

func TestRepeatedCompileStacksTopLevelFrames(t *testing.T) {
	in := mica.New()
	defer in.Free()

	ok, _ := in.Compile("first.mica", []byte(`let b = a + 1`))
	require.True(t, ok)
	ok, _ = in.Compile("second.mica", []byte(`let a = 1`))
	require.True(t, ok)

	// Each Run drives the most recently pushed frame: second.mica, then
	// first.mica.
	ranOK, err := in.Run()
	require.True(t, ranOK)
	require.Nil(t, err)
	ranOK, err = in.Run()
	require.True(t, ranOK)
	require.Nil(t, err)
	assert.EqualValues(t, 1, in.GetGlobal("a").AsInt())
	assert.EqualValues(t, 2, in.GetGlobal("b").AsInt())
}

func TestRuntimeErrorReportsFailure(t *testing.T) {
	in := mica.New()
	defer in.Free()

	ok, _ := in.Compile("test.mica", []byte(`let x = 1 / 0`))
	require.True(t, ok)

	ranOK, err := in.Run()
	assert.False(t, ranOK)
	assert.NotNil(t, err)
}

func TestSetGlobalIsVisibleToScript(t *testing.T) {
	in := mica.New()
	defer in.Free()

	in.SetGlobal("seed", mica.Int(41))
	ok, _ := in.Compile("test.mica", []byte(`let result = seed + 1`))
	require.True(t, ok)
	ranOK, err := in.Run()
	require.True(t, ranOK)
	require.Nil(t, err)
	assert.EqualValues(t, 42, in.GetGlobal("result").AsInt())
}

func TestGetGlobalOnMissingNameReturnsNone(t *testing.T) {
	in := mica.New()
	defer in.Free()
	assert.Equal(t, mica.None, in.GetGlobal("nope"))
}

func TestRegisterNativeIsCallableFromScript(t *testing.T) {
	in := mica.New()
	defer in.Free()

	ok := in.RegisterNative("double", func(_ *vm.VM, args []mica.Value) (mica.Value, error) {
		return mica.Int(args[0].AsInt() * 2), nil
	})
	require.True(t, ok)

	compiled, diags := in.Compile("test.mica", []byte(`let result = double(21)`))
	require.True(t, compiled, "%v", diags)
	ranOK, err := in.Run()
	require.True(t, ranOK)
	require.Nil(t, err)
	assert.EqualValues(t, 42, in.GetGlobal("result").AsInt())
}

func TestStandardNativesIncludePrintAndLen(t *testing.T) {
	in := mica.New()
	defer in.Free()
	dropped := in.RegisterStandardNatives()
	assert.Empty(t, dropped)

	ok, diags := in.Compile("test.mica", []byte(`
		let items = [1, 2, 3]
		let n = len(items)
		print(n)
	`))
	require.True(t, ok, "%v", diags)
	ranOK, err := in.Run()
	require.True(t, ranOK)
	require.Nil(t, err)
	assert.EqualValues(t, 3, in.GetGlobal("n").AsInt())
}
