package natives_test

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mica-lang/mica/internal/vm"
	"github.com/mica-lang/mica/natives"
)

func TestRegisterAddsEveryNative(t *testing.T) {
	m := vm.New()
	dropped := natives.Register(m)
	assert.Empty(t, dropped)
}

func TestLenReportsArrayAndStringLength(t *testing.T) {
	m := vm.New()
	arr := vm.NewArray(2)
	arr.Push(vm.Int(1))
	arr.Push(vm.Int(2))
	arr.Push(vm.Int(3))
	got, err := natives.Len(m, []vm.Value{vm.ArrayVal(arr)})
	require.NoError(t, err)
	assert.EqualValues(t, 3, got.AsInt())

	s := m.Interner.Intern("hello")
	got, err = natives.Len(m, []vm.Value{vm.StringVal(s)})
	require.NoError(t, err)
	assert.EqualValues(t, 5, got.AsInt())
}

func TestAssertPassesThroughTruthyValue(t *testing.T) {
	got, err := natives.Assert(nil, []vm.Value{vm.True})
	require.NoError(t, err)
	assert.True(t, got.Truthy())
}

func TestAssertFailsOnFalsyValue(t *testing.T) {
	_, err := natives.Assert(nil, []vm.Value{vm.False})
	assert.Error(t, err)
}

func TestAssertFailsWithCustomMessage(t *testing.T) {
	m := vm.New()
	msg := m.Interner.Intern("boom")
	_, err := natives.Assert(nil, []vm.Value{vm.False, vm.StringVal(msg)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestTypeOfReportsKindNames(t *testing.T) {
	m := vm.New()
	got, err := natives.TypeOf(m, []vm.Value{vm.Int(1)})
	require.NoError(t, err)
	assert.Equal(t, "int", got.String())

	got, err = natives.TypeOf(m, []vm.Value{vm.None})
	require.NoError(t, err)
	assert.Equal(t, "none", got.String())
}

func TestStrRendersValuesLikePrint(t *testing.T) {
	m := vm.New()
	got, err := natives.Str(m, []vm.Value{vm.Int(42)})
	require.NoError(t, err)
	assert.Equal(t, "42", got.String())
}

func TestAbsPreservesIntegerKind(t *testing.T) {
	got, err := natives.Abs(nil, []vm.Value{vm.Int(-7)})
	require.NoError(t, err)
	assert.Equal(t, vm.KindInt, got.Kind)
	assert.EqualValues(t, 7, got.AsInt())
}

func TestAbsPromotesFloatInput(t *testing.T) {
	got, err := natives.Abs(nil, []vm.Value{vm.Float(-2.5)})
	require.NoError(t, err)
	assert.Equal(t, vm.KindFloat, got.Kind)
	assert.InDelta(t, 2.5, got.AsFloat(), 0.0001)
}

func TestSqrtAlwaysReturnsFloat(t *testing.T) {
	got, err := natives.Sqrt(nil, []vm.Value{vm.Int(9)})
	require.NoError(t, err)
	assert.Equal(t, vm.KindFloat, got.Kind)
	assert.InDelta(t, 3.0, got.AsFloat(), 0.0001)
}

func TestFloorRoundsTowardNegativeInfinity(t *testing.T) {
	got, err := natives.Floor(nil, []vm.Value{vm.Float(-1.5)})
	require.NoError(t, err)
	assert.EqualValues(t, -2, got.AsInt())
}

func TestClockReturnsElapsedSecondsAsFloat(t *testing.T) {
	m := vm.New()
	got, err := natives.Clock(m, nil)
	require.NoError(t, err)
	assert.Equal(t, vm.KindFloat, got.Kind)
	assert.GreaterOrEqual(t, got.AsFloat(), 0.0)
}

func TestBannerRendersANonEmptyTimestamp(t *testing.T) {
	assert.NotEmpty(t, natives.Banner())
}

func TestPrintWritesTabSeparatedLine(t *testing.T) {
	m := vm.New()
	s := m.Interner.Intern("hi")

	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	_, callErr := natives.Print(m, []vm.Value{vm.Int(1), vm.StringVal(s)})

	require.NoError(t, w.Close())
	os.Stdout = old
	require.NoError(t, callErr)

	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	assert.Equal(t, "1\thi\n", buf.String())
}
