package compiler_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mica-lang/mica/internal/compiler"
	"github.com/mica-lang/mica/internal/lerrors"
	"github.com/mica-lang/mica/internal/vm"
)

func run(t *testing.T, src string) *vm.VM {
	t.Helper()
	proto, errs, ok := compiler.Compile("test.mica", []byte(src))
	for _, e := range errs {
		t.Logf("diagnostic: %v", e)
	}
	require.True(t, ok, "compile should succeed")
	m := vm.New()
	m.PushTopLevel(proto)
	ranOK, err := m.Run()
	require.True(t, ranOK, "run should succeed")
	require.Nil(t, err)
	return m
}

func TestLetAndMutableAssignment(t *testing.T) {
	m := run(t, `
		let x = 10
		let mut y = 20
		y = y + 1
	`)
	assert.EqualValues(t, 10, m.GetGlobal("x").AsInt())
	assert.EqualValues(t, 21, m.GetGlobal("y").AsInt())
}

func TestFunctionCallReturnsSum(t *testing.T) {
	m := run(t, `
		fn add(a, b) {
			return a + b
		}
		let result = add(5, 10)
	`)
	assert.EqualValues(t, 15, m.GetGlobal("result").AsInt())
}

func TestClosureCounterAdvancesEachCall(t *testing.T) {
	m := run(t, `
		fn make_counter() {
			let mut n = 0
			return || {
				n = n + 1
				return n
			}
		}
		let counter = make_counter()
		let first = counter()
		let second = counter()
		let third = counter()
	`)
	assert.EqualValues(t, 1, m.GetGlobal("first").AsInt())
	assert.EqualValues(t, 2, m.GetGlobal("second").AsInt())
	assert.EqualValues(t, 3, m.GetGlobal("third").AsInt())
}

func TestSharedUpvalueAcrossTwoClosures(t *testing.T) {
	m := run(t, `
		fn pair() {
			let mut c = 0
			let inc = || { c = c + 1 }
			let get = || { return c }
			inc()
			inc()
			return get()
		}
		let result = pair()
	`)
	assert.EqualValues(t, 2, m.GetGlobal("result").AsInt())
}

func TestForInSumsArrayElements(t *testing.T) {
	m := run(t, `
		let items = [1, 2, 3]
		let mut total = 0
		for x in items {
			total = total + x
		}
	`)
	assert.EqualValues(t, 6, m.GetGlobal("total").AsInt())
}

func TestBreakExitsLoopEarly(t *testing.T) {
	m := run(t, `
		let mut n = 0
		loop {
			n = n + 1
			if n == 3 {
				break
			}
		}
	`)
	assert.EqualValues(t, 3, m.GetGlobal("n").AsInt())
}

func TestWhileLoopCondition(t *testing.T) {
	m := run(t, `
		let mut n = 0
		while n < 5 {
			n = n + 1
		}
	`)
	assert.EqualValues(t, 5, m.GetGlobal("n").AsInt())
}

func TestIfElseBranches(t *testing.T) {
	m := run(t, `
		let mut a = 0
		if 1 < 2 {
			a = 1
		} else {
			a = 2
		}
		let mut b = 0
		if 2 < 1 {
			b = 1
		} else {
			b = 2
		}
	`)
	assert.EqualValues(t, 1, m.GetGlobal("a").AsInt())
	assert.EqualValues(t, 2, m.GetGlobal("b").AsInt())
}

func TestArrayIndexGetAndSet(t *testing.T) {
	m := run(t, `
		let arr = [10, 20, 30]
		arr[1] = 99
		let got = arr[1]
	`)
	assert.EqualValues(t, 99, m.GetGlobal("got").AsInt())
}

func TestAndOrShortCircuit(t *testing.T) {
	m := run(t, `
		let a = true and false
		let b = false or true
	`)
	assert.False(t, m.GetGlobal("a").Truthy())
	assert.True(t, m.GetGlobal("b").Truthy())
}

func TestAssignToImmutableIsCompileError(t *testing.T) {
	// Immutability is a local-binding concept: a top-level `let` compiles
	// straight to a global, which has no compile-time mutability tracking
	// at all (STORE_GLOBAL always overwrites), so the check only fires
	// for a local declared inside a function body.
	_, errs, ok := compiler.Compile("test.mica", []byte(`
		fn f() {
			let x = 1
			x = 2
			return x
		}
	`))
	assert.False(t, ok)
	require.NotEmpty(t, errs)
	assert.Equal(t, lerrors.Parse, errs[len(errs)-1].Kind)
}

func TestBreakOutsideLoopIsCompileError(t *testing.T) {
	_, errs, ok := compiler.Compile("test.mica", []byte(`
		break
	`))
	assert.False(t, ok)
	require.NotEmpty(t, errs)
}

func TestIterChainWithMethodsIsRejected(t *testing.T) {
	_, errs, ok := compiler.Compile("test.mica", []byte(`
		let items = [1, 2, 3]
		let doubled = items.iter().map(|x| { return x * 2 })
	`))
	assert.False(t, ok)
	require.NotEmpty(t, errs)
}

func TestBareIterCallInForInIsAccepted(t *testing.T) {
	m := run(t, `
		let items = [1, 2, 3]
		let mut total = 0
		for x in items.iter() {
			total = total + x
		}
	`)
	assert.EqualValues(t, 6, m.GetGlobal("total").AsInt())
}

// TestClosureCapturingArraySurvivesEnclosingScopeExit guards the
// retain/release discipline at CLOSE_UPVAL: once make's local `arr` goes
// out of scope at RET, the only remaining owner of the array is the
// closure's upvalue cell, so its contents must still be intact when the
// closure is finally called.
func TestClosureCapturingArraySurvivesEnclosingScopeExit(t *testing.T) {
	m := run(t, `
		fn make() {
			let mut arr = [1, 2, 3]
			let get = || { return arr }
			return get
		}
		let getter = make()
		let result = getter()
	`)
	got := m.GetGlobal("result")
	require.Equal(t, vm.KindArray, got.Kind)
	assert.Equal(t, "[1, 2, 3]", got.AsArray().String())
}

// TestNestedClosureCapturingClosureSurvivesEnclosingScopeExit is the same
// hazard one level deeper: the captured local is itself a heap-typed
// Closure rather than an Array, exercising the same CLOSE_UPVAL retain
// fix against a different heapObject implementation.
func TestNestedClosureCapturingClosureSurvivesEnclosingScopeExit(t *testing.T) {
	m := run(t, `
		fn make() {
			let inner = || { return 42 }
			let get = || { return inner }
			return get
		}
		let getter = make()
		let innerAgain = getter()
		let result = innerAgain()
	`)
	assert.EqualValues(t, 42, m.GetGlobal("result").AsInt())
}

func TestNestedClosureCapturesOuterParameter(t *testing.T) {
	m := run(t, `
		fn adder(base) {
			return |n| { return base + n }
		}
		let add5 = adder(5)
		let result = add5(10)
	`)
	assert.EqualValues(t, 15, m.GetGlobal("result").AsInt())
}

// funcWithNLocals builds a source string declaring n locals inside a single
// function body and returning the last one, exercising the compiler's
// MaxLocals boundary from both sides.
func funcWithNLocals(n int) string {
	var b strings.Builder
	b.WriteString("fn f() {\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "let l%d = %d\n", i, i)
	}
	fmt.Fprintf(&b, "return l%d\n}\n", n-1)
	b.WriteString("let result = f()\n")
	return b.String()
}

func TestExactly256LocalsCompiles(t *testing.T) {
	m := run(t, funcWithNLocals(256))
	assert.EqualValues(t, 255, m.GetGlobal("result").AsInt())
}

func TestExactly257LocalsReportsHostPolicyDiagnostic(t *testing.T) {
	_, errs, _ := compiler.Compile("test.mica", []byte(funcWithNLocals(257)))
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Kind == lerrors.HostPolicy {
			found = true
		}
	}
	assert.True(t, found, "expected a host-policy diagnostic for exceeding the local limit")
}

// funcWithNUpvalues builds an outer function with p locals and a nested
// function with q more (p+q=n, each within MaxLocals so neither level's
// own local count is the thing under test), then an innermost closure that
// references every one of those n names: names from the outer function
// resolve through one level of upvalue forwarding, names from the middle
// function resolve as direct captures. This is the only way to push a
// single closure's upvalue count past MaxLocals, since no single function
// can itself declare more than MaxLocals locals.
func funcWithNUpvalues(n int) string {
	p := n / 2
	q := n - p
	var b strings.Builder
	b.WriteString("fn outer() {\n")
	for i := 0; i < p; i++ {
		fmt.Fprintf(&b, "let a%d = %d\n", i, i)
	}
	b.WriteString("fn mid() {\n")
	for i := 0; i < q; i++ {
		fmt.Fprintf(&b, "let b%d = %d\n", i, p+i)
	}
	b.WriteString("let inner = || {\n")
	b.WriteString("let mut total = 0\n")
	for i := 0; i < p; i++ {
		fmt.Fprintf(&b, "total = total + a%d\n", i)
	}
	for i := 0; i < q; i++ {
		fmt.Fprintf(&b, "total = total + b%d\n", i)
	}
	b.WriteString("return total\n}\n")
	b.WriteString("return inner()\n")
	b.WriteString("}\n")
	b.WriteString("return mid()\n}\n")
	b.WriteString("let result = outer()\n")
	return b.String()
}

func TestExactly256UpvaluesCompiles(t *testing.T) {
	m := run(t, funcWithNUpvalues(256))
	assert.EqualValues(t, 255*256/2, m.GetGlobal("result").AsInt())
}

func TestExactly257UpvaluesReportsHostPolicyDiagnostic(t *testing.T) {
	_, errs, _ := compiler.Compile("test.mica", []byte(funcWithNUpvalues(257)))
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Kind == lerrors.HostPolicy {
			found = true
		}
	}
	assert.True(t, found, "expected a host-policy diagnostic for exceeding the upvalue limit")
}

// TestLargeFunctionBodyBackpatchesJumpsCorrectly exercises a jump whose
// backward offset spans a few hundred bytes of loop body (about 355),
// beyond a single-byte or single-instruction span, to demonstrate the 16-bit
// backpatch machinery isn't only exercised at trivial distances. The exact
// +-32767 saturation points are not exercised by any test: internal/bytecode's
// own tests cover short forward and backward offsets and the rejection of an
// offset far outside the 16-bit range.
func TestLargeFunctionBodyBackpatchesJumpsCorrectly(t *testing.T) {
	var b strings.Builder
	b.WriteString("let mut n = 0\nlet mut i = 0\nwhile i < 2000 {\n")
	for j := 0; j < 20; j++ {
		fmt.Fprintf(&b, "n = n + %d\n", j)
	}
	b.WriteString("i = i + 1\n}\n")
	m := run(t, b.String())
	assert.EqualValues(t, 2000, m.GetGlobal("i").AsInt())
}

// TestUnboundedRecursionReportsStackOverflow drives the frame stack past
// its cap without a panic, matching the fatal-runtime-error policy: the
// dispatch loop returns failure and leaves the frame stack as-is for the
// host to tear down via Free rather than attempting in-VM recovery.
func TestUnboundedRecursionReportsStackOverflow(t *testing.T) {
	proto, errs, ok := compiler.Compile("test.mica", []byte(`
		fn recurse(n) {
			return recurse(n + 1)
		}
		let ignored = recurse(0)
	`))
	require.True(t, ok, "%v", errs)

	m := vm.New()
	defer m.Free()
	m.PushTopLevel(proto)
	ranOK, err := m.Run()
	assert.False(t, ranOK)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "stack overflow")
}
