// Package natives implements the small set of host functions every mica
// instance is expected to register: print, len, assert, type_of, str,
// abs, sqrt, floor, and clock. They are plain vm.NativeFn values, kept
// outside internal/vm so an embedder can pick a subset rather than link
// every one of them.
package natives

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/mica-lang/mica/internal/vm"
)

// All returns the full default set, keyed by the name Register expects.
func All() map[string]vm.NativeFn {
	return map[string]vm.NativeFn{
		"print":   Print,
		"len":     Len,
		"assert":  Assert,
		"type_of": TypeOf,
		"str":     Str,
		"abs":     Abs,
		"sqrt":    Sqrt,
		"floor":   Floor,
		"clock":   Clock,
	}
}

// Register adds every native in All() to m, returning the names that were
// dropped because the registry was already at its capacity.
func Register(m *vm.VM) []string {
	var dropped []string
	for name, fn := range All() {
		if !m.RegisterNative(name, fn) {
			dropped = append(dropped, name)
		}
	}
	return dropped
}

// Print writes every argument's rendered form to stdout, tab-separated,
// followed by a newline, mirroring the six literal end-to-end scenarios'
// expected output exactly.
func Print(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	parts := make([]any, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	line := ""
	for i, p := range parts {
		if i > 0 {
			line += "\t"
		}
		line += fmt.Sprint(p)
	}
	fmt.Fprintln(os.Stdout, line)
	return vm.None, nil
}

// Len reports an array's element count or a string's byte length.
func Len(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	if len(args) != 1 {
		return vm.None, fmt.Errorf("len expects 1 argument, got %d", len(args))
	}
	switch args[0].Kind {
	case vm.KindArray:
		return vm.Int(int64(args[0].AsArray().Len())), nil
	case vm.KindString:
		return vm.Int(int64(len(args[0].AsString().Bytes))), nil
	default:
		return vm.None, fmt.Errorf("len expects an array or a string, got %s", args[0].Kind)
	}
}

// Assert returns an error carrying the second argument (or a default
// message) when the first argument is falsy, which the VM reports as a
// runtime error; otherwise it returns the first argument unchanged so it
// can be chained inside an expression.
func Assert(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	if len(args) == 0 {
		return vm.None, fmt.Errorf("assert expects at least 1 argument")
	}
	if args[0].Truthy() {
		return args[0], nil
	}
	if len(args) > 1 {
		return vm.None, fmt.Errorf("assertion failed: %s", args[1].String())
	}
	return vm.None, fmt.Errorf("assertion failed")
}

// TypeOf returns the value's kind name as an interned string.
func TypeOf(m *vm.VM, args []vm.Value) (vm.Value, error) {
	if len(args) != 1 {
		return vm.None, fmt.Errorf("type_of expects 1 argument, got %d", len(args))
	}
	return vm.StringVal(m.Interner.Intern(args[0].Kind.String())), nil
}

// Str renders any value the way print does, as an interned string.
func Str(m *vm.VM, args []vm.Value) (vm.Value, error) {
	if len(args) != 1 {
		return vm.None, fmt.Errorf("str expects 1 argument, got %d", len(args))
	}
	return vm.StringVal(m.Interner.Intern(args[0].String())), nil
}

func asFloat(v vm.Value) (float64, bool) {
	switch v.Kind {
	case vm.KindInt:
		return float64(v.AsInt()), true
	case vm.KindFloat:
		return v.AsFloat(), true
	default:
		return 0, false
	}
}

// Abs returns the absolute value, preserving int-ness for integer input.
func Abs(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	if len(args) != 1 {
		return vm.None, fmt.Errorf("abs expects 1 argument, got %d", len(args))
	}
	if args[0].Kind == vm.KindInt {
		n := args[0].AsInt()
		if n < 0 {
			n = -n
		}
		return vm.Int(n), nil
	}
	f, ok := asFloat(args[0])
	if !ok {
		return vm.None, fmt.Errorf("abs expects a number, got %s", args[0].Kind)
	}
	return vm.Float(math.Abs(f)), nil
}

// Sqrt always returns a float, matching the language's float-contagion rule.
func Sqrt(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	if len(args) != 1 {
		return vm.None, fmt.Errorf("sqrt expects 1 argument, got %d", len(args))
	}
	f, ok := asFloat(args[0])
	if !ok {
		return vm.None, fmt.Errorf("sqrt expects a number, got %s", args[0].Kind)
	}
	return vm.Float(math.Sqrt(f)), nil
}

// Floor returns an int: floor(int) is the identity, floor(float) rounds
// toward negative infinity.
func Floor(_ *vm.VM, args []vm.Value) (vm.Value, error) {
	if len(args) != 1 {
		return vm.None, fmt.Errorf("floor expects 1 argument, got %d", len(args))
	}
	if args[0].Kind == vm.KindInt {
		return args[0], nil
	}
	f, ok := asFloat(args[0])
	if !ok {
		return vm.None, fmt.Errorf("floor expects a number, got %s", args[0].Kind)
	}
	return vm.Int(int64(math.Floor(f))), nil
}

// Clock returns the number of whole and fractional seconds since the
// instance was created, as a float, giving scripts a monotonic-enough
// timer without any date-arithmetic surface.
func Clock(m *vm.VM, _ []vm.Value) (vm.Value, error) {
	return vm.Float(time.Since(m.CreatedAt()).Seconds()), nil
}

// bannerLayout is the strftime pattern used by Banner; parsed once since
// strftime.New compiles the pattern.
var bannerLayout = mustCompileBanner()

func mustCompileBanner() *strftime.Strftime {
	f, err := strftime.New("%Y-%m-%d %H:%M:%S")
	if err != nil {
		panic(err)
	}
	return f
}

// Banner renders the moment it is called using bannerLayout, for the CLI's
// -v flag to report when the standard natives were registered.
func Banner() string {
	return bannerLayout.FormatString(time.Now())
}
