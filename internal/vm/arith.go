package vm

import (
	"math"

	"github.com/mica-lang/mica/internal/bytecode"
	"github.com/mica-lang/mica/internal/lerrors"
)

// arith implements ADD/SUB/MUL/DIV/MOD: integer result when both operands
// are integers, float result otherwise (int operands promoted). Integer
// division and modulo by zero are reported as runtime errors rather than
// left to Go's divide-by-zero panic.
func (vm *VM) arith(op bytecode.Op, a, b Value) (Value, *lerrors.Error) {
	if !isNumber(a.Kind) || !isNumber(b.Kind) {
		return None, vm.runtimeErr("cannot %s a %s and a %s", arithName(op), a.Kind, b.Kind)
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		x, y := a.AsInt(), b.AsInt()
		switch op {
		case bytecode.ADD:
			return Int(x + y), nil
		case bytecode.SUB:
			return Int(x - y), nil
		case bytecode.MUL:
			return Int(x * y), nil
		case bytecode.DIV:
			if y == 0 {
				return None, vm.runtimeErr("integer division by zero")
			}
			return Int(x / y), nil
		case bytecode.MOD:
			if y == 0 {
				return None, vm.runtimeErr("integer modulo by zero")
			}
			return Int(x % y), nil
		}
	}
	x, y := toFloat(a), toFloat(b)
	switch op {
	case bytecode.ADD:
		return Float(x + y), nil
	case bytecode.SUB:
		return Float(x - y), nil
	case bytecode.MUL:
		return Float(x * y), nil
	case bytecode.DIV:
		return Float(x / y), nil
	case bytecode.MOD:
		return Float(math.Mod(x, y)), nil
	}
	return None, vm.runtimeErr("unreachable arithmetic opcode %s", op)
}

func (vm *VM) negate(v Value) (Value, *lerrors.Error) {
	switch v.Kind {
	case KindInt:
		return Int(-v.AsInt()), nil
	case KindFloat:
		return Float(-v.AsFloat()), nil
	default:
		return None, vm.runtimeErr("cannot negate a %s", v.Kind)
	}
}

// compare implements EQ/NE (any kind, identity for heap kinds) and
// LT/LE/GT/GE (numeric only; ordering on non-numeric operands is a runtime
// error rather than a silent false).
func (vm *VM) compare(op bytecode.Op, a, b Value) (bool, *lerrors.Error) {
	switch op {
	case bytecode.EQ:
		return a.Equal(b), nil
	case bytecode.NE:
		return !a.Equal(b), nil
	}
	if !isNumber(a.Kind) || !isNumber(b.Kind) {
		return false, vm.runtimeErr("cannot order a %s and a %s", a.Kind, b.Kind)
	}
	x, y := toFloat(a), toFloat(b)
	switch op {
	case bytecode.LT:
		return x < y, nil
	case bytecode.LE:
		return x <= y, nil
	case bytecode.GT:
		return x > y, nil
	case bytecode.GE:
		return x >= y, nil
	default:
		return false, vm.runtimeErr("unreachable comparison opcode %s", op)
	}
}

func toFloat(v Value) float64 {
	if v.Kind == KindInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

func arithName(op bytecode.Op) string {
	switch op {
	case bytecode.ADD:
		return "add"
	case bytecode.SUB:
		return "subtract"
	case bytecode.MUL:
		return "multiply"
	case bytecode.DIV:
		return "divide"
	case bytecode.MOD:
		return "modulo"
	default:
		return op.String()
	}
}
