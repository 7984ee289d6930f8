package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders a FunctionProto's instruction stream as human-readable
// text, one instruction per line prefixed with its byte offset and source
// line. It exists for debugging; the VM never calls it.
func Disassemble(fp *FunctionProto) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", protoLabel(fp))
	pc := 0
	for pc < len(fp.Code) {
		line := 0
		if pc < len(fp.Lines) {
			line = fp.Lines[pc]
		}
		start := pc
		text, next := disasmOne(fp, pc)
		fmt.Fprintf(&b, "%04d %4d  %s\n", start, line, text)
		pc = next
	}
	for i, c := range fp.Constants {
		if nested, ok := c.(*FunctionProto); ok {
			fmt.Fprintf(&b, "\n%s\n", Disassemble(nested))
			_ = i
		}
	}
	return b.String()
}

func protoLabel(fp *FunctionProto) string {
	if fp.Name == "" {
		return fmt.Sprintf("<anonymous %s>", fp.Filename)
	}
	return fmt.Sprintf("fn %s (%s)", fp.Name, fp.Filename)
}

// disasmOne decodes the instruction at pc and returns its text plus the pc
// of the following instruction.
func disasmOne(fp *FunctionProto, pc int) (string, int) {
	code := fp.Code
	op := ReadOp(code, pc)
	pc++
	switch op {
	case NOP:
		return op.String(), pc
	case LOAD_CONST:
		k := ReadU16(code, pc)
		d := ReadU8(code, pc+2)
		return fmt.Sprintf("%-12s k=%d d=r%d  ; %v", op, k, d, constAt(fp, int(k))), pc + 3
	case LOAD_LOCAL, LOAD_UPVAL:
		s := ReadU8(code, pc)
		d := ReadU8(code, pc+1)
		return fmt.Sprintf("%-12s s=%d d=r%d", op, s, d), pc + 2
	case STORE_LOCAL:
		d := ReadU8(code, pc)
		s := ReadU8(code, pc+1)
		return fmt.Sprintf("%-12s d=%d s=r%d", op, d, s), pc + 2
	case STORE_UPVAL:
		u := ReadU8(code, pc)
		s := ReadU8(code, pc+1)
		return fmt.Sprintf("%-12s u=%d s=r%d", op, u, s), pc + 2
	case MOVE:
		s := ReadU8(code, pc)
		d := ReadU8(code, pc+1)
		return fmt.Sprintf("%-12s s=r%d d=r%d", op, s, d), pc + 2
	case LOAD_GLOBAL:
		k := ReadU16(code, pc)
		d := ReadU8(code, pc+2)
		return fmt.Sprintf("%-12s k=%d d=r%d  ; %v", op, k, d, constAt(fp, int(k))), pc + 3
	case STORE_GLOBAL:
		k := ReadU16(code, pc)
		s := ReadU8(code, pc+2)
		return fmt.Sprintf("%-12s k=%d s=r%d  ; %v", op, k, s, constAt(fp, int(k))), pc + 3
	case ADD, SUB, MUL, DIV, MOD, EQ, NE, LT, LE, GT, GE:
		a := ReadU8(code, pc)
		bb := ReadU8(code, pc+1)
		d := ReadU8(code, pc+2)
		return fmt.Sprintf("%-12s a=r%d b=r%d d=r%d", op, a, bb, d), pc + 3
	case NEG:
		s := ReadU8(code, pc)
		d := ReadU8(code, pc+1)
		return fmt.Sprintf("%-12s s=r%d d=r%d", op, s, d), pc + 2
	case JMP:
		off := ReadI16(code, pc)
		return fmt.Sprintf("%-12s off=%d  ; -> %d", op, off, pc+2+int(off)), pc + 2
	case JMP_IF, JMP_IF_NOT:
		r := ReadU8(code, pc)
		off := ReadI16(code, pc+1)
		return fmt.Sprintf("%-12s r=r%d off=%d  ; -> %d", op, r, off, pc+3+int(off)), pc + 3
	case CALL:
		f := ReadU8(code, pc)
		n := ReadU8(code, pc+1)
		d := ReadU8(code, pc+2)
		return fmt.Sprintf("%-12s f=r%d n=%d d=r%d", op, f, n, d), pc + 3
	case RET:
		n := ReadU8(code, pc)
		if n == 0 {
			return fmt.Sprintf("%-12s n=0", op), pc + 1
		}
		r := ReadU8(code, pc+1)
		return fmt.Sprintf("%-12s n=1 r=r%d", op, r), pc + 2
	case CLOSURE:
		k := ReadU16(code, pc)
		d := ReadU8(code, pc+2)
		u := ReadU8(code, pc+3)
		pc += 4
		var ups []string
		for i := byte(0); i < u; i++ {
			isLocal := ReadU8(code, pc) == 1
			idx := ReadU8(code, pc+1)
			kind := "up"
			if isLocal {
				kind = "local"
			}
			ups = append(ups, fmt.Sprintf("%s:%d", kind, idx))
			pc += 2
		}
		return fmt.Sprintf("%-12s k=%d d=r%d ups=[%s]", op, k, d, strings.Join(ups, ",")), pc
	case CLOSE_UPVAL:
		i := ReadU8(code, pc)
		return fmt.Sprintf("%-12s i=%d", op, i), pc + 1
	case ARRAY_NEW:
		cap16 := ReadU16(code, pc)
		d := ReadU8(code, pc+2)
		return fmt.Sprintf("%-12s cap=%d d=r%d", op, cap16, d), pc + 3
	case ARRAY_GET, ARRAY_SET:
		a := ReadU8(code, pc)
		i := ReadU8(code, pc+1)
		r := ReadU8(code, pc+2)
		return fmt.Sprintf("%-12s a=r%d i=r%d r=r%d", op, a, i, r), pc + 3
	case ARRAY_LEN:
		a := ReadU8(code, pc)
		d := ReadU8(code, pc+1)
		return fmt.Sprintf("%-12s a=r%d d=r%d", op, a, d), pc + 2
	case ARRAY_PUSH:
		a := ReadU8(code, pc)
		v := ReadU8(code, pc+1)
		return fmt.Sprintf("%-12s a=r%d v=r%d", op, a, v), pc + 2
	case ITER_NEW:
		s := ReadU8(code, pc)
		d := ReadU8(code, pc+1)
		return fmt.Sprintf("%-12s s=r%d d=r%d", op, s, d), pc + 2
	case ITER_NEXT, ITER_HAS_NEXT:
		it := ReadU8(code, pc)
		d := ReadU8(code, pc+1)
		return fmt.Sprintf("%-12s it=r%d d=r%d", op, it, d), pc + 2
	default:
		return fmt.Sprintf("??? opcode byte %d", byte(op)), pc
	}
}

func constAt(fp *FunctionProto, k int) any {
	if k < 0 || k >= len(fp.Constants) {
		return nil
	}
	c := fp.Constants[k]
	if _, ok := c.(*FunctionProto); ok {
		return "<proto>"
	}
	return c
}
