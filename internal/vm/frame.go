package vm

import "github.com/mica-lang/mica/internal/bytecode"

// frame is one call activation: the running closure, an instruction
// pointer into its prototype's code, the absolute base register this
// frame's window starts at, and the caller-side register (also absolute)
// where the return value must land. The top-level frame has retReg -1.
type frame struct {
	closure *Closure
	ip      int
	base    int
	retReg  int
}

func (f *frame) currentLine() int {
	proto := f.closure.Proto
	if f.ip >= 0 && f.ip < len(proto.Lines) {
		return proto.Lines[f.ip]
	}
	return 0
}

func (f *frame) proto() *bytecode.FunctionProto { return f.closure.Proto }
