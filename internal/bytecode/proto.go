package bytecode

// UpvalDesc tells the VM how to populate one slot of a closure's upvalue
// vector when a CLOSURE instruction runs: either capture the enclosing
// frame's local register (FromLocal=true) or forward the enclosing
// closure's own upvalue at the same index (FromLocal=false).
type UpvalDesc struct {
	FromLocal bool
	Index     uint8
	Name      string // debug only
}

// FunctionProto is the compiled artifact for one function scope: a
// byte-indexed instruction stream, a constant pool, declared arity, and its
// upvalue descriptor list. Constants are plain Go values (int64, float64,
// bool, string, nil, or a nested *FunctionProto) rather than VM heap
// handles, so this package has no dependency on internal/vm — the VM
// materializes heap values (interned strings, closures) from these raw
// constants as instructions execute.
type FunctionProto struct {
	Name      string
	Filename  string
	Arity     int
	Code      []byte
	Constants []any
	Upvalues  []UpvalDesc
	NumLocals int
	// NumRegisters is the compiler's register high-water mark for this
	// function: locals plus the deepest simultaneous scratch usage. The VM
	// reserves this many registers for the frame's window and pre-zeroes
	// the ones above the incoming arguments to None.
	NumRegisters int
	Lines        []int // Lines[pc] is the source line the instruction at pc starts on
}

// AddConstant appends a constant, returning its pool index. Equal constants
// are not deduplicated, here or in the compiler.
func (fp *FunctionProto) AddConstant(v any) int {
	fp.Constants = append(fp.Constants, v)
	return len(fp.Constants) - 1
}
