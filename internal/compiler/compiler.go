// Package compiler lowers a parsed program into a bytecode.FunctionProto
// tree: one compiler per lexical function, chained through an enclosing
// pointer that mirrors how the parser nests blocks.
package compiler

import (
	"github.com/mica-lang/mica/internal/ast"
	"github.com/mica-lang/mica/internal/bytecode"
	"github.com/mica-lang/mica/internal/conf"
	"github.com/mica-lang/mica/internal/lerrors"
	"github.com/mica-lang/mica/internal/parser"
)

// localVar is one entry of a function's locals table: a name bound to a
// register, tagged with the scope it was declared in and whether any
// nested closure has captured it as an upvalue.
type localVar struct {
	name     string
	depth    int
	reg      byte
	mutable  bool
	captured bool
}

// loopContext tracks the patch sites of every `break` seen inside the loop
// currently being compiled, resolved once the loop's exit address is known.
type loopContext struct {
	breakPatches []int
}

// Compiler holds the state for lowering a single function body: its own
// register file bookkeeping, locals table, upvalue descriptors, and a link
// to the enclosing function's Compiler for name resolution. The top-level
// program is compiled as if it were the body of an implicit function with
// no parameters and no enclosing scope.
type Compiler struct {
	enclosing *Compiler
	filename  string
	diags     *[]*lerrors.Error

	proto *bytecode.FunctionProto

	locals     []*localVar
	scopeDepth int
	nextReg    byte
	highWater  int

	loops []*loopContext
}

func newCompiler(enclosing *Compiler, filename string, diags *[]*lerrors.Error) *Compiler {
	return &Compiler{
		enclosing: enclosing,
		filename:  filename,
		diags:     diags,
		proto:     &bytecode.FunctionProto{Filename: filename},
	}
}

// Compile parses and lowers src, returning the top-level function
// prototype ready to be pushed as a frame. ok is false only when a lex or
// parse error was raised; host-policy diagnostics (too many locals, too
// many upvalues, ...) are reported but do not by themselves fail
// compilation, matching the drop-and-continue policy the rest of the
// diagnostic stream follows.
func Compile(filename string, src []byte) (*bytecode.FunctionProto, []*lerrors.Error, bool) {
	prog, perrs, pok := parser.Parse(filename, src)
	if !pok {
		return nil, perrs, false
	}

	diags := append([]*lerrors.Error{}, perrs...)
	root := newCompiler(nil, filename, &diags)
	root.proto.Name = "main"

	for _, stmt := range prog.Statements {
		root.compileStmt(stmt)
	}
	root.emitRet0()
	if root.highWater < 1 {
		root.highWater = 1
	}
	root.proto.NumRegisters = root.highWater

	ok := true
	for _, d := range diags {
		if d.Kind == lerrors.Parse || d.Kind == lerrors.Lex {
			ok = false
			break
		}
	}
	return root.proto, diags, ok
}

func (c *Compiler) diag(err *lerrors.Error) {
	*c.diags = append(*c.diags, err)
}

func (c *Compiler) isGlobalScope() bool {
	return c.enclosing == nil && c.scopeDepth == 0
}

// ---- register allocation ----

// allocReg bumps the register high-water mark and returns the next free
// slot. Locals never give their register back; scratch registers are
// returned via free, which only actually reclaims the slot when it sits on
// top of the allocation stack, so a scratch value that outlives its
// sibling simply pins the file a little wider rather than corrupting
// anything below it.
func (c *Compiler) allocReg() byte {
	r := c.nextReg
	c.nextReg++
	if int(c.nextReg) > c.highWater {
		c.highWater = int(c.nextReg)
	}
	return r
}

func (c *Compiler) free(reg byte, scratch bool) {
	if scratch && c.nextReg > 0 && reg == c.nextReg-1 {
		c.nextReg--
	}
}

// ---- scopes and locals ----

func (c *Compiler) beginScope() { c.scopeDepth++ }

func (c *Compiler) endScope() {
	minReg := byte(0)
	anyCaptured := false
	cut := len(c.locals)
	for cut > 0 && c.locals[cut-1].depth == c.scopeDepth {
		l := c.locals[cut-1]
		if l.captured {
			if !anyCaptured || l.reg < minReg {
				minReg = l.reg
			}
			anyCaptured = true
		}
		cut--
	}
	if anyCaptured {
		c.emitCloseUpval(minReg)
	}
	c.locals = c.locals[:cut]
	c.scopeDepth--
}

func (c *Compiler) findLocal(name string) *localVar {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			return c.locals[i]
		}
	}
	return nil
}

// addLocal registers name at reg (already allocated by the caller) in the
// current scope. Overflowing conf.MaxLocals drops the declaration: the
// register stays consumed but the name is not resolvable, matching the
// diagnostic-stream's report-and-continue policy.
func (c *Compiler) addLocal(name string, mutable bool, reg byte, line int) {
	if len(c.locals) >= conf.MaxLocals {
		c.diag(lerrors.NewHostPolicy(c.filename, line, 0, "too many locals in function (max %d)", conf.MaxLocals))
		return
	}
	c.locals = append(c.locals, &localVar{name: name, depth: c.scopeDepth, reg: reg, mutable: mutable})
}

// ---- upvalue resolution ----

// resolveUpvalue looks for name as a local of some enclosing function,
// capturing it and every intermediate function's forwarding link along the
// way, memoizing on (isLocal, index) so repeated captures of the same
// binding share one upvalue slot.
func (c *Compiler) resolveUpvalue(name string) (int, bool) {
	if c.enclosing == nil {
		return 0, false
	}
	if loc := c.enclosing.findLocal(name); loc != nil {
		loc.captured = true
		return c.addUpvalue(true, loc.reg, name), true
	}
	if idx, ok := c.enclosing.resolveUpvalue(name); ok {
		return c.addUpvalue(false, byte(idx), name), true
	}
	return 0, false
}

func (c *Compiler) addUpvalue(fromLocal bool, index byte, name string) int {
	for i, u := range c.proto.Upvalues {
		if u.FromLocal == fromLocal && u.Index == index {
			return i
		}
	}
	if len(c.proto.Upvalues) >= conf.MaxUpvalues {
		c.diag(lerrors.NewHostPolicy(c.filename, 0, 0, "too many upvalues in function (max %d)", conf.MaxUpvalues))
		return 0
	}
	c.proto.Upvalues = append(c.proto.Upvalues, bytecode.UpvalDesc{FromLocal: fromLocal, Index: index, Name: name})
	return len(c.proto.Upvalues) - 1
}

// ---- constants ----

func (c *Compiler) addConstant(v any) int {
	if len(c.proto.Constants) >= conf.MaxConstants {
		c.diag(lerrors.NewHostPolicy(c.filename, 0, 0, "too many constants in function (max %d)", conf.MaxConstants))
		return 0
	}
	return c.proto.AddConstant(v)
}

// ---- loops ----

func (c *Compiler) pushLoop() { c.loops = append(c.loops, &loopContext{}) }

func (c *Compiler) popLoop() *loopContext {
	top := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]
	return top
}

// ---- instruction emission ----

func (c *Compiler) emit2r(op bytecode.Op, a, b byte) {
	c.proto.Code, _ = bytecode.Emit2r(c.proto.Code, op, a, b)
}

func (c *Compiler) emit3r(op bytecode.Op, a, b, d byte) {
	c.proto.Code, _ = bytecode.Emit3r(c.proto.Code, op, a, b, d)
}

func (c *Compiler) emitMove(from, to byte) {
	if from == to {
		return
	}
	c.emit2r(bytecode.MOVE, from, to)
}

func (c *Compiler) emitK(op bytecode.Op, k uint16, dest byte) {
	c.proto.Code, _ = bytecode.EmitK(c.proto.Code, op, k, dest)
}

func (c *Compiler) emitKR(op bytecode.Op, k uint16, r byte) {
	c.proto.Code, _ = bytecode.EmitKR(c.proto.Code, op, k, r)
}

func (c *Compiler) emitRet0() {
	c.proto.Code, _ = bytecode.EmitRet0(c.proto.Code)
}

func (c *Compiler) emitRet1(r byte) {
	c.proto.Code, _ = bytecode.EmitRet1(c.proto.Code, r)
}

func (c *Compiler) emitClosure(k uint16, dest byte, ups []bytecode.UpvalDesc) {
	c.proto.Code, _ = bytecode.EmitClosure(c.proto.Code, k, dest, ups)
}

func (c *Compiler) emitCloseUpval(reg byte) {
	c.proto.Code, _ = bytecode.Emit1r(c.proto.Code, bytecode.CLOSE_UPVAL, reg)
}

func (c *Compiler) emitJump(op bytecode.Op) int {
	code, patch := bytecode.EmitJump(c.proto.Code, op)
	c.proto.Code = code
	return patch
}

func (c *Compiler) emitCondJump(op bytecode.Op, r byte) int {
	code, patch := bytecode.EmitCondJump(c.proto.Code, op, r)
	c.proto.Code = code
	return patch
}

func (c *Compiler) patchJumpHere(patch int) {
	code, ok := bytecode.PatchJump(c.proto.Code, patch)
	c.proto.Code = code
	if !ok {
		c.diag(lerrors.NewHostPolicy(c.filename, 0, 0, "jump offset exceeds the 16-bit range (max function size in one branch)"))
	}
}

func (c *Compiler) emitJumpTo(op bytecode.Op, target int) {
	patch := c.emitJump(op)
	code, ok := bytecode.PatchJumpTo(c.proto.Code, patch, target)
	c.proto.Code = code
	if !ok {
		c.diag(lerrors.NewHostPolicy(c.filename, 0, 0, "jump offset exceeds the 16-bit range (max function size in one loop)"))
	}
}

// compileClosureLiteral lowers a function body into a nested
// bytecode.FunctionProto, adds it to the enclosing function's constant
// pool, and emits the CLOSURE instruction that captures its upvalues. name
// is used only for the prototype's debug Name field; anonymous closures
// pass "".
func (c *Compiler) compileClosureLiteral(name string, params []string, body *ast.BlockStmt, line int) (byte, bool) {
	inner := newCompiler(c, c.filename, c.diags)
	inner.proto.Name = name
	inner.proto.Arity = len(params)

	for _, p := range params {
		reg := inner.allocReg()
		inner.addLocal(p, true, reg, line)
	}
	inner.compileBlockStmts(body.Statements)
	inner.emitRet0()

	inner.proto.NumLocals = len(params)
	if inner.highWater < len(params) {
		inner.highWater = len(params)
	}
	if inner.highWater < 1 {
		inner.highWater = 1
	}
	inner.proto.NumRegisters = inner.highWater

	k := c.addConstant(inner.proto)
	dest := c.allocReg()
	c.emitClosure(uint16(k), dest, inner.proto.Upvalues)
	return dest, true
}
