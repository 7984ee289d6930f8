package compiler

import (
	"github.com/mica-lang/mica/internal/ast"
	"github.com/mica-lang/mica/internal/bytecode"
	"github.com/mica-lang/mica/internal/conf"
	"github.com/mica-lang/mica/internal/lerrors"
)

// compileExpr lowers an expression into whatever register already holds
// its value (an existing local's register, no allocation) or a freshly
// allocated scratch register. The bool return says which: callers must
// free(reg, scratch) once the value has been consumed.
func (c *Compiler) compileExpr(n ast.Node) (byte, bool) {
	switch e := n.(type) {
	case *ast.IntLit:
		return c.loadConst(e.Value)
	case *ast.FloatLit:
		return c.loadConst(e.Value)
	case *ast.BoolLit:
		return c.loadConst(e.Value)
	case *ast.NoneLit:
		return c.loadConst(nil)
	case *ast.StringLit:
		return c.loadConst(e.Value)
	case *ast.Identifier:
		return c.compileIdentifier(e)
	case *ast.ArrayLit:
		return c.compileArrayLit(e)
	case *ast.ClosureLit:
		return c.compileClosureLiteral("", e.Params, e.Body, e.Line())
	case *ast.CallExpr:
		return c.compileCall(e)
	case *ast.IndexExpr:
		return c.compileIndex(e)
	case *ast.BinaryExpr:
		return c.compileBinary(e)
	case *ast.UnaryExpr:
		return c.compileUnary(e)
	case *ast.IterChainExpr:
		return c.compileIterChain(e)
	default:
		c.diag(lerrors.NewParse(c.filename, n.Line(), 0, "cannot compile expression of type %T", n))
		return c.loadConst(nil)
	}
}

func (c *Compiler) loadConst(v any) (byte, bool) {
	dest := c.allocReg()
	k := c.addConstant(v)
	c.emitK(bytecode.LOAD_CONST, uint16(k), dest)
	return dest, true
}

func (c *Compiler) compileIdentifier(id *ast.Identifier) (byte, bool) {
	if loc := c.findLocal(id.Name); loc != nil {
		return loc.reg, false
	}
	if idx, ok := c.resolveUpvalue(id.Name); ok {
		dest := c.allocReg()
		c.emit2r(bytecode.LOAD_UPVAL, byte(idx), dest)
		return dest, true
	}
	dest := c.allocReg()
	k := c.addConstant(id.Name)
	c.emitK(bytecode.LOAD_GLOBAL, uint16(k), dest)
	return dest, true
}

func (c *Compiler) compileArrayLit(a *ast.ArrayLit) (byte, bool) {
	capacity := len(a.Elements)
	if capacity == 0 {
		capacity = conf.InitialArrayCap
	}
	dest := c.allocReg()
	c.emitK(bytecode.ARRAY_NEW, uint16(capacity), dest)
	for _, elem := range a.Elements {
		ereg, escratch := c.compileExpr(elem)
		c.emit2r(bytecode.ARRAY_PUSH, dest, ereg)
		c.free(ereg, escratch)
	}
	return dest, true
}

func (c *Compiler) compileIndex(e *ast.IndexExpr) (byte, bool) {
	areg, ascratch := c.compileExpr(e.Array)
	ireg, iscratch := c.compileExpr(e.Index)
	c.free(ireg, iscratch)
	c.free(areg, ascratch)
	dest := c.allocReg()
	c.emit3r(bytecode.ARRAY_GET, areg, ireg, dest)
	return dest, true
}

func (c *Compiler) compileCall(e *ast.CallExpr) (byte, bool) {
	f := c.allocReg()
	creg, cscratch := c.compileExpr(e.Callee)
	c.emitMove(creg, f)
	c.free(creg, cscratch)

	argRegs := make([]byte, len(e.Args))
	for i, a := range e.Args {
		r := c.allocReg()
		areg, ascratch := c.compileExpr(a)
		c.emitMove(areg, r)
		c.free(areg, ascratch)
		argRegs[i] = r
	}

	c.emit3r(bytecode.CALL, f, byte(len(e.Args)), f)

	for i := len(argRegs) - 1; i >= 0; i-- {
		c.free(argRegs[i], true)
	}
	return f, true
}

var binOps = map[ast.BinOp]bytecode.Op{
	ast.OpAdd: bytecode.ADD,
	ast.OpSub: bytecode.SUB,
	ast.OpMul: bytecode.MUL,
	ast.OpDiv: bytecode.DIV,
	ast.OpMod: bytecode.MOD,
	ast.OpEq:  bytecode.EQ,
	ast.OpNe:  bytecode.NE,
	ast.OpLt:  bytecode.LT,
	ast.OpLe:  bytecode.LE,
	ast.OpGt:  bytecode.GT,
	ast.OpGe:  bytecode.GE,
}

func (c *Compiler) compileBinary(e *ast.BinaryExpr) (byte, bool) {
	switch e.Op {
	case ast.OpAnd:
		return c.compileShortCircuit(e, bytecode.JMP_IF_NOT)
	case ast.OpOr:
		return c.compileShortCircuit(e, bytecode.JMP_IF)
	}
	op, ok := binOps[e.Op]
	if !ok {
		c.diag(lerrors.NewParse(c.filename, e.Line(), 0, "unknown binary operator %q", e.Op))
		return c.loadConst(nil)
	}
	lreg, lscratch := c.compileExpr(e.Left)
	rreg, rscratch := c.compileExpr(e.Right)
	c.free(rreg, rscratch)
	c.free(lreg, lscratch)
	dest := c.allocReg()
	c.emit3r(op, lreg, rreg, dest)
	return dest, true
}

// compileShortCircuit lowers `and`/`or`: the left value is copied into the
// result register, then a conditional jump (skipping the right side)
// decides whether the result gets overwritten by the right value. `and`
// short-circuits on a falsy left; `or` short-circuits on a truthy one.
func (c *Compiler) compileShortCircuit(e *ast.BinaryExpr, skipOp bytecode.Op) (byte, bool) {
	lreg, lscratch := c.compileExpr(e.Left)
	result := c.allocReg()
	c.emitMove(lreg, result)
	c.free(lreg, lscratch)

	patch := c.emitCondJump(skipOp, result)
	rreg, rscratch := c.compileExpr(e.Right)
	c.emitMove(rreg, result)
	c.free(rreg, rscratch)
	c.patchJumpHere(patch)
	return result, true
}

func (c *Compiler) compileUnary(e *ast.UnaryExpr) (byte, bool) {
	if e.Op != ast.OpSub {
		c.diag(lerrors.NewParse(c.filename, e.Line(), 0, "unknown unary operator %q", e.Op))
		return c.loadConst(nil)
	}
	reg, scratch := c.compileExpr(e.Operand)
	c.free(reg, scratch)
	dest := c.allocReg()
	c.emit2r(bytecode.NEG, reg, dest)
	return dest, true
}

// compileIterChain lowers a `.iter()...` postfix chain. A bare `.iter()`
// with no further methods is just a marker used at the head of a for-in
// loop and lowers to its source expression. Any chain with at least one
// `.map`/`.filter`/`.fold` link has no execution semantics defined for it,
// so it is rejected as a compile error rather than silently discarding the
// methods.
func (c *Compiler) compileIterChain(e *ast.IterChainExpr) (byte, bool) {
	if len(e.Methods) > 0 {
		c.diag(lerrors.NewParse(c.filename, e.Line(), 0,
			"iterator method chains (.iter().%s(...)) are not implemented", e.Methods[0].Name))
	}
	return c.compileExpr(e.Source)
}
