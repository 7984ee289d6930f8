package compiler

import (
	"github.com/mica-lang/mica/internal/ast"
	"github.com/mica-lang/mica/internal/bytecode"
	"github.com/mica-lang/mica/internal/lerrors"
)

// compileStmt dispatches on the statement's concrete type and, once it has
// been fully emitted, backfills proto.Lines for every byte the statement
// produced. Line tracking is per-statement rather than per-instruction:
// coarser than ideal for a multi-line expression, but enough to point a
// runtime traceback at the right line.
func (c *Compiler) compileStmt(n ast.Node) {
	line := n.Line()
	switch s := n.(type) {
	case *ast.LetStmt:
		c.compileLet(s)
	case *ast.FnStmt:
		c.compileFnStmt(s)
	case *ast.BlockStmt:
		c.beginScope()
		c.compileBlockStmts(s.Statements)
		c.endScope()
	case *ast.IfStmt:
		c.compileIf(s)
	case *ast.WhileStmt:
		c.compileWhile(s)
	case *ast.ForInStmt:
		c.compileForIn(s)
	case *ast.LoopStmt:
		c.compileLoop(s)
	case *ast.BreakStmt:
		c.compileBreak(s)
	case *ast.ReturnStmt:
		c.compileReturn(s)
	case *ast.ExprStmt:
		reg, scratch := c.compileExpr(s.Expr)
		c.free(reg, scratch)
	case *ast.AssignStmt:
		c.compileAssign(s)
	default:
		c.diag(lerrors.NewParse(c.filename, line, 0, "cannot compile statement of type %T", n))
	}
	for len(c.proto.Lines) < len(c.proto.Code) {
		c.proto.Lines = append(c.proto.Lines, line)
	}
}

func (c *Compiler) compileBlockStmts(stmts []ast.Node) {
	for _, s := range stmts {
		c.compileStmt(s)
	}
}

func (c *Compiler) compileLet(s *ast.LetStmt) {
	if c.isGlobalScope() {
		vreg, vscratch := c.compileExpr(s.Value)
		k := c.addConstant(s.Name)
		c.emitKR(bytecode.STORE_GLOBAL, uint16(k), vreg)
		c.free(vreg, vscratch)
		return
	}
	target := c.allocReg()
	vreg, vscratch := c.compileExpr(s.Value)
	c.emitMove(vreg, target)
	c.free(vreg, vscratch)
	c.addLocal(s.Name, s.Mutable, target, s.Line())
}

func (c *Compiler) compileFnStmt(s *ast.FnStmt) {
	if c.isGlobalScope() {
		reg, scratch := c.compileClosureLiteral(s.Name, s.Params, s.Body, s.Line())
		k := c.addConstant(s.Name)
		c.emitKR(bytecode.STORE_GLOBAL, uint16(k), reg)
		c.free(reg, scratch)
		return
	}
	// The local is declared before the body is compiled (rather than
	// after, the way `let` works) so a nested fn can call itself by name:
	// the recursive call resolves as an upvalue capturing this slot.
	target := c.allocReg()
	c.addLocal(s.Name, false, target, s.Line())
	reg, scratch := c.compileClosureLiteral(s.Name, s.Params, s.Body, s.Line())
	c.emitMove(reg, target)
	c.free(reg, scratch)
}

func (c *Compiler) compileIf(s *ast.IfStmt) {
	creg, cscratch := c.compileExpr(s.Cond)
	patchNot := c.emitCondJump(bytecode.JMP_IF_NOT, creg)
	c.free(creg, cscratch)

	c.beginScope()
	c.compileBlockStmts(s.Then.Statements)
	c.endScope()

	if s.Else != nil {
		patchOver := c.emitJump(bytecode.JMP)
		c.patchJumpHere(patchNot)
		c.beginScope()
		c.compileBlockStmts(s.Else.Statements)
		c.endScope()
		c.patchJumpHere(patchOver)
		return
	}
	c.patchJumpHere(patchNot)
}

func (c *Compiler) compileWhile(s *ast.WhileStmt) {
	head := len(c.proto.Code)
	creg, cscratch := c.compileExpr(s.Cond)
	patchExit := c.emitCondJump(bytecode.JMP_IF_NOT, creg)
	c.free(creg, cscratch)

	c.pushLoop()
	c.beginScope()
	c.compileBlockStmts(s.Body.Statements)
	c.endScope()
	loop := c.popLoop()

	c.emitJumpTo(bytecode.JMP, head)
	c.patchJumpHere(patchExit)
	for _, p := range loop.breakPatches {
		c.patchJumpHere(p)
	}
}

func (c *Compiler) compileLoop(s *ast.LoopStmt) {
	head := len(c.proto.Code)
	c.pushLoop()
	c.beginScope()
	c.compileBlockStmts(s.Body.Statements)
	c.endScope()
	loop := c.popLoop()

	c.emitJumpTo(bytecode.JMP, head)
	for _, p := range loop.breakPatches {
		c.patchJumpHere(p)
	}
}

// compileForIn lowers `for x in EXPR { ... }` into an ITER_NEW/ITER_HAS_NEXT/
// ITER_NEXT sequence sharing two hidden locals — the iterator and the loop
// variable — for the lifetime of the loop, per the register-window
// convention the rest of the compiler follows.
func (c *Compiler) compileForIn(s *ast.ForInStmt) {
	srcReg, srcScratch := c.compileExpr(s.Iter)
	c.beginScope()

	iterReg := c.allocReg()
	c.emit2r(bytecode.ITER_NEW, srcReg, iterReg)
	c.free(srcReg, srcScratch)
	c.addLocal("$iter", false, iterReg, s.Line())

	varReg := c.allocReg()
	c.addLocal(s.Var, false, varReg, s.Line())

	head := len(c.proto.Code)
	hasReg := c.allocReg()
	c.emit2r(bytecode.ITER_HAS_NEXT, iterReg, hasReg)
	patchExit := c.emitCondJump(bytecode.JMP_IF_NOT, hasReg)
	c.free(hasReg, true)
	c.emit2r(bytecode.ITER_NEXT, iterReg, varReg)

	c.pushLoop()
	c.beginScope()
	c.compileBlockStmts(s.Body.Statements)
	c.endScope()
	loop := c.popLoop()

	c.emitJumpTo(bytecode.JMP, head)
	c.patchJumpHere(patchExit)
	for _, p := range loop.breakPatches {
		c.patchJumpHere(p)
	}
	c.endScope()
}

func (c *Compiler) compileBreak(s *ast.BreakStmt) {
	if len(c.loops) == 0 {
		c.diag(lerrors.NewParse(c.filename, s.Line(), 0, "break used outside of a loop"))
		return
	}
	patch := c.emitJump(bytecode.JMP)
	top := c.loops[len(c.loops)-1]
	top.breakPatches = append(top.breakPatches, patch)
}

func (c *Compiler) compileReturn(s *ast.ReturnStmt) {
	if s.Value == nil {
		c.emitRet0()
		return
	}
	vreg, vscratch := c.compileExpr(s.Value)
	c.emitRet1(vreg)
	c.free(vreg, vscratch)
}

func (c *Compiler) compileAssign(s *ast.AssignStmt) {
	switch target := s.Target.(type) {
	case *ast.Identifier:
		c.compileAssignIdentifier(target, s.Value, s.Line())
	case *ast.IndexExpr:
		areg, ascratch := c.compileExpr(target.Array)
		ireg, iscratch := c.compileExpr(target.Index)
		vreg, vscratch := c.compileExpr(s.Value)
		c.emit3r(bytecode.ARRAY_SET, areg, ireg, vreg)
		c.free(vreg, vscratch)
		c.free(ireg, iscratch)
		c.free(areg, ascratch)
	default:
		c.diag(lerrors.NewParse(c.filename, s.Line(), 0, "invalid assignment target"))
	}
}

func (c *Compiler) compileAssignIdentifier(target *ast.Identifier, value ast.Node, line int) {
	if loc := c.findLocal(target.Name); loc != nil {
		if !loc.mutable {
			c.diag(lerrors.NewParse(c.filename, line, 0, "cannot assign to immutable binding %q", target.Name))
			vreg, vscratch := c.compileExpr(value)
			c.free(vreg, vscratch)
			return
		}
		vreg, vscratch := c.compileExpr(value)
		c.emitMove(vreg, loc.reg)
		c.free(vreg, vscratch)
		return
	}
	if idx, ok := c.resolveUpvalue(target.Name); ok {
		vreg, vscratch := c.compileExpr(value)
		c.emit2r(bytecode.STORE_UPVAL, byte(idx), vreg)
		c.free(vreg, vscratch)
		return
	}
	vreg, vscratch := c.compileExpr(value)
	k := c.addConstant(target.Name)
	c.emitKR(bytecode.STORE_GLOBAL, uint16(k), vreg)
	c.free(vreg, vscratch)
}
