// Package amd64 compiles native fragment programs to x86-64 machine code.
package amd64

import (
	"fmt"
	"math"
	"sort"

	"github.com/tinyrange/lustc/internal/asm"
	amd64asm "github.com/tinyrange/lustc/internal/asm/amd64"
	"github.com/tinyrange/lustc/internal/native"
)

const stackAlignment = 16

var paramRegisters = []asm.Variable{amd64asm.RDI, amd64asm.RSI, amd64asm.RDX, amd64asm.RCX, amd64asm.R8, amd64asm.R9}

var initialFreeRegisters = []asm.Variable{
	amd64asm.RAX,
	amd64asm.RCX,
	amd64asm.RDX,
	amd64asm.RSI,
	amd64asm.RDI,
	amd64asm.R8,
	amd64asm.R9,
	amd64asm.R10,
	amd64asm.R11,
}

var syscallArgRegisters = []asm.Variable{
	amd64asm.RDI,
	amd64asm.RSI,
	amd64asm.RDX,
	amd64asm.R10,
	amd64asm.R8,
	amd64asm.R9,
}

// Linux x86-64 system call numbers.
var syscallNumbers = map[native.SyscallNumber]int64{
	native.SysWrite:     1,
	native.SysExitGroup: 231,
}

// compiler keeps every variable in a stack slot. Registers only hold values
// while a single fragment is being evaluated, so calls need not save any.
type compiler struct {
	fragments    asm.Group
	varOffsets   map[string]int32
	frameSize    int32
	freeRegs     []asm.Variable
	usedRegs     map[asm.Variable]bool
	paramIndex   int
	labelCounter int
}

func Compile(method native.Method) (asm.Fragment, error) {
	c := newCompiler(method)
	if c.frameSize > 0 {
		c.emit(amd64asm.AddRegImm(amd64asm.Reg64(amd64asm.RSP), -c.frameSize))
	}
	if err := c.compileBlock(native.Block(method)); err != nil {
		return nil, err
	}
	c.emitEpilogue()
	return c.fragments, nil
}

func newCompiler(method native.Method) *compiler {
	vars := make(map[string]struct{})
	collectVariables(native.Block(method), vars)
	delete(vars, "")

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	offsets := make(map[string]int32, len(names))
	for idx, name := range names {
		offsets[name] = int32(idx) * 8
	}

	// The return address already sits on the stack, so the frame keeps RSP
	// 16-byte aligned at call sites.
	frameSize := alignTo(int32(len(names))*8+8, stackAlignment) - 8

	return &compiler{
		varOffsets: offsets,
		frameSize:  frameSize,
		freeRegs:   append([]asm.Variable(nil), initialFreeRegisters...),
		usedRegs:   make(map[asm.Variable]bool),
	}
}

func (c *compiler) emit(frags ...asm.Fragment) {
	c.fragments = append(c.fragments, frags...)
}

func (c *compiler) emitEpilogue() {
	if c.frameSize > 0 {
		c.emit(amd64asm.AddRegImm(amd64asm.Reg64(amd64asm.RSP), c.frameSize))
	}
	c.emit(amd64asm.Ret())
}

func (c *compiler) compileBlock(block native.Block) error {
	for _, frag := range block {
		if err := c.compileFragment(frag); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) compileFragment(f native.Fragment) error {
	switch frag := f.(type) {
	case nil:
		return nil
	case native.Block:
		return c.compileBlock(frag)
	case native.Method:
		return c.compileBlock(native.Block(frag))
	case native.DeclareParam:
		return c.compileDeclareParam(string(frag))
	case native.AssignFragment:
		return c.compileAssign(frag)
	case native.SyscallFragment:
		_, err := c.compileSyscall(frag, false)
		return err
	case native.IfFragment:
		return c.compileIf(frag)
	case native.GotoFragment:
		return c.compileGoto(frag)
	case native.LabelFragment:
		c.emit(asm.MarkLabel(asm.Label(frag.Label)))
		return c.compileBlock(frag.Block)
	case native.Label:
		c.emit(asm.MarkLabel(asm.Label(frag)))
		return nil
	case native.ReturnFragment:
		return c.compileReturn(frag)
	case native.CallFragment:
		return c.compileCall(frag)
	case asm.Fragment:
		c.emit(frag)
		return nil
	default:
		return fmt.Errorf("native: unsupported fragment %T", f)
	}
}

func (c *compiler) compileDeclareParam(name string) error {
	if name == "" {
		return fmt.Errorf("native: empty parameter name")
	}
	if c.paramIndex >= len(paramRegisters) {
		return fmt.Errorf("native: too many parameters (max %d)", len(paramRegisters))
	}
	reg := paramRegisters[c.paramIndex]
	c.paramIndex++

	mem, err := c.stackSlotMem(name)
	if err != nil {
		return err
	}
	c.emit(amd64asm.MovToMemory(mem, amd64asm.Reg64(reg)))
	return nil
}

func (c *compiler) compileAssign(assign native.AssignFragment) error {
	reg, err := c.evalValue(assign.Src)
	if err != nil {
		return err
	}
	defer c.freeReg(reg)
	return c.storeValue(assign.Dst, reg)
}

func (c *compiler) compileIf(f native.IfFragment) error {
	trueLabel := c.newInternalLabel("if_true")
	endLabel := c.newInternalLabel("if_end")
	falseLabel := endLabel
	if f.Otherwise != nil {
		falseLabel = c.newInternalLabel("if_else")
	}

	if err := c.emitConditionJump(f.Cond, trueLabel, falseLabel); err != nil {
		return err
	}

	if f.Otherwise != nil {
		c.emit(asm.MarkLabel(falseLabel))
		if err := c.compileFragment(f.Otherwise); err != nil {
			return err
		}
		c.emit(amd64asm.Jump(endLabel))
	}

	c.emit(asm.MarkLabel(trueLabel))
	if err := c.compileFragment(f.Then); err != nil {
		return err
	}
	c.emit(asm.MarkLabel(endLabel))
	return nil
}

func (c *compiler) compileGoto(g native.GotoFragment) error {
	label, ok := g.Label.(native.Label)
	if !ok || label == "" {
		return fmt.Errorf("native: unsupported goto target %#v", g.Label)
	}
	c.emit(amd64asm.Jump(asm.Label(label)))
	return nil
}

// compileCall loads the target into a scratch register outside the argument
// registers, then each argument into its register, and calls.
func (c *compiler) compileCall(f native.CallFragment) error {
	if len(f.Args) > len(paramRegisters) {
		return fmt.Errorf("native: call passes %d arguments (max %d)", len(f.Args), len(paramRegisters))
	}
	target, err := c.allocRegPrefer(amd64asm.R11, amd64asm.R10, amd64asm.RAX)
	if err != nil {
		return err
	}
	if err := c.evalInto(target, f.Target); err != nil {
		c.freeReg(target)
		return err
	}

	used := []asm.Variable{target}
	defer func() {
		for _, r := range used {
			c.freeReg(r)
		}
	}()
	for idx, arg := range f.Args {
		reg := paramRegisters[idx]
		if !c.reserveReg(reg) {
			return fmt.Errorf("native: argument register %d is busy", reg)
		}
		used = append(used, reg)
		if err := c.evalInto(reg, arg); err != nil {
			return err
		}
	}

	c.emit(amd64asm.CallReg(amd64asm.Reg64(target)))
	if f.Result != "" {
		mem, err := c.stackSlotMem(string(f.Result))
		if err != nil {
			return err
		}
		c.emit(amd64asm.MovToMemory(mem, amd64asm.Reg64(amd64asm.RAX)))
	}
	return nil
}

// evalInto evaluates expr and leaves the result in dst, which the caller has
// already reserved.
func (c *compiler) evalInto(dst asm.Variable, expr native.Fragment) error {
	if v, ok := expr.(native.Var); ok {
		mem, err := c.stackSlotMem(string(v))
		if err != nil {
			return err
		}
		c.emit(amd64asm.MovFromMemory(amd64asm.Reg64(dst), mem))
		return nil
	}
	reg, err := c.evalValue(expr)
	if err != nil {
		return err
	}
	if reg != dst {
		c.emit(amd64asm.MovReg(amd64asm.Reg64(dst), amd64asm.Reg64(reg)))
	}
	c.freeReg(reg)
	return nil
}

func (c *compiler) compileReturn(ret native.ReturnFragment) error {
	reg, err := c.evalValue(ret.Value)
	if err != nil {
		return err
	}
	if reg != amd64asm.RAX {
		c.emit(amd64asm.MovReg(amd64asm.Reg64(amd64asm.RAX), amd64asm.Reg64(reg)))
	}
	c.freeReg(reg)
	c.emitEpilogue()
	return nil
}

func (c *compiler) storeValue(dst native.Fragment, reg asm.Variable) error {
	switch dest := dst.(type) {
	case native.Var:
		mem, err := c.stackSlotMem(string(dest))
		if err != nil {
			return err
		}
		c.emit(amd64asm.MovToMemory(mem, amd64asm.Reg64(reg)))
		return nil
	case native.MemVar:
		baseReg, err := c.loadVar64(string(dest.Base))
		if err != nil {
			return err
		}
		defer c.freeReg(baseReg)
		disp, err := resolveDisp(dest.Disp)
		if err != nil {
			return err
		}
		c.emit(amd64asm.MovToMemory(amd64asm.Mem(amd64asm.Reg64(baseReg)).WithDisp(disp), amd64asm.Reg64(reg)))
		return nil
	case native.GlobalMem:
		baseReg, err := c.loadGlobalAddress(dest.Name)
		if err != nil {
			return err
		}
		defer c.freeReg(baseReg)
		disp, err := resolveDisp(dest.Disp)
		if err != nil {
			return err
		}
		c.emit(amd64asm.MovToMemory(amd64asm.Mem(amd64asm.Reg64(baseReg)).WithDisp(disp), amd64asm.Reg64(reg)))
		return nil
	default:
		return fmt.Errorf("native: cannot assign to %T", dst)
	}
}

func (c *compiler) emitConditionJump(cond native.Condition, trueLabel, falseLabel asm.Label) error {
	switch cv := cond.(type) {
	case native.IsNegativeCondition:
		reg, err := c.evalValue(cv.Value)
		if err != nil {
			return err
		}
		c.emit(amd64asm.TestZero(reg), amd64asm.JumpIfNegative(trueLabel))
		c.freeReg(reg)
	case native.IsZeroCondition:
		reg, err := c.evalValue(cv.Value)
		if err != nil {
			return err
		}
		c.emit(amd64asm.TestZero(reg), amd64asm.JumpIfZero(trueLabel))
		c.freeReg(reg)
	case native.CompareCondition:
		leftReg, err := c.evalValue(cv.Left)
		if err != nil {
			return err
		}
		if imm, ok := imm32(cv.Right); ok {
			c.emit(amd64asm.CmpRegImm(amd64asm.Reg64(leftReg), imm))
		} else {
			rightReg, err := c.evalValue(cv.Right)
			if err != nil {
				c.freeReg(leftReg)
				return err
			}
			c.emit(amd64asm.CmpRegReg(amd64asm.Reg64(leftReg), amd64asm.Reg64(rightReg)))
			c.freeReg(rightReg)
		}
		c.freeReg(leftReg)
		switch cv.Kind {
		case native.CompareEqual:
			c.emit(amd64asm.JumpIfEqual(trueLabel))
		case native.CompareNotEqual:
			c.emit(amd64asm.JumpIfNotEqual(trueLabel))
		case native.CompareLess:
			c.emit(amd64asm.JumpIfLess(trueLabel))
		case native.CompareLessOrEqual:
			c.emit(amd64asm.JumpIfLessOrEqual(trueLabel))
		case native.CompareGreater:
			c.emit(amd64asm.JumpIfGreater(trueLabel))
		case native.CompareGreaterOrEqual:
			c.emit(amd64asm.JumpIfGreaterOrEqual(trueLabel))
		default:
			return fmt.Errorf("native: unsupported comparison kind %d", cv.Kind)
		}
	default:
		return fmt.Errorf("native: unsupported condition %T", cond)
	}
	c.emit(amd64asm.Jump(falseLabel))
	return nil
}

// compileSyscall loads each variable argument straight into its kernel
// argument register when that register is free.
func (c *compiler) compileSyscall(sc native.SyscallFragment, needResult bool) (asm.Variable, error) {
	num, ok := syscallNumbers[sc.Num]
	if !ok {
		return 0, fmt.Errorf("native: no amd64 number for %s", sc.Num)
	}
	if len(sc.Args) > len(syscallArgRegisters) {
		return 0, fmt.Errorf("native: %s passes %d arguments (max %d)", sc.Num, len(sc.Args), len(syscallArgRegisters))
	}
	wasRAXUsed := c.usedRegs[amd64asm.RAX]
	c.reserveReg(amd64asm.RAX)

	args := make([]asm.Value, len(sc.Args))
	regs := make([]asm.Variable, 0, len(sc.Args))
	release := func() {
		for _, r := range regs {
			c.freeReg(r)
		}
	}
	for idx, arg := range sc.Args {
		switch a := arg.(type) {
		case native.Var:
			reg, err := c.loadVar64Prefer(string(a), syscallArgRegisters[idx])
			if err != nil {
				release()
				return 0, err
			}
			args[idx] = reg
			regs = append(regs, reg)
		default:
			imm, ok := toInt64(a)
			if !ok {
				release()
				return 0, fmt.Errorf("native: unsupported syscall argument %T", arg)
			}
			args[idx] = asm.Immediate(imm)
		}
	}

	c.emit(amd64asm.Syscall(num, args...))
	release()

	if needResult {
		return amd64asm.RAX, nil
	}
	if !wasRAXUsed {
		c.freeReg(amd64asm.RAX)
	}
	return 0, nil
}

func (c *compiler) evalValue(expr native.Fragment) (asm.Variable, error) {
	switch v := expr.(type) {
	case native.Var:
		return c.loadVar64(string(v))
	case native.MemVar:
		base, err := c.loadVar64(string(v.Base))
		if err != nil {
			return 0, err
		}
		disp, err := resolveDisp(v.Disp)
		if err != nil {
			c.freeReg(base)
			return 0, err
		}
		c.emit(amd64asm.MovFromMemory(amd64asm.Reg64(base), amd64asm.Mem(amd64asm.Reg64(base)).WithDisp(disp)))
		return base, nil
	case native.GlobalMem:
		base, err := c.loadGlobalAddress(v.Name)
		if err != nil {
			return 0, err
		}
		disp, err := resolveDisp(v.Disp)
		if err != nil {
			c.freeReg(base)
			return 0, err
		}
		c.emit(amd64asm.MovFromMemory(amd64asm.Reg64(base), amd64asm.Mem(amd64asm.Reg64(base)).WithDisp(disp)))
		return base, nil
	case native.SyscallFragment:
		return c.compileSyscall(v, true)
	case native.OpFragment:
		return c.evalOp(v)
	case native.MethodPointerFragment:
		return c.loadImmediate(int64(methodPointerPlaceholder(v.Name)))
	case native.GlobalPointerFragment:
		return c.loadGlobalAddress(v.Name)
	default:
		if imm, ok := toInt64(v); ok {
			return c.loadImmediate(imm)
		}
		return 0, fmt.Errorf("native: unsupported expression %T", expr)
	}
}

func (c *compiler) loadImmediate(imm int64) (asm.Variable, error) {
	reg, err := c.allocRegPrefer(amd64asm.RAX)
	if err != nil {
		return 0, err
	}
	c.emit(amd64asm.MovImmediate(amd64asm.Reg64(reg), imm))
	return reg, nil
}

func (c *compiler) evalOp(op native.OpFragment) (asm.Variable, error) {
	left, err := c.evalValue(op.Left)
	if err != nil {
		return 0, err
	}
	dst := amd64asm.Reg64(left)

	switch op.Kind {
	case native.OpShl, native.OpShr, native.OpSar:
		shift, ok := toInt64(op.Right)
		if !ok {
			c.freeReg(left)
			return 0, fmt.Errorf("native: shift amount must be immediate")
		}
		if shift < 0 || shift > 63 {
			c.freeReg(left)
			return 0, fmt.Errorf("native: shift amount %d out of range", shift)
		}
		if shift == 0 {
			return left, nil
		}
		switch op.Kind {
		case native.OpShl:
			c.emit(amd64asm.ShlRegImm(dst, uint8(shift)))
		case native.OpShr:
			c.emit(amd64asm.ShrRegImm(dst, uint8(shift)))
		default:
			c.emit(amd64asm.SarRegImm(dst, uint8(shift)))
		}
		return left, nil
	}

	if imm, ok := imm32(op.Right); ok {
		switch op.Kind {
		case native.OpAdd:
			c.emit(amd64asm.AddRegImm(dst, imm))
			return left, nil
		case native.OpAnd:
			c.emit(amd64asm.AndRegImm(dst, imm))
			return left, nil
		case native.OpOr:
			c.emit(amd64asm.OrRegImm(dst, imm))
			return left, nil
		}
	}

	right, err := c.evalValue(op.Right)
	if err != nil {
		c.freeReg(left)
		return 0, err
	}
	defer c.freeReg(right)
	src := amd64asm.Reg64(right)
	switch op.Kind {
	case native.OpAdd:
		c.emit(amd64asm.AddRegReg(dst, src))
	case native.OpSub:
		c.emit(amd64asm.SubRegReg(dst, src))
	case native.OpMul:
		c.emit(amd64asm.ImulRegReg(dst, src))
	case native.OpAnd:
		c.emit(amd64asm.AndRegReg(dst, src))
	case native.OpOr:
		c.emit(amd64asm.OrRegReg(dst, src))
	case native.OpXor:
		c.emit(amd64asm.XorRegReg(dst, src))
	default:
		c.freeReg(left)
		return 0, fmt.Errorf("native: unsupported op kind %d", op.Kind)
	}
	return left, nil
}

func (c *compiler) stackSlotMem(name string) (amd64asm.Memory, error) {
	offset, ok := c.varOffsets[name]
	if !ok {
		return amd64asm.Memory{}, fmt.Errorf("native: unknown variable %q", name)
	}
	return amd64asm.Mem(amd64asm.Reg64(amd64asm.RSP)).WithDisp(offset), nil
}

func (c *compiler) loadVar64(name string) (asm.Variable, error) {
	return c.loadVar64Prefer(name)
}

func (c *compiler) loadVar64Prefer(name string, preferred ...asm.Variable) (asm.Variable, error) {
	mem, err := c.stackSlotMem(name)
	if err != nil {
		return 0, err
	}
	reg, err := c.allocRegPrefer(preferred...)
	if err != nil {
		return 0, err
	}
	c.emit(amd64asm.MovFromMemory(amd64asm.Reg64(reg), mem))
	return reg, nil
}

func (c *compiler) loadGlobalAddress(name string) (asm.Variable, error) {
	return c.loadImmediate(int64(globalPointerPlaceholder(name)))
}

func resolveDisp(d native.Fragment) (int32, error) {
	if d == nil {
		return 0, nil
	}
	value, ok := toInt64(d)
	if !ok {
		return 0, fmt.Errorf("native: displacement must be constant, got %T", d)
	}
	if value < math.MinInt32 || value > math.MaxInt32 {
		return 0, fmt.Errorf("native: displacement %d out of range", value)
	}
	return int32(value), nil
}

func (c *compiler) allocReg() (asm.Variable, error) {
	if n := len(c.freeRegs); n > 0 {
		reg := c.freeRegs[n-1]
		c.freeRegs = c.freeRegs[:n-1]
		c.usedRegs[reg] = true
		return reg, nil
	}
	return 0, fmt.Errorf("native: register exhaustion")
}

func (c *compiler) allocRegPrefer(preferred ...asm.Variable) (asm.Variable, error) {
	for _, reg := range preferred {
		if c.reserveReg(reg) {
			return reg, nil
		}
	}
	return c.allocReg()
}

func (c *compiler) reserveReg(reg asm.Variable) bool {
	if c.usedRegs[reg] {
		return false
	}
	for idx, candidate := range c.freeRegs {
		if candidate == reg {
			c.freeRegs = append(c.freeRegs[:idx], c.freeRegs[idx+1:]...)
			c.usedRegs[reg] = true
			return true
		}
	}
	return false
}

func (c *compiler) freeReg(reg asm.Variable) {
	if reg == amd64asm.RSP || !c.usedRegs[reg] {
		return
	}
	delete(c.usedRegs, reg)
	c.freeRegs = append(c.freeRegs, reg)
}

func (c *compiler) newInternalLabel(prefix string) asm.Label {
	c.labelCounter++
	return asm.Label(fmt.Sprintf(".native_%s_%d", prefix, c.labelCounter))
}

func collectVariables(f native.Fragment, vars map[string]struct{}) {
	switch v := f.(type) {
	case native.Block:
		for _, inner := range v {
			collectVariables(inner, vars)
		}
	case native.Method:
		collectVariables(native.Block(v), vars)
	case native.Var:
		vars[string(v)] = struct{}{}
	case native.MemVar:
		vars[string(v.Base)] = struct{}{}
	case native.DeclareParam:
		vars[string(v)] = struct{}{}
	case native.AssignFragment:
		collectVariables(v.Dst, vars)
		collectVariables(v.Src, vars)
	case native.OpFragment:
		collectVariables(v.Left, vars)
		collectVariables(v.Right, vars)
	case native.SyscallFragment:
		for _, arg := range v.Args {
			collectVariables(arg, vars)
		}
	case native.CallFragment:
		collectVariables(v.Target, vars)
		for _, arg := range v.Args {
			collectVariables(arg, vars)
		}
		collectVariables(v.Result, vars)
	case native.IfFragment:
		collectConditionVars(v.Cond, vars)
		collectVariables(v.Then, vars)
		collectVariables(v.Otherwise, vars)
	case native.LabelFragment:
		collectVariables(v.Block, vars)
	case native.ReturnFragment:
		collectVariables(v.Value, vars)
	}
}

func collectConditionVars(cond native.Condition, vars map[string]struct{}) {
	switch cv := cond.(type) {
	case native.IsNegativeCondition:
		collectVariables(cv.Value, vars)
	case native.IsZeroCondition:
		collectVariables(cv.Value, vars)
	case native.CompareCondition:
		collectVariables(cv.Left, vars)
		collectVariables(cv.Right, vars)
	}
}

func alignTo(value, boundary int32) int32 {
	mask := boundary - 1
	return (value + mask) &^ mask
}

func toInt64(v any) (int64, bool) {
	switch value := v.(type) {
	case native.Int64:
		return int64(value), true
	case int:
		return int64(value), true
	case int64:
		return value, true
	default:
		return 0, false
	}
}

func imm32(v any) (int32, bool) {
	imm, ok := toInt64(v)
	if !ok || imm < math.MinInt32 || imm > math.MaxInt32 {
		return 0, false
	}
	return int32(imm), true
}
