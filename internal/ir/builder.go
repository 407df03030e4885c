package ir

import "fmt"

// Builder constructs a Function one block at a time.
//
// Blocks follow a sealing discipline: once SealBlock is called no further
// predecessor edge may be added to the block. Every block must be sealed and
// terminated before Finish succeeds.
//
// Errors are sticky. The first misuse is remembered, later instructions are
// dropped, and the error is returned by every subsequent edge operation and by
// Finish.
type Builder struct {
	fn      *Function
	current Block
	err     error
}

// NewBuilder starts a function with the given number of parameters. The
// cursor is placed in the entry block, which is sealed since nothing may
// branch to it.
func NewBuilder(name string, params int) *Builder {
	if params < 0 {
		panic("ir: negative parameter count")
	}
	b := &Builder{fn: &Function{Name: name}}
	entry := b.CreateBlock()
	for range params {
		b.AppendBlockParam(entry)
	}
	b.fn.Blocks[entry].Sealed = true
	b.current = entry
	return b
}

// Func returns the function under construction.
func (b *Builder) Func() *Function { return b.fn }

// Err returns the first error recorded by the builder.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(format string, args ...any) error {
	if b.err == nil {
		b.err = fmt.Errorf("ir: %s: %s", b.fn.Name, fmt.Sprintf(format, args...))
	}
	return b.err
}

func (b *Builder) valid(blk Block) bool {
	return blk >= 0 && int(blk) < len(b.fn.Blocks)
}

func (b *Builder) newValue() Value {
	v := Value(b.fn.numValues)
	b.fn.numValues++
	return v
}

// CreateBlock adds an empty, unsealed block.
func (b *Builder) CreateBlock() Block {
	b.fn.Blocks = append(b.fn.Blocks, &BlockData{})
	return Block(len(b.fn.Blocks) - 1)
}

// AppendBlockParam adds a parameter to blk and returns it.
func (b *Builder) AppendBlockParam(blk Block) Value {
	if !b.valid(blk) {
		b.fail("no such block %s", blk)
		return NoValue
	}
	v := b.newValue()
	data := b.fn.Blocks[blk]
	data.Params = append(data.Params, v)
	return v
}

// BlockParams returns the parameters of blk.
func (b *Builder) BlockParams(blk Block) []Value {
	return b.fn.Block(blk).Params
}

// CurrentBlock returns the block instructions are appended to.
func (b *Builder) CurrentBlock() Block { return b.current }

// SwitchToBlock moves the cursor to blk. The block being left must be either
// untouched or terminated.
func (b *Builder) SwitchToBlock(blk Block) {
	if !b.valid(blk) {
		b.fail("no such block %s", blk)
		return
	}
	cur := b.fn.Blocks[b.current]
	if len(cur.Insts) > 0 && !cur.Terminated() {
		b.fail("switching away from unterminated %s", b.current)
		return
	}
	b.current = blk
}

// SealBlock declares that every predecessor of blk is known.
func (b *Builder) SealBlock(blk Block) error {
	if b.err != nil {
		return b.err
	}
	if !b.valid(blk) {
		return b.fail("no such block %s", blk)
	}
	data := b.fn.Blocks[blk]
	if data.Sealed {
		return b.fail("%s is already sealed", blk)
	}
	data.Sealed = true
	return nil
}

// IsSealed reports whether blk has been sealed.
func (b *Builder) IsSealed(blk Block) bool {
	return b.fn.Block(blk).Sealed
}

// Preds returns the recorded predecessor edges of blk.
func (b *Builder) Preds(blk Block) []Block {
	return append([]Block(nil), b.fn.Block(blk).Preds...)
}

func (b *Builder) emit(inst Inst) Value {
	if b.err != nil {
		return NoValue
	}
	cur := b.fn.Blocks[b.current]
	if cur.Terminated() {
		b.fail("instruction %s after terminator in %s", inst.Op, b.current)
		return NoValue
	}
	cur.Insts = append(cur.Insts, inst)
	return inst.Result
}

func (b *Builder) emitValue(inst Inst) Value {
	if b.err != nil {
		return NoValue
	}
	inst.Result = b.newValue()
	return b.emit(inst)
}

// Iconst materialises a constant word.
func (b *Builder) Iconst(imm int64) Value {
	return b.emitValue(Inst{Op: OpIconst, Imm: imm})
}

// Binary emits a two-operand arithmetic or bitwise instruction.
func (b *Builder) Binary(op Opcode, x, y Value) Value {
	if !op.IsBinary() {
		b.fail("%s is not a binary opcode", op)
		return NoValue
	}
	return b.emitValue(Inst{Op: op, Args: []Value{x, y}})
}

func (b *Builder) IaddImm(x Value, imm int64) Value {
	return b.emitValue(Inst{Op: OpIaddImm, Args: []Value{x}, Imm: imm})
}

func (b *Builder) BandImm(x Value, imm int64) Value {
	return b.emitValue(Inst{Op: OpBandImm, Args: []Value{x}, Imm: imm})
}

func (b *Builder) BorImm(x Value, imm int64) Value {
	return b.emitValue(Inst{Op: OpBorImm, Args: []Value{x}, Imm: imm})
}

func (b *Builder) IshlImm(x Value, imm int64) Value {
	return b.emitValue(Inst{Op: OpIshlImm, Args: []Value{x}, Imm: imm})
}

func (b *Builder) SshrImm(x Value, imm int64) Value {
	return b.emitValue(Inst{Op: OpSshrImm, Args: []Value{x}, Imm: imm})
}

// Icmp compares two values and yields 1 or 0.
func (b *Builder) Icmp(cc IntCC, x, y Value) Value {
	return b.emitValue(Inst{Op: OpIcmp, Cond: cc, Args: []Value{x, y}})
}

// IcmpImm compares a value against a constant and yields 1 or 0.
func (b *Builder) IcmpImm(cc IntCC, x Value, imm int64) Value {
	return b.emitValue(Inst{Op: OpIcmpImm, Cond: cc, Args: []Value{x}, Imm: imm})
}

// DataAddr yields the address of a data-section symbol.
func (b *Builder) DataAddr(symbol string) Value {
	return b.emitValue(Inst{Op: OpDataAddr, Symbol: symbol})
}

// FuncAddr yields the code address of a function.
func (b *Builder) FuncAddr(symbol string) Value {
	return b.emitValue(Inst{Op: OpFuncAddr, Symbol: symbol})
}

// Alloc reserves words heap words and yields their 8 byte aligned address.
func (b *Builder) Alloc(words int64) Value {
	if words <= 0 {
		b.fail("alloc of %d words", words)
		return NoValue
	}
	return b.emitValue(Inst{Op: OpAlloc, Imm: words})
}

// Load reads the word at base+offset.
func (b *Builder) Load(base Value, offset int64) Value {
	return b.emitValue(Inst{Op: OpLoad, Args: []Value{base}, Imm: offset})
}

// Store writes val to base+offset.
func (b *Builder) Store(base, val Value, offset int64) {
	b.emit(Inst{Op: OpStore, Result: NoValue, Args: []Value{base, val}, Imm: offset})
}

// CallIndirect calls the code address held in callee.
func (b *Builder) CallIndirect(callee Value, args ...Value) Value {
	return b.emitValue(Inst{Op: OpCallIndirect, Args: append([]Value{callee}, args...)})
}

// CallForeign calls a runtime-provided primitive by name.
func (b *Builder) CallForeign(name string, args ...Value) Value {
	return b.emitValue(Inst{Op: OpCallForeign, Symbol: name, Args: append([]Value(nil), args...)})
}

func (b *Builder) addEdge(target Block) error {
	if b.err != nil {
		return b.err
	}
	if !b.valid(target) {
		return b.fail("no such block %s", target)
	}
	if b.fn.Blocks[b.current].Terminated() {
		return b.fail("branch after terminator in %s", b.current)
	}
	data := b.fn.Blocks[target]
	if data.Sealed {
		return b.fail("cannot add predecessor %s to sealed %s", b.current, target)
	}
	data.Preds = append(data.Preds, b.current)
	return nil
}

// Brz branches to target when cond is zero and falls through otherwise.
func (b *Builder) Brz(cond Value, target Block, args ...Value) error {
	if err := b.addEdge(target); err != nil {
		return err
	}
	b.emit(Inst{Op: OpBrz, Result: NoValue, Args: append([]Value{cond}, args...), Target: target})
	return b.err
}

// Jump transfers control to target unconditionally and terminates the block.
func (b *Builder) Jump(target Block, args ...Value) error {
	if err := b.addEdge(target); err != nil {
		return err
	}
	b.emit(Inst{Op: OpJump, Result: NoValue, Args: append([]Value(nil), args...), Target: target})
	return b.err
}

// Return leaves the function with v and terminates the block.
func (b *Builder) Return(v Value) {
	b.emit(Inst{Op: OpReturn, Result: NoValue, Args: []Value{v}})
}

// Finish verifies the graph and returns the completed function.
func (b *Builder) Finish() (*Function, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := Verify(b.fn); err != nil {
		return nil, err
	}
	return b.fn, nil
}
