package ir

import "fmt"

// Value names the result of an instruction or a block parameter. Values are
// numbered per function.
type Value int32

// NoValue marks instructions that produce nothing.
const NoValue Value = -1

func (v Value) String() string {
	if v == NoValue {
		return "none"
	}
	return fmt.Sprintf("v%d", int32(v))
}

// Block identifies a basic block within its function.
type Block int32

func (b Block) String() string { return fmt.Sprintf("block%d", int32(b)) }

type Opcode uint8

const (
	OpInvalid Opcode = iota
	OpIconst
	OpIadd
	OpIsub
	OpImul
	OpBand
	OpBor
	OpBxor
	OpIaddImm
	OpBandImm
	OpBorImm
	OpIshlImm
	OpSshrImm
	OpIcmp
	OpIcmpImm
	OpDataAddr
	OpFuncAddr
	OpAlloc
	OpLoad
	OpStore
	OpCallIndirect
	OpCallForeign
	OpBrz
	OpJump
	OpReturn
)

var opcodeNames = [...]string{
	OpInvalid:      "invalid",
	OpIconst:       "iconst",
	OpIadd:         "iadd",
	OpIsub:         "isub",
	OpImul:         "imul",
	OpBand:         "band",
	OpBor:          "bor",
	OpBxor:         "bxor",
	OpIaddImm:      "iadd_imm",
	OpBandImm:      "band_imm",
	OpBorImm:       "bor_imm",
	OpIshlImm:      "ishl_imm",
	OpSshrImm:      "sshr_imm",
	OpIcmp:         "icmp",
	OpIcmpImm:      "icmp_imm",
	OpDataAddr:     "data_addr",
	OpFuncAddr:     "func_addr",
	OpAlloc:        "alloc",
	OpLoad:         "load",
	OpStore:        "store",
	OpCallIndirect: "call_indirect",
	OpCallForeign:  "call_foreign",
	OpBrz:          "brz",
	OpJump:         "jump",
	OpReturn:       "return",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// IsBinary reports whether op takes two register operands.
func (op Opcode) IsBinary() bool {
	switch op {
	case OpIadd, OpIsub, OpImul, OpBand, OpBor, OpBxor:
		return true
	}
	return false
}

// IntCC is an integer comparison condition.
type IntCC uint8

const (
	CondEqual IntCC = iota
	CondNotEqual
	CondSignedLess
	CondSignedLessOrEqual
	CondSignedGreater
	CondSignedGreaterOrEqual
)

func (cc IntCC) String() string {
	switch cc {
	case CondEqual:
		return "eq"
	case CondNotEqual:
		return "ne"
	case CondSignedLess:
		return "slt"
	case CondSignedLessOrEqual:
		return "sle"
	case CondSignedGreater:
		return "sgt"
	case CondSignedGreaterOrEqual:
		return "sge"
	default:
		return fmt.Sprintf("cc(%d)", uint8(cc))
	}
}

// Eval applies the condition to two words.
func (cc IntCC) Eval(a, b int64) bool {
	switch cc {
	case CondEqual:
		return a == b
	case CondNotEqual:
		return a != b
	case CondSignedLess:
		return a < b
	case CondSignedLessOrEqual:
		return a <= b
	case CondSignedGreater:
		return a > b
	case CondSignedGreaterOrEqual:
		return a >= b
	}
	panic(fmt.Sprintf("ir: unknown condition %d", uint8(cc)))
}

// Inst is a single instruction. Which fields are meaningful depends on Op:
//
//   - Brz: Args[0] is the condition, Args[1:] are the target's block arguments.
//   - Jump: Args are the target's block arguments.
//   - Store: Args[0] is the base address, Args[1] the stored word, Imm the byte offset.
//   - Load: Args[0] is the base address, Imm the byte offset.
//   - CallIndirect: Args[0] is the callee address, Args[1:] the call arguments.
//   - CallForeign, DataAddr, FuncAddr: Symbol names the referenced object.
type Inst struct {
	Op     Opcode
	Result Value
	Args   []Value
	Imm    int64
	Cond   IntCC
	Symbol string
	Target Block
}

// IsTerminator reports whether the instruction ends its block.
func (i Inst) IsTerminator() bool {
	return i.Op == OpJump || i.Op == OpReturn
}

// BlockArgs returns the arguments passed to the branch target.
func (i Inst) BlockArgs() []Value {
	switch i.Op {
	case OpBrz:
		return i.Args[1:]
	case OpJump:
		return i.Args
	}
	return nil
}
