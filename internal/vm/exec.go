package vm

import (
	"context"
	"fmt"

	"github.com/tinyrange/lustc/internal/ir"
)

type frame struct {
	fn    *ir.Function
	block ir.Block
	regs  []int64
}

func (fr *frame) fault(format string, args ...any) error {
	return &Fault{Function: fr.fn.Name, Block: fr.block, Msg: fmt.Sprintf(format, args...)}
}

// transfer moves control to target, assigning its parameters from args.
// Arguments are read before any parameter is written.
func (fr *frame) transfer(target ir.Block, args []ir.Value) {
	params := fr.fn.Block(target).Params
	vals := make([]int64, len(args))
	for i, a := range args {
		vals[i] = fr.regs[a]
	}
	for i, p := range params {
		fr.regs[p] = vals[i]
	}
	fr.block = target
}

func (m *Machine) call(ctx context.Context, fn *ir.Function, args []int64) (int64, error) {
	params := fn.Params()
	if len(args) != len(params) {
		return 0, &Fault{Function: fn.Name, Msg: fmt.Sprintf("called with %d arguments, want %d", len(args), len(params))}
	}
	if m.depth >= MaxCallDepth {
		return 0, &Fault{Function: fn.Name, Msg: "call depth exceeded"}
	}
	m.depth++
	defer func() { m.depth-- }()

	fr := &frame{fn: fn, block: fn.Entry(), regs: make([]int64, fn.NumValues())}
	for i, p := range params {
		fr.regs[p] = args[i]
	}

	for {
		data := fn.Block(fr.block)
		branched := false
		for _, inst := range data.Insts {
			m.steps++
			if m.opts.MaxSteps > 0 && m.steps > m.opts.MaxSteps {
				return 0, fr.fault("step limit %d exceeded", m.opts.MaxSteps)
			}
			if m.steps%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return 0, fmt.Errorf("vm: %w", err)
				}
			}

			switch inst.Op {
			case ir.OpIconst:
				fr.regs[inst.Result] = inst.Imm
			case ir.OpIadd, ir.OpIsub, ir.OpImul, ir.OpBand, ir.OpBor, ir.OpBxor:
				fr.regs[inst.Result] = binary(inst.Op, fr.regs[inst.Args[0]], fr.regs[inst.Args[1]])
			case ir.OpIaddImm:
				fr.regs[inst.Result] = fr.regs[inst.Args[0]] + inst.Imm
			case ir.OpBandImm:
				fr.regs[inst.Result] = fr.regs[inst.Args[0]] & inst.Imm
			case ir.OpBorImm:
				fr.regs[inst.Result] = fr.regs[inst.Args[0]] | inst.Imm
			case ir.OpIshlImm:
				fr.regs[inst.Result] = fr.regs[inst.Args[0]] << uint(inst.Imm)
			case ir.OpSshrImm:
				fr.regs[inst.Result] = fr.regs[inst.Args[0]] >> uint(inst.Imm)
			case ir.OpIcmp:
				fr.regs[inst.Result] = flag(inst.Cond.Eval(fr.regs[inst.Args[0]], fr.regs[inst.Args[1]]))
			case ir.OpIcmpImm:
				fr.regs[inst.Result] = flag(inst.Cond.Eval(fr.regs[inst.Args[0]], inst.Imm))
			case ir.OpDataAddr:
				addr, ok := m.dataAddrs[inst.Symbol]
				if !ok {
					return 0, fr.fault("unknown data symbol %q", inst.Symbol)
				}
				fr.regs[inst.Result] = addr
			case ir.OpFuncAddr:
				addr, ok := m.FuncAddr(inst.Symbol)
				if !ok {
					return 0, fr.fault("unknown function %q", inst.Symbol)
				}
				fr.regs[inst.Result] = addr
			case ir.OpAlloc:
				addr, err := m.alloc(inst.Imm)
				if err != nil {
					return 0, fr.fault("%v", err)
				}
				fr.regs[inst.Result] = addr
			case ir.OpLoad:
				idx, err := m.wordIndex(fr.regs[inst.Args[0]] + inst.Imm)
				if err != nil {
					return 0, fr.fault("load: %v", err)
				}
				fr.regs[inst.Result] = m.mem[idx]
			case ir.OpStore:
				idx, err := m.wordIndex(fr.regs[inst.Args[0]] + inst.Imm)
				if err != nil {
					return 0, fr.fault("store: %v", err)
				}
				m.mem[idx] = fr.regs[inst.Args[1]]
			case ir.OpCallIndirect:
				target := fr.regs[inst.Args[0]]
				callee, ok := m.funcAt(target)
				if !ok {
					return 0, fr.fault("call_indirect through non-function address 0x%x", target)
				}
				result, err := m.call(ctx, callee, fr.values(inst.Args[1:]))
				if err != nil {
					return 0, err
				}
				fr.regs[inst.Result] = result
			case ir.OpCallForeign:
				prim, ok := m.prims[inst.Symbol]
				if !ok {
					return 0, fr.fault("no primitive for foreign symbol %q", inst.Symbol)
				}
				result, err := prim(m, fr.values(inst.Args))
				if err != nil {
					return 0, err
				}
				fr.regs[inst.Result] = result
			case ir.OpBrz:
				if fr.regs[inst.Args[0]] == 0 {
					fr.transfer(inst.Target, inst.BlockArgs())
					branched = true
				}
			case ir.OpJump:
				fr.transfer(inst.Target, inst.BlockArgs())
				branched = true
			case ir.OpReturn:
				return fr.regs[inst.Args[0]], nil
			default:
				return 0, fr.fault("unsupported instruction %s", inst.Op)
			}
			if branched {
				break
			}
		}
		if !branched {
			return 0, fr.fault("fell off the end of the block")
		}
	}
}

func (fr *frame) values(args []ir.Value) []int64 {
	out := make([]int64, len(args))
	for i, a := range args {
		out[i] = fr.regs[a]
	}
	return out
}

func binary(op ir.Opcode, a, b int64) int64 {
	switch op {
	case ir.OpIadd:
		return a + b
	case ir.OpIsub:
		return a - b
	case ir.OpImul:
		return a * b
	case ir.OpBand:
		return a & b
	case ir.OpBor:
		return a | b
	case ir.OpBxor:
		return a ^ b
	}
	panic(fmt.Sprintf("vm: %s is not a binary op", op))
}

func flag(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
