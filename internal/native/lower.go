package native

import (
	"fmt"

	"github.com/tinyrange/lustc/internal/foreign"
	"github.com/tinyrange/lustc/internal/ir"
	"github.com/tinyrange/lustc/internal/value"
)

// Names of the methods and globals the lowering adds. Compiled functions
// never contain a dot, so these cannot collide with them.
const (
	StartMethod = "rt.start"
	PutsMethod  = "rt.puts"

	heapGlobal     = "rt.heap"
	heapNextGlobal = "rt.heap_next"
	scratchGlobal  = "rt.scratch"
	dataPrefix     = "data."
)

// HeapExhaustedExit is the exit code of a program that runs out of heap.
const HeapExhaustedExit = 3

const (
	stdoutFD      = 1
	wordBytes     = 8
	maxCallParams = 6
)

// Lower translates prog into a fragment program. Every block becomes a
// label, block parameters become variables assigned on each incoming edge,
// and the foreign calls puts and exit become write and exit_group system
// calls. The entrypoint of the result is StartMethod, which sets up the heap
// and the data section before calling prog's entrypoint.
func Lower(prog *ir.Program, heapWords int) (*Program, error) {
	if prog == nil {
		return nil, fmt.Errorf("native: program must be non-nil")
	}
	if heapWords <= 0 {
		return nil, fmt.Errorf("native: heap must hold at least one word, got %d", heapWords)
	}
	entry, ok := prog.Functions[prog.Entrypoint]
	if !ok {
		return nil, fmt.Errorf("native: entrypoint function %q not found", prog.Entrypoint)
	}
	if len(entry.Params()) != 0 {
		return nil, fmt.Errorf("native: entrypoint %q takes %d parameters, want 0", prog.Entrypoint, len(entry.Params()))
	}

	l := &lowering{prog: prog, heapBytes: int64(heapWords) * wordBytes}
	out := &Program{
		Entrypoint: StartMethod,
		Methods:    make(map[string]Method, len(prog.Functions)+2),
		Globals: map[string]GlobalConfig{
			heapGlobal:     {Size: int(l.heapBytes), Align: 16},
			heapNextGlobal: {},
			scratchGlobal:  {},
		},
	}
	for _, d := range prog.Data {
		out.Globals[dataPrefix+d.Name] = GlobalConfig{Size: len(d.Words) * wordBytes}
	}
	out.Methods[StartMethod] = l.start()
	out.Methods[PutsMethod] = putsMethod()

	for _, name := range prog.FunctionNames() {
		method, err := l.function(prog.Functions[name])
		if err != nil {
			return nil, err
		}
		out.Methods[name] = method
	}
	return out, nil
}

type lowering struct {
	prog      *ir.Program
	heapBytes int64
}

func (l *lowering) start() Method {
	m := Method{AssignGlobal(Global(heapNextGlobal), Global(heapGlobal).Pointer())}
	for _, d := range l.prog.Data {
		g := Global(dataPrefix + d.Name)
		for i, w := range d.Words {
			if w == 0 {
				continue
			}
			m = append(m, Assign(g.MemWithDisp(Int64(i*wordBytes)), Int64(w)))
		}
	}
	return append(m,
		CallMethod(l.prog.Entrypoint, "result"),
		Return(Var("result")),
	)
}

// putsMethod writes the immediate string at its argument one character at a
// time followed by a newline, and returns the byte count as a fixnum.
func putsMethod() Method {
	scratch := Global(scratchGlobal)
	writeScratch := Block{
		Assign(Var("buf"), scratch.Pointer()),
		Syscall(SysWrite, Int64(stdoutFD), Var("buf"), Int64(1)),
	}
	return Method{
		DeclareParam("s"),
		Assign(Var("start"), Op(OpAnd, Var("s"), Int64(^int64(value.HeapTagMask)))),
		Assign(Var("p"), Var("start")),
		DeclareLabel("loop", Block{
			Assign(Var("w"), Var("p").Mem()),
			If(IsZero(Var("w")), Goto(Label("done"))),
			AssignGlobal(scratch, Op(OpShr, Var("w"), Int64(value.CharShift))),
			writeScratch,
			Assign(Var("p"), Op(OpAdd, Var("p"), Int64(wordBytes))),
			Goto(Label("loop")),
		}),
		DeclareLabel("done", Block{
			AssignGlobal(scratch, Int64('\n')),
			writeScratch,
			// (chars+1) as a fixnum is (p-start)/8+1 shifted left by two.
			Assign(Var("n"), Op(OpSub, Var("p"), Var("start"))),
			Assign(Var("n"), Op(OpShr, Var("n"), Int64(1))),
			Return(Op(OpAdd, Var("n"), Int64(value.Fixnum(1)))),
		}),
	}
}

func valueVar(v ir.Value) Var {
	return Var(v.String())
}

func blockLabel(b ir.Block) Label {
	return Label(b.String())
}

// edgeVar holds an incoming block argument while the parameters of the
// target are being assigned.
func edgeVar(param ir.Value) Var {
	return Var(param.String() + ".in")
}

func (l *lowering) function(fn *ir.Function) (Method, error) {
	if err := ir.Verify(fn); err != nil {
		return nil, err
	}
	if n := len(fn.Params()); n > maxCallParams {
		return nil, fmt.Errorf("native: %s takes %d parameters, at most %d fit in registers", fn.Name, n, maxCallParams)
	}

	m := Method{}
	for _, p := range fn.Params() {
		m = append(m, DeclareParam(valueVar(p)))
	}
	for i, data := range fn.Blocks {
		blk := ir.Block(i)
		body := Block{}
		for _, inst := range data.Insts {
			frag, err := l.inst(fn, inst)
			if err != nil {
				return nil, fmt.Errorf("native: %s: %s: %w", fn.Name, blk, err)
			}
			body = append(body, frag)
		}
		m = append(m, DeclareLabel(blockLabel(blk), body))
	}
	return m, nil
}

// edge assigns target's parameters from args and jumps to it.
func edge(fn *ir.Function, target ir.Block, args []ir.Value) Fragment {
	params := fn.Block(target).Params
	b := Block{}
	for i, a := range args {
		b = append(b, Assign(edgeVar(params[i]), valueVar(a)))
	}
	for _, p := range params {
		b = append(b, Assign(valueVar(p), edgeVar(p)))
	}
	return append(b, Goto(blockLabel(target)))
}

var binaryOps = map[ir.Opcode]OpKind{
	ir.OpIadd: OpAdd,
	ir.OpIsub: OpSub,
	ir.OpImul: OpMul,
	ir.OpBand: OpAnd,
	ir.OpBor:  OpOr,
	ir.OpBxor: OpXor,

	ir.OpIaddImm: OpAdd,
	ir.OpBandImm: OpAnd,
	ir.OpBorImm:  OpOr,
	ir.OpIshlImm: OpShl,
	ir.OpSshrImm: OpSar,
}

var compareKinds = map[ir.IntCC]CompareKind{
	ir.CondEqual:                CompareEqual,
	ir.CondNotEqual:             CompareNotEqual,
	ir.CondSignedLess:           CompareLess,
	ir.CondSignedLessOrEqual:    CompareLessOrEqual,
	ir.CondSignedGreater:        CompareGreater,
	ir.CondSignedGreaterOrEqual: CompareGreaterOrEqual,
}

func (l *lowering) inst(fn *ir.Function, inst ir.Inst) (Fragment, error) {
	dst := valueVar(inst.Result)
	arg := func(i int) Var { return valueVar(inst.Args[i]) }

	switch inst.Op {
	case ir.OpIconst:
		return Assign(dst, Int64(inst.Imm)), nil
	case ir.OpIadd, ir.OpIsub, ir.OpImul, ir.OpBand, ir.OpBor, ir.OpBxor:
		return Assign(dst, Op(binaryOps[inst.Op], arg(0), arg(1))), nil
	case ir.OpIaddImm, ir.OpBandImm, ir.OpBorImm, ir.OpIshlImm, ir.OpSshrImm:
		return Assign(dst, Op(binaryOps[inst.Op], arg(0), Int64(inst.Imm))), nil
	case ir.OpIcmp, ir.OpIcmpImm:
		kind, ok := compareKinds[inst.Cond]
		if !ok {
			return nil, fmt.Errorf("unknown condition %s", inst.Cond)
		}
		var right Fragment = Int64(inst.Imm)
		if inst.Op == ir.OpIcmp {
			right = arg(1)
		}
		return Block{
			Assign(dst, Int64(0)),
			If(Compare(kind, arg(0), right), Assign(dst, Int64(1))),
		}, nil
	case ir.OpDataAddr:
		if _, ok := l.prog.LookupData(inst.Symbol); !ok {
			return nil, fmt.Errorf("unknown data symbol %q", inst.Symbol)
		}
		return Assign(dst, Global(dataPrefix+inst.Symbol).Pointer()), nil
	case ir.OpFuncAddr:
		if _, ok := l.prog.Functions[inst.Symbol]; !ok {
			return nil, fmt.Errorf("unknown function %q", inst.Symbol)
		}
		return Assign(dst, MethodPointer(inst.Symbol)), nil
	case ir.OpAlloc:
		return l.alloc(dst, inst.Imm)
	case ir.OpLoad:
		return Assign(dst, arg(0).MemWithDisp(Int64(inst.Imm))), nil
	case ir.OpStore:
		return Assign(arg(0).MemWithDisp(Int64(inst.Imm)), arg(1)), nil
	case ir.OpCallIndirect:
		if len(inst.Args)-1 > maxCallParams {
			return nil, fmt.Errorf("call passes %d arguments, at most %d fit in registers", len(inst.Args)-1, maxCallParams)
		}
		args := make([]any, 0, len(inst.Args)-1)
		for _, a := range inst.Args[1:] {
			args = append(args, valueVar(a))
		}
		return Call(arg(0), dst, args...), nil
	case ir.OpCallForeign:
		return foreignCall(dst, inst)
	case ir.OpBrz:
		return If(IsZero(arg(0)), edge(fn, inst.Target, inst.BlockArgs())), nil
	case ir.OpJump:
		return edge(fn, inst.Target, inst.BlockArgs()), nil
	case ir.OpReturn:
		return Return(arg(0)), nil
	default:
		return nil, fmt.Errorf("unsupported instruction %s", inst.Op)
	}
}

// alloc bumps the heap pointer and exits with HeapExhaustedExit when the
// heap is full.
func (l *lowering) alloc(dst Var, words int64) (Fragment, error) {
	if words <= 0 {
		return nil, fmt.Errorf("alloc of %d words", words)
	}
	next := Global(heapNextGlobal)
	return Block{
		Assign(dst, next.Mem()),
		Assign(Var("alloc.end"), Op(OpAdd, dst, Int64(words*wordBytes))),
		Assign(Var("alloc.limit"), Op(OpAdd, Global(heapGlobal).Pointer(), Int64(l.heapBytes))),
		If(IsGreaterThan(Var("alloc.end"), Var("alloc.limit")),
			Syscall(SysExitGroup, Int64(HeapExhaustedExit))),
		AssignGlobal(next, Var("alloc.end")),
	}, nil
}

func foreignCall(dst Var, inst ir.Inst) (Fragment, error) {
	switch inst.Symbol {
	case foreign.Puts.Name:
		if len(inst.Args) != foreign.Puts.Params {
			return nil, fmt.Errorf("puts takes %d arguments, got %d", foreign.Puts.Params, len(inst.Args))
		}
		return CallMethod(PutsMethod, dst, valueVar(inst.Args[0])), nil
	case foreign.Exit.Name:
		if len(inst.Args) != foreign.Exit.Params {
			return nil, fmt.Errorf("exit takes %d arguments, got %d", foreign.Exit.Params, len(inst.Args))
		}
		code := Var("exit.code")
		return Block{
			Assign(code, Op(OpSar, valueVar(inst.Args[0]), Int64(value.FixnumShift))),
			Syscall(SysExitGroup, code),
			Assign(dst, Int64(0)),
		}, nil
	default:
		return nil, fmt.Errorf("no native lowering for foreign symbol %q", inst.Symbol)
	}
}
