package ir

import (
	"fmt"
	"strings"
)

func joinValues(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func joinBlocks(bs []Block) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = b.String()
	}
	return strings.Join(parts, ", ")
}

func (i Inst) String() string {
	var body string
	switch i.Op {
	case OpIconst:
		body = fmt.Sprintf("%s %d", i.Op, i.Imm)
	case OpIaddImm, OpBandImm, OpBorImm, OpIshlImm, OpSshrImm:
		body = fmt.Sprintf("%s %s, %d", i.Op, i.Args[0], i.Imm)
	case OpIcmp:
		body = fmt.Sprintf("%s %s %s", i.Op, i.Cond, joinValues(i.Args))
	case OpIcmpImm:
		body = fmt.Sprintf("%s %s %s, %d", i.Op, i.Cond, i.Args[0], i.Imm)
	case OpDataAddr, OpFuncAddr:
		body = fmt.Sprintf("%s %s", i.Op, i.Symbol)
	case OpAlloc:
		body = fmt.Sprintf("%s %d", i.Op, i.Imm)
	case OpLoad:
		body = fmt.Sprintf("%s %s%+d", i.Op, i.Args[0], i.Imm)
	case OpStore:
		body = fmt.Sprintf("%s %s, %s%+d", i.Op, i.Args[1], i.Args[0], i.Imm)
	case OpCallForeign:
		body = fmt.Sprintf("%s %s(%s)", i.Op, i.Symbol, joinValues(i.Args))
	case OpCallIndirect:
		body = fmt.Sprintf("%s %s(%s)", i.Op, i.Args[0], joinValues(i.Args[1:]))
	case OpBrz:
		body = fmt.Sprintf("%s %s, %s", i.Op, i.Args[0], i.Target)
		if args := i.BlockArgs(); len(args) > 0 {
			body += "(" + joinValues(args) + ")"
		}
	case OpJump:
		body = fmt.Sprintf("%s %s", i.Op, i.Target)
		if len(i.Args) > 0 {
			body += "(" + joinValues(i.Args) + ")"
		}
	default:
		body = fmt.Sprintf("%s %s", i.Op, joinValues(i.Args))
	}
	if i.Result != NoValue {
		return fmt.Sprintf("%s = %s", i.Result, body)
	}
	return body
}

// String renders the function in a stable textual form.
func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function %s(%s) {\n", f.Name, joinValues(f.Params()))
	for i, data := range f.Blocks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s", Block(i))
		if len(data.Params) > 0 {
			fmt.Fprintf(&sb, "(%s)", joinValues(data.Params))
		}
		sb.WriteByte(':')
		if len(data.Preds) > 0 {
			fmt.Fprintf(&sb, " ; preds: %s", joinBlocks(data.Preds))
		}
		if !data.Sealed {
			sb.WriteString(" ; unsealed")
		}
		sb.WriteByte('\n')
		for _, inst := range data.Insts {
			fmt.Fprintf(&sb, "    %s\n", inst)
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

// String renders the data section followed by every function.
func (p *Program) String() string {
	var sb strings.Builder
	for _, d := range p.Data {
		fmt.Fprintf(&sb, "data %s [%d words]\n", d.Name, len(d.Words))
	}
	if len(p.Data) > 0 {
		sb.WriteByte('\n')
	}
	for i, name := range p.FunctionNames() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(p.Functions[name].String())
	}
	return sb.String()
}
