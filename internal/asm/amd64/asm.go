// Package amd64 encodes x86-64 instructions into relocatable programs.
package amd64

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tinyrange/lustc/internal/asm"
)

type jumpKind int

const (
	jumpAlways jumpKind = iota
	jumpEqual
	jumpNotEqual
	jumpLess
	jumpLessOrEqual
	jumpGreater
	jumpGreaterOrEqual
	jumpSign
)

// Condition codes for the 0x0F 0x8x near jump forms.
var jumpCodes = map[jumpKind]byte{
	jumpEqual:          0x84,
	jumpNotEqual:       0x85,
	jumpSign:           0x88,
	jumpLess:           0x8C,
	jumpGreaterOrEqual: 0x8D,
	jumpLessOrEqual:    0x8E,
	jumpGreater:        0x8F,
}

type jump struct {
	label asm.Label
	kind  jumpKind
}

func (j *jump) Emit(_ctx asm.Context) error {
	ctx, ok := _ctx.(*Context)
	if !ok {
		return fmt.Errorf("amd64: jump needs an amd64 context, got %T", _ctx)
	}
	if j.kind == jumpAlways {
		ctx.text = append(ctx.text, 0xE9)
	} else {
		code, ok := jumpCodes[j.kind]
		if !ok {
			return fmt.Errorf("amd64: unsupported jump kind %d", j.kind)
		}
		ctx.text = append(ctx.text, 0x0F, code)
	}
	ctx.jumps = append(ctx.jumps, jumpPatch{label: j.label, pos: len(ctx.text)})
	ctx.text = append(ctx.text, 0, 0, 0, 0)
	return nil
}

func Jump(label asm.Label) asm.Fragment {
	return &jump{label: label, kind: jumpAlways}
}

func JumpIfZero(label asm.Label) asm.Fragment {
	return &jump{label: label, kind: jumpEqual}
}

func JumpIfEqual(label asm.Label) asm.Fragment {
	return &jump{label: label, kind: jumpEqual}
}

func JumpIfNotEqual(label asm.Label) asm.Fragment {
	return &jump{label: label, kind: jumpNotEqual}
}

func JumpIfNegative(label asm.Label) asm.Fragment {
	return &jump{label: label, kind: jumpSign}
}

func JumpIfLess(label asm.Label) asm.Fragment {
	return &jump{label: label, kind: jumpLess}
}

func JumpIfLessOrEqual(label asm.Label) asm.Fragment {
	return &jump{label: label, kind: jumpLessOrEqual}
}

func JumpIfGreater(label asm.Label) asm.Fragment {
	return &jump{label: label, kind: jumpGreater}
}

func JumpIfGreaterOrEqual(label asm.Label) asm.Fragment {
	return &jump{label: label, kind: jumpGreaterOrEqual}
}

func Ret() asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		ctx.EmitBytes([]byte{0xC3})
		return nil
	})
}

// Syscall loads number into RAX, moves args into the kernel argument
// registers and executes syscall. Register arguments already sitting in their
// target register are not moved.
func Syscall(number int64, args ...asm.Value) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		argRegs := []asm.Variable{RDI, RSI, RDX, R10, R8, R9}
		if len(args) > len(argRegs) {
			return fmt.Errorf("too many syscall arguments: %d", len(args))
		}
		frags := asm.Group{}
		for idx, arg := range args {
			reg := argRegs[idx]
			switch v := arg.(type) {
			case asm.Immediate:
				frags = append(frags, MovImmediate(Reg64(reg), int64(v)))
			case asm.Variable:
				if v != reg {
					frags = append(frags, MovReg(Reg64(reg), Reg64(v)))
				}
			default:
				return fmt.Errorf("unsupported syscall argument %T", arg)
			}
		}
		frags = append(frags, MovImmediate(Reg64(RAX), number))
		if err := frags.Emit(ctx); err != nil {
			return err
		}
		ctx.EmitBytes([]byte{0x0F, 0x05})
		return nil
	})
}

// Context collects the text of one fragment tree.
type Context struct {
	text   []byte
	labels map[asm.Label]int
	jumps  []jumpPatch
}

type jumpPatch struct {
	label asm.Label
	pos   int
}

func newContext() *Context {
	return &Context{labels: make(map[asm.Label]int)}
}

func (c *Context) GetLabel(label asm.Label) (int, bool) {
	pos, ok := c.labels[label]
	return pos, ok
}

func (c *Context) SetLabel(label asm.Label) {
	c.labels[label] = len(c.text)
}

func (c *Context) EmitBytes(code []byte) {
	c.text = append(c.text, code...)
}

// EmitProgram encodes fragment and resolves its jumps. The result carries no
// relocations; absolute addresses are patched in by the linker.
func EmitProgram(fragment asm.Fragment) (asm.Program, error) {
	ctx := newContext()
	if err := fragment.Emit(ctx); err != nil {
		return asm.Program{}, err
	}
	return ctx.finalize()
}

func (c *Context) finalize() (asm.Program, error) {
	for _, j := range c.jumps {
		target, ok := c.labels[j.label]
		if !ok {
			return asm.Program{}, fmt.Errorf("undefined label %q", j.label)
		}
		rel := target - (j.pos + 4)
		if rel < math.MinInt32 || rel > math.MaxInt32 {
			return asm.Program{}, fmt.Errorf("jump to label %q out of range", j.label)
		}
		binary.LittleEndian.PutUint32(c.text[j.pos:j.pos+4], uint32(int32(rel)))
	}
	return asm.NewProgram(c.text, nil, 0), nil
}
