// Package asm holds the architecture neutral pieces of the machine code
// emitters: fragments, labels and relocatable programs.
package asm

import (
	"encoding/binary"
	"fmt"
)

type Value interface{}

type Immediate int64

// Variable identifies a register inside an architecture package.
type Variable int

var (
	_ Value = Immediate(0)
	_ Value = Variable(0)
)

// Context receives emitted bytes and tracks label positions.
type Context interface {
	EmitBytes(data []byte)

	GetLabel(label Label) (int, bool)
	SetLabel(label Label)
}

type Fragment interface {
	Emit(ctx Context) error
}

type Group []Fragment

var _ Fragment = Group{}

func (g Group) Emit(ctx Context) error {
	for _, frag := range g {
		if err := frag.Emit(ctx); err != nil {
			return err
		}
	}
	return nil
}

type Label string

type labelDef struct {
	label Label
}

func MarkLabel(label Label) Fragment {
	return &labelDef{label: label}
}

func (l *labelDef) Emit(ctx Context) error {
	if _, exists := ctx.GetLabel(l.label); exists {
		return fmt.Errorf("label %q already defined", l.label)
	}
	ctx.SetLabel(l.label)
	return nil
}

// Program is position independent machine code. Every offset in
// relocations holds a little endian word that must have the load address
// added before the code runs.
type Program struct {
	code        []byte
	relocations []int
	bssSize     int
}

func NewProgram(code []byte, relocations []int, bss int) Program {
	return Program{
		code:        append([]byte(nil), code...),
		relocations: append([]int(nil), relocations...),
		bssSize:     bss,
	}
}

func (p Program) Bytes() []byte {
	return append([]byte(nil), p.code...)
}

func (p Program) Relocations() []int {
	return append([]int(nil), p.relocations...)
}

func (p Program) BSSSize() int {
	return p.bssSize
}

// RelocatedCopy returns the code with every relocation shifted by base.
func (p Program) RelocatedCopy(base uintptr) []byte {
	out := append([]byte(nil), p.code...)
	for _, off := range p.relocations {
		if off < 0 || off+8 > len(out) {
			continue
		}
		val := binary.LittleEndian.Uint64(out[off:])
		binary.LittleEndian.PutUint64(out[off:], val+uint64(base))
	}
	return out
}

func (p Program) Clone() Program {
	return NewProgram(p.code, p.relocations, p.bssSize)
}
