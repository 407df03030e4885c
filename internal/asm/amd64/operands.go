package amd64

import (
	"fmt"

	"github.com/tinyrange/lustc/internal/asm"
)

type operandSize uint8

const (
	size8  operandSize = 1
	size32 operandSize = 4
	size64 operandSize = 8
)

// Reg is a general purpose register used at a fixed width.
type Reg struct {
	id   asm.Variable
	size operandSize
}

// Reg64 uses the full register.
func Reg64(id asm.Variable) Reg { return Reg{id: id, size: size64} }

// Reg32 uses the low 32 bits. Writes zero the upper half.
func Reg32(id asm.Variable) Reg { return Reg{id: id, size: size32} }

// Reg8 uses the low byte.
func Reg8(id asm.Variable) Reg { return Reg{id: id, size: size8} }

// Memory is a [base+disp] effective address.
type Memory struct {
	base Reg
	disp int32
}

// Mem addresses [base].
func Mem(base Reg) Memory {
	return Memory{base: base}
}

// WithDisp returns a copy of the operand with its displacement replaced.
func (m Memory) WithDisp(disp int32) Memory {
	m.disp = disp
	return m
}

func (m Memory) validate() error {
	if m.base.size != size64 {
		return fmt.Errorf("base register must be 64-bit")
	}
	return nil
}

type fragmentFunc func(asm.Context) error

func (f fragmentFunc) Emit(ctx asm.Context) error { return f(ctx) }
