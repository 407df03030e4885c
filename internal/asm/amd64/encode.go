package amd64

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tinyrange/lustc/internal/asm"
)

const (
	RAX asm.Variable = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RSP
	RBP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

type registerCode struct {
	code byte
	high bool
	// needsRex is set for registers whose low byte is only reachable with a
	// REX prefix.
	needsRex bool
}

func regInfo(v asm.Variable) (registerCode, error) {
	switch v {
	case RAX:
		return registerCode{code: 0}, nil
	case RCX:
		return registerCode{code: 1}, nil
	case RDX:
		return registerCode{code: 2}, nil
	case RBX:
		return registerCode{code: 3}, nil
	case RSP:
		return registerCode{code: 4, needsRex: true}, nil
	case RBP:
		return registerCode{code: 5, needsRex: true}, nil
	case RSI:
		return registerCode{code: 6, needsRex: true}, nil
	case RDI:
		return registerCode{code: 7, needsRex: true}, nil
	}
	if v >= R8 && v <= R15 {
		return registerCode{code: byte(v - R8), high: true, needsRex: true}, nil
	}
	return registerCode{}, fmt.Errorf("unsupported register %d", v)
}

type rexState struct {
	w, r, b bool
	force   bool
}

func (r rexState) prefix() byte {
	if !r.w && !r.r && !r.b && !r.force {
		return 0
	}
	p := byte(0x40)
	if r.w {
		p |= 0x08
	}
	if r.r {
		p |= 0x04
	}
	if r.b {
		p |= 0x01
	}
	return p
}

func (r rexState) appendTo(out []byte) []byte {
	if p := r.prefix(); p != 0 {
		out = append(out, p)
	}
	return out
}

type memEncoding struct {
	modrm byte
	sib   []byte
	disp  []byte
	rex   rexState
}

func encodeMemoryOperand(mem Memory) (memEncoding, error) {
	if err := mem.validate(); err != nil {
		return memEncoding{}, err
	}
	base, err := regInfo(mem.base.id)
	if err != nil {
		return memEncoding{}, err
	}

	enc := memEncoding{rex: rexState{b: base.high}}
	switch disp := mem.disp; {
	// [rbp] and [r13] have no zero-displacement form.
	case disp == 0 && base.code != 5:
		enc.modrm = 0x00
	case disp >= math.MinInt8 && disp <= math.MaxInt8:
		enc.modrm = 0x40
		enc.disp = []byte{byte(disp)}
	default:
		enc.modrm = 0x80
		enc.disp = binary.LittleEndian.AppendUint32(nil, uint32(disp))
	}
	// rsp and r12 as a base need a SIB byte with no index.
	if base.code == 4 {
		enc.sib = []byte{0x24}
	}
	enc.modrm |= base.code
	return enc, nil
}

func (m memEncoding) appendOperand(out []byte, reg byte) []byte {
	out = append(out, m.modrm|reg<<3)
	out = append(out, m.sib...)
	return append(out, m.disp...)
}

func encodeMovRegImm(reg Reg, value int64) ([]byte, error) {
	info, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}
	rex := rexState{
		w:     reg.size == size64,
		b:     info.high,
		force: info.needsRex && reg.size == size8,
	}
	out := rex.appendTo(make([]byte, 0, 10))
	switch reg.size {
	case size64:
		out = append(out, 0xB8+info.code)
		return binary.LittleEndian.AppendUint64(out, uint64(value)), nil
	case size32:
		out = append(out, 0xB8+info.code)
		return binary.LittleEndian.AppendUint32(out, uint32(value)), nil
	case size8:
		return append(out, 0xB0+info.code, byte(value)), nil
	default:
		return nil, fmt.Errorf("unsupported register width %d", reg.size)
	}
}

// encodeModRMRegReg encodes "opcode reg, rm" with both operands registers.
func encodeModRMRegReg(opcode []byte, reg, rm Reg) ([]byte, error) {
	if reg.size != rm.size {
		return nil, fmt.Errorf("mismatched register widths: %d vs %d", reg.size, rm.size)
	}
	regCode, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}
	rmCode, err := regInfo(rm.id)
	if err != nil {
		return nil, err
	}
	rex := rexState{
		w:     rm.size == size64,
		r:     regCode.high,
		b:     rmCode.high,
		force: rm.size == size8 && (regCode.needsRex || rmCode.needsRex),
	}
	out := rex.appendTo(make([]byte, 0, 4))
	out = append(out, opcode...)
	return append(out, 0xC0|regCode.code<<3|rmCode.code), nil
}

func encodeMovRegReg(dst, src Reg) ([]byte, error) {
	return encodeModRMRegReg([]byte{chooseOpcode(dst.size, 0x89, 0x88)}, src, dst)
}

func encodeMovMemReg(mem Memory, src Reg) ([]byte, error) {
	return encodeModRMMem(chooseOpcode(src.size, 0x89, 0x88), src, mem)
}

func encodeMovRegMem(dst Reg, mem Memory) ([]byte, error) {
	return encodeModRMMem(chooseOpcode(dst.size, 0x8B, 0x8A), dst, mem)
}

func encodeModRMMem(opcode byte, reg Reg, mem Memory) ([]byte, error) {
	info, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}
	enc, err := encodeMemoryOperand(mem)
	if err != nil {
		return nil, err
	}
	rex := enc.rex
	rex.r = info.high
	rex.w = reg.size == size64
	rex.force = reg.size == size8 && info.needsRex
	out := rex.appendTo(make([]byte, 0, 8))
	out = append(out, opcode)
	return enc.appendOperand(out, info.code), nil
}

func encodeCallReg(target Reg) ([]byte, error) {
	if target.size != size64 {
		return nil, fmt.Errorf("call target must be a 64-bit register")
	}
	info, err := regInfo(target.id)
	if err != nil {
		return nil, err
	}
	out := rexState{b: info.high}.appendTo(make([]byte, 0, 3))
	return append(out, 0xFF, 0xD0|info.code), nil
}

// encodeALURegImm encodes the 0x81/0x83 group; op selects the operation.
func encodeALURegImm(op byte, reg Reg, value int32) ([]byte, error) {
	if reg.size == size8 {
		return nil, fmt.Errorf("8-bit immediate arithmetic is not supported")
	}
	info, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}
	out := rexState{w: reg.size == size64, b: info.high}.appendTo(make([]byte, 0, 8))
	if value >= math.MinInt8 && value <= math.MaxInt8 {
		return append(out, 0x83, 0xC0|op<<3|info.code, byte(value)), nil
	}
	out = append(out, 0x81, 0xC0|op<<3|info.code)
	return binary.LittleEndian.AppendUint32(out, uint32(value)), nil
}

func encodeShiftRegImm(reg Reg, count uint8, subcode byte) ([]byte, error) {
	if count == 0 {
		return nil, fmt.Errorf("shift count must be non-zero")
	}
	if count > 63 {
		return nil, fmt.Errorf("shift count %d out of range", count)
	}
	info, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}
	out := rexState{w: reg.size == size64, b: info.high}.appendTo(make([]byte, 0, 4))
	return append(out, 0xC1, 0xC0|subcode<<3|info.code, count), nil
}

func chooseOpcode(size operandSize, wide, narrow byte) byte {
	if size == size8 {
		return narrow
	}
	return wide
}

func encodeAddRegReg(dst, src Reg) ([]byte, error) {
	return encodeModRMRegReg([]byte{0x01}, src, dst)
}

func encodeSubRegReg(dst, src Reg) ([]byte, error) {
	return encodeModRMRegReg([]byte{0x29}, src, dst)
}

func encodeAndRegReg(dst, src Reg) ([]byte, error) {
	return encodeModRMRegReg([]byte{0x21}, src, dst)
}

func encodeOrRegReg(dst, src Reg) ([]byte, error) {
	return encodeModRMRegReg([]byte{0x09}, src, dst)
}

func encodeXorRegReg(dst, src Reg) ([]byte, error) {
	return encodeModRMRegReg([]byte{0x31}, src, dst)
}

func encodeCmpRegReg(dst, src Reg) ([]byte, error) {
	return encodeModRMRegReg([]byte{0x39}, src, dst)
}

func encodeTestRegReg(dst, src Reg) ([]byte, error) {
	return encodeModRMRegReg([]byte{chooseOpcode(dst.size, 0x85, 0x84)}, src, dst)
}

// imul puts the destination in the reg field, unlike the ALU group.
func encodeImulRegReg(dst, src Reg) ([]byte, error) {
	return encodeModRMRegReg([]byte{0x0F, 0xAF}, dst, src)
}

func encodeAddRegImm(reg Reg, value int32) ([]byte, error) { return encodeALURegImm(0, reg, value) }
func encodeOrRegImm(reg Reg, value int32) ([]byte, error)  { return encodeALURegImm(1, reg, value) }
func encodeAndRegImm(reg Reg, value int32) ([]byte, error) { return encodeALURegImm(4, reg, value) }
func encodeCmpRegImm(reg Reg, value int32) ([]byte, error) { return encodeALURegImm(7, reg, value) }

func encodeShlRegImm(reg Reg, count uint8) ([]byte, error) { return encodeShiftRegImm(reg, count, 4) }
func encodeShrRegImm(reg Reg, count uint8) ([]byte, error) { return encodeShiftRegImm(reg, count, 5) }
func encodeSarRegImm(reg Reg, count uint8) ([]byte, error) { return encodeShiftRegImm(reg, count, 7) }
