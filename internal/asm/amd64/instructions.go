package amd64

import (
	"github.com/tinyrange/lustc/internal/asm"
)

func encoded(encode func() ([]byte, error)) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		bytes, err := encode()
		if err != nil {
			return err
		}
		ctx.EmitBytes(bytes)
		return nil
	})
}

// MovImmediate always encodes the full immediate for 64-bit registers, so
// the linker can find and patch placeholder addresses.
func MovImmediate(dst Reg, value int64) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovRegImm(dst, value) })
}

func MovReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovRegReg(dst, src) })
}

func MovToMemory(mem Memory, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovMemReg(mem, src) })
}

func MovFromMemory(dst Reg, mem Memory) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeMovRegMem(dst, mem) })
}

func CallReg(target Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeCallReg(target) })
}

func AddRegImm(reg Reg, value int32) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeAddRegImm(reg, value) })
}

func OrRegImm(reg Reg, value int32) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeOrRegImm(reg, value) })
}

func AndRegImm(reg Reg, value int32) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeAndRegImm(reg, value) })
}

func CmpRegImm(reg Reg, value int32) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeCmpRegImm(reg, value) })
}

func AddRegReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeAddRegReg(dst, src) })
}

func SubRegReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeSubRegReg(dst, src) })
}

func ImulRegReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeImulRegReg(dst, src) })
}

func AndRegReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeAndRegReg(dst, src) })
}

func OrRegReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeOrRegReg(dst, src) })
}

func XorRegReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeXorRegReg(dst, src) })
}

func CmpRegReg(dst, src Reg) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeCmpRegReg(dst, src) })
}

// TestZero sets the flags from reg AND reg.
func TestZero(reg asm.Variable) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeTestRegReg(Reg64(reg), Reg64(reg)) })
}

func ShlRegImm(reg Reg, count uint8) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeShlRegImm(reg, count) })
}

func ShrRegImm(reg Reg, count uint8) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeShrRegImm(reg, count) })
}

func SarRegImm(reg Reg, count uint8) asm.Fragment {
	return encoded(func() ([]byte, error) { return encodeSarRegImm(reg, count) })
}
