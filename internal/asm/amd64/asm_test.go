package amd64

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/tinyrange/lustc/internal/asm"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func TestEncoding(t *testing.T) {
	tests := []struct {
		name string
		frag asm.Fragment
		want string
	}{
		{"store rsp slot", MovToMemory(Mem(Reg64(RSP)).WithDisp(8), Reg64(RAX)), "48 89 44 24 08"},
		{"load rsp slot", MovFromMemory(Reg64(R11), Mem(Reg64(RSP))), "4c 8b 1c 24"},
		{"store r13 base", MovToMemory(Mem(Reg64(R13)), Reg64(RAX)), "49 89 45 00"},
		{"load far disp", MovFromMemory(Reg64(RCX), Mem(Reg64(RAX)).WithDisp(-6)), "48 8b 48 fa"},
		{"store byte", MovToMemory(Mem(Reg64(RAX)), Reg8(RSI)), "40 88 30"},
		{"frame", AddRegImm(Reg64(RSP), -16), "48 83 c4 f0"},
		{"wide imm", AddRegImm(Reg64(RAX), 0x1000), "48 81 c0 00 10 00 00"},
		{"call r11", CallReg(Reg64(R11)), "41 ff d3"},
		{"mov reg", MovReg(Reg64(RCX), Reg64(RAX)), "48 89 c1"},
		{"mov high reg", MovReg(Reg64(RDI), Reg64(R9)), "4c 89 cf"},
		{"imul", ImulRegReg(Reg64(RAX), Reg64(RCX)), "48 0f af c1"},
		{"xor", XorRegReg(Reg64(RDX), Reg64(RDX)), "48 31 d2"},
		{"cmp", CmpRegReg(Reg64(RAX), Reg64(R8)), "4c 39 c0"},
		{"test", TestZero(RAX), "48 85 c0"},
		{"sar", SarRegImm(Reg64(RAX), 2), "48 c1 f8 02"},
		{"shl", ShlRegImm(Reg64(R10), 3), "49 c1 e2 03"},
		{"imm64", MovImmediate(Reg64(RAX), 1), "48 b8 01 00 00 00 00 00 00 00"},
		{"ret", Ret(), "c3"},
		{"exit", Syscall(231, asm.Immediate(0)), "48 bf 00 00 00 00 00 00 00 00 48 b8 e7 00 00 00 00 00 00 00 0f 05"},
		{"syscall reg in place", Syscall(1, asm.Variable(RDI)), "48 b8 01 00 00 00 00 00 00 00 0f 05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := EmitProgram(tt.frag)
			if err != nil {
				t.Fatalf("EmitProgram failed: %v", err)
			}
			if got, want := prog.Bytes(), mustHex(t, tt.want); !bytes.Equal(got, want) {
				t.Fatalf("bytes = % x, want % x", got, want)
			}
		})
	}
}

func TestJumps(t *testing.T) {
	done := asm.Label("done")
	prog, err := EmitProgram(asm.Group{
		TestZero(RDI),
		JumpIfZero(done),
		Jump(done),
		asm.MarkLabel(done),
		Ret(),
	})
	if err != nil {
		t.Fatalf("EmitProgram failed: %v", err)
	}
	want := mustHex(t, "48 85 ff 0f 84 05 00 00 00 e9 00 00 00 00 c3")
	if got := prog.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("bytes = % x, want % x", got, want)
	}
}

func TestUndefinedLabel(t *testing.T) {
	if _, err := EmitProgram(Jump("nowhere")); err == nil {
		t.Fatalf("EmitProgram accepted a jump to an undefined label")
	}
}

func TestDuplicateLabel(t *testing.T) {
	if _, err := EmitProgram(asm.Group{asm.MarkLabel("x"), asm.MarkLabel("x")}); err == nil {
		t.Fatalf("EmitProgram accepted a label defined twice")
	}
}
