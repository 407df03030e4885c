//go:build linux && amd64

package amd64

import (
	"bytes"
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"

	amd64asm "github.com/tinyrange/lustc/internal/asm/amd64"
	"github.com/tinyrange/lustc/internal/native"
)

func runMethod(t *testing.T, method native.Method, args ...uintptr) uintptr {
	t.Helper()

	frag, err := Compile(method)
	if err != nil {
		t.Fatalf("compile method: %v", err)
	}
	fn, release, err := amd64asm.Compile(frag)
	if err != nil {
		t.Fatalf("map method: %v", err)
	}
	defer release()
	return fn.Call(args...)
}

func TestCompileMethodReturnsParam(t *testing.T) {
	method := native.Method{
		native.DeclareParam("value"),
		native.Return(native.Var("value")),
	}
	if got := runMethod(t, method, 42); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestCompileMethodIfElse(t *testing.T) {
	method := native.Method{
		native.DeclareParam("value"),
		native.If(
			native.IsNegative(native.Var("value")),
			native.Block{native.Return(native.Int64(-1))},
			native.Block{native.Return(native.Int64(1))},
		),
	}
	if got := int64(runMethod(t, method, uintptr(^uint64(4)))); got != -1 {
		t.Fatalf("negative branch: expected -1, got %d", got)
	}
	if got := int64(runMethod(t, method, 7)); got != 1 {
		t.Fatalf("positive branch: expected 1, got %d", got)
	}
}

func TestCompileMethodLoop(t *testing.T) {
	// Sums 1..n.
	method := native.Method{
		native.DeclareParam("n"),
		native.Assign(native.Var("sum"), native.Int64(0)),
		native.DeclareLabel("loop", native.Block{
			native.If(native.IsZero(native.Var("n")), native.Goto(native.Label("done"))),
			native.Assign(native.Var("sum"), native.Op(native.OpAdd, native.Var("sum"), native.Var("n"))),
			native.Assign(native.Var("n"), native.Op(native.OpAdd, native.Var("n"), native.Int64(-1))),
			native.Goto(native.Label("loop")),
		}),
		native.DeclareLabel("done", native.Block{
			native.Return(native.Var("sum")),
		}),
	}
	if got := runMethod(t, method, 10); got != 55 {
		t.Fatalf("sum = %d, want 55", got)
	}
}

func TestCompileMethodMemoryAccess(t *testing.T) {
	method := native.Method{
		native.DeclareParam("p"),
		native.Assign(native.Var("p").MemWithDisp(native.Int64(8)), native.Op(native.OpMul, native.Var("p").Mem(), native.Int64(3))),
		native.Return(native.Var("p").MemWithDisp(native.Int64(8))),
	}
	words := []uint64{7, 0}
	got := runMethod(t, method, uintptr(unsafe.Pointer(&words[0])))
	if got != 21 || words[1] != 21 {
		t.Fatalf("got %d and stored %d, want 21", got, words[1])
	}
}

func TestSyscallMultipleVarArguments(t *testing.T) {
	method := native.Method{
		native.DeclareParam("fd"),
		native.DeclareParam("buf"),
		native.DeclareParam("count"),
		native.Syscall(native.SysWrite, native.Var("fd"), native.Var("buf"), native.Var("count")),
		native.Return(native.Int64(0)),
	}

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	message := []byte("register-ok")
	runMethod(t, method, uintptr(fds[1]), uintptr(unsafe.Pointer(&message[0])), uintptr(len(message)))

	buf := make([]byte, len(message))
	n, err := unix.Read(fds[0], buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf[:n], message) {
		t.Fatalf("read data %q, want %q", buf[:n], message)
	}
}

func TestProgramCallsWithArguments(t *testing.T) {
	prog := &native.Program{
		Entrypoint: "main",
		Methods: map[string]native.Method{
			"main": {
				native.Assign(native.Var("a"), native.Int64(6)),
				native.CallMethod("mul", "r", native.Var("a"), native.Int64(7)),
				native.Return(native.Var("r")),
			},
			"mul": {
				native.DeclareParam("x"),
				native.DeclareParam("y"),
				native.Return(native.Op(native.OpMul, native.Var("x"), native.Var("y"))),
			},
		},
	}
	asmProg, err := BuildStandaloneProgram(prog)
	if err != nil {
		t.Fatalf("build program: %v", err)
	}
	fn, release, err := amd64asm.PrepareProgram(asmProg)
	if err != nil {
		t.Fatalf("prepare program: %v", err)
	}
	defer release()
	if got := fn.Call(); got != 42 {
		t.Fatalf("main() = %d, want 42", got)
	}
}
