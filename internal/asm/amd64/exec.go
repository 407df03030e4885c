//go:build linux && amd64

package amd64

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"

	"github.com/tinyrange/lustc/internal/asm"
)

const maxAssemblyArguments = 6

// Func is a program mapped into executable memory.
type Func struct {
	entry uintptr
	prog  asm.Program
}

var _ asm.NativeFunc = Func{}

// Call runs the code on a system stack through the C calling convention.
func (fn Func) Call(args ...uintptr) uintptr {
	if fn.entry == 0 {
		panic("amd64.Func: call on zero value")
	}
	if len(args) > maxAssemblyArguments {
		panic(fmt.Sprintf("assembly call accepts at most %d arguments, got %d", maxAssemblyArguments, len(args)))
	}
	r1, _, _ := purego.SyscallN(fn.entry, args...)
	return r1
}

func (fn Func) Entry() uintptr {
	return fn.entry
}

func (fn Func) Program() asm.Program {
	return fn.prog.Clone()
}

// Compile emits f and maps it for execution.
func Compile(f asm.Fragment) (Func, func(), error) {
	prog, err := EmitProgram(f)
	if err != nil {
		return Func{}, nil, fmt.Errorf("emit assembly program: %w", err)
	}
	return PrepareProgram(prog)
}

// PrepareProgram maps prog, applies its relocations and makes the code
// executable. The returned function unmaps it.
func PrepareProgram(prog asm.Program) (Func, func(), error) {
	entry, release, err := mapProgram(prog.Bytes(), prog.Relocations(), prog.BSSSize())
	if err != nil {
		return Func{}, nil, err
	}
	return Func{entry: entry, prog: prog.Clone()}, release, nil
}

func mapProgram(code []byte, relocations []int, bssSize int) (uintptr, func(), error) {
	size := len(code)
	if size == 0 {
		return 0, nil, fmt.Errorf("empty code")
	}

	pageSize := unix.Getpagesize()
	// Code and BSS live on separate pages so only the code becomes read-only.
	codeAllocSize := ((size + pageSize - 1) / pageSize) * pageSize
	allocSize := ((codeAllocSize + bssSize + pageSize - 1) / pageSize) * pageSize

	mem, err := unix.Mmap(-1, 0, allocSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, nil, fmt.Errorf("mmap assembly region: %w", err)
	}
	release := true
	defer func() {
		if release {
			_ = unix.Munmap(mem)
		}
	}()

	copy(mem, code)
	base := uint64(uintptr(unsafe.Pointer(&mem[0])))

	// The linker places BSS right after the code; here it starts on the next
	// page instead.
	bssAdjustment := uint64(codeAllocSize - size)
	for _, offset := range relocations {
		if offset < 0 || offset+8 > size {
			return 0, nil, fmt.Errorf("assembly relocation offset %d out of range (code len %d)", offset, size)
		}
		value := binary.LittleEndian.Uint64(mem[offset:])
		if value >= uint64(size) {
			value += bssAdjustment
		}
		binary.LittleEndian.PutUint64(mem[offset:], value+base)
	}

	if err := unix.Mprotect(mem[:codeAllocSize], unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return 0, nil, fmt.Errorf("mprotect code region: %w", err)
	}

	release = false
	return uintptr(base), func() { _ = unix.Munmap(mem) }, nil
}
