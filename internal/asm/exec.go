package asm

// NativeFunc is loaded machine code that can be called from Go.
type NativeFunc interface {
	// Call runs the code with up to six integer arguments passed in the
	// platform's C calling convention and returns the first result register.
	Call(args ...uintptr) uintptr

	// Entry returns the address of the first instruction.
	Entry() uintptr

	// Program returns a copy of the program the function was loaded from.
	Program() Program
}
