//go:build linux && amd64

package amd64

import (
	"github.com/tinyrange/lustc/internal/asm"
	amd64asm "github.com/tinyrange/lustc/internal/asm/amd64"
)

// PrepareNativeExecution maps prog into executable memory of this process.
func (backend) PrepareNativeExecution(prog asm.Program) (asm.NativeFunc, func(), error) {
	return amd64asm.PrepareProgram(prog)
}
