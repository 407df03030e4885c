package amd64

import (
	"github.com/tinyrange/lustc/internal/asm"
	"github.com/tinyrange/lustc/internal/native"
)

type backend struct{}

func init() {
	native.RegisterBackend("amd64", backend{})
}

func (backend) BuildStandaloneProgram(p *native.Program) (asm.Program, error) {
	return BuildStandaloneProgram(p)
}
