package native

import (
	"fmt"
	"sync"

	"github.com/tinyrange/lustc/internal/asm"
)

// Backend turns a fragment program into machine code for one architecture.
type Backend interface {
	BuildStandaloneProgram(p *Program) (asm.Program, error)
}

// NativeBackend extends Backend with the ability to load and call the code in
// the current process. Only backends for the host's architecture and
// operating system implement it.
type NativeBackend interface {
	Backend
	// PrepareNativeExecution maps prog into executable memory. The returned
	// cleanup function must be called once the function is no longer needed.
	PrepareNativeExecution(prog asm.Program) (asm.NativeFunc, func(), error)
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// RegisterBackend makes backend available for arch, a GOARCH name. It panics
// when the same architecture is registered twice.
func RegisterBackend(arch string, backend Backend) {
	if arch == "" {
		panic("native: cannot register backend for empty architecture")
	}
	if backend == nil {
		panic("native: backend must be non-nil")
	}

	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[arch]; exists {
		panic(fmt.Sprintf("native: backend for %s already registered", arch))
	}
	backends[arch] = backend
}

func lookupBackend(arch string) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	if backend, ok := backends[arch]; ok {
		return backend, nil
	}
	if arch == "" {
		return nil, fmt.Errorf("native: architecture must be specified")
	}
	return nil, fmt.Errorf("native: no backend registered for %q", arch)
}

// BuildStandaloneProgramForArch links prog with the backend registered for
// arch.
func BuildStandaloneProgramForArch(arch string, prog *Program) (asm.Program, error) {
	if prog == nil {
		return asm.Program{}, fmt.Errorf("native: program must be non-nil")
	}
	backend, err := lookupBackend(arch)
	if err != nil {
		return asm.Program{}, err
	}
	return backend.BuildStandaloneProgram(prog)
}

// LookupNativeBackend returns the backend for arch if it can execute code in
// this process.
func LookupNativeBackend(arch string) (NativeBackend, error) {
	backend, err := lookupBackend(arch)
	if err != nil {
		return nil, err
	}
	nb, ok := backend.(NativeBackend)
	if !ok {
		return nil, fmt.Errorf("native: backend for %q does not support native execution", arch)
	}
	return nb, nil
}
