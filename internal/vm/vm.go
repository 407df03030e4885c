// Package vm executes ir programs. It stands in for native code generation:
// memory is a flat array of words, the data section sits at its start and
// the heap grows after it, and foreign calls dispatch to Go primitives.
package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tinyrange/lustc/internal/ir"
)

const (
	// DefaultHeapWords is the heap size used when Options.HeapWords is zero.
	DefaultHeapWords = 1 << 20
	// MaxCallDepth bounds nested calls.
	MaxCallDepth = 10000

	// codeBase is where function addresses start. It is far above any data
	// or heap address so the two ranges cannot overlap.
	codeBase   int64 = 1 << 48
	codeStride int64 = 16

	ctxCheckInterval = 4096
)

// Primitive implements a foreign function. Arguments and result are tagged
// words.
type Primitive func(m *Machine, args []int64) (int64, error)

// Options configures a Machine.
type Options struct {
	// Stdout receives output of the puts primitive. Defaults to os.Stdout.
	Stdout io.Writer
	// Exit is invoked by the exit primitive. A process host terminates here;
	// if Exit returns (or is nil) the machine stops with *ExitError.
	Exit func(code int)
	// Primitives overrides or extends the built-in foreign functions.
	Primitives map[string]Primitive
	// MaxSteps bounds the number of executed instructions. Zero means no
	// limit.
	MaxSteps int64
	// HeapWords is the heap capacity in words.
	HeapWords int
	Logger    *slog.Logger
}

// ExitError is returned when the program called exit.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("vm: program exited with code %d", e.Code)
}

// Fault is a run-time failure of the machine itself, such as a call through
// an address that is not a function.
type Fault struct {
	Function string
	Block    ir.Block
	Msg      string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("vm: fault in %s %s: %s", f.Function, f.Block, f.Msg)
}

// Machine runs one program.
type Machine struct {
	prog   *ir.Program
	opts   Options
	logger *slog.Logger
	stdout io.Writer

	mem       []int64
	dataAddrs map[string]int64
	heapNext  int

	funcs     []*ir.Function
	funcIndex map[string]int
	prims     map[string]Primitive

	steps int64
	depth int
}

// New lays out the program's data section and prepares it for execution.
func New(prog *ir.Program, opts Options) (*Machine, error) {
	if prog == nil {
		return nil, fmt.Errorf("vm: program must be non-nil")
	}
	m := &Machine{
		prog:      prog,
		opts:      opts,
		logger:    opts.Logger,
		stdout:    opts.Stdout,
		dataAddrs: make(map[string]int64),
		funcIndex: make(map[string]int),
		prims:     builtinPrimitives(),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.stdout == nil {
		m.stdout = os.Stdout
	}
	for name, prim := range opts.Primitives {
		m.prims[name] = prim
	}

	heapWords := opts.HeapWords
	if heapWords <= 0 {
		heapWords = DefaultHeapWords
	}
	dataWords := 0
	for _, d := range prog.Data {
		dataWords += len(d.Words)
	}
	// Word 0 stays unused so no object lives at address zero.
	m.mem = make([]int64, 1, 1+dataWords+heapWords)
	for _, d := range prog.Data {
		m.dataAddrs[d.Name] = int64(len(m.mem)) * 8
		m.mem = append(m.mem, d.Words...)
	}
	m.heapNext = len(m.mem)
	m.mem = m.mem[:cap(m.mem)]

	for _, name := range prog.FunctionNames() {
		m.funcIndex[name] = len(m.funcs)
		m.funcs = append(m.funcs, prog.Functions[name])
	}
	if _, ok := m.funcIndex[prog.Entrypoint]; !ok {
		return nil, fmt.Errorf("vm: entrypoint %q not defined", prog.Entrypoint)
	}
	return m, nil
}

// Run executes the entrypoint and returns its result.
func (m *Machine) Run(ctx context.Context) (int64, error) {
	fn := m.funcs[m.funcIndex[m.prog.Entrypoint]]
	result, err := m.call(ctx, fn, nil)
	m.logger.Debug("program finished", "steps", m.steps, "heap_words", m.heapNext, "err", err)
	return result, err
}

// Steps returns the number of instructions executed so far.
func (m *Machine) Steps() int64 { return m.steps }

// DataAddr returns the address a data symbol was placed at.
func (m *Machine) DataAddr(name string) (int64, bool) {
	addr, ok := m.dataAddrs[name]
	return addr, ok
}

// FuncAddr returns the code address of a function.
func (m *Machine) FuncAddr(name string) (int64, bool) {
	idx, ok := m.funcIndex[name]
	if !ok {
		return 0, false
	}
	return codeBase + int64(idx)*codeStride, true
}

func (m *Machine) funcAt(addr int64) (*ir.Function, bool) {
	off := addr - codeBase
	if off < 0 || off%codeStride != 0 {
		return nil, false
	}
	idx := off / codeStride
	if idx >= int64(len(m.funcs)) {
		return nil, false
	}
	return m.funcs[idx], true
}

// Load reads the word at a byte address.
func (m *Machine) Load(addr int64) (int64, error) {
	idx, err := m.wordIndex(addr)
	if err != nil {
		return 0, err
	}
	return m.mem[idx], nil
}

func (m *Machine) wordIndex(addr int64) (int, error) {
	if addr%8 != 0 {
		return 0, fmt.Errorf("unaligned address 0x%x", addr)
	}
	idx := addr / 8
	if idx <= 0 || idx >= int64(m.heapNext) {
		return 0, fmt.Errorf("address 0x%x out of bounds", addr)
	}
	return int(idx), nil
}

func (m *Machine) alloc(words int64) (int64, error) {
	if words <= 0 || int64(m.heapNext)+words > int64(len(m.mem)) {
		return 0, fmt.Errorf("heap exhausted allocating %d words", words)
	}
	addr := int64(m.heapNext) * 8
	m.heapNext += int(words)
	return addr, nil
}
