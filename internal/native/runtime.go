package native

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/tinyrange/lustc/internal/ir"
)

// DefaultHeapWords is the heap capacity used when Options.HeapWords is zero.
const DefaultHeapWords = 1 << 20

type Options struct {
	// HeapWords is the heap capacity in words.
	HeapWords int
	// Arch selects the backend. Defaults to runtime.GOARCH.
	Arch   string
	Logger *slog.Logger
}

// Run compiles prog to machine code and calls its entrypoint in this
// process. Output goes straight to file descriptor 1 and exit terminates the
// process, so Run only returns for programs that finish normally. Running
// code cannot be interrupted.
func Run(prog *ir.Program, opts Options) (int64, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	arch := opts.Arch
	if arch == "" {
		arch = runtime.GOARCH
	}
	heapWords := opts.HeapWords
	if heapWords <= 0 {
		heapWords = DefaultHeapWords
	}

	backend, err := LookupNativeBackend(arch)
	if err != nil {
		return 0, err
	}
	lowered, err := Lower(prog, heapWords)
	if err != nil {
		return 0, err
	}
	code, err := backend.BuildStandaloneProgram(lowered)
	if err != nil {
		return 0, fmt.Errorf("native: build: %w", err)
	}
	fn, cleanup, err := backend.PrepareNativeExecution(code)
	if err != nil {
		return 0, fmt.Errorf("native: prepare: %w", err)
	}
	defer cleanup()

	logger.Debug("running native code",
		"arch", arch,
		"methods", len(lowered.Methods),
		"code_bytes", len(code.Bytes()),
		"bss_bytes", code.BSSSize(),
	)
	return int64(fn.Call()), nil
}
