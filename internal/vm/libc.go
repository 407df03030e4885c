package vm

import (
	"runtime"
	"unsafe"

	"github.com/tinyrange/lustc/internal/foreign"
	"github.com/tinyrange/lustc/internal/value"
)

// LibcPrimitives routes puts and exit to the C library. Output goes through
// C stdio, and exit runs the C library's own shutdown.
func LibcPrimitives(lib *foreign.Library) map[string]Primitive {
	return map[string]Primitive{
		foreign.Puts.Name: func(m *Machine, args []int64) (int64, error) {
			text, err := m.ReadString(args[0])
			if err != nil {
				return 0, err
			}
			buf := make([]byte, len(text)+1)
			copy(buf, text)
			r, err := lib.Call(foreign.Puts.Name, uintptr(unsafe.Pointer(&buf[0])))
			runtime.KeepAlive(buf)
			if err != nil {
				return 0, err
			}
			return value.Fixnum(int64(int32(r))), nil
		},
		foreign.Exit.Name: func(m *Machine, args []int64) (int64, error) {
			code := ExitCode(args[0])
			m.logger.Debug("program called exit", "code", code, "runtime", "libc")
			if _, err := lib.Call(foreign.Exit.Name, uintptr(code)); err != nil {
				return 0, err
			}
			return 0, &ExitError{Code: code}
		},
	}
}
