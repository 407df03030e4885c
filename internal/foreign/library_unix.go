//go:build darwin || linux

package foreign

import (
	"fmt"
	"runtime"

	"github.com/ebitengine/purego"
)

// DefaultLibrary is the C library searched for primitives on this platform.
func DefaultLibrary() string {
	if runtime.GOOS == "darwin" {
		return "/usr/lib/libSystem.B.dylib"
	}
	return "libc.so.6"
}

// Library resolves primitives against a dynamically loaded C library. A name
// resolves only when it is both a known signature and an exported symbol, so
// a missing symbol is reported while the program is being built rather than
// when it runs.
type Library struct {
	path   string
	handle uintptr
	table  *Table
	addrs  map[string]uintptr
}

var _ Resolver = (*Library)(nil)

// OpenLibrary loads path and checks primitives against table.
func OpenLibrary(path string, table *Table) (*Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("foreign: open %s: %w", path, err)
	}
	return &Library{
		path:   path,
		handle: handle,
		table:  table,
		addrs:  make(map[string]uintptr),
	}, nil
}

func (l *Library) Resolve(name string) (Signature, error) {
	sig, err := l.table.Resolve(name)
	if err != nil {
		return Signature{}, err
	}
	if _, err := l.Lookup(name); err != nil {
		return Signature{}, err
	}
	return sig, nil
}

// Lookup returns the address of an exported symbol.
func (l *Library) Lookup(name string) (uintptr, error) {
	if addr, ok := l.addrs[name]; ok {
		return addr, nil
	}
	addr, err := purego.Dlsym(l.handle, name)
	if err != nil || addr == 0 {
		return 0, fmt.Errorf("%w %q in %s", ErrUnknownSymbol, name, l.path)
	}
	l.addrs[name] = addr
	return addr, nil
}

// Call invokes an exported symbol with integer or pointer arguments.
func (l *Library) Call(name string, args ...uintptr) (uintptr, error) {
	addr, err := l.Lookup(name)
	if err != nil {
		return 0, err
	}
	r1, _, _ := purego.SyscallN(addr, args...)
	return r1, nil
}

// Close unloads the library.
func (l *Library) Close() error {
	if err := purego.Dlclose(l.handle); err != nil {
		return fmt.Errorf("foreign: close %s: %w", l.path, err)
	}
	return nil
}
