//go:build !darwin && !linux

package foreign

import (
	"fmt"
	"runtime"
)

// DefaultLibrary is empty since no C library can be loaded on this platform.
func DefaultLibrary() string { return "" }

// Library is unavailable on this platform; OpenLibrary always fails.
type Library struct{}

var _ Resolver = (*Library)(nil)

// OpenLibrary reports that dynamic libraries are unsupported.
func OpenLibrary(path string, table *Table) (*Library, error) {
	return nil, fmt.Errorf("foreign: dynamic libraries are not supported on %s", runtime.GOOS)
}

// Resolve fails for every name.
func (l *Library) Resolve(name string) (Signature, error) {
	return Signature{}, fmt.Errorf("%w %q", ErrUnknownSymbol, name)
}

// Lookup fails for every name.
func (l *Library) Lookup(name string) (uintptr, error) {
	return 0, fmt.Errorf("%w %q", ErrUnknownSymbol, name)
}

// Call fails for every name.
func (l *Library) Call(name string, args ...uintptr) (uintptr, error) {
	return 0, fmt.Errorf("%w %q", ErrUnknownSymbol, name)
}

// Close does nothing.
func (l *Library) Close() error { return nil }
