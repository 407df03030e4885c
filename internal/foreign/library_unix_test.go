//go:build linux

package foreign

import (
	"errors"
	"testing"
)

func TestLibraryResolvesRuntimePrimitives(t *testing.T) {
	lib, err := OpenLibrary(DefaultLibrary(), Runtime())
	if err != nil {
		t.Skipf("libc not loadable: %v", err)
	}
	defer lib.Close()

	for _, name := range []string{"puts", "exit"} {
		if _, err := lib.Resolve(name); err != nil {
			t.Fatalf("Resolve(%q): %v", name, err)
		}
	}

	// Known to libc but not a runtime primitive.
	if _, err := lib.Resolve("printf"); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol for printf, got %v", err)
	}

	// A runtime primitive the library does not export.
	lib.table = NewTable(Puts, Signature{Name: "__lustc_missing_primitive", Params: 0})
	if _, err := lib.Resolve("__lustc_missing_primitive"); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol for missing symbol, got %v", err)
	}
}
