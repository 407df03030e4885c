//go:build linux

package vm

import (
	"testing"

	"github.com/tinyrange/lustc/internal/compiler"
	"github.com/tinyrange/lustc/internal/foreign"
	"github.com/tinyrange/lustc/internal/value"
)

func TestLibcPuts(t *testing.T) {
	lib, err := foreign.OpenLibrary(foreign.DefaultLibrary(), foreign.Runtime())
	if err != nil {
		t.Skipf("libc unavailable: %v", err)
	}
	defer lib.Close()

	prog, err := compiler.CompileSource(`"from libc"`, compiler.Options{Resolver: lib})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	m, err := New(prog, Options{Primitives: LibcPrimitives(lib)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, err := m.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	puts := LibcPrimitives(lib)[foreign.Puts.Name]
	r, err := puts(m, []int64{v})
	if err != nil {
		t.Fatalf("puts: %v", err)
	}
	if value.Classify(r) != value.KindFixnum || value.FixnumValue(r) < 0 {
		t.Fatalf("puts returned %s, want a non-negative fixnum", value.Describe(r))
	}

	if _, err := puts(m, []int64{value.Fixnum(1 << 40)}); err == nil {
		t.Fatal("puts of an address outside memory should fail")
	}
}
