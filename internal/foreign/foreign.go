// Package foreign describes the runtime primitives generated code may call
// and resolves them at build time.
package foreign

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownSymbol is returned when a foreign name cannot be resolved.
var ErrUnknownSymbol = errors.New("foreign: unknown symbol")

// Signature is the calling contract of a primitive. Every parameter and the
// result are single tagged words.
type Signature struct {
	Name   string
	Params int
}

var (
	// Puts writes the string at its argument to standard output followed by
	// a newline.
	Puts = Signature{Name: "puts", Params: 1}
	// Exit terminates the process with its fixnum argument as exit code.
	Exit = Signature{Name: "exit", Params: 1}
)

// Resolver maps foreign names to signatures.
type Resolver interface {
	Resolve(name string) (Signature, error)
}

// Table is a fixed set of known primitives.
type Table struct {
	sigs map[string]Signature
}

var _ Resolver = (*Table)(nil)

// NewTable builds a table from sigs. It panics on duplicate names since
// tables are assembled from constants.
func NewTable(sigs ...Signature) *Table {
	t := &Table{sigs: make(map[string]Signature, len(sigs))}
	for _, sig := range sigs {
		if _, exists := t.sigs[sig.Name]; exists {
			panic(fmt.Sprintf("foreign: duplicate signature %q", sig.Name))
		}
		t.sigs[sig.Name] = sig
	}
	return t
}

// Runtime returns the primitives every runtime provides.
func Runtime() *Table {
	return NewTable(Puts, Exit)
}

func (t *Table) Resolve(name string) (Signature, error) {
	sig, ok := t.sigs[name]
	if !ok {
		return Signature{}, fmt.Errorf("%w %q", ErrUnknownSymbol, name)
	}
	return sig, nil
}

// Names lists the table's primitives in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.sigs))
	for name := range t.sigs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
