package ir

import (
	"fmt"
	"sort"
)

// BlockData holds a block's parameters, body and the predecessor edges
// recorded while it was open. Preds keeps one entry per edge, so a block that
// branches twice to the same target appears twice.
type BlockData struct {
	Params []Value
	Insts  []Inst
	Preds  []Block
	Sealed bool
}

// Terminated reports whether the block ends in a jump or return.
func (d *BlockData) Terminated() bool {
	return len(d.Insts) > 0 && d.Insts[len(d.Insts)-1].IsTerminator()
}

// Function is a control-flow graph of basic blocks. Block 0 is the entry
// block and its parameters are the function's parameters.
type Function struct {
	Name   string
	Blocks []*BlockData

	numValues int
}

// Entry returns the entry block.
func (f *Function) Entry() Block { return 0 }

// Params returns the function parameters.
func (f *Function) Params() []Value {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0].Params
}

// Block returns the data for b. It panics when b does not belong to f.
func (f *Function) Block(b Block) *BlockData {
	if b < 0 || int(b) >= len(f.Blocks) {
		panic(fmt.Sprintf("ir: %s: no such block %s", f.Name, b))
	}
	return f.Blocks[b]
}

// NumValues returns the number of values defined in f.
func (f *Function) NumValues() int { return f.numValues }

// DataObject is a named, read-only run of words placed in the data section.
type DataObject struct {
	Name  string
	Words []int64
}

// Program is a complete compilation unit.
type Program struct {
	Entrypoint string
	Functions  map[string]*Function
	Data       []DataObject
}

// NewProgram returns an empty program whose execution starts at entrypoint.
func NewProgram(entrypoint string) *Program {
	return &Program{
		Entrypoint: entrypoint,
		Functions:  make(map[string]*Function),
	}
}

// AddFunction registers fn under its name.
func (p *Program) AddFunction(fn *Function) error {
	if fn == nil {
		return fmt.Errorf("ir: function must be non-nil")
	}
	if _, exists := p.Functions[fn.Name]; exists {
		return fmt.Errorf("ir: duplicate function %q", fn.Name)
	}
	p.Functions[fn.Name] = fn
	return nil
}

// AddData appends a data object. Names are unique for the whole program.
func (p *Program) AddData(name string, words []int64) error {
	if name == "" {
		return fmt.Errorf("ir: data symbol name must be non-empty")
	}
	if _, exists := p.LookupData(name); exists {
		return fmt.Errorf("ir: duplicate data symbol %q", name)
	}
	p.Data = append(p.Data, DataObject{
		Name:  name,
		Words: append([]int64(nil), words...),
	})
	return nil
}

// LookupData finds a data object by name.
func (p *Program) LookupData(name string) (DataObject, bool) {
	for _, d := range p.Data {
		if d.Name == name {
			return d, true
		}
	}
	return DataObject{}, false
}

// FunctionNames returns the function names in sorted order.
func (p *Program) FunctionNames() []string {
	names := make([]string, 0, len(p.Functions))
	for name := range p.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
