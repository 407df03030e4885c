package native

import (
	"reflect"
	"strings"
	"testing"

	"github.com/tinyrange/lustc/internal/ir"
)

// selectProgram returns a program whose entry function picks between two
// blocks with brz and joins them through a block parameter.
func selectProgram(t *testing.T) *ir.Program {
	t.Helper()

	b := ir.NewBuilder("main", 0)
	cond := b.Iconst(0)
	side := b.CreateBlock()
	join := b.CreateBlock()
	joined := b.AppendBlockParam(join)

	one := b.Iconst(4)
	if err := b.Brz(cond, side); err != nil {
		t.Fatalf("Brz: %v", err)
	}
	if err := b.Jump(join, one); err != nil {
		t.Fatalf("Jump: %v", err)
	}

	b.SwitchToBlock(side)
	if err := b.SealBlock(side); err != nil {
		t.Fatalf("SealBlock(side): %v", err)
	}
	two := b.Iconst(8)
	if err := b.Jump(join, two); err != nil {
		t.Fatalf("Jump(join): %v", err)
	}

	b.SwitchToBlock(join)
	if err := b.SealBlock(join); err != nil {
		t.Fatalf("SealBlock(join): %v", err)
	}
	b.Return(joined)

	fn, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	prog := ir.NewProgram("main")
	if err := prog.AddFunction(fn); err != nil {
		t.Fatalf("AddFunction: %v", err)
	}
	return prog
}

func labels(m Method) []Label {
	var out []Label
	for _, frag := range m {
		if l, ok := frag.(LabelFragment); ok {
			out = append(out, l.Label)
		}
	}
	return out
}

func TestLowerBlocksBecomeLabels(t *testing.T) {
	out, err := Lower(selectProgram(t), 16)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	if out.Entrypoint != StartMethod {
		t.Fatalf("Entrypoint = %q, want %q", out.Entrypoint, StartMethod)
	}
	main, ok := out.Methods["main"]
	if !ok {
		t.Fatal("main was not lowered")
	}
	if got, want := labels(main), []Label{"block0", "block1", "block2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("labels = %v, want %v", got, want)
	}
	if _, ok := out.Methods[PutsMethod]; !ok {
		t.Fatal("runtime puts method missing")
	}
	if got := out.Globals[heapGlobal].Size; got != 16*wordBytes {
		t.Fatalf("heap size = %d, want %d", got, 16*wordBytes)
	}
}

func TestLowerBrzJumpsWhenZero(t *testing.T) {
	out, err := Lower(selectProgram(t), 16)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	entry := out.Methods["main"][0].(LabelFragment)

	var branch IfFragment
	for _, frag := range entry.Block {
		if f, ok := frag.(IfFragment); ok {
			branch = f
		}
	}
	if got, want := branch.Cond, IsZero(Var("v0")); !reflect.DeepEqual(got, want) {
		t.Fatalf("brz condition = %#v, want %#v", got, want)
	}
	then, ok := branch.Then.(Block)
	if !ok || len(then) == 0 {
		t.Fatalf("brz body = %#v", branch.Then)
	}
	if got, want := then[len(then)-1], Goto(Label("block1")); !reflect.DeepEqual(got, want) {
		t.Fatalf("brz body ends with %#v, want %#v", got, want)
	}
}

func TestLowerEdgeAssignsBlockParams(t *testing.T) {
	out, err := Lower(selectProgram(t), 16)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	entry := out.Methods["main"][0].(LabelFragment)
	jump, ok := entry.Block[len(entry.Block)-1].(Block)
	if !ok {
		t.Fatalf("entry does not end with an edge: %#v", entry.Block[len(entry.Block)-1])
	}
	want := Block{
		Assign(Var("v1.in"), Var("v2")),
		Assign(Var("v1"), Var("v1.in")),
		Goto(Label("block2")),
	}
	if !reflect.DeepEqual(jump, want) {
		t.Fatalf("edge = %#v, want %#v", jump, want)
	}
}

func TestLowerForeignCalls(t *testing.T) {
	b := ir.NewBuilder("main", 0)
	s := b.Iconst(0)
	b.CallForeign("puts", s)
	code := b.Iconst(-4)
	r := b.CallForeign("exit", code)
	b.Return(r)
	fn, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	prog := ir.NewProgram("main")
	if err := prog.AddFunction(fn); err != nil {
		t.Fatalf("AddFunction: %v", err)
	}

	out, err := Lower(prog, 16)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	body := out.Methods["main"][0].(LabelFragment).Block
	if got, want := body[1], CallMethod(PutsMethod, "v1", Var("v0")); !reflect.DeepEqual(got, want) {
		t.Fatalf("puts = %#v, want %#v", got, want)
	}
	exit, ok := body[3].(Block)
	if !ok || !reflect.DeepEqual(exit[1], Syscall(SysExitGroup, Var("exit.code"))) {
		t.Fatalf("exit = %#v", body[3])
	}
}

func TestLowerErrors(t *testing.T) {
	withParam := ir.NewBuilder("main", 1)
	withParam.Return(withParam.Func().Params()[0])
	paramFn, err := withParam.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	paramProg := ir.NewProgram("main")
	if err := paramProg.AddFunction(paramFn); err != nil {
		t.Fatalf("AddFunction: %v", err)
	}

	unknown := ir.NewBuilder("main", 0)
	unknown.Return(unknown.CallForeign("printf", unknown.Iconst(0)))
	unknownFn, err := unknown.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	unknownProg := ir.NewProgram("main")
	if err := unknownProg.AddFunction(unknownFn); err != nil {
		t.Fatalf("AddFunction: %v", err)
	}

	tests := []struct {
		name string
		prog *ir.Program
		heap int
		want string
	}{
		{"entry params", paramProg, 16, "takes 1 parameters"},
		{"missing entry", ir.NewProgram("main"), 16, "not found"},
		{"empty heap", selectProgram(t), 0, "at least one word"},
		{"foreign symbol", unknownProg, 16, "no native lowering"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Lower(tt.prog, tt.heap)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Lower() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}
