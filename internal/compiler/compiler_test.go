package compiler

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tinyrange/lustc/internal/ir"
	"github.com/tinyrange/lustc/internal/lisp"
)

func compileSource(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := CompileSource(src, Options{})
	if err != nil {
		t.Fatalf("CompileSource(%q): %v", src, err)
	}
	return prog
}

func TestCompileRegistersMessagesFirst(t *testing.T) {
	prog := compileSource(t, `"hello"`)
	if len(prog.Data) < 2 {
		t.Fatalf("data = %v, want fatal messages followed by the literal", prog.Data)
	}
	if prog.Data[0].Name != BadCallTypeSymbol {
		t.Fatalf("first data object = %q, want %q", prog.Data[0].Name, BadCallTypeSymbol)
	}
}

func TestCompileOnce(t *testing.T) {
	c := New(Options{})
	if _, err := c.CompileProgram(nil); err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	if _, err := c.CompileProgram(nil); err == nil {
		t.Fatal("second CompileProgram should fail")
	}
}

func TestCompileLambdaApplication(t *testing.T) {
	prog := compileSource(t, `((lambda (x) x) 5)`)
	if got, want := prog.FunctionNames(), []string{"__lambda_0", EntryPoint}; !reflect.DeepEqual(got, want) {
		t.Fatalf("functions = %v, want %v", got, want)
	}
	lambda := prog.Functions["__lambda_0"]
	if got := len(lambda.Params()); got != 2 {
		t.Fatalf("lambda params = %d, want closure plus 1", got)
	}

	// One guard per call site.
	main := prog.Functions[EntryPoint]
	guards := 0
	for _, blk := range main.Blocks {
		for _, inst := range blk.Insts {
			if inst.Op == ir.OpCallForeign && inst.Symbol == "exit" {
				guards++
			}
		}
	}
	if guards != 1 {
		t.Fatalf("found %d guarded exits, want 1", guards)
	}
}

func TestCompileCapturesFreeVariables(t *testing.T) {
	prog := compileSource(t, `(let ((a 1) (b 2)) ((lambda (x) (+ x b)) a))`)
	lambda := prog.Functions["__lambda_0"]
	loads := 0
	for _, blk := range lambda.Blocks {
		for _, inst := range blk.Insts {
			if inst.Op == ir.OpLoad && inst.Imm == closureSlot(0) {
				loads++
			}
		}
	}
	if loads != 1 {
		t.Fatalf("captured loads = %d, want 1", loads)
	}

	var alloc *ir.Inst
	for _, inst := range prog.Functions[EntryPoint].Blocks[0].Insts {
		if inst.Op == ir.OpAlloc {
			inst := inst
			alloc = &inst
		}
	}
	if alloc == nil || alloc.Imm != 2 {
		t.Fatalf("closure alloc = %v, want 2 words", alloc)
	}
}

func TestFreeVariables(t *testing.T) {
	body := []lisp.Expr{lisp.MustParseOne(`(f x (lambda (y) (g y z)) (let ((w x)) (h w v)))`)}
	got := freeVariables(body, map[string]bool{"x": true})
	want := []string{"f", "g", "z", "h", "v"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("freeVariables = %v, want %v", got, want)
	}
}

func TestCompileIfShape(t *testing.T) {
	prog := compileSource(t, `(if (< 1 2) 10 20)`)
	main := prog.Functions[EntryPoint]
	if got := len(main.Blocks); got != 4 {
		t.Fatalf("blocks = %d, want 4", got)
	}
	merge := main.Blocks[3]
	if len(merge.Params) != 1 || len(merge.Preds) != 2 {
		t.Fatalf("merge block = %+v, want 1 param and 2 preds", merge)
	}
}

func TestCompileStringsAreInterned(t *testing.T) {
	prog := compileSource(t, `(begin "a" "a" "b")`)
	var names []string
	for _, d := range prog.Data {
		names = append(names, d.Name)
	}
	want := []string{BadCallTypeSymbol, "__anon_data_0", "__anon_data_1"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("data = %v, want %v", names, want)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`missing`, "unbound symbol"},
		{`(lambda (x x) x)`, "duplicate parameter"},
		{`(lambda (1) 1)`, "must be a symbol"},
		{`(lambda (__anon_data_0) 1)`, "reserved name"},
		{`(let ((__anon_data_bad_call_type 1)) 1)`, "reserved name"},
		{`(let (x) x)`, "let binding"},
		{`(if 1)`, "if takes"},
		{`(car 1 2)`, "expects 1 arguments"},
		{`4611686018427387904`, "fixnum"},
		{`(error "m" "x")`, "exit code must be an integer"},
		{`(error "m" #t)`, "exit code must be an integer"},
		{`(error "m" ())`, "exit code must be an integer"},
	}
	for _, tt := range tests {
		_, err := CompileSource(tt.src, Options{})
		var evalErr *EvalError
		if !errors.As(err, &evalErr) {
			t.Fatalf("CompileSource(%q) err = %v, want *EvalError", tt.src, err)
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("CompileSource(%q) err = %q, want it to mention %q", tt.src, err, tt.want)
		}
	}
}

func TestCompileStringWithNUL(t *testing.T) {
	_, err := CompileSource("\"a\x00b\"", Options{})
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("err = %v, want *EncodingError", err)
	}
}

func TestDataSymbolEvaluatesAsString(t *testing.T) {
	prog := compileSource(t, BadCallTypeSymbol)
	insts := prog.Functions[EntryPoint].Blocks[0].Insts
	if insts[0].Op != ir.OpDataAddr || insts[0].Symbol != BadCallTypeSymbol {
		t.Fatalf("first instruction = %v", insts[0])
	}
}

func TestLocalShadowsSpecialForm(t *testing.T) {
	// A bound name in head position is applied, not treated as a form.
	prog := compileSource(t, `(let ((if (lambda (a b) a))) (if 1 2))`)
	var calls int
	for _, blk := range prog.Functions[EntryPoint].Blocks {
		for _, inst := range blk.Insts {
			if inst.Op == ir.OpCallIndirect {
				calls++
			}
		}
	}
	if calls != 1 {
		t.Fatalf("call_indirect count = %d, want 1", calls)
	}
}
