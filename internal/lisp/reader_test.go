package lisp

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		src  string
		want []Expr
	}{
		{"5", []Expr{Integer(5)}},
		{"-12 +3", []Expr{Integer(-12), Integer(3)}},
		{"- +", []Expr{Symbol("-"), Symbol("+")}},
		{"#t #f", []Expr{Bool(true), Bool(false)}},
		{`"a\"b\n"`, []Expr{String("a\"b\n")}},
		{"()", []Expr{List(nil)}},
		{
			"((lambda (x) x) 5)",
			[]Expr{List{
				List{Symbol("lambda"), List{Symbol("x")}, Symbol("x")},
				Integer(5),
			}},
		},
		{
			"; comment\n(error \"boom\" 2) ; trailing",
			[]Expr{List{Symbol("error"), String("boom"), Integer(2)}},
		},
	}

	for _, tt := range tests {
		got, err := Parse(tt.src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.src, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("Parse(%q)\n got: %#v\nwant: %#v", tt.src, got, tt.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src    string
		line   int
		column int
	}{
		{"(1 2", 1, 1},
		{")", 1, 1},
		{"\n  \"open", 2, 3},
		{"12abc", 1, 1},
		{"#x", 1, 1},
		{`"\q"`, 1, 4},
	}

	for _, tt := range tests {
		_, err := Parse(tt.src)
		var syn *SyntaxError
		if !errors.As(err, &syn) {
			t.Fatalf("Parse(%q): expected SyntaxError, got %v", tt.src, err)
		}
		if syn.Line != tt.line || syn.Column != tt.column {
			t.Fatalf("Parse(%q): error at %d:%d, want %d:%d (%v)", tt.src, syn.Line, syn.Column, tt.line, tt.column, err)
		}
	}
}

func TestPrintRoundTrip(t *testing.T) {
	for _, src := range []string{
		"((lambda (x) x) 5)",
		`(error "fatal \"quoted\"\n" -1)`,
		"(let ((a 1) (b #t)) (if b a ()))",
	} {
		e, err := ParseOne(src)
		if err != nil {
			t.Fatalf("ParseOne(%q): %v", src, err)
		}
		if got := e.String(); got != src {
			t.Fatalf("round trip: got %q, want %q", got, src)
		}
	}
}

func TestParseOneRejectsMultiple(t *testing.T) {
	if _, err := ParseOne("1 2"); err == nil {
		t.Fatal("expected error for two expressions")
	}
}

func TestListHead(t *testing.T) {
	l := MustParseOne("(error 1 2)").(List)
	if head, ok := l.Head(); !ok || head != "error" {
		t.Fatalf("Head() = %q, %v", head, ok)
	}
	if _, ok := List(nil).Head(); ok {
		t.Fatal("empty list should have no head")
	}
	if _, ok := (List{Integer(1)}).Head(); ok {
		t.Fatal("integer head should not be a symbol")
	}
}
