package value

import (
	"errors"
	"math"
	"testing"
)

func TestIsClosureMaskLaw(t *testing.T) {
	patterns := []int64{
		0,
		-1,
		^int64(HeapTagMask),
		HeapTagMask,
		ClosureTag,
		PairTag,
		StringTag,
		math.MaxInt64,
		math.MinInt64,
		math.MinInt64 | ClosureTag,
		0x1000 | ClosureTag,
		0x1000 | PairTag,
		Fixnum(5),
		Fixnum(-1),
		True,
		False,
		Nil,
		Char('a'),
	}
	for bits := int64(0); bits < 256; bits++ {
		patterns = append(patterns, bits, bits<<56, -bits)
	}

	for _, v := range patterns {
		want := v&HeapTagMask == ClosureTag
		if got := IsClosure(v); got != want {
			t.Fatalf("IsClosure(0x%x) = %v, want %v", uint64(v), got, want)
		}
	}
}

func TestImmediatesAreNeverClosures(t *testing.T) {
	for n := int64(-1024); n <= 1024; n++ {
		if IsClosure(Fixnum(n)) {
			t.Fatalf("fixnum %d classified as closure", n)
		}
	}
	for c := 1; c < 256; c++ {
		if IsClosure(Char(byte(c))) {
			t.Fatalf("char %d classified as closure", c)
		}
	}
	for _, v := range []int64{True, False, Nil} {
		if IsClosure(v) {
			t.Fatalf("immediate 0x%x classified as closure", v)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		v    int64
		want Kind
	}{
		{Fixnum(0), KindFixnum},
		{Fixnum(5), KindFixnum},
		{Fixnum(MinFixnum), KindFixnum},
		{Char('x'), KindChar},
		{True, KindBool},
		{False, KindBool},
		{Nil, KindNil},
		{0x40 | PairTag, KindPair},
		{0x40 | StringTag, KindString},
		{0x40 | ClosureTag, KindClosure},
		{0x40 | 0b101, KindInvalid},
		{0x7<<BoolShift | BoolTag, KindInvalid},
	}
	for _, tt := range tests {
		if got := Classify(tt.v); got != tt.want {
			t.Fatalf("Classify(0x%x) = %s, want %s", uint64(tt.v), got, tt.want)
		}
	}
}

func TestHeapKindTags(t *testing.T) {
	seen := map[int64]Kind{}
	for _, k := range []Kind{KindPair, KindString, KindClosure} {
		tag, ok := k.Tag()
		if !ok {
			t.Fatalf("%s has no tag", k)
		}
		if tag&^HeapTagMask != 0 {
			t.Fatalf("%s tag 0x%x exceeds HeapTagMask", k, tag)
		}
		if tag&FixnumMask == FixnumTag {
			t.Fatalf("%s tag 0x%x collides with fixnums", k, tag)
		}
		if prev, dup := seen[tag]; dup {
			t.Fatalf("%s and %s share tag 0x%x", k, prev, tag)
		}
		seen[tag] = k
	}
	if _, ok := KindFixnum.Tag(); ok {
		t.Fatal("fixnum should not have a heap tag")
	}
}

func TestFixnumRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 5, -4096, MaxFixnum, MinFixnum} {
		if got := FixnumValue(Fixnum(n)); got != n {
			t.Fatalf("FixnumValue(Fixnum(%d)) = %d", n, got)
		}
	}
}

func TestEncodeImmediateString(t *testing.T) {
	words, err := EncodeImmediateString([]byte("hi"))
	if err != nil {
		t.Fatalf("EncodeImmediateString: %v", err)
	}
	want := []int64{Char('h'), Char('i'), StringTerminator}
	if len(words) != len(want) {
		t.Fatalf("got %d words, want %d", len(words), len(want))
	}
	for i := range want {
		if words[i] != want[i] {
			t.Fatalf("word %d = 0x%x, want 0x%x", i, words[i], want[i])
		}
	}

	text, err := DecodeImmediateString(words)
	if err != nil {
		t.Fatalf("DecodeImmediateString: %v", err)
	}
	if string(text) != "hi" {
		t.Fatalf("decoded %q", text)
	}
}

func TestEncodeImmediateStringRejectsNUL(t *testing.T) {
	_, err := EncodeImmediateString([]byte("bad\x00text"))
	if !errors.Is(err, ErrEmbeddedNUL) {
		t.Fatalf("expected ErrEmbeddedNUL, got %v", err)
	}
}

func TestDecodeImmediateStringErrors(t *testing.T) {
	if _, err := DecodeImmediateString([]int64{Char('a')}); err == nil {
		t.Fatal("expected error for unterminated string")
	}
	if _, err := DecodeImmediateString([]int64{Fixnum(3), StringTerminator}); err == nil {
		t.Fatal("expected error for non-char word")
	}
}

func TestDescribe(t *testing.T) {
	tests := map[int64]string{
		Fixnum(5):  "5",
		Fixnum(-2): "-2",
		True:       "#t",
		False:      "#f",
		Nil:        "()",
		Char('q'):  `#\q`,
	}
	for v, want := range tests {
		if got := Describe(v); got != want {
			t.Fatalf("Describe(0x%x) = %q, want %q", v, got, want)
		}
	}
}
