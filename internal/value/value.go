// Package value describes the tagged word representation shared by every
// piece of generated code. The constants here are part of the runtime ABI:
// changing one changes the meaning of every compiled program.
package value

import "fmt"

// Immediate encodings. Fixnums own every word whose low two bits are zero;
// all other immediates have their low three bits set.
const (
	FixnumShift = 2
	FixnumMask  = 0b11
	FixnumTag   = 0b00

	CharShift = 8
	CharMask  = 0b11111111
	CharTag   = 0b00001111

	BoolShift = 7
	BoolMask  = 0b1111111
	BoolTag   = 0b0011111

	NilValue = 0b00101111
)

// Heap encodings. A heap value is an 8 byte aligned address with one of the
// tags below in its low bits.
const (
	HeapTagMask = 0b111

	PairTag    = 0b001
	StringTag  = 0b011
	ClosureTag = 0b110
)

const (
	True  int64 = 1<<BoolShift | BoolTag
	False int64 = BoolTag
	Nil   int64 = NilValue
)

// Fixnums carry 62 bits of payload.
const (
	MaxFixnum int64 = 1<<(63-FixnumShift) - 1
	MinFixnum int64 = -1 << (63 - FixnumShift)
)

// Kind is the closed set of things a word can denote.
type Kind int

const (
	KindInvalid Kind = iota
	KindFixnum
	KindChar
	KindBool
	KindNil
	KindPair
	KindString
	KindClosure
)

func (k Kind) String() string {
	switch k {
	case KindFixnum:
		return "fixnum"
	case KindChar:
		return "char"
	case KindBool:
		return "bool"
	case KindNil:
		return "nil"
	case KindPair:
		return "pair"
	case KindString:
		return "string"
	case KindClosure:
		return "closure"
	default:
		return "invalid"
	}
}

// IsHeap reports whether words of this kind are tagged addresses.
func (k Kind) IsHeap() bool {
	return k == KindPair || k == KindString || k == KindClosure
}

// Tag returns the heap tag for a heap kind.
func (k Kind) Tag() (int64, bool) {
	switch k {
	case KindPair:
		return PairTag, true
	case KindString:
		return StringTag, true
	case KindClosure:
		return ClosureTag, true
	default:
		return 0, false
	}
}

// IsClosure reports whether v may be applied as a function.
func IsClosure(v int64) bool {
	return v&HeapTagMask == ClosureTag
}

// Classify maps a word to its kind. Every bit pattern has exactly one kind;
// patterns no encoder produces classify as KindInvalid.
func Classify(v int64) Kind {
	switch {
	case v&FixnumMask == FixnumTag:
		return KindFixnum
	case v&CharMask == CharTag:
		if uint64(v)>>CharShift > 0xff {
			return KindInvalid
		}
		return KindChar
	case v&BoolMask == BoolTag:
		if v != True && v != False {
			return KindInvalid
		}
		return KindBool
	case v == NilValue:
		return KindNil
	}
	switch v & HeapTagMask {
	case PairTag:
		return KindPair
	case StringTag:
		return KindString
	case ClosureTag:
		return KindClosure
	}
	return KindInvalid
}

// Fixnum encodes n. Values outside [MinFixnum, MaxFixnum] wrap.
func Fixnum(n int64) int64 {
	return n << FixnumShift
}

// FixnumValue decodes a fixnum word.
func FixnumValue(v int64) int64 {
	return v >> FixnumShift
}

// Bool encodes b.
func Bool(b bool) int64 {
	if b {
		return True
	}
	return False
}

// Char encodes a single byte character.
func Char(c byte) int64 {
	return int64(c)<<CharShift | CharTag
}

// CharValue decodes a char word.
func CharValue(v int64) byte {
	return byte(v >> CharShift)
}

// Untag strips the heap tag from v, yielding the object address.
func Untag(v int64) int64 {
	return v &^ HeapTagMask
}

// Describe renders immediates. Heap values are described by kind and address
// since their contents live in program memory.
func Describe(v int64) string {
	switch Classify(v) {
	case KindFixnum:
		return fmt.Sprintf("%d", FixnumValue(v))
	case KindChar:
		return fmt.Sprintf("#\\%c", CharValue(v))
	case KindBool:
		if v == True {
			return "#t"
		}
		return "#f"
	case KindNil:
		return "()"
	case KindPair, KindString, KindClosure:
		return fmt.Sprintf("#<%s 0x%x>", Classify(v), Untag(v))
	default:
		return fmt.Sprintf("#<invalid 0x%x>", uint64(v))
	}
}
