package value

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrEmbeddedNUL is returned when text meant for the immediate string
// encoding contains a zero byte, which is reserved as the terminator.
var ErrEmbeddedNUL = errors.New("value: string contains an embedded NUL byte")

// StringTerminator ends every immediate string. No char word is zero.
const StringTerminator int64 = 0

// EncodeImmediateString converts text to its in-memory form: one char word
// per byte followed by StringTerminator.
func EncodeImmediateString(text []byte) ([]int64, error) {
	if i := bytes.IndexByte(text, 0); i >= 0 {
		return nil, fmt.Errorf("%w (offset %d)", ErrEmbeddedNUL, i)
	}
	words := make([]int64, 0, len(text)+1)
	for _, c := range text {
		words = append(words, Char(c))
	}
	return append(words, StringTerminator), nil
}

// DecodeImmediateString reverses EncodeImmediateString. Decoding stops at the
// first terminator; words after it are ignored.
func DecodeImmediateString(words []int64) ([]byte, error) {
	out := make([]byte, 0, len(words))
	for i, w := range words {
		if w == StringTerminator {
			return out, nil
		}
		if Classify(w) != KindChar {
			return nil, fmt.Errorf("value: word %d (0x%x) is not a char", i, uint64(w))
		}
		out = append(out, CharValue(w))
	}
	return nil, fmt.Errorf("value: string is not terminated")
}
