package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tinyrange/lustc/internal/value"
)

const maxFormatDepth = 64

// Format renders a word the way the reader would print it. Heap objects are
// followed through machine memory.
func (m *Machine) Format(v int64) string {
	var sb strings.Builder
	m.format(&sb, v, 0)
	return sb.String()
}

func (m *Machine) format(sb *strings.Builder, v int64, depth int) {
	if depth > maxFormatDepth {
		sb.WriteString("...")
		return
	}
	switch value.Classify(v) {
	case value.KindString:
		text, err := m.ReadString(v)
		if err != nil {
			fmt.Fprintf(sb, "#<string 0x%x>", value.Untag(v))
			return
		}
		sb.WriteString(strconv.Quote(string(text)))
	case value.KindPair:
		sb.WriteByte('(')
		m.formatPair(sb, v, depth)
		sb.WriteByte(')')
	case value.KindClosure:
		code, err := m.Load(value.Untag(v))
		if fn, ok := m.funcAt(code); err == nil && ok {
			fmt.Fprintf(sb, "#<closure %s>", fn.Name)
			return
		}
		fmt.Fprintf(sb, "#<closure 0x%x>", value.Untag(v))
	default:
		sb.WriteString(value.Describe(v))
	}
}

func (m *Machine) formatPair(sb *strings.Builder, v int64, depth int) {
	for i := 0; ; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		base := value.Untag(v)
		car, err1 := m.Load(base)
		cdr, err2 := m.Load(base + 8)
		if err1 != nil || err2 != nil {
			fmt.Fprintf(sb, "#<pair 0x%x>", base)
			return
		}
		m.format(sb, car, depth+1)
		switch value.Classify(cdr) {
		case value.KindNil:
			return
		case value.KindPair:
			if i >= maxFormatDepth {
				sb.WriteString(" ...")
				return
			}
			v = cdr
		default:
			sb.WriteString(" . ")
			m.format(sb, cdr, depth+1)
			return
		}
	}
}
