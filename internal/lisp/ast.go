// Package lisp holds the syntax tree of the source language and a reader
// that produces it.
package lisp

import (
	"strconv"
	"strings"
)

// Expr is any node of the syntax tree.
type Expr interface {
	String() string
	isExpr()
}

type Integer int64

type Symbol string

type String string

type Bool bool

// List is an ordered sequence of sub-expressions. The empty list is nil.
type List []Expr

func (Integer) isExpr() {}
func (Symbol) isExpr()  {}
func (String) isExpr()  {}
func (Bool) isExpr()    {}
func (List) isExpr()    {}

func (i Integer) String() string { return strconv.FormatInt(int64(i), 10) }

func (s Symbol) String() string { return string(s) }

func (s String) String() string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func (b Bool) String() string {
	if b {
		return "#t"
	}
	return "#f"
}

func (l List) String() string {
	parts := make([]string, len(l))
	for i, e := range l {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Head returns the symbol in head position, if any.
func (l List) Head() (Symbol, bool) {
	if len(l) == 0 {
		return "", false
	}
	s, ok := l[0].(Symbol)
	return s, ok
}
