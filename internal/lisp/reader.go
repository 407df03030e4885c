package lisp

import (
	"fmt"
	"strconv"
	"strings"
)

// SyntaxError reports malformed source with a 1-based position.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("lisp: %d:%d: %s", e.Line, e.Column, e.Msg)
}

type reader struct {
	src  string
	pos  int
	line int
	col  int
}

// Parse reads every top-level expression in src.
func Parse(src string) ([]Expr, error) {
	r := &reader{src: src, line: 1, col: 1}
	var out []Expr
	for {
		r.skipSpace()
		if r.eof() {
			return out, nil
		}
		e, err := r.read()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
}

// ParseOne reads src, which must contain exactly one expression.
func ParseOne(src string) (Expr, error) {
	exprs, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if len(exprs) != 1 {
		return nil, fmt.Errorf("lisp: expected one expression, got %d", len(exprs))
	}
	return exprs[0], nil
}

// MustParseOne is like ParseOne but panics on error. Intended for tests and
// fixed program fragments.
func MustParseOne(src string) Expr {
	e, err := ParseOne(src)
	if err != nil {
		panic(err)
	}
	return e
}

func (r *reader) eof() bool { return r.pos >= len(r.src) }

func (r *reader) peek() byte { return r.src[r.pos] }

func (r *reader) next() byte {
	c := r.src[r.pos]
	r.pos++
	if c == '\n' {
		r.line++
		r.col = 1
	} else {
		r.col++
	}
	return c
}

func (r *reader) errorf(format string, args ...any) error {
	return &SyntaxError{Line: r.line, Column: r.col, Msg: fmt.Sprintf(format, args...)}
}

func (r *reader) skipSpace() {
	for !r.eof() {
		switch c := r.peek(); {
		case c == ';':
			for !r.eof() && r.peek() != '\n' {
				r.next()
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			r.next()
		default:
			return
		}
	}
}

func (r *reader) read() (Expr, error) {
	switch c := r.peek(); c {
	case '(':
		return r.readList()
	case ')':
		return nil, r.errorf("unexpected ')'")
	case '"':
		return r.readString()
	default:
		return r.readAtom()
	}
}

func (r *reader) readList() (Expr, error) {
	line, col := r.line, r.col
	r.next()
	list := List{}
	for {
		r.skipSpace()
		if r.eof() {
			return nil, &SyntaxError{Line: line, Column: col, Msg: "unterminated list"}
		}
		if r.peek() == ')' {
			r.next()
			if len(list) == 0 {
				return List(nil), nil
			}
			return list, nil
		}
		e, err := r.read()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
}

func (r *reader) readString() (Expr, error) {
	line, col := r.line, r.col
	r.next()
	var sb strings.Builder
	for {
		if r.eof() {
			return nil, &SyntaxError{Line: line, Column: col, Msg: "unterminated string"}
		}
		c := r.next()
		switch c {
		case '"':
			return String(sb.String()), nil
		case '\\':
			if r.eof() {
				return nil, &SyntaxError{Line: line, Column: col, Msg: "unterminated string"}
			}
			switch esc := r.next(); esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '\\', '"':
				sb.WriteByte(esc)
			default:
				return nil, r.errorf("unknown escape \\%c", esc)
			}
		default:
			sb.WriteByte(c)
		}
	}
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '"', ';', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

func (r *reader) readAtom() (Expr, error) {
	line, col := r.line, r.col
	start := r.pos
	for !r.eof() && !isDelimiter(r.peek()) {
		r.next()
	}
	tok := r.src[start:r.pos]

	switch tok {
	case "#t":
		return Bool(true), nil
	case "#f":
		return Bool(false), nil
	}

	if looksNumeric(tok) {
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, &SyntaxError{Line: line, Column: col, Msg: fmt.Sprintf("invalid integer %q", tok)}
		}
		return Integer(n), nil
	}
	if strings.HasPrefix(tok, "#") {
		return nil, &SyntaxError{Line: line, Column: col, Msg: fmt.Sprintf("unknown literal %q", tok)}
	}
	return Symbol(tok), nil
}

func looksNumeric(tok string) bool {
	digits := tok
	if len(tok) > 1 && (tok[0] == '-' || tok[0] == '+') {
		digits = tok[1:]
	}
	if digits == "" {
		return false
	}
	return digits[0] >= '0' && digits[0] <= '9'
}
