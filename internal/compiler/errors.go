package compiler

import (
	"fmt"

	"github.com/tinyrange/lustc/internal/lisp"
)

// EncodingError reports text that could not be placed in the data section.
type EncodingError struct {
	Symbol string
	Err    error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("compiler: encode data %s: %v", e.Symbol, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// ForeignCallError reports a call to a primitive that cannot be emitted,
// either because the name does not resolve or because the call does not
// match its signature.
type ForeignCallError struct {
	Name string
	Err  error
}

func (e *ForeignCallError) Error() string {
	return fmt.Sprintf("compiler: foreign call %s: %v", e.Name, e.Err)
}

func (e *ForeignCallError) Unwrap() error { return e.Err }

// EvalError reports an expression the compiler cannot generate code for.
type EvalError struct {
	Expr lisp.Expr
	Msg  string
}

func (e *EvalError) Error() string {
	if e.Expr == nil {
		return "compiler: " + e.Msg
	}
	return fmt.Sprintf("compiler: %s: %s", e.Expr, e.Msg)
}

func evalErrorf(expr lisp.Expr, format string, args ...any) error {
	return &EvalError{Expr: expr, Msg: fmt.Sprintf(format, args...)}
}
