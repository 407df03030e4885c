package compiler

import (
	"fmt"

	"github.com/tinyrange/lustc/internal/ir"
	"github.com/tinyrange/lustc/internal/lisp"
)

// EmitForeignCall evaluates args and calls the runtime primitive name with
// them. The name must resolve and the argument count must match its
// signature.
func (ctx *Context) EmitForeignCall(name string, args []lisp.Expr) (ir.Value, error) {
	sig, err := ctx.c.resolver.Resolve(name)
	if err != nil {
		return ir.NoValue, &ForeignCallError{Name: name, Err: err}
	}
	if len(args) != sig.Params {
		return ir.NoValue, &ForeignCallError{
			Name: name,
			Err:  fmt.Errorf("takes %d arguments, got %d", sig.Params, len(args)),
		}
	}

	vals := make([]ir.Value, 0, len(args))
	for _, arg := range args {
		v, err := ctx.Evaluate(arg)
		if err != nil {
			return ir.NoValue, err
		}
		vals = append(vals, v)
	}
	result := ctx.Builder.CallForeign(name, vals...)
	if err := ctx.Builder.Err(); err != nil {
		return ir.NoValue, err
	}
	return result, nil
}
