package compiler

import (
	"github.com/tinyrange/lustc/internal/ir"
	"github.com/tinyrange/lustc/internal/lisp"
	"github.com/tinyrange/lustc/internal/value"
)

// Evaluate generates code computing expr and returns the tagged result.
func (ctx *Context) Evaluate(expr lisp.Expr) (ir.Value, error) {
	v, err := ctx.evaluate(expr)
	if err != nil {
		return ir.NoValue, err
	}
	if err := ctx.Builder.Err(); err != nil {
		return ir.NoValue, err
	}
	return v, nil
}

func (ctx *Context) evaluate(expr lisp.Expr) (ir.Value, error) {
	b := ctx.Builder
	switch e := expr.(type) {
	case lisp.Integer:
		n := int64(e)
		if n > value.MaxFixnum || n < value.MinFixnum {
			return ir.NoValue, evalErrorf(e, "integer does not fit in a fixnum")
		}
		return b.Iconst(value.Fixnum(n)), nil
	case lisp.Bool:
		return b.Iconst(value.Bool(bool(e))), nil
	case lisp.String:
		sym, err := ctx.c.internString(string(e))
		if err != nil {
			return ir.NoValue, err
		}
		return ctx.dataString(sym), nil
	case lisp.Symbol:
		return ctx.lookup(e)
	case lisp.List:
		return ctx.evaluateList(e)
	case nil:
		return ir.NoValue, evalErrorf(nil, "nil expression")
	default:
		return ir.NoValue, evalErrorf(expr, "unsupported expression %T", expr)
	}
}

func (ctx *Context) dataString(sym string) ir.Value {
	addr := ctx.Builder.DataAddr(sym)
	return ctx.Builder.BorImm(addr, value.StringTag)
}

func (ctx *Context) lookup(sym lisp.Symbol) (ir.Value, error) {
	name := string(sym)
	if v, ok := ctx.scope.lookup(name); ok {
		return v, nil
	}
	if idx, ok := ctx.captured[name]; ok {
		return ctx.Builder.Load(ctx.closure, closureSlot(idx)), nil
	}
	if _, ok := ctx.c.prog.LookupData(name); ok {
		return ctx.dataString(name), nil
	}
	return ir.NoValue, evalErrorf(sym, "unbound symbol")
}

// evaluateBody evaluates exprs in order and yields the last value, or nil
// for an empty body.
func (ctx *Context) evaluateBody(exprs []lisp.Expr) (ir.Value, error) {
	if len(exprs) == 0 {
		return ctx.Builder.Iconst(value.Nil), nil
	}
	var last ir.Value
	for _, e := range exprs {
		v, err := ctx.Evaluate(e)
		if err != nil {
			return ir.NoValue, err
		}
		last = v
	}
	return last, nil
}

func (ctx *Context) evaluateList(l lisp.List) (ir.Value, error) {
	if len(l) == 0 {
		return ctx.Builder.Iconst(value.Nil), nil
	}
	if form, ok := RecognizeErrorForm(l); ok {
		return ctx.EmitFatalExit(form.Message, form.ExitCode)
	}
	if head, ok := l.Head(); ok && !ctx.isBound(string(head)) {
		switch head {
		case "lambda":
			return ctx.emitLambda(l)
		case "let":
			return ctx.emitLet(l)
		case "if":
			return ctx.emitIf(l)
		case "begin":
			return ctx.evaluateBody(l[1:])
		}
		if prim, ok := primitives[head]; ok {
			return ctx.emitPrimitive(l, prim)
		}
	}
	return ctx.emitApply(l)
}

// emitApply calls the closure in head position. The head is always checked
// by the callable guard first.
func (ctx *Context) emitApply(l lisp.List) (ir.Value, error) {
	callee, err := ctx.EmitCallableGuard(l[0])
	if err != nil {
		return ir.NoValue, err
	}
	args := make([]ir.Value, 0, len(l))
	args = append(args, callee)
	for _, e := range l[1:] {
		v, err := ctx.Evaluate(e)
		if err != nil {
			return ir.NoValue, err
		}
		args = append(args, v)
	}
	code := ctx.Builder.Load(callee, -value.ClosureTag)
	return ctx.Builder.CallIndirect(code, args...), nil
}

func (ctx *Context) emitLet(l lisp.List) (ir.Value, error) {
	if len(l) < 2 {
		return ir.NoValue, evalErrorf(l, "let requires a binding list")
	}
	bindings, ok := l[1].(lisp.List)
	if !ok {
		return ir.NoValue, evalErrorf(l, "let bindings must be a list")
	}

	names := make([]string, 0, len(bindings))
	vals := make([]ir.Value, 0, len(bindings))
	for _, raw := range bindings {
		pair, ok := raw.(lisp.List)
		if !ok || len(pair) != 2 {
			return ir.NoValue, evalErrorf(raw, "let binding must be (name expr)")
		}
		name, ok := pair[0].(lisp.Symbol)
		if !ok {
			return ir.NoValue, evalErrorf(raw, "let binding name must be a symbol")
		}
		if err := checkBindable(raw, name); err != nil {
			return ir.NoValue, err
		}
		v, err := ctx.Evaluate(pair[1])
		if err != nil {
			return ir.NoValue, err
		}
		names = append(names, string(name))
		vals = append(vals, v)
	}

	ctx.pushScope()
	defer ctx.popScope()
	for i, name := range names {
		ctx.Bind(name, vals[i])
	}
	return ctx.evaluateBody(l[2:])
}

// emitIf lowers (if test then [else]). Both arms are sealed as soon as their
// single edge exists; the merge block is sealed after both arms jump to it.
func (ctx *Context) emitIf(l lisp.List) (ir.Value, error) {
	if len(l) != 3 && len(l) != 4 {
		return ir.NoValue, evalErrorf(l, "if takes 2 or 3 arguments")
	}
	b := ctx.Builder

	test, err := ctx.Evaluate(l[1])
	if err != nil {
		return ir.NoValue, err
	}
	truthy := b.IcmpImm(ir.CondNotEqual, test, value.False)

	thenBlock := b.CreateBlock()
	elseBlock := b.CreateBlock()
	merge := b.CreateBlock()
	result := b.AppendBlockParam(merge)

	if err := b.Brz(truthy, elseBlock); err != nil {
		return ir.NoValue, err
	}
	if err := b.Jump(thenBlock); err != nil {
		return ir.NoValue, err
	}

	var otherwise lisp.Expr = lisp.List(nil)
	if len(l) == 4 {
		otherwise = l[3]
	}
	arms := []struct {
		block ir.Block
		expr  lisp.Expr
	}{
		{thenBlock, l[2]},
		{elseBlock, otherwise},
	}
	for _, arm := range arms {
		b.SwitchToBlock(arm.block)
		if err := b.SealBlock(arm.block); err != nil {
			return ir.NoValue, err
		}
		v, err := ctx.Evaluate(arm.expr)
		if err != nil {
			return ir.NoValue, err
		}
		if err := b.Jump(merge, v); err != nil {
			return ir.NoValue, err
		}
	}

	b.SwitchToBlock(merge)
	if err := b.SealBlock(merge); err != nil {
		return ir.NoValue, err
	}
	return result, nil
}
