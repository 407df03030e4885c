package compiler

import (
	"github.com/tinyrange/lustc/internal/ir"
	"github.com/tinyrange/lustc/internal/lisp"
	"github.com/tinyrange/lustc/internal/value"
)

// Closure layout: word 0 holds the code address, words 1..n the captured
// values. The closure pointer carries ClosureTag, and callees receive it as
// their first argument.

// closureSlot is the load offset of captured value idx relative to a tagged
// closure pointer.
func closureSlot(idx int) int64 {
	return int64(8*(idx+1)) - value.ClosureTag
}

func (ctx *Context) emitLambda(l lisp.List) (ir.Value, error) {
	if len(l) < 3 {
		return ir.NoValue, evalErrorf(l, "lambda requires parameters and a body")
	}
	rawParams, ok := l[1].(lisp.List)
	if !ok {
		return ir.NoValue, evalErrorf(l, "lambda parameters must be a list")
	}

	params := make([]string, 0, len(rawParams))
	seen := make(map[string]bool, len(rawParams))
	for _, raw := range rawParams {
		sym, ok := raw.(lisp.Symbol)
		if !ok {
			return ir.NoValue, evalErrorf(raw, "lambda parameter must be a symbol")
		}
		if err := checkBindable(l, sym); err != nil {
			return ir.NoValue, err
		}
		if seen[string(sym)] {
			return ir.NoValue, evalErrorf(l, "duplicate parameter %s", sym)
		}
		seen[string(sym)] = true
		params = append(params, string(sym))
	}
	body := l[2:]

	var free []string
	for _, name := range freeVariables(body, seen) {
		if ctx.isBound(name) {
			free = append(free, name)
		}
	}

	name := ctx.c.nextLambdaName()
	inner := ctx.c.NewFunction(name, 1+len(params))
	fnParams := inner.Builder.Func().Params()
	inner.closure = fnParams[0]
	for i, p := range params {
		inner.Bind(p, fnParams[i+1])
	}
	for i, v := range free {
		inner.captured[v] = i
	}

	result, err := inner.evaluateBody(body)
	if err != nil {
		return ir.NoValue, err
	}
	inner.Builder.Return(result)
	if _, err := inner.Finish(); err != nil {
		return ir.NoValue, err
	}

	b := ctx.Builder
	env := b.Alloc(int64(1 + len(free)))
	b.Store(env, b.FuncAddr(name), 0)
	for i, v := range free {
		captured, err := ctx.lookup(lisp.Symbol(v))
		if err != nil {
			return ir.NoValue, err
		}
		b.Store(env, captured, int64(8*(i+1)))
	}
	return b.BorImm(env, value.ClosureTag), nil
}

// freeVariables lists, in order of first use, the symbols in body that are
// not bound by bound or by a binding form inside body. Callers filter the
// result down to names that are actually variables in the enclosing function.
func freeVariables(body []lisp.Expr, bound map[string]bool) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(e lisp.Expr, bound map[string]bool)
	walk = func(e lisp.Expr, bound map[string]bool) {
		switch e := e.(type) {
		case lisp.Symbol:
			name := string(e)
			if !bound[name] && !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		case lisp.List:
			head, _ := e.Head()
			switch {
			case head == "lambda" && !bound["lambda"] && len(e) >= 2:
				inner := extend(bound, paramNames(e[1]))
				for _, sub := range e[2:] {
					walk(sub, inner)
				}
			case head == "let" && !bound["let"] && len(e) >= 2:
				var names []string
				if bindings, ok := e[1].(lisp.List); ok {
					for _, raw := range bindings {
						if pair, ok := raw.(lisp.List); ok && len(pair) == 2 {
							walk(pair[1], bound)
							if sym, ok := pair[0].(lisp.Symbol); ok {
								names = append(names, string(sym))
							}
						}
					}
				}
				inner := extend(bound, names)
				for _, sub := range e[2:] {
					walk(sub, inner)
				}
			default:
				for _, sub := range e {
					walk(sub, bound)
				}
			}
		}
	}
	for _, e := range body {
		walk(e, bound)
	}
	return out
}

func paramNames(e lisp.Expr) []string {
	list, _ := e.(lisp.List)
	names := make([]string, 0, len(list))
	for _, p := range list {
		if sym, ok := p.(lisp.Symbol); ok {
			names = append(names, string(sym))
		}
	}
	return names
}

func extend(bound map[string]bool, names []string) map[string]bool {
	out := make(map[string]bool, len(bound)+len(names))
	for k, v := range bound {
		out[k] = v
	}
	for _, n := range names {
		out[n] = true
	}
	return out
}
