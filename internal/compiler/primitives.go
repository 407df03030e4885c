package compiler

import (
	"github.com/tinyrange/lustc/internal/ir"
	"github.com/tinyrange/lustc/internal/lisp"
	"github.com/tinyrange/lustc/internal/value"
)

// primitive is an operator open-coded at its call site. Operands are not type
// checked; arithmetic on non-fixnums yields garbage, not a fault.
type primitive struct {
	arity int
	emit  func(b *ir.Builder, args []ir.Value) ir.Value
}

var primitives = map[lisp.Symbol]primitive{
	"+": {2, func(b *ir.Builder, a []ir.Value) ir.Value {
		return b.Binary(ir.OpIadd, a[0], a[1])
	}},
	"-": {2, func(b *ir.Builder, a []ir.Value) ir.Value {
		return b.Binary(ir.OpIsub, a[0], a[1])
	}},
	"*": {2, func(b *ir.Builder, a []ir.Value) ir.Value {
		// One operand is untagged so the product keeps a single tag shift.
		return b.Binary(ir.OpImul, b.SshrImm(a[0], value.FixnumShift), a[1])
	}},
	"=": {2, func(b *ir.Builder, a []ir.Value) ir.Value {
		return boolFromFlag(b, b.Icmp(ir.CondEqual, a[0], a[1]))
	}},
	"<": {2, func(b *ir.Builder, a []ir.Value) ir.Value {
		return boolFromFlag(b, b.Icmp(ir.CondSignedLess, a[0], a[1]))
	}},
	">": {2, func(b *ir.Builder, a []ir.Value) ir.Value {
		return boolFromFlag(b, b.Icmp(ir.CondSignedGreater, a[0], a[1]))
	}},
	"not": {1, func(b *ir.Builder, a []ir.Value) ir.Value {
		return boolFromFlag(b, b.IcmpImm(ir.CondEqual, a[0], value.False))
	}},
	"null?": {1, func(b *ir.Builder, a []ir.Value) ir.Value {
		return boolFromFlag(b, b.IcmpImm(ir.CondEqual, a[0], value.Nil))
	}},
	"closure?": {1, func(b *ir.Builder, a []ir.Value) ir.Value {
		masked := b.BandImm(a[0], value.HeapTagMask)
		return boolFromFlag(b, b.IcmpImm(ir.CondEqual, masked, value.ClosureTag))
	}},
	"cons": {2, func(b *ir.Builder, a []ir.Value) ir.Value {
		cell := b.Alloc(2)
		b.Store(cell, a[0], 0)
		b.Store(cell, a[1], 8)
		return b.BorImm(cell, value.PairTag)
	}},
	"car": {1, func(b *ir.Builder, a []ir.Value) ir.Value {
		return b.Load(a[0], -value.PairTag)
	}},
	"cdr": {1, func(b *ir.Builder, a []ir.Value) ir.Value {
		return b.Load(a[0], 8-value.PairTag)
	}},
}

// boolFromFlag converts a 0/1 comparison result into #f/#t.
func boolFromFlag(b *ir.Builder, flag ir.Value) ir.Value {
	return b.BorImm(b.IshlImm(flag, value.BoolShift), value.BoolTag)
}

func (ctx *Context) emitPrimitive(l lisp.List, prim primitive) (ir.Value, error) {
	if got := len(l) - 1; got != prim.arity {
		return ir.NoValue, evalErrorf(l, "expects %d arguments, got %d", prim.arity, got)
	}
	args := make([]ir.Value, 0, prim.arity)
	for _, e := range l[1:] {
		v, err := ctx.Evaluate(e)
		if err != nil {
			return ir.NoValue, err
		}
		args = append(args, v)
	}
	return prim.emit(ctx.Builder, args), nil
}
