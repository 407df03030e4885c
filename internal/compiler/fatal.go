package compiler

import (
	"github.com/tinyrange/lustc/internal/foreign"
	"github.com/tinyrange/lustc/internal/ir"
	"github.com/tinyrange/lustc/internal/lisp"
	"github.com/tinyrange/lustc/internal/value"
)

// BadCallTypeSymbol is the data symbol holding the diagnostic printed when a
// non-closure is called.
const BadCallTypeSymbol = "__anon_data_bad_call_type"

// BadCallExitCode is the exit status of a process that called a non-closure.
const BadCallExitCode = -1

// FatalMessage is a diagnostic placed in the data section for fatal exits.
type FatalMessage struct {
	Symbol string
	Text   string
}

// fatalMessages is the fixed set of fatal diagnostics. Entries are only ever
// appended. Exit codes are chosen by each emitting call site.
var fatalMessages = [...]FatalMessage{
	{Symbol: BadCallTypeSymbol, Text: "fatal error: non-closure object in head position of list"},
}

// FatalMessages returns a copy of the fatal diagnostic table.
func FatalMessages() []FatalMessage {
	return append([]FatalMessage(nil), fatalMessages[:]...)
}

// RegisterFatalMessages installs every fatal diagnostic in the data section.
// It must run once per program, before any code that may emit a fatal exit.
func (c *Compiler) RegisterFatalMessages() error {
	return c.registerMessages(fatalMessages[:])
}

// registerMessages encodes every entry before installing any, so a bad entry
// leaves the data section untouched.
func (c *Compiler) registerMessages(table []FatalMessage) error {
	encoded := make([][]int64, len(table))
	for i, msg := range table {
		words, err := value.EncodeImmediateString([]byte(msg.Text))
		if err != nil {
			return &EncodingError{Symbol: msg.Symbol, Err: err}
		}
		encoded[i] = words
	}
	for i, msg := range table {
		if err := c.InstallData(msg.Symbol, encoded[i]); err != nil {
			return err
		}
	}
	return nil
}

// EmitFatalExit emits puts(message) followed by exit(exitCode) at the cursor.
// The returned value is the exit call's result; it is never observed at run
// time since the process is gone by then. A literal exitCode must be an
// integer.
func (ctx *Context) EmitFatalExit(message, exitCode lisp.Expr) (ir.Value, error) {
	switch code := exitCode.(type) {
	case lisp.String, lisp.Bool:
		return ir.NoValue, evalErrorf(code, "exit code must be an integer")
	case lisp.List:
		if len(code) == 0 {
			return ir.NoValue, evalErrorf(code, "exit code must be an integer")
		}
	}
	if _, err := ctx.EmitForeignCall(foreign.Puts.Name, []lisp.Expr{message}); err != nil {
		return ir.NoValue, err
	}
	return ctx.EmitForeignCall(foreign.Exit.Name, []lisp.Expr{exitCode})
}

// ErrorForm is the (error <message> <exit-code>) form. Its fields alias the
// elements of the recognised list.
type ErrorForm struct {
	Message  lisp.Expr
	ExitCode lisp.Expr
}

// RecognizeErrorForm reports whether expr is a three element list headed by
// the symbol error and returns its operands.
func RecognizeErrorForm(expr lisp.Expr) (ErrorForm, bool) {
	l, ok := expr.(lisp.List)
	if !ok || len(l) != 3 {
		return ErrorForm{}, false
	}
	if head, ok := l.Head(); !ok || head != "error" {
		return ErrorForm{}, false
	}
	return ErrorForm{Message: l[1], ExitCode: l[2]}, true
}

// EmitCallableGuard evaluates query and checks at run time that the result
// is a closure. On success the cursor is left at the start of the
// continuation block and the evaluated value is returned for use as the
// call target.
//
// Generated shape:
//
//	v   = <query>
//	m   = band_imm v, HeapTagMask
//	ok  = icmp_imm eq m, ClosureTag
//	brz ok, error
//	jump cont
//	error:                  ; sealed, one predecessor
//	    puts(BadCallTypeSymbol)
//	    exit(-1)
//	    jump cont           ; never taken
//	cont:                   ; sealed, two predecessors
func (ctx *Context) EmitCallableGuard(query lisp.Expr) (ir.Value, error) {
	b := ctx.Builder

	candidate, err := ctx.Evaluate(query)
	if err != nil {
		return ir.NoValue, err
	}
	masked := b.BandImm(candidate, value.HeapTagMask)
	isClosure := b.IcmpImm(ir.CondEqual, masked, value.ClosureTag)

	errorBlock := b.CreateBlock()
	cont := b.CreateBlock()

	if err := b.Brz(isClosure, errorBlock); err != nil {
		return ir.NoValue, err
	}
	if err := b.Jump(cont); err != nil {
		return ir.NoValue, err
	}

	b.SwitchToBlock(errorBlock)
	if err := b.SealBlock(errorBlock); err != nil {
		return ir.NoValue, err
	}
	if _, err := ctx.EmitFatalExit(lisp.Symbol(BadCallTypeSymbol), lisp.Integer(BadCallExitCode)); err != nil {
		return ir.NoValue, err
	}
	// exit does not return. The edge is dead but lets cont be sealed with a
	// complete predecessor set and gives the error block its terminator.
	if err := b.Jump(cont); err != nil {
		return ir.NoValue, err
	}

	b.SwitchToBlock(cont)
	if err := b.SealBlock(cont); err != nil {
		return ir.NoValue, err
	}

	ctx.c.logger.Debug("emitted callable guard",
		"function", b.Func().Name,
		"error_block", errorBlock.String(),
		"continuation", cont.String(),
	)
	return candidate, nil
}
