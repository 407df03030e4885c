// Package compiler lowers Lisp syntax trees into block-graph IR.
//
// A Compiler owns one ir.Program. Each function body is generated through a
// Context holding the function's builder, cursor and lexical scope. Code
// generation is single threaded; neither type may be shared between
// goroutines.
package compiler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinyrange/lustc/internal/foreign"
	"github.com/tinyrange/lustc/internal/ir"
	"github.com/tinyrange/lustc/internal/lisp"
	"github.com/tinyrange/lustc/internal/value"
)

// EntryPoint is the function top-level expressions are compiled into.
const EntryPoint = "main"

// reservedPrefix marks compiler-generated data symbols. User bindings may
// not use it, so a data symbol can never be shadowed by a local.
const reservedPrefix = "__anon_data_"

// Options configures a Compiler.
type Options struct {
	// Resolver validates foreign calls. Defaults to foreign.Runtime().
	Resolver foreign.Resolver
	// Logger receives debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// Compiler holds the state for one program build.
type Compiler struct {
	prog     *ir.Program
	resolver foreign.Resolver
	logger   *slog.Logger

	interned    map[string]string
	anonCount   int
	lambdaCount int
	compiled    bool
}

// New returns a compiler with an empty program.
func New(opts Options) *Compiler {
	c := &Compiler{
		prog:     ir.NewProgram(EntryPoint),
		resolver: opts.Resolver,
		logger:   opts.Logger,
		interned: make(map[string]string),
	}
	if c.resolver == nil {
		c.resolver = foreign.Runtime()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Compile builds a complete program from top-level expressions. The program
// returns the value of the last expression, or nil when there is none.
func Compile(exprs []lisp.Expr, opts Options) (*ir.Program, error) {
	return New(opts).CompileProgram(exprs)
}

// CompileSource parses src and compiles it.
func CompileSource(src string, opts Options) (*ir.Program, error) {
	exprs, err := lisp.Parse(src)
	if err != nil {
		return nil, err
	}
	return Compile(exprs, opts)
}

// Program returns the program under construction.
func (c *Compiler) Program() *ir.Program { return c.prog }

// CompileProgram registers the fatal messages and then generates the entry
// function. It may be called once per Compiler.
func (c *Compiler) CompileProgram(exprs []lisp.Expr) (*ir.Program, error) {
	if c.compiled {
		return nil, fmt.Errorf("compiler: program already compiled")
	}
	c.compiled = true

	if err := c.RegisterFatalMessages(); err != nil {
		return nil, err
	}

	ctx := c.NewFunction(EntryPoint, 0)
	result, err := ctx.evaluateBody(exprs)
	if err != nil {
		return nil, err
	}
	ctx.Builder.Return(result)
	if _, err := ctx.Finish(); err != nil {
		return nil, err
	}
	return c.prog, nil
}

// InstallData places words in the data section under name. Each name may be
// installed once.
func (c *Compiler) InstallData(name string, words []int64) error {
	if err := c.prog.AddData(name, words); err != nil {
		return fmt.Errorf("compiler: %w", err)
	}
	c.logger.Debug("installed data symbol", "symbol", name, "words", len(words))
	return nil
}

// internString returns the data symbol holding text, installing it on first
// use.
func (c *Compiler) internString(text string) (string, error) {
	if sym, ok := c.interned[text]; ok {
		return sym, nil
	}
	words, err := value.EncodeImmediateString([]byte(text))
	if err != nil {
		return "", &EncodingError{Symbol: fmt.Sprintf("%q", text), Err: err}
	}
	sym := fmt.Sprintf("%s%d", reservedPrefix, c.anonCount)
	c.anonCount++
	if err := c.InstallData(sym, words); err != nil {
		return "", err
	}
	c.interned[text] = sym
	return sym, nil
}

func (c *Compiler) nextLambdaName() string {
	name := fmt.Sprintf("__lambda_%d", c.lambdaCount)
	c.lambdaCount++
	return name
}

type scope struct {
	parent *scope
	vars   map[string]ir.Value
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, vars: make(map[string]ir.Value)}
}

func (s *scope) lookup(name string) (ir.Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return ir.NoValue, false
}

// Context is the code generation cursor for one function.
type Context struct {
	c       *Compiler
	Builder *ir.Builder

	scope *scope
	// closure is the callee's own closure value; NoValue in the entry point.
	closure  ir.Value
	captured map[string]int
}

// NewFunction starts generating a function with the given parameter count.
func (c *Compiler) NewFunction(name string, params int) *Context {
	return &Context{
		c:        c,
		Builder:  ir.NewBuilder(name, params),
		scope:    newScope(nil),
		closure:  ir.NoValue,
		captured: map[string]int{},
	}
}

// Compiler returns the compiler the context belongs to.
func (ctx *Context) Compiler() *Compiler { return ctx.c }

// Finish verifies the function and adds it to the program.
func (ctx *Context) Finish() (*ir.Function, error) {
	fn, err := ctx.Builder.Finish()
	if err != nil {
		return nil, err
	}
	if err := ctx.c.prog.AddFunction(fn); err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	ctx.c.logger.Debug("emitted function", "name", fn.Name, "blocks", len(fn.Blocks), "values", fn.NumValues())
	return fn, nil
}

// Bind makes name refer to v in the innermost scope.
func (ctx *Context) Bind(name string, v ir.Value) {
	ctx.scope.vars[name] = v
}

func (ctx *Context) pushScope() { ctx.scope = newScope(ctx.scope) }

func (ctx *Context) popScope() { ctx.scope = ctx.scope.parent }

// isBound reports whether name is a variable visible in this function,
// either local or captured.
func (ctx *Context) isBound(name string) bool {
	if _, ok := ctx.scope.lookup(name); ok {
		return true
	}
	_, ok := ctx.captured[name]
	return ok
}

func checkBindable(expr lisp.Expr, name lisp.Symbol) error {
	if strings.HasPrefix(string(name), reservedPrefix) {
		return evalErrorf(expr, "cannot bind reserved name %s", name)
	}
	return nil
}
