// Package native lowers compiled programs to a structured fragment IR that
// architecture backends turn into machine code, and runs the result in the
// current process.
package native

import (
	"fmt"
)

type Fragment interface{}

type MemoryFragment interface {
	Fragment
	WithDisp(disp any) Fragment
}

func asFragment(v any) Fragment {
	if f, ok := v.(Fragment); ok {
		return f
	}
	panic(fmt.Sprintf("cannot convert %T to Fragment", v))
}

type Condition interface {
	Fragment
}

type CompareKind int

const (
	CompareEqual CompareKind = iota
	CompareNotEqual
	CompareLess
	CompareLessOrEqual
	CompareGreater
	CompareGreaterOrEqual
)

type CompareCondition struct {
	Kind  CompareKind
	Left  Fragment
	Right Fragment
}

// Compare builds a signed comparison of left against right.
func Compare(kind CompareKind, left, right any) Condition {
	return CompareCondition{Kind: kind, Left: asFragment(left), Right: asFragment(right)}
}

func IsEqual(left, right any) Condition       { return Compare(CompareEqual, left, right) }
func IsGreaterThan(left, right any) Condition { return Compare(CompareGreater, left, right) }

type IsNegativeCondition struct {
	Value Fragment
}

func IsNegative(value Fragment) Condition {
	return IsNegativeCondition{Value: value}
}

type IsZeroCondition struct {
	Value Fragment
}

func IsZero(value Fragment) Condition {
	return IsZeroCondition{Value: value}
}

// Method is the body of one callable routine. DeclareParam fragments must
// come first and bind the incoming arguments in order.
type Method []Fragment

type Block []Fragment

type DeclareParam string

type Int64 int64

// Var is a method-local 64-bit variable.
type Var string

// Mem addresses the word Var points at.
func (v Var) Mem() MemVar {
	return MemVar{Base: v}
}

// MemWithDisp addresses the word disp bytes past the one Var points at.
func (v Var) MemWithDisp(disp any) MemVar {
	return MemVar{Base: v, Disp: asFragment(disp)}
}

type MemVar struct {
	Base Var
	Disp Fragment
}

func (m MemVar) WithDisp(disp any) Fragment {
	m.Disp = asFragment(disp)
	return m
}

// GlobalVar names a zero-initialised program-level block of memory.
type GlobalVar string

func Global(name string) GlobalVar {
	if name == "" {
		panic("native: global name must be non-empty")
	}
	return GlobalVar(name)
}

func (g GlobalVar) Name() string {
	return string(g)
}

func (g GlobalVar) Mem() GlobalMem {
	return GlobalMem{Name: string(g)}
}

func (g GlobalVar) MemWithDisp(disp any) GlobalMem {
	return GlobalMem{Name: string(g), Disp: asFragment(disp)}
}

// Pointer is a placeholder for the global's address, resolved at link time.
func (g GlobalVar) Pointer() Fragment {
	return GlobalPointerFragment{Name: string(g)}
}

type GlobalMem struct {
	Name string
	Disp Fragment
}

func (m GlobalMem) WithDisp(disp any) Fragment {
	m.Disp = asFragment(disp)
	return m
}

type GlobalPointerFragment struct {
	Name string
}

// AssignGlobal stores value into the first word of g.
func AssignGlobal(g GlobalVar, value any) Fragment {
	return Assign(g.Mem(), asFragment(value))
}

type MethodPointerFragment struct {
	Name string
}

// MethodPointer is a placeholder for the entry address of the named method.
func MethodPointer(name string) Fragment {
	if name == "" {
		panic("native: MethodPointer requires a method name")
	}
	return MethodPointerFragment{Name: name}
}

type Label string

// SyscallNumber is an architecture neutral system call; backends map it to
// their kernel's numbering.
type SyscallNumber int

const (
	SysWrite SyscallNumber = iota + 1
	SysExitGroup
)

func (n SyscallNumber) String() string {
	switch n {
	case SysWrite:
		return "write"
	case SysExitGroup:
		return "exit_group"
	default:
		return fmt.Sprintf("syscall(%d)", int(n))
	}
}

type SyscallFragment struct {
	Num  SyscallNumber
	Args []Fragment
}

func Syscall(num SyscallNumber, args ...any) Fragment {
	frags := make([]Fragment, 0, len(args))
	for _, arg := range args {
		frags = append(frags, asFragment(arg))
	}
	return SyscallFragment{Num: num, Args: frags}
}

type ReturnFragment struct {
	Value Fragment
}

func Return(value any) Fragment {
	return ReturnFragment{Value: asFragment(value)}
}

type AssignFragment struct {
	Dst Fragment
	Src Fragment
}

func Assign(dst Fragment, src Fragment) Fragment {
	return AssignFragment{Dst: dst, Src: src}
}

type IfFragment struct {
	Cond      Condition
	Then      Fragment
	Otherwise Fragment
}

func If(cond Condition, then Fragment, otherwise ...Fragment) Fragment {
	if len(otherwise) > 0 {
		return IfFragment{Cond: cond, Then: then, Otherwise: otherwise[0]}
	}
	return IfFragment{Cond: cond, Then: then}
}

type GotoFragment struct {
	Label Fragment
}

func Goto(label Fragment) Fragment {
	return GotoFragment{Label: label}
}

// CallFragment calls Target with Args in the argument registers and stores
// the return register in Result when it is set.
type CallFragment struct {
	Target Fragment
	Args   []Fragment
	Result Var
}

func Call(target any, result Var, args ...any) Fragment {
	frags := make([]Fragment, 0, len(args))
	for _, arg := range args {
		frags = append(frags, asFragment(arg))
	}
	return CallFragment{Target: asFragment(target), Args: frags, Result: result}
}

// CallMethod calls another method of the same program.
func CallMethod(name string, result Var, args ...any) Fragment {
	return Call(MethodPointer(name), result, args...)
}

type LabelFragment struct {
	Label Label
	Block Block
}

func DeclareLabel(label Label, block Block) Fragment {
	return LabelFragment{Label: label, Block: block}
}

type OpKind int

const (
	OpInvalid OpKind = iota
	OpAdd
	OpSub
	OpMul
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpSar
)

type OpFragment struct {
	Kind  OpKind
	Left  Fragment
	Right Fragment
}

func Op(kind OpKind, left, right Fragment) Fragment {
	return OpFragment{Kind: kind, Left: left, Right: right}
}

type GlobalConfig struct {
	// Size in bytes. Defaults to 8.
	Size int
	// Align must be a power of two. Defaults to 8.
	Align int
}

type Program struct {
	Entrypoint string
	Methods    map[string]Method
	Globals    map[string]GlobalConfig
}

var (
	_ Fragment = Block(nil)
	_ Fragment = DeclareParam("")
	_ Fragment = Var("")
	_ Fragment = Label("")
	_ Fragment = SyscallFragment{}
	_ Fragment = AssignFragment{}
	_ Fragment = IfFragment{}
	_ Fragment = GotoFragment{}
	_ Fragment = Method(nil)
	_ Fragment = ReturnFragment{}
	_ Fragment = CallFragment{}
	_ Fragment = MethodPointerFragment{}
	_ Fragment = GlobalPointerFragment{}

	_ MemoryFragment = MemVar{}
	_ MemoryFragment = GlobalMem{}
)
