package ir

import (
	"reflect"
	"strings"
	"testing"
)

// buildDiamond builds the shape used for call guards: a conditional branch to
// a side block that rejoins the fallthrough block.
func buildDiamond(t *testing.T) (*Builder, Block, Block) {
	t.Helper()

	b := NewBuilder("f", 1)
	x := b.Func().Params()[0]
	masked := b.BandImm(x, 7)
	cond := b.IcmpImm(CondEqual, masked, 6)

	side := b.CreateBlock()
	join := b.CreateBlock()

	if err := b.Brz(cond, side); err != nil {
		t.Fatalf("Brz: %v", err)
	}
	if err := b.Jump(join); err != nil {
		t.Fatalf("Jump: %v", err)
	}

	b.SwitchToBlock(side)
	if err := b.SealBlock(side); err != nil {
		t.Fatalf("SealBlock(side): %v", err)
	}
	b.Iconst(1)
	if err := b.Jump(join); err != nil {
		t.Fatalf("Jump(join): %v", err)
	}

	b.SwitchToBlock(join)
	if err := b.SealBlock(join); err != nil {
		t.Fatalf("SealBlock(join): %v", err)
	}
	b.Return(x)
	return b, side, join
}

func TestBuilderDiamond(t *testing.T) {
	b, side, join := buildDiamond(t)

	fn, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got, want := b.Preds(side), []Block{0}; !reflect.DeepEqual(got, want) {
		t.Fatalf("side preds = %v, want %v", got, want)
	}
	if got, want := b.Preds(join), []Block{0, side}; !reflect.DeepEqual(got, want) {
		t.Fatalf("join preds = %v, want %v", got, want)
	}
	if !b.IsSealed(side) || !b.IsSealed(join) {
		t.Fatal("expected both blocks sealed")
	}

	want := `function f(v0) {
block0(v0):
    v1 = band_imm v0, 7
    v2 = icmp_imm eq v1, 6
    brz v2, block1
    jump block2

block1: ; preds: block0
    v3 = iconst 1
    jump block2

block2: ; preds: block0, block1
    return v0
}
`
	if got := fn.String(); got != want {
		t.Fatalf("unexpected dump\n got:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuilderRejectsEdgeIntoSealedBlock(t *testing.T) {
	b, _, join := buildDiamond(t)

	// The cursor sits in join, which is terminated; start a fresh block that
	// tries to reach the already sealed join block.
	extra := b.CreateBlock()
	b.SwitchToBlock(extra)
	err := b.Jump(join)
	if err == nil || !strings.Contains(err.Error(), "sealed") {
		t.Fatalf("expected sealed-block error, got %v", err)
	}
	if _, ferr := b.Finish(); ferr != err {
		t.Fatalf("Finish should return the sticky error, got %v", ferr)
	}
}

func TestBuilderDoubleSeal(t *testing.T) {
	b := NewBuilder("f", 0)
	blk := b.CreateBlock()
	if err := b.SealBlock(blk); err != nil {
		t.Fatalf("first SealBlock: %v", err)
	}
	if err := b.SealBlock(blk); err == nil {
		t.Fatal("expected error sealing twice")
	}
}

func TestBuilderEntryIsSealed(t *testing.T) {
	b := NewBuilder("f", 0)
	if !b.IsSealed(b.Func().Entry()) {
		t.Fatal("entry block should start sealed")
	}
	if err := b.Jump(b.Func().Entry()); err == nil {
		t.Fatal("expected error branching to entry")
	}
}

func TestBuilderInstructionAfterTerminator(t *testing.T) {
	b := NewBuilder("f", 0)
	b.Return(b.Iconst(0))
	if v := b.Iconst(1); v != NoValue {
		t.Fatalf("expected NoValue after terminator, got %s", v)
	}
	if b.Err() == nil {
		t.Fatal("expected sticky error")
	}
}

func TestBuilderSwitchFromOpenBlock(t *testing.T) {
	b := NewBuilder("f", 0)
	other := b.CreateBlock()
	b.Iconst(1)
	b.SwitchToBlock(other)
	if b.Err() == nil {
		t.Fatal("expected error leaving an unterminated block")
	}
}

func TestFinishRequiresSealedAndTerminated(t *testing.T) {
	b := NewBuilder("f", 0)
	blk := b.CreateBlock()
	if err := b.Jump(blk); err != nil {
		t.Fatalf("Jump: %v", err)
	}
	b.SwitchToBlock(blk)
	b.Return(b.Iconst(0))
	if _, err := b.Finish(); err == nil || !strings.Contains(err.Error(), "not sealed") {
		t.Fatalf("expected unsealed error, got %v", err)
	}

	b = NewBuilder("g", 0)
	b.Iconst(0)
	if _, err := b.Finish(); err == nil || !strings.Contains(err.Error(), "no terminator") {
		t.Fatalf("expected missing terminator error, got %v", err)
	}
}

func TestFinishChecksBlockArguments(t *testing.T) {
	b := NewBuilder("f", 0)
	join := b.CreateBlock()
	b.AppendBlockParam(join)
	if err := b.Jump(join); err != nil {
		t.Fatalf("Jump: %v", err)
	}
	b.SwitchToBlock(join)
	if err := b.SealBlock(join); err != nil {
		t.Fatalf("SealBlock: %v", err)
	}
	b.Return(b.BlockParams(join)[0])
	if _, err := b.Finish(); err == nil || !strings.Contains(err.Error(), "passes 0 arguments, want 1") {
		t.Fatalf("expected argument count error, got %v", err)
	}
}

func TestBlockParamsCarryValues(t *testing.T) {
	b := NewBuilder("select", 1)
	x := b.Func().Params()[0]
	thenBlk := b.CreateBlock()
	elseBlk := b.CreateBlock()
	merge := b.CreateBlock()
	result := b.AppendBlockParam(merge)

	if err := b.Brz(x, elseBlk); err != nil {
		t.Fatalf("Brz: %v", err)
	}
	if err := b.Jump(thenBlk); err != nil {
		t.Fatalf("Jump: %v", err)
	}
	for _, blk := range []Block{thenBlk, elseBlk} {
		b.SwitchToBlock(blk)
		if err := b.SealBlock(blk); err != nil {
			t.Fatalf("SealBlock: %v", err)
		}
		if err := b.Jump(merge, b.Iconst(int64(blk))); err != nil {
			t.Fatalf("Jump(merge): %v", err)
		}
	}
	b.SwitchToBlock(merge)
	if err := b.SealBlock(merge); err != nil {
		t.Fatalf("SealBlock(merge): %v", err)
	}
	b.Return(result)

	fn, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got := len(fn.Block(merge).Preds); got != 2 {
		t.Fatalf("merge has %d preds, want 2", got)
	}
}

func TestProgramData(t *testing.T) {
	p := NewProgram("main")
	if err := p.AddData("msg", []int64{1, 2, 0}); err != nil {
		t.Fatalf("AddData: %v", err)
	}
	if err := p.AddData("msg", nil); err == nil {
		t.Fatal("expected duplicate data error")
	}
	d, ok := p.LookupData("msg")
	if !ok || !reflect.DeepEqual(d.Words, []int64{1, 2, 0}) {
		t.Fatalf("LookupData = %#v, %v", d, ok)
	}
}
