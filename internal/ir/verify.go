package ir

import "fmt"

// Verify checks the structural invariants of a finished function: every block
// is sealed and terminated, branches only reach existing blocks with the right
// number of arguments, and the recorded predecessor lists match the edges
// actually present.
func Verify(fn *Function) error {
	if len(fn.Blocks) == 0 {
		return fmt.Errorf("ir: %s: function has no blocks", fn.Name)
	}
	if len(fn.Blocks[0].Preds) != 0 {
		return fmt.Errorf("ir: %s: entry block has predecessors", fn.Name)
	}

	edges := make([][]Block, len(fn.Blocks))
	for i, data := range fn.Blocks {
		blk := Block(i)
		if !data.Sealed {
			return fmt.Errorf("ir: %s: %s is not sealed", fn.Name, blk)
		}
		if !data.Terminated() {
			return fmt.Errorf("ir: %s: %s has no terminator", fn.Name, blk)
		}
		for j, inst := range data.Insts {
			if inst.IsTerminator() && j != len(data.Insts)-1 {
				return fmt.Errorf("ir: %s: %s: %s is not the last instruction", fn.Name, blk, inst.Op)
			}
			if inst.Op != OpBrz && inst.Op != OpJump {
				continue
			}
			if inst.Target < 0 || int(inst.Target) >= len(fn.Blocks) {
				return fmt.Errorf("ir: %s: %s: branch to unknown %s", fn.Name, blk, inst.Target)
			}
			target := fn.Blocks[inst.Target]
			if got, want := len(inst.BlockArgs()), len(target.Params); got != want {
				return fmt.Errorf("ir: %s: %s: %s to %s passes %d arguments, want %d",
					fn.Name, blk, inst.Op, inst.Target, got, want)
			}
			edges[inst.Target] = append(edges[inst.Target], blk)
		}
	}

	for i, data := range fn.Blocks {
		if !sameEdges(edges[i], data.Preds) {
			return fmt.Errorf("ir: %s: %s records predecessors %v but has edges from %v",
				fn.Name, Block(i), data.Preds, edges[i])
		}
	}
	return nil
}

func sameEdges(a, b []Block) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[Block]int, len(a))
	for _, blk := range a {
		counts[blk]++
	}
	for _, blk := range b {
		counts[blk]--
		if counts[blk] < 0 {
			return false
		}
	}
	return true
}
