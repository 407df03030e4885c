package amd64

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/tinyrange/lustc/internal/asm"
	amd64asm "github.com/tinyrange/lustc/internal/asm/amd64"
	"github.com/tinyrange/lustc/internal/native"
)

const standaloneAlignment = 16

// BuildStandaloneProgram compiles every method of p and links them into one
// program. The entrypoint comes first so the program starts at offset zero;
// globals follow the code in BSS.
func BuildStandaloneProgram(p *native.Program) (asm.Program, error) {
	if p == nil {
		return asm.Program{}, fmt.Errorf("native: program must be non-nil")
	}
	if _, ok := p.Methods[p.Entrypoint]; !ok {
		return asm.Program{}, fmt.Errorf("native: entrypoint %q not found", p.Entrypoint)
	}

	names := make([]string, 0, len(p.Methods))
	for name := range p.Methods {
		if name != p.Entrypoint {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	names = append([]string{p.Entrypoint}, names...)

	code := make([]byte, 0)
	methodAddrs := make(map[uint64]uint64, len(names))
	for _, name := range names {
		frag, err := Compile(p.Methods[name])
		if err != nil {
			return asm.Program{}, fmt.Errorf("native: method %q: %w", name, err)
		}
		prog, err := amd64asm.EmitProgram(frag)
		if err != nil {
			return asm.Program{}, fmt.Errorf("native: method %q: %w", name, err)
		}
		code = padTo(code, standaloneAlignment)
		token := methodPointerPlaceholder(name)
		if _, dup := methodAddrs[token]; dup {
			return asm.Program{}, fmt.Errorf("native: duplicate method token for %q", name)
		}
		methodAddrs[token] = uint64(len(code))
		code = append(code, prog.Bytes()...)
	}

	bssBase := align(len(code), standaloneAlignment)
	globalNames := make([]string, 0, len(p.Globals))
	for name := range p.Globals {
		globalNames = append(globalNames, name)
	}
	sort.Strings(globalNames)

	globalAddrs := make(map[uint64]uint64, len(globalNames))
	cursor := 0
	for _, name := range globalNames {
		g, err := normalizeGlobalConfig(name, p.Globals[name])
		if err != nil {
			return asm.Program{}, err
		}
		cursor = align(cursor, g.align)
		token := globalPointerPlaceholder(name)
		if _, dup := globalAddrs[token]; dup {
			return asm.Program{}, fmt.Errorf("native: duplicate global token for %q", name)
		}
		globalAddrs[token] = uint64(bssBase + cursor)
		cursor += g.size
	}

	relocs, err := patchPlaceholders(code, methodAddrs, globalAddrs)
	if err != nil {
		return asm.Program{}, err
	}
	return asm.NewProgram(code, relocs, bssBase-len(code)+cursor), nil
}

// patchPlaceholders replaces every method and global token in code with its
// offset from the start of the program and returns the patched positions.
func patchPlaceholders(code []byte, methods, globals map[uint64]uint64) ([]int, error) {
	var relocs []int
	for idx := 0; idx+8 <= len(code); idx++ {
		token := binary.LittleEndian.Uint64(code[idx:])
		addr, ok := methods[token]
		if !ok {
			addr, ok = globals[token]
		}
		if !ok {
			switch token &^ placeholderMask {
			case methodPointerPrefix:
				return nil, fmt.Errorf("native: reference to undefined method token %#x", token)
			case globalPointerPrefix:
				return nil, fmt.Errorf("native: reference to undefined global token %#x", token)
			}
			continue
		}
		binary.LittleEndian.PutUint64(code[idx:], addr)
		relocs = append(relocs, idx)
		idx += 7
	}
	return relocs, nil
}

func padTo(code []byte, boundary int) []byte {
	if pad := align(len(code), boundary) - len(code); pad > 0 {
		code = append(code, make([]byte, pad)...)
	}
	return code
}

func align(value, boundary int) int {
	if boundary <= 0 {
		return value
	}
	mask := boundary - 1
	return (value + mask) &^ mask
}

const (
	methodPointerPrefix = 0x5ead000000000000
	globalPointerPrefix = 0x5eae000000000000
	placeholderMask     = 0x0000ffffffffffff
)

func methodPointerPlaceholder(name string) uint64 {
	return methodPointerPrefix | (hashName(name) & placeholderMask)
}

func globalPointerPlaceholder(name string) uint64 {
	return globalPointerPrefix | (hashName(name) & placeholderMask)
}

func hashName(name string) uint64 {
	hash := fnv.New64a()
	_, _ = hash.Write([]byte(name))
	return hash.Sum64()
}

type normalizedGlobal struct {
	size  int
	align int
}

func normalizeGlobalConfig(name string, cfg native.GlobalConfig) (normalizedGlobal, error) {
	size := cfg.Size
	if size <= 0 {
		size = 8
	}
	alignment := cfg.Align
	if alignment <= 0 {
		alignment = 8
	}
	if alignment&(alignment-1) != 0 {
		return normalizedGlobal{}, fmt.Errorf("native: global %q alignment %d is not a power of two", name, alignment)
	}
	return normalizedGlobal{size: size, align: alignment}, nil
}
