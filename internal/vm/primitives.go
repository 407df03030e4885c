package vm

import (
	"fmt"

	"github.com/tinyrange/lustc/internal/foreign"
	"github.com/tinyrange/lustc/internal/value"
)

func builtinPrimitives() map[string]Primitive {
	return map[string]Primitive{
		foreign.Puts.Name: primPuts,
		foreign.Exit.Name: primExit,
	}
}

// ReadString decodes the immediate string at v. The heap tag, if any, is
// stripped first so both string values and raw data addresses are accepted.
func (m *Machine) ReadString(v int64) ([]byte, error) {
	start, err := m.wordIndex(value.Untag(v))
	if err != nil {
		return nil, fmt.Errorf("vm: read string: %v", err)
	}
	end := start
	for end < m.heapNext && m.mem[end] != value.StringTerminator {
		end++
	}
	if end == m.heapNext {
		return nil, fmt.Errorf("vm: read string at 0x%x: missing terminator", value.Untag(v))
	}
	text, err := value.DecodeImmediateString(m.mem[start : end+1])
	if err != nil {
		return nil, fmt.Errorf("vm: read string: %w", err)
	}
	return text, nil
}

// ExitCode converts the argument of exit to a process exit code. Fixnums are
// decoded; any other word is used as is.
func ExitCode(v int64) int {
	if value.Classify(v) == value.KindFixnum {
		return int(value.FixnumValue(v))
	}
	return int(v)
}

func primPuts(m *Machine, args []int64) (int64, error) {
	text, err := m.ReadString(args[0])
	if err != nil {
		return 0, err
	}
	line := make([]byte, 0, len(text)+1)
	line = append(append(line, text...), '\n')
	if _, err := m.stdout.Write(line); err != nil {
		return 0, fmt.Errorf("vm: puts: %w", err)
	}
	return value.Fixnum(int64(len(line))), nil
}

func primExit(m *Machine, args []int64) (int64, error) {
	code := ExitCode(args[0])
	m.logger.Debug("program called exit", "code", code)
	if m.opts.Exit != nil {
		m.opts.Exit(code)
	}
	return 0, &ExitError{Code: code}
}
