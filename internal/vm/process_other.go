//go:build !darwin && !linux

package vm

import "os"

// ProcessOptions connects puts and exit to the current process: output goes
// to os.Stdout and exit ends the process through os.Exit.
func ProcessOptions() Options {
	return Options{
		Stdout: os.Stdout,
		Exit:   os.Exit,
	}
}
