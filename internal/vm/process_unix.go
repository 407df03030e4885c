//go:build darwin || linux

package vm

import "golang.org/x/sys/unix"

// ProcessOptions connects puts and exit to the current process: output is a
// raw write to file descriptor 1 and exit ends the process immediately
// without running deferred functions.
func ProcessOptions() Options {
	return Options{
		Stdout: fdWriter(1),
		Exit:   unix.Exit,
	}
}

type fdWriter int

func (w fdWriter) Write(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		m, err := unix.Write(int(w), p[n:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return n, err
		}
		n += m
	}
	return n, nil
}
