package main

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// mainArgsEnv makes the test binary act as lustc itself, with the
// newline-separated arguments it holds.
const mainArgsEnv = "LUSTC_TEST_MAIN_ARGS"

func TestMain(m *testing.M) {
	if args, ok := os.LookupEnv(mainArgsEnv); ok {
		os.Args = append([]string{"lustc"}, strings.Split(args, "\n")...)
		main()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// runProcess runs lustc in a child process and returns its stdout and exit
// code.
func runProcess(t *testing.T, args ...string) (string, int) {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	cmd.Env = append(os.Environ(), mainArgsEnv+"="+strings.Join(args, "\n"))
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return string(out), 0
	case errors.As(err, &exitErr):
		return string(out), exitErr.ExitCode()
	default:
		t.Fatalf("run lustc %q: %v", args, err)
		return "", 0
	}
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr, false)
	return stdout.String(), stderr.String(), err
}

func TestRunPrintsResult(t *testing.T) {
	stdout, _, err := runCLI(t, "-runtime", "buffered", "-print", "-e", "((lambda (x) x) 5)", "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stdout != "5\n" {
		t.Fatalf("stdout = %q, want %q", stdout, "5\n")
	}
}

func TestRunBadCall(t *testing.T) {
	stdout, _, err := runCLI(t, "-runtime", "buffered", "-e", "(5 1 2)", "run")
	var status exitStatus
	if !errors.As(err, &status) || status != -1 {
		t.Fatalf("err = %v, want exit status -1", err)
	}
	if want := "fatal error: non-closure object in head position of list\n"; stdout != want {
		t.Fatalf("stdout = %q, want %q", stdout, want)
	}
}

func TestProcessRuntime(t *testing.T) {
	tests := []struct {
		args   []string
		stdout string
		code   int
	}{
		{[]string{"-e", "(5 1 2)", "run"}, "fatal error: non-closure object in head position of list\n", 255},
		{[]string{"-print", "-e", "((lambda (x) x) 5)", "run"}, "5\n", 0},
		{[]string{"-e", `(begin (error "boom" 2) 5)`, "run"}, "boom\n", 2},
		{[]string{"-e", "(+ 1 2)", "run"}, "", 0},
	}
	for _, tt := range tests {
		stdout, code := runProcess(t, tt.args...)
		if stdout != tt.stdout {
			t.Fatalf("lustc %q: stdout = %q, want %q", tt.args, stdout, tt.stdout)
		}
		if code != tt.code {
			t.Fatalf("lustc %q: exit code = %d, want %d", tt.args, code, tt.code)
		}
	}
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.lisp")
	if err := os.WriteFile(path, []byte("; add\n(+ 40 2)\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg := filepath.Join(dir, "lustc.yaml")
	if err := os.WriteFile(cfg, []byte("runtime: buffered\nmax_steps: 1000\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	stdout, _, err := runCLI(t, "-config", cfg, "-print", "run", path)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stdout != "42\n" {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestDump(t *testing.T) {
	stdout, _, err := runCLI(t, "-e", "(5 1 2)", "dump")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	for _, want := range []string{"function main", "data __anon_data_bad_call_type", "call_foreign"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("dump output missing %q:\n%s", want, stdout)
		}
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.lisp")
	bad := filepath.Join(dir, "bad.lisp")
	os.WriteFile(good, []byte("(lambda (x) x)"), 0o644)
	os.WriteFile(bad, []byte("(lambda (x x) x)"), 0o644)

	if _, _, err := runCLI(t, "check", good); err != nil {
		t.Fatalf("check good: %v", err)
	}
	_, stderr, err := runCLI(t, "check", good, bad)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 failed") {
		t.Fatalf("check = %v, want one failure", err)
	}
	if !strings.Contains(stderr, "duplicate parameter") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"frobnicate"},
		{"run"},
		{"-e", "1", "run", "file.lisp"},
		{"-runtime", "jit", "-e", "1", "run"},
	} {
		if _, _, err := runCLI(t, args...); err == nil {
			t.Fatalf("run(%q) succeeded, want error", args)
		}
	}
}
