package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/x/ansi"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/tinyrange/lustc/internal/compiler"
	"github.com/tinyrange/lustc/internal/config"
	"github.com/tinyrange/lustc/internal/foreign"
	"github.com/tinyrange/lustc/internal/ir"
	"github.com/tinyrange/lustc/internal/native"
	_ "github.com/tinyrange/lustc/internal/native/amd64"
	"github.com/tinyrange/lustc/internal/value"
	"github.com/tinyrange/lustc/internal/vm"
)

// exitStatus carries a program's exit code out of run.
type exitStatus int

func (s exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(s)) }

func main() {
	interactive := term.IsTerminal(int(os.Stderr.Fd()))
	if err := run(os.Args[1:], os.Stdout, os.Stderr, interactive); err != nil {
		var status exitStatus
		if errors.As(err, &status) {
			os.Exit(int(status))
		}
		prefix := "lustc:"
		if interactive {
			prefix = ansi.Style{}.Bold().ForegroundColor(ansi.Red).Styled(prefix)
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", prefix, err)
		os.Exit(1)
	}
}

type app struct {
	cfg         config.Config
	stdout      io.Writer
	stderr      io.Writer
	interactive bool
	logger      *slog.Logger
	print       bool
}

func run(args []string, stdout, stderr io.Writer, interactive bool) error {
	fs := flag.NewFlagSet("lustc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	expr := fs.String("e", "", "Program text to use instead of a file")
	configPath := fs.String("config", "", "Configuration file (default: ./"+config.Filename+" if present)")
	runtimeName := fs.String("runtime", "", "Override the runtime (process, libc, buffered, native)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	printResult := fs.Bool("print", false, "Print the program's result after run")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: lustc [flags] <command> [args...]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  run <file>        compile and execute a program\n")
		fmt.Fprintf(stderr, "  dump <file>       print the generated IR\n")
		fmt.Fprintf(stderr, "  check <files...>  compile without running\n\n")
		fmt.Fprintf(stderr, "Examples:\n")
		fmt.Fprintf(stderr, "  lustc run prog.lisp\n")
		fmt.Fprintf(stderr, "  lustc -e '((lambda (x) x) 5)' -print run\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *runtimeName != "" {
		cfg.Runtime = config.Runtime(*runtimeName)
		if err := cfg.Validate(config.Version); err != nil {
			return err
		}
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	if *debug {
		level = slog.LevelDebug
	}

	a := &app{
		cfg:         cfg,
		stdout:      stdout,
		stderr:      stderr,
		interactive: interactive,
		logger:      slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
		print:       *printResult,
	}

	rest := fs.Args()
	if len(rest) < 1 {
		fs.Usage()
		return fmt.Errorf("command required")
	}
	cmd, files := rest[0], rest[1:]
	switch cmd {
	case "run", "dump":
		src, name, err := source(*expr, files)
		if err != nil {
			return err
		}
		if cmd == "dump" {
			return a.dump(src, name)
		}
		return a.run(src, name)
	case "check":
		if *expr != "" {
			return a.check([]string{"-e"}, func(string) (string, error) { return *expr, nil })
		}
		if len(files) == 0 {
			return fmt.Errorf("check: at least one file required")
		}
		return a.check(files, readFile)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		if _, err := os.Stat(config.Filename); err != nil {
			return config.Default(), nil
		}
		path = config.Filename
	}
	return config.Load(path)
}

func source(expr string, files []string) (src, name string, err error) {
	switch {
	case expr != "" && len(files) == 0:
		return expr, "-e", nil
	case expr == "" && len(files) == 1:
		src, err := readFile(files[0])
		return src, files[0], err
	default:
		return "", "", fmt.Errorf("exactly one of -e or a file is required")
	}
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// resolver returns the foreign resolver for the configured runtime. The
// library is non-nil only for the libc runtime and must be closed.
func (a *app) resolver() (foreign.Resolver, *foreign.Library, error) {
	if a.cfg.Runtime != config.RuntimeLibc {
		return foreign.Runtime(), nil, nil
	}
	path := a.cfg.Libc
	if path == "" {
		path = foreign.DefaultLibrary()
	}
	lib, err := foreign.OpenLibrary(path, foreign.Runtime())
	if err != nil {
		return nil, nil, err
	}
	return lib, lib, nil
}

func (a *app) compile(src, name string, resolver foreign.Resolver) (*ir.Program, error) {
	prog, err := compiler.CompileSource(src, compiler.Options{Resolver: resolver, Logger: a.logger})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return prog, nil
}

func (a *app) dump(src, name string) error {
	resolver, lib, err := a.resolver()
	if err != nil {
		return err
	}
	if lib != nil {
		defer lib.Close()
	}
	prog, err := a.compile(src, name, resolver)
	if err != nil {
		return err
	}
	_, err = io.WriteString(a.stdout, prog.String())
	return err
}

func (a *app) run(src, name string) error {
	resolver, lib, err := a.resolver()
	if err != nil {
		return err
	}
	if lib != nil {
		defer lib.Close()
	}
	prog, err := a.compile(src, name, resolver)
	if err != nil {
		return err
	}
	if a.cfg.Runtime == config.RuntimeNative {
		return a.runNative(prog, name)
	}

	opts := vm.Options{}
	var buffered bytes.Buffer
	switch a.cfg.Runtime {
	case config.RuntimeProcess:
		opts = vm.ProcessOptions()
	case config.RuntimeLibc:
		opts.Primitives = vm.LibcPrimitives(lib)
	case config.RuntimeBuffered:
		opts.Stdout = &buffered
	}
	opts.MaxSteps = a.cfg.MaxSteps
	opts.HeapWords = a.cfg.HeapWords
	opts.Logger = a.logger

	m, err := vm.New(prog, opts)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if timeout := a.cfg.Timeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, runErr := m.Run(ctx)
	if buffered.Len() > 0 {
		if _, err := a.stdout.Write(buffered.Bytes()); err != nil {
			return err
		}
	}
	var exitErr *vm.ExitError
	if errors.As(runErr, &exitErr) {
		return exitStatus(exitErr.Code)
	}
	if runErr != nil {
		return fmt.Errorf("%s: %w", name, runErr)
	}
	if a.print {
		fmt.Fprintln(a.stdout, m.Format(result))
	}
	return nil
}

// runNative executes prog as machine code. A program that calls exit ends
// this process from inside the generated code.
func (a *app) runNative(prog *ir.Program, name string) error {
	if a.cfg.Timeout > 0 {
		a.logger.Debug("timeout does not apply to native code", "timeout", a.cfg.Timeout.Duration())
	}
	result, err := native.Run(prog, native.Options{HeapWords: a.cfg.HeapWords, Logger: a.logger})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if a.print {
		fmt.Fprintln(a.stdout, value.Describe(result))
	}
	return nil
}

func (a *app) check(names []string, read func(string) (string, error)) error {
	resolver, lib, err := a.resolver()
	if err != nil {
		return err
	}
	if lib != nil {
		defer lib.Close()
	}

	var bar *progressbar.ProgressBar
	if a.interactive && len(names) > 1 {
		bar = progressbar.NewOptions(len(names),
			progressbar.OptionSetWriter(a.stderr),
			progressbar.OptionSetDescription("checking"),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Close()
	}

	failed := 0
	for _, name := range names {
		if bar != nil {
			bar.Describe(name)
		}
		src, err := read(name)
		if err == nil {
			_, err = a.compile(src, name, resolver)
		}
		if err != nil {
			failed++
			fmt.Fprintf(a.stderr, "%v\n", err)
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	a.logger.Debug("check finished", "files", len(names), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("check: %d of %d failed", failed, len(names))
	}
	return nil
}
