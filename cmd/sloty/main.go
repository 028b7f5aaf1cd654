// sloty is an interactive shell for exploring hidden slots.
//
// Usage:
//
//	sloty [flags]                 Start the REPL (or read commands from stdin)
//	sloty -e 'slot s' -e 'ls'     Run commands and exit
//
// Flags:
//
//	-c, --config       Config file (default: $XDG_CONFIG_HOME/sloty/config.json)
//	-e, --exec         Command to run; repeatable. Skips the REPL.
//	    --no-history   Do not read or write REPL history
//	-v, --verbose      Log diagnostics to stderr
//
// Commands (in REPL):
//
//	slot <name> [default]            Create a slot
//	carrier [name...]                Create carriers
//	attach <slot> <carrier...>       Attach a slot to carriers
//	has|get <slot> <carrier>         Inspect a binding
//	set <slot> <carrier> <value...>  Replace the bound value
//	append <slot> <carrier> <sfx>    Append to the bound value
//	drop <carrier...>                Release carriers
//	gc [--timeout d]                 Collect and report reclaimed carriers
//	stats | ls | dump | bench        Inspect and measure
//	help                             Show this help
//	exit / quit / q                  Exit
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/calvinalkan/hiddenslot/internal/shell"
)

func main() {
	environ := os.Environ()
	env := make(map[string]string, len(environ))

	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	exitCode := Run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args, env)

	stop()
	os.Exit(exitCode)
}

var errUnexpectedArg = errors.New("unexpected argument")

type globalFlags struct {
	configPath string
	exec       []string
	noHistory  bool
	verbose    bool
}

func parseFlags(args []string, errOut io.Writer) (globalFlags, error) {
	var flags globalFlags

	fs := flag.NewFlagSet("sloty", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVarP(&flags.configPath, "config", "c", "", "config file")
	fs.StringArrayVarP(&flags.exec, "exec", "e", nil, "command to run (repeatable); skips the REPL")
	fs.BoolVar(&flags.noHistory, "no-history", false, "do not read or write REPL history")
	fs.BoolVarP(&flags.verbose, "verbose", "v", false, "log diagnostics to stderr")

	fs.Usage = func() {
		fprintln(errOut, "Usage: sloty [flags]")
		fprintln(errOut)
		fprintln(errOut, "Interactive shell for hidden slots. Reads commands from stdin when it is not a terminal.")
		fprintln(errOut)
		fprintln(errOut, "Flags:")
		fs.PrintDefaults()
	}

	err := fs.Parse(args)
	if err != nil {
		return globalFlags{}, err
	}

	if fs.NArg() > 0 {
		return globalFlags{}, fmt.Errorf("%w: %s", errUnexpectedArg, fs.Arg(0))
	}

	return flags, nil
}

// Run is the main entry point. Returns exit code.
func Run(ctx context.Context, in io.Reader, out, errOut io.Writer, args []string, env map[string]string) int {
	flags, err := parseFlags(args[1:], errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}

		fprintln(errOut, "error:", err)

		return 1
	}

	cfg, cfgPath, err := LoadConfig(flags.configPath, env)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	log := newLogger(flags.verbose, errOut)
	defer func() { _ = log.Sync() }()

	log.Debug("config loaded", zap.String("path", cfgPath), zap.Duration("gc_timeout", cfg.gcTimeout))

	session := shell.NewSession(shell.Options{
		Out:       out,
		ErrOut:    errOut,
		Logger:    log,
		GCTimeout: cfg.gcTimeout,
	})

	if len(flags.exec) > 0 {
		return runLines(ctx, session, flags.exec)
	}

	if f, ok := in.(*os.File); ok && isTerminal(f.Fd()) {
		repl := &REPL{
			session:     session,
			out:         out,
			prompt:      cfg.Prompt,
			historyPath: cfg.HistoryFile,
			historySize: cfg.HistoryLimit,
			log:         log,
		}

		if flags.noHistory {
			repl.historyPath = ""
		}

		err = repl.Run(ctx)
		if err != nil {
			fprintln(errOut, "error:", err)

			return 1
		}

		return 0
	}

	return runScript(ctx, session, in, errOut)
}

// runLines executes each line and stops at quit. Returns 1 if any line failed.
func runLines(ctx context.Context, session *shell.Session, lines []string) int {
	exitCode := 0

	for _, line := range lines {
		if ctx.Err() != nil {
			return 1
		}

		quit, err := session.Exec(ctx, line)
		if err != nil {
			exitCode = 1
		}

		if quit {
			break
		}
	}

	return exitCode
}

// runScript executes commands from in, one per line, until EOF or quit.
// Blank lines and lines starting with '#' are skipped. Returns 1 if any
// line failed.
func runScript(ctx context.Context, session *shell.Session, in io.Reader, errOut io.Writer) int {
	exitCode := 0

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return 1
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		quit, err := session.Exec(ctx, line)
		if err != nil {
			exitCode = 1
		}

		if quit {
			return exitCode
		}
	}

	err := scanner.Err()
	if err != nil {
		fprintln(errOut, "error: reading input:", err)

		return 1
	}

	return exitCode
}

// newLogger returns a development console logger writing to errOut when
// verbose, a no-op logger otherwise.
func newLogger(verbose bool, errOut io.Writer) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}

	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(errOut), zapcore.DebugLevel)

	return zap.New(core)
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
