package cli

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vk/svcforge/internal/app"
	"github.com/vk/svcforge/internal/command"
	"github.com/vk/svcforge/internal/toolchain"
)

// Version is the CLI release, overridable at link time.
var Version = "dev"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Command names the subcommand an invocation selected.
type Command string

const (
	CmdBuild         Command = "build"
	CmdTest          Command = "test"
	CmdClean         Command = "clean"
	CmdConfig        Command = "config"
	CmdSetToolchain  Command = "set-toolchain"
	CmdUploadMetrics Command = "upload-metrics"
)

// Invocation is the parsed form of one CLI run.
type Invocation struct {
	Command   Command
	LogFormat string
	LogLevel  string

	Build app.BuildOptions // build, test, clean

	ConfigKey   string // config
	ConfigValue string

	ToolchainVersion string // set-toolchain
}

// counter is a flag.Value that counts repeated occurrences (-v -v).
type counter int

func (c *counter) String() string { return strconv.Itoa(int(*c)) }

func (c *counter) Set(string) error {
	*c++
	return nil
}

func (c *counter) IsBoolFlag() bool { return true }

const usageText = `svcforge - Build services for the forge platform.

Usage:
  svcforge <command> [options] [targets...]

Commands:
  build           Compile services and adapt them to the platform ABI
  test            Run tests against a simulated platform runtime
  clean           Remove build products
  config          View and edit configuration options
  set-toolchain   Install a platform toolchain release
  upload-metrics  Push accumulated telemetry logs

Targets may be service names, directories, ` + "`:/`" + `-prefixed paths under the
workspace root, or precompiled .wasm modules. With no targets the current
directory is used.

Global options:
  -log-format string   Log output format: 'text' or 'json' (default "text")
  -log-level string    Logging level: 'debug', 'info', 'warn', 'error' (default "info")
  -version             Print the version and exit
`

// Parse processes command-line arguments. It returns a populated
// Invocation, a boolean indicating the program should exit cleanly, or an
// ExitError.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	global := flag.NewFlagSet("svcforge", flag.ContinueOnError)
	global.SetOutput(output)
	global.Usage = func() { fmt.Fprint(output, usageText) }

	logFormat := global.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevel := global.String("log-level", "info", "Set the logging level.")
	showVersion := global.Bool("version", false, "Print the version and exit.")

	if err := global.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if *showVersion {
		fmt.Fprintln(output, versionString())
		return nil, true, nil
	}
	if err := validateLogFlags(*logFormat, *logLevel); err != nil {
		return nil, false, err
	}
	if global.NArg() == 0 {
		global.Usage()
		return nil, true, nil
	}

	inv := &Invocation{
		Command:   Command(global.Arg(0)),
		LogFormat: *logFormat,
		LogLevel:  *logLevel,
	}
	rest := global.Args()[1:]

	switch inv.Command {
	case CmdBuild, CmdTest, CmdClean:
		return parseBuildLike(inv, rest, output)
	case CmdConfig:
		if len(rest) < 1 {
			return nil, false, &ExitError{Code: 2, Message: "config requires a KEY argument"}
		}
		inv.ConfigKey = rest[0]
		if len(rest) > 1 {
			inv.ConfigValue = rest[1]
		}
		return inv, false, nil
	case CmdSetToolchain:
		if len(rest) != 1 {
			return nil, false, &ExitError{Code: 2, Message: "set-toolchain requires a VERSION argument"}
		}
		inv.ToolchainVersion = rest[0]
		return inv, false, nil
	case CmdUploadMetrics:
		return inv, false, nil
	default:
		return nil, false, &ExitError{
			Code:    2,
			Message: fmt.Sprintf("unknown command %q; run `svcforge -h` for usage", inv.Command),
		}
	}
}

// parseBuildLike handles the shared flag surface of build, test, and clean.
// Arguments after `--` pass through to the language-specific tool.
func parseBuildLike(inv *Invocation, args []string, output io.Writer) (*Invocation, bool, error) {
	flagSet := flag.NewFlagSet("svcforge "+string(inv.Command), flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprintf(output, "Usage:\n  svcforge %s [options] [targets...] [-- tool args...]\n\nOptions:\n", inv.Command)
		flagSet.PrintDefaults()
	}

	release := flagSet.Bool("release", false, "Build with optimizations and strip development metadata.")
	stackSize := flagSet.Uint("stack-size", 0, "Linear memory allocated to the program stack, in bytes.")
	wasi := flagSet.Bool("wasi", false, "Build a vanilla WASI service (managed-runtime ABI).")
	var verbose, quiet counter
	flagSet.Var(&verbose, "v", "Increase verbosity (repeatable).")
	flagSet.Var(&quiet, "q", "Decrease verbosity (repeatable).")

	args, toolArgs := splitToolArgs(args)
	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	inv.Build = app.BuildOptions{
		Release:   *release,
		StackSize: uint32(*stackSize),
		WASI:      *wasi,
		Verbosity: command.FromFlags(int(verbose), int(quiet)),
		Targets:   flagSet.Args(),
		ToolArgs:  toolArgs,
	}
	return inv, false, nil
}

// splitToolArgs separates `-- raw tool args` from the command's own
// arguments.
func splitToolArgs(args []string) (own, tool []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

func validateLogFlags(format, level string) error {
	switch strings.ToLower(format) {
	case "text", "json":
	default:
		return &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
	default:
		return &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	return nil
}

// versionString includes the installed toolchain release when one is known.
func versionString() string {
	if release, ok := toolchain.InstalledRelease(); ok {
		return fmt.Sprintf("svcforge %s (toolchain %s)", Version, release)
	}
	return "svcforge " + Version
}
