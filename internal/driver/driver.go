// Package driver sequences "compile project, then adapt artifact" over a
// resolved build plan, delegating compilation to the external tool matching
// each project's kind.
package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/svcforge/internal/command"
	"github.com/vk/svcforge/internal/workspace"
)

const (
	// ServiceOutputDir is the subdirectory of a project's target dir that
	// receives adapted artifacts.
	ServiceOutputDir = "service"
	// compileTargetDir is the toolchain triple subdirectory cargo emits into.
	compileTargetDir = "wasm32-wasi"
	// rustcWrapper is the compiler shim that applies the platform ABI when
	// building for the bare-interpreter variant.
	rustcWrapper = "forge-build"
)

// Options carries the per-invocation build settings.
type Options struct {
	// Release builds with optimizations and strips development metadata.
	Release bool
	// StackSize, when non-zero, sets the linear-memory bytes reserved for
	// the program stack via the linker.
	StackSize uint32
	// WASI targets the managed-runtime ABI instead of the platform's
	// bare-interpreter ABI.
	WASI bool
	// Verbosity controls how much tool output reaches the user.
	Verbosity command.Verbosity
	// ToolArgs are passed through verbatim to the language-specific tool.
	ToolArgs []string
}

// Driver executes build plans against a populated workspace.
type Driver struct {
	ws   *workspace.Workspace
	opts Options
}

// New returns a driver for the given workspace and options.
func New(ws *workspace.Workspace, opts Options) *Driver {
	return &Driver{ws: ws, opts: opts}
}

func (d *Driver) modeDir() string {
	if d.opts.Release {
		return "release"
	}
	return "debug"
}

// env assembles the subprocess environment: the parent's environment, the
// generic platform variables, and for cargo the RUSTFLAGS/RUSTC_WRAPPER
// conventions the toolchain expects.
func (d *Driver) env(kind workspace.ProjectKind) []string {
	env := os.Environ()
	abi := "forge"
	if d.opts.WASI {
		abi = "wasi"
	}
	env = append(env, "FORGE_ABI="+abi)
	if d.opts.StackSize > 0 {
		env = append(env, fmt.Sprintf("FORGE_STACK_SIZE=%d", d.opts.StackSize))
	}

	if kind == workspace.KindRust {
		if d.opts.StackSize > 0 {
			flag := fmt.Sprintf("-C link-args=-zstack-size=%d", d.opts.StackSize)
			env = appendEnv(env, "RUSTFLAGS", flag)
		}
		if !d.opts.WASI {
			env = append(env, "RUSTC_WRAPPER="+rustcWrapper)
		}
	}
	return env
}

// appendEnv appends value to the named variable, preserving any existing
// setting from the parent environment.
func appendEnv(env []string, name, value string) []string {
	prefix := name + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = kv + " " + value
			return env
		}
	}
	return append(env, prefix+value)
}

// cargoVerbosityArgs maps the CLI verbosity ladder onto cargo's flags.
func cargoVerbosityArgs(v command.Verbosity) []string {
	switch {
	case v < command.Normal:
		return []string{"--quiet"}
	case v == command.High:
		return []string{"--verbose"}
	case v == command.Debug:
		return []string{"-vvv"}
	default:
		return nil
	}
}

// artifactName is the module file name for a target; scoped npm names keep
// only their final component.
func artifactName(target *workspace.Target) string {
	return filepath.Base(target.Name) + workspace.ModuleExtension
}
