package driver

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/svcforge/internal/command"
	"github.com/vk/svcforge/internal/ctxlog"
	"github.com/vk/svcforge/internal/workspace"
)

// Test runs each testable target's test tool in plan order. The plan is the
// same dependency-safe ordering used for builds, so service dependencies
// are compiled before the tests that exercise them.
func (d *Driver) Test(ctx context.Context, plan []workspace.TargetRef) error {
	logger := ctxlog.FromContext(ctx)
	for _, ref := range plan {
		target := d.ws.Target(ref)
		if !target.Phases.Test {
			logger.Debug("Skipping non-testable target.", "target", target.Name)
			continue
		}
		if err := d.testTarget(ctx, ref); err != nil {
			return fmt.Errorf("test `%s`: %w", target.Name, err)
		}
	}
	return nil
}

func (d *Driver) testTarget(ctx context.Context, ref workspace.TargetRef) error {
	proj := d.ws.Project(ref.Project)
	target := d.ws.Target(ref)
	ctxlog.FromContext(ctx).Info("Testing service.", "target", target.Name)

	stdout, stderr := command.Sinks(d.opts.Verbosity)
	switch proj.Kind {
	case workspace.KindRust:
		args := []string{"test", "--manifest-path", proj.ManifestPath}
		args = append(args, cargoVerbosityArgs(d.opts.Verbosity)...)
		if d.opts.Release {
			args = append(args, "--release")
		}
		args = append(args, "--bin", target.Name)
		if len(d.opts.ToolArgs) > 0 {
			args = append(args, "--")
			args = append(args, d.opts.ToolArgs...)
		}
		env := d.env(workspace.KindRust)
		// Tests always run against the platform ABI shim.
		env = append(env, "RUSTC_WRAPPER="+rustcWrapper)
		return command.Run(ctx, command.Invocation{
			Tool: "cargo", Args: args, Env: env, Stdout: stdout, Stderr: stderr,
		})

	case workspace.KindJavaScript, workspace.KindTypeScript:
		dir := filepath.Dir(proj.ManifestPath)
		args := append([]string{"run", "test", "--prefix", dir}, d.opts.ToolArgs...)
		return command.Run(ctx, command.Invocation{
			Tool: "npm", Args: args, Env: d.env(proj.Kind), Stdout: stdout, Stderr: stderr,
		})

	default:
		// Precompiled modules carry nothing to test.
		return nil
	}
}
