package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/svcforge/internal/command"
	"github.com/vk/svcforge/internal/ctxlog"
	"github.com/vk/svcforge/internal/workspace"
)

// Clean removes build products for each distinct project owning a cleanable
// selected target. Precompiled module entries delete the module file
// itself; everything else defers to the project's own tool.
func (d *Driver) Clean(ctx context.Context, targets []workspace.TargetRef) error {
	logger := ctxlog.FromContext(ctx)

	var cleanable []workspace.TargetRef
	for _, ref := range targets {
		if d.ws.Target(ref).Phases.Clean || d.ws.Project(ref.Project).Kind == workspace.KindWasm {
			cleanable = append(cleanable, ref)
		}
	}

	for _, pref := range d.ws.ProjectsOf(cleanable) {
		proj := d.ws.Project(pref)
		logger.Info("Cleaning project.", "manifest", proj.ManifestPath, "kind", proj.Kind.String())
		if err := d.cleanProject(ctx, proj); err != nil {
			return fmt.Errorf("clean `%s`: %w", proj.ManifestPath, err)
		}
	}
	return nil
}

func (d *Driver) cleanProject(ctx context.Context, proj *workspace.Project) error {
	stdout, stderr := command.Sinks(d.opts.Verbosity)
	switch proj.Kind {
	case workspace.KindRust:
		return command.Run(ctx, command.Invocation{
			Tool:   "cargo",
			Args:   []string{"clean", "--manifest-path", proj.ManifestPath},
			Stdout: stdout,
			Stderr: stderr,
		})
	case workspace.KindJavaScript, workspace.KindTypeScript:
		return command.Run(ctx, command.Invocation{
			Tool:   "npm",
			Args:   []string{"run", "clean", "--prefix", filepath.Dir(proj.ManifestPath)},
			Stdout: stdout,
			Stderr: stderr,
		})
	case workspace.KindWasm:
		return os.Remove(proj.ManifestPath)
	default:
		return nil
	}
}
