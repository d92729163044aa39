package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/svcforge/internal/adapt"
	"github.com/vk/svcforge/internal/command"
	"github.com/vk/svcforge/internal/ctxlog"
	"github.com/vk/svcforge/internal/workspace"
)

// Build compiles and adapts every buildable target in plan order. The first
// external-tool failure aborts the remainder of the plan; a tool that
// produced no module for a target is only a warning.
func (d *Driver) Build(ctx context.Context, plan []workspace.TargetRef) error {
	logger := ctxlog.FromContext(ctx)
	for _, ref := range plan {
		target := d.ws.Target(ref)
		if !target.Phases.Build {
			logger.Debug("Skipping non-buildable target.", "target", target.Name)
			continue
		}
		if err := d.buildTarget(ctx, ref); err != nil {
			return fmt.Errorf("build `%s`: %w", target.Name, err)
		}
	}
	return nil
}

func (d *Driver) buildTarget(ctx context.Context, ref workspace.TargetRef) error {
	proj := d.ws.Project(ref.Project)
	target := d.ws.Target(ref)
	logger := ctxlog.FromContext(ctx)
	logger.Info("Building service.", "target", target.Name, "kind", proj.Kind.String())

	switch proj.Kind {
	case workspace.KindRust:
		return d.buildRust(ctx, proj, target)
	case workspace.KindJavaScript, workspace.KindTypeScript:
		return d.buildNpm(ctx, proj, target)
	case workspace.KindWasm:
		return d.prepareModule(ctx, proj.ManifestPath, moduleOutputPath(proj.ManifestPath))
	default:
		return fmt.Errorf("unknown project kind %q", proj.Kind)
	}
}

func (d *Driver) buildRust(ctx context.Context, proj *workspace.Project, target *workspace.Target) error {
	args := []string{"build", "--target=" + compileTargetDir, "--manifest-path", proj.ManifestPath}
	args = append(args, cargoVerbosityArgs(d.opts.Verbosity)...)
	if d.opts.Release {
		args = append(args, "--release")
	}
	args = append(args, "--bin", target.Name)
	args = append(args, d.opts.ToolArgs...)

	stdout, stderr := command.Sinks(d.opts.Verbosity)
	err := command.Run(ctx, command.Invocation{
		Tool:   "cargo",
		Args:   args,
		Env:    d.env(workspace.KindRust),
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		return err
	}

	artifact := filepath.Join(proj.TargetDir, compileTargetDir, d.modeDir(), artifactName(target))
	return d.adaptArtifact(ctx, proj, target, artifact)
}

func (d *Driver) buildNpm(ctx context.Context, proj *workspace.Project, target *workspace.Target) error {
	dir := filepath.Dir(proj.ManifestPath)
	stdout, stderr := command.Sinks(d.opts.Verbosity)
	args := append([]string{"run", "build", "--prefix", dir}, d.opts.ToolArgs...)
	err := command.Run(ctx, command.Invocation{
		Tool:   "npm",
		Args:   args,
		Env:    d.env(proj.Kind),
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		return err
	}

	artifact := filepath.Join(dir, artifactName(target))
	return d.adaptArtifact(ctx, proj, target, artifact)
}

// adaptArtifact runs the compiled module through the ABI adapter into the
// project's service output directory. Not every target yields a module (a
// scripted build may only produce client assets), so a missing artifact is
// a warning, never a failure.
func (d *Driver) adaptArtifact(ctx context.Context, proj *workspace.Project, target *workspace.Target, artifact string) error {
	logger := ctxlog.FromContext(ctx)
	if !fileExists(artifact) {
		logger.Warn("Tool produced no module for target; skipping adaptation.",
			"target", target.Name, "expected", artifact)
		return nil
	}

	servicesDir := filepath.Join(proj.TargetDir, ServiceOutputDir)
	if err := os.MkdirAll(servicesDir, 0o755); err != nil {
		return err
	}
	return d.prepareModule(ctx, artifact, filepath.Join(servicesDir, artifactName(target)))
}

func (d *Driver) prepareModule(ctx context.Context, input, output string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Preparing module.", "artifact", filepath.Base(output))
	return adapt.File(ctx, input, output, adapt.Options{
		Release:     d.opts.Release,
		RemoveStart: !d.opts.WASI,
	})
}

// moduleOutputPath swaps a precompiled module's extension for the platform
// artifact extension (`a.out` becomes `a.wasm`; a `.wasm` input rewrites
// in place).
func moduleOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + workspace.ModuleExtension
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
