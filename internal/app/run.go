package app

import (
	"context"

	"github.com/vk/svcforge/internal/command"
	"github.com/vk/svcforge/internal/config"
	"github.com/vk/svcforge/internal/ctxlog"
	"github.com/vk/svcforge/internal/driver"
	"github.com/vk/svcforge/internal/telemetry"
	"github.com/vk/svcforge/internal/toolchain"
	"github.com/vk/svcforge/internal/workspace"
)

// BuildOptions carries the settings of one build/test/clean invocation.
type BuildOptions struct {
	Release   bool
	StackSize uint32
	WASI      bool
	Verbosity command.Verbosity
	Targets   []string
	ToolArgs  []string
}

// prepare populates the workspace, loads workspace-level env overrides, and
// resolves the invocation's target specifiers.
func (a *App) prepare(ctx context.Context, opts BuildOptions) (*workspace.Workspace, []workspace.TargetRef, error) {
	ws, err := workspace.Populate(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := config.LoadEnv(ws.Root()); err != nil {
		ctxlog.FromContext(ctx).Warn("Could not load workspace .env file.", "error", err)
	}
	targets, err := ws.CollectTargets(ctx, opts.Targets)
	if err != nil {
		return nil, nil, err
	}
	return ws, targets, nil
}

// Build resolves the requested targets into a dependency-ordered plan and
// drives compile-then-adapt over it.
func (a *App) Build(ctx context.Context, opts BuildOptions) error {
	ws, targets, err := a.prepare(ctx, opts)
	if err != nil {
		return err
	}
	plan, err := ws.ConstructBuildPlan(ctx, targets)
	if err != nil {
		return err
	}
	a.Emit("cmd.build.start", map[string]any{
		"num_services": len(plan),
		"release":      opts.Release,
		"wasi":         opts.WASI,
		"stack_size":   opts.StackSize,
	})
	if err := driver.New(ws, driverOptions(opts)).Build(ctx, plan); err != nil {
		a.Emit("cmd.build.error", nil)
		return err
	}
	a.Emit("cmd.build.done", nil)
	return nil
}

// Test builds the dependency-ordered plan and runs each testable target's
// test tool.
func (a *App) Test(ctx context.Context, opts BuildOptions) error {
	ws, targets, err := a.prepare(ctx, opts)
	if err != nil {
		return err
	}
	plan, err := ws.ConstructBuildPlan(ctx, targets)
	if err != nil {
		return err
	}
	a.Emit("cmd.test.start", map[string]any{"num_services": len(plan), "release": opts.Release})
	if err := driver.New(ws, driverOptions(opts)).Test(ctx, plan); err != nil {
		a.Emit("cmd.test.error", nil)
		return err
	}
	a.Emit("cmd.test.done", nil)
	return nil
}

// Clean removes build products of the selected targets' projects. No build
// plan is needed; cleaning ignores dependency order.
func (a *App) Clean(ctx context.Context, opts BuildOptions) error {
	ws, targets, err := a.prepare(ctx, opts)
	if err != nil {
		return err
	}
	a.Emit("cmd.clean", nil)
	return driver.New(ws, driverOptions(opts)).Clean(ctx, targets)
}

// SetToolchain installs the named toolchain release.
func (a *App) SetToolchain(ctx context.Context, version string) error {
	a.Emit("cmd.set_toolchain", map[string]any{"version": version})
	return toolchain.Set(ctx, version)
}

// UploadMetrics pushes accumulated telemetry session logs.
func (a *App) UploadMetrics(ctx context.Context) error {
	return telemetry.Upload(ctx, a.config.Telemetry)
}

func driverOptions(opts BuildOptions) driver.Options {
	return driver.Options{
		Release:   opts.Release,
		StackSize: opts.StackSize,
		WASI:      opts.WASI,
		Verbosity: opts.Verbosity,
		ToolArgs:  opts.ToolArgs,
	}
}
