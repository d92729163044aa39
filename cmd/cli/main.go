package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/svcforge/internal/app"
	"github.com/vk/svcforge/internal/cli"
)

// main is the entrypoint for the svcforge application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling.
func run(outW io.Writer, args []string) error {
	inv, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	forgeApp := app.New(outW, inv.LogLevel, inv.LogFormat)
	defer forgeApp.Close()

	ctx := forgeApp.Context()
	switch inv.Command {
	case cli.CmdBuild:
		err = forgeApp.Build(ctx, inv.Build)
	case cli.CmdTest:
		err = forgeApp.Test(ctx, inv.Build)
	case cli.CmdClean:
		err = forgeApp.Clean(ctx, inv.Build)
	case cli.CmdConfig:
		err = runConfig(forgeApp, outW, inv.ConfigKey, inv.ConfigValue)
	case cli.CmdSetToolchain:
		err = forgeApp.SetToolchain(ctx, inv.ToolchainVersion)
	case cli.CmdUploadMetrics:
		err = forgeApp.UploadMetrics(ctx)
	}
	if err != nil {
		forgeApp.Emit("cmd.error", map[string]any{
			"command": string(inv.Command),
			"error":   err.Error(),
		})
	}
	return err
}

// runConfig prints a value for KEY, or assigns VALUE to KEY when given.
func runConfig(forgeApp *app.App, outW io.Writer, key, value string) error {
	cfg := forgeApp.Config()
	if value == "" {
		got, ok := cfg.Get(key)
		if !ok {
			return &cli.ExitError{Code: 1, Message: fmt.Sprintf("unknown configuration key `%s`", key)}
		}
		fmt.Fprintln(outW, got)
		return nil
	}
	return cfg.Edit(key, value)
}
