// Package adapt rewrites a freshly compiled wasm module so it conforms to
// the forge platform's execution ABI: the host supplies linear memory, entry
// points are invoked by export name rather than a start symbol, and release
// artifacts carry only platform metadata. The whole pipeline is idempotent;
// running it over an already-adapted module changes nothing.
package adapt

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/svcforge/internal/ctxlog"
	"github.com/vk/svcforge/internal/wasm"
)

const (
	// MemoryExportName is the export the platform reserves for linear memory.
	MemoryExportName = "memory"
	// StartExportName is the conventional start symbol emitted by compilers.
	StartExportName = "_start"
	// ImportNamespace is the well-known namespace the host supplies memory from.
	ImportNamespace = "env"
	// ReservedSectionPrefix marks custom sections that carry platform
	// interface/ABI metadata and survive release pruning.
	ReservedSectionPrefix = "forge"
)

// Options selects the ABI variant and build mode for one adaptation.
type Options struct {
	// Release strips non-platform custom sections.
	Release bool
	// RemoveStart deletes the start export and its function body. Set for
	// the bare-interpreter ABI; the managed-runtime (WASI) ABI keeps it.
	RemoveStart bool
}

// ErrNoMemory is returned when a module exports `memory` but declares no
// linear memory to externalize.
var ErrNoMemory = fmt.Errorf("module exports %q but declares no linear memory", MemoryExportName)

// File loads the module at inputPath, applies the adaptation pipeline, and
// serializes the result to outputPath.
func File(ctx context.Context, inputPath, outputPath string, opts Options) error {
	module, err := wasm.DecodeFile(inputPath)
	if err != nil {
		return err
	}
	if err := Apply(ctx, module, opts); err != nil {
		return fmt.Errorf("adapt %s: %w", inputPath, err)
	}
	return module.EncodeFile(outputPath)
}

// Apply runs the adaptation pipeline on an in-memory module.
func Apply(ctx context.Context, module *wasm.Module, opts Options) error {
	logger := ctxlog.FromContext(ctx)

	if err := externalizeMemory(module); err != nil {
		return err
	}
	if opts.RemoveStart {
		removeStartFunc(module)
	}
	if opts.Release {
		removed := module.DeleteCustomsIf(func(name string) bool {
			return !strings.HasPrefix(name, ReservedSectionPrefix)
		})
		if removed > 0 {
			logger.Debug("Stripped development metadata sections.", "count", removed)
		}
	}
	return nil
}

// externalizeMemory converts an exported memory into a host-supplied import.
// A module with no memory export has already been externalized (or never
// owned memory) and passes through untouched.
func externalizeMemory(module *wasm.Module) error {
	export, ok := module.FindExport(MemoryExportName)
	if !ok {
		return nil
	}
	if export.Kind != wasm.ExternalMemory {
		return fmt.Errorf("export %q is not a memory", MemoryExportName)
	}
	module.DeleteExport(MemoryExportName)

	mem, ok := module.TakeFirstMemory()
	if !ok {
		if module.HasImportedMemory() {
			// Memory is already supplied by the host.
			return nil
		}
		return ErrNoMemory
	}
	module.AddMemoryImport(ImportNamespace, MemoryExportName, mem)
	return nil
}

// removeStartFunc deletes the start export and blanks its function body.
// The platform invokes entry points by name; an implicit start function
// would run before the host finished wiring the instance.
func removeStartFunc(module *wasm.Module) {
	export, ok := module.FindExport(StartExportName)
	if !ok || export.Kind != wasm.ExternalFunc {
		return
	}
	module.DeleteExport(StartExportName)
	// Imported functions carry no body; nothing further to blank.
	_ = module.StubFuncBody(export.Index)
}
