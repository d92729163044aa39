package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/svcforge/internal/ctxlog"
)

const (
	// ModuleExtension is the artifact extension precompiled specifiers carry.
	ModuleExtension = ".wasm"
	// AnonymousOutputName is the canonical name of an unnamed compiler output.
	AnonymousOutputName = "a.out"
	// RootMarker prefixes a specifier resolved against the repository root.
	RootMarker = ":/"
)

// CollectTargets maps user-supplied specifier strings to concrete targets.
// Unmatched specifiers warn and are skipped; an ambiguous bare service name
// fails with DuplicateServiceError. With no specifiers the current working
// directory is selected. The output preserves specifier order, then
// discovery order within a directory match, with duplicates elided.
func (w *Workspace) CollectTargets(ctx context.Context, specs []string) ([]TargetRef, error) {
	if len(specs) == 0 {
		specs = []string{w.cwd}
	}

	collected := make([]TargetRef, 0, len(specs))
	seen := make(map[TargetRef]bool)
	add := func(refs ...TargetRef) {
		for _, ref := range refs {
			if !seen[ref] {
				seen[ref] = true
				collected = append(collected, ref)
			}
		}
	}

	for _, spec := range specs {
		switch {
		case strings.HasSuffix(spec, ModuleExtension) || spec == AnonymousOutputName:
			if ref, ok := w.collectModuleTarget(ctx, spec); ok {
				add(ref)
			}
		case strings.HasPrefix(spec, RootMarker):
			add(w.collectPathTargets(ctx, filepath.Join(w.root, spec[len(RootMarker):]), spec)...)
		case strings.ContainsRune(spec, os.PathSeparator) || pathExists(canonicalizePath(w.cwd, spec)):
			add(w.collectPathTargets(ctx, canonicalizePath(w.cwd, spec), spec)...)
		case isServiceName(spec):
			refs, err := w.collectNamedTargets(ctx, spec)
			if err != nil {
				return nil, err
			}
			add(refs...)
		default:
			ctxlog.FromContext(ctx).Warn(
				"Specifier refers to neither a service nor a directory containing services.",
				"specifier", spec)
		}
	}
	return collected, nil
}

// collectModuleTarget synthesizes a project for a precompiled module path.
// The target needs no compilation or dependency resolution, so it enters
// the arena with its status already Resolved.
func (w *Workspace) collectModuleTarget(ctx context.Context, spec string) (TargetRef, bool) {
	logger := ctxlog.FromContext(ctx)
	path := canonicalizePath(w.cwd, spec)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		logger.Warn("Module path does not exist.", "specifier", spec)
		return TargetRef{}, false
	}
	proj := &Project{
		ManifestPath: path,
		TargetDir:    filepath.Dir(path),
		Kind:         KindWasm,
		Targets: []*Target{{
			Name:   spec,
			Path:   path,
			Phases: Phases{Build: true},
		}},
	}
	ref := TargetRef{Project: w.appendProject(proj), Target: 0}
	w.status[ref] = StatusResolved
	return ref, true
}

// collectPathTargets selects every target whose project manifest lives
// under path, or whose own source path does when the path points inside a
// project.
func (w *Workspace) collectPathTargets(ctx context.Context, path, spec string) []TargetRef {
	logger := ctxlog.FromContext(ctx)
	if !pathExists(path) {
		logger.Warn("The path does not exist.", "specifier", spec)
		return nil
	}
	if !isPathPrefix(w.root, path) {
		logger.Warn("The path exists outside of this workspace.", "specifier", spec)
		return nil
	}

	var refs []TargetRef
	for pi, proj := range w.projects {
		if isPathPrefix(path, proj.ManifestPath) {
			for ti := range proj.Targets {
				refs = append(refs, TargetRef{Project: ProjectRef(pi), Target: ti})
			}
		} else if isPathPrefix(filepath.Dir(proj.ManifestPath), path) {
			for ti, target := range proj.Targets {
				if isPathPrefix(path, target.Path) {
					refs = append(refs, TargetRef{Project: ProjectRef(pi), Target: ti})
				}
			}
		}
	}
	if len(refs) == 0 {
		logger.Warn("No services found under path.", "specifier", spec)
	}
	return refs
}

// collectNamedTargets searches every project for targets with the given
// name. Matches across distinct projects are ambiguous and fail.
func (w *Workspace) collectNamedTargets(ctx context.Context, name string) ([]TargetRef, error) {
	var refs []TargetRef
	owners := make(map[ProjectRef]bool)
	for pi, proj := range w.projects {
		for ti, target := range proj.Targets {
			if target.Name == name {
				refs = append(refs, TargetRef{Project: ProjectRef(pi), Target: ti})
				owners[ProjectRef(pi)] = true
			}
		}
	}
	if len(owners) > 1 {
		return nil, &DuplicateServiceError{Name: name}
	}
	if len(refs) == 0 {
		ctxlog.FromContext(ctx).Warn("No service with that name found in the workspace.", "name", name)
	}
	return refs, nil
}

// isServiceName reports whether spec is a plausible bare target name:
// alphanumeric with `-`/`_`, or a scoped npm package name.
func isServiceName(spec string) bool {
	if spec == "" {
		return false
	}
	if strings.HasPrefix(spec, "@") {
		return true // scoped node package
	}
	for _, ch := range spec {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
		default:
			return false
		}
	}
	return true
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
