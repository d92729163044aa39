// Package workspace discovers the projects of a multi-service repository,
// resolves user target specifiers into concrete targets, and orders them
// into a cycle-checked build plan.
package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/svcforge/internal/ctxlog"
	"github.com/vk/svcforge/internal/fsutil"
)

// Recognized manifest file names, one per project kind.
const (
	CargoManifestName = "Cargo.toml"
	NpmManifestName   = "package.json"
)

// ManifestLoader inspects one manifest file and produces the projects it
// declares. A single manifest may declare several projects (a cargo
// workspace reports every member package).
type ManifestLoader interface {
	Load(ctx context.Context, manifestPath string) ([]*Project, error)
}

// Workspace owns the discovered project arena. Projects are only ever
// appended, never mutated in place, so ProjectRef/TargetRef indices stay
// valid for the process lifetime. Resolution status lives in a separate map
// keyed by TargetRef so graph traversal never needs simultaneous access to
// a target record and its status.
type Workspace struct {
	root     string
	cwd      string
	projects []*Project
	status   map[TargetRef]Status
	loaders  map[string]ManifestLoader
}

// Option customizes workspace discovery.
type Option func(*Workspace)

// WithStartDir overrides the directory the repository-root search starts
// from (defaults to the process working directory).
func WithStartDir(dir string) Option {
	return func(w *Workspace) { w.cwd = dir }
}

// WithLoader replaces the loader for one manifest file name.
func WithLoader(manifestName string, l ManifestLoader) Option {
	return func(w *Workspace) { w.loaders[manifestName] = l }
}

// Populate discovers every project under the repository containing the
// start directory. The root is the nearest ancestor holding a `.git`
// directory; the walk below it honors .gitignore rules. The first manifest
// per directory per kind wins, and manifests of a kind nested under a
// directory already claimed by that kind are skipped.
func Populate(ctx context.Context, opts ...Option) (*Workspace, error) {
	logger := ctxlog.FromContext(ctx)

	w := &Workspace{
		status:  make(map[TargetRef]Status),
		loaders: make(map[string]ManifestLoader),
	}
	w.loaders[CargoManifestName] = &CargoLoader{}
	w.loaders[NpmManifestName] = &NpmLoader{}
	for _, opt := range opts {
		opt(w)
	}
	if w.cwd == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		w.cwd = cwd
	}

	root, err := findRepoRoot(w.cwd)
	if err != nil {
		return nil, err
	}
	w.root = root
	logger.Debug("Workspace root located.", "root", root)

	manifests, err := fsutil.FindFilesNamed(root, CargoManifestName, NpmManifestName)
	if err != nil {
		return nil, err
	}

	seenManifests := make(map[string]bool)
	claimedDirs := make(map[string][]string) // manifest name -> claimed dirs
	for _, manifestPath := range manifests {
		name := filepath.Base(manifestPath)
		dir := filepath.Dir(manifestPath)
		if seenManifests[manifestPath] || underAny(dir, claimedDirs[name]) {
			continue
		}
		loader, ok := w.loaders[name]
		if !ok {
			continue
		}
		projects, err := loader.Load(ctx, manifestPath)
		if err != nil {
			return nil, err
		}
		claimedDirs[name] = append(claimedDirs[name], dir)
		for _, proj := range projects {
			if seenManifests[proj.ManifestPath] {
				continue
			}
			seenManifests[proj.ManifestPath] = true
			w.appendProject(proj)
		}
	}

	logger.Debug("Workspace populated.", "projects", len(w.projects))
	return w, nil
}

// findRepoRoot walks ancestors of dir looking for a `.git` directory.
func findRepoRoot(dir string) (string, error) {
	for d := dir; ; {
		if info, err := os.Stat(filepath.Join(d, ".git")); err == nil && info.IsDir() {
			return d, nil
		}
		parent := filepath.Dir(d)
		if parent == d {
			return "", &NoWorkspaceError{Dir: dir}
		}
		d = parent
	}
}

// underAny reports whether dir equals or lives under any of the bases.
func underAny(dir string, bases []string) bool {
	for _, base := range bases {
		if isPathPrefix(base, dir) && dir != base {
			return true
		}
	}
	return false
}

// isPathPrefix reports whether path equals prefix or lives under it,
// respecting path component boundaries.
func isPathPrefix(prefix, path string) bool {
	if prefix == "" {
		return false
	}
	if path == prefix {
		return true
	}
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, prefix)
}

// Root returns the repository root the workspace was populated from.
func (w *Workspace) Root() string { return w.root }

// NumProjects returns the number of projects in the arena.
func (w *Workspace) NumProjects() int { return len(w.projects) }

// Project dereferences a project arena index.
func (w *Workspace) Project(ref ProjectRef) *Project { return w.projects[ref] }

// Target dereferences a target reference.
func (w *Workspace) Target(ref TargetRef) *Target {
	return w.projects[ref.Project].Targets[ref.Target]
}

// Status returns the resolution status of a target.
func (w *Workspace) Status(ref TargetRef) Status { return w.status[ref] }

// appendProject adds a project to the arena and returns its stable index.
// All mutation of the project list funnels through here.
func (w *Workspace) appendProject(p *Project) ProjectRef {
	w.projects = append(w.projects, p)
	return ProjectRef(len(w.projects) - 1)
}

// lookupTarget finds the target with the given name inside a project whose
// manifest directory (or build output directory) is a prefix of path.
func (w *Workspace) lookupTarget(name, path string) (TargetRef, error) {
	for pi, proj := range w.projects {
		manifestDir := filepath.Dir(proj.ManifestPath)
		if !isPathPrefix(manifestDir, path) && !isPathPrefix(proj.TargetDir, path) {
			continue
		}
		for ti, target := range proj.Targets {
			if target.Name == name {
				return TargetRef{Project: ProjectRef(pi), Target: ti}, nil
			}
		}
	}
	return TargetRef{}, &MissingDependencyError{Name: name, Location: path}
}
