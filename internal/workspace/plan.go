package workspace

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/vk/svcforge/internal/ctxlog"
)

// ConstructBuildPlan returns the requested targets and their transitive
// dependencies in an order safe for sequential compilation: every target
// appears after everything it depends on, and each target appears exactly
// once even when several requested targets share parts of their closure.
// Any resolution failure aborts the whole call; no partial plan is returned.
func (w *Workspace) ConstructBuildPlan(ctx context.Context, targets []TargetRef) ([]TargetRef, error) {
	plan := make([]TargetRef, 0, len(targets))
	for _, ref := range targets {
		if err := w.resolveDependenciesOf(ctx, ref, &plan); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// resolveDependenciesOf is a depth-first traversal with status-based cycle
// detection. A target already Resolved returns immediately (memoized); one
// found Visited mid-recursion is a true cycle. Dependencies are walked in
// name order so plans are deterministic.
func (w *Workspace) resolveDependenciesOf(ctx context.Context, ref TargetRef, plan *[]TargetRef) error {
	if w.status[ref] == StatusResolved {
		return nil
	}
	w.status[ref] = StatusVisited

	target := w.Target(ref)
	manifestDir := filepath.Dir(w.Project(ref.Project).ManifestPath)

	names := make([]string, 0, len(target.Deps))
	for name := range target.Deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dep := target.Deps[name]
		if dep.Ref != nil {
			continue
		}
		if dep.Location.URL != "" {
			// Cross-workspace dependencies cannot be built here; failing is
			// safer than producing a plan with a silently missing member.
			return &MissingDependencyError{Name: name, Location: dep.Location.URL}
		}
		depPath := canonicalizePath(manifestDir, dep.Location.Path)
		depRef, err := w.lookupTarget(name, depPath)
		if err != nil {
			return err
		}
		if w.status[depRef] == StatusVisited {
			return &CircularDependencyError{
				From: target.Name,
				To:   w.Target(depRef).Name,
			}
		}
		if err := w.resolveDependenciesOf(ctx, depRef, plan); err != nil {
			return err
		}
		bound := depRef
		dep.Ref = &bound
	}

	w.status[ref] = StatusResolved
	*plan = append(*plan, ref)
	ctxlog.FromContext(ctx).Debug("Target resolved.", "target", target.Name)
	return nil
}

// ProjectsOf returns the distinct projects owning the given targets, in
// first-appearance order.
func (w *Workspace) ProjectsOf(targets []TargetRef) []ProjectRef {
	var refs []ProjectRef
	seen := make(map[ProjectRef]bool)
	for _, t := range targets {
		if !seen[t.Project] {
			seen[t.Project] = true
			refs = append(refs, t.Project)
		}
	}
	return refs
}
