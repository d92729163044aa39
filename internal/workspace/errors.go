package workspace

import "fmt"

// NoWorkspaceError means no repository root marker was found above the
// starting directory.
type NoWorkspaceError struct {
	Dir string
}

func (e *NoWorkspaceError) Error() string {
	return fmt.Sprintf("could not find workspace in `%s` or any parent directory", e.Dir)
}

// MissingDependencyError means a declared dependency's location or name did
// not match any target in the workspace.
type MissingDependencyError struct {
	Name     string
	Location string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("could not find dependency `%s (%s)` in the current workspace", e.Name, e.Location)
}

// CircularDependencyError names both endpoints of a dependency cycle.
type CircularDependencyError struct {
	From string
	To   string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("`%s` has a circular dependency on `%s`", e.From, e.To)
}

// DuplicateServiceError means a bare service-name specifier matched targets
// in more than one project.
type DuplicateServiceError struct {
	Name string
}

func (e *DuplicateServiceError) Error() string {
	return fmt.Sprintf("service name `%s` is ambiguous: it is declared by multiple projects", e.Name)
}
