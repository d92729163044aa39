package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// repoDir creates a directory tree with a .git marker at its root.
func repoDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	return root
}

func writePackage(t *testing.T, root, dir, name string) {
	t.Helper()
	full := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(full, 0o755))
	manifest := `{"name": "` + name + `", "scripts": {"build": "tsc"}}`
	require.NoError(t, os.WriteFile(filepath.Join(full, NpmManifestName), []byte(manifest), 0o644))
}

func TestPopulate(t *testing.T) {
	t.Parallel()

	root := repoDir(t)
	writePackage(t, root, "svc1", "svc-one")
	writePackage(t, root, "nested/svc2", "svc-two")

	// The root search ascends from a subdirectory to the .git marker.
	w, err := Populate(context.Background(), WithStartDir(filepath.Join(root, "svc1")))

	require.NoError(t, err)
	assert.Equal(t, root, w.Root())
	require.Equal(t, 2, w.NumProjects())

	names := []string{
		w.Target(TargetRef{Project: 0}).Name,
		w.Target(TargetRef{Project: 1}).Name,
	}
	assert.ElementsMatch(t, []string{"svc-one", "svc-two"}, names)
}

func TestPopulate_HonorsGitignore(t *testing.T) {
	t.Parallel()

	root := repoDir(t)
	writePackage(t, root, "svc1", "svc-one")
	writePackage(t, root, "scratch/old", "stale")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("scratch/\n"), 0o644))

	w, err := Populate(context.Background(), WithStartDir(root))

	require.NoError(t, err)
	require.Equal(t, 1, w.NumProjects())
	assert.Equal(t, "svc-one", w.Target(TargetRef{}).Name)
}

func TestPopulate_SkipsNestedManifestsOfSameKind(t *testing.T) {
	t.Parallel()

	root := repoDir(t)
	writePackage(t, root, "app", "app")
	writePackage(t, root, "app/vendor/dep", "vendored")

	w, err := Populate(context.Background(), WithStartDir(root))

	require.NoError(t, err)
	require.Equal(t, 1, w.NumProjects())
	assert.Equal(t, "app", w.Target(TargetRef{}).Name)
}

func TestPopulate_NoWorkspace(t *testing.T) {
	t.Parallel()

	dir := t.TempDir() // no .git anywhere above the temp root

	_, err := Populate(context.Background(), WithStartDir(dir))

	var noWs *NoWorkspaceError
	require.ErrorAs(t, err, &noWs)
	assert.Contains(t, err.Error(), dir)
}

// stubLoader substitutes for tools the test host may not have installed.
type stubLoader struct {
	projects []*Project
}

func (l *stubLoader) Load(ctx context.Context, manifestPath string) ([]*Project, error) {
	return l.projects, nil
}

func TestPopulate_WithLoader(t *testing.T) {
	t.Parallel()

	root := repoDir(t)
	rsDir := filepath.Join(root, "ballot")
	require.NoError(t, os.MkdirAll(rsDir, 0o755))
	manifestPath := filepath.Join(rsDir, CargoManifestName)
	require.NoError(t, os.WriteFile(manifestPath, []byte("[package]\nname = \"ballot\"\n"), 0o644))

	stub := &stubLoader{projects: []*Project{{
		ManifestPath: manifestPath,
		TargetDir:    filepath.Join(root, "target"),
		Kind:         KindRust,
		Targets:      []*Target{{Name: "ballot", Phases: Phases{Build: true}}},
	}}}

	w, err := Populate(context.Background(),
		WithStartDir(root),
		WithLoader(CargoManifestName, stub))

	require.NoError(t, err)
	require.Equal(t, 1, w.NumProjects())
	assert.Equal(t, KindRust, w.Project(0).Kind)
}
