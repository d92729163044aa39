package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, rel ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{root}, rel...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func TestFindFilesNamed(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	shallow := touch(t, root, "a", "package.json")
	deep := touch(t, root, "a", "b", "c", "Cargo.toml")
	mid := touch(t, root, "z", "mid", "package.json")
	touch(t, root, "a", "README.md") // not a wanted name

	files, err := FindFilesNamed(root, "Cargo.toml", "package.json")

	require.NoError(t, err)
	// Shallow entries come first so parent manifests claim directories
	// before anything nested under them.
	assert.Equal(t, []string{shallow, mid, deep}, files)
}

func TestFindFilesNamed_SkipsGitDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	wanted := touch(t, root, "svc", "package.json")
	touch(t, root, ".git", "modules", "package.json")

	files, err := FindFilesNamed(root, "package.json")

	require.NoError(t, err)
	assert.Equal(t, []string{wanted}, files)
}

func TestFindFilesNamed_HonorsGitignore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	kept := touch(t, root, "svc", "package.json")
	touch(t, root, "node_modules", "dep", "package.json")
	touch(t, root, "svc", "dist", "package.json")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("node_modules/\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "svc", ".gitignore"), []byte("dist/\n"), 0o644))

	files, err := FindFilesNamed(root, "package.json")

	require.NoError(t, err)
	assert.Equal(t, []string{kept}, files)
}

func TestFindFilesNamed_IgnoreRulesAreScoped(t *testing.T) {
	t.Parallel()

	// A rule in a subdirectory must not hide files outside that subtree.
	root := t.TempDir()
	inner := touch(t, root, "a", "keep", "package.json")
	outer := touch(t, root, "keep", "package.json")
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", ".gitignore"), []byte("# nothing ignored\n"), 0o644))

	files, err := FindFilesNamed(root, "package.json")

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{inner, outer}, files)
}
