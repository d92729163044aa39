package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/svcforge/internal/command"
	"github.com/vk/svcforge/internal/wasm"
	"github.com/vk/svcforge/internal/workspace"
)

func TestModeDir(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "debug", (&Driver{}).modeDir())
	assert.Equal(t, "release", (&Driver{opts: Options{Release: true}}).modeDir())
}

func TestEnv(t *testing.T) {
	t.Parallel()

	t.Run("platform abi", func(t *testing.T) {
		d := &Driver{opts: Options{StackSize: 65536}}
		env := d.env(workspace.KindRust)
		assert.Contains(t, env, "FORGE_ABI=forge")
		assert.Contains(t, env, "FORGE_STACK_SIZE=65536")
		assert.Contains(t, env, "RUSTC_WRAPPER="+rustcWrapper)
	})

	t.Run("wasi abi skips the wrapper", func(t *testing.T) {
		d := &Driver{opts: Options{WASI: true}}
		env := d.env(workspace.KindRust)
		assert.Contains(t, env, "FORGE_ABI=wasi")
		assert.NotContains(t, env, "RUSTC_WRAPPER="+rustcWrapper)
	})

	t.Run("non-rust kinds get no cargo knobs", func(t *testing.T) {
		d := &Driver{opts: Options{StackSize: 64}}
		env := d.env(workspace.KindJavaScript)
		assert.NotContains(t, env, "RUSTC_WRAPPER="+rustcWrapper)
		assert.Contains(t, env, "FORGE_STACK_SIZE=64")
	})
}

func TestAppendEnv(t *testing.T) {
	t.Parallel()

	env := appendEnv([]string{"OTHER=1"}, "RUSTFLAGS", "-C opt-level=3")
	assert.Contains(t, env, "RUSTFLAGS=-C opt-level=3")

	// An inherited value is extended, not replaced.
	env = appendEnv([]string{"RUSTFLAGS=-C debuginfo=2"}, "RUSTFLAGS", "-C opt-level=3")
	assert.Equal(t, []string{"RUSTFLAGS=-C debuginfo=2 -C opt-level=3"}, env)
}

func TestCargoVerbosityArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"--quiet"}, cargoVerbosityArgs(command.Silent))
	assert.Nil(t, cargoVerbosityArgs(command.Normal))
	assert.Nil(t, cargoVerbosityArgs(command.Verbose))
	assert.Equal(t, []string{"--verbose"}, cargoVerbosityArgs(command.High))
	assert.Equal(t, []string{"-vvv"}, cargoVerbosityArgs(command.Debug))
}

func TestArtifactName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ballot.wasm", artifactName(&workspace.Target{Name: "ballot"}))
	// Scoped npm packages keep only their final component.
	assert.Equal(t, "gateway.wasm", artifactName(&workspace.Target{Name: "@forge/gateway"}))
}

func TestModuleOutputPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/x/a.wasm", moduleOutputPath("/x/a.out"))
	assert.Equal(t, "/x/svc.wasm", moduleOutputPath("/x/svc.wasm"))
}

// adaptableModule is a minimal module with an exported owned memory, the
// smallest input the ABI adapter meaningfully transforms.
func adaptableModule() []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 memory, min 1
		0x07, 0x0A, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00, // export "memory"
	}
}

// precompiledWorkspace populates a workspace over an empty repository and
// selects the given module path as a precompiled target.
func precompiledWorkspace(t *testing.T, modPath string) (*workspace.Workspace, []workspace.TargetRef) {
	t.Helper()
	root := filepath.Dir(modPath)
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	ws, err := workspace.Populate(context.Background(), workspace.WithStartDir(root))
	require.NoError(t, err)
	refs, err := ws.CollectTargets(context.Background(), []string{filepath.Base(modPath)})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	return ws, refs
}

func TestBuild_PrecompiledModule(t *testing.T) {
	t.Parallel()

	modPath := filepath.Join(t.TempDir(), "svc.wasm")
	require.NoError(t, os.WriteFile(modPath, adaptableModule(), 0o644))
	ws, refs := precompiledWorkspace(t, modPath)

	d := New(ws, Options{})
	require.NoError(t, d.Build(context.Background(), refs))

	// The module is rewritten in place with its memory externalized.
	m, err := wasm.DecodeFile(modPath)
	require.NoError(t, err)
	assert.True(t, m.HasImportedMemory())
	_, ok := m.FindExport("memory")
	assert.False(t, ok)
}

func TestTest_PrecompiledModuleIsNoop(t *testing.T) {
	t.Parallel()

	modPath := filepath.Join(t.TempDir(), "svc.wasm")
	require.NoError(t, os.WriteFile(modPath, adaptableModule(), 0o644))
	ws, refs := precompiledWorkspace(t, modPath)

	d := New(ws, Options{})
	require.NoError(t, d.Test(context.Background(), refs))
}

func TestClean_PrecompiledModuleRemovesFile(t *testing.T) {
	t.Parallel()

	modPath := filepath.Join(t.TempDir(), "svc.wasm")
	require.NoError(t, os.WriteFile(modPath, adaptableModule(), 0o644))
	ws, refs := precompiledWorkspace(t, modPath)

	d := New(ws, Options{})
	require.NoError(t, d.Clean(context.Background(), refs))

	_, err := os.Stat(modPath)
	assert.True(t, os.IsNotExist(err))
}
