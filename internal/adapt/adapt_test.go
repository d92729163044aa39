package adapt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/svcforge/internal/wasm"
)

func buildModule(sections ...[]byte) []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

func section(id wasm.SectionID, payload ...byte) []byte {
	out := []byte{byte(id), byte(len(payload))}
	return append(out, payload...)
}

// serviceModule mimics a freshly compiled service: owned memory exported as
// "memory", a "_start" entry point, and a debug custom section alongside a
// platform interface section.
func serviceModule() []byte {
	return buildModule(
		section(wasm.SectionType, 0x01, 0x60, 0x00, 0x00),
		section(wasm.SectionFunction, 0x01, 0x00),
		section(wasm.SectionMemory, 0x01, 0x00, 0x11),
		section(wasm.SectionExport,
			0x02,
			0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
			0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00,
		),
		section(wasm.SectionCode, 0x01, 0x04, 0x00, 0x41, 0x2A, 0x0B),
		section(wasm.SectionCustom, 0x09, '.', 'd', 'e', 'b', 'u', 'g', '_', 'i', 'c', 0x01),
		section(wasm.SectionCustom, 0x09, 'f', 'o', 'r', 'g', 'e', '-', 'a', 'b', 'i', 0x02),
	)
}

func decode(t *testing.T, data []byte) *wasm.Module {
	t.Helper()
	m, err := wasm.Decode(data)
	require.NoError(t, err)
	return m
}

func TestApply_ExternalizesMemory(t *testing.T) {
	t.Parallel()

	m := decode(t, serviceModule())
	require.NoError(t, Apply(context.Background(), m, Options{}))

	_, ok := m.FindExport(MemoryExportName)
	assert.False(t, ok, "memory export should be removed")
	assert.Empty(t, m.Memories(), "owned memory should move to the import")
	assert.True(t, m.HasImportedMemory())
}

func TestApply_RemoveStart(t *testing.T) {
	t.Parallel()

	m := decode(t, serviceModule())
	require.NoError(t, Apply(context.Background(), m, Options{RemoveStart: true}))

	_, ok := m.FindExport(StartExportName)
	assert.False(t, ok)
}

func TestApply_KeepsStartForManagedRuntime(t *testing.T) {
	t.Parallel()

	m := decode(t, serviceModule())
	require.NoError(t, Apply(context.Background(), m, Options{RemoveStart: false}))

	_, ok := m.FindExport(StartExportName)
	assert.True(t, ok)
}

func TestApply_ReleasePrunesCustomSections(t *testing.T) {
	t.Parallel()

	m := decode(t, serviceModule())
	require.NoError(t, Apply(context.Background(), m, Options{Release: true}))

	customs := m.Customs()
	require.Len(t, customs, 1)
	assert.Equal(t, "forge-abi", customs[0].Name, "platform metadata must survive pruning")
}

func TestApply_Idempotent(t *testing.T) {
	t.Parallel()

	opts := Options{Release: true, RemoveStart: true}

	m := decode(t, serviceModule())
	require.NoError(t, Apply(context.Background(), m, opts))
	once := m.Encode()

	again := decode(t, once)
	require.NoError(t, Apply(context.Background(), again, opts))
	assert.Equal(t, once, again.Encode())
}

func TestApply_NoMemoryExportPassesThrough(t *testing.T) {
	t.Parallel()

	in := buildModule(
		section(wasm.SectionType, 0x01, 0x60, 0x00, 0x00),
		section(wasm.SectionMemory, 0x01, 0x00, 0x01),
	)
	m := decode(t, in)
	require.NoError(t, Apply(context.Background(), m, Options{}))
	assert.Equal(t, in, m.Encode())
}

func TestApply_NoMemoryAnywhere(t *testing.T) {
	t.Parallel()

	// Exports "memory" but declares none and imports none.
	in := buildModule(
		section(wasm.SectionExport, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00),
	)
	m := decode(t, in)
	err := Apply(context.Background(), m, Options{})
	require.ErrorIs(t, err, ErrNoMemory)
}

func TestFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.wasm")
	out := filepath.Join(dir, "out.wasm")
	require.NoError(t, os.WriteFile(in, serviceModule(), 0o644))

	require.NoError(t, File(context.Background(), in, out, Options{RemoveStart: true}))

	m, err := wasm.DecodeFile(out)
	require.NoError(t, err)
	assert.True(t, m.HasImportedMemory())
}
