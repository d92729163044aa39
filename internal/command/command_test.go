package command

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		verbose, quiet int
		want           Verbosity
	}{
		{0, 0, Normal},
		{1, 0, Verbose},
		{2, 0, High},
		{3, 0, Debug},
		{9, 0, Debug}, // capped
		{0, 1, Silent},
		{0, 5, Silent}, // capped
		{2, 1, Verbose},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromFlags(tt.verbose, tt.quiet))
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("captures stdout and stderr", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		err := Run(context.Background(), Invocation{
			Tool:   "sh",
			Args:   []string{"-c", "echo out; echo err >&2"},
			Stdout: &stdout,
			Stderr: &stderr,
		})
		require.NoError(t, err)
		assert.Equal(t, "out\n", stdout.String())
		assert.Equal(t, "err\n", stderr.String())
	})

	t.Run("nil sinks discard output", func(t *testing.T) {
		err := Run(context.Background(), Invocation{
			Tool: "sh",
			Args: []string{"-c", "echo ignored"},
		})
		require.NoError(t, err)
	})

	t.Run("nonzero exit", func(t *testing.T) {
		err := Run(context.Background(), Invocation{
			Tool: "sh",
			Args: []string{"-c", "exit 3"},
		})
		var exitErr *ExitStatusError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, "sh", exitErr.Tool)
		assert.Equal(t, 3, exitErr.Code)
	})

	t.Run("tool not found", func(t *testing.T) {
		err := Run(context.Background(), Invocation{Tool: "definitely-not-a-real-tool-xyz"})
		var notFound *ErrToolNotFound
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "definitely-not-a-real-tool-xyz", notFound.Tool)
	})

	t.Run("runs in dir", func(t *testing.T) {
		dir := t.TempDir()
		var stdout bytes.Buffer
		err := Run(context.Background(), Invocation{
			Tool:   "pwd",
			Dir:    dir,
			Stdout: &stdout,
		})
		require.NoError(t, err)
		// Trailing newline from pwd; the path may be a symlink on darwin, so
		// only assert it is non-empty and newline-terminated.
		out := stdout.String()
		require.NotEmpty(t, out)
		assert.Equal(t, byte('\n'), out[len(out)-1])
	})
}

func TestSinks(t *testing.T) {
	t.Parallel()

	stdout, stderr := Sinks(Silent)
	assert.Nil(t, stdout)
	assert.Nil(t, stderr)

	stdout, stderr = Sinks(Normal)
	assert.Nil(t, stdout)
	assert.Equal(t, os.Stderr, stderr)

	stdout, stderr = Sinks(Verbose)
	assert.Equal(t, os.Stdout, stdout)
	assert.Equal(t, os.Stderr, stderr)
}
