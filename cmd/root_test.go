package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pdftext/internal/extract"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"extract", "batch", "watch", "runs"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "pdftext", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestExtractCommand_Flags(t *testing.T) {
	for _, name := range []string{"format", "out", "cache", "no-store"} {
		require.NotNil(t, extractCmd.Flags().Lookup(name), "extract command should have --%s flag", name)
	}
	assert.Equal(t, "text", extractCmd.Flags().Lookup("format").DefValue)
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "batch command should have --limit flag")
	assert.Equal(t, "0", flag.DefValue)
	require.NotNil(t, batchCmd.Flags().Lookup("concurrency"))
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "expected runs subcommand %q not found", name)
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		kind extract.ErrorKind
		want int
	}{
		{extract.KindNone, exitOK},
		{extract.KindInputInvalid, exitInvalidInput},
		{extract.KindResourceExceeded, exitInvalidInput},
		{extract.KindBackendFailure, exitNoText},
		{extract.KindTimeout, exitNoText},
		{extract.KindNoText, exitNoText},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, exitCodeFor(tc.kind))
		})
	}
}

func TestWorstKind(t *testing.T) {
	assert.Equal(t, extract.KindInputInvalid, worstKind(extract.KindNone, extract.KindInputInvalid))
	assert.Equal(t, extract.KindNoText, worstKind(extract.KindInputInvalid, extract.KindNoText))
	assert.Equal(t, extract.KindNoText, worstKind(extract.KindNoText, extract.KindNone))
}

func TestExitError(t *testing.T) {
	var err error = &exitError{code: exitNoText, kind: extract.KindTimeout}
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 3, ee.code)
	assert.Contains(t, err.Error(), "timeout")
}
