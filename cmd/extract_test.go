package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/pdftext/internal/extract"
)

func TestRunExtract_Success(t *testing.T) {
	p := &processor{run: &fakeRunner{res: okExtraction("body")}, log: zap.NewNop()}
	var buf bytes.Buffer

	err := runExtract(context.Background(), p, []string{writePDF(t, t.TempDir())}, formatText, "", &buf)
	require.NoError(t, err)
	assert.Equal(t, "body\n", buf.String())
}

func TestRunExtract_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))

	noText := &fakeRunner{res: extract.Result{Text: extract.NoTextText, Backend: extract.BackendNone, Err: extract.ErrNoText}}
	p := &processor{run: noText, log: zap.NewNop()}

	var buf bytes.Buffer
	err := runExtract(context.Background(), p, []string{bad}, formatText, "", &buf)
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitInvalidInput, ee.code)
	assert.Contains(t, buf.String(), extract.InvalidInputText)

	buf.Reset()
	err = runExtract(context.Background(), p, []string{bad, writePDF(t, dir)}, formatText, "", &buf)
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitNoText, ee.code, "no text outranks invalid input")
	assert.Contains(t, buf.String(), extract.NoTextText)
}

func TestRunExtract_OutFile(t *testing.T) {
	p := &processor{run: &fakeRunner{res: okExtraction("to a file")}, log: zap.NewNop()}
	out := filepath.Join(t.TempDir(), "extracted_text.txt")
	var buf bytes.Buffer

	require.NoError(t, runExtract(context.Background(), p, []string{writePDF(t, t.TempDir())}, formatText, out, &buf))
	assert.Empty(t, buf.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "to a file\n", string(data))
}

func TestRunExtract_CancelledContext(t *testing.T) {
	fr := &fakeRunner{res: okExtraction("x")}
	p := &processor{run: fr, log: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runExtract(ctx, p, []string{writePDF(t, t.TempDir())}, formatText, "", &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fr.calls)
}
