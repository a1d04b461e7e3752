package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/pdftext/internal/extract"
	"github.com/sells-group/pdftext/internal/model"
	"github.com/sells-group/pdftext/internal/pdftest"
	"github.com/sells-group/pdftext/internal/store"
)

// fakeRunner returns a fixed result and counts calls.
type fakeRunner struct {
	res   extract.Result
	calls int
}

func (f *fakeRunner) Run(_ context.Context, _ string) extract.Result {
	f.calls++
	return f.res
}

func okExtraction(text string) extract.Result {
	return extract.Result{
		Text:      text,
		Backend:   extract.BackendStructured,
		OK:        true,
		Pages:     []string{text},
		PageCount: 1,
		Elapsed:   25 * time.Millisecond,
		Stages: []extract.Stage{
			{Backend: extract.BackendStructured, Ran: true, Pages: 1, Filled: 1, Chars: len(text), Elapsed: 20 * time.Millisecond},
		},
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func writePDF(t *testing.T, dir string) string {
	t.Helper()
	return pdftest.Write(t, dir, "doc.pdf", pdftest.TextPage("Hello from the screening test"))
}

func TestScreen_Valid(t *testing.T) {
	path := writePDF(t, t.TempDir())

	doc, err := screen(path, 16<<20)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	sum := sha256.Sum256(data)

	assert.Equal(t, "doc.pdf", doc.Name)
	assert.Equal(t, int64(len(data)), doc.Size)
	assert.Equal(t, hex.EncodeToString(sum[:]), doc.SHA256)
	assert.True(t, filepath.IsAbs(doc.Path))
}

func TestScreen_Rejections(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	text := filepath.Join(dir, "notes.pdf")
	require.NoError(t, os.WriteFile(text, []byte("just some notes"), 0o644))
	short := filepath.Join(dir, "short.pdf")
	require.NoError(t, os.WriteFile(short, []byte("%PD"), 0o644))
	valid := writePDF(t, dir)

	tests := []struct {
		name      string
		path      string
		maxUpload int64
		want      extract.ErrorKind
	}{
		{name: "missing", path: filepath.Join(dir, "missing.pdf"), want: extract.KindInputInvalid},
		{name: "directory", path: dir, want: extract.KindInputInvalid},
		{name: "empty", path: empty, want: extract.KindInputInvalid},
		{name: "no magic", path: text, want: extract.KindInputInvalid},
		{name: "truncated magic", path: short, want: extract.KindInputInvalid},
		{name: "over upload limit", path: valid, maxUpload: 10, want: extract.KindResourceExceeded},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := screen(tc.path, tc.maxUpload)
			require.Error(t, err)
			assert.Equal(t, tc.want, extract.Kind(err))
		})
	}
}

func TestToRunResult(t *testing.T) {
	res := okExtraction("héllo")
	res.Capped = true
	res.PageCount = 80
	res.Stages = append(res.Stages, extract.Stage{Backend: extract.BackendOCR, Err: errors.New("ocr boom")})

	rr := toRunResult(res)
	assert.Equal(t, "structured", rr.Backend)
	assert.True(t, rr.OK)
	assert.Empty(t, rr.Kind)
	assert.Equal(t, 5, rr.Chars)
	assert.Equal(t, int64(25), rr.ElapsedMS)
	assert.Equal(t, 80, rr.PageCount)
	assert.True(t, rr.Capped)
	require.Len(t, rr.Stages, 2)
	assert.Equal(t, int64(20), rr.Stages[0].ElapsedMS)
	assert.Equal(t, "ocr boom", rr.Stages[1].Error)
}

func TestToRunResult_Failure(t *testing.T) {
	rr := toRunResult(extract.Result{Text: extract.NoTextText, Backend: extract.BackendNone, Err: extract.ErrNoText})
	assert.False(t, rr.OK)
	assert.Equal(t, "no_text", rr.Kind)
}

func TestProcess_RecordsRun(t *testing.T) {
	st := newTestStore(t)
	fr := &fakeRunner{res: okExtraction("extracted body text")}
	p := &processor{run: fr, store: st, maxUpload: 16 << 20, log: zap.NewNop()}

	o := p.process(context.Background(), writePDF(t, t.TempDir()))
	require.NotNil(t, o)
	assert.Equal(t, extract.KindNone, o.kind)
	assert.Equal(t, "extracted body text", o.Result.Text)
	require.NotEmpty(t, o.RunID)

	run, err := st.GetRun(context.Background(), o.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, o.Doc.SHA256, run.Document.SHA256)
}

func TestProcess_CacheHit(t *testing.T) {
	st := newTestStore(t)
	fr := &fakeRunner{res: okExtraction("first pass")}
	p := &processor{run: fr, store: st, maxUpload: 16 << 20, useCache: true, log: zap.NewNop()}
	path := writePDF(t, t.TempDir())

	first := p.process(context.Background(), path)
	second := p.process(context.Background(), path)

	assert.Equal(t, 1, fr.calls)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, "first pass", second.Result.Text)
}

func TestProcess_CacheDisabled(t *testing.T) {
	st := newTestStore(t)
	fr := &fakeRunner{res: okExtraction("text")}
	p := &processor{run: fr, store: st, log: zap.NewNop()}
	path := writePDF(t, t.TempDir())

	p.process(context.Background(), path)
	p.process(context.Background(), path)
	assert.Equal(t, 2, fr.calls)
}

func TestProcess_RejectedInput(t *testing.T) {
	st := newTestStore(t)
	fr := &fakeRunner{}
	p := &processor{run: fr, store: st, maxUpload: 16 << 20, log: zap.NewNop()}

	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("<html>not a pdf</html>"), 0o644))

	o := p.process(context.Background(), path)
	assert.Equal(t, 0, fr.calls)
	assert.Equal(t, extract.KindInputInvalid, o.kind)
	assert.Equal(t, extract.InvalidInputText, o.Result.Text)
	assert.False(t, o.Result.OK)

	run, err := st.GetRun(context.Background(), o.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, "input_invalid", run.Error.Kind)
}

func TestProcess_TooLarge(t *testing.T) {
	fr := &fakeRunner{}
	p := &processor{run: fr, maxUpload: 8, log: zap.NewNop()}

	o := p.process(context.Background(), writePDF(t, t.TempDir()))
	assert.Equal(t, 0, fr.calls)
	assert.Equal(t, extract.KindResourceExceeded, o.kind)
	assert.Equal(t, extract.TooLargeText, o.Result.Text)
	assert.Empty(t, o.RunID)
}

func TestProcess_NoStore(t *testing.T) {
	fr := &fakeRunner{res: extract.Result{Text: extract.NoTextText, Backend: extract.BackendNone, Err: extract.ErrNoText}}
	p := &processor{run: fr, useCache: true, log: zap.NewNop()}

	o := p.process(context.Background(), writePDF(t, t.TempDir()))
	assert.Equal(t, 1, fr.calls)
	assert.Equal(t, extract.KindNoText, o.kind)
	assert.Empty(t, o.RunID)
}
