package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pdftext/internal/extract"
	"github.com/sells-group/pdftext/internal/model"
	"github.com/sells-group/pdftext/internal/pdfdoc"
	"github.com/sells-group/pdftext/internal/store"
)

// runner is the part of the orchestrator the commands depend on.
type runner interface {
	Run(ctx context.Context, path string) extract.Result
}

// processor screens a file, extracts it and records the run. The store is
// optional.
type processor struct {
	run       runner
	store     store.Store
	maxUpload int64
	useCache  bool
	log       *zap.Logger
}

// outcome is what a command reports for one input file.
type outcome struct {
	Doc    model.Document   `json:"document" yaml:"document"`
	RunID  string           `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Cached bool             `json:"cached" yaml:"cached"`
	Result *model.RunResult `json:"result" yaml:"result"`
	kind   extract.ErrorKind
}

// process handles one file. Ledger failures are logged and never change the
// extracted text.
func (p *processor) process(ctx context.Context, path string) *outcome {
	log := p.log.With(zap.String("path", path))

	doc, err := screen(path, p.maxUpload)
	if err != nil {
		kind := extract.Kind(err)
		log.Warn("input rejected", zap.String("kind", kind.String()), zap.Error(err))
		res := &model.RunResult{
			Backend: string(extract.BackendNone),
			Kind:    kind.String(),
			Text:    extract.SentinelText(kind),
		}
		out := &outcome{Doc: doc, Result: res, kind: kind}
		out.RunID = p.recordRejected(ctx, log, doc, &model.RunError{Message: err.Error(), Kind: kind.String()})
		return out
	}

	if p.useCache && p.store != nil {
		hit, err := p.store.FindCompletedBySHA(ctx, doc.SHA256)
		if err != nil {
			log.Warn("cache lookup failed", zap.Error(err))
		} else if hit != nil && hit.Result != nil {
			log.Info("using cached result", zap.String("run_id", hit.ID))
			return &outcome{Doc: doc, RunID: hit.ID, Cached: true, Result: hit.Result, kind: extract.KindNone}
		}
	}

	var runID string
	if p.store != nil {
		run, err := p.store.CreateRun(ctx, doc)
		if err != nil {
			log.Warn("failed to record run", zap.Error(err))
		} else {
			runID = run.ID
		}
	}

	res := p.run.Run(ctx, path)
	rr := toRunResult(res)

	if runID != "" {
		if err := p.store.CompleteRun(ctx, runID, rr); err != nil {
			log.Warn("failed to complete run", zap.String("run_id", runID), zap.Error(err))
		}
	}

	return &outcome{Doc: doc, RunID: runID, Result: rr, kind: res.Kind()}
}

func (p *processor) recordRejected(ctx context.Context, log *zap.Logger, doc model.Document, runErr *model.RunError) string {
	if p.store == nil {
		return ""
	}
	run, err := p.store.CreateRun(ctx, doc)
	if err != nil {
		log.Warn("failed to record run", zap.Error(err))
		return ""
	}
	if err := p.store.FailRun(ctx, run.ID, runErr); err != nil {
		log.Warn("failed to fail run", zap.String("run_id", run.ID), zap.Error(err))
	}
	return run.ID
}

// screen applies the caller-side checks: a regular, non-empty file no larger
// than maxUpload (0 disables) that starts with the PDF header. It returns the
// document identity, hashed, on success.
func screen(path string, maxUpload int64) (model.Document, error) {
	doc := model.Document{Path: path, Name: filepath.Base(path)}
	if abs, err := filepath.Abs(path); err == nil {
		doc.Path = abs
	}

	st, err := os.Stat(path)
	if err != nil {
		return doc, eris.Wrapf(extract.ErrInputInvalid, "stat %s: %v", path, err)
	}
	if !st.Mode().IsRegular() {
		return doc, eris.Wrapf(extract.ErrInputInvalid, "%s is not a regular file", path)
	}
	doc.Size = st.Size()
	if doc.Size == 0 {
		return doc, eris.Wrapf(extract.ErrInputInvalid, "%s is empty", path)
	}
	if maxUpload > 0 && doc.Size > maxUpload {
		return doc, eris.Wrapf(extract.ErrResourceExceeded, "%s is %d bytes, limit is %d", path, doc.Size, maxUpload)
	}

	f, err := os.Open(path)
	if err != nil {
		return doc, eris.Wrapf(extract.ErrInputInvalid, "open %s: %v", path, err)
	}
	defer f.Close() //nolint:errcheck

	head := make([]byte, len(pdfdoc.Magic))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return doc, eris.Wrapf(extract.ErrInputInvalid, "read %s: %v", path, err)
	}
	if !pdfdoc.HasMagic(head[:n]) {
		return doc, eris.Wrapf(extract.ErrInputInvalid, "%s does not start with %s", path, pdfdoc.Magic)
	}

	h := sha256.New()
	h.Write(head[:n])
	if _, err := io.Copy(h, f); err != nil {
		return doc, eris.Wrapf(extract.ErrInputInvalid, "hash %s: %v", path, err)
	}
	doc.SHA256 = hex.EncodeToString(h.Sum(nil))
	return doc, nil
}

// toRunResult converts an extraction result to its ledger form.
func toRunResult(res extract.Result) *model.RunResult {
	rr := &model.RunResult{
		Backend:   string(res.Backend),
		OK:        res.OK,
		Text:      res.Text,
		Pages:     res.Pages,
		PageCount: res.PageCount,
		Capped:    res.Capped,
		Chars:     utf8.RuneCountInString(res.Text),
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
	if k := res.Kind(); k != extract.KindNone {
		rr.Kind = k.String()
	}
	for _, st := range res.Stages {
		sr := model.StageResult{
			Backend:   string(st.Backend),
			Ran:       st.Ran,
			Skipped:   st.Skipped,
			Pages:     st.Pages,
			Filled:    st.Filled,
			Chars:     st.Chars,
			ElapsedMS: st.Elapsed.Milliseconds(),
		}
		if st.Err != nil {
			sr.Error = st.Err.Error()
		}
		rr.Stages = append(rr.Stages, sr)
	}
	return rr
}
