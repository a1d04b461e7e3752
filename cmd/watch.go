package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Extract PDFs as they arrive in a directory",
	Long:  "Watches an inbox directory and extracts each new or rewritten .pdf file into the output directory once it has stopped changing.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(args) == 1 {
			cfg.Watch.Dir = args[0]
		}
		if dir, _ := cmd.Flags().GetString("out"); dir != "" {
			cfg.Watch.OutDir = dir
		}
		if cfg.Watch.Dir == "" {
			return eris.New("watch: no directory given (argument or watch.dir)")
		}
		if err := cfg.Validate("watch"); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		existing, _ := cmd.Flags().GetBool("existing")
		if !validFormat(format) {
			return eris.Errorf("unknown output format: %s", format)
		}

		log := zap.L()
		orch, err := newOrchestrator(cfg, log)
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		p := &processor{
			run:       orch,
			store:     st,
			maxUpload: cfg.Extract.MaxUploadBytes(),
			useCache:  true,
			log:       log,
		}
		outDir := cfg.Watch.OutDir
		w := &watcher{
			dir:        cfg.Watch.Dir,
			settle:     time.Duration(cfg.Watch.SettleMS) * time.Millisecond,
			concurrent: cfg.Watch.Concurrent,
			log:        log.Named("watch"),
			handle: func(ctx context.Context, path string) (bool, error) {
				o := p.process(ctx, path)
				if err := writeFile(outputPath(outDir, path, format), o, format); err != nil {
					return false, err
				}
				return o.Result.OK, nil
			},
		}

		if existing {
			files, err := collectInputs(cfg.Watch.Dir)
			if err == nil {
				if _, err := processBatch(ctx, files, cfg.Watch.Concurrent, nil, w.handle); err != nil {
					return err
				}
			}
		}
		return w.run(ctx)
	},
}

func init() {
	watchCmd.Flags().StringP("out", "o", "", "output directory (default watch.out_dir)")
	watchCmd.Flags().StringP("format", "f", formatText, "output format: text, pages, json or yaml")
	watchCmd.Flags().Bool("existing", false, "process PDFs already in the directory before watching")
	rootCmd.AddCommand(watchCmd)
}

// watcher dispatches PDFs from an inbox directory once they settle.
type watcher struct {
	dir        string
	settle     time.Duration
	concurrent int
	handle     fileFunc
	log        *zap.Logger
}

// run blocks until ctx is done. In-flight files finish before it returns.
func (w *watcher) run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "watch: create watcher")
	}
	defer fw.Close() //nolint:errcheck

	if err := fw.Add(w.dir); err != nil {
		return eris.Wrapf(err, "watch: add %s", w.dir)
	}

	settle := w.settle
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	tick := time.NewTicker(settle / 2)
	defer tick.Stop()

	g, gctx := errgroup.WithContext(ctx)
	if w.concurrent > 0 {
		g.SetLimit(w.concurrent)
	}

	pending := newPendingSet()
	w.log.Info("watching for PDFs", zap.String("dir", w.dir))

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-fw.Events:
			if !ok {
				break loop
			}
			if wantEvent(ev) {
				pending.touch(ev.Name, time.Now())
			} else if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				pending.drop(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				break loop
			}
			w.log.Warn("watch error", zap.Error(err))
		case now := <-tick.C:
			w.dispatch(gctx, g, pending, now, settle)
		}
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "watch: workers")
	}
	w.log.Info("watch stopped")
	return nil
}

// dispatch starts a worker for every settled path. It never blocks: when the
// pool is full the path stays pending and is retried on the next tick, so the
// event loop keeps draining fsnotify.
func (w *watcher) dispatch(ctx context.Context, g *errgroup.Group, pending *pendingSet, now time.Time, settle time.Duration) int {
	started := 0
	for _, path := range pending.due(now, settle) {
		ok := g.TryGo(func() error {
			ok, err := w.handle(ctx, path)
			switch {
			case err != nil:
				w.log.Error("file failed", zap.String("path", path), zap.Error(err))
			case !ok:
				w.log.Warn("no text extracted", zap.String("path", path))
			default:
				w.log.Info("file extracted", zap.String("path", path))
			}
			return nil
		})
		if !ok {
			pending.touch(path, now.Add(-settle))
			continue
		}
		started++
	}
	return started
}

// wantEvent reports whether ev may have produced a complete PDF.
func wantEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	return isPDFName(filepath.Base(ev.Name))
}

// pendingSet tracks the last change of each path until it is dispatched.
// It is used from a single goroutine.
type pendingSet struct {
	last map[string]time.Time
}

func newPendingSet() *pendingSet {
	return &pendingSet{last: make(map[string]time.Time)}
}

func (p *pendingSet) touch(path string, at time.Time) {
	p.last[path] = at
}

func (p *pendingSet) drop(path string) {
	delete(p.last, path)
}

// due removes and returns, sorted, the paths unchanged for at least settle.
func (p *pendingSet) due(now time.Time, settle time.Duration) []string {
	var out []string
	for path, at := range p.last {
		if now.Sub(at) >= settle {
			out = append(out, path)
			delete(p.last, path)
		}
	}
	sort.Strings(out)
	return out
}
