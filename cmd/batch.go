package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/pdftext/internal/extract"
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir|glob>",
	Short: "Extract every PDF in a directory",
	Long:  "Extracts each matching PDF concurrently and writes one output file per input into the output directory.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
			cfg.Batch.Concurrency = c
		}
		if dir, _ := cmd.Flags().GetString("out"); dir != "" {
			cfg.Batch.OutDir = dir
		}
		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		limit, _ := cmd.Flags().GetInt("limit")
		useCache, _ := cmd.Flags().GetBool("cache")
		if !validFormat(format) {
			return eris.Errorf("unknown output format: %s", format)
		}

		files, err := collectInputs(args[0])
		if err != nil {
			return err
		}
		if limit > 0 && len(files) > limit {
			files = files[:limit]
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
			useCache:  useCache,
			log:       log,
		}
		outDir := cfg.Batch.OutDir
		sum, err := processBatch(ctx, files, cfg.Batch.Concurrency, newLimiter(cfg.Batch.RatePerSec), func(ctx context.Context, path string) (bool, error) {
			o := p.process(ctx, path)
			if err := writeFile(outputPath(outDir, path, format), o, format); err != nil {
				return false, err
			}
			return o.Result.OK, nil
		})
		if err != nil {
			return err
		}
		if sum.Failed > 0 {
			return &exitError{code: exitNoText, kind: extract.KindNoText}
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringP("out", "o", "", "output directory (default batch.out_dir)")
	batchCmd.Flags().StringP("format", "f", formatText, "output format: text, pages, json or yaml")
	batchCmd.Flags().Int("concurrency", 0, "parallel extractions (default batch.concurrency)")
	batchCmd.Flags().Int("limit", 0, "max number of files to process (0 means all)")
	batchCmd.Flags().Bool("cache", false, "reuse results of earlier successful runs")
	rootCmd.AddCommand(batchCmd)
}

// collectInputs expands arg into a sorted list of PDF paths. A directory
// yields its .pdf files (not recursive); anything else is a glob pattern.
func collectInputs(arg string) ([]string, error) {
	var files []string
	if st, err := os.Stat(arg); err == nil && st.IsDir() {
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "read dir %s", arg)
		}
		for _, e := range entries {
			if e.Type().IsRegular() && isPDFName(e.Name()) {
				files = append(files, filepath.Join(arg, e.Name()))
			}
		}
	} else {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "bad pattern %s", arg)
		}
		files = matches
	}
	if len(files) == 0 {
		return nil, eris.Errorf("no PDF files match %s", arg)
	}
	sort.Strings(files)
	return files, nil
}

func isPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf") && !strings.HasPrefix(name, ".")
}

// newLimiter returns nil when perSec is zero, meaning unthrottled.
func newLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return nil
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

// fileFunc handles one file and reports whether text was extracted.
type fileFunc func(ctx context.Context, path string) (bool, error)

type batchSummary struct {
	Total     int
	Succeeded int64
	Failed    int64
	Errored   int64
}

// processBatch runs fn over files with bounded concurrency. Individual
// failures are counted, never abort the batch.
func processBatch(ctx context.Context, files []string, concurrency int, limiter *rate.Limiter, fn fileFunc) (batchSummary, error) {
	sum := batchSummary{Total: len(files)}
	if len(files) == 0 {
		zap.L().Info("no files to process")
		return sum, nil
	}

	zap.L().Info("processing batch",
		zap.Int("files", len(files)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed, errored atomic.Int64

	for _, path := range files {
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		g.Go(func() error {
			log := zap.L().With(zap.String("path", path))

			ok, err := fn(gctx, path)
			switch {
			case err != nil:
				errored.Add(1)
				log.Error("file failed", zap.Error(err))
			case ok:
				succeeded.Add(1)
			default:
				failed.Add(1)
				log.Warn("no text extracted")
			}
			return nil // don't abort batch on individual failure
		})
	}

	if err := g.Wait(); err != nil {
		return sum, eris.Wrap(err, "batch processing")
	}

	sum.Succeeded = succeeded.Load()
	sum.Failed = failed.Load() + errored.Load()
	sum.Errored = errored.Load()

	zap.L().Info("batch complete",
		zap.Int("total", sum.Total),
		zap.Int64("succeeded", sum.Succeeded),
		zap.Int64("failed", sum.Failed),
	)
	return sum, ctx.Err()
}
