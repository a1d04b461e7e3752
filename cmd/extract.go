package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pdftext/internal/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file.pdf>...",
	Short: "Extract text from one or more PDFs",
	Long:  "Extracts text from each file in turn and prints it. Exit status is 2 for invalid or oversized input and 3 when no text could be extracted.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")
		useCache, _ := cmd.Flags().GetBool("cache")
		noStore, _ := cmd.Flags().GetBool("no-store")
		if !validFormat(format) {
			return eris.Errorf("unknown output format: %s", format)
		}
		if outPath != "" && len(args) > 1 {
			return eris.New("--out accepts a single input file")
		}

		log := zap.L()
		orch, err := newOrchestrator(cfg, log)
		if err != nil {
			return err
		}

		p := &processor{
			run:       orch,
			maxUpload: cfg.Extract.MaxUploadBytes(),
			useCache:  useCache,
			log:       log,
		}
		if !noStore {
			st, err := initStore(ctx)
			if err != nil {
				log.Warn("run ledger unavailable", zap.Error(err))
			} else if st != nil {
				defer st.Close() //nolint:errcheck
				p.store = st
			}
		}

		return runExtract(ctx, p, args, format, outPath, os.Stdout)
	},
}

func init() {
	extractCmd.Flags().StringP("format", "f", formatText, "output format: text, pages, json or yaml")
	extractCmd.Flags().StringP("out", "o", "", "write the result to this file instead of stdout")
	extractCmd.Flags().Bool("cache", false, "reuse the text of an earlier successful run of the same file")
	extractCmd.Flags().Bool("no-store", false, "do not record runs in the ledger")
	rootCmd.AddCommand(extractCmd)
}

// runExtract processes files sequentially and returns an exitError carrying
// the most severe outcome.
func runExtract(ctx context.Context, p *processor, files []string, format, outPath string, stdout io.Writer) error {
	worst := extract.KindNone
	for _, path := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o := p.process(ctx, path)
		worst = worstKind(worst, o.kind)

		if outPath != "" {
			if err := writeFile(outPath, o, format); err != nil {
				return err
			}
			continue
		}
		if err := render(stdout, o, format); err != nil {
			return eris.Wrap(err, "write output")
		}
	}

	if code := exitCodeFor(worst); code != exitOK {
		return &exitError{code: code, kind: worst}
	}
	return nil
}
