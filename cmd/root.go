package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pdftext/internal/config"
	"github.com/sells-group/pdftext/internal/extract"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pdftext",
	Short: "Extract text from PDF documents",
	Long:  "Extracts text from PDFs through a cascade of the embedded text layer, a rendered text layer and raster OCR, and keeps a ledger of every run.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// Exit codes.
const (
	exitOK           = 0
	exitFailure      = 1
	exitInvalidInput = 2
	exitNoText       = 3
)

// exitError carries a process exit code for an extraction outcome.
type exitError struct {
	code int
	kind extract.ErrorKind
}

func (e *exitError) Error() string {
	return fmt.Sprintf("extraction failed: %s", e.kind)
}

// exitCodeFor maps an extraction error kind to a process exit code.
func exitCodeFor(kind extract.ErrorKind) int {
	switch kind {
	case extract.KindNone:
		return exitOK
	case extract.KindInputInvalid, extract.KindResourceExceeded:
		return exitInvalidInput
	default:
		return exitNoText
	}
}

// worstKind returns the kind whose exit code takes precedence.
func worstKind(a, b extract.ErrorKind) extract.ErrorKind {
	if exitCodeFor(b) > exitCodeFor(a) {
		return b
	}
	return a
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitFailure)
	}
}
