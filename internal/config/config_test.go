package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/pdftext/internal/extract"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cascade", cfg.Extract.Mode)
	assert.Equal(t, 100, cfg.Extract.MinContentChars)
	assert.Equal(t, 50, cfg.Extract.MergeThreshold)
	assert.Equal(t, 50, cfg.Extract.MaxPages)
	assert.Equal(t, 50, cfg.Extract.MaxFileMB)
	assert.Equal(t, 16, cfg.Extract.MaxUploadMB)
	assert.Equal(t, 120, cfg.Extract.TimeoutSecs)
	assert.Equal(t, "mupdf", cfg.Extract.RenderedProvider)
	assert.True(t, cfg.OCR.Enabled)
	assert.InDelta(t, 150.0, cfg.OCR.DPI, 0.001)
	assert.Equal(t, 10, cfg.OCR.PageCap)
	assert.Equal(t, 30, cfg.OCR.PageTimeoutSecs)
	assert.Equal(t, 2000, cfg.OCR.MaxDimension)
	assert.True(t, cfg.OCR.Grayscale)
	assert.Equal(t, []string{"eng"}, cfg.OCR.Languages)
	assert.Equal(t, 4, cfg.OCR.PageSegMode)
	assert.Equal(t, "all", cfg.Normalize.OCRFixes)
	assert.True(t, cfg.Normalize.FoldWidth)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "pdftext.db", cfg.Store.Path)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
extract:
  mode: exhaustive
  rendered_provider: pdftotext
ocr:
  dpi: 300
  languages: [eng, deu]
store:
  driver: postgres
  database_url: postgres://localhost/pdftext
log:
  level: debug
  format: console
batch:
  concurrency: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "exhaustive", cfg.Extract.Mode)
	assert.Equal(t, "pdftotext", cfg.Extract.RenderedProvider)
	assert.InDelta(t, 300.0, cfg.OCR.DPI, 0.001)
	assert.Equal(t, []string{"eng", "deu"}, cfg.OCR.Languages)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, 50, cfg.Extract.MaxPages)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PDFTEXT_STORE_DRIVER", "sqlite")
	t.Setenv("PDFTEXT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("PDFTEXT_EXTRACT_TIMEOUT_SECS", "30")
	t.Setenv("PDFTEXT_NORMALIZE_OCR_FIXES", "ocr_only")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Extract.TimeoutSecs)
	assert.Equal(t, "ocr_only", cfg.Normalize.OCRFixes)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("extract: [unterminated"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestOrchestratorConversion(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)

	got := cfg.Extract.Orchestrator(cfg.OCR)
	assert.Equal(t, extract.DefaultConfig(), got)
}

func TestEngineConversion(t *testing.T) {
	oc := OCRConfig{DPI: 200, PageCap: 3, PageTimeoutSecs: 5, MaxDimension: 1000, Grayscale: true, Languages: []string{"fra"}, PageSegMode: 6}
	got := oc.Engine()

	assert.InDelta(t, 200.0, got.DPI, 0.001)
	assert.Equal(t, 3, got.PageCap)
	assert.Equal(t, 5*time.Second, got.PerPageTimeout)
	assert.Equal(t, 1000, got.MaxDimension)
	assert.True(t, got.Grayscale)
	assert.Equal(t, []string{"fra"}, got.Languages)
	assert.Equal(t, 6, got.PageSegMode)
}

func TestMaxUploadBytes(t *testing.T) {
	assert.Equal(t, int64(16<<20), ExtractConfig{MaxUploadMB: 16}.MaxUploadBytes())
}

func TestCleaners(t *testing.T) {
	text, ocrText := NormalizeConfig{OCRFixes: "ocr_only", FoldWidth: true}.Cleaners()
	assert.False(t, text.Options().FixOCRConfusions)
	assert.True(t, ocrText.Options().FixOCRConfusions)

	text, ocrText = NormalizeConfig{OCRFixes: "all"}.Cleaners()
	assert.True(t, text.Options().FixOCRConfusions)
	assert.True(t, ocrText.Options().FixOCRConfusions)
	assert.False(t, text.Options().FoldWidth)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Extract = ExtractConfig{
		Mode:             "cascade",
		MinContentChars:  100,
		MergeThreshold:   50,
		MaxPages:         50,
		MaxFileMB:        50,
		MaxUploadMB:      16,
		TimeoutSecs:      120,
		RenderedProvider: "mupdf",
	}
	cfg.OCR = OCRConfig{Enabled: true, DPI: 150, PageCap: 10, Languages: []string{"eng"}}
	cfg.Normalize.OCRFixes = "all"
	cfg.Store = StoreConfig{Driver: "sqlite", Path: "pdftext.db"}
	cfg.Batch.Concurrency = 4
	cfg.Watch.Concurrent = 2
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"extract", "batch", "watch", "runs"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateExtract_BadValues(t *testing.T) {
	cfg := validDefaults()
	cfg.Extract.Mode = "fastest"
	cfg.Extract.RenderedProvider = "acrobat"
	cfg.Extract.MaxPages = 0
	cfg.Normalize.OCRFixes = "some"

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract.mode")
	assert.Contains(t, err.Error(), "extract.rendered_provider")
	assert.Contains(t, err.Error(), "extract.max_pages must be > 0")
	assert.Contains(t, err.Error(), "normalize.ocr_fixes")
}

func TestValidateOCR_OnlyWhenEnabled(t *testing.T) {
	cfg := validDefaults()
	cfg.OCR.Languages = nil

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr.languages must not be empty")

	cfg.OCR.Enabled = false
	assert.NoError(t, cfg.Validate("extract"))
}

func TestValidateBatchConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	err := cfg.Validate("batch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 64")

	cfg.Batch.Concurrency = 65
	assert.Error(t, cfg.Validate("batch"))

	cfg.Batch.Concurrency = 64
	assert.NoError(t, cfg.Validate("batch"))

	// extract ignores batch settings
	cfg.Batch.Concurrency = 0
	assert.NoError(t, cfg.Validate("extract"))
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()

	cfg.Store = StoreConfig{Driver: "postgres"}
	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required for postgres")

	cfg.Store.DatabaseURL = "postgres://localhost/pdftext"
	assert.NoError(t, cfg.Validate("runs"))

	cfg.Store = StoreConfig{Driver: "mysql"}
	err = cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")

	cfg.Store = StoreConfig{Driver: "none"}
	assert.NoError(t, cfg.Validate("runs"))
}
