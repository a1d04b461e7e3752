package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/pdftext/internal/extract"
	"github.com/sells-group/pdftext/internal/ocr"
	"github.com/sells-group/pdftext/internal/textclean"
)

// Config holds the full application configuration.
type Config struct {
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Normalize NormalizeConfig `yaml:"normalize" mapstructure:"normalize"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Watch     WatchConfig     `yaml:"watch" mapstructure:"watch"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ExtractConfig configures the extraction cascade.
type ExtractConfig struct {
	Mode             string `yaml:"mode" mapstructure:"mode"`
	MinContentChars  int    `yaml:"min_content_chars" mapstructure:"min_content_chars"`
	MergeThreshold   int    `yaml:"merge_threshold" mapstructure:"merge_threshold"`
	MaxPages         int    `yaml:"max_pages" mapstructure:"max_pages"`
	MaxFileMB        int    `yaml:"max_file_mb" mapstructure:"max_file_mb"`
	MaxUploadMB      int    `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RenderedProvider string `yaml:"rendered_provider" mapstructure:"rendered_provider"`
	PdfToTextPath    string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// OCRConfig configures the raster OCR stage.
type OCRConfig struct {
	Enabled         bool     `yaml:"enabled" mapstructure:"enabled"`
	DPI             float64  `yaml:"dpi" mapstructure:"dpi"`
	PageCap         int      `yaml:"page_cap" mapstructure:"page_cap"`
	PageTimeoutSecs int      `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	MaxDimension    int      `yaml:"max_dimension" mapstructure:"max_dimension"`
	Grayscale       bool     `yaml:"grayscale" mapstructure:"grayscale"`
	Languages       []string `yaml:"languages" mapstructure:"languages"`
	PageSegMode     int      `yaml:"psm" mapstructure:"psm"`
}

// NormalizeConfig configures text normalization.
type NormalizeConfig struct {
	OCRFixes  string `yaml:"ocr_fixes" mapstructure:"ocr_fixes"`
	FoldWidth bool   `yaml:"fold_width" mapstructure:"fold_width"`
}

// StoreConfig configures the run ledger.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	OutDir      string  `yaml:"out_dir" mapstructure:"out_dir"`
}

// WatchConfig configures the inbox watcher.
type WatchConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	OutDir     string `yaml:"out_dir" mapstructure:"out_dir"`
	SettleMS   int    `yaml:"settle_ms" mapstructure:"settle_ms"`
	Concurrent int    `yaml:"concurrent" mapstructure:"concurrent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Orchestrator converts the section to the cascade's configuration.
func (c ExtractConfig) Orchestrator(ocrCfg OCRConfig) extract.Config {
	return extract.Config{
		MinContentChars: c.MinContentChars,
		MergeThreshold:  c.MergeThreshold,
		MaxPages:        c.MaxPages,
		MaxBytes:        int64(c.MaxFileMB) << 20,
		Timeout:         time.Duration(c.TimeoutSecs) * time.Second,
		OCRPageCap:      ocrCfg.PageCap,
		OCRPageTimeout:  time.Duration(ocrCfg.PageTimeoutSecs) * time.Second,
		Mode:            extract.Mode(c.Mode),
	}
}

// MaxUploadBytes is the caller-side payload ceiling.
func (c ExtractConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Engine converts the section to the OCR engine's configuration.
func (c OCRConfig) Engine() ocr.Config {
	return ocr.Config{
		DPI:            c.DPI,
		PageCap:        c.PageCap,
		PerPageTimeout: time.Duration(c.PageTimeoutSecs) * time.Second,
		MaxDimension:   c.MaxDimension,
		Grayscale:      c.Grayscale,
		Languages:      c.Languages,
		PageSegMode:    c.PageSegMode,
	}
}

// Cleaners returns the normalizers for text-layer and OCR output.
func (c NormalizeConfig) Cleaners() (text, ocrText *textclean.Cleaner) {
	mode := textclean.FixMode(c.OCRFixes)
	return textclean.ForMode(mode, c.FoldWidth, false), textclean.ForMode(mode, c.FoldWidth, true)
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PDFTEXT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("extract.mode", string(extract.ModeCascade))
	v.SetDefault("extract.min_content_chars", 100)
	v.SetDefault("extract.merge_threshold", 50)
	v.SetDefault("extract.max_pages", 50)
	v.SetDefault("extract.max_file_mb", 50)
	v.SetDefault("extract.max_upload_mb", 16)
	v.SetDefault("extract.timeout_secs", 120)
	v.SetDefault("extract.rendered_provider", "mupdf")
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.enabled", true)
	v.SetDefault("ocr.dpi", 150)
	v.SetDefault("ocr.page_cap", 10)
	v.SetDefault("ocr.page_timeout_secs", 30)
	v.SetDefault("ocr.max_dimension", 2000)
	v.SetDefault("ocr.grayscale", true)
	v.SetDefault("ocr.languages", []string{"eng"})
	v.SetDefault("ocr.psm", 4)
	v.SetDefault("normalize.ocr_fixes", string(textclean.FixAll))
	v.SetDefault("normalize.fold_width", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "pdftext.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.rate_per_sec", 0)
	v.SetDefault("batch.out_dir", "out")
	v.SetDefault("watch.out_dir", "out")
	v.SetDefault("watch.settle_ms", 500)
	v.SetDefault("watch.concurrent", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is one of extract,
// batch, watch or runs.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "extract", "batch", "watch":
		errs = append(errs, c.validateExtraction()...)
		if mode == "batch" && (c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64) {
			errs = append(errs, "batch.concurrency must be between 1 and 64")
		}
		if mode == "batch" && c.Batch.RatePerSec < 0 {
			errs = append(errs, "batch.rate_per_sec must be >= 0")
		}
		if mode == "watch" && c.Watch.Concurrent < 1 {
			errs = append(errs, "watch.concurrent must be >= 1")
		}
	case "runs":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	errs = append(errs, c.validateStore()...)

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateExtraction() []string {
	var errs []string
	switch extract.Mode(c.Extract.Mode) {
	case extract.ModeCascade, extract.ModeExhaustive, "":
	default:
		errs = append(errs, fmt.Sprintf("extract.mode %q must be cascade or exhaustive", c.Extract.Mode))
	}
	switch c.Extract.RenderedProvider {
	case "mupdf", "pdftotext", "none":
	default:
		errs = append(errs, fmt.Sprintf("extract.rendered_provider %q must be mupdf, pdftotext or none", c.Extract.RenderedProvider))
	}
	if c.Extract.MinContentChars < 0 {
		errs = append(errs, "extract.min_content_chars must be >= 0")
	}
	if c.Extract.MergeThreshold < 0 {
		errs = append(errs, "extract.merge_threshold must be >= 0")
	}
	if c.Extract.MaxPages < 1 {
		errs = append(errs, "extract.max_pages must be > 0")
	}
	if c.Extract.MaxFileMB < 1 {
		errs = append(errs, "extract.max_file_mb must be > 0")
	}
	if c.Extract.MaxUploadMB < 1 {
		errs = append(errs, "extract.max_upload_mb must be > 0")
	}
	if c.Extract.TimeoutSecs < 1 {
		errs = append(errs, "extract.timeout_secs must be > 0")
	}
	switch textclean.FixMode(c.Normalize.OCRFixes) {
	case textclean.FixAll, textclean.FixOCROnly, textclean.FixNone:
	default:
		errs = append(errs, fmt.Sprintf("normalize.ocr_fixes %q must be all, ocr_only or none", c.Normalize.OCRFixes))
	}
	if c.OCR.Enabled {
		if c.OCR.DPI <= 0 {
			errs = append(errs, "ocr.dpi must be > 0")
		}
		if c.OCR.PageCap < 1 {
			errs = append(errs, "ocr.page_cap must be > 0")
		}
		if len(c.OCR.Languages) == 0 {
			errs = append(errs, "ocr.languages must not be empty")
		}
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return []string{"store.path is required for sqlite"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for postgres"}
		}
	case "none":
	default:
		return []string{fmt.Sprintf("store.driver %q must be sqlite, postgres or none", c.Store.Driver)}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}

// NewLogger builds a logger from cfg. Console format writes human-readable
// output; anything else writes JSON.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	// stdout carries extracted text.
	zapCfg.OutputPaths = []string{"stderr"}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	return logger, nil
}
