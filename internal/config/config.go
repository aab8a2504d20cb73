package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/deveshk/invoicescan/internal/invoice"
	"github.com/deveshk/invoicescan/internal/pipeline"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Gemini   GeminiConfig
	Pipeline PipelineConfig
	Store    StoreConfig
	GCS      GCSConfig
	Queue    QueueConfig
	Export   ExportConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout_secs"`
	WriteTimeout int    `mapstructure:"write_timeout_secs"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GeminiConfig holds model extraction settings.
type GeminiConfig struct {
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	TimeoutSecs int    `mapstructure:"timeout_secs"`
}

// PipelineConfig holds normalization and aggregation settings.
type PipelineConfig struct {
	Granularity        string  `mapstructure:"granularity"`
	RequireHeaderField bool    `mapstructure:"require_header_field"`
	Tolerance          float64 `mapstructure:"tolerance"`
	TaxPolicy          string  `mapstructure:"tax_policy"`
	TaxRateA           float64 `mapstructure:"tax_rate_a"`
	TaxRateB           float64 `mapstructure:"tax_rate_b"`
	GroupByVendor      bool    `mapstructure:"group_by_vendor"`
	AutoSummarize      bool    `mapstructure:"auto_summarize"`
}

// StoreConfig holds record store settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// GCSConfig holds upload staging settings. An empty bucket disables GCS
// staging and uploads go to the local temp directory instead.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// QueueConfig holds scan queue settings.
type QueueConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
	Workers    int `mapstructure:"workers"`
	MaxRetries int `mapstructure:"max_retries"`
}

// ExportConfig holds xlsx export settings.
type ExportConfig struct {
	Path string `mapstructure:"path"`
}

// Granularity maps the configured granularity name to its constant.
func (p *PipelineConfig) granularity() (invoice.Granularity, error) {
	switch p.Granularity {
	case "", "line_item":
		return invoice.GranularityLineItem, nil
	case "document":
		return invoice.GranularityDocument, nil
	default:
		return 0, fmt.Errorf("config: unknown granularity %q", p.Granularity)
	}
}

// Options converts the pipeline configuration into pipeline options.
func (p *PipelineConfig) Options() (pipeline.Options, error) {
	g, err := p.granularity()
	if err != nil {
		return pipeline.Options{}, err
	}

	opts := pipeline.Options{
		Granularity:        g,
		RequireHeaderField: p.RequireHeaderField,
		GroupByVendor:      p.GroupByVendor,
	}
	if p.Tolerance > 0 {
		opts.Tolerance = decimal.NewFromFloat(p.Tolerance)
	}

	switch p.TaxPolicy {
	case "", "flat":
		opts.Tax = pipeline.FlatRateTax{}
	case "two_component":
		opts.Tax = pipeline.TwoComponentTax{
			RateAPercent: decimal.NewFromFloat(p.TaxRateA),
			RateBPercent: decimal.NewFromFloat(p.TaxRateB),
		}
	default:
		return pipeline.Options{}, fmt.Errorf("config: unknown tax policy %q", p.TaxPolicy)
	}

	return opts, nil
}

// Load reads configuration from environment variables with the INVSCAN_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INVSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout_secs", 15)
	v.SetDefault("server.write_timeout_secs", 60)

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.timeout_secs", 120)

	// Pipeline defaults
	v.SetDefault("pipeline.granularity", "line_item")
	v.SetDefault("pipeline.require_header_field", false)
	v.SetDefault("pipeline.tolerance", 0.001)
	v.SetDefault("pipeline.tax_policy", "flat")
	v.SetDefault("pipeline.tax_rate_a", 2.5)
	v.SetDefault("pipeline.tax_rate_b", 2.5)
	v.SetDefault("pipeline.group_by_vendor", true)
	v.SetDefault("pipeline.auto_summarize", false)

	// Store defaults
	v.SetDefault("store.path", "invoicescan.db")

	// GCS defaults
	v.SetDefault("gcs.bucket", "")

	// Queue defaults
	v.SetDefault("queue.buffer_size", 100)
	v.SetDefault("queue.workers", 5)
	v.SetDefault("queue.max_retries", 3)

	// Export defaults
	v.SetDefault("export.path", "invoices.xlsx")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                   "INVSCAN_SERVER_PORT",
		"server.read_timeout_secs":      "INVSCAN_SERVER_READ_TIMEOUT_SECS",
		"server.write_timeout_secs":     "INVSCAN_SERVER_WRITE_TIMEOUT_SECS",
		"log.level":                     "INVSCAN_LOG_LEVEL",
		"log.format":                    "INVSCAN_LOG_FORMAT",
		"gemini.api_key":                "INVSCAN_GEMINI_API_KEY",
		"gemini.model":                  "INVSCAN_GEMINI_MODEL",
		"gemini.timeout_secs":           "INVSCAN_GEMINI_TIMEOUT_SECS",
		"pipeline.granularity":          "INVSCAN_PIPELINE_GRANULARITY",
		"pipeline.require_header_field": "INVSCAN_PIPELINE_REQUIRE_HEADER_FIELD",
		"pipeline.tolerance":            "INVSCAN_PIPELINE_TOLERANCE",
		"pipeline.tax_policy":           "INVSCAN_PIPELINE_TAX_POLICY",
		"pipeline.tax_rate_a":           "INVSCAN_PIPELINE_TAX_RATE_A",
		"pipeline.tax_rate_b":           "INVSCAN_PIPELINE_TAX_RATE_B",
		"pipeline.group_by_vendor":      "INVSCAN_PIPELINE_GROUP_BY_VENDOR",
		"pipeline.auto_summarize":       "INVSCAN_PIPELINE_AUTO_SUMMARIZE",
		"store.path":                    "INVSCAN_STORE_PATH",
		"gcs.bucket":                    "INVSCAN_GCS_BUCKET",
		"queue.buffer_size":             "INVSCAN_QUEUE_BUFFER_SIZE",
		"queue.workers":                 "INVSCAN_QUEUE_WORKERS",
		"queue.max_retries":             "INVSCAN_QUEUE_MAX_RETRIES",
		"export.path":                   "INVSCAN_EXPORT_PATH",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if INVSCAN_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("INVSCAN_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetInt("server.read_timeout_secs"),
		WriteTimeout: v.GetInt("server.write_timeout_secs"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.Gemini = GeminiConfig{
		APIKey:      v.GetString("gemini.api_key"),
		Model:       v.GetString("gemini.model"),
		TimeoutSecs: v.GetInt("gemini.timeout_secs"),
	}
	cfg.Pipeline = PipelineConfig{
		Granularity:        v.GetString("pipeline.granularity"),
		RequireHeaderField: v.GetBool("pipeline.require_header_field"),
		Tolerance:          v.GetFloat64("pipeline.tolerance"),
		TaxPolicy:          v.GetString("pipeline.tax_policy"),
		TaxRateA:           v.GetFloat64("pipeline.tax_rate_a"),
		TaxRateB:           v.GetFloat64("pipeline.tax_rate_b"),
		GroupByVendor:      v.GetBool("pipeline.group_by_vendor"),
		AutoSummarize:      v.GetBool("pipeline.auto_summarize"),
	}
	cfg.Store = StoreConfig{
		Path: v.GetString("store.path"),
	}
	cfg.GCS = GCSConfig{
		Bucket: v.GetString("gcs.bucket"),
	}
	cfg.Queue = QueueConfig{
		BufferSize: v.GetInt("queue.buffer_size"),
		Workers:    v.GetInt("queue.workers"),
		MaxRetries: v.GetInt("queue.max_retries"),
	}
	cfg.Export = ExportConfig{
		Path: v.GetString("export.path"),
	}

	return cfg, nil
}
