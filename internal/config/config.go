package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultSessionID is the WMS session id known to work at release time.
// The NID service rotates it; override with nid.session_id or --session.
const DefaultSessionID = "85dcc7d0-3458-4b78-a1bb-ed65b5513ee6"

// Config holds the full application configuration.
type Config struct {
	NID     NIDConfig     `yaml:"nid" mapstructure:"nid"`
	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	Init    InitConfig    `yaml:"init" mapstructure:"init"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Convert ConvertConfig `yaml:"convert" mapstructure:"convert"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// NIDConfig points at the heritage registry services.
type NIDConfig struct {
	SessionID   string `yaml:"session_id" mapstructure:"session_id"`
	WMSURL      string `yaml:"wms_url" mapstructure:"wms_url"`
	DownloadURL string `yaml:"download_url" mapstructure:"download_url"`
}

// HTTPConfig tunes the HTTP client shared by discovery and downloads.
type HTTPConfig struct {
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries          int     `yaml:"retries" mapstructure:"retries"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	WMSRate          float64 `yaml:"wms_rate" mapstructure:"wms_rate"`
	DownloadRate     float64 `yaml:"download_rate" mapstructure:"download_rate"`
}

// InitConfig configures the archive-list initialisation.
type InitConfig struct {
	Input  string `yaml:"input" mapstructure:"input"`
	Output string `yaml:"output" mapstructure:"output"`
}

// FetchConfig configures archive downloads.
type FetchConfig struct {
	Input  string `yaml:"input" mapstructure:"input"`
	OutDir string `yaml:"outdir" mapstructure:"outdir"`
}

// ConvertConfig configures the shapefile conversion.
type ConvertConfig struct {
	InDir   string `yaml:"indir" mapstructure:"indir"`
	OutDir  string `yaml:"outdir" mapstructure:"outdir"`
	Format  string `yaml:"format" mapstructure:"format"`
	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`
	Workers int    `yaml:"workers" mapstructure:"workers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NID2GEO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("nid.session_id", DefaultSessionID)
	v.SetDefault("nid.wms_url", "https://usluga.zabytek.gov.pl/DaneZabytki/service.svc/get")
	v.SetDefault("nid.download_url", "https://mapy.zabytek.gov.pl/dane")
	v.SetDefault("http.timeout_secs", 10)
	v.SetDefault("http.retries", 3)
	v.SetDefault("http.initial_backoff_ms", 1000)
	v.SetDefault("http.user_agent", "nid2geo/1.0")
	v.SetDefault("http.wms_rate", 5.0)
	v.SetDefault("http.download_rate", 10.0)
	v.SetDefault("init.input", "jednostki_do_pobrania.tsv")
	v.SetDefault("init.output", "archiwa_do_pobrania_nowe.tsv")
	v.SetDefault("fetch.input", "archiwa_do_pobrania.tsv")
	v.SetDefault("fetch.outdir", "data/raw")
	v.SetDefault("convert.indir", "data/raw")
	v.SetDefault("convert.outdir", "data/processed")
	v.SetDefault("convert.format", "parquet")
	v.SetDefault("convert.temp_dir", "")
	v.SetDefault("convert.workers", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// Validate checks the settings a command depends on. Mode is the command
// name: wms-test, init, fetch or convert.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "wms-test", "init":
		if c.NID.SessionID == "" {
			errs = append(errs, "nid.session_id is required")
		}
		if c.NID.WMSURL == "" {
			errs = append(errs, "nid.wms_url is required")
		}
		if mode == "init" && (c.Init.Input == "" || c.Init.Output == "") {
			errs = append(errs, "init.input and init.output are required")
		}
	case "fetch":
		if c.Fetch.Input == "" || c.Fetch.OutDir == "" {
			errs = append(errs, "fetch.input and fetch.outdir are required")
		}
	case "convert":
		if c.Convert.InDir == "" || c.Convert.OutDir == "" {
			errs = append(errs, "convert.indir and convert.outdir are required")
		}
		switch strings.ToLower(c.Convert.Format) {
		case "gpkg", "parquet":
		default:
			errs = append(errs, "convert.format must be gpkg or parquet")
		}
		if c.Convert.Workers < 1 || c.Convert.Workers > 16 {
			errs = append(errs, "convert.workers must be between 1 and 16")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "convert" {
		if c.HTTP.TimeoutSecs <= 0 {
			errs = append(errs, "http.timeout_secs must be > 0")
		}
		if c.HTTP.Retries < 1 || c.HTTP.Retries > 10 {
			errs = append(errs, "http.retries must be between 1 and 10")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
