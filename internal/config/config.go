package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Georisques GeorisquesConfig `yaml:"georisques" mapstructure:"georisques"`
	Overpass   OverpassConfig   `yaml:"overpass" mapstructure:"overpass"`
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Regression RegressionConfig `yaml:"regression" mapstructure:"regression"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GeocodeConfig configures the BAN address geocoder.
type GeocodeConfig struct {
	BaseURL      string   `yaml:"base_url" mapstructure:"base_url"`
	Concurrency  int      `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimit    float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs  int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Keywords     []string `yaml:"keywords" mapstructure:"keywords"`
	CacheEnabled bool     `yaml:"cache_enabled" mapstructure:"cache_enabled"`
}

// Timeout returns the per-request timeout.
func (c GeocodeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// GeorisquesConfig configures the flood-zone lookup API.
type GeorisquesConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMs   int     `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	// Mode selects "api" (remote lookup) or "local" (downloaded TRI polygons).
	Mode string `yaml:"mode" mapstructure:"mode"`
}

// Timeout returns the per-call timeout.
func (c GeorisquesConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// OverpassConfig configures the OSM Overpass client.
type OverpassConfig struct {
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxParallel int    `yaml:"max_parallel" mapstructure:"max_parallel"`
}

// Timeout returns the per-query HTTP timeout.
func (c OverpassConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// DataConfig locates the input datasets.
type DataConfig struct {
	Dir              string `yaml:"dir" mapstructure:"dir"`
	DVFURLTemplate   string `yaml:"dvf_url_template" mapstructure:"dvf_url_template"`
	Years            []int  `yaml:"years" mapstructure:"years"`
	TRIURLTemplate   string `yaml:"tri_url_template" mapstructure:"tri_url_template"`
	TRILayerPrefix   string `yaml:"tri_layer_prefix" mapstructure:"tri_layer_prefix"`
	CoastalURL       string `yaml:"coastal_url" mapstructure:"coastal_url"`
	PopulationURL    string `yaml:"population_url" mapstructure:"population_url"`
	CommunesPath     string `yaml:"communes_path" mapstructure:"communes_path"`
	StreetTypesPath  string `yaml:"street_types_path" mapstructure:"street_types_path"`
	EnrichedSalesCSV string `yaml:"enriched_sales_csv" mapstructure:"enriched_sales_csv"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
}

// StoreConfig configures the SQLite cache and output database.
type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// RegressionConfig configures model fitting and result export.
type RegressionConfig struct {
	SpecPath  string `yaml:"spec_path" mapstructure:"spec_path"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// MetricsConfig configures the Prometheus textfile written after each run.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DVFFLOOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("geocode.base_url", "https://api-adresse.data.gouv.fr/search/")
	v.SetDefault("geocode.concurrency", 10)
	v.SetDefault("geocode.rate_limit", 40.0)
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.keywords", []string{"Hotel de Ville de", "Mairie de"})
	v.SetDefault("geocode.cache_enabled", true)
	v.SetDefault("georisques.base_url", "https://georisques.gouv.fr/api/v1/tri_zonage")
	v.SetDefault("georisques.timeout_secs", 3)
	v.SetDefault("georisques.max_attempts", 2)
	v.SetDefault("georisques.backoff_ms", 500)
	v.SetDefault("georisques.concurrency", 10)
	v.SetDefault("georisques.rate_limit", 10.0)
	v.SetDefault("georisques.mode", "api")
	v.SetDefault("overpass.endpoint", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 60)
	v.SetDefault("overpass.max_parallel", 2)
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.dvf_url_template", "https://files.data.gouv.fr/geo-dvf/latest/csv/%d/full.csv.gz")
	v.SetDefault("data.years", []int{2023})
	v.SetDefault("data.tri_url_template", "https://files.georisques.fr/di_2020/tri_2020_sig_di_%s.zip")
	v.SetDefault("data.tri_layer_prefix", "iso_ht_03_01for_s_")
	v.SetDefault("data.coastal_url", "https://www.comersis.com/telecharger/communes-littorales.xlsx")
	v.SetDefault("data.population_url", "https://www.insee.fr/fr/statistiques/fichier/7739582/ensemble.zip")
	v.SetDefault("data.communes_path", "data/communes.geojson")
	v.SetDefault("data.street_types_path", "data/voie.csv")
	v.SetDefault("data.enriched_sales_csv", "data/sales_enriched.csv")
	v.SetDefault("data.user_agent", "dvf-flood/1.0")
	v.SetDefault("store.sqlite_path", "data/dvf-flood.db")
	v.SetDefault("regression.spec_path", "")
	v.SetDefault("regression.output_dir", "output")
	v.SetDefault("metrics.textfile_path", "output/dvf_flood.prom")

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings that would make a stage misbehave silently.
func (c *Config) Validate() error {
	if c.Geocode.Concurrency < 1 {
		return eris.Errorf("config: geocode.concurrency must be >= 1, got %d", c.Geocode.Concurrency)
	}
	if c.Georisques.Concurrency < 1 {
		return eris.Errorf("config: georisques.concurrency must be >= 1, got %d", c.Georisques.Concurrency)
	}
	if c.Georisques.MaxAttempts < 1 {
		return eris.Errorf("config: georisques.max_attempts must be >= 1, got %d", c.Georisques.MaxAttempts)
	}
	switch c.Georisques.Mode {
	case "api", "local":
	default:
		return eris.Errorf("config: georisques.mode must be api or local, got %q", c.Georisques.Mode)
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
