package config

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Surface  SurfaceConfig  `yaml:"surface" mapstructure:"surface"`
	Classify ClassifyConfig `yaml:"classify" mapstructure:"classify"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	Publish  PublishConfig  `yaml:"publish" mapstructure:"publish"`
	Import   ImportConfig   `yaml:"import" mapstructure:"import"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// SurfaceConfig configures risk surface builds.
type SurfaceConfig struct {
	SpatialBand  float64 `yaml:"spatial_band" mapstructure:"spatial_band"`
	TemporalBand int     `yaml:"temporal_band" mapstructure:"temporal_band"`
	CellSize     float64 `yaml:"cell_size" mapstructure:"cell_size"`
	SliceCount   int     `yaml:"slice_count" mapstructure:"slice_count"`
	Policy       string  `yaml:"policy" mapstructure:"policy"`
	TimeDecay    bool    `yaml:"time_decay" mapstructure:"time_decay"`
	Workers      int     `yaml:"workers" mapstructure:"workers"`
}

// ClassifyConfig configures repeat and near-repeat classification.
// Band lists are semicolon separated, e.g. "400;800;1600".
type ClassifyConfig struct {
	SpatialBands   string  `yaml:"spatial_bands" mapstructure:"spatial_bands"`
	TemporalBands  string  `yaml:"temporal_bands" mapstructure:"temporal_bands"`
	RepeatDistance float64 `yaml:"repeat_distance" mapstructure:"repeat_distance"`
	Metric         string  `yaml:"metric" mapstructure:"metric"`
	PresetFile     string  `yaml:"preset_file" mapstructure:"preset_file"`
	Preset         string  `yaml:"preset" mapstructure:"preset"`
}

// ReportConfig configures summary report output.
type ReportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// PublishConfig configures the optional feature service push.
type PublishConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	URL               string  `yaml:"url" mapstructure:"url"`
	Token             string  `yaml:"token" mapstructure:"token"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ImportConfig configures incident file ingestion.
type ImportConfig struct {
	Charset    string `yaml:"charset" mapstructure:"charset"`
	FTPHost    string `yaml:"ftp_host" mapstructure:"ftp_host"`
	FTPUser    string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPass    string `yaml:"ftp_pass" mapstructure:"ftp_pass"`
	DateLayout string `yaml:"date_layout" mapstructure:"date_layout"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("CRIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "crime.db")
	v.SetDefault("surface.spatial_band", 1000)
	v.SetDefault("surface.temporal_band", 28)
	v.SetDefault("surface.cell_size", 100)
	v.SetDefault("surface.slice_count", 10)
	v.SetDefault("surface.policy", "CUMULATIVE")
	v.SetDefault("surface.time_decay", true)
	v.SetDefault("classify.spatial_bands", "400;800;1600")
	v.SetDefault("classify.temporal_bands", "7;14;28")
	v.SetDefault("classify.repeat_distance", 50)
	v.SetDefault("classify.metric", "euclidean")
	v.SetDefault("report.dir", ".")
	v.SetDefault("publish.requests_per_second", 2)
	v.SetDefault("import.charset", "utf-8")
	v.SetDefault("import.date_layout", "2006-01-02 15:04:05")
	v.SetDefault("server.port", 8080)
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

// ParseBandList parses a semicolon separated list of band thresholds.
func ParseBandList(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "config: bad band value %q", part)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, eris.Errorf("config: empty band list %q", s)
	}
	return out, nil
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
