package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Harvest  HarvestConfig  `yaml:"harvest" mapstructure:"harvest"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	BBox     BBoxConfig     `yaml:"bbox" mapstructure:"bbox"`
	Page     PageConfig     `yaml:"page" mapstructure:"page"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// HarvestConfig configures a harvest run.
type HarvestConfig struct {
	Extractor  string `yaml:"extractor" mapstructure:"extractor"`
	Items      string `yaml:"items" mapstructure:"items"`
	Column     string `yaml:"column" mapstructure:"column"`
	Sheet      string `yaml:"sheet" mapstructure:"sheet"`
	BatchSize  int    `yaml:"batch_size" mapstructure:"batch_size"`
	StartIndex int    `yaml:"start_index" mapstructure:"start_index"`
	// DelayMs is the pause between items. Negative means the extractor's
	// own default.
	DelayMs int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	Workers int    `yaml:"workers" mapstructure:"workers"`
	OutDir  string `yaml:"out_dir" mapstructure:"out_dir"`
	Prefix  string `yaml:"prefix" mapstructure:"prefix"`
	// Format lists the snapshot sinks, comma separated: csv, xlsx, sqlite,
	// postgres.
	Format   string `yaml:"format" mapstructure:"format"`
	ErrorLog string `yaml:"error_log" mapstructure:"error_log"`
}

// Formats splits Format into its sink names.
func (c HarvestConfig) Formats() []string {
	var out []string
	for _, f := range strings.Split(c.Format, ",") {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	UserAgent           string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries          int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoffMs      int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	MaxBackoffMs        int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	LinearBackoff       bool    `yaml:"linear_backoff" mapstructure:"linear_backoff"`
	RatePerSecond       float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	InsecureSkipVerify  bool    `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
	BreakerThreshold    int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// Timeout returns the request timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RegistryConfig configures the cadastral registry extractor.
type RegistryConfig struct {
	// LookupURL resolves a cadastral number to an object id. Empty skips the
	// lookup and derives the id from the number itself.
	LookupURL  string   `yaml:"lookup_url" mapstructure:"lookup_url"`
	DetailURL  string   `yaml:"detail_url" mapstructure:"detail_url"`
	IDPath     string   `yaml:"id_path" mapstructure:"id_path"`
	DropFields []string `yaml:"drop_fields" mapstructure:"drop_fields"`
	DelayMs    int      `yaml:"delay_ms" mapstructure:"delay_ms"`
}

// GeocodeConfig configures the geocode extractor.
type GeocodeConfig struct {
	YandexKey    string  `yaml:"yandex_key" mapstructure:"yandex_key"`
	GoogleKey    string  `yaml:"google_key" mapstructure:"google_key"`
	Language     string  `yaml:"language" mapstructure:"language"`
	City         string  `yaml:"city" mapstructure:"city"`
	AddressField string  `yaml:"address_field" mapstructure:"address_field"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	DelayMs      int     `yaml:"delay_ms" mapstructure:"delay_ms"`
}

// BBoxConfig configures the bounding-box extractor.
type BBoxConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	Element        string `yaml:"element" mapstructure:"element"`
	SplitThreshold int    `yaml:"split_threshold" mapstructure:"split_threshold"`
	DelayMs        int    `yaml:"delay_ms" mapstructure:"delay_ms"`
}

// PageConfig configures the HTML page extractor.
type PageConfig struct {
	URLTemplate string            `yaml:"url_template" mapstructure:"url_template"`
	UserAgent   string            `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int               `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Fields      map[string]string `yaml:"fields" mapstructure:"fields"`
	Required    []string          `yaml:"required" mapstructure:"required"`
	DelayMs     int               `yaml:"delay_ms" mapstructure:"delay_ms"`
}

// StoreConfig configures the database sinks.
type StoreConfig struct {
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads ./config.yaml (optional), a .env file (optional) and
// GEOHARVEST_* environment variables over built-in defaults.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("GEOHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("harvest.extractor", "registry")
	v.SetDefault("harvest.batch_size", 500)
	v.SetDefault("harvest.start_index", 0)
	v.SetDefault("harvest.delay_ms", -1)
	v.SetDefault("harvest.workers", 1)
	v.SetDefault("harvest.out_dir", "out")
	v.SetDefault("harvest.prefix", "result")
	v.SetDefault("harvest.format", "csv")

	v.SetDefault("http.user_agent", "geoharvest/1.0")
	v.SetDefault("http.timeout_secs", 30)
	v.SetDefault("http.max_retries", 30)
	v.SetDefault("http.retry_backoff_ms", 500)
	v.SetDefault("http.max_backoff_ms", 30000)
	v.SetDefault("http.linear_backoff", true)
	v.SetDefault("http.rate_per_second", 5)
	v.SetDefault("http.insecure_skip_verify", false)
	v.SetDefault("http.breaker_threshold", 10)
	v.SetDefault("http.breaker_cooldown_secs", 60)

	v.SetDefault("registry.lookup_url", "https://rosreestr.gov.ru/api/online/fir_objects/{id}")
	v.SetDefault("registry.detail_url", "https://rosreestr.gov.ru/api/online/fir_object/{id}")
	v.SetDefault("registry.id_path", "0.objectId")
	v.SetDefault("registry.drop_fields", []string{"oldNumbers"})
	v.SetDefault("registry.delay_ms", 500)

	v.SetDefault("geocode.language", "ru_RU")
	v.SetDefault("geocode.address_field", "address")
	v.SetDefault("geocode.rate_limit", 10)
	v.SetDefault("geocode.delay_ms", 0)

	v.SetDefault("bbox.url", "https://api.openstreetmap.org/api/0.6/map?bbox={bbox}")
	v.SetDefault("bbox.element", "node")
	v.SetDefault("bbox.split_threshold", 100)
	v.SetDefault("bbox.delay_ms", 1000)

	v.SetDefault("page.url_template", "http://wikimapia.org/{id}")
	v.SetDefault("page.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("page.timeout_secs", 10)
	v.SetDefault("page.delay_ms", 1000)

	v.SetDefault("store.sqlite_path", "geoharvest.db")
	v.SetDefault("store.table", "harvest_rows")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
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

// Validate checks the settings a command needs. mode is "run", "serve" or
// "status"; every problem found is reported.
func (c *Config) Validate(mode string) error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, eris.Errorf(format, args...))
	}

	switch mode {
	case "run":
		if c.Harvest.Items == "" {
			add("harvest.items is required")
		}
		if c.Harvest.BatchSize <= 0 {
			add("harvest.batch_size must be > 0, got %d", c.Harvest.BatchSize)
		}
		if c.Harvest.StartIndex < 0 {
			add("harvest.start_index must be >= 0, got %d", c.Harvest.StartIndex)
		}
		if c.Harvest.Prefix == "" {
			add("harvest.prefix is required")
		}
		if c.Harvest.Workers <= 0 {
			add("harvest.workers must be > 0, got %d", c.Harvest.Workers)
		}
		formats := c.Harvest.Formats()
		if len(formats) == 0 {
			add("harvest.format is required")
		}
		for _, f := range formats {
			switch f {
			case "csv", "xlsx":
			case "sqlite":
				if c.Store.SQLitePath == "" {
					add("store.sqlite_path is required for format sqlite")
				}
			case "postgres":
				if c.Store.DatabaseURL == "" {
					add("store.database_url is required for format postgres")
				}
			default:
				add("harvest.format: unknown sink %q (want csv, xlsx, sqlite or postgres)", f)
			}
		}
		if c.Harvest.Extractor == "geocode" && c.Geocode.YandexKey == "" && c.Geocode.GoogleKey == "" {
			add("geocode.yandex_key or geocode.google_key is required")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be between 1 and 65535, got %d", c.Server.Port)
		}
	}
	if c.Harvest.OutDir == "" {
		add("harvest.out_dir is required")
	}

	return result.ErrorOrNil()
}
