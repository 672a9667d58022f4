package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProxyConfig controls how remote URLs are rewritten through a CORS proxy.
type ProxyConfig struct {
	BaseURL              string   `mapstructure:"base_url"`
	DefaultCacheDuration string   `mapstructure:"default_cache_duration"`
	CorsDomains          []string `mapstructure:"cors_domains"`
}

// HTTPConfig holds settings for outbound requests.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// CacheConfig holds the persistent fetch cache settings. An empty Path
// disables the cache.
type CacheConfig struct {
	Path string        `mapstructure:"path"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// LogConfig selects the logger level and encoder.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Debug bool   `mapstructure:"debug"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelemetryConfig holds the load-event stream settings. An empty Path
// disables telemetry.
type TelemetryConfig struct {
	Path string `mapstructure:"path"`
}

// AutoRefreshConfig bounds how often items may refresh themselves.
type AutoRefreshConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// AssImpConfig locates the model converter used by assimp items. An empty
// Path leaves those items unable to convert.
type AssImpConfig struct {
	Path string `mapstructure:"path"`
}

// Config holds all runtime configuration for a catalog session.
// Values are populated from .terria.yaml, TERRIA_* env vars, and CLI flags.
type Config struct {
	AppName          string            `mapstructure:"app_name"`
	SupportEmail     string            `mapstructure:"support_email"`
	RegionMappingURL string            `mapstructure:"region_mapping_url"`
	Proxy            ProxyConfig       `mapstructure:"proxy"`
	HTTP             HTTPConfig        `mapstructure:"http"`
	Cache            CacheConfig       `mapstructure:"cache"`
	Log              LogConfig         `mapstructure:"log"`
	Server           ServerConfig      `mapstructure:"server"`
	Telemetry        TelemetryConfig   `mapstructure:"telemetry"`
	AutoRefresh      AutoRefreshConfig `mapstructure:"autorefresh"`
	AssImp           AssImpConfig      `mapstructure:"assimp"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("app_name", "Terria")
	viper.SetDefault("support_email", "help@terria.io")
	viper.SetDefault("region_mapping_url", "")
	viper.SetDefault("proxy.base_url", "")
	viper.SetDefault("proxy.default_cache_duration", "1d")
	viper.SetDefault("proxy.cors_domains", []string{})
	viper.SetDefault("http.timeout", 30*time.Second)
	viper.SetDefault("http.user_agent", "terria-catalog")
	viper.SetDefault("cache.path", "")
	viper.SetDefault("cache.ttl", 24*time.Hour)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.debug", false)
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("telemetry.path", "")
	viper.SetDefault("autorefresh.min_interval", 10*time.Second)
	viper.SetDefault("assimp.path", "")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// EnvPrefix is the prefix of environment variables read by BindEnv.
const EnvPrefix = "TERRIA"

// BindEnv makes viper resolve every key from TERRIA_* environment variables,
// mapping nested keys such as proxy.base_url to TERRIA_PROXY_BASE_URL.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// ErrInvalid marks configuration validation failures.
var ErrInvalid = errors.New("invalid configuration")

// Validate returns every problem found in cfg, or nil.
func (c Config) Validate() []error {
	var errs []error
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: http.timeout must be positive, got %s", ErrInvalid, c.HTTP.Timeout))
	}
	if c.Cache.Path != "" && c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("%w: cache.ttl must be positive when cache.path is set", ErrInvalid))
	}
	if c.AutoRefresh.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("%w: autorefresh.min_interval must not be negative", ErrInvalid))
	}
	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("%w: server.addr must be set", ErrInvalid))
	}
	return errs
}
