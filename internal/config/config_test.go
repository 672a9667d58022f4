package config

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// resetViper clears all viper state between tests to avoid cross-contamination.
func resetViper() {
	viper.Reset()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"AppName", cfg.AppName, "Terria"},
		{"Proxy.BaseURL", cfg.Proxy.BaseURL, ""},
		{"Proxy.DefaultCacheDuration", cfg.Proxy.DefaultCacheDuration, "1d"},
		{"HTTP.Timeout", cfg.HTTP.Timeout, 30 * time.Second},
		{"Cache.Path", cfg.Cache.Path, ""},
		{"Cache.TTL", cfg.Cache.TTL, 24 * time.Hour},
		{"Log.Level", cfg.Log.Level, "info"},
		{"Log.Debug", cfg.Log.Debug, false},
		{"Server.Addr", cfg.Server.Addr, ":8080"},
		{"AutoRefresh.MinInterval", cfg.AutoRefresh.MinInterval, 10 * time.Second},
		{"AssImp.Path", cfg.AssImp.Path, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("defaults should validate, got %v", errs)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
		field  func(Config) any
		want   any
	}{
		{
			name:   "proxy base url",
			envKey: "TERRIA_PROXY_BASE_URL",
			envVal: "https://proxy.example.com/proxy/",
			field:  func(c Config) any { return c.Proxy.BaseURL },
			want:   "https://proxy.example.com/proxy/",
		},
		{
			name:   "http timeout",
			envKey: "TERRIA_HTTP_TIMEOUT",
			envVal: "5s",
			field:  func(c Config) any { return c.HTTP.Timeout },
			want:   5 * time.Second,
		},
		{
			name:   "region mapping url",
			envKey: "TERRIA_REGION_MAPPING_URL",
			envVal: "https://example.com/regionMapping.json",
			field:  func(c Config) any { return c.RegionMappingURL },
			want:   "https://example.com/regionMapping.json",
		},
		{
			name:   "log debug",
			envKey: "TERRIA_LOG_DEBUG",
			envVal: "true",
			field:  func(c Config) any { return c.Log.Debug },
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper()
			t.Setenv(tt.envKey, tt.envVal)
			BindEnv()

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if got := tt.field(cfg); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	resetViper()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	cfg.HTTP.Timeout = 0
	cfg.Cache.Path = "/tmp/cache.db"
	cfg.Cache.TTL = 0
	cfg.Server.Addr = ""

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Fatalf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}
	for _, err := range errs {
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("error %v does not wrap ErrInvalid", err)
		}
	}
}
