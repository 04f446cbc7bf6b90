package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Accountflow AccountflowConfig `yaml:"accountflow"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Cache       CacheConfig       `yaml:"cache"`
	Hub         HubConfig         `yaml:"hub"`
	Exchanges   ExchangesConfig   `yaml:"exchanges"`
	Bitkua      BitkuaConfig      `yaml:"bitkua"`
}

type AccountflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type CacheConfig struct {
	Dir string `yaml:"dir"`
}

type HubConfig struct {
	Addr   string `yaml:"addr"`
	Buffer int    `yaml:"buffer"`
}

type ExchangesConfig struct {
	Bingx  ExchangeConfig `yaml:"bingx"`
	Bitget ExchangeConfig `yaml:"bitget"`
	Kucoin ExchangeConfig `yaml:"kucoin"`
}

type ExchangeConfig struct {
	Enabled         bool            `yaml:"enabled"`
	APIKey          string          `yaml:"api_key"`
	APISecret       string          `yaml:"api_secret"`
	Passphrase      string          `yaml:"passphrase"`
	RestURL         string          `yaml:"rest_url"`
	WsURL           string          `yaml:"ws_url"`
	RefreshInterval time.Duration   `yaml:"refresh_interval"`
	Lookback        time.Duration   `yaml:"lookback"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type BitkuaConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Username        string        `yaml:"username"`
	Token           string        `yaml:"token"`
	BaseURL         string        `yaml:"base_url"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Hub: HubConfig{
			Buffer: 64,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides lets credentials come from the environment so the yaml
// file can be committed without secrets.
func applyEnvOverrides(cfg *Config) {
	overrideString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	overrideString(&cfg.Exchanges.Bingx.APIKey, "BINGX_API_KEY")
	overrideString(&cfg.Exchanges.Bingx.APISecret, "BINGX_API_SECRET")

	overrideString(&cfg.Exchanges.Bitget.APIKey, "BITGET_API_KEY")
	overrideString(&cfg.Exchanges.Bitget.APISecret, "BITGET_API_SECRET")
	overrideString(&cfg.Exchanges.Bitget.Passphrase, "BITGET_PASSPHRASE")

	overrideString(&cfg.Exchanges.Kucoin.APIKey, "KUCOIN_API_KEY")
	overrideString(&cfg.Exchanges.Kucoin.APISecret, "KUCOIN_API_SECRET")
	overrideString(&cfg.Exchanges.Kucoin.Passphrase, "KUCOIN_PASSPHRASE")

	overrideString(&cfg.Bitkua.Username, "BITKUA_USERNAME")
	overrideString(&cfg.Bitkua.Token, "BITKUA_TOKEN")

	overrideString(&cfg.Metrics.Region, "AWS_REGION")
}

func validateConfig(cfg *Config) error {
	if cfg.Accountflow.Name == "" {
		return fmt.Errorf("accountflow.name is required")
	}

	if cfg.Accountflow.Version == "" {
		return fmt.Errorf("accountflow.version is required")
	}

	if cfg.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}

	if cfg.Hub.Buffer <= 0 {
		return fmt.Errorf("hub.buffer must be greater than 0")
	}

	exchanges := map[string]*ExchangeConfig{
		"bingx":  &cfg.Exchanges.Bingx,
		"bitget": &cfg.Exchanges.Bitget,
		"kucoin": &cfg.Exchanges.Kucoin,
	}
	for name, ex := range exchanges {
		if !ex.Enabled {
			continue
		}
		if ex.APIKey == "" || ex.APISecret == "" {
			return fmt.Errorf("exchanges.%s.api_key and exchanges.%s.api_secret are required when enabled", name, name)
		}
		if name != "bingx" && ex.Passphrase == "" {
			return fmt.Errorf("exchanges.%s.passphrase is required when enabled", name)
		}
		if ex.RestURL == "" {
			return fmt.Errorf("exchanges.%s.rest_url is required when enabled", name)
		}
		if ex.RefreshInterval <= 0 {
			return fmt.Errorf("exchanges.%s.refresh_interval must be greater than 0", name)
		}
		if ex.Lookback <= 0 {
			return fmt.Errorf("exchanges.%s.lookback must be greater than 0", name)
		}
		if ex.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("exchanges.%s.rate_limit.requests_per_second must be greater than 0", name)
		}
		if ex.RateLimit.BurstSize <= 0 {
			return fmt.Errorf("exchanges.%s.rate_limit.burst_size must be greater than 0", name)
		}
	}

	if cfg.Bitkua.Enabled {
		if cfg.Bitkua.Username == "" || cfg.Bitkua.Token == "" {
			return fmt.Errorf("bitkua.username and bitkua.token are required when enabled")
		}
		if cfg.Bitkua.BaseURL == "" {
			return fmt.Errorf("bitkua.base_url is required when enabled")
		}
		if cfg.Bitkua.RefreshInterval <= 0 {
			return fmt.Errorf("bitkua.refresh_interval must be greater than 0")
		}
	}

	return nil
}
