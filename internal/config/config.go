// Package config carrega a configuração do gateway a partir de variáveis de
// ambiente e, opcionalmente, de um arquivo (yaml/json/toml).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	AlgorithmFixedWindow = "fixed_window"
	AlgorithmTokenBucket = "token_bucket"
)

type Config struct {
	ListenAddr   string
	UpstreamURL  string
	ServerHeader string
	AdminToken   string

	Rate        RateConfig
	Concurrency ConcurrencyConfig
	Stats       StatsConfig
	Metrics     MetricsConfig
	Log         LogConfig
}

type RateConfig struct {
	Enabled           bool
	Algorithm         string
	NormalLimit       int
	SensitiveLimit    int
	Window            time.Duration
	SensitivePrefixes []string
	KeyHeader         string
	TrustXFF          bool
	RetryAfter        time.Duration
	AddHeaders        bool

	// só token_bucket: remoção de chaves inativas
	IdleTTL      time.Duration
	CleanupEvery time.Duration
}

type ConcurrencyConfig struct {
	Max     int
	Timeout time.Duration
}

type StatsConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
	TTL           time.Duration
	Bucket        string
	TrackKeys     bool
}

type MetricsConfig struct {
	Enabled bool
}

type LogConfig struct {
	Level  string
	Format string
}

var defaults = map[string]any{
	"listen_addr":   ":8080",
	"upstream_url":  "",
	"server_header": "chatguard",
	"admin_token":   "",

	"rate_enabled":          true,
	"rate_algorithm":        AlgorithmFixedWindow,
	"rate_normal_limit":     60,
	"rate_sensitive_limit":  5,
	"rate_window":           "1m",
	"rate_sensitive_paths":  "/auth/",
	"rate_key_header":       "",
	"trust_xff":             false,
	"retry_after":           "1s",
	"add_ratelimit_headers": false,
	"rate_idle_ttl":         "15m",
	"rate_cleanup_every":    "2m",

	"concurrency_max":     100,
	"concurrency_timeout": "0s",

	"rate_stats_enabled":        false,
	"rate_stats_redis_addr":     "",
	"rate_stats_redis_password": "",
	"rate_stats_redis_db":       0,
	"rate_stats_prefix":         "chatguard:ratelimit:stats",
	"rate_stats_ttl":            "24h",
	"rate_stats_bucket":         "minute",
	"rate_stats_track_keys":     false,

	"metrics_enabled": true,

	"log_level":  "info",
	"log_format": "json",
}

// Load lê a configuração. Variáveis de ambiente (LISTEN_ADDR, RATE_WINDOW, ...)
// têm precedência sobre o arquivo, que tem precedência sobre os padrões.
func Load(path string) (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		ListenAddr:   v.GetString("listen_addr"),
		UpstreamURL:  strings.TrimSpace(v.GetString("upstream_url")),
		ServerHeader: v.GetString("server_header"),
		AdminToken:   v.GetString("admin_token"),
		Rate: RateConfig{
			Enabled:           v.GetBool("rate_enabled"),
			Algorithm:         strings.ToLower(strings.TrimSpace(v.GetString("rate_algorithm"))),
			NormalLimit:       v.GetInt("rate_normal_limit"),
			SensitiveLimit:    v.GetInt("rate_sensitive_limit"),
			Window:            v.GetDuration("rate_window"),
			SensitivePrefixes: splitList(v.GetString("rate_sensitive_paths")),
			KeyHeader:         v.GetString("rate_key_header"),
			TrustXFF:          v.GetBool("trust_xff"),
			RetryAfter:        v.GetDuration("retry_after"),
			AddHeaders:        v.GetBool("add_ratelimit_headers"),
			IdleTTL:           v.GetDuration("rate_idle_ttl"),
			CleanupEvery:      v.GetDuration("rate_cleanup_every"),
		},
		Concurrency: ConcurrencyConfig{
			Max:     v.GetInt("concurrency_max"),
			Timeout: v.GetDuration("concurrency_timeout"),
		},
		Stats: StatsConfig{
			Enabled:       v.GetBool("rate_stats_enabled"),
			RedisAddr:     strings.TrimSpace(v.GetString("rate_stats_redis_addr")),
			RedisPassword: v.GetString("rate_stats_redis_password"),
			RedisDB:       v.GetInt("rate_stats_redis_db"),
			Prefix:        v.GetString("rate_stats_prefix"),
			TTL:           v.GetDuration("rate_stats_ttl"),
			Bucket:        v.GetString("rate_stats_bucket"),
			TrackKeys:     v.GetBool("rate_stats_track_keys"),
		},
		Metrics: MetricsConfig{Enabled: v.GetBool("metrics_enabled")},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.UpstreamURL == "" {
		errs = append(errs, errors.New("UPSTREAM_URL is required"))
	}
	if c.Rate.Enabled {
		if c.Rate.NormalLimit <= 0 {
			errs = append(errs, errors.New("RATE_NORMAL_LIMIT must be > 0"))
		}
		if c.Rate.SensitiveLimit <= 0 {
			errs = append(errs, errors.New("RATE_SENSITIVE_LIMIT must be > 0"))
		}
		if c.Rate.Window <= 0 {
			errs = append(errs, errors.New("RATE_WINDOW must be > 0"))
		}
		if c.Rate.Algorithm == AlgorithmTokenBucket && c.Rate.IdleTTL <= 0 {
			errs = append(errs, errors.New("RATE_IDLE_TTL must be > 0"))
		}
		switch c.Rate.Algorithm {
		case AlgorithmFixedWindow, AlgorithmTokenBucket:
		default:
			errs = append(errs, fmt.Errorf("RATE_ALGORITHM %q is not supported (use %s or %s)",
				c.Rate.Algorithm, AlgorithmFixedWindow, AlgorithmTokenBucket))
		}
	}
	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if c.Stats.Enabled && c.Stats.RedisAddr == "" {
		errs = append(errs, errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
