// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	pstrings "pawnval/pkg/platform/strings"
)

// EnvPrefix prefixes every variable: cache.ttl is read from PAWNVAL_CACHE_TTL.
const EnvPrefix = "PAWNVAL"

// Config holds all application configuration.
type Config struct {
	Env       string
	Server    ServerConfig
	Log       LogConfig
	Valuation ValuationConfig
	Sources   SourcesConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Kafka     KafkaConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string
	MetricsAddr     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// ValuationConfig tunes the estimation pipeline.
type ValuationConfig struct {
	DefaultPawnPercentage float64
	// TenantPawnRates is parsed from "acme=0.35,beta=0.4".
	TenantPawnRates string

	SourceOrder   []string
	SourceWeights map[string]float64

	SourceTimeout          time.Duration
	QueryDeadline          time.Duration
	RateLimitCooldown      time.Duration
	ShortCircuitConfidence float64
	Blend                  bool
	RaceTopN               int
	AlternateTerms         int
	AlternatePenalty       float64

	MaxPrice            float64
	SoftCeilingMultiple float64

	MADMultiplier               float64
	ConfidenceBase              float64
	ConfidencePerPoint          float64
	ConfidencePointCap          int
	ConfidenceDispersionPenalty float64
	RecentSalesLimit            int
}

// SourcesConfig locates the external pricing sources. A source with no URL is
// disabled, except the game table which needs none.
type SourcesConfig struct {
	RemoteURL        string
	RemoteAPIKey     string
	MarketplaceURL   string
	MaxSearchResults int
	MinListingPrice  float64
	MetalsURL        string
	MetalsAPIKey     string
	MetalsQuoteTTL   time.Duration
	HTTPMaxRetries   int
}

type CacheConfig struct {
	TTL      time.Duration
	Capacity int
}

// RedisConfig configures the shared cache tier. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures valuation history. An empty DSN keeps history in memory.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// KafkaConfig configures valuation events. No brokers disables publishing.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Load reads an optional .env file, then environment variables prefixed with
// PAWNVAL_, and validates the result.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are skipped;
// variables already in the environment win over file values.
func LoadFiles(dotenv ...string) (*Config, error) {
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env: v.GetString("env"),
		Server: ServerConfig{
			Addr:            v.GetString("server.addr"),
			MetricsAddr:     v.GetString("server.metrics_addr"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Valuation: ValuationConfig{
			DefaultPawnPercentage:       v.GetFloat64("valuation.pawn_percentage"),
			TenantPawnRates:             v.GetString("valuation.tenant_pawn_rates"),
			SourceOrder:                 pstrings.SplitList(v.GetString("valuation.source_order"), ","),
			SourceTimeout:               v.GetDuration("valuation.source_timeout"),
			QueryDeadline:               v.GetDuration("valuation.query_deadline"),
			RateLimitCooldown:           v.GetDuration("valuation.rate_limit_cooldown"),
			ShortCircuitConfidence:      v.GetFloat64("valuation.short_circuit_confidence"),
			Blend:                       v.GetBool("valuation.blend"),
			RaceTopN:                    v.GetInt("valuation.race_top_n"),
			AlternateTerms:              v.GetInt("valuation.alternate_terms"),
			AlternatePenalty:            v.GetFloat64("valuation.alternate_penalty"),
			MaxPrice:                    v.GetFloat64("valuation.max_price"),
			SoftCeilingMultiple:         v.GetFloat64("valuation.soft_ceiling_multiple"),
			MADMultiplier:               v.GetFloat64("valuation.mad_multiplier"),
			ConfidenceBase:              v.GetFloat64("valuation.confidence_base"),
			ConfidencePerPoint:          v.GetFloat64("valuation.confidence_per_point"),
			ConfidencePointCap:          v.GetInt("valuation.confidence_point_cap"),
			ConfidenceDispersionPenalty: v.GetFloat64("valuation.confidence_dispersion_penalty"),
			RecentSalesLimit:            v.GetInt("valuation.recent_sales_limit"),
		},
		Sources: SourcesConfig{
			RemoteURL:        v.GetString("sources.remote_url"),
			RemoteAPIKey:     v.GetString("sources.remote_api_key"),
			MarketplaceURL:   v.GetString("sources.marketplace_url"),
			MaxSearchResults: v.GetInt("sources.max_search_results"),
			MinListingPrice:  v.GetFloat64("sources.min_listing_price"),
			MetalsURL:        v.GetString("sources.metals_url"),
			MetalsAPIKey:     v.GetString("sources.metals_api_key"),
			MetalsQuoteTTL:   v.GetDuration("sources.metals_quote_ttl"),
			HTTPMaxRetries:   v.GetInt("sources.http_max_retries"),
		},
		Cache: CacheConfig{
			TTL:      v.GetDuration("cache.ttl"),
			Capacity: v.GetInt("cache.capacity"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
		},
		Postgres: PostgresConfig{
			DSN:             v.GetString("postgres.dsn"),
			MaxOpenConns:    v.GetInt("postgres.max_open_conns"),
			MaxIdleConns:    v.GetInt("postgres.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("postgres.conn_max_lifetime"),
		},
		Kafka: KafkaConfig{
			Brokers:  pstrings.SplitList(v.GetString("kafka.brokers"), ","),
			Topic:    v.GetString("kafka.topic"),
			ClientID: v.GetString("kafka.client_id"),
		},
	}

	weights, err := parseWeights(v.GetString("valuation.source_weights"))
	if err != nil {
		return nil, err
	}
	cfg.Valuation.SourceWeights = weights

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("valuation.pawn_percentage", 0.30)
	v.SetDefault("valuation.tenant_pawn_rates", "")
	v.SetDefault("valuation.source_order", "guides,remote,marketplace")
	v.SetDefault("valuation.source_weights", "")
	v.SetDefault("valuation.source_timeout", 5*time.Second)
	v.SetDefault("valuation.query_deadline", 20*time.Second)
	v.SetDefault("valuation.rate_limit_cooldown", time.Minute)
	v.SetDefault("valuation.short_circuit_confidence", 0.9)
	v.SetDefault("valuation.blend", false)
	v.SetDefault("valuation.race_top_n", 0)
	v.SetDefault("valuation.alternate_terms", 3)
	v.SetDefault("valuation.alternate_penalty", 0.8)
	v.SetDefault("valuation.max_price", 100000.0)
	v.SetDefault("valuation.soft_ceiling_multiple", 20.0)
	v.SetDefault("valuation.mad_multiplier", 3.0)
	v.SetDefault("valuation.confidence_base", 0.3)
	v.SetDefault("valuation.confidence_per_point", 0.07)
	v.SetDefault("valuation.confidence_point_cap", 10)
	v.SetDefault("valuation.confidence_dispersion_penalty", 0.5)
	v.SetDefault("valuation.recent_sales_limit", 10)

	v.SetDefault("sources.remote_url", "")
	v.SetDefault("sources.remote_api_key", "")
	v.SetDefault("sources.marketplace_url", "https://www.ebay.com/sch/i.html")
	v.SetDefault("sources.max_search_results", 25)
	v.SetDefault("sources.min_listing_price", 5.0)
	v.SetDefault("sources.metals_url", "")
	v.SetDefault("sources.metals_api_key", "")
	v.SetDefault("sources.metals_quote_ttl", time.Minute)
	v.SetDefault("sources.http_max_retries", 2)

	v.SetDefault("cache.ttl", 15*time.Minute)
	v.SetDefault("cache.capacity", 10000)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 500*time.Millisecond)
	v.SetDefault("redis.write_timeout", 500*time.Millisecond)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "valuation.completed")
	v.SetDefault("kafka.client_id", "pawnval")
}

// Validate checks ratios and durations.
func (c *Config) Validate() error {
	val := c.Valuation
	var errs []error
	if val.DefaultPawnPercentage <= 0 || val.DefaultPawnPercentage > 1 {
		errs = append(errs, fmt.Errorf("valuation.pawn_percentage must be in (0,1], got %v", val.DefaultPawnPercentage))
	}
	if val.SourceTimeout <= 0 || val.QueryDeadline <= 0 || val.RateLimitCooldown <= 0 {
		errs = append(errs, errors.New("valuation timeouts and cooldown must be positive"))
	}
	if val.ShortCircuitConfidence < 0 || val.ShortCircuitConfidence > 1 {
		errs = append(errs, errors.New("valuation.short_circuit_confidence must be in [0,1]"))
	}
	if val.AlternatePenalty < 0 || val.AlternatePenalty > 1 {
		errs = append(errs, errors.New("valuation.alternate_penalty must be in [0,1]"))
	}
	if val.MADMultiplier <= 0 {
		errs = append(errs, errors.New("valuation.mad_multiplier must be positive"))
	}
	if len(val.SourceOrder) == 0 {
		errs = append(errs, errors.New("valuation.source_order must name at least one source"))
	}
	if c.Cache.TTL <= 0 || c.Cache.Capacity <= 0 {
		errs = append(errs, errors.New("cache.ttl and cache.capacity must be positive"))
	}
	if c.Sources.MaxSearchResults <= 0 {
		errs = append(errs, errors.New("sources.max_search_results must be positive"))
	}
	return errors.Join(errs...)
}

// parseWeights parses "marketplace=1,remote=0.8".
func parseWeights(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, pair := range pstrings.SplitList(s, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("valuation.source_weights: %q is not source=weight", pair)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || w < 0 {
			return nil, fmt.Errorf("valuation.source_weights: bad weight in %q", pair)
		}
		out[strings.TrimSpace(name)] = w
	}
	return out, nil
}
