package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	NATS       NATSConfig       `yaml:"nats" mapstructure:"nats"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	SiteMeta   SiteMetaConfig   `yaml:"sitemeta" mapstructure:"sitemeta"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Enrichment EnrichmentConfig `yaml:"enrichment" mapstructure:"enrichment"`
	AI         AIConfig         `yaml:"ai" mapstructure:"ai"`
	Budget     BudgetConfig     `yaml:"budget" mapstructure:"budget"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// NATSConfig configures the continuation transport used by workers.
type NATSConfig struct {
	URL        string `yaml:"url" mapstructure:"url"`
	Subject    string `yaml:"subject" mapstructure:"subject"`
	QueueGroup string `yaml:"queue_group" mapstructure:"queue_group"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	PrimaryModel    string `yaml:"primary_model" mapstructure:"primary_model"`
	EscalationModel string `yaml:"escalation_model" mapstructure:"escalation_model"`
	MaxTokens       int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// JinaConfig holds Jina search settings.
type JinaConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	SearchBaseURL string  `yaml:"search_base_url" mapstructure:"search_base_url"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SiteMetaConfig configures the website title/description fetcher.
type SiteMetaConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// RulesConfig configures the keyword rules engine.
type RulesConfig struct {
	AcceptThreshold int    `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	MarginThreshold int    `yaml:"margin_threshold" mapstructure:"margin_threshold"`
	ReviewBelow     int    `yaml:"review_below" mapstructure:"review_below"`
	DictionaryPath  string `yaml:"dictionary_path" mapstructure:"dictionary_path"`
	BatchSize       int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// EnrichmentConfig configures the enrichment stage.
type EnrichmentConfig struct {
	BatchSize       int  `yaml:"batch_size" mapstructure:"batch_size"`
	DefaultDepth    int  `yaml:"default_depth" mapstructure:"default_depth"`
	BusinessDepth   int  `yaml:"business_depth" mapstructure:"business_depth"`
	ConfidenceFloor int  `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	SnippetLimit    int  `yaml:"snippet_limit" mapstructure:"snippet_limit"`
	Skip            bool `yaml:"skip" mapstructure:"skip"`
}

// AIConfig configures the AI classification stage.
type AIConfig struct {
	BatchSize             int `yaml:"batch_size" mapstructure:"batch_size"`
	AcceptThreshold       int `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	MaxAttempts           int `yaml:"max_attempts" mapstructure:"max_attempts"`
	FallbackMaxConfidence int `yaml:"fallback_max_confidence" mapstructure:"fallback_max_confidence"`
	ReassignCap           int `yaml:"reassign_cap" mapstructure:"reassign_cap"`
	EscalateBelow         int `yaml:"escalate_below" mapstructure:"escalate_below"`
}

// BudgetConfig holds the per-job spend caps.
type BudgetConfig struct {
	MaxSearchCalls  int     `yaml:"max_search_calls" mapstructure:"max_search_calls"`
	MaxAIRowPercent float64 `yaml:"max_ai_row_percent" mapstructure:"max_ai_row_percent"`
	MaxAITokens     int64   `yaml:"max_ai_tokens" mapstructure:"max_ai_tokens"`
}

// CacheConfig holds per-namespace time-to-live settings.
type CacheConfig struct {
	EnrichmentTTLHours int `yaml:"enrichment_ttl_hours" mapstructure:"enrichment_ttl_hours"`
	AITTLHours         int `yaml:"ai_ttl_hours" mapstructure:"ai_ttl_hours"`
}

// EnrichmentTTL returns the enrichment namespace TTL.
func (c CacheConfig) EnrichmentTTL() time.Duration {
	return time.Duration(c.EnrichmentTTLHours) * time.Hour
}

// AITTL returns the AI namespace TTL.
func (c CacheConfig) AITTL() time.Duration {
	return time.Duration(c.AITTLHours) * time.Hour
}

// QueueConfig configures continuation scheduling.
type QueueConfig struct {
	Backend      string `yaml:"backend" mapstructure:"backend"`
	Workers      int    `yaml:"workers" mapstructure:"workers"`
	ClaimTTLSecs int    `yaml:"claim_ttl_secs" mapstructure:"claim_ttl_secs"`
	IdleDelayMs  int    `yaml:"idle_delay_ms" mapstructure:"idle_delay_ms"`

	SweepIntervalSecs int `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
	StaleAfterSecs    int `yaml:"stale_after_secs" mapstructure:"stale_after_secs"`
}

// ClaimTTL returns the lease after which a claimed row may be reclaimed.
func (c QueueConfig) ClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLSecs) * time.Second
}

// IdleDelay returns the continuation delay used when a step made no progress.
func (c QueueConfig) IdleDelay() time.Duration {
	return time.Duration(c.IdleDelayMs) * time.Millisecond
}

// SweepInterval returns how often stalled jobs are looked for. Zero disables
// the sweeper.
func (c QueueConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

// StaleAfter returns the age after which an active job counts as stalled.
func (c QueueConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSecs) * time.Second
}

// ResilienceConfig configures retry and circuit breaking around providers.
type ResilienceConfig struct {
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs   int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs       int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier         float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction     float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	BreakerMinRequests uint32  `yaml:"breaker_min_requests" mapstructure:"breaker_min_requests"`
	BreakerFailRatio   float64 `yaml:"breaker_fail_ratio" mapstructure:"breaker_fail_ratio"`
	BreakerOpenSecs    int     `yaml:"breaker_open_secs" mapstructure:"breaker_open_secs"`
}

// PricingConfig holds per-model token pricing.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CLASSIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "classifier.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject", "classifier.jobs.advance")
	v.SetDefault("nats.queue_group", "classifier-workers")
	v.SetDefault("anthropic.primary_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.escalation_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.rate_limit", 5.0)
	v.SetDefault("jina.timeout_secs", 15)
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.rate_limit", 10.0)
	v.SetDefault("google.timeout_secs", 10)
	v.SetDefault("sitemeta.timeout_secs", 5)
	v.SetDefault("sitemeta.user_agent", "Mozilla/5.0 (compatible; contact-classifier/1.0)")
	v.SetDefault("rules.accept_threshold", 60)
	v.SetDefault("rules.margin_threshold", 5)
	v.SetDefault("rules.review_below", 90)
	v.SetDefault("rules.batch_size", 100)
	v.SetDefault("enrichment.batch_size", 50)
	v.SetDefault("enrichment.default_depth", 2)
	v.SetDefault("enrichment.business_depth", 3)
	v.SetDefault("enrichment.confidence_floor", 70)
	v.SetDefault("enrichment.snippet_limit", 3)
	v.SetDefault("ai.batch_size", 20)
	v.SetDefault("ai.accept_threshold", 70)
	v.SetDefault("ai.max_attempts", 2)
	v.SetDefault("ai.fallback_max_confidence", 30)
	v.SetDefault("ai.reassign_cap", 50)
	v.SetDefault("ai.escalate_below", 70)
	v.SetDefault("budget.max_search_calls", 500)
	v.SetDefault("budget.max_ai_row_percent", 30.0)
	v.SetDefault("budget.max_ai_tokens", 2000000)
	v.SetDefault("cache.enrichment_ttl_hours", 30*24)
	v.SetDefault("cache.ai_ttl_hours", 90*24)
	v.SetDefault("queue.backend", "local")
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.claim_ttl_secs", 600)
	v.SetDefault("queue.idle_delay_ms", 2000)
	v.SetDefault("queue.sweep_interval_secs", 60)
	v.SetDefault("queue.stale_after_secs", 300)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 10000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.breaker_min_requests", 5)
	v.SetDefault("resilience.breaker_fail_ratio", 0.6)
	v.SetDefault("resilience.breaker_open_secs", 30)
	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-haiku-4-5-20251001":  map[string]any{"input": 1.0, "output": 5.0},
		"claude-sonnet-4-5-20250929": map[string]any{"input": 3.0, "output": 15.0},
	})

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

// Validate checks the settings required by the given mode. Modes:
// "import" (store only), "classify" (store plus providers), "serve" and
// "worker" (classify plus their transport). All problems are reported in a
// single error.
func (c *Config) Validate(mode string) error {
	var errs []string

	storeChecks := func() {
		switch c.Store.Driver {
		case "postgres", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}
	classifyChecks := func() {
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Anthropic.PrimaryModel == "" || c.Anthropic.EscalationModel == "" {
			errs = append(errs, "anthropic.primary_model and anthropic.escalation_model are required")
		}
		if !c.Enrichment.Skip && c.Jina.Key == "" {
			errs = append(errs, "jina.key is required unless enrichment.skip is set")
		}
		if c.Budget.MaxAIRowPercent < 0 || c.Budget.MaxAIRowPercent > 100 {
			errs = append(errs, "budget.max_ai_row_percent must be between 0 and 100")
		}
		if c.Cache.EnrichmentTTLHours <= 0 || c.Cache.AITTLHours <= 0 {
			errs = append(errs, "cache TTLs must be > 0")
		}
		if c.Queue.Workers < 1 || c.Queue.Workers > 64 {
			errs = append(errs, "queue.workers must be between 1 and 64")
		}
	}

	switch mode {
	case "import":
		storeChecks()
	case "classify":
		storeChecks()
		classifyChecks()
	case "serve":
		storeChecks()
		classifyChecks()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "worker":
		storeChecks()
		classifyChecks()
		if c.NATS.URL == "" {
			errs = append(errs, "nats.url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
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
