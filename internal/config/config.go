package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"document-processor/internal/domain"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	OpenAI     OpenAIConfig
	Summary    SummaryConfig
	Prompt     PromptConfig
	Normalizer NormalizerConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port               string        `env:"PORT"                  envDefault:"8000"`
	ReadTimeout        time.Duration `env:"READ_TIMEOUT"          envDefault:"30s"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT"         envDefault:"6m"`
	IdleTimeout        time.Duration `env:"IDLE_TIMEOUT"          envDefault:"60s"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT"       envDefault:"5m"`
	MaxUploadMB        int64         `env:"MAX_UPLOAD_MB"         envDefault:"20"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS"  envDefault:"*"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`
}

// MaxUploadBytes is the largest accepted PDF
func (s ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB << 20
}

// DatabaseConfig with an empty URL keeps document records in memory
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL"`
}

// RedisConfig with an empty Addr disables the summary cache
type RedisConfig struct {
	Addr            string        `env:"REDIS_ADDR"`
	Password        string        `env:"REDIS_PASSWORD"`
	DB              int           `env:"REDIS_DB"          envDefault:"0"`
	SummaryCacheTTL time.Duration `env:"SUMMARY_CACHE_TTL" envDefault:"168h"`
}

type OpenAIConfig struct {
	APIKey            string        `env:"OPENAI_API_KEY"`
	BaseURL           string        `env:"OPENAI_BASE_URL"`
	Model             string        `env:"MODEL"                 envDefault:"gpt-4o-mini"`
	FallbackModel     string        `env:"FALLBACK_MODEL"`
	MaxRetries        int           `env:"LLM_MAX_RETRIES"       envDefault:"2"`
	RetryBaseDelay    time.Duration `env:"LLM_RETRY_BASE_DELAY"  envDefault:"1s"`
	RetryMaxDelay     time.Duration `env:"LLM_RETRY_MAX_DELAY"   envDefault:"30s"`
	AttemptTimeout    time.Duration `env:"LLM_ATTEMPT_TIMEOUT"   envDefault:"90s"`
	MaxOutputTokens   int64         `env:"LLM_MAX_OUTPUT_TOKENS" envDefault:"4096"`
	SystemInstruction string        `env:"SYSTEM_INSTRUCTION"`
}

// RetryBudget is the longest one summarization can take: every attempt
// timing out, the backoff between them, and the fallback model doing the same.
func (o OpenAIConfig) RetryBudget() time.Duration {
	total := time.Duration(o.MaxRetries+1) * o.AttemptTimeout
	backoff := o.RetryBaseDelay
	for i := 0; i < o.MaxRetries; i++ {
		if o.RetryMaxDelay > 0 && backoff > o.RetryMaxDelay {
			backoff = o.RetryMaxDelay
		}
		total += backoff
		backoff *= 2
	}
	if o.FallbackModel != "" && o.FallbackModel != o.Model {
		total *= 2
	}
	return total
}

type SummaryConfig struct {
	Language string `env:"LANGUAGE"         envDefault:"French"`
	Audience string `env:"AUDIENCE_PROFILE"`
}

type PromptConfig struct {
	Name              string        `env:"PROMPT_NAME"             envDefault:"paper_pitch"`
	Version           string        `env:"PROMPT_VERSION"`
	Label             string        `env:"PROMPT_LABEL"            envDefault:"production"`
	LangfusePublicKey string        `env:"LANGFUSE_PUBLIC_KEY"`
	LangfuseSecretKey string        `env:"LANGFUSE_SECRET_KEY"`
	LangfuseBaseURL   string        `env:"LANGFUSE_BASE_URL"       envDefault:"https://cloud.langfuse.com"`
	FetchTimeout      time.Duration `env:"PROMPT_FETCH_TIMEOUT"    envDefault:"5s"`
	CacheTTL          time.Duration `env:"PROMPT_CACHE_TTL"        envDefault:"0s"`
	FallbackFile      string        `env:"PROMPT_FALLBACK_FILE"`
	DefaultDisabled   bool          `env:"PROMPT_DEFAULT_DISABLED" envDefault:"false"`
	// RefreshInterval of zero disables background refreshes
	RefreshInterval time.Duration `env:"PROMPT_REFRESH_INTERVAL" envDefault:"0s"`
}

// RemoteEnabled reports whether Langfuse credentials are configured
func (p PromptConfig) RemoteEnabled() bool {
	return p.LangfusePublicKey != "" && p.LangfuseSecretKey != ""
}

type NormalizerConfig struct {
	StripBoilerplate bool `env:"STRIP_BOILERPLATE" envDefault:"true"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Parse reads the environment without validating it
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

// Load reads and validates the environment
func Load() (*Config, error) {
	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if _, err := domain.ParseLanguage(c.Summary.Language); err != nil {
		return fmt.Errorf("LANGUAGE: %w", err)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.OpenAI.MaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES must not be negative, got %d", c.OpenAI.MaxRetries)
	}
	if rt := c.Server.RequestTimeout; rt > 0 {
		// a request must outlive the prompt fetch and every LLM attempt
		if need := c.Prompt.FetchTimeout + c.OpenAI.RetryBudget(); rt < need {
			return fmt.Errorf("REQUEST_TIMEOUT %s is shorter than the worst-case summarization time %s", rt, need)
		}
		if wt := c.Server.WriteTimeout; wt > 0 && wt < rt {
			return fmt.Errorf("WRITE_TIMEOUT %s must not be shorter than REQUEST_TIMEOUT %s", wt, rt)
		}
	}
	return nil
}

// Language returns the validated default summary language
func (c *Config) Language() domain.Language {
	lang, err := domain.ParseLanguage(c.Summary.Language)
	if err != nil {
		return domain.DefaultLanguage
	}
	return lang
}
