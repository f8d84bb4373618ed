package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		Provider         string  `yaml:"provider" validate:"oneof=groq"`
		BaseURL          string  `yaml:"base_url" validate:"required,url"`
		Model            string  `yaml:"model" validate:"required"`
		Temperature      float32 `yaml:"temperature" validate:"gte=0,lte=2"`
		MaxTokens        int     `yaml:"max_tokens" validate:"gt=0"`
		TimeoutSeconds   int     `yaml:"timeout_seconds" validate:"gt=0"`
		RateLimitRetries *int    `yaml:"rate_limit_retries" validate:"omitempty,gte=0,lte=3"`
		RetryBackoffMS   int     `yaml:"retry_backoff_ms" validate:"gte=0"`
	} `yaml:"llm"`
	Search struct {
		BaseURL        string  `yaml:"base_url" validate:"required,url"`
		Engine         string  `yaml:"engine" validate:"required"`
		NewsEngine     string  `yaml:"news_engine"`
		TimeoutSeconds int     `yaml:"timeout_seconds" validate:"gt=0"`
		MaxCalls       int     `yaml:"max_calls" validate:"gte=1,lte=8"`
		ResultsPerCall int     `yaml:"results_per_call" validate:"gte=1,lte=100"`
		RetryBackoffMS int     `yaml:"retry_backoff_ms" validate:"gte=0"`
		QPS            float64 `yaml:"qps" validate:"gt=0"`
		GL             string  `yaml:"gl"`
		HL             string  `yaml:"hl"`
	} `yaml:"search"`
	Extraction struct {
		LLMFallback   *bool   `yaml:"llm_fallback"`
		MinConfidence float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`
		CompaniesFile string  `yaml:"companies_file"`
	} `yaml:"extraction"`
	Analysis struct {
		DefaultWindowDays int     `yaml:"default_window_days" validate:"gte=1,lte=3660"`
		BreakoutMarginPct float64 `yaml:"breakout_margin_pct" validate:"gte=0"`
	} `yaml:"analysis"`
	Enrich struct {
		Enabled         bool `yaml:"enabled"`
		MaxPages        int  `yaml:"max_pages" validate:"gte=0,lte=10"`
		TimeoutSeconds  int  `yaml:"timeout_seconds" validate:"gte=0"`
		MinSnippetChars int  `yaml:"min_snippet_chars" validate:"gte=0"`
	} `yaml:"enrich"`
	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days" validate:"gte=0"`
	} `yaml:"audit"`
	Server struct {
		Addr                  string `yaml:"addr"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" validate:"gte=0"`
	} `yaml:"server"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns a configuration usable without a file.
func Default() *Config {
	var c Config
	applyDefaults(&c)
	return &c
}

func applyDefaults(c *Config) {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "groq"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "llama-3.3-70b-versatile"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.RateLimitRetries == nil {
		one := 1
		c.LLM.RateLimitRetries = &one
	}
	if c.LLM.RetryBackoffMS == 0 {
		c.LLM.RetryBackoffMS = 2000
	}
	if c.Search.BaseURL == "" {
		c.Search.BaseURL = "https://serpapi.com"
	}
	if c.Search.Engine == "" {
		c.Search.Engine = "google"
	}
	if c.Search.NewsEngine == "" {
		c.Search.NewsEngine = "google_news"
	}
	if c.Search.TimeoutSeconds == 0 {
		c.Search.TimeoutSeconds = 20
	}
	if c.Search.MaxCalls == 0 {
		c.Search.MaxCalls = 3
	}
	if c.Search.ResultsPerCall == 0 {
		c.Search.ResultsPerCall = 10
	}
	if c.Search.RetryBackoffMS == 0 {
		c.Search.RetryBackoffMS = 500
	}
	if c.Search.QPS == 0 {
		c.Search.QPS = 5
	}
	if c.Search.GL == "" {
		c.Search.GL = "us"
	}
	if c.Search.HL == "" {
		c.Search.HL = "en"
	}
	if c.Extraction.LLMFallback == nil {
		on := true
		c.Extraction.LLMFallback = &on
	}
	if c.Extraction.MinConfidence == 0 {
		c.Extraction.MinConfidence = 0.5
	}
	if c.Analysis.DefaultWindowDays == 0 {
		c.Analysis.DefaultWindowDays = 14
	}
	if c.Enrich.MaxPages == 0 {
		c.Enrich.MaxPages = 3
	}
	if c.Enrich.TimeoutSeconds == 0 {
		c.Enrich.TimeoutSeconds = 10
	}
	if c.Enrich.MinSnippetChars == 0 {
		c.Enrich.MinSnippetChars = 80
	}
	if c.Audit.Dir == "" {
		c.Audit.Dir = "logs/answers"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RequestTimeoutSeconds == 0 {
		c.Server.RequestTimeoutSeconds = 120
	}
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Search.NewsEngine == c.Search.Engine {
		return fmt.Errorf("search.news_engine must differ from search.engine, both are '%s'", c.Search.Engine)
	}
	if c.Enrich.Enabled && c.Enrich.MaxPages == 0 {
		return errors.New("enrich.max_pages must be positive when enrich.enabled is true")
	}
	return nil
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSeconds) * time.Second
}

func (c *Config) LLMRetries() int {
	if c.LLM.RateLimitRetries == nil {
		return 0
	}
	return *c.LLM.RateLimitRetries
}

func (c *Config) LLMFallbackEnabled() bool {
	return c.Extraction.LLMFallback != nil && *c.Extraction.LLMFallback
}

func (c *Config) DefaultWindow() time.Duration {
	return time.Duration(c.Analysis.DefaultWindowDays) * 24 * time.Hour
}

// LoadConfig reads path, applies defaults and validates. An empty path yields Default().
func LoadConfig(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
