package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/noteweave/internal/similarity"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	AI         AIConfig          `yaml:"ai"`
	Enrichment EnrichmentConfig  `yaml:"enrichment"`
	Similarity SimilarityConfig  `yaml:"similarity"`
	Inbox      InboxConfig       `yaml:"inbox"`
	Fetch      FetchConfig       `yaml:"fetch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"sqlite", &c.SQLite},
		{"auth", &c.Auth},
		{"ai", &c.AI},
		{"enrichment", &c.Enrichment},
		{"similarity", &c.Similarity},
		{"inbox", &c.Inbox},
		{"fetch", &c.Fetch},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// AIConfig points at an OpenAI-compatible endpoint.
type AIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	ChatModel      string        `yaml:"chat_model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	Temperature    float32       `yaml:"temperature"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
}

// Validate validates the AI configuration.
func (c *AIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.ChatModel, validation.Required),
		validation.Field(&c.EmbeddingModel, validation.Required),
		validation.Field(&c.Temperature, validation.Min(float32(0)), validation.Max(float32(2))),
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.RetryBackoff, validation.Min(time.Duration(0))),
	)
}

func httpURL(v any) error {
	u, err := url.Parse(v.(string))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}

// EnrichmentConfig tunes the background enrichment worker.
type EnrichmentConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	Workers             int           `yaml:"workers"`
	QueueSize           int           `yaml:"queue_size"`
	ScanInterval        time.Duration `yaml:"scan_interval"`
	StaleAfter          time.Duration `yaml:"stale_after"`
	EmbeddingDimensions int           `yaml:"embedding_dimensions"`
	MaxChars            int           `yaml:"max_chars"`
}

// Validate validates the enrichment configuration.
func (c *EnrichmentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.QueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.ScanInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.StaleAfter, validation.Required, validation.By(func(any) error {
			if c.StaleAfter <= c.Timeout {
				return errors.New("must be longer than the enrichment timeout")
			}
			return nil
		})),
		// 0 pins the size to the first embedding stored.
		validation.Field(&c.EmbeddingDimensions, validation.Min(0)),
		validation.Field(&c.MaxChars, validation.Required, validation.Min(200)),
	)
}

// SimilarityConfig holds the relatedness weights and query limits.
type SimilarityConfig struct {
	Weights      similarity.Weights `yaml:"weights"`
	MinRelevance float64            `yaml:"min_relevance"`
	DefaultLimit int                `yaml:"default_limit"`
	MaxLimit     int                `yaml:"max_limit"`
}

// Validate validates the similarity configuration.
func (c *SimilarityConfig) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.MinRelevance, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.MaxLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.DefaultLimit, validation.Required, validation.Min(1), validation.Max(c.MaxLimit)),
	)
}

// InboxConfig controls the drop-directory importer.
type InboxConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Path       string        `yaml:"path"`
	Extensions []string      `yaml:"extensions"`
	Settle     time.Duration `yaml:"settle"`

	// RetryInterval is how often files whose import failed are retried.
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Settle, validation.Min(time.Duration(0))),
		validation.Field(&c.RetryInterval, validation.Min(time.Duration(0))),
	)
}

// FetchConfig controls how LINK pages are fetched for enrichment.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
}

// Validate validates the fetch configuration.
func (c *FetchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1024))),
		validation.Field(&c.UserAgent, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./noteweave.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		AI: AIConfig{
			BaseURL:        "https://api.openai.com/v1",
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Temperature:    0.2,
			MaxRetries:     2,
			RetryBackoff:   time.Second,
		},
		Enrichment: EnrichmentConfig{
			Timeout:      60 * time.Second,
			Workers:      2,
			QueueSize:    256,
			ScanInterval: time.Minute,
			StaleAfter:   10 * time.Minute,
			MaxChars:     8000,
		},
		Similarity: SimilarityConfig{
			Weights:      similarity.DefaultWeights(),
			MinRelevance: 0.15,
			DefaultLimit: 10,
			MaxLimit:     100,
		},
		Inbox: InboxConfig{
			Path:          "./inbox",
			Extensions:    []string{".md"},
			Settle:        500 * time.Millisecond,
			RetryInterval: time.Minute,
		},
		Fetch: FetchConfig{
			Timeout:   10 * time.Second,
			MaxBytes:  2 << 20,
			UserAgent: "noteweave/1.0",
		},
	}
}
