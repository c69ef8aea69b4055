package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mohammad-safakhou/climarisk/internal/llm"
)

// Config holds all configuration for the service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Planner   RetryConfig     `mapstructure:"planner"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Watches   []WatchConfig   `mapstructure:"watches"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains the backend connection and the per-stage model routing
type LLMConfig struct {
	Provider string           `mapstructure:"provider"` // openai, mistral
	APIKey   string           `mapstructure:"api_key"`
	BaseURL  string           `mapstructure:"base_url"`
	Timeout  time.Duration    `mapstructure:"timeout"`
	Routing  LLMRoutingConfig `mapstructure:"routing"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name        string             `mapstructure:"name"`
	MaxTokens   int                `mapstructure:"max_tokens"`
	Temperature float64            `mapstructure:"temperature"`
	Options     map[string]float64 `mapstructure:"options"`
}

// Settings converts the model entry into request defaults.
func (m LLMModel) Settings() llm.ModelSettings {
	return llm.ModelSettings{
		Model:       m.Name,
		MaxTokens:   m.MaxTokens,
		Temperature: m.Temperature,
		Options:     m.Options,
	}
}

// LLMRoutingConfig defines which model to use for each stage
type LLMRoutingConfig struct {
	Validation LLMModel `mapstructure:"validation"`
	Planning   LLMModel `mapstructure:"planning"`
	Analysis   LLMModel `mapstructure:"analysis"`
	Synthesis  LLMModel `mapstructure:"synthesis"`
	DataViz    LLMModel `mapstructure:"dataviz"`
	Relevance  LLMModel `mapstructure:"relevance"`
}

// Stage returns the model settings routed to stage.
func (r LLMRoutingConfig) Stage(stage llm.Stage) llm.ModelSettings {
	switch stage {
	case llm.StageValidation:
		return r.Validation.Settings()
	case llm.StagePlanning:
		return r.Planning.Settings()
	case llm.StageAnalysis:
		return r.Analysis.Settings()
	case llm.StageSynthesis:
		return r.Synthesis.Settings()
	case llm.StageDataViz:
		return r.DataViz.Settings()
	case llm.StageRelevance:
		return r.Relevance.Settings()
	}
	return r.Planning.Settings()
}

// Validate checks every routed model and its options.
func (c LLMConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("llm.api_key required")
	}
	for _, stage := range []llm.Stage{llm.StageValidation, llm.StagePlanning, llm.StageAnalysis, llm.StageSynthesis, llm.StageDataViz, llm.StageRelevance} {
		req := c.Routing.Stage(stage).Request(llm.User("probe"))
		if err := req.Validate(); err != nil {
			return fmt.Errorf("llm.routing.%s: %w", stage, err)
		}
	}
	return nil
}

// RetryConfig bounds a self-repair loop
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

// Policy converts the section into an llm.Policy using timeout per call.
func (r RetryConfig) Policy(timeout time.Duration) llm.Policy {
	return llm.Policy{MaxAttempts: r.MaxAttempts, Backoff: r.Backoff, Timeout: timeout}.Normalize()
}

func (r RetryConfig) Validate(section string) error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("%s.max_attempts must be >= 1", section)
	}
	if r.Backoff < 0 {
		return fmt.Errorf("%s.backoff cannot be negative", section)
	}
	return nil
}

// AnalysisConfig controls per-document risk analysis
type AnalysisConfig struct {
	RetryConfig `mapstructure:",squash"`
	MaxChars    int `mapstructure:"max_chars"`
}

// Normalize applies defaults for unset analysis values.
func (a AnalysisConfig) Normalize() AnalysisConfig {
	if a.MaxChars <= 0 {
		a.MaxChars = 100000
	}
	return a
}

// PipelineConfig toggles optional pipeline behaviour
type PipelineConfig struct {
	ConversationalRejections bool `mapstructure:"conversational_rejections"`
}

// SourcesConfig contains document source configurations
type SourcesConfig struct {
	WebSearch    WebSearchConfig  `mapstructure:"web_search"`
	Georisques   GeorisquesConfig `mapstructure:"georisques"`
	Fetch        FetchConfig      `mapstructure:"fetch"`
	Domains      DomainPolicy     `mapstructure:"domains"`
	MinWords     int              `mapstructure:"min_words"`
	LLMRelevance bool             `mapstructure:"llm_relevance"`
	CacheTTL     time.Duration    `mapstructure:"cache_ttl"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	Provider      string        `mapstructure:"provider"` // serper, brave, none
	BraveAPIKey   string        `mapstructure:"brave_api_key"`
	SerperAPIKey  string        `mapstructure:"serper_api_key"`
	ResultsPerDoc int           `mapstructure:"results_per_doc"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// APIKey returns the key matching the selected provider.
func (w WebSearchConfig) APIKey() string {
	switch w.Provider {
	case "brave":
		return w.BraveAPIKey
	case "serper":
		return w.SerperAPIKey
	}
	return ""
}

func (w WebSearchConfig) Validate() error {
	switch w.Provider {
	case "", "none":
		return nil
	case "serper", "brave":
		if strings.TrimSpace(w.APIKey()) == "" {
			return fmt.Errorf("sources.web_search.%s_api_key required when provider is %s", w.Provider, w.Provider)
		}
		return nil
	default:
		return fmt.Errorf("sources.web_search.provider %q unsupported", w.Provider)
	}
}

// GeorisquesConfig points at the national risk-report and commune lookup APIs
type GeorisquesConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	GeoBaseURL string        `mapstructure:"geo_base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// FetchConfig controls document download
type FetchConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxBytes int64         `mapstructure:"max_bytes"`
	Browser  bool          `mapstructure:"browser"` // render HTML pages with headless chrome
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a redis endpoint is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a database is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) == "" {
		return nil
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN constructs the connection string.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres configuration incomplete: host/dbname required")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort < 0 {
		return fmt.Errorf("telemetry.metrics_port cannot be negative")
	}
	return nil
}

// WatchConfig is a saved request re-run on a cron schedule
type WatchConfig struct {
	Name    string `mapstructure:"name"`
	Request string `mapstructure:"request"`
	Cron    string `mapstructure:"cron"`
}

func (w WatchConfig) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("watches: name required")
	}
	if strings.TrimSpace(w.Request) == "" {
		return fmt.Errorf("watches.%s: request required", w.Name)
	}
	if strings.TrimSpace(w.Cron) == "" {
		return fmt.Errorf("watches.%s: cron required", w.Name)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":10001")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", 90*time.Second)
	for stage, tokens := range map[string]int{
		"validation": 1024,
		"planning":   2048,
		"analysis":   4096,
		"synthesis":  4096,
		"dataviz":    256,
		"relevance":  4,
	} {
		v.SetDefault("llm.routing."+stage+".name", "gpt-4o-mini")
		v.SetDefault("llm.routing."+stage+".max_tokens", tokens)
		v.SetDefault("llm.routing."+stage+".temperature", 0)
	}
	v.SetDefault("planner.max_attempts", 3)
	v.SetDefault("planner.backoff", 500*time.Millisecond)
	v.SetDefault("analysis.max_attempts", 3)
	v.SetDefault("analysis.backoff", 500*time.Millisecond)
	v.SetDefault("analysis.max_chars", 100000)
	v.SetDefault("sources.web_search.provider", "none")
	v.SetDefault("sources.web_search.results_per_doc", 3)
	v.SetDefault("sources.web_search.timeout", 15*time.Second)
	v.SetDefault("sources.georisques.base_url", "https://georisques.gouv.fr/api/v1")
	v.SetDefault("sources.georisques.geo_base_url", "https://geo.api.gouv.fr")
	v.SetDefault("sources.georisques.timeout", 60*time.Second)
	v.SetDefault("sources.fetch.timeout", 60*time.Second)
	v.SetDefault("sources.fetch.max_bytes", 50<<20)
	v.SetDefault("sources.min_words", 1000)
	v.SetDefault("sources.cache_ttl", 48*time.Hour)
	v.SetDefault("telemetry.metrics_port", 0)
	// keys below have no default but must be visible to AutomaticEnv
	for _, key := range []string{
		"server.jwt_secret", "llm.api_key", "llm.base_url",
		"sources.web_search.brave_api_key", "sources.web_search.serper_api_key",
		"storage.redis.host", "storage.redis.port", "storage.redis.password",
		"storage.postgres.url", "storage.postgres.host", "storage.postgres.user",
		"storage.postgres.password", "storage.postgres.dbname",
		"telemetry.otlp_endpoint",
	} {
		v.SetDefault(key, "")
	}
}

// LoadConfig loads config from file and CLIMARISK_* environment variables.
// An empty path searches the usual locations; a missing file is not an
// error when the environment carries everything.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CLIMARISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Analysis = cfg.Analysis.Normalize()
	cfg.Sources.Domains = cfg.Sources.Domains.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs every section validator.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Planner.Validate("planner"); err != nil {
		return err
	}
	if err := c.Analysis.RetryConfig.Validate("analysis"); err != nil {
		return err
	}
	if err := c.Sources.WebSearch.Validate(); err != nil {
		return err
	}
	if err := c.Sources.Domains.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Postgres.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Watches))
	for _, w := range c.Watches {
		if err := w.Validate(); err != nil {
			return err
		}
		if _, dup := seen[w.Name]; dup {
			return fmt.Errorf("watches.%s: duplicate name", w.Name)
		}
		seen[w.Name] = struct{}{}
	}
	return nil
}
