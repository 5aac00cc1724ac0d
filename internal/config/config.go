package config

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
)

// Config aggregates every configuration section of the service.
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	LLM        LLMConfig
	Store      StoreConfig
	Cache      CacheConfig
	Auth       AuthConfig
	Summarizer SummarizerConfig
	Chat       ChatConfig
	CORS       CORSConfig
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(NewViper())
}

// NewViper returns a viper instance bound to the environment with the
// service defaults applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("API_HOST", "0.0.0.0")
	v.SetDefault("API_PORT", "8000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LLM_PROVIDER", ProviderOpenAI)
	v.SetDefault("LLM_TEMPERATURE", "1.0")
	v.SetDefault("LLM_TIMEOUT", "60s")
	v.SetDefault("ARK_REGION", "cn-beijing")
	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("STORE_DSN", "skynet.db")
	v.SetDefault("REDIS_DB", "0")
	v.SetDefault("SUMMARY_CHUNK_SIZE", "4000")
	v.SetDefault("SUMMARY_CHUNK_OVERLAP", "200")
	v.SetDefault("SUMMARY_CACHE_TTL", "1h")
	v.SetDefault("SUMMARY_MAP_CONCURRENCY", "4")
	v.SetDefault("SUMMARY_COMPUTE_TIMEOUT", "5m")
	v.SetDefault("SUMMARY_MAX_UPLOAD_BYTES", strconv.Itoa(10<<20))
	v.SetDefault("CHAT_HISTORY_LIMIT", "0")
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
	return v
}

// LoadFrom builds a Config from an already prepared viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	llm, err := loadLLMConfig(v)
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig(v)
	if err != nil {
		return nil, err
	}

	cache, err := loadCacheConfig(v)
	if err != nil {
		return nil, err
	}

	summarizer, err := loadSummarizerConfig(v)
	if err != nil {
		return nil, err
	}

	historyLimit, err := parseInt(v, "CHAT_HISTORY_LIMIT")
	if err != nil {
		return nil, err
	}
	if historyLimit < 0 {
		return nil, fmt.Errorf("invalid CHAT_HISTORY_LIMIT value %d: must not be negative", historyLimit)
	}

	return &Config{
		Server: server,
		Log: LogConfig{
			Level:  getString(v, "LOG_LEVEL"),
			Format: getString(v, "LOG_FORMAT"),
		},
		LLM:   llm,
		Store: store,
		Cache: cache,
		Auth: AuthConfig{
			ProjectID:  getString(v, "FIREBASE_PROJECTID"),
			APIKey:     getString(v, "FIREBASE_API_KEY"),
			AuthDomain: getString(v, "FIREBASE_AUTH_DOMAIN"),
		},
		Summarizer: summarizer,
		Chat:       ChatConfig{HistoryLimit: historyLimit},
		CORS:       CORSConfig{AllowOrigins: splitList(getString(v, "CORS_ALLOW_ORIGINS"))},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// loadServerConfig resolves the listen address. PORT wins over API_PORT and
// may carry a full host:port.
func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := getString(v, "PORT")
	if port == "" {
		port = getString(v, "API_PORT")
	}

	if strings.Contains(port, ":") {
		return ServerConfig{Addr: port}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid port value: %q", port)
	}

	return ServerConfig{Addr: net.JoinHostPort(getString(v, "API_HOST"), port)}, nil
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string
	Format string
}

// Supported LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

var defaultEndpoints = map[string]string{
	ProviderOpenAI: "https://models.github.ai/inference",
	ProviderArk:    "https://ark.cn-beijing.volces.com/api/v3",
}

// LLMConfig describes the chat model used for conversations and summaries.
type LLMConfig struct {
	Provider    string
	Model       string
	Endpoint    string
	Token       string
	Temperature *float64
	MaxTokens   *int
	Timeout     time.Duration
	AccessKey   string
	SecretKey   string
	Region      string
}

// Enabled reports whether enough credentials are present to build a model.
func (c LLMConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	if c.Provider == ProviderArk {
		return c.Token != "" || (c.AccessKey != "" && c.SecretKey != "")
	}
	return c.Token != ""
}

// NewChatModel creates the configured chat model.
func (c LLMConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("LLM credentials or model missing: set LLM_MODEL and LLM_TOKEN (or ARK_ACCESS_KEY/ARK_SECRET_KEY for ark)")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	switch c.Provider {
	case ProviderArk:
		timeout := c.Timeout
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.Endpoint,
			Region:      c.Region,
			APIKey:      c.Token,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			Timeout:     &timeout,
		})
	case ProviderOpenAI:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      c.Token,
			BaseURL:     c.Endpoint,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: temperature,
			Timeout:     c.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", c.Provider)
	}
}

func loadLLMConfig(v *viper.Viper) (LLMConfig, error) {
	provider := strings.ToLower(getString(v, "LLM_PROVIDER"))
	if provider != ProviderOpenAI && provider != ProviderArk {
		return LLMConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloat(v, "LLM_TEMPERATURE")
	if err != nil {
		return LLMConfig{}, err
	}

	maxTokens, err := parseOptionalInt(v, "LLM_MAX_TOKENS")
	if err != nil {
		return LLMConfig{}, err
	}

	timeout, err := parseDuration(v, "LLM_TIMEOUT")
	if err != nil {
		return LLMConfig{}, err
	}

	endpoint := getString(v, "LLM_ENDPOINT")
	if endpoint == "" {
		endpoint = defaultEndpoints[provider]
	}

	return LLMConfig{
		Provider:    provider,
		Model:       getString(v, "LLM_MODEL"),
		Endpoint:    endpoint,
		Token:       getString(v, "LLM_TOKEN"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
		AccessKey:   getString(v, "ARK_ACCESS_KEY"),
		SecretKey:   getString(v, "ARK_SECRET_KEY"),
		Region:      getString(v, "ARK_REGION"),
	}, nil
}

// Supported document store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Driver string
	DSN    string
}

func loadStoreConfig(v *viper.Viper) (StoreConfig, error) {
	driver := strings.ToLower(getString(v, "STORE_DRIVER"))
	switch driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value %q", driver)
	}

	dsn := getString(v, "STORE_DSN")
	if dsn == "" {
		return StoreConfig{}, fmt.Errorf("STORE_DSN must not be empty")
	}
	return StoreConfig{Driver: driver, DSN: dsn}, nil
}

// CacheConfig describes the summary cache. An empty RedisAddr selects the
// in-process cache.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func loadCacheConfig(v *viper.Viper) (CacheConfig, error) {
	db, err := parseInt(v, "REDIS_DB")
	if err != nil {
		return CacheConfig{}, err
	}
	return CacheConfig{
		RedisAddr:     getString(v, "REDIS_ADDR"),
		RedisPassword: getString(v, "REDIS_PASSWORD"),
		RedisDB:       db,
	}, nil
}

// AuthConfig points at the identity provider project.
type AuthConfig struct {
	ProjectID  string
	APIKey     string
	AuthDomain string
}

// Enabled reports whether tokens can be verified.
func (c AuthConfig) Enabled() bool {
	return c.ProjectID != ""
}

// SummarizerConfig tunes chunking and caching of summaries.
type SummarizerConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	CacheTTL       time.Duration
	MapConcurrency int
	MaxUploadBytes int64
	// ComputeTimeout bounds one shared summarization, independent of callers.
	ComputeTimeout time.Duration
}

func loadSummarizerConfig(v *viper.Viper) (SummarizerConfig, error) {
	size, err := parseInt(v, "SUMMARY_CHUNK_SIZE")
	if err != nil {
		return SummarizerConfig{}, err
	}
	overlap, err := parseInt(v, "SUMMARY_CHUNK_OVERLAP")
	if err != nil {
		return SummarizerConfig{}, err
	}
	if size <= 0 {
		return SummarizerConfig{}, fmt.Errorf("invalid SUMMARY_CHUNK_SIZE value %d: must be positive", size)
	}
	if overlap < 0 || overlap >= size {
		return SummarizerConfig{}, fmt.Errorf("invalid SUMMARY_CHUNK_OVERLAP value %d: must be in [0, %d)", overlap, size)
	}

	ttl, err := parseDuration(v, "SUMMARY_CACHE_TTL")
	if err != nil {
		return SummarizerConfig{}, err
	}
	if ttl <= 0 {
		return SummarizerConfig{}, fmt.Errorf("invalid SUMMARY_CACHE_TTL value %s: must be positive", ttl)
	}

	concurrency, err := parseInt(v, "SUMMARY_MAP_CONCURRENCY")
	if err != nil {
		return SummarizerConfig{}, err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	maxUpload, err := parseInt(v, "SUMMARY_MAX_UPLOAD_BYTES")
	if err != nil {
		return SummarizerConfig{}, err
	}

	computeTimeout, err := parseDuration(v, "SUMMARY_COMPUTE_TIMEOUT")
	if err != nil {
		return SummarizerConfig{}, err
	}
	if computeTimeout <= 0 {
		return SummarizerConfig{}, fmt.Errorf("invalid SUMMARY_COMPUTE_TIMEOUT value %s: must be positive", computeTimeout)
	}

	return SummarizerConfig{
		ChunkSize:      size,
		ChunkOverlap:   overlap,
		CacheTTL:       ttl,
		MapConcurrency: concurrency,
		MaxUploadBytes: int64(maxUpload),
		ComputeTimeout: computeTimeout,
	}, nil
}

// ChatConfig tunes the conversational pipeline.
type ChatConfig struct {
	// HistoryLimit bounds the prior messages sent to the model; 0 sends all.
	HistoryLimit int
}

// CORSConfig lists allowed browser origins.
type CORSConfig struct {
	AllowOrigins []string
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(v *viper.Viper, key string) (int, error) {
	raw := getString(v, key)
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := getString(v, key)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloat(v *viper.Viper, key string) (*float64, error) {
	raw := getString(v, key)
	if raw == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

func parseOptionalInt(v *viper.Viper, key string) (*int, error) {
	raw := getString(v, key)
	if raw == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}
