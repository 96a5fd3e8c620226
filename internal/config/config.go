package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/a-marczewski/huntdedup/internal/similarity"
	"github.com/a-marczewski/huntdedup/internal/ttp"
)

const (
	DefaultSimilarityThreshold = 0.7
	DefaultReportTopN          = 3
	DefaultTTPThreshold        = ttp.DefaultThreshold
	DefaultMaxAttempts         = 5
	DefaultSeedLimit           = 10
	DefaultLLMBaseURL          = "http://localhost:11434/v1"
	DefaultLLMMaxRetries       = 3
	DefaultLLMTimeoutSeconds   = 60
	DefaultCacheTTLSeconds     = 3600
)

// Config holds the application configuration
type Config struct {
	SimilarityThreshold float64
	SimilarityWeights   similarity.Weights
	ReportTopN          int
	TTPThreshold        float64
	TTPWeights          ttp.Weights
	MaxAttempts         int
	SeedLimit           int
	CorpusPath          string
	LLMProvider         string
	LLMBaseURL          string
	LLMAPIKey           string
	LLMModel            string
	LLMMaxRetries       int
	LLMTimeoutSeconds   int
	CacheEnabled        bool
	CacheTTLSeconds     int
	LogLevel            string
	LogFile             string
	DBPath              string
	MetricsEndpoint     string
	ConfigPath          string
	HuntDedupDir        string
	ProjectRoot         string
}

type fileConfig struct {
	Similarity struct {
		Threshold  *float64           `toml:"threshold"`
		Weights    similarity.Weights `toml:"weights"`
		ReportTopN int                `toml:"report_top_n"`
	} `toml:"similarity"`
	TTP struct {
		Threshold *float64    `toml:"threshold"`
		Weights   ttp.Weights `toml:"weights"`
	} `toml:"ttp"`
	Generation struct {
		MaxAttempts int  `toml:"max_attempts"`
		SeedLimit   *int `toml:"seed_limit"`
	} `toml:"generation"`
	Corpus struct {
		Path string `toml:"path"`
	} `toml:"corpus"`
	LLM struct {
		Provider       string `toml:"provider"`
		BaseURL        string `toml:"base_url"`
		APIKey         string `toml:"api_key"`
		Model          string `toml:"model"`
		MaxRetries     *int   `toml:"max_retries"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
	} `toml:"llm"`
	Cache struct {
		Enabled    *bool `toml:"enabled"`
		TTLSeconds int   `toml:"ttl_seconds"`
	} `toml:"cache"`
	Logging struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"logging"`
	Storage struct {
		DBPath string `toml:"db_path"`
	} `toml:"storage"`
	Metrics struct {
		Endpoint string `toml:"endpoint"`
	} `toml:"metrics"`
}

// LoadConfig loads configuration for the project containing the working
// directory.
func LoadConfig() (*Config, error) {
	projectRoot, err := FindProjectRoot()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(projectRoot)
}

// LoadConfigFrom loads configuration from file, environment variables, and
// defaults for the given project root.
func LoadConfigFrom(projectRoot string) (*Config, error) {
	huntDedupDir := GetHuntDedupDir(projectRoot)
	configPath := filepath.Join(huntDedupDir, "config.toml")

	if err := EnsureHuntDedupDirs(huntDedupDir); err != nil {
		return nil, err
	}

	cfg := &Config{
		SimilarityThreshold: DefaultSimilarityThreshold,
		SimilarityWeights:   similarity.DefaultWeights(),
		ReportTopN:          DefaultReportTopN,
		TTPThreshold:        DefaultTTPThreshold,
		TTPWeights:          ttp.DefaultWeights(),
		MaxAttempts:         DefaultMaxAttempts,
		SeedLimit:           DefaultSeedLimit,
		LLMBaseURL:          DefaultLLMBaseURL,
		LLMMaxRetries:       DefaultLLMMaxRetries,
		LLMTimeoutSeconds:   DefaultLLMTimeoutSeconds,
		CacheEnabled:        true,
		CacheTTLSeconds:     DefaultCacheTTLSeconds,
		LogLevel:            "info",
		LogFile:             filepath.Join(huntDedupDir, "logs", "huntdedup.log"),
		DBPath:              filepath.Join(huntDedupDir, "store.sqlite3"),
		ConfigPath:          configPath,
		HuntDedupDir:        huntDedupDir,
		ProjectRoot:         projectRoot,
	}

	if _, err := os.Stat(configPath); err == nil {
		fileData, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		var parsed fileConfig
		if err := toml.Unmarshal(fileData, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}

		if parsed.Similarity.Threshold != nil {
			cfg.SimilarityThreshold = *parsed.Similarity.Threshold
		}
		if parsed.Similarity.Weights != (similarity.Weights{}) {
			cfg.SimilarityWeights = parsed.Similarity.Weights
		}
		if parsed.Similarity.ReportTopN > 0 {
			cfg.ReportTopN = parsed.Similarity.ReportTopN
		}
		if parsed.TTP.Threshold != nil {
			cfg.TTPThreshold = *parsed.TTP.Threshold
		}
		if parsed.TTP.Weights != (ttp.Weights{}) {
			cfg.TTPWeights = parsed.TTP.Weights
		}
		if parsed.Generation.MaxAttempts > 0 {
			cfg.MaxAttempts = parsed.Generation.MaxAttempts
		}
		if parsed.Generation.SeedLimit != nil {
			cfg.SeedLimit = *parsed.Generation.SeedLimit
		}
		if parsed.Corpus.Path != "" {
			cfg.CorpusPath = parsed.Corpus.Path
		}
		if parsed.LLM.Provider != "" {
			cfg.LLMProvider = parsed.LLM.Provider
		}
		if parsed.LLM.BaseURL != "" {
			cfg.LLMBaseURL = parsed.LLM.BaseURL
		}
		if parsed.LLM.APIKey != "" {
			cfg.LLMAPIKey = parsed.LLM.APIKey
		}
		if parsed.LLM.Model != "" {
			cfg.LLMModel = parsed.LLM.Model
		}
		if parsed.LLM.MaxRetries != nil {
			cfg.LLMMaxRetries = *parsed.LLM.MaxRetries
		}
		if parsed.LLM.TimeoutSeconds > 0 {
			cfg.LLMTimeoutSeconds = parsed.LLM.TimeoutSeconds
		}
		if parsed.Cache.Enabled != nil {
			cfg.CacheEnabled = *parsed.Cache.Enabled
		}
		if parsed.Cache.TTLSeconds > 0 {
			cfg.CacheTTLSeconds = parsed.Cache.TTLSeconds
		}
		if parsed.Logging.Level != "" {
			cfg.LogLevel = parsed.Logging.Level
		}
		if parsed.Logging.File != "" {
			cfg.LogFile = parsed.Logging.File
		}
		if parsed.Storage.DBPath != "" {
			cfg.DBPath = parsed.Storage.DBPath
		}
		if parsed.Metrics.Endpoint != "" {
			cfg.MetricsEndpoint = parsed.Metrics.Endpoint
		}
	}

	// Apply environment variable overrides
	if threshold := os.Getenv("HUNTDEDUP_SIMILARITY_THRESHOLD"); threshold != "" {
		if v, err := strconv.ParseFloat(threshold, 64); err == nil {
			cfg.SimilarityThreshold = v
		}
	}
	if threshold := os.Getenv("HUNTDEDUP_TTP_THRESHOLD"); threshold != "" {
		if v, err := strconv.ParseFloat(threshold, 64); err == nil {
			cfg.TTPThreshold = v
		}
	}
	if maxAttempts := os.Getenv("HUNTDEDUP_MAX_ATTEMPTS"); maxAttempts != "" {
		if v, err := strconv.Atoi(maxAttempts); err == nil {
			cfg.MaxAttempts = v
		}
	}
	if seedLimit := os.Getenv("HUNTDEDUP_SEED_LIMIT"); seedLimit != "" {
		if v, err := strconv.Atoi(seedLimit); err == nil {
			cfg.SeedLimit = v
		}
	}
	if corpus := os.Getenv("HUNTDEDUP_CORPUS"); corpus != "" {
		cfg.CorpusPath = corpus
	}
	if provider := os.Getenv("HUNTDEDUP_LLM_PROVIDER"); provider != "" {
		cfg.LLMProvider = provider
	}
	if baseURL := os.Getenv("HUNTDEDUP_LLM_BASE_URL"); baseURL != "" {
		cfg.LLMBaseURL = baseURL
	}
	if apiKey := os.Getenv("HUNTDEDUP_LLM_API_KEY"); apiKey != "" {
		cfg.LLMAPIKey = apiKey
	}
	if llmModel := os.Getenv("HUNTDEDUP_LLM_MODEL"); llmModel != "" {
		cfg.LLMModel = llmModel
	}
	if retries := os.Getenv("HUNTDEDUP_LLM_MAX_RETRIES"); retries != "" {
		if v, err := strconv.Atoi(retries); err == nil {
			cfg.LLMMaxRetries = v
		}
	}
	if timeout := os.Getenv("HUNTDEDUP_LLM_TIMEOUT_SECONDS"); timeout != "" {
		if v, err := strconv.Atoi(timeout); err == nil {
			cfg.LLMTimeoutSeconds = v
		}
	}
	if cacheEnabled := os.Getenv("HUNTDEDUP_CACHE_ENABLED"); cacheEnabled != "" {
		cfg.CacheEnabled = cacheEnabled == "true" || cacheEnabled == "1"
	}
	if ttl := os.Getenv("HUNTDEDUP_CACHE_TTL_SECONDS"); ttl != "" {
		if v, err := strconv.Atoi(ttl); err == nil {
			cfg.CacheTTLSeconds = v
		}
	}
	if level := os.Getenv("HUNTDEDUP_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if logFile := os.Getenv("HUNTDEDUP_LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}
	if dbPath := os.Getenv("HUNTDEDUP_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if endpoint := os.Getenv("HUNTDEDUP_METRICS_ENDPOINT"); endpoint != "" {
		cfg.MetricsEndpoint = endpoint
	}

	cfg.LLMBaseURL = normalizeBaseURL(cfg.LLMBaseURL)
	if cfg.CorpusPath != "" && !filepath.IsAbs(cfg.CorpusPath) {
		cfg.CorpusPath = filepath.Join(projectRoot, cfg.CorpusPath)
	}

	return cfg, nil
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return baseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// Context key for storing config in context
type configContextKey struct{}

// WithConfig adds the config to the context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey{}, cfg)
}

// FromContext retrieves the config from the context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configContextKey{}).(*Config); ok {
		return cfg
	}
	return nil
}

// Validate verifies the configuration is usable.
func (c *Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be between 0 and 1")
	}
	if c.TTPThreshold < 0 || c.TTPThreshold > 1 {
		return fmt.Errorf("TTP threshold must be between 0 and 1")
	}
	if err := c.SimilarityWeights.Validate(); err != nil {
		return fmt.Errorf("similarity weights: %w", err)
	}
	if err := c.TTPWeights.Validate(); err != nil {
		return fmt.Errorf("TTP weights: %w", err)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.SeedLimit < 0 {
		return fmt.Errorf("seed limit cannot be negative")
	}
	if c.ReportTopN <= 0 {
		return fmt.Errorf("report top N must be positive")
	}
	if strings.TrimSpace(c.LLMBaseURL) == "" {
		return fmt.Errorf("LLM base URL is empty")
	}
	if c.LLMMaxRetries < 0 {
		return fmt.Errorf("LLM max retries cannot be negative")
	}
	if c.LLMTimeoutSeconds <= 0 {
		return fmt.Errorf("LLM timeout must be positive")
	}
	if c.CacheTTLSeconds <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	return nil
}
