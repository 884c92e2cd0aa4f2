package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

const (
	DefaultLLMProvider    = "openai"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultLLMBaseURL     = "https://api.openai.com/v1"
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultDetectTimeout bounds the charset detection a failed read falls
	// back to. The detect command uses the detector's own, shorter default.
	DefaultDetectTimeout = 30 * time.Second
	// DefaultDetectCacheSize is the per-process LRU size for detection results.
	DefaultDetectCacheSize = 128
	// DefaultHeadRows is how many data rows a dataset preview includes.
	DefaultHeadRows = 5
	// DefaultCellLengthThreshold caps each rendered sample value, in characters.
	DefaultCellLengthThreshold = 40
	// DefaultMaxDatasetCells caps how many sample values a column renders.
	DefaultMaxDatasetCells = 5
)

// RuntimeConfig captures user-configurable settings shared across binaries.
type RuntimeConfig struct {
	LLMProvider string
	LLMModel    string
	APIKey      string
	BaseURL     string

	EmbeddingModel   string
	EmbeddingBaseURL string
	EmbeddingAPIKey  string

	ScannerBaseURL        string
	ScannerAPIKey         string
	ScannerTimeoutSeconds int

	DetectTimeoutSeconds int
	DetectCacheSize      int
	HeadRows             int
	CellLengthThreshold  int
	MaxDatasetCells      int

	// SessionBackend selects session persistence: "file" or "postgres".
	SessionBackend string
	SessionDir     string
	PostgresDSN    string
	WorkspaceDir   string
	VectorDir      string

	Locale      string
	Environment string
	Verbose     bool
}

// DetectTimeout returns the charset detection deadline as a duration.
func (c RuntimeConfig) DetectTimeout() time.Duration {
	if c.DetectTimeoutSeconds <= 0 {
		return DefaultDetectTimeout
	}
	return time.Duration(c.DetectTimeoutSeconds) * time.Second
}

// ScannerTimeout returns the scanner request deadline as a duration.
func (c RuntimeConfig) ScannerTimeout() time.Duration {
	if c.ScannerTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ScannerTimeoutSeconds) * time.Second
}

// Metadata contains provenance details for loaded configuration.
type Metadata struct {
	sources  map[string]ValueSource
	loadedAt time.Time
}

// Source returns the origin for the given configuration field.
func (m Metadata) Source(field string) ValueSource {
	if m.sources == nil {
		return SourceDefault
	}
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// Overrides conveys caller-specified values that should win over env/file sources.
type Overrides struct {
	LLMProvider           *string
	LLMModel              *string
	APIKey                *string
	BaseURL               *string
	EmbeddingModel        *string
	EmbeddingBaseURL      *string
	EmbeddingAPIKey       *string
	ScannerBaseURL        *string
	ScannerAPIKey         *string
	ScannerTimeoutSeconds *int
	DetectTimeoutSeconds  *int
	DetectCacheSize       *int
	HeadRows              *int
	CellLengthThreshold   *int
	MaxDatasetCells       *int
	SessionBackend        *string
	SessionDir            *string
	PostgresDSN           *string
	WorkspaceDir          *string
	VectorDir             *string
	Locale                *string
	Environment           *string
	Verbose               *bool
}

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	overrides  Overrides
	configPath string
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithOverrides applies caller overrides that take highest precedence.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// WithConfigPath forces the loader to read configuration from a specific file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = path
	}
}

// WithFileReader injects a custom reader, used primarily for tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		o.readFile = reader
	}
}

// WithHomeDir overrides how the loader resolves the user's home directory.
func WithHomeDir(resolver func() (string, error)) Option {
	return func(o *loadOptions) {
		o.homeDir = resolver
	}
}

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Load constructs the runtime configuration by merging defaults, file, env and overrides.
func Load(opts ...Option) (RuntimeConfig, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}

	cfg := RuntimeConfig{
		LLMProvider:           DefaultLLMProvider,
		LLMModel:              DefaultLLMModel,
		BaseURL:               DefaultLLMBaseURL,
		EmbeddingModel:        DefaultEmbeddingModel,
		ScannerTimeoutSeconds: 10,
		DetectTimeoutSeconds:  int(DefaultDetectTimeout.Seconds()),
		DetectCacheSize:       DefaultDetectCacheSize,
		HeadRows:              DefaultHeadRows,
		CellLengthThreshold:   DefaultCellLengthThreshold,
		MaxDatasetCells:       DefaultMaxDatasetCells,
		SessionBackend:        "file",
		SessionDir:            "~/.tabula-sessions",
		WorkspaceDir:          "~/.tabula-workspace",
		VectorDir:             "~/.tabula-vectors",
		Locale:                "en",
		Environment:           "development",
	}

	// Load from config file if present.
	if err := applyFile(&cfg, &meta, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}

	// Apply environment overrides next.
	if err := applyEnv(&cfg, &meta, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}

	// Apply caller overrides last.
	applyOverrides(&cfg, &meta, options.overrides)

	normalizeRuntimeConfig(&cfg)

	// If API key remains unset, default to mock provider so the CLI stays usable.
	if cfg.APIKey == "" && cfg.LLMProvider != "mock" {
		cfg.LLMProvider = "mock"
		meta.sources["llm_provider"] = SourceDefault
	}

	return cfg, meta, nil
}

func applyEnv(cfg *RuntimeConfig, meta *Metadata, opts loadOptions) error {
	lookup := opts.envLookup
	if lookup == nil {
		lookup = DefaultEnvLookup
	}

	if value, ok := lookup("TABULA_API_KEY"); ok && value != "" {
		cfg.APIKey = value
		meta.sources["api_key"] = SourceEnv
	} else if value, ok := lookup("OPENAI_API_KEY"); ok && value != "" {
		cfg.APIKey = value
		meta.sources["api_key"] = SourceEnv
	}
	if value, ok := lookup("TABULA_LLM_PROVIDER"); ok && value != "" {
		cfg.LLMProvider = value
		meta.sources["llm_provider"] = SourceEnv
	}
	if value, ok := lookup("TABULA_LLM_MODEL"); ok && value != "" {
		cfg.LLMModel = value
		meta.sources["llm_model"] = SourceEnv
	}
	if value, ok := lookup("TABULA_BASE_URL"); ok && value != "" {
		cfg.BaseURL = value
		meta.sources["base_url"] = SourceEnv
	}
	if value, ok := lookup("TABULA_EMBEDDING_MODEL"); ok && value != "" {
		cfg.EmbeddingModel = value
		meta.sources["embedding_model"] = SourceEnv
	}
	if value, ok := lookup("TABULA_EMBEDDING_BASE_URL"); ok && value != "" {
		cfg.EmbeddingBaseURL = value
		meta.sources["embedding_base_url"] = SourceEnv
	}
	if value, ok := lookup("TABULA_EMBEDDING_API_KEY"); ok && value != "" {
		cfg.EmbeddingAPIKey = value
		meta.sources["embedding_api_key"] = SourceEnv
	}
	if value, ok := lookup("TABULA_SCANNER_BASE_URL"); ok && value != "" {
		cfg.ScannerBaseURL = value
		meta.sources["scanner_base_url"] = SourceEnv
	}
	if value, ok := lookup("TABULA_SCANNER_API_KEY"); ok && value != "" {
		cfg.ScannerAPIKey = value
		meta.sources["scanner_api_key"] = SourceEnv
	}
	if value, ok := lookup("TABULA_SCANNER_TIMEOUT_SECONDS"); ok && value != "" {
		parsed, err := parseIntEnv(value)
		if err != nil {
			return fmt.Errorf("parse TABULA_SCANNER_TIMEOUT_SECONDS: %w", err)
		}
		cfg.ScannerTimeoutSeconds = parsed
		meta.sources["scanner_timeout_seconds"] = SourceEnv
	}
	if value, ok := lookup("TABULA_DETECT_TIMEOUT_SECONDS"); ok && value != "" {
		parsed, err := parseIntEnv(value)
		if err != nil {
			return fmt.Errorf("parse TABULA_DETECT_TIMEOUT_SECONDS: %w", err)
		}
		cfg.DetectTimeoutSeconds = parsed
		meta.sources["detect_timeout_seconds"] = SourceEnv
	}
	if value, ok := lookup("TABULA_DETECT_CACHE_SIZE"); ok && value != "" {
		parsed, err := parseIntEnv(value)
		if err != nil {
			return fmt.Errorf("parse TABULA_DETECT_CACHE_SIZE: %w", err)
		}
		cfg.DetectCacheSize = parsed
		meta.sources["detect_cache_size"] = SourceEnv
	}
	if value, ok := lookup("TABULA_HEAD_ROWS"); ok && value != "" {
		parsed, err := parseIntEnv(value)
		if err != nil {
			return fmt.Errorf("parse TABULA_HEAD_ROWS: %w", err)
		}
		cfg.HeadRows = parsed
		meta.sources["head_rows"] = SourceEnv
	}
	if value, ok := lookup("TABULA_SESSION_BACKEND"); ok && value != "" {
		cfg.SessionBackend = value
		meta.sources["session_backend"] = SourceEnv
	}
	if value, ok := lookup("TABULA_SESSION_DIR"); ok && value != "" {
		cfg.SessionDir = value
		meta.sources["session_dir"] = SourceEnv
	}
	if value, ok := lookup("TABULA_POSTGRES_DSN"); ok && value != "" {
		cfg.PostgresDSN = value
		meta.sources["postgres_dsn"] = SourceEnv
	} else if value, ok := lookup("DATABASE_URL"); ok && value != "" {
		cfg.PostgresDSN = value
		meta.sources["postgres_dsn"] = SourceEnv
	}
	if value, ok := lookup("TABULA_WORKSPACE_DIR"); ok && value != "" {
		cfg.WorkspaceDir = value
		meta.sources["workspace_dir"] = SourceEnv
	}
	if value, ok := lookup("TABULA_VECTOR_DIR"); ok && value != "" {
		cfg.VectorDir = value
		meta.sources["vector_dir"] = SourceEnv
	}
	if value, ok := lookup("TABULA_LOCALE"); ok && value != "" {
		cfg.Locale = value
		meta.sources["locale"] = SourceEnv
	}
	if value, ok := lookup("TABULA_ENV"); ok && value != "" {
		cfg.Environment = value
		meta.sources["environment"] = SourceEnv
	}
	if value, ok := lookup("TABULA_VERBOSE"); ok && value != "" {
		parsed, err := parseBoolEnv(value)
		if err != nil {
			return fmt.Errorf("parse TABULA_VERBOSE: %w", err)
		}
		cfg.Verbose = parsed
		meta.sources["verbose"] = SourceEnv
	}

	return nil
}

func applyOverrides(cfg *RuntimeConfig, meta *Metadata, overrides Overrides) {
	setString := func(field string, dst *string, src *string) {
		if src == nil || *src == "" {
			return
		}
		*dst = *src
		meta.sources[field] = SourceOverride
	}
	setInt := func(field string, dst *int, src *int) {
		if src == nil {
			return
		}
		*dst = *src
		meta.sources[field] = SourceOverride
	}

	setString("llm_provider", &cfg.LLMProvider, overrides.LLMProvider)
	setString("llm_model", &cfg.LLMModel, overrides.LLMModel)
	setString("api_key", &cfg.APIKey, overrides.APIKey)
	setString("base_url", &cfg.BaseURL, overrides.BaseURL)
	setString("embedding_model", &cfg.EmbeddingModel, overrides.EmbeddingModel)
	setString("embedding_base_url", &cfg.EmbeddingBaseURL, overrides.EmbeddingBaseURL)
	setString("embedding_api_key", &cfg.EmbeddingAPIKey, overrides.EmbeddingAPIKey)
	setString("scanner_base_url", &cfg.ScannerBaseURL, overrides.ScannerBaseURL)
	setString("scanner_api_key", &cfg.ScannerAPIKey, overrides.ScannerAPIKey)
	setInt("scanner_timeout_seconds", &cfg.ScannerTimeoutSeconds, overrides.ScannerTimeoutSeconds)
	setInt("detect_timeout_seconds", &cfg.DetectTimeoutSeconds, overrides.DetectTimeoutSeconds)
	setInt("detect_cache_size", &cfg.DetectCacheSize, overrides.DetectCacheSize)
	setInt("head_rows", &cfg.HeadRows, overrides.HeadRows)
	setInt("cell_length_threshold", &cfg.CellLengthThreshold, overrides.CellLengthThreshold)
	setInt("max_dataset_cells", &cfg.MaxDatasetCells, overrides.MaxDatasetCells)
	setString("session_backend", &cfg.SessionBackend, overrides.SessionBackend)
	setString("session_dir", &cfg.SessionDir, overrides.SessionDir)
	setString("postgres_dsn", &cfg.PostgresDSN, overrides.PostgresDSN)
	setString("workspace_dir", &cfg.WorkspaceDir, overrides.WorkspaceDir)
	setString("vector_dir", &cfg.VectorDir, overrides.VectorDir)
	setString("locale", &cfg.Locale, overrides.Locale)
	setString("environment", &cfg.Environment, overrides.Environment)

	if overrides.Verbose != nil {
		cfg.Verbose = *overrides.Verbose
		meta.sources["verbose"] = SourceOverride
	}
}

func normalizeRuntimeConfig(cfg *RuntimeConfig) {
	cfg.LLMProvider = strings.TrimSpace(cfg.LLMProvider)
	cfg.LLMModel = strings.TrimSpace(cfg.LLMModel)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.EmbeddingModel = strings.TrimSpace(cfg.EmbeddingModel)
	cfg.EmbeddingBaseURL = strings.TrimSpace(cfg.EmbeddingBaseURL)
	cfg.EmbeddingAPIKey = strings.TrimSpace(cfg.EmbeddingAPIKey)
	cfg.ScannerBaseURL = strings.TrimSpace(cfg.ScannerBaseURL)
	cfg.ScannerAPIKey = strings.TrimSpace(cfg.ScannerAPIKey)
	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))
	cfg.SessionDir = strings.TrimSpace(cfg.SessionDir)
	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	cfg.WorkspaceDir = strings.TrimSpace(cfg.WorkspaceDir)
	cfg.VectorDir = strings.TrimSpace(cfg.VectorDir)
	cfg.Locale = strings.TrimSpace(cfg.Locale)
	cfg.Environment = strings.TrimSpace(cfg.Environment)

	// Embeddings reuse the chat credentials unless configured separately.
	if cfg.EmbeddingBaseURL == "" {
		cfg.EmbeddingBaseURL = cfg.BaseURL
	}
	if cfg.EmbeddingAPIKey == "" {
		cfg.EmbeddingAPIKey = cfg.APIKey
	}

	if cfg.SessionBackend == "" {
		cfg.SessionBackend = "file"
	}

	if cfg.DetectTimeoutSeconds <= 0 {
		cfg.DetectTimeoutSeconds = int(DefaultDetectTimeout.Seconds())
	}
	if cfg.DetectCacheSize < 0 {
		cfg.DetectCacheSize = 0
	}
	if cfg.HeadRows <= 0 {
		cfg.HeadRows = DefaultHeadRows
	}
	if cfg.CellLengthThreshold <= 0 {
		cfg.CellLengthThreshold = DefaultCellLengthThreshold
	}
	if cfg.MaxDatasetCells <= 0 {
		cfg.MaxDatasetCells = DefaultMaxDatasetCells
	}
}

func parseBoolEnv(value string) (bool, error) {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, err
	}
	return parsed, nil
}

func parseIntEnv(value string) (int, error) {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	return parsed, nil
}
