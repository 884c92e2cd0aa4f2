package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig captures the on-disk YAML configuration sections.
type FileConfig struct {
	LLM       *LLMFileConfig       `yaml:"llm"`
	Embedding *EmbeddingFileConfig `yaml:"embedding"`
	Scanner   *ScannerFileConfig   `yaml:"scanner"`
	Dataset   *DatasetFileConfig   `yaml:"dataset"`
	Retriever *RetrieverFileConfig `yaml:"retriever"`
	Session   *SessionFileConfig   `yaml:"session"`
	Runtime   *RuntimeFileConfig   `yaml:"runtime"`
}

// LLMFileConfig captures chat model settings in YAML.
type LLMFileConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// EmbeddingFileConfig captures embedding model settings in YAML.
type EmbeddingFileConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// ScannerFileConfig captures code scanner settings in YAML.
type ScannerFileConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds *int   `yaml:"timeout_seconds"`
}

// DatasetFileConfig captures file ingestion settings in YAML.
type DatasetFileConfig struct {
	DetectTimeoutSeconds *int   `yaml:"detect_timeout_seconds"`
	DetectCacheSize      *int   `yaml:"detect_cache_size"`
	HeadRows             *int   `yaml:"head_rows"`
	CellLengthThreshold  *int   `yaml:"cell_length_threshold"`
	MaxDatasetCells      *int   `yaml:"max_dataset_cells"`
	WorkspaceDir         string `yaml:"workspace_dir"`
}

// RetrieverFileConfig captures column retrieval settings in YAML.
type RetrieverFileConfig struct {
	VectorDir string `yaml:"vector_dir"`
}

// SessionFileConfig captures session persistence settings in YAML.
type SessionFileConfig struct {
	Backend     string `yaml:"backend"`
	Dir         string `yaml:"dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// RuntimeFileConfig captures process-wide settings in YAML.
type RuntimeFileConfig struct {
	Locale      string `yaml:"locale"`
	Environment string `yaml:"environment"`
	Verbose     *bool  `yaml:"verbose"`
}

func applyFile(cfg *RuntimeConfig, meta *Metadata, opts loadOptions) error {
	configPath := opts.configPath
	if configPath == "" {
		home, err := opts.homeDir()
		if err != nil {
			return nil
		}
		configPath = filepath.Join(home, ".tabula.yaml")
	}

	data, err := opts.readFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var parsed FileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if section := parsed.LLM; section != nil {
		if section.Provider != "" {
			cfg.LLMProvider = section.Provider
			meta.sources["llm_provider"] = SourceFile
		}
		if section.Model != "" {
			cfg.LLMModel = section.Model
			meta.sources["llm_model"] = SourceFile
		}
		if section.APIKey != "" {
			cfg.APIKey = section.APIKey
			meta.sources["api_key"] = SourceFile
		}
		if section.BaseURL != "" {
			cfg.BaseURL = section.BaseURL
			meta.sources["base_url"] = SourceFile
		}
	}

	if section := parsed.Embedding; section != nil {
		if section.Model != "" {
			cfg.EmbeddingModel = section.Model
			meta.sources["embedding_model"] = SourceFile
		}
		if section.BaseURL != "" {
			cfg.EmbeddingBaseURL = section.BaseURL
			meta.sources["embedding_base_url"] = SourceFile
		}
		if section.APIKey != "" {
			cfg.EmbeddingAPIKey = section.APIKey
			meta.sources["embedding_api_key"] = SourceFile
		}
	}

	if section := parsed.Scanner; section != nil {
		if section.BaseURL != "" {
			cfg.ScannerBaseURL = section.BaseURL
			meta.sources["scanner_base_url"] = SourceFile
		}
		if section.APIKey != "" {
			cfg.ScannerAPIKey = section.APIKey
			meta.sources["scanner_api_key"] = SourceFile
		}
		if section.TimeoutSeconds != nil {
			cfg.ScannerTimeoutSeconds = *section.TimeoutSeconds
			meta.sources["scanner_timeout_seconds"] = SourceFile
		}
	}

	if section := parsed.Dataset; section != nil {
		if section.DetectTimeoutSeconds != nil {
			cfg.DetectTimeoutSeconds = *section.DetectTimeoutSeconds
			meta.sources["detect_timeout_seconds"] = SourceFile
		}
		if section.DetectCacheSize != nil {
			cfg.DetectCacheSize = *section.DetectCacheSize
			meta.sources["detect_cache_size"] = SourceFile
		}
		if section.HeadRows != nil {
			cfg.HeadRows = *section.HeadRows
			meta.sources["head_rows"] = SourceFile
		}
		if section.CellLengthThreshold != nil {
			cfg.CellLengthThreshold = *section.CellLengthThreshold
			meta.sources["cell_length_threshold"] = SourceFile
		}
		if section.MaxDatasetCells != nil {
			cfg.MaxDatasetCells = *section.MaxDatasetCells
			meta.sources["max_dataset_cells"] = SourceFile
		}
		if section.WorkspaceDir != "" {
			cfg.WorkspaceDir = section.WorkspaceDir
			meta.sources["workspace_dir"] = SourceFile
		}
	}

	if section := parsed.Retriever; section != nil {
		if section.VectorDir != "" {
			cfg.VectorDir = section.VectorDir
			meta.sources["vector_dir"] = SourceFile
		}
	}

	if section := parsed.Session; section != nil {
		if section.Backend != "" {
			cfg.SessionBackend = section.Backend
			meta.sources["session_backend"] = SourceFile
		}
		if section.Dir != "" {
			cfg.SessionDir = section.Dir
			meta.sources["session_dir"] = SourceFile
		}
		if section.PostgresDSN != "" {
			cfg.PostgresDSN = section.PostgresDSN
			meta.sources["postgres_dsn"] = SourceFile
		}
	}

	if section := parsed.Runtime; section != nil {
		if section.Locale != "" {
			cfg.Locale = section.Locale
			meta.sources["locale"] = SourceFile
		}
		if section.Environment != "" {
			cfg.Environment = section.Environment
			meta.sources["environment"] = SourceFile
		}
		if section.Verbose != nil {
			cfg.Verbose = *section.Verbose
			meta.sources["verbose"] = SourceFile
		}
	}

	return nil
}

// ExpandHome resolves a leading "~" in configured directories.
func ExpandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if len(path) > 1 && path[0] == '~' && (path[1] == '/' || path[1] == filepath.Separator) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
