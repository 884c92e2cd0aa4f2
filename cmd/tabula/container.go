package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"tabula/internal/agent"
	"tabula/internal/config"
	"tabula/internal/dataset"
	"tabula/internal/llm"
	"tabula/internal/observability"
	"tabula/internal/retriever"
	"tabula/internal/safety"
	"tabula/internal/session"
	"tabula/internal/session/filestore"
	"tabula/internal/session/postgresstore"
)

// Container holds the collaborators every command needs: configuration,
// logging, metrics, tracing and the file-ingestion pipeline.
type Container struct {
	Runtime  config.RuntimeConfig
	Meta     config.Metadata
	Logger   *observability.Logger
	Metrics  *observability.MetricsCollector
	Tracer   *observability.TracerProvider
	Detector *dataset.Detector
	Reader   *dataset.Reader
}

func buildContainer(flags *rootFlags) (*Container, error) {
	opts := []config.Option{}
	if flags.configPath != "" {
		opts = append(opts, config.WithConfigPath(flags.configPath))
	}
	overrides := config.Overrides{}
	if flags.provider != "" {
		overrides.LLMProvider = &flags.provider
	}
	if flags.model != "" {
		overrides.LLMModel = &flags.model
	}
	if flags.locale != "" {
		overrides.Locale = &flags.locale
	}
	if flags.verbose {
		verbose := true
		overrides.Verbose = &verbose
	}
	opts = append(opts, config.WithOverrides(overrides))

	cfg, meta, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	obsCfg, err := observability.LoadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load observability config: %w", err)
	}
	if cfg.Verbose {
		obsCfg.Logging.Level = "debug"
	}

	// Command output goes to stdout; logs stay on stderr.
	logger := observability.NewLogger(observability.LogConfig{
		Level:  obsCfg.Logging.Level,
		Format: obsCfg.Logging.Format,
		Output: os.Stderr,
	})
	logger.Debug("Runtime configured",
		"provider", cfg.LLMProvider,
		"model", cfg.LLMModel,
		"api_key", observability.SanitizeAPIKey(cfg.APIKey),
		"api_key_source", string(meta.Source("api_key")),
		"session_backend", cfg.SessionBackend)

	metrics, err := observability.NewMetricsCollector(obsCfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	tracer, err := observability.NewTracerProvider(obsCfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	detector := dataset.NewDetector(
		dataset.WithDetectCacheSize(cfg.DetectCacheSize),
		dataset.WithDetectMetrics(metrics),
	)

	return &Container{
		Runtime:  cfg,
		Meta:     meta,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
		Detector: detector,
		Reader:   dataset.NewReader(detector, dataset.WithRetryDetectTimeout(cfg.DetectTimeout())),
	}, nil
}

// Cleanup flushes spans and stops the metrics endpoint.
func (c *Container) Cleanup() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Tracer.Shutdown(ctx); err != nil {
		return err
	}
	return c.Metrics.Shutdown(ctx)
}

// AgentRuntime is the conversational stack behind the turn command.
type AgentRuntime struct {
	Runner *session.Runner
	Store  session.Store

	closeStore func()
}

// Close releases the session store.
func (r *AgentRuntime) Close() {
	if r.closeStore != nil {
		r.closeStore()
	}
}

// openSessionStore picks the store implementation configured by the session
// backend setting.
func openSessionStore(ctx context.Context, cfg config.RuntimeConfig) (session.Store, func(), error) {
	switch cfg.SessionBackend {
	case "", "file":
		return filestore.New(cfg.SessionDir), func() {}, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("postgres session backend requires a DSN (set TABULA_POSTGRES_DSN or session.postgres_dsn)")
		}
		store, err := postgresstore.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend: %s", cfg.SessionBackend)
	}
}

// buildAgentRuntime assembles the chat model, the column retriever, the
// optional code scanner and the session store into a turn runner.
func buildAgentRuntime(ctx context.Context, c *Container, maxHistoryTokens int) (*AgentRuntime, error) {
	cfg := c.Runtime

	model, err := llm.NewChatModel(llm.Config{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
	}, c.Metrics)
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}

	var embedder retriever.Embedder
	if cfg.EmbeddingAPIKey == "" || cfg.LLMProvider == "mock" {
		embedder = retriever.NewMockEmbedder(0)
	} else {
		embedder, err = retriever.NewEmbedder(retriever.EmbedderConfig{
			Model:   cfg.EmbeddingModel,
			APIKey:  cfg.EmbeddingAPIKey,
			BaseURL: cfg.EmbeddingBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
	}

	store, err := retriever.NewVectorStore(retriever.StoreConfig{
		PersistPath: config.ExpandHome(cfg.VectorDir),
	}, embedder)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	columns := retriever.NewService(retriever.ServiceConfig{
		CellLengthThreshold: cfg.CellLengthThreshold,
		MaxDatasetCells:     cfg.MaxDatasetCells,
	}, store)

	var scanner *safety.Adapter
	if cfg.ScannerBaseURL != "" {
		scanner = safety.NewAdapter(safety.NewClient(safety.ClientConfig{
			BaseURL: cfg.ScannerBaseURL,
			APIKey:  cfg.ScannerAPIKey,
			Timeout: cfg.ScannerTimeout(),
		}))
	}

	ag, err := agent.New(ctx, agent.Config{
		FileReading: agent.FileReadingConfig{
			HeadRows: cfg.HeadRows,
			Workdir:  config.ExpandHome(cfg.WorkspaceDir),
		},
		DataAnalysis: agent.DataAnalysisConfig{
			MaxHistoryTokens: maxHistoryTokens,
			Locale:           cfg.Locale,
		},
	}, agent.Deps{
		Model:     model,
		Reader:    c.Reader,
		Retriever: columns,
		Safety:    scanner,
		Metrics:   c.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build agent: %w", err)
	}

	sessions, closeStore, err := openSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	runner := session.NewRunner(ag, sessions, c.Metrics).WithTracer(c.Tracer)
	return &AgentRuntime{
		Runner:     runner,
		Store:      sessions,
		closeStore: closeStore,
	}, nil
}
