package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"tabula/internal/utils"
)

// MetricsCollector holds every meter the pipeline reports to. The zero-value
// collector (metrics disabled) accepts all recordings as no-ops.
type MetricsCollector struct {
	meter metric.Meter

	// Ingestion metrics
	ingestFiles    metric.Int64Counter
	ingestDuration metric.Float64Histogram
	detections     metric.Int64Counter

	// LLM metrics
	llmRequests     metric.Int64Counter
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmLatency      metric.Float64Histogram

	// Orchestration metrics
	routedTurns    metric.Int64Counter
	scanVerdicts   metric.Int64Counter
	sessionsActive metric.Int64UpDownCounter

	prometheusServer *http.Server
	logger           *utils.Logger
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// NewMetricsCollector creates a collector and, when a port is configured,
// exposes /metrics for Prometheus scraping.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("tabula")

	ingestFiles, err := meter.Int64Counter(
		"tabula.ingest.files.total",
		metric.WithDescription("Tabular files read, by format and status"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest counter: %w", err)
	}

	ingestDuration, err := meter.Float64Histogram(
		"tabula.ingest.duration",
		metric.WithDescription("File read duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest histogram: %w", err)
	}

	detections, err := meter.Int64Counter(
		"tabula.encoding.detections.total",
		metric.WithDescription("Encoding detection runs, by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create detections counter: %w", err)
	}

	llmRequests, err := meter.Int64Counter(
		"tabula.llm.requests.total",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create llm_requests counter: %w", err)
	}

	llmTokensInput, err := meter.Int64Counter(
		"tabula.llm.tokens.input",
		metric.WithDescription("Total input tokens sent to the LLM"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create llm_tokens_input counter: %w", err)
	}

	llmTokensOutput, err := meter.Int64Counter(
		"tabula.llm.tokens.output",
		metric.WithDescription("Total output tokens from the LLM"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create llm_tokens_output counter: %w", err)
	}

	llmLatency, err := meter.Float64Histogram(
		"tabula.llm.latency",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create llm_latency histogram: %w", err)
	}

	routedTurns, err := meter.Int64Counter(
		"tabula.router.turns.total",
		metric.WithDescription("Turns routed, by workflow branch"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create routed_turns counter: %w", err)
	}

	scanVerdicts, err := meter.Int64Counter(
		"tabula.scan.verdicts.total",
		metric.WithDescription("Security scan outcomes"),
		metric.WithUnit("{scan}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create scan_verdicts counter: %w", err)
	}

	sessionsActive, err := meter.Int64UpDownCounter(
		"tabula.sessions.active",
		metric.WithDescription("Number of active sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sessions_active gauge: %w", err)
	}

	collector := &MetricsCollector{
		meter:           meter,
		ingestFiles:     ingestFiles,
		ingestDuration:  ingestDuration,
		detections:      detections,
		llmRequests:     llmRequests,
		llmTokensInput:  llmTokensInput,
		llmTokensOutput: llmTokensOutput,
		llmLatency:      llmLatency,
		routedTurns:     routedTurns,
		scanVerdicts:    scanVerdicts,
		sessionsActive:  sessionsActive,
		logger:          utils.NewComponentLogger("metrics"),
	}

	if config.PrometheusPort > 0 {
		if err := collector.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("start prometheus server: %w", err)
		}
	}
	return collector, nil
}

// StartPrometheusServer exposes /metrics on the given port.
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	m.prometheusServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		m.logger.Info("Prometheus metrics server listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Prometheus server error: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the scrape endpoint.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m.prometheusServer != nil {
		return m.prometheusServer.Shutdown(ctx)
	}
	return nil
}

// RecordIngest records one tabular file read.
func (m *MetricsCollector) RecordIngest(ctx context.Context, format, status string, duration time.Duration) {
	if m == nil || m.ingestFiles == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("format", format),
		attribute.String("status", status),
	}
	m.ingestFiles.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.ingestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("format", format)))
}

// RecordDetection records one encoding detection outcome.
func (m *MetricsCollector) RecordDetection(ctx context.Context, outcome string) {
	if m == nil || m.detections == nil {
		return
	}
	m.detections.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordLLMRequest records one model call.
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration, inputTokens, outputTokens int) {
	if m == nil || m.llmRequests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("status", status),
	}
	m.llmRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmTokensInput.Add(ctx, int64(inputTokens), metric.WithAttributes(attribute.String("model", model)))
	m.llmTokensOutput.Add(ctx, int64(outputTokens), metric.WithAttributes(attribute.String("model", model)))
	m.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRoutedTurn records which workflow branch a turn took.
func (m *MetricsCollector) RecordRoutedTurn(ctx context.Context, branch string) {
	if m == nil || m.routedTurns == nil {
		return
	}
	m.routedTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("branch", branch)))
}

// RecordScanVerdict records a security scan outcome.
func (m *MetricsCollector) RecordScanVerdict(ctx context.Context, outcome string) {
	if m == nil || m.scanVerdicts == nil {
		return
	}
	m.scanVerdicts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// IncrementActiveSessions bumps the active session gauge.
func (m *MetricsCollector) IncrementActiveSessions(ctx context.Context) {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Add(ctx, 1)
}

// DecrementActiveSessions lowers the active session gauge.
func (m *MetricsCollector) DecrementActiveSessions(ctx context.Context) {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Add(ctx, -1)
}
