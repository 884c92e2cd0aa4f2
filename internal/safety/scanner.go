package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kaptinlin/jsonrepair"

	taberrors "tabula/internal/errors"
	"tabula/internal/utils"
)

// Scanner judges code snippets for security issues.
type Scanner interface {
	ScanCode(ctx context.Context, code string) (*Verdict, error)
}

// ClientConfig holds scanner endpoint configuration.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // per-request, default 10s

	Retry   taberrors.RetryConfig          // zero value uses defaults
	Breaker taberrors.CircuitBreakerConfig // zero value uses defaults
}

// Client calls a remote scanning service. Failures are retried when
// transient; a run of failures opens a circuit breaker so a dead scanner
// stops costing a timeout per turn.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	breaker    *taberrors.CircuitBreaker
	logger     *utils.Logger
}

// NewClient creates a scanner client for the given endpoint.
func NewClient(config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = taberrors.DefaultRetryConfig()
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    taberrors.NewCircuitBreaker("security-scanner", config.Breaker),
		logger:     utils.NewComponentLogger("scanner-client"),
	}
}

// ScanCode submits code for scanning and returns the verdict.
func (c *Client) ScanCode(ctx context.Context, code string) (*Verdict, error) {
	return taberrors.ExecuteFunc(c.breaker, ctx, func(ctx context.Context) (*Verdict, error) {
		return taberrors.RetryWithResultAndLog(ctx, c.config.Retry, func(ctx context.Context) (*Verdict, error) {
			return c.scan(ctx, code)
		}, c.logger)
	})
}

func (c *Client) scan(ctx context.Context, code string) (*Verdict, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return nil, fmt.Errorf("marshal scan request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/scan", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scan request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read scan response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("scanner API error %d: %s", resp.StatusCode, string(raw))
		if taberrors.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, &taberrors.TransientError{Err: apiErr, StatusCode: resp.StatusCode}
		}
		return nil, &taberrors.PermanentError{Err: apiErr, StatusCode: resp.StatusCode}
	}

	verdict, err := decodeVerdict(raw)
	if err != nil {
		return nil, err
	}
	return verdict, nil
}

// decodeVerdict parses a verdict, repairing sloppy JSON before giving up.
func decodeVerdict(raw []byte) (*Verdict, error) {
	var verdict Verdict
	if err := json.Unmarshal(raw, &verdict); err == nil {
		return &verdict, nil
	}

	repaired, err := jsonrepair.JSONRepair(string(raw))
	if err != nil {
		return nil, fmt.Errorf("unparseable scan response: %s", string(raw))
	}
	if err := json.Unmarshal([]byte(repaired), &verdict); err != nil {
		return nil, fmt.Errorf("decode repaired scan response: %w", err)
	}
	return &verdict, nil
}
