package safety

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taberrors "tabula/internal/errors"
)

func fastRetry(attempts int) taberrors.RetryConfig {
	return taberrors.RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestClientScanCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scan", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"is_insecure": true, "recommended_treatment": "block", "issues_found": [{"description": "bad", "severity": "critical", "line": 2}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "test-key", Retry: fastRetry(1)})
	verdict, err := client.ScanCode(context.Background(), "code")
	require.NoError(t, err)

	assert.True(t, verdict.Insecure)
	assert.Equal(t, TreatmentBlock, verdict.Treatment)
	require.Len(t, verdict.Issues, 1)
	assert.Equal(t, 2, verdict.Issues[0].Line)
}

func TestClientRepairsSloppyJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{'is_insecure': true, 'recommended_treatment': 'warn', 'issues_found': [],}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Retry: fastRetry(1)})
	verdict, err := client.ScanCode(context.Background(), "code")
	require.NoError(t, err)
	assert.True(t, verdict.Insecure)
	assert.Equal(t, TreatmentWarn, verdict.Treatment)
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"is_insecure": false}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Retry: fastRetry(3)})
	verdict, err := client.ScanCode(context.Background(), "code")
	require.NoError(t, err)
	assert.False(t, verdict.Insecure)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryPermanentFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Retry: fastRetry(3)})
	_, err := client.ScanCode(context.Background(), "code")
	require.Error(t, err)
	assert.False(t, taberrors.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientCircuitBreakerShedsLoad(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		BaseURL: server.URL,
		Retry:   fastRetry(1),
		Breaker: taberrors.CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute},
	})

	_, err := client.ScanCode(context.Background(), "code")
	require.Error(t, err)
	attempted := calls.Load()
	require.Greater(t, attempted, int32(0))

	_, err = client.ScanCode(context.Background(), "code")
	require.Error(t, err)
	assert.True(t, taberrors.IsCircuitOpen(err))
	assert.Equal(t, attempted, calls.Load(), "open circuit must not hit the scanner")
}
