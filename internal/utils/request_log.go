package utils

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	requestLogOnce    sync.Once
	requestLogQueue   chan requestLogWrite
	requestLogPending atomic.Int64
	requestLogDeduper sync.Map
)

const (
	requestLogEnvVar   = "TABULA_REQUEST_LOG_DIR"
	requestLogFileName = "llm.jsonl"
)

const (
	requestLogDedupeTTL = 5 * time.Minute
	requestLogQueueSize = 256
)

// LogChatRequestPayload persists a serialized chat request as a JSONL entry
// under the directory named by TABULA_REQUEST_LOG_DIR. Logging is off when
// the variable is unset. Within one run the request payload is recorded
// once, so retried attempts do not duplicate it.
func LogChatRequestPayload(runID, sessionID string, payload []byte) {
	logChatPayload(runID, sessionID, payload, "request")
}

// LogChatResponsePayload persists a serialized chat response next to its
// request entry.
func LogChatResponsePayload(runID, sessionID string, payload []byte) {
	logChatPayload(runID, sessionID, payload, "response")
}

func logChatPayload(runID, sessionID string, payload []byte, entryType string) {
	if len(payload) == 0 {
		return
	}

	dir := requestLogDir()
	if dir == "" {
		return
	}

	trimmedID := strings.TrimSpace(runID)
	if trimmedID == "" {
		trimmedID = "unknown"
	}
	entryKey := fmt.Sprintf("%s:%s", trimmedID, entryType)
	if trimmedID != "unknown" && !shouldLogEntry(entryKey, requestLogDedupeTTL) {
		return
	}

	entry := requestLogEntry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		RunID:     trimmedID,
		SessionID: strings.TrimSpace(sessionID),
		EntryType: entryType,
		BodyBytes: len(payload),
	}
	if json.Valid(payload) {
		entry.Payload = json.RawMessage(payload)
	} else {
		entry.PayloadText = string(payload)
	}

	entryBytes, err := json.Marshal(entry)
	if err != nil {
		log.Printf("request log: failed to encode entry: %v", err)
		return
	}
	entryBytes = append(entryBytes, '\n')

	enqueueRequestLogWrite(filepath.Join(dir, requestLogFileName), entryBytes)
}

// requestLogDir returns the target directory, or "" when request logging is
// disabled.
func requestLogDir() string {
	value, ok := os.LookupEnv(requestLogEnvVar)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func shouldLogEntry(entryKey string, ttl time.Duration) bool {
	now := time.Now()
	if ttl <= 0 {
		ttl = requestLogDedupeTTL
	}
	if value, ok := requestLogDeduper.Load(entryKey); ok {
		if ts, ok := value.(time.Time); ok {
			if now.Sub(ts) < ttl {
				return false
			}
		}
	}
	requestLogDeduper.Store(entryKey, now)
	time.AfterFunc(ttl, func() {
		if value, ok := requestLogDeduper.Load(entryKey); ok {
			if ts, ok := value.(time.Time); ok && ts.Equal(now) {
				requestLogDeduper.Delete(entryKey)
			}
		}
	})
	return true
}

type requestLogWrite struct {
	path  string
	entry []byte
}

type requestLogEntry struct {
	Timestamp   string          `json:"timestamp"`
	RunID       string          `json:"run_id"`
	SessionID   string          `json:"session_id,omitempty"`
	EntryType   string          `json:"entry_type"`
	BodyBytes   int             `json:"body_bytes"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	PayloadText string          `json:"payload_text,omitempty"`
}

func enqueueRequestLogWrite(path string, entry []byte) {
	initRequestLogWriter()
	requestLogPending.Add(1)
	select {
	case requestLogQueue <- requestLogWrite{path: path, entry: entry}:
	default:
		requestLogPending.Add(-1)
		log.Printf("request log: queue full, dropping entry")
	}
}

func initRequestLogWriter() {
	requestLogOnce.Do(func() {
		requestLogQueue = make(chan requestLogWrite, requestLogQueueSize)
		go requestLogWriter()
	})
}

func requestLogWriter() {
	for item := range requestLogQueue {
		if err := appendRequestLogEntry(item.path, item.entry); err != nil {
			log.Printf("request log: failed to write entry: %v", err)
		}
		requestLogPending.Add(-1)
	}
}

func appendRequestLogEntry(path string, entry []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()
	if _, err := file.Write(entry); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WaitForRequestLogQueueDrain waits for async request log writes to finish or
// timeout. Intended for tests that need to read log files after logging.
func WaitForRequestLogQueueDrain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if requestLogPending.Load() == 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return requestLogPending.Load() == 0
}
