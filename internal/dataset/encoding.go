package dataset

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/saintfish/chardet"
	"golang.org/x/sync/singleflight"

	"tabula/internal/async"
	taberrors "tabula/internal/errors"
	"tabula/internal/observability"
	"tabula/internal/utils"
)

// FileEncoding is one candidate encoding for a file, ordered by confidence.
type FileEncoding struct {
	// Encoding is the charset name as reported by the detector, e.g. UTF-8.
	Encoding string
	// Confidence is the detector's confidence in [0, 1].
	Confidence float64
	// Language is the guessed content language, empty when unknown.
	Language string
}

const (
	// DefaultDetectTimeout bounds a direct detection call.
	DefaultDetectTimeout = 5 * time.Second
	// DefaultRetryDetectTimeout is the generous budget ReadTable grants
	// detection when it retries a failed decode.
	DefaultRetryDetectTimeout = 30 * time.Second
	// DefaultDetectCacheSize is how many per-file results are remembered.
	DefaultDetectCacheSize = 128
)

// Detector guesses file encodings. Detection reads the whole file, so results
// are cached per path and concurrent callers for the same file share one run.
type Detector struct {
	timeout time.Duration
	cache   *lru.Cache[string, []FileEncoding]
	group   singleflight.Group
	metrics *observability.MetricsCollector
	logger  *utils.Logger
}

// DetectorOption customises a Detector.
type DetectorOption func(*detectorOptions)

type detectorOptions struct {
	timeout   time.Duration
	cacheSize int
	metrics   *observability.MetricsCollector
}

// WithDetectTimeout sets the budget used when a call passes no timeout.
func WithDetectTimeout(timeout time.Duration) DetectorOption {
	return func(o *detectorOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithDetectCacheSize sets the result cache capacity. Zero disables caching.
func WithDetectCacheSize(size int) DetectorOption {
	return func(o *detectorOptions) {
		o.cacheSize = size
	}
}

// WithDetectMetrics reports detection outcomes to the given collector.
func WithDetectMetrics(metrics *observability.MetricsCollector) DetectorOption {
	return func(o *detectorOptions) {
		o.metrics = metrics
	}
}

// NewDetector creates a Detector with the given options.
func NewDetector(opts ...DetectorOption) *Detector {
	options := detectorOptions{
		timeout:   DefaultDetectTimeout,
		cacheSize: DefaultDetectCacheSize,
	}
	for _, opt := range opts {
		opt(&options)
	}

	d := &Detector{
		timeout: options.timeout,
		metrics: options.metrics,
		logger:  utils.NewComponentLogger("encoding-detect"),
	}
	if options.cacheSize > 0 {
		cache, err := lru.New[string, []FileEncoding](options.cacheSize)
		if err == nil {
			d.cache = cache
		}
	}
	return d
}

// DetectFileEncodings guesses the encoding of the file at path. Candidates
// come back ordered by confidence, best first. A positive timeout bounds this
// call; zero or negative falls back to the detector's configured default.
// When the detector cannot name any candidate the call fails with
// EncodingDetectionError; when the run outlives the budget it fails with
// DetectionTimeoutError and the in-flight run is abandoned.
func (d *Detector) DetectFileEncodings(ctx context.Context, path string, timeout time.Duration) ([]FileEncoding, error) {
	if timeout <= 0 {
		timeout = d.timeout
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())

	if d.cache != nil {
		if cached, ok := d.cache.Get(key); ok {
			d.metrics.RecordDetection(ctx, "cached")
			return cached, nil
		}
	}

	ch := d.group.DoChan(key, func() (any, error) {
		start := time.Now()
		encodings, err := d.detect(path)
		if err != nil {
			return nil, err
		}
		d.logger.Debug("Detected %d encoding candidates for %s in %v", len(encodings), path, time.Since(start))
		return encodings, nil
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			d.metrics.RecordDetection(ctx, "failed")
			return nil, res.Err
		}
		encodings := res.Val.([]FileEncoding)
		if d.cache != nil {
			d.cache.Add(key, encodings)
		}
		d.metrics.RecordDetection(ctx, "ok")
		return encodings, nil
	case <-timer.C:
		d.logger.Warn("Encoding detection for %s exceeded %v", path, timeout)
		d.metrics.RecordDetection(ctx, "timeout")
		return nil, &taberrors.DetectionTimeoutError{Path: path, Timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// detect reads the whole file and runs charset detection on a guarded
// goroutine, so a detector panic cannot take the process down.
func (d *Detector) detect(path string) ([]FileEncoding, error) {
	outcome := <-async.Call(d.logger, "encoding-detect", func() ([]FileEncoding, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(raw) == 0 {
			return nil, &taberrors.EncodingDetectionError{Path: path}
		}
		results, err := chardet.NewTextDetector().DetectAll(raw)
		if err != nil || len(results) == 0 {
			return nil, &taberrors.EncodingDetectionError{Path: path}
		}
		encodings := make([]FileEncoding, 0, len(results))
		for _, result := range results {
			if result.Charset == "" {
				continue
			}
			encodings = append(encodings, FileEncoding{
				Encoding:   result.Charset,
				Confidence: float64(result.Confidence) / 100,
				Language:   result.Language,
			})
		}
		if len(encodings) == 0 {
			return nil, &taberrors.EncodingDetectionError{Path: path}
		}
		// Best-first order is a contract of this method, so it is
		// enforced here instead of trusted from the detector.
		sort.SliceStable(encodings, func(i, j int) bool {
			return encodings[i].Confidence > encodings[j].Confidence
		})
		return encodings, nil
	})
	return outcome.Value, outcome.Err
}
