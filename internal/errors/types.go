package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// InvalidFileURIError reports a URI that does not use the file scheme.
type InvalidFileURIError struct {
	URI string
}

func (e *InvalidFileURIError) Error() string {
	return fmt.Sprintf("URI does not start with \"file:\": %q", e.URI)
}

// NonAbsoluteURIError reports a file URI whose decoded path is not absolute.
type NonAbsoluteURIError struct {
	URI string
}

func (e *NonAbsoluteURIError) Error() string {
	return fmt.Sprintf("URI is not absolute: %q", e.URI)
}

// UnsupportedFileFormatError reports a file extension no reader is registered for.
type UnsupportedFileFormatError struct {
	Ext string
}

func (e *UnsupportedFileFormatError) Error() string {
	return fmt.Sprintf("unsupported file format %q", e.Ext)
}

// UnsupportedEncodingError reports that a file could not be decoded with the
// requested encoding, even after trying every detected candidate. Encoding
// names the last one tried.
type UnsupportedEncodingError struct {
	Encoding string
	Err      error // decode failure for that encoding
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("unsupported encoding %q", e.Encoding)
}

func (e *UnsupportedEncodingError) Unwrap() error {
	return e.Err
}

// EncodingDetectionError reports that the charset detector produced no usable
// candidate for a file.
type EncodingDetectionError struct {
	Path string
}

func (e *EncodingDetectionError) Error() string {
	return fmt.Sprintf("could not detect encoding for %s", e.Path)
}

// DetectionTimeoutError reports that encoding detection exceeded its deadline.
type DetectionTimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *DetectionTimeoutError) Error() string {
	return fmt.Sprintf("timeout reached while detecting encoding for %s", e.Path)
}

// DecodeError reports malformed bytes for a specific encoding. Readers use it
// to tell "the bytes do not fit this charset" apart from I/O and parse errors.
type DecodeError struct {
	Encoding string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode as %s: %v", e.Encoding, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsInvalidFileURI checks for a non file-scheme URI error.
func IsInvalidFileURI(err error) bool {
	var target *InvalidFileURIError
	return errors.As(err, &target)
}

// IsNonAbsoluteURI checks for a relative file URI error.
func IsNonAbsoluteURI(err error) bool {
	var target *NonAbsoluteURIError
	return errors.As(err, &target)
}

// IsUnsupportedFileFormat checks for an unregistered file extension error.
func IsUnsupportedFileFormat(err error) bool {
	var target *UnsupportedFileFormatError
	return errors.As(err, &target)
}

// IsUnsupportedEncoding checks for an exhausted encoding retry error.
func IsUnsupportedEncoding(err error) bool {
	var target *UnsupportedEncodingError
	return errors.As(err, &target)
}

// IsDetectionFailure checks for either detection outcome that yields no
// candidates: no detector result, or the detection deadline expiring.
func IsDetectionFailure(err error) bool {
	var detection *EncodingDetectionError
	if errors.As(err, &detection) {
		return true
	}
	var timeout *DetectionTimeoutError
	return errors.As(err, &timeout)
}

// IsDecodeFailure checks for a charset decode error.
func IsDecodeFailure(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}

// TransientError marks an error as retry-able.
type TransientError struct {
	Err        error
	StatusCode int // HTTP status code if applicable
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks an error as non retry-able.
type PermanentError struct {
	Err        error
	StatusCode int // HTTP status code if applicable
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retry-able.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// NewPermanentError wraps err as non retry-able.
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

// IsTransient checks if an error is retry-able.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	// Network errors (connection refused, timeout, etc.)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether a status code is worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}
	return false
}
