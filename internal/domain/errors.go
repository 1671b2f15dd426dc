package domain

import (
	"errors"
	"fmt"
)

// ErrRetry marks failures where the affected byte range should be
// reassigned, possibly on a fresh connection.
var ErrRetry = errors.New("segment must be retried")

// ErrAbort marks failures that tear down the connection for good.
var ErrAbort = errors.New("connection aborted")

// Specific conditions wrap their category so callers can classify with
// errors.Is against either the condition or the category.
var (
	ErrPrematureEOF     = fmt.Errorf("stream ended before expected length: %w", ErrRetry)
	ErrChecksumMismatch = fmt.Errorf("piece checksum mismatch: %w", ErrRetry)
	ErrTooSlow          = fmt.Errorf("download speed too low: %w", ErrAbort)

	// ErrDecoderClosed indicates bytes were fed to a decode stage after it
	// reported finished. That is a protocol violation, never dropped.
	ErrDecoderClosed = fmt.Errorf("data received after decoder finished: %w", ErrRetry)
)

// IsRetryable reports whether the scheduler may reassign the byte range.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetry)
}
