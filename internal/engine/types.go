package engine

import (
	"context"
	"io"
	"time"
)

// Verdict is what a transfer command tells the scheduler after one step.
type Verdict int

const (
	// VerdictAgain means the unit is not done and must be stepped again.
	VerdictAgain Verdict = iota

	// VerdictRetry means the unit relinquished its connection and the byte
	// range needs a fresh connection/segment assignment.
	VerdictRetry

	// VerdictDone means this unit's work is finished.
	VerdictDone
)

// Conn is one open data connection, established by a collaborator before
// the transfer loop runs. Read is bounded by the caller's buffer; EOF is
// reported as a zero-length read.
type Conn interface {
	io.ReadCloser

	Host() string

	// TransferEncoding names the transport framing ("chunked" or "").
	TransferEncoding() string

	// ContentEncoding names the payload compression ("gzip", "deflate" or "").
	ContentEncoding() string
}

// Dialer opens a fresh connection positioned at an absolute byte offset.
type Dialer interface {
	Dial(ctx context.Context, offset int64) (Conn, error)
}

// Journal persists segment completion so an interrupted download resumes.
type Journal interface {
	MarkSegmentComplete(downloadID string, index int, written int64) error
	MarkDownloadComplete(downloadID string) error
}

// Verifier runs the whole-file integrity check after the download finished.
type Verifier interface {
	Run(ctx context.Context) error
}

// GovernorConfig carries the two speed policies sharing the tracker.
type GovernorConfig struct {
	// MaxSpeed throttles the whole request group: when the aggregate
	// measured speed exceeds it, a step performs no read. 0 = unlimited.
	MaxSpeed int64

	// LowestSpeed aborts a connection whose own speed sits at or below it
	// once StartupGrace has elapsed. 0 = disabled.
	LowestSpeed  int64
	StartupGrace time.Duration
}
