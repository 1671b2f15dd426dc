// Package verify holds the post-download whole-file integrity check,
// enqueued by the continuation policy once a download completes.
package verify

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/datallboy/gofetch/internal/digest"
	"github.com/datallboy/gofetch/internal/infra/logger"
)

// Task streams the finished file through the declared digest and compares
// it to the expected value.
type Task struct {
	path     string
	algo     string
	expected string
	log      *logger.Logger
}

func NewTask(path, algo, expected string, log *logger.Logger) *Task {
	return &Task{
		path:     path,
		algo:     algo,
		expected: expected,
		log:      log,
	}
}

// Ready reports whether a validation can actually run: an expected value
// was declared and the algorithm is supported.
func (t *Task) Ready() bool {
	return t.expected != "" && digest.Supported(t.algo)
}

func (t *Task) Run(ctx context.Context) error {
	if !t.Ready() {
		return nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("open for verification: %w", err)
	}
	defer f.Close()

	actual, err := digest.SumReader(t.algo, &ctxReader{ctx: ctx, r: f})
	if err != nil {
		return fmt.Errorf("verify %s: %w", t.path, err)
	}

	if actual != t.expected {
		t.log.Error("file checksum mismatch for %s: expected %s, got %s", t.path, t.expected, actual)
		return fmt.Errorf("file %s: %s checksum mismatch: expected %s, got %s",
			t.path, t.algo, t.expected, actual)
	}

	t.log.Info("file checksum OK for %s (%s %s)", t.path, t.algo, actual)
	return nil
}

// ctxReader aborts a long hash pass when the context ends.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
