package verify

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datallboy/gofetch/internal/infra/logger"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func testLogger() *logger.Logger {
	return logger.NewWriter(io.Discard, logger.LevelError)
}

func TestRunAcceptsMatchingChecksum(t *testing.T) {
	path := writeFile(t, "hello")

	// md5("hello")
	task := NewTask(path, "md5", "5d41402abc4b2a76b9719d911017c592", testLogger())
	if !task.Ready() {
		t.Fatal("task with declared checksum should be ready")
	}
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunRejectsMismatch(t *testing.T) {
	path := writeFile(t, "corrupted")

	task := NewTask(path, "md5", "5d41402abc4b2a76b9719d911017c592", testLogger())
	err := task.Run(context.Background())
	if err == nil {
		t.Fatal("Run should fail on checksum mismatch")
	}
	if !strings.Contains(err.Error(), "checksum mismatch") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReadyRequiresSupportedAlgorithm(t *testing.T) {
	task := NewTask("ignored", "whirlpool", "deadbeef", testLogger())
	if task.Ready() {
		t.Fatal("unsupported algorithm must not be ready")
	}
	// Not ready means Run is a no-op, not an error.
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	path := writeFile(t, strings.Repeat("x", 1<<16))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := NewTask(path, "sha-256", "not-a-real-digest", testLogger())
	if err := task.Run(ctx); err == nil {
		t.Fatal("Run should fail once the context is cancelled")
	}
}
