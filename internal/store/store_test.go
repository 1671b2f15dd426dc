package store

import (
	"path/filepath"
	"testing"

	"github.com/datallboy/gofetch/internal/segment"
)

func newTestStore(t *testing.T) *PersistentStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "gofetch.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSegments(lengths ...int64) []*segment.Segment {
	var segs []*segment.Segment
	var pos int64
	for i, l := range lengths {
		segs = append(segs, segment.New(i, pos, l))
		pos += l
	}
	return segs
}

func TestDownloadLifecycle(t *testing.T) {
	s := newTestStore(t)

	const url = "https://example.com/file.bin"
	segs := testSegments(1000, 1000, 500)
	if err := s.CreateDownload("dl-1", "file.bin", url, 2500, segs); err != nil {
		t.Fatalf("CreateDownload: %v", err)
	}

	id, err := s.FindActiveDownload(url)
	if err != nil {
		t.Fatalf("FindActiveDownload: %v", err)
	}
	if id != "dl-1" {
		t.Fatalf("FindActiveDownload = %q, want %q", id, "dl-1")
	}

	if err := s.MarkSegmentComplete("dl-1", 0, 1000); err != nil {
		t.Fatalf("MarkSegmentComplete: %v", err)
	}
	if err := s.MarkSegmentComplete("dl-1", 2, 500); err != nil {
		t.Fatalf("MarkSegmentComplete: %v", err)
	}

	done, err := s.CompletedSegments("dl-1")
	if err != nil {
		t.Fatalf("CompletedSegments: %v", err)
	}
	if len(done) != 2 || done[0] != 1000 || done[2] != 500 {
		t.Fatalf("CompletedSegments = %v, want 0:1000 and 2:500", done)
	}

	if err := s.MarkDownloadComplete("dl-1"); err != nil {
		t.Fatalf("MarkDownloadComplete: %v", err)
	}

	// A finished download no longer resumes.
	id, err = s.FindActiveDownload(url)
	if err != nil {
		t.Fatalf("FindActiveDownload: %v", err)
	}
	if id != "" {
		t.Fatalf("FindActiveDownload = %q, want empty after completion", id)
	}
}

func TestFindActiveDownloadUnknownURL(t *testing.T) {
	s := newTestStore(t)

	id, err := s.FindActiveDownload("https://example.com/missing")
	if err != nil {
		t.Fatalf("FindActiveDownload: %v", err)
	}
	if id != "" {
		t.Fatalf("FindActiveDownload = %q, want empty", id)
	}
}

func TestRebindPostgresPlaceholders(t *testing.T) {
	s := &PersistentStore{driver: "postgres"}
	got := s.rebind("SELECT id FROM downloads WHERE url = ? AND status = ?")
	want := "SELECT id FROM downloads WHERE url = $1 AND status = $2"
	if got != want {
		t.Fatalf("rebind = %q, want %q", got, want)
	}

	s.driver = "sqlite"
	q := "UPDATE segments SET written = ? WHERE idx = ?"
	if s.rebind(q) != q {
		t.Fatal("sqlite queries must pass through unchanged")
	}
}
