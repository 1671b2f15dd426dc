package engine

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// memConn streams a fixed byte slice, as a ranged response body would.
type memConn struct {
	r *bytes.Reader
}

func (c *memConn) Read(p []byte) (int, error) { return c.r.Read(p) }
func (c *memConn) Close() error               { return nil }
func (c *memConn) Host() string               { return "mem" }
func (c *memConn) TransferEncoding() string   { return "" }
func (c *memConn) ContentEncoding() string    { return "" }

type memDialer struct {
	data  []byte
	mu    sync.Mutex
	dials int
}

func (d *memDialer) Dial(_ context.Context, offset int64) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()

	if offset < 0 || offset > int64(len(d.data)) {
		return nil, fmt.Errorf("offset %d out of range", offset)
	}
	return &memConn{r: bytes.NewReader(d.data[offset:])}, nil
}

type countingJournal struct {
	mu        sync.Mutex
	segments  map[int]int64
	completes int
}

func newCountingJournal() *countingJournal {
	return &countingJournal{segments: make(map[int]int64)}
}

func (j *countingJournal) MarkSegmentComplete(_ string, index int, written int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.segments[index] = written
	return nil
}

func (j *countingJournal) MarkDownloadComplete(string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.completes++
	return nil
}

type countingVerifier struct {
	mu   sync.Mutex
	runs int
}

func (v *countingVerifier) Run(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.runs++
	return nil
}

func TestSchedulerDownloadsAllSegments(t *testing.T) {
	data := make([]byte, 3000)
	rand.New(rand.NewSource(1)).Read(data)

	group := newGroup("sched", 1000, 1000, 1000)
	dialer := &memDialer{data: data}
	journal := newCountingJournal()
	verifier := &countingVerifier{}

	writer := NewFileWriter()
	path := filepath.Join(t.TempDir(), "out.bin")

	sched := NewScheduler(group, writer, path, dialer, testLogger(), SchedulerConfig{
		MaxConnections: 2,
		Retries:        3,
	})
	sched.SetJournal(journal)
	sched.SetVerifier(verifier)

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	writer.CloseAll()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("file content differs from source (%d vs %d bytes)", len(got), len(data))
	}

	if len(journal.segments) != 3 {
		t.Fatalf("journaled %d segments, want 3", len(journal.segments))
	}
	for i := 0; i < 3; i++ {
		if journal.segments[i] != 1000 {
			t.Fatalf("segment %d journaled %d bytes, want 1000", i, journal.segments[i])
		}
	}
	if journal.completes != 1 {
		t.Fatalf("download marked complete %d times, want 1", journal.completes)
	}
	if verifier.runs != 1 {
		t.Fatalf("verifier ran %d times, want 1", verifier.runs)
	}
}

func TestSchedulerRestoredDownloadSkipsTransfer(t *testing.T) {
	group := newGroup("restored", 100, 100)
	reg := group.Registry()
	for i, seg := range reg.Segments() {
		seg.AdvanceWritten(100)
		reg.CompleteSegment("journal", reg.Segments()[i])
	}

	dialer := &memDialer{data: make([]byte, 200)}
	journal := newCountingJournal()
	verifier := &countingVerifier{}

	sched := NewScheduler(group, NewFileWriter(), filepath.Join(t.TempDir(), "out.bin"),
		dialer, testLogger(), SchedulerConfig{MaxConnections: 2})
	sched.SetJournal(journal)
	sched.SetVerifier(verifier)

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if dialer.dials != 0 {
		t.Fatalf("dialed %d times, want 0", dialer.dials)
	}
	if journal.completes != 1 || verifier.runs != 1 {
		t.Fatalf("completes = %d, verifier runs = %d; want 1 and 1",
			journal.completes, verifier.runs)
	}
}

type failingDialer struct{}

func (failingDialer) Dial(context.Context, int64) (Conn, error) {
	return nil, fmt.Errorf("connection refused")
}

func TestSchedulerFailsWhenNothingConnects(t *testing.T) {
	group := newGroup("unreachable", 100)

	sched := NewScheduler(group, NewFileWriter(), filepath.Join(t.TempDir(), "out.bin"),
		failingDialer{}, testLogger(), SchedulerConfig{MaxConnections: 1})

	if err := sched.Run(context.Background()); err == nil {
		t.Fatal("Run should fail when no connection can be established")
	}
}
