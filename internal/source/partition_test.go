package source

import "testing"

func TestPartitionEvenSplit(t *testing.T) {
	segs := Partition(4000, 1000)
	if len(segs) != 4 {
		t.Fatalf("got %d segments, want 4", len(segs))
	}
	for i, s := range segs {
		if s.Index() != i {
			t.Errorf("segment %d has index %d", i, s.Index())
		}
		if s.Position() != int64(i)*1000 || s.Length() != 1000 {
			t.Errorf("segment %d: position %d length %d", i, s.Position(), s.Length())
		}
	}
}

func TestPartitionUnevenTail(t *testing.T) {
	segs := Partition(2500, 1000)
	if len(segs) != 3 {
		t.Fatalf("got %d segments, want 3", len(segs))
	}
	last := segs[2]
	if last.Position() != 2000 || last.Length() != 500 {
		t.Fatalf("tail segment: position %d length %d, want 2000 and 500", last.Position(), last.Length())
	}
}

func TestPartitionUnknownLength(t *testing.T) {
	segs := Partition(0, 1000)
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	if segs[0].Length() != 0 {
		t.Fatalf("unknown length must produce an unbounded segment, got length %d", segs[0].Length())
	}
}

func TestPartitionZeroSegmentSize(t *testing.T) {
	segs := Partition(5000, 0)
	if len(segs) != 1 || segs[0].Length() != 5000 {
		t.Fatalf("got %d segments, want one covering the whole file", len(segs))
	}
}
