package segment

import (
	"encoding/hex"
	"fmt"
	"hash"
	"sync/atomic"
)

// Segment is ownership of one contiguous byte range of the target file.
// A length of 0 means the range is unbounded and extends until EOF.
// Mutation happens only on the connection that currently owns the segment;
// written length is atomic so progress reporting can observe it.
type Segment struct {
	index    int
	position int64
	length   int64
	written  atomic.Int64

	hasher     hash.Hash
	hashOffset int64
}

func New(index int, position, length int64) *Segment {
	return &Segment{
		index:    index,
		position: position,
		length:   length,
	}
}

func (s *Segment) Index() int      { return s.index }
func (s *Segment) Position() int64 { return s.position }
func (s *Segment) Length() int64   { return s.length }

func (s *Segment) WrittenLength() int64 { return s.written.Load() }

// PositionToWrite is the absolute file offset the next write lands on.
func (s *Segment) PositionToWrite() int64 {
	return s.position + s.written.Load()
}

// Remaining reports how many bytes are still missing. Unbounded segments
// always report the full read ceiling's worth, handled by the caller.
func (s *Segment) Remaining() int64 {
	if s.length == 0 {
		return 0
	}
	return s.length - s.written.Load()
}

// Complete is true iff the declared length is known and fully written.
func (s *Segment) Complete() bool {
	return s.length > 0 && s.written.Load() == s.length
}

// AdvanceWritten records n freshly persisted bytes.
func (s *Segment) AdvanceWritten(n int64) error {
	written := s.written.Add(n)
	if s.length > 0 && written > s.length {
		return fmt.Errorf("segment %d: written %d exceeds length %d", s.index, written, s.length)
	}
	return nil
}

// EnableHash attaches a rolling hash accumulator. A no-op when one is
// already attached; the accumulator survives across steps.
func (s *Segment) EnableHash(h hash.Hash) {
	if s.hasher != nil {
		return
	}
	s.hasher = h
	s.hashOffset = 0
}

func (s *Segment) HashEnabled() bool { return s.hasher != nil }

// UpdateHash feeds persisted bytes into the rolling hash. Offsets must be
// strictly contiguous; a gap or overlap means the accumulator no longer
// describes the persisted range and is an internal bug worth surfacing.
func (s *Segment) UpdateHash(offset int64, p []byte) error {
	if s.hasher == nil {
		return nil
	}
	if offset != s.hashOffset {
		return fmt.Errorf("segment %d: hash update at offset %d, want %d", s.index, offset, s.hashOffset)
	}

	s.hasher.Write(p)
	s.hashOffset += int64(len(p))
	return nil
}

// HashCalculated reports whether the accumulator has seen the full range.
func (s *Segment) HashCalculated() bool {
	return s.hasher != nil && s.length > 0 && s.hashOffset == s.length
}

// HashDigest returns the hex digest of the rolling hash.
func (s *Segment) HashDigest() string {
	if s.hasher == nil {
		return ""
	}
	return hex.EncodeToString(s.hasher.Sum(nil))
}

// Clear discards all progress after a checksum failure so the byte range
// can be reassigned from scratch.
func (s *Segment) Clear() {
	s.written.Store(0)
	if s.hasher != nil {
		s.hasher.Reset()
		s.hashOffset = 0
	}
}
