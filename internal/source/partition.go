package source

import "github.com/datallboy/gofetch/internal/segment"

// Partition splits a file of totalLength bytes into segments of at most
// segmentSize. An unknown length yields a single unbounded segment that
// extends until EOF.
func Partition(totalLength, segmentSize int64) []*segment.Segment {
	if totalLength <= 0 {
		return []*segment.Segment{segment.New(0, 0, 0)}
	}
	if segmentSize <= 0 {
		segmentSize = totalLength
	}

	var segments []*segment.Segment
	index := 0
	for pos := int64(0); pos < totalLength; pos += segmentSize {
		length := segmentSize
		if pos+length > totalLength {
			length = totalLength - pos
		}
		segments = append(segments, segment.New(index, pos, length))
		index++
	}
	return segments
}
