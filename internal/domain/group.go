package domain

import (
	"github.com/datallboy/gofetch/internal/segment"
	"github.com/segmentio/ksuid"
)

// RequestGroup aggregates everything shared by all connections of one
// logical download: the declared total length, the segment registry, and
// the integrity metadata (per-piece hashes plus an optional whole-file
// checksum).
type RequestGroup struct {
	ID   string
	Name string

	totalLength int64
	registry    *segment.Registry

	pieceHashAlgo string
	pieceHashes   []string

	checksumAlgo string
	checksum     string
}

func NewRequestGroup(name string, totalLength int64, registry *segment.Registry) *RequestGroup {
	return &RequestGroup{
		ID:          ksuid.New().String(),
		Name:        name,
		totalLength: totalLength,
		registry:    registry,
	}
}

// SetPieceHashes declares the expected per-segment hashes indexed by
// segment ordinal. An empty string means "not declared for this index".
func (g *RequestGroup) SetPieceHashes(algo string, hashes []string) {
	g.pieceHashAlgo = algo
	g.pieceHashes = hashes
}

// SetChecksum declares the expected whole-file digest checked after the
// download finishes.
func (g *RequestGroup) SetChecksum(algo, value string) {
	g.checksumAlgo = algo
	g.checksum = value
}

func (g *RequestGroup) TotalLength() int64          { return g.totalLength }
func (g *RequestGroup) Registry() *segment.Registry { return g.registry }
func (g *RequestGroup) PieceHashAlgorithm() string  { return g.pieceHashAlgo }

// PieceHash returns the expected hash for a segment index, or "" when none
// was declared.
func (g *RequestGroup) PieceHash(index int) string {
	if index < 0 || index >= len(g.pieceHashes) {
		return ""
	}
	return g.pieceHashes[index]
}

func (g *RequestGroup) Checksum() (algo, value string) {
	return g.checksumAlgo, g.checksum
}

// DownloadFinished reports whether every segment of the file is retired.
func (g *RequestGroup) DownloadFinished() bool {
	return g.registry.AllComplete()
}
