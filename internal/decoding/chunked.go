package decoding

import (
	"fmt"

	"github.com/datallboy/gofetch/internal/domain"
)

type chunkedState int

const (
	stateSize chunkedState = iota // accumulating hex chunk-size digits
	stateExt                      // skipping a chunk extension
	stateSizeLF
	stateData
	stateDataCR
	stateDataLF
	stateTrailer // trailer lines after the zero-size chunk
	stateDone
)

// ChunkedDecoder strips HTTP/1.1 chunked transfer framing byte by byte so
// a partial chunk arriving across several reads decodes incrementally.
type ChunkedDecoder struct {
	state     chunkedState
	remaining int64 // payload bytes left in the current chunk
	size      int64
	sizeSeen  bool
	lineEmpty bool // trailer parsing: current line has no content yet
	finished  bool
}

func NewChunkedDecoder() *ChunkedDecoder {
	return &ChunkedDecoder{lineEmpty: true}
}

func (d *ChunkedDecoder) Finished() bool { return d.finished }

// Finish finalizes the decoder. An unterminated stream is not an error
// here; the transfer loop already applied its EOF policy before this point.
func (d *ChunkedDecoder) Finish() error {
	d.state = stateDone
	return nil
}

// Decode consumes raw transport bytes and returns the payload they carried.
func (d *ChunkedDecoder) Decode(p []byte) ([]byte, error) {
	if d.state == stateDone && len(p) > 0 {
		return nil, fmt.Errorf("chunked framing: %w", domain.ErrDecoderClosed)
	}

	out := make([]byte, 0, len(p))

	i := 0
	for i < len(p) {
		b := p[i]

		switch d.state {
		case stateSize:
			switch {
			case b >= '0' && b <= '9':
				d.size = d.size<<4 | int64(b-'0')
				d.sizeSeen = true
			case b >= 'a' && b <= 'f':
				d.size = d.size<<4 | int64(b-'a'+10)
				d.sizeSeen = true
			case b >= 'A' && b <= 'F':
				d.size = d.size<<4 | int64(b-'A'+10)
				d.sizeSeen = true
			case b == ';':
				if !d.sizeSeen {
					return out, fmt.Errorf("chunked framing: extension before chunk size")
				}
				d.state = stateExt
			case b == '\r':
				if !d.sizeSeen {
					return out, fmt.Errorf("chunked framing: missing chunk size")
				}
				d.state = stateSizeLF
			default:
				return out, fmt.Errorf("chunked framing: unexpected byte %#x in chunk size", b)
			}
			i++

		case stateExt:
			if b == '\r' {
				d.state = stateSizeLF
			}
			i++

		case stateSizeLF:
			if b != '\n' {
				return out, fmt.Errorf("chunked framing: chunk size not terminated by CRLF")
			}
			if d.size == 0 {
				d.state = stateTrailer
				d.lineEmpty = true
			} else {
				d.remaining = d.size
				d.state = stateData
			}
			d.size = 0
			d.sizeSeen = false
			i++

		case stateData:
			n := int64(len(p) - i)
			if n > d.remaining {
				n = d.remaining
			}
			out = append(out, p[i:i+int(n)]...)
			d.remaining -= n
			i += int(n)
			if d.remaining == 0 {
				d.state = stateDataCR
			}

		case stateDataCR:
			if b != '\r' {
				return out, fmt.Errorf("chunked framing: chunk data not terminated by CR")
			}
			d.state = stateDataLF
			i++

		case stateDataLF:
			if b != '\n' {
				return out, fmt.Errorf("chunked framing: chunk data not terminated by LF")
			}
			d.state = stateSize
			i++

		case stateTrailer:
			switch b {
			case '\r':
				// ignored, line emptiness decides
			case '\n':
				if d.lineEmpty {
					d.finished = true
					d.state = stateDone
					i++
					if i < len(p) {
						return out, fmt.Errorf("chunked framing: %w", domain.ErrDecoderClosed)
					}
					return out, nil
				}
				d.lineEmpty = true
			default:
				d.lineEmpty = false
			}
			i++

		case stateDone:
			return out, fmt.Errorf("chunked framing: %w", domain.ErrDecoderClosed)
		}
	}

	return out, nil
}
