package decoding

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/datallboy/gofetch/internal/domain"
)

// errStreamComplete closes the input pipe once the compressed stream has
// properly ended, so trailing transport bytes surface as an error.
var errStreamComplete = errors.New("compressed stream complete")

const inflateBufSize = 16 * 1024

// Inflater adapts the reader-style flate/gzip decompressors into the
// push-style stage the transfer loop needs: Decode feeds transport bytes in,
// decompressed output accumulates and is collected on the same or a later
// call. The inflating goroutine is fed through a pipe and torn down by Close.
type Inflater struct {
	pw   *io.PipeWriter
	done chan struct{}

	mu       sync.Mutex
	out      bytes.Buffer
	finished bool
	err      error
}

// NewContentDecoder builds the stage for a declared Content-Encoding.
// Identity returns nil: no stage configured.
func NewContentDecoder(encoding string) (ContentDecoder, error) {
	switch encoding {
	case "", "identity":
		return nil, nil
	case "gzip", "deflate":
		return newInflater(encoding), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding: %s", encoding)
	}
}

func newInflater(encoding string) *Inflater {
	pr, pw := io.Pipe()
	d := &Inflater{
		pw:   pw,
		done: make(chan struct{}),
	}
	go d.run(pr, encoding)
	return d
}

func (d *Inflater) run(pr *io.PipeReader, encoding string) {
	defer close(d.done)

	var src io.Reader
	if encoding == "gzip" {
		// Blocks until enough header bytes arrive through the pipe.
		zr, err := gzip.NewReader(pr)
		if err != nil {
			d.fail(err)
			pr.CloseWithError(err)
			return
		}
		// One response body carries exactly one stream; bytes after its
		// trailer are trailing data, not a second stream.
		zr.Multistream(false)
		src = zr
	} else {
		src = flate.NewReader(pr)
	}

	buf := make([]byte, inflateBufSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			d.mu.Lock()
			d.out.Write(buf[:n])
			d.mu.Unlock()
		}
		if err == io.EOF {
			d.mu.Lock()
			d.finished = true
			d.mu.Unlock()
			pr.CloseWithError(errStreamComplete)
			return
		}
		if err != nil {
			d.fail(err)
			pr.CloseWithError(err)
			return
		}
	}
}

func (d *Inflater) fail(err error) {
	d.mu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.mu.Unlock()
}

// Decode feeds transport bytes and returns whatever decompressed output is
// available so far.
func (d *Inflater) Decode(p []byte) ([]byte, error) {
	if len(p) > 0 {
		if _, err := d.pw.Write(p); err != nil {
			if errors.Is(err, errStreamComplete) {
				return d.drain(), fmt.Errorf("content decoding: %w", domain.ErrDecoderClosed)
			}
			return d.drain(), fmt.Errorf("content decoding: %w", err)
		}
	}

	d.mu.Lock()
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("content decoding: %w", err)
	}

	return d.drain(), nil
}

func (d *Inflater) drain() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.out.Len() == 0 {
		return nil
	}
	out := make([]byte, d.out.Len())
	copy(out, d.out.Bytes())
	d.out.Reset()
	return out
}

// Finished reports whether the compressed stream reached its own end marker.
func (d *Inflater) Finished() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finished
}

// Close stops the inflating goroutine and returns any residual output produced
// after the last Decode call, so the final bytes still get persisted.
func (d *Inflater) Close() ([]byte, error) {
	d.pw.Close()
	<-d.done

	rest := d.drain()

	d.mu.Lock()
	err := d.err
	d.mu.Unlock()
	return rest, err
}
