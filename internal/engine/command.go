package engine

import (
	"fmt"
	"io"
	"time"

	"github.com/datallboy/gofetch/internal/decoding"
	"github.com/datallboy/gofetch/internal/digest"
	"github.com/datallboy/gofetch/internal/domain"
	"github.com/datallboy/gofetch/internal/infra/logger"
	"github.com/datallboy/gofetch/internal/segment"
)

// readBufSize bounds how much one step may pull off the wire.
const readBufSize = 16 * 1024

// CommandConfig wires one transfer command to its collaborators.
type CommandConfig struct {
	ID      string
	Conn    Conn
	Group   *domain.RequestGroup
	Segment *segment.Segment
	Writer  *FileWriter
	Path    string
	Logger  *logger.Logger

	Governor   GovernorConfig
	PieceCheck bool

	// OnSegmentComplete fires after a segment is retired in the registry.
	OnSegmentComplete func(*segment.Segment)

	// OnDownloadFinished fires once when the whole download completes,
	// before the command reports VerdictDone.
	OnDownloadFinished func()
}

// TransferCommand drives one connection's segment transfer, one bounded
// step per invocation. The scheduler re-enqueues it on VerdictAgain; a step
// never blocks beyond a single bounded read.
type TransferCommand struct {
	id       string
	conn     Conn
	group    *domain.RequestGroup
	registry *segment.Registry
	writer   *FileWriter
	path     string
	log      *logger.Logger
	gov      GovernorConfig

	seg     *segment.Segment
	tracker *segment.SpeedTracker

	transferDecoder decoding.TransferDecoder
	contentDecoder  decoding.ContentDecoder
	pieceCheck      bool

	onSegmentComplete  func(*segment.Segment)
	onDownloadFinished func()

	buf    []byte
	now    func() time.Time
	closed bool
}

// NewTransferCommand resolves the connection's speed tracker (registering
// one on first use), starts it, and arms the rolling hash when realtime
// piece validation is configured and the declared algorithm is supported.
func NewTransferCommand(cfg CommandConfig) *TransferCommand {
	registry := cfg.Group.Registry()

	tracker := registry.SpeedTracker(cfg.ID)
	if tracker == nil {
		tracker = registry.RegisterSpeedTracker(segment.NewSpeedTracker(cfg.ID))
	}
	tracker.DownloadStart()

	c := &TransferCommand{
		id:                 cfg.ID,
		conn:               cfg.Conn,
		group:              cfg.Group,
		registry:           registry,
		writer:             cfg.Writer,
		path:               cfg.Path,
		log:                cfg.Logger,
		gov:                cfg.Governor,
		seg:                cfg.Segment,
		tracker:            tracker,
		onSegmentComplete:  cfg.OnSegmentComplete,
		onDownloadFinished: cfg.OnDownloadFinished,
		buf:                make([]byte, readBufSize),
		now:                time.Now,
	}

	if cfg.PieceCheck && digest.Supported(cfg.Group.PieceHashAlgorithm()) {
		c.pieceCheck = true
		c.enableHash(c.seg)
	}

	return c
}

func (c *TransferCommand) ID() string { return c.id }

func (c *TransferCommand) SetTransferDecoder(d decoding.TransferDecoder) {
	c.transferDecoder = d
}

func (c *TransferCommand) SetContentDecoder(d decoding.ContentDecoder) {
	c.contentDecoder = d
}

// SetClock swaps the time source. Tests only.
func (c *TransferCommand) SetClock(now func() time.Time) {
	c.now = now
	c.tracker.SetClock(now)
}

// Close stops the speed tracker and releases the connection. It runs on
// every exit path, success or error, and is safe to call twice.
func (c *TransferCommand) Close() {
	if c.closed {
		return
	}
	c.closed = true

	c.tracker.DownloadStop()
	if c.conn != nil {
		c.conn.Close()
	}
	if c.contentDecoder != nil {
		c.contentDecoder.Close()
		c.contentDecoder = nil
	}
}

// Step performs one bounded read→decode→write→hash→checkpoint iteration.
func (c *TransferCommand) Step() (Verdict, error) {
	// Ceiling policy: when the group as a whole is over the configured
	// limit, this step performs no read and the unit just requeues.
	if c.gov.MaxSpeed > 0 && c.registry.AggregateSpeed() > c.gov.MaxSpeed {
		return VerdictAgain, nil
	}

	seg := c.seg

	bufSize := int64(readBufSize)
	if seg.Length() > 0 && seg.Remaining() < bufSize {
		bufSize = seg.Remaining()
	}

	var n int
	if bufSize > 0 {
		var rerr error
		n, rerr = c.conn.Read(c.buf[:bufSize])
		if rerr != nil && rerr != io.EOF {
			return VerdictDone, fmt.Errorf("read from %s: %v: %w", c.conn.Host(), rerr, domain.ErrRetry)
		}
	}
	raw := c.buf[:n]

	payload := raw
	if c.transferDecoder != nil {
		var err error
		payload, err = c.transferDecoder.Decode(raw)
		if err != nil {
			return VerdictDone, err
		}
	}

	final := payload
	if c.contentDecoder != nil {
		var err error
		final, err = c.contentDecoder.Decode(payload)
		if err != nil {
			return VerdictDone, err
		}
	}

	if err := c.persist(final); err != nil {
		return VerdictDone, err
	}

	// Speed accounting uses raw wire bytes, pre-decode.
	c.tracker.AddBytes(int64(n))

	if c.group.TotalLength() != 0 && n == 0 {
		return VerdictDone, fmt.Errorf("host %s: %w", c.conn.Host(), domain.ErrPrematureEOF)
	}

	done := (c.transferDecoder != nil && c.transferDecoder.Finished()) ||
		(c.transferDecoder == nil && seg.Complete()) ||
		n == 0

	if !done {
		if err := c.checkLowestSpeed(); err != nil {
			return VerdictDone, err
		}
		return VerdictAgain, nil
	}

	if c.transferDecoder != nil {
		if err := c.transferDecoder.Finish(); err != nil {
			return VerdictDone, err
		}
	}
	c.log.Info("connection %s: segment %d download completed", c.id, seg.Index())

	if c.contentDecoder != nil {
		rest, cerr := c.contentDecoder.Close()
		if err := c.persist(rest); err != nil {
			return VerdictDone, err
		}
		if !c.contentDecoder.Finished() {
			// Not fatal: the server probably truncated the compressed body.
			c.log.Warn("connection %s: transfer completed but inflate has not finished, file may be broken on the server side (%v)", c.id, cerr)
		}
		c.contentDecoder = nil
	}

	if err := c.validateSegment(seg); err != nil {
		return VerdictDone, err
	}

	if err := c.checkLowestSpeed(); err != nil {
		return VerdictDone, err
	}

	return c.prepareForNextSegment()
}

// persist writes final bytes at the segment's current absolute offset, then
// feeds the rolling hash, then advances the written length. That order keeps
// writtenLength consistent with persisted data at every observation point.
func (c *TransferCommand) persist(final []byte) error {
	if len(final) == 0 {
		return nil
	}

	offsetInSegment := c.seg.WrittenLength()

	if err := c.writer.WriteAt(c.path, final, c.seg.PositionToWrite()); err != nil {
		return fmt.Errorf("write segment %d: %v: %w", c.seg.Index(), err, domain.ErrAbort)
	}

	if err := c.seg.UpdateHash(offsetInSegment, final); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrAbort)
	}

	if err := c.seg.AdvanceWritten(int64(len(final))); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrRetry)
	}

	return nil
}

// validateSegment runs the integrity check for a finished segment and
// either retires it or discards its progress.
func (c *TransferCommand) validateSegment(seg *segment.Segment) error {
	expected := c.group.PieceHash(seg.Index())
	if !c.pieceCheck || expected == "" {
		c.completeSegment(seg)
		return nil
	}

	var actual string
	if seg.HashCalculated() {
		c.log.Debug("connection %s: rolling hash available for segment %d", c.id, seg.Index())
		actual = seg.HashDigest()
	} else {
		// No rolling hash kept for the full range: recompute from the
		// bytes already persisted at the segment's offset range.
		r, err := c.writer.ReadRange(c.path, seg.Position(), seg.Length())
		if err != nil {
			return fmt.Errorf("reread segment %d: %v: %w", seg.Index(), err, domain.ErrAbort)
		}
		actual, err = digest.SumReader(c.group.PieceHashAlgorithm(), r)
		if err != nil {
			return fmt.Errorf("recompute hash for segment %d: %v: %w", seg.Index(), err, domain.ErrAbort)
		}
	}

	if actual == expected {
		c.log.Info("good chunk checksum %s for segment %d", actual, seg.Index())
		c.completeSegment(seg)
		return nil
	}

	c.log.Info("invalid chunk checksum for segment %d at offset %d: expected %s, got %s",
		seg.Index(), seg.Position(), expected, actual)
	seg.Clear()
	c.registry.CancelSegment(c.id)
	return fmt.Errorf("segment %d: expected %s, got %s: %w",
		seg.Index(), expected, actual, domain.ErrChecksumMismatch)
}

func (c *TransferCommand) completeSegment(seg *segment.Segment) {
	c.registry.CompleteSegment(c.id, seg)
	if c.onSegmentComplete != nil {
		c.onSegmentComplete(seg)
	}
}

// checkLowestSpeed is the floor policy: a no-op during the startup grace
// period, fatal once the connection's own speed sits at or below the floor.
func (c *TransferCommand) checkLowestSpeed() error {
	if c.gov.LowestSpeed <= 0 {
		return nil
	}
	if c.now().Sub(c.tracker.StartTime()) < c.gov.StartupGrace {
		return nil
	}

	speed := c.tracker.Speed()
	if speed <= c.gov.LowestSpeed {
		return fmt.Errorf("host %s: speed %d B/s is at or below the limit %d B/s: %w",
			c.conn.Host(), speed, c.gov.LowestSpeed, domain.ErrTooSlow)
	}
	return nil
}

// prepareForNextSegment is the continuation policy run after a segment
// finishes.
func (c *TransferCommand) prepareForNextSegment() (Verdict, error) {
	if c.group.DownloadFinished() {
		if c.onDownloadFinished != nil {
			c.onDownloadFinished()
		}
		return VerdictDone, nil
	}

	if c.seg != nil {
		next := c.registry.GetSegment(c.id, c.seg.Index()+1)
		if next != nil && next.WrittenLength() == 0 {
			// The connection keeps streaming; the same decoders carry over.
			c.seg = next
			c.enableHash(next)
			return VerdictAgain, nil
		}
		if next != nil {
			// Partially written range: needs a fresh ranged request.
			c.registry.CancelSegment(c.id)
		}
		return VerdictRetry, nil
	}

	return VerdictRetry, nil
}

// enableHash arms the rolling hash for an untouched segment. A segment
// resumed with prior progress keeps no rolling hash; validation falls back
// to re-reading the persisted range.
func (c *TransferCommand) enableHash(s *segment.Segment) {
	if !c.pieceCheck || s == nil || s.HashEnabled() || s.WrittenLength() != 0 {
		return
	}
	if h, err := digest.New(c.group.PieceHashAlgorithm()); err == nil {
		s.EnableHash(h)
	}
}
