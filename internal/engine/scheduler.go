package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/datallboy/gofetch/internal/decoding"
	"github.com/datallboy/gofetch/internal/domain"
	"github.com/datallboy/gofetch/internal/infra/logger"
	"github.com/datallboy/gofetch/internal/segment"
)

type SchedulerConfig struct {
	MaxConnections int
	Retries        int
	Governor       GovernorConfig
	PieceCheck     bool
}

// Scheduler owns the cooperative step loop: every pending transfer command
// gets one bounded Step per turn on the worker pool, re-enqueues itself on
// VerdictAgain, and is re-dialed with backoff on retryable failures. No
// command ever has more than one step in flight, which keeps per-segment
// writes and hash updates ordered.
type Scheduler struct {
	group    *domain.RequestGroup
	registry *segment.Registry
	writer   *FileWriter
	path     string
	dialer   Dialer
	journal  Journal  // optional
	verifier Verifier // optional
	log      *logger.Logger
	cfg      SchedulerConfig
}

func NewScheduler(group *domain.RequestGroup, writer *FileWriter, path string,
	dialer Dialer, log *logger.Logger, cfg SchedulerConfig) *Scheduler {

	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 1
	}

	return &Scheduler{
		group:    group,
		registry: group.Registry(),
		writer:   writer,
		path:     path,
		dialer:   dialer,
		log:      log,
		cfg:      cfg,
	}
}

// SetJournal attaches segment-completion persistence.
func (s *Scheduler) SetJournal(j Journal) { s.journal = j }

// SetVerifier attaches the whole-file post-download verification task.
func (s *Scheduler) SetVerifier(v Verifier) { s.verifier = v }

type stepResult struct {
	cmd     *TransferCommand
	verdict Verdict
	err     error
}

// Run drives the download until every segment is retired, an unrecoverable
// error remains, or ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.group.DownloadFinished() {
		// Everything restored from the journal; nothing to transfer.
		return s.finish(ctx)
	}

	pool, err := ants.NewPool(s.cfg.MaxConnections)
	if err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	defer pool.Release()

	// Each active unit occupies at most one slot in either channel.
	queue := make(chan *TransferCommand, s.cfg.MaxConnections*2)
	results := make(chan stepResult, s.cfg.MaxConnections*2)

	active := 0
	retries := make(map[string]int)

	for i := 0; i < s.cfg.MaxConnections; i++ {
		id := fmt.Sprintf("conn-%d", i+1)
		cmd, err := s.openConnection(ctx, id)
		if err != nil {
			s.log.Warn("connection %s: initial dial failed: %v", id, err)
			continue
		}
		if cmd == nil {
			break // no more segments to hand out
		}
		active++
		queue <- cmd
	}

	if active == 0 {
		return fmt.Errorf("no connection could be established")
	}

	var finalErr error
	aborting := false
	done := ctx.Done()

	for active > 0 {
		select {
		case <-done:
			done = nil
			aborting = true
			finalErr = ctx.Err()

		case cmd := <-queue:
			if aborting {
				cmd.Close()
				s.registry.CancelSegment(cmd.ID())
				active--
				continue
			}
			c := cmd
			if err := pool.Submit(func() {
				verdict, err := c.Step()
				results <- stepResult{cmd: c, verdict: verdict, err: err}
			}); err != nil {
				results <- stepResult{cmd: c, verdict: VerdictDone, err: err}
			}

		case res := <-results:
			if res.cmd == nil {
				// A deferred re-dial gave up.
				if res.err != nil && finalErr == nil {
					finalErr = res.err
				}
				active--
				continue
			}
			if aborting {
				res.cmd.Close()
				s.registry.CancelSegment(res.cmd.ID())
				active--
				continue
			}

			id := res.cmd.ID()
			switch {
			case res.err != nil && domain.IsRetryable(res.err) && retries[id] < s.cfg.Retries:
				retries[id]++
				res.cmd.Close()
				s.registry.CancelSegment(id)

				// Backoff doubles per attempt: 2s, 4s, 8s...
				delay := time.Duration(math.Pow(2, float64(retries[id]))) * time.Second
				s.log.Warn("[Retry] connection %s: attempt %d/%d in %s - %v",
					id, retries[id], s.cfg.Retries, delay, res.err)
				s.redialLater(ctx, id, delay, queue, results)

			case res.err != nil:
				res.cmd.Close()
				s.registry.CancelSegment(id)
				s.log.Error("connection %s failed: %v", id, res.err)
				if finalErr == nil {
					finalErr = res.err
				}
				active--

			case res.verdict == VerdictAgain:
				queue <- res.cmd

			case res.verdict == VerdictRetry:
				res.cmd.Close()
				s.registry.CancelSegment(id)
				s.redialLater(ctx, id, 0, queue, results)

			default: // VerdictDone
				res.cmd.Close()
				active--
			}
		}
	}

	if finalErr != nil {
		return finalErr
	}
	if !s.group.DownloadFinished() {
		return fmt.Errorf("download incomplete: %d/%d bytes",
			s.registry.TotalWritten(), s.group.TotalLength())
	}

	return s.finish(ctx)
}

// redialLater re-assigns the byte range on a fresh connection for the same
// connection id, off the scheduling loop so the delay never blocks it.
func (s *Scheduler) redialLater(ctx context.Context, id string, delay time.Duration,
	queue chan *TransferCommand, results chan stepResult) {

	time.AfterFunc(delay, func() {
		cmd, err := s.openConnection(ctx, id)
		if err != nil || cmd == nil {
			results <- stepResult{cmd: nil, err: err}
			return
		}
		queue <- cmd
	})
}

// openConnection claims a segment for id and dials a connection positioned
// at the segment's resume offset. Returns (nil, nil) when no segment is left.
func (s *Scheduler) openConnection(ctx context.Context, id string) (*TransferCommand, error) {
	seg := s.registry.Assign(id)
	if seg == nil {
		return nil, nil
	}

	conn, err := s.dialer.Dial(ctx, seg.PositionToWrite())
	if err != nil {
		s.registry.CancelSegment(id)
		return nil, fmt.Errorf("dial for segment %d: %v: %w", seg.Index(), err, domain.ErrRetry)
	}

	cmd := NewTransferCommand(CommandConfig{
		ID:                 id,
		Conn:               conn,
		Group:              s.group,
		Segment:            seg,
		Writer:             s.writer,
		Path:               s.path,
		Logger:             s.log,
		Governor:           s.cfg.Governor,
		PieceCheck:         s.cfg.PieceCheck,
		OnSegmentComplete:  s.segmentCompleted,
		OnDownloadFinished: s.downloadFinished,
	})

	if conn.TransferEncoding() == "chunked" {
		cmd.SetTransferDecoder(decoding.NewChunkedDecoder())
	}
	cd, err := decoding.NewContentDecoder(conn.ContentEncoding())
	if err != nil {
		cmd.Close()
		s.registry.CancelSegment(id)
		return nil, err
	}
	if cd != nil {
		cmd.SetContentDecoder(cd)
	}

	return cmd, nil
}

func (s *Scheduler) segmentCompleted(seg *segment.Segment) {
	if s.journal == nil {
		return
	}
	if err := s.journal.MarkSegmentComplete(s.group.ID, seg.Index(), seg.WrittenLength()); err != nil {
		s.log.Warn("journal: segment %d: %v", seg.Index(), err)
	}
}

// downloadFinished fires from the one command whose continuation policy
// observed DOWNLOAD_COMPLETE. The verification task itself runs exactly
// once, in finish.
func (s *Scheduler) downloadFinished() {
	s.log.Info("download %s: all segments completed", s.group.ID)
}

func (s *Scheduler) finish(ctx context.Context) error {
	if s.journal != nil {
		if err := s.journal.MarkDownloadComplete(s.group.ID); err != nil {
			s.log.Warn("journal: %v", err)
		}
	}

	if s.verifier != nil {
		return s.verifier.Run(ctx)
	}
	return nil
}
