package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"

	"github.com/datallboy/gofetch/internal/api"
	"github.com/datallboy/gofetch/internal/app"
	"github.com/datallboy/gofetch/internal/domain"
	"github.com/datallboy/gofetch/internal/engine"
	"github.com/datallboy/gofetch/internal/infra/config"
	"github.com/datallboy/gofetch/internal/infra/logger"
	"github.com/datallboy/gofetch/internal/segment"
	"github.com/datallboy/gofetch/internal/source"
	"github.com/datallboy/gofetch/internal/store"
	"github.com/datallboy/gofetch/internal/verify"
)

type flags struct {
	configPath  string
	outName     string
	checksum    string
	pieceHashes string
	serve       bool
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:   "gofetch [url]",
		Short: "Segmented multi-connection download client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], f)
		},
		SilenceUsage: true,
	}

	root.Flags().StringVarP(&f.configPath, "config", "c", "", "path to config.yaml")
	root.Flags().StringVarP(&f.outName, "out", "o", "", "output file name (default: last URL path element)")
	root.Flags().StringVar(&f.checksum, "checksum", "", "expected whole-file checksum as algo:hexdigest")
	root.Flags().StringVar(&f.pieceHashes, "piece-hashes", "", "file declaring per-segment hashes: first line algorithm, then one hex digest per segment")
	root.Flags().BoolVar(&f.serve, "serve", false, "expose the status API while downloading")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(url string, f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return fmt.Errorf("logger error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := source.NewHTTPSource(url, source.HTTPOptions{Proxy: cfg.Download.Proxy})
	if err != nil {
		return err
	}

	length, acceptsRanges, err := src.Info(ctx)
	if err != nil {
		return err
	}

	connections := cfg.Download.MaxConnections
	if !acceptsRanges || length == 0 {
		// Without range support there is nothing to parallelize.
		connections = 1
	}

	segments := source.Partition(length, cfg.Download.SegmentSize)
	registry := segment.NewRegistry(segments)

	name := f.outName
	if name == "" {
		name = path.Base(url)
	}
	group := domain.NewRequestGroup(name, length, registry)

	if f.pieceHashes != "" {
		algo, hashes, err := loadPieceHashes(f.pieceHashes)
		if err != nil {
			return err
		}
		group.SetPieceHashes(algo, hashes)
	}

	if f.checksum != "" {
		algo, value, ok := strings.Cut(f.checksum, ":")
		if !ok {
			return fmt.Errorf("checksum must be algo:hexdigest, got %q", f.checksum)
		}
		group.SetChecksum(algo, strings.ToLower(value))
	}

	if err := os.MkdirAll(cfg.Download.OutDir, 0755); err != nil {
		return fmt.Errorf("failed to create out_dir: %w", err)
	}
	dest := filepath.Join(cfg.Download.OutDir, name)

	writer := engine.NewFileWriter()
	defer writer.CloseAll()

	if length > 0 {
		if err := writer.PreAllocate(dest, length); err != nil {
			return err
		}
	}

	journal, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer journal.Close()

	if err := restoreOrCreate(journal, group, url, segments); err != nil {
		return err
	}

	sched := engine.NewScheduler(group, writer, dest, src, log, engine.SchedulerConfig{
		MaxConnections: connections,
		Retries:        cfg.Download.Retries,
		PieceCheck:     cfg.Download.PieceCheck,
		Governor: engine.GovernorConfig{
			MaxSpeed:     cfg.Download.MaxSpeed,
			LowestSpeed:  cfg.Download.LowestSpeed,
			StartupGrace: cfg.Download.StartupGrace,
		},
	})
	sched.SetJournal(journal)

	if algo, value := group.Checksum(); value != "" {
		task := verify.NewTask(dest, algo, value, log)
		if task.Ready() {
			sched.SetVerifier(task)
		} else {
			log.Warn("checksum algorithm %s not supported, skipping whole-file verification", algo)
		}
	}

	appCtx := app.NewContext(cfg, log)
	appCtx.Group = group

	if f.serve {
		e := echo.New()
		api.RegisterRoutes(e, appCtx)
		go func() {
			if err := e.Start(":" + cfg.Port); err != nil {
				log.Warn("status API stopped: %v", err)
			}
		}()
	}

	go renderProgress(ctx, group)

	log.Info("starting download of %s (%d bytes, %d connections)", name, length, connections)

	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	if err := writer.CloseFile(dest); err != nil {
		return err
	}

	fmt.Println()
	log.Info("download finished: %s", dest)
	return nil
}

func openStore(cfg *config.Config) (*store.PersistentStore, error) {
	if cfg.Store.Driver == "postgres" {
		return store.NewPostgresStore(cfg.Store.PostgresDSN)
	}
	return store.NewSQLiteStore(cfg.Store.SQLitePath)
}

// restoreOrCreate resumes an interrupted download of the same URL by
// retiring the journaled segments up front, or records a fresh one.
func restoreOrCreate(journal *store.PersistentStore, group *domain.RequestGroup, url string, segments []*segment.Segment) error {
	existing, err := journal.FindActiveDownload(url)
	if err != nil {
		return err
	}

	if existing == "" {
		return journal.CreateDownload(group.ID, group.Name, url, group.TotalLength(), segments)
	}

	group.ID = existing
	completed, err := journal.CompletedSegments(existing)
	if err != nil {
		return err
	}

	registry := group.Registry()
	for idx := range completed {
		if idx < 0 || idx >= len(segments) {
			continue
		}
		seg := segments[idx]
		if err := seg.AdvanceWritten(seg.Length()); err != nil {
			return err
		}
		registry.CompleteSegment("journal", seg)
	}
	return nil
}

// loadPieceHashes reads a declaration file: the first line names the
// algorithm, every following line is one segment's hex digest in order.
func loadPieceHashes(path string) (string, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer file.Close()

	var algo string
	var hashes []string

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if algo == "" {
			algo = line
			continue
		}
		hashes = append(hashes, strings.ToLower(line))
	}
	if err := scanner.Err(); err != nil {
		return "", nil, err
	}
	if algo == "" {
		return "", nil, fmt.Errorf("piece hash file %s is empty", path)
	}
	return algo, hashes, nil
}
