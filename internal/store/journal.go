package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/datallboy/gofetch/internal/segment"
)

const (
	StatusActive   = "active"
	StatusComplete = "complete"
)

// CreateDownload records a new download and its segment layout.
func (s *PersistentStore) CreateDownload(id, name, url string, totalBytes int64, segments []*segment.Segment) error {
	query := s.rebind(`INSERT INTO downloads (id, name, url, total_bytes, status, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`)

	if _, err := s.db.Exec(query, id, name, url, totalBytes, StatusActive, time.Now().UTC()); err != nil {
		return err
	}

	segQuery := s.rebind(`INSERT INTO segments (download_id, idx, position, length, written, complete)
              VALUES (?, ?, ?, ?, 0, FALSE)`)

	for _, seg := range segments {
		if _, err := s.db.Exec(segQuery, id, seg.Index(), seg.Position(), seg.Length()); err != nil {
			return err
		}
	}
	return nil
}

// FindActiveDownload looks up an unfinished download for the same URL so a
// rerun resumes instead of starting over. Returns "" when there is none.
func (s *PersistentStore) FindActiveDownload(url string) (string, error) {
	query := s.rebind(`SELECT id FROM downloads WHERE url = ? AND status = ? ORDER BY created_at DESC LIMIT 1`)

	var id string
	err := s.db.QueryRow(query, url, StatusActive).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

// CompletedSegments returns the indexes already retired for a download.
func (s *PersistentStore) CompletedSegments(downloadID string) (map[int]int64, error) {
	query := s.rebind(`SELECT idx, written FROM segments WHERE download_id = ? AND complete = TRUE`)

	rows, err := s.db.Query(query, downloadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]int64)
	for rows.Next() {
		var idx int
		var written int64
		if err := rows.Scan(&idx, &written); err != nil {
			return nil, err
		}
		out[idx] = written
	}
	return out, rows.Err()
}

// MarkSegmentComplete retires one segment in the journal.
func (s *PersistentStore) MarkSegmentComplete(downloadID string, index int, written int64) error {
	query := s.rebind(`UPDATE segments SET written = ?, complete = TRUE WHERE download_id = ? AND idx = ?`)

	_, err := s.db.Exec(query, written, downloadID, index)
	return err
}

// MarkDownloadComplete flips the download's status once every segment is done.
func (s *PersistentStore) MarkDownloadComplete(downloadID string) error {
	query := s.rebind(`UPDATE downloads SET status = ? WHERE id = ?`)

	_, err := s.db.Exec(query, StatusComplete, downloadID)
	return err
}
