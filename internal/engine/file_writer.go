package engine

import (
	"fmt"
	"io"
	"os"
	"sync"
)

type fileHandle struct {
	mu   sync.Mutex
	file *os.File
}

// FileWriter hands out positioned writes into the destination files of a
// download. Segments write at disjoint absolute offsets, so writes on the
// same handle need no ordering between each other; the per-handle lock only
// serializes against close.
type FileWriter struct {
	mu      sync.RWMutex
	handles map[string]*fileHandle
}

func NewFileWriter() *FileWriter {
	return &FileWriter{
		handles: make(map[string]*fileHandle),
	}
}

// WriteAt persists data at an absolute file offset.
func (fw *FileWriter) WriteAt(path string, data []byte, offset int64) error {
	h, err := fw.getOrCreateFile(path)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err = h.file.WriteAt(data, offset)
	return err
}

// ReadRange exposes an already-persisted byte range, used to recompute a
// piece hash when no rolling hash was kept during transfer.
func (fw *FileWriter) ReadRange(path string, offset, length int64) (io.Reader, error) {
	h, err := fw.getOrCreateFile(path)
	if err != nil {
		return nil, err
	}
	return io.NewSectionReader(h.file, offset, length), nil
}

// PreAllocate reserves the final size up front. Truncate produces a sparse
// file on Linux, so no blocks are written yet.
func (fw *FileWriter) PreAllocate(path string, size int64) error {
	h, err := fw.getOrCreateFile(path)
	if err != nil {
		return err
	}
	return h.file.Truncate(size)
}

func (fw *FileWriter) getOrCreateFile(path string) (*fileHandle, error) {
	fw.mu.RLock()
	h, ok := fw.handles[path]
	fw.mu.RUnlock()
	if ok {
		return h, nil
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	h, ok = fw.handles[path]
	if ok {
		return h, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open destination file: %w", err)
	}

	h = &fileHandle{file: f}
	fw.handles[path] = h

	return h, nil
}

func (fw *FileWriter) CloseAll() {
	fw.mu.RLock()
	paths := make([]string, 0, len(fw.handles))
	for path := range fw.handles {
		paths = append(paths, path)
	}
	fw.mu.RUnlock()

	for _, path := range paths {
		_ = fw.CloseFile(path)
	}
}

// CloseFile syncs and closes one destination file.
func (fw *FileWriter) CloseFile(path string) error {
	fw.mu.Lock()
	h, ok := fw.handles[path]
	if ok {
		delete(fw.handles, path)
	}
	fw.mu.Unlock()

	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.file.Sync()
	return h.file.Close()
}
