package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"meter_gateway/internal/models"
)

// FileWriter appends audit batches to size-rotated JSONL files. It is the
// archive sink for deployments without object storage.
type FileWriter struct {
	fileTemplate string // e.g. "/var/log/meter-gateway/audit-%s.jsonl"
	maxSize      int64
	maxFiles     int

	mu          sync.Mutex
	currentFile string
	file        *os.File
	currentSize int64
}

// NewFileWriter opens the first file immediately so configuration errors
// surface at startup rather than on the first batch.
func NewFileWriter(fileTemplate string, maxSize int64, maxFiles int) (*FileWriter, error) {
	w := &FileWriter{
		fileTemplate: fileTemplate,
		maxSize:      maxSize,
		maxFiles:     maxFiles,
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *FileWriter) newFileName() string {
	timestamp := time.Now().Format("20060102150405.000000000")
	return fmt.Sprintf(w.fileTemplate, timestamp)
}

func (w *FileWriter) openFile() error {
	w.currentFile = w.newFileName()
	dir := filepath.Dir(w.currentFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.OpenFile(w.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	w.currentSize = fi.Size()
	w.file = file
	return nil
}

func (w *FileWriter) rotateIfNeeded(n int) error {
	if w.currentSize+int64(n) < w.maxSize {
		return nil
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	if err := w.openFile(); err != nil {
		return err
	}
	return w.cleanupOldFiles()
}

// cleanupOldFiles removes the oldest rotated files beyond maxFiles.
func (w *FileWriter) cleanupOldFiles() error {
	pattern := fmt.Sprintf(w.fileTemplate, "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, err1 := os.Stat(matches[i])
		fj, err2 := os.Stat(matches[j])
		if err1 != nil || err2 != nil {
			return false
		}
		return fi.ModTime().Before(fj.ModTime())
	})

	excess := len(matches) - w.maxFiles
	for i := 0; i < excess; i++ {
		_ = os.Remove(matches[i])
	}
	return nil
}

// WriteBatch appends the entries as JSON Lines and returns the file the
// batch landed in. A batch always goes to a single file; rotation happens
// between batches.
func (w *FileWriter) WriteBatch(ctx context.Context, entries []*models.AuditLogEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	var buf []byte
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(len(buf)); err != nil {
		return "", fmt.Errorf("failed to rotate audit file: %w", err)
	}

	n, err := w.file.Write(buf)
	w.currentSize += int64(n)
	if err != nil {
		return "", fmt.Errorf("failed to write audit batch: %w", err)
	}

	return w.currentFile, nil
}

// Close closes the active file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}
