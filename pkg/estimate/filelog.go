package estimate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// FileLog keeps one JSON array per kind at <dir>/<kind>_history.json.
type FileLog struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex
}

// NewFileLog returns a FileLog rooted at dir on fs.
func NewFileLog(fs afero.Fs, dir string) *FileLog {
	return &FileLog{fs: fs, dir: dir}
}

func (l *FileLog) path(kind Kind) string {
	return filepath.Join(l.dir, string(kind)+"_history.json")
}

// Load returns every record of kind; a missing file is an empty history.
func (l *FileLog) Load(_ context.Context, kind Kind) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(kind)
}

func (l *FileLog) load(kind Kind) ([]Record, error) {
	data, err := afero.ReadFile(l.fs, l.path(kind))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", l.path(kind), err)
	}
	return records, nil
}

// Append adds rec and rewrites the file through a temp file and rename.
func (l *FileLog) Append(_ context.Context, kind Kind, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load(kind)
	if err != nil {
		return err
	}
	records = append(records, rec)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := l.fs.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	tmp := l.path(kind) + ".tmp"
	if err := afero.WriteFile(l.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := l.fs.Rename(tmp, l.path(kind)); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
