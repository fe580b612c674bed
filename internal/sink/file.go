package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/MahdiGraph/SiteSniper/internal/models"
)

// FileSink persists the directive set as a declarativeNetRequest rules JSON
// file, the format an extension ruleset or a policy loader consumes
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates a sink writing to path. The file is created on the first Replace.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the rules file location
func (f *FileSink) Path() string {
	return f.path
}

// Ensure creates an empty rules file if none exists yet, so consumers can
// load it before the first pass
func (f *FileSink) Ensure() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return writeDirectivesAtomic(f.path, []models.Directive{})
}

// GetCurrent reads the rules file. A missing file holds no directives.
func (f *FileSink) GetCurrent(ctx context.Context) ([]models.Directive, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

// Replace rewrites the rules file with the updated set
func (f *FileSink) Replace(ctx context.Context, removeIDs []int, add []models.Directive) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	current, err := f.read()
	if err != nil {
		return err
	}
	next, err := applyUpdate(current, removeIDs, add)
	if err != nil {
		return err
	}
	return writeDirectivesAtomic(f.path, next)
}

func (f *FileSink) read() ([]models.Directive, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Directive{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var directives []models.Directive
	if err := json.Unmarshal(data, &directives); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", f.path, err)
	}
	if directives == nil {
		directives = []models.Directive{}
	}
	return directives, nil
}

// writeDirectivesAtomic writes through a temp file in the same directory so
// readers never observe a partial file
func writeDirectivesAtomic(path string, directives []models.Directive) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".rules.json.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(directives); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
