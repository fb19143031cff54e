package projectdb

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// CursorFile persists the change-feed cursor between polls. The cursor is
// an opaque monotonic sequence token; persisted values never decrease.
type CursorFile struct {
	path string
	mu   sync.Mutex
}

// NewCursorFile creates a cursor persisted at path.
func NewCursorFile(path string) *CursorFile {
	return &CursorFile{path: path}
}

// Load reads the persisted cursor. A missing or unreadable file yields
// zero, meaning the feed starts from the beginning.
func (c *CursorFile) Load() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := os.ReadFile(c.path)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Save persists the cursor atomically (write-temp-then-rename). Attempts
// to move the cursor backwards are ignored.
func (c *CursorFile) Save(cursor uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, err := os.ReadFile(c.path); err == nil {
		if prev, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64); err == nil && cursor < prev {
			return nil
		}
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cursor directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cursor-*")
	if err != nil {
		return fmt.Errorf("create cursor temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(strconv.FormatUint(cursor, 10) + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cursor temp file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace cursor file: %w", err)
	}
	return nil
}
