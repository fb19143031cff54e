package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ngisweden/yggdrasil/session"
)

// Sentinel errors for configuration loading.
var (
	// ErrConfigNotFound is returned when a required config file is missing.
	ErrConfigNotFound = errors.New("config file not found")
	// ErrConfigParse is returned when a config file contains malformed JSON.
	ErrConfigParse = errors.New("config parse error")
)

// DevPrefix is prepended to a logical config name when looking for the
// development variant of a file.
const DevPrefix = "dev_"

// Store provides read-only access to JSON configuration files under a
// single directory. When the session runs in dev mode, a file named
// dev_<name>.json takes precedence over <name>.json.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a config store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the directory the store reads from.
func (s *Store) Dir() string {
	return s.dir
}

// resolve maps a logical name to the file path to read, honouring the
// dev_ overlay when dev mode is active.
func (s *Store) resolve(name string) string {
	if session.DevMode() {
		devPath := filepath.Join(s.dir, DevPrefix+name+".json")
		if _, err := os.Stat(devPath); err == nil {
			s.logger.Debug("using dev config variant", "name", name, "path", devPath)
			return devPath
		}
	}
	return filepath.Join(s.dir, name+".json")
}

// Load reads the configuration for a logical name into a generic map.
// A missing file yields ErrConfigNotFound when required is true and an
// empty map otherwise. Malformed JSON yields ErrConfigParse.
func (s *Store) Load(name string, required bool) (map[string]any, error) {
	raw, err := s.loadRaw(s.resolve(name), required)
	if err != nil || raw == nil {
		return map[string]any{}, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, name, err)
	}
	return out, nil
}

// LoadInto reads the configuration for a logical name into v. The same
// missing-file and parse rules as Load apply; an optional missing file
// leaves v untouched.
func (s *Store) LoadInto(name string, required bool, v any) error {
	raw, err := s.loadRaw(s.resolve(name), required)
	if err != nil || raw == nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigParse, name, err)
	}
	return nil
}

// LoadPath reads a configuration file by explicit path, bypassing the
// logical-name lookup and the dev overlay.
func (s *Store) LoadPath(path string, v any) error {
	raw, err := s.loadRaw(path, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}
	return nil
}

func (s *Store) loadRaw(path string, required bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if required {
				return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			s.logger.Debug("optional config missing", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return data, nil
}
