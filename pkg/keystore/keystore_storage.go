package keystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

func (s *Store) keyPath(id string) string {
	return filepath.Join(s.cfg.Dir, id+".json")
}

// save writes f through a temp file and rename so a crash never leaves a
// half-written key file. Callers hold s.mu.
func (s *Store) save(f *keyFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key file: %w", err)
	}

	tmp, err := os.CreateTemp(s.cfg.Dir, "."+f.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict key file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close key file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.keyPath(f.ID)); err != nil {
		return fmt.Errorf("failed to install key file: %w", err)
	}
	return nil
}

func (s *Store) remove(id string) error {
	if err := os.Remove(s.keyPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove key file: %w", err)
	}
	return nil
}

// loadAll indexes every <uuid>.json in the directory. Other files are ignored.
func (s *Store) loadAll() error {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return fmt.Errorf("failed to read key directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		if _, err := uuid.Parse(id); err != nil {
			continue
		}

		path := filepath.Join(s.cfg.Dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read key file %s: %w", path, err)
		}
		var f keyFile
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("%w %s: %v", ErrCorruptKeyFile, path, err)
		}
		if f.ID != id {
			return fmt.Errorf("%w %s: id %q does not match file name", ErrCorruptKeyFile, path, f.ID)
		}
		if f.Version != fileVersion {
			return fmt.Errorf("%w %s: unsupported version %d", ErrCorruptKeyFile, path, f.Version)
		}
		if _, err := ParseKind(string(f.Kind)); err != nil {
			return fmt.Errorf("%w %s: %v", ErrCorruptKeyFile, path, err)
		}
		s.keys[id] = &f
	}
	return nil
}
