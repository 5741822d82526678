package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/showroombot/internal/store"
)

// SessionStore persists each session as one JSON file in a directory.
type SessionStore struct {
	dir string
}

// NewSessionStore creates the storage directory if needed.
func NewSessionStore(dir string) (*SessionStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &SessionStore{dir: dir}, nil
}

// Save persists a session to disk atomically.
func (f *SessionStore) Save(_ context.Context, s store.SessionData) error {
	if s.History == nil {
		s.History = []store.Turn{}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	filename := sanitizeFilename(s.Key)
	if filename == "" || filename == "." || !filepath.IsLocal(filename) || strings.ContainsAny(filename, `/\`) {
		return os.ErrInvalid
	}

	return writeFileAtomic(f.dir, filepath.Join(f.dir, filename+".json"), "session-*.tmp", data)
}

// LoadAll reads every session file; unreadable files are skipped.
func (f *SessionStore) LoadAll(_ context.Context) ([]store.SessionData, error) {
	files, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}

	var out []store.SessionData
	for _, entry := range files {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(f.dir, entry.Name()))
		if err != nil {
			continue
		}

		var s store.SessionData
		if err := json.Unmarshal(data, &s); err != nil || s.Key == "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func sanitizeFilename(key string) string {
	r := strings.NewReplacer(":", "_", "/", "_", `\`, "_")
	return r.Replace(key)
}

// writeFileAtomic writes data to a temp file in dir, syncs it, then renames it over path.
func writeFileAtomic(dir, path, pattern string, data []byte) error {
	tmpFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
