package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DedupStore keeps the processed message id window in a single JSON array file.
type DedupStore struct {
	path string
}

// NewDedupStore creates the parent directory of path if needed.
func NewDedupStore(path string) (*DedupStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create dedup dir: %w", err)
	}
	return &DedupStore{path: path}, nil
}

func (d *DedupStore) SaveIDs(_ context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Dir(d.path), d.path, "dedup-*.tmp", data)
}

// LoadIDs returns the persisted ids, or none when the file does not exist yet.
func (d *DedupStore) LoadIDs(_ context.Context) ([]string, error) {
	data, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dedup file: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse dedup file: %w", err)
	}
	return ids, nil
}
