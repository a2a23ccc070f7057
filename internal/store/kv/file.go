package kv

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// FileStore keeps one JSON file per key in dir. Aliases point individual keys
// at files owned by other tools, e.g. the scheduler's own jobs.json.
type FileStore struct {
	dir     string
	aliases map[string]string
}

func NewFileStore(dir string, aliases map[string]string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create snapshot dir %s", dir)
	}
	copied := make(map[string]string, len(aliases))
	for k, v := range aliases {
		copied[k] = v
	}
	return &FileStore{dir: dir, aliases: copied}, nil
}

func (s *FileStore) Name() string { return "file" }

// Path returns the file backing key.
func (s *FileStore) Path(key string) string {
	if p, ok := s.aliases[key]; ok && p != "" {
		return p
	}
	return filepath.Join(s.dir, filepath.Base(key)+".json")
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.Path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read snapshot %s", key)
	}
	return raw, nil
}

// Set writes through a temp file and rename so readers never see a partial
// document.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "create dir for %s", key)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return errors.Wrapf(err, "write snapshot %s", key)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "write snapshot %s", key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "write snapshot %s", key)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "replace snapshot %s", key)
	}
	return nil
}
