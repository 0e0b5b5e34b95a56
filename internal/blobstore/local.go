package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalFetcher resolves ref against a root directory on the local
// filesystem. It exists for single-node or development deployments
// where standing up an object store is unwarranted overhead — the same
// role the teacher's TempDir flag played for file staging.
type LocalFetcher struct {
	root string
}

// NewLocalFetcher returns a Fetcher rooted at dir.
func NewLocalFetcher(dir string) *LocalFetcher {
	return &LocalFetcher{root: dir}
}

// Fetch reads the file at root/ref. ref must not escape root.
func (f *LocalFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	path := filepath.Join(f.root, filepath.Clean(string(filepath.Separator)+ref))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading local blob %s: %w", ref, err)
	}
	return data, nil
}
