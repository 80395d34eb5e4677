package uploads

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// BlobStore keeps the raw bytes of uploaded files
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// BlobKey names the stored file of an upload
func BlobKey(hash, filename string) string {
	return hash + "-" + filepath.Base(filename)
}

// DiskBlobStore stores blobs as files in a directory
type DiskBlobStore struct {
	dir string
}

// NewDiskBlobStore creates a blob store rooted at dir
func NewDiskBlobStore(dir string) *DiskBlobStore {
	return &DiskBlobStore{dir: dir}
}

// Put writes data under key, replacing any previous content
func (s *DiskBlobStore) Put(_ context.Context, key string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(key)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create upload %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write upload %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write upload %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("failed to store upload %s: %w", key, err)
	}
	return nil
}

// Get reads the blob stored under key
func (s *DiskBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %s: %w", key, err)
	}
	return data, nil
}

func (s *DiskBlobStore) path(key string) string {
	return filepath.Join(s.dir, filepath.Base(key))
}
