// Package storage writes uploaded blobs and hands back an opaque locator.
// Nothing above this layer interprets the locator.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type Storage interface {
	Save(ctx context.Context, uploader uuid.UUID, filename string, r io.Reader) (string, error)
}

type Disk struct {
	root string
}

func NewDisk(root string) *Disk {
	return &Disk{root: root}
}

// Save stores the blob under uploads/<user_id>/<random>-<filename> and
// returns that relative path as the locator.
func (d *Disk) Save(ctx context.Context, uploader uuid.UUID, filename string, r io.Reader) (string, error) {
	locator := filepath.ToSlash(filepath.Join("uploads", uploader.String(),
		uuid.NewString()+"-"+filepath.Base(filename)))

	path := filepath.Join(d.root, filepath.FromSlash(locator))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("storage: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("storage: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("storage: %w", err)
	}
	return locator, nil
}
