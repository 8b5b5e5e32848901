package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Store is the permanent home of promoted images.
type Store interface {
	// Put moves the quarantined file at src into the store as filename.
	Put(ctx context.Context, filename, src string) error
	// Restore moves filename out of the store back to dst.
	Restore(ctx context.Context, filename, dst string) error
	// URL returns the public URL of filename.
	URL(filename string) string
}

// LocalStore keeps promoted images in a directory served as static files.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalStore) Put(_ context.Context, filename, src string) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return err
	}
	return moveFile(src, filepath.Join(s.dir, filename))
}

func (s *LocalStore) Restore(_ context.Context, filename, dst string) error {
	return moveFile(filepath.Join(s.dir, filename), dst)
}

func (s *LocalStore) URL(filename string) string {
	return s.baseURL + "/" + filename
}

// Path returns where filename lives on disk.
func (s *LocalStore) Path(filename string) string {
	return filepath.Join(s.dir, filename)
}

// ErrExists is returned when the destination name is already taken. Stores never
// replace an existing image.
var ErrExists = fmt.Errorf("image already exists: %w", fs.ErrExist)

// moveFile moves src to dst without replacing an existing dst. It hard-links and
// unlinks the source, copying when the two sit on different devices.
func moveFile(src, dst string) error {
	err := os.Link(src, dst)
	switch {
	case err == nil:
		return os.Remove(src)
	case errors.Is(err, fs.ErrExist):
		return ErrExists
	case errors.Is(err, fs.ErrNotExist):
		return err
	}
	if err := copyFile(src, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("move %s: %w", filepath.Base(src), err)
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
