package refactor

import (
	"fmt"
	"io"
	"io/fs"
	"os"
)

// FileSystem is the disk surface the engines write through. Paths are
// absolute.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Stat(path string) (fs.FileInfo, error)
	MkdirAll(dir string) error
	Rename(from, to string) error
}

// OSFileSystem writes to the local disk.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile keeps the mode of an existing file.
func (OSFileSystem) WriteFile(path string, data []byte) error {
	perm := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return os.WriteFile(path, data, perm)
}

func (OSFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (OSFileSystem) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// Rename moves a file, falling back to copy and remove when the rename
// syscall fails, as it does across devices.
func (OSFileSystem) Rename(from, to string) error {
	err := os.Rename(from, to)
	if err == nil {
		return nil
	}
	if cerr := copyFile(from, to); cerr != nil {
		return fmt.Errorf("failed to move %s: %w", from, err)
	}
	if rerr := os.Remove(from); rerr != nil {
		return fmt.Errorf("failed to remove %s after copy: %w", from, rerr)
	}
	return nil
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
