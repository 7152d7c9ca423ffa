package safe

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMaxFileSize is the default maximum file size for safe file operations (1MB).
const DefaultMaxFileSize = 1 << 20

// FileOptions configures the behavior of ReadFile and WriteFile.
type FileOptions struct {
	// MaxSize is the maximum allowed file size in bytes. Zero means DefaultMaxFileSize.
	MaxSize int64
	// Perm is the permission mode for written files. Zero means 0600.
	Perm os.FileMode
	// AllowSymlinks allows reading through symlinks. Default is false.
	AllowSymlinks bool
}

func (o *FileOptions) maxSize() int64 {
	if o == nil || o.MaxSize == 0 {
		return DefaultMaxFileSize
	}
	return o.MaxSize
}

// ReadFile reads a file with security validations.
// It rejects symlinks by default to prevent file inclusion attacks,
// validates file size, and ensures only regular files are read.
func ReadFile(path string, opts *FileOptions) ([]byte, error) {
	if opts == nil {
		opts = &FileOptions{}
	}
	maxSize := opts.maxSize()

	cleanPath := filepath.Clean(path)

	// Check file info without following symlinks.
	info, err := os.Lstat(cleanPath)
	if err != nil {
		return nil, err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		if !opts.AllowSymlinks {
			return nil, fmt.Errorf("file %q is a symlink, which is not allowed for security reasons", path)
		}
		info, err = os.Stat(cleanPath)
		if err != nil {
			return nil, err
		}
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path %q is not a regular file", path)
	}

	// Check file size to prevent resource exhaustion.
	if info.Size() > maxSize {
		return nil, fmt.Errorf("file exceeds maximum allowed size of %d bytes", maxSize)
	}

	return os.ReadFile(cleanPath)
}

// WriteFile writes data to path through a temporary file and a rename, so
// readers never observe a partially written file. Parent directories are
// created with mode 0700.
func WriteFile(path string, data []byte, opts *FileOptions) error {
	if opts == nil {
		opts = &FileOptions{}
	}
	if int64(len(data)) > opts.maxSize() {
		return fmt.Errorf("data exceeds maximum allowed size of %d bytes", opts.maxSize())
	}
	perm := opts.Perm
	if perm == 0 {
		perm = 0o600
	}

	cleanPath := filepath.Clean(path)
	dir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(cleanPath)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, cleanPath)
}
