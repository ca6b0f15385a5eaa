package executor

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
)

// WriteResult describes a completed file write.
type WriteResult struct {
	Path         string
	BytesWritten int64
	Created      bool
	Unchanged    bool
	Checksum     string
}

// WriteFile atomically replaces path with content. Parent directories are
// created as needed. A file that already holds content with mode is left
// untouched.
func WriteFile(path string, content []byte, mode os.FileMode) (*WriteResult, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	sum := Checksum(content)
	info, err := os.Stat(path)
	existed := err == nil
	if existed && info.Mode().IsRegular() && info.Mode().Perm() == mode.Perm() {
		if current, err := FileChecksum(path); err == nil && current == sum {
			return &WriteResult{Path: path, Unchanged: true, Checksum: sum}, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return nil, fmt.Errorf("failed to set mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return nil, fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return &WriteResult{
		Path:         path,
		BytesWritten: int64(len(content)),
		Created:      !existed,
		Checksum:     sum,
	}, nil
}

// Checksum returns the hex sha256 of content.
func Checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// FileChecksum returns the checksum of the file at path.
func FileChecksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Checksum(data), nil
}
