package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalStorage stores objects on the local filesystem under a base directory.
type LocalStorage struct {
	absBasePath string
}

// NewLocalStorage creates a local provider rooted at basePath. The directory
// is created and checked for writability up front.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory '%s': %w", absPath, err)
	}

	testFile := filepath.Join(absPath, ".write_test_"+strconv.FormatInt(time.Now().UnixNano(), 10))
	f, err := os.Create(testFile)
	if err != nil {
		return nil, fmt.Errorf("local storage directory '%s' is not writable: %w", absPath, err)
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	return &LocalStorage{
		absBasePath: absPath + string(os.PathSeparator),
	}, nil
}

func (s *LocalStorage) SaveWithContext(ctx context.Context, key string, file io.Reader) error {
	if !IsValidStorageKey(key) {
		return fmt.Errorf("invalid storage key: %s", key)
	}

	dstPath := filepath.Join(s.absBasePath, key)
	if !strings.HasPrefix(dstPath, s.absBasePath) {
		return fmt.Errorf("invalid file path, potential directory traversal: %s", key)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", key, err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file '%s': %w", dstPath, err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, file); err != nil {
		_ = os.Remove(dstPath)
		return fmt.Errorf("failed to copy file content to '%s': %w", dstPath, err)
	}

	return nil
}

func (s *LocalStorage) GetWithContext(ctx context.Context, key string) (io.ReadSeeker, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found in local storage: %s", key)
		}
		return nil, fmt.Errorf("failed to open file '%s': %w", key, err)
	}

	return file, nil
}

// OpenFile exposes the underlying *os.File so handlers can use sendfile.
func (s *LocalStorage) OpenFile(ctx context.Context, key string) (*os.File, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

func (s *LocalStorage) DeleteWithContext(ctx context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file '%s': %w", key, err)
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(fullPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *LocalStorage) Health(ctx context.Context) error {
	_, err := os.Stat(s.absBasePath)
	return err
}

func (s *LocalStorage) Name() string {
	return "local"
}

func (s *LocalStorage) resolve(key string) (string, error) {
	if !IsValidStorageKey(key) {
		return "", fmt.Errorf("invalid storage key: %s", key)
	}

	fullPath := filepath.Join(s.absBasePath, key)
	if !strings.HasPrefix(fullPath, s.absBasePath) {
		return "", fmt.Errorf("invalid file path, potential directory traversal: %s", key)
	}
	return fullPath, nil
}

// IsValidStorageKey rejects absolute paths, traversal sequences and unsafe
// characters.
func IsValidStorageKey(key string) bool {
	if key == "" {
		return false
	}

	if filepath.IsAbs(key) {
		return false
	}

	if strings.Contains(key, "..") {
		return false
	}

	for _, r := range key {
		if (r < 'a' || r > 'z') &&
			(r < 'A' || r > 'Z') &&
			(r < '0' || r > '9') &&
			r != '-' && r != '_' && r != '.' && r != '/' {
			return false
		}
	}

	return true
}
