package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/studio-b12/gowebdav"

	"github.com/galerly/galerly/config"
)

// WebDAVStorage stores objects on a WebDAV share.
type WebDAVStorage struct {
	client   *gowebdav.Client
	rootPath string
}

// NewWebDAVStorage creates a WebDAV provider and verifies the connection.
func NewWebDAVStorage(cfg *config.Config) (*WebDAVStorage, error) {
	if cfg.WebDAVURL == "" {
		return nil, fmt.Errorf("webdav URL is required")
	}

	rootPath := strings.Trim(cfg.WebDAVRoot, "/")
	if rootPath != "" {
		rootPath = "/" + rootPath
	}

	client := gowebdav.NewClient(cfg.WebDAVURL, cfg.WebDAVUsername, cfg.WebDAVPassword)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := testWebDAVConnection(ctx, client, rootPath); err != nil {
		return nil, fmt.Errorf("webdav connection test failed: %w", err)
	}

	return &WebDAVStorage{
		client:   client,
		rootPath: rootPath,
	}, nil
}

func testWebDAVConnection(ctx context.Context, client *gowebdav.Client, rootPath string) error {
	done := make(chan error, 1)
	go func() {
		_, err := client.ReadDir(rootPath)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (s *WebDAVStorage) fullPath(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.rootPath != "" {
		return s.rootPath + "/" + key
	}
	return "/" + key
}

func (s *WebDAVStorage) ensureParentDir(fullPath string) error {
	parentDir := path.Dir(fullPath)
	if parentDir == "/" || parentDir == "." {
		return nil
	}
	return s.client.MkdirAll(parentDir, 0755)
}

func (s *WebDAVStorage) SaveWithContext(ctx context.Context, key string, file io.Reader) error {
	if !IsValidStorageKey(key) {
		return fmt.Errorf("invalid storage key: %s", key)
	}

	fullPath := s.fullPath(key)
	if err := s.ensureParentDir(fullPath); err != nil {
		return fmt.Errorf("failed to create webdav directory for '%s': %w", key, err)
	}

	if err := s.client.WriteStream(fullPath, file, 0644); err != nil {
		return fmt.Errorf("failed to write '%s' to webdav: %w", key, err)
	}
	return nil
}

func (s *WebDAVStorage) GetWithContext(ctx context.Context, key string) (io.ReadSeeker, error) {
	if !IsValidStorageKey(key) {
		return nil, fmt.Errorf("invalid storage key: %s", key)
	}

	data, err := s.client.Read(s.fullPath(key))
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return nil, fmt.Errorf("file not found in webdav: %s", key)
		}
		return nil, fmt.Errorf("failed to read '%s' from webdav: %w", key, err)
	}
	return bytes.NewReader(data), nil
}

func (s *WebDAVStorage) DeleteWithContext(ctx context.Context, key string) error {
	if !IsValidStorageKey(key) {
		return fmt.Errorf("invalid storage key: %s", key)
	}

	if err := s.client.Remove(s.fullPath(key)); err != nil && !gowebdav.IsErrNotFound(err) {
		return fmt.Errorf("failed to delete '%s' from webdav: %w", key, err)
	}
	return nil
}

func (s *WebDAVStorage) Exists(ctx context.Context, key string) (bool, error) {
	if !IsValidStorageKey(key) {
		return false, fmt.Errorf("invalid storage key: %s", key)
	}

	_, err := s.client.Stat(s.fullPath(key))
	if err != nil {
		if gowebdav.IsErrNotFound(err) || os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat '%s' in webdav: %w", key, err)
	}
	return true, nil
}

func (s *WebDAVStorage) Health(ctx context.Context) error {
	_, err := s.client.ReadDir(s.rootPath)
	return err
}

func (s *WebDAVStorage) Name() string {
	return "webdav"
}
