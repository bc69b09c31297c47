package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_PathTraversal_Prevention(t *testing.T) {
	tempDir := t.TempDir()
	storage, err := NewLocalStorage(tempDir)
	require.NoError(t, err)

	ctx := context.Background()
	content := strings.NewReader("test content")

	traversalAttempts := []string{
		"../../../etc/passwd",
		"../../.env",
		"../config.yaml",
		"..",
		"",
		"folder/../../../etc/passwd",
		"test/../../test.txt",
	}

	for _, attempt := range traversalAttempts {
		t.Run("save_"+attempt, func(t *testing.T) {
			err := storage.SaveWithContext(ctx, attempt, content)
			assert.Error(t, err, "path traversal attempt should be rejected: %s", attempt)
			assert.Contains(t, err.Error(), "invalid")
		})
	}

	_, err = storage.GetWithContext(ctx, "../../../etc/passwd")
	assert.Error(t, err)

	err = storage.DeleteWithContext(ctx, "../../../etc/passwd")
	assert.Error(t, err)
}

func TestLocalStorage_SaveGetRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	storage, err := NewLocalStorage(tempDir)
	require.NoError(t, err)

	ctx := context.Background()
	key := "original/2024/01/15/a1b2c3d4e5f6.jpg"

	err = storage.SaveWithContext(ctx, key, strings.NewReader("jpeg bytes"))
	require.NoError(t, err)

	exists, err := storage.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	reader, err := storage.GetWithContext(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
}

func TestLocalStorage_DeleteAndExists(t *testing.T) {
	tempDir := t.TempDir()
	storage, err := NewLocalStorage(tempDir)
	require.NoError(t, err)

	ctx := context.Background()
	key := "archives/gallery-1.zip"

	require.NoError(t, storage.SaveWithContext(ctx, key, strings.NewReader("zip")))
	require.NoError(t, storage.DeleteWithContext(ctx, key))

	exists, err := storage.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting a missing key is not an error
	assert.NoError(t, storage.DeleteWithContext(ctx, key))
}

func TestIsValidStorageKey(t *testing.T) {
	valid := []string{
		"original/2024/01/15/abc.jpg",
		"renditions/abc_300.webp",
		"archives/gallery-7.zip",
		"a-b_c.d",
	}
	for _, key := range valid {
		assert.True(t, IsValidStorageKey(key), key)
	}

	invalid := []string{
		"",
		"/absolute/path",
		"has space.jpg",
		"semi;colon",
		"up/../traversal",
	}
	for _, key := range invalid {
		assert.False(t, IsValidStorageKey(key), key)
	}
}
