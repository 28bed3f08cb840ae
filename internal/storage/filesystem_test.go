package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadReturnsPublicURL(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/static/")
	require.NoError(t, err)

	url, err := store.Upload(context.Background(), "generated/videos/job-1/video.mp4", []byte("media"), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/static/generated/videos/job-1/video.mp4", url)

	data, err := os.ReadFile(filepath.Join(store.BasePath(), "generated", "videos", "job-1", "video.mp4"))
	require.NoError(t, err)
	assert.Equal(t, []byte("media"), data)
}

func TestUploadRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost/static")
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), "../../etc/passwd", []byte("x"), "text/plain")
	assert.Error(t, err)

	_, err = store.Upload(context.Background(), "", []byte("x"), "text/plain")
	assert.Error(t, err)
}

func TestUploadHonorsCancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost/static")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Upload(ctx, "a/b.png", []byte("x"), "image/png")
	assert.Error(t, err)
}
