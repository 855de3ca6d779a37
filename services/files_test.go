package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nanostudio/nanostudio-services-uploads/internal/logging"
	"github.com/nanostudio/nanostudio-services-uploads/models"
)

func TestGetFiles_CacheAside(t *testing.T) {
	files := &fakeFileStore{files: []models.File{
		{FileId: "f1", UploadId: "u1", OwnerID: "user-1", Name: "photo.png", Size: 42, CreatedAt: time.Now().UTC()},
	}}
	cache := newMapCaching()
	svc := NewFileServiceImpl(files, cache, logging.NewNopLogger())

	first, err := svc.GetFiles(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, first.Files, 1)
	require.Equal(t, 1, files.reads)

	// second call is served from the cache
	second, err := svc.GetFiles(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, second.Files, 1)
	require.Equal(t, "f1", second.Files[0].FileId)
	require.Equal(t, 1, files.reads)
}

func TestGetFiles_EmptyListing(t *testing.T) {
	svc := NewFileServiceImpl(&fakeFileStore{}, newMapCaching(), logging.NewNopLogger())

	resp, err := svc.GetFiles(context.Background(), "user-2")
	require.NoError(t, err)
	require.Empty(t, resp.Files)
}
