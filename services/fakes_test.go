package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nanostudio/nanostudio-services-uploads/models"
	"github.com/nanostudio/nanostudio-services-uploads/store"
)

// fakeBlobStorage is an in-memory stand-in for the S3-backed blob store.
type fakeBlobStorage struct {
	mu      sync.Mutex
	objects map[string]*store.ObjectMetadata
	deleted []string

	uploadURL   string
	presignErr  error
	existsErr   error
	downloadURL string
}

func newFakeBlobStorage() *fakeBlobStorage {
	return &fakeBlobStorage{
		objects:     make(map[string]*store.ObjectMetadata),
		uploadURL:   "https://blobs.example.com/put",
		downloadURL: "https://blobs.example.com/get",
	}
}

func (f *fakeBlobStorage) GenerateUploadUrl(ctx context.Context, key string, contentType string, ttl time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return f.uploadURL, nil
}

func (f *fakeBlobStorage) GenerateDownloadUrl(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return f.downloadURL, nil
}

func (f *fakeBlobStorage) Exists(ctx context.Context, key string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeBlobStorage) GetMetadata(ctx context.Context, key string) (*store.ObjectMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key], nil
}

func (f *fakeBlobStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeBlobStorage) IsReady(ctx context.Context) error { return nil }
func (f *fakeBlobStorage) Name() string                      { return "BlobStorage[fake]" }

// fakeAnalyzer records invocations of the downstream analysis call.
type fakeAnalyzer struct {
	mu        sync.Mutex
	calls     atomic.Int32
	result    string
	err       error
	payload   string
	selection *models.Selection
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, payload string, selection *models.Selection) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.payload = payload
	f.selection = selection
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

// fakeFileStore collects created file records.
type fakeFileStore struct {
	mu      sync.Mutex
	files   []models.File
	reads   int
	readErr error
}

func (f *fakeFileStore) Get(ctx context.Context, uploadID string) (*models.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.files {
		if f.files[i].UploadId == uploadID {
			return &f.files[i], nil
		}
	}
	return nil, nil
}

func (f *fakeFileStore) Create(ctx context.Context, file models.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, file)
	return nil
}

func (f *fakeFileStore) Read(ctx context.Context, ownerID string) ([]models.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	var out []models.File
	for _, file := range f.files {
		if file.OwnerID == ownerID {
			out = append(out, file)
		}
	}
	return out, nil
}

func (f *fakeFileStore) IsReady(ctx context.Context) error { return nil }
func (f *fakeFileStore) Name() string                      { return "FileStore[fake]" }

// mapCaching is a plain map-backed CachingService.
type mapCaching struct {
	mu      sync.Mutex
	entries map[string]string
	deletes []string
}

func newMapCaching() *mapCaching {
	return &mapCaching{entries: make(map[string]string)}
}

func (m *mapCaching) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *mapCaching) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *mapCaching) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	m.deletes = append(m.deletes, key)
	return nil
}
