package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nanostudio/nanostudio-services-uploads/internal/apperror"
	"github.com/nanostudio/nanostudio-services-uploads/internal/health"
	"github.com/nanostudio/nanostudio-services-uploads/models"
)

type ChunkStore interface {
	Put(ctx context.Context, uploadID string, chunkIndex int, totalChunks int, data string, selection *models.Selection) (*models.ChunkReceipt, error)
	Get(ctx context.Context, uploadID string) (*models.ChunkUpload, error)
	Delete(ctx context.Context, uploadID string) error
	LockFor(uploadID string) *sync.Mutex
	Sweep(ctx context.Context) int

	health.ReadinessCheck
}

// MemoryChunkStoreImpl reassembles chunked payloads in process memory.
// Writes to the same index are last-write-wins; writes to different indices
// are order-independent. Finalization must hold the per-upload mutex from
// LockFor across the whole read-invoke-delete sequence so two finalize calls
// cannot both observe the entry.
type MemoryChunkStoreImpl struct {
	mu      sync.Mutex
	uploads map[string]*models.ChunkUpload
	locks   map[string]*sync.Mutex

	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

func NewMemoryChunkStoreImpl(maxEntries int, ttl time.Duration) *MemoryChunkStoreImpl {
	return NewMemoryChunkStoreImplWithClock(maxEntries, ttl, time.Now)
}

func NewMemoryChunkStoreImplWithClock(maxEntries int, ttl time.Duration, now func() time.Time) *MemoryChunkStoreImpl {
	return &MemoryChunkStoreImpl{
		uploads:    make(map[string]*models.ChunkUpload),
		locks:      make(map[string]*sync.Mutex),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        now,
	}
}

func (s *MemoryChunkStoreImpl) IsReady(ctx context.Context) error {
	return nil
}

func (s *MemoryChunkStoreImpl) Name() string {
	return "ChunkStore[memory]"
}

// Put writes one chunk. The first chunk seen for an upload id allocates the
// fixed-length slot sequence and pins totalChunks; later chunks must agree
// with it. Retransmissions of an index overwrite the previous payload.
func (s *MemoryChunkStoreImpl) Put(ctx context.Context, uploadID string, chunkIndex int, totalChunks int, data string, selection *models.Selection) (*models.ChunkReceipt, error) {
	if totalChunks < 1 {
		return nil, fmt.Errorf("%w: totalChunks must be positive, got %d", apperror.ErrInvalidChunkIndex, totalChunks)
	}
	if chunkIndex < 0 || chunkIndex >= totalChunks {
		return nil, fmt.Errorf("%w: index %d out of range [0,%d)", apperror.ErrInvalidChunkIndex, chunkIndex, totalChunks)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	upload, ok := s.uploads[uploadID]
	if !ok {
		if len(s.uploads) >= s.maxEntries {
			if s.sweepLocked() == 0 || len(s.uploads) >= s.maxEntries {
				return nil, fmt.Errorf("%w: chunk store holds %d uploads", apperror.ErrResourceExhausted, len(s.uploads))
			}
		}

		now := s.now()
		upload = &models.ChunkUpload{
			UploadId:    uploadID,
			Chunks:      make([]string, totalChunks),
			TotalChunks: totalChunks,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.ttl),
		}
		s.uploads[uploadID] = upload
	}

	if totalChunks != upload.TotalChunks {
		return nil, fmt.Errorf("%w: totalChunks %d disagrees with declared %d", apperror.ErrInvalidChunkIndex, totalChunks, upload.TotalChunks)
	}

	if upload.Selection == nil && selection != nil {
		upload.Selection = selection
	}

	upload.Chunks[chunkIndex] = data

	return &models.ChunkReceipt{
		ReceivedChunks: upload.ReceivedChunks(),
		TotalChunks:    upload.TotalChunks,
		IsComplete:     upload.IsComplete(),
	}, nil
}

func (s *MemoryChunkStoreImpl) Get(ctx context.Context, uploadID string) (*models.ChunkUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	upload, ok := s.uploads[uploadID]
	if !ok {
		return nil, apperror.ErrUploadNotFound
	}
	return upload, nil
}

func (s *MemoryChunkStoreImpl) Delete(ctx context.Context, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uploads[uploadID]; !ok {
		return apperror.ErrUploadNotFound
	}

	delete(s.uploads, uploadID)
	return nil
}

// LockFor hands out the mutex serializing finalization for one upload id.
// Lock entries live until Sweep reaps them: a lock is removed only once its
// upload entry is gone and nobody holds it, so waiters queued on a mutex
// never race a freshly minted one for the same id.
func (s *MemoryChunkStoreImpl) LockFor(uploadID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.locks[uploadID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[uploadID] = mu
	}
	return mu
}

// Sweep evicts uploads whose TTL elapsed without finalization, along with
// lock entries no longer backed by an upload.
func (s *MemoryChunkStoreImpl) Sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweepLocked()
}

func (s *MemoryChunkStoreImpl) sweepLocked() int {
	now := s.now()
	removed := 0
	for id, upload := range s.uploads {
		if now.After(upload.ExpiresAt) {
			delete(s.uploads, id)
			removed++
		}
	}

	// Orphaned locks accumulate from finalize attempts against ids that were
	// never uploaded (or were deleted). Reap them only when unheld; a held
	// lock means a finalizer is mid-sequence and keeps its mutex.
	for id, mu := range s.locks {
		if _, ok := s.uploads[id]; ok {
			continue
		}
		if mu.TryLock() {
			delete(s.locks, id)
			mu.Unlock()
		}
	}

	return removed
}
