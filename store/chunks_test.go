package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nanostudio/nanostudio-services-uploads/internal/apperror"
	"github.com/nanostudio/nanostudio-services-uploads/models"
)

func TestChunkStore_IdempotentOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChunkStoreImpl(10, time.Hour)

	_, err := s.Put(ctx, "u1", 0, 2, "first", nil)
	require.NoError(t, err)

	receipt, err := s.Put(ctx, "u1", 0, 2, "second", nil)
	require.NoError(t, err)
	require.Equal(t, 1, receipt.ReceivedChunks)
	require.False(t, receipt.IsComplete)

	upload, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "second", upload.Chunks[0])
}

func TestChunkStore_OutOfOrderCompletion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChunkStoreImpl(10, time.Hour)

	receipt, err := s.Put(ctx, "u1", 2, 3, "c", nil)
	require.NoError(t, err)
	require.Equal(t, 1, receipt.ReceivedChunks)
	require.False(t, receipt.IsComplete)

	receipt, err = s.Put(ctx, "u1", 0, 3, "a", nil)
	require.NoError(t, err)
	require.Equal(t, 2, receipt.ReceivedChunks)
	require.False(t, receipt.IsComplete)

	receipt, err = s.Put(ctx, "u1", 1, 3, "b", nil)
	require.NoError(t, err)
	require.Equal(t, 3, receipt.ReceivedChunks)
	require.True(t, receipt.IsComplete)
}

func TestChunkStore_InvalidIndex(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChunkStoreImpl(10, time.Hour)

	_, err := s.Put(ctx, "u1", -1, 3, "x", nil)
	require.ErrorIs(t, err, apperror.ErrInvalidChunkIndex)

	_, err = s.Put(ctx, "u1", 3, 3, "x", nil)
	require.ErrorIs(t, err, apperror.ErrInvalidChunkIndex)

	_, err = s.Put(ctx, "u1", 0, 0, "x", nil)
	require.ErrorIs(t, err, apperror.ErrInvalidChunkIndex)

	// nothing should have been allocated
	_, err = s.Get(ctx, "u1")
	require.ErrorIs(t, err, apperror.ErrUploadNotFound)
}

func TestChunkStore_TotalChunksMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChunkStoreImpl(10, time.Hour)

	_, err := s.Put(ctx, "u1", 0, 3, "a", nil)
	require.NoError(t, err)

	_, err = s.Put(ctx, "u1", 1, 4, "b", nil)
	require.ErrorIs(t, err, apperror.ErrInvalidChunkIndex)

	upload, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 3, upload.TotalChunks)
}

func TestChunkStore_SelectionAttachedOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChunkStoreImpl(10, time.Hour)

	first := &models.Selection{X: 1, Y: 2, Width: 3, Height: 4}
	_, err := s.Put(ctx, "u1", 0, 2, "a", first)
	require.NoError(t, err)

	_, err = s.Put(ctx, "u1", 1, 2, "b", &models.Selection{X: 9})
	require.NoError(t, err)

	upload, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, first, upload.Selection)
}

func TestChunkStore_CapacityBound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChunkStoreImpl(1, time.Hour)

	_, err := s.Put(ctx, "u1", 0, 1, "a", nil)
	require.NoError(t, err)

	_, err = s.Put(ctx, "u2", 0, 1, "b", nil)
	require.ErrorIs(t, err, apperror.ErrResourceExhausted)

	// a chunk for the existing upload is still accepted
	_, err = s.Put(ctx, "u1", 0, 1, "a2", nil)
	require.NoError(t, err)
}

func TestChunkStore_SweepEvictsExpired(t *testing.T) {
	ctx := context.Background()

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	s := NewMemoryChunkStoreImplWithClock(10, time.Hour, func() time.Time { return now })

	_, err := s.Put(ctx, "u1", 0, 1, "a", nil)
	require.NoError(t, err)

	require.Equal(t, 0, s.Sweep(ctx))

	now = now.Add(2 * time.Hour)
	require.Equal(t, 1, s.Sweep(ctx))

	_, err = s.Get(ctx, "u1")
	require.ErrorIs(t, err, apperror.ErrUploadNotFound)
}

func TestChunkStore_ExpiredEntriesMakeRoom(t *testing.T) {
	ctx := context.Background()

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	s := NewMemoryChunkStoreImplWithClock(1, time.Hour, func() time.Time { return now })

	_, err := s.Put(ctx, "u1", 0, 1, "a", nil)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)

	_, err = s.Put(ctx, "u2", 0, 1, "b", nil)
	require.NoError(t, err)
}

func lockCount(s *MemoryChunkStoreImpl) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func TestChunkStore_SweepReapsOrphanedLocks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChunkStoreImpl(1, time.Hour)

	// finalize attempts against ids that were never uploaded mint locks
	for i := 0; i < 1000; i++ {
		s.LockFor(fmt.Sprintf("never-created-%d", i))
	}
	require.Equal(t, 1000, lockCount(s))

	s.Sweep(ctx)
	require.Zero(t, lockCount(s))
}

func TestChunkStore_SweepKeepsHeldLocks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChunkStoreImpl(10, time.Hour)

	mu := s.LockFor("u1")
	mu.Lock()

	s.Sweep(ctx)
	require.Equal(t, 1, lockCount(s))
	require.Same(t, mu, s.LockFor("u1"))

	mu.Unlock()
	s.Sweep(ctx)
	require.Zero(t, lockCount(s))
}

func TestChunkStore_DeleteKeepsLockUntilSweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChunkStoreImpl(10, time.Hour)

	_, err := s.Put(ctx, "u1", 0, 1, "a", nil)
	require.NoError(t, err)

	mu := s.LockFor("u1")
	mu.Lock()
	require.NoError(t, s.Delete(ctx, "u1"))

	// a waiter arriving after the delete queues on the same mutex
	require.Same(t, mu, s.LockFor("u1"))
	mu.Unlock()

	s.Sweep(ctx)
	require.Zero(t, lockCount(s))
}

func TestChunkStore_DeleteFreesEntry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChunkStoreImpl(10, time.Hour)

	_, err := s.Put(ctx, "u1", 0, 1, "a", nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "u1"))
	require.ErrorIs(t, s.Delete(ctx, "u1"), apperror.ErrUploadNotFound)

	_, err = s.Get(ctx, "u1")
	require.ErrorIs(t, err, apperror.ErrUploadNotFound)
}
