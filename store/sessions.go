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

type SessionStore interface {
	CreateSession(ctx context.Context, uploadSession models.UploadSession) error
	GetSession(ctx context.Context, uploadID string) (*models.UploadSession, error)
	Delete(ctx context.Context, uploadID string) error
	Sweep(ctx context.Context) int

	health.ReadinessCheck
}

// MemorySessionStoreImpl keeps upload sessions in process memory. Sessions
// are bounded by maxEntries and evicted once past their expiry; the state is
// deliberately non-durable, a restart forgets every open session.
type MemorySessionStoreImpl struct {
	mu       sync.Mutex
	sessions map[string]models.UploadSession

	maxEntries int
	now        func() time.Time
}

func NewMemorySessionStoreImpl(maxEntries int) *MemorySessionStoreImpl {
	return NewMemorySessionStoreImplWithClock(maxEntries, time.Now)
}

func NewMemorySessionStoreImplWithClock(maxEntries int, now func() time.Time) *MemorySessionStoreImpl {
	return &MemorySessionStoreImpl{
		sessions:   make(map[string]models.UploadSession),
		maxEntries: maxEntries,
		now:        now,
	}
}

func (s *MemorySessionStoreImpl) IsReady(ctx context.Context) error {
	return nil
}

func (s *MemorySessionStoreImpl) Name() string {
	return "SessionStore[memory]"
}

func (s *MemorySessionStoreImpl) CreateSession(ctx context.Context, uploadSession models.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[uploadSession.UploadId]; exists {
		return fmt.Errorf("%w: %s", apperror.ErrSessionExists, uploadSession.UploadId)
	}

	if len(s.sessions) >= s.maxEntries {
		// make room from expired entries before rejecting
		if s.sweepLocked() == 0 || len(s.sessions) >= s.maxEntries {
			return fmt.Errorf("%w: session store holds %d entries", apperror.ErrResourceExhausted, len(s.sessions))
		}
	}

	s.sessions[uploadSession.UploadId] = uploadSession
	return nil
}

// GetSession returns the session even when it is past its expiry; callers
// decide how to report expiry. Sweep is what removes expired entries.
func (s *MemorySessionStoreImpl) GetSession(ctx context.Context, uploadID string) (*models.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[uploadID]
	if !ok {
		return nil, apperror.ErrSessionNotFound
	}

	return &session, nil
}

func (s *MemorySessionStoreImpl) Delete(ctx context.Context, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[uploadID]; !ok {
		return apperror.ErrSessionNotFound
	}

	delete(s.sessions, uploadID)
	return nil
}

// Sweep evicts sessions past their expiry and returns how many were removed.
func (s *MemorySessionStoreImpl) Sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweepLocked()
}

func (s *MemorySessionStoreImpl) sweepLocked() int {
	now := s.now()
	removed := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
