package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nanostudio/nanostudio-services-uploads/internal/caching"
	"github.com/nanostudio/nanostudio-services-uploads/internal/logging"
	"github.com/nanostudio/nanostudio-services-uploads/models"
	"github.com/nanostudio/nanostudio-services-uploads/store"
)

const filesCacheTTL = 5 * time.Minute

type FileService interface {
	GetFiles(ctx context.Context, ownerID string) (*models.FilesResponse, error)
}

type FileServiceImpl struct {
	fileStore  store.FileStore
	cachingSvc caching.CachingService

	logger logging.Logger
}

func NewFileServiceImpl(fileStore store.FileStore, cachingSvc caching.CachingService, l logging.Logger) *FileServiceImpl {
	return &FileServiceImpl{
		fileStore:  fileStore,
		cachingSvc: cachingSvc,
		logger:     l,
	}
}

func (svc *FileServiceImpl) GetFiles(ctx context.Context, ownerID string) (*models.FilesResponse, error) {
	cacheKey := fmt.Sprintf("user:files:%s", ownerID)

	if cached, ok, err := svc.cachingSvc.Get(ctx, cacheKey); err == nil && ok {
		var resp models.FilesResponse
		if err := json.Unmarshal([]byte(cached), &resp); err == nil {
			return &resp, nil
		}
		svc.logger.Warn("dropping unreadable cached files entry", "key", cacheKey)
	}

	files, err := svc.fileStore.Read(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	resp := &models.FilesResponse{Files: files}

	if raw, err := json.Marshal(resp); err == nil {
		if err := svc.cachingSvc.Set(ctx, cacheKey, string(raw), filesCacheTTL); err != nil {
			svc.logger.Warn("failed to cache files listing", "key", cacheKey, "error", err)
		}
	}

	return resp, nil
}
