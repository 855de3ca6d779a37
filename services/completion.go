package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nanostudio/nanostudio-services-uploads/internal/apperror"
	"github.com/nanostudio/nanostudio-services-uploads/internal/caching"
	"github.com/nanostudio/nanostudio-services-uploads/internal/logging"
	"github.com/nanostudio/nanostudio-services-uploads/models"
	"github.com/nanostudio/nanostudio-services-uploads/store"
)

type UploadCompletionService interface {
	CompleteUpload(ctx context.Context, uploadID string) error
}

type UploadCompletionServiceImpl struct {
	sessionStore store.SessionStore
	fileStore    store.FileStore
	blobStorage  store.BlobStorage
	cachingSvc   caching.CachingService

	logger logging.Logger
}

func NewUploadCompletionServiceImpl(
	sessionStore store.SessionStore,
	fileStore store.FileStore,
	blobStorage store.BlobStorage,
	cachingSvc caching.CachingService,
	l logging.Logger,
) *UploadCompletionServiceImpl {
	return &UploadCompletionServiceImpl{
		sessionStore: sessionStore,
		fileStore:    fileStore,
		blobStorage:  blobStorage,
		cachingSvc:   cachingSvc,
		logger:       l,
	}
}

// CompleteUpload turns a finished direct upload into a durable file record.
// A missing session means the event was already processed (or the session
// belonged to a previous process life) and is not an error.
func (svc *UploadCompletionServiceImpl) CompleteUpload(ctx context.Context, uploadID string) error {
	session, err := svc.sessionStore.GetSession(ctx, uploadID)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		svc.logger.Info("upload session not found, possibly already processed", "upload_id", uploadID)
		return nil
	}
	if err != nil {
		svc.logger.Error("failed to get upload session", "upload_id", uploadID, "error", err)
		return err
	}

	exists, err := svc.blobStorage.Exists(ctx, uploadID)
	if err != nil {
		svc.logger.Error("failed to probe uploaded object", "upload_id", uploadID, "error", err)
		return err
	}
	if !exists {
		return fmt.Errorf("object for upload %s not found in storage", uploadID)
	}

	meta, err := svc.blobStorage.GetMetadata(ctx, uploadID)
	if err != nil {
		svc.logger.Error("failed to read uploaded object metadata", "upload_id", uploadID, "error", err)
		return err
	}

	file := models.File{
		FileId:    uuid.NewString(),
		UploadId:  session.UploadId,
		OwnerID:   session.OwnerID,
		Name:      session.FileName,
		Type:      session.ContentType,
		Size:      meta.Size,
		CreatedAt: time.Now().UTC(),
	}

	if err := svc.fileStore.Create(ctx, file); err != nil {
		svc.logger.Error("failed to create file record", "upload_id", uploadID, "error", err)
		return err
	}

	if err := svc.sessionStore.Delete(ctx, uploadID); err != nil && !errors.Is(err, apperror.ErrSessionNotFound) {
		svc.logger.Error("upload session deletion failed", "upload_id", uploadID, "error", err)
		// not returning error here as the file record is already created
	}

	filesKey := fmt.Sprintf("user:files:%s", file.OwnerID)
	if err := svc.cachingSvc.Delete(ctx, filesKey); err != nil {
		svc.logger.Error("cached files invalidation failed", "upload_id", uploadID, "error", err)
		// not critical
	}

	svc.logger.Info("upload completed successfully", "upload_id", uploadID, "file_id", file.FileId)
	return nil
}
