package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nanostudio/nanostudio-services-uploads/internal/apperror"
	"github.com/nanostudio/nanostudio-services-uploads/internal/logging"
	"github.com/nanostudio/nanostudio-services-uploads/models"
	"github.com/nanostudio/nanostudio-services-uploads/store"
)

type UploadService interface {
	CreateResumableUpload(ctx context.Context, userID string, req models.CreateUploadRequest) (*models.SignedUploadResponse, error)
	GetUploadStatus(ctx context.Context, userID string, uploadID string) (*models.UploadStatusResponse, error)
	CancelUpload(ctx context.Context, userID string, uploadID string) error
}

type UploadServiceImpl struct {
	sessionStore store.SessionStore
	blobStorage  store.BlobStorage
	urlTTL       time.Duration
	now          func() time.Time

	logger logging.Logger
}

func NewUploadServiceImpl(sessionStore store.SessionStore, blobStorage store.BlobStorage, urlTTL time.Duration, l logging.Logger) *UploadServiceImpl {
	return &UploadServiceImpl{
		sessionStore: sessionStore,
		blobStorage:  blobStorage,
		urlTTL:       urlTTL,
		now:          time.Now,
		logger:       l,
	}
}

// CreateResumableUpload mints a collision-resistant object key, presigns a
// write URL for it, and records the session. A failure to presign is not
// retried here: a repeated call would mint a fresh key rather than recover
// this one, so the caller has to restart the flow.
func (svc *UploadServiceImpl) CreateResumableUpload(ctx context.Context, userID string, req models.CreateUploadRequest) (*models.SignedUploadResponse, error) {
	if userID == "" {
		return nil, apperror.ErrUnauthenticated
	}

	now := svc.now()
	uploadID := fmt.Sprintf("uploads/%d-%s", now.UnixMilli(), req.FileName)

	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["uploaded-by"] = userID

	uploadURL, err := svc.blobStorage.GenerateUploadUrl(ctx, uploadID, req.ContentType, svc.urlTTL)
	if err != nil {
		svc.logger.Error("failed to issue signed upload url", "file_name", req.FileName, "error", err)
		return nil, fmt.Errorf("%w: %s", apperror.ErrUpstreamStorage, err)
	}

	session := models.UploadSession{
		UploadId:    uploadID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Metadata:    metadata,
		MaxFileSize: req.MaxFileSize,
		OwnerID:     userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(svc.urlTTL),
	}

	if err := svc.sessionStore.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	svc.logger.Info("upload session created", "upload_id", uploadID, "owner_id", userID)

	return &models.SignedUploadResponse{
		UploadUrl: uploadURL,
		UploadId:  uploadID,
		FileName:  req.FileName,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// GetUploadStatus answers "is this upload done" by probing the blob store at
// the key equal to uploadID. An existing object means completed regardless of
// the session's declared size. Absent objects report in_progress unless the
// session is known to be past its expiry.
func (svc *UploadServiceImpl) GetUploadStatus(ctx context.Context, userID string, uploadID string) (*models.UploadStatusResponse, error) {
	if userID == "" {
		return nil, apperror.ErrUnauthenticated
	}

	exists, err := svc.blobStorage.Exists(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperror.ErrUpstreamStorage, err)
	}

	if exists {
		meta, err := svc.blobStorage.GetMetadata(ctx, uploadID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", apperror.ErrUpstreamStorage, err)
		}

		locator, err := svc.blobStorage.GenerateDownloadUrl(ctx, uploadID, svc.urlTTL)
		if err != nil {
			svc.logger.Warn("failed to presign download url", "upload_id", uploadID, "error", err)
			locator = uploadID
		}

		created := meta.TimeCreated
		return &models.UploadStatusResponse{
			Status:      models.StatusCompleted,
			Size:        meta.Size,
			ContentType: meta.ContentType,
			CreatedAt:   &created,
			Locator:     locator,
		}, nil
	}

	session, err := svc.sessionStore.GetSession(ctx, uploadID)
	if err == nil && session.Expired(svc.now()) {
		return &models.UploadStatusResponse{Status: models.StatusExpired}, nil
	}

	return &models.UploadStatusResponse{Status: models.StatusInProgress}, nil
}

// CancelUpload deletes the object at the session's key, if any. Cancelling an
// upload that never wrote its object is a success, not an error.
func (svc *UploadServiceImpl) CancelUpload(ctx context.Context, userID string, uploadID string) error {
	if userID == "" {
		return apperror.ErrUnauthenticated
	}

	if err := svc.blobStorage.Delete(ctx, uploadID); err != nil {
		return fmt.Errorf("%w: %s", apperror.ErrUpstreamStorage, err)
	}

	if err := svc.sessionStore.Delete(ctx, uploadID); err != nil && !errors.Is(err, apperror.ErrSessionNotFound) {
		svc.logger.Error("failed to drop cancelled session", "upload_id", uploadID, "error", err)
	}

	svc.logger.Info("upload cancelled", "upload_id", uploadID)
	return nil
}
