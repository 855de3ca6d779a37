package services

import (
	"context"
	"fmt"

	"github.com/nanostudio/nanostudio-services-uploads/internal/apperror"
	"github.com/nanostudio/nanostudio-services-uploads/internal/logging"
	"github.com/nanostudio/nanostudio-services-uploads/models"
	"github.com/nanostudio/nanostudio-services-uploads/store"
)

type AnalysisService interface {
	ReceiveChunk(ctx context.Context, req models.UploadChunkRequest) (*models.ChunkReceipt, error)
	FinalizeAnalysis(ctx context.Context, uploadID string) (string, error)
}

type AnalysisServiceImpl struct {
	chunkStore store.ChunkStore
	analyzer   store.Analyzer

	logger logging.Logger
}

func NewAnalysisServiceImpl(chunkStore store.ChunkStore, analyzer store.Analyzer, l logging.Logger) *AnalysisServiceImpl {
	return &AnalysisServiceImpl{
		chunkStore: chunkStore,
		analyzer:   analyzer,
		logger:     l,
	}
}

func (svc *AnalysisServiceImpl) ReceiveChunk(ctx context.Context, req models.UploadChunkRequest) (*models.ChunkReceipt, error) {
	receipt, err := svc.chunkStore.Put(ctx, req.UploadId, req.ChunkIndex, req.TotalChunks, req.ChunkData, req.Selection)
	if err != nil {
		return nil, err
	}

	svc.logger.Debug("chunk received",
		"upload_id", req.UploadId,
		"chunk_index", req.ChunkIndex,
		"received", receipt.ReceivedChunks,
		"total", receipt.TotalChunks,
	)

	return receipt, nil
}

// FinalizeAnalysis reconstructs the payload in strict index order, hands it
// to the analyzer, and frees the buffer on success. The per-upload mutex is
// held across the whole sequence so a second finalize for the same id either
// waits and then fails with ErrUploadNotFound, or retries after an analyzer
// failure against the still-present buffer.
func (svc *AnalysisServiceImpl) FinalizeAnalysis(ctx context.Context, uploadID string) (string, error) {
	mu := svc.chunkStore.LockFor(uploadID)
	mu.Lock()
	defer mu.Unlock()

	upload, err := svc.chunkStore.Get(ctx, uploadID)
	if err != nil {
		return "", err
	}

	if !upload.IsComplete() {
		return "", fmt.Errorf("%w: %d of %d chunks received",
			apperror.ErrIncompleteUpload, upload.ReceivedChunks(), upload.TotalChunks)
	}

	payload := upload.Join()

	analysis, err := svc.analyzer.Analyze(ctx, payload, upload.Selection)
	if err != nil {
		// buffer stays in place so the caller can finalize again
		svc.logger.Error("analysis failed, keeping chunk buffer", "upload_id", uploadID, "error", err)
		return "", err
	}

	if err := svc.chunkStore.Delete(ctx, uploadID); err != nil {
		svc.logger.Error("failed to free chunk buffer", "upload_id", uploadID, "error", err)
	}

	svc.logger.Info("chunked analysis finalized", "upload_id", uploadID, "chunks", upload.TotalChunks)
	return analysis, nil
}
