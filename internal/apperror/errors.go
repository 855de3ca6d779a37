package apperror

import "errors"

// Sentinel errors shared across services and handlers. Callers classify with
// errors.Is; messages travel wrapped alongside them.
var (
	ErrUnauthenticated   = errors.New("caller is not authenticated")
	ErrSessionNotFound   = errors.New("upload session not found")
	ErrSessionExists     = errors.New("upload session already exists")
	ErrUploadNotFound    = errors.New("chunk upload not found")
	ErrInvalidChunkIndex = errors.New("invalid chunk index")
	ErrIncompleteUpload  = errors.New("chunk upload is incomplete")
	ErrResourceExhausted = errors.New("too many concurrent uploads")
	ErrUpstreamStorage   = errors.New("blob storage request failed")
	ErrUpstreamAnalysis  = errors.New("image analysis request failed")
)
