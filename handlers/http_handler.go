package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nanostudio/nanostudio-services-uploads/internal/apperror"
	"github.com/nanostudio/nanostudio-services-uploads/internal/logging"
	"github.com/nanostudio/nanostudio-services-uploads/models"
	"github.com/nanostudio/nanostudio-services-uploads/services"
)

// userIDHeader carries the authenticated caller's id, set by the gateway in
// front of this service. An empty value means the request is unauthenticated.
const userIDHeader = "X-User-Id"

type HTTPHandler struct {
	uploadService   services.UploadService
	analysisService services.AnalysisService
	fileService     services.FileService

	logger logging.Logger
}

func NewHTTPHandler(
	uploadSvc services.UploadService,
	analysisSvc services.AnalysisService,
	fileSvc services.FileService,
	l logging.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		uploadService:   uploadSvc,
		analysisService: analysisSvc,
		fileService:     fileSvc,
		logger:          l,
	}
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")

	v1.POST("/uploads", h.createResumableUpload)
	v1.GET("/uploads/*uploadId", h.getUploadStatus)
	v1.DELETE("/uploads/*uploadId", h.cancelUpload)

	v1.POST("/analysis/chunks", h.uploadImageChunk)
	v1.POST("/analysis/finalize", h.finalizeImageAnalysis)

	v1.GET("/files", h.getFiles)
}

func (h *HTTPHandler) createResumableUpload(c *gin.Context) {
	var req models.CreateUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FileName == "" || req.ContentType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_name and content_type are required"})
		return
	}

	resp, err := h.uploadService.CreateResumableUpload(c.Request.Context(), c.GetHeader(userIDHeader), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) getUploadStatus(c *gin.Context) {
	uploadID := trimUploadID(c.Param("uploadId"))

	resp, err := h.uploadService.GetUploadStatus(c.Request.Context(), c.GetHeader(userIDHeader), uploadID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) cancelUpload(c *gin.Context) {
	uploadID := trimUploadID(c.Param("uploadId"))

	if err := h.uploadService.CancelUpload(c.Request.Context(), c.GetHeader(userIDHeader), uploadID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *HTTPHandler) uploadImageChunk(c *gin.Context) {
	var req models.UploadChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UploadId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload_id is required"})
		return
	}

	receipt, err := h.analysisService.ReceiveChunk(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"received_chunks": receipt.ReceivedChunks,
		"total_chunks":    receipt.TotalChunks,
		"is_complete":     receipt.IsComplete,
	})
}

type finalizeRequest struct {
	UploadId string `json:"upload_id"`
}

func (h *HTTPHandler) finalizeImageAnalysis(c *gin.Context) {
	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UploadId == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload_id is required"})
		return
	}

	analysis, err := h.analysisService.FinalizeAnalysis(c.Request.Context(), req.UploadId)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"analysis": analysis,
	})
}

func (h *HTTPHandler) getFiles(c *gin.Context) {
	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		h.writeError(c, apperror.ErrUnauthenticated)
		return
	}

	resp, err := h.fileService.GetFiles(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, apperror.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, apperror.ErrUploadNotFound), errors.Is(err, apperror.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperror.ErrInvalidChunkIndex):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrIncompleteUpload), errors.Is(err, apperror.ErrSessionExists):
		status = http.StatusConflict
	case errors.Is(err, apperror.ErrResourceExhausted):
		status = http.StatusTooManyRequests
	case errors.Is(err, apperror.ErrUpstreamStorage), errors.Is(err, apperror.ErrUpstreamAnalysis):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

// trimUploadID strips the leading slash gin keeps on wildcard params. Upload
// ids contain slashes ("uploads/<ts>-<name>"), so the routes use wildcards.
func trimUploadID(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p[1:]
	}
	return p
}
