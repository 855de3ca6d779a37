// Package client holds the upload controller used by Nano Studio frontends
// and tools: it drives a single file through session issuance and a direct
// PUT against the signed URL, with pause/resume/reset semantics.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/nanostudio/nanostudio-services-uploads/internal/logging"
	"github.com/nanostudio/nanostudio-services-uploads/models"
)

// Status values of the controller state machine.
const (
	StatusIdle      = "idle"
	StatusUploading = "uploading"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Progress is coarse for the direct-PUT path: 0% until the single PUT
// resolves, then 100%. The transfer is one atomic request, not a stream of
// observable parts.
type Progress struct {
	Loaded     int64
	Total      int64
	Percentage int
}

// State is a snapshot of the controller, safe to hand to UI code.
type State struct {
	Status    string
	Progress  Progress
	UploadID  string
	ResumeURL string
	Error     string
}

// SessionIssuer requests an upload session from the coordinator.
type SessionIssuer interface {
	CreateResumableUpload(ctx context.Context, req models.CreateUploadRequest) (*models.SignedUploadResponse, error)
}

// Uploader drives one file at a time. Pause flips UI state only: the
// in-flight PUT is not aborted, and a resume re-sends the whole body to the
// retained signed URL rather than continuing at a byte offset.
type Uploader struct {
	issuer     SessionIssuer
	httpClient *http.Client
	logger     logging.Logger

	mu    sync.Mutex
	state State
}

func NewUploader(issuer SessionIssuer, l logging.Logger) *Uploader {
	return &Uploader{
		issuer: issuer,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		logger: l,
		state:  State{Status: StatusIdle},
	}
}

// State returns a copy of the current controller state.
func (u *Uploader) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// UploadFile requests a session and PUTs the whole body to the signed URL.
// On any failure the session stays open at the coordinator; only the local
// state is marked errored.
func (u *Uploader) UploadFile(ctx context.Context, fileName string, contentType string, body io.ReadSeeker, size int64, metadata map[string]string) error {
	u.mu.Lock()
	u.state.Status = StatusUploading
	u.state.Error = ""
	u.state.Progress = Progress{Loaded: 0, Total: size, Percentage: 0}
	u.mu.Unlock()

	resp, err := u.issuer.CreateResumableUpload(ctx, models.CreateUploadRequest{
		FileName:    fileName,
		ContentType: contentType,
		Metadata:    metadata,
		MaxFileSize: size,
	})
	if err != nil {
		u.fail(fmt.Errorf("failed to start upload: %w", err))
		return err
	}

	u.mu.Lock()
	u.state.UploadID = resp.UploadId
	u.state.ResumeURL = resp.UploadUrl
	u.mu.Unlock()

	u.logger.Info("upload session issued", "upload_id", resp.UploadId, "file_name", fileName)

	return u.put(ctx, resp.UploadUrl, contentType, body, size)
}

// Pause transitions uploading → paused. The outstanding PUT, if any, keeps
// running; if it completes the upload is reported completed regardless.
func (u *Uploader) Pause() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state.Status == StatusUploading {
		u.state.Status = StatusPaused
	}
}

// Resume re-sends the whole body to the retained signed URL. Without a
// retained URL it is a no-op.
func (u *Uploader) Resume(ctx context.Context, contentType string, body io.ReadSeeker, size int64) error {
	u.mu.Lock()
	resumeURL := u.state.ResumeURL
	if resumeURL == "" {
		u.mu.Unlock()
		return nil
	}
	u.state.Status = StatusUploading
	u.state.Error = ""
	u.state.Progress = Progress{Loaded: 0, Total: size, Percentage: 0}
	u.mu.Unlock()

	return u.put(ctx, resumeURL, contentType, body, size)
}

// Reset returns the controller to idle, abandoning (not cancelling) any open
// session at the coordinator.
func (u *Uploader) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state = State{Status: StatusIdle}
}

func (u *Uploader) put(ctx context.Context, url string, contentType string, body io.ReadSeeker, size int64) error {
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		u.fail(fmt.Errorf("failed to rewind upload body: %w", err))
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		u.fail(fmt.Errorf("failed to build upload request: %w", err))
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		u.fail(fmt.Errorf("upload transfer failed: %w", err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("upload rejected with status %d", resp.StatusCode)
		u.fail(err)
		return err
	}

	u.mu.Lock()
	u.state.Status = StatusCompleted
	u.state.Progress = Progress{Loaded: size, Total: size, Percentage: 100}
	u.mu.Unlock()

	u.logger.Info("upload completed", "upload_id", u.State().UploadID)
	return nil
}

func (u *Uploader) fail(err error) {
	u.logger.Error("upload failed", "error", err)

	u.mu.Lock()
	defer u.mu.Unlock()
	u.state.Status = StatusError
	u.state.Error = err.Error()
}
