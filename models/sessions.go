package models

import "time"

// UploadSession records a signed-URL upload that has been issued but whose
// bytes travel directly between the browser and the blob store. The UploadId
// doubles as the object key, so probing for completion is an existence check.
type UploadSession struct {
	UploadId    string            `json:"upload_id"`
	FileName    string            `json:"file_name"`
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	MaxFileSize int64             `json:"max_file_size"` // advisory, not enforced against transferred bytes
	OwnerID     string            `json:"owner_id"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// Expired reports whether the issued write URL must be considered invalid.
func (s *UploadSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

type CreateUploadRequest struct {
	FileName    string            `json:"file_name"`
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	MaxFileSize int64             `json:"max_file_size,omitempty"`
}

type SignedUploadResponse struct {
	UploadUrl string    `json:"upload_url"`
	UploadId  string    `json:"upload_id"`
	FileName  string    `json:"file_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

type UploadStatusResponse struct {
	Status      UploadStatus `json:"status"`
	Size        int64        `json:"size,omitempty"`
	ContentType string       `json:"content_type,omitempty"`
	CreatedAt   *time.Time   `json:"created_at,omitempty"`
	Locator     string       `json:"locator,omitempty"`
}
