package models

import "fmt"

// UploadStatus is the lifecycle state of a direct-to-storage upload as seen
// by the status prober.
type UploadStatus string

const (
	StatusInProgress UploadStatus = "in_progress"
	StatusCompleted  UploadStatus = "completed"
	StatusExpired    UploadStatus = "expired"
)

func (s UploadStatus) String() string {
	return string(s)
}

func ParseUploadStatus(s string) (UploadStatus, error) {
	switch UploadStatus(s) {
	case StatusInProgress, StatusCompleted, StatusExpired:
		return UploadStatus(s), nil
	}
	return "", fmt.Errorf("unknown upload status %q", s)
}
