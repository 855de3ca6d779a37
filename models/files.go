package models

import "time"

// File is the durable record of a completed upload, shown in the owner's
// asset library.
type File struct {
	FileId    string    `dynamodbav:"file_id" json:"file_id"`
	UploadId  string    `dynamodbav:"upload_id" json:"upload_id"`
	OwnerID   string    `dynamodbav:"owner_id" json:"owner_id"`
	Name      string    `dynamodbav:"name" json:"name"`
	Type      string    `dynamodbav:"content_type" json:"content_type"`
	Size      int64     `dynamodbav:"file_size" json:"size"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"created_at"`
}

type FilesResponse struct {
	Files []File `json:"files"`
}

// UploadCompletedEvent is the queue message emitted when an object lands in
// the uploads bucket.
type UploadCompletedEvent struct {
	UploadId string `json:"upload_id"`
}
