package models

import (
	"strings"
	"time"
)

// Selection is an optional region-of-interest attached to a chunked image
// analysis request. It is stored with the first chunk that carries it and
// handed to the analyzer on finalization.
type Selection struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ChunkUpload holds the reassembly state for one chunked transfer. Chunks is
// a fixed-length slice allocated when the first chunk arrives; empty slots
// are placeholders for chunks not yet received.
type ChunkUpload struct {
	UploadId    string
	Chunks      []string
	TotalChunks int
	Selection   *Selection
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// ReceivedChunks counts the slots holding a non-empty payload.
func (u *ChunkUpload) ReceivedChunks() int {
	n := 0
	for _, c := range u.Chunks {
		if c != "" {
			n++
		}
	}
	return n
}

// IsComplete reports whether every slot has received a non-empty chunk.
func (u *ChunkUpload) IsComplete() bool {
	return u.ReceivedChunks() == u.TotalChunks
}

// Join concatenates all slots in index order. Callers must check IsComplete
// first; gaps would otherwise silently vanish in the joined payload.
func (u *ChunkUpload) Join() string {
	return strings.Join(u.Chunks, "")
}

type UploadChunkRequest struct {
	UploadId    string     `json:"upload_id"`
	ChunkIndex  int        `json:"chunk_index"`
	TotalChunks int        `json:"total_chunks"`
	ChunkData   string     `json:"chunk_data"`
	Selection   *Selection `json:"selection,omitempty"`
}

type ChunkReceipt struct {
	ReceivedChunks int  `json:"received_chunks"`
	TotalChunks    int  `json:"total_chunks"`
	IsComplete     bool `json:"is_complete"`
}
