// Package models defines the client-side data types shared by the upload,
// realtime and reconciliation layers.
package models

// UploadStatus is the lifecycle state of one upload session.
type UploadStatus string

const (
	UploadStatusPending   UploadStatus = "pending"
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusCompleted UploadStatus = "completed"
	UploadStatusCancelled UploadStatus = "cancelled"
	UploadStatusError     UploadStatus = "error"
)

// Terminal reports whether no further chunks may be sent for this status.
func (s UploadStatus) Terminal() bool {
	return s == UploadStatusCompleted || s == UploadStatusCancelled
}

// UploadSession tracks one logical file transfer across possibly many chunk
// requests and process restarts. ID is assigned by the backend at initiation.
// Offset counts bytes confirmed durably received by the remote side and is
// monotonically non-decreasing; it never exceeds TotalSize.
type UploadSession struct {
	ID         string
	SourceRef  string
	FileName   string
	MimeType   string
	TotalSize  int64
	Offset     int64
	ContextKey string
	Status     UploadStatus
}

// UploadResult carries the remote reference to the assembled object returned
// by the final chunk response.
type UploadResult struct {
	FilePath    string
	MessageType string
}

// UploadProgress is the snapshot delivered to upload observers on every
// state change. Progress is in [0,1].
type UploadProgress struct {
	Progress    float64
	Status      UploadStatus
	LoadedBytes int64
	TotalBytes  int64
	Result      *UploadResult
	Err         error
}
