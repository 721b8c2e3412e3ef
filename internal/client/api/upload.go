package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/m1tka051209/marketgram-client/internal/common"
	"github.com/m1tka051209/marketgram-client/internal/client/models"
)

// ChunkResult is the backend's answer to one chunk request. When Status is
// "continue", Offset holds the new cumulative confirmed offset. When Status
// is "completed", Result carries the remote reference to the assembled
// object.
type ChunkResult struct {
	Status string
	Offset int64
	Result *models.UploadResult
}

const (
	ChunkStatusContinue  = "continue"
	ChunkStatusCompleted = "completed"
)

type initUploadRequest struct {
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}

type initUploadResponse struct {
	UploadID string `json:"upload_id"`
}

// chunkResponse uses json.Number for the offset so a non-numeric value is a
// detectable protocol violation rather than a silent zero.
type chunkResponse struct {
	Status      string      `json:"status"`
	Offset      json.Number `json:"offset"`
	FilePath    string      `json:"file_path"`
	MessageType string      `json:"message_type"`
}

type uploadStatusResponse struct {
	Offset      int64 `json:"offset"`
	IsCompleted bool  `json:"is_completed"`
}

// ActiveUpload is one entry of the backend's open-session list for the
// current credential.
type ActiveUpload struct {
	UploadID string `json:"upload_id"`
	Offset   int64  `json:"offset"`
}

// InitUpload registers a new upload session with the backend and returns the
// server-assigned session id.
func (c *Client) InitUpload(ctx context.Context, filename string, fileSize int64, mimeType string) (string, error) {
	var resp initUploadResponse
	err := c.postJSON(ctx, initUploadPath, initUploadRequest{
		Filename: filename,
		FileSize: fileSize,
		MimeType: mimeType,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("init upload: %w", err)
	}
	if resp.UploadID == "" {
		return "", fmt.Errorf("init upload: empty upload_id")
	}
	return resp.UploadID, nil
}

// SendChunk transmits one binary chunk for the session. The caller owns
// offset bookkeeping; this call is pure with respect to local state.
func (c *Client) SendChunk(ctx context.Context, uploadID string, offset int64, chunk []byte) (*ChunkResult, error) {
	q := url.Values{}
	q.Set("token", c.Token())
	q.Set("offset", fmt.Sprintf("%d", offset))
	path := chunkPath + url.PathEscape(uploadID) + "?" + q.Encode()

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(chunk))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var resp chunkResponse
	if err := c.doJSON(req, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case ChunkStatusCompleted:
		return &ChunkResult{
			Status: ChunkStatusCompleted,
			Result: &models.UploadResult{FilePath: resp.FilePath, MessageType: resp.MessageType},
		}, nil
	case ChunkStatusContinue:
		confirmed, err := resp.Offset.Int64()
		if err != nil || confirmed < 0 {
			return nil, fmt.Errorf("%w: %q", common.ErrInvalidOffset, resp.Offset.String())
		}
		return &ChunkResult{Status: ChunkStatusContinue, Offset: confirmed}, nil
	default:
		return nil, fmt.Errorf("unexpected chunk status %q", resp.Status)
	}
}

// UploadStatus queries the confirmed offset and completion flag for a
// session. Used for resume after restart or transient failure.
func (c *Client) UploadStatus(ctx context.Context, uploadID string) (offset int64, completed bool, err error) {
	var resp uploadStatusResponse
	if err := c.getJSON(ctx, statusPath+url.PathEscape(uploadID), &resp); err != nil {
		return 0, false, fmt.Errorf("upload status: %w", err)
	}
	return resp.Offset, resp.IsCompleted, nil
}

// ActiveUploads lists sessions still open on the backend for the current
// credential.
func (c *Client) ActiveUploads(ctx context.Context) ([]ActiveUpload, error) {
	var resp []ActiveUpload
	if err := c.getJSON(ctx, activeUploadsPath, &resp); err != nil {
		return nil, fmt.Errorf("active uploads: %w", err)
	}
	return resp, nil
}
