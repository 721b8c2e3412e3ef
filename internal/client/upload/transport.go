// Package upload implements the resumable chunked upload manager: a
// per-session transmission loop over a chunk transport, with durable resume
// metadata, cooperative cancellation and progress observers.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/m1tka051209/marketgram-client/internal/client/api"
	"github.com/m1tka051209/marketgram-client/internal/client/models"
)

// ChunkTransport performs one bounded read-encode-send round trip for a
// single chunk. Implementations are pure with respect to local state: the
// caller owns offset bookkeeping.
type ChunkTransport interface {
	Send(ctx context.Context, session *models.UploadSession, offset, length int64) (*api.ChunkResult, error)
}

// HTTPChunkTransport reads the byte range from the local file and posts it
// to the backend's chunk endpoint.
type HTTPChunkTransport struct {
	client *api.Client
}

func NewHTTPChunkTransport(client *api.Client) *HTTPChunkTransport {
	return &HTTPChunkTransport{client: client}
}

func (t *HTTPChunkTransport) Send(ctx context.Context, session *models.UploadSession, offset, length int64) (*api.ChunkResult, error) {
	file, err := os.Open(session.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("opening source: %w", err)
	}
	defer file.Close()

	// The loop computes length = min(chunkSize, total-offset), so a short
	// read here means the file changed underneath us.
	buf := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(file, offset, length), buf); err != nil {
		return nil, fmt.Errorf("reading chunk at offset %d: %w", offset, err)
	}

	return t.client.SendChunk(ctx, session.ID, offset, buf)
}
