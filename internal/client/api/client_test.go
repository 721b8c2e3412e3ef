package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m1tka051209/marketgram-client/internal/common"
)

func TestClient_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"upload_id": "u1"})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	c.SetToken("tok-123")

	_, err := c.InitUpload(context.Background(), "a.jpg", 10, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

// Token refresh (or logout) can happen while a chunk loop is mid-request,
// so reads and writes of the credential must be safe to interleave. Run
// with -race to catch regressions.
func TestClient_TokenSafeUnderConcurrentRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "continue", "offset": 4})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	c.SetToken("tok-0")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			c.SetToken("tok-refreshed")
			_ = c.Token()
		}
	}()
	for i := 0; i < 50; i++ {
		_, err := c.SendChunk(context.Background(), "u1", 0, []byte("data"))
		require.NoError(t, err)
	}
	<-done
}

func TestClient_MapStatus(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		wantErr error
	}{
		{name: "401 unauthorized", code: http.StatusUnauthorized, wantErr: common.ErrUnauthorized},
		{name: "403 unauthorized", code: http.StatusForbidden, wantErr: common.ErrUnauthorized},
		{name: "404 not found", code: http.StatusNotFound, wantErr: common.ErrNotFound},
		{name: "503 unavailable", code: http.StatusServiceUnavailable, wantErr: common.ErrUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
			}))
			t.Cleanup(srv.Close)

			c := NewClient(srv.URL)
			_, err := c.ActiveUploads(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.wantErr), "expected %v, got %v", tc.wantErr, err)
		})
	}
}

func TestLogin_InstallsAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		_ = json.NewEncoder(w).Encode(TokenPair{AccessToken: "acc", RefreshToken: "ref"})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	pair, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "acc", pair.AccessToken)
	assert.Equal(t, "ref", pair.RefreshToken)
	assert.Equal(t, "acc", c.Token())
}
