// Package services contains the application services driving the client:
// session/credential lifecycle and chat orchestration over the realtime
// channels.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/m1tka051209/marketgram-client/internal/client/api"
	"github.com/m1tka051209/marketgram-client/internal/client/repositories"
	"github.com/m1tka051209/marketgram-client/internal/client/repositories/metadata"
	"github.com/m1tka051209/marketgram-client/internal/common"
)

// AuthAPI is the credential surface of the REST client.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (*api.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*api.TokenPair, error)
	SetToken(token string)
}

// SessionService owns the token lifecycle: login, durable storage, restart
// restore with refresh, and logout. Tokens live in the metadata table so a
// restarted process picks the session back up without re-authenticating.
type SessionService struct {
	api   AuthAPI
	repos *repositories.Repositories
}

func NewSessionService(authAPI AuthAPI, repos *repositories.Repositories) *SessionService {
	return &SessionService{api: authAPI, repos: repos}
}

// Login authenticates, persists the token pair, and returns the user id
// carried in the access token's subject claim.
func (s *SessionService) Login(ctx context.Context, username, password string) (string, error) {
	pair, err := s.api.Login(ctx, username, password)
	if err != nil {
		return "", err
	}
	userID, err := subjectOf(pair.AccessToken)
	if err != nil {
		return "", fmt.Errorf("inspecting access token: %w", err)
	}
	if err := s.store(ctx, pair, userID); err != nil {
		return "", err
	}
	return userID, nil
}

// Restore loads a persisted session. An expired access token is exchanged
// via the refresh endpoint. Returns ErrUnauthorized when nothing usable is
// stored, which sends the caller to interactive login.
func (s *SessionService) Restore(ctx context.Context) (string, error) {
	access, err := s.repos.Metadata.Get(ctx, metadata.KeyAccessToken)
	if err != nil {
		return "", err
	}
	if len(access) == 0 {
		return "", common.ErrUnauthorized
	}

	if expired(string(access)) {
		refresh, err := s.repos.Metadata.Get(ctx, metadata.KeyRefreshToken)
		if err != nil {
			return "", err
		}
		if len(refresh) == 0 {
			return "", common.ErrUnauthorized
		}
		pair, err := s.api.Refresh(ctx, string(refresh))
		if err != nil {
			return "", fmt.Errorf("refreshing session: %w", err)
		}
		userID, err := subjectOf(pair.AccessToken)
		if err != nil {
			return "", fmt.Errorf("inspecting access token: %w", err)
		}
		if err := s.store(ctx, pair, userID); err != nil {
			return "", err
		}
		return userID, nil
	}

	s.api.SetToken(string(access))
	userID, _ := s.repos.Metadata.Get(ctx, metadata.KeyUserID)
	if len(userID) == 0 {
		sub, err := subjectOf(string(access))
		if err != nil {
			return "", fmt.Errorf("inspecting access token: %w", err)
		}
		return sub, nil
	}
	return string(userID), nil
}

// AccessToken returns the stored access token, empty when logged out.
func (s *SessionService) AccessToken(ctx context.Context) string {
	v, err := s.repos.Metadata.Get(ctx, metadata.KeyAccessToken)
	if err != nil {
		return ""
	}
	return string(v)
}

// Logout wipes all durable session state.
func (s *SessionService) Logout(ctx context.Context) error {
	s.api.SetToken("")
	return s.repos.Metadata.Clear(ctx)
}

// store persists the credential triple in one transaction so a crash
// cannot leave a new access token next to a stale refresh token.
func (s *SessionService) store(ctx context.Context, pair *api.TokenPair, userID string) error {
	return s.repos.WithTx(ctx, func(ctx context.Context, tx *repositories.Repositories) error {
		if err := tx.Metadata.Set(ctx, metadata.KeyAccessToken, []byte(pair.AccessToken)); err != nil {
			return fmt.Errorf("persisting access token: %w", err)
		}
		if err := tx.Metadata.Set(ctx, metadata.KeyRefreshToken, []byte(pair.RefreshToken)); err != nil {
			return fmt.Errorf("persisting refresh token: %w", err)
		}
		if err := tx.Metadata.Set(ctx, metadata.KeyUserID, []byte(userID)); err != nil {
			return fmt.Errorf("persisting user id: %w", err)
		}
		return nil
	})
}

// subjectOf extracts the subject claim without verifying the signature.
// Verification is the server's job; the client only needs the identity and
// expiry baked into the token.
func subjectOf(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", err
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

// expired reports whether the token's exp claim is in the past. Tokens
// without an exp claim are treated as live.
func expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
