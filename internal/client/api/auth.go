package api

import (
	"context"
	"fmt"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenPair is the credential set issued by the backend. The access token is
// attached to REST calls and to both WebSocket endpoints.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login authenticates and installs the returned access token on the client.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	var pair TokenPair
	if err := c.postJSON(ctx, "/auth/login", loginRequest{Username: username, Password: password}, &pair); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	c.SetToken(pair.AccessToken)
	return &pair, nil
}

// Refresh exchanges a refresh token for a new pair and installs the new
// access token. Socket channels do not self-refresh; after a refresh the
// caller reconnects them with the new credential.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var pair TokenPair
	if err := c.postJSON(ctx, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, &pair); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	c.SetToken(pair.AccessToken)
	return &pair, nil
}
