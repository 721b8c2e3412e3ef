package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/m1tka051209/marketgram-client/internal/client/models"
)

// Chat REST endpoints. These are the non-realtime fallback used when the
// chat socket is not open, and the bulk-refresh source for reconciliation.

type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	Type       string `json:"message_type"`
}

// Dialogs fetches the full conversation list for the current user.
func (c *Client) Dialogs(ctx context.Context) ([]models.DialogEntry, error) {
	var resp struct {
		Dialogs []models.DialogEntry `json:"dialogs"`
	}
	if err := c.getJSON(ctx, "/dialogs", &resp); err != nil {
		return nil, fmt.Errorf("dialogs: %w", err)
	}
	return resp.Dialogs, nil
}

// History fetches the message list of one conversation, newest first.
func (c *Client) History(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := "/messages/" + url.PathEscape(userID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return resp.Messages, nil
}

// SendMessage posts a message over REST. The server-confirmed message (with
// its real id) comes back in the response and is fed to the reconciler the
// same way a socket event would be.
func (c *Client) SendMessage(ctx context.Context, receiverID, content string, msgType models.MessageType) (*models.Message, error) {
	var resp models.Message
	err := c.postJSON(ctx, "/messages", sendMessageRequest{
		ReceiverID: receiverID,
		Content:    content,
		Type:       string(msgType),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &resp, nil
}
