package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/m1tka051209/marketgram-client/internal/client/models"
	"github.com/m1tka051209/marketgram-client/internal/client/realtime"
	"github.com/m1tka051209/marketgram-client/internal/client/reconcile"
	"github.com/m1tka051209/marketgram-client/internal/client/repositories/notifications"
	"github.com/m1tka051209/marketgram-client/internal/common"
	"github.com/m1tka051209/marketgram-client/internal/logging"
)

// Socket is what the chat service needs from a realtime channel.
type Socket interface {
	Connect(ctx context.Context, token string) error
	Close()
	Send(frameType string, payload any) error
	On(frameType string, fn realtime.Handler)
	OnOpen(fn func())
	State() realtime.State
}

// ChatAPI is the REST surface the chat service falls back to when the
// socket is down, plus history paging.
type ChatAPI interface {
	Dialogs(ctx context.Context) ([]models.DialogEntry, error)
	History(ctx context.Context, userID string, limit int) ([]models.Message, error)
	SendMessage(ctx context.Context, receiverID, content string, msgType models.MessageType) (*models.Message, error)
}

// ChatService glues the two sockets, the REST client and the reconciler
// together. The notification socket carries cross-cutting events (counters,
// push-style message copies); the chat socket carries the conversation
// stream. Both feed the same reconciler, which dedups overlap.
type ChatService struct {
	api           ChatAPI
	notifications Socket
	chat          Socket
	state         *reconcile.Reconciler
	history       notifications.Repository
	log           logging.Logger

	friendRequests atomic.Int64
}

func NewChatService(restAPI ChatAPI, notifSocket, chatSocket Socket, state *reconcile.Reconciler, history notifications.Repository, log logging.Logger) *ChatService {
	if log == nil {
		log = logging.Discard()
	}
	s := &ChatService{
		api:           restAPI,
		notifications: notifSocket,
		chat:          chatSocket,
		state:         state,
		history:       history,
		log:           log.With("component", "chat"),
	}
	s.wire()
	return s
}

// wire registers every frame handler once, before any connection exists.
func (s *ChatService) wire() {
	s.chat.OnOpen(func() {
		if err := s.chat.Send("get_dialogs", nil); err != nil {
			s.log.Warn(context.Background(), "initial dialog request failed", "error", err)
		}
	})
	s.state.SetRefetch(s.refetchDialogs)

	s.chat.On("dialogs_list", s.onDialogs)
	s.chat.On("new_message", s.onNewMessage)
	s.chat.On("messages_read", s.onMessagesRead)
	s.chat.On("your_messages_read", s.onPeerRead)
	s.chat.On("message_deleted", s.onMessageDeleted)
	s.chat.On("bulk_delete", s.onBulkDelete)
	s.chat.On("user_status", s.onUserStatus)

	s.notifications.On("new_message", s.onNotifiedMessage)
	s.notifications.On("friend_requests_count", s.onFriendRequestCount)
	s.notifications.On("user_status", s.onUserStatus)
}

// Connect opens both sockets with the given credential. Channels redial on
// their own afterwards; a connect error on one side does not stop the other.
func (s *ChatService) Connect(ctx context.Context, token string) error {
	notifErr := s.notifications.Connect(ctx, token)
	chatErr := s.chat.Connect(ctx, token)
	return errors.Join(notifErr, chatErr)
}

// Disconnect closes both sockets and suppresses reconnection.
func (s *ChatService) Disconnect() {
	s.notifications.Close()
	s.chat.Close()
}

// SendText sends a text message, optimistically inserting a pending copy
// so the conversation updates immediately. Delivery prefers the chat
// socket and falls back to REST when it is not open.
func (s *ChatService) SendText(ctx context.Context, receiverID, content string) error {
	return s.send(ctx, receiverID, models.MessageTypeText, content)
}

// SendMedia records an uploaded object as a message of the type the
// upload pipeline reported.
func (s *ChatService) SendMedia(ctx context.Context, receiverID string, result *models.UploadResult) error {
	return s.send(ctx, receiverID, models.MessageType(result.MessageType), result.FilePath)
}

func (s *ChatService) send(ctx context.Context, receiverID string, msgType models.MessageType, content string) error {
	pending := models.Message{
		ID:         uuid.NewString(),
		SenderID:   s.selfID(),
		ReceiverID: receiverID,
		Timestamp:  time.Now(),
		Type:       msgType,
		Content:    content,
	}
	s.state.AddPending(pending)

	err := s.chat.Send("message", map[string]any{
		"receiver_id":  receiverID,
		"message_type": msgType,
		"content":      content,
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrNotConnected) {
		return err
	}

	s.log.Info(ctx, "chat socket down, sending over rest", "receiver_id", receiverID)
	confirmed, err := s.api.SendMessage(ctx, receiverID, content, msgType)
	if err != nil {
		return fmt.Errorf("rest fallback send: %w", err)
	}
	s.state.ApplyMessage(*confirmed)
	return nil
}

// MarkRead reports the open conversation as read and zeroes its counter
// locally without waiting for the echo.
func (s *ChatService) MarkRead(peerID string) {
	if err := s.chat.Send("mark_read", map[string]string{"sender_id": peerID}); err != nil {
		s.log.Warn(context.Background(), "mark_read not delivered", "error", err)
	}
	s.state.MarkRead(peerID)
}

// LoadHistory pages one conversation over REST into the reconciler.
func (s *ChatService) LoadHistory(ctx context.Context, peerID string, limit int) error {
	msgs, err := s.api.History(ctx, peerID, limit)
	if err != nil {
		return err
	}
	s.state.ApplyHistory(peerID, msgs)
	return nil
}

// FriendRequestCount is the last counter pushed on the notification socket.
func (s *ChatService) FriendRequestCount() int {
	return int(s.friendRequests.Load())
}

func (s *ChatService) selfID() string {
	// the reconciler owns self identity; pending messages only need a
	// sender matching what confirmations will carry
	return s.state.Self()
}

// refetchDialogs asks the server for a fresh snapshot, over the socket
// when possible, otherwise REST.
func (s *ChatService) refetchDialogs() {
	if err := s.chat.Send("get_dialogs", nil); err == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), common.ConnectTimeout)
	defer cancel()
	dialogs, err := s.api.Dialogs(ctx)
	if err != nil {
		s.log.Warn(ctx, "dialog refetch failed", "error", err)
		return
	}
	s.state.ApplyDialogs(dialogs)
}

func (s *ChatService) onDialogs(data json.RawMessage) {
	var payload struct {
		Dialogs []models.DialogEntry `json:"dialogs"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		s.log.Warn(context.Background(), "bad dialogs payload", "error", err)
		return
	}
	s.state.ApplyDialogs(payload.Dialogs)
}

func (s *ChatService) onNewMessage(data json.RawMessage) {
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil || m.ID == "" {
		s.log.Warn(context.Background(), "bad message payload", "error", err)
		return
	}
	s.state.ApplyMessage(m)
}

// onNotifiedMessage handles the copy of a message event delivered on the
// notification socket. The reconciler dedups against the chat stream; the
// grouping history additionally remembers the latest payload per sender so
// banner notifications collapse.
func (s *ChatService) onNotifiedMessage(data json.RawMessage) {
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil || m.ID == "" {
		s.log.Warn(context.Background(), "bad notification payload", "error", err)
		return
	}
	s.state.ApplyMessage(m)
	if s.history != nil {
		if err := s.history.Record(context.Background(), m.SenderID, data); err != nil {
			s.log.Warn(context.Background(), "recording notification failed", "error", err)
		}
	}
}

func (s *ChatService) onMessagesRead(data json.RawMessage) {
	var payload struct {
		SenderID string `json:"sender_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.SenderID == "" {
		return
	}
	s.state.MarkRead(payload.SenderID)
}

func (s *ChatService) onPeerRead(data json.RawMessage) {
	var payload struct {
		ReaderID string `json:"reader_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.ReaderID == "" {
		return
	}
	s.state.MarkPeerRead(payload.ReaderID)
}

func (s *ChatService) onMessageDeleted(data json.RawMessage) {
	var payload struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.MessageID == "" {
		return
	}
	s.state.ApplyDelete(payload.MessageID)
}

func (s *ChatService) onBulkDelete(data json.RawMessage) {
	var payload struct {
		MessageIDs []string `json:"message_ids"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || len(payload.MessageIDs) == 0 {
		return
	}
	s.state.ApplyDelete(payload.MessageIDs...)
}

func (s *ChatService) onUserStatus(data json.RawMessage) {
	var payload struct {
		UserID   string    `json:"user_id"`
		Status   string    `json:"status"`
		LastSeen time.Time `json:"last_seen"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.UserID == "" {
		return
	}
	s.state.ApplyUserStatus(payload.UserID, payload.Status, payload.LastSeen)
}

func (s *ChatService) onFriendRequestCount(data json.RawMessage) {
	var payload struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	s.friendRequests.Store(payload.Count)
}
