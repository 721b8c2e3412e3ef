package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/m1tka051209/marketgram-client/internal/client/api"
	"github.com/m1tka051209/marketgram-client/internal/client/config"
	"github.com/m1tka051209/marketgram-client/internal/client/models"
	"github.com/m1tka051209/marketgram-client/internal/client/realtime"
	"github.com/m1tka051209/marketgram-client/internal/client/reconcile"
	"github.com/m1tka051209/marketgram-client/internal/client/repositories"
	"github.com/m1tka051209/marketgram-client/internal/client/services"
	"github.com/m1tka051209/marketgram-client/internal/client/upload"
	"github.com/m1tka051209/marketgram-client/internal/common"
	"github.com/m1tka051209/marketgram-client/internal/filex"
	"github.com/m1tka051209/marketgram-client/internal/logging"

	_ "modernc.org/sqlite"
)

// App owns every long-lived component of the client.
type App struct {
	config  *config.Config
	log     logging.Logger
	repos   *repositories.Repositories
	client  *api.Client
	state   *reconcile.Reconciler
	session *services.SessionService
	chat    *services.ChatService
	prefs   *services.PrefsService
	uploads *upload.Coordinator

	userID string
	reader *bufio.Reader
}

func NewApp(c *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Discard()
	}
	ctx := context.Background()

	if err := filex.EnsureParentDir(c.DatabasePath); err != nil {
		return nil, err
	}
	repos, err := repositories.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	client := api.NewClient(c.APIBaseURL)

	state := reconcile.NewReconciler(log)

	notifSocket := realtime.NewChannel(realtime.Options{
		URL:               c.NotificationsWSURL,
		Name:              "notifications",
		ConnectTimeout:    c.ConnectTimeout,
		HeartbeatInterval: c.HeartbeatInterval,
		ReconnectBase:     c.ReconnectBase,
		ReconnectMax:      c.ReconnectMax,
	}, log)
	chatSocket := realtime.NewChannel(realtime.Options{
		URL:               c.ChatWSURL,
		Name:              "chat",
		TokenInPath:       true,
		ConnectTimeout:    c.ConnectTimeout,
		HeartbeatInterval: c.HeartbeatInterval,
		ReconnectBase:     c.ReconnectBase,
		ReconnectMax:      c.ReconnectMax,
	}, log)

	transport := upload.NewHTTPChunkTransport(client)
	coordinator := upload.NewCoordinator(client, transport, repos.Uploads, log, c.ChunkSize)

	return &App{
		config:  c,
		log:     log,
		repos:   repos,
		client:  client,
		state:   state,
		session: services.NewSessionService(client, repos),
		chat:    services.NewChatService(client, notifSocket, chatSocket, state, repos.Notifications, log),
		prefs:   services.NewPrefsService(repos.Metadata),
		uploads: coordinator,
		reader:  bufio.NewReader(os.Stdin),
	}, nil
}

// Run restores a persisted session when one exists and drives the REPL
// until the user exits.
func (a *App) Run(ctx context.Context) {
	defer a.shutdown()

	if userID, err := a.session.Restore(ctx); err == nil {
		a.online(ctx, userID)
		printlnFn("Session restored for user", userID)
	}

	runREPL(ctx, a, a.status, bufio.NewScanner(os.Stdin))
}

func (a *App) shutdown() {
	a.uploads.Close()
	a.chat.Disconnect()
	_ = a.repos.DB.Close()
}

func (a *App) isLoggedIn() bool {
	return a.userID != ""
}

func (a *App) status() string {
	if a.userID == "" {
		return "logged out"
	}
	if n := a.state.UnreadTotal(); n > 0 {
		return fmt.Sprintf("user %s, %d unread", a.userID, n)
	}
	return "user " + a.userID
}

// online connects both sockets and resumes any uploads the server still
// holds open for this client.
func (a *App) online(ctx context.Context, userID string) {
	a.userID = userID
	a.state.SetSelf(userID)
	if err := a.chat.Connect(ctx, a.session.AccessToken(ctx)); err != nil {
		a.log.Warn(ctx, "realtime connect failed", "error", err)
	}
	if err := a.uploads.ResumeAll(ctx); err != nil {
		a.log.Warn(ctx, "upload recovery failed", "error", err)
	}
}

func (a *App) Login(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}
	password, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}

	userID, err := a.session.Login(ctx, username, password)
	if err != nil {
		printlnFn("Login failed:", err)
		return err
	}
	a.online(ctx, userID)
	printlnFn("Logged in")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.chat.Disconnect()
	a.state.Reset()
	a.userID = ""
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	printlnFn("Logged out")
	return nil
}

func (a *App) Dialogs(ctx context.Context) error {
	dialogs := a.state.Dialogs()
	if len(dialogs) == 0 {
		printlnFn("No dialogs yet")
		return nil
	}
	for _, d := range dialogs {
		line := fmt.Sprintf("%s (%s)", d.Username, d.UserID)
		if d.Presence == models.PresenceOnline {
			line += " [online]"
		}
		if d.UnreadCount > 0 {
			line += fmt.Sprintf(" — %d unread", d.UnreadCount)
		}
		if d.LastMessage != "" {
			line += ": " + d.LastMessage
		}
		printlnFn(line)
	}
	if n := a.chat.FriendRequestCount(); n > 0 {
		printlnFn(fmt.Sprintf("%d pending friend requests", n))
	}
	return nil
}

func (a *App) Open(ctx context.Context, peerID string) error {
	if err := a.chat.LoadHistory(ctx, peerID, 50); err != nil {
		printlnFn("History not available:", err)
	}
	a.state.SetActiveDialog(peerID)
	a.chat.MarkRead(peerID)

	if u, ok := a.state.Presence(peerID); ok {
		name := u.Username
		if name == "" {
			name = peerID
		}
		if u.Presence == models.PresenceOnline {
			printlnFn(name, "is online")
		} else if !u.LastSeen.IsZero() {
			printlnFn(name, "last seen", u.LastSeen.Format("Jan 2 15:04"))
		}
	}

	for _, m := range a.state.Messages(peerID) {
		who := m.SenderID
		if m.SenderID == a.userID {
			who = "me"
		}
		suffix := ""
		if m.Pending {
			suffix = " (sending)"
		}
		printlnFn(fmt.Sprintf("[%s] %s: %s%s", m.Timestamp.Format("15:04"), who, m.Content, suffix))
	}
	return nil
}

func (a *App) Send(ctx context.Context, peerID, text string) error {
	if err := a.chat.SendText(ctx, peerID, text); err != nil {
		printlnFn("Send failed:", err)
		return err
	}
	return nil
}

// Upload starts a chunked upload of path addressed to a conversation and
// prints progress until it reaches a terminal state.
func (a *App) Upload(ctx context.Context, peerID, path string) error {
	id, err := a.uploads.Start(ctx, path, filepath.Base(path), mimeTypeOf(path), dialogKey(peerID))
	if err != nil {
		printlnFn("Upload failed:", err)
		return err
	}
	printlnFn("Upload started:", id)

	done := make(chan models.UploadProgress, 16)
	unsubscribe := a.uploads.Subscribe(id, func(p models.UploadProgress) { done <- p })
	defer unsubscribe()

	for {
		select {
		case p := <-done:
			switch {
			case p.Status == models.UploadStatusCompleted:
				printlnFn("Upload completed:", p.Result.FilePath)
				if err := a.chat.SendMedia(ctx, peerID, p.Result); err != nil {
					printlnFn("Sending media message failed:", err)
				}
				return nil
			case p.Status == models.UploadStatusCancelled:
				printlnFn("Upload cancelled")
				return common.ErrCancelled
			case p.Err != nil:
				printlnFn("Upload error:", p.Err)
				return p.Err
			default:
				printlnFn(fmt.Sprintf("... %3.0f%%", p.Progress*100))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *App) Uploads(ctx context.Context) error {
	active := a.uploads.Active()
	if len(active) == 0 {
		printlnFn("No active uploads")
		return nil
	}
	for _, id := range active {
		printlnFn("active:", id)
	}
	return nil
}

func (a *App) CancelUpload(ctx context.Context, id string) error {
	if !a.uploads.Cancel(id) {
		printlnFn("No such active upload:", id)
		return common.ErrSessionUnknown
	}
	printlnFn("Cancelled", id)
	return nil
}

func (a *App) ResumeUpload(ctx context.Context, id string) error {
	if err := a.uploads.Resume(ctx, id); err != nil {
		printlnFn("Resume failed:", err)
		return err
	}
	printlnFn("Resumed", id)
	return nil
}

func (a *App) QuietHours(ctx context.Context, args []string) error {
	if len(args) == 0 {
		qh, err := a.prefs.QuietHours(ctx)
		if err != nil {
			return err
		}
		if !qh.Enabled {
			printlnFn("Quiet hours off")
		} else {
			printlnFn(fmt.Sprintf("Quiet hours %s–%s", qh.From, qh.To))
		}
		return nil
	}
	if args[0] == "off" {
		return a.prefs.SetQuietHours(ctx, services.QuietHours{})
	}
	if len(args) != 2 {
		printlnFn("Usage: quiet <from> <to> | quiet off")
		return nil
	}
	return a.prefs.SetQuietHours(ctx, services.QuietHours{Enabled: true, From: args[0], To: args[1]})
}

func (a *App) Theme(ctx context.Context, args []string) error {
	if len(args) == 0 {
		theme, err := a.prefs.Theme(ctx)
		if err != nil {
			return err
		}
		if theme == "" {
			theme = "light"
		}
		printlnFn("Theme:", theme)
		return nil
	}
	switch args[0] {
	case "light", "dark":
		if err := a.prefs.SetTheme(ctx, args[0]); err != nil {
			return err
		}
		printlnFn("Theme set to", args[0])
		return nil
	default:
		printlnFn("Usage: theme [light|dark]")
		return nil
	}
}

// dialogKey is the context key an upload is filed under, so restart
// recovery can resume the uploads of one conversation.
func dialogKey(peerID string) string {
	return "dialog:" + peerID
}

func mimeTypeOf(path string) string {
	switch filepath.Ext(path) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".mp4":
		return "video/mp4"
	case ".m4a", ".aac":
		return "audio/aac"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
