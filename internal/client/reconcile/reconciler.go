// Package reconcile folds realtime events into the client's dialog and
// message state. Events may arrive duplicated across the two sockets and
// the REST refetch path, so every mutation here is idempotent.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/m1tka051209/marketgram-client/internal/client/models"
	"github.com/m1tka051209/marketgram-client/internal/logging"
)

// Reconciler is the single owner of in-memory chat state: the ordered
// dialog list, per-conversation message history, the seen-id set, and the
// presence cache. All methods are safe for concurrent use.
type Reconciler struct {
	log logging.Logger

	mu           sync.Mutex
	selfID       string
	activeDialog string
	dialogs      []models.DialogEntry
	messages     map[string][]models.Message
	seen         map[string]struct{}
	presence     map[string]models.User
	refetching   bool

	refetch  func()
	onChange func()
}

func NewReconciler(log logging.Logger) *Reconciler {
	if log == nil {
		log = logging.Discard()
	}
	return &Reconciler{
		log:      log.With("component", "reconcile"),
		messages: make(map[string][]models.Message),
		seen:     make(map[string]struct{}),
		presence: make(map[string]models.User),
	}
}

// SetSelf sets the authenticated user's id, used to tell own messages
// from the counterpart's.
func (r *Reconciler) SetSelf(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selfID = userID
}

// Self returns the authenticated user's id.
func (r *Reconciler) Self() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selfID
}

// SetRefetch registers the callback that requests a full dialog list from
// the server. The reconciler coalesces requests: at most one is
// outstanding until ApplyDialogs lands.
func (r *Reconciler) SetRefetch(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refetch = fn
}

// OnChange registers a hook invoked after every state mutation, outside
// the lock. The CLI uses it to repaint.
func (r *Reconciler) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// SetActiveDialog marks the conversation currently on screen. Incoming
// messages for it do not bump the unread counter. Empty string clears it.
func (r *Reconciler) SetActiveDialog(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeDialog = userID
}

// Reset drops all state, for logout.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialogs = nil
	r.messages = make(map[string][]models.Message)
	r.seen = make(map[string]struct{})
	r.presence = make(map[string]models.User)
	r.refetching = false
	r.activeDialog = ""
}

// ApplyDialogs replaces the dialog list with a server snapshot and clears
// the outstanding-refetch flag.
func (r *Reconciler) ApplyDialogs(dialogs []models.DialogEntry) {
	r.mu.Lock()
	r.dialogs = make([]models.DialogEntry, len(dialogs))
	copy(r.dialogs, dialogs)
	for i := range r.dialogs {
		d := &r.dialogs[i]
		u := r.presence[d.UserID]
		u.ID = d.UserID
		u.Username = d.Username
		if u.Presence != "" {
			d.Presence = u.Presence
			d.LastSeen = u.LastSeen
		} else {
			u.Presence = d.Presence
			u.LastSeen = d.LastSeen
		}
		r.presence[d.UserID] = u
	}
	r.refetching = false
	r.mu.Unlock()
	r.changed()
}

// ApplyHistory merges a REST history page for one conversation. Messages
// already seen on a socket are skipped.
func (r *Reconciler) ApplyHistory(peerID string, msgs []models.Message) {
	r.mu.Lock()
	for _, m := range msgs {
		if _, dup := r.seen[m.ID]; dup {
			continue
		}
		r.seen[m.ID] = struct{}{}
		r.messages[peerID] = append(r.messages[peerID], m)
	}
	r.mu.Unlock()
	r.changed()
}

// AddPending records a locally sent message before the server confirms
// it. The dialog moves to the front; unread is untouched.
func (r *Reconciler) AddPending(m models.Message) {
	m.Pending = true
	r.mu.Lock()
	peer := m.ReceiverID
	r.seen[m.ID] = struct{}{}
	r.messages[peer] = append(r.messages[peer], m)
	if i := r.dialogIndex(peer); i >= 0 {
		r.dialogs[i].LastMessage = m.Content
		r.dialogs[i].LastMessageTime = m.Timestamp
		r.moveToFront(i)
	}
	r.mu.Unlock()
	r.changed()
}

// ApplyMessage folds one incoming message event. Duplicates are dropped
// by id. A confirmation of an own pending message replaces it in place.
// A message from a counterpart with no dialog entry triggers exactly one
// full refetch and is otherwise kept only in history.
func (r *Reconciler) ApplyMessage(m models.Message) {
	r.mu.Lock()
	if _, dup := r.seen[m.ID]; dup {
		r.mu.Unlock()
		return
	}

	own := m.SenderID == r.selfID
	peer := m.SenderID
	if own {
		peer = m.ReceiverID
	}

	if own && r.confirmPending(peer, m) {
		r.mu.Unlock()
		r.changed()
		return
	}

	r.seen[m.ID] = struct{}{}
	r.messages[peer] = append(r.messages[peer], m)

	needRefetch := false
	if i := r.dialogIndex(peer); i >= 0 {
		r.dialogs[i].LastMessage = m.Content
		r.dialogs[i].LastMessageTime = m.Timestamp
		if !own && peer != r.activeDialog {
			r.dialogs[i].UnreadCount++
		}
		r.moveToFront(i)
	} else if !own {
		needRefetch = r.requestRefetchLocked()
	}
	r.mu.Unlock()

	if needRefetch {
		r.log.Info(context.Background(), "unknown counterpart, refetching dialogs", "user_id", peer)
	}
	r.changed()
}

// confirmPending replaces a still-pending local message that matches the
// confirmed one by receiver and content. The server id takes over.
func (r *Reconciler) confirmPending(peer string, m models.Message) bool {
	msgs := r.messages[peer]
	for i := range msgs {
		if msgs[i].Pending && msgs[i].Content == m.Content && msgs[i].Type == m.Type {
			delete(r.seen, msgs[i].ID)
			m.Pending = false
			msgs[i] = m
			r.seen[m.ID] = struct{}{}
			if j := r.dialogIndex(peer); j >= 0 {
				r.dialogs[j].LastMessage = m.Content
				r.dialogs[j].LastMessageTime = m.Timestamp
			}
			return true
		}
	}
	return false
}

// MarkRead records that the user read a conversation: unread drops to
// zero and the counterpart's messages are flagged read.
func (r *Reconciler) MarkRead(peerID string) {
	r.mu.Lock()
	if i := r.dialogIndex(peerID); i >= 0 {
		r.dialogs[i].UnreadCount = 0
	}
	msgs := r.messages[peerID]
	for i := range msgs {
		if msgs[i].SenderID == peerID {
			msgs[i].IsRead = true
		}
	}
	r.mu.Unlock()
	r.changed()
}

// MarkPeerRead records that the counterpart read the user's messages in a
// conversation.
func (r *Reconciler) MarkPeerRead(peerID string) {
	r.mu.Lock()
	msgs := r.messages[peerID]
	for i := range msgs {
		if msgs[i].SenderID == r.selfID {
			msgs[i].IsRead = true
		}
	}
	r.mu.Unlock()
	r.changed()
}

// ApplyDelete removes messages by id. Ids not found locally mean the
// local state drifted, which forces a full refetch.
func (r *Reconciler) ApplyDelete(messageIDs ...string) {
	r.mu.Lock()
	needRefetch := false
	for _, id := range messageIDs {
		if !r.deleteLocked(id) {
			needRefetch = r.requestRefetchLocked() || needRefetch
		}
	}
	r.mu.Unlock()
	r.changed()
}

func (r *Reconciler) deleteLocked(id string) bool {
	if _, ok := r.seen[id]; !ok {
		return false
	}
	for peer, msgs := range r.messages {
		for i := range msgs {
			if msgs[i].ID != id {
				continue
			}
			r.messages[peer] = append(msgs[:i:i], msgs[i+1:]...)
			if j := r.dialogIndex(peer); j >= 0 {
				r.refreshLastLocked(j, peer)
			}
			return true
		}
	}
	// seen via a dedup path but never stored; nothing to remove
	return true
}

// refreshLastLocked recomputes a dialog's preview after a removal.
func (r *Reconciler) refreshLastLocked(i int, peer string) {
	msgs := r.messages[peer]
	if len(msgs) == 0 {
		r.dialogs[i].LastMessage = ""
		return
	}
	last := msgs[len(msgs)-1]
	r.dialogs[i].LastMessage = last.Content
	r.dialogs[i].LastMessageTime = last.Timestamp
}

// ApplyUserStatus updates the cached user record and any matching dialog.
func (r *Reconciler) ApplyUserStatus(userID, status string, lastSeen time.Time) {
	r.mu.Lock()
	u := r.presence[userID]
	u.ID = userID
	u.Presence = status
	u.LastSeen = lastSeen
	r.presence[userID] = u
	if i := r.dialogIndex(userID); i >= 0 {
		r.dialogs[i].Presence = status
		r.dialogs[i].LastSeen = lastSeen
	}
	r.mu.Unlock()
	r.changed()
}

// Dialogs returns the current ordering, most recent first.
func (r *Reconciler) Dialogs() []models.DialogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.DialogEntry, len(r.dialogs))
	copy(out, r.dialogs)
	return out
}

// Messages returns the history held for one conversation.
func (r *Reconciler) Messages(peerID string) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Message, len(r.messages[peerID]))
	copy(out, r.messages[peerID])
	return out
}

// UnreadTotal sums unread counters across dialogs.
func (r *Reconciler) UnreadTotal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, d := range r.dialogs {
		total += d.UnreadCount
	}
	return total
}

// Presence returns the cached user record, folded from dialog snapshots
// and user_status events.
func (r *Reconciler) Presence(userID string) (models.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.presence[userID]
	return u, ok
}

func (r *Reconciler) dialogIndex(userID string) int {
	for i := range r.dialogs {
		if r.dialogs[i].UserID == userID {
			return i
		}
	}
	return -1
}

// moveToFront shifts dialogs[i] to index 0 preserving the relative order
// of the others.
func (r *Reconciler) moveToFront(i int) {
	if i <= 0 {
		return
	}
	d := r.dialogs[i]
	copy(r.dialogs[1:i+1], r.dialogs[:i])
	r.dialogs[0] = d
}

// requestRefetchLocked fires the refetch callback unless one is already
// outstanding. Reports whether it fired.
func (r *Reconciler) requestRefetchLocked() bool {
	if r.refetching || r.refetch == nil {
		return false
	}
	r.refetching = true
	go r.refetch()
	return true
}

func (r *Reconciler) changed() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}
