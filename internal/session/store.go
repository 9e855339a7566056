package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"sandy-backend/internal/models"
)

// ErrNotSignedIn is returned by every mutation when no user is attached.
// State is never touched in that case.
var ErrNotSignedIn = errors.New("no user is signed in")

// ErrUnknownChat is returned when a mutation names a chat id the store does
// not hold.
var ErrUnknownChat = errors.New("unknown chat")

// MutationPolicy names how an operation orders the remote write against the
// in-memory commit.
type MutationPolicy string

const (
	// WriteThroughCommit: the remote write must succeed before memory
	// reflects the mutation. On failure callers observe no state change.
	WriteThroughCommit MutationPolicy = "write-through-commit"

	// OptimisticWithRevert: memory flips immediately and is reverted only
	// when the remote write fails.
	OptimisticWithRevert MutationPolicy = "optimistic-with-revert"
)

// OperationPolicies records the policy of every remote-writing operation.
// ToggleFavorite is deliberately the sole optimistic exception, to keep the
// favorite star responsive.
var OperationPolicies = map[string]MutationPolicy{
	"CreateChat":         WriteThroughCommit,
	"AppendMessage":      WriteThroughCommit,
	"ReplaceFromIndex":   WriteThroughCommit,
	"DeleteChat":         WriteThroughCommit,
	"UpdateChatTitle":    WriteThroughCommit,
	"UpdateChatModel":    WriteThroughCommit,
	"ToggleFavorite":     OptimisticWithRevert,
	"AddFolder":          WriteThroughCommit,
	"UpdateFolder":       WriteThroughCommit,
	"DeleteFolder":       WriteThroughCommit,
	"AssignChatToFolder": WriteThroughCommit,
	"UpdateUserProfile":  WriteThroughCommit,
}

// ChatRepository is the slice of the remote record store the session needs
// for conversations. Implemented on PostgreSQL in internal/repository.
type ChatRepository interface {
	Insert(ctx context.Context, chat *models.Chat) error
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Chat, error)
	GetMessages(ctx context.Context, chatID uuid.UUID) ([]models.Message, string, error)
	UpdateMessages(ctx context.Context, chatID uuid.UUID, messages []models.Message, title string) error
	Delete(ctx context.Context, chatID, userID uuid.UUID) error
	UpdateTitle(ctx context.Context, chatID, userID uuid.UUID, title string) error
	UpdateModel(ctx context.Context, chatID, userID uuid.UUID, modelID string) error
	SetFavorite(ctx context.Context, chatID, userID uuid.UUID, favorite bool) error
	SetFolder(ctx context.Context, chatID, userID uuid.UUID, folderID *uuid.UUID) error
	ClearFolder(ctx context.Context, folderID, userID uuid.UUID) error
}

type FolderRepository interface {
	Insert(ctx context.Context, folder *models.Folder) error
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Folder, error)
	UpdateName(ctx context.Context, folderID, userID uuid.UUID, name string) error
	Delete(ctx context.Context, folderID, userID uuid.UUID) error
}

type ProfileRepository interface {
	// GetByUserID returns (nil, nil) when no profile row exists.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	Insert(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

// Notifier delivers short-lived user-facing notifications. Every failed
// mutation produces one; successes stay quiet except where the UI expects
// feedback.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, level, message string)
}

// NoopNotifier drops all notifications. Used in tests.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, uuid.UUID, string, string) {}

// Store is the single source of truth for one signed-in user's conversation
// state. Collections are mutated only through its operations; remote I/O runs
// outside the lock so independent operations interleave the way the original
// event loop allowed (last write wins across concurrent mutations, an
// accepted single-user race).
type Store struct {
	chatRepo    ChatRepository
	folderRepo  FolderRepository
	profileRepo ProfileRepository
	notifier    Notifier

	mu                sync.Mutex
	user              *models.User
	chats             []*models.Chat
	currentChatID     *uuid.UUID
	folders           []*models.Folder
	favorites         map[uuid.UUID]struct{}
	sidebarCollapsed  bool
	credentialMissing bool
	lastEditErr       error
}

func NewStore(chats ChatRepository, folders FolderRepository, profiles ProfileRepository, notifier Notifier) *Store {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Store{
		chatRepo:    chats,
		folderRepo:  folders,
		profileRepo: profiles,
		notifier:    notifier,
		favorites:   make(map[uuid.UUID]struct{}),
	}
}

// ─── Accessors ───

func (s *Store) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Chats returns the conversation list. The returned chats are owned by the
// store; callers must treat them as read-only.
func (s *Store) Chats() []*models.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Chat, len(s.chats))
	copy(out, s.chats)
	return out
}

// Chat returns a snapshot of the chat. The message slice is copied so callers
// can read it outside the store lock while concurrent mutations proceed.
func (s *Store) Chat(id uuid.UUID) (*models.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findChat(id)
	if c == nil {
		return nil, false
	}
	cp := *c
	cp.Messages = append([]models.Message(nil), c.Messages...)
	return &cp, true
}

func (s *Store) CurrentChatID() *uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentChatID == nil {
		return nil
	}
	id := *s.currentChatID
	return &id
}

func (s *Store) Folders() []*models.Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Folder, len(s.folders))
	copy(out, s.folders)
	return out
}

// Favorites returns the cached favorite id set.
func (s *Store) Favorites() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.favorites))
	for id := range s.favorites {
		out = append(out, id)
	}
	return out
}

func (s *Store) IsFavorite(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.favorites[id]
	return ok
}

func (s *Store) SidebarCollapsed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sidebarCollapsed
}

// LastEditError reports the most recent failed title write. Debounce-driven
// title edits are best-effort; this keeps their failures observable instead
// of silent.
func (s *Store) LastEditError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEditErr
}

// CredentialMissing is the sticky flag set when an exchange fails for lack of
// a model-access credential; it gates submissions until a valid key lands.
func (s *Store) CredentialMissing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credentialMissing
}

func (s *Store) SetCredentialMissing(missing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentialMissing = missing
}

// ─── Mutations ───

// CreateChat inserts an empty conversation remotely, then appends it to
// memory and makes it current. Write-through: a remote failure leaves memory
// untouched.
func (s *Store) CreateChat(ctx context.Context, modelID string) (*models.Chat, error) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil, ErrNotSignedIn
	}
	userID := s.user.ID
	if modelID == "" {
		modelID = s.user.Preferences.DefaultModel
	}
	if modelID == "" {
		modelID = models.DefaultModelID
	}
	titles := make([]string, len(s.chats))
	for i, c := range s.chats {
		titles[i] = c.Title
	}
	s.mu.Unlock()

	chat := &models.Chat{
		ID:       uuid.New(),
		UserID:   userID,
		Title:    placeholderTitle(titles),
		Messages: []models.Message{},
		Model:    modelID,
	}

	if err := s.chatRepo.Insert(ctx, chat); err != nil {
		s.notifier.Notify(ctx, userID, "error", "Failed to create chat")
		return nil, err
	}

	s.mu.Lock()
	s.chats = append(s.chats, chat)
	id := chat.ID
	s.currentChatID = &id
	s.mu.Unlock()
	return chat, nil
}

// SetCurrentChat is a pure local pointer change. The id is not validated;
// that is the caller's responsibility.
func (s *Store) SetCurrentChat(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentChatID = &id
}

// AppendMessage reads the chat's current remote message list, appends the
// message, recomputes a placeholder title on the first message, writes the
// whole list back and only then commits to memory. The read-then-write is not
// atomic: a concurrent writer to the same chat can lose an interleaved
// append (accepted single-writer assumption).
func (s *Store) AppendMessage(ctx context.Context, chatID uuid.UUID, message models.Message) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	userID := s.user.ID
	s.mu.Unlock()

	remote, title, err := s.chatRepo.GetMessages(ctx, chatID)
	if err != nil {
		s.notifier.Notify(ctx, userID, "error", "Failed to send message")
		return err
	}

	updated := append(remote, message)
	if isPlaceholderTitle(title) && len(updated) == 1 {
		title = titleFromMessages(updated)
	}

	if err := s.chatRepo.UpdateMessages(ctx, chatID, updated, title); err != nil {
		s.notifier.Notify(ctx, userID, "error", "Failed to send message")
		return err
	}

	s.mu.Lock()
	if c := s.findChat(chatID); c != nil {
		c.Messages = updated
		c.Title = title
	}
	s.mu.Unlock()
	return nil
}

// ReplaceFromIndex truncates the conversation at index, persists the edited
// message in its place and commits the shortened list. Every turn after the
// edited message is discarded, with no undo; the caller regenerates the
// assistant response from the returned history.
func (s *Store) ReplaceFromIndex(ctx context.Context, chatID uuid.UUID, index int, message models.Message) ([]models.Message, error) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil, ErrNotSignedIn
	}
	userID := s.user.ID
	s.mu.Unlock()

	remote, title, err := s.chatRepo.GetMessages(ctx, chatID)
	if err != nil {
		s.notifier.Notify(ctx, userID, "error", "Failed to edit message")
		return nil, err
	}
	if index < 0 || index >= len(remote) {
		return nil, errors.New("message index out of range")
	}

	updated := append(remote[:index:index], message)

	if err := s.chatRepo.UpdateMessages(ctx, chatID, updated, title); err != nil {
		s.notifier.Notify(ctx, userID, "error", "Failed to edit message")
		return nil, err
	}

	s.mu.Lock()
	if c := s.findChat(chatID); c != nil {
		c.Messages = updated
	}
	s.mu.Unlock()
	return updated, nil
}

// DeleteChat removes the conversation remotely, then drops it from memory,
// repoints currentChatID at the first remaining chat (or nil) and clears the
// favorite entry.
func (s *Store) DeleteChat(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	userID := s.user.ID
	s.mu.Unlock()

	if err := s.chatRepo.Delete(ctx, id, userID); err != nil {
		s.notifier.Notify(ctx, userID, "error", "Failed to delete chat")
		return err
	}

	s.mu.Lock()
	kept := s.chats[:0]
	for _, c := range s.chats {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.chats = kept
	if s.currentChatID != nil && *s.currentChatID == id {
		if len(s.chats) > 0 {
			first := s.chats[0].ID
			s.currentChatID = &first
		} else {
			s.currentChatID = nil
		}
	}
	delete(s.favorites, id)
	s.mu.Unlock()
	return nil
}

func (s *Store) UpdateChatTitle(ctx context.Context, id uuid.UUID, title string) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	userID := s.user.ID
	s.mu.Unlock()

	if err := s.chatRepo.UpdateTitle(ctx, id, userID, title); err != nil {
		s.mu.Lock()
		s.lastEditErr = err
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.lastEditErr = nil
	if c := s.findChat(id); c != nil {
		c.Title = title
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) UpdateChatModel(ctx context.Context, id uuid.UUID, modelID string) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	userID := s.user.ID
	s.mu.Unlock()

	if err := s.chatRepo.UpdateModel(ctx, id, userID, modelID); err != nil {
		s.notifier.Notify(ctx, userID, "error", "Failed to switch model")
		return err
	}

	s.mu.Lock()
	if c := s.findChat(id); c != nil {
		c.Model = modelID
	}
	s.mu.Unlock()
	return nil
}

// ToggleFavorite flips the favorite star optimistically: the cached set and
// the chat flag change together before the remote write, and revert together
// when it fails. The sole operation using OptimisticWithRevert.
func (s *Store) ToggleFavorite(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	userID := s.user.ID
	_, wasFavorite := s.favorites[id]
	nowFavorite := !wasFavorite
	s.applyFavorite(id, nowFavorite)
	s.mu.Unlock()

	if err := s.chatRepo.SetFavorite(ctx, id, userID, nowFavorite); err != nil {
		s.mu.Lock()
		s.applyFavorite(id, wasFavorite)
		s.mu.Unlock()
		s.notifier.Notify(ctx, userID, "error", "Failed to update favorite")
		return err
	}
	return nil
}

// applyFavorite keeps the favorites set and the per-chat flag in agreement.
// Callers hold s.mu.
func (s *Store) applyFavorite(id uuid.UUID, favorite bool) {
	if favorite {
		s.favorites[id] = struct{}{}
	} else {
		delete(s.favorites, id)
	}
	if c := s.findChat(id); c != nil {
		c.IsFavorite = favorite
	}
}

func (s *Store) AddFolder(ctx context.Context, name string) (*models.Folder, error) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil, ErrNotSignedIn
	}
	userID := s.user.ID
	s.mu.Unlock()

	folder := &models.Folder{ID: uuid.New(), UserID: userID, Name: name}
	if err := s.folderRepo.Insert(ctx, folder); err != nil {
		s.notifier.Notify(ctx, userID, "error", "Failed to create folder")
		return nil, err
	}

	s.mu.Lock()
	s.folders = append(s.folders, folder)
	s.mu.Unlock()
	return folder, nil
}

func (s *Store) UpdateFolder(ctx context.Context, id uuid.UUID, name string) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	userID := s.user.ID
	s.mu.Unlock()

	if err := s.folderRepo.UpdateName(ctx, id, userID, name); err != nil {
		s.notifier.Notify(ctx, userID, "error", "Failed to rename folder")
		return err
	}

	s.mu.Lock()
	for _, f := range s.folders {
		if f.ID == id {
			f.Name = name
			break
		}
	}
	s.mu.Unlock()
	return nil
}

// DeleteFolder first nulls the folder reference on every member chat
// remotely, then deletes the folder record, then mirrors both changes in
// memory. The two-step order prevents orphaned references in the remote
// store. Member chats themselves survive.
func (s *Store) DeleteFolder(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	userID := s.user.ID
	s.mu.Unlock()

	if err := s.chatRepo.ClearFolder(ctx, id, userID); err != nil {
		s.notifier.Notify(ctx, userID, "error", "Failed to delete folder")
		return err
	}
	if err := s.folderRepo.Delete(ctx, id, userID); err != nil {
		s.notifier.Notify(ctx, userID, "error", "Failed to delete folder")
		return err
	}

	s.mu.Lock()
	kept := s.folders[:0]
	for _, f := range s.folders {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	s.folders = kept
	for _, c := range s.chats {
		if c.FolderID != nil && *c.FolderID == id {
			c.FolderID = nil
		}
	}
	s.mu.Unlock()
	return nil
}

// AssignChatToFolder moves a chat into folderID (nil removes it from any
// folder). The folder id is not validated against the folder collection;
// assigning an unknown id is tolerated, matching the remote schema.
func (s *Store) AssignChatToFolder(ctx context.Context, chatID uuid.UUID, folderID *uuid.UUID) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	userID := s.user.ID
	s.mu.Unlock()

	if err := s.chatRepo.SetFolder(ctx, chatID, userID, folderID); err != nil {
		s.notifier.Notify(ctx, userID, "error", "Failed to move chat")
		return err
	}

	s.mu.Lock()
	if c := s.findChat(chatID); c != nil {
		c.FolderID = folderID
	}
	s.mu.Unlock()
	return nil
}

// UpdateUserProfile upserts the profile row: update when one exists, insert
// when it does not, then commits the updates into the in-memory user either
// way.
func (s *Store) UpdateUserProfile(ctx context.Context, updates models.ProfileUpdates) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	working := *s.user
	s.mu.Unlock()

	updates.Apply(&working)

	existing, err := s.profileRepo.GetByUserID(ctx, working.ID)
	if err != nil {
		s.notifier.Notify(ctx, working.ID, "error", "Failed to update profile")
		return err
	}

	if existing != nil {
		err = s.profileRepo.Update(ctx, &working)
	} else {
		err = s.profileRepo.Insert(ctx, &working)
	}
	if err != nil {
		s.notifier.Notify(ctx, working.ID, "error", "Failed to update profile")
		return err
	}

	s.mu.Lock()
	if s.user != nil {
		updates.Apply(s.user)
		if updates.APIKey != nil && *updates.APIKey != "" {
			s.credentialMissing = false
		}
	}
	s.mu.Unlock()
	return nil
}

// ToggleSidebarCollapsed flips the local flag immediately and persists the
// preference best-effort; a failed write is not reverted and not reported.
func (s *Store) ToggleSidebarCollapsed(ctx context.Context) bool {
	s.mu.Lock()
	s.sidebarCollapsed = !s.sidebarCollapsed
	collapsed := s.sidebarCollapsed
	var working *models.User
	if s.user != nil {
		s.user.Preferences.SidebarCollapsed = collapsed
		u := *s.user
		working = &u
	}
	s.mu.Unlock()

	if working != nil {
		s.profileRepo.Update(ctx, working)
	}
	return collapsed
}

// Reset clears every piece of user-scoped state. Bound to the sign-out
// event; stale chats must never leak into the next account's session.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.chats = nil
	s.currentChatID = nil
	s.folders = nil
	s.favorites = make(map[uuid.UUID]struct{})
	s.sidebarCollapsed = false
	s.credentialMissing = false
	s.lastEditErr = nil
}

// findChat returns the chat with the given id. Callers hold s.mu.
func (s *Store) findChat(id uuid.UUID) *models.Chat {
	for _, c := range s.chats {
		if c.ID == id {
			return c
		}
	}
	return nil
}
