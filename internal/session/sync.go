package session

import (
	"context"

	"github.com/google/uuid"

	"sandy-backend/internal/models"
)

// Sync pulls full remote snapshots into the store. Every sync replaces its
// collection outright — there is no delta or merge path.

// SignIn attaches the user and loads the complete remote snapshot.
func (s *Store) SignIn(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	u := *user
	s.user = &u
	s.sidebarCollapsed = u.Preferences.SidebarCollapsed
	s.mu.Unlock()

	return s.SyncAll(ctx)
}

func (s *Store) SyncAll(ctx context.Context) error {
	if err := s.SyncChats(ctx); err != nil {
		return err
	}
	return s.SyncFolders(ctx)
}

// SyncChats replaces the chat collection with the remote snapshot
// (newest-first) and re-derives the favorites set from the chats' flags, so
// the two representations agree after every sync.
func (s *Store) SyncChats(ctx context.Context) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	userID := s.user.ID
	s.mu.Unlock()

	chats, err := s.chatRepo.ListByOwner(ctx, userID)
	if err != nil {
		return err
	}

	favorites := make(map[uuid.UUID]struct{})
	for _, c := range chats {
		if c.IsFavorite {
			favorites[c.ID] = struct{}{}
		}
	}

	s.mu.Lock()
	s.chats = chats
	s.favorites = favorites
	s.mu.Unlock()
	return nil
}

// SyncFolders replaces the folder collection with the remote snapshot,
// oldest-first.
func (s *Store) SyncFolders(ctx context.Context) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	userID := s.user.ID
	s.mu.Unlock()

	folders, err := s.folderRepo.ListByOwner(ctx, userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.folders = folders
	s.mu.Unlock()
	return nil
}
