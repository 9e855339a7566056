package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"sandy-backend/internal/models"
)

// Manager reacts to the identity provider's auth events: Attach on
// "user signed in as X", Detach on "user signed out". One Store per user.
type Manager struct {
	chatRepo    ChatRepository
	folderRepo  FolderRepository
	profileRepo ProfileRepository
	notifier    Notifier

	mu     sync.Mutex
	stores map[uuid.UUID]*Store
}

func NewManager(chats ChatRepository, folders FolderRepository, profiles ProfileRepository, notifier Notifier) *Manager {
	return &Manager{
		chatRepo:    chats,
		folderRepo:  folders,
		profileRepo: profiles,
		notifier:    notifier,
		stores:      make(map[uuid.UUID]*Store),
	}
}

// Attach handles a sign-in event: it loads the profile row (creating one on
// first sign-in), binds it to the user's store and pulls the full remote
// snapshot. Re-attaching an already-attached user re-syncs, matching the
// original's behavior on every auth-state change.
func (m *Manager) Attach(ctx context.Context, userID uuid.UUID, email string) (*Store, error) {
	profile, err := m.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		profile = &models.User{
			ID:          userID,
			Email:       email,
			Preferences: models.DefaultPreferences(),
		}
		if err := m.profileRepo.Insert(ctx, profile); err != nil {
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
	}

	m.mu.Lock()
	store, ok := m.stores[userID]
	if !ok {
		store = NewStore(m.chatRepo, m.folderRepo, m.profileRepo, m.notifier)
		m.stores[userID] = store
	}
	m.mu.Unlock()

	if err := store.SignIn(ctx, profile); err != nil {
		return nil, err
	}
	return store, nil
}

// Get returns the attached store for the user, if any.
func (m *Manager) Get(userID uuid.UUID) (*Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	store, ok := m.stores[userID]
	return store, ok
}

// Detach handles a sign-out event: the store is reset before being dropped
// so no user-scoped state survives into a later session.
func (m *Manager) Detach(userID uuid.UUID) {
	m.mu.Lock()
	store, ok := m.stores[userID]
	if ok {
		delete(m.stores, userID)
	}
	m.mu.Unlock()

	if ok {
		store.Reset()
	}
}
