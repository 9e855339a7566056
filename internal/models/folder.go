package models

import (
	"time"

	"github.com/google/uuid"
)

// Folder groups conversations. A chat references at most one folder; deleting
// a folder only clears those references, never the chats themselves.
type Folder struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
