package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"sandy-backend/internal/models"
)

// ChatRepo persists conversations. The message list is stored as a single
// JSONB document per chat, mirroring the remote schema the client writes
// whole lists into. Every mutation is scoped to the owning user.
type ChatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) *ChatRepo {
	return &ChatRepo{pool: pool}
}

func (r *ChatRepo) Insert(ctx context.Context, chat *models.Chat) error {
	msgBytes, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}
	if chat.Messages == nil {
		msgBytes = []byte("[]")
	}

	query := `INSERT INTO chats (id, user_id, title, messages, model, folder_id, is_favorite)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		chat.ID, chat.UserID, chat.Title, msgBytes, chat.Model, chat.FolderID, chat.IsFavorite,
	).Scan(&chat.CreatedAt)
}

// ListByOwner returns all of the user's chats newest-first.
func (r *ChatRepo) ListByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Chat, error) {
	query := `SELECT id, user_id, title, messages, model, folder_id, is_favorite, created_at
		FROM chats WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		c := &models.Chat{}
		var msgBytes []byte
		err := rows.Scan(&c.ID, &c.UserID, &c.Title, &msgBytes, &c.Model, &c.FolderID, &c.IsFavorite, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(msgBytes, &c.Messages); err != nil {
			return nil, fmt.Errorf("failed to decode messages for chat %s: %w", c.ID, err)
		}
		chats = append(chats, c)
	}

	return chats, rows.Err()
}

// GetMessages reads the current message list and title of one chat. Used as
// the read half of the append read-modify-write.
func (r *ChatRepo) GetMessages(ctx context.Context, chatID uuid.UUID) ([]models.Message, string, error) {
	var msgBytes []byte
	var title string

	err := r.pool.QueryRow(ctx,
		"SELECT messages, title FROM chats WHERE id = $1", chatID,
	).Scan(&msgBytes, &title)
	if err != nil {
		return nil, "", err
	}

	var messages []models.Message
	if err := json.Unmarshal(msgBytes, &messages); err != nil {
		return nil, "", fmt.Errorf("failed to decode messages for chat %s: %w", chatID, err)
	}
	return messages, title, nil
}

// UpdateMessages writes the full message list and title back.
func (r *ChatRepo) UpdateMessages(ctx context.Context, chatID uuid.UUID, messages []models.Message, title string) error {
	msgBytes, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}
	if messages == nil {
		msgBytes = []byte("[]")
	}

	_, err = r.pool.Exec(ctx,
		"UPDATE chats SET messages = $1, title = $2 WHERE id = $3",
		msgBytes, title, chatID,
	)
	return err
}

func (r *ChatRepo) Delete(ctx context.Context, chatID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM chats WHERE id = $1 AND user_id = $2", chatID, userID)
	return err
}

func (r *ChatRepo) UpdateTitle(ctx context.Context, chatID, userID uuid.UUID, title string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE chats SET title = $1 WHERE id = $2 AND user_id = $3",
		title, chatID, userID,
	)
	return err
}

func (r *ChatRepo) UpdateModel(ctx context.Context, chatID, userID uuid.UUID, modelID string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE chats SET model = $1 WHERE id = $2 AND user_id = $3",
		modelID, chatID, userID,
	)
	return err
}

func (r *ChatRepo) SetFavorite(ctx context.Context, chatID, userID uuid.UUID, favorite bool) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE chats SET is_favorite = $1 WHERE id = $2 AND user_id = $3",
		favorite, chatID, userID,
	)
	return err
}

func (r *ChatRepo) SetFolder(ctx context.Context, chatID, userID uuid.UUID, folderID *uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE chats SET folder_id = $1 WHERE id = $2 AND user_id = $3",
		folderID, chatID, userID,
	)
	return err
}

// ClearFolder nulls the folder reference on every chat in the folder. Runs
// before the folder row itself is deleted.
func (r *ChatRepo) ClearFolder(ctx context.Context, folderID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE chats SET folder_id = NULL WHERE folder_id = $1 AND user_id = $2",
		folderID, userID,
	)
	return err
}
