package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"sandy-backend/internal/models"
)

type FolderRepo struct {
	pool *pgxpool.Pool
}

func NewFolderRepo(pool *pgxpool.Pool) *FolderRepo {
	return &FolderRepo{pool: pool}
}

func (r *FolderRepo) Insert(ctx context.Context, folder *models.Folder) error {
	query := `INSERT INTO folders (id, user_id, name)
		VALUES ($1, $2, $3) RETURNING created_at`

	return r.pool.QueryRow(ctx, query, folder.ID, folder.UserID, folder.Name).Scan(&folder.CreatedAt)
}

// ListByOwner returns the user's folders oldest-first.
func (r *FolderRepo) ListByOwner(ctx context.Context, userID uuid.UUID) ([]*models.Folder, error) {
	query := `SELECT id, user_id, name, created_at
		FROM folders WHERE user_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []*models.Folder
	for rows.Next() {
		f := &models.Folder{}
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.CreatedAt); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}

	return folders, rows.Err()
}

func (r *FolderRepo) UpdateName(ctx context.Context, folderID, userID uuid.UUID, name string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE folders SET name = $1 WHERE id = $2 AND user_id = $3",
		name, folderID, userID,
	)
	return err
}

func (r *FolderRepo) Delete(ctx context.Context, folderID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM folders WHERE id = $1 AND user_id = $2", folderID, userID)
	return err
}
