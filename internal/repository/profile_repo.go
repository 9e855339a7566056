package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sandy-backend/internal/models"
)

type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

// GetByUserID returns the profile row for the user, or (nil, nil) when no row
// exists yet — the zero-or-one read the upsert probe needs.
func (r *ProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u := &models.User{}
	var prefBytes []byte

	query := `SELECT user_id, email, full_name, avatar_url, bio, api_key, preferences, updated_at
		FROM profiles WHERE user_id = $1`

	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&u.ID, &u.Email, &u.FullName, &u.AvatarURL, &u.Bio, &u.APIKey, &prefBytes, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u.Preferences = models.DefaultPreferences()
	if len(prefBytes) > 0 {
		if err := json.Unmarshal(prefBytes, &u.Preferences); err != nil {
			return nil, fmt.Errorf("failed to decode preferences for user %s: %w", userID, err)
		}
	}
	return u, nil
}

func (r *ProfileRepo) Insert(ctx context.Context, user *models.User) error {
	prefBytes, err := json.Marshal(user.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	query := `INSERT INTO profiles (user_id, email, full_name, avatar_url, bio, api_key, preferences, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	now := time.Now()
	user.UpdatedAt = &now
	_, err = r.pool.Exec(ctx, query,
		user.ID, user.Email, user.FullName, user.AvatarURL, user.Bio, user.APIKey, prefBytes, now,
	)
	return err
}

func (r *ProfileRepo) Update(ctx context.Context, user *models.User) error {
	prefBytes, err := json.Marshal(user.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	query := `UPDATE profiles SET full_name = $1, avatar_url = $2, bio = $3, api_key = $4,
		preferences = $5, updated_at = $6 WHERE user_id = $7`

	now := time.Now()
	user.UpdatedAt = &now
	_, err = r.pool.Exec(ctx, query,
		user.FullName, user.AvatarURL, user.Bio, user.APIKey, prefBytes, now, user.ID,
	)
	return err
}
