package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"receptionist/internal/model"
)

type IntentRepository struct {
	db *pgxpool.Pool
}

func NewIntentRepository(db *pgxpool.Pool) *IntentRepository {
	return &IntentRepository{db: db}
}

// CreateIntent appends one classified intent record.
func (r *IntentRepository) CreateIntent(ctx context.Context, in *model.Intent) (int64, error) {
	query := `
        INSERT INTO intents (user_id, intent, examples, created_at)
        VALUES ($1, $2, $3, NOW())
        RETURNING id
    `
	var id int64
	err := r.db.QueryRow(ctx, query, in.UserID, in.Intent, in.Examples).Scan(&id)
	return id, err
}

// GetIntentsByUserId returns the user's most recent intents, newest first.
// Used as the recency signal in template scoring.
func (r *IntentRepository) GetIntentsByUserId(ctx context.Context, userID int64, limit int) ([]model.Intent, error) {
	query := `
        SELECT id, user_id, intent, examples, created_at
        FROM intents
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	intents := []model.Intent{}
	for rows.Next() {
		var in model.Intent
		if err := rows.Scan(&in.ID, &in.UserID, &in.Intent, &in.Examples, &in.CreatedAt); err != nil {
			return nil, err
		}
		intents = append(intents, in)
	}

	return intents, rows.Err()
}
