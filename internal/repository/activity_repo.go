package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"receptionist/internal/model"
)

type ActivityRepository struct {
	db *pgxpool.Pool
}

func NewActivityRepository(db *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// CreateSystemActivity appends one audit entry. details is a typed
// per-event struct from internal/model, marshaled into jsonb.
func (r *ActivityRepository) CreateSystemActivity(ctx context.Context, module, event, status string, details any) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO system_activities (module, event, status, ts, details)
        VALUES ($1, $2, $3, NOW(), $4)
    `
	_, err = r.db.Exec(ctx, query, module, event, status, payload)
	return err
}

// List returns recent activity entries, newest first.
func (r *ActivityRepository) List(ctx context.Context, limit int) ([]model.SystemActivity, error) {
	query := `
        SELECT id, module, event, status, ts, details
        FROM system_activities
        ORDER BY ts DESC
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := []model.SystemActivity{}
	for rows.Next() {
		var a model.SystemActivity
		if err := rows.Scan(&a.ID, &a.Module, &a.Event, &a.Status, &a.Timestamp, &a.Details); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}

	return activities, rows.Err()
}
