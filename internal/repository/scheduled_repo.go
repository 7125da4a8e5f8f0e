package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"receptionist/internal/model"
)

type ScheduledEmailRepository struct {
	db *pgxpool.Pool
}

func NewScheduledEmailRepository(db *pgxpool.Pool) *ScheduledEmailRepository {
	return &ScheduledEmailRepository{db: db}
}

func (r *ScheduledEmailRepository) Create(ctx context.Context, s *model.ScheduledEmail) (int64, error) {
	query := `
        INSERT INTO scheduled_emails
            (user_id, to_addr, subject, body, template_id, scheduled_time, status, is_recurring, recurring_rule, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8, NOW())
        RETURNING id
    `
	var id int64
	err := r.db.QueryRow(ctx, query,
		s.UserID, s.To, s.Subject, s.Body, s.TemplateID, s.ScheduledTime, s.IsRecurring, s.RecurringRule,
	).Scan(&id)
	return id, err
}

// GetDuePending returns pending rows whose scheduled time has passed.
func (r *ScheduledEmailRepository) GetDuePending(ctx context.Context, limit int) ([]model.ScheduledEmail, error) {
	query := `
        SELECT id, user_id, to_addr, subject, body, template_id, scheduled_time,
               status, is_recurring, recurring_rule, created_at
        FROM scheduled_emails
        WHERE status = 'pending' AND scheduled_time <= NOW()
        ORDER BY scheduled_time ASC
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []model.ScheduledEmail{}
	for rows.Next() {
		var s model.ScheduledEmail
		err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.To,
			&s.Subject,
			&s.Body,
			&s.TemplateID,
			&s.ScheduledTime,
			&s.Status,
			&s.IsRecurring,
			&s.RecurringRule,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		emails = append(emails, s)
	}

	return emails, rows.Err()
}

func (r *ScheduledEmailRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE scheduled_emails SET status = $1 WHERE id = $2`
	_, err := r.db.Exec(ctx, query, status, id)
	return err
}

// Reschedule rolls a recurring row forward to its next occurrence.
func (r *ScheduledEmailRepository) Reschedule(ctx context.Context, id int64, next time.Time) error {
	query := `
        UPDATE scheduled_emails
        SET status = 'pending', scheduled_time = $1
        WHERE id = $2
    `
	_, err := r.db.Exec(ctx, query, next, id)
	return err
}

// Cancel marks a pending row cancelled. Rows already sent are untouched.
func (r *ScheduledEmailRepository) Cancel(ctx context.Context, id, userID int64) error {
	query := `
        UPDATE scheduled_emails
        SET status = 'cancelled'
        WHERE id = $1 AND user_id = $2 AND status = 'pending'
    `
	_, err := r.db.Exec(ctx, query, id, userID)
	return err
}

func (r *ScheduledEmailRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]model.ScheduledEmail, error) {
	query := `
        SELECT id, user_id, to_addr, subject, body, template_id, scheduled_time,
               status, is_recurring, recurring_rule, created_at
        FROM scheduled_emails
        WHERE user_id = $1
        ORDER BY scheduled_time DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []model.ScheduledEmail{}
	for rows.Next() {
		var s model.ScheduledEmail
		err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.To,
			&s.Subject,
			&s.Body,
			&s.TemplateID,
			&s.ScheduledTime,
			&s.Status,
			&s.IsRecurring,
			&s.RecurringRule,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		emails = append(emails, s)
	}

	return emails, rows.Err()
}
