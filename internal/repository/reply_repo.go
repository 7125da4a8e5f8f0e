package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"receptionist/internal/model"
)

type ReplyRepository struct {
	db *pgxpool.Pool
}

func NewReplyRepository(db *pgxpool.Pool) *ReplyRepository {
	return &ReplyRepository{db: db}
}

// Create inserts a reply row, normally with reply_status = 'pending'
// before the dispatch attempt.
func (r *ReplyRepository) Create(ctx context.Context, reply *model.EmailReply) (int64, error) {
	query := `
        INSERT INTO email_replies
            (original_email_id, reply_content, auto_generated, reply_status, message_id, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        RETURNING id
    `
	var id int64
	err := r.db.QueryRow(ctx, query,
		reply.OriginalEmailID,
		reply.ReplyContent,
		reply.AutoGenerated,
		reply.ReplyStatus,
		reply.MessageID,
	).Scan(&id)
	return id, err
}

// UpdateStatus moves a reply to sent/failed after the dispatch attempt.
func (r *ReplyRepository) UpdateStatus(ctx context.Context, id int64, status string, errorDetail *string) error {
	query := `
        UPDATE email_replies
        SET reply_status = $1, error_detail = $2
        WHERE id = $3
    `
	_, err := r.db.Exec(ctx, query, status, errorDetail, id)
	return err
}

// GetByOriginalEmailID returns the reply for an inbound message, or nil
// when none exists. The sweep uses this as its defensive re-check.
func (r *ReplyRepository) GetByOriginalEmailID(ctx context.Context, originalEmailID int64) (*model.EmailReply, error) {
	query := `
        SELECT id, original_email_id, reply_content, auto_generated, reply_status,
               message_id, error_detail, created_at
        FROM email_replies
        WHERE original_email_id = $1
        ORDER BY created_at DESC
        LIMIT 1
    `
	var rep model.EmailReply
	err := r.db.QueryRow(ctx, query, originalEmailID).Scan(
		&rep.ID,
		&rep.OriginalEmailID,
		&rep.ReplyContent,
		&rep.AutoGenerated,
		&rep.ReplyStatus,
		&rep.MessageID,
		&rep.ErrorDetail,
		&rep.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rep, nil
}
