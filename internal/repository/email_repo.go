package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"receptionist/internal/model"
)

type EmailRepository struct {
	db *pgxpool.Pool
}

func NewEmailRepository(db *pgxpool.Pool) *EmailRepository {
	return &EmailRepository{db: db}
}

// CreateEmailLog inserts one message row. Used for both inbound logs and
// outbound send records.
func (r *EmailRepository) CreateEmailLog(ctx context.Context, e *model.EmailMessage) (int64, error) {
	query := `
        INSERT INTO email_messages
            (user_id, from_addr, to_addr, subject, body, ts, status, service, is_replied, message_id)
        VALUES ($1, $2, $3, $4, $5, NOW(), $6, $7, false, $8)
        RETURNING id
    `
	var id int64
	err := r.db.QueryRow(ctx, query,
		e.UserID, e.From, e.To, e.Subject, e.Body, e.Status, e.Service, e.MessageID,
	).Scan(&id)
	return id, err
}

// CreateEmailLogTx inserts a message row inside a caller-owned transaction,
// so the row and its outbox event commit together.
func (r *EmailRepository) CreateEmailLogTx(ctx context.Context, tx pgx.Tx, e *model.EmailMessage) (int64, error) {
	query := `
        INSERT INTO email_messages
            (user_id, from_addr, to_addr, subject, body, ts, status, service, is_replied, message_id)
        VALUES ($1, $2, $3, $4, $5, NOW(), $6, $7, false, $8)
        RETURNING id
    `
	var id int64
	err := tx.QueryRow(ctx, query,
		e.UserID, e.From, e.To, e.Subject, e.Body, e.Status, e.Service, e.MessageID,
	).Scan(&id)
	return id, err
}

// FindByID returns a message by id.
func (r *EmailRepository) FindByID(ctx context.Context, id int64) (*model.EmailMessage, error) {
	query := `
        SELECT id, user_id, from_addr, to_addr, subject, body, ts, status, service,
               is_replied, reply_message_id, message_id
        FROM email_messages
        WHERE id = $1
    `
	var e model.EmailMessage
	err := r.db.QueryRow(ctx, query, id).Scan(
		&e.ID,
		&e.UserID,
		&e.From,
		&e.To,
		&e.Subject,
		&e.Body,
		&e.Timestamp,
		&e.Status,
		&e.Service,
		&e.IsReplied,
		&e.ReplyMessageID,
		&e.MessageID,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateStatus sets the message status (e.g. sent, failed).
func (r *EmailRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `
        UPDATE email_messages
        SET status = $1
        WHERE id = $2
    `
	_, err := r.db.Exec(ctx, query, status, id)
	return err
}

// MarkReplied flags the message as replied and links the outbound message id.
func (r *EmailRepository) MarkReplied(ctx context.Context, id int64, replyMessageID string) error {
	query := `
        UPDATE email_messages
        SET is_replied = true, reply_message_id = $1
        WHERE id = $2
    `
	_, err := r.db.Exec(ctx, query, replyMessageID, id)
	return err
}

// GetUnrepliedEmails returns received messages awaiting a reply, oldest first.
func (r *EmailRepository) GetUnrepliedEmails(ctx context.Context, limit int) ([]model.EmailMessage, error) {
	query := `
        SELECT id, user_id, from_addr, to_addr, subject, body, ts, status, service,
               is_replied, reply_message_id, message_id
        FROM email_messages
        WHERE status = 'received' AND is_replied = false
        ORDER BY ts ASC
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []model.EmailMessage{}
	for rows.Next() {
		var e model.EmailMessage
		err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.From,
			&e.To,
			&e.Subject,
			&e.Body,
			&e.Timestamp,
			&e.Status,
			&e.Service,
			&e.IsReplied,
			&e.ReplyMessageID,
			&e.MessageID,
		)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}

	return emails, rows.Err()
}

// ListByUser returns all messages for a user, newest first.
func (r *EmailRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]model.EmailMessage, error) {
	query := `
        SELECT id, user_id, from_addr, to_addr, subject, body, ts, status, service,
               is_replied, reply_message_id, message_id
        FROM email_messages
        WHERE user_id = $1
        ORDER BY ts DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := []model.EmailMessage{}
	for rows.Next() {
		var e model.EmailMessage
		err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.From,
			&e.To,
			&e.Subject,
			&e.Body,
			&e.Timestamp,
			&e.Status,
			&e.Service,
			&e.IsReplied,
			&e.ReplyMessageID,
			&e.MessageID,
		)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}

	return emails, rows.Err()
}
