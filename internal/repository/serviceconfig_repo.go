package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"receptionist/internal/model"
)

type ServiceConfigRepository struct {
	db *pgxpool.Pool
}

func NewServiceConfigRepository(db *pgxpool.Pool) *ServiceConfigRepository {
	return &ServiceConfigRepository{db: db}
}

// GetConfigByUserId returns the user's config for one transport, or nil
// when the user never configured it.
func (r *ServiceConfigRepository) GetConfigByUserId(ctx context.Context, userID int64, service string) (*model.ServiceConfig, error) {
	query := `
        SELECT id, user_id, service, from_email, from_name, is_active,
               api_key, domain, authorized_recipients, host, port, username, password
        FROM service_configs
        WHERE user_id = $1 AND service = $2
    `
	var c model.ServiceConfig
	err := r.db.QueryRow(ctx, query, userID, service).Scan(
		&c.ID,
		&c.UserID,
		&c.Service,
		&c.FromEmail,
		&c.FromName,
		&c.IsActive,
		&c.APIKey,
		&c.Domain,
		&c.AuthorizedRecipients,
		&c.Host,
		&c.Port,
		&c.Username,
		&c.Password,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Upsert creates or replaces the user's config for one transport.
func (r *ServiceConfigRepository) Upsert(ctx context.Context, c *model.ServiceConfig) error {
	query := `
        INSERT INTO service_configs
            (user_id, service, from_email, from_name, is_active, api_key, domain,
             authorized_recipients, host, port, username, password)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (user_id, service) DO UPDATE SET
            from_email = EXCLUDED.from_email,
            from_name = EXCLUDED.from_name,
            is_active = EXCLUDED.is_active,
            api_key = EXCLUDED.api_key,
            domain = EXCLUDED.domain,
            authorized_recipients = EXCLUDED.authorized_recipients,
            host = EXCLUDED.host,
            port = EXCLUDED.port,
            username = EXCLUDED.username,
            password = EXCLUDED.password
    `
	_, err := r.db.Exec(ctx, query,
		c.UserID, c.Service, c.FromEmail, c.FromName, c.IsActive,
		c.APIKey, c.Domain, c.AuthorizedRecipients, c.Host, c.Port, c.Username, c.Password,
	)
	return err
}
