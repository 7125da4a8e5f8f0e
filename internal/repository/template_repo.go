package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"receptionist/internal/model"
)

type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, t *model.EmailTemplate) (int64, error) {
	query := `
        INSERT INTO email_templates
            (user_id, name, subject, body, category, description, variables, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
        RETURNING id
    `
	var id int64
	err := r.db.QueryRow(ctx, query,
		t.UserID, t.Name, t.Subject, t.Body, t.Category, t.Description, t.Variables, t.IsActive,
	).Scan(&id)
	return id, err
}

func (r *TemplateRepository) Update(ctx context.Context, t *model.EmailTemplate) error {
	query := `
        UPDATE email_templates
        SET name = $1, subject = $2, body = $3, category = $4, description = $5,
            variables = $6, is_active = $7, updated_at = NOW()
        WHERE id = $8 AND user_id = $9
    `
	_, err := r.db.Exec(ctx, query,
		t.Name, t.Subject, t.Body, t.Category, t.Description, t.Variables, t.IsActive,
		t.ID, t.UserID,
	)
	return err
}

func (r *TemplateRepository) Delete(ctx context.Context, id, userID int64) error {
	query := `DELETE FROM email_templates WHERE id = $1 AND user_id = $2`
	_, err := r.db.Exec(ctx, query, id, userID)
	return err
}

// GetEmailTemplatesByUserId returns the user's templates in creation order.
// Enumeration order matters: the scorer's tie-break is first-wins.
func (r *TemplateRepository) GetEmailTemplatesByUserId(ctx context.Context, userID int64) ([]model.EmailTemplate, error) {
	query := `
        SELECT id, user_id, name, subject, body, category, description, variables,
               is_active, last_used, created_at, updated_at
        FROM email_templates
        WHERE user_id = $1
        ORDER BY id ASC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []model.EmailTemplate{}
	for rows.Next() {
		var t model.EmailTemplate
		err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Name,
			&t.Subject,
			&t.Body,
			&t.Category,
			&t.Description,
			&t.Variables,
			&t.IsActive,
			&t.LastUsed,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}

	return templates, rows.Err()
}

// TouchLastUsed stamps the template after it was selected for a reply.
func (r *TemplateRepository) TouchLastUsed(ctx context.Context, id int64) error {
	query := `UPDATE email_templates SET last_used = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return err
}
