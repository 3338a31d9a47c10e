package repositories

import (
	"context"

	contracts "renderbridge/internal/contracts/renderserver"
	"renderbridge/internal/httpkit"
	"renderbridge/internal/models"
	"renderbridge/internal/pkg/errors"
)

type TemplateRepository struct {
	db DB
}

func NewTemplateRepository(db DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, t *models.Template) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO templates (id, name, description, definition_json)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, t.ID, t.Name, t.Description, t.Graph).Scan(&t.CreatedAt)
	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return errors.AlreadyExists("template", t.Name)
		}
		return httpkit.FromPg(err, "template", t.ID)
	}
	return nil
}

// List returns live templates, newest first, without their graphs.
func (r *TemplateRepository) List(ctx context.Context) ([]models.Template, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, created_at
		FROM templates
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, httpkit.FromPg(err, "template", "")
	}
	defer rows.Close()

	out := []models.Template{}
	for rows.Next() {
		var t models.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt); err != nil {
			return nil, httpkit.FromPg(err, "template", "")
		}
		out = append(out, t)
	}
	return out, httpkit.FromPg(rows.Err(), "template", "")
}

// Get returns the template, soft-deleted or not.
func (r *TemplateRepository) Get(ctx context.Context, id string) (*models.Template, error) {
	var t models.Template
	err := r.db.QueryRow(ctx, `
		SELECT id, name, description, definition_json, created_at, deleted_at
		FROM templates
		WHERE id=$1
	`, id).Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.Graph,
		&t.CreatedAt,
		&t.DeletedAt,
	)
	if err != nil {
		return nil, httpkit.FromPg(err, "template", id)
	}
	return &t, nil
}

// Graph returns the graph of a live template.
func (r *TemplateRepository) Graph(ctx context.Context, id string) (contracts.Graph, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.DeletedAt != nil {
		return nil, errors.NotFound("template", id)
	}
	return t.Graph, nil
}

// Delete soft-deletes a live template.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE templates
		SET deleted_at=now()
		WHERE id=$1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return httpkit.FromPg(err, "template", id)
	}
	if cmd.RowsAffected() == 0 {
		return errors.NotFound("template", id)
	}
	return nil
}
