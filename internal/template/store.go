// internal/template/store.go
package template

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"school-notify/internal/common/errors"
	"school-notify/internal/common/logger"
	"school-notify/internal/models"
)

// Store persists templates in Postgres. Definitions are validated on save so
// that render time never sees a malformed template.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "template-store"}),
	}
}

// Save validates and upserts a template definition.
func (s *Store) Save(ctx context.Context, t *models.Template) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return errors.NewTemplateValidationFailedError(err.Error())
	}
	if err := ValidateDefinition(raw); err != nil {
		return err
	}
	if err := CheckPlaceholders(t); err != nil {
		return err
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	raw, err = json.Marshal(t)
	if err != nil {
		return errors.NewTemplateValidationFailedError(err.Error())
	}

	const query = `
		INSERT INTO notification_templates (name, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET definition = EXCLUDED.definition, updated_at = EXCLUDED.updated_at`

	if _, err := s.db.ExecContext(ctx, query, t.Name, raw, t.CreatedAt, t.UpdatedAt); err != nil {
		return errors.NewStoreQueryFailedError("template save", err)
	}

	s.logger.Info("template saved", map[string]interface{}{"template": t.Name})
	return nil
}

// Get loads a template by its unique name.
func (s *Store) Get(ctx context.Context, name string) (*models.Template, error) {
	const query = `SELECT definition FROM notification_templates WHERE name = $1`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, name).Scan(&raw)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewTemplateNotFoundError(name)
	}
	if err != nil {
		return nil, errors.NewStoreQueryFailedError("template get", err)
	}

	var t models.Template
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, errors.NewStoreQueryFailedError("template decode", err)
	}
	return &t, nil
}

// List returns all stored templates.
func (s *Store) List(ctx context.Context) ([]models.Template, error) {
	const query = `SELECT definition FROM notification_templates ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewStoreQueryFailedError("template list", err)
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.NewStoreQueryFailedError("template list scan", err)
		}
		var t models.Template
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, errors.NewStoreQueryFailedError("template decode", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreQueryFailedError("template list", err)
	}

	return out, nil
}

// Delete removes a template by name.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_templates WHERE name = $1`, name)
	if err != nil {
		return errors.NewStoreQueryFailedError("template delete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewTemplateNotFoundError(name)
	}
	return nil
}
