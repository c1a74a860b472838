// internal/store/applications.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"lending-pipeline/internal/models"
)

// ApplicationStore reads the mutable one-row-per-application state. All
// writes to this table happen through TransitionStore so that a status
// change is never visible without its audit entry and outbox record.
type ApplicationStore struct {
	db *sql.DB
}

func NewApplicationStore(db *sql.DB) *ApplicationStore {
	return &ApplicationStore{db: db}
}

// Get returns one application, or sql.ErrNoRows.
func (s *ApplicationStore) Get(ctx context.Context, applicationID string) (*models.Application, error) {
	var app models.Application
	err := s.db.QueryRowContext(ctx, `
		SELECT application_id, user_id, amount, status, created_at, updated_at
		FROM loan_applications
		WHERE application_id = $1`, applicationID).
		Scan(&app.ApplicationID, &app.UserID, &app.Amount, &app.Status, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// ListByUser returns all applications submitted by one user, newest first.
func (s *ApplicationStore) ListByUser(ctx context.Context, userID string) ([]models.Application, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT application_id, user_id, amount, status, created_at, updated_at
		FROM loan_applications
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	apps := []models.Application{}
	for rows.Next() {
		var app models.Application
		if err := rows.Scan(&app.ApplicationID, &app.UserID, &app.Amount, &app.Status, &app.CreatedAt, &app.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}
