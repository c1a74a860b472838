// internal/store/transitions.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "lending-pipeline/internal/common/errors"
	"lending-pipeline/internal/models"
)

// TransitionStore performs the pipeline's only writes to application state:
// multi-row transactions pairing a status change with its audit entry and
// outbox record. Nothing outside this type mutates loan_applications or
// inserts into audit_log/outbox, which is what makes the all-or-nothing
// guarantee hold.
type TransitionStore struct {
	db *sql.DB
}

func NewTransitionStore(db *sql.DB) *TransitionStore {
	return &TransitionStore{db: db}
}

// CreateSubmission atomically writes the initial triple: the application row
// with status SUBMITTED, its first audit entry, and the ApplicationSubmitted
// outbox record. Either all three become visible or none.
func (s *TransitionStore) CreateSubmission(ctx context.Context, app *models.Application, entry *models.AuditLogEntry, outbox *models.OutboxRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewDatabaseUnavailableError(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO loan_applications (application_id, user_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		app.ApplicationID, app.UserID, app.Amount, app.Status, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return apperrors.NewTransactionFailedError("submission", fmt.Errorf("insert application: %w", err))
	}

	if err := insertAuditEntry(ctx, tx, entry); err != nil {
		return apperrors.NewTransactionFailedError("submission", err)
	}

	if err := insertOutboxRecord(ctx, tx, outbox); err != nil {
		return apperrors.NewTransactionFailedError("submission", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewTransactionFailedError("submission", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// StageTransition is one stage's atomic write. ExpectedStatus guards the
// status update: a duplicate or late delivery whose expected prior status no
// longer matches rolls the whole transaction back as a state conflict, so a
// replayed ApplicationSubmitted can never regress an application that a
// later stage already advanced.
type StageTransition struct {
	Stage          string
	ApplicationID  string
	ExpectedStatus models.ApplicationStatus
	NewStatus      models.ApplicationStatus
	UpdatedAt      string
	AuditEntry     *models.AuditLogEntry
	Outbox         *models.OutboxRecord
}

// ApplyStageTransition writes {status update, audit entry, outbox record} in
// one transaction. Returns a swallowable state-conflict error when the
// expected-status precondition fails.
func (s *TransitionStore) ApplyStageTransition(ctx context.Context, t StageTransition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewDatabaseUnavailableError(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE loan_applications
		SET status = $1, updated_at = $2
		WHERE application_id = $3 AND status = $4`,
		t.NewStatus, t.UpdatedAt, t.ApplicationID, t.ExpectedStatus)
	if err != nil {
		return apperrors.NewTransactionFailedError(t.Stage, fmt.Errorf("update status: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewTransactionFailedError(t.Stage, fmt.Errorf("update status rows: %w", err))
	}
	if n == 0 {
		return apperrors.NewStateConflictError(t.ApplicationID, string(t.ExpectedStatus))
	}

	if err := insertAuditEntry(ctx, tx, t.AuditEntry); err != nil {
		return apperrors.NewTransactionFailedError(t.Stage, err)
	}

	if err := insertOutboxRecord(ctx, tx, t.Outbox); err != nil {
		return apperrors.NewTransactionFailedError(t.Stage, err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewTransactionFailedError(t.Stage, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func insertAuditEntry(ctx context.Context, tx *sql.Tx, entry *models.AuditLogEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (application_id, log_timestamp, action, actor, details)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ApplicationID, entry.LogTimestamp, entry.Action, entry.Actor, entry.Details)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func insertOutboxRecord(ctx context.Context, tx *sql.Tx, rec *models.OutboxRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox (event_id, application_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.EventID, rec.ApplicationID, rec.EventType, rec.Payload, rec.Status, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}
