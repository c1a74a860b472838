// internal/store/outbox.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lending-pipeline/internal/models"
)

// OutboxStore is the durable holding area for events-to-be-published.
// Records are inserted inside TransitionStore transactions, mutated only by
// the relay's conditional PENDING -> PROCESSED marking, and never deleted.
type OutboxStore struct {
	db *sql.DB
}

func NewOutboxStore(db *sql.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Get returns one outbox record by event id, or sql.ErrNoRows.
func (s *OutboxStore) Get(ctx context.Context, eventID string) (*models.OutboxRecord, error) {
	var rec models.OutboxRecord
	var processedAt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT event_id, application_id, event_type, payload, status, created_at, processed_at
		FROM outbox
		WHERE event_id = $1`, eventID).
		Scan(&rec.EventID, &rec.ApplicationID, &rec.EventType, &rec.Payload, &rec.Status, &rec.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	rec.ProcessedAt = processedAt.String
	return &rec, nil
}

// MarkProcessed flips PENDING -> PROCESSED with a conditional write. The
// returned bool is false when the precondition failed, meaning a concurrent
// relay invocation already processed the record.
func (s *OutboxStore) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = $1, processed_at = $2
		WHERE event_id = $3 AND status = $4`,
		models.OutboxProcessed, now, eventID, models.OutboxPending)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark processed rows: %w", err)
	}
	return n == 1, nil
}

// FetchPending returns PENDING records at least minAge old, oldest first.
// The age floor keeps the sweep from racing the change-feed listener on
// records it is about to handle anyway.
func (s *OutboxStore) FetchPending(ctx context.Context, minAge time.Duration, limit int) ([]models.OutboxRecord, error) {
	cutoff := time.Now().UTC().Add(-minAge).Format(time.RFC3339Nano)
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, application_id, event_type, payload, status, created_at, processed_at
		FROM outbox
		WHERE status = $1 AND created_at <= $2
		ORDER BY created_at ASC
		LIMIT $3`,
		models.OutboxPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	defer rows.Close()

	records := []models.OutboxRecord{}
	for rows.Next() {
		var rec models.OutboxRecord
		var processedAt sql.NullString
		if err := rows.Scan(&rec.EventID, &rec.ApplicationID, &rec.EventType, &rec.Payload, &rec.Status, &rec.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		rec.ProcessedAt = processedAt.String
		records = append(records, rec)
	}
	return records, rows.Err()
}
