// internal/store/auditlog.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"lending-pipeline/internal/models"
)

// AuditLogStore reads the append-only history. Inserts happen only inside
// TransitionStore transactions; nothing ever updates or deletes a row.
type AuditLogStore struct {
	db *sql.DB
}

func NewAuditLogStore(db *sql.DB) *AuditLogStore {
	return &AuditLogStore{db: db}
}

// AuditQuery narrows a history read.
type AuditQuery struct {
	ApplicationID string
	Descending    bool
	From          string // ISO 8601, inclusive; empty = unbounded
	To            string // ISO 8601, inclusive; empty = unbounded
	Limit         int
}

// Query returns audit entries for one application ordered by log_timestamp,
// optionally restricted to a timestamp range.
func (s *AuditLogStore) Query(ctx context.Context, q AuditQuery) ([]models.AuditLogEntry, error) {
	query := `
		SELECT application_id, log_timestamp, action, actor, details
		FROM audit_log
		WHERE application_id = $1`
	args := []interface{}{q.ApplicationID}

	if q.From != "" && q.To != "" {
		query += fmt.Sprintf(" AND log_timestamp BETWEEN $%d AND $%d", len(args)+1, len(args)+2)
		args = append(args, q.From, q.To)
	}

	if q.Descending {
		query += " ORDER BY log_timestamp DESC"
	} else {
		query += " ORDER BY log_timestamp ASC"
	}

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	entries := []models.AuditLogEntry{}
	for rows.Next() {
		var e models.AuditLogEntry
		if err := rows.Scan(&e.ApplicationID, &e.LogTimestamp, &e.Action, &e.Actor, &e.Details); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
