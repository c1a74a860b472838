// internal/models/outbox.go
package models

// Outbox record statuses. A record moves PENDING -> PROCESSED exactly once;
// the transition is only valid from PENDING. Records are never deleted.
const (
	OutboxPending   = "PENDING"
	OutboxProcessed = "PROCESSED"
)

// OutboxRecord is a transactional intent-to-publish, inserted in the same
// transaction as the state change that logically produces the event.
type OutboxRecord struct {
	EventID       string `json:"eventId"`
	ApplicationID string `json:"applicationId"`
	EventType     string `json:"eventType"`
	Payload       string `json:"payload"` // JSON
	Status        string `json:"status"`  // "PENDING" or "PROCESSED"
	CreatedAt     string `json:"createdAt"`
	ProcessedAt   string `json:"processedAt,omitempty"`
}
