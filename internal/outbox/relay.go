// internal/outbox/relay.go
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "lending-pipeline/internal/common/errors"
	"lending-pipeline/internal/common/logger"
	"lending-pipeline/internal/common/metrics"
	"lending-pipeline/internal/models"
	"lending-pipeline/internal/store"
)

// Publisher is the pub/sub side of the relay, extracted for mocking.
type Publisher interface {
	PublishEvent(ctx context.Context, topicARN, message, eventType, applicationID string) error
}

// Relay watches newly inserted outbox records, publishes them to the event
// transport, and marks them PROCESSED with a conditional write. It holds no
// per-invocation state: any number of relay instances may run concurrently,
// and the conditional marking guarantees the PENDING -> PROCESSED transition
// happens exactly once even though the publish itself may repeat.
type Relay struct {
	outbox    *store.OutboxStore
	publisher Publisher
	topicARN  string
	logger    logger.Logger
}

func NewRelay(outbox *store.OutboxStore, publisher Publisher, topicARN string, log logger.Logger) *Relay {
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		topicARN:  topicARN,
		logger:    log.WithFields(map[string]interface{}{"component": "outbox-relay"}),
	}
}

// Process relays one outbox record. Any returned error leaves the record
// PENDING so the change feed or the sweep retries it; no event is silently
// dropped. Duplicate publishes under crash-after-publish are expected and
// absorbed by the idempotent consumers downstream.
func (r *Relay) Process(ctx context.Context, rec *models.OutboxRecord) error {
	if rec.Status != models.OutboxPending {
		// Replayed change notification for an already-processed record.
		r.logger.Debug("skipping non-pending record", map[string]interface{}{
			"eventId": rec.EventID,
			"status":  rec.Status,
		})
		return nil
	}

	message, err := r.wireMessage(rec)
	if err != nil {
		return apperrors.NewPublishFailedError(rec.EventID, err)
	}

	if err := r.publisher.PublishEvent(ctx, r.topicARN, message, rec.EventType, rec.ApplicationID); err != nil {
		metrics.RelayFailures.Inc()
		return apperrors.NewPublishFailedError(rec.EventID, err)
	}
	metrics.EventsPublished.WithLabelValues(rec.EventType).Inc()

	marked, err := r.outbox.MarkProcessed(ctx, rec.EventID)
	if err != nil {
		// Published but not marked: the record stays PENDING and will be
		// republished. Consumers tolerate the duplicate.
		metrics.RelayFailures.Inc()
		return apperrors.NewPublishFailedError(rec.EventID, err)
	}
	if !marked {
		// A concurrent relay invocation won the conditional write.
		metrics.RelayConflicts.Inc()
		r.logger.Debug("record already processed", map[string]interface{}{
			"eventId": rec.EventID,
		})
		return nil
	}

	r.logger.Info("event published", map[string]interface{}{
		"eventId":       rec.EventID,
		"eventType":     rec.EventType,
		"applicationId": rec.ApplicationID,
	})
	return nil
}

// HandleNotification resolves a change-feed payload (the inserted event id)
// and relays the record. Unknown ids are ignored: the notification may
// outlive a test teardown or arrive for a foreign channel publisher.
func (r *Relay) HandleNotification(ctx context.Context, eventID string) error {
	rec, err := r.outbox.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Warn("notification for unknown outbox record", map[string]interface{}{
				"eventId": eventID,
			})
			return nil
		}
		return apperrors.NewDatabaseUnavailableError(err)
	}
	return r.Process(ctx, rec)
}

func (r *Relay) wireMessage(rec *models.OutboxRecord) (string, error) {
	var payload map[string]interface{}
	if rec.Payload != "" {
		if err := json.Unmarshal([]byte(rec.Payload), &payload); err != nil {
			return "", fmt.Errorf("decode stored payload: %w", err)
		}
	}

	raw, err := json.Marshal(models.Event{
		EventID:       rec.EventID,
		ApplicationID: rec.ApplicationID,
		EventType:     rec.EventType,
		Payload:       payload,
		CreatedAt:     rec.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	return string(raw), nil
}

// Sweeper periodically re-drives PENDING records whose change notification
// was lost, keeping delivery at-least-once across listener reconnects.
type Sweeper struct {
	relay     *Relay
	outbox    *store.OutboxStore
	interval  time.Duration
	minAge    time.Duration
	batchSize int
	logger    logger.Logger
}

func NewSweeper(relay *Relay, outbox *store.OutboxStore, interval, minAge time.Duration, batchSize int, log logger.Logger) *Sweeper {
	return &Sweeper{
		relay:     relay,
		outbox:    outbox,
		interval:  interval,
		minAge:    minAge,
		batchSize: batchSize,
		logger:    log.WithFields(map[string]interface{}{"component": "outbox-sweeper"}),
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	records, err := s.outbox.FetchPending(ctx, s.minAge, s.batchSize)
	if err != nil {
		s.logger.Error("pending sweep failed", map[string]interface{}{"error": err})
		return
	}
	if len(records) == 0 {
		return
	}

	s.logger.Info("re-driving pending outbox records", map[string]interface{}{
		"count": len(records),
	})
	for i := range records {
		if err := s.relay.Process(ctx, &records[i]); err != nil {
			// Leave it PENDING; the next sweep picks it up again.
			s.logger.Warn("sweep relay failed", map[string]interface{}{
				"error":   err,
				"eventId": records[i].EventID,
			})
		}
	}
}
