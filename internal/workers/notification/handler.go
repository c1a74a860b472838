// internal/workers/notification/handler.go
package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"lending-pipeline/internal/common/aws"
	"lending-pipeline/internal/common/logger"
	"lending-pipeline/internal/common/metrics"
	"lending-pipeline/internal/models"
)

// BulkWriter persists a batch of notification rows and reports which ones
// the store failed to take, as indexes into the submitted slice.
type BulkWriter interface {
	BulkWrite(ctx context.Context, index string, docs []models.Notification) ([]int, error)
}

// EmailSender is the optional operator-notification channel.
type EmailSender interface {
	SendEmail(ctx context.Context, from, to, subject, body string) error
}

// Handler is the notification fan-out: it listens to the full event stream,
// persists one denormalized notification row per event, and retries partial
// bulk-write failures with bounded exponential backoff. Everything here is
// best-effort: rows still unprocessed after the retry ceiling are logged and
// dropped, never escalated to a poison queue.
type Handler struct {
	config *Config
	writer BulkWriter
	email  EmailSender
	logger logger.Logger
	sleep  func(time.Duration)
}

func NewHandler(config *Config, writer BulkWriter, email EmailSender, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		writer: writer,
		email:  email,
		logger: log.WithFields(map[string]interface{}{"component": "notification-fanout"}),
		sleep:  time.Sleep,
	}
}

// HandleBatch implements the queue consumer contract. The whole batch is
// always acknowledged: parse failures drop the single bad record, and write
// failures past the ceiling are accepted loss.
func (h *Handler) HandleBatch(ctx context.Context, msgs []aws.Message) []aws.Message {
	docs := make([]models.Notification, 0, len(msgs))
	for _, msg := range msgs {
		evt, err := models.UnwrapEnvelope([]byte(msg.Body))
		if err != nil {
			h.logger.Error("dropping unparseable record", map[string]interface{}{
				"error":     err,
				"messageId": msg.MessageID,
			})
			continue
		}

		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			payload = []byte("{}")
		}

		docs = append(docs, models.Notification{
			// Fresh id per write: a redelivered event creates an extra row,
			// not a conflicting one.
			NotificationID: uuid.New().String(),
			ApplicationID:  evt.ApplicationID,
			EventType:      evt.EventType,
			Payload:        string(payload),
			CreatedAt:      evt.CreatedAt,
		})
	}

	if len(docs) > 0 {
		h.writeWithRetry(ctx, docs)
	}

	return msgs
}

// writeWithRetry submits all rows in one bulk write, then retries only the
// unprocessed subset with delay = baseDelay * 2^attempt up to the ceiling.
func (h *Handler) writeWithRetry(ctx context.Context, docs []models.Notification) {
	remaining := docs
	for attempt := 0; ; attempt++ {
		failed, err := h.writer.BulkWrite(ctx, h.config.Index, remaining)
		if err == nil && len(failed) == 0 {
			metrics.NotificationsIndexed.Add(float64(len(remaining)))
			h.logger.Info("notifications stored", map[string]interface{}{
				"count":    len(docs),
				"attempts": attempt + 1,
			})
			h.notifyByEmail(ctx, docs)
			return
		}

		if err != nil {
			// Whole-request failure: every row in this round is unprocessed.
			h.logger.Warn("bulk write failed", map[string]interface{}{
				"error":   err,
				"attempt": attempt + 1,
			})
		} else {
			persisted := len(remaining) - len(failed)
			metrics.NotificationsIndexed.Add(float64(persisted))
			next := make([]models.Notification, 0, len(failed))
			for _, i := range failed {
				next = append(next, remaining[i])
			}
			remaining = next
		}

		if attempt >= h.config.MaxRetries {
			// Accepted loss for best-effort notifications only.
			metrics.NotificationsDropped.Add(float64(len(remaining)))
			h.logger.Error("dropping notifications after retry ceiling", map[string]interface{}{
				"dropped":  len(remaining),
				"attempts": attempt + 1,
			})
			return
		}

		delay := h.config.BaseDelay * time.Duration(1<<attempt)
		metrics.NotificationRetries.Inc()
		h.logger.Warn("retrying unprocessed notifications", map[string]interface{}{
			"remaining": len(remaining),
			"attempt":   attempt + 1,
			"delay":     delay.String(),
		})
		h.sleep(delay)
	}
}

func (h *Handler) notifyByEmail(ctx context.Context, docs []models.Notification) {
	if !h.config.EmailEnabled || h.email == nil {
		return
	}
	for _, doc := range docs {
		subject := "Loan application update: " + doc.EventType
		body := "Application " + doc.ApplicationID + " emitted " + doc.EventType + " at " + doc.CreatedAt
		if err := h.email.SendEmail(ctx, h.config.FromEmail, h.config.ToEmail, subject, body); err != nil {
			h.logger.Warn("notification email failed", map[string]interface{}{
				"error":          err,
				"notificationId": doc.NotificationID,
			})
		}
	}
}
