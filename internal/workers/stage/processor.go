// internal/workers/stage/processor.go
package stage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"lending-pipeline/internal/common/aws"
	apperrors "lending-pipeline/internal/common/errors"
	"lending-pipeline/internal/common/logger"
	"lending-pipeline/internal/common/metrics"
	"lending-pipeline/internal/common/validation"
	"lending-pipeline/internal/models"
	"lending-pipeline/internal/store"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}

// Processor consumes inbound events for one stage and applies the stage's
// atomic write: {conditional status update, audit entry, next outbox record}.
// Processing is idempotent: a duplicate delivery either fails the status
// precondition (swallowed no-op) or, with a deterministic decision function,
// re-derives the identical transition.
type Processor struct {
	def         Definition
	config      *Config
	transitions *store.TransitionStore
	decide      DecisionFunc
	logger      logger.Logger
}

func NewProcessor(def Definition, config *Config, transitions *store.TransitionStore, decide DecisionFunc, log logger.Logger) *Processor {
	return &Processor{
		def:         def,
		config:      config,
		transitions: transitions,
		decide:      decide,
		logger:      log.WithFields(map[string]interface{}{"stage": def.Name}),
	}
}

// HandleBatch implements the queue consumer contract. Each message is
// handled independently: malformed and foreign messages are acknowledged
// (dropped or ignored), infrastructure failures leave the message on the
// queue for redelivery and, once the redrive budget is spent, the
// dead-letter queue.
func (p *Processor) HandleBatch(ctx context.Context, msgs []aws.Message) []aws.Message {
	acks := make([]aws.Message, 0, len(msgs))
	for _, msg := range msgs {
		if err := p.handle(ctx, msg); err != nil {
			metrics.StageFailed.WithLabelValues(p.def.Name, string(apperrors.CodeOf(err))).Inc()
			p.logger.Error("processing failed, message left for redelivery", map[string]interface{}{
				"error":     err,
				"messageId": msg.MessageID,
			})
			continue
		}
		acks = append(acks, msg)
	}
	return acks
}

func (p *Processor) handle(ctx context.Context, msg aws.Message) error {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(p.def.Name).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	evt, err := p.parseEnvelope([]byte(msg.Body))
	if err != nil {
		// Non-retryable: dropping the message here is what prevents a
		// poison-message loop.
		metrics.StageIgnored.WithLabelValues(p.def.Name, "malformed").Inc()
		p.logger.Error("dropping malformed message", map[string]interface{}{
			"error":     err,
			"messageId": msg.MessageID,
		})
		return nil
	}

	return p.Process(ctx, evt)
}

// Process runs the stage on one decoded event. Exported for tests and for
// callers that do their own envelope handling.
func (p *Processor) Process(ctx context.Context, evt *models.Event) error {
	if evt.EventType != p.def.TriggerEvent {
		// Topic fan-out delivers every event type to every stage queue
		// unless filtered; foreign types are a logged no-op.
		metrics.StageIgnored.WithLabelValues(p.def.Name, "event_type").Inc()
		p.logger.Debug("ignoring event", map[string]interface{}{
			"eventType": evt.EventType,
			"eventId":   evt.EventID,
		})
		return nil
	}

	verdict := p.decide(evt.ApplicationID, evt.Payload)

	newStatus := p.def.PassStatus
	nextEvent := p.def.PassEvent
	if verdict != VerdictPass {
		newStatus = p.def.FailStatus
		nextEvent = p.def.FailEvent
	}

	details, err := json.Marshal(evt.Payload)
	if err != nil {
		details = []byte("{}")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	err = p.transitions.ApplyStageTransition(ctx, store.StageTransition{
		Stage:          p.def.Name,
		ApplicationID:  evt.ApplicationID,
		ExpectedStatus: p.def.ExpectedStatus,
		NewStatus:      newStatus,
		UpdatedAt:      now,
		AuditEntry: &models.AuditLogEntry{
			ApplicationID: evt.ApplicationID,
			LogTimestamp:  now,
			Action:        string(newStatus),
			Actor:         p.def.Actor,
			Details:       string(details),
		},
		Outbox: &models.OutboxRecord{
			EventID:       uuid.New().String(),
			ApplicationID: evt.ApplicationID,
			EventType:     nextEvent,
			Payload:       string(details),
			Status:        models.OutboxPending,
			CreatedAt:     now,
		},
	})
	if err != nil {
		if apperrors.IsStateConflict(err) {
			// Duplicate or out-of-order delivery: another invocation already
			// moved the application past this stage. Swallow.
			metrics.StageIgnored.WithLabelValues(p.def.Name, "already_handled").Inc()
			p.logger.Info("transition already applied", map[string]interface{}{
				"applicationId": evt.ApplicationID,
				"eventId":       evt.EventID,
			})
			return nil
		}
		return err
	}

	metrics.StageProcessed.WithLabelValues(p.def.Name, string(verdict)).Inc()
	p.logger.Info("stage transition applied", map[string]interface{}{
		"applicationId": evt.ApplicationID,
		"verdict":       string(verdict),
		"newStatus":     string(newStatus),
		"nextEvent":     nextEvent,
	})
	return nil
}

// parseEnvelope unwraps the transport envelope, validates the inner event
// against the wire schema, and decodes it.
func (p *Processor) parseEnvelope(body []byte) (*models.Event, error) {
	var env models.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.NewMalformedEnvelopeError(err)
	}

	if err := validation.ValidateEvent([]byte(env.Message)); err != nil {
		return nil, apperrors.NewInvalidEventError(err.Error())
	}

	var evt models.Event
	if err := json.Unmarshal([]byte(env.Message), &evt); err != nil {
		return nil, apperrors.NewMalformedEnvelopeError(err)
	}
	return &evt, nil
}
