// internal/outbox/relay_test.go
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	apperrors "lending-pipeline/internal/common/errors"
	"lending-pipeline/internal/common/logger"
	"lending-pipeline/internal/models"
	"lending-pipeline/internal/store"
)

// ==========================
// Test Helper Functions
// ==========================

type publishCall struct {
	TopicARN      string
	Message       string
	EventType     string
	ApplicationID string
}

type fakePublisher struct {
	calls []publishCall
	err   error
}

func (p *fakePublisher) PublishEvent(_ context.Context, topicARN, message, eventType, applicationID string) error {
	p.calls = append(p.calls, publishCall{topicARN, message, eventType, applicationID})
	return p.err
}

func pendingRecord() *models.OutboxRecord {
	return &models.OutboxRecord{
		EventID:       "evt-001",
		ApplicationID: "app-001",
		EventType:     models.EventApplicationSubmitted,
		Payload:       `{"userId":"user-001","amount":50000}`,
		Status:        models.OutboxPending,
		CreatedAt:     "2026-01-15T10:00:00Z",
	}
}

func newTestRelay(t *testing.T, db *sql.DB, pub Publisher) *Relay {
	t.Helper()
	return NewRelay(store.NewOutboxStore(db), pub, "arn:aws:sns:us-east-1:000000000000:loan-events", logger.NewTestLogger(t))
}

// ==========================
// Relay Process Tests
// ==========================

func TestRelayProcess_PublishesAndMarksProcessed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE outbox`).
		WithArgs(models.OutboxProcessed, sqlmock.AnyArg(), "evt-001", models.OutboxPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	pub := &fakePublisher{}
	relay := newTestRelay(t, db, pub)

	err = relay.Process(context.Background(), pendingRecord())

	assert.NoError(t, err)
	assert.Len(t, pub.calls, 1)
	assert.Equal(t, models.EventApplicationSubmitted, pub.calls[0].EventType)
	assert.Equal(t, "app-001", pub.calls[0].ApplicationID)

	// The wire message carries the full event, payload decoded from storage.
	var evt models.Event
	assert.NoError(t, json.Unmarshal([]byte(pub.calls[0].Message), &evt))
	assert.Equal(t, "evt-001", evt.EventID)
	assert.Equal(t, 50000.0, evt.Payload["amount"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayProcess_SkipsProcessedRecord(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	rec := pendingRecord()
	rec.Status = models.OutboxProcessed

	pub := &fakePublisher{}
	relay := newTestRelay(t, db, pub)

	err = relay.Process(context.Background(), rec)

	assert.NoError(t, err)
	assert.Empty(t, pub.calls)
}

func TestRelayProcess_PublishFailureLeavesRecordPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	pub := &fakePublisher{err: errors.New("topic unreachable")}
	relay := newTestRelay(t, db, pub)

	err = relay.Process(context.Background(), pendingRecord())

	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePublishFailed, apperrors.CodeOf(err))
	// No UPDATE was expected: the record must stay PENDING for the sweep.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayProcess_MarkFailureAfterPublishIsRetryable(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE outbox`).
		WillReturnError(errors.New("connection reset"))

	pub := &fakePublisher{}
	relay := newTestRelay(t, db, pub)

	err = relay.Process(context.Background(), pendingRecord())

	// Published but not marked: the caller retries and downstream consumers
	// absorb the duplicate publish.
	assert.Error(t, err)
	assert.Len(t, pub.calls, 1)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestRelayProcess_ConcurrentMarkConflictIsSwallowed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE outbox`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	pub := &fakePublisher{}
	relay := newTestRelay(t, db, pub)

	err = relay.Process(context.Background(), pendingRecord())

	assert.NoError(t, err)
	assert.Len(t, pub.calls, 1)
}

// ==========================
// Change Notification Tests
// ==========================

func TestHandleNotification_LoadsAndRelaysRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"event_id", "application_id", "event_type", "payload", "status", "created_at", "processed_at"}).
		AddRow("evt-001", "app-001", models.EventKYCPassed, "{}", models.OutboxPending, "2026-01-15T10:00:00Z", nil)
	mock.ExpectQuery(`SELECT (.+) FROM outbox`).
		WithArgs("evt-001").
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE outbox`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	pub := &fakePublisher{}
	relay := newTestRelay(t, db, pub)

	err = relay.HandleNotification(context.Background(), "evt-001")

	assert.NoError(t, err)
	assert.Len(t, pub.calls, 1)
	assert.Equal(t, models.EventKYCPassed, pub.calls[0].EventType)
}

func TestHandleNotification_UnknownRecordIsIgnored(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM outbox`).
		WithArgs("evt-ghost").
		WillReturnError(sql.ErrNoRows)

	pub := &fakePublisher{}
	relay := newTestRelay(t, db, pub)

	err = relay.HandleNotification(context.Background(), "evt-ghost")

	assert.NoError(t, err)
	assert.Empty(t, pub.calls)
}
