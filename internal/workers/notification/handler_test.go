// internal/workers/notification/handler_test.go
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"lending-pipeline/internal/common/aws"
	"lending-pipeline/internal/common/logger"
	"lending-pipeline/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type bulkCall struct {
	index string
	docs  []models.Notification
}

// fakeBulkWriter replays a scripted sequence of results, one per call.
type fakeBulkWriter struct {
	calls   []bulkCall
	results []struct {
		failed []int
		err    error
	}
}

func (w *fakeBulkWriter) script(failed []int, err error) {
	w.results = append(w.results, struct {
		failed []int
		err    error
	}{failed, err})
}

func (w *fakeBulkWriter) BulkWrite(_ context.Context, index string, docs []models.Notification) ([]int, error) {
	w.calls = append(w.calls, bulkCall{index: index, docs: docs})
	if len(w.results) == 0 {
		return nil, nil
	}
	r := w.results[0]
	w.results = w.results[1:]
	return r.failed, r.err
}

type fakeEmailSender struct {
	sent []string
}

func (s *fakeEmailSender) SendEmail(_ context.Context, _, _, subject, _ string) error {
	s.sent = append(s.sent, subject)
	return nil
}

func testConfig() *Config {
	return &Config{
		Index:      "notifications",
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
	}
}

func newTestHandler(t *testing.T, writer BulkWriter, email EmailSender) (*Handler, *[]time.Duration) {
	t.Helper()
	h := NewHandler(testConfig(), writer, email, logger.NewTestLogger(t))
	slept := &[]time.Duration{}
	h.sleep = func(d time.Duration) { *slept = append(*slept, d) }
	return h, slept
}

func eventMessage(t *testing.T, id, eventType string) aws.Message {
	t.Helper()
	inner, err := json.Marshal(models.Event{
		EventID:       "evt-" + id,
		ApplicationID: "app-" + id,
		EventType:     eventType,
		Payload:       map[string]interface{}{"amount": 50000.0},
		CreatedAt:     "2026-01-15T10:00:00Z",
	})
	assert.NoError(t, err)
	outer, err := json.Marshal(models.Envelope{Message: string(inner)})
	assert.NoError(t, err)
	return aws.Message{MessageID: "m-" + id, Body: string(outer)}
}

// ==========================
// Fan-Out Tests
// ==========================

func TestHandleBatch_PersistsOneRowPerEvent(t *testing.T) {
	writer := &fakeBulkWriter{}
	h, slept := newTestHandler(t, writer, nil)

	msgs := []aws.Message{
		eventMessage(t, "1", models.EventApplicationSubmitted),
		eventMessage(t, "2", models.EventKYCPassed),
	}
	acked := h.HandleBatch(context.Background(), msgs)

	assert.Len(t, acked, 2)
	assert.Len(t, writer.calls, 1)
	assert.Equal(t, "notifications", writer.calls[0].index)
	assert.Len(t, writer.calls[0].docs, 2)
	assert.Empty(t, *slept)

	doc := writer.calls[0].docs[0]
	assert.NotEmpty(t, doc.NotificationID)
	assert.Equal(t, "app-1", doc.ApplicationID)
	assert.Equal(t, models.EventApplicationSubmitted, doc.EventType)
}

func TestHandleBatch_FreshNotificationIDPerDelivery(t *testing.T) {
	writer := &fakeBulkWriter{}
	h, _ := newTestHandler(t, writer, nil)

	msg := eventMessage(t, "1", models.EventKYCPassed)
	h.HandleBatch(context.Background(), []aws.Message{msg})
	h.HandleBatch(context.Background(), []aws.Message{msg})

	assert.Len(t, writer.calls, 2)
	first := writer.calls[0].docs[0].NotificationID
	second := writer.calls[1].docs[0].NotificationID
	assert.NotEqual(t, first, second)
}

func TestHandleBatch_UnparseableRecordIsDroppedAlone(t *testing.T) {
	writer := &fakeBulkWriter{}
	h, _ := newTestHandler(t, writer, nil)

	msgs := []aws.Message{
		eventMessage(t, "1", models.EventCompliancePassed),
		{MessageID: "m-bad", Body: "garbage"},
	}
	acked := h.HandleBatch(context.Background(), msgs)

	// The whole batch is acknowledged, but only the good record is written.
	assert.Len(t, acked, 2)
	assert.Len(t, writer.calls, 1)
	assert.Len(t, writer.calls[0].docs, 1)
	assert.Equal(t, "app-1", writer.calls[0].docs[0].ApplicationID)
}

func TestHandleBatch_AllUnparseableSkipsWrite(t *testing.T) {
	writer := &fakeBulkWriter{}
	h, _ := newTestHandler(t, writer, nil)

	acked := h.HandleBatch(context.Background(), []aws.Message{{MessageID: "m-bad", Body: "garbage"}})

	assert.Len(t, acked, 1)
	assert.Empty(t, writer.calls)
}

// ==========================
// Retry Behavior Tests
// ==========================

func TestWriteWithRetry_UnprocessedSubsetIsResubmitted(t *testing.T) {
	writer := &fakeBulkWriter{}
	writer.script([]int{1, 3}, nil) // 2 of 5 rejected
	writer.script(nil, nil)         // retry succeeds
	h, slept := newTestHandler(t, writer, nil)

	msgs := []aws.Message{
		eventMessage(t, "1", models.EventApplicationSubmitted),
		eventMessage(t, "2", models.EventKYCPassed),
		eventMessage(t, "3", models.EventCompliancePassed),
		eventMessage(t, "4", models.EventDisbursementSuccess),
		eventMessage(t, "5", models.EventDisbursementSuccess),
	}
	h.HandleBatch(context.Background(), msgs)

	assert.Len(t, writer.calls, 2)
	assert.Len(t, writer.calls[0].docs, 5)
	assert.Len(t, writer.calls[1].docs, 2)
	assert.Equal(t, "app-2", writer.calls[1].docs[0].ApplicationID)
	assert.Equal(t, "app-4", writer.calls[1].docs[1].ApplicationID)
	assert.Equal(t, []time.Duration{time.Millisecond}, *slept)
}

func TestWriteWithRetry_WholeRequestFailureRetriesEverything(t *testing.T) {
	writer := &fakeBulkWriter{}
	writer.script(nil, errors.New("cluster unavailable"))
	writer.script(nil, nil)
	h, slept := newTestHandler(t, writer, nil)

	h.HandleBatch(context.Background(), []aws.Message{
		eventMessage(t, "1", models.EventKYCFailed),
		eventMessage(t, "2", models.EventComplianceFailed),
	})

	assert.Len(t, writer.calls, 2)
	assert.Len(t, writer.calls[1].docs, 2)
	assert.Len(t, *slept, 1)
}

func TestWriteWithRetry_BackoffDoublesPerAttempt(t *testing.T) {
	writer := &fakeBulkWriter{}
	writer.script(nil, errors.New("unavailable"))
	writer.script(nil, errors.New("unavailable"))
	writer.script(nil, errors.New("unavailable"))
	writer.script(nil, nil)
	h, slept := newTestHandler(t, writer, nil)

	h.HandleBatch(context.Background(), []aws.Message{eventMessage(t, "1", models.EventKYCPassed)})

	assert.Len(t, writer.calls, 4)
	assert.Equal(t, []time.Duration{
		1 * time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
	}, *slept)
}

func TestWriteWithRetry_DropsAfterCeilingAndStillAcks(t *testing.T) {
	writer := &fakeBulkWriter{}
	for i := 0; i < 6; i++ {
		writer.script([]int{0}, nil) // the same row keeps bouncing
	}
	h, slept := newTestHandler(t, writer, nil)

	acked := h.HandleBatch(context.Background(), []aws.Message{eventMessage(t, "1", models.EventDisbursementFailed)})

	// MaxRetries=5 allows the initial attempt plus five retries.
	assert.Len(t, acked, 1)
	assert.Len(t, writer.calls, 6)
	assert.Len(t, *slept, 5)
}

// ==========================
// Email Notification Tests
// ==========================

func TestHandleBatch_EmailsOperatorWhenEnabled(t *testing.T) {
	writer := &fakeBulkWriter{}
	email := &fakeEmailSender{}
	h, _ := newTestHandler(t, writer, email)
	h.config.EmailEnabled = true
	h.config.FromEmail = "pipeline@example.com"
	h.config.ToEmail = "ops@example.com"

	h.HandleBatch(context.Background(), []aws.Message{eventMessage(t, "1", models.EventDisbursementSuccess)})

	assert.Len(t, email.sent, 1)
	assert.Contains(t, email.sent[0], models.EventDisbursementSuccess)
}

func TestHandleBatch_NoEmailWhenDisabled(t *testing.T) {
	writer := &fakeBulkWriter{}
	email := &fakeEmailSender{}
	h, _ := newTestHandler(t, writer, email)

	h.HandleBatch(context.Background(), []aws.Message{eventMessage(t, "1", models.EventKYCPassed)})

	assert.Empty(t, email.sent)
}
