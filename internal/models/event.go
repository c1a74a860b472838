// internal/models/event.go
package models

import "encoding/json"

// Event type names carried on the wire. Stage processors key off these to
// decide whether a delivery is addressed to them.
const (
	EventApplicationSubmitted = "ApplicationSubmitted"
	EventKYCPassed            = "KYCPassed"
	EventKYCFailed            = "KYCFailed"
	EventCompliancePassed     = "CompliancePassed"
	EventComplianceFailed     = "ComplianceFailed"
	EventDisbursementSuccess  = "DisbursementSuccess"
	EventDisbursementFailed   = "DisbursementFailed"
)

// Event is the on-the-wire message produced from an OutboxRecord by the
// relay. It is ephemeral and may be delivered more than once.
type Event struct {
	EventID       string                 `json:"eventId"`
	ApplicationID string                 `json:"applicationId"`
	EventType     string                 `json:"eventType"`
	Payload       map[string]interface{} `json:"payload"`
	CreatedAt     string                 `json:"createdAt"` // ISO 8601
}

// Envelope is the outer transport wrapper the queue delivers: the pub/sub
// fan-out re-encodes the event as a JSON string in Message.
type Envelope struct {
	Message string `json:"Message"`
}

// UnwrapEnvelope parses a raw queue message body down to the inner Event.
func UnwrapEnvelope(body []byte) (*Event, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	var evt Event
	if err := json.Unmarshal([]byte(env.Message), &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}
