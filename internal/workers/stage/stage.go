// internal/workers/stage/stage.go
package stage

import "lending-pipeline/internal/models"

// Definition parameterizes the generic processor for one approval stage.
// Each stage consumes exactly one upstream event type and owns exactly one
// status transition; because stage N's transaction is the sole producer of
// the event stage N+1 consumes, the chain is ordered per application without
// locks.
type Definition struct {
	Name           string                   // stage identifier, also the metrics label
	Actor          string                   // recorded in audit entries
	TriggerEvent   string                   // inbound eventType this stage acts on
	ExpectedStatus models.ApplicationStatus // precondition for the status update
	PassStatus     models.ApplicationStatus
	FailStatus     models.ApplicationStatus
	PassEvent      string // eventType emitted on a pass verdict
	FailEvent      string // eventType emitted on a fail verdict
}

// IdentityCheck verifies the applicant's identity right after submission.
var IdentityCheck = Definition{
	Name:           "identity-check",
	Actor:          models.ActorIdentityCheck,
	TriggerEvent:   models.EventApplicationSubmitted,
	ExpectedStatus: models.StatusSubmitted,
	PassStatus:     models.StatusKYCPassed,
	FailStatus:     models.StatusKYCFailed,
	PassEvent:      models.EventKYCPassed,
	FailEvent:      models.EventKYCFailed,
}

// ComplianceCheck screens applications that cleared the identity check.
var ComplianceCheck = Definition{
	Name:           "compliance-check",
	Actor:          models.ActorComplianceCheck,
	TriggerEvent:   models.EventKYCPassed,
	ExpectedStatus: models.StatusKYCPassed,
	PassStatus:     models.StatusCompliancePassed,
	FailStatus:     models.StatusComplianceFailed,
	PassEvent:      models.EventCompliancePassed,
	FailEvent:      models.EventComplianceFailed,
}

// Disbursement releases funds for compliant applications.
var Disbursement = Definition{
	Name:           "disbursement",
	Actor:          models.ActorDisbursement,
	TriggerEvent:   models.EventCompliancePassed,
	ExpectedStatus: models.StatusCompliancePassed,
	PassStatus:     models.StatusDisbursed,
	FailStatus:     models.StatusDisbursementFailed,
	PassEvent:      models.EventDisbursementSuccess,
	FailEvent:      models.EventDisbursementFailed,
}

// All lists every stage in pipeline order.
var All = []Definition{IdentityCheck, ComplianceCheck, Disbursement}
