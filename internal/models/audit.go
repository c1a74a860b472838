// internal/models/audit.go
package models

// AuditLogEntry is an immutable fact about an application. The ordered
// sequence of entries per applicationId is the authoritative history; rows
// are never mutated or deleted.
type AuditLogEntry struct {
	ApplicationID string `json:"applicationId"`
	LogTimestamp  string `json:"logTimestamp"` // ISO 8601, sort key
	Action        string `json:"action"`       // stage outcome label, e.g. "KYC_PASSED"
	Actor         string `json:"actor"`        // producing component name
	Details       string `json:"details"`      // JSON payload snapshot
}

// Actor names recorded in audit entries.
const (
	ActorSubmissionAPI   = "SubmissionAPI"
	ActorIdentityCheck   = "IdentityCheckService"
	ActorComplianceCheck = "ComplianceService"
	ActorDisbursement    = "DisbursementService"
)
