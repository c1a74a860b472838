// internal/models/application.go
package models

// ApplicationStatus is the current position of a loan application in the
// approval pipeline. Failure statuses are terminal: no stage consumes them.
type ApplicationStatus string

const (
	StatusSubmitted          ApplicationStatus = "SUBMITTED"
	StatusKYCPassed          ApplicationStatus = "KYC_PASSED"
	StatusKYCFailed          ApplicationStatus = "KYC_FAILED"
	StatusCompliancePassed   ApplicationStatus = "COMPLIANCE_PASSED"
	StatusComplianceFailed   ApplicationStatus = "COMPLIANCE_FAILED"
	StatusDisbursed          ApplicationStatus = "DISBURSED"
	StatusDisbursementFailed ApplicationStatus = "DISBURSEMENT_FAILED"
)

// IsTerminal reports whether no further stage may act on the application.
func (s ApplicationStatus) IsTerminal() bool {
	switch s {
	case StatusKYCFailed, StatusComplianceFailed, StatusDisbursed, StatusDisbursementFailed:
		return true
	}
	return false
}

type Application struct {
	ApplicationID string            `json:"applicationId"`
	UserID        string            `json:"userId"`
	Amount        float64           `json:"amount"`
	Status        ApplicationStatus `json:"status"`
	CreatedAt     string            `json:"createdAt"` // ISO 8601
	UpdatedAt     string            `json:"updatedAt"` // ISO 8601
}
