// internal/api/requests.go
package api

import (
	"strings"

	apperrors "lending-pipeline/internal/common/errors"
)

// SubmitApplicationRequest is the body of POST /applications.
type SubmitApplicationRequest struct {
	UserID string  `json:"userId"`
	Amount float64 `json:"amount"`
}

func (r *SubmitApplicationRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return apperrors.NewValidationFailedError("userId is required")
	}
	if r.Amount <= 0 {
		return apperrors.NewValidationFailedError("amount must be positive")
	}
	return nil
}

// SubmitApplicationResponse is returned on a successful submission.
type SubmitApplicationResponse struct {
	ApplicationID string `json:"applicationId"`
	Status        string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
