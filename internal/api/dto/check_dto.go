package dto

import (
	"time"

	"github.com/spec-kit/credential-service/internal/domain"
)

// CreateCheckRequest payload.
type CreateCheckRequest struct {
	Action        string `json:"action" validate:"required,oneof=registration check-in check-out"`
	EventsStaffID string `json:"events_staff_id" validate:"required"`
	UserControlID int64  `json:"user_control_id" validate:"required,gt=0"`
}

// CheckListQuery captures query filters for the check listing.
type CheckListQuery struct {
	EventsStaffID string `query:"events_staff_id"`
	EventID       int64  `query:"event_id" validate:"omitempty,gt=0"`
	StaffCPF      string `query:"staff_cpf"`
	Action        string `query:"action"`
	Page          int    `query:"page" validate:"omitempty,gte=1"`
	PageSize      int    `query:"page_size" validate:"omitempty,gte=1,lte=500"`
}

// CheckResponse represents one ledger entry.
type CheckResponse struct {
	ID            int64              `json:"id"`
	Action        domain.CheckAction `json:"action"`
	Timestamp     time.Time          `json:"timestamp"`
	EventsStaffID string             `json:"events_staff_id"`
	UserControlID int64              `json:"user_control_id"`
}

// NewCheckResponse maps a domain check.
func NewCheckResponse(check *domain.Check) CheckResponse {
	return CheckResponse{
		ID:            check.ID,
		Action:        check.Action,
		Timestamp:     check.Timestamp,
		EventsStaffID: check.EventsStaffID,
		UserControlID: check.UserControlID,
	}
}

// NewCheckResponses maps a slice, never returning nil.
func NewCheckResponses(checks []domain.Check) []CheckResponse {
	items := make([]CheckResponse, 0, len(checks))
	for i := range checks {
		items = append(items, NewCheckResponse(&checks[i]))
	}
	return items
}
