package dto

import (
	"time"

	"github.com/spec-kit/credential-service/internal/domain"
)

// CreateAssignmentRequest payload.
type CreateAssignmentRequest struct {
	EventID   int64  `json:"event_id" validate:"required,gt=0"`
	StaffID   int64  `json:"staff_id" validate:"required,gt=0"`
	StaffCPF  string `json:"staff_cpf" validate:"required,min=11,max=18"`
	CreatedBy int64  `json:"created_by" validate:"omitempty,gt=0"`
}

// AssignmentListQuery captures query filters for assignment listing.
type AssignmentListQuery struct {
	EventID  int64  `query:"event_id" validate:"omitempty,gt=0"`
	StaffCPF string `query:"staff_cpf"`
	Page     int    `query:"page" validate:"omitempty,gte=1"`
	PageSize int    `query:"page_size" validate:"omitempty,gte=1,lte=500"`
}

// AssignmentResponse represents an events_staff row.
type AssignmentResponse struct {
	ID                  string    `json:"id"`
	EventID             int64     `json:"event_id"`
	StaffID             int64     `json:"staff_id"`
	StaffCPF            string    `json:"staff_cpf"`
	RegistrationCheckID *int64    `json:"registration_check_id"`
	CreatedAt           time.Time `json:"created_at"`
	CreatedBy           int64     `json:"created_by"`
}

// AssignmentDetailResponse adds the derived presence state.
type AssignmentDetailResponse struct {
	AssignmentResponse
	State     domain.PresenceState `json:"state"`
	LastCheck *CheckResponse       `json:"last_check"`
}

// NewAssignmentResponse maps a domain assignment.
func NewAssignmentResponse(assignment *domain.EventStaff) AssignmentResponse {
	return AssignmentResponse{
		ID:                  assignment.ID,
		EventID:             assignment.EventID,
		StaffID:             assignment.StaffID,
		StaffCPF:            assignment.StaffCPF,
		RegistrationCheckID: assignment.RegistrationCheckID,
		CreatedAt:           assignment.CreatedAt,
		CreatedBy:           assignment.CreatedBy,
	}
}

// NewAssignmentDetailResponse maps an assignment with its presence.
func NewAssignmentDetailResponse(assignment *domain.EventStaff, state domain.PresenceState, last *domain.Check) AssignmentDetailResponse {
	resp := AssignmentDetailResponse{
		AssignmentResponse: NewAssignmentResponse(assignment),
		State:              state,
	}
	if last != nil {
		check := NewCheckResponse(last)
		resp.LastCheck = &check
	}
	return resp
}
