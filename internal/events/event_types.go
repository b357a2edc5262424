package events

import (
	"time"

	"github.com/spec-kit/credential-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCheckRecorded     EventType = "check_recorded"
	EventAssignmentCreated EventType = "assignment_created"
)

// Actor identifies the control user behind an event.
type Actor struct {
	UserControlID int64 `json:"user_control_id"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID            string      `json:"id"`
	Type          EventType   `json:"type"`
	EventsStaffID string      `json:"events_staff_id"`
	Actor         Actor       `json:"actor"`
	Timestamp     time.Time   `json:"timestamp"`
	Payload       interface{} `json:"payload"`
}

// CheckRecordedPayload describes an accepted transition.
type CheckRecordedPayload struct {
	CheckID   int64                `json:"check_id"`
	Action    domain.CheckAction   `json:"action"`
	EventID   int64                `json:"event_id"`
	StaffID   int64                `json:"staff_id"`
	FromState domain.PresenceState `json:"from_state"`
	ToState   domain.PresenceState `json:"to_state"`
}

// AssignmentCreatedPayload payload.
type AssignmentCreatedPayload struct {
	EventID int64 `json:"event_id"`
	StaffID int64 `json:"staff_id"`
}
