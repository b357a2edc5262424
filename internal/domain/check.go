package domain

import "time"

// CheckAction enumerates the transitions recorded in the ledger.
type CheckAction string

const (
	CheckActionRegistration CheckAction = "registration"
	CheckActionCheckIn      CheckAction = "check-in"
	CheckActionCheckOut     CheckAction = "check-out"
)

// CheckActions lists every accepted action in ledger order.
var CheckActions = []CheckAction{CheckActionRegistration, CheckActionCheckIn, CheckActionCheckOut}

// Valid reports whether the action is one of the known variants.
func (a CheckAction) Valid() bool {
	switch a {
	case CheckActionRegistration, CheckActionCheckIn, CheckActionCheckOut:
		return true
	}
	return false
}

// Check is one immutable entry of an assignment's presence history.
type Check struct {
	ID            int64
	Action        CheckAction
	Timestamp     time.Time
	EventsStaffID string
	UserControlID int64
}

// Before orders checks by (timestamp, id).
func (c Check) Before(other Check) bool {
	if c.Timestamp.Equal(other.Timestamp) {
		return c.ID < other.ID
	}
	return c.Timestamp.Before(other.Timestamp)
}
