package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/credential-service/internal/domain"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyRegistered is returned when the registration compare-and-set
	// finds registration_check_id already populated.
	ErrAlreadyRegistered = errors.New("assignment already registered")
	// ErrDuplicateAssignment is returned when the (event, staff) pair exists.
	ErrDuplicateAssignment = errors.New("staff already assigned to event")
)

// AssignmentRepository persists EventStaff records. Registration state is
// written only through CheckTx.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *domain.EventStaff) error
	GetByID(ctx context.Context, id string) (*domain.EventStaff, error)
	List(ctx context.Context, filter AssignmentFilter) ([]domain.EventStaff, error)
}

// AssignmentFilter defines query params for assignment listing.
type AssignmentFilter struct {
	EventID  *int64
	StaffCPF *string
	Limit    int
	Offset   int
}

// CheckRepository reads the check ledger and opens write units of work.
type CheckRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Check, error)
	List(ctx context.Context, filter CheckFilter) ([]domain.Check, error)
	// ListByAssignment returns the history ascending by (timestamp, id).
	ListByAssignment(ctx context.Context, assignmentID string) ([]domain.Check, error)
	LastByAssignment(ctx context.Context, assignmentID string) (*domain.Check, error)
	RegistrationByAssignment(ctx context.Context, assignmentID string) (*domain.Check, error)
	// WithinAssignment runs fn in a unit of work scoped to one assignment.
	// Writes made through the CheckTx become visible together when fn returns
	// nil and are discarded otherwise.
	WithinAssignment(ctx context.Context, assignmentID string, fn func(tx CheckTx) error) error
}

// CheckTx is the write side of the ledger for a single assignment.
type CheckTx interface {
	Assignment(ctx context.Context) (*domain.EventStaff, error)
	LastCheck(ctx context.Context) (*domain.Check, error)
	// Append stores the check and assigns its ID.
	Append(ctx context.Context, check *domain.Check) error
	// SetRegistrationCheck is a compare-and-set on a null registration_check_id.
	SetRegistrationCheck(ctx context.Context, checkID int64) error
}

// CheckFilter defines query params for check listing. Results are ordered
// newest first.
type CheckFilter struct {
	EventsStaffID *string
	EventID       *int64
	StaffCPF      *string
	Action        *domain.CheckAction
	Limit         int
	Offset        int
}
