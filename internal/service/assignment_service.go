package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/events"
	"github.com/spec-kit/credential-service/internal/repository"
	apperrors "github.com/spec-kit/credential-service/pkg/util/errorutil"
)

const assignmentIDPrefix = "es_"

// AssignmentService handles staff-to-event assignments.
type AssignmentService struct {
	assignments repository.AssignmentRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	AssignmentRepo repository.AssignmentRepository
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// AssignmentCreateInput describes a new assignment.
type AssignmentCreateInput struct {
	EventID   int64
	StaffID   int64
	StaffCPF  string
	CreatedBy int64
}

// AssignmentListFilter describes assignment listing filters.
type AssignmentListFilter struct {
	EventID  *int64
	StaffCPF *string
	Limit    int
	Offset   int
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		assignments: deps.AssignmentRepo,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
	}
}

// CreateAssignment assigns a staff member to an event. The new assignment
// starts unregistered.
func (s *AssignmentService) CreateAssignment(ctx context.Context, input AssignmentCreateInput) (*domain.EventStaff, error) {
	cpf := domain.NormalizeCPF(input.StaffCPF)
	if input.EventID <= 0 || input.StaffID <= 0 || cpf == "" {
		return nil, apperrors.NewValidationError("event_id, staff_id and staff_cpf are required", nil)
	}
	if input.CreatedBy <= 0 {
		return nil, apperrors.NewValidationError("created_by is required", nil)
	}

	assignment := &domain.EventStaff{
		ID:        newAssignmentID(),
		EventID:   input.EventID,
		StaffID:   input.StaffID,
		StaffCPF:  cpf,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		CreatedBy: input.CreatedBy,
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		if errors.Is(err, repository.ErrDuplicateAssignment) {
			return nil, apperrors.NewConflict("Staff is already assigned to this event", map[string]any{
				"event_id": input.EventID,
				"staff_id": input.StaffID,
			})
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}

	s.logger.Info("assignment created",
		zap.String("events_staff_id", assignment.ID),
		zap.Int64("event_id", assignment.EventID),
		zap.Int64("staff_id", assignment.StaffID))
	s.publishCreated(ctx, assignment)
	return assignment, nil
}

// GetAssignment fetches one assignment.
func (s *AssignmentService) GetAssignment(ctx context.Context, id string) (*domain.EventStaff, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewAssignmentNotFound(id)
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return assignment, nil
}

// ListAssignments returns assignments oldest first.
func (s *AssignmentService) ListAssignments(ctx context.Context, filter AssignmentListFilter) ([]domain.EventStaff, error) {
	repoFilter := repository.AssignmentFilter{
		EventID: filter.EventID,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}
	if filter.StaffCPF != nil {
		cpf := domain.NormalizeCPF(*filter.StaffCPF)
		repoFilter.StaffCPF = &cpf
	}
	assignments, err := s.assignments.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return assignments, nil
}

func (s *AssignmentService) publishCreated(ctx context.Context, assignment *domain.EventStaff) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:            uuid.NewString(),
		Type:          events.EventAssignmentCreated,
		EventsStaffID: assignment.ID,
		Actor:         events.Actor{UserControlID: assignment.CreatedBy},
		Timestamp:     assignment.CreatedAt,
		Payload: events.AssignmentCreatedPayload{
			EventID: assignment.EventID,
			StaffID: assignment.StaffID,
		},
	})
	if err != nil {
		s.logger.Warn("publish assignment event failed",
			zap.String("events_staff_id", assignment.ID),
			zap.Error(err))
	}
}

func newAssignmentID() string {
	return assignmentIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
