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
	"github.com/spec-kit/credential-service/internal/lock"
	"github.com/spec-kit/credential-service/internal/repository"
	apperrors "github.com/spec-kit/credential-service/pkg/util/errorutil"
)

// CheckLedger validates and records registration, check-in and check-out
// actions for assignments.
type CheckLedger struct {
	assignments repository.AssignmentRepository
	checks      repository.CheckRepository
	locker      lock.Locker
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
	lockWait    time.Duration
}

// CheckLedgerDependencies bundles collaborators.
type CheckLedgerDependencies struct {
	AssignmentRepo repository.AssignmentRepository
	CheckRepo      repository.CheckRepository
	Locker         lock.Locker
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
	// LockWait bounds how long RecordAction waits for a busy assignment.
	LockWait time.Duration
}

// RecordActionInput describes a requested transition.
type RecordActionInput struct {
	AssignmentID  string
	Action        domain.CheckAction
	UserControlID int64
}

// CheckListFilter describes check listing filters.
type CheckListFilter struct {
	EventsStaffID *string
	EventID       *int64
	StaffCPF      *string
	Action        *domain.CheckAction
	Limit         int
	Offset        int
}

// AssignmentPresence is an assignment decorated with its derived state.
type AssignmentPresence struct {
	Assignment *domain.EventStaff
	State      domain.PresenceState
	LastCheck  *domain.Check
}

// NewCheckLedger constructs the ledger.
func NewCheckLedger(deps CheckLedgerDependencies) *CheckLedger {
	ledger := &CheckLedger{
		assignments: deps.AssignmentRepo,
		checks:      deps.CheckRepo,
		locker:      deps.Locker,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		now:         deps.Clock,
		lockWait:    deps.LockWait,
	}
	if ledger.locker == nil {
		ledger.locker = lock.NewKeyedMutex()
	}
	if ledger.logger == nil {
		ledger.logger = zap.NewNop()
	}
	if ledger.now == nil {
		ledger.now = time.Now
	}
	return ledger
}

// RecordAction applies action to the assignment. Rejections are returned as
// DomainErrors and leave no trace in either store.
func (l *CheckLedger) RecordAction(ctx context.Context, input RecordActionInput) (*domain.Check, error) {
	input.AssignmentID = strings.TrimSpace(input.AssignmentID)
	if err := input.validate(); err != nil {
		return nil, err
	}

	release, err := l.acquire(ctx, input.AssignmentID)
	if err != nil {
		l.logger.Warn("assignment lock unavailable", zap.String("events_staff_id", input.AssignmentID), zap.Error(err))
		return nil, apperrors.NewStoreUnavailable(err)
	}
	defer release()

	var (
		created    domain.Check
		assignment *domain.EventStaff
		from, to   domain.PresenceState
	)
	err = l.checks.WithinAssignment(ctx, input.AssignmentID, func(tx repository.CheckTx) error {
		var err error
		assignment, err = tx.Assignment(ctx)
		if err != nil {
			return err
		}

		var last *domain.Check
		if assignment.Registered() {
			last, err = tx.LastCheck(ctx)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}

		from = domain.DeriveState(assignment, last)
		to, err = from.Apply(input.Action)
		if err != nil {
			return err
		}

		created = domain.Check{
			Action:        input.Action,
			Timestamp:     l.timestamp(last),
			EventsStaffID: input.AssignmentID,
			UserControlID: input.UserControlID,
		}
		if err := tx.Append(ctx, &created); err != nil {
			return err
		}
		if input.Action == domain.CheckActionRegistration {
			return tx.SetRegistrationCheck(ctx, created.ID)
		}
		return nil
	})
	if err != nil {
		return nil, l.rejection(input, err)
	}

	l.logger.Info("check recorded",
		zap.Int64("check_id", created.ID),
		zap.String("events_staff_id", created.EventsStaffID),
		zap.String("action", string(created.Action)),
		zap.Int64("user_control_id", created.UserControlID),
		zap.Stringer("state", to))

	l.publish(ctx, created, assignment, from, to)
	return &created, nil
}

// LastCheck returns the most recent check by (timestamp, id), or nil.
func (l *CheckLedger) LastCheck(ctx context.Context, assignmentID string) (*domain.Check, error) {
	check, err := l.checks.LastByAssignment(ctx, assignmentID)
	return optionalCheck(check, err)
}

// RegistrationCheck returns the registration check, or nil when the
// assignment has not registered.
func (l *CheckLedger) RegistrationCheck(ctx context.Context, assignmentID string) (*domain.Check, error) {
	check, err := l.checks.RegistrationByAssignment(ctx, assignmentID)
	return optionalCheck(check, err)
}

// History returns the assignment's checks ascending by (timestamp, id).
func (l *CheckLedger) History(ctx context.Context, assignmentID string) ([]domain.Check, error) {
	checks, err := l.checks.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return checks, nil
}

// GetCheck fetches one check by id.
func (l *CheckLedger) GetCheck(ctx context.Context, id int64) (*domain.Check, error) {
	check, err := l.checks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("Check", map[string]any{"check_id": id})
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return check, nil
}

// ListChecks returns checks newest first.
func (l *CheckLedger) ListChecks(ctx context.Context, filter CheckListFilter) ([]domain.Check, error) {
	repoFilter := repository.CheckFilter{
		EventsStaffID: filter.EventsStaffID,
		EventID:       filter.EventID,
		Action:        filter.Action,
		Limit:         filter.Limit,
		Offset:        filter.Offset,
	}
	if filter.StaffCPF != nil {
		cpf := domain.NormalizeCPF(*filter.StaffCPF)
		repoFilter.StaffCPF = &cpf
	}
	checks, err := l.checks.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return checks, nil
}

// Presence loads the assignment together with its derived state.
func (l *CheckLedger) Presence(ctx context.Context, assignmentID string) (*AssignmentPresence, error) {
	assignment, err := l.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewAssignmentNotFound(assignmentID)
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}
	last, err := l.LastCheck(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	return &AssignmentPresence{
		Assignment: assignment,
		State:      domain.DeriveState(assignment, last),
		LastCheck:  last,
	}, nil
}

func (in RecordActionInput) validate() error {
	if in.AssignmentID == "" || in.Action == "" || in.UserControlID == 0 {
		return apperrors.NewValidationError("action, events_staff_id, and user_control_id are required", nil)
	}
	if !in.Action.Valid() {
		return apperrors.NewValidationError("Invalid action. Must be: registration, check-in, or check-out",
			map[string]any{"action": in.Action})
	}
	if in.UserControlID < 0 {
		return apperrors.NewValidationError("user_control_id must be positive", nil)
	}
	return nil
}

func (l *CheckLedger) acquire(ctx context.Context, assignmentID string) (func(), error) {
	if l.lockWait <= 0 {
		return l.locker.Lock(ctx, assignmentID)
	}
	lockCtx, cancel := context.WithTimeout(ctx, l.lockWait)
	defer cancel()
	return l.locker.Lock(lockCtx, assignmentID)
}

// timestamp never precedes the previous check so (timestamp, id) ordering
// matches append order even if the wall clock steps back.
func (l *CheckLedger) timestamp(last *domain.Check) time.Time {
	ts := l.now().UTC().Truncate(time.Microsecond)
	if last != nil && ts.Before(last.Timestamp) {
		return last.Timestamp
	}
	return ts
}

func (l *CheckLedger) rejection(input RecordActionInput, err error) error {
	var mapped error
	switch {
	case errors.Is(err, domain.ErrAlreadyRegistered), errors.Is(err, repository.ErrAlreadyRegistered):
		mapped = apperrors.NewAlreadyRegistered()
	case errors.Is(err, domain.ErrNotRegistered):
		mapped = apperrors.NewNotRegistered()
	case errors.Is(err, domain.ErrAlreadyCheckedIn):
		mapped = apperrors.NewAlreadyCheckedIn()
	case errors.Is(err, domain.ErrInvalidSequence):
		mapped = apperrors.NewInvalidSequence()
	case errors.Is(err, repository.ErrNotFound):
		mapped = apperrors.NewAssignmentNotFound(input.AssignmentID)
	default:
		l.logger.Warn("record check failed",
			zap.String("events_staff_id", input.AssignmentID),
			zap.String("action", string(input.Action)),
			zap.Error(err))
		return apperrors.NewStoreUnavailable(err)
	}
	l.logger.Debug("check rejected",
		zap.String("events_staff_id", input.AssignmentID),
		zap.String("action", string(input.Action)),
		zap.String("reason", err.Error()))
	return mapped
}

func (l *CheckLedger) publish(ctx context.Context, check domain.Check, assignment *domain.EventStaff, from, to domain.PresenceState) {
	if l.dispatcher == nil {
		return
	}
	err := l.dispatcher.Publish(ctx, events.Event{
		ID:            uuid.NewString(),
		Type:          events.EventCheckRecorded,
		EventsStaffID: check.EventsStaffID,
		Actor:         events.Actor{UserControlID: check.UserControlID},
		Timestamp:     check.Timestamp,
		Payload: events.CheckRecordedPayload{
			CheckID:   check.ID,
			Action:    check.Action,
			EventID:   assignment.EventID,
			StaffID:   assignment.StaffID,
			FromState: from,
			ToState:   to,
		},
	})
	if err != nil {
		l.logger.Warn("publish check event failed",
			zap.String("events_staff_id", check.EventsStaffID),
			zap.Int64("check_id", check.ID),
			zap.Error(err))
	}
}

func optionalCheck(check *domain.Check, err error) (*domain.Check, error) {
	if err == nil {
		return check, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return nil, apperrors.NewStoreUnavailable(err)
}
