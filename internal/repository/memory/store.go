// Package memory provides in-process repository implementations for tests
// and single-instance development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/lock"
	"github.com/spec-kit/credential-service/internal/repository"
)

type pairKey struct {
	eventID int64
	staffID int64
}

// Store keeps assignments and checks in maps guarded by one RWMutex. Writes
// for a single assignment are additionally serialized by a keyed mutex so a
// unit of work observes a stable view of its assignment.
type Store struct {
	mu          sync.RWMutex
	assignments map[string]domain.EventStaff
	pairs       map[pairKey]string
	checks      map[int64]domain.Check
	history     map[string][]int64
	nextCheckID atomic.Int64
	writers     *lock.KeyedMutex
}

// New creates an empty store.
func New() *Store {
	return &Store{
		assignments: make(map[string]domain.EventStaff),
		pairs:       make(map[pairKey]string),
		checks:      make(map[int64]domain.Check),
		history:     make(map[string][]int64),
		writers:     lock.NewKeyedMutex(),
	}
}

// Assignments exposes the store as an AssignmentRepository.
func (s *Store) Assignments() repository.AssignmentRepository {
	return assignmentStore{s}
}

// Checks exposes the store as a CheckRepository.
func (s *Store) Checks() repository.CheckRepository {
	return checkStore{s}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

type assignmentStore struct {
	*Store
}

func (s assignmentStore) Create(_ context.Context, assignment *domain.EventStaff) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.assignments[assignment.ID]; exists {
		return repository.ErrDuplicateAssignment
	}
	pair := pairKey{eventID: assignment.EventID, staffID: assignment.StaffID}
	if _, exists := s.pairs[pair]; exists {
		return repository.ErrDuplicateAssignment
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	assignment.RegistrationCheckID = nil
	s.assignments[assignment.ID] = *assignment
	s.pairs[pair] = assignment.ID
	return nil
}

func (s assignmentStore) GetByID(_ context.Context, id string) (*domain.EventStaff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assignmentLocked(id)
}

func (s assignmentStore) List(_ context.Context, filter repository.AssignmentFilter) ([]domain.EventStaff, error) {
	s.mu.RLock()
	result := []domain.EventStaff{}
	for _, assignment := range s.assignments {
		if filter.EventID != nil && assignment.EventID != *filter.EventID {
			continue
		}
		if filter.StaffCPF != nil && assignment.StaffCPF != *filter.StaffCPF {
			continue
		}
		result = append(result, cloneAssignment(assignment))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return paginate(result, filter.Limit, filter.Offset), nil
}

type checkStore struct {
	*Store
}

func (s checkStore) GetByID(_ context.Context, id int64) (*domain.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	check, ok := s.checks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &check, nil
}

func (s checkStore) List(_ context.Context, filter repository.CheckFilter) ([]domain.Check, error) {
	s.mu.RLock()
	result := []domain.Check{}
	for _, check := range s.checks {
		if filter.EventsStaffID != nil && check.EventsStaffID != *filter.EventsStaffID {
			continue
		}
		if filter.Action != nil && check.Action != *filter.Action {
			continue
		}
		if filter.EventID != nil || filter.StaffCPF != nil {
			assignment, ok := s.assignments[check.EventsStaffID]
			if !ok {
				continue
			}
			if filter.EventID != nil && assignment.EventID != *filter.EventID {
				continue
			}
			if filter.StaffCPF != nil && assignment.StaffCPF != *filter.StaffCPF {
				continue
			}
		}
		result = append(result, check)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[j].Before(result[i])
	})
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (s checkStore) ListByAssignment(_ context.Context, assignmentID string) ([]domain.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.history[assignmentID]
	result := make([]domain.Check, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.checks[id])
	}
	return result, nil
}

func (s checkStore) LastByAssignment(_ context.Context, assignmentID string) (*domain.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastLocked(assignmentID)
}

func (s checkStore) RegistrationByAssignment(_ context.Context, assignmentID string) (*domain.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.history[assignmentID] {
		if check := s.checks[id]; check.Action == domain.CheckActionRegistration {
			return &check, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s checkStore) WithinAssignment(ctx context.Context, assignmentID string, fn func(tx repository.CheckTx) error) error {
	release, err := s.writers.Lock(ctx, assignmentID)
	if err != nil {
		return err
	}
	defer release()

	tx := &memoryTx{store: s.Store, assignmentID: assignmentID}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

// commit publishes the pending writes under a single write lock, re-checking
// the registration compare-and-set.
func (s *Store) commit(tx *memoryTx) error {
	if len(tx.pending) == 0 && tx.registrationID == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	assignment, ok := s.assignments[tx.assignmentID]
	if !ok {
		return repository.ErrNotFound
	}
	if tx.registrationID != nil {
		if assignment.RegistrationCheckID != nil {
			return repository.ErrAlreadyRegistered
		}
		id := *tx.registrationID
		assignment.RegistrationCheckID = &id
		s.assignments[tx.assignmentID] = assignment
	}
	for _, check := range tx.pending {
		s.checks[check.ID] = check
		s.insertHistoryLocked(check)
	}
	return nil
}

func (s *Store) insertHistoryLocked(check domain.Check) {
	ids := s.history[check.EventsStaffID]
	i := sort.Search(len(ids), func(i int) bool {
		return check.Before(s.checks[ids[i]])
	})
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = check.ID
	s.history[check.EventsStaffID] = ids
}

func (s *Store) assignmentLocked(id string) (*domain.EventStaff, error) {
	assignment, ok := s.assignments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := cloneAssignment(assignment)
	return &clone, nil
}

func (s *Store) lastLocked(assignmentID string) (*domain.Check, error) {
	ids := s.history[assignmentID]
	if len(ids) == 0 {
		return nil, repository.ErrNotFound
	}
	check := s.checks[ids[len(ids)-1]]
	return &check, nil
}

type memoryTx struct {
	store          *Store
	assignmentID   string
	pending        []domain.Check
	registrationID *int64
}

func (t *memoryTx) Assignment(context.Context) (*domain.EventStaff, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	assignment, err := t.store.assignmentLocked(t.assignmentID)
	if err != nil {
		return nil, err
	}
	if t.registrationID != nil {
		id := *t.registrationID
		assignment.RegistrationCheckID = &id
	}
	return assignment, nil
}

func (t *memoryTx) LastCheck(context.Context) (*domain.Check, error) {
	t.store.mu.RLock()
	last, err := t.store.lastLocked(t.assignmentID)
	t.store.mu.RUnlock()

	for i := range t.pending {
		if last == nil || last.Before(t.pending[i]) {
			check := t.pending[i]
			last, err = &check, nil
		}
	}
	return last, err
}

func (t *memoryTx) Append(_ context.Context, check *domain.Check) error {
	check.ID = t.store.nextCheckID.Add(1)
	check.EventsStaffID = t.assignmentID
	t.pending = append(t.pending, *check)
	return nil
}

func (t *memoryTx) SetRegistrationCheck(_ context.Context, checkID int64) error {
	t.store.mu.RLock()
	assignment, ok := t.store.assignments[t.assignmentID]
	t.store.mu.RUnlock()

	if !ok {
		return repository.ErrNotFound
	}
	if assignment.RegistrationCheckID != nil || t.registrationID != nil {
		return repository.ErrAlreadyRegistered
	}
	t.registrationID = &checkID
	return nil
}

func cloneAssignment(assignment domain.EventStaff) domain.EventStaff {
	if assignment.RegistrationCheckID != nil {
		id := *assignment.RegistrationCheckID
		assignment.RegistrationCheckID = &id
	}
	return assignment
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
