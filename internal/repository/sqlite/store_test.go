package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/repository"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedAssignment(t *testing.T, store *Store, id string) {
	t.Helper()
	err := store.Assignments().Create(context.Background(), &domain.EventStaff{
		ID:        id,
		EventID:   10,
		StaffID:   int64(len(id)),
		StaffCPF:  "12345678900",
		CreatedBy: 1,
	})
	require.NoError(t, err)
}

func TestCreateAssignmentRejectsDuplicatePair(t *testing.T) {
	store := openTestStore(t)
	seedAssignment(t, store, "es_a")

	err := store.Assignments().Create(context.Background(), &domain.EventStaff{
		ID: "es_b", EventID: 10, StaffID: 4, StaffCPF: "1", CreatedBy: 1,
	})
	assert.ErrorIs(t, err, repository.ErrDuplicateAssignment)
}

func TestUnitOfWorkCommitsAppendAndRegistration(t *testing.T) {
	store := openTestStore(t)
	seedAssignment(t, store, "es_a")
	ctx := context.Background()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 678000, time.UTC)

	var regID int64
	err := store.Checks().WithinAssignment(ctx, "es_a", func(tx repository.CheckTx) error {
		_, err := tx.LastCheck(ctx)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		check := domain.Check{Action: domain.CheckActionRegistration, Timestamp: ts, UserControlID: 3}
		if err := tx.Append(ctx, &check); err != nil {
			return err
		}
		regID = check.ID
		return tx.SetRegistrationCheck(ctx, check.ID)
	})
	require.NoError(t, err)

	assignment, err := store.Assignments().GetByID(ctx, "es_a")
	require.NoError(t, err)
	require.NotNil(t, assignment.RegistrationCheckID)
	assert.Equal(t, regID, *assignment.RegistrationCheckID)

	last, err := store.Checks().LastByAssignment(ctx, "es_a")
	require.NoError(t, err)
	assert.Equal(t, ts, last.Timestamp)
	assert.Equal(t, "es_a", last.EventsStaffID)

	err = store.Checks().WithinAssignment(ctx, "es_a", func(tx repository.CheckTx) error {
		return tx.SetRegistrationCheck(ctx, regID)
	})
	assert.ErrorIs(t, err, repository.ErrAlreadyRegistered)
}

func TestUnitOfWorkRollsBackOnError(t *testing.T) {
	store := openTestStore(t)
	seedAssignment(t, store, "es_a")
	ctx := context.Background()
	boom := errors.New("guard rejected")

	err := store.Checks().WithinAssignment(ctx, "es_a", func(tx repository.CheckTx) error {
		check := domain.Check{Action: domain.CheckActionRegistration, Timestamp: time.Now().UTC(), UserControlID: 3}
		if err := tx.Append(ctx, &check); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	history, err := store.Checks().ListByAssignment(ctx, "es_a")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSecondRegistrationRowViolatesIndex(t *testing.T) {
	store := openTestStore(t)
	seedAssignment(t, store, "es_a")
	ctx := context.Background()

	appendRegistration := func() error {
		return store.Checks().WithinAssignment(ctx, "es_a", func(tx repository.CheckTx) error {
			check := domain.Check{Action: domain.CheckActionRegistration, Timestamp: time.Now().UTC(), UserControlID: 3}
			return tx.Append(ctx, &check)
		})
	}
	require.NoError(t, appendRegistration())
	assert.ErrorIs(t, appendRegistration(), repository.ErrAlreadyRegistered)
}

func TestSetRegistrationOnMissingAssignment(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Checks().WithinAssignment(ctx, "es_ghost", func(tx repository.CheckTx) error {
		_, err := tx.Assignment(ctx)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return tx.SetRegistrationCheck(ctx, 1)
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLastByAssignmentBreaksTiesByID(t *testing.T) {
	store := openTestStore(t)
	seedAssignment(t, store, "es_a")
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	var ids []int64
	err := store.Checks().WithinAssignment(ctx, "es_a", func(tx repository.CheckTx) error {
		for _, action := range []domain.CheckAction{domain.CheckActionRegistration, domain.CheckActionCheckIn, domain.CheckActionCheckOut} {
			check := domain.Check{Action: action, Timestamp: ts, UserControlID: 3}
			if err := tx.Append(ctx, &check); err != nil {
				return err
			}
			ids = append(ids, check.ID)
		}
		return nil
	})
	require.NoError(t, err)

	last, err := store.Checks().LastByAssignment(ctx, "es_a")
	require.NoError(t, err)
	assert.Equal(t, ids[2], last.ID)
	assert.Equal(t, domain.CheckActionCheckOut, last.Action)

	listed, err := store.Checks().List(ctx, repository.CheckFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, ids[2], listed[0].ID)
	assert.Equal(t, ids[0], listed[2].ID)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewFromDB(sqlx.NewDb(db, "sqlmock")), mock
}

func TestGetByIDMapsNoRows(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM checks c WHERE c.id=\?`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "checked_at", "events_staff_id", "user_control_id"}))

	_, err := store.Checks().GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverFaultsPropagate(t *testing.T) {
	store, mock := newMockStore(t)
	fault := errors.New("disk I/O error")

	mock.ExpectQuery(`SELECT .* FROM events_staff WHERE id=\?`).WillReturnError(fault)
	_, err := store.Assignments().GetByID(context.Background(), "es_a")
	assert.ErrorIs(t, err, fault)

	mock.ExpectBegin().WillReturnError(fault)
	err = store.Checks().WithinAssignment(context.Background(), "es_a", func(repository.CheckTx) error {
		t.Fatal("unit of work must not run")
		return nil
	})
	assert.ErrorIs(t, err, fault)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM events_staff WHERE id=\?`).
		WithArgs("es_a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "staff_id", "staff_cpf", "registration_check_id", "created_at", "created_by"}).
			AddRow("es_a", 1, 2, "123", nil, time.Now().UnixMicro(), 1))
	mock.ExpectExec(`INSERT INTO checks`).WillReturnError(fault)
	mock.ExpectRollback()
	err = store.Checks().WithinAssignment(context.Background(), "es_a", func(tx repository.CheckTx) error {
		if _, err := tx.Assignment(context.Background()); err != nil {
			return err
		}
		return tx.Append(context.Background(), &domain.Check{Action: domain.CheckActionRegistration, Timestamp: time.Now()})
	})
	assert.ErrorIs(t, err, fault)
	assert.NoError(t, mock.ExpectationsWereMet())
}
