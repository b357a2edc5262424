/*
Package sqlite persists assignments and checks in a single SQLite file.

It targets single-node kiosk deployments where running Postgres is not
practical. The schema mirrors migrations/001_init.sql; timestamps are stored
as unix microseconds so ordering by (checked_at, id) is numeric.

Write units of work use BEGIN IMMEDIATE (the _txlock=immediate DSN option),
so the write lock is taken before the assignment is read and the guard and
the append observe the same state.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS events_staff (
    id                    TEXT PRIMARY KEY,
    event_id              INTEGER NOT NULL,
    staff_id              INTEGER NOT NULL,
    staff_cpf             TEXT NOT NULL,
    registration_check_id INTEGER NULL REFERENCES checks (id),
    created_at            INTEGER NOT NULL,
    created_by            INTEGER NOT NULL,
    UNIQUE (event_id, staff_id)
);

CREATE INDEX IF NOT EXISTS idx_events_staff_event ON events_staff (event_id);
CREATE INDEX IF NOT EXISTS idx_events_staff_cpf ON events_staff (staff_cpf);

CREATE TABLE IF NOT EXISTS checks (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    action          TEXT NOT NULL CHECK (action IN ('registration', 'check-in', 'check-out')),
    checked_at      INTEGER NOT NULL,
    events_staff_id TEXT NOT NULL REFERENCES events_staff (id),
    user_control_id INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_assignment_order ON checks (events_staff_id, checked_at, id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_checks_single_registration ON checks (events_staff_id) WHERE action = 'registration';
`

const (
	assignmentColumns = `id, event_id, staff_id, staff_cpf, registration_check_id, created_at, created_by`
	checkColumns      = `c.id, c.action, c.checked_at, c.events_staff_id, c.user_control_id`
)

// Store implements the repository interfaces on SQLite.
type Store struct {
	db *sqlx.DB
}

// Open connects to path (":memory:" for a private in-memory database) and
// applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	memory := path == "" || path == ":memory:"
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", path)
	if memory {
		dsn = fmt.Sprintf("file:mem-%s?mode=memory&cache=shared&_txlock=immediate&_foreign_keys=on", uuid.NewString())
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return NewFromDB(db), nil
}

// NewFromDB wraps an existing handle without touching the schema.
func NewFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Assignments exposes the store as an AssignmentRepository.
func (s *Store) Assignments() repository.AssignmentRepository {
	return assignmentStore{s}
}

// Checks exposes the store as a CheckRepository.
func (s *Store) Checks() repository.CheckRepository {
	return checkStore{s}
}

type assignmentRow struct {
	ID                  string        `db:"id"`
	EventID             int64         `db:"event_id"`
	StaffID             int64         `db:"staff_id"`
	StaffCPF            string        `db:"staff_cpf"`
	RegistrationCheckID sql.NullInt64 `db:"registration_check_id"`
	CreatedAt           int64         `db:"created_at"`
	CreatedBy           int64         `db:"created_by"`
}

func (r assignmentRow) toDomain() domain.EventStaff {
	assignment := domain.EventStaff{
		ID:        r.ID,
		EventID:   r.EventID,
		StaffID:   r.StaffID,
		StaffCPF:  r.StaffCPF,
		CreatedAt: time.UnixMicro(r.CreatedAt).UTC(),
		CreatedBy: r.CreatedBy,
	}
	if r.RegistrationCheckID.Valid {
		id := r.RegistrationCheckID.Int64
		assignment.RegistrationCheckID = &id
	}
	return assignment
}

type checkRow struct {
	ID            int64  `db:"id"`
	Action        string `db:"action"`
	CheckedAt     int64  `db:"checked_at"`
	EventsStaffID string `db:"events_staff_id"`
	UserControlID int64  `db:"user_control_id"`
}

func (r checkRow) toDomain() domain.Check {
	return domain.Check{
		ID:            r.ID,
		Action:        domain.CheckAction(r.Action),
		Timestamp:     time.UnixMicro(r.CheckedAt).UTC(),
		EventsStaffID: r.EventsStaffID,
		UserControlID: r.UserControlID,
	}
}

type assignmentStore struct {
	*Store
}

func (s assignmentStore) Create(ctx context.Context, assignment *domain.EventStaff) error {
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	assignment.CreatedAt = assignment.CreatedAt.Truncate(time.Microsecond)
	assignment.RegistrationCheckID = nil

	const query = `
        INSERT INTO events_staff (id, event_id, staff_id, staff_cpf, created_at, created_by)
        VALUES (?,?,?,?,?,?)`
	_, err := s.db.ExecContext(ctx, query,
		assignment.ID,
		assignment.EventID,
		assignment.StaffID,
		assignment.StaffCPF,
		assignment.CreatedAt.UnixMicro(),
		assignment.CreatedBy,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicateAssignment
	}
	return err
}

func (s assignmentStore) GetByID(ctx context.Context, id string) (*domain.EventStaff, error) {
	return getAssignment(ctx, s.db, `SELECT `+assignmentColumns+` FROM events_staff WHERE id=?`, id)
}

func (s assignmentStore) List(ctx context.Context, filter repository.AssignmentFilter) ([]domain.EventStaff, error) {
	query := `SELECT ` + assignmentColumns + ` FROM events_staff`
	args := []any{}
	clauses := []string{}

	if filter.EventID != nil {
		args = append(args, *filter.EventID)
		clauses = append(clauses, "event_id=?")
	}
	if filter.StaffCPF != nil {
		args = append(args, *filter.StaffCPF)
		clauses = append(clauses, "staff_cpf=?")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC" + pageClause(filter.Limit, filter.Offset)

	var rows []assignmentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	result := make([]domain.EventStaff, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

type checkStore struct {
	*Store
}

func (s checkStore) GetByID(ctx context.Context, id int64) (*domain.Check, error) {
	return getCheck(ctx, s.db, `SELECT `+checkColumns+` FROM checks c WHERE c.id=?`, id)
}

func (s checkStore) List(ctx context.Context, filter repository.CheckFilter) ([]domain.Check, error) {
	query := `SELECT ` + checkColumns + ` FROM checks c JOIN events_staff es ON es.id = c.events_staff_id`
	args := []any{}
	clauses := []string{}

	if filter.EventsStaffID != nil {
		args = append(args, *filter.EventsStaffID)
		clauses = append(clauses, "c.events_staff_id=?")
	}
	if filter.EventID != nil {
		args = append(args, *filter.EventID)
		clauses = append(clauses, "es.event_id=?")
	}
	if filter.StaffCPF != nil {
		args = append(args, *filter.StaffCPF)
		clauses = append(clauses, "es.staff_cpf=?")
	}
	if filter.Action != nil {
		args = append(args, string(*filter.Action))
		clauses = append(clauses, "c.action=?")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY c.checked_at DESC, c.id DESC" + pageClause(filter.Limit, filter.Offset)

	return selectChecks(ctx, s.db, query, args...)
}

func (s checkStore) ListByAssignment(ctx context.Context, assignmentID string) ([]domain.Check, error) {
	query := `SELECT ` + checkColumns + ` FROM checks c WHERE c.events_staff_id=? ORDER BY c.checked_at ASC, c.id ASC`
	return selectChecks(ctx, s.db, query, assignmentID)
}

func (s checkStore) LastByAssignment(ctx context.Context, assignmentID string) (*domain.Check, error) {
	return getCheck(ctx, s.db, lastCheckQuery, assignmentID)
}

func (s checkStore) RegistrationByAssignment(ctx context.Context, assignmentID string) (*domain.Check, error) {
	query := `SELECT ` + checkColumns + ` FROM checks c WHERE c.events_staff_id=? AND c.action=?`
	return getCheck(ctx, s.db, query, assignmentID, string(domain.CheckActionRegistration))
}

func (s checkStore) WithinAssignment(ctx context.Context, assignmentID string, fn func(tx repository.CheckTx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&sqliteTx{tx: tx, assignmentID: assignmentID}); err != nil {
		return err
	}
	return tx.Commit()
}

const lastCheckQuery = `SELECT ` + checkColumns + ` FROM checks c
        WHERE c.events_staff_id=? ORDER BY c.checked_at DESC, c.id DESC LIMIT 1`

type sqliteTx struct {
	tx           *sqlx.Tx
	assignmentID string
}

func (t *sqliteTx) Assignment(ctx context.Context) (*domain.EventStaff, error) {
	return getAssignment(ctx, t.tx, `SELECT `+assignmentColumns+` FROM events_staff WHERE id=?`, t.assignmentID)
}

func (t *sqliteTx) LastCheck(ctx context.Context) (*domain.Check, error) {
	return getCheck(ctx, t.tx, lastCheckQuery, t.assignmentID)
}

func (t *sqliteTx) Append(ctx context.Context, check *domain.Check) error {
	const query = `
        INSERT INTO checks (action, checked_at, events_staff_id, user_control_id)
        VALUES (?,?,?,?)`
	res, err := t.tx.ExecContext(ctx, query,
		string(check.Action),
		check.Timestamp.UnixMicro(),
		t.assignmentID,
		check.UserControlID,
	)
	if isUniqueViolation(err) {
		return repository.ErrAlreadyRegistered
	}
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	check.ID = id
	check.EventsStaffID = t.assignmentID
	return nil
}

func (t *sqliteTx) SetRegistrationCheck(ctx context.Context, checkID int64) error {
	const query = `UPDATE events_staff SET registration_check_id=? WHERE id=? AND registration_check_id IS NULL`
	res, err := t.tx.ExecContext(ctx, query, checkID, t.assignmentID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	var exists bool
	if err := t.tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM events_staff WHERE id=?)`, t.assignmentID); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrAlreadyRegistered
}

func getAssignment(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*domain.EventStaff, error) {
	var row assignmentRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	assignment := row.toDomain()
	return &assignment, nil
}

func getCheck(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*domain.Check, error) {
	var row checkRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	check := row.toDomain()
	return &check, nil
}

func selectChecks(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]domain.Check, error) {
	var rows []checkRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, err
	}
	result := make([]domain.Check, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func pageClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}
