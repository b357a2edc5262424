package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/credential-service/internal/domain"
)

const checkColumns = `c.id, c.action, c.checked_at, c.events_staff_id, c.user_control_id`

type checkRepository struct {
	pool PgxPool
}

// NewCheckRepository builds the Postgres-backed ledger.
func NewCheckRepository(pool PgxPool) CheckRepository {
	return &checkRepository{pool: pool}
}

func (r *checkRepository) GetByID(ctx context.Context, id int64) (*domain.Check, error) {
	query := `SELECT ` + checkColumns + ` FROM checks c WHERE c.id=$1`
	return scanCheck(r.pool.QueryRow(ctx, query, id))
}

func (r *checkRepository) List(ctx context.Context, filter CheckFilter) ([]domain.Check, error) {
	query := `SELECT ` + checkColumns + ` FROM checks c JOIN events_staff es ON es.id = c.events_staff_id`
	args := []any{}
	clauses := []string{}

	if filter.EventsStaffID != nil {
		args = append(args, *filter.EventsStaffID)
		clauses = append(clauses, fmt.Sprintf("c.events_staff_id=$%d", len(args)))
	}
	if filter.EventID != nil {
		args = append(args, *filter.EventID)
		clauses = append(clauses, fmt.Sprintf("es.event_id=$%d", len(args)))
	}
	if filter.StaffCPF != nil {
		args = append(args, *filter.StaffCPF)
		clauses = append(clauses, fmt.Sprintf("es.staff_cpf=$%d", len(args)))
	}
	if filter.Action != nil {
		args = append(args, string(*filter.Action))
		clauses = append(clauses, fmt.Sprintf("c.action=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY c.checked_at DESC, c.id DESC" + pageClause(filter.Limit, filter.Offset)

	return queryChecks(ctx, r.pool, query, args...)
}

func (r *checkRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]domain.Check, error) {
	query := `SELECT ` + checkColumns + ` FROM checks c WHERE c.events_staff_id=$1 ORDER BY c.checked_at ASC, c.id ASC`
	return queryChecks(ctx, r.pool, query, assignmentID)
}

func (r *checkRepository) LastByAssignment(ctx context.Context, assignmentID string) (*domain.Check, error) {
	return scanCheck(r.pool.QueryRow(ctx, lastCheckQuery, assignmentID))
}

func (r *checkRepository) RegistrationByAssignment(ctx context.Context, assignmentID string) (*domain.Check, error) {
	query := `SELECT ` + checkColumns + ` FROM checks c WHERE c.events_staff_id=$1 AND c.action=$2`
	return scanCheck(r.pool.QueryRow(ctx, query, assignmentID, string(domain.CheckActionRegistration)))
}

// WithinAssignment opens a transaction holding the assignment row lock until
// commit, so concurrent writers for the same assignment queue behind it.
func (r *checkRepository) WithinAssignment(ctx context.Context, assignmentID string, fn func(tx CheckTx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&pgCheckTx{tx: tx, assignmentID: assignmentID}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryChecks(ctx context.Context, q querier, query string, args ...any) ([]domain.Check, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Check{}
	for rows.Next() {
		check, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *check)
	}
	return result, rows.Err()
}

const lastCheckQuery = `SELECT ` + checkColumns + ` FROM checks c
        WHERE c.events_staff_id=$1 ORDER BY c.checked_at DESC, c.id DESC LIMIT 1`

type pgCheckTx struct {
	tx           pgx.Tx
	assignmentID string
}

func (t *pgCheckTx) Assignment(ctx context.Context) (*domain.EventStaff, error) {
	query := `SELECT ` + assignmentColumns + ` FROM events_staff WHERE id=$1 FOR UPDATE`
	return scanAssignment(t.tx.QueryRow(ctx, query, t.assignmentID))
}

func (t *pgCheckTx) LastCheck(ctx context.Context) (*domain.Check, error) {
	return scanCheck(t.tx.QueryRow(ctx, lastCheckQuery, t.assignmentID))
}

func (t *pgCheckTx) Append(ctx context.Context, check *domain.Check) error {
	const query = `
        INSERT INTO checks (action, checked_at, events_staff_id, user_control_id)
        VALUES ($1,$2,$3,$4)
        RETURNING id`

	err := t.tx.QueryRow(ctx, query,
		string(check.Action),
		check.Timestamp,
		t.assignmentID,
		check.UserControlID,
	).Scan(&check.ID)
	if isUniqueViolation(err) {
		return ErrAlreadyRegistered
	}
	if err != nil {
		return err
	}
	check.EventsStaffID = t.assignmentID
	return nil
}

func (t *pgCheckTx) SetRegistrationCheck(ctx context.Context, checkID int64) error {
	const query = `
        UPDATE events_staff SET registration_check_id=$1
        WHERE id=$2 AND registration_check_id IS NULL`

	cmd, err := t.tx.Exec(ctx, query, checkID, t.assignmentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM events_staff WHERE id=$1)`, t.assignmentID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyRegistered
}

func scanCheck(row rowScanner) (*domain.Check, error) {
	var (
		check  domain.Check
		action string
	)
	if err := row.Scan(
		&check.ID,
		&action,
		&check.Timestamp,
		&check.EventsStaffID,
		&check.UserControlID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	check.Action = domain.CheckAction(action)
	check.Timestamp = check.Timestamp.UTC()
	return &check, nil
}
