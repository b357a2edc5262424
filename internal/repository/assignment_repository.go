package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/credential-service/internal/domain"
)

const uniqueViolation = "23505"

const assignmentColumns = `id, event_id, staff_id, staff_cpf, registration_check_id, created_at, created_by`

type rowScanner interface {
	Scan(dest ...any) error
}

// PgxPool is the subset of *pgxpool.Pool the Postgres repositories use.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

var _ PgxPool = (*pgxpool.Pool)(nil)

type assignmentRepository struct {
	pool PgxPool
}

// NewAssignmentRepository instantiates the repository.
func NewAssignmentRepository(pool PgxPool) AssignmentRepository {
	return &assignmentRepository{pool: pool}
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *domain.EventStaff) error {
	const query = `
        INSERT INTO events_staff (id, event_id, staff_id, staff_cpf, created_by)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at`

	err := r.pool.QueryRow(ctx, query,
		assignment.ID,
		assignment.EventID,
		assignment.StaffID,
		assignment.StaffCPF,
		assignment.CreatedBy,
	).Scan(&assignment.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateAssignment
	}
	assignment.CreatedAt = assignment.CreatedAt.UTC()
	return err
}

func (r *assignmentRepository) GetByID(ctx context.Context, id string) (*domain.EventStaff, error) {
	query := `SELECT ` + assignmentColumns + ` FROM events_staff WHERE id=$1`
	return scanAssignment(r.pool.QueryRow(ctx, query, id))
}

func (r *assignmentRepository) List(ctx context.Context, filter AssignmentFilter) ([]domain.EventStaff, error) {
	query := `SELECT ` + assignmentColumns + ` FROM events_staff`
	args := []any{}
	clauses := []string{}

	if filter.EventID != nil {
		args = append(args, *filter.EventID)
		clauses = append(clauses, fmt.Sprintf("event_id=$%d", len(args)))
	}
	if filter.StaffCPF != nil {
		args = append(args, *filter.StaffCPF)
		clauses = append(clauses, fmt.Sprintf("staff_cpf=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC" + pageClause(filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.EventStaff{}
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *assignment)
	}
	return result, rows.Err()
}

func scanAssignment(row rowScanner) (*domain.EventStaff, error) {
	var assignment domain.EventStaff
	if err := row.Scan(
		&assignment.ID,
		&assignment.EventID,
		&assignment.StaffID,
		&assignment.StaffCPF,
		&assignment.RegistrationCheckID,
		&assignment.CreatedAt,
		&assignment.CreatedBy,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	assignment.CreatedAt = assignment.CreatedAt.UTC()
	return &assignment, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
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
