package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
)

// EngineerRepository handles persistence for engineers and dispatchers.
type EngineerRepository interface {
	Create(ctx context.Context, engineer *domain.Engineer) error
	GetByID(ctx context.Context, id string) (*domain.Engineer, error)
	// GetForUpdate reads the engineer and holds a row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Engineer, error)
	GetByEmail(ctx context.Context, email string) (*domain.Engineer, error)
	List(ctx context.Context, filter EngineerFilter) ([]domain.Engineer, error)
}

// EngineerFilter defines query params for engineer listing.
type EngineerFilter struct {
	Roles        []domain.StaffRole
	DepartmentID *string
	Active       *bool
	Limit        int
	Offset       int
}

type engineerRepository struct {
	db DBTX
}

const engineerColumns = `id, name, email, password_hash, role, department_id, specialization,
               active_flag, available_flag, max_open_tickets, created_at, updated_at`

func (r *engineerRepository) Create(ctx context.Context, engineer *domain.Engineer) error {
	const query = `
        INSERT INTO engineers (name, email, password_hash, role, department_id, specialization,
            active_flag, available_flag, max_open_tickets)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`

	return r.db.QueryRow(ctx, query,
		engineer.Name,
		engineer.Email,
		engineer.PasswordHash,
		engineer.Role,
		engineer.DepartmentID,
		engineer.Specialization,
		engineer.Active,
		engineer.Available,
		engineer.MaxOpenTickets,
	).Scan(&engineer.ID, &engineer.CreatedAt, &engineer.UpdatedAt)
}

func (r *engineerRepository) GetByID(ctx context.Context, id string) (*domain.Engineer, error) {
	return scanEngineer(r.db.QueryRow(ctx, `SELECT `+engineerColumns+` FROM engineers WHERE id=$1`, id))
}

func (r *engineerRepository) GetForUpdate(ctx context.Context, id string) (*domain.Engineer, error) {
	return scanEngineer(r.db.QueryRow(ctx, `SELECT `+engineerColumns+` FROM engineers WHERE id=$1 FOR UPDATE`, id))
}

func (r *engineerRepository) GetByEmail(ctx context.Context, email string) (*domain.Engineer, error) {
	return scanEngineer(r.db.QueryRow(ctx, `SELECT `+engineerColumns+` FROM engineers WHERE LOWER(email)=LOWER($1)`, email))
}

func (r *engineerRepository) List(ctx context.Context, filter EngineerFilter) ([]domain.Engineer, error) {
	query := `SELECT ` + engineerColumns + ` FROM engineers`
	args := []any{}
	clauses := []string{}

	if len(filter.Roles) > 0 {
		placeholders := make([]string, len(filter.Roles))
		for i, role := range filter.Roles {
			args = append(args, role)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("role IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY id ASC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Engineer
	for rows.Next() {
		engineer, err := scanEngineer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *engineer)
	}
	return result, rows.Err()
}

func scanEngineer(row pgx.Row) (*domain.Engineer, error) {
	var engineer domain.Engineer
	if err := row.Scan(
		&engineer.ID,
		&engineer.Name,
		&engineer.Email,
		&engineer.PasswordHash,
		&engineer.Role,
		&engineer.DepartmentID,
		&engineer.Specialization,
		&engineer.Active,
		&engineer.Available,
		&engineer.MaxOpenTickets,
		&engineer.CreatedAt,
		&engineer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &engineer, nil
}
