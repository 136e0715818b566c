package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-kiosk/internal/match"
)

// ErrNotFound is returned when a directory record does not exist.
var ErrNotFound = errors.New("not found")

// EmployeeRepository provides access to employee records.
type EmployeeRepository struct {
	pool *Pool
}

// NewEmployeeRepository creates a new employee repository.
func NewEmployeeRepository(pool *Pool) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

// Upsert inserts or updates an employee record keyed by ID.
// The face_registered flag is owned by the template repository and
// is left untouched on update.
func (r *EmployeeRepository) Upsert(ctx context.Context, emp match.Employee) error {
	query := `
		INSERT INTO employees (id, code, name, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			active = EXCLUDED.active
	`
	if _, err := r.pool.db.ExecContext(ctx, query, emp.ID, emp.Code, emp.Name, emp.Active); err != nil {
		return fmt.Errorf("failed to upsert employee %s: %w", emp.ID, err)
	}
	return nil
}

// GetByCode looks up an employee by their short badge code.
func (r *EmployeeRepository) GetByCode(ctx context.Context, code string) (match.Employee, error) {
	query := `
		SELECT id, code, name, active, face_registered
		FROM employees
		WHERE code = $1
	`
	var emp match.Employee
	err := r.pool.db.QueryRowContext(ctx, query, code).Scan(
		&emp.ID, &emp.Code, &emp.Name, &emp.Active, &emp.FaceRegistered,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return match.Employee{}, fmt.Errorf("employee with code %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return match.Employee{}, fmt.Errorf("failed to query employee by code: %w", err)
	}
	return emp, nil
}

// ListActive returns all active employees.
func (r *EmployeeRepository) ListActive(ctx context.Context) ([]match.Employee, error) {
	query := `
		SELECT id, code, name, active, face_registered
		FROM employees
		WHERE active = TRUE
		ORDER BY code
	`
	rows, err := r.pool.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active employees: %w", err)
	}
	defer rows.Close()

	var employees []match.Employee
	for rows.Next() {
		var emp match.Employee
		if err := rows.Scan(&emp.ID, &emp.Code, &emp.Name, &emp.Active, &emp.FaceRegistered); err != nil {
			return nil, fmt.Errorf("failed to scan employee row: %w", err)
		}
		employees = append(employees, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate employee rows: %w", err)
	}
	return employees, nil
}
