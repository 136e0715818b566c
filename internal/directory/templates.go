package directory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/match"
	"github.com/pgvector/pgvector-go"
)

// TemplateRepository provides access to installed face templates.
type TemplateRepository struct {
	pool *Pool
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(pool *Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// NewTemplate is a descriptor pending installation for an employee.
type NewTemplate struct {
	PoseIndex int
	Quality   float64
	Embedding []float32
}

// Install atomically replaces the employee's face templates with the given
// set and marks them as face-registered. The old templates are gone only
// if every new one lands.
func (r *TemplateRepository) Install(ctx context.Context, employeeID, enrollmentID string, templates []NewTemplate) ([]match.Descriptor, error) {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM face_templates WHERE employee_id = $1`, employeeID); err != nil {
		return nil, fmt.Errorf("failed to delete old templates: %w", err)
	}

	now := time.Now().UTC()
	installed := make([]match.Descriptor, 0, len(templates))
	for _, t := range templates {
		if len(t.Embedding) != descriptorDim {
			return nil, fmt.Errorf("descriptor has %d dimensions, expected %d", len(t.Embedding), descriptorDim)
		}

		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO face_templates (employee_id, pose_index, embedding, quality, enrollment_id, enrolled_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, employeeID, t.PoseIndex, pgvector.NewVector(t.Embedding), t.Quality, enrollmentID, now).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to insert template pose %d: %w", t.PoseIndex, err)
		}

		installed = append(installed, match.Descriptor{
			ID:         id,
			EmployeeID: employeeID,
			PoseIndex:  t.PoseIndex,
			Quality:    t.Quality,
			Embedding:  t.Embedding,
			EnrolledAt: now,
		})
	}

	if _, err := tx.ExecContext(ctx, `UPDATE employees SET face_registered = TRUE WHERE id = $1`, employeeID); err != nil {
		return nil, fmt.Errorf("failed to mark employee as registered: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit template install: %w", err)
	}
	return installed, nil
}

// Delete removes all templates for the employee and clears their
// face-registered flag.
func (r *TemplateRepository) Delete(ctx context.Context, employeeID string) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM face_templates WHERE employee_id = $1`, employeeID); err != nil {
		return fmt.Errorf("failed to delete templates: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE employees SET face_registered = FALSE WHERE id = $1`, employeeID); err != nil {
		return fmt.Errorf("failed to clear registered flag: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit template delete: %w", err)
	}
	return nil
}

// ListAll returns every installed template for active employees, ordered
// by employee and pose. This is the working set loaded into the in-memory
// template store on startup.
func (r *TemplateRepository) ListAll(ctx context.Context) ([]match.Descriptor, error) {
	query := `
		SELECT t.id, t.employee_id, t.pose_index, t.embedding, t.quality, t.enrolled_at
		FROM face_templates t
		JOIN employees e ON e.id = t.employee_id
		WHERE e.active = TRUE
		ORDER BY t.employee_id, t.pose_index
	`
	rows, err := r.pool.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return scanDescriptors(rows)
}

// ListByEmployee returns the installed templates for one employee, ordered
// by pose.
func (r *TemplateRepository) ListByEmployee(ctx context.Context, employeeID string) ([]match.Descriptor, error) {
	query := `
		SELECT id, employee_id, pose_index, embedding, quality, enrolled_at
		FROM face_templates
		WHERE employee_id = $1
		ORDER BY pose_index
	`
	rows, err := r.pool.db.QueryContext(ctx, query, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates for employee %s: %w", employeeID, err)
	}
	return scanDescriptors(rows)
}

func scanDescriptors(rows *sql.Rows) ([]match.Descriptor, error) {
	defer rows.Close()

	var descriptors []match.Descriptor
	for rows.Next() {
		var desc match.Descriptor
		var embedding pgvector.Vector
		if err := rows.Scan(&desc.ID, &desc.EmployeeID, &desc.PoseIndex, &embedding, &desc.Quality, &desc.EnrolledAt); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		desc.Embedding = embedding.Slice()
		descriptors = append(descriptors, desc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate template rows: %w", err)
	}
	return descriptors, nil
}

// CountByEmployee returns the number of installed templates per employee.
func (r *TemplateRepository) CountByEmployee(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT employee_id, COUNT(*) FROM face_templates GROUP BY employee_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count templates: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var employeeID string
		var count int
		if err := rows.Scan(&employeeID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[employeeID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate count rows: %w", err)
	}
	return counts, nil
}
