package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enrollment audit outcomes.
const (
	AuditOutcomeCompleted = "completed"
	AuditOutcomeFailed    = "failed"
	AuditOutcomeCancelled = "cancelled"
)

// Audit is one recorded enrollment attempt, successful or not.
type Audit struct {
	ID            string
	EmployeeID    string
	DeviceID      string
	Outcome       string
	FailureReason string
	MeanQuality   float64
	CreatedAt     time.Time
}

// AuditRepository records enrollment attempts.
type AuditRepository struct {
	pool *Pool
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(pool *Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Record writes one enrollment attempt. An ID is assigned when missing.
func (r *AuditRepository) Record(ctx context.Context, audit Audit) (string, error) {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO enrollment_audits (id, employee_id, device_id, outcome, failure_reason, mean_quality, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, audit.ID, audit.EmployeeID, audit.DeviceID, audit.Outcome, audit.FailureReason, audit.MeanQuality, audit.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to record enrollment audit: %w", err)
	}
	return audit.ID, nil
}

// ListByEmployee returns the enrollment history for one employee,
// most recent first.
func (r *AuditRepository) ListByEmployee(ctx context.Context, employeeID string) ([]Audit, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, employee_id, device_id, outcome, failure_reason, mean_quality, created_at
		FROM enrollment_audits
		WHERE employee_id = $1
		ORDER BY created_at DESC
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollment audits: %w", err)
	}
	defer rows.Close()

	var audits []Audit
	for rows.Next() {
		var a Audit
		if err := rows.Scan(&a.ID, &a.EmployeeID, &a.DeviceID, &a.Outcome, &a.FailureReason, &a.MeanQuality, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit rows: %w", err)
	}
	return audits, nil
}
