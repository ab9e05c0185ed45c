package storage

import (
	"context"
	"time"

	"github.com/anathi-mjali/branchbook/libs/db"
)

// Entry is one row of the appointment audit trail.
type Entry struct {
	EventID       string
	EventType     string
	AppointmentID string
	Reference     string
	BranchID      string
	CustomerID    string
	OccurredAt    time.Time
	Payload       []byte
}

// DeadLetter records an event that exhausted delivery retries upstream.
type DeadLetter struct {
	EventID     string
	EventType   string
	AggregateID string
	Reason      string
	Payload     []byte
}

type AuditRepository struct {
	pool *db.Pool
}

func NewAuditRepository(pool *db.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Append(ctx context.Context, e Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_trail
			(event_id, event_type, appointment_id, reference, branch_id, customer_id, occurred_at, payload)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`, e.EventID, e.EventType, e.AppointmentID, e.Reference, e.BranchID, e.CustomerID, e.OccurredAt, e.Payload)
	return err
}

func (r *AuditRepository) AppendDeadLetter(ctx context.Context, d DeadLetter) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dead_letter_events (event_id, event_type, aggregate_id, reason, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`, d.EventID, d.EventType, d.AggregateID, d.Reason, d.Payload)
	return err
}

// Trail returns the audit entries for one appointment, oldest first.
func (r *AuditRepository) Trail(ctx context.Context, appointmentID string) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, event_type, appointment_id, COALESCE(reference, ''),
			COALESCE(branch_id, ''), COALESCE(customer_id, ''), occurred_at, payload
		FROM audit_trail
		WHERE appointment_id = $1
		ORDER BY occurred_at ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EventID, &e.EventType, &e.AppointmentID, &e.Reference,
			&e.BranchID, &e.CustomerID, &e.OccurredAt, &e.Payload); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}
