package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/anathi-mjali/branchbook/libs/db"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/model"
)

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments
			(id, reference, branch_id, customer_id, day, start_at, end_at, sequence, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, appt.ID, appt.Reference, appt.BranchID, appt.CustomerID, appt.Day,
		model.FormatClock(appt.Start), model.FormatClock(appt.End), appt.Sequence, appt.Status)
	return err
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, reference, branch_id, customer_id, day, start_at, end_at, sequence, status, created_at
		FROM appointments
		WHERE id = $1
	`, id))
}

// UpdateStatus moves an appointment from one status to another and reports
// whether a row actually changed. The status predicate makes concurrent
// transitions on the same appointment lose cleanly instead of clobbering.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id string, from, to model.AppointmentStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *AppointmentRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, reference, branch_id, customer_id, day, start_at, end_at, sequence, status, created_at
		FROM appointments
		WHERE customer_id = $1
		ORDER BY day DESC, start_at DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// BookedSlotKeys returns the ledger keys of appointments still holding a
// slot on the given day, for subtracting from the availability listing.
func (r *AppointmentRepository) BookedSlotKeys(ctx context.Context, branchID string, day model.Day) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT branch_id, day, start_at, end_at, sequence
		FROM appointments
		WHERE branch_id = $1 AND day = $2 AND status = 'booked'
	`, branchID, day.Date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := map[string]struct{}{}
	for rows.Next() {
		var key model.SlotKey
		var start, end string
		if err := rows.Scan(&key.BranchID, &key.Day, &start, &end, &key.Sequence); err != nil {
			return nil, err
		}
		if key.Start, err = model.ParseClock(start); err != nil {
			return nil, err
		}
		if key.End, err = model.ParseClock(end); err != nil {
			return nil, err
		}
		key.Day = model.Date(key.Day)
		keys[key.String()] = struct{}{}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return keys, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *AppointmentRepository) scanOne(row rowScanner) (model.Appointment, error) {
	var appt model.Appointment
	var start, end string
	err := row.Scan(
		&appt.ID,
		&appt.Reference,
		&appt.BranchID,
		&appt.CustomerID,
		&appt.Day,
		&start,
		&end,
		&appt.Sequence,
		&appt.Status,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Start, err = model.ParseClock(start); err != nil {
		return model.Appointment{}, err
	}
	if appt.End, err = model.ParseClock(end); err != nil {
		return model.Appointment{}, err
	}
	appt.Day = model.Date(appt.Day)
	return appt, nil
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23P01")
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
