package storage

import (
	"context"
	"time"

	"github.com/anathi-mjali/branchbook/libs/db"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/model"
)

type HoursRepository struct {
	pool *db.Pool
}

func NewHoursRepository(pool *db.Pool) *HoursRepository {
	return &HoursRepository{pool: pool}
}

// Windows returns the branch's default weekly hours keyed by weekday.
// A weekday without a row is closed.
func (r *HoursRepository) Windows(ctx context.Context, branchID string) (map[time.Weekday]model.OperatingWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT branch_id, weekday, open_at, close_at, closed
		FROM operating_windows
		WHERE branch_id = $1
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	windows := map[time.Weekday]model.OperatingWindow{}
	for rows.Next() {
		var w model.OperatingWindow
		var weekday int
		var openAt, closeAt string
		if err := rows.Scan(&w.BranchID, &weekday, &openAt, &closeAt, &w.Closed); err != nil {
			return nil, err
		}
		w.Weekday = time.Weekday(weekday)
		if w.OpenAt, err = model.ParseClock(openAt); err != nil {
			return nil, err
		}
		if w.CloseAt, err = model.ParseClock(closeAt); err != nil {
			return nil, err
		}
		windows[w.Weekday] = w
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return windows, nil
}

// Override returns the override for the given date, or nil when none exists.
// Expired overrides are filtered here rather than deleted.
func (r *HoursRepository) Override(ctx context.Context, branchID string, date, now time.Time) (*model.OperationHoursOverride, error) {
	var o model.OperationHoursOverride
	var openAt, closeAt string
	err := r.pool.QueryRow(ctx, `
		SELECT branch_id, effective_date, open_at, close_at, closed, COALESCE(reason, '')
		FROM operation_hours_overrides
		WHERE branch_id = $1 AND effective_date = $2
	`, branchID, model.Date(date)).Scan(&o.BranchID, &o.EffectiveDate, &openAt, &closeAt, &o.Closed, &o.Reason)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if o.OpenAt, err = model.ParseClock(openAt); err != nil {
		return nil, err
	}
	if o.CloseAt, err = model.ParseClock(closeAt); err != nil {
		return nil, err
	}
	o.EffectiveDate = model.Date(o.EffectiveDate)
	if o.Expired(now) {
		return nil, nil
	}
	return &o, nil
}

// SaveOverride inserts or replaces the override for its effective date.
func (r *HoursRepository) SaveOverride(ctx context.Context, o model.OperationHoursOverride) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO operation_hours_overrides (branch_id, effective_date, open_at, close_at, closed, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (branch_id, effective_date) DO UPDATE
		SET open_at = EXCLUDED.open_at,
			close_at = EXCLUDED.close_at,
			closed = EXCLUDED.closed,
			reason = EXCLUDED.reason,
			updated_at = now()
	`, o.BranchID, model.Date(o.EffectiveDate), model.FormatClock(o.OpenAt), model.FormatClock(o.CloseAt), o.Closed, o.Reason)
	return err
}
