package ledger

import (
	"context"

	"github.com/anathi-mjali/branchbook/libs/db"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/model"
)

// PGLedger stores slot claims in Postgres. The claim is a conditional update
// on the booked flag, so the at-most-one-claim guarantee holds across service
// instances without any application-level lock.
type PGLedger struct {
	pool *db.Pool
}

func NewPGLedger(pool *db.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

func (l *PGLedger) TryBook(ctx context.Context, key model.SlotKey) (ClaimResult, error) {
	// Materialize the row on first contact; the unique key makes the insert
	// a no-op when the slot is already known.
	_, err := l.pool.Exec(ctx, `
		INSERT INTO slot_claims (slot_key, branch_id, day, start_at, end_at, sequence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slot_key) DO NOTHING
	`, key.String(), key.BranchID, key.Day, model.FormatClock(key.Start), model.FormatClock(key.End), key.Sequence)
	if err != nil {
		return AlreadyBooked, err
	}

	tag, err := l.pool.Exec(ctx, `
		UPDATE slot_claims
		SET booked = TRUE, booked_at = now()
		WHERE slot_key = $1 AND NOT booked
	`, key.String())
	if err != nil {
		return AlreadyBooked, err
	}
	if tag.RowsAffected() == 0 {
		return AlreadyBooked, nil
	}
	return Claimed, nil
}

func (l *PGLedger) Release(ctx context.Context, key model.SlotKey) error {
	_, err := l.pool.Exec(ctx, `
		UPDATE slot_claims
		SET booked = FALSE, booked_at = NULL
		WHERE slot_key = $1
	`, key.String())
	return err
}

func (l *PGLedger) IsBooked(ctx context.Context, key model.SlotKey) (bool, error) {
	var booked bool
	err := l.pool.QueryRow(ctx, `
		SELECT booked FROM slot_claims WHERE slot_key = $1
	`, key.String()).Scan(&booked)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return booked, nil
}
