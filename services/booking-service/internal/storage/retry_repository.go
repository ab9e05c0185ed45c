package storage

import (
	"context"
	"time"

	"github.com/anathi-mjali/branchbook/libs/db"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/dispatch"
)

// RetryRepository backs the event retry queue with Postgres. FetchDue claims
// rows by flipping them to processing inside a single statement, so several
// sweeper instances can poll the same table without double delivery.
type RetryRepository struct {
	pool *db.Pool
}

func NewRetryRepository(pool *db.Pool) *RetryRepository {
	return &RetryRepository{pool: pool}
}

func (r *RetryRepository) Insert(ctx context.Context, rec dispatch.RetryRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO retry_events
			(event_id, event_type, aggregate_id, payload, attempts, next_retry_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`, rec.EventID, rec.EventType, rec.AggregateID, rec.Payload, rec.Attempts, rec.NextRetryAt,
		rec.Traceparent, rec.Tracestate)
	return err
}

func (r *RetryRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]dispatch.RetryRecord, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE retry_events
		SET status = 'processing', updated_at = now()
		WHERE id IN (
			SELECT id FROM retry_events
			WHERE status = 'pending' AND next_retry_at <= $1
			ORDER BY next_retry_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_id, event_type, aggregate_id, payload, attempts, next_retry_at,
			COALESCE(last_error, ''), COALESCE(traceparent, ''), COALESCE(tracestate, '')
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []dispatch.RetryRecord
	for rows.Next() {
		var rec dispatch.RetryRecord
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.EventType, &rec.AggregateID, &rec.Payload,
			&rec.Attempts, &rec.NextRetryAt, &rec.LastError, &rec.Traceparent, &rec.Tracestate); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return recs, nil
}

func (r *RetryRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM retry_events WHERE id = $1`, id)
	return err
}

func (r *RetryRepository) MarkFailed(ctx context.Context, id int64, attempts int, nextRetryAt time.Time, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE retry_events
		SET status = 'pending',
			attempts = $2,
			next_retry_at = $3,
			last_error = $4,
			updated_at = now()
		WHERE id = $1
	`, id, attempts, nextRetryAt, lastError)
	return err
}

func (r *RetryRepository) MarkDead(ctx context.Context, id int64, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE retry_events
		SET status = 'dead',
			last_error = $2,
			updated_at = now()
		WHERE id = $1
	`, id, lastError)
	return err
}
