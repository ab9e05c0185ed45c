package ratelimit

import (
	"context"
	"time"
)

// Purpose scopes a limit to the operation being protected. The same
// identifier can be limited independently per purpose.
type Purpose string

const (
	PurposeBooking        Purpose = "booking"
	PurposeOTPRequest     Purpose = "otp_request"
	PurposePasswordVerify Purpose = "password_verify"
)

// Record is the sliding-window state for one (identifier, purpose) pair.
type Record struct {
	Identifier    string
	Purpose       Purpose
	Attempts      int
	WindowStartAt time.Time
	LastAttemptAt time.Time
}

// Store keeps rate-limit records. RecordAttempt must be atomic per key: two
// concurrent attempts for the same key are both counted.
type Store interface {
	RecordAttempt(ctx context.Context, identifier string, purpose Purpose, window time.Duration, now time.Time) (Record, error)
	Get(ctx context.Context, identifier string, purpose Purpose) (Record, bool, error)
	Delete(ctx context.Context, identifier string, purpose Purpose) error
}

// Service evaluates sliding windows and cooldowns over a Store. The wall
// clock is read once per call so window-expiry decisions stay consistent
// within a single call.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordAttempt starts a new window (count 1) when none exists or the
// current one has elapsed, otherwise increments within the window.
// LastAttemptAt always moves to now.
func (s *Service) RecordAttempt(ctx context.Context, identifier string, purpose Purpose, window time.Duration) (Record, error) {
	return s.store.RecordAttempt(ctx, identifier, purpose, window, s.now())
}

// IsLimitExceeded reports whether the live window has reached maxAttempts.
// An absent or expired record never limits.
func (s *Service) IsLimitExceeded(ctx context.Context, identifier string, purpose Purpose, maxAttempts int, window time.Duration) (bool, error) {
	now := s.now()
	rec, ok, err := s.store.Get(ctx, identifier, purpose)
	if err != nil || !ok {
		return false, err
	}
	if now.Sub(rec.WindowStartAt) >= window {
		return false, nil
	}
	return rec.Attempts >= maxAttempts, nil
}

// IsCooldownPassed reports whether at least cooldown has elapsed since the
// last attempt. No record means no cooldown to wait out.
func (s *Service) IsCooldownPassed(ctx context.Context, identifier string, purpose Purpose, cooldown time.Duration) (bool, error) {
	now := s.now()
	rec, ok, err := s.store.Get(ctx, identifier, purpose)
	if err != nil || !ok {
		return err == nil, err
	}
	return now.Sub(rec.LastAttemptAt) >= cooldown, nil
}

// Reset deletes the record, clearing both the window and the cooldown.
// Called on a successful terminal action.
func (s *Service) Reset(ctx context.Context, identifier string, purpose Purpose) error {
	return s.store.Delete(ctx, identifier, purpose)
}
