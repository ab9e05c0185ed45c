package dispatch

import (
	"context"
	"time"
)

// Outcome of a Dispatch call.
type Outcome int

const (
	Delivered Outcome = iota
	Scheduled
	DeadLettered
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Scheduled:
		return "scheduled"
	default:
		return "dead_lettered"
	}
}

type Result struct {
	Outcome     Outcome
	NextRetryAt time.Time
}

// Publisher hands an event to the message bus. Implementations bound the
// write with a timeout; a timeout is a transient failure.
type Publisher interface {
	Publish(ctx context.Context, eventType, aggregateID, eventID string, payload []byte) error
}

// RetryRecord is a domain event parked for redelivery.
type RetryRecord struct {
	ID          int64
	EventID     string
	EventType   string
	AggregateID string
	Payload     []byte
	Attempts    int
	NextRetryAt time.Time
	Dead        bool
	LastError   string
	Traceparent string
	Tracestate  string
}

// RetryStore persists retry records. FetchDue claims due records so that two
// concurrent sweeps never process the same event; a claimed record becomes
// visible again only through Delete, MarkFailed or MarkDead.
type RetryStore interface {
	Insert(ctx context.Context, rec RetryRecord) error
	FetchDue(ctx context.Context, now time.Time, limit int) ([]RetryRecord, error)
	Delete(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, nextRetryAt time.Time, lastError string) error
	MarkDead(ctx context.Context, id int64, lastError string) error
}

// DeadLetterSink receives events that exhausted the retry budget.
type DeadLetterSink interface {
	Quarantine(ctx context.Context, rec RetryRecord, reason string) error
}

// MaxRetries is the retry budget; the failure after the last scheduled retry
// dead-letters the event.
const MaxRetries = 5

// backoffDelay returns the delay before the given retry attempt:
// 10s, 20s, 40s, then capped at 60s.
func backoffDelay(attempt int) time.Duration {
	switch attempt {
	case 1:
		return 10 * time.Second
	case 2:
		return 20 * time.Second
	case 3:
		return 40 * time.Second
	default:
		return 60 * time.Second
	}
}
