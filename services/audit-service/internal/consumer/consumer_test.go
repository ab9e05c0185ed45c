package consumer

import (
	"context"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
)

type memDeduper struct {
	seen map[string]struct{}
}

func (d *memDeduper) Record(_ context.Context, eventID, _ string) (bool, error) {
	if _, ok := d.seen[eventID]; ok {
		return false, nil
	}
	d.seen[eventID] = struct{}{}
	return true, nil
}

func testMessage(eventID string) kafka.Message {
	return kafka.Message{
		Topic: "appointment.booked.v1",
		Value: []byte(`{"appointment_id":"a1"}`),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(eventID)},
			{Key: "event_type", Value: []byte("appointment.booked.v1")},
		},
	}
}

func TestProcess_RedeliveryIsIdempotent(t *testing.T) {
	handled := 0
	c := &Consumer{
		logger: slog.New(slog.DiscardHandler),
		inbox:  &memDeduper{seen: map[string]struct{}{}},
		handler: func(context.Context, kafka.Message) error {
			handled++
			return nil
		},
	}

	msg := testMessage("evt-1")
	c.process(context.Background(), msg)
	c.process(context.Background(), msg)
	c.process(context.Background(), msg)

	if handled != 1 {
		t.Fatalf("redelivered message handled %d times, want 1", handled)
	}
}

func TestProcess_DistinctEventsAllHandled(t *testing.T) {
	var ids []string
	c := &Consumer{
		logger: slog.New(slog.DiscardHandler),
		inbox:  &memDeduper{seen: map[string]struct{}{}},
		handler: func(_ context.Context, msg kafka.Message) error {
			for _, h := range msg.Headers {
				if h.Key == "event_id" {
					ids = append(ids, string(h.Value))
				}
			}
			return nil
		},
	}

	c.process(context.Background(), testMessage("evt-1"))
	c.process(context.Background(), testMessage("evt-2"))

	if len(ids) != 2 || ids[0] != "evt-1" || ids[1] != "evt-2" {
		t.Fatalf("handled ids = %v, want [evt-1 evt-2]", ids)
	}
}
