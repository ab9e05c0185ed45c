package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/anathi-mjali/branchbook/libs/config"
	"github.com/anathi-mjali/branchbook/libs/db"
	"github.com/anathi-mjali/branchbook/libs/httpx"
	"github.com/anathi-mjali/branchbook/libs/kafkax"
	otelx "github.com/anathi-mjali/branchbook/libs/otel"
	"github.com/anathi-mjali/branchbook/libs/runtime"
	"github.com/anathi-mjali/branchbook/services/audit-service/internal/consumer"
	"github.com/anathi-mjali/branchbook/services/audit-service/internal/inbox"
	"github.com/anathi-mjali/branchbook/services/audit-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "audit-service")
	port, err := config.Port("PORT", "8086")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	auditRepo := storage.NewAuditRepository(pool)
	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "audit-service")

	handleAppointmentEvent := func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string    `json:"appointment_id"`
			Reference     string    `json:"reference"`
			BranchID      string    `json:"branch_id"`
			CustomerID    string    `json:"customer_id"`
			OccurredAt    time.Time `json:"occurred_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid appointment payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.AppointmentID == "" {
			logger.Error("missing appointment_id", "topic", msg.Topic)
			return nil
		}
		if payload.OccurredAt.IsZero() {
			payload.OccurredAt = time.Now().UTC()
		}

		meta := kafkax.ExtractEventMeta(msg)
		if err := auditRepo.Append(ctx, storage.Entry{
			EventID:       meta.EventID,
			EventType:     meta.EventType,
			AppointmentID: payload.AppointmentID,
			Reference:     payload.Reference,
			BranchID:      payload.BranchID,
			CustomerID:    payload.CustomerID,
			OccurredAt:    payload.OccurredAt,
			Payload:       msg.Value,
		}); err != nil {
			logger.Error("audit append failed", "err", err, "event_id", meta.EventID)
			return err
		}
		logger.Info("audit entry recorded", "event_type", meta.EventType, "appointment_id", payload.AppointmentID)
		return nil
	}

	appointmentTopics := strings.Split(config.String("AUDIT_TOPICS",
		"appointment.booked.v1,appointment.customer_cancelled.v1,appointment.customer_rescheduled.v1,appointment.completed.v1"), ",")
	for _, topic := range appointmentTopics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		c := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handleAppointmentEvent)
		go c.Run(ctx)
	}

	dlqConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   config.String("DEAD_LETTER_TOPIC", "appointment.deadletter.v1"),
	}, func(ctx context.Context, msg kafka.Message) error {
		var envelope struct {
			EventID     string          `json:"event_id"`
			EventType   string          `json:"event_type"`
			AggregateID string          `json:"aggregate_id"`
			Reason      string          `json:"reason"`
			Payload     json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			logger.Error("invalid dead letter envelope", "err", err)
			return nil
		}
		if envelope.EventID == "" {
			logger.Error("missing dead letter event_id")
			return nil
		}

		if err := auditRepo.AppendDeadLetter(ctx, storage.DeadLetter{
			EventID:     envelope.EventID,
			EventType:   envelope.EventType,
			AggregateID: envelope.AggregateID,
			Reason:      envelope.Reason,
			Payload:     envelope.Payload,
		}); err != nil {
			logger.Error("dead letter append failed", "err", err, "event_id", envelope.EventID)
			return err
		}
		logger.Warn("dead letter recorded", "event_id", envelope.EventID, "event_type", envelope.EventType, "reason", envelope.Reason)
		return nil
	})
	go dlqConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/audit/trail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
		if appointmentID == "" {
			http.Error(w, "appointment_id required", http.StatusBadRequest)
			return
		}
		entries, err := auditRepo.Trail(r.Context(), appointmentID)
		if err != nil {
			logger.Error("trail query failed", "err", err, "appointment_id", appointmentID)
			http.Error(w, "failed to load trail", http.StatusInternalServerError)
			return
		}
		type trailItem struct {
			EventID    string          `json:"event_id"`
			EventType  string          `json:"event_type"`
			OccurredAt time.Time       `json:"occurred_at"`
			Payload    json.RawMessage `json:"payload"`
		}
		items := make([]trailItem, 0, len(entries))
		for _, e := range entries {
			items = append(items, trailItem{
				EventID:    e.EventID,
				EventType:  e.EventType,
				OccurredAt: e.OccurredAt,
				Payload:    e.Payload,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"appointment_id": appointmentID, "entries": items})
	})

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "audit")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
