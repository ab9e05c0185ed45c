package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/anathi-mjali/branchbook/libs/config"
	"github.com/anathi-mjali/branchbook/libs/db"
	"github.com/anathi-mjali/branchbook/libs/httpx"
	"github.com/anathi-mjali/branchbook/libs/kafkax"
	otelx "github.com/anathi-mjali/branchbook/libs/otel"
	"github.com/anathi-mjali/branchbook/libs/runtime"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/availability"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/booking"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/dispatch"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/event"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/handlers"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/holiday"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/ledger"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/ratelimit"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	brokers := config.String("KAFKA_BROKERS", "")
	publisher := dispatch.NewKafkaPublisher(brokers, config.Seconds("KAFKA_WRITE_TIMEOUT_SECONDS", 5*time.Second))
	defer func() { _ = publisher.Close() }()

	retryRepo := storage.NewRetryRepository(pool)
	deadLetters := dispatch.NewKafkaDeadLetterSink(publisher, config.String("DEAD_LETTER_TOPIC", event.TopicAppointmentDeadLetters), logger)
	dispatcher := dispatch.NewDispatcher(publisher, retryRepo, deadLetters, logger)
	sweeper := dispatch.NewSweeper(dispatcher, logger,
		config.Seconds("RETRY_SWEEP_SECONDS", 5*time.Second),
		config.Int("RETRY_BATCH_SIZE", 50))
	go sweeper.Run(ctx)

	limiterStore, limiterReady := buildLimiterStore(ctx, logger)
	limiter := ratelimit.NewService(limiterStore)
	limits := handlers.Limits{
		MaxAttempts: config.Int("BOOKING_MAX_ATTEMPTS", 5),
		Window:      config.Minutes("BOOKING_WINDOW_MINUTES", 30*time.Minute),
		Cooldown:    config.Minutes("BOOKING_COOLDOWN_MINUTES", 15*time.Minute),
	}

	hoursRepo := storage.NewHoursRepository(pool)
	apptRepo := storage.NewAppointmentRepository(pool)
	holidays := holiday.NewNagerClient(
		config.String("HOLIDAY_COUNTRY", "ZA"),
		config.Seconds("HOLIDAY_TIMEOUT_SECONDS", 5*time.Second),
	)
	slots := availability.NewProvider(hoursRepo, holidays, apptRepo,
		config.Minutes("SLOT_DURATION_MINUTES", 30*time.Minute))

	bookings := booking.NewService(slots, ledger.NewPGLedger(pool), apptRepo, dispatcher, logger)

	bookingHandler := handlers.NewBookingHandler(bookings, slots, apptRepo, limiter, limits, logger)
	hoursHandler := handlers.NewHoursHandler(hoursRepo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	if limiterReady != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: limiterReady})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/appointments/reschedule", bookingHandler.Reschedule)
	mux.HandleFunc("/api/v1/appointments/complete", bookingHandler.Complete)
	mux.HandleFunc("/api/v1/branches/hours/override", hoursHandler.SetOverride)

	perIP := httpx.NewRateLimiter(config.Int("HTTP_RATE_LIMIT_PER_MINUTE", 120), time.Minute)
	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id")),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		perIP.Middleware(),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// buildLimiterStore prefers Redis so the booking rate limit holds across
// instances; without REDIS_ADDR it degrades to a per-process store with a
// background janitor.
func buildLimiterStore(ctx context.Context, logger *slog.Logger) (ratelimit.Store, func(context.Context) error) {
	addr := strings.TrimSpace(config.String("REDIS_ADDR", ""))
	if addr == "" {
		store := ratelimit.NewMemoryStore()
		go store.Janitor(ctx, logger, config.Minutes("RATE_LIMIT_JANITOR_MINUTES", 10*time.Minute))
		logger.Info("rate limiting store: in-memory")
		return store, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	go func() {
		<-ctx.Done()
		_ = rdb.Close()
	}()
	logger.Info("rate limiting store: redis", "redis_addr", addr)
	return ratelimit.NewRedisStore(rdb, config.String("RATE_LIMIT_PREFIX", "rl")),
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}
