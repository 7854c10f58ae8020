package main

import (
	"context"
	"net/http"
	"time"

	"github.com/molave-dental/platform/libs/config"
	"github.com/molave-dental/platform/libs/db"
	"github.com/molave-dental/platform/libs/httpx"
	"github.com/molave-dental/platform/libs/kafkax"
	otelx "github.com/molave-dental/platform/libs/otel"
	"github.com/molave-dental/platform/libs/outbox"
	"github.com/molave-dental/platform/libs/runtime"
	"github.com/molave-dental/platform/services/booking-service/internal/handlers"
	"github.com/molave-dental/platform/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8081")
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

	scheduleRepo := storage.NewScheduleRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool)
	outboxRepo := outbox.NewRepository()

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	availabilityHandler := handlers.NewAvailabilityHandler(scheduleRepo, logger)
	bookingHandler := handlers.NewBookingHandler(bookingRepo, outboxRepo, logger)
	catalogHandler := handlers.NewCatalogHandler(scheduleRepo, bookingRepo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/public/branches", catalogHandler.ListBranches)
	mux.HandleFunc("/api/v1/public/services", catalogHandler.ListServices)
	mux.HandleFunc("/api/v1/public/dentists", catalogHandler.ListDentists)
	mux.HandleFunc("/api/v1/public/patients/lookup", catalogHandler.LookupPatient)
	mux.HandleFunc("/api/v1/public/availability", availabilityHandler.Get)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)

	// The booking form is anonymous; rate limiting is the only brake on
	// abuse. Redis keeps the window shared across replicas, the in-memory
	// limiter covers single-instance deployments without Redis.
	limit := config.Int("RATE_LIMIT_REQUESTS", 60)
	window := time.Duration(config.Int("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
	var limiterMiddleware httpx.Middleware
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer func() { _ = rdb.Close() }()
		failOpen := config.Bool("RATE_LIMIT_FAIL_OPEN", true)
		limiterMiddleware = httpx.NewRedisRateLimiter(rdb, limit, window, service).Middleware(logger, failOpen)
	} else {
		limiterMiddleware = httpx.NewRateLimiter(limit, window).Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		limiterMiddleware,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 15))*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
