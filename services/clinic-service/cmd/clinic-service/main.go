package main

import (
	"context"
	"net/http"
	"time"

	"github.com/molave-dental/platform/libs/config"
	"github.com/molave-dental/platform/libs/db"
	"github.com/molave-dental/platform/libs/httpx"
	otelx "github.com/molave-dental/platform/libs/otel"
	"github.com/molave-dental/platform/libs/runtime"
	"github.com/molave-dental/platform/services/clinic-service/internal/handlers"
	"github.com/molave-dental/platform/services/clinic-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "clinic-service")
	port, err := config.Port("PORT", "8082")
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

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	repo := storage.NewRepository(pool)
	h := handlers.New(repo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/branches", h.Branches)
	api.HandleFunc("/api/v1/dentists", h.Dentists)
	api.HandleFunc("/api/v1/dentists/schedules", h.Schedules)
	api.HandleFunc("/api/v1/services", h.Services)
	api.HandleFunc("/api/v1/closures", h.Closures)
	api.HandleFunc("/api/v1/patients", h.Patients)
	api.HandleFunc("/api/v1/appointments", h.Appointments)
	api.HandleFunc("/api/v1/appointments/status", h.UpdateAppointmentStatus)
	api.HandleFunc("/api/v1/appointments/remind", h.SendReminder)
	api.HandleFunc("/api/v1/jobs", h.Jobs)
	mux.Handle("/api/v1/", handlers.RequireAuth(api, jwtSecret))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 15))*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "clinic")
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
