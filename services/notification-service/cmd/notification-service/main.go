package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/molave-dental/platform/libs/config"
	"github.com/molave-dental/platform/libs/db"
	"github.com/molave-dental/platform/libs/httpx"
	"github.com/molave-dental/platform/libs/kafkax"
	otelx "github.com/molave-dental/platform/libs/otel"
	"github.com/molave-dental/platform/libs/runtime"
	"github.com/molave-dental/platform/services/notification-service/internal/consumer"
	"github.com/molave-dental/platform/services/notification-service/internal/email"
	"github.com/molave-dental/platform/services/notification-service/internal/inbox"
	"github.com/molave-dental/platform/services/notification-service/internal/jobs"
	"github.com/segmentio/kafka-go"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
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

	var emailer email.Sender
	if host := config.String("SMTP_HOST", ""); host != "" {
		emailer = email.NewSMTPSender(host, config.String("SMTP_PORT", "1025"), config.String("SMTP_FROM", ""))
	}
	fallback := email.NewLogSender(logger)

	jobsRepo := jobs.NewRepository(pool)
	worker := jobs.NewWorker(pool, jobsRepo, emailer, fallback, logger, jobs.WorkerConfig{
		Interval:  time.Duration(config.Int("WORKER_INTERVAL_SECONDS", 2)) * time.Second,
		BatchSize: config.Int("WORKER_BATCH_SIZE", 50),
	})
	go worker.Run(ctx)

	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		inboxRepo := inbox.NewRepository(pool)
		groupID := config.String("KAFKA_GROUP_ID", "notification-service")

		// Both event payloads carry appointmentId; the jobs table tells the
		// worker what to send. The poller stays on as backstop for events
		// that never arrive.
		handle := func(hctx context.Context, msg kafka.Message) error {
			var payload struct {
				AppointmentID string `json:"appointmentId"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.AppointmentID == "" {
				return nil
			}
			return worker.ProcessAppointmentJobs(hctx, payload.AppointmentID)
		}

		topics := []string{
			config.String("KAFKA_CONSUME_TOPIC", "clinic.appointment.booked.v1"),
			config.String("KAFKA_CONSUME_TOPIC_2", "clinic.reminder.requested.v1"),
		}
		for _, topic := range topics {
			eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
				Brokers: brokers,
				GroupID: groupID,
				Topic:   topic,
			}, handle)
			go eventConsumer.Run(ctx)
		}
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
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
