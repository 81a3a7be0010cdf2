package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/traintrack/traintrack/pkg/attendance"
	"github.com/traintrack/traintrack/pkg/auth"
	"github.com/traintrack/traintrack/pkg/config"
	"github.com/traintrack/traintrack/pkg/mail"
	"github.com/traintrack/traintrack/pkg/middleware"
	"github.com/traintrack/traintrack/pkg/observability"
	"github.com/traintrack/traintrack/pkg/quiz"
	"github.com/traintrack/traintrack/pkg/storage/postgres"
	"github.com/traintrack/traintrack/pkg/users"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, os.Stdout)
	logger.Info("starting traintrack")

	db, err := postgres.Connect(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.Migrate(context.Background(), db); err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}

	sessions, err := auth.NewSessionStore(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}
	defer sessions.Close()

	userStore := postgres.NewUserStore(db)
	attendanceStore := postgres.NewAttendanceStore(db)
	quizStore := postgres.NewQuizStore(db)
	resetStore := postgres.NewPasswordResetStore(db)

	codec := auth.NewTokenCodec(
		[]byte(cfg.Auth.JWTSecret),
		[]byte(cfg.Auth.ResetSecret),
		cfg.Auth.SessionTTL,
		cfg.Auth.ResetTTL,
	)

	var mailer mail.Sender
	if cfg.Mail.Host != "" {
		mailer = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
	} else {
		logger.Warn("no SMTP relay configured, OTP mail will be suppressed")
		mailer = mail.NewLogSender(logger)
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	authService := auth.NewService(userStore, resetStore, sessions, codec, mailer, logger)
	userService := users.NewService(userStore, logger)
	attendanceService := attendance.NewService(attendanceStore, userStore, logger)
	quizService := quiz.NewService(quizStore, attendanceStore, userStore, logger)

	guard := middleware.NewGuard(codec, sessions, metrics)

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Metrics(metrics))

	users.NewHandlers(userService, authService, metrics, logger).
		RegisterRoutes(router.PathPrefix("/api/users").Subrouter(), guard)
	attendance.NewHandlers(attendanceService, logger).
		RegisterRoutes(router.PathPrefix("/api/attendance").Subrouter(), guard)
	quiz.NewHandlers(quizService, logger).
		RegisterRoutes(router.PathPrefix("/api/quizzes").Subrouter(), guard)

	// Hourly reaper for expired password-reset tickets. Expiry is also
	// checked at redemption time; this keeps the table from accumulating
	// dead rows.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", func() {
		reaped, err := resetStore.DeleteExpired(context.Background(), time.Now())
		if err != nil {
			logger.WithError(err).Error("reset ticket reaper failed")
			return
		}
		if reaped > 0 {
			logger.WithField("reaped", reaped).Info("expired reset tickets removed")
		}
	}); err != nil {
		logger.WithError(err).Error("failed to schedule reset ticket reaper")
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	health := observability.NewHealthChecker(db, sessions.Client())
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	healthMux.Handle("/metrics", metrics.Handler())

	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("api server listening")
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("api server failed")
			os.Exit(1)
		}
	case sig := <-stop:
		logger.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("api server shutdown failed")
	}
	if err := healthServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("health server shutdown failed")
	}

	logger.Info("shutdown complete")
}
