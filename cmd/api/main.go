package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/meridianpay/decision-service/internal/config"
	"github.com/meridianpay/decision-service/internal/handler"
	"github.com/meridianpay/decision-service/internal/integrations/bank"
	"github.com/meridianpay/decision-service/internal/jobs"
	"github.com/meridianpay/decision-service/internal/middleware"
	"github.com/meridianpay/decision-service/internal/notifier"
	"github.com/meridianpay/decision-service/internal/repository"
	"github.com/meridianpay/decision-service/internal/scoring"
	"github.com/meridianpay/decision-service/internal/service"
	"github.com/meridianpay/decision-service/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Scoring thresholds are fixed constants loaded once at start.
	scoringCfg := scoring.DefaultConfig()

	// Initialize layers
	repo := repository.NewRepository(db)
	bankClient := bank.NewClient(cfg.BankAPIURL, logger)
	webhookNotifier := notifier.NewNotifier(repo, cfg.LedgerWebhookURL, cfg.WebhookSecret, logger)
	svc := service.NewService(bankClient, repo, webhookNotifier, logger, scoringCfg)
	h := handler.NewHandler(svc, logger)

	var sender *email.Sender
	if cfg.SMTPHost != "" && cfg.OpsEmail != "" {
		sender = email.NewSender(cfg, logger)
	}

	// Background jobs: webhook retry sweep, installment lifecycle,
	// reminder digest.
	runner := jobs.NewRunner(repo, webhookNotifier, sender, logger, cfg.ReminderAhead)
	if err := runner.Start(); err != nil {
		logger.Fatalf("Failed to start background jobs: %v", err)
	}
	defer runner.Stop()

	// Setup router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(middleware.RequestIDMiddleware(logger))
	apiV1.Use(middleware.APIKeyMiddleware(cfg.APIKeyHash))
	apiV1.HandleFunc("/decision", h.MakeDecision).Methods("POST")
	apiV1.HandleFunc("/decision/history", h.GetDecisionHistory).Methods("GET")
	apiV1.HandleFunc("/plan/{id}", h.GetPlan).Methods("GET")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
