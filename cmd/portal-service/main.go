package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/opalhealth/backend/pkg/accessrequest"
	"github.com/opalhealth/backend/pkg/common/config"
	"github.com/opalhealth/backend/pkg/common/database"
	"github.com/opalhealth/backend/pkg/common/kafka"
	"github.com/opalhealth/backend/pkg/common/logger"
	"github.com/opalhealth/backend/pkg/common/middleware"
	"github.com/opalhealth/backend/pkg/institution"
	"github.com/opalhealth/backend/pkg/registration"
	"github.com/opalhealth/backend/pkg/relationships"
)

func main() {
	logger.Init()
	cfg := config.Load()

	settings, err := institution.Load(cfg.InstitutionSettingsPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load institution settings")
	}

	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres(db)

	repo := relationships.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate tables")
	}

	relService := relationships.NewService(repo)
	if err := relService.SeedDefaults(context.Background()); err != nil {
		logger.Log.WithError(err).Fatal("failed to seed relationship types")
	}

	redisClient, err := database.ConnectRedis(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaEventTopic)
	defer producer.Close()

	var legacy accessrequest.LegacyInitializer
	if cfg.LegacyBaseURL != "" {
		legacy = accessrequest.NewLegacyClient(cfg.LegacyBaseURL, cfg.LegacyTimeout)
	}
	var notifiers []accessrequest.PatientNotifier
	for _, baseURL := range cfg.IntegrationBaseURLs {
		notifiers = append(notifiers, accessrequest.NewIntegrationClient(baseURL, cfg.IntegrationTimeout))
	}
	var consent accessrequest.ConsentSeeder
	if cfg.DatabankEnabled && cfg.DatabankBaseURL != "" {
		consent = accessrequest.NewDatabankClient(cfg.DatabankBaseURL, cfg.IntegrationTimeout)
	}

	arService := accessrequest.NewService(
		accessrequest.NewStore(repo),
		settings,
		legacy,
		notifiers,
		consent,
		producer,
	)

	regService := registration.NewService(repo, redisClient, nil, registration.Options{
		CodeValidity: cfg.RegistrationCodeValidity,
		MaxAttempts:  cfg.RegistrationMaxAttempts,
		VerifyTTL:    cfg.VerificationCodeTTL,
	})

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	relationships.NewHandler(relService).Register(api)
	accessrequest.NewHandler(arService).Register(api)
	registration.NewHandler(regService).Register(api)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      http.MaxBytesHandler(router, cfg.MaxRequestBody),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("Portal service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start portal service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down portal service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Portal service forced to shutdown")
	}
	logger.Log.Info("Portal service stopped")
}
