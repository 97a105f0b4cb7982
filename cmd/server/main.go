package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/sympfindx-server/internal/api"
	"github.com/sympfindx-server/internal/casestore"
	"github.com/sympfindx-server/internal/config"
	"github.com/sympfindx-server/internal/database"
	"github.com/sympfindx-server/internal/domain"
	"github.com/sympfindx-server/internal/service"
	"github.com/sympfindx-server/pkg/classifier"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)

	store, err := buildStore(configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize case store")
	}
	defer store.Close()

	image, symptom, err := buildClassifiers(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize classifier clients")
	}

	specialists := cfg.Routing.Specialists
	if specialists == nil {
		specialists = domain.DefaultSpecialistDirectory()
	}
	policy := domain.NewRoutingPolicy(specialists)

	hub := api.NewHub(logger)
	triage := service.NewTriageService(logger, store, image, symptom, policy, cfg.Fusion, hub)
	review := service.NewReviewService(logger, store, hub)

	server := api.NewServer(logger, cfg.Server, triage, review, store, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"host":   cfg.Server.Host,
		"port":   cfg.Server.Port,
		"store":  cfg.Store.Driver,
		"cached": cfg.Cache.Enabled,
	}).Info("Starting SympFindX triage server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// newLogger builds the process logger from configuration.
func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}

// buildStore assembles the configured case store, running migrations for
// PostgreSQL and layering the read cache when enabled.
func buildStore(configManager *config.Manager, logger *logrus.Logger) (casestore.Store, error) {
	cfg := configManager.GetStoreConfig()

	var store casestore.Store
	switch cfg.Driver {
	case "postgres":
		runner, err := database.NewMigrationRunner(configManager.PostgresURL(), cfg.Postgres.MigrationsPath, logger)
		if err != nil {
			return nil, err
		}
		if err := runner.Up(); err != nil {
			runner.Close()
			return nil, err
		}
		runner.Close()

		store, err = casestore.NewPostgresStoreFromURL(configManager.PostgresURL())
		if err != nil {
			return nil, err
		}
	default:
		var err error
		store, err = casestore.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
	}

	if cfg.ReadCacheSize > 0 {
		cached, err := casestore.NewCachedStore(store, cfg.ReadCacheSize)
		if err != nil {
			store.Close()
			return nil, err
		}
		return cached, nil
	}
	return store, nil
}

// buildClassifiers assembles the classifier clients with their optional
// Redis response cache and the circuit breaker layer.
func buildClassifiers(cfg *domain.Config, logger *logrus.Logger) (classifier.ImageClassifier, classifier.SymptomClassifier, error) {
	var image classifier.ImageClassifier = classifier.NewImageClient(cfg.Classifiers.Image)
	var symptom classifier.SymptomClassifier = classifier.NewSymptomClient(cfg.Classifiers.Text)

	if cfg.Cache.Enabled {
		cache, err := classifier.NewCacheClient(cfg.Cache)
		if err != nil {
			return nil, nil, err
		}
		image = classifier.NewCachedImageClassifier(image, cache)
		symptom = classifier.NewCachedSymptomClassifier(symptom, cache)
	}

	resilient := classifier.NewResilientClient(image, symptom, logger)
	return resilient, resilient, nil
}
