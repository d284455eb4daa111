package main

import (
	"context"
	"strings"
	"time"

	api "inboxstats-backend/cmd/api"
	authdomain "inboxstats-backend/internal/auth/domain"
	authRepo "inboxstats-backend/internal/auth/repository"
	authUsecase "inboxstats-backend/internal/auth/usecase"
	"inboxstats-backend/internal/notification"
	statsdomain "inboxstats-backend/internal/stats/domain"
	statsRepo "inboxstats-backend/internal/stats/repository"
	"inboxstats-backend/internal/stats/scheduler"
	statsUsecase "inboxstats-backend/internal/stats/usecase"
	"inboxstats-backend/pkg/config"
	"inboxstats-backend/pkg/database"
	"inboxstats-backend/pkg/events"
	"inboxstats-backend/pkg/fcm"
	"inboxstats-backend/pkg/gmail"
	"inboxstats-backend/pkg/imap"
	"inboxstats-backend/pkg/tinybird"

	log "github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(&authdomain.User{}, &authdomain.RefreshToken{}, &authdomain.FCMToken{}, &statsdomain.LoadRun{}); err != nil {
		log.Fatal("Failed to migrate database: ", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	loadRunRepo := statsRepo.NewLoadRunRepository(db)

	// Mail providers
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)
	imapService := imap.NewService()

	if cfg.TinybirdToken == "" {
		log.Warn("[Tinybird] TINYBIRD_TOKEN not set, loads will be rejected by the API")
	}
	tinybirdClient := tinybird.NewClient(cfg.TinybirdBaseURL, cfg.TinybirdToken)

	ctx := context.Background()

	// Batch events (Pub/Sub), only when a project is configured
	var batchNotifier statsUsecase.BatchNotifier
	if cfg.GoogleProjectID != "" {
		// Extract short topic name from full resource name if necessary
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}

		publisher, err := events.NewPublisher(ctx, cfg.GoogleProjectID, topicName, cfg.GoogleCredentials)
		if err != nil {
			log.WithError(err).Warn("[PubSub] Batch events disabled")
		} else {
			defer publisher.Close()
			batchNotifier = publisher
		}
	} else {
		log.Warn("[PubSub] GOOGLE_PROJECT_ID not configured, batch events disabled")
	}

	// Push notifications (FCM), optional
	var runNotifier statsUsecase.RunNotifier
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials)
		if err != nil {
			log.WithError(err).Warn("[FCM] Failed to initialize FCM client, push notifications disabled")
		} else {
			runNotifier = notification.NewService(fcmTokenRepo, fcmClient)
		}
	} else {
		log.Debug("[FCM] No Firebase credentials configured, FCM disabled")
	}

	// Initialize use cases (dependency injection)
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepo, fcmTokenRepo, gmailService, imapService, cfg)
	mailClients := statsUsecase.NewMailClientFactory(gmailService, imapService, userRepo)
	loadUsecaseInstance := statsUsecase.NewLoadUsecase(mailClients, tinybirdClient, loadRunRepo, batchNotifier, runNotifier, cfg)

	// Runs still marked running past their deadline belong to a dead process
	reaper := scheduler.NewRunReaper(loadRunRepo, cfg.LoadMaxDuration+time.Minute)
	reaper.Start()
	defer reaper.Stop()

	// Initialize HTTP handler
	handler := api.NewHandler(authUsecaseInstance, loadUsecaseInstance, cfg)

	log.Infof("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}

func setupLogging(level string) {
	log.SetFormatter(&log.JSONFormatter{})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("Unknown LOG_LEVEL, using info")
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}
