package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"ledgerline/internal/app"
	"ledgerline/internal/domain/categorization"
	"ledgerline/internal/domain/notification"
	"ledgerline/internal/domain/transaction"
	"ledgerline/internal/infrastructure/firebase"
	"ledgerline/internal/infrastructure/postgres"
	"ledgerline/internal/infrastructure/postgres/listener"
	httphandlers "ledgerline/internal/interfaces/http"
	"ledgerline/internal/shared/auth"
	"ledgerline/internal/shared/config"
	"ledgerline/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	StatementHandler      *httphandlers.StatementHandler
	TransactionHandler    *httphandlers.TransactionHandler
	CategorizationHandler *httphandlers.CategorizationHandler
	NotificationHandler   *httphandlers.NotificationHandler

	// Auth
	JWT *auth.JWT

	// Services driven by background jobs
	Processor           *transaction.Processor
	Categorizer         *categorization.Service
	NotificationService *notification.Service

	// Repositories (for scheduler job provider)
	TransactionRepo *postgres.TransactionRepository
}

// NewDependencies connects to the database, applies the schema and wires
// every service and handler.
func NewDependencies(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	logger.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("connected to database")

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	repos := app.NewRepositories(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Transaction pipeline
	publisher := listener.NewPublisher(db, cfg.Listener.Channel)
	ingestor := transaction.NewIngestor(repos.Raws, repos.Files, publisher, logger)
	processor := app.NewProcessor(cfg, repos, logger)

	// Categorization
	categorizer, err := app.NewCategorizer(ctx, cfg, repos, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Notifications
	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, notificationRepo.DeactivateToken, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("push notifications disabled")
		} else {
			messenger = fcm
		}
	}
	notificationService := notification.NewService(notificationRepo, messenger, logger)
	msgs, err := messages.Load(cfg.Firebase.MessagesFile)
	if err != nil {
		db.Close()
		return nil, err
	}
	notificationService.SetMessages(msgs)

	jwt := auth.NewJWT(cfg.Auth.JWTSecret)

	return &Dependencies{
		DB:                    db,
		StatementHandler:      httphandlers.NewStatementHandler(ingestor, processor, repos.Files, repos.Transactions, logger),
		TransactionHandler:    httphandlers.NewTransactionHandler(repos.Transactions, processor, categorizer, logger),
		CategorizationHandler: httphandlers.NewCategorizationHandler(categorizer, logger),
		NotificationHandler:   httphandlers.NewNotificationHandler(notificationService, logger),
		JWT:                   jwt,
		Processor:             processor,
		Categorizer:           categorizer,
		NotificationService:   notificationService,
		TransactionRepo:       repos.Transactions,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
