package container

import (
	"context"
	"fmt"
	"time"

	"payhook/internal/config"
	outboxrepo "payhook/internal/domains/outbox/repository"
	outboxsvc "payhook/internal/domains/outbox/service"
	txnhandler "payhook/internal/domains/transaction/handler"
	txnrepo "payhook/internal/domains/transaction/repository"
	txnsvc "payhook/internal/domains/transaction/service"
	"payhook/internal/domains/webhook/adapter"
	"payhook/internal/domains/webhook/adapter/flutterwave"
	"payhook/internal/domains/webhook/adapter/paystack"
	"payhook/internal/domains/webhook/adapter/stripe"
	"payhook/internal/domains/webhook/dispatcher"
	webhookhandler "payhook/internal/domains/webhook/handler"
	webhookmodel "payhook/internal/domains/webhook/model"
	"payhook/internal/domains/webhook/pipeline"
	webhookrepo "payhook/internal/domains/webhook/repository"
	webhooksvc "payhook/internal/domains/webhook/service"
	"payhook/internal/infrastructure/cache"
	"payhook/internal/infrastructure/database"
	"payhook/pkg/jwt"
	"payhook/pkg/logger"
)

// Container wires the whole application. Construction order is
// strict: config, infrastructure, repositories, pipeline, services,
// handlers. A failure at any layer aborts startup.
type Container struct {
	Config *config.Config

	// Infrastructure
	DB         *database.PostgresDB
	Cache      *cache.Client
	JWTManager *jwt.Manager

	// Repositories
	TransactionRepo txnrepo.TransactionRepoInterface
	AuditRepo       txnrepo.AuditRepoInterface
	WebhookRepo     webhookrepo.WebhookRepoInterface
	DispatchRepo    webhookrepo.DispatchRepoInterface
	OutboxRepo      outboxrepo.OutboxRepoInterface

	// Ingestion pipeline
	Registry   *adapter.Registry
	Dispatcher *dispatcher.Dispatcher
	Processor  *webhooksvc.Processor

	// Services
	TransactionService txnsvc.TransactionServiceInterface
	AdminService       webhooksvc.AdminServiceInterface
	ExportService      webhooksvc.ExportServiceInterface
	Drainer            *outboxsvc.Drainer

	// Handlers
	TransactionHandler *txnhandler.TransactionHandler
	WebhookHandler     *webhookhandler.WebhookHandler
}

// NewContainer builds the application graph
func NewContainer() (*Container, error) {
	c := &Container{}
	ctx := context.Background()

	// =====================================================
	// 1. CONFIGURATION
	// =====================================================
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg

	// =====================================================
	// 2. INFRASTRUCTURE
	// =====================================================
	db, err := database.NewPostgresDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	c.DB = db

	redisClient, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.Cache = redisClient

	c.JWTManager = jwt.NewManager(cfg.JWT.Secret)

	// =====================================================
	// 3. REPOSITORIES
	// =====================================================
	c.AuditRepo = txnrepo.NewAuditRepository(db.Pool)
	c.TransactionRepo = txnrepo.NewTransactionRepository(db.Pool, c.AuditRepo)
	c.WebhookRepo = webhookrepo.NewWebhookRepository(db.Pool)
	c.DispatchRepo = webhookrepo.NewDispatchRepository(db.Pool)
	c.OutboxRepo = outboxrepo.NewOutboxRepository(db.Pool)

	// =====================================================
	// 4. INGESTION PIPELINE
	// =====================================================
	c.Registry = adapter.NewRegistry(
		adapter.Registration{Adapter: paystack.New(), Secrets: cfg.Providers.PaystackSecrets},
		adapter.Registration{Adapter: stripe.New(), Secrets: cfg.Providers.StripeSecrets},
		adapter.Registration{Adapter: flutterwave.New(), Secrets: cfg.Providers.FlutterwaveSecrets},
	)

	c.Dispatcher = dispatcher.NewDispatcher(c.DispatchRepo, defaultBindings()...)

	runInTx := pipeline.PoolTxRunner(db.Pool)
	stages := pipeline.BuildStages(pipeline.Deps{
		Registry:    c.Registry,
		RunInTx:     runInTx,
		WebhookRepo: c.WebhookRepo,
		TxnRepo:     c.TransactionRepo,
		AuditRepo:   c.AuditRepo,
		OutboxRepo:  c.OutboxRepo,
		Cache:       c.Cache,
		Dispatcher:  c.Dispatcher,
		Options: pipeline.Options{
			AutoCreateTransactions: cfg.Webhook.AutoCreateTransactions,
			OutboxEnabled:          cfg.Webhook.OutboxEnabled,
			RedactKeys:             cfg.Webhook.RedactKeys,
			SkipSignatureCheck:     cfg.Webhook.SkipSignatureVerification,
		},
	})

	c.Processor = webhooksvc.NewProcessor(
		stages,
		c.WebhookRepo,
		time.Duration(cfg.Webhook.TimeoutMs)*time.Millisecond,
		webhooksvc.Hooks{},
	)

	// =====================================================
	// 5. SERVICES
	// =====================================================
	c.TransactionService = txnsvc.NewTransactionService(
		c.TransactionRepo,
		c.AuditRepo,
		txnsvc.TxRunner(runInTx),
	)
	c.AdminService = webhooksvc.NewAdminService(c.WebhookRepo, c.DispatchRepo)
	c.ExportService = webhooksvc.NewExportService(c.WebhookRepo, c.TransactionRepo)
	c.Drainer = outboxsvc.NewDrainer(c.OutboxRepo, c.Dispatcher, outboxsvc.DefaultBatchSize, 0)

	// =====================================================
	// 6. HANDLERS
	// =====================================================
	c.TransactionHandler = txnhandler.NewTransactionHandler(c.TransactionService)
	c.WebhookHandler = webhookhandler.NewWebhookHandler(c.Processor, c.AdminService, c.ExportService)

	logger.Info("container initialized", map[string]interface{}{
		"environment": cfg.App.Environment,
		"providers":   c.Registry.Providers(),
	})
	return c, nil
}

// defaultBindings subscribes the baseline handlers. Applications
// embedding payhook register their own; the event logger keeps the
// dispatch path observable even with none.
func defaultBindings() []dispatcher.Binding {
	return []dispatcher.Binding{
		{
			Handler: dispatcher.NewHandlerFunc("event-logger", func(_ context.Context, payload *webhookmodel.DispatchPayload) error {
				fields := map[string]interface{}{
					"event_type":     payload.EventType,
					"webhook_log_id": payload.WebhookLogID,
				}
				if payload.TransactionID != nil {
					fields["transaction_id"] = payload.TransactionID
				}
				logger.Info("event dispatched", fields)
				return nil
			}),
		},
	}
}

// Cleanup releases infrastructure connections
func (c *Container) Cleanup() {
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			logger.Error("failed to close redis", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
