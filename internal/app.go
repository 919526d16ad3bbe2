// internal/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	router "chatpay-wallet/internal/api"
	"chatpay-wallet/internal/api/handler"
	"chatpay-wallet/internal/assistant"
	"chatpay-wallet/internal/config"
	"chatpay-wallet/internal/gateway"
	"chatpay-wallet/internal/lock"
	"chatpay-wallet/internal/repository"
	"chatpay-wallet/internal/repository/sqlstore"
	"chatpay-wallet/internal/security"
	"chatpay-wallet/internal/service"
	"chatpay-wallet/internal/util"
	"chatpay-wallet/internal/validator"
	"chatpay-wallet/pkg/db"
)

// Application holds all the initialized components of the application.
type Application struct {
	Config *config.AppConfig
	Rules  *config.Rules
	Logger *slog.Logger
	DB     *sqlx.DB
	Redis  redis.UniversalClient // nil unless LOCK_BACKEND=redis

	// Repositories
	AccountRepository      repository.AccountRepository
	TransactionRepository  repository.TransactionRepository
	BeneficiaryRepository  repository.BeneficiaryRepository
	ConversationRepository repository.ConversationRepository

	// Collaborators
	Locker    lock.Locker
	Gateway   gateway.Gateway
	Assistant assistant.Assistant

	// Services
	AccountService     service.AccountService
	LedgerService      service.LedgerService
	BeneficiaryService service.BeneficiaryService
	PINService         *security.PINService
	ChatService        service.ChatService

	// HTTP API
	HTTPHandler http.Handler
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize loads the configuration from the environment and initializes
// all application components.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return app.InitializeWithConfig(ctx, cfg)
}

// InitializeWithConfig initializes all application components from cfg.
func (app *Application) InitializeWithConfig(ctx context.Context, cfg *config.AppConfig) error {
	app.Config = cfg

	// 2. Initialize Logger
	util.InitLogger(cfg.LogLevel)
	app.Logger = util.GetLogger()
	app.Logger.Info("Application configuration loaded successfully.")

	// 3. Load the money policy
	policy := config.DefaultPolicy()
	if cfg.PolicyFile != "" {
		loaded, err := config.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("failed to load policy: %w", err)
		}
		policy = loaded
	}
	rules, err := policy.Rules()
	if err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	app.Rules = rules

	// 4. Connect to Database
	database, err := db.NewDB(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	app.Logger.Info("Database connection established.", "driver", database.DriverName())

	if cfg.DB.AutoMigrate {
		if err := db.Migrate(app.DB); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		app.Logger.Info("Database schema is up to date.")
	}

	// 5. Initialize Repositories
	app.AccountRepository = sqlstore.NewAccountStore(app.DB)
	app.TransactionRepository = sqlstore.NewTransactionStore(app.DB)
	app.BeneficiaryRepository = sqlstore.NewBeneficiaryStore(app.DB)
	app.ConversationRepository = sqlstore.NewConversationStore(app.DB)
	app.Logger.Info("Repositories initialized.")

	// 6. Initialize Collaborators
	if err := app.initLocker(ctx); err != nil {
		return err
	}
	app.initGateway()
	app.initAssistant()
	app.Logger.Info("Collaborators initialized.", "lock", cfg.Lock.Backend, "gateway", cfg.Gateway.Mode, "assistant", cfg.Assistant.Mode)

	// 7. Initialize Services
	app.AccountService = service.NewAccountService(app.DB, app.AccountRepository, rules.DailyLimit, rules.MonthlyLimit, app.Logger)
	app.LedgerService = service.NewLedgerService(
		app.DB, // This is the DBTxBeginner
		app.DB, // This is the DBExecutor
		app.AccountRepository,
		app.TransactionRepository,
		app.BeneficiaryRepository,
		security.NewFraudDetector(app.TransactionRepository, rules.Fraud),
		app.Gateway,
		app.Locker,
		service.LedgerConfig{
			Fees:           rules.Fees,
			MinAmount:      rules.MinAmount,
			MaxAmount:      rules.MaxAmount,
			DailyLimit:     rules.DailyLimit,
			MonthlyLimit:   rules.MonthlyLimit,
			GatewayTimeout: cfg.Gateway.Timeout,
		},
		app.Logger,
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
	)
	app.BeneficiaryService = service.NewBeneficiaryService(app.DB, app.BeneficiaryRepository, app.Logger)
	app.PINService = security.NewPINService(app.DB, app.AccountRepository, app.Locker, rules.PIN, app.Logger)

	chatCfg := service.DefaultChatConfig()
	chatCfg.AssistantTimeout = cfg.Assistant.Timeout
	app.ChatService = service.NewChatService(
		app.DB,
		app.AccountService,
		app.LedgerService,
		app.BeneficiaryService,
		app.PINService,
		app.ConversationRepository,
		app.Assistant,
		validator.New(app.Logger),
		chatCfg,
		app.Logger,
	)
	app.Logger.Info("Services initialized.")

	// 8. Initialize HTTP Handlers and Router
	walletHandler := handler.NewWalletHandler(app.AccountService, app.LedgerService, app.BeneficiaryService, app.Logger)
	webhookHandler := handler.NewWebhookHandler(app.ChatService, app.Logger)
	app.HTTPHandler = router.NewRouter(walletHandler, webhookHandler, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

func (app *Application) initLocker(ctx context.Context) error {
	if app.Config.Lock.Backend != config.LockBackendRedis {
		app.Locker = lock.NewMemoryLocker()
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     app.Config.Lock.RedisAddr,
		Password: app.Config.Lock.RedisPassword,
		DB:       app.Config.Lock.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.Redis = client

	opts := lock.DefaultRedisOptions()
	opts.Expiry = app.Config.Lock.TTL
	app.Locker = lock.NewRedisLocker(client, opts, app.Logger)
	return nil
}

func (app *Application) initGateway() {
	var gw gateway.Gateway = gateway.NewSimulatedGateway()
	if app.Config.Gateway.Mode == config.ModeHTTP {
		gw = gateway.NewHTTPGateway(app.Config.Gateway.BaseURL, app.Config.Gateway.SecretKey, app.Config.Gateway.Timeout, app.Logger)
	}
	app.Gateway = gateway.NewBreakerGateway("payment-gateway", gw, gateway.DefaultBreakerSettings(), app.Logger)
}

func (app *Application) initAssistant() {
	var asst assistant.Assistant = assistant.NewStaticAssistant()
	if app.Config.Assistant.Mode == config.ModeHTTP {
		asst = assistant.NewHTTPAssistant(app.Config.Assistant.BaseURL, app.Config.Assistant.APIKey, app.Config.Assistant.Model, app.Config.Assistant.Timeout)
	}
	settings := gateway.DefaultBreakerSettings()
	app.Assistant = assistant.NewBreakerAssistant(asst, settings.ConsecutiveFailures, settings.OpenTimeout, app.Logger)
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			app.Logger.Error("Failed to close redis client", "error", err)
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", "error", err)
			return fmt.Errorf("failed to close database connection: %w", err)
		}
		app.Logger.Info("Database connection closed.")
	}
	app.Logger.Info("Application shut down gracefully.")
	return nil
}
