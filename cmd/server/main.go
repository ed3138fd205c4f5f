package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paystreamhq/paystream-backend/internal/adapter/httpapi"
	"github.com/paystreamhq/paystream-backend/internal/adapter/nibss"
	"github.com/paystreamhq/paystream-backend/internal/adapter/repository/postgres"
	"github.com/paystreamhq/paystream-backend/internal/config"
	"github.com/paystreamhq/paystream-backend/internal/telemetry"
	"github.com/paystreamhq/paystream-backend/internal/usecase/fees"
	"github.com/paystreamhq/paystream-backend/internal/usecase/schedule"
	"github.com/paystreamhq/paystream-backend/internal/usecase/workflow"
)

const defaultConfigPath = "config.yaml"

func main() {
	logger := telemetry.NewLogger("paystream-transfers")

	// 1. Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg := config.LoadOrDefault(configPath)
	applyEnvOverrides(cfg)

	// 2. Setup Database
	// Add 2-second delay to ensure Postgres is up (Simple retry)
	time.Sleep(2 * time.Second)

	db, err := postgres.NewDB(cfg.DB.ConnString())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// 3. Initialize adapters
	beneficiaryRepo := postgres.NewBeneficiaryRepository(db)
	accountGateway := postgres.NewAccountGateway(db, cfg.Limits)

	switchClient := nibss.NewClient(nibss.Config{
		BaseURL:         cfg.Switch.BaseURL,
		APIKey:          cfg.Switch.APIKey,
		InstitutionCode: cfg.Switch.InstitutionCode,
		ChannelCode:     cfg.Switch.ChannelCode,
	}, logger)

	// 4. Initialize Services (Use Cases)
	calculator := fees.NewCalculator(cfg.Fees.Schedule(), logger)

	scheduler := schedule.NewScheduler(func(ctx context.Context, rt schedule.RecurringTransfer) {
		// Recurring runs settle directly against the switch; the interactive
		// workflow already validated and verified the template.
		quote, err := calculator.Quote(rt.Data.Type, rt.Data.Amount, rt.Data.RecipientBankCode)
		if err != nil {
			logger.Error().Err(err).Str("reference", rt.Reference).Msg("recurring transfer quote failed")
			return
		}
		key := uuid.Must(uuid.NewV7()).String()
		if _, err := switchClient.Submit(ctx, rt.Data, quote, key); err != nil {
			logger.Error().Err(err).Str("reference", rt.Reference).Msg("recurring transfer settlement failed")
			return
		}
		logger.Info().
			Str("reference", rt.Reference).
			Str("user_id", rt.UserID).
			Msg("recurring transfer settled")
	}, logger)
	scheduler.Start()
	defer scheduler.Stop()

	engine := workflow.NewEngine(
		accountGateway,
		switchClient,
		switchClient,
		beneficiaryRepo,
		workflow.LevelChecker{},
		calculator,
		scheduler,
		workflow.Options{
			VerifyTimeout: cfg.Switch.VerifyTimeout,
			SettleTimeout: cfg.Switch.SettleTimeout,
		},
		logger,
	)

	// 5. Start HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), httpapi.Metrics(), httpapi.Auth(cfg.Server.APIToken))

	api := httpapi.NewServer(engine, logger)
	httpapi.SetupRoutes(router, api)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to serve HTTP")
		}
	}()

	waitForShutdown(srv, logger)
}

// applyEnvOverrides lets the container environment win over the config file
// (Docker friendly)
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.DB.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		cfg.DB.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.DB.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.DB.Name = v
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := os.Getenv("SWITCH_BASE_URL"); v != "" {
		cfg.Switch.BaseURL = v
	}
	if v := os.Getenv("SWITCH_API_KEY"); v != "" {
		cfg.Switch.APIKey = v
	}
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(srv *http.Server, logger zerolog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	logger.Info().Msg("HTTP server stopped")
}
