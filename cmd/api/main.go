package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/application/einvoice"
	domzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/zatca"
	infrapdf "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/infrastructure/pdf"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/infrastructure/postgres"
	infrazatca "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/infrastructure/zatca"
	httpRouter "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/interfaces/http"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/config"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("load configuration: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("zatca_env", cfg.ZATCA.AppEnv).
		Str("app", cfg.App.Name).
		Msg("starting application")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("PostgreSQL connection")
	}
	defer pool.Close()

	orderRepo := postgres.NewOrderRepository(pool)
	companyRepo := postgres.NewCompanyRepository(pool)
	journalRepo := postgres.NewJournalRepository(pool)
	posRepo := postgres.NewPosConfigRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	zatcaCfg := einvoice.Config{
		AppEnv:       cfg.ZATCA.AppEnv,
		APIBaseURL:   cfg.ZATCA.APIBaseURL,
		CertPath:     cfg.ZATCA.CertPath,
		CertKeyPath:  cfg.ZATCA.CertKeyPath,
		CertPassword: cfg.ZATCA.CertPassword,
		ChainModulus: cfg.ZATCA.ChainModulus,
	}

	// Reporting API client: only wired outside dev mode. In dev the
	// orchestrator simulates acceptance and never calls out.
	var submitter infrazatca.ReportingSubmitter
	if cfg.ZATCA.AppEnv != infrazatca.AppEnvDev && cfg.ZATCA.AppEnv != "" {
		submitter = infrazatca.NewReportingClient(cfg.ZATCA.AppEnv, cfg.ZATCA.APIBaseURL)
	}

	// Pipeline: invoice model → UBL XML → XAdES signature → TLV QR → report
	orchestrator := einvoice.NewOrchestrator(
		orderRepo, companyRepo, journalRepo, posRepo,
		domzatca.NewInvoiceBuilderService(),
		infrazatca.NewXMLBuilderService(),
		infrazatca.NewDigitalSignatureService(),
		submitter,
		infrapdf.NewReceiptRenderer(),
		zatcaCfg,
		log,
	)

	intake := einvoice.NewOrderIntakeService(orderRepo, companyRepo, posRepo, txRunner, log)
	retry := einvoice.NewRetryService(orderRepo, orchestrator, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    cfg.App.Name,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Intake:    intake,
		Retry:     retry,
		JWTSecret: cfg.JWT.Secret,
	})

	// Retry scheduler: failed records inside the window, capped per tick.
	cronCtx, cronCancel := context.WithCancel(ctx)
	defer cronCancel()
	go runRetryLoop(cronCtx, retry, log)

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received, stopping server...")
	cronCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}

	log.Info().Msg("application stopped")
}

// runRetryLoop ticks the cron retry until the context is cancelled.
func runRetryLoop(ctx context.Context, retry *einvoice.RetryService, log *logger.Logger) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := retry.CronRetryFailed(ctx); err != nil {
				log.Error().Err(err).Msg("cron retry run failed")
			}
		}
	}
}
