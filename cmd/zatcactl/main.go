// zatcactl is the operations companion of the reporting service: seed demo
// records, drive batch submission and mint operator tokens without going
// through the HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/application/einvoice"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"
	domzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/zatca"
	infrapdf "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/infrastructure/pdf"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/infrastructure/postgres"
	infrazatca "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/infrastructure/zatca"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/config"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/jwt"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/logger"
)

func main() {
	root := &cobra.Command{
		Use:           "zatcactl",
		Short:         "Operations CLI for the e-invoice reporting service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(seedCmd(), batchSubmitCmd(), retryFailedCmd(), mktokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// services wires the full pipeline the way cmd/api does.
type services struct {
	pool  interface{ Close() }
	retry *einvoice.RetryService
}

func buildServices(ctx context.Context) (*services, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: "warn"})

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("PostgreSQL connection: %w", err)
	}

	orderRepo := postgres.NewOrderRepository(pool)
	companyRepo := postgres.NewCompanyRepository(pool)
	journalRepo := postgres.NewJournalRepository(pool)
	posRepo := postgres.NewPosConfigRepository(pool)

	var submitter infrazatca.ReportingSubmitter
	if cfg.ZATCA.AppEnv != infrazatca.AppEnvDev && cfg.ZATCA.AppEnv != "" {
		submitter = infrazatca.NewReportingClient(cfg.ZATCA.AppEnv, cfg.ZATCA.APIBaseURL)
	}

	orchestrator := einvoice.NewOrchestrator(
		orderRepo, companyRepo, journalRepo, posRepo,
		domzatca.NewInvoiceBuilderService(),
		infrazatca.NewXMLBuilderService(),
		infrazatca.NewDigitalSignatureService(),
		submitter,
		infrapdf.NewReceiptRenderer(),
		einvoice.Config{
			AppEnv:       cfg.ZATCA.AppEnv,
			APIBaseURL:   cfg.ZATCA.APIBaseURL,
			CertPath:     cfg.ZATCA.CertPath,
			CertKeyPath:  cfg.ZATCA.CertKeyPath,
			CertPassword: cfg.ZATCA.CertPassword,
			ChainModulus: cfg.ZATCA.ChainModulus,
		},
		log,
	)

	return &services{
		pool:  pool,
		retry: einvoice.NewRetryService(orderRepo, orchestrator, log),
	}, cfg, nil
}

// seedCmd inserts a demo company, journal-less POS config and one queued
// order, enough to exercise the dev-mode pipeline end to end.
func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert a demo company, POS config and one queued order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := postgres.NewPool(ctx, cfg.DB)
			if err != nil {
				return err
			}
			defer pool.Close()

			now := time.Now()
			company := &entity.Company{
				Name:        "Demo Trading Co",
				VAT:         "300123456700003",
				City:        "Riyadh",
				District:    "Al Olaya",
				CountryCode: "SA",
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := postgres.NewCompanyRepository(pool).Create(company); err != nil {
				return err
			}
			posCfg := &entity.PosConfig{
				CompanyID:         company.ID,
				Name:              "Front desk",
				DirectModeEnabled: true,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := postgres.NewPosConfigRepository(pool).Create(posCfg); err != nil {
				return err
			}

			orderRepo := postgres.NewOrderRepository(pool)
			order := &entity.Order{
				CompanyID:    company.ID,
				ConfigID:     posCfg.ID,
				Name:         "POS/0001",
				UUID:         fmt.Sprintf("demo-%d", now.UnixNano()),
				CurrencyCode: "SAR",
				DateOrder:    now,
				AmountTotal:  decimal.RequireFromString("28.00"),
				AmountTax:    decimal.RequireFromString("3.00"),
				ZATCAStatus:  entity.ZATCAStatusQueued,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := orderRepo.Create(order); err != nil {
				return err
			}
			line := &entity.OrderLine{
				OrderID:     order.ID,
				ProductName: "Dates box",
				Quantity:    decimal.NewFromInt(2),
				UnitPrice:   decimal.NewFromInt(10),
				TaxRate:     decimal.NewFromInt(15),
			}
			if err := orderRepo.CreateLine(line); err != nil {
				return err
			}
			line = &entity.OrderLine{
				OrderID:     order.ID,
				ProductName: "Water bottle",
				Quantity:    decimal.NewFromInt(1),
				UnitPrice:   decimal.NewFromInt(5),
				TaxRate:     decimal.Zero,
			}
			if err := orderRepo.CreateLine(line); err != nil {
				return err
			}

			fmt.Printf("seeded company %s, pos config %s, order %s\n", company.ID, posCfg.ID, order.ID)
			return nil
		},
	}
}

func batchSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch-submit",
		Short: "Submit every queued order through the reporting pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svcs, _, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svcs.pool.Close()

			result, err := svcs.retry.BatchSubmitPending(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("processed=%d success=%d errors=%d\n", result.Processed, result.SuccessCount, result.ErrorCount)
			return nil
		},
	}
}

func retryFailedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Re-run recent failed orders (one cron tick)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svcs, _, err := buildServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svcs.pool.Close()

			result, err := svcs.retry.CronRetryFailed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("processed=%d success=%d errors=%d\n", result.Processed, result.SuccessCount, result.ErrorCount)
			return nil
		},
	}
}

// mktokenCmd mints an operator JWT for manual API testing.
func mktokenCmd() *cobra.Command {
	var (
		userID    string
		companyID string
		role      string
		expMin    int
	)
	cmd := &cobra.Command{
		Use:   "mktoken",
		Short: "Mint an operator JWT with the configured secret",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return fmt.Errorf("JWT_SECRET is not configured")
			}
			tok, err := jwt.Generate(cfg.JWT.Secret, userID, companyID, role, cfg.JWT.Issuer, expMin)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "operator", "user id claim")
	cmd.Flags().StringVar(&companyID, "company", "", "company id claim")
	cmd.Flags().StringVar(&role, "role", "admin", "operator role (admin, cashier, auditor)")
	cmd.Flags().IntVar(&expMin, "exp", 60, "expiration in minutes")
	return cmd
}
