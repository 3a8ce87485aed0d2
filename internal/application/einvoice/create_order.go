package einvoice

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/application/dto"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/repository"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/logger"
	pkgzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/zatca"
)

var hundred = decimal.NewFromInt(100)

// OrderIntakeService receives POS orders and moves them through the pre-submission
// part of the lifecycle: create (generated/pending) and payment (queued).
type OrderIntakeService struct {
	orderRepo   repository.OrderRepository
	companyRepo repository.CompanyRepository
	posRepo     repository.PosConfigRepository
	txRunner    OrderTxRunner // nil = write without a transaction
	log         *logger.Logger
}

// NewOrderIntakeService builds the service.
func NewOrderIntakeService(
	orderRepo repository.OrderRepository,
	companyRepo repository.CompanyRepository,
	posRepo repository.PosConfigRepository,
	txRunner OrderTxRunner,
	log *logger.Logger,
) *OrderIntakeService {
	return &OrderIntakeService{
		orderRepo:   orderRepo,
		companyRepo: companyRepo,
		posRepo:     posRepo,
		txRunner:    txRunner,
		log:         log,
	}
}

// CreateOrder persists a new POS order with its lines. The invoice identifier
// is generated locally at creation time; the initial status is "generated"
// when the eligibility gate passes, "pending" otherwise.
func (s *OrderIntakeService) CreateOrder(ctx context.Context, companyID string, in dto.CreateOrderRequest) (*entity.Order, error) {
	if companyID == "" || in.Name == "" || len(in.Lines) == 0 {
		return nil, domain.ErrInvalidInput
	}
	if in.RefundReason != "" && !pkgzatca.ValidRefundReasonCode(in.RefundReason) {
		return nil, fmt.Errorf("unknown refund reason %q: %w", in.RefundReason, domain.ErrInvalidInput)
	}

	company, err := s.companyRepo.GetByID(companyID)
	if err != nil || company == nil {
		return nil, domain.ErrNotFound
	}
	var posCfg *entity.PosConfig
	if in.ConfigID != "" {
		posCfg, _ = s.posRepo.GetByID(in.ConfigID)
	}

	dateOrder := time.Now()
	if in.DateOrder != "" {
		parsed, pErr := time.Parse(time.RFC3339, in.DateOrder)
		if pErr != nil {
			return nil, fmt.Errorf("date_order: %w", domain.ErrInvalidInput)
		}
		dateOrder = parsed
	}

	now := time.Now()
	order := &entity.Order{
		ID:              uuid.NewString(),
		CompanyID:       companyID,
		ConfigID:        in.ConfigID,
		Name:            in.Name,
		UUID:            uuid.NewString(),
		CustomerName:    in.CustomerName,
		CurrencyCode:    defaultCurrency(in.CurrencyCode),
		DateOrder:       dateOrder,
		RefundedOrderID: in.RefundedOrderID,
		RefundReason:    in.RefundReason,
		ZATCAStatus:     entity.ZATCAStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, l := range in.Lines {
		net := l.Quantity.Mul(l.UnitPrice).Round(2)
		order.AmountTotal = order.AmountTotal.Add(net.Add(net.Mul(l.TaxRate).Div(hundred).Round(2)))
		order.AmountTax = order.AmountTax.Add(net.Mul(l.TaxRate).Div(hundred).Round(2))
	}

	if eligible(order, company, posCfg) == nil {
		order.ZATCAStatus = entity.ZATCAStatusGenerated
	}

	if err := s.persistOrder(ctx, order, in.Lines); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("status", order.ZATCAStatus).
		Msg("POS order created")
	return order, nil
}

// persistOrder writes the header and its lines, inside one transaction when
// a runner is wired.
func (s *OrderIntakeService) persistOrder(ctx context.Context, order *entity.Order, lines []dto.OrderLineRequest) error {
	write := func(repo repository.OrderRepository) error {
		if err := repo.Create(order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for _, l := range lines {
			line := &entity.OrderLine{
				ID:          uuid.NewString(),
				OrderID:     order.ID,
				ProductName: l.ProductName,
				Quantity:    l.Quantity,
				UnitPrice:   l.UnitPrice,
				TaxRate:     l.TaxRate,
			}
			if err := repo.CreateLine(line); err != nil {
				return fmt.Errorf("create order line: %w", err)
			}
		}
		return nil
	}
	if s.txRunner != nil {
		return s.txRunner.Run(ctx, write)
	}
	return write(s.orderRepo)
}

// MarkPaid completes payment on an order. Eligible records move to "queued"
// for the next submission run; a refund without a reason code is rejected
// with a ValidationError; any other ineligible record stays "pending".
func (s *OrderIntakeService) MarkPaid(ctx context.Context, orderID string) (*entity.Order, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil || order == nil {
		return nil, domain.ErrNotFound
	}
	switch order.ZATCAStatus {
	case entity.ZATCAStatusLegacy:
		return order, fmt.Errorf("legacy record: %w", domain.ErrConflict)
	case entity.ZATCAStatusSubmitted, entity.ZATCAStatusQueued:
		return order, nil
	}

	if order.IsRefund() && order.RefundReason == "" {
		return order, &ValidationError{OrderID: order.ID, Reason: "refund has no reason code"}
	}

	company, err := s.companyRepo.GetByID(order.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("fetch company: %w", err)
	}
	var posCfg *entity.PosConfig
	if order.ConfigID != "" {
		posCfg, _ = s.posRepo.GetByID(order.ConfigID)
	}

	if vErr := eligible(order, company, posCfg); vErr != nil {
		order.ZATCAStatus = entity.ZATCAStatusPending
		order.UpdatedAt = time.Now()
		if uErr := s.orderRepo.UpdateZATCA(order); uErr != nil {
			return nil, fmt.Errorf("persist pending status: %w", uErr)
		}
		s.log.Debug().Str("order_id", order.ID).Str("reason", vErr.Reason).Msg("order not eligible, staying pending")
		return order, nil
	}

	order.ZATCAStatus = entity.ZATCAStatusQueued
	order.UpdatedAt = time.Now()
	if err := s.orderRepo.UpdateZATCA(order); err != nil {
		return nil, fmt.Errorf("queue order: %w", err)
	}
	s.log.Info().Str("order_id", order.ID).Msg("order queued for reporting")
	return order, nil
}

// GetStatus returns the compliance surface of one order.
func (s *OrderIntakeService) GetStatus(ctx context.Context, orderID string) (*dto.ZATCAStatusResponse, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil || order == nil {
		return nil, domain.ErrNotFound
	}
	resp := &dto.ZATCAStatusResponse{
		OrderID:      order.ID,
		Status:       order.ZATCAStatus,
		ErrorMessage: order.ZATCAErrorMessage,
		QRCode:       order.QRCode,
		InvoiceHash:  order.InvoiceHash,
	}
	if order.ZATCASubmissionTime != nil {
		resp.SubmissionTime = order.ZATCASubmissionTime.UTC().Format(time.RFC3339)
	}
	return resp, nil
}

func defaultCurrency(code string) string {
	if code == "" {
		return pkgzatca.DefaultCurrency
	}
	return code
}
