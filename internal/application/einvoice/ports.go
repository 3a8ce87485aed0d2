// Package einvoice orchestrates the ZATCA direct reporting pipeline for POS
// orders: order intake, the submission state machine and the retry scheduler.
package einvoice

import (
	"context"
	"time"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/repository"
	domzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/zatca"
	pkgzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/zatca"
)

// Config drives the pipeline: target environment, certificate locations and
// the chain counter window.
type Config struct {
	AppEnv       string // dev | sim | prod
	APIBaseURL   string
	CertPath     string
	CertKeyPath  string
	CertPassword string
	ChainModulus int64
}

// ReceiptRenderer produces the human-viewable QR receipt artifact. Its
// failure degrades to the bare TLV payload and never aborts a submission.
type ReceiptRenderer interface {
	RenderQRReceipt(order *entity.Order, qrB64 string) ([]byte, error)
}

// OrderTxRunner runs fn with an order repository bound to one transaction,
// so an order header and its lines commit or roll back together.
type OrderTxRunner interface {
	Run(ctx context.Context, fn func(orders repository.OrderRepository) error) error
}

// orderSource adapts a persisted order plus its lines to the invoice
// builder's capability interface.
type orderSource struct {
	order  *entity.Order
	refund *entity.Order // refunded original, nil for sales
	lines  []*entity.OrderLine
}

var _ domzatca.InvoiceSource = (*orderSource)(nil)

func (s *orderSource) Reference() string   { return s.order.Name }
func (s *orderSource) InvoiceUUID() string { return s.order.UUID }
func (s *orderSource) IssuedAt() time.Time { return s.order.DateOrder }
func (s *orderSource) Currency() string    { return s.order.CurrencyCode }
func (s *orderSource) Customer() string    { return s.order.CustomerName }
func (s *orderSource) IsRefund() bool      { return s.order.IsRefund() }

func (s *orderSource) RefundReasonCode() string { return s.order.RefundReason }

func (s *orderSource) RefundOf() (string, time.Time, bool) {
	if s.refund == nil {
		return "", time.Time{}, false
	}
	return s.refund.Name, s.refund.DateOrder, true
}

func (s *orderSource) SourceLines() []domzatca.SourceLine {
	out := make([]domzatca.SourceLine, 0, len(s.lines))
	for _, l := range s.lines {
		out = append(out, domzatca.SourceLine{
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TaxRate:     l.TaxRate,
		})
	}
	return out
}

// supplierProfile maps company master data to the invoice supplier block.
func supplierProfile(company *entity.Company) domzatca.SupplierProfile {
	return domzatca.SupplierProfile{
		Name:                   company.Name,
		VAT:                    company.VAT,
		CommercialRegistration: company.CommercialRegistration,
		Street:                 company.Street,
		BuildingNumber:         company.BuildingNumber,
		AdditionalNumber:       company.AdditionalNumber,
		District:               company.District,
		City:                   company.City,
		State:                  company.State,
		Zip:                    company.Zip,
		CountryCode:            company.CountryCode,
	}
}

// eligible applies the gate every record must pass before queueing: regulated
// jurisdiction, direct mode on the point of sale, simplified document, a
// generated identifier, and a refund reason when refunding.
func eligible(order *entity.Order, company *entity.Company, cfg *entity.PosConfig) *ValidationError {
	if company == nil || company.CountryCode != pkgzatca.CountryCodeSA {
		return &ValidationError{OrderID: order.ID, Reason: "supplier is not under the regulated jurisdiction"}
	}
	if cfg == nil || !cfg.DirectModeEnabled {
		return &ValidationError{OrderID: order.ID, Reason: "direct reporting is disabled for this point of sale"}
	}
	if !order.IsSimplified() {
		return &ValidationError{OrderID: order.ID, Reason: "order is not a simplified invoice"}
	}
	if order.UUID == "" {
		return &ValidationError{OrderID: order.ID, Reason: "order has no invoice identifier"}
	}
	if order.IsRefund() && order.RefundReason == "" {
		return &ValidationError{OrderID: order.ID, Reason: "refund has no reason code"}
	}
	if order.IsRefund() && !pkgzatca.ValidRefundReasonCode(order.RefundReason) {
		return &ValidationError{OrderID: order.ID, Reason: "unknown refund reason code " + order.RefundReason}
	}
	return nil
}
