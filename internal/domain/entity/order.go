package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ZATCA lifecycle states of a POS order (persisted, never deleted).
const (
	ZATCAStatusLegacy    = "legacy"    // pre-module records, terminal, never touched
	ZATCAStatusPending   = "pending"   // created but not fully processed in POS yet
	ZATCAStatusGenerated = "generated" // identifier generated locally, awaiting payment
	ZATCAStatusQueued    = "queued"    // scheduled for submission
	ZATCAStatusSubmitted = "submitted" // accepted by the authority (terminal on success)
	ZATCAStatusError     = "error"     // generation or submission failed, retryable
)

// Order is a point-of-sale order, the record the reporting pipeline feeds on.
// Lines arrive denormalized from the POS; the pipeline never mutates them.
type Order struct {
	ID              string
	CompanyID       string
	ConfigID        string // POS configuration the order was created on
	Name            string // order reference (e.g. "POS/001")
	UUID            string // submitted to the authority as the invoice uuid
	CustomerName    string // empty = cash customer
	CurrencyCode    string
	DateOrder       time.Time
	AmountTotal     decimal.Decimal
	AmountTax       decimal.Decimal
	RefundedOrderID string // non-empty when this order refunds another
	RefundReason    string // refund reason code, see pkg/zatca catalogues

	ZATCAStatus         string
	ZATCAErrorMessage   string
	ZATCASubmissionTime *time.Time
	QRCode              string // base64 TLV payload shown on the receipt
	InvoiceHash         string // digest embedded at signing time; next link of the chain

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRefund reports whether the order is a refund (explicit link or negative total).
func (o *Order) IsRefund() bool {
	return o.RefundedOrderID != "" || o.AmountTotal.IsNegative()
}

// IsSimplified reports whether the order produces a simplified (B2C) invoice.
// POS orders without a registered business customer always do.
func (o *Order) IsSimplified() bool {
	return true
}

// OrderLine is one denormalized POS order line.
type OrderLine struct {
	ID          string
	OrderID     string
	ProductName string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal // percent
}
