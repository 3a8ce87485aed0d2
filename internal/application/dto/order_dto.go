// Package dto holds the request/response bodies of the HTTP surface.
package dto

import "github.com/shopspring/decimal"

// CreateOrderRequest body for POST /api/orders (POS order intake).
type CreateOrderRequest struct {
	ConfigID        string             `json:"config_id"`
	Name            string             `json:"name"` // order reference, e.g. "POS/001"
	CustomerName    string             `json:"customer_name,omitempty"`
	CurrencyCode    string             `json:"currency_code,omitempty"`
	DateOrder       string             `json:"date_order,omitempty"` // RFC 3339; empty = now
	RefundedOrderID string             `json:"refunded_order_id,omitempty"`
	RefundReason    string             `json:"refund_reason,omitempty"` // reason code, required for refunds
	Lines           []OrderLineRequest `json:"lines"`
}

// OrderLineRequest one POS order line.
type OrderLineRequest struct {
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

// OrderResponse order in responses.
type OrderResponse struct {
	ID              string          `json:"id"`
	CompanyID       string          `json:"company_id"`
	ConfigID        string          `json:"config_id,omitempty"`
	Name            string          `json:"name"`
	UUID            string          `json:"uuid"`
	CustomerName    string          `json:"customer_name,omitempty"`
	CurrencyCode    string          `json:"currency_code"`
	DateOrder       string          `json:"date_order"`
	AmountTotal     decimal.Decimal `json:"amount_total"`
	AmountTax       decimal.Decimal `json:"amount_tax"`
	RefundedOrderID string          `json:"refunded_order_id,omitempty"`
	RefundReason    string          `json:"refund_reason,omitempty"`
	ZATCAStatus     string          `json:"zatca_status"`
}

// ZATCAStatusResponse compliance surface for GET /api/orders/:id/zatca.
type ZATCAStatusResponse struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	ErrorMessage   string `json:"error_message,omitempty"`
	SubmissionTime string `json:"submission_time,omitempty"`
	QRCode         string `json:"qr_code,omitempty"`
	InvoiceHash    string `json:"invoice_hash,omitempty"`
}

// BatchResultResponse tallies of batch-submit / retry-failed runs.
type BatchResultResponse struct {
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
	Processed    int `json:"processed"`
}

// ErrorResponse standard error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
