package repository

import (
	"time"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"
)

// OrderRepository is the persistence port for POS orders and their lines.
type OrderRepository interface {
	Create(order *entity.Order) error
	CreateLine(line *entity.OrderLine) error
	GetByID(id string) (*entity.Order, error)
	GetLinesByOrderID(orderID string) ([]*entity.OrderLine, error)

	// UpdateZATCA persists the reporting fields of one order:
	// zatca_status, zatca_error_message, zatca_submission_time, qr_code,
	// invoice_hash. Single-record commit granularity: each call is durable
	// on its own, which is what makes the retry loop crash-safe.
	UpdateZATCA(order *entity.Order) error

	// ListQueued returns every queued order of Saudi companies, oldest first.
	// Legacy records are never selected.
	ListQueued() ([]*entity.Order, error)

	// ListFailedSince returns error-status orders created at or after since,
	// oldest first, capped at limit. Legacy records are never selected.
	ListFailedSince(since time.Time, limit int) ([]*entity.Order, error)

	// CountInvoicedBefore counts the company's orders that already carry an
	// invoice hash and were created before the given order. Feeds the chain
	// counter; a best-effort sequence, not a transactional ledger.
	CountInvoicedBefore(companyID, orderID string) (int64, error)

	// LastInvoiceHash returns the most recent invoice hash persisted for the
	// company before the given order, or "" when the chain is empty.
	LastInvoiceHash(companyID, orderID string) (string, error)
}
