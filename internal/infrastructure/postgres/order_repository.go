package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/repository"
)

var _ repository.OrderRepository = (*OrderRepo)(nil)

const orderColumns = `
	id, company_id, config_id, name, uuid, customer_name, currency_code,
	date_order, amount_total, amount_tax, refunded_order_id, refund_reason,
	zatca_status, zatca_error_message, zatca_submission_time, qr_code,
	invoice_hash, created_at, updated_at`

// OrderRepo implements the OrderRepository port (usable with pool or tx).
type OrderRepo struct {
	q Querier
}

// NewOrderRepository builds the adapter. Pass pool or tx (Querier).
func NewOrderRepository(q Querier) *OrderRepo {
	return &OrderRepo{q: q}
}

// Create persists a new POS order.
func (r *OrderRepo) Create(order *entity.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	query := `
		INSERT INTO orders (id, company_id, config_id, name, uuid, customer_name, currency_code, date_order, amount_total, amount_tax, refunded_order_id, refund_reason, zatca_status, zatca_error_message, zatca_submission_time, qr_code, invoice_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := r.q.Exec(context.Background(), query,
		order.ID, order.CompanyID, nullIfEmpty(order.ConfigID), order.Name,
		order.UUID, nullIfEmpty(order.CustomerName), order.CurrencyCode,
		order.DateOrder, order.AmountTotal, order.AmountTax,
		nullIfEmpty(order.RefundedOrderID), nullIfEmpty(order.RefundReason),
		order.ZATCAStatus, nullIfEmpty(order.ZATCAErrorMessage),
		order.ZATCASubmissionTime, nullIfEmpty(order.QRCode), nullIfEmpty(order.InvoiceHash),
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order reference already exists: %w", err)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// CreateLine persists one order line.
func (r *OrderRepo) CreateLine(line *entity.OrderLine) error {
	if line.ID == "" {
		line.ID = uuid.New().String()
	}
	query := `
		INSERT INTO order_lines (id, order_id, product_name, quantity, unit_price, tax_rate)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.q.Exec(context.Background(), query,
		line.ID, line.OrderID, line.ProductName, line.Quantity, line.UnitPrice, line.TaxRate,
	)
	if err != nil {
		return fmt.Errorf("insert order line: %w", err)
	}
	return nil
}

// GetByID returns one order, or nil when it does not exist.
func (r *OrderRepo) GetByID(id string) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(r.q.QueryRow(context.Background(), query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// GetLinesByOrderID returns the order's lines in insertion order.
func (r *OrderRepo) GetLinesByOrderID(orderID string) ([]*entity.OrderLine, error) {
	query := `
		SELECT id, order_id, product_name, quantity, unit_price, tax_rate
		FROM order_lines WHERE order_id = $1 ORDER BY id`
	rows, err := r.q.Query(context.Background(), query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	defer rows.Close()

	var lines []*entity.OrderLine
	for rows.Next() {
		var l entity.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.TaxRate); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, &l)
	}
	return lines, rows.Err()
}

// UpdateZATCA persists the reporting fields of one order. Each call commits
// on its own; the retry loop relies on that granularity.
func (r *OrderRepo) UpdateZATCA(order *entity.Order) error {
	query := `
		UPDATE orders
		SET zatca_status          = $2,
		    zatca_error_message   = $3,
		    zatca_submission_time = $4,
		    qr_code               = COALESCE($5, qr_code),
		    invoice_hash          = COALESCE($6, invoice_hash),
		    updated_at            = $7
		WHERE id = $1`
	tag, err := r.q.Exec(context.Background(), query,
		order.ID,
		order.ZATCAStatus,
		nullIfEmpty(order.ZATCAErrorMessage),
		order.ZATCASubmissionTime,
		nullIfEmpty(order.QRCode),
		nullIfEmpty(order.InvoiceHash),
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order reporting fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s not found", order.ID)
	}
	return nil
}

// ListQueued returns every queued order of Saudi companies, oldest first.
func (r *OrderRepo) ListQueued() ([]*entity.Order, error) {
	query := `
		SELECT ` + qualifiedOrderColumns() + `
		FROM orders o
		JOIN companies c ON c.id = o.company_id
		WHERE o.zatca_status = 'queued' AND c.country_code = 'SA'
		ORDER BY o.created_at`
	return r.list(query)
}

// ListFailedSince returns error-status orders created at or after since,
// oldest first, capped at limit.
func (r *OrderRepo) ListFailedSince(since time.Time, limit int) ([]*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE zatca_status = 'error' AND created_at >= $1
		ORDER BY created_at
		LIMIT $2`
	return r.list(query, since, limit)
}

// CountInvoicedBefore counts the company's orders that already carry an
// invoice hash and predate the given order.
func (r *OrderRepo) CountInvoicedBefore(companyID, orderID string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM orders
		WHERE company_id = $1
		  AND invoice_hash IS NOT NULL
		  AND created_at < (SELECT created_at FROM orders WHERE id = $2)`
	var n int64
	if err := r.q.QueryRow(context.Background(), query, companyID, orderID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count invoiced orders: %w", err)
	}
	return n, nil
}

// LastInvoiceHash returns the most recent invoice hash persisted for the
// company before the given order, or "" when the chain is empty.
func (r *OrderRepo) LastInvoiceHash(companyID, orderID string) (string, error) {
	query := `
		SELECT invoice_hash
		FROM orders
		WHERE company_id = $1
		  AND invoice_hash IS NOT NULL
		  AND created_at < (SELECT created_at FROM orders WHERE id = $2)
		ORDER BY created_at DESC
		LIMIT 1`
	var hash string
	err := r.q.QueryRow(context.Background(), query, companyID, orderID).Scan(&hash)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("get last invoice hash: %w", err)
	}
	return hash, nil
}

func (r *OrderRepo) list(query string, args ...any) ([]*entity.Order, error) {
	rows, err := r.q.Query(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*entity.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (*entity.Order, error) {
	var o entity.Order
	var configID, customerName, refundedOrderID, refundReason *string
	var errMsg, qrCode, invoiceHash *string
	err := row.Scan(
		&o.ID, &o.CompanyID, &configID, &o.Name, &o.UUID, &customerName,
		&o.CurrencyCode, &o.DateOrder, &o.AmountTotal, &o.AmountTax,
		&refundedOrderID, &refundReason, &o.ZATCAStatus, &errMsg,
		&o.ZATCASubmissionTime, &qrCode, &invoiceHash,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.ConfigID = derefStr(configID)
	o.CustomerName = derefStr(customerName)
	o.RefundedOrderID = derefStr(refundedOrderID)
	o.RefundReason = derefStr(refundReason)
	o.ZATCAErrorMessage = derefStr(errMsg)
	o.QRCode = derefStr(qrCode)
	o.InvoiceHash = derefStr(invoiceHash)
	return &o, nil
}

func qualifiedOrderColumns() string {
	return `
	o.id, o.company_id, o.config_id, o.name, o.uuid, o.customer_name, o.currency_code,
	o.date_order, o.amount_total, o.amount_tax, o.refunded_order_id, o.refund_reason,
	o.zatca_status, o.zatca_error_message, o.zatca_submission_time, o.qr_code,
	o.invoice_hash, o.created_at, o.updated_at`
}
