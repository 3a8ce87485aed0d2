package zatca

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	pkgzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/zatca"
)

// InvoiceSource is the narrow capability the pipeline needs from an order-like
// record. Any entity exposing these fields can feed the pipeline; the builder
// never retains the source beyond one invocation.
type InvoiceSource interface {
	Reference() string   // invoice/order reference id (e.g. "POS/001")
	InvoiceUUID() string // uuid submitted to the authority
	IssuedAt() time.Time
	Currency() string // "" defaults to SAR
	Customer() string // "" defaults to the cash customer name
	// RefundOf returns the refunded document's reference and issue date.
	// ok is false for regular sales.
	RefundOf() (ref string, issueDate time.Time, ok bool)
	IsRefund() bool
	RefundReasonCode() string
	SourceLines() []SourceLine
}

// SourceLine is one raw order line as the POS recorded it.
type SourceLine struct {
	ProductName  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	BaseQuantity decimal.Decimal // zero defaults to 1
	TaxRate      decimal.Decimal // percent
}

// SupplierProfile is the seller identity stamped on every invoice.
type SupplierProfile struct {
	Name                   string
	VAT                    string
	CommercialRegistration string
	Street                 string
	BuildingNumber         string
	AdditionalNumber       string
	District               string
	City                   string
	State                  string
	Zip                    string
	CountryCode            string
}

// BillingReference links a credit note to the invoice it refunds (mandatory for 381).
type BillingReference struct {
	ID        string
	IssueDate time.Time
}

// RefundReason is the justification carried on a credit note.
type RefundReason struct {
	Code  string
	Label string
}

// InvoiceLine is one computed invoice line. Net and Tax follow the KSA
// rounding rules: net = round(qty * price / baseQty, 2),
// tax = round(net * rate/100, 2).
type InvoiceLine struct {
	Number       int // 1-based, sequential
	ProductName  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	BaseQuantity decimal.Decimal
	TaxRate      decimal.Decimal
	Net          decimal.Decimal
	Tax          decimal.Decimal
}

// SimplifiedInvoice is the canonical invoice record built from an order.
// Totals are aggregated from the computed lines, never copied from the order.
type SimplifiedInvoice struct {
	Reference    string
	UUID         string
	IssueDate    time.Time
	CurrencyCode string
	TypeCode     int // 388 standard, 381 credit note
	Counter      int64
	PreviousHash string
	CustomerName string
	Supplier     SupplierProfile

	Lines           []InvoiceLine
	TotalWithoutTax decimal.Decimal
	TotalTax        decimal.Decimal
	TotalWithTax    decimal.Decimal

	BillingReference *BillingReference // only for credit notes
	RefundReason     *RefundReason     // only for credit notes
}

// IsCreditNote reports whether the invoice is a refund document.
func (inv *SimplifiedInvoice) IsCreditNote() bool {
	return inv.TypeCode == pkgzatca.TypeCodeCreditNote
}

// InvoiceBuilderService assembles a SimplifiedInvoice from raw order data.
type InvoiceBuilderService struct{}

// NewInvoiceBuilderService creates the service.
func NewInvoiceBuilderService() *InvoiceBuilderService {
	return &InvoiceBuilderService{}
}

var hundred = decimal.NewFromInt(100)

// Build computes lines, totals and refund metadata for one source record.
// For credit notes every monetary and quantity field comes out non-negative
// (BR-KSA-F-04); totals are the sum of per-line computed values.
func (s *InvoiceBuilderService) Build(src InvoiceSource, supplier SupplierProfile, chain ChainState) (*SimplifiedInvoice, error) {
	if src == nil {
		return nil, fmt.Errorf("zatca: invoice source is required")
	}
	rawLines := src.SourceLines()
	if len(rawLines) == 0 {
		return nil, fmt.Errorf("zatca: order %s has no lines", src.Reference())
	}

	refund := src.IsRefund()

	inv := &SimplifiedInvoice{
		Reference:    src.Reference(),
		UUID:         src.InvoiceUUID(),
		IssueDate:    src.IssuedAt(),
		CurrencyCode: src.Currency(),
		TypeCode:     pkgzatca.TypeCodeStandard,
		Counter:      chain.Counter,
		PreviousHash: chain.PreviousHash,
		CustomerName: src.Customer(),
		Supplier:     supplier,
	}
	if inv.CurrencyCode == "" {
		inv.CurrencyCode = pkgzatca.DefaultCurrency
	}
	if inv.CustomerName == "" {
		inv.CustomerName = pkgzatca.CashCustomerName
	}

	if refund {
		inv.TypeCode = pkgzatca.TypeCodeCreditNote
		if ref, issued, ok := src.RefundOf(); ok {
			inv.BillingReference = &BillingReference{ID: ref, IssueDate: issued}
		}
		code := src.RefundReasonCode()
		if code == "" {
			code = pkgzatca.RefundReasonCustomer
		}
		label, ok := pkgzatca.RefundReasonLabels[code]
		if !ok {
			label = code
		}
		inv.RefundReason = &RefundReason{Code: code, Label: label}
	}

	totalNet := decimal.Zero
	totalTax := decimal.Zero
	inv.Lines = make([]InvoiceLine, 0, len(rawLines))
	for i, raw := range rawLines {
		line, err := buildLine(i+1, raw, refund)
		if err != nil {
			return nil, err
		}
		totalNet = totalNet.Add(line.Net)
		totalTax = totalTax.Add(line.Tax)
		inv.Lines = append(inv.Lines, line)
	}

	inv.TotalWithoutTax = totalNet.Round(2)
	inv.TotalTax = totalTax.Round(2)
	inv.TotalWithTax = totalNet.Add(totalTax).Round(2)
	if refund {
		// BR-KSA-F-04 again at the invoice level: credit note totals are positive.
		inv.TotalWithoutTax = inv.TotalWithoutTax.Abs()
		inv.TotalTax = inv.TotalTax.Abs()
		inv.TotalWithTax = inv.TotalWithTax.Abs()
	}
	return inv, nil
}

func buildLine(number int, raw SourceLine, refund bool) (InvoiceLine, error) {
	qty := raw.Quantity
	price := raw.UnitPrice
	baseQty := raw.BaseQuantity
	if baseQty.IsZero() {
		baseQty = decimal.NewFromInt(1)
	}
	if refund {
		qty = qty.Abs()
		price = price.Abs()
		baseQty = baseQty.Abs()
	}
	if baseQty.IsZero() {
		return InvoiceLine{}, fmt.Errorf("zatca: line %d has zero base quantity", number)
	}

	// BR-KSA-EN16931-11: line net = qty * (unit price / base qty), 2 decimals.
	net := qty.Mul(price).Div(baseQty).Round(2)
	// BR-CO-17 / BR-S-09: line VAT = net * rate/100, 2 decimals.
	tax := net.Mul(raw.TaxRate).Div(hundred).Round(2)
	if refund {
		net = net.Abs()
		tax = tax.Abs()
	}

	return InvoiceLine{
		Number:       number,
		ProductName:  raw.ProductName,
		Quantity:     qty,
		UnitPrice:    price,
		BaseQuantity: baseQty,
		TaxRate:      raw.TaxRate,
		Net:          net,
		Tax:          tax,
	}, nil
}
