// Package pdf renders the printable simplified tax invoice receipt: a
// compact document carrying the order summary and the compliance QR code
// that point-of-sale stations hand to the customer.
package pdf

import (
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/application/einvoice"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"
	pkgzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/zatca"
)

var (
	colorPrimary = &props.Color{Red: 0, Green: 102, Blue: 74}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

var _ einvoice.ReceiptRenderer = (*ReceiptRenderer)(nil)

// ReceiptRenderer produces the QR receipt PDF with Maroto v2.
type ReceiptRenderer struct{}

// NewReceiptRenderer builds the renderer.
func NewReceiptRenderer() *ReceiptRenderer { return &ReceiptRenderer{} }

// RenderQRReceipt renders the receipt and returns its bytes. qrB64 is the
// TLV payload already stored on the order.
func (r *ReceiptRenderer) RenderQRReceipt(order *entity.Order, qrB64 string) ([]byte, error) {
	if order == nil || qrB64 == "" {
		return nil, fmt.Errorf("pdf: order and QR payload are required")
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A5).
		WithLeftMargin(12).WithRightMargin(12).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Simplified Tax Invoice", true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(order))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(detailsRow(order))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(totalsRow(order))
	m.AddRows(line.NewRow(2))
	m.AddRows(qrRow(qrB64))
	if order.InvoiceHash != "" {
		for _, hr := range hashRows(order.InvoiceHash) {
			m.AddRows(hr)
		}
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generate receipt: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── sections ──────────────────────────────────────────────────────────────────

// headerRow: document title plus order reference and issue date.
func headerRow(order *entity.Order) core.Row {
	title := "SIMPLIFIED TAX INVOICE"
	if order.IsRefund() {
		title = "SIMPLIFIED CREDIT NOTE"
	}
	return row.New(16).Add(
		col.New(7).Add(
			text.New(title, props.Text{
				Style: fontstyle.Bold, Size: 11, Color: colorPrimary, Top: 1,
			}),
			text.New(order.Name, props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 8,
			}),
		),
		col.New(5).Add(
			text.New(order.DateOrder.Format("02/01/2006 15:04"), props.Text{
				Size: 8, Align: align.Right, Top: 2, Color: colorGray,
			}),
			text.New(order.UUID, props.Text{
				Size: 6, Align: align.Right, Top: 8, Color: colorGray,
			}),
		),
	)
}

// detailsRow: customer and refund context.
func detailsRow(order *entity.Order) core.Row {
	customer := order.CustomerName
	if customer == "" {
		customer = pkgzatca.CashCustomerName
	}
	parts := "Customer: " + customer
	if order.RefundedOrderID != "" {
		if label, ok := pkgzatca.RefundReasonLabels[order.RefundReason]; ok {
			parts += "   |   Reason: " + label
		}
	}
	return row.New(8).Add(
		col.New(12).Add(
			text.New(parts, props.Text{Size: 8, Top: 2, Color: colorGray}),
		),
	)
}

// totalsRow: VAT and grand total, right aligned.
func totalsRow(order *entity.Order) core.Row {
	currency := order.CurrencyCode
	if currency == "" {
		currency = pkgzatca.DefaultCurrency
	}
	return row.New(14).Add(
		col.New(5),
		col.New(4).Add(
			text.New("VAT total:", props.Text{
				Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2,
			}),
			text.New("TOTAL:", props.Text{
				Style: fontstyle.Bold, Size: 11, Align: align.Right,
				Color: colorPrimary, Right: 2, Top: 6,
			}),
		),
		col.New(3).Add(
			text.New(order.AmountTax.Abs().StringFixed(2)+" "+currency, props.Text{
				Size: 9, Align: align.Right,
			}),
			text.New(order.AmountTotal.Abs().StringFixed(2)+" "+currency, props.Text{
				Style: fontstyle.Bold, Size: 11, Align: align.Right,
				Color: colorPrimary, Top: 6,
			}),
		),
	)
}

// qrRow: the compliance QR code, centered. Scanning it yields the TLV
// payload the authority's VAT app validates.
func qrRow(qrB64 string) core.Row {
	return row.New(55).Add(
		col.New(3),
		col.New(6).Add(code.NewQr(qrB64, props.Rect{
			Percent: 95,
			Center:  true,
		})),
		col.New(3),
	)
}

// hashRows: the invoice hash split into printable fragments.
func hashRows(hash string) []core.Row {
	rows := []core.Row{
		row.New(5).Add(col.New(12).Add(
			text.New("Invoice hash:", props.Text{
				Style: fontstyle.Bold, Size: 7, Top: 1,
			}),
		)),
	}
	for _, chunk := range splitEvery(hash, 64) {
		rows = append(rows, row.New(4).Add(col.New(12).Add(
			text.New(chunk, props.Text{Size: 6.5, Color: colorGray, Top: 0.5, Left: 2}),
		)))
	}
	return rows
}

// splitEvery splits s into chunks of at most n characters.
func splitEvery(s string, n int) []string {
	var parts []string
	for len(s) > n {
		parts = append(parts, s[:n])
		s = s[n:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
