// Package zatca implements the infrastructure side of the Saudi e-invoicing
// pipeline: UBL 2.1 XML generation, XAdES signing, mandated-extension
// injection and the reporting API client.
package zatca

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	domzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/zatca"
	pkgzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/zatca"
)

// Official UBL 2.1 namespaces used on simplified invoices.
const (
	// Default namespace (UBL Invoice; also the root of credit notes, which
	// stay on the Invoice document with type code 381)
	NsInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	// Common Aggregate Components
	NsCac = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	// Common Basic Components
	NsCbc = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	// Extension Components
	NsExt = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
	// UBL signature container (inside the mandated extension)
	NsSig = "urn:oasis:names:specification:ubl:schema:xsd:CommonSignatureComponents-2"
	// XML Digital Signature
	NsDs = "http://www.w3.org/2000/09/xmldsig#"
	// XAdES qualifying properties
	NsXades = "http://uri.etsi.org/01903/v1.3.2#"
)

// Stable identifiers inside the generated document.
const (
	// QRNodeID marks the AdditionalDocumentReference that carries the TLV QR.
	QRNodeID = "QR"
	// ICVNodeID marks the invoice counter reference (KSA-33).
	ICVNodeID = "ICV"
	// PIHNodeID marks the previous-invoice-hash reference (KSA-61).
	PIHNodeID = "PIH"
	// QRPlaceholder sits in the QR node until the signed payload replaces it.
	QRPlaceholder = "QR_PLACEHOLDER"
	// ProfileID of the simplified reporting regime.
	ProfileID = "reporting:1.0"
)

// InvoiceBuildContext carries everything the builder needs for one document.
type InvoiceBuildContext struct {
	Invoice *domzatca.SimplifiedInvoice
	// InvoiceSubtype overrides the cbc:InvoiceTypeCode/@name; empty selects
	// the simplified-invoice subtype.
	InvoiceSubtype string
}

// XMLBuilderService builds the UBL 2.1 invoice XML (unsigned, placeholder
// extension as first child, QR placeholder node present).
type XMLBuilderService struct{}

// NewXMLBuilderService creates the service.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Build generates the Invoice document bytes per UBL 2.1 and the KSA rules.
func (s *XMLBuilderService) Build(ctx *InvoiceBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Invoice == nil {
		return nil, fmt.Errorf("zatca: invoice missing from build context")
	}
	inv := ctx.Invoice
	if len(inv.Lines) == 0 {
		return nil, fmt.Errorf("zatca: invoice %s has no lines", inv.Reference)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Space: NsInvoice, Local: "Invoice"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns:cac"}, Value: NsCac},
			{Name: xml.Name{Local: "xmlns:cbc"}, Value: NsCbc},
			{Name: xml.Name{Local: "xmlns:ext"}, Value: NsExt},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	// ext:UBLExtensions must stay the first child of Invoice; the signer
	// replaces this empty placeholder with the mandated signature extension.
	s.writePlaceholderExtensions(enc)

	subtype := ctx.InvoiceSubtype
	if subtype == "" {
		subtype = pkgzatca.InvoiceSubtypeSimplified
	}

	writeCbc(enc, "ProfileID", ProfileID)
	writeCbc(enc, "ID", inv.Reference)
	writeCbc(enc, "UUID", inv.UUID)
	writeCbc(enc, "IssueDate", inv.IssueDate.Format("2006-01-02"))
	writeCbc(enc, "IssueTime", inv.IssueDate.Format("15:04:05"))
	writeCbcWithAttr(enc, "InvoiceTypeCode", strconv.Itoa(inv.TypeCode), "name", subtype)
	if inv.IsCreditNote() && inv.RefundReason != nil {
		writeCbc(enc, "Note", inv.RefundReason.Label)
	}
	writeCbc(enc, "DocumentCurrencyCode", inv.CurrencyCode)
	writeCbc(enc, "TaxCurrencyCode", inv.CurrencyCode)

	// cac:BillingReference only on credit notes (BR-KSA-56)
	if inv.IsCreditNote() && inv.BillingReference != nil {
		s.writeBillingReference(enc, inv)
	}

	// chain references: counter, previous hash, then the QR slot
	s.writeCounterReference(enc, inv.Counter)
	s.writeHashReference(enc, PIHNodeID, inv.PreviousHash)
	s.writeQRReference(enc)

	if err := s.writeSupplierParty(enc, inv); err != nil {
		return nil, err
	}
	s.writeCustomerParty(enc, inv)

	s.writeTaxTotal(enc, inv)
	s.writeLegalMonetaryTotal(enc, inv)

	for _, line := range inv.Lines {
		s.writeInvoiceLine(enc, inv.CurrencyCode, line)
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ── token helpers ─────────────────────────────────────────────────────────────

func writeCbc(enc *xml.Encoder, local, value string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCbc, Local: local}})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCbc, Local: local}})
}

func writeCbcWithAttr(enc *xml.Encoder, local, value, attrLocal, attrValue string) {
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsCbc, Local: local},
		Attr: []xml.Attr{{Name: xml.Name{Local: attrLocal}, Value: attrValue}},
	})
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCbc, Local: local}})
}

func writeCbcAmount(enc *xml.Encoder, local, value, currency string) {
	writeCbcWithAttr(enc, local, value, "currencyID", currency)
}

func startCac(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsCac, Local: local}})
}

func endCac(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCac, Local: local}})
}

func formatAmount(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// ── document sections ─────────────────────────────────────────────────────────

func (s *XMLBuilderService) writePlaceholderExtensions(enc *xml.Encoder) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsExt, Local: "UBLExtensions"}})
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsExt, Local: "UBLExtension"}})
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Space: NsExt, Local: "ExtensionContent"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsExt, Local: "ExtensionContent"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsExt, Local: "UBLExtension"}})
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsExt, Local: "UBLExtensions"}})
}

func (s *XMLBuilderService) writeBillingReference(enc *xml.Encoder, inv *domzatca.SimplifiedInvoice) {
	startCac(enc, "BillingReference")
	startCac(enc, "InvoiceDocumentReference")
	writeCbc(enc, "ID", inv.BillingReference.ID)
	if !inv.BillingReference.IssueDate.IsZero() {
		writeCbc(enc, "IssueDate", inv.BillingReference.IssueDate.Format("2006-01-02"))
	}
	endCac(enc, "InvoiceDocumentReference")
	endCac(enc, "BillingReference")
}

func (s *XMLBuilderService) writeCounterReference(enc *xml.Encoder, counter int64) {
	startCac(enc, "AdditionalDocumentReference")
	writeCbc(enc, "ID", ICVNodeID)
	writeCbc(enc, "UUID", strconv.FormatInt(counter, 10))
	endCac(enc, "AdditionalDocumentReference")
}

func (s *XMLBuilderService) writeHashReference(enc *xml.Encoder, id, valueB64 string) {
	startCac(enc, "AdditionalDocumentReference")
	writeCbc(enc, "ID", id)
	startCac(enc, "Attachment")
	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Space: NsCbc, Local: "EmbeddedDocumentBinaryObject"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "mimeCode"}, Value: "text/plain"}},
	})
	_ = enc.EncodeToken(xml.CharData(valueB64))
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Space: NsCbc, Local: "EmbeddedDocumentBinaryObject"}})
	endCac(enc, "Attachment")
	endCac(enc, "AdditionalDocumentReference")
}

// writeQRReference emits the QR slot with a placeholder value; EmbedQR swaps
// in the real TLV payload once the document hash and signature exist.
func (s *XMLBuilderService) writeQRReference(enc *xml.Encoder) {
	s.writeHashReference(enc, QRNodeID, QRPlaceholder)
}

func (s *XMLBuilderService) writeSupplierParty(enc *xml.Encoder, inv *domzatca.SimplifiedInvoice) error {
	sup := inv.Supplier
	if sup.VAT == "" {
		return fmt.Errorf("zatca: supplier VAT number is required")
	}
	startCac(enc, "AccountingSupplierParty")
	startCac(enc, "Party")

	if sup.CommercialRegistration != "" {
		startCac(enc, "PartyIdentification")
		writeCbcWithAttr(enc, "ID", sup.CommercialRegistration, "schemeID", "CRN")
		endCac(enc, "PartyIdentification")
	}

	startCac(enc, "PostalAddress")
	writeCbc(enc, "StreetName", defaultStr(sup.Street, sup.City))
	writeCbc(enc, "BuildingNumber", defaultStr(sup.BuildingNumber, "0000"))
	writeCbc(enc, "PlotIdentification", defaultStr(sup.AdditionalNumber, "0000"))
	writeCbc(enc, "CitySubdivisionName", defaultStr(sup.District, sup.City))
	writeCbc(enc, "CityName", sup.City)
	writeCbc(enc, "PostalZone", defaultStr(sup.Zip, "00000"))
	if sup.State != "" {
		writeCbc(enc, "CountrySubentity", sup.State)
	}
	startCac(enc, "Country")
	writeCbc(enc, "IdentificationCode", defaultStr(sup.CountryCode, pkgzatca.CountryCodeSA))
	endCac(enc, "Country")
	endCac(enc, "PostalAddress")

	startCac(enc, "PartyTaxScheme")
	writeCbc(enc, "CompanyID", strings.TrimSpace(sup.VAT))
	startCac(enc, "TaxScheme")
	writeCbc(enc, "ID", "VAT")
	endCac(enc, "TaxScheme")
	endCac(enc, "PartyTaxScheme")

	startCac(enc, "PartyLegalEntity")
	writeCbc(enc, "RegistrationName", sup.Name)
	endCac(enc, "PartyLegalEntity")

	endCac(enc, "Party")
	endCac(enc, "AccountingSupplierParty")
	return nil
}

func (s *XMLBuilderService) writeCustomerParty(enc *xml.Encoder, inv *domzatca.SimplifiedInvoice) {
	startCac(enc, "AccountingCustomerParty")
	startCac(enc, "Party")
	startCac(enc, "PartyLegalEntity")
	writeCbc(enc, "RegistrationName", inv.CustomerName)
	endCac(enc, "PartyLegalEntity")
	endCac(enc, "Party")
	endCac(enc, "AccountingCustomerParty")
}

// writeTaxTotal aggregates lines into one TaxSubtotal per distinct rate.
func (s *XMLBuilderService) writeTaxTotal(enc *xml.Encoder, inv *domzatca.SimplifiedInvoice) {
	type rateBucket struct {
		rate    decimal.Decimal
		taxable decimal.Decimal
		tax     decimal.Decimal
	}
	var buckets []*rateBucket
	for _, line := range inv.Lines {
		var b *rateBucket
		for _, c := range buckets {
			if c.rate.Equal(line.TaxRate) {
				b = c
				break
			}
		}
		if b == nil {
			b = &rateBucket{rate: line.TaxRate}
			buckets = append(buckets, b)
		}
		b.taxable = b.taxable.Add(line.Net)
		b.tax = b.tax.Add(line.Tax)
	}

	startCac(enc, "TaxTotal")
	writeCbcAmount(enc, "TaxAmount", formatAmount(inv.TotalTax), inv.CurrencyCode)
	for _, b := range buckets {
		startCac(enc, "TaxSubtotal")
		writeCbcAmount(enc, "TaxableAmount", formatAmount(b.taxable), inv.CurrencyCode)
		writeCbcAmount(enc, "TaxAmount", formatAmount(b.tax), inv.CurrencyCode)
		startCac(enc, "TaxCategory")
		writeCbc(enc, "ID", taxCategoryID(b.rate))
		writeCbc(enc, "Percent", b.rate.Round(2).StringFixed(2))
		startCac(enc, "TaxScheme")
		writeCbc(enc, "ID", "VAT")
		endCac(enc, "TaxScheme")
		endCac(enc, "TaxCategory")
		endCac(enc, "TaxSubtotal")
	}
	endCac(enc, "TaxTotal")
}

func (s *XMLBuilderService) writeLegalMonetaryTotal(enc *xml.Encoder, inv *domzatca.SimplifiedInvoice) {
	cur := inv.CurrencyCode
	startCac(enc, "LegalMonetaryTotal")
	writeCbcAmount(enc, "LineExtensionAmount", formatAmount(inv.TotalWithoutTax), cur)
	writeCbcAmount(enc, "TaxExclusiveAmount", formatAmount(inv.TotalWithoutTax), cur)
	writeCbcAmount(enc, "TaxInclusiveAmount", formatAmount(inv.TotalWithTax), cur)
	writeCbcAmount(enc, "PayableAmount", formatAmount(inv.TotalWithTax), cur)
	endCac(enc, "LegalMonetaryTotal")
}

func (s *XMLBuilderService) writeInvoiceLine(enc *xml.Encoder, currency string, line domzatca.InvoiceLine) {
	startCac(enc, "InvoiceLine")
	writeCbc(enc, "ID", strconv.Itoa(line.Number))
	writeCbcWithAttr(enc, "InvoicedQuantity", line.Quantity.String(), "unitCode", "PCE")
	writeCbcAmount(enc, "LineExtensionAmount", formatAmount(line.Net), currency)

	// line-level tax with rounding amount (BR-KSA-51/52)
	startCac(enc, "TaxTotal")
	writeCbcAmount(enc, "TaxAmount", formatAmount(line.Tax), currency)
	writeCbcAmount(enc, "RoundingAmount", formatAmount(line.Net.Add(line.Tax)), currency)
	endCac(enc, "TaxTotal")

	startCac(enc, "Item")
	writeCbc(enc, "Name", line.ProductName)
	startCac(enc, "ClassifiedTaxCategory")
	writeCbc(enc, "ID", taxCategoryID(line.TaxRate))
	writeCbc(enc, "Percent", line.TaxRate.Round(2).StringFixed(2))
	startCac(enc, "TaxScheme")
	writeCbc(enc, "ID", "VAT")
	endCac(enc, "TaxScheme")
	endCac(enc, "ClassifiedTaxCategory")
	endCac(enc, "Item")

	startCac(enc, "Price")
	writeCbcAmount(enc, "PriceAmount", formatAmount(line.UnitPrice), currency)
	writeCbcWithAttr(enc, "BaseQuantity", line.BaseQuantity.String(), "unitCode", "PCE")
	endCac(enc, "Price")

	endCac(enc, "InvoiceLine")
}

// taxCategoryID maps a rate to the UNCL5305 category: S standard, Z zero rated.
func taxCategoryID(rate decimal.Decimal) string {
	if rate.IsZero() {
		return "Z"
	}
	return "S"
}

func defaultStr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
