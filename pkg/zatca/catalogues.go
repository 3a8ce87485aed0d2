// Package zatca contains catalogues and constants aligned with the ZATCA
// (Saudi tax authority) e-invoicing regulation for simplified (B2C) invoices,
// phase 2 "integration", reporting mode.
package zatca

// =============================================================================
// Invoice type codes (UBL cbc:InvoiceTypeCode, KSA rules BR-KSA-05/06)
// =============================================================================

const (
	// TypeCodeStandard is a standard simplified invoice.
	TypeCodeStandard = 388
	// TypeCodeCreditNote is a credit note (refund) referencing the original invoice.
	TypeCodeCreditNote = 381

	// InvoiceSubtypeSimplified is the cbc:InvoiceTypeCode/@name value marking a
	// simplified (consumer-facing) document under the reporting regime.
	InvoiceSubtypeSimplified = "0211010"
)

// =============================================================================
// Refund reason codes (required on credit notes, KSA-10)
// =============================================================================

const (
	RefundReasonDescError     = "DESC_ERROR"
	RefundReasonQtyError      = "QTY_ERROR"
	RefundReasonPriceError    = "PRICE_ERROR"
	RefundReasonProductDefect = "PRODUCT_DEFECT"
	RefundReasonCustomer      = "CUSTOMER_REQUEST"
	RefundReasonOther         = "OTHER_REASON"
)

// RefundReasonLabels maps reason codes to their bilingual display labels.
var RefundReasonLabels = map[string]string{
	RefundReasonDescError:     "Description Error - عيب في الوصف",
	RefundReasonQtyError:      "Quantity Error - خطأ في الكمية",
	RefundReasonPriceError:    "Price Error - خطأ في السعر",
	RefundReasonProductDefect: "Product Defect - عطل في المنتج",
	RefundReasonCustomer:      "Customer Cancellation - إلغاء بطلب العميل",
	RefundReasonOther:         "Other Reasons - أسباب أخرى",
}

// ValidRefundReasonCode reports whether code is a known refund reason.
func ValidRefundReasonCode(code string) bool {
	_, ok := RefundReasonLabels[code]
	return ok
}

// =============================================================================
// QR payload tags (TLV, annex 2 of the e-invoicing resolution)
// =============================================================================

const (
	QRTagSellerName     = 1 // seller name
	QRTagVATNumber      = 2 // VAT registration number
	QRTagTimestamp      = 3 // invoice timestamp (RFC 3339)
	QRTagTotalWithVAT   = 4 // invoice total including VAT
	QRTagVATTotal       = 5 // VAT total
	QRTagInvoiceHash    = 6 // document hash (phase 2)
	QRTagSignatureAlg   = 7 // signature algorithm
	QRTagPublicKey      = 8 // public key fragment
	QRTagSignatureValue = 9 // signature fragment
)

// Placeholder QR material used when no CSID certificate is available.
// These keep the TLV structurally valid but carry no cryptographic meaning.
const (
	SignatureAlgECDSA     = "ECDSA"
	PublicKeyPlaceholder  = "PUBLIC_KEY_PLACEHOLDER"
	SignaturePlaceholder  = "SIGNATURE_PLACEHOLDER"
	QRFragmentLength      = 20 // key/signature fragments are truncated to this many chars
	FallbackHashHexLength = 32 // tag-6 fallback: truncated SHA-256 hex of name+total
)

// =============================================================================
// Hash chain (PIH, KSA-61 / counter KSA-33)
// =============================================================================

const (
	// ChainSeedHash is the previous-invoice-hash of the first document in a chain:
	// base64 of the SHA-256 hex digest of "0", per the authority SDK convention.
	ChainSeedHash = "NWZlY2ViNjZmZmM4NmYzOGQ5NTI3ODZjNmQ2OTZjNzljMmRiYzIzOWRkNGU5MWI0NjcyOWQ3M2EyN2ZiNTdlOQ=="

	// DefaultChainModulus bounds the invoice counter so it stays numerically short.
	DefaultChainModulus = 999999
)

// =============================================================================
// Jurisdiction / submission
// =============================================================================

const (
	// CountryCodeSA marks companies under the regulated jurisdiction.
	CountryCodeSA = "SA"

	// DefaultCurrency for Saudi POS orders.
	DefaultCurrency = "SAR"

	// ReportingStatusReported is the authority status confirming full acceptance.
	ReportingStatusReported = "REPORTED"

	// ClearanceStatusReporting is the Clearance-Status header value for the
	// reporting (simplified, post-hoc) mode; "1" would request clearance.
	ClearanceStatusReporting = "0"

	// CashCustomerName is the default B2C customer name (Arabic "cash customer").
	CashCustomerName = "عميل نقدي"
)
