package zatca

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	pkgzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/zatca"
)

// SigningContext is the certificate material of one submission attempt,
// resolved once and shared by QR build, signing and submission. When
// Available is false the QR carries placeholder fields and the document
// goes out unsigned (dev / not-yet-onboarded journals).
type SigningContext struct {
	Available    bool
	DocumentHash string // digest embedded in the signed XML
	PublicKey    string // base64 public key of the CSID
	Signature    string // base64 signature value
	IssuerName   string
	SerialNumber string
}

// BuildQRPayload assembles the 9-tag QR map for an invoice.
// Tags 1-5 always carry seller, VAT number, timestamp and totals. Tags 6-9
// carry real cryptographic material when a certificate is available, fixed
// placeholders otherwise.
//
// The certificate-less tag 6 is a SHA-256 of reference+gross truncated to 32
// hex chars: a deterministic display placeholder with no linkage to any
// signed document hash.
func BuildQRPayload(inv *SimplifiedInvoice, sc SigningContext) Payload {
	p := Payload{
		pkgzatca.QRTagSellerName:   inv.Supplier.Name,
		pkgzatca.QRTagVATNumber:    inv.Supplier.VAT,
		pkgzatca.QRTagTimestamp:    inv.IssueDate.UTC().Format(time.RFC3339),
		pkgzatca.QRTagTotalWithVAT: inv.TotalWithTax.StringFixed(2),
		pkgzatca.QRTagVATTotal:     inv.TotalTax.StringFixed(2),
	}

	if sc.Available && sc.DocumentHash != "" {
		p[pkgzatca.QRTagInvoiceHash] = sc.DocumentHash
		p[pkgzatca.QRTagSignatureAlg] = pkgzatca.SignatureAlgECDSA
		p[pkgzatca.QRTagPublicKey] = fragment(sc.PublicKey)
		p[pkgzatca.QRTagSignatureValue] = fragment(sc.Signature)
		return p
	}

	p[pkgzatca.QRTagInvoiceHash] = fallbackHash(inv.Reference, inv.TotalWithTax.StringFixed(2))
	p[pkgzatca.QRTagSignatureAlg] = pkgzatca.SignatureAlgECDSA
	p[pkgzatca.QRTagPublicKey] = fragment(base64.StdEncoding.EncodeToString([]byte(pkgzatca.PublicKeyPlaceholder)))
	p[pkgzatca.QRTagSignatureValue] = fragment(base64.StdEncoding.EncodeToString([]byte(pkgzatca.SignaturePlaceholder)))
	return p
}

func fragment(s string) string {
	if len(s) > pkgzatca.QRFragmentLength {
		return s[:pkgzatca.QRFragmentLength]
	}
	return s
}

func fallbackHash(reference, grossTotal string) string {
	sum := sha256.Sum256([]byte(reference + grossTotal))
	return hex.EncodeToString(sum[:])[:pkgzatca.FallbackHashHexLength]
}
