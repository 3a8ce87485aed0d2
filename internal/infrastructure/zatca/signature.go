// XAdES B-B signing of the simplified invoice. The ds:Signature block lands
// inside the mandated UBL signature extension; the DigestValue of the
// "invoiceSignedData" reference is the authoritative document hash and the
// next link of the supplier's chain.

package zatca

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/ucarion/c14n"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/infrastructure/zatca/signer"
	pkgzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/zatca"
)

// XMLDSig / XAdES algorithm identifiers.
const (
	AlgC14N            = "http://www.w3.org/2006/12/xml-c14n11"
	AlgECDSASHA256     = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256"
	AlgSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"

	// DocDigestReferenceID is the Id of the document reference; its
	// DigestValue is what the reporting API and the hash chain consume.
	DocDigestReferenceID = "invoiceSignedData"
)

// DigitalSignatureService implements pkg/zatca.Signer: canonicalize, digest,
// ECDSA-sign and inject the XAdES block into the mandated extension.
type DigitalSignatureService struct{}

// NewDigitalSignatureService creates the service.
func NewDigitalSignatureService() *DigitalSignatureService {
	return &DigitalSignatureService{}
}

// Sign signs the unsigned invoice XML with the CSID certificate.
func (s *DigitalSignatureService) Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("zatca: empty XML")
	}
	priv, ok := cert.PrivateKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("zatca: CSID private key must be ECDSA")
	}
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("zatca: certificate chain is empty")
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("zatca: parse certificate: %w", err)
	}

	// 1) canonical form of the document, then its SHA-256 digest
	canonicalDoc, err := canonicalizeXML(xmlBytes)
	if err != nil {
		canonicalDoc = xmlBytes
	}
	docDigest := sha256.Sum256(canonicalDoc)
	docDigestB64 := base64.StdEncoding.EncodeToString(docDigest[:])

	// 2) SignedInfo referencing the document digest
	signedInfoXML := buildSignedInfo(docDigestB64)
	canonicalSignedInfo, err := canonicalizeXML([]byte(signedInfoXML))
	if err != nil {
		canonicalSignedInfo = []byte(signedInfoXML)
	}
	signHash := sha256.Sum256(canonicalSignedInfo)
	signatureValue, err := ecdsa.SignASN1(rand.Reader, priv, signHash[:])
	if err != nil {
		return nil, fmt.Errorf("zatca: sign SignedInfo: %w", err)
	}
	signatureValueB64 := base64.StdEncoding.EncodeToString(signatureValue)

	// 3) certificate material for KeyInfo and the XAdES certificate reference
	certB64 := base64.StdEncoding.EncodeToString(x509Cert.Raw)
	certDigestB64, issuerName, serialDec := signer.CertDigestAndIssuerSerial(x509Cert)
	signingTime := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	sigXML := buildFullSignature(signedInfoXML, signatureValueB64, certB64,
		signingTime, certDigestB64, issuerName, serialDec)

	// 4) replace the placeholder extension with the mandated block
	return replaceSignatureExtension(xmlBytes, sigXML)
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func buildSignedInfo(docDigestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo xmlns:ds="` + NsDs + `">`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgECDSASHA256 + `"/>`)
	sb.WriteString(`<ds:Reference Id="` + DocDigestReferenceID + `" URI="">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<ds:Transform Algorithm="` + AlgC14N + `"/></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + docDigestB64 + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

func buildFullSignature(signedInfoXML, signatureValueB64, certB64, signingTime, certDigestB64, issuerName, serialDec string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:Signature xmlns:ds="` + NsDs + `" xmlns:xades="` + NsXades + `" Id="signature">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<ds:SignatureValue>` + signatureValueB64 + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + certB64 + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`<ds:Object><xades:QualifyingProperties Target="#signature">`)
	sb.WriteString(`<xades:SignedProperties Id="xadesSignedProperties">`)
	sb.WriteString(`<xades:SignedSignatureProperties>`)
	sb.WriteString(`<xades:SigningTime>` + signingTime + `</xades:SigningTime>`)
	sb.WriteString(`<xades:SigningCertificate><xades:Cert>`)
	sb.WriteString(`<xades:CertDigest><ds:DigestMethod Algorithm="` + AlgSHA256 + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + certDigestB64 + `</ds:DigestValue></xades:CertDigest>`)
	sb.WriteString(`<xades:IssuerSerial><ds:X509IssuerName>` + escapeXML(issuerName) + `</ds:X509IssuerName>`)
	sb.WriteString(`<ds:X509SerialNumber>` + serialDec + `</ds:X509SerialNumber></xades:IssuerSerial>`)
	sb.WriteString(`</xades:Cert></xades:SigningCertificate>`)
	sb.WriteString(`</xades:SignedSignatureProperties></xades:SignedProperties>`)
	sb.WriteString(`</xades:QualifyingProperties></ds:Object>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

// RecomputeDigest is the fallback when a signed document lacks the digest
// node: canonical SHA-256 of the bytes, base64.
func RecomputeDigest(xmlBytes []byte) string {
	canonical, err := canonicalizeXML(xmlBytes)
	if err != nil {
		canonical = xmlBytes
	}
	sum := sha256.Sum256(canonical)
	return base64.StdEncoding.EncodeToString(sum[:])
}

var _ pkgzatca.Signer = (*DigitalSignatureService)(nil)
