// Package zatca: signing port for the e-invoice XML (ECDSA, XAdES B-B profile).

package zatca

import "crypto/tls"

// Signer signs an invoice XML and returns it with the signature block embedded
// in the authority-mandated UBL extension.
type Signer interface {
	// Sign takes the invoice XML (mandated extension present, no signature yet)
	// and the CSID certificate with private key, and returns the signed XML.
	// The embedded digest value node becomes the authoritative document hash.
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
}
