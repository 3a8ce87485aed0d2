package entity

import "time"

// Journal holds a company's e-invoicing credentials: the production CSID
// (cryptographic stamp identifier) obtained during onboarding, plus the
// secret used to authorize reporting API calls. Onboarding itself happens
// outside this system; the pipeline only reads.
type Journal struct {
	ID             string
	CompanyID      string
	CertificatePEM string // CSID certificate, PEM or base64 DER
	PrivateKeyPEM  string // ECDSA private key bound to the CSID
	CSIDSecret     string // API secret paired with the CSID for Basic auth
	IssuerName     string
	SerialNumber   string
	Onboarded      bool // true once the production CSID has been issued
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReadyToSubmit reports whether the journal can sign and submit e-invoices.
func (j *Journal) ReadyToSubmit() bool {
	return j != nil && j.Onboarded && j.CertificatePEM != "" && j.PrivateKeyPEM != ""
}
