// Package signer loads the CSID certificate material the signature service
// consumes, from .p12 files, PEM files or the PEM strings stored on a journal.
package signer

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// LoadFromP12 loads certificate and private key from a .p12/.pfx file.
// Password may be empty when the file is unprotected.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode p12: %w", err)
	}
	// pkcs12.Decode yields a single certificate; the leaf is all the
	// reporting API needs.
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// LoadFromPEM loads certificate and key from PEM files (separate, or the same
// file holding both).
func LoadFromPEM(certPath, keyPath string) (tls.Certificate, error) {
	if certPath == "" {
		return tls.Certificate{}, fmt.Errorf("certificate path is empty")
	}
	if keyPath == "" {
		keyPath = certPath
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load PEM pair: %w", err)
	}
	return cert, nil
}

// LoadFromPEMStrings builds the certificate from journal-stored PEM text.
func LoadFromPEMStrings(certPEM, keyPEM string) (tls.Certificate, error) {
	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse journal PEM pair: %w", err)
	}
	return cert, nil
}

// CertDigestAndIssuerSerial returns the SHA-256 digest of the certificate
// (base64), the issuer distinguished name and the decimal serial number, as
// the XAdES certificate reference requires.
func CertDigestAndIssuerSerial(cert *x509.Certificate) (digestB64, issuerName, serialDec string) {
	h := sha256.Sum256(cert.Raw)
	digestB64 = base64.StdEncoding.EncodeToString(h[:])
	issuerName = cert.Issuer.String()
	serialDec = cert.SerialNumber.String()
	return digestB64, issuerName, serialDec
}

// PublicKeyB64 returns the PKIX-encoded public key of the certificate in
// base64, the value QR tag 8 carries.
func PublicKeyB64(cert *x509.Certificate) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}
