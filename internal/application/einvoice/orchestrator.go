package einvoice

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/repository"
	domzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/zatca"
	infrazatca "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/infrastructure/zatca"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/infrastructure/zatca/signer"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/logger"
	pkgzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/zatca"
)

// Orchestrator runs the full reporting pipeline for one order:
//
//	order → invoice build → UBL XML → XAdES signature → TLV QR → reporting API → persisted status
//
// Submission failures never propagate as errors: every attempt ends with a
// durable zatca_status (submitted or error) on the record. Operating modes
// (Config.AppEnv):
//   - "dev"  → build and sign, do NOT call the reporting API (simulated accept)
//   - "sim"  → submit to the authority's simulation portal
//   - "prod" → submit to the production reporting API
type Orchestrator struct {
	orderRepo   repository.OrderRepository
	companyRepo repository.CompanyRepository
	journalRepo repository.JournalRepository
	posRepo     repository.PosConfigRepository
	builder     *domzatca.InvoiceBuilderService
	xmlBuilder  *infrazatca.XMLBuilderService
	signer      pkgzatca.Signer
	submitter   infrazatca.ReportingSubmitter // nil only in dev mode
	renderer    ReceiptRenderer               // optional; failures degrade
	cfg         Config
	log         *logger.Logger
}

// NewOrchestrator wires the pipeline with all collaborators.
func NewOrchestrator(
	orderRepo repository.OrderRepository,
	companyRepo repository.CompanyRepository,
	journalRepo repository.JournalRepository,
	posRepo repository.PosConfigRepository,
	builder *domzatca.InvoiceBuilderService,
	xmlBuilder *infrazatca.XMLBuilderService,
	sig pkgzatca.Signer,
	submitter infrazatca.ReportingSubmitter,
	renderer ReceiptRenderer,
	cfg Config,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		orderRepo:   orderRepo,
		companyRepo: companyRepo,
		journalRepo: journalRepo,
		posRepo:     posRepo,
		builder:     builder,
		xmlBuilder:  xmlBuilder,
		signer:      sig,
		submitter:   submitter,
		renderer:    renderer,
		cfg:         cfg,
		log:         log,
	}
}

// SubmitOrder processes one order end to end and persists the outcome.
// The returned order reflects the persisted state. The error is non-nil only
// when the record itself cannot be processed at all (not found, legacy,
// already submitted misuse); submission failures land in zatca_status.
func (o *Orchestrator) SubmitOrder(ctx context.Context, orderID string) (*entity.Order, error) {
	order, err := o.orderRepo.GetByID(orderID)
	if err != nil || order == nil {
		return nil, fmt.Errorf("einvoice: order %s: %w", orderID, domain.ErrNotFound)
	}
	if order.ZATCAStatus == entity.ZATCAStatusLegacy {
		return order, fmt.Errorf("einvoice: order %s is a legacy record: %w", orderID, domain.ErrConflict)
	}
	if order.ZATCAStatus == entity.ZATCAStatusSubmitted {
		return order, nil
	}

	// markError persists the error outcome and logs it; the pipeline stops
	// but the caller sees no error.
	markError := func(step, msg string) {
		order.ZATCAStatus = entity.ZATCAStatusError
		order.ZATCAErrorMessage = msg
		order.UpdatedAt = time.Now()
		if uErr := o.orderRepo.UpdateZATCA(order); uErr != nil {
			o.log.Error().Err(uErr).Str("order_id", order.ID).Msg("could not persist error status")
		}
		o.log.Warn().Str("order_id", order.ID).Str("step", step).Msg(msg)
	}

	// 1) collaborating records and the eligibility gate
	company, err := o.companyRepo.GetByID(order.CompanyID)
	if err != nil || company == nil {
		markError("fetch-company", fmt.Sprintf("company %s not found: %v", order.CompanyID, err))
		return order, nil
	}
	var posCfg *entity.PosConfig
	if order.ConfigID != "" {
		posCfg, _ = o.posRepo.GetByID(order.ConfigID)
	}
	if vErr := eligible(order, company, posCfg); vErr != nil {
		markError("eligibility", vErr.Reason)
		return order, nil
	}

	journal, err := o.journalRepo.GetByCompanyID(order.CompanyID)
	if err != nil {
		markError("fetch-journal", fmt.Sprintf("journal lookup failed: %v", err))
		return order, nil
	}

	lines, err := o.orderRepo.GetLinesByOrderID(order.ID)
	if err != nil || len(lines) == 0 {
		markError("fetch-lines", fmt.Sprintf("order has no usable lines: %v", err))
		return order, nil
	}
	var refunded *entity.Order
	if order.RefundedOrderID != "" {
		refunded, _ = o.orderRepo.GetByID(order.RefundedOrderID)
	}

	// 2) chain position for this supplier
	priorInvoiced, err := o.orderRepo.CountInvoicedBefore(order.CompanyID, order.ID)
	if err != nil {
		markError("chain-count", fmt.Sprintf("counting invoiced records: %v", err))
		return order, nil
	}
	lastHash, err := o.orderRepo.LastInvoiceHash(order.CompanyID, order.ID)
	if err != nil {
		markError("chain-hash", fmt.Sprintf("reading previous hash: %v", err))
		return order, nil
	}
	chain := domzatca.NewChainState(priorInvoiced, lastHash, o.cfg.ChainModulus)

	// 3) invoice model and unsigned XML
	inv, err := o.builder.Build(&orderSource{order: order, refund: refunded, lines: lines}, supplierProfile(company), chain)
	if err != nil {
		markError("invoice-build", err.Error())
		return order, nil
	}
	xmlBytes, err := o.xmlBuilder.Build(&infrazatca.InvoiceBuildContext{Invoice: inv})
	if err != nil {
		markError("xml-build", (&XMLGenerationError{OrderID: order.ID, Step: "xml-build", Err: err}).Error())
		return order, nil
	}

	// 4) signing context, resolved once and reused by QR and submission
	signedXML, sc, scErr := o.resolveSigningContext(xmlBytes, journal)
	if scErr != nil {
		markError("xml-sign", scErr.Error())
		return order, nil
	}

	// 5) TLV QR, embedded into the document
	qrB64, err := domzatca.BuildQRPayload(inv, sc).Encode()
	if err != nil {
		markError("qr-encode", err.Error())
		return order, nil
	}
	finalXML, err := infrazatca.EmbedQR(signedXML, qrB64)
	if err != nil {
		markError("qr-embed", err.Error())
		return order, nil
	}
	order.QRCode = qrB64
	if sc.Available {
		order.InvoiceHash = sc.DocumentHash
	}

	// receipt artifact is best effort
	if o.renderer != nil {
		if _, rErr := o.renderer.RenderQRReceipt(order, qrB64); rErr != nil {
			o.log.Warn().Err(rErr).Str("order_id", order.ID).Msg("QR receipt rendering failed, keeping text payload")
		}
	}

	// 6) submit (or simulate) and persist the classified outcome
	result := o.submit(ctx, order, journal, sc, finalXML)
	now := time.Now()
	order.UpdatedAt = now
	if result.Accepted {
		order.ZATCAStatus = entity.ZATCAStatusSubmitted
		order.ZATCASubmissionTime = &now
		order.ZATCAErrorMessage = result.Warnings
	} else {
		order.ZATCAStatus = entity.ZATCAStatusError
		order.ZATCAErrorMessage = result.Errors
		// a rejection is still a completed exchange with the authority;
		// only transport and local failures leave the timestamp unset
		if result.AuthorityResponded {
			order.ZATCASubmissionTime = &now
		}
	}
	if err := o.orderRepo.UpdateZATCA(order); err != nil {
		o.log.Error().Err(err).Str("order_id", order.ID).Msg("could not persist submission outcome")
		return order, nil
	}

	o.log.Info().
		Str("order_id", order.ID).
		Str("status", order.ZATCAStatus).
		Bool("simulated", result.Simulated).
		Msg("reporting pipeline finished")
	return order, nil
}

// resolveSigningContext signs the document when certificate material exists
// and assembles the context shared by the QR encoder and the submitter.
// Without a certificate the document stays unsigned and the QR carries
// placeholders.
func (o *Orchestrator) resolveSigningContext(xmlBytes []byte, journal *entity.Journal) ([]byte, domzatca.SigningContext, error) {
	cert, ok, err := o.loadCertificate(journal)
	if err != nil {
		return nil, domzatca.SigningContext{}, err
	}
	if !ok {
		return xmlBytes, domzatca.SigningContext{}, nil
	}

	signedXML, err := o.signer.Sign(xmlBytes, cert)
	if err != nil {
		return nil, domzatca.SigningContext{}, fmt.Errorf("signing invoice: %w", err)
	}

	digest, sigValue, err := infrazatca.SigningArtifacts(signedXML)
	if err != nil {
		digest = infrazatca.RecomputeDigest(signedXML)
	}

	sc := domzatca.SigningContext{
		Available:    true,
		DocumentHash: digest,
		Signature:    sigValue,
	}
	if leaf := certLeaf(cert); leaf != nil {
		sc.IssuerName = leaf.Issuer.String()
		sc.SerialNumber = leaf.SerialNumber.String()
		if pub, pErr := signer.PublicKeyB64(leaf); pErr == nil {
			sc.PublicKey = pub
		}
	}
	return signedXML, sc, nil
}

// loadCertificate prefers the journal's stored CSID material and falls back
// to file paths from configuration. ok is false when neither is configured.
func (o *Orchestrator) loadCertificate(journal *entity.Journal) (tls.Certificate, bool, error) {
	if journal != nil && journal.CertificatePEM != "" && journal.PrivateKeyPEM != "" {
		cert, err := signer.LoadFromPEMStrings(journal.CertificatePEM, journal.PrivateKeyPEM)
		if err != nil {
			return tls.Certificate{}, false, fmt.Errorf("journal certificate: %w", err)
		}
		return cert, true, nil
	}
	if o.cfg.CertPath == "" {
		return tls.Certificate{}, false, nil
	}
	lower := strings.ToLower(o.cfg.CertPath)
	if strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx") {
		cert, err := signer.LoadFromP12(o.cfg.CertPath, o.cfg.CertPassword)
		if err != nil {
			return tls.Certificate{}, false, err
		}
		return cert, true, nil
	}
	cert, err := signer.LoadFromPEM(o.cfg.CertPath, o.cfg.CertKeyPath)
	if err != nil {
		return tls.Certificate{}, false, err
	}
	return cert, true, nil
}

// submit performs the environment-dependent delivery.
func (o *Orchestrator) submit(ctx context.Context, order *entity.Order, journal *entity.Journal, sc domzatca.SigningContext, finalXML []byte) infrazatca.SubmissionResult {
	appEnv := strings.ToLower(strings.TrimSpace(o.cfg.AppEnv))
	if appEnv == "" || appEnv == infrazatca.AppEnvDev {
		o.log.Debug().Str("order_id", order.ID).Msg("dev mode, skipping reporting API call")
		return infrazatca.SubmissionResult{Accepted: true, Simulated: true, ReportingStatus: pkgzatca.ReportingStatusReported}
	}

	if journal == nil || !journal.ReadyToSubmit() {
		return infrazatca.SubmissionResult{Errors: domain.ErrJournalNotReady.Error()}
	}
	if o.submitter == nil {
		return infrazatca.SubmissionResult{Errors: fmt.Sprintf("no reporting submitter configured for environment %q", appEnv)}
	}

	hash := order.InvoiceHash
	if hash == "" {
		hash = infrazatca.RecomputeDigest(finalXML)
	}
	return o.submitter.SubmitInvoice(ctx, infrazatca.Credentials{
		CSID:   csidUsername(journal, sc),
		Secret: journal.CSIDSecret,
	}, infrazatca.ReportRequest{
		InvoiceHash: hash,
		UUID:        order.UUID,
		SignedXML:   finalXML,
	})
}

// csidUsername is the Basic auth username: the base64 certificate.
func csidUsername(journal *entity.Journal, sc domzatca.SigningContext) string {
	pem := strings.TrimSpace(journal.CertificatePEM)
	if pem == "" {
		return sc.PublicKey
	}
	if strings.HasPrefix(pem, "-----") {
		return base64.StdEncoding.EncodeToString([]byte(pem))
	}
	// already base64 DER
	return pem
}

func certLeaf(cert tls.Certificate) *x509.Certificate {
	if cert.Leaf != nil {
		return cert.Leaf
	}
	if len(cert.Certificate) == 0 {
		return nil
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil
	}
	return leaf
}
