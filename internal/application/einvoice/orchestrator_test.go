package einvoice_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/application/einvoice"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"
	domzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/zatca"
	infrazatca "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/infrastructure/zatca"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/logger"
	pkgzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/zatca"
)

// ── in-memory repositories ────────────────────────────────────────────────────

type memOrderRepo struct {
	orders  map[string]*entity.Order
	lines   map[string][]*entity.OrderLine
	updates []string // order IDs in persist order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: map[string]*entity.Order{}, lines: map[string][]*entity.OrderLine{}}
}

func (r *memOrderRepo) Create(o *entity.Order) error { r.orders[o.ID] = o; return nil }

func (r *memOrderRepo) CreateLine(l *entity.OrderLine) error {
	r.lines[l.OrderID] = append(r.lines[l.OrderID], l)
	return nil
}

func (r *memOrderRepo) GetByID(id string) (*entity.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

func (r *memOrderRepo) GetLinesByOrderID(orderID string) ([]*entity.OrderLine, error) {
	return r.lines[orderID], nil
}

func (r *memOrderRepo) UpdateZATCA(o *entity.Order) error {
	if _, ok := r.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	r.orders[o.ID] = o
	r.updates = append(r.updates, o.ID)
	return nil
}

func (r *memOrderRepo) sortedByCreation(filter func(*entity.Order) bool) []*entity.Order {
	var out []*entity.Order
	for _, o := range r.orders {
		if filter(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *memOrderRepo) ListQueued() ([]*entity.Order, error) {
	return r.sortedByCreation(func(o *entity.Order) bool {
		return o.ZATCAStatus == entity.ZATCAStatusQueued
	}), nil
}

func (r *memOrderRepo) ListFailedSince(since time.Time, limit int) ([]*entity.Order, error) {
	out := r.sortedByCreation(func(o *entity.Order) bool {
		return o.ZATCAStatus == entity.ZATCAStatusError && !o.CreatedAt.Before(since)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memOrderRepo) CountInvoicedBefore(companyID, orderID string) (int64, error) {
	ref := r.orders[orderID]
	var n int64
	for _, o := range r.orders {
		if o.CompanyID == companyID && o.InvoiceHash != "" && ref != nil && o.CreatedAt.Before(ref.CreatedAt) {
			n++
		}
	}
	return n, nil
}

func (r *memOrderRepo) LastInvoiceHash(companyID, orderID string) (string, error) {
	ref := r.orders[orderID]
	var last *entity.Order
	for _, o := range r.orders {
		if o.CompanyID != companyID || o.InvoiceHash == "" || ref == nil || !o.CreatedAt.Before(ref.CreatedAt) {
			continue
		}
		if last == nil || o.CreatedAt.After(last.CreatedAt) {
			last = o
		}
	}
	if last == nil {
		return "", nil
	}
	return last.InvoiceHash, nil
}

type memCompanyRepo struct{ companies map[string]*entity.Company }

func (r *memCompanyRepo) Create(c *entity.Company) error { r.companies[c.ID] = c; return nil }
func (r *memCompanyRepo) GetByID(id string) (*entity.Company, error) {
	c, ok := r.companies[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

type memJournalRepo struct{ journals map[string]*entity.Journal } // keyed by company

func (r *memJournalRepo) Create(j *entity.Journal) error { r.journals[j.CompanyID] = j; return nil }
func (r *memJournalRepo) GetByID(id string) (*entity.Journal, error) {
	for _, j := range r.journals {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (r *memJournalRepo) GetByCompanyID(companyID string) (*entity.Journal, error) {
	return r.journals[companyID], nil
}

type memPosRepo struct{ configs map[string]*entity.PosConfig }

func (r *memPosRepo) Create(c *entity.PosConfig) error { r.configs[c.ID] = c; return nil }
func (r *memPosRepo) GetByID(id string) (*entity.PosConfig, error) {
	c, ok := r.configs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

// ── stub collaborators ────────────────────────────────────────────────────────

type stubSubmitter struct {
	result infrazatca.SubmissionResult
	calls  []infrazatca.ReportRequest
}

func (s *stubSubmitter) SubmitInvoice(ctx context.Context, creds infrazatca.Credentials, req infrazatca.ReportRequest) infrazatca.SubmissionResult {
	s.calls = append(s.calls, req)
	return s.result
}

type stubRenderer struct {
	fail  bool
	calls int
}

func (s *stubRenderer) RenderQRReceipt(order *entity.Order, qrB64 string) ([]byte, error) {
	s.calls++
	if s.fail {
		return nil, assert.AnError
	}
	return []byte("%PDF"), nil
}

// ── fixture ───────────────────────────────────────────────────────────────────

type fixture struct {
	orders    *memOrderRepo
	companies *memCompanyRepo
	journals  *memJournalRepo
	pos       *memPosRepo
	submitter *stubSubmitter
	renderer  *stubRenderer
}

func newFixture() *fixture {
	f := &fixture{
		orders:    newMemOrderRepo(),
		companies: &memCompanyRepo{companies: map[string]*entity.Company{}},
		journals:  &memJournalRepo{journals: map[string]*entity.Journal{}},
		pos:       &memPosRepo{configs: map[string]*entity.PosConfig{}},
		submitter: &stubSubmitter{},
		renderer:  &stubRenderer{},
	}
	f.companies.companies["co1"] = &entity.Company{
		ID: "co1", Name: "ACME", VAT: "300123456700003", City: "Riyadh", CountryCode: "SA",
	}
	f.pos.configs["pos1"] = &entity.PosConfig{ID: "pos1", CompanyID: "co1", DirectModeEnabled: true, JournalID: "j1"}
	return f
}

func (f *fixture) orchestrator(t *testing.T, cfg einvoice.Config) *einvoice.Orchestrator {
	t.Helper()
	return einvoice.NewOrchestrator(
		f.orders, f.companies, f.journals, f.pos,
		domzatca.NewInvoiceBuilderService(),
		infrazatca.NewXMLBuilderService(),
		infrazatca.NewDigitalSignatureService(),
		f.submitter,
		f.renderer,
		cfg,
		testLogger(),
	)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Env: "development", Level: "error"})
}

func (f *fixture) addQueuedOrder(id string, created time.Time) *entity.Order {
	order := &entity.Order{
		ID:           id,
		CompanyID:    "co1",
		ConfigID:     "pos1",
		Name:         "POS/" + id,
		UUID:         "uuid-" + id,
		CurrencyCode: "SAR",
		DateOrder:    created,
		ZATCAStatus:  entity.ZATCAStatusQueued,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	_ = f.orders.Create(order)
	_ = f.orders.CreateLine(&entity.OrderLine{
		ID: id + "-l1", OrderID: id, ProductName: "Dates box",
		Quantity:  decimal.NewFromInt(2),
		UnitPrice: decimal.NewFromInt(10),
		TaxRate:   decimal.NewFromInt(15),
	})
	return order
}

// onboardJournal installs a journal with a freshly generated CSID pair so the
// real signature service can run.
func (f *fixture) onboardJournal(t *testing.T) {
	t.Helper()
	certPEM, keyPEM := generateTestCSID(t)
	f.journals.journals["co1"] = &entity.Journal{
		ID: "j1", CompanyID: "co1",
		CertificatePEM: certPEM, PrivateKeyPEM: keyPEM,
		CSIDSecret: "secret", Onboarded: true,
	}
}

func generateTestCSID(t *testing.T) (certPEM, keyPEM string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "test-csid"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	return certPEM, keyPEM
}

// ── pipeline outcomes ─────────────────────────────────────────────────────────

// Dev mode without a certificate: the document goes through unsigned, the QR
// carries placeholders and the record still reaches submitted.
func TestSubmitOrder_DevModeWithoutCertificate(t *testing.T) {
	f := newFixture()
	f.addQueuedOrder("o1", time.Now())

	orch := f.orchestrator(t, einvoice.Config{AppEnv: "dev"})
	order, err := orch.SubmitOrder(context.Background(), "o1")
	require.NoError(t, err)

	assert.Equal(t, entity.ZATCAStatusSubmitted, order.ZATCAStatus)
	assert.NotNil(t, order.ZATCASubmissionTime)
	assert.Empty(t, order.ZATCAErrorMessage)
	assert.Empty(t, f.submitter.calls, "dev mode must not call the reporting API")
	assert.Equal(t, 1, f.renderer.calls)

	// the stored QR decodes and carries the placeholder signature alg
	payload, err := domzatca.DecodePayload(order.QRCode)
	require.NoError(t, err)
	assert.Equal(t, "ACME", payload[pkgzatca.QRTagSellerName])
	assert.Equal(t, pkgzatca.SignatureAlgECDSA, payload[pkgzatca.QRTagSignatureAlg])
}

// Sim mode with a full CSID: the document is signed, the QR carries the real
// digest, and a warning-only validation still lands on submitted (the
// warnings are kept on the record).
func TestSubmitOrder_SignedAcceptedWithWarnings(t *testing.T) {
	f := newFixture()
	f.addQueuedOrder("o1", time.Now())
	f.onboardJournal(t)
	f.submitter.result = infrazatca.SubmissionResult{
		Accepted:        true,
		Warnings:        "BR-KSA-W-01: minor field issue",
		ReportingStatus: pkgzatca.ReportingStatusReported,
	}

	orch := f.orchestrator(t, einvoice.Config{AppEnv: "sim"})
	order, err := orch.SubmitOrder(context.Background(), "o1")
	require.NoError(t, err)

	assert.Equal(t, entity.ZATCAStatusSubmitted, order.ZATCAStatus)
	assert.Contains(t, order.ZATCAErrorMessage, "BR-KSA-W-01")
	assert.NotEmpty(t, order.InvoiceHash)
	require.Len(t, f.submitter.calls, 1)
	assert.Equal(t, order.InvoiceHash, f.submitter.calls[0].InvoiceHash)
	assert.Equal(t, "uuid-o1", f.submitter.calls[0].UUID)

	payload, err := domzatca.DecodePayload(order.QRCode)
	require.NoError(t, err)
	assert.Equal(t, order.InvoiceHash, payload[pkgzatca.QRTagInvoiceHash])
}

// A validation rejection is still a completed exchange with the authority,
// so the submission timestamp is recorded alongside the error text.
func TestSubmitOrder_RejectionPersistsError(t *testing.T) {
	f := newFixture()
	f.addQueuedOrder("o1", time.Now())
	f.onboardJournal(t)
	f.submitter.result = infrazatca.SubmissionResult{
		AuthorityResponded: true,
		Errors:             "BR-KSA-14: invalid VAT number",
	}

	orch := f.orchestrator(t, einvoice.Config{AppEnv: "sim"})
	order, err := orch.SubmitOrder(context.Background(), "o1")
	require.NoError(t, err, "rejection is an outcome, not an error")

	assert.Equal(t, entity.ZATCAStatusError, order.ZATCAStatus)
	assert.Contains(t, order.ZATCAErrorMessage, "BR-KSA-14")
	assert.NotNil(t, order.ZATCASubmissionTime)
}

// Transport failures never reached the authority, so no submission time is
// recorded and the order can be retried as if it was never sent.
func TestSubmitOrder_TransportFailureLeavesTimeUnset(t *testing.T) {
	f := newFixture()
	f.addQueuedOrder("o1", time.Now())
	f.onboardJournal(t)
	f.submitter.result = infrazatca.SubmissionResult{
		Errors: "reporting API unreachable: connection refused",
	}

	orch := f.orchestrator(t, einvoice.Config{AppEnv: "sim"})
	order, err := orch.SubmitOrder(context.Background(), "o1")
	require.NoError(t, err)

	assert.Equal(t, entity.ZATCAStatusError, order.ZATCAStatus)
	assert.Nil(t, order.ZATCASubmissionTime)
}

func TestSubmitOrder_JournalNotReady(t *testing.T) {
	f := newFixture()
	f.addQueuedOrder("o1", time.Now())
	// journal exists but was never onboarded
	f.journals.journals["co1"] = &entity.Journal{ID: "j1", CompanyID: "co1"}

	orch := f.orchestrator(t, einvoice.Config{AppEnv: "sim"})
	order, err := orch.SubmitOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, entity.ZATCAStatusError, order.ZATCAStatus)
	assert.Contains(t, order.ZATCAErrorMessage, "journal not ready")
}

// ── gate and guard rails ──────────────────────────────────────────────────────

func TestSubmitOrder_NotFound(t *testing.T) {
	f := newFixture()
	orch := f.orchestrator(t, einvoice.Config{AppEnv: "dev"})
	_, err := orch.SubmitOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubmitOrder_LegacyNeverMutated(t *testing.T) {
	f := newFixture()
	order := f.addQueuedOrder("o1", time.Now())
	order.ZATCAStatus = entity.ZATCAStatusLegacy

	orch := f.orchestrator(t, einvoice.Config{AppEnv: "dev"})
	_, err := orch.SubmitOrder(context.Background(), "o1")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, entity.ZATCAStatusLegacy, f.orders.orders["o1"].ZATCAStatus)
	assert.Empty(t, f.orders.updates, "legacy records must never be persisted")
}

func TestSubmitOrder_AlreadySubmittedIsNoop(t *testing.T) {
	f := newFixture()
	order := f.addQueuedOrder("o1", time.Now())
	order.ZATCAStatus = entity.ZATCAStatusSubmitted

	orch := f.orchestrator(t, einvoice.Config{AppEnv: "dev"})
	got, err := orch.SubmitOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, entity.ZATCAStatusSubmitted, got.ZATCAStatus)
	assert.Empty(t, f.orders.updates)
}

func TestSubmitOrder_IneligibleDirectModeOff(t *testing.T) {
	f := newFixture()
	f.pos.configs["pos1"].DirectModeEnabled = false
	f.addQueuedOrder("o1", time.Now())

	orch := f.orchestrator(t, einvoice.Config{AppEnv: "dev"})
	order, err := orch.SubmitOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, entity.ZATCAStatusError, order.ZATCAStatus)
	assert.Contains(t, order.ZATCAErrorMessage, "direct reporting is disabled")
}

func TestSubmitOrder_RefundWithoutReason(t *testing.T) {
	f := newFixture()
	order := f.addQueuedOrder("o1", time.Now())
	order.RefundedOrderID = "original"
	order.RefundReason = ""

	orch := f.orchestrator(t, einvoice.Config{AppEnv: "dev"})
	got, err := orch.SubmitOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, entity.ZATCAStatusError, got.ZATCAStatus)
	assert.Contains(t, got.ZATCAErrorMessage, "refund has no reason code")
}

// Receipt rendering failures degrade to the bare payload; the submission
// still completes.
func TestSubmitOrder_RendererFailureDoesNotAbort(t *testing.T) {
	f := newFixture()
	f.addQueuedOrder("o1", time.Now())
	f.renderer.fail = true

	orch := f.orchestrator(t, einvoice.Config{AppEnv: "dev"})
	order, err := orch.SubmitOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, entity.ZATCAStatusSubmitted, order.ZATCAStatus)
	assert.NotEmpty(t, order.QRCode)
}
