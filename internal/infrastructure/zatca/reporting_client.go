package zatca

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgzatca "github.com/amr-devops/l10n-sa-edi-pos-direct/pkg/zatca"
)

// ── environment constants ─────────────────────────────────────────────────────

const (
	// AppEnvDev signs documents locally and never calls the reporting API.
	AppEnvDev = "dev"
	// AppEnvSim targets the authority's simulation portal.
	AppEnvSim = "sim"
	// AppEnvProd targets the production reporting API.
	AppEnvProd = "prod"

	baseURLSim  = "https://gw-fatoora.zatca.gov.sa/e-invoicing/simulation"
	baseURLProd = "https://gw-fatoora.zatca.gov.sa/e-invoicing/core"

	reportingPath = "/invoices/reporting/single"
)

// ── port ──────────────────────────────────────────────────────────────────────

// Credentials authorize one reporting call: the base64 CSID certificate acts
// as the username, the paired secret as the password (Basic auth).
type Credentials struct {
	CSID   string
	Secret string
}

// ReportRequest is one document submission.
type ReportRequest struct {
	InvoiceHash string // base64 document digest
	UUID        string
	SignedXML   []byte
}

// SubmissionResult is the classified outcome of a submission attempt. The
// client never returns an error: transport failures, rejections and
// acceptances all land here, and the state machine decides what to persist.
type SubmissionResult struct {
	Accepted           bool   // authority accepted the document (possibly with warnings)
	AuthorityResponded bool   // the response carried a validation verdict (not a transport failure)
	Warnings           string // joined warning messages, empty when none
	Errors             string // joined error/transport messages, empty on acceptance
	ReportingStatus    string // raw reportingStatus echoed by the API
	Simulated          bool   // true when no network call was made (dev mode)
}

// ReportingSubmitter is the outbound port for delivering signed invoices to
// the reporting API. Tests and the dev environment inject substitutes.
type ReportingSubmitter interface {
	SubmitInvoice(ctx context.Context, creds Credentials, req ReportRequest) SubmissionResult
}

// ── HTTP implementation ───────────────────────────────────────────────────────

// ReportingClient implements ReportingSubmitter over plain net/http. The API
// is a small JSON POST; no third-party HTTP stack earns its place here.
type ReportingClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewReportingClient builds the client for the given environment. baseURL
// overrides the per-environment default when non-empty (tests, proxies).
// The generous timeout accounts for the authority's validation latency.
func NewReportingClient(env, baseURL string) *ReportingClient {
	if baseURL == "" {
		switch strings.ToLower(strings.TrimSpace(env)) {
		case AppEnvProd:
			baseURL = baseURLProd
		default:
			baseURL = baseURLSim
		}
	}
	return &ReportingClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type reportingRequestBody struct {
	InvoiceHash string `json:"invoiceHash"`
	UUID        string `json:"uuid"`
	Invoice     string `json:"invoice"` // base64 of the signed XML
}

type validationMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type validationResults struct {
	Status          string              `json:"status"`
	WarningMessages []validationMessage `json:"warningMessages"`
	ErrorMessages   []validationMessage `json:"errorMessages"`
}

type reportingResponseBody struct {
	ValidationResults *validationResults `json:"validationResults"`
	ReportingStatus   string             `json:"reportingStatus"`
}

// SubmitInvoice posts the signed document and classifies the response.
func (c *ReportingClient) SubmitInvoice(ctx context.Context, creds Credentials, req ReportRequest) SubmissionResult {
	body, err := json.Marshal(reportingRequestBody{
		InvoiceHash: req.InvoiceHash,
		UUID:        req.UUID,
		Invoice:     base64.StdEncoding.EncodeToString(req.SignedXML),
	})
	if err != nil {
		return SubmissionResult{Errors: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+reportingPath, bytes.NewReader(body))
	if err != nil {
		return SubmissionResult{Errors: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Accept-Version", "V2")
	httpReq.Header.Set("Accept-Language", "en")
	httpReq.Header.Set("Clearance-Status", pkgzatca.ClearanceStatusReporting)
	httpReq.SetBasicAuth(creds.CSID, creds.Secret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return SubmissionResult{Errors: fmt.Sprintf("reporting API unreachable: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SubmissionResult{Errors: fmt.Sprintf("read response: %v", err)}
	}

	var parsed reportingResponseBody
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil && resp.StatusCode < 300 {
			return SubmissionResult{Errors: fmt.Sprintf("malformed response (HTTP %d): %v", resp.StatusCode, err)}
		}
	}

	return classify(resp.StatusCode, &parsed, raw)
}

// classify applies the acceptance rules: any validation verdict without error
// messages is accepted (warnings ride along), even when the authority wraps a
// warning-only verdict in an HTTP 400; only error messages or a response that
// carries no verdict at all reject.
func classify(statusCode int, parsed *reportingResponseBody, raw []byte) SubmissionResult {
	result := SubmissionResult{ReportingStatus: parsed.ReportingStatus}
	if vr := parsed.ValidationResults; vr != nil {
		result.AuthorityResponded = true
		result.Warnings = joinMessages(vr.WarningMessages)
		result.Errors = joinMessages(vr.ErrorMessages)
	}

	if result.Errors == "" {
		if statusCode >= 200 && statusCode < 300 {
			result.Accepted = true
			if parsed.ReportingStatus != "" && parsed.ReportingStatus != pkgzatca.ReportingStatusReported {
				result.Accepted = false
				result.Errors = fmt.Sprintf("unexpected reportingStatus %q", parsed.ReportingStatus)
			}
			return result
		}
		if result.AuthorityResponded {
			result.Accepted = true
			return result
		}
	}

	if result.Errors == "" {
		result.Errors = fmt.Sprintf("reporting API returned HTTP %d: %s", statusCode, truncate(string(raw), 500))
	}
	return result
}

func joinMessages(msgs []validationMessage) string {
	if len(msgs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Code != "" {
			parts = append(parts, m.Code+": "+m.Message)
			continue
		}
		parts = append(parts, m.Message)
	}
	return strings.Join(parts, "; ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var _ ReportingSubmitter = (*ReportingClient)(nil)
