package zatca

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = Credentials{CSID: "Y3NpZC1jZXJ0", Secret: "secret"}

func testReport() ReportRequest {
	return ReportRequest{
		InvoiceHash: "aGFzaA==",
		UUID:        "11111111-1111-1111-1111-111111111111",
		SignedXML:   []byte("<Invoice/>"),
	}
}

// ── request shape ─────────────────────────────────────────────────────────────

func TestSubmitInvoice_RequestShape(t *testing.T) {
	var captured *http.Request
	var capturedBody reportingRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		require.NoError(t, json.NewDecoder(r.Body).Decode(&capturedBody))
		_ = json.NewEncoder(w).Encode(reportingResponseBody{ReportingStatus: "REPORTED"})
	}))
	defer srv.Close()

	client := NewReportingClient(AppEnvSim, srv.URL)
	result := client.SubmitInvoice(context.Background(), testCreds, testReport())

	require.True(t, result.Accepted)
	require.NotNil(t, captured)
	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, reportingPath, captured.URL.Path)
	assert.Equal(t, "0", captured.Header.Get("Clearance-Status"))
	assert.Equal(t, "V2", captured.Header.Get("Accept-Version"))

	user, pass, ok := captured.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, testCreds.CSID, user)
	assert.Equal(t, testCreds.Secret, pass)

	assert.Equal(t, "aGFzaA==", capturedBody.InvoiceHash)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", capturedBody.UUID)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("<Invoice/>")), capturedBody.Invoice)
}

// ── classification ────────────────────────────────────────────────────────────

func TestSubmitInvoice_AcceptedClean(t *testing.T) {
	srv := stubServer(http.StatusOK, `{"reportingStatus":"REPORTED","validationResults":{"status":"PASS"}}`)
	defer srv.Close()

	result := NewReportingClient(AppEnvSim, srv.URL).SubmitInvoice(context.Background(), testCreds, testReport())
	assert.True(t, result.Accepted)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "REPORTED", result.ReportingStatus)
}

// Warnings do not block acceptance; the record still moves to submitted.
func TestSubmitInvoice_AcceptedWithWarnings(t *testing.T) {
	srv := stubServer(http.StatusOK, `{
		"reportingStatus": "REPORTED",
		"validationResults": {
			"status": "WARNING",
			"warningMessages": [{"code": "BR-KSA-W-01", "message": "minor field issue"}]
		}
	}`)
	defer srv.Close()

	result := NewReportingClient(AppEnvSim, srv.URL).SubmitInvoice(context.Background(), testCreds, testReport())
	assert.True(t, result.Accepted)
	assert.Contains(t, result.Warnings, "BR-KSA-W-01")
	assert.Empty(t, result.Errors)
}

// The authority wraps warning-only verdicts in an HTTP 400, yet the document
// is still on record; the classification must accept and keep the warnings.
func TestSubmitInvoice_WarningOnly400Accepted(t *testing.T) {
	srv := stubServer(http.StatusBadRequest, `{
		"reportingStatus": "NOT_REPORTED",
		"validationResults": {
			"status": "WARNING",
			"warningMessages": [{"code": "BR-KSA-W-02", "message": "optional field missing"}]
		}
	}`)
	defer srv.Close()

	result := NewReportingClient(AppEnvSim, srv.URL).SubmitInvoice(context.Background(), testCreds, testReport())
	assert.True(t, result.Accepted)
	assert.True(t, result.AuthorityResponded)
	assert.Contains(t, result.Warnings, "BR-KSA-W-02")
	assert.Empty(t, result.Errors)
}

func TestSubmitInvoice_RejectedWithErrors(t *testing.T) {
	srv := stubServer(http.StatusBadRequest, `{
		"validationResults": {
			"status": "ERROR",
			"errorMessages": [{"code": "BR-KSA-14", "message": "invalid VAT number"}]
		}
	}`)
	defer srv.Close()

	result := NewReportingClient(AppEnvSim, srv.URL).SubmitInvoice(context.Background(), testCreds, testReport())
	assert.False(t, result.Accepted)
	assert.True(t, result.AuthorityResponded)
	assert.Contains(t, result.Errors, "BR-KSA-14")
}

// Error messages reject even under a 200; acceptance requires a clean result.
func TestSubmitInvoice_ErrorsRejectDespite200(t *testing.T) {
	srv := stubServer(http.StatusOK, `{
		"reportingStatus": "NOT_REPORTED",
		"validationResults": {
			"errorMessages": [{"code": "BR-KSA-02", "message": "hash mismatch"}]
		}
	}`)
	defer srv.Close()

	result := NewReportingClient(AppEnvSim, srv.URL).SubmitInvoice(context.Background(), testCreds, testReport())
	assert.False(t, result.Accepted)
	assert.Contains(t, result.Errors, "BR-KSA-02")
}

func TestSubmitInvoice_UnexpectedReportingStatus(t *testing.T) {
	srv := stubServer(http.StatusOK, `{"reportingStatus":"IN_PROGRESS"}`)
	defer srv.Close()

	result := NewReportingClient(AppEnvSim, srv.URL).SubmitInvoice(context.Background(), testCreds, testReport())
	assert.False(t, result.Accepted)
	assert.Contains(t, result.Errors, "IN_PROGRESS")
}

func TestSubmitInvoice_ServerErrorWithoutBody(t *testing.T) {
	srv := stubServer(http.StatusInternalServerError, "")
	defer srv.Close()

	result := NewReportingClient(AppEnvSim, srv.URL).SubmitInvoice(context.Background(), testCreds, testReport())
	assert.False(t, result.Accepted)
	assert.Contains(t, result.Errors, "HTTP 500")
}

// Transport failures never panic or error out; they classify as a retryable result.
func TestSubmitInvoice_TransportFailure(t *testing.T) {
	client := NewReportingClient(AppEnvSim, "http://127.0.0.1:1")
	result := client.SubmitInvoice(context.Background(), testCreds, testReport())
	assert.False(t, result.Accepted)
	assert.False(t, result.AuthorityResponded)
	assert.Contains(t, result.Errors, "unreachable")
}

func TestNewReportingClient_DefaultBaseURLs(t *testing.T) {
	assert.Equal(t, baseURLProd, NewReportingClient(AppEnvProd, "").baseURL)
	assert.Equal(t, baseURLSim, NewReportingClient(AppEnvSim, "").baseURL)
	assert.Equal(t, baseURLSim, NewReportingClient("", "").baseURL)
}

func stubServer(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}
