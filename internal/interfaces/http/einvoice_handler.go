package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/application/dto"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/application/einvoice"
)

// EInvoiceHandler serves the reporting pipeline operations (protected).
type EInvoiceHandler struct {
	retry *einvoice.RetryService
}

// NewEInvoiceHandler builds the handler.
func NewEInvoiceHandler(retry *einvoice.RetryService) *EInvoiceHandler {
	return &EInvoiceHandler{retry: retry}
}

// Submit forces submission of one order, surfacing the failure reason.
// POST /api/orders/:id/zatca/submit
func (h *EInvoiceHandler) Submit(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id required"})
	}
	result, err := h.retry.ManualRetry(c.Context(), []string{id})
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "SUBMISSION_FAILED", Message: err.Error()})
	}
	return c.JSON(batchResponse(result))
}

// BatchSubmit runs the pipeline over every queued order.
// POST /api/zatca/batch-submit
func (h *EInvoiceHandler) BatchSubmit(c *fiber.Ctx) error {
	result, err := h.retry.BatchSubmitPending(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(batchResponse(result))
}

// RetryFailed reprocesses recent failed orders, capped per run. The same
// entry point the cron scheduler hits.
// POST /api/zatca/retry-failed
func (h *EInvoiceHandler) RetryFailed(c *fiber.Ctx) error {
	result, err := h.retry.CronRetryFailed(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(batchResponse(result))
}

func batchResponse(result einvoice.BatchResult) dto.BatchResultResponse {
	return dto.BatchResultResponse{
		SuccessCount: result.SuccessCount,
		ErrorCount:   result.ErrorCount,
		Processed:    result.Processed,
	}
}
