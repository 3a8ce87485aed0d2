package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/application/dto"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/application/einvoice"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"
)

// OrderHandler serves the POS order intake operations (protected).
type OrderHandler struct {
	intake *einvoice.OrderIntakeService
}

// NewOrderHandler builds the handler.
func NewOrderHandler(intake *einvoice.OrderIntakeService) *OrderHandler {
	return &OrderHandler{intake: intake}
}

// Create registers a new POS order with its lines.
// POST /api/orders
func (h *OrderHandler) Create(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "invalid token"})
	}
	var in dto.CreateOrderRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "invalid request body"})
	}
	order, err := h.intake.CreateOrder(c.Context(), companyID, in)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		}
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "company not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(orderResponse(order))
}

// MarkPaid completes payment on an order, queueing eligible records.
// POST /api/orders/:id/paid
func (h *OrderHandler) MarkPaid(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id required"})
	}
	order, err := h.intake.MarkPaid(c.Context(), id)
	if err != nil {
		var vErr *einvoice.ValidationError
		if errors.As(err, &vErr) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "NOT_ELIGIBLE", Message: vErr.Reason})
		}
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "order not found"})
		}
		if errors.Is(err, domain.ErrConflict) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: "legacy records are read only"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(orderResponse(order))
}

// GetStatus returns the order's compliance surface.
// GET /api/orders/:id/zatca
func (h *OrderHandler) GetStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id required"})
	}
	status, err := h.intake.GetStatus(c.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "order not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(status)
}

func orderResponse(order *entity.Order) dto.OrderResponse {
	return dto.OrderResponse{
		ID:              order.ID,
		CompanyID:       order.CompanyID,
		ConfigID:        order.ConfigID,
		Name:            order.Name,
		UUID:            order.UUID,
		CustomerName:    order.CustomerName,
		CurrencyCode:    order.CurrencyCode,
		DateOrder:       order.DateOrder.UTC().Format(time.RFC3339),
		AmountTotal:     order.AmountTotal,
		AmountTax:       order.AmountTax,
		RefundedOrderID: order.RefundedOrderID,
		RefundReason:    order.RefundReason,
		ZATCAStatus:     order.ZATCAStatus,
	}
}
