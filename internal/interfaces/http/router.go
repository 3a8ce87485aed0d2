package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/application/einvoice"
)

// RouterDeps dependencies for the router.
type RouterDeps struct {
	Intake    *einvoice.OrderIntakeService
	Retry     *einvoice.RetryService
	JWTSecret string
}

// Router registers the API routes. Intake operations accept cashier tokens;
// the pipeline operations are restricted to admin.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	orders := api.Group("/orders")
	orderHandler := NewOrderHandler(deps.Intake)
	orders.Post("/", RequireRole(RoleCashier), orderHandler.Create)
	orders.Post("/:id/paid", RequireRole(RoleCashier), orderHandler.MarkPaid)
	orders.Get("/:id/zatca", RequireRole(RoleCashier, RoleAuditor), orderHandler.GetStatus)

	einvoiceHandler := NewEInvoiceHandler(deps.Retry)
	orders.Post("/:id/zatca/submit", RequireRole(), einvoiceHandler.Submit)

	zatca := api.Group("/zatca", RequireRole())
	zatca.Post("/batch-submit", einvoiceHandler.BatchSubmit)
	zatca.Post("/retry-failed", einvoiceHandler.RetryFailed)
}
