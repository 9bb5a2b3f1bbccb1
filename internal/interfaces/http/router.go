package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zapfy/fiscal-api/internal/application/fiscal"
)

// RouterDeps dependências para o router.
type RouterDeps struct {
	IssueUC      *fiscal.IssueDocumentUseCase
	PrestadorUC  *fiscal.PrestadorUseCase
	Orchestrator *fiscal.Orchestrator
	JWTSecret    string
}

// Router registra as rotas da API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Rotas protegidas (exigem Bearer Token)
	protected := api.Group("/fiscal", AuthMiddleware(deps.JWTSecret))

	// Prestador (configuração fiscal do tenant)
	prestadorHandler := NewPrestadorHandler(deps.PrestadorUC)
	protected.Put("/prestador", prestadorHandler.Upsert)
	protected.Get("/prestador", prestadorHandler.Get)

	// Documentos fiscais
	fiscalHandler := NewFiscalHandler(deps.IssueUC, deps.Orchestrator)
	documents := protected.Group("/documents")
	documents.Post("/", fiscalHandler.Issue)
	documents.Get("/", fiscalHandler.List)
	documents.Get("/:id", fiscalHandler.GetByID)
	documents.Post("/:id/refresh", fiscalHandler.Refresh)
	documents.Post("/:id/cancel", fiscalHandler.Cancel)
	documents.Get("/:id/danfse", fiscalHandler.DANFSE)
}
