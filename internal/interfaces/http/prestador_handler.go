package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zapfy/fiscal-api/internal/application/dto"
	"github.com/zapfy/fiscal-api/internal/application/fiscal"
)

// PrestadorHandler trata a configuração fiscal do tenant (protegido).
type PrestadorHandler struct {
	uc *fiscal.PrestadorUseCase
}

// NewPrestadorHandler constrói o handler.
func NewPrestadorHandler(uc *fiscal.PrestadorUseCase) *PrestadorHandler {
	return &PrestadorHandler{uc: uc}
}

// Upsert cria ou atualiza o prestador do tenant.
// PUT /api/fiscal/prestador
func (h *PrestadorHandler) Upsert(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.UpsertPrestadorRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	p, err := h.uc.Upsert(c.Context(), tenantID, in)
	if err != nil {
		return fiscalError(c, err)
	}
	return c.JSON(p)
}

// Get obtém a configuração fiscal do tenant.
// GET /api/fiscal/prestador
func (h *PrestadorHandler) Get(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	p, err := h.uc.Get(c.Context(), tenantID)
	if err != nil {
		return fiscalError(c, err)
	}
	return c.JSON(p)
}
