package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/zapfy/fiscal-api/internal/application/dto"
	"github.com/zapfy/fiscal-api/internal/application/fiscal"
	"github.com/zapfy/fiscal-api/internal/domain"
	pkgnfse "github.com/zapfy/fiscal-api/pkg/nfse"
)

// FiscalHandler trata as requisições HTTP do motor fiscal (protegido).
type FiscalHandler struct {
	issueUC      *fiscal.IssueDocumentUseCase
	orchestrator *fiscal.Orchestrator
}

// NewFiscalHandler constrói o handler.
func NewFiscalHandler(issueUC *fiscal.IssueDocumentUseCase, orchestrator *fiscal.Orchestrator) *FiscalHandler {
	return &FiscalHandler{issueUC: issueUC, orchestrator: orchestrator}
}

// Issue grava o documento fiscal e dispara a emissão assíncrona.
// POST /api/fiscal/documents
func (h *FiscalHandler) Issue(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.IssueDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	doc, err := h.issueUC.Issue(c.Context(), tenantID, in)
	if err != nil {
		return fiscalError(c, err)
	}
	// 202: o veredito da SEFIN chega de forma assíncrona.
	return c.Status(fiber.StatusAccepted).JSON(doc)
}

// List lista documentos do tenant. Filtro opcional ?status=.
// GET /api/fiscal/documents
func (h *FiscalHandler) List(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	docs, err := h.issueUC.List(c.Context(), tenantID, c.Query("status"), c.QueryInt("limit"))
	if err != nil {
		return fiscalError(c, err)
	}
	return c.JSON(docs)
}

// GetByID obtém um documento fiscal.
// GET /api/fiscal/documents/:id
func (h *FiscalHandler) GetByID(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id obrigatório"})
	}
	doc, err := h.issueUC.GetByID(c.Context(), tenantID, id)
	if err != nil {
		return fiscalError(c, err)
	}
	return c.JSON(doc)
}

// Refresh consulta a SEFIN pela chave de acesso e sincroniza o estado local.
// POST /api/fiscal/documents/:id/refresh
func (h *FiscalHandler) Refresh(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	doc, err := h.orchestrator.RefreshStatus(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fiscalError(c, err)
	}
	return c.JSON(fiscal.ToDocumentResponse(doc))
}

// Cancel emite o evento de cancelamento. Só grava CANCELADA após homologação.
// POST /api/fiscal/documents/:id/cancel
func (h *FiscalHandler) Cancel(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.CancelDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	doc, resp, err := h.orchestrator.Cancel(c.Context(), tenantID, c.Params("id"), in.CodigoMotivo, in.Descricao)
	if err != nil {
		return fiscalError(c, err)
	}
	if resp != nil && !resp.Success() {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code":     "SEFIN_REJECTED",
			"message":  resp.MensagemCompleta(),
			"document": doc.ID,
		})
	}
	return c.JSON(fiber.Map{"status": doc.Status, "chave_acesso": doc.ChaveAcesso})
}

// DANFSE devolve o PDF da nota autorizada, ou 202 enquanto a SEFIN não o
// disponibilizou.
// GET /api/fiscal/documents/:id/danfse
func (h *FiscalHandler) DANFSE(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	pdf, err := h.orchestrator.FetchDANFSE(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return fiscalError(c, err)
	}
	if pdf == nil {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "PROCESSANDO", "message": "DANFSE ainda não disponível"})
	}
	c.Set("Content-Type", "application/pdf")
	return c.Send(pdf)
}

// fiscalError mapeia erros de domínio e da SEFIN para status HTTP.
func fiscalError(c *fiber.Ctx, err error) error {
	var retryable *pkgnfse.RetryableTransportError
	var terminal *pkgnfse.TerminalRejectionError
	var ambiguous *pkgnfse.AmbiguousResponseError
	var malformed *pkgnfse.MalformedInputError

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "recurso não encontrado"})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acesso negado ao recurso"})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "DUPLICATE", Message: err.Error()})
	case errors.As(err, &malformed):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.As(err, &retryable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "SEFIN_UNAVAILABLE", Message: "SEFIN indisponível, tente novamente"})
	case errors.As(err, &terminal):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "SEFIN_REJECTED", Message: err.Error()})
	case errors.As(err, &ambiguous):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "SEFIN_AMBIGUOUS", Message: "resposta da SEFIN inconclusiva, consulte o documento"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
