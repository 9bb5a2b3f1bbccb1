package fiscal

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zapfy/fiscal-api/internal/application/dto"
	"github.com/zapfy/fiscal-api/internal/domain"
	"github.com/zapfy/fiscal-api/internal/domain/entity"
	"github.com/zapfy/fiscal-api/internal/domain/repository"
	pkgnfse "github.com/zapfy/fiscal-api/pkg/nfse"
)

// IssueDocumentUseCase grava o documento fiscal e dispara o processamento
// assíncrono (construção do DPS, assinatura e envio).
type IssueDocumentUseCase struct {
	txRunner      TxRunner
	docRepo       repository.FiscalDocumentRepository
	prestadorRepo repository.PrestadorRepository
	orchestrator  *Orchestrator
}

// NewIssueDocumentUseCase constrói o caso de uso.
func NewIssueDocumentUseCase(
	txRunner TxRunner,
	docRepo repository.FiscalDocumentRepository,
	prestadorRepo repository.PrestadorRepository,
	orchestrator *Orchestrator,
) *IssueDocumentUseCase {
	return &IssueDocumentUseCase{
		txRunner:      txRunner,
		docRepo:       docRepo,
		prestadorRepo: prestadorRepo,
		orchestrator:  orchestrator,
	}
}

// Issue valida a requisição, aloca número da série quando não informado e
// grava o documento em PENDENTE. A resposta volta imediatamente; o resultado
// da SEFIN chega via processamento assíncrono.
func (uc *IssueDocumentUseCase) Issue(ctx context.Context, tenantID string, in dto.IssueDocumentRequest) (*dto.FiscalDocumentResponse, error) {
	if tenantID == "" || in.Serie == "" || in.TomadorNome == "" || in.DescricaoServico == "" {
		return nil, domain.ErrInvalidInput
	}
	if !in.ValorServico.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("valor do serviço deve ser positivo: %w", domain.ErrInvalidInput)
	}
	if in.AliquotaISS.IsNegative() {
		return nil, fmt.Errorf("alíquota negativa: %w", domain.ErrInvalidInput)
	}
	tomadorDoc := pkgnfse.NormalizeCNPJ(in.TomadorDoc)
	if len(tomadorDoc) != 11 && len(tomadorDoc) != 14 {
		return nil, fmt.Errorf("documento do tomador deve ser CPF ou CNPJ: %w", domain.ErrInvalidInput)
	}
	if len(in.CTribNac) != 6 {
		return nil, fmt.Errorf("código de tributação nacional deve ter 6 dígitos: %w", domain.ErrInvalidInput)
	}
	competencia, err := time.Parse("2006-01-02", in.Competencia)
	if err != nil {
		return nil, fmt.Errorf("competência inválida (esperado AAAA-MM-DD): %w", domain.ErrInvalidInput)
	}
	if in.Numero != "" {
		if _, err := strconv.ParseInt(strings.TrimSpace(in.Numero), 10, 64); err != nil {
			return nil, fmt.Errorf("número inválido: %w", domain.ErrInvalidInput)
		}
	}

	// Prestador configurado é pré-condição da emissão.
	prestador, err := uc.prestadorRepo.GetByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if prestador == nil {
		return nil, fmt.Errorf("tenant sem prestador configurado: %w", domain.ErrConflict)
	}

	now := time.Now()
	doc := &entity.FiscalDocument{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		InvoiceID:        in.InvoiceID,
		Serie:            in.Serie,
		Numero:           strings.TrimSpace(in.Numero),
		Competencia:      competencia,
		DhEmissao:        now,
		TomadorDoc:       tomadorDoc,
		TomadorNome:      in.TomadorNome,
		DescricaoServico: in.DescricaoServico,
		CTribNac:         in.CTribNac,
		ValorServico:     in.ValorServico,
		AliquotaISS:      in.AliquotaISS,
		ISSRetido:        in.ISSRetido,
		Status:           entity.FiscalStatusPendente,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// Alocação de número e insert na mesma transação: rollback não queima número.
	err = uc.txRunner.Run(ctx, func(docs repository.FiscalDocumentRepository) error {
		if doc.Numero == "" {
			numero, err := docs.NextNumero(ctx, tenantID, doc.Serie)
			if err != nil {
				return err
			}
			doc.Numero = strconv.FormatInt(numero, 10)
		}
		return docs.Create(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	uc.orchestrator.ProcessAsync(doc.ID)
	return ToDocumentResponse(doc), nil
}

// GetByID obtém um documento do tenant.
func (uc *IssueDocumentUseCase) GetByID(ctx context.Context, tenantID, docID string) (*dto.FiscalDocumentResponse, error) {
	doc, err := uc.docRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	if doc.TenantID != tenantID {
		return nil, domain.ErrForbidden
	}
	return ToDocumentResponse(doc), nil
}

// List lista documentos do tenant, opcionalmente filtrados por status.
func (uc *IssueDocumentUseCase) List(ctx context.Context, tenantID, status string, limit int) ([]*dto.FiscalDocumentResponse, error) {
	docs, err := uc.docRepo.ListByTenant(ctx, tenantID, status, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.FiscalDocumentResponse, len(docs))
	for i, d := range docs {
		out[i] = ToDocumentResponse(d)
	}
	return out, nil
}

// ToDocumentResponse converte a entidade para o DTO de resposta.
func ToDocumentResponse(doc *entity.FiscalDocument) *dto.FiscalDocumentResponse {
	return &dto.FiscalDocumentResponse{
		ID:               doc.ID,
		TenantID:         doc.TenantID,
		InvoiceID:        doc.InvoiceID,
		Serie:            doc.Serie,
		Numero:           doc.Numero,
		Competencia:      doc.Competencia.Format("2006-01-02"),
		DhEmissao:        doc.DhEmissao.Format(time.RFC3339),
		TomadorDoc:       doc.TomadorDoc,
		TomadorNome:      doc.TomadorNome,
		DescricaoServico: doc.DescricaoServico,
		CTribNac:         doc.CTribNac,
		ValorServico:     doc.ValorServico,
		AliquotaISS:      doc.AliquotaISS,
		ISSRetido:        doc.ISSRetido,
		Status:           doc.Status,
		ChaveAcesso:      doc.ChaveAcesso,
		DPSID:            doc.DPSID,
		CodigoStatus:     doc.CodigoStatus,
		MensagemStatus:   doc.MensagemStatus,
		CreatedAt:        doc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        doc.UpdatedAt.Format(time.RFC3339),
	}
}
