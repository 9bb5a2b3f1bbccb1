package repository

import (
	"context"

	"github.com/zapfy/fiscal-api/internal/domain/entity"
)

// FiscalDocumentRepository porta de persistência dos documentos fiscais.
// O motor de emissão é stateless; as transições de estado vivem aqui.
type FiscalDocumentRepository interface {
	Create(ctx context.Context, doc *entity.FiscalDocument) error
	GetByID(ctx context.Context, id string) (*entity.FiscalDocument, error)
	GetByChaveAcesso(ctx context.Context, chave string) (*entity.FiscalDocument, error)
	// Update persiste todos os campos mutáveis (status, chave, XML, código/mensagem).
	Update(ctx context.Context, doc *entity.FiscalDocument) error
	ListByTenant(ctx context.Context, tenantID string, status string, limit int) ([]*entity.FiscalDocument, error)
	// NextNumero aloca o próximo número sequencial da série do tenant.
	// Deve ser chamado dentro da mesma transação do Create para não queimar
	// números em caso de rollback.
	NextNumero(ctx context.Context, tenantID, serie string) (int64, error)
}
