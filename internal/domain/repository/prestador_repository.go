package repository

import (
	"context"

	"github.com/zapfy/fiscal-api/internal/domain/entity"
)

// PrestadorRepository porta de leitura/escrita da configuração fiscal do assinante.
type PrestadorRepository interface {
	Create(ctx context.Context, p *entity.Prestador) error
	GetByTenantID(ctx context.Context, tenantID string) (*entity.Prestador, error)
	Update(ctx context.Context, p *entity.Prestador) error
}
