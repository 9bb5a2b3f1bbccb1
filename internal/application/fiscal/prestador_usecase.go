package fiscal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zapfy/fiscal-api/internal/application/dto"
	"github.com/zapfy/fiscal-api/internal/domain"
	"github.com/zapfy/fiscal-api/internal/domain/entity"
	"github.com/zapfy/fiscal-api/internal/domain/repository"
	pkgnfse "github.com/zapfy/fiscal-api/pkg/nfse"
)

// PrestadorUseCase casos de uso da configuração fiscal do tenant.
type PrestadorUseCase struct {
	repo repository.PrestadorRepository
}

// NewPrestadorUseCase constrói o caso de uso.
func NewPrestadorUseCase(repo repository.PrestadorRepository) *PrestadorUseCase {
	return &PrestadorUseCase{repo: repo}
}

// Upsert cria ou atualiza o prestador do tenant.
func (uc *PrestadorUseCase) Upsert(ctx context.Context, tenantID string, in dto.UpsertPrestadorRequest) (*dto.PrestadorResponse, error) {
	if tenantID == "" || in.RazaoSocial == "" {
		return nil, domain.ErrInvalidInput
	}
	cnpj := pkgnfse.NormalizeCNPJ(in.CNPJ)
	if err := pkgnfse.ValidateCNPJ(cnpj); err != nil {
		return nil, fmt.Errorf("CNPJ inválido: %w", domain.ErrInvalidInput)
	}
	if len(in.CodigoMunicipio) != 7 {
		return nil, fmt.Errorf("código de município deve ter 7 dígitos (IBGE): %w", domain.ErrInvalidInput)
	}
	regime := in.RegimeEspecial
	if regime == "" {
		regime = pkgnfse.RegEspTribNenhum
	}

	now := time.Now()
	existing, err := uc.repo.GetByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.CNPJ = cnpj
		existing.InscricaoMunicipal = in.InscricaoMunicipal
		existing.RazaoSocial = in.RazaoSocial
		existing.CodigoMunicipio = in.CodigoMunicipio
		existing.OptanteSimples = in.OptanteSimples
		existing.RegimeEspecial = regime
		existing.UpdatedAt = now
		if err := uc.repo.Update(ctx, existing); err != nil {
			return nil, err
		}
		return toPrestadorResponse(existing), nil
	}

	p := &entity.Prestador{
		ID:                 uuid.New().String(),
		TenantID:           tenantID,
		CNPJ:               cnpj,
		InscricaoMunicipal: in.InscricaoMunicipal,
		RazaoSocial:        in.RazaoSocial,
		CodigoMunicipio:    in.CodigoMunicipio,
		OptanteSimples:     in.OptanteSimples,
		RegimeEspecial:     regime,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := uc.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return toPrestadorResponse(p), nil
}

// Get obtém a configuração fiscal do tenant.
func (uc *PrestadorUseCase) Get(ctx context.Context, tenantID string) (*dto.PrestadorResponse, error) {
	p, err := uc.repo.GetByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return toPrestadorResponse(p), nil
}

func toPrestadorResponse(p *entity.Prestador) *dto.PrestadorResponse {
	return &dto.PrestadorResponse{
		ID:                 p.ID,
		TenantID:           p.TenantID,
		CNPJ:               p.CNPJ,
		InscricaoMunicipal: p.InscricaoMunicipal,
		RazaoSocial:        p.RazaoSocial,
		CodigoMunicipio:    p.CodigoMunicipio,
		OptanteSimples:     p.OptanteSimples,
		RegimeEspecial:     p.RegimeEspecial,
	}
}
