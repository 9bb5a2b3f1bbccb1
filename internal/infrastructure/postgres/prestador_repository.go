package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zapfy/fiscal-api/internal/domain/entity"
	"github.com/zapfy/fiscal-api/internal/domain/repository"
)

var _ repository.PrestadorRepository = (*PrestadorRepo)(nil)

// PrestadorRepo implementação sobre PostgreSQL (usável com pool ou tx).
type PrestadorRepo struct {
	q Querier
}

// NewPrestadorRepository constrói o adaptador. Passar pool ou tx (Querier).
func NewPrestadorRepository(q Querier) *PrestadorRepo {
	return &PrestadorRepo{q: q}
}

// Create persiste a configuração fiscal do tenant. Um prestador por tenant.
func (r *PrestadorRepo) Create(ctx context.Context, p *entity.Prestador) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	query := `
		INSERT INTO prestadores
			(id, tenant_id, cnpj, inscricao_municipal, razao_social,
			 codigo_municipio, optante_simples, regime_especial, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(ctx, query,
		p.ID, p.TenantID, p.CNPJ, nullIfEmpty(p.InscricaoMunicipal), p.RazaoSocial,
		p.CodigoMunicipio, p.OptanteSimples, p.RegimeEspecial,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("prestador já cadastrado para o tenant: %w", err)
		}
		return fmt.Errorf("insert prestador: %w", err)
	}
	return nil
}

// GetByTenantID obtém a configuração fiscal do tenant. Devolve nil sem erro
// quando o tenant ainda não configurou a emissão.
func (r *PrestadorRepo) GetByTenantID(ctx context.Context, tenantID string) (*entity.Prestador, error) {
	query := `
		SELECT id, tenant_id, cnpj, COALESCE(inscricao_municipal, ''), razao_social,
		       codigo_municipio, optante_simples, regime_especial, created_at, updated_at
		FROM prestadores WHERE tenant_id = $1`
	var p entity.Prestador
	err := r.q.QueryRow(ctx, query, tenantID).Scan(
		&p.ID, &p.TenantID, &p.CNPJ, &p.InscricaoMunicipal, &p.RazaoSocial,
		&p.CodigoMunicipio, &p.OptanteSimples, &p.RegimeEspecial,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get prestador: %w", err)
	}
	return &p, nil
}

// Update atualiza a configuração fiscal do tenant.
func (r *PrestadorRepo) Update(ctx context.Context, p *entity.Prestador) error {
	query := `
		UPDATE prestadores
		SET cnpj = $2, inscricao_municipal = $3, razao_social = $4,
		    codigo_municipio = $5, optante_simples = $6, regime_especial = $7,
		    updated_at = $8
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query,
		p.ID, p.CNPJ, nullIfEmpty(p.InscricaoMunicipal), p.RazaoSocial,
		p.CodigoMunicipio, p.OptanteSimples, p.RegimeEspecial, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update prestador: %w", err)
	}
	return nil
}
