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

var _ repository.FiscalDocumentRepository = (*FiscalDocumentRepo)(nil)

// FiscalDocumentRepo implementação sobre PostgreSQL (usável com pool ou tx).
type FiscalDocumentRepo struct {
	q Querier
}

// NewFiscalDocumentRepository constrói o adaptador. Passar pool ou tx (Querier).
func NewFiscalDocumentRepository(q Querier) *FiscalDocumentRepo {
	return &FiscalDocumentRepo{q: q}
}

const fiscalDocumentColumns = `
	id, tenant_id, invoice_id, serie, numero, competencia, dh_emissao,
	tomador_doc, tomador_nome, descricao_servico, c_trib_nac,
	valor_servico, aliquota_iss, iss_retido,
	status, COALESCE(chave_acesso, ''), COALESCE(dps_id, ''), COALESCE(xml_assinado, ''),
	codigo_status, COALESCE(mensagem_status, ''), COALESCE(motivo_cancelamento, ''),
	created_at, updated_at`

// Create persiste o documento fiscal recém-criado (status PENDENTE).
func (r *FiscalDocumentRepo) Create(ctx context.Context, doc *entity.FiscalDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	query := `
		INSERT INTO fiscal_documents
			(id, tenant_id, invoice_id, serie, numero, competencia, dh_emissao,
			 tomador_doc, tomador_nome, descricao_servico, c_trib_nac,
			 valor_servico, aliquota_iss, iss_retido,
			 status, chave_acesso, dps_id, xml_assinado,
			 codigo_status, mensagem_status, motivo_cancelamento,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23)`
	_, err := r.q.Exec(ctx, query,
		doc.ID, doc.TenantID, doc.InvoiceID, doc.Serie, doc.Numero,
		doc.Competencia, doc.DhEmissao,
		doc.TomadorDoc, doc.TomadorNome, doc.DescricaoServico, doc.CTribNac,
		doc.ValorServico, doc.AliquotaISS, doc.ISSRetido,
		doc.Status, nullIfEmpty(doc.ChaveAcesso), nullIfEmpty(doc.DPSID), nullIfEmpty(doc.XMLAssinado),
		doc.CodigoStatus, nullIfEmpty(doc.MensagemStatus), nullIfEmpty(doc.MotivoCancelamento),
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("documento fiscal já existe para série/número: %w", err)
		}
		return fmt.Errorf("insert fiscal_document: %w", err)
	}
	return nil
}

// GetByID obtém um documento completo por ID.
func (r *FiscalDocumentRepo) GetByID(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	query := `SELECT ` + fiscalDocumentColumns + ` FROM fiscal_documents WHERE id = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// GetByChaveAcesso obtém um documento pela chave de acesso da SEFIN.
func (r *FiscalDocumentRepo) GetByChaveAcesso(ctx context.Context, chave string) (*entity.FiscalDocument, error) {
	query := `SELECT ` + fiscalDocumentColumns + ` FROM fiscal_documents WHERE chave_acesso = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, chave))
}

// Update persiste os campos mutáveis do documento. A chave de acesso só é
// sobrescrita quando o novo valor é não-vazio (imutável depois de emitida).
func (r *FiscalDocumentRepo) Update(ctx context.Context, doc *entity.FiscalDocument) error {
	query := `
		UPDATE fiscal_documents
		SET status              = $2,
		    chave_acesso        = COALESCE($3, chave_acesso),
		    dps_id              = COALESCE($4, dps_id),
		    xml_assinado        = COALESCE($5, xml_assinado),
		    codigo_status       = $6,
		    mensagem_status     = $7,
		    motivo_cancelamento = COALESCE($8, motivo_cancelamento),
		    updated_at          = $9
		WHERE id = $1`
	_, err := r.q.Exec(ctx, query,
		doc.ID,
		doc.Status,
		nullIfEmpty(doc.ChaveAcesso),
		nullIfEmpty(doc.DPSID),
		nullIfEmpty(doc.XMLAssinado),
		doc.CodigoStatus,
		doc.MensagemStatus,
		nullIfEmpty(doc.MotivoCancelamento),
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update fiscal_document: %w", err)
	}
	return nil
}

// ListByTenant lista documentos do tenant, opcionalmente filtrados por status.
func (r *FiscalDocumentRepo) ListByTenant(ctx context.Context, tenantID string, status string, limit int) ([]*entity.FiscalDocument, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + fiscalDocumentColumns + `
		FROM fiscal_documents
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`
	rows, err := r.q.Query(ctx, query, tenantID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list fiscal_documents: %w", err)
	}
	defer rows.Close()

	var list []*entity.FiscalDocument
	for rows.Next() {
		doc, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

// NextNumero aloca o próximo número da série via upsert atômico. O incremento
// é serializado pelo lock de linha: duas emissões concorrentes da mesma série
// nunca recebem o mesmo número.
func (r *FiscalDocumentRepo) NextNumero(ctx context.Context, tenantID, serie string) (int64, error) {
	query := `
		INSERT INTO fiscal_series (tenant_id, serie, ultimo_numero)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, serie)
		DO UPDATE SET ultimo_numero = fiscal_series.ultimo_numero + 1
		RETURNING ultimo_numero`
	var numero int64
	if err := r.q.QueryRow(ctx, query, tenantID, serie).Scan(&numero); err != nil {
		return 0, fmt.Errorf("alocar número da série %s: %w", serie, err)
	}
	return numero, nil
}

func (r *FiscalDocumentRepo) scanOne(row pgx.Row) (*entity.FiscalDocument, error) {
	doc, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

func (r *FiscalDocumentRepo) scanRow(row pgx.Row) (*entity.FiscalDocument, error) {
	var doc entity.FiscalDocument
	err := row.Scan(
		&doc.ID, &doc.TenantID, &doc.InvoiceID, &doc.Serie, &doc.Numero,
		&doc.Competencia, &doc.DhEmissao,
		&doc.TomadorDoc, &doc.TomadorNome, &doc.DescricaoServico, &doc.CTribNac,
		&doc.ValorServico, &doc.AliquotaISS, &doc.ISSRetido,
		&doc.Status, &doc.ChaveAcesso, &doc.DPSID, &doc.XMLAssinado,
		&doc.CodigoStatus, &doc.MensagemStatus, &doc.MotivoCancelamento,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan fiscal_document: %w", err)
	}
	return &doc, nil
}
