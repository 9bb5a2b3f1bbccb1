package fiscal

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zapfy/fiscal-api/internal/domain"
	"github.com/zapfy/fiscal-api/internal/domain/entity"
	"github.com/zapfy/fiscal-api/internal/domain/repository"
	infranfse "github.com/zapfy/fiscal-api/internal/infrastructure/nfse"
	"github.com/zapfy/fiscal-api/internal/infrastructure/nfse/signer"
	pkgnfse "github.com/zapfy/fiscal-api/pkg/nfse"
)

// Orchestrator orquestra o ciclo completo de emissão NFS-e:
//
//	DPS XML → Assinatura XMLDSig → GZip+Base64 → Envio SEFIN → Update DB
//
// Roda sempre em goroutine independente (ProcessAsync) com context próprio e
// timeout de 30 s, desacoplada do ciclo HTTP.
//
// Máquina de estados: PENDENTE → ASSINADA → {AUTORIZADA | REJEITADA}.
// Falha de construção/assinatura → ERRO_GERACAO. Falha transitória de
// transporte deixa ASSINADA para reprocessamento.
type Orchestrator struct {
	docRepo       repository.FiscalDocumentRepository
	prestadorRepo repository.PrestadorRepository
	dpsBuilder    *infranfse.DPSBuilderService
	signer        pkgnfse.Signer
	authority     infranfse.AuthorityAPI // nil em dev
	cfg           Config
}

// NewOrchestrator constrói o orquestrador com suas dependências.
// authority pode ser nil: nesse caso só o modo dev funciona.
func NewOrchestrator(
	docRepo repository.FiscalDocumentRepository,
	prestadorRepo repository.PrestadorRepository,
	dpsBuilder *infranfse.DPSBuilderService,
	sig pkgnfse.Signer,
	authority infranfse.AuthorityAPI,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		docRepo:       docRepo,
		prestadorRepo: prestadorRepo,
		dpsBuilder:    dpsBuilder,
		signer:        sig,
		authority:     authority,
		cfg:           cfg,
	}
}

// ProcessAsync dispara o processamento em goroutine independente.
// docID é o ID do documento já persistido em estado PENDENTE.
func (o *Orchestrator) ProcessAsync(docID string) {
	go o.process(docID)
}

// process é o núcleo síncrono do orquestrador.
func (o *Orchestrator) process(docID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// markError grava ERRO_GERACAO e registra o problema.
	markError := func(doc *entity.FiscalDocument, step, msg string) {
		doc.Status = entity.FiscalStatusErroGeracao
		doc.MensagemStatus = msg
		doc.UpdatedAt = time.Now()
		if err := o.docRepo.Update(ctx, doc); err != nil {
			log.Error().Str("doc", docID).Err(err).Msg("não foi possível persistir ERRO_GERACAO")
		}
		log.Error().Str("doc", docID).Str("etapa", step).Msg(msg)
	}

	// Re-fetch dados frescos (evita data race com a goroutine HTTP).
	doc, err := o.docRepo.GetByID(ctx, docID)
	if err != nil || doc == nil {
		log.Error().Str("doc", docID).Err(err).Msg("documento não encontrado")
		return
	}
	// ASSINADA também é aceita: reprocessamento após falha transitória.
	if doc.Status != entity.FiscalStatusPendente && doc.Status != entity.FiscalStatusAssinada {
		log.Warn().Str("doc", docID).Str("status", doc.Status).Msg("estado inesperado, pulando")
		return
	}

	prestador, err := o.prestadorRepo.GetByTenantID(ctx, doc.TenantID)
	if err != nil || prestador == nil {
		markError(doc, "fetch-prestador", fmt.Sprintf("prestador do tenant %s não encontrado: %v", doc.TenantID, err))
		return
	}

	// 1. Construir o DPS.
	xmlBytes, err := o.dpsBuilder.Build(&infranfse.DPSBuildContext{
		Documento: doc,
		Prestador: prestador,
		Ambiente:  o.ambiente(),
		VerAplic:  o.cfg.VerAplic,
	})
	if err != nil {
		markError(doc, "xml-build", err.Error())
		return
	}

	// 2. Assinatura digital enveloped.
	cert, err := loadCertificate(o.cfg)
	if err != nil {
		markError(doc, "cert-load", err.Error())
		return
	}
	signedXML, err := o.signer.Sign(xmlBytes, cert)
	if err != nil {
		markError(doc, "xml-sign", err.Error())
		return
	}

	dpsID, err := pkgnfse.BuildDPSID(prestador.CNPJ, doc.Serie, doc.Numero)
	if err != nil {
		markError(doc, "dps-id", err.Error())
		return
	}

	// Persistir ASSINADA (XML disponível para auditoria e reenvio).
	doc.DPSID = dpsID
	doc.XMLAssinado = string(signedXML)
	doc.Status = entity.FiscalStatusAssinada
	doc.UpdatedAt = time.Now()
	if err := o.docRepo.Update(ctx, doc); err != nil {
		log.Error().Str("doc", docID).Err(err).Msg("erro persistindo ASSINADA")
		return
	}

	// 3. Envio condicional à SEFIN.
	appEnv := strings.ToLower(strings.TrimSpace(o.cfg.AppEnv))
	switch appEnv {
	case infranfse.AppEnvDev, "":
		// Modo desenvolvimento: simular autorização, não transmitir.
		doc.ChaveAcesso = mockChaveAcesso(prestador, doc)
		doc.CodigoStatus = pkgnfse.StatusAutorizada
		doc.MensagemStatus = "[DEV] autorização simulada, sem envio à SEFIN"
		doc.Status = entity.FiscalStatusAutorizada
		log.Info().Str("doc", docID).Str("chave", doc.ChaveAcesso).
			Msg("[DEV] simulado envio à SEFIN")

	case infranfse.AppEnvHomolog, infranfse.AppEnvProd:
		if o.authority == nil {
			markError(doc, "submit", "AuthorityAPI não injetada para ambiente "+appEnv)
			return
		}
		resp, submitErr := o.authority.Submit(ctx, signedXML, o.authorityConfig(prestador, cert))
		if submitErr != nil {
			var retryable *pkgnfse.RetryableTransportError
			if errors.As(submitErr, &retryable) {
				// Transitório: permanece ASSINADA para reenvio do mesmo XML.
				log.Warn().Str("doc", docID).Int("status", retryable.Status).
					Msg("falha transitória no envio, documento permanece ASSINADA")
				return
			}
			// Resposta ambígua ou erro inesperado: não marcar terminal às cegas.
			log.Error().Str("doc", docID).Err(submitErr).
				Msg("envio com resultado indeterminado, requer consulta posterior")
			return
		}
		doc.CodigoStatus = resp.CodigoStatus
		doc.MensagemStatus = resp.MensagemCompleta()
		if resp.Success() {
			doc.ChaveAcesso = resp.ChaveAcesso
			doc.Status = entity.FiscalStatusAutorizada
			log.Info().Str("doc", docID).Str("chave", resp.ChaveAcesso).Msg("autorizada pela SEFIN")
		} else {
			doc.Status = entity.FiscalStatusRejeitada
			log.Warn().Str("doc", docID).Int("codigo", resp.CodigoStatus).
				Str("motivo", doc.MensagemStatus).Msg("rejeitada pela SEFIN")
		}

	default:
		markError(doc, "config", fmt.Sprintf("NFSE_APP_ENV desconhecido: %q (usar dev|homolog|prod)", appEnv))
		return
	}

	// 4. Persistir resultado final.
	doc.UpdatedAt = time.Now()
	if err := o.docRepo.Update(ctx, doc); err != nil {
		log.Error().Str("doc", docID).Str("status", doc.Status).Err(err).
			Msg("erro persistindo estado final")
		return
	}
	log.Info().Str("doc", docID).Str("status", doc.Status).Msg("documento processado")
}

// RefreshStatus consulta a SEFIN pela chave e sincroniza o estado local.
// Usado quando um envio terminou ambíguo ou para confirmar autorização.
func (o *Orchestrator) RefreshStatus(ctx context.Context, tenantID, docID string) (*entity.FiscalDocument, error) {
	doc, err := o.ownedDocument(ctx, tenantID, docID)
	if err != nil {
		return nil, err
	}
	if doc.ChaveAcesso == "" {
		return nil, fmt.Errorf("documento sem chave de acesso: %w", domain.ErrConflict)
	}
	if o.authority == nil {
		return doc, nil
	}
	resp, err := o.authority.Query(ctx, doc.ChaveAcesso, o.authorityConfigFor(ctx, doc))
	if err != nil {
		return nil, err
	}
	doc.CodigoStatus = resp.CodigoStatus
	doc.MensagemStatus = resp.MensagemCompleta()
	if resp.Success() && doc.Status == entity.FiscalStatusAssinada {
		doc.Status = entity.FiscalStatusAutorizada
	}
	doc.UpdatedAt = time.Now()
	if err := o.docRepo.Update(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Cancel emite o evento de cancelamento e, somente após homologação pela
// SEFIN, grava CANCELADA. Rejeição devolve a resposta sem mudar estado.
func (o *Orchestrator) Cancel(ctx context.Context, tenantID, docID, codigoMotivo, descricao string) (*entity.FiscalDocument, *infranfse.AuthorityResponse, error) {
	doc, err := o.ownedDocument(ctx, tenantID, docID)
	if err != nil {
		return nil, nil, err
	}
	if !doc.Cancelavel() {
		return nil, nil, fmt.Errorf("documento em estado %s não é cancelável: %w", doc.Status, domain.ErrConflict)
	}
	if _, ok := pkgnfse.ValidCancelReasonCodes[codigoMotivo]; !ok {
		return nil, nil, fmt.Errorf("código de motivo inválido: %w", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(descricao) == "" {
		return nil, nil, fmt.Errorf("descrição do cancelamento obrigatória: %w", domain.ErrInvalidInput)
	}

	if strings.EqualFold(o.cfg.AppEnv, infranfse.AppEnvDev) || o.authority == nil {
		doc.Status = entity.FiscalStatusCancelada
		doc.MotivoCancelamento = descricao
		doc.MensagemStatus = "[DEV] cancelamento simulado"
		doc.UpdatedAt = time.Now()
		if err := o.docRepo.Update(ctx, doc); err != nil {
			return nil, nil, err
		}
		return doc, &infranfse.AuthorityResponse{CodigoStatus: pkgnfse.StatusAutorizada}, nil
	}

	resp, err := o.authority.Cancel(ctx, doc.ChaveAcesso, codigoMotivo, descricao, o.authorityConfigFor(ctx, doc))
	if err != nil {
		// Transitório, terminal ou ambíguo: nada é persistido, o estado
		// AUTORIZADA segue valendo até homologação confirmada.
		return nil, nil, err
	}
	if !resp.Success() {
		return doc, resp, nil
	}

	doc.Status = entity.FiscalStatusCancelada
	doc.MotivoCancelamento = descricao
	doc.CodigoStatus = resp.CodigoStatus
	doc.MensagemStatus = resp.MensagemCompleta()
	doc.UpdatedAt = time.Now()
	if err := o.docRepo.Update(ctx, doc); err != nil {
		return nil, nil, err
	}
	log.Info().Str("doc", docID).Str("chave", doc.ChaveAcesso).Msg("cancelamento homologado")
	return doc, resp, nil
}

// FetchDANFSE busca o PDF da nota autorizada. Devolve (nil, nil) quando a
// SEFIN ainda não o disponibilizou.
func (o *Orchestrator) FetchDANFSE(ctx context.Context, tenantID, docID string) ([]byte, error) {
	doc, err := o.ownedDocument(ctx, tenantID, docID)
	if err != nil {
		return nil, err
	}
	if doc.ChaveAcesso == "" {
		return nil, fmt.Errorf("documento sem chave de acesso: %w", domain.ErrConflict)
	}
	if o.authority == nil {
		return nil, nil
	}
	return o.authority.FetchDANFSE(ctx, doc.ChaveAcesso, o.authorityConfigFor(ctx, doc))
}

// ── helpers privados ──────────────────────────────────────────────────────────

func (o *Orchestrator) ownedDocument(ctx context.Context, tenantID, docID string) (*entity.FiscalDocument, error) {
	doc, err := o.docRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	if doc.TenantID != tenantID {
		return nil, domain.ErrForbidden
	}
	return doc, nil
}

func (o *Orchestrator) ambiente() string {
	if o.cfg.Ambiente == "" {
		return pkgnfse.AmbienteHomologacao
	}
	return o.cfg.Ambiente
}

func (o *Orchestrator) authorityConfig(prestador *entity.Prestador, cert tls.Certificate) infranfse.AuthorityConfig {
	return infranfse.AuthorityConfig{
		CNPJEmitente: prestador.CNPJ,
		Ambiente:     o.ambiente(),
		Certificate:  cert,
		Timeout:      o.cfg.Timeout,
	}
}

// authorityConfigFor monta a configuração para operações fora do fluxo de
// emissão (consulta, cancelamento, DANFSE). Erro de certificado aqui vira
// falha na chamada TLS, que o cliente reporta.
func (o *Orchestrator) authorityConfigFor(ctx context.Context, doc *entity.FiscalDocument) infranfse.AuthorityConfig {
	cfg := infranfse.AuthorityConfig{
		Ambiente: o.ambiente(),
		Timeout:  o.cfg.Timeout,
	}
	if prestador, err := o.prestadorRepo.GetByTenantID(ctx, doc.TenantID); err == nil && prestador != nil {
		cfg.CNPJEmitente = prestador.CNPJ
	}
	if cert, err := loadCertificate(o.cfg); err == nil {
		cfg.Certificate = cert
	}
	return cfg
}

func loadCertificate(cfg Config) (tls.Certificate, error) {
	if cfg.CertPath == "" {
		return tls.Certificate{}, fmt.Errorf("NFSE_CERT_PATH não configurado")
	}
	lower := strings.ToLower(cfg.CertPath)
	if strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx") {
		return signer.LoadFromP12(cfg.CertPath, cfg.CertPassword)
	}
	return signer.LoadFromPEM(cfg.CertPath, cfg.CertKeyPath)
}

// mockChaveAcesso gera uma chave de 50 dígitos para o modo dev, derivada do
// município, CNPJ e numeração. Não representa chave real da SEFIN.
func mockChaveAcesso(p *entity.Prestador, doc *entity.FiscalDocument) string {
	digits := func(s string, n int) string {
		out := make([]rune, 0, n)
		for _, r := range s {
			if r >= '0' && r <= '9' {
				out = append(out, r)
			}
		}
		for len(out) < n {
			out = append([]rune{'0'}, out...)
		}
		return string(out[len(out)-n:])
	}
	// 7 (município) + 14 (CNPJ) + 5 (série) + 15 (número) + 9 (reservado) = 50
	return digits(p.CodigoMunicipio, 7) + digits(p.CNPJ, 14) +
		digits(doc.Serie, 5) + digits(doc.Numero, 15) + strings.Repeat("9", 9)
}
