package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados do documento fiscal (NFS-e padrão nacional).
// Fluxo: PENDENTE → ASSINADA → {AUTORIZADA | REJEITADA | ERRO_GERACAO};
// AUTORIZADA → CANCELADA via evento assinado. Falha transitória de transporte
// não muda estado (permanece ASSINADA para reenvio).
const (
	FiscalStatusPendente    = "PENDENTE"     // gravada, aguardando processamento
	FiscalStatusAssinada    = "ASSINADA"     // DPS assinado, envio pendente ou a reenviar
	FiscalStatusAutorizada  = "AUTORIZADA"   // aceita pela SEFIN, chave de acesso emitida
	FiscalStatusRejeitada   = "REJEITADA"    // rejeição terminal da SEFIN (4xx de negócio)
	FiscalStatusCancelada   = "CANCELADA"    // evento de cancelamento homologado
	FiscalStatusErroGeracao = "ERRO_GERACAO" // falhou construção do XML ou assinatura
)

// FiscalDocument representa um documento fiscal de serviço (NFS-e) emitido
// a partir de uma fatura da plataforma.
type FiscalDocument struct {
	ID       string
	TenantID string
	// InvoiceID referência à fatura de billing que originou a emissão.
	InvoiceID string

	Serie       string
	Numero      string
	Competencia time.Time // dCompet: mês de competência do serviço
	DhEmissao   time.Time // dhEmi usado no DPS

	// Tomador do serviço (cliente do assinante).
	TomadorDoc  string // CNPJ (14) ou CPF (11), só dígitos
	TomadorNome string

	// Serviço prestado (tributação já resolvida pelo billing).
	DescricaoServico string
	CTribNac         string // código de tributação nacional (6 dígitos)
	ValorServico     decimal.Decimal
	AliquotaISS      decimal.Decimal
	ISSRetido        bool

	Status         string
	ChaveAcesso    string // chave de 50 dígitos emitida pela SEFIN; imutável
	DPSID          string // Id do infDPS ("DPS" + CNPJ + série + número)
	XMLAssinado    string // DPS assinado (conteúdo completo, para auditoria)
	CodigoStatus   int    // último codigoStatus devolvido pela SEFIN
	MensagemStatus string // última mensagem/motivo devolvido pela SEFIN

	MotivoCancelamento string // descrição informada no evento e101101

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cancelavel informa se o documento pode receber evento de cancelamento.
func (d *FiscalDocument) Cancelavel() bool {
	return d.Status == FiscalStatusAutorizada && d.ChaveAcesso != ""
}
