// Package nfse implementa o motor de emissão de NFS-e do padrão nacional:
// construção do DPS, evento de cancelamento e cliente do web service SEFIN.
package nfse

import (
	"crypto/tls"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zapfy/fiscal-api/internal/domain/entity"
)

// AuthorityConfig configuração por assinante para uma operação contra a SEFIN.
// O material do certificado é passado por chamada (nada de sessão por tenant):
// chamadas concorrentes de tenants distintos são seguras.
type AuthorityConfig struct {
	CNPJEmitente string
	Ambiente     string          // "1" produção, "2" homologação
	Certificate  tls.Certificate // assinatura digital e apresentação mTLS
	Timeout      time.Duration   // por chamada; 0 usa DefaultTimeout

	// Overrides de URL para testes e contingência (vazio = URL oficial do ambiente).
	URLSefin  string
	URLDanfse string
}

// DPSBuildContext contexto com todos os dados necessários para construir o XML do DPS.
type DPSBuildContext struct {
	Documento *entity.FiscalDocument
	Prestador *entity.Prestador

	Ambiente string // tpAmb
	VerAplic string // verAplic
}

// EventBuildContext contexto para o pedido de registro do evento de cancelamento.
type EventBuildContext struct {
	ChaveAcesso   string
	CNPJAutor     string
	Ambiente      string
	VerAplic      string
	CodigoMotivo  string // catálogo e101101 (1, 2, 9)
	Descricao     string
	DhEvento      time.Time
	NPedRegEvento int // número sequencial do pedido; 1 no primeiro cancelamento
}

// Valores auxiliares de formatação monetária do leiaute (duas casas, ponto decimal).
func formatDecimal(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// formatAliquota percentual com duas casas (pAliq).
func formatAliquota(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}
