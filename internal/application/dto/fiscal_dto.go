package dto

import "github.com/shopspring/decimal"

// IssueDocumentRequest body para POST /api/fiscal/documents.
// Número é opcional; vazio aloca o próximo da série do tenant.
type IssueDocumentRequest struct {
	InvoiceID        string          `json:"invoice_id"`
	Serie            string          `json:"serie"`
	Numero           string          `json:"numero,omitempty"`
	Competencia      string          `json:"competencia"` // AAAA-MM-DD (mês de competência)
	TomadorDoc       string          `json:"tomador_doc"` // CNPJ ou CPF, com ou sem máscara
	TomadorNome      string          `json:"tomador_nome"`
	DescricaoServico string          `json:"descricao_servico"`
	CTribNac         string          `json:"c_trib_nac"`
	ValorServico     decimal.Decimal `json:"valor_servico"`
	AliquotaISS      decimal.Decimal `json:"aliquota_iss"`
	ISSRetido        bool            `json:"iss_retido"`
}

// CancelDocumentRequest body para POST /api/fiscal/documents/:id/cancel.
type CancelDocumentRequest struct {
	CodigoMotivo string `json:"codigo_motivo"` // 1=erro de emissão, 2=serviço não prestado, 9=outros
	Descricao    string `json:"descricao"`
}

// FiscalDocumentResponse documento fiscal nas respostas.
type FiscalDocumentResponse struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	InvoiceID        string          `json:"invoice_id"`
	Serie            string          `json:"serie"`
	Numero           string          `json:"numero"`
	Competencia      string          `json:"competencia"`
	DhEmissao        string          `json:"dh_emissao"`
	TomadorDoc       string          `json:"tomador_doc"`
	TomadorNome      string          `json:"tomador_nome"`
	DescricaoServico string          `json:"descricao_servico"`
	CTribNac         string          `json:"c_trib_nac"`
	ValorServico     decimal.Decimal `json:"valor_servico"`
	AliquotaISS      decimal.Decimal `json:"aliquota_iss"`
	ISSRetido        bool            `json:"iss_retido"`
	Status           string          `json:"status"`
	ChaveAcesso      string          `json:"chave_acesso,omitempty"`
	DPSID            string          `json:"dps_id,omitempty"`
	CodigoStatus     int             `json:"codigo_status,omitempty"`
	MensagemStatus   string          `json:"mensagem_status,omitempty"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
}

// UpsertPrestadorRequest body para PUT /api/fiscal/prestador.
type UpsertPrestadorRequest struct {
	CNPJ               string `json:"cnpj"`
	InscricaoMunicipal string `json:"inscricao_municipal,omitempty"`
	RazaoSocial        string `json:"razao_social"`
	CodigoMunicipio    string `json:"codigo_municipio"` // código IBGE, 7 dígitos
	OptanteSimples     bool   `json:"optante_simples"`
	RegimeEspecial     string `json:"regime_especial,omitempty"`
}

// PrestadorResponse configuração fiscal do tenant nas respostas.
type PrestadorResponse struct {
	ID                 string `json:"id"`
	TenantID           string `json:"tenant_id"`
	CNPJ               string `json:"cnpj"`
	InscricaoMunicipal string `json:"inscricao_municipal,omitempty"`
	RazaoSocial        string `json:"razao_social"`
	CodigoMunicipio    string `json:"codigo_municipio"`
	OptanteSimples     bool   `json:"optante_simples"`
	RegimeEspecial     string `json:"regime_especial"`
}
