package entity

import "time"

// Prestador é a configuração fiscal do assinante (emitente da NFS-e):
// identificação perante a SEFIN e dados exigidos no grupo prest do DPS.
// Imutável durante uma operação de emissão.
type Prestador struct {
	ID       string
	TenantID string

	CNPJ               string // 14 dígitos, emitente do DPS e titular do certificado
	InscricaoMunicipal string // opcional
	RazaoSocial        string
	CodigoMunicipio    string // código IBGE do município emissor (cLocEmi), 7 dígitos
	OptanteSimples     bool   // opSimpNac
	RegimeEspecial     string // regEspTrib; "0" quando nenhum

	CreatedAt time.Time
	UpdatedAt time.Time
}
