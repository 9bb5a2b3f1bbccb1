// Package nfse contém catálogos alinhados ao leiaute da NFS-e de padrão
// nacional (DPS / pedido de registro de evento).
package nfse

// =============================================================================
// Tipo de Ambiente (tpAmb)
// =============================================================================

const (
	AmbienteProducao    = "1" // Produção (sefin.nfse.gov.br)
	AmbienteHomologacao = "2" // Homologação / produção restrita
)

// ValidAmbientes ambientes aceitos pelo motor.
var ValidAmbientes = map[string]bool{
	AmbienteProducao:    true,
	AmbienteHomologacao: true,
}

// =============================================================================
// Códigos de status retornados pela SEFIN (codigoStatus)
// A API não é consistente: emissões aceitas chegam com 0 ou com 100.
// =============================================================================

const (
	StatusOK         = 0   // sucesso genérico do processamento
	StatusAutorizada = 100 // NFS-e gerada / evento homologado
)

// SuccessStatus informa se um codigoStatus representa sucesso.
func SuccessStatus(code int) bool {
	return code == StatusOK || code == StatusAutorizada
}

// =============================================================================
// Eventos (pedRegEvento)
// =============================================================================

const (
	// EventoCancelamento código do evento de cancelamento da NFS-e.
	EventoCancelamento = "101101"
)

// Motivos de cancelamento aceitos no e101101.
const (
	MotivoErroEmissao        = "1" // Erro na emissão
	MotivoServicoNaoPrestado = "2" // Serviço não prestado
	MotivoOutros             = "9" // Outros (exige descrição)
)

// ValidCancelReasonCodes códigos de motivo de cancelamento válidos.
var ValidCancelReasonCodes = map[string]bool{
	MotivoErroEmissao:        true,
	MotivoServicoNaoPrestado: true,
	MotivoOutros:             true,
}

// =============================================================================
// Regimes e flags do DPS usados pelo builder
// =============================================================================

const (
	// TpEmitPrestador emissão feita pelo próprio prestador do serviço.
	TpEmitPrestador = "1"

	// OpSimpNacNaoOptante / Optante: opção pelo Simples Nacional no regTrib.
	OpSimpNacNaoOptante = "1"
	OpSimpNacOptante    = "2"

	// RegEspTribNenhum sem regime especial de tributação.
	RegEspTribNenhum = "0"

	// ISSQNExigivel exigibilidade normal do ISSQN.
	ISSQNExigivel = "1"

	// ISSNaoRetido / ISSRetido retenção do ISSQN pelo tomador.
	ISSNaoRetido = "1"
	ISSRetido    = "2"
)
