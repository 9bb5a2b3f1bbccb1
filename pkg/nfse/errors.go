// Package nfse: tipos compartilhados do motor de emissão de NFS-e (padrão nacional).
// A taxonomia de erros é fechada: local (entrada/assinatura), transitório (5xx)
// e terminal (rejeição de negócio). O chamador decide retry só pelo tipo.
package nfse

import "fmt"

// MalformedInputError indica campo obrigatório ausente ou estruturalmente
// inválido nos dados de entrada. Não adianta reenviar: corrigir a entrada.
type MalformedInputError struct {
	Field string
}

func (e *MalformedInputError) Error() string {
	return "nfse: campo obrigatório ausente ou inválido: " + e.Field
}

// SigningError indica problema com o certificado ou a chave privada
// (expirado, par não correspondente, formato inválido). Exige rotação de
// credenciais, nunca retry.
type SigningError struct {
	Reason string
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nfse: falha na assinatura digital: %s: %v", e.Reason, e.Err)
	}
	return "nfse: falha na assinatura digital: " + e.Reason
}

func (e *SigningError) Unwrap() error { return e.Err }

// RetryableTransportError indica falha 5xx ou de conexão contra a SEFIN.
// O chamador deve reenviar com backoff; o status e o corpo originais são
// preservados para auditoria (documentos fiscais têm valor legal).
type RetryableTransportError struct {
	Operation string
	Status    int
	Body      []byte
}

func (e *RetryableTransportError) Error() string {
	return fmt.Sprintf("nfse: falha transitória em %s (HTTP %d): %s", e.Operation, e.Status, truncate(e.Body))
}

// TerminalRejectionError indica 4xx em operação onde não existe estado
// terminal de rejeição (ex.: consulta de chave desconhecida). Não reenviar.
type TerminalRejectionError struct {
	Operation string
	Status    int
	Body      []byte
}

func (e *TerminalRejectionError) Error() string {
	return fmt.Sprintf("nfse: rejeição terminal em %s (HTTP %d): %s", e.Operation, e.Status, truncate(e.Body))
}

// AmbiguousResponseError indica resposta 2xx sem nenhum marcador de sucesso
// reconhecido. Nunca assumir sucesso: escalar para revisão manual com o
// corpo bruto anexado.
type AmbiguousResponseError struct {
	Operation string
	Body      []byte
}

func (e *AmbiguousResponseError) Error() string {
	return fmt.Sprintf("nfse: resposta ambígua em %s (2xx sem marcador de sucesso): %s", e.Operation, truncate(e.Body))
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "…"
	}
	return string(b)
}
