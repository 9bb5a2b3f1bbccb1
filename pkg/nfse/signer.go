// Package nfse: porta para assinatura digital de documentos XML (NFS-e nacional).

package nfse

import "crypto/tls"

// Signer assina um documento XML e devolve o XML com o nó ds:Signature
// embutido. O documento é opaco para o assinador: serve tanto para o DPS
// quanto para o pedido de registro de evento de cancelamento.
type Signer interface {
	// Sign recebe o XML sem assinatura e o certificado com chave privada,
	// e retorna o XML com a assinatura envelopada injetada.
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
}
