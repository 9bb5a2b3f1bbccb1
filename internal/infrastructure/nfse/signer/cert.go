// Carga e validação de certificado A1: .p12 (PKCS#12) ou par PEM.

package signer

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"

	pkgnfse "github.com/zapfy/fiscal-api/pkg/nfse"
)

// LoadFromP12 carrega certificado e chave privada de um arquivo .p12/.pfx.
// A senha pode ser vazia se o arquivo não estiver protegido.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("ler p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decodificar p12: %w", err)
	}
	// pkcs12.Decode devolve um único certificado; para a SEFIN basta a folha.
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// LoadFromPEM carrega certificado e chave de arquivos PEM (separados ou combinados).
func LoadFromPEM(certPath, keyPath string) (tls.Certificate, error) {
	if certPath == "" {
		return tls.Certificate{}, nil
	}
	if keyPath == "" {
		// Um único arquivo pode conter cert+key em PEM
		return tls.LoadX509KeyPair(certPath, certPath)
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("carregar PEM: %w", err)
	}
	return cert, nil
}

// FromPEMBytes monta o tls.Certificate a partir do conteúdo PEM em memória
// (cert PEM + chave PEM do tenant já carregados por outro canal).
func FromPEMBytes(certPEM, keyPEM []byte) (tls.Certificate, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("montar par PEM: %w", err)
	}
	return cert, nil
}

// ValidateCertificate verifica vigência e correspondência entre chave privada
// e certificado antes de assinar. Par inválido exige rotação de credencial,
// nunca retry.
func ValidateCertificate(cert tls.Certificate, now time.Time) (*x509.Certificate, *rsa.PrivateKey, error) {
	if len(cert.Certificate) == 0 || cert.PrivateKey == nil {
		return nil, nil, &pkgnfse.SigningError{Reason: "certificado ou chave privada ausente"}
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, &pkgnfse.SigningError{Reason: "a chave privada deve ser RSA"}
	}
	leaf := cert.Leaf
	if leaf == nil {
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, nil, &pkgnfse.SigningError{Reason: "certificado ilegível", Err: err}
		}
		leaf = parsed
	}
	if now.After(leaf.NotAfter) {
		return nil, nil, &pkgnfse.SigningError{Reason: fmt.Sprintf("certificado expirado em %s", leaf.NotAfter.Format("2006-01-02"))}
	}
	if now.Before(leaf.NotBefore) {
		return nil, nil, &pkgnfse.SigningError{Reason: "certificado ainda não vigente"}
	}
	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, nil, &pkgnfse.SigningError{Reason: "o certificado deve conter chave pública RSA"}
	}
	if pub.N.Cmp(priv.PublicKey.N) != 0 || pub.E != priv.PublicKey.E {
		return nil, nil, &pkgnfse.SigningError{Reason: "chave privada não corresponde ao certificado"}
	}
	return leaf, priv, nil
}
